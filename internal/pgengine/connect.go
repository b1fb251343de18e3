// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package pgengine holds the two explicit tagged-state machines this
// driver runs over a native.Client: ConnectStep (the connection
// handshake) and ExecuteDrainStep (sending a query and draining its
// results). Both are expressed as pgwait.Step closures so that either
// pgwait.Waiter can drive them.
package pgengine

import (
	"github.com/pkg/errors"

	"github.com/cockroachdb/pgadapt/internal/native"
	"github.com/cockroachdb/pgadapt/internal/pgwait"
)

// ErrUnexpectedPollStatus marks a connect failure caused by the native
// client reporting a polling verdict this engine does not recognize —
// as opposed to a normal, server/socket-caused connection failure.
// Callers should surface this as an internal error rather than an
// operational one: it means the native.Client implementation violated
// its own contract.
var ErrUnexpectedPollStatus = errors.New("pgengine: native client returned an unexpected polling verdict")

// ConnectStep builds the connect state machine: on every call after
// the attempt has been started, first check the native client's status
// for BAD and fail fast if so; then start (once) and poll its asynchronous connection attempt to
// completion, arming nonblocking mode exactly once (SetNonblocking is
// called immediately after the first PollOK, never again). Its
// terminal Done value is the native.Client itself, ready for use by
// ExecuteDrainStep.
func ConnectStep(client native.Client, conninfo string) pgwait.Step {
	started := false
	nonblockingArmed := false

	return func(pgwait.Readiness) pgwait.Outcome {
		if client.Status() == native.StatusBad && started {
			return pgwait.Fail(errors.New("pgengine: connection is bad"))
		}

		if !started {
			if err := client.ConnectStart(conninfo); err != nil {
				return pgwait.Fail(errors.Wrap(err, "pgengine: starting connection"))
			}
			started = true
		}

		poll, err := client.ConnectPoll()
		if err != nil {
			return pgwait.Fail(errors.Wrap(err, "pgengine: polling connection"))
		}

		switch poll {
		case native.PollReading:
			return pgwait.Yield(client.Socket(), pgwait.R)
		case native.PollWriting:
			return pgwait.Yield(client.Socket(), pgwait.W)
		case native.PollOK:
			if !nonblockingArmed {
				if err := client.SetNonblocking(); err != nil {
					return pgwait.Fail(errors.Wrap(err, "pgengine: arming nonblocking mode"))
				}
				nonblockingArmed = true
			}
			return pgwait.Done(client)
		case native.PollFailed:
			return pgwait.Fail(errors.New("pgengine: connection failed"))
		default:
			return pgwait.Fail(errors.Wrap(ErrUnexpectedPollStatus, poll.String()))
		}
	}
}
