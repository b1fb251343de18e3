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

package pgengine

import (
	"github.com/pkg/errors"

	"github.com/cockroachdb/pgadapt/internal/native"
	"github.com/cockroachdb/pgadapt/internal/pgwait"
)

type drainPhase int

const (
	phaseSend drainPhase = iota
	phaseFlush
	phaseDrain
)

// ExecuteDrainStep builds the execute-drain state machine for one
// command: queue it with send, flush the outbound bytes, then drain
// inbound bytes until every result has been collected. send is called
// exactly once, synchronously, before the first flush attempt —
// queuing a command never itself blocks, only writing it to the wire
// can.
//
// The flush phase yields on RW, not W alone: a large query can fill
// the server's inbound buffer while this side is still writing a
// large result's worth of parameters, and the server stops reading
// until someone drains its outbound buffer too. If resumed with R
// while still flushing, inbound bytes are consumed to relieve that
// backpressure before the write is retried; if resumed with W, the
// write is retried directly. The drain phase only ever yields on R.
func ExecuteDrainStep(client native.Client, send func() error) pgwait.Step {
	phase := phaseSend
	flushSuspended := false
	var results []*native.Result

	return func(ready pgwait.Readiness) pgwait.Outcome {
		if phase == phaseSend {
			if err := send(); err != nil {
				return pgwait.Fail(errors.Wrap(err, "pgengine: queuing command"))
			}
			phase = phaseFlush
		}

		if phase == phaseFlush {
			if flushSuspended && ready == pgwait.ReadyR {
				if err := client.ConsumeInput(); err != nil {
					return pgwait.Fail(errors.Wrap(err, "pgengine: consuming input during flush"))
				}
			}
			pending, err := client.Flush()
			if err != nil {
				return pgwait.Fail(errors.Wrap(err, "pgengine: flushing command"))
			}
			if pending > 0 {
				flushSuspended = true
				return pgwait.Yield(client.Socket(), pgwait.RW)
			}
			phase = phaseDrain
		}

		for {
			if client.IsBusy() {
				if err := client.ConsumeInput(); err != nil {
					return pgwait.Fail(errors.Wrap(err, "pgengine: consuming input"))
				}
				if client.IsBusy() {
					return pgwait.Yield(client.Socket(), pgwait.R)
				}
			}

			res, err := client.GetResult()
			if err != nil {
				return pgwait.Fail(errors.Wrap(err, "pgengine: fetching result"))
			}
			if res == nil {
				return pgwait.Done(results)
			}
			results = append(results, res)
		}
	}
}
