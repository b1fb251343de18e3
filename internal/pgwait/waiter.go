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

package pgwait

import (
	"context"

	"github.com/pkg/errors"
)

// Outcome is what a single Step transition returns. Exactly one of
// Done or Yield is meaningful, selected by IsYield.
type Outcome struct {
	// IsYield is true if the step suspended on (FD, Want); false if it
	// produced a terminal Value or Err.
	IsYield bool

	// FD and Want are meaningful only when IsYield is true.
	FD   int
	Want Interest

	// Value and Err are meaningful only when IsYield is false. Value
	// holds the generator's return value (a native client handle, a
	// slice of results, ...); Err holds a terminal failure.
	Value any
	Err   error
}

// Yield builds a suspending Outcome.
func Yield(fd int, want Interest) Outcome { return Outcome{IsYield: true, FD: fd, Want: want} }

// Done builds a terminal, successful Outcome.
func Done(value any) Outcome { return Outcome{Value: value} }

// Fail builds a terminal, failing Outcome.
func Fail(err error) Outcome { return Outcome{Err: err} }

// A Step advances a suspendable I/O computation by one transition. It
// is first called with the zero Readiness to get the computation
// going, then called again with whatever Readiness a Waiter observed
// each time the previous call returned a yielding Outcome.
//
// This is the explicit tagged-state-machine replacement called for by
// the design notes: languages with coroutines express the connect and
// execute-drain machines as generators that `yield (fd, interest)`;
// Step packages one generator resumption as a single call, with the
// generator's local variables captured in the closure instead of
// suspended stack frames.
type Step func(ready Readiness) Outcome

// A Waiter drives a Step to completion, translating each yielded
// (fd, interest) into actual OS readiness between resumptions. Two
// implementations exist: BlockingWaiter (a synchronous select loop on
// the calling goroutine) and CooperativeWaiter (registers interest
// with a host event loop and suspends the calling goroutine on a
// channel). Both must honor ctx cancellation identically: an expired
// or canceled ctx abandons the in-flight step and returns an error
// wrapping ErrAbandoned (carrying ctx's error message), never resuming
// the step again.
type Waiter interface {
	Wait(ctx context.Context, step Step) (any, error)
}

// ErrAbandoned is wrapped into the error returned by a Waiter when the
// context is canceled or its deadline expires while a step is
// suspended. A Connection whose command is abandoned this way closes
// its native client, leaving it marked bad; the caller must not
// attempt to resume it.
var ErrAbandoned = errors.New("pgwait: connection abandoned")
