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
	"testing"

	"github.com/stretchr/testify/require"
)

// notReadyOnceScheduler wraps a Scheduler and swallows the first
// notification for each registered interest, re-registering so that
// only the second callback reaches the waiter ("not ready" on the
// first poll, "ready" on the second), fuzzing a waiter against a flaky scheduler the same way a
// delegate-wrapping decorator would fuzz any other dependency.
type notReadyOnceScheduler struct {
	delegate Scheduler
}

func (s *notReadyOnceScheduler) RegisterInterest(
	fd int, interest Interest, onReady func(Readiness),
) func() {
	fired := false
	return s.delegate.RegisterInterest(fd, interest, func(r Readiness) {
		if !fired {
			fired = true
			// Drop this wakeup as spurious and re-register for the
			// real event.
			s.delegate.RegisterInterest(fd, interest, onReady)
			return
		}
		onReady(r)
	})
}

// immediateScheduler resolves every RegisterInterest call on the spot,
// as if the fd were always ready. Used to drive CooperativeWaiter in
// tests without a real event loop.
type immediateScheduler struct{}

func (immediateScheduler) RegisterInterest(fd int, interest Interest, onReady func(Readiness)) func() {
	r := ReadyR
	if interest == W {
		r = ReadyW
	}
	go onReady(r)
	return func() {}
}

// TestCooperativeWaiterSurvivesSpuriousWakeups checks that a waiter
// fuzzed with a spurious extra round of "not ready" still reaches the
// same terminal value as an unfuzzed run, and does not deadlock.
func TestCooperativeWaiterSurvivesSpuriousWakeups(t *testing.T) {
	step := func() Step {
		calls := 0
		return func(ready Readiness) Outcome {
			calls++
			if calls < 3 {
				return Yield(3, RW)
			}
			return Done(calls)
		}
	}()

	w := CooperativeWaiter{Scheduler: &notReadyOnceScheduler{delegate: immediateScheduler{}}}
	v, err := w.Wait(context.Background(), step)
	require.NoError(t, err)
	require.Equal(t, 3, v)
}

// TestCooperativeWaiterCancellation verifies that a canceled context
// abandons an in-flight step rather than hanging.
func TestCooperativeWaiterCancellation(t *testing.T) {
	blockForever := func(Readiness) Outcome { return Yield(3, R) }

	w := CooperativeWaiter{Scheduler: blockingScheduler{}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := w.Wait(ctx, blockForever)
	require.ErrorIs(t, err, ErrAbandoned)
}

// blockingScheduler never calls onReady; used to prove cancellation
// works even when the fd never becomes ready.
type blockingScheduler struct{}

func (blockingScheduler) RegisterInterest(int, Interest, func(Readiness)) func() { return func() {} }
