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
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// BlockingWaiter drives a Step on the calling goroutine, synchronously
// calling select(2) between resumptions. It is the thread-per-connection
// driver's waiter: nothing else on the goroutine makes progress while
// Wait is running.
type BlockingWaiter struct {
	// PollInterval bounds how long a single select(2) call blocks
	// before re-checking ctx, so that cancellation is observed
	// promptly even though select(2) itself has no context awareness.
	// Defaults to 200ms.
	PollInterval time.Duration
}

var _ Waiter = BlockingWaiter{}

// Wait implements Waiter.
func (b BlockingWaiter) Wait(ctx context.Context, step Step) (any, error) {
	poll := b.PollInterval
	if poll <= 0 {
		poll = 200 * time.Millisecond
	}

	var ready Readiness
	for {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(ErrAbandoned, err.Error())
		}

		out := step(ready)
		if !out.IsYield {
			if out.Err != nil {
				return nil, out.Err
			}
			return out.Value, nil
		}

		r, err := selectOnce(ctx, out.FD, out.Want, poll)
		if err != nil {
			return nil, err
		}
		ready = r
	}
}

// selectOnce blocks in select(2) for up to poll, or until ctx is done,
// or until fd becomes ready for the requested interest. It loops on
// plain (non-context) timeouts so that ctx cancellation is checked
// between calls without needing select(2) itself to know about ctx.
func selectOnce(ctx context.Context, fd int, want Interest, poll time.Duration) (Readiness, error) {
	for {
		select {
		case <-ctx.Done():
			return 0, errors.Wrap(ErrAbandoned, ctx.Err().Error())
		default:
		}

		var rset, wset unix.FdSet
		if want == R || want == RW {
			fdSet(&rset, fd)
		}
		if want == W || want == RW {
			fdSet(&wset, fd)
		}
		tv := unix.NsecToTimeval(poll.Nanoseconds())

		n, err := unix.Select(fd+1, &rset, &wset, nil, &tv)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return 0, errors.Wrap(err, "select")
		}
		if n == 0 {
			continue // timed out, re-check ctx and retry
		}

		if fdIsSet(&wset, fd) {
			return ReadyW, nil
		}
		return ReadyR, nil
	}
}

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}
