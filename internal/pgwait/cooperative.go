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

// A Scheduler is a host event loop capable of notifying a caller once
// when a file descriptor becomes ready for a given Interest. It is the
// seam between pgwait and whatever cooperative scheduler embeds this
// driver (a goroutine-per-task pool, an actor runtime, ...).
//
// RegisterInterest must call onReady exactly once, from any goroutine,
// as soon as fd satisfies interest; it returns a cancel function that
// unregisters the interest if it is still pending.
type Scheduler interface {
	RegisterInterest(fd int, interest Interest, onReady func(Readiness)) (cancel func())
}

// CooperativeWaiter drives a Step without blocking the calling
// goroutine: instead of calling select(2) itself, it hands readiness
// interest to a Scheduler and parks on a channel. This is the
// single-threaded-event-loop driver's waiter.
type CooperativeWaiter struct {
	Scheduler Scheduler
}

var _ Waiter = CooperativeWaiter{}

// Wait implements Waiter.
func (c CooperativeWaiter) Wait(ctx context.Context, step Step) (any, error) {
	if c.Scheduler == nil {
		return nil, errors.New("pgwait: CooperativeWaiter requires a Scheduler")
	}

	var ready Readiness
	for {
		out := step(ready)
		if !out.IsYield {
			if out.Err != nil {
				return nil, out.Err
			}
			return out.Value, nil
		}

		r, err := c.parkUntilReady(ctx, out.FD, out.Want)
		if err != nil {
			return nil, err
		}
		ready = r
	}
}

func (c CooperativeWaiter) parkUntilReady(ctx context.Context, fd int, want Interest) (Readiness, error) {
	readyCh := make(chan Readiness, 1)
	cancel := c.Scheduler.RegisterInterest(fd, want, func(r Readiness) {
		select {
		case readyCh <- r:
		default:
		}
	})

	select {
	case r := <-readyCh:
		return r, nil
	case <-ctx.Done():
		cancel()
		return 0, errors.Wrap(ErrAbandoned, ctx.Err().Error())
	}
}
