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

package main

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/cockroachdb/pgadapt/internal/pgwait"
)

// selectScheduler is the minimal pgwait.Scheduler a single goroutine
// can host: it runs its own select(2) loop on a background goroutine,
// notifying exactly one registered interest at a time. pgbench has no
// event loop of its own, so this exists only to exercise
// ConnectCooperative's Scheduler seam end to end; a real embedder
// would multiplex many connections' interests onto one loop instead of
// spawning a goroutine per registration.
type selectScheduler struct{}

var _ pgwait.Scheduler = selectScheduler{}

// RegisterInterest implements pgwait.Scheduler.
func (selectScheduler) RegisterInterest(
	fd int, interest pgwait.Interest, onReady func(pgwait.Readiness),
) func() {
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
			}

			var rset, wset unix.FdSet
			if interest == pgwait.R || interest == pgwait.RW {
				rset.Bits[fd/64] |= 1 << (uint(fd) % 64)
			}
			if interest == pgwait.W || interest == pgwait.RW {
				wset.Bits[fd/64] |= 1 << (uint(fd) % 64)
			}
			tv := unix.NsecToTimeval((50 * time.Millisecond).Nanoseconds())

			n, err := unix.Select(fd+1, &rset, &wset, nil, &tv)
			if err != nil || n == 0 {
				continue
			}
			if wset.Bits[fd/64]&(1<<(uint(fd)%64)) != 0 {
				onReady(pgwait.ReadyW)
			} else {
				onReady(pgwait.ReadyR)
			}
			return
		}
	}()
	return func() { close(done) }
}
