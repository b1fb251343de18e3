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
	"errors"

	"github.com/cockroachdb/pgadapt/internal/native"
	"github.com/cockroachdb/pgadapt/internal/pgwait"
)

var errAssertion = errors.New("fakeClient: scripted failure")

// fakeClient is a scripted native.Client used to drive ConnectStep and
// ExecuteDrainStep without a real server. Each *Sequence field is
// consumed one entry per call; the last entry repeats once exhausted.
type fakeClient struct {
	socket int

	connectStarted bool
	connectErr     error
	pollSequence   []native.PollStatus
	pollIdx        int
	nonblockingSet int

	status   native.ConnStatus
	txStatus native.TxStatus

	sentQueries  []string
	flushSeq     []int
	flushIdx     int
	busySeq      []bool
	busyIdx      int
	consumeErr   error
	consumeCalls int
	results      []*native.Result
	resultIdx    int
}

var _ native.Client = (*fakeClient)(nil)

func (c *fakeClient) ConnectStart(string) error {
	c.connectStarted = true
	if c.connectErr != nil {
		return c.connectErr
	}
	c.status = native.StatusStarted
	return nil
}

func (c *fakeClient) ConnectPoll() (native.PollStatus, error) {
	if len(c.pollSequence) == 0 {
		c.status = native.StatusOK
		return native.PollOK, nil
	}
	i := c.pollIdx
	if i >= len(c.pollSequence) {
		i = len(c.pollSequence) - 1
	} else {
		c.pollIdx++
	}
	poll := c.pollSequence[i]
	switch poll {
	case native.PollOK:
		c.status = native.StatusOK
	case native.PollFailed:
		c.status = native.StatusBad
	}
	return poll, nil
}

func (c *fakeClient) Status() native.ConnStatus { return c.status }

func (c *fakeClient) SetNonblocking() error {
	c.nonblockingSet++
	return nil
}

func (c *fakeClient) Socket() int { return c.socket }

func (c *fakeClient) SendQuery(sql string) error {
	c.sentQueries = append(c.sentQueries, sql)
	return nil
}

func (c *fakeClient) SendQueryParams(
	sql string, _ [][]byte, _ []native.Format, _ []uint32, _ native.Format,
) error {
	c.sentQueries = append(c.sentQueries, sql)
	return nil
}

func (c *fakeClient) Flush() (int, error) {
	if len(c.flushSeq) == 0 {
		return 0, nil
	}
	i := c.flushIdx
	if i >= len(c.flushSeq) {
		i = len(c.flushSeq) - 1
	} else {
		c.flushIdx++
	}
	return c.flushSeq[i], nil
}

func (c *fakeClient) ConsumeInput() error {
	c.consumeCalls++
	return c.consumeErr
}

func (c *fakeClient) IsBusy() bool {
	if len(c.busySeq) == 0 {
		return false
	}
	i := c.busyIdx
	if i >= len(c.busySeq) {
		i = len(c.busySeq) - 1
	} else {
		c.busyIdx++
	}
	return c.busySeq[i]
}

func (c *fakeClient) GetResult() (*native.Result, error) {
	if c.resultIdx >= len(c.results) {
		return nil, nil
	}
	r := c.results[c.resultIdx]
	c.resultIdx++
	return r, nil
}

func (c *fakeClient) TransactionStatus() native.TxStatus { return c.txStatus }

func (c *fakeClient) Escaping() native.Escaping { return nil }

func (c *fakeClient) Close() error { return nil }

// driveStep runs step to completion without any real socket, treating
// every yielded W interest as immediately satisfied by ReadyW and
// every R/RW interest as satisfied by ReadyR. It mirrors what a Waiter
// does, minus the actual select(2) call, so pgengine's state machines
// can be unit-tested in isolation.
func driveStep(step pgwait.Step) (any, error) {
	var ready pgwait.Readiness
	for {
		out := step(ready)
		if !out.IsYield {
			return out.Value, out.Err
		}
		if out.Want == pgwait.W {
			ready = pgwait.ReadyW
		} else {
			ready = pgwait.ReadyR
		}
	}
}
