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

package pgadapt

import (
	"context"

	"github.com/cockroachdb/pgadapt/internal/native"
	"github.com/cockroachdb/pgadapt/internal/pgwait"
)

// immediateWaiter drives a Step to completion without touching a real
// socket: every yielded interest is immediately satisfied. It lets
// root-package tests exercise Connection against a scripted
// native.Client.
type immediateWaiter struct{}

func (immediateWaiter) Wait(_ context.Context, step pgwait.Step) (any, error) {
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

// fakeNativeClient is a scripted native.Client: each SendQuery or
// SendQueryParams call records its sql and answers with the results
// last armed by queueResults.
type fakeNativeClient struct {
	connected bool
	txStatus  native.TxStatus

	queue   []*native.Result
	pending []*native.Result
	sent    []string
}

var _ native.Client = (*fakeNativeClient)(nil)

func (c *fakeNativeClient) ConnectStart(string) error { c.connected = true; return nil }
func (c *fakeNativeClient) ConnectPoll() (native.PollStatus, error) { return native.PollOK, nil }
func (c *fakeNativeClient) Status() native.ConnStatus                { return native.StatusOK }
func (c *fakeNativeClient) SetNonblocking() error                    { return nil }
func (c *fakeNativeClient) Socket() int                              { return 1 }

func (c *fakeNativeClient) SendQuery(sql string) error {
	c.sent = append(c.sent, sql)
	c.pending = c.queue
	c.queue = nil
	return nil
}

func (c *fakeNativeClient) SendQueryParams(
	sql string, _ [][]byte, _ []native.Format, _ []uint32, _ native.Format,
) error {
	return c.SendQuery(sql)
}

func (c *fakeNativeClient) Flush() (int, error) { return 0, nil }
func (c *fakeNativeClient) ConsumeInput() error { return nil }
func (c *fakeNativeClient) IsBusy() bool        { return false }

func (c *fakeNativeClient) GetResult() (*native.Result, error) {
	if len(c.pending) == 0 {
		return nil, nil
	}
	r := c.pending[0]
	c.pending = c.pending[1:]
	return r, nil
}

func (c *fakeNativeClient) TransactionStatus() native.TxStatus { return c.txStatus }
func (c *fakeNativeClient) Escaping() native.Escaping          { return fakeEscaping{} }
func (c *fakeNativeClient) Close() error                       { return nil }

// queueResults arms the next SendQuery/SendQueryParams call to answer
// with results.
func (c *fakeNativeClient) queueResults(results ...*native.Result) { c.queue = results }

func newFakeConnection(client native.Client) *Connection {
	return newConnection(client, immediateWaiter{}, NewRegistry())
}

type fakeEscaping struct{}

func (fakeEscaping) EscapeLiteral(data []byte) ([]byte, error) {
	return append([]byte{'\''}, append(data, '\'')...), nil
}

func (fakeEscaping) EscapeString(data []byte) ([]byte, error) { return data, nil }
