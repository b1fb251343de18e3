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

package native

import (
	"net"
	"os"
	"sync"

	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/pkg/errors"
)

// PGConn is the concrete Client built atop pgproto3 for wire-message
// framing and a raw net.Conn for the socket itself.
//
// The TCP dial and startup handshake run on a background goroutine;
// ConnectPoll observes their progress through a self-pipe so the
// calling goroutine is never the one blocked in the kernel. Once
// ConnectPoll reports PollOK, all further I/O
// (SendQuery, Flush, ConsumeInput) runs synchronously on the caller,
// bounded by a short read/write deadline standing in for a genuinely
// nonblocking socket — see tryWrite and ConsumeInput in exec.go.
type PGConn struct {
	mu sync.Mutex

	conn     net.Conn
	frontend *pgproto3.Frontend
	params   connParams

	status      ConnStatus
	txStatus    TxStatus
	nonblocking bool

	// Connect-phase bookkeeping. pipeR/pipeW are a self-pipe: the
	// handshake goroutine closes pipeW when it finishes, which makes
	// pipeR readable and gives ConnectPoll a real, pollable fd to
	// report from Socket.
	connectDone chan struct{}
	connectErr  error
	pipeR       *os.File
	pipeW       *os.File

	processID uint32
	secretKey uint32

	// paramStatus mirrors the server's ParameterStatus announcements
	// (standard_conforming_strings, client_encoding, ...), consulted by
	// Escaping to produce a server-accurate literal.
	paramStatus map[string]string

	// Exec-phase bookkeeping. At most one command is ever in flight,
	// matching the single-outstanding-command assumption of the
	// execute-drain machine.
	sendBuf       []byte
	results       []*Result
	resultAt      int
	readyForQuery bool
	curFields     []FieldDesc
	curRows       [][][]byte
	drainErr      error
}

var _ Client = (*PGConn)(nil)

// NewPGConn constructs a PGConn in its zero, unconnected state.
func NewPGConn() *PGConn {
	return &PGConn{status: StatusBad, txStatus: TxUnknown}
}

// ConnectStart implements Client.
func (c *PGConn) ConnectStart(conninfo string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusBad {
		return errors.New("native: ConnectStart called on a connection already in progress")
	}
	params, err := parseConninfo(conninfo)
	if err != nil {
		return err
	}
	c.params = params

	pipeR, pipeW, err := os.Pipe()
	if err != nil {
		return errors.Wrap(err, "native: allocating connect-notify pipe")
	}
	c.pipeR, c.pipeW = pipeR, pipeW
	c.connectDone = make(chan struct{})
	c.status = StatusStarted

	go c.runConnect()
	return nil
}

func (c *PGConn) runConnect() {
	conn, err := net.Dial("tcp", c.params.addr())
	if err == nil {
		var frontend *pgproto3.Frontend
		var paramStatus map[string]string
		frontend, paramStatus, err = performHandshake(conn, c.params)
		if err == nil {
			c.mu.Lock()
			c.conn = conn
			c.frontend = frontend
			c.paramStatus = paramStatus
			c.mu.Unlock()
		} else {
			conn.Close()
		}
	}

	c.mu.Lock()
	c.connectErr = err
	c.mu.Unlock()
	close(c.connectDone)
	c.pipeW.Close()
}

// ConnectPoll implements Client.
func (c *PGConn) ConnectPoll() (PollStatus, error) {
	select {
	case <-c.connectDone:
	default:
		return PollReading, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectErr != nil {
		c.status = StatusBad
		return PollFailed, c.connectErr
	}
	c.status = StatusOK
	c.txStatus = TxIdle
	return PollOK, nil
}

// Status implements Client.
func (c *PGConn) Status() ConnStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SetNonblocking implements Client.
func (c *PGConn) SetNonblocking() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nonblocking = true
	return nil
}

// Socket implements Client.
//
// While the connection is still being established this returns the
// self-pipe's read end; once established it returns the TCP socket's
// own descriptor.
func (c *PGConn) Socket() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.connectDone:
	default:
		return int(c.pipeR.Fd())
	}

	fd, err := socketFD(c.conn)
	if err != nil {
		return int(c.pipeR.Fd())
	}
	return fd
}

// TransactionStatus implements Client.
func (c *PGConn) TransactionStatus() TxStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txStatus
}

// Escaping implements Client.
func (c *PGConn) Escaping() Escaping {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &serverEscaping{conn: c}
}

// Close implements Client.
func (c *PGConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = StatusBad
	if c.pipeR != nil {
		c.pipeR.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
