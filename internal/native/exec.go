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
	"errors"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgproto3"
	pkgerrors "github.com/pkg/errors"
)

// probeDeadline bounds how long a single tryWrite / ConsumeInput probe
// may block the caller. It stands in for a true nonblocking socket,
// which net.Conn does not expose: each probe arms a fresh deadline
// before it reads or writes, so an expired deadline left by an earlier
// probe never cuts the next one short.
const probeDeadline = time.Millisecond

// tryWrite writes as much of buf as the socket accepts within
// probeDeadline. wouldBlock is true when the deadline elapsed with
// bytes still unwritten; the caller should suspend and retry the write
// rather than treat that as failure.
func tryWrite(conn net.Conn, buf []byte) (n int, wouldBlock bool, err error) {
	if len(buf) == 0 {
		return 0, false, nil
	}
	if err := conn.SetWriteDeadline(time.Now().Add(probeDeadline)); err != nil {
		return 0, false, err
	}
	n, err = conn.Write(buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return n, true, nil
		}
		return n, false, err
	}
	return n, false, nil
}

func (c *PGConn) beginCommand() {
	c.results = nil
	c.resultAt = 0
	c.readyForQuery = false
	c.curFields = nil
	c.curRows = nil
	c.drainErr = nil
}

// SendQuery implements Client.
func (c *PGConn) SendQuery(sql string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusOK {
		return pkgerrors.New("native: SendQuery before connection is established")
	}
	c.beginCommand()

	buf, err := (&pgproto3.Query{String: sql}).Encode(nil)
	if err != nil {
		return pkgerrors.Wrap(err, "native: encoding query")
	}
	c.sendBuf = append(c.sendBuf, buf...)
	return nil
}

// SendQueryParams implements Client.
func (c *PGConn) SendQueryParams(
	sql string,
	params [][]byte,
	paramFormats []Format,
	paramOIDs []uint32,
	resultFormat Format,
) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusOK {
		return pkgerrors.New("native: SendQueryParams before connection is established")
	}
	c.beginCommand()

	formatCodes := make([]int16, len(paramFormats))
	for i, f := range paramFormats {
		formatCodes[i] = int16(f)
	}

	msgs := []pgproto3.FrontendMessage{
		&pgproto3.Parse{Query: sql, ParameterOIDs: paramOIDs},
		&pgproto3.Bind{
			ParameterFormatCodes: formatCodes,
			Parameters:           params,
			ResultFormatCodes:    []int16{int16(resultFormat)},
		},
		&pgproto3.Describe{ObjectType: 'P'},
		&pgproto3.Execute{},
		&pgproto3.Sync{},
	}
	for _, m := range msgs {
		buf, err := m.Encode(nil)
		if err != nil {
			return pkgerrors.Wrapf(err, "native: encoding %T", m)
		}
		c.sendBuf = append(c.sendBuf, buf...)
	}
	return nil
}

// Flush implements Client.
func (c *PGConn) Flush() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.sendBuf) == 0 {
		return 0, nil
	}
	n, wouldBlock, err := tryWrite(c.conn, c.sendBuf)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "native: flush")
	}
	c.sendBuf = c.sendBuf[n:]
	if wouldBlock || len(c.sendBuf) > 0 {
		return len(c.sendBuf), nil
	}
	return 0, nil
}

// ConsumeInput implements Client. It repeatedly asks the frontend to
// decode the next backend message, bounding each attempt with a short
// read deadline so that an empty socket returns promptly instead of
// blocking the caller; a deadline timeout is treated as "nothing new
// to read" rather than a failure.
func (c *PGConn) ConsumeInput() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(probeDeadline)); err != nil {
			c.drainErr = pkgerrors.Wrap(err, "native: arming read deadline")
			return c.drainErr
		}

		msg, err := c.frontend.Receive()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return nil
			}
			c.drainErr = pkgerrors.Wrap(err, "native: consume input")
			return c.drainErr
		}
		c.foldMessage(msg)
	}
}

// foldMessage folds one decoded backend message into the in-progress
// result set, per the RowDescription/DataRow/CommandComplete grouping
// the simple and extended query protocols share.
func (c *PGConn) foldMessage(msg pgproto3.BackendMessage) {
	switch m := msg.(type) {
	case *pgproto3.RowDescription:
		fields := make([]FieldDesc, len(m.Fields))
		for i, f := range m.Fields {
			fields[i] = FieldDesc{
				Name:   string(f.Name),
				OID:    f.DataTypeOID,
				Format: Format(f.Format),
				Mod:    f.TypeModifier,
			}
		}
		c.curFields = fields

	case *pgproto3.DataRow:
		row := make([][]byte, len(m.Values))
		copy(row, m.Values)
		c.curRows = append(c.curRows, row)

	case *pgproto3.CommandComplete:
		status := ExecCommandOK
		if c.curFields != nil {
			status = ExecTuplesOK
		}
		c.results = append(c.results, NewResult(status, string(m.CommandTag), "", c.curFields, c.curRows))
		c.curFields, c.curRows = nil, nil

	case *pgproto3.EmptyQueryResponse:
		c.results = append(c.results, NewResult(ExecEmptyQuery, "", "", nil, nil))

	case *pgproto3.ErrorResponse:
		c.results = append(c.results, NewResult(ExecFatalError, "", m.Message, nil, nil))
		c.curFields, c.curRows = nil, nil

	case *pgproto3.ReadyForQuery:
		c.txStatus = mapTxStatus(m.TxStatus)
		c.readyForQuery = true

	case *pgproto3.ParameterStatus:
		if c.paramStatus == nil {
			c.paramStatus = make(map[string]string)
		}
		c.paramStatus[m.Name] = m.Value

	default:
		// NoticeResponse, ParseComplete, BindComplete, NoData,
		// ParameterDescription and friends carry no result data.
	}
}

func mapTxStatus(b byte) TxStatus {
	switch b {
	case 'I':
		return TxIdle
	case 'T':
		return TxInTrans
	case 'E':
		return TxInError
	default:
		return TxUnknown
	}
}

// IsBusy implements Client.
func (c *PGConn) IsBusy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resultAt >= len(c.results) && !c.readyForQuery
}

// GetResult implements Client.
func (c *PGConn) GetResult() (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.drainErr != nil {
		return nil, c.drainErr
	}
	if c.resultAt < len(c.results) {
		r := c.results[c.resultAt]
		c.resultAt++
		return r, nil
	}
	// Nothing left to deliver; nil,nil signals "command exhausted" per
	// the native client contract, mirroring libpq's PQgetResult.
	return nil, nil
}
