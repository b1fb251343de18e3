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

// Package native declares the contract this driver expects from a
// low-level, nonblocking PostgreSQL wire-protocol client and ships one
// concrete implementation, PGConn, built on
// github.com/jackc/pgx/v5/pgproto3 for message framing.
//
// Nothing in this package may block the calling goroutine in kernel
// I/O for an unbounded time: every method either returns immediately
// with a "would block" signal the caller can turn into a yielded
// (fd, interest) pair, or performs a bounded, sub-millisecond probe
// (see tryWrite and ConsumeInput in exec.go) standing in for a true
// nonblocking socket, since the Go standard library does not expose
// one directly.
package native

// ConnStatus mirrors libpq's PQstatus/PGconn connection status.
type ConnStatus int

// Connection statuses.
const (
	StatusBad ConnStatus = iota
	StatusStarted
	StatusMade
	StatusOK
)

func (s ConnStatus) String() string {
	switch s {
	case StatusBad:
		return "BAD"
	case StatusStarted:
		return "STARTED"
	case StatusMade:
		return "MADE"
	case StatusOK:
		return "OK"
	default:
		return "UNKNOWN"
	}
}

// PollStatus mirrors libpq's PQconnectPoll / PQflush return values.
type PollStatus int

// Polling verdicts.
const (
	PollReading PollStatus = iota
	PollWriting
	PollOK
	PollFailed
)

func (s PollStatus) String() string {
	switch s {
	case PollReading:
		return "READING"
	case PollWriting:
		return "WRITING"
	case PollOK:
		return "OK"
	case PollFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// TxStatus mirrors libpq's PQtransactionStatus.
type TxStatus int

// Transaction statuses.
const (
	TxIdle TxStatus = iota
	TxActive
	TxInTrans
	TxInError
	TxUnknown
)

func (s TxStatus) String() string {
	switch s {
	case TxIdle:
		return "IDLE"
	case TxActive:
		return "ACTIVE"
	case TxInTrans:
		return "INTRANS"
	case TxInError:
		return "INERROR"
	default:
		return "UNKNOWN"
	}
}

// Format is the wire tag distinguishing text from binary encoding. It
// is duplicated here (rather than imported from the root pgadapt
// package) so that native has no dependency on the package that
// depends on it.
type Format int

// The two wire formats.
const (
	FormatText Format = iota
	FormatBinary
)

// ExecStatus mirrors libpq's PQresultStatus.
type ExecStatus int

// Result statuses.
const (
	ExecCommandOK ExecStatus = iota
	ExecTuplesOK
	ExecEmptyQuery
	ExecFatalError
	ExecBadResponse
)

func (s ExecStatus) String() string {
	switch s {
	case ExecCommandOK:
		return "COMMAND_OK"
	case ExecTuplesOK:
		return "TUPLES_OK"
	case ExecEmptyQuery:
		return "EMPTY_QUERY"
	case ExecFatalError:
		return "FATAL_ERROR"
	default:
		return "BAD_RESPONSE"
	}
}

// FieldDesc describes one result column.
type FieldDesc struct {
	Name   string
	OID    uint32
	Format Format
	Mod    int32
}

// Result is an immutable (after construction) owner of one server
// reply.
type Result struct {
	status   ExecStatus
	cmdTag   string
	errMsg   string
	fields   []FieldDesc
	rows     [][][]byte // rows[i][j] == nil means SQL NULL
}

// NewResult is used by the native-client implementations to build a
// Result once a reply has been fully read off the wire.
func NewResult(status ExecStatus, cmdTag, errMsg string, fields []FieldDesc, rows [][][]byte) *Result {
	return &Result{status: status, cmdTag: cmdTag, errMsg: errMsg, fields: fields, rows: rows}
}

// Status returns the result's exec status.
func (r *Result) Status() ExecStatus { return r.status }

// CommandTag returns the server's command-complete tag, e.g. "SELECT 1".
func (r *Result) CommandTag() string { return r.cmdTag }

// ErrorMessage returns the server error message, meaningful only when
// Status is ExecFatalError.
func (r *Result) ErrorMessage() string { return r.errMsg }

// NFields returns the number of result columns.
func (r *Result) NFields() int { return len(r.fields) }

// NTuples returns the number of result rows.
func (r *Result) NTuples() int { return len(r.rows) }

// FieldOID returns the server type oid of column i.
func (r *Result) FieldOID(i int) uint32 { return r.fields[i].OID }

// FieldFormat returns the wire format of column i.
func (r *Result) FieldFormat(i int) Format { return r.fields[i].Format }

// FieldMod returns the type modifier of column i, or -1 if absent.
func (r *Result) FieldMod(i int) int32 { return r.fields[i].Mod }

// FieldName returns the column name as reported by the server.
func (r *Result) FieldName(i int) string { return r.fields[i].Name }

// Value returns the raw bytes of row/col, or nil if the cell is SQL
// NULL. Panics if row or col is out of range, matching the
// "immutable, fully-populated" contract: callers must consult
// NTuples/NFields first.
func (r *Result) Value(row, col int) []byte { return r.rows[row][col] }

// Escaping is the capability a native client exposes for turning a
// value into an inline SQL literal.
type Escaping interface {
	EscapeLiteral(data []byte) ([]byte, error)
	EscapeString(data []byte) ([]byte, error)
}

// Client is the contract this driver requires of a low-level,
// nonblocking wire-protocol library. None of its methods
// may perform unbounded blocking I/O; ConnectPoll/Flush/ConsumeInput
// report their progress so that the caller can translate a
// would-block condition into a yielded (fd, interest) pair.
type Client interface {
	// ConnectStart begins an asynchronous connection attempt using the
	// supplied connection string. It must return immediately.
	ConnectStart(conninfo string) error

	// ConnectPoll advances the connection attempt and reports its
	// current polling verdict.
	ConnectPoll() (PollStatus, error)

	// Status returns the connection's current status.
	Status() ConnStatus

	// SetNonblocking marks the handle as nonblocking. Called exactly
	// once, immediately after ConnectPoll first reports PollOK.
	SetNonblocking() error

	// Socket returns the file descriptor a Waiter should poll.
	Socket() int

	// SendQuery queues a simple-query-protocol request. The query must
	// be flushed with Flush before any reply is available.
	SendQuery(sql string) error

	// SendQueryParams queues an extended-query-protocol request with
	// positional parameters, using paramFormats/paramOIDs to describe
	// each parameter and resultFormat for the (single, shared) result
	// column format.
	SendQueryParams(
		sql string,
		params [][]byte,
		paramFormats []Format,
		paramOIDs []uint32,
		resultFormat Format,
	) error

	// Flush attempts to write any buffered outbound bytes. It returns
	// 0 when nothing remains to write, a positive number of bytes
	// still pending when the socket would block, and an error on
	// failure.
	Flush() (int, error)

	// ConsumeInput reads whatever inbound bytes are currently
	// available without blocking.
	ConsumeInput() error

	// IsBusy reports whether a complete result is not yet available.
	IsBusy() bool

	// GetResult returns the next available result, or nil if the
	// current command's results are exhausted.
	GetResult() (*Result, error)

	// TransactionStatus returns the connection's current transaction
	// status.
	TransactionStatus() TxStatus

	// Escaping returns the connection's literal-escaping capability.
	Escaping() Escaping

	// Close releases the underlying socket.
	Close() error
}
