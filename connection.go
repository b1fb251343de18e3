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
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/cockroachdb/pgadapt/internal/native"
	"github.com/cockroachdb/pgadapt/internal/pgengine"
	"github.com/cockroachdb/pgadapt/internal/pgwait"
)

// connConfig accumulates the choices an Option can make about how a
// Connection is built. Its zero value plus the defaults Connect fills
// in afterward is always usable.
type connConfig struct {
	waiter        pgwait.Waiter
	registry      *Registry
	retryInterval time.Duration
}

// Option configures a Connection at construction time, following the
// functional-options idiom this codebase uses throughout for optional
// construction parameters.
type Option func(*connConfig)

// WithRegistry installs a connection-scoped Registry, searched before
// the global one for every Dumper/Loader resolution this connection
// makes.
func WithRegistry(r *Registry) Option {
	return func(c *connConfig) { c.registry = r }
}

// WithRetryInterval overrides how long a BlockingWaiter-driven
// Connection's select(2) loop blocks between checks of ctx
// cancellation. Has no effect on a cooperative connection.
func WithRetryInterval(d time.Duration) Option {
	return func(c *connConfig) { c.retryInterval = d }
}

// withWaiter is unexported: only ConnectCooperative may choose a
// non-default Waiter, since pairing a BlockingWaiter-shaped caller
// with a CooperativeWaiter (or vice versa) is a programming error, not
// a tuning knob.
func withWaiter(w pgwait.Waiter) Option {
	return func(c *connConfig) { c.waiter = w }
}

func attachOptions(cfg *connConfig, opts []Option) {
	for _, opt := range opts {
		opt(cfg)
	}
}

// Connection is a single PostgreSQL session: the nonblocking
// connection state machine (driven by a pgwait.Waiter over a
// native.Client) plus the Transformer and composite-type cache that
// adapt values flowing across it. A Connection is not safe for
// concurrent use by multiple goroutines; exactly one command may be
// outstanding on it at a time.
type Connection struct {
	mu             sync.Mutex
	client         native.Client
	waiter         pgwait.Waiter
	registry       *Registry
	transformer    *Transformer
	compositeCache *lru.Cache[string, *CompositeTypeInfo]
	logger         *log.Entry
	closed         bool
}

// Connect establishes a Connection driven by a BlockingWaiter: Connect
// itself blocks the calling goroutine until the connection is ready or
// ctx is done. This is the thread-per-connection mode.
func Connect(ctx context.Context, conninfo string, opts ...Option) (*Connection, error) {
	return connect(ctx, conninfo, opts)
}

// ConnectCooperative establishes a Connection driven by a
// CooperativeWaiter registered with scheduler: the calling goroutine
// parks on a channel instead of calling select(2) itself, for use
// inside a single-threaded event loop that owns many connections at
// once.
func ConnectCooperative(
	ctx context.Context, conninfo string, scheduler pgwait.Scheduler, opts ...Option,
) (*Connection, error) {
	opts = append(opts, withWaiter(pgwait.CooperativeWaiter{Scheduler: scheduler}))
	return connect(ctx, conninfo, opts)
}

func connect(ctx context.Context, conninfo string, opts []Option) (*Connection, error) {
	cfg := &connConfig{retryInterval: 200 * time.Millisecond}
	attachOptions(cfg, opts)

	waiter := cfg.waiter
	if waiter == nil {
		waiter = pgwait.BlockingWaiter{PollInterval: cfg.retryInterval}
	}

	client := native.NewPGConn()
	start := time.Now()
	_, err := waiter.Wait(ctx, pgengine.ConnectStep(client, conninfo))
	if err != nil {
		connectDurations.WithLabelValues("error").Observe(time.Since(start).Seconds())
		if errors.Is(err, pgengine.ErrUnexpectedPollStatus) {
			return nil, NewInternalError(err.Error())
		}
		return nil, NewOperationalError(err)
	}
	connectDurations.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	registry := cfg.registry
	if registry == nil {
		registry = NewRegistry()
	}
	return newConnection(client, waiter, registry), nil
}

// newConnection assembles a Connection around an already-established
// native.Client and Waiter. Split out from connect so tests can drive
// a Connection against a scripted fake native.Client without dialing a
// real socket.
func newConnection(client native.Client, waiter pgwait.Waiter, registry *Registry) *Connection {
	return &Connection{
		client:         client,
		waiter:         waiter,
		registry:       registry,
		transformer:    NewTransformer(registry),
		compositeCache: newCompositeCache(),
		logger:         log.WithField("component", "pgadapt"),
	}
}

// Registry returns the connection-scoped Registry this Connection
// searches before the global one.
func (c *Connection) Registry() *Registry { return c.registry }

// Transformer returns the Transformer this Connection uses to adapt
// values; exposed so callers can pre-warm caches or build a Sub()
// transformer for nested decoding outside of a query.
func (c *Connection) Transformer() *Transformer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transformer
}

// TransactionStatus reports the connection's current transaction
// status, as last observed from a ReadyForQuery message.
func (c *Connection) TransactionStatus() native.TxStatus { return c.client.TransactionStatus() }

// Close releases the underlying socket. Close is idempotent.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.client.Close()
}

func (c *Connection) exec(ctx context.Context, sql string, args []any) ([]*native.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, NewProgrammingError("exec called on a closed connection")
	}

	var send func() error
	if len(args) == 0 {
		send = func() error { return c.client.SendQuery(sql) }
	} else {
		params, oids, err := c.transformer.DumpParams(args, FormatText)
		if err != nil {
			return nil, err
		}
		formats := make([]native.Format, len(args))
		for i := range formats {
			formats[i] = native.FormatText
		}
		send = func() error {
			return c.client.SendQueryParams(sql, params, formats, oids, native.FormatText)
		}
	}

	v, err := c.waiter.Wait(ctx, pgengine.ExecuteDrainStep(c.client, send))
	if err != nil {
		if errors.Is(err, pgwait.ErrAbandoned) {
			// The abandoned command's replies may still arrive on the
			// socket, so the session cannot be reused: close it, which
			// leaves the native client marked bad.
			c.closed = true
			_ = c.client.Close()
		}
		return nil, NewOperationalError(err)
	}
	results, _ := v.([]*native.Result)
	return results, nil
}

// Exec runs sql with args bound as query parameters and returns every
// result the server produced (a multi-statement simple-query string
// can produce more than one), without decoding any rows.
func (c *Connection) Exec(ctx context.Context, sql string, args ...any) ([]*native.Result, error) {
	results, err := c.exec(ctx, sql, args)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		if r.Status() == native.ExecFatalError {
			return results, NewOperationalError(errors.New(r.ErrorMessage()))
		}
	}
	return results, nil
}

// QueryRows runs sql with args bound as query parameters and decodes
// the first tuple-producing result into Go values using this
// connection's Transformer. It implements rowQuerier for
// FetchCompositeInfo's catalog probes.
func (c *Connection) QueryRows(ctx context.Context, sql string, args ...any) ([][]any, error) {
	results, err := c.Exec(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		if r.Status() != native.ExecTuplesOK {
			continue
		}
		if err := c.transformer.SetRowTypes(resultFields(r)); err != nil {
			return nil, err
		}
		rows := make([][]any, r.NTuples())
		for i := 0; i < r.NTuples(); i++ {
			row := make([][]byte, r.NFields())
			for j := 0; j < r.NFields(); j++ {
				row[j] = r.Value(i, j)
			}
			vals, err := c.transformer.LoadRow(row)
			if err != nil {
				return nil, err
			}
			rows[i] = vals
		}
		return rows, nil
	}
	return nil, nil
}

func resultFields(r *native.Result) []native.FieldDesc {
	fields := make([]native.FieldDesc, r.NFields())
	for i := range fields {
		fields[i] = native.FieldDesc{
			Name:   r.FieldName(i),
			OID:    r.FieldOID(i),
			Format: r.FieldFormat(i),
			Mod:    r.FieldMod(i),
		}
	}
	return fields
}

// CompositeType resolves typeName's catalog shape, consulting (and
// populating) this connection's bounded composite-type-info cache.
// The cache is checked by name before any catalog round trip is made,
// so a type looked up repeatedly pays for the single pg_type/pg_attribute
// catalog query only once.
func (c *Connection) CompositeType(ctx context.Context, typeName string) (*CompositeTypeInfo, error) {
	if cached, ok := c.compositeCache.Get(typeName); ok {
		return cached, nil
	}
	info, err := FetchCompositeInfo(ctx, c, typeName)
	if err != nil {
		return nil, err
	}
	c.compositeCache.Add(typeName, info)
	return info, nil
}

// simpleCommand runs sql expecting exactly one COMMAND_OK result, the
// shape Commit and Rollback always expect from a single
// "COMMIT"/"ROLLBACK" statement. A connection already idle has
// nothing to commit or roll back, so it returns silently without
// dispatching anything to the server.
func (c *Connection) simpleCommand(ctx context.Context, sql string) error {
	if c.client.TransactionStatus() == native.TxIdle {
		return nil
	}
	results, err := c.exec(ctx, sql, nil)
	if err != nil {
		return err
	}
	if len(results) != 1 {
		return NewInternalError("expected exactly one result for %q, got %d", sql, len(results))
	}
	if results[0].Status() == native.ExecFatalError {
		return NewOperationalError(errors.New(results[0].ErrorMessage()))
	}
	if results[0].Status() != native.ExecCommandOK {
		return NewOperationalError(errors.Errorf("%s returned %s, expected COMMAND_OK", sql, results[0].Status()))
	}
	return nil
}

// Commit sends COMMIT and waits for its result.
func (c *Connection) Commit(ctx context.Context) error { return c.simpleCommand(ctx, "COMMIT") }

// Rollback sends ROLLBACK and waits for its result.
func (c *Connection) Rollback(ctx context.Context) error { return c.simpleCommand(ctx, "ROLLBACK") }
