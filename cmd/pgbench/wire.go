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
	"context"

	"github.com/google/wire"

	"github.com/cockroachdb/pgadapt"
)

// Set is used by Wire to assemble a Connection from a Config.
var Set = wire.NewSet(
	ProvideRegistry,
	ProvideWaiterOption,
	ProvideConnection,
)

// ProvideRegistry builds the connection-scoped Registry pgbench
// registers its own demo types against, layered in front of the global
// one every Connection already searches.
func ProvideRegistry() *pgadapt.Registry {
	return pgadapt.NewRegistry()
}

// ProvideWaiterOption translates Config.RetryInterval into the
// connection options every pgbench connection is built with.
// Config.Cooperative is not an option: ProvideConnection reads it to
// choose between Connect and ConnectCooperative.
func ProvideWaiterOption(config *Config) []pgadapt.Option {
	opts := []pgadapt.Option{pgadapt.WithRetryInterval(config.RetryInterval)}
	return opts
}

// ProvideConnection dials the server described by config, returning
// the Connection and a cleanup function that closes it.
func ProvideConnection(
	ctx context.Context, config *Config, registry *pgadapt.Registry, opts []pgadapt.Option,
) (*pgadapt.Connection, func(), error) {
	allOpts := append([]pgadapt.Option{pgadapt.WithRegistry(registry)}, opts...)

	if config.Cooperative {
		conn, err := pgadapt.ConnectCooperative(ctx, config.Conninfo, selectScheduler{}, allOpts...)
		if err != nil {
			return nil, nil, err
		}
		return conn, func() { _ = conn.Close() }, nil
	}

	conn, err := pgadapt.Connect(ctx, config.Conninfo, allOpts...)
	if err != nil {
		return nil, nil, err
	}
	return conn, func() { _ = conn.Close() }, nil
}
