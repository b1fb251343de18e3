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

// Package main implements a small command-line client driving the
// pgadapt connection engine directly, for manual exercise and
// benchmarking against a live server.
package main

import (
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// Config contains the user-visible configuration for pgbench's
// subcommands.
type Config struct {
	Conninfo      string
	RetryInterval time.Duration
	Cooperative   bool
}

// Bind registers flags directly against c's fields. Call once, before
// the command line is parsed.
func (c *Config) Bind(flags *pflag.FlagSet) {
	flags.StringVar(
		&c.Conninfo,
		"conninfo",
		"host=localhost port=5432 user=postgres",
		"a libpq-style key=value connection string")
	flags.DurationVar(
		&c.RetryInterval,
		"retryinterval",
		200*time.Millisecond,
		"how often a blocking connection rechecks ctx cancellation while waiting on the socket")
	flags.BoolVar(
		&c.Cooperative,
		"cooperative",
		false,
		"drive the connection through a cooperative scheduler instead of blocking the calling goroutine")
}

// ApplyEnv layers any PGBENCH_-prefixed environment variable on top of
// flags' already-parsed values. Call after the command line has been
// parsed.
func (c *Config) ApplyEnv(flags *pflag.FlagSet) error {
	k := koanf.New(".")
	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return errors.Wrap(err, "loading parsed flag values")
	}
	if err := k.Load(env.Provider("PGBENCH_", ".", envKeyFunc), nil); err != nil {
		return errors.Wrap(err, "loading environment overrides")
	}

	c.Conninfo = k.String("conninfo")
	c.RetryInterval = k.Duration("retryinterval")
	c.Cooperative = k.Bool("cooperative")
	return nil
}

func envKeyFunc(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, "PGBENCH_"))
}

// Preflight validates the configuration after flags and environment
// variables have both been applied.
func (c *Config) Preflight() error {
	if c.Conninfo == "" {
		return errors.New("conninfo unset")
	}
	if c.RetryInterval <= 0 {
		return errors.New("retryInterval must be positive")
	}
	return nil
}
