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
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cfg := &Config{}

	root := &cobra.Command{
		Use:   "pgbench",
		Short: "exercise the pgadapt connection engine against a live PostgreSQL server",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.ApplyEnv(cmd.Flags()); err != nil {
				return err
			}
			return cfg.Preflight()
		},
	}
	cfg.Bind(root.PersistentFlags())

	root.AddCommand(connectCmd(cfg), queryCmd(cfg), inspectCmd(cfg))
	return root
}

func connectCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "dial the server and report its transaction status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			conn, cleanup, err := NewConnection(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()
			log.WithField("txStatus", conn.TransactionStatus()).Info("connected")
			return nil
		},
	}
}

func queryCmd(cfg *Config) *cobra.Command {
	var sql string
	cmd := &cobra.Command{
		Use:   "query",
		Short: "run one SQL statement and print its decoded rows",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			conn, cleanup, err := NewConnection(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			rows, err := conn.QueryRows(ctx, sql)
			if err != nil {
				return err
			}
			for _, row := range rows {
				fmt.Println(row)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sql, "sql", "SELECT 1", "the statement to run")
	return cmd
}
