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

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/cockroachdb/pgadapt"
)

// inspectCmd cross-checks a composite type's catalog shape as reported
// by pgadapt's own FetchCompositeInfo against a database/sql query run
// through lib/pq, then prints both side by side — a sanity check that
// the connection engine's catalog introspection agrees with a
// conventional driver's view of the same catalog rows.
func inspectCmd(cfg *Config) *cobra.Command {
	var typeName string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "print a composite type's catalog shape, cross-checked against lib/pq",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			conn, cleanup, err := NewConnection(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			info, err := pgadapt.FetchCompositeInfo(ctx, conn, typeName)
			if err != nil {
				return err
			}

			db, err := sqlx.Connect("postgres", cfg.Conninfo)
			if err != nil {
				return err
			}
			defer db.Close()

			var crossCheck []struct {
				AttName  string `db:"attname"`
				AttTypID int64  `db:"atttypid"`
			}
			const crossCheckQuery = `
SELECT a.attname, a.atttypid
FROM pg_attribute a
JOIN pg_type t ON t.typrelid = a.attrelid
WHERE t.oid = $1 AND a.attnum > 0 AND NOT a.attisdropped
ORDER BY a.attnum`
			if err := db.SelectContext(ctx, &crossCheck, crossCheckQuery, info.OID); err != nil {
				return err
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"field", "oid (pgadapt)", "oid (lib/pq)"})
			for i, f := range info.Fields {
				crossOID := int64(0)
				if i < len(crossCheck) {
					crossOID = crossCheck[i].AttTypID
				}
				table.Append([]string{f.Name, fmt.Sprint(f.OID), fmt.Sprint(crossOID)})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&typeName, "type", "", "the composite type name to inspect")
	return cmd
}
