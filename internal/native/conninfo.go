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
	"strings"

	"github.com/pkg/errors"
)

// connParams is the subset of libpq keyword/value connection-string
// parameters this adapter understands. Full DSN and URI parsing
// (service files, .pgpass, SSL negotiation, ...) belongs to a
// dedicated connection-string library, not to this driver; this parser
// only covers enough to dial a plaintext TCP connection for the state
// machines in internal/pgengine to drive.
type connParams struct {
	host     string
	port     string
	user     string
	password string
	database string
}

func parseConninfo(conninfo string) (connParams, error) {
	p := connParams{host: "localhost", port: "5432"}
	for _, field := range strings.Fields(conninfo) {
		kv := strings.SplitN(field, "=", 2)
		if len(kv) != 2 {
			return connParams{}, errors.Errorf("native: malformed conninfo field %q", field)
		}
		key, val := kv[0], kv[1]
		val = strings.Trim(val, "'")
		switch key {
		case "host":
			p.host = val
		case "port":
			p.port = val
		case "user":
			p.user = val
		case "password":
			p.password = val
		case "dbname":
			p.database = val
		}
	}
	if p.user == "" {
		return connParams{}, errors.New("native: conninfo missing required \"user\" field")
	}
	return p, nil
}

func (p connParams) addr() string { return p.host + ":" + p.port }
