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

import "strings"

// serverEscaping implements Escaping against a live PGConn's reported
// standard_conforming_strings setting, honoring what the server
// actually announced rather than assuming a fixed dialect.
type serverEscaping struct {
	conn *PGConn
}

func (e *serverEscaping) standardConformingStrings() bool {
	v, ok := e.conn.paramStatus["standard_conforming_strings"]
	return !ok || v == "on"
}

// EscapeString doubles embedded single quotes and, for a server still
// running with standard_conforming_strings=off, doubles backslashes
// too. The caller is responsible for wrapping the result in quotes.
func (e *serverEscaping) EscapeString(data []byte) ([]byte, error) {
	s := string(data)
	s = strings.ReplaceAll(s, "'", "''")
	if !e.standardConformingStrings() {
		s = strings.ReplaceAll(s, `\`, `\\`)
	}
	return []byte(s), nil
}

// EscapeLiteral produces a complete, self-quoting SQL literal,
// prefixing an E'' escape when backslashes had to be doubled.
func (e *serverEscaping) EscapeLiteral(data []byte) ([]byte, error) {
	escaped, err := e.EscapeString(data)
	if err != nil {
		return nil, err
	}
	if !e.standardConformingStrings() && strings.Contains(string(data), `\`) {
		return append([]byte("E'"), append(escaped, '\'')...), nil
	}
	return append([]byte{'\''}, append(escaped, '\'')...), nil
}
