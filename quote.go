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

import "github.com/lib/pq"

// Quote renders value as a complete, self-quoting SQL literal using
// this connection's live server settings (standard_conforming_strings,
// in particular) to escape it exactly the way the server itself would.
// Prefer this over QuoteLiteral whenever a live Connection is on hand.
func (c *Connection) Quote(value any) ([]byte, error) {
	if value == nil {
		return []byte("NULL"), nil
	}

	dumper, err := c.transformer.GetDumper(value, FormatText)
	if err != nil {
		return nil, err
	}
	raw, err := dumper.Dump(value)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return []byte("NULL"), nil
	}
	return c.client.Escaping().EscapeLiteral(raw)
}

// QuoteLiteral renders value as a complete SQL literal without a live
// connection, using lib/pq's ANSI-compliant quoting rules as a
// connectionless fallback. This cannot know a live server's
// standard_conforming_strings setting, so a value containing
// backslashes is written as an E'' escape-string literal with doubled
// backslashes, which reads the same under either setting; use
// Connection.Quote when one is available.
func QuoteLiteral(value any) ([]byte, error) {
	if value == nil {
		return []byte("NULL"), nil
	}

	transformer := NewTransformer()
	dumper, err := transformer.GetDumper(value, FormatText)
	if err != nil {
		return nil, err
	}
	raw, err := dumper.Dump(value)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return []byte("NULL"), nil
	}
	return []byte(pq.QuoteLiteral(string(raw))), nil
}
