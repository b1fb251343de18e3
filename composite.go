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
	"bytes"
	"context"
	"encoding/binary"
	"strconv"
)

// FieldInfo describes one attribute of a composite (row) type, as
// reported by the catalog.
type FieldInfo struct {
	Name string
	OID  uint32
}

// CompositeTypeInfo is the catalog shape of a named composite type:
// enough to build a CompositeLoader/CompositeBinaryLoader for it, or
// to declare parameter OIDs when binding a TupleDumper value.
type CompositeTypeInfo struct {
	OID      uint32
	ArrayOID uint32
	Name     string
	Fields   []FieldInfo
}

// compositeInfoQuery resolves a composite type's own oid, its array
// type's oid, and its full ordered field list in a single round trip:
// the live columns are aggregated into two parallel arrays so one row
// answers the whole shape instead of one query per type plus a second
// for its fields.
const compositeInfoQuery = `
select
    t.typname as name, t.oid as oid, t.typarray as array_oid,
    coalesce(a.fnames, '{}') as fnames,
    coalesce(a.ftypes, '{}') as ftypes
from pg_type t
left join (
    select attrelid,
        array_agg(attname) as fnames,
        array_agg(atttypid) as ftypes
    from (
        select a.attrelid, a.attname, a.atttypid
        from pg_attribute a
        join pg_type t on t.typrelid = a.attrelid
        where t.typname = $1
          and a.attnum > 0
          and not a.attisdropped
        order by a.attnum
    ) x
    group by attrelid
) a on a.attrelid = t.typrelid
where t.typname = $1
`

func init() {
	// The fnames/ftypes aggregate columns above arrive as Postgres
	// array-literal text ("{a,b,c}"); textLoader passes that literal
	// through untouched, and FetchCompositeInfo parses it itself via
	// parsePGTextArray rather than through a general array codec.
	RegisterLoader(OIDTextArray, textLoader{})
	RegisterLoader(OIDOIDArray, textLoader{})
}

// rowQuerier is the minimal surface FetchCompositeInfo needs from a
// Connection, kept narrow so this file has no import cycle back onto
// connection.go and so tests can supply a fake.
type rowQuerier interface {
	QueryRows(ctx context.Context, sql string, args ...any) ([][]any, error)
}

// FetchCompositeInfo looks up typeName's oid, array oid, and attribute
// list in the catalog with a single round trip. The returned
// CompositeTypeInfo can be cached by name (see Connection's composite
// cache) since a type's shape only changes under a schema migration,
// which invalidates the connection's whole catalog view anyway.
func FetchCompositeInfo(ctx context.Context, conn rowQuerier, typeName string) (*CompositeTypeInfo, error) {
	rows, err := conn.QueryRows(ctx, compositeInfoQuery, typeName)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, NewProgrammingError("no composite type named %q", typeName)
	}
	row := rows[0]
	oid, _ := row[1].(int64)
	arrayOID, _ := row[2].(int64)

	fnames, err := parsePGTextArray([]byte(rowString(row[3])))
	if err != nil {
		return nil, err
	}
	ftypes, err := parsePGTextArray([]byte(rowString(row[4])))
	if err != nil {
		return nil, err
	}
	if len(fnames) != len(ftypes) {
		return nil, NewInternalError(
			"composite %s: fnames/ftypes length mismatch (%d vs %d)", typeName, len(fnames), len(ftypes),
		)
	}

	info := &CompositeTypeInfo{
		OID: uint32(oid), ArrayOID: uint32(arrayOID), Name: typeName, Fields: make([]FieldInfo, len(fnames)),
	}
	for i, name := range fnames {
		fieldOID, err := strconv.ParseUint(ftypes[i], 10, 32)
		if err != nil {
			return nil, NewInternalError("composite %s: malformed atttypid %q", typeName, ftypes[i])
		}
		info.Fields[i] = FieldInfo{Name: name, OID: uint32(fieldOID)}
	}
	return info, nil
}

func rowString(v any) string {
	s, _ := v.(string)
	return s
}

// parsePGTextArray parses a one-dimensional Postgres text array
// literal such as `{a,b,"c,d"}` into its element strings, unescaping
// quoted elements the same way tokenizeComposite does for composite
// fields. Used only to decode the fnames/ftypes aggregate columns
// compositeInfoQuery returns.
func parsePGTextArray(data []byte) ([]string, error) {
	if len(data) < 2 || data[0] != '{' || data[len(data)-1] != '}' {
		return nil, NewTypeError("malformed array literal %q", data)
	}
	body := data[1 : len(data)-1]
	if len(body) == 0 {
		return nil, nil
	}

	var elems []string
	var cur []byte
	inQuotes := false
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case inQuotes && c == '\\' && i+1 < len(body):
			cur = append(cur, body[i+1])
			i++
		case inQuotes && c == '"':
			inQuotes = false
		case !inQuotes && c == '"':
			inQuotes = true
		case !inQuotes && c == ',':
			elems = append(elems, string(cur))
			cur = nil
		default:
			cur = append(cur, c)
		}
	}
	elems = append(elems, string(cur))
	return elems, nil
}

// TupleDumper dumps a []any as a PostgreSQL composite-type text
// literal, delegating each field to t's own dumper resolution. It
// does not need a CompositeTypeInfo: the server can parse an
// untyped/anonymous record literal and coerce it against whatever
// composite OID the parameter position declares.
type TupleDumper struct {
	Transformer *Transformer
	CompositeOID uint32
}

// OID implements Dumper.
func (d TupleDumper) OID() uint32 {
	if d.CompositeOID != 0 {
		return d.CompositeOID
	}
	return OIDRecord
}

// Dump implements Dumper.
func (d TupleDumper) Dump(value any) ([]byte, error) {
	fields, ok := value.([]any)
	if !ok {
		return nil, NewTypeError("TupleDumper cannot dump %T", value)
	}

	var buf bytes.Buffer
	buf.WriteByte('(')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		if f == nil {
			continue // NULL field: empty, unquoted
		}
		dumper, err := d.Transformer.GetDumper(f, FormatText)
		if err != nil {
			return nil, err
		}
		raw, err := dumper.Dump(f)
		if err != nil {
			return nil, err
		}
		buf.Write(quoteCompositeField(raw))
	}
	buf.WriteByte(')')
	return buf.Bytes(), nil
}

func quoteCompositeField(raw []byte) []byte {
	needsQuote := len(raw) == 0 || bytes.ContainsAny(raw, `,()"\`+"\n\r\t ")
	if !needsQuote {
		return raw
	}
	var buf bytes.Buffer
	buf.WriteByte('"')
	for _, b := range raw {
		if b == '"' || b == '\\' {
			buf.WriteByte('\\')
		}
		buf.WriteByte(b)
	}
	buf.WriteByte('"')
	return buf.Bytes()
}

// tokenizeComposite splits a composite text literal "(a,b,\"c,d\",,e)"
// into its raw field byte slices, unescaping quoted fields. A nil
// entry marks a NULL field (zero unquoted bytes between separators);
// a non-nil, zero-length entry marks an explicit empty string ("").
func tokenizeComposite(data []byte) ([][]byte, error) {
	if len(data) < 2 || data[0] != '(' || data[len(data)-1] != ')' {
		return nil, NewTypeError("malformed composite literal %q", data)
	}
	body := data[1 : len(data)-1]

	var fields [][]byte
	var cur []byte
	quoted := false
	inQuotes := false

	flush := func() {
		if !quoted && len(cur) == 0 {
			fields = append(fields, nil)
		} else if cur == nil {
			fields = append(fields, []byte{})
		} else {
			fields = append(fields, cur)
		}
		cur = nil
		quoted = false
	}

	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case inQuotes && c == '\\' && i+1 < len(body):
			cur = append(cur, body[i+1])
			i++
		case inQuotes && c == '"':
			inQuotes = false
		case !inQuotes && c == '"':
			inQuotes = true
			quoted = true
			if cur == nil {
				cur = []byte{}
			}
		case !inQuotes && c == ',':
			flush()
		default:
			cur = append(cur, c)
		}
	}
	flush()
	return fields, nil
}

// RecordLoader loads an anonymous ("record") text-format value as a
// slice of raw strings: with no catalog type information available
// for an anonymous record, per-field types cannot be resolved, so the
// caller receives the same untyped strings libpq's own text-record
// parsing would hand back.
type RecordLoader struct{}

// Load implements Loader.
func (RecordLoader) Load(data []byte) (any, error) {
	if data == nil {
		return nil, nil
	}
	fields, err := tokenizeComposite(data)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(fields))
	for i, f := range fields {
		if f == nil {
			continue
		}
		out[i] = string(f)
	}
	return out, nil
}

// CompositeLoader loads a named composite type's text-format value
// using its catalog Fields to resolve each column's own Loader.
type CompositeLoader struct {
	Info        *CompositeTypeInfo
	Transformer *Transformer
}

// Load implements Loader.
func (l CompositeLoader) Load(data []byte) (any, error) {
	if data == nil {
		return nil, nil
	}
	fields, err := tokenizeComposite(data)
	if err != nil {
		return nil, err
	}
	if len(fields) != len(l.Info.Fields) {
		return nil, NewInternalError(
			"composite %s: got %d fields, catalog declares %d", l.Info.Name, len(fields), len(l.Info.Fields),
		)
	}

	out := make([]any, len(fields))
	for i, raw := range fields {
		if raw == nil {
			continue
		}
		loader, err := l.Transformer.GetLoader(l.Info.Fields[i].OID, FormatText)
		if err != nil {
			return nil, err
		}
		v, err := loader.Load(raw)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// RecordBinaryLoader loads any binary-format composite value,
// anonymous or named, since the binary record wire format is
// self-describing: each field carries its own oid ahead of its
// length-prefixed payload, so no catalog lookup is required to decode
// one, only to give its fields names.
type RecordBinaryLoader struct {
	Transformer *Transformer
}

// Load implements Loader.
func (l RecordBinaryLoader) Load(data []byte) (any, error) {
	if data == nil {
		return nil, nil
	}
	if len(data) < 4 {
		return nil, NewTypeError("binary composite value too short")
	}
	count := int(int32(binary.BigEndian.Uint32(data)))
	data = data[4:]

	out := make([]any, count)
	for i := 0; i < count; i++ {
		if len(data) < 8 {
			return nil, NewTypeError("binary composite value truncated at field %d", i)
		}
		oid := binary.BigEndian.Uint32(data)
		length := int32(binary.BigEndian.Uint32(data[4:]))
		data = data[8:]

		if length < 0 {
			continue // NULL field
		}
		if int64(len(data)) < int64(length) {
			return nil, NewTypeError("binary composite value truncated in field %d payload", i)
		}
		payload := data[:length]
		data = data[length:]

		loader, err := l.Transformer.GetLoader(oid, FormatBinary)
		if err != nil {
			return nil, err
		}
		v, err := loader.Load(payload)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// CompositeBinaryLoader is RecordBinaryLoader attached to a known
// composite type, so that LoadRow-style callers can validate field
// counts against the catalog instead of trusting the wire blindly.
type CompositeBinaryLoader struct {
	Info        *CompositeTypeInfo
	Transformer *Transformer
}

// Load implements Loader.
func (l CompositeBinaryLoader) Load(data []byte) (any, error) {
	v, err := (RecordBinaryLoader{Transformer: l.Transformer}).Load(data)
	if err != nil || v == nil {
		return v, err
	}
	fields := v.([]any)
	if len(fields) != len(l.Info.Fields) {
		return nil, NewInternalError(
			"composite %s: got %d fields, catalog declares %d", l.Info.Name, len(fields), len(l.Info.Fields),
		)
	}
	return fields, nil
}
