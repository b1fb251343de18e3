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
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cockroachdb/pgadapt/internal/native"
)

func TestTransformerGetDumperScalars(t *testing.T) {
	tr := NewTransformer()

	d, err := tr.GetDumper(int64(42), FormatText)
	require.NoError(t, err)
	b, err := d.Dump(int64(42))
	require.NoError(t, err)
	assert.Equal(t, "42", string(b))

	d, err = tr.GetDumper("hi", FormatText)
	require.NoError(t, err)
	b, err = d.Dump("hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(b))
}

func TestTransformerGetDumperUnregisteredTypeFails(t *testing.T) {
	tr := NewTransformer()
	type unregistered struct{}
	_, err := tr.GetDumper(unregistered{}, FormatText)
	require.Error(t, err)
	_, ok := IsTypeError(err)
	assert.True(t, ok)
}

func TestTransformerGetDumperNilFails(t *testing.T) {
	tr := NewTransformer()
	_, err := tr.GetDumper(nil, FormatText)
	require.Error(t, err)
	_, ok := IsProgrammingError(err)
	assert.True(t, ok)
}

func TestTransformerMoneyDispatchesViaAncestorChain(t *testing.T) {
	tr := NewTransformer()
	m := Money(decimal.NewFromInt(100))

	d, err := tr.GetDumper(m, FormatText)
	require.NoError(t, err)
	assert.Equal(t, uint32(OIDNumeric), d.OID())

	b, err := d.Dump(m)
	require.NoError(t, err)
	assert.Equal(t, "100", string(b))
}

type scopeOrderLeaf struct{}

func (scopeOrderLeaf) PgAncestors() []reflect.Type {
	return []reflect.Type{reflect.TypeOf(scopeOrderAncestor{})}
}

var _ AncestorAware = scopeOrderLeaf{}

type scopeOrderAncestor struct{}

// TestTransformerGetDumperScopePrecedenceBeatsAncestorSpecificity
// checks that a narrower scope's registration for a less-specific
// ancestor wins over a broader scope's registration for a
// more-specific ancestor: scope must be the outer resolution loop and
// the ancestor chain the inner one, not the reverse.
func TestTransformerGetDumperScopePrecedenceBeatsAncestorSpecificity(t *testing.T) {
	RegisterDumper(reflect.TypeOf(scopeOrderLeaf{}), stubDumper{oid: 1111})

	conn := NewRegistry()
	conn.RegisterDumper(reflect.TypeOf(scopeOrderAncestor{}), stubDumper{oid: 2222})

	tr := NewTransformer(conn)
	d, err := tr.GetDumper(scopeOrderLeaf{}, FormatText)
	require.NoError(t, err)
	assert.Equal(t, uint32(2222), d.OID())
}

func TestTransformerGetDumperCachesResolution(t *testing.T) {
	tr := NewTransformer()
	_, err := tr.GetDumper(int64(1), FormatText)
	require.NoError(t, err)

	key := dumperCacheKey{t: reflect.TypeOf(int64(0)), f: FormatText}
	tr.mu.Lock()
	_, cached := tr.dumperCache[key]
	tr.mu.Unlock()
	assert.True(t, cached)
}

func TestTransformerLoadRowHandlesNulls(t *testing.T) {
	tr := NewTransformer()
	fields := []native.FieldDesc{
		{OID: OIDInt8, Format: native.FormatText},
		{OID: OIDText, Format: native.FormatText},
	}
	require.NoError(t, tr.SetRowTypes(fields))

	vals, err := tr.LoadRow([][]byte{[]byte("7"), nil})
	require.NoError(t, err)
	assert.Equal(t, int64(7), vals[0])
	assert.Nil(t, vals[1])
}

func TestTransformerLoadRowBeforeSetRowTypesFails(t *testing.T) {
	tr := NewTransformer()
	_, err := tr.LoadRow([][]byte{[]byte("x")})
	require.Error(t, err)
	_, ok := IsInternalError(err)
	assert.True(t, ok)
}

func TestTransformerDumpParamsNullsGetUnknownOID(t *testing.T) {
	tr := NewTransformer()
	params, oids, err := tr.DumpParams([]any{nil, int64(3)}, FormatText)
	require.NoError(t, err)
	assert.Nil(t, params[0])
	assert.Equal(t, uint32(OIDUnknown), oids[0])
	assert.Equal(t, "3", string(params[1]))
	assert.Equal(t, uint32(OIDInt8), oids[1])
}

func TestTransformerSubSharesScopesNotCaches(t *testing.T) {
	tr := NewTransformer()
	_, err := tr.GetDumper(int64(1), FormatText)
	require.NoError(t, err)

	sub := tr.Sub()
	sub.mu.Lock()
	_, cached := sub.dumperCache[dumperCacheKey{t: reflect.TypeOf(int64(0)), f: FormatText}]
	sub.mu.Unlock()
	assert.False(t, cached)
}
