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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeCompositeBasic(t *testing.T) {
	fields, err := tokenizeComposite([]byte(`(a,b,"c,d",,e)`))
	require.NoError(t, err)
	require.Len(t, fields, 5)
	assert.Equal(t, []byte("a"), fields[0])
	assert.Equal(t, []byte("b"), fields[1])
	assert.Equal(t, []byte("c,d"), fields[2])
	assert.Nil(t, fields[3])
	assert.Equal(t, []byte("e"), fields[4])
}

func TestTokenizeCompositeQuotedEmptyString(t *testing.T) {
	fields, err := tokenizeComposite([]byte(`("",a)`))
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.NotNil(t, fields[0])
	assert.Equal(t, []byte{}, fields[0])
}

func TestTokenizeCompositeEscapedQuote(t *testing.T) {
	fields, err := tokenizeComposite([]byte(`("say \"hi\"")`))
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, []byte(`say "hi"`), fields[0])
}

func TestTokenizeCompositeMalformed(t *testing.T) {
	_, err := tokenizeComposite([]byte(`a,b`))
	require.Error(t, err)
	_, ok := IsTypeError(err)
	assert.True(t, ok)
}

func TestTupleDumperRoundTripsViaTokenizer(t *testing.T) {
	tr := NewTransformer()
	dumper := TupleDumper{Transformer: tr}

	raw, err := dumper.Dump([]any{int64(1), "hello, world", nil})
	require.NoError(t, err)

	fields, err := tokenizeComposite(raw)
	require.NoError(t, err)
	require.Len(t, fields, 3)
	assert.Equal(t, []byte("1"), fields[0])
	assert.Equal(t, []byte("hello, world"), fields[1])
	assert.Nil(t, fields[2])
}

func TestRecordLoaderLoadsUntypedStrings(t *testing.T) {
	var l RecordLoader
	v, err := l.Load([]byte(`(1,two,)`))
	require.NoError(t, err)
	vals := v.([]any)
	require.Len(t, vals, 3)
	assert.Equal(t, "1", vals[0])
	assert.Equal(t, "two", vals[1])
	assert.Nil(t, vals[2])
}

func TestCompositeLoaderResolvesPerFieldLoaders(t *testing.T) {
	tr := NewTransformer()
	info := &CompositeTypeInfo{
		OID:  12345,
		Name: "point",
		Fields: []FieldInfo{
			{Name: "x", OID: OIDInt8},
			{Name: "y", OID: OIDText},
		},
	}
	loader := CompositeLoader{Info: info, Transformer: tr}

	v, err := loader.Load([]byte(`(3,label)`))
	require.NoError(t, err)
	vals := v.([]any)
	assert.Equal(t, int64(3), vals[0])
	assert.Equal(t, "label", vals[1])
}

func TestCompositeLoaderFieldCountMismatch(t *testing.T) {
	tr := NewTransformer()
	info := &CompositeTypeInfo{OID: 1, Name: "p", Fields: []FieldInfo{{OID: OIDInt8}}}
	loader := CompositeLoader{Info: info, Transformer: tr}

	_, err := loader.Load([]byte(`(1,2)`))
	require.Error(t, err)
	_, ok := IsInternalError(err)
	assert.True(t, ok)
}

func encodeBinaryRecord(t *testing.T, fields []struct {
	oid  uint32
	data []byte
}) []byte {
	t.Helper()
	var buf bytes.Buffer
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(fields)))
	buf.Write(countBuf[:])
	for _, f := range fields {
		var hdr [8]byte
		binary.BigEndian.PutUint32(hdr[:4], f.oid)
		if f.data == nil {
			binary.BigEndian.PutUint32(hdr[4:], uint32(int32(-1)))
			buf.Write(hdr[:])
			continue
		}
		binary.BigEndian.PutUint32(hdr[4:], uint32(len(f.data)))
		buf.Write(hdr[:])
		buf.Write(f.data)
	}
	return buf.Bytes()
}

func TestRecordBinaryLoaderDecodesSelfDescribingFields(t *testing.T) {
	// The package registers text-format scalar loaders only, so a
	// test-scoped binary int8 loader stands in here; it parses the
	// field payload's decimal digits.
	reg := NewRegistry()
	reg.RegisterBinaryLoader(OIDInt8, int64Loader{})
	tr := NewTransformer(reg)
	data := encodeBinaryRecord(t, []struct {
		oid  uint32
		data []byte
	}{
		{oid: OIDInt8, data: []byte("9")},
		{oid: OIDText, data: nil},
	})

	l := RecordBinaryLoader{Transformer: tr}
	v, err := l.Load(data)
	require.NoError(t, err)
	vals := v.([]any)
	require.Len(t, vals, 2)
	assert.Equal(t, int64(9), vals[0])
	assert.Nil(t, vals[1])
}

type fakeRowQuerier struct {
	byCall [][][]any
	calls  int
}

func (f *fakeRowQuerier) QueryRows(_ context.Context, _ string, _ ...any) ([][]any, error) {
	rows := f.byCall[f.calls]
	f.calls++
	return rows, nil
}

func TestFetchCompositeInfoPerformsOneRoundTrip(t *testing.T) {
	q := &fakeRowQuerier{byCall: [][][]any{
		{{"point", int64(777), int64(778), "{x,y}", fmtOIDArray(OIDInt8, OIDText)}},
	}}

	info, err := FetchCompositeInfo(context.Background(), q, "point")
	require.NoError(t, err)
	assert.Equal(t, 1, q.calls)
	assert.Equal(t, uint32(777), info.OID)
	assert.Equal(t, uint32(778), info.ArrayOID)
	assert.Equal(t, "point", info.Name)
	require.Len(t, info.Fields, 2)
	assert.Equal(t, "x", info.Fields[0].Name)
	assert.Equal(t, uint32(OIDInt8), info.Fields[0].OID)
	assert.Equal(t, "y", info.Fields[1].Name)
	assert.Equal(t, uint32(OIDText), info.Fields[1].OID)
}

func fmtOIDArray(oids ...uint32) string {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, oid := range oids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(oid), 10))
	}
	b.WriteByte('}')
	return b.String()
}

func TestFetchCompositeInfoUnknownTypeFails(t *testing.T) {
	q := &fakeRowQuerier{byCall: [][][]any{{}}}
	_, err := FetchCompositeInfo(context.Background(), q, "nope")
	require.Error(t, err)
	_, ok := IsProgrammingError(err)
	assert.True(t, ok)
}

func TestParsePGTextArrayHandlesQuotedAndEmpty(t *testing.T) {
	elems, err := parsePGTextArray([]byte(`{a,b,"c,d"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c,d"}, elems)

	elems, err = parsePGTextArray([]byte(`{}`))
	require.NoError(t, err)
	assert.Nil(t, elems)
}
