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
	"strconv"
)

func init() {
	RegisterDumper(reflect.TypeOf(int64(0)), int64Dumper{})
	RegisterDumper(reflect.TypeOf(int(0)), int64Dumper{})
	RegisterDumper(reflect.TypeOf(""), textDumper{})
	RegisterDumper(reflect.TypeOf([]byte(nil)), byteaDumper{})
	RegisterDumper(reflect.TypeOf(false), boolDumper{})

	RegisterLoader(OIDInt8, int64Loader{})
	RegisterLoader(OIDInt4, int64Loader{})
	RegisterLoader(OIDInt2, int64Loader{})
	RegisterLoader(OIDOID, int64Loader{})
	RegisterLoader(OIDText, textLoader{})
	RegisterLoader(OIDVarchar, textLoader{})
	RegisterLoader(OIDBytea, byteaLoader{})
	RegisterLoader(OIDBool, boolLoader{})
}

type int64Dumper struct{}

func (int64Dumper) OID() uint32 { return OIDInt8 }

func (int64Dumper) Dump(value any) ([]byte, error) {
	switch v := value.(type) {
	case int64:
		return []byte(strconv.FormatInt(v, 10)), nil
	case int:
		return []byte(strconv.Itoa(v)), nil
	default:
		return nil, NewTypeError("int64Dumper cannot dump %T", value)
	}
}

type int64Loader struct{}

func (int64Loader) Load(data []byte) (any, error) {
	if data == nil {
		return nil, nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return nil, NewTypeError("int64Loader: %v", err)
	}
	return n, nil
}

type textDumper struct{}

func (textDumper) OID() uint32 { return OIDText }

func (textDumper) Dump(value any) ([]byte, error) {
	s, ok := value.(string)
	if !ok {
		return nil, NewTypeError("textDumper cannot dump %T", value)
	}
	return []byte(s), nil
}

type textLoader struct{}

func (textLoader) Load(data []byte) (any, error) {
	if data == nil {
		return nil, nil
	}
	return string(data), nil
}

type byteaDumper struct{}

func (byteaDumper) OID() uint32 { return OIDBytea }

func (byteaDumper) Dump(value any) ([]byte, error) {
	b, ok := value.([]byte)
	if !ok {
		return nil, NewTypeError("byteaDumper cannot dump %T", value)
	}
	return b, nil
}

type byteaLoader struct{}

func (byteaLoader) Load(data []byte) (any, error) {
	if data == nil {
		return nil, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

type boolDumper struct{}

func (boolDumper) OID() uint32 { return OIDBool }

func (boolDumper) Dump(value any) ([]byte, error) {
	b, ok := value.(bool)
	if !ok {
		return nil, NewTypeError("boolDumper cannot dump %T", value)
	}
	if b {
		return []byte{'t'}, nil
	}
	return []byte{'f'}, nil
}

type boolLoader struct{}

func (boolLoader) Load(data []byte) (any, error) {
	if data == nil {
		return nil, nil
	}
	return len(data) > 0 && data[0] == 't', nil
}
