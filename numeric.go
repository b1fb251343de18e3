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

	"github.com/shopspring/decimal"
)

func init() {
	RegisterDumper(reflect.TypeOf(decimal.Decimal{}), numericDumper{})
	RegisterLoader(OIDNumeric, numericLoader{})
}

// Money is a named decimal.Decimal intentionally kept without its own
// registration, to demonstrate the ancestor-chain dispatch AncestorAware
// exists for: Go has no runtime method-resolution-order to fall back
// from Money to decimal.Decimal automatically, so Money says so
// explicitly via PgAncestors.
type Money decimal.Decimal

// PgAncestors reports that a Money should be dumped exactly like a
// plain decimal.Decimal when no Money-specific dumper is registered.
func (Money) PgAncestors() []reflect.Type {
	return []reflect.Type{reflect.TypeOf(decimal.Decimal{})}
}

var _ AncestorAware = Money{}

type numericDumper struct{}

func (numericDumper) OID() uint32 { return OIDNumeric }

func (numericDumper) Dump(value any) ([]byte, error) {
	switch v := value.(type) {
	case decimal.Decimal:
		return []byte(v.String()), nil
	case Money:
		return []byte(decimal.Decimal(v).String()), nil
	default:
		return nil, NewTypeError("numericDumper cannot dump %T", value)
	}
}

type numericLoader struct{}

func (numericLoader) Load(data []byte) (any, error) {
	if data == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(string(data))
	if err != nil {
		return nil, NewTypeError("numericLoader: %v", err)
	}
	return d, nil
}
