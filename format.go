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

// Package pgadapt is a nonblocking PostgreSQL client core: a
// connection state machine (Connection) that can be driven either by
// a blocking per-connection goroutine or by a cooperative scheduler,
// and a bidirectional type-adaptation engine (Transformer) that turns
// Go values into wire parameters and wire rows back into Go values.
package pgadapt

import "github.com/cockroachdb/pgadapt/internal/native"

// Format is the wire tag distinguishing text from binary encoding for
// a single parameter or result column.
type Format int

// The two wire formats PostgreSQL supports.
const (
	FormatText Format = iota
	FormatBinary
)

func (f Format) toNative() native.Format { return native.Format(f) }

// Well-known built-in type OIDs this package dispatches on directly.
// The full catalog lives in pg_type; these are the ones the adaptation
// engine's built-in dumpers/loaders and the composite-type machinery
// need by name rather than by catalog lookup.
const (
	OIDBool      uint32 = 16
	OIDBytea     uint32 = 17
	OIDInt8      uint32 = 20
	OIDInt2      uint32 = 21
	OIDInt4      uint32 = 23
	OIDText      uint32 = 25
	OIDOID       uint32 = 26
	OIDJSON      uint32 = 114
	OIDFloat4    uint32 = 700
	OIDFloat8    uint32 = 701
	OIDUnknown   uint32 = 705
	OIDRecord    uint32 = 2249
	OIDVarchar   uint32 = 1043
	OIDNumeric   uint32 = 1700
	OIDTextArray uint32 = 1009
	OIDOIDArray  uint32 = 1028
)
