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
	"sync"

	"github.com/cockroachdb/pgadapt/internal/native"
)

type dumperCacheKey struct {
	t reflect.Type
	f Format
}

type loaderCacheKey struct {
	oid uint32
	f   Format
}

// Transformer is a per-query adaptation session: it resolves Dumpers
// and Loaders by walking a list of Registries from narrowest scope to
// broadest, caches what it resolves so repeated values/columns in the
// same query are cheap, and holds the column-loader vector for
// whichever result set is currently being decoded.
//
// A Transformer is not safe for concurrent use by multiple goroutines
// at once, matching the single-outstanding-command assumption of the
// connection it belongs to.
type Transformer struct {
	registries []*Registry

	mu          sync.Mutex
	dumperCache map[dumperCacheKey]Dumper
	loaderCache map[loaderCacheKey]Loader
	rowLoaders  []Loader
}

// NewTransformer builds a Transformer searching scopes, narrowest
// first, before falling back to the global registry.
func NewTransformer(scopes ...*Registry) *Transformer {
	registries := make([]*Registry, 0, len(scopes)+1)
	registries = append(registries, scopes...)
	registries = append(registries, globalRegistry)
	return &Transformer{
		registries:  registries,
		dumperCache: make(map[dumperCacheKey]Dumper),
		loaderCache: make(map[loaderCacheKey]Loader),
	}
}

// Sub builds a Transformer sharing t's scope chain but its own caches,
// used to decode the nested fields of a composite/record value without
// either transformer's row-loader state leaking into the other.
func (t *Transformer) Sub() *Transformer {
	return &Transformer{
		registries:  t.registries,
		dumperCache: make(map[dumperCacheKey]Dumper),
		loaderCache: make(map[loaderCacheKey]Loader),
	}
}

// GetDumper resolves the Dumper for value's dynamic type and format,
// walking value's ancestor chain (its own type, then whatever
// PgAncestors reports if it implements AncestorAware) across every
// scope before giving up. Resolutions are cached by (type, format).
func (t *Transformer) GetDumper(value any, f Format) (Dumper, error) {
	if value == nil {
		return nil, NewProgrammingError("GetDumper called with a nil value; NULL has no type to dump")
	}
	goType := reflect.TypeOf(value)
	key := dumperCacheKey{goType, f}

	t.mu.Lock()
	if d, ok := t.dumperCache[key]; ok {
		t.mu.Unlock()
		adaptCacheHits.WithLabelValues("dumper").Inc()
		return d, nil
	}
	t.mu.Unlock()
	adaptCacheMisses.WithLabelValues("dumper").Inc()

	chain := []reflect.Type{goType}
	if aa, ok := value.(AncestorAware); ok {
		chain = append(chain, aa.PgAncestors()...)
	}

	// Scope is the outer loop and ancestor the inner one: a narrower
	// scope's registration for any ancestor must win over a broader
	// scope's registration for a more specific ancestor, so scope
	// precedence holds regardless of how far up the ancestor chain a
	// hit is found.
	for _, reg := range t.registries {
		for _, candidate := range chain {
			if d, ok := reg.dumperFor(candidate, f); ok {
				t.mu.Lock()
				t.dumperCache[key] = d
				t.mu.Unlock()
				return d, nil
			}
		}
	}

	// Slow path 2 — name-based: a dumper registered as a forward
	// reference (the type wasn't available as a reflect.Type at
	// registration time) is keyed by qualified name string instead. On
	// a hit, also alias it under the direct type key in the scope it
	// was found so every later lookup takes the fast path above.
	for _, reg := range t.registries {
		for _, candidate := range chain {
			if d, ok := reg.dumperForName(qualifiedTypeName(candidate), f); ok {
				reg.register(candidate, f, d)
				t.mu.Lock()
				t.dumperCache[key] = d
				t.mu.Unlock()
				return d, nil
			}
		}
	}

	return nil, NewTypeError("no dumper registered for %s in format %v", goType, f)
}

// GetLoader resolves the Loader for a wire column's oid and format.
// Resolutions are cached by (oid, format).
func (t *Transformer) GetLoader(oid uint32, f Format) (Loader, error) {
	key := loaderCacheKey{oid, f}

	t.mu.Lock()
	if l, ok := t.loaderCache[key]; ok {
		t.mu.Unlock()
		adaptCacheHits.WithLabelValues("loader").Inc()
		return l, nil
	}
	t.mu.Unlock()
	adaptCacheMisses.WithLabelValues("loader").Inc()

	for _, reg := range t.registries {
		if l, ok := reg.loaderFor(oid, f); ok {
			t.mu.Lock()
			t.loaderCache[key] = l
			t.mu.Unlock()
			return l, nil
		}
	}
	return nil, NewTypeError("no loader registered for oid %d in format %v", oid, f)
}

// SetRowTypes precomputes the per-column Loader vector for a new
// result set's field descriptions, so that LoadRow does not have to
// resolve a Loader for every cell of every row.
func (t *Transformer) SetRowTypes(fields []native.FieldDesc) error {
	loaders := make([]Loader, len(fields))
	for i, field := range fields {
		l, err := t.GetLoader(field.OID, Format(field.Format))
		if err != nil {
			return err
		}
		loaders[i] = l
	}
	t.mu.Lock()
	t.rowLoaders = loaders
	t.mu.Unlock()
	return nil
}

// LoadRow converts one wire row into Go values using the loader
// vector SetRowTypes last installed. A nil cell loads as a nil Go
// value (SQL NULL) without consulting its Loader.
func (t *Transformer) LoadRow(row [][]byte) ([]any, error) {
	t.mu.Lock()
	loaders := t.rowLoaders
	t.mu.Unlock()

	if loaders == nil {
		return nil, NewInternalError("LoadRow called before SetRowTypes")
	}
	if len(row) != len(loaders) {
		return nil, NewInternalError("row has %d columns, expected %d", len(row), len(loaders))
	}

	out := make([]any, len(row))
	for i, cell := range row {
		if cell == nil {
			continue
		}
		v, err := loaders[i].Load(cell)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// DumpParams adapts a slice of Go values into wire parameter bytes and
// their corresponding type OIDs, in the requested format. A nil value
// dumps as SQL NULL with OIDUnknown, letting the server infer the
// parameter's type.
func (t *Transformer) DumpParams(values []any, f Format) (params [][]byte, oids []uint32, err error) {
	params = make([][]byte, len(values))
	oids = make([]uint32, len(values))
	for i, v := range values {
		if v == nil {
			oids[i] = OIDUnknown
			continue
		}
		d, err := t.GetDumper(v, f)
		if err != nil {
			return nil, nil, err
		}
		b, err := d.Dump(v)
		if err != nil {
			return nil, nil, err
		}
		params[i] = b
		oids[i] = d.OID()
	}
	return params, oids, nil
}
