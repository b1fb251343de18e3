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

	lru "github.com/hashicorp/golang-lru/v2"
)

// A Dumper turns one Go value into its wire representation for a
// single PostgreSQL type. Dump is called once per value per query
// execution; implementations must be safe for concurrent use across
// distinct Transformers.
type Dumper interface {
	// Dump encodes value, returning nil (not an empty slice) for SQL
	// NULL.
	Dump(value any) ([]byte, error)

	// OID reports the PostgreSQL type this Dumper produces, used when
	// the wire protocol requires declaring parameter types up front.
	OID() uint32
}

// AncestorAware may optionally be implemented by a Go type whose
// dumper should also be considered for that type's ancestors (an
// embedded struct, a named type's underlying type, an interface it
// satisfies). Go has no runtime method-resolution-order to walk
// automatically, so a type opts in explicitly by naming its ancestors
// most-specific first.
type AncestorAware interface {
	PgAncestors() []reflect.Type
}

// A Loader turns one wire-format column value into a Go value. data
// is nil for SQL NULL; Loader implementations must accept that.
type Loader interface {
	Load(data []byte) (any, error)
}

// Scope identifies how broadly a registration applies. Registrations
// at a narrower scope shadow the same (type, format) or (oid, format)
// pair registered at a broader one.
type Scope int

// Scopes, narrowest first.
const (
	ScopeQuery Scope = iota
	ScopeCursor
	ScopeConnection
	ScopeGlobal
)

// Registry holds one scope's dumper and loader registrations. A
// Transformer searches a list of Registries, narrowest scope first.
type Registry struct {
	mu            sync.RWMutex
	dumpers       map[reflect.Type]map[Format]Dumper
	dumpersByName map[string]map[Format]Dumper
	loaders       map[uint32]map[Format]Loader
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		dumpers:       make(map[reflect.Type]map[Format]Dumper),
		dumpersByName: make(map[string]map[Format]Dumper),
		loaders:       make(map[uint32]map[Format]Loader),
	}
}

// qualifiedTypeName returns the "{package path}.{type name}" string a
// type is registered/looked-up under for forward-reference-by-name
// dumper resolution. Built-in types (int, string, ...) have no package
// path; t.String() already reads as their bare name in that case.
func qualifiedTypeName(t reflect.Type) string {
	if t.PkgPath() == "" || t.Name() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// globalRegistry is consulted by every Transformer that does not
// shadow a given (type, format) or (oid, format) pair at a narrower
// scope, mirroring psycopg3's module-level adapters.register(...,
// context=None) registrations.
var globalRegistry = NewRegistry()

// RegisterDumper installs a text-format Dumper for values of goType
// in the global scope.
func RegisterDumper(goType reflect.Type, d Dumper) {
	globalRegistry.RegisterDumper(goType, d)
}

// RegisterBinaryDumper installs a binary-format Dumper for values of
// goType in the global scope.
func RegisterBinaryDumper(goType reflect.Type, d Dumper) {
	globalRegistry.RegisterBinaryDumper(goType, d)
}

// RegisterLoader installs a text-format Loader for oid in the global
// scope.
func RegisterLoader(oid uint32, l Loader) {
	globalRegistry.RegisterLoader(oid, l)
}

// RegisterBinaryLoader installs a binary-format Loader for oid in the
// global scope.
func RegisterBinaryLoader(oid uint32, l Loader) {
	globalRegistry.RegisterBinaryLoader(oid, l)
}

// RegisterDumper installs a text-format Dumper for goType in r.
func (r *Registry) RegisterDumper(goType reflect.Type, d Dumper) { r.register(goType, FormatText, d) }

// RegisterBinaryDumper installs a binary-format Dumper for goType in r.
func (r *Registry) RegisterBinaryDumper(goType reflect.Type, d Dumper) {
	r.register(goType, FormatBinary, d)
}

func (r *Registry) register(goType reflect.Type, f Format, d Dumper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byFormat, ok := r.dumpers[goType]
	if !ok {
		byFormat = make(map[Format]Dumper)
		r.dumpers[goType] = byFormat
	}
	byFormat[f] = d
}

// RegisterDumperName installs a text-format Dumper under name (a
// "{package path}.{type name}" forward reference, see
// qualifiedTypeName) in the global scope, for types the caller cannot
// name as a reflect.Type at registration time.
func RegisterDumperName(name string, d Dumper) { globalRegistry.RegisterDumperName(name, d) }

// RegisterBinaryDumperName installs a binary-format Dumper under name
// in the global scope.
func RegisterBinaryDumperName(name string, d Dumper) { globalRegistry.RegisterBinaryDumperName(name, d) }

// RegisterDumperName installs a text-format Dumper under name in r.
func (r *Registry) RegisterDumperName(name string, d Dumper) { r.registerName(name, FormatText, d) }

// RegisterBinaryDumperName installs a binary-format Dumper under name
// in r.
func (r *Registry) RegisterBinaryDumperName(name string, d Dumper) {
	r.registerName(name, FormatBinary, d)
}

func (r *Registry) registerName(name string, f Format, d Dumper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byFormat, ok := r.dumpersByName[name]
	if !ok {
		byFormat = make(map[Format]Dumper)
		r.dumpersByName[name] = byFormat
	}
	byFormat[f] = d
}

// dumperForName returns the Dumper registered under the forward-reference
// name string, if any. Used only by Transformer.GetDumper's name-based
// slow path, after the direct type-key walk has already missed.
func (r *Registry) dumperForName(name string, f Format) (Dumper, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byFormat, ok := r.dumpersByName[name]
	if !ok {
		return nil, false
	}
	d, ok := byFormat[f]
	return d, ok
}

// RegisterLoader installs a text-format Loader for oid in r.
func (r *Registry) RegisterLoader(oid uint32, l Loader) { r.registerLoader(oid, FormatText, l) }

// RegisterBinaryLoader installs a binary-format Loader for oid in r.
func (r *Registry) RegisterBinaryLoader(oid uint32, l Loader) {
	r.registerLoader(oid, FormatBinary, l)
}

func (r *Registry) registerLoader(oid uint32, f Format, l Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byFormat, ok := r.loaders[oid]
	if !ok {
		byFormat = make(map[Format]Loader)
		r.loaders[oid] = byFormat
	}
	byFormat[f] = l
}

// dumperFor returns the Dumper registered for exactly goType/f, if
// any; the ancestor walk across a type's PgAncestors lives in
// Transformer.GetDumper, not here, since it must also consult
// multiple scopes in lockstep with the ancestor chain.
func (r *Registry) dumperFor(goType reflect.Type, f Format) (Dumper, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byFormat, ok := r.dumpers[goType]
	if !ok {
		return nil, false
	}
	d, ok := byFormat[f]
	return d, ok
}

// loaderFor returns the Loader registered for exactly oid/f, if any.
func (r *Registry) loaderFor(oid uint32, f Format) (Loader, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byFormat, ok := r.loaders[oid]
	if !ok {
		return nil, false
	}
	l, ok := byFormat[f]
	return l, ok
}

// newCompositeCache builds the bounded cache of composite/record type
// catalog lookups a Connection keeps, keyed by type name (the only key
// a caller has before any catalog round trip), so that repeated use of
// the same composite type across many queries does not re-query
// pg_type/pg_attribute each time. Sized generously since entries are
// small (a field-name/OID list per composite type).
func newCompositeCache() *lru.Cache[string, *CompositeTypeInfo] {
	cache, err := lru.New[string, *CompositeTypeInfo](256)
	if err != nil {
		// Only returns an error for a non-positive size, which 256 never
		// triggers.
		panic(err)
	}
	return cache
}
