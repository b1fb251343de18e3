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

import "github.com/pkg/errors"

// OperationalError reports a failure in the connection or the server
// itself: a dropped socket, a server-side error response, a failed
// handshake. The connection that produced it must be considered bad
// and closed.
type OperationalError struct {
	cause error
}

func (e *OperationalError) Error() string { return "operational error: " + e.cause.Error() }

func (e *OperationalError) Unwrap() error { return e.cause }

// NewOperationalError wraps cause as an OperationalError.
func NewOperationalError(cause error) *OperationalError {
	return &OperationalError{cause: errors.WithStack(cause)}
}

// IsOperationalError returns the error if err is (or wraps) an
// OperationalError.
func IsOperationalError(err error) (opErr *OperationalError, ok bool) {
	return opErr, errors.As(err, &opErr)
}

// InternalError reports a violated invariant of this package itself:
// a state machine reached an impossible transition, a cache was found
// inconsistent, a result the server promised never arrived. It is
// never the caller's fault.
type InternalError struct {
	msg string
}

func (e *InternalError) Error() string { return "internal error: " + e.msg }

// NewInternalError builds an InternalError with a formatted message.
func NewInternalError(format string, args ...any) *InternalError {
	return &InternalError{msg: errors.Errorf(format, args...).Error()}
}

// IsInternalError returns the error if err is (or wraps) an
// InternalError.
func IsInternalError(err error) (intErr *InternalError, ok bool) {
	return intErr, errors.As(err, &intErr)
}

// ProgrammingError reports caller misuse of this package's API: a
// query issued on a closed connection, a nil value handed to
// GetDumper, a composite type name the catalog does not know.
type ProgrammingError struct {
	msg string
}

func (e *ProgrammingError) Error() string { return "programming error: " + e.msg }

// NewProgrammingError builds a ProgrammingError with a formatted
// message.
func NewProgrammingError(format string, args ...any) *ProgrammingError {
	return &ProgrammingError{msg: errors.Errorf(format, args...).Error()}
}

// IsProgrammingError returns the error if err is (or wraps) a
// ProgrammingError.
func IsProgrammingError(err error) (progErr *ProgrammingError, ok bool) {
	return progErr, errors.As(err, &progErr)
}

// TypeError reports that no dumper or loader could be resolved for a
// Go value or a wire column, or that a resolved one rejected the
// value it was asked to adapt.
type TypeError struct {
	msg string
}

func (e *TypeError) Error() string { return "type error: " + e.msg }

// NewTypeError builds a TypeError with a formatted message.
func NewTypeError(format string, args ...any) *TypeError {
	return &TypeError{msg: errors.Errorf(format, args...).Error()}
}

// IsTypeError returns the error if err is (or wraps) a TypeError.
func IsTypeError(err error) (typeErr *TypeError, ok bool) {
	return typeErr, errors.As(err, &typeErr)
}
