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

package native

import (
	"crypto/md5"
	"encoding/hex"
	"net"
	"syscall"

	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/pkg/errors"
)

// performHandshake runs the (blocking) startup sequence on behalf of
// runConnect's background goroutine: send StartupMessage, answer
// whatever authentication challenge the server issues, and drain
// ParameterStatus/BackendKeyData until ReadyForQuery. It never runs on
// a goroutine a caller is waiting synchronously on.
func performHandshake(conn net.Conn, params connParams) (*pgproto3.Frontend, map[string]string, error) {
	frontend := pgproto3.NewFrontend(conn, conn)
	paramStatus := make(map[string]string)

	startup := &pgproto3.StartupMessage{
		ProtocolVersion: pgproto3.ProtocolVersionNumber,
		Parameters: map[string]string{
			"user":     params.user,
			"database": defaultIfEmpty(params.database, params.user),
		},
	}
	frontend.Send(startup)
	if err := frontend.Flush(); err != nil {
		return nil, nil, errors.Wrap(err, "native: sending startup message")
	}

	for {
		msg, err := frontend.Receive()
		if err != nil {
			return nil, nil, errors.Wrap(err, "native: reading startup reply")
		}

		switch m := msg.(type) {
		case *pgproto3.AuthenticationOk:
			// continue draining ParameterStatus/BackendKeyData

		case *pgproto3.AuthenticationCleartextPassword:
			frontend.Send(&pgproto3.PasswordMessage{Password: params.password})
			if err := frontend.Flush(); err != nil {
				return nil, nil, errors.Wrap(err, "native: sending cleartext password")
			}

		case *pgproto3.AuthenticationMD5Password:
			hashed := md5Hex(params.password + params.user)
			salted := "md5" + md5HexBytes(append([]byte(hashed), m.Salt[:]...))
			frontend.Send(&pgproto3.PasswordMessage{Password: salted})
			if err := frontend.Flush(); err != nil {
				return nil, nil, errors.Wrap(err, "native: sending md5 password")
			}

		case *pgproto3.ParameterStatus:
			paramStatus[m.Name] = m.Value

		case *pgproto3.NoticeResponse:
			// informational; ignored during startup

		case *pgproto3.BackendKeyData:
			// process id / secret key, not needed until Cancel support
			// is added.

		case *pgproto3.ReadyForQuery:
			return frontend, paramStatus, nil

		case *pgproto3.ErrorResponse:
			return nil, nil, errors.Errorf("native: server rejected startup: %s", m.Message)

		default:
			return nil, nil, errors.Errorf("native: unexpected startup message %T", m)
		}
	}
}

func defaultIfEmpty(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func md5HexBytes(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

// socketFD extracts the raw file descriptor backing conn, for handoff
// to a Waiter's select(2) loop or cooperative scheduler. Only
// supported for *net.TCPConn, which is all PGConn ever dials.
func socketFD(conn net.Conn) (int, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return 0, errors.Errorf("native: %T does not expose a raw fd", conn)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd int
	ctrlErr := raw.Control(func(descriptor uintptr) { fd = int(descriptor) })
	if ctrlErr != nil {
		return 0, ctrlErr
	}
	return fd, nil
}
