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

package pgengine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cockroachdb/pgadapt/internal/native"
)

func TestConnectStepReachesOK(t *testing.T) {
	client := &fakeClient{
		socket:       9,
		pollSequence: []native.PollStatus{native.PollWriting, native.PollReading, native.PollOK},
	}

	v, err := driveStep(ConnectStep(client, "user=test"))
	require.NoError(t, err)
	require.Same(t, client, v)
	require.True(t, client.connectStarted)
	require.Equal(t, 1, client.nonblockingSet)
}

func TestConnectStepFailsOnConnectStartError(t *testing.T) {
	client := &fakeClient{connectErr: errors.New("dial refused")}

	_, err := driveStep(ConnectStep(client, "user=test"))
	require.Error(t, err)
	require.ErrorContains(t, err, "dial refused")
}

func TestConnectStepSetsNonblockingExactlyOnce(t *testing.T) {
	// Two scripted PollOK verdicts collapse into a single Done, since
	// ConnectStep returns as soon as the first one lands.
	client := &fakeClient{
		pollSequence: []native.PollStatus{native.PollReading, native.PollOK, native.PollOK},
	}

	v, err := driveStep(ConnectStep(client, "user=test"))
	require.NoError(t, err)
	require.NotNil(t, v)
	require.Equal(t, 1, client.nonblockingSet)
}

func TestConnectStepFailsWhenStatusGoesBadMidPoll(t *testing.T) {
	client := &fakeClient{
		socket:       9,
		pollSequence: []native.PollStatus{native.PollReading, native.PollFailed},
	}

	_, err := driveStep(ConnectStep(client, "user=test"))
	require.Error(t, err)
	require.ErrorContains(t, err, "connection failed")
}

func TestConnectStepChecksStatusBadAtTopOfEveryLoopIteration(t *testing.T) {
	client := &fakeClient{
		socket:       9,
		pollSequence: []native.PollStatus{native.PollReading, native.PollReading},
	}
	step := ConnectStep(client, "user=test")

	out := step(0)
	require.True(t, out.IsYield)

	// Simulate the connection going bad out from under the step between
	// resumptions (e.g. the socket died while waiting for readability).
	client.status = native.StatusBad

	out = step(0)
	require.False(t, out.IsYield)
	require.Error(t, out.Err)
	require.ErrorContains(t, out.Err, "connection is bad")
}

func TestConnectStepSurfacesUnexpectedPollStatusAsInternalMarker(t *testing.T) {
	client := &fakeClient{
		socket:       9,
		pollSequence: []native.PollStatus{native.PollStatus(99)},
	}

	_, err := driveStep(ConnectStep(client, "user=test"))
	require.Error(t, err)
	require.ErrorIs(t, err, ErrUnexpectedPollStatus)
}
