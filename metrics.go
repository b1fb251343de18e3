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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// kindLabel distinguishes a dumper resolution from a loader resolution
// on the shared cache-hit/miss counters below.
const kindLabel = "kind"

var (
	adaptCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pgadapt_adapt_cache_hits_total",
		Help: "the number of times a Transformer's dumper/loader cache already held the requested resolution",
	}, []string{kindLabel})

	adaptCacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pgadapt_adapt_cache_misses_total",
		Help: "the number of times a Transformer had to walk the registry scope chain to resolve a dumper/loader",
	}, []string{kindLabel})

	connectDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pgadapt_connect_duration_seconds",
		Help:    "how long the connect state machine took from ConnectStart to PollOK",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})
)
