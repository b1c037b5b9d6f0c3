// Copyright 2024 RelayGate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cherry implements quality-weighted candidate selection for relay
// requests ("cherry picking").
//
// The picker chooses an upstream application credential from the pool
// assigned to a load balancer, or a node from an application's active
// session, biased by the quality of service each candidate delivered
// during the current hour. Per-candidate outcome counters live in an
// external TTL-capable key-value store; every selection reads the counters
// back, derives a service log per candidate, ranks the logs, expands them
// into a weighted pool and draws uniformly from the pool.
//
// Counters are folded in place with a read-modify-write against the store.
// Concurrent folds for the same key can lose increments unless the store
// implements ConditionalStore, in which case a bounded compare-and-swap
// loop closes the race.
package cherry
