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

package cherry

import (
	"context"
	"fmt"
	"time"
)

const (
	// AppRecordTTL is the expiry placed on application-scoped quality
	// records. Application pools have many redundant members, so their
	// history is allowed to decay quickly.
	AppRecordTTL = 900 * time.Second
	// NodeRecordTTL is the expiry placed on node-scoped quality records.
	NodeRecordTTL = 3600 * time.Second
)

// Store is the minimal interface to the external TTL-capable key-value
// store that holds the quality records. Implementations must treat an
// absent key as a valid state, distinct from an error.
type Store interface {
	// Get returns the raw value stored under key, or false if the key is
	// absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key with the given expiry, overwriting any
	// existing value and resetting its expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// ConditionalStore is an optional Store extension that supports atomic
// compare-and-swap writes. Stores implementing it allow the picker to fold
// outcomes without losing concurrent increments.
type ConditionalStore interface {
	Store
	// SetIf stores value under key with the given expiry, but only if the
	// current value equals old. A nil old means the key must be absent.
	// It reports whether the swap took place.
	SetIf(ctx context.Context, key string, old, value []byte, ttl time.Duration) (bool, error)
}

// recordKey builds the store key for a candidate's quality record. Records
// are bucketed by the local hour of day; the TTL attached at write time is
// an additional, shorter expiry on top of the bucket's natural lifetime.
func recordKey(chain, candidateID string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%d", chain, candidateID, now.Local().Hour())
}
