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

// Package memstore provides an in-process quality store backed by an in
// memory TTL cache. It is the default backend for single-instance
// deployments and for tests.
package memstore

import (
	"bytes"
	"context"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/relaygate/relaygate/gateway/cherry"
)

var _ cherry.ConditionalStore = (*Store)(nil)

// Store is an in-memory TTL key-value store.
type Store struct {
	// Do not embed or use type directly to reduce the cache's API surface.
	c   *cache.Cache
	mtx sync.RWMutex
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		// All items are inserted with their own expiration, so no default
		// expiration is needed. Cleanup happens manually via
		// DeleteExpired; expired entries are already invisible to Get.
		c: cache.New(cache.NoExpiration, 0),
	}
}

// Get returns the value stored under key, or false if the key is absent
// or expired.
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	obj, ok := s.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	return clone(obj.([]byte)), true, nil
}

// Set stores value under key with the given expiry.
func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.c.Set(key, clone(value), ttl)
	return nil
}

// SetIf stores value under key only if the current value equals old; a nil
// old requires the key to be absent. It reports whether the swap happened.
func (s *Store) SetIf(_ context.Context, key string, old, value []byte,
	ttl time.Duration) (bool, error) {

	s.mtx.Lock()
	defer s.mtx.Unlock()
	cur, ok := s.c.Get(key)
	switch {
	case old == nil && ok:
		return false, nil
	case old != nil && !ok:
		return false, nil
	case old != nil && !bytes.Equal(cur.([]byte), old):
		return false, nil
	}
	s.c.Set(key, clone(value), ttl)
	return true, nil
}

// DeleteExpired removes all expired entries and returns their count.
func (s *Store) DeleteExpired() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	var cnt int
	s.c.OnEvicted(func(string, any) {
		cnt++
	})
	s.c.DeleteExpired()
	s.c.OnEvicted(nil)
	return cnt
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
