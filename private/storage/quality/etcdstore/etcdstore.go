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

// Package etcdstore provides a quality store backed by an etcd cluster.
// Record expiry is implemented with etcd leases, one lease per write, so
// every write resets the record's TTL the same way a SET with expiry does
// on a caching store.
package etcdstore

import (
	"context"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/relaygate/relaygate/gateway/cherry"
	"github.com/relaygate/relaygate/pkg/private/serrors"
)

var _ cherry.ConditionalStore = (*Store)(nil)

// DefaultDialTimeout is used when Config.DialTimeout is not set.
const DefaultDialTimeout = 5 * time.Second

// Config configures the connection to the etcd cluster.
type Config struct {
	// Endpoints are the etcd cluster endpoints.
	Endpoints []string
	// DialTimeout bounds the initial connection attempt.
	DialTimeout time.Duration
	// Prefix is prepended to every key. It partitions the quality records
	// from other users of the cluster.
	Prefix string
}

// Store is a quality store on top of an etcd cluster.
type Store struct {
	client *clientv3.Client
	prefix string
}

// New connects to the etcd cluster described by cfg.
func New(cfg Config) (*Store, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, serrors.New("no etcd endpoints configured")
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = DefaultDialTimeout
	}
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, serrors.Wrap("connecting to etcd", err, "endpoints", cfg.Endpoints)
	}
	return &Store{client: client, prefix: cfg.Prefix}, nil
}

// Get returns the value stored under key, or false if the key is absent.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	resp, err := s.client.Get(ctx, s.prefix+key)
	if err != nil {
		return nil, false, serrors.Wrap("fetching key from etcd", err, "key", key)
	}
	if len(resp.Kvs) == 0 {
		return nil, false, nil
	}
	return resp.Kvs[0].Value, true, nil
}

// Set stores value under key, attached to a fresh lease with the given TTL.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	lease, err := s.lease(ctx, ttl)
	if err != nil {
		return err
	}
	if _, err := s.client.Put(ctx, s.prefix+key, string(value),
		clientv3.WithLease(lease)); err != nil {

		return serrors.Wrap("persisting key to etcd", err, "key", key)
	}
	return nil
}

// SetIf stores value under key only if the current value equals old; a nil
// old requires the key to be absent. The comparison and the put run in a
// single etcd transaction.
func (s *Store) SetIf(ctx context.Context, key string, old, value []byte,
	ttl time.Duration) (bool, error) {

	lease, err := s.lease(ctx, ttl)
	if err != nil {
		return false, err
	}
	k := s.prefix + key
	cmp := clientv3.Compare(clientv3.Value(k), "=", string(old))
	if old == nil {
		cmp = clientv3.Compare(clientv3.CreateRevision(k), "=", 0)
	}
	resp, err := s.client.Txn(ctx).
		If(cmp).
		Then(clientv3.OpPut(k, string(value), clientv3.WithLease(lease))).
		Commit()
	if err != nil {
		return false, serrors.Wrap("persisting key to etcd", err, "key", key)
	}
	return resp.Succeeded, nil
}

// Close releases the connection to the cluster.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) lease(ctx context.Context, ttl time.Duration) (clientv3.LeaseID, error) {
	grant, err := s.client.Grant(ctx, int64(ttl.Seconds()))
	if err != nil {
		return 0, serrors.Wrap("granting etcd lease", err, "ttl", ttl)
	}
	return grant.ID, nil
}
