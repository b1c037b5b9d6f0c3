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

package cherry_test

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaygate/relaygate/gateway/cherry"
	"github.com/relaygate/relaygate/private/storage/quality/memstore"
)

var testTime = time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)

func testKey(chain, id string) string {
	return fmt.Sprintf("%s-%s-%d", chain, id, testTime.Local().Hour())
}

func newTestPicker(store cherry.Store, seed int64) *cherry.Picker {
	return &cherry.Picker{
		Store: store,
		Now:   func() time.Time { return testTime },
		Rand:  rand.New(rand.NewSource(seed)),
	}
}

func setRecord(t *testing.T, store cherry.Store, chain, id string,
	results map[int]int, avg float64) {

	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"results":               results,
		"averageSuccessLatency": avg,
	})
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), testKey(chain, id), raw, time.Minute))
}

func TestSelectApplicationReturnsMember(t *testing.T) {
	store := memstore.New()
	picker := newTestPicker(store, 1)
	appIDs := []string{"app-1", "app-2", "app-3"}
	for i := 0; i < 50; i++ {
		id, err := picker.SelectApplication(context.Background(), "lb-1", appIDs,
			"eth", "req-1")
		require.NoError(t, err)
		assert.Contains(t, appIDs, id)
	}
}

func TestSelectApplicationEmptyInput(t *testing.T) {
	picker := newTestPicker(memstore.New(), 1)
	_, err := picker.SelectApplication(context.Background(), "lb-1", nil, "eth", "req-1")
	assert.Error(t, err)
}

func TestSelectApplicationPrefersHealthy(t *testing.T) {
	store := memstore.New()
	// healthy: 100% success. degraded: 50% success, weighted once only.
	setRecord(t, store, "eth", "healthy", map[int]int{200: 20}, 100)
	setRecord(t, store, "eth", "degraded", map[int]int{200: 10, 500: 10}, 100)

	picker := newTestPicker(store, 42)
	counts := make(map[string]int)
	for i := 0; i < 1000; i++ {
		id, err := picker.SelectApplication(context.Background(), "lb-1",
			[]string{"healthy", "degraded"}, "eth", "req-1")
		require.NoError(t, err)
		counts[id]++
	}
	// healthy holds 10 of 11 pool entries.
	assert.Greater(t, counts["healthy"], counts["degraded"]*5)
	assert.Greater(t, counts["degraded"], 0, "nonzero success must not starve")
}

func TestSelectApplicationFallback(t *testing.T) {
	store := memstore.New()
	appIDs := []string{"app-1", "app-2"}
	for _, id := range appIDs {
		failures := map[int]int{500: cherry.MaxAppFailuresPerPeriod}
		setRecord(t, store, "eth", id, failures, 0)
	}
	picker := newTestPicker(store, 7)
	id, err := picker.SelectApplication(context.Background(), "lb-1", appIDs,
		"eth", "req-1")
	require.NoError(t, err)
	assert.Contains(t, appIDs, id)
}

func TestSelectNodeResolvesSessionMember(t *testing.T) {
	store := memstore.New()
	session := &cherry.Session{
		Key:   "session-1",
		Chain: "eth",
		Nodes: []*cherry.Node{
			{PublicKey: "node-1", Address: "https://node-1.test"},
			{PublicKey: "node-2", Address: "https://node-2.test"},
		},
	}
	picker := newTestPicker(store, 3)
	node, err := picker.SelectNode(context.Background(),
		&cherry.Application{ID: "app-1"}, session, "eth", "req-1")
	require.NoError(t, err)
	_, ok := session.Node(node.PublicKey)
	assert.True(t, ok)
}

func TestSelectNodeShelvesFailingNode(t *testing.T) {
	store := memstore.New()
	session := &cherry.Session{
		Key:   "session-1",
		Chain: "eth",
		Nodes: []*cherry.Node{
			{PublicKey: "good"},
			{PublicKey: "bad"},
		},
	}
	// The node quota is 3: three failures without a success shelve the node.
	setRecord(t, store, "eth", "bad", map[int]int{500: 3}, 0)

	picker := newTestPicker(store, 11)
	for i := 0; i < 50; i++ {
		node, err := picker.SelectNode(context.Background(), nil, session, "eth", "req-1")
		require.NoError(t, err)
		assert.Equal(t, "good", node.PublicKey)
	}
}

func TestSelectNodeEmptySession(t *testing.T) {
	picker := newTestPicker(memstore.New(), 1)
	_, err := picker.SelectNode(context.Background(), nil, &cherry.Session{}, "eth", "req-1")
	assert.Error(t, err)
}

func TestRecordOutcomeFreshRecord(t *testing.T) {
	store := memstore.New()
	picker := newTestPicker(store, 1)
	err := picker.RecordOutcome(context.Background(), "eth", "app-1", "node-1", 250, 200)
	require.NoError(t, err)

	for _, id := range []string{"app-1", "node-1"} {
		raw, ok, err := store.Get(context.Background(), testKey("eth", id))
		require.NoError(t, err)
		require.True(t, ok, "record for %s", id)
		var rec struct {
			Results               map[int]int `json:"results"`
			AverageSuccessLatency float64     `json:"averageSuccessLatency"`
		}
		require.NoError(t, json.Unmarshal(raw, &rec))
		assert.Equal(t, map[int]int{200: 1}, rec.Results)
		assert.Equal(t, 250.0, rec.AverageSuccessLatency)
	}
}

func TestRecordOutcomeSequence(t *testing.T) {
	store := memstore.New()
	picker := newTestPicker(store, 1)
	ctx := context.Background()
	require.NoError(t, picker.RecordOutcome(ctx, "eth", "app-1", "node-1", 100, 200))
	require.NoError(t, picker.RecordOutcome(ctx, "eth", "app-1", "node-1", 300, 200))
	require.NoError(t, picker.RecordOutcome(ctx, "eth", "app-1", "node-1", 999, 500))

	raw, ok, err := store.Get(ctx, testKey("eth", "app-1"))
	require.NoError(t, err)
	require.True(t, ok)
	var rec struct {
		Results               map[int]int `json:"results"`
		AverageSuccessLatency float64     `json:"averageSuccessLatency"`
	}
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.Equal(t, map[int]int{200: 2, 500: 1}, rec.Results)
	// The failure leaves the running mean of (100+300)/2 untouched.
	assert.Equal(t, 200.0, rec.AverageSuccessLatency)
}

// failingStore returns an error on every operation.
type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, fmt.Errorf("store unavailable")
}

func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return fmt.Errorf("store unavailable")
}

func TestStoreErrorsPropagate(t *testing.T) {
	picker := newTestPicker(failingStore{}, 1)
	ctx := context.Background()

	_, err := picker.SelectApplication(ctx, "lb-1", []string{"app-1"}, "eth", "req-1")
	assert.Error(t, err)

	_, err = picker.SelectNode(ctx, nil, &cherry.Session{
		Nodes: []*cherry.Node{{PublicKey: "node-1"}},
	}, "eth", "req-1")
	assert.Error(t, err)

	assert.Error(t, picker.RecordOutcome(ctx, "eth", "app-1", "node-1", 100, 200))
}

// contestedStore loses the compare-and-swap a fixed number of times before
// letting it through, simulating concurrent writers.
type contestedStore struct {
	*memstore.Store
	losses int
	swaps  int
}

func (s *contestedStore) SetIf(ctx context.Context, key string, old, value []byte,
	ttl time.Duration) (bool, error) {

	s.swaps++
	if s.losses > 0 {
		s.losses--
		return false, nil
	}
	return s.Store.SetIf(ctx, key, old, value, ttl)
}

func TestRecordOutcomeRetriesLostSwap(t *testing.T) {
	store := &contestedStore{Store: memstore.New(), losses: 2}
	picker := newTestPicker(store, 1)
	ctx := context.Background()

	require.NoError(t, picker.RecordOutcome(ctx, "eth", "app-1", "", 100, 200))
	assert.Equal(t, 3, store.swaps)

	raw, ok, err := store.Get(ctx, testKey("eth", "app-1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, string(raw), `"200":1`)
}

func TestRecordOutcomeOverwritesAfterRetryBudget(t *testing.T) {
	store := &contestedStore{Store: memstore.New(), losses: 100}
	picker := newTestPicker(store, 1)
	ctx := context.Background()

	// Every swap loses; the fold must degrade to an overwrite rather than
	// fail or loop forever.
	require.NoError(t, picker.RecordOutcome(ctx, "eth", "app-1", "", 100, 200))
	_, ok, err := store.Get(ctx, testKey("eth", "app-1"))
	require.NoError(t, err)
	assert.True(t, ok)
}
