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

package api_test

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaygate/relaygate/gateway/api"
	"github.com/relaygate/relaygate/gateway/cherry"
	"github.com/relaygate/relaygate/private/storage/quality/memstore"
)

func newTestServer(t *testing.T) (*api.Server, http.Handler) {
	t.Helper()
	server := &api.Server{
		ID: "gateway-test",
		Picker: &cherry.Picker{
			Store: memstore.New(),
			Rand:  rand.New(rand.NewSource(1)),
		},
	}
	return server, server.Handler()
}

func post(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestInfo(t *testing.T) {
	_, handler := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/info", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "gateway-test", body["id"])
}

func TestSelectApplication(t *testing.T) {
	_, handler := newTestServer(t)
	rec := post(t, handler, "/api/v1/select/application", api.SelectApplicationRequest{
		LBID:      "lb-1",
		AppIDs:    []string{"app-1", "app-2"},
		Chain:     "eth",
		RequestID: "req-1",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp api.SelectApplicationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, []string{"app-1", "app-2"}, resp.AppID)
}

func TestSelectApplicationNoCandidates(t *testing.T) {
	_, handler := newTestServer(t)
	rec := post(t, handler, "/api/v1/select/application", api.SelectApplicationRequest{
		LBID:  "lb-1",
		Chain: "eth",
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSelectNode(t *testing.T) {
	_, handler := newTestServer(t)
	rec := post(t, handler, "/api/v1/select/node", api.SelectNodeRequest{
		AppID: "app-1",
		Session: api.Session{
			Key:   "session-1",
			Chain: "eth",
			Nodes: []api.Node{
				{PublicKey: "node-1", Address: "https://node-1.test"},
				{PublicKey: "node-2", Address: "https://node-2.test"},
			},
		},
		Chain:     "eth",
		RequestID: "req-1",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp api.SelectNodeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, []string{"node-1", "node-2"}, resp.Node.PublicKey)
	assert.NotEmpty(t, resp.Node.Address)
}

func TestOutcomeRoundTrip(t *testing.T) {
	_, handler := newTestServer(t)
	rec := post(t, handler, "/api/v1/outcome", api.OutcomeRequest{
		Chain:   "eth",
		AppID:   "app-1",
		NodeID:  "node-1",
		Elapsed: 0.25,
		Code:    200,
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	// The outcome must influence subsequent selections through the store:
	// shelve node-2 with failures and verify node-1 keeps winning.
	for i := 0; i < cherry.MaxNodeFailuresPerPeriod; i++ {
		rec := post(t, handler, "/api/v1/outcome", api.OutcomeRequest{
			Chain:  "eth",
			NodeID: "node-2",
			Code:   500,
		})
		require.Equal(t, http.StatusNoContent, rec.Code)
	}
	for i := 0; i < 20; i++ {
		rec := post(t, handler, "/api/v1/select/node", api.SelectNodeRequest{
			AppID: "app-1",
			Session: api.Session{
				Key:   "session-1",
				Chain: "eth",
				Nodes: []api.Node{
					{PublicKey: "node-1"},
					{PublicKey: "node-2"},
				},
			},
			Chain: "eth",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		var resp api.SelectNodeResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "node-1", resp.Node.PublicKey)
	}
}

func TestMalformedRequest(t *testing.T) {
	_, handler := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/select/application",
		bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
