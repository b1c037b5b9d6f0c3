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

// Package api implements the management API of the gateway: an HTTP JSON
// surface over the picker for the relay-serving backends. This is not the
// public relay frontend.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/relaygate/relaygate/gateway/cherry"
	"github.com/relaygate/relaygate/pkg/log"
)

// Server implements the management API.
type Server struct {
	// ID is the gateway element ID reported on the info endpoint.
	ID string
	// Picker answers the selection and outcome requests.
	Picker *cherry.Picker
}

// Handler returns the HTTP handler of the management API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
	}))
	r.Get("/api/v1/info", s.info)
	r.Post("/api/v1/select/application", s.selectApplication)
	r.Post("/api/v1/select/node", s.selectNode)
	r.Post("/api/v1/outcome", s.outcome)
	return r
}

// SelectApplicationRequest is the request of the select/application
// endpoint.
type SelectApplicationRequest struct {
	LBID      string   `json:"lb_id"`
	AppIDs    []string `json:"app_ids"`
	Chain     string   `json:"chain"`
	RequestID string   `json:"request_id"`
}

// SelectApplicationResponse is the response of the select/application
// endpoint.
type SelectApplicationResponse struct {
	AppID string `json:"app_id"`
}

func (s *Server) selectApplication(w http.ResponseWriter, r *http.Request) {
	var req SelectApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, err)
		return
	}
	appID, err := s.Picker.SelectApplication(r.Context(), req.LBID, req.AppIDs,
		req.Chain, req.RequestID)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	jsonResponse(w, SelectApplicationResponse{AppID: appID})
}

// Node mirrors cherry.Node on the wire.
type Node struct {
	PublicKey string `json:"public_key"`
	Address   string `json:"address"`
}

// Session mirrors cherry.Session on the wire.
type Session struct {
	Key   string `json:"key"`
	Chain string `json:"chain"`
	Nodes []Node `json:"nodes"`
}

// SelectNodeRequest is the request of the select/node endpoint.
type SelectNodeRequest struct {
	AppID     string  `json:"app_id"`
	Session   Session `json:"session"`
	Chain     string  `json:"chain"`
	RequestID string  `json:"request_id"`
}

// SelectNodeResponse is the response of the select/node endpoint.
type SelectNodeResponse struct {
	Node Node `json:"node"`
}

func (s *Server) selectNode(w http.ResponseWriter, r *http.Request) {
	var req SelectNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, err)
		return
	}
	session := &cherry.Session{
		Key:   req.Session.Key,
		Chain: req.Session.Chain,
	}
	for _, n := range req.Session.Nodes {
		session.Nodes = append(session.Nodes, &cherry.Node{
			PublicKey: n.PublicKey,
			Address:   n.Address,
		})
	}
	node, err := s.Picker.SelectNode(r.Context(), &cherry.Application{ID: req.AppID},
		session, req.Chain, req.RequestID)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	jsonResponse(w, SelectNodeResponse{
		Node: Node{PublicKey: node.PublicKey, Address: node.Address},
	})
}

// OutcomeRequest is the request of the outcome endpoint.
type OutcomeRequest struct {
	Chain   string  `json:"chain"`
	AppID   string  `json:"app_id"`
	NodeID  string  `json:"node_id"`
	Elapsed float64 `json:"elapsed"`
	Code    int     `json:"code"`
}

func (s *Server) outcome(w http.ResponseWriter, r *http.Request) {
	var req OutcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, err)
		return
	}
	if err := s.Picker.RecordOutcome(r.Context(), req.Chain, req.AppID, req.NodeID,
		req.Elapsed, req.Code); err != nil {

		errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) info(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]string{"id": s.ID})
}

func jsonResponse(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error("Encoding API response", "err", err)
	}
}

func errorResponse(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
