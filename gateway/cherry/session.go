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

// Application is an upstream application credential assigned to a load
// balancer.
type Application struct {
	// ID is the opaque application identifier.
	ID string
	// PublicKey is the application's account public key, if known.
	PublicKey string
}

// Node is an upstream network node serving relays for a chain.
type Node struct {
	// PublicKey is the node's stable identity.
	PublicKey string
	// Address is the node's relay endpoint.
	Address string
}

// Session is the set of nodes serving one application during the current
// protocol session.
type Session struct {
	// Key identifies the session.
	Key string
	// Chain is the blockchain the session serves.
	Chain string
	// Nodes are the session's members. The slice order is the enumeration
	// order used for fallback selection.
	Nodes []*Node
}

// NodeIDs returns the public keys of the session members, in session order.
func (s *Session) NodeIDs() []string {
	ids := make([]string, 0, len(s.Nodes))
	for _, node := range s.Nodes {
		ids = append(ids, node.PublicKey)
	}
	return ids
}

// Node resolves a session member by public key.
func (s *Session) Node(publicKey string) (*Node, bool) {
	for _, node := range s.Nodes {
		if node.PublicKey == publicKey {
			return node, true
		}
	}
	return nil, false
}
