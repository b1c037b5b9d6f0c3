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

package config_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaygate/relaygate/gateway/config"
	libconfig "github.com/relaygate/relaygate/private/config"
)

func TestSampleIsValid(t *testing.T) {
	var sample bytes.Buffer
	var cfg config.Config
	cfg.Sample(&sample)

	var loaded config.Config
	require.NoError(t, libconfig.Decode(sample.Bytes(), &loaded))
	loaded.InitDefaults()
	assert.NoError(t, loaded.Validate())
	assert.Equal(t, "gateway-1", loaded.General.ID)
	assert.Equal(t, config.BackendMemory, loaded.Storage.Backend)
	assert.Equal(t, 5*time.Second, loaded.Storage.DialTimeout.Duration)
}

func TestUnknownFieldRejected(t *testing.T) {
	raw := []byte("[general]\nid = \"gw\"\nbogus = true\n")
	var cfg config.Config
	assert.Error(t, libconfig.Decode(raw, &cfg))
}

func TestValidate(t *testing.T) {
	testCases := map[string]struct {
		prepare   func(cfg *config.Config)
		assertErr assert.ErrorAssertionFunc
	}{
		"valid": {
			prepare:   func(cfg *config.Config) {},
			assertErr: assert.NoError,
		},
		"missing id": {
			prepare: func(cfg *config.Config) {
				cfg.General.ID = ""
			},
			assertErr: assert.Error,
		},
		"unknown backend": {
			prepare: func(cfg *config.Config) {
				cfg.Storage.Backend = "postgres"
			},
			assertErr: assert.Error,
		},
		"etcd without endpoints": {
			prepare: func(cfg *config.Config) {
				cfg.Storage.Backend = config.BackendEtcd
				cfg.Storage.Endpoints = nil
			},
			assertErr: assert.Error,
		},
		"etcd with endpoints": {
			prepare: func(cfg *config.Config) {
				cfg.Storage.Backend = config.BackendEtcd
				cfg.Storage.Endpoints = []string{"127.0.0.1:2379"}
			},
			assertErr: assert.NoError,
		},
	}
	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Config{}
			cfg.General.ID = "gw"
			cfg.InitDefaults()
			tc.prepare(&cfg)
			tc.assertErr(t, cfg.Validate())
		})
	}
}
