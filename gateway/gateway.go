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

// Package gateway wires the quality store, the cherry picker and the
// management API into a runnable relay gateway.
package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/relaygate/relaygate/gateway/api"
	"github.com/relaygate/relaygate/gateway/cherry"
	"github.com/relaygate/relaygate/gateway/config"
	"github.com/relaygate/relaygate/pkg/log"
	"github.com/relaygate/relaygate/pkg/private/serrors"
	"github.com/relaygate/relaygate/private/periodic"
	"github.com/relaygate/relaygate/private/storage/cleaner"
	"github.com/relaygate/relaygate/private/storage/quality/etcdstore"
	"github.com/relaygate/relaygate/private/storage/quality/memstore"
)

// Gateway runs the selection engine behind the management API.
type Gateway struct {
	// Config is the gateway configuration. Required.
	Config *config.Config
}

// storeCleanupInterval is how often expired quality records are evicted from
// the in-memory store. Records expire by hour bucket, so sub-hour granularity
// is plenty.
const storeCleanupInterval = 5 * time.Minute

// Run starts the gateway and blocks until the context is cancelled or a
// fatal error occurs.
func (g *Gateway) Run(ctx context.Context) error {
	logger := log.FromCtx(ctx)

	store, err := openStore(g.Config.Storage)
	if err != nil {
		return serrors.Wrap("opening quality store", err)
	}
	if closer, ok := store.(io.Closer); ok {
		defer closer.Close()
	}
	if ms, ok := store.(*memstore.Store); ok {
		task := cleaner.New(func(ctx context.Context) (int, error) {
			return ms.DeleteExpired(), nil
		}, "quality", cleaner.Metrics{})
		runner := periodic.Start(task, storeCleanupInterval, storeCleanupInterval)
		defer runner.Kill()
	}
	picker := &cherry.Picker{
		Store:   store,
		Metrics: cherry.NewMetrics(),
		Verbose: g.Config.Picker.Verbose,
	}

	grp, errCtx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		defer log.HandlePanic()
		return g.Config.Metrics.ServePrometheus(errCtx)
	})
	if g.Config.API.Addr != "" {
		server := &http.Server{
			Addr: g.Config.API.Addr,
			Handler: (&api.Server{
				ID:     g.Config.General.ID,
				Picker: picker,
			}).Handler(),
		}
		grp.Go(func() error {
			defer log.HandlePanic()
			logger.Info("Exposing management API", "addr", g.Config.API.Addr)
			err := server.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return serrors.Wrap("serving management API", err)
			}
			return nil
		})
		grp.Go(func() error {
			defer log.HandlePanic()
			<-errCtx.Done()
			return server.Close()
		})
	}
	return grp.Wait()
}

func openStore(cfg config.Storage) (cherry.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memstore.New(), nil
	case config.BackendEtcd:
		return etcdstore.New(etcdstore.Config{
			Endpoints:   cfg.Endpoints,
			DialTimeout: cfg.DialTimeout.Duration,
			Prefix:      cfg.Prefix,
		})
	default:
		return nil, serrors.New("unknown storage backend", "backend", cfg.Backend)
	}
}
