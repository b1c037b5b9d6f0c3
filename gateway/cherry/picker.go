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
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/relaygate/relaygate/pkg/log"
	"github.com/relaygate/relaygate/pkg/private/prom"
	"github.com/relaygate/relaygate/pkg/private/serrors"
)

// Flow label values for metrics and diagnostics.
const (
	flowApplication = "application"
	flowNode        = "node"
)

// casAttempts bounds the compare-and-swap retry loop of an outcome fold.
// After the budget is spent the fold degrades to an overwrite, which is
// the behavior plain stores get on every fold.
const casAttempts = 3

// Picker selects applications and nodes for relay requests based on the
// quality of service they delivered during the current hour. The zero
// value is not usable; Store must be set. All methods are safe for
// concurrent use.
type Picker struct {
	// Store is the external TTL counter store holding the quality records.
	Store Store
	// Metrics are the (optional) picker metrics.
	Metrics *Metrics
	// Verbose enables emission of the full ranked candidate sequence on
	// every selection, at debug level.
	Verbose bool
	// Now is the clock used for hour bucketing. Defaults to time.Now.
	Now func() time.Time
	// Rand is the source for the uniform pool draw. Defaults to a
	// time-seeded source. Access is serialized internally, so a seeded
	// source can be injected for deterministic selection in tests.
	Rand *rand.Rand

	randOnce sync.Once
	randMtx  sync.Mutex
}

// SelectApplication chooses one application id out of the candidates
// assigned to the given load balancer. The returned id is always a member
// of appIDs: if every candidate is shelved, the draw falls back to the
// full unweighted candidate list. An empty candidate list is an error.
func (p *Picker) SelectApplication(ctx context.Context, lbID string, appIDs []string,
	chain string, requestID string) (string, error) {

	logger := log.FromCtx(ctx).New("lb_id", lbID, "chain", chain, "request_id", requestID)
	if len(appIDs) == 0 {
		return "", serrors.New("no candidate applications", "lb_id", lbID)
	}
	logs, err := p.serviceLogs(ctx, chain, appIDs)
	if err != nil {
		p.Metrics.selection(flowApplication, chain, prom.ErrStore)
		return "", err
	}
	id := p.choose(logger, logs, appIDs, flowApplication, chain, MaxAppFailuresPerPeriod)
	p.Metrics.selection(flowApplication, chain, prom.Success)
	return id, nil
}

// SelectNode chooses one node out of the given application's session. The
// returned node is always a session member, with the same fallback
// guarantee as SelectApplication. A session without nodes is an error.
func (p *Picker) SelectNode(ctx context.Context, app *Application, session *Session,
	chain string, requestID string) (*Node, error) {

	var appID string
	if app != nil {
		appID = app.ID
	}
	logger := log.FromCtx(ctx).New("app_id", appID, "chain", chain, "request_id", requestID)
	if session == nil || len(session.Nodes) == 0 {
		return nil, serrors.New("no candidate nodes in session", "app_id", appID)
	}
	nodeIDs := session.NodeIDs()
	logs, err := p.serviceLogs(ctx, chain, nodeIDs)
	if err != nil {
		p.Metrics.selection(flowNode, chain, prom.ErrStore)
		return nil, err
	}
	id := p.choose(logger, logs, nodeIDs, flowNode, chain, MaxNodeFailuresPerPeriod)
	node, ok := session.Node(id)
	if !ok {
		p.Metrics.selection(flowNode, chain, prom.ErrInternal)
		return nil, serrors.New("selected node not resolvable in session",
			"node", id, "session", session.Key)
	}
	p.Metrics.selection(flowNode, chain, prom.Success)
	return node, nil
}

// RecordOutcome folds one relay outcome into the application-scoped and
// the node-scoped quality counters. The two folds are independent: a
// failure of one does not prevent the other, and all failures are
// reported together.
func (p *Picker) RecordOutcome(ctx context.Context, chain, appID, nodeID string,
	elapsed float64, code int) error {

	var errs serrors.List
	if appID != "" {
		if err := p.fold(ctx, chain, appID, elapsed, code, AppRecordTTL); err != nil {
			errs = append(errs, serrors.Wrap("updating application counters", err))
		}
	}
	if nodeID != "" {
		if err := p.fold(ctx, chain, nodeID, elapsed, code, NodeRecordTTL); err != nil {
			errs = append(errs, serrors.Wrap("updating node counters", err))
		}
	}
	p.Metrics.outcome(chain, code, elapsed, code == http.StatusOK)
	return errs.ToError()
}

// serviceLogs fetches the current-hour record of every candidate and
// derives the service logs. Store and decode errors abort the whole
// selection; an absent record is a valid state and yields the optimistic
// untested log.
func (p *Picker) serviceLogs(ctx context.Context, chain string,
	ids []string) ([]ServiceLog, error) {

	now := p.now()
	logs := make([]ServiceLog, 0, len(ids))
	for _, id := range ids {
		raw, ok, err := p.Store.Get(ctx, recordKey(chain, id, now))
		p.Metrics.storeOp("get", err)
		if err != nil {
			return nil, serrors.Wrap("fetching quality record", err, "candidate", id)
		}
		if !ok {
			logs = append(logs, buildServiceLog(id, nil))
			continue
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			return nil, serrors.Wrap("parsing quality record", err, "candidate", id)
		}
		logs = append(logs, buildServiceLog(id, &rec))
	}
	return logs, nil
}

// choose ranks the logs, builds the weighted pool and draws from it. If
// the pool is empty the draw falls back to the unweighted candidate list,
// so a candidate is returned as long as the caller supplied one.
func (p *Picker) choose(logger log.Logger, logs []ServiceLog, candidates []string,
	flow, chain string, maxFailures int) string {

	rankServiceLogs(logs)
	if p.Verbose && logger.Enabled(log.DebugLevel) {
		for i, sl := range logs {
			logger.Debug("Ranked candidate", "flow", flow, "rank", i,
				"candidate", sl.ID, "success_rate", sl.SuccessRate,
				"avg_success_latency", sl.AverageSuccessLatency,
				"attempts", sl.Attempts)
		}
	}
	pool, shelved := buildWeightedPool(logs, maxFailures)
	p.Metrics.shelved(flow, chain, shelved)
	if len(pool) == 0 {
		logger.Info("All candidates shelved, drawing from unweighted list",
			"flow", flow, "candidates", len(candidates))
		p.Metrics.fallback(flow, chain)
		pool = candidates
	}
	return pool[p.intn(len(pool))]
}

// fold performs the read-modify-write of one outcome against one counter
// key. Stores with compare-and-swap support get a bounded retry loop;
// everything else is last-write-wins on the full record.
func (p *Picker) fold(ctx context.Context, chain, id string, elapsed float64,
	code int, ttl time.Duration) error {

	if cs, ok := p.Store.(ConditionalStore); ok {
		for attempt := 0; attempt < casAttempts; attempt++ {
			done, err := p.foldOnce(ctx, cs, chain, id, elapsed, code, ttl)
			if err != nil || done {
				return err
			}
		}
	}
	_, err := p.foldOnce(ctx, nil, chain, id, elapsed, code, ttl)
	return err
}

// foldOnce reads the current record, folds the outcome in and writes the
// result back, keyed to the hour at read time. With a nil cs the write is
// an unconditional overwrite and foldOnce always finishes; otherwise the
// write is conditional on the record being unchanged and a lost race
// reports done == false.
func (p *Picker) foldOnce(ctx context.Context, cs ConditionalStore, chain, id string,
	elapsed float64, code int, ttl time.Duration) (bool, error) {

	key := recordKey(chain, id, p.now())
	raw, ok, err := p.Store.Get(ctx, key)
	p.Metrics.storeOp("get", err)
	if err != nil {
		return false, serrors.Wrap("fetching quality record", err, "candidate", id)
	}
	next := newRecord(elapsed, code)
	if ok {
		rec, err := decodeRecord(raw)
		if err != nil {
			return false, serrors.Wrap("parsing quality record", err, "candidate", id)
		}
		next = rec.fold(elapsed, code)
	}
	enc, err := next.encode()
	if err != nil {
		return false, err
	}
	if cs == nil {
		err := p.Store.Set(ctx, key, enc, ttl)
		p.Metrics.storeOp("set", err)
		if err != nil {
			return false, serrors.Wrap("persisting quality record", err, "candidate", id)
		}
		return true, nil
	}
	var old []byte
	if ok {
		old = raw
	}
	swapped, err := cs.SetIf(ctx, key, old, enc, ttl)
	p.Metrics.storeOp("set", err)
	if err != nil {
		return false, serrors.Wrap("persisting quality record", err, "candidate", id)
	}
	return swapped, nil
}

func (p *Picker) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Picker) intn(n int) int {
	p.randOnce.Do(func() {
		if p.Rand == nil {
			p.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
		}
	})
	p.randMtx.Lock()
	defer p.randMtx.Unlock()
	return p.Rand.Intn(n)
}
