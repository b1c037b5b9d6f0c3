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

// ServiceLog is the derived per-candidate summary used during one
// selection call. It has no stored identity and is recomputed from the
// raw record on every selection.
type ServiceLog struct {
	// ID is the candidate identity, an application id or a node public key.
	ID string
	// Attempts is the total number of outcomes in the current hour bucket.
	Attempts int
	// SuccessRate is in [0, 1]. Candidates without any record are rated 1
	// so that untested candidates get explored.
	SuccessRate float64
	// AverageSuccessLatency is 0 unless at least one success was recorded.
	AverageSuccessLatency float64
}

// buildServiceLog derives the service log for one candidate. A nil record
// means no outcome was observed in the current bucket.
func buildServiceLog(id string, rec *QualityRecord) ServiceLog {
	if rec == nil {
		return ServiceLog{ID: id, SuccessRate: 1}
	}
	sl := ServiceLog{ID: id, Attempts: rec.attempts()}
	if successes := rec.successes(); successes > 0 && sl.Attempts > 0 {
		sl.SuccessRate = float64(successes) / float64(sl.Attempts)
		sl.AverageSuccessLatency = round5(rec.AverageSuccessLatency)
	}
	return sl
}
