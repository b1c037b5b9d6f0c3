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
	"encoding/json"
	"math"
	"net/http"

	"github.com/relaygate/relaygate/pkg/private/serrors"
)

// QualityRecord is a candidate's outcome history for one hour bucket, as
// stored. Records are created on the first outcome in a bucket and mutated
// in place by every subsequent outcome; they disappear via TTL only.
type QualityRecord struct {
	// Results maps an outcome code (HTTP-style status) to its occurrence
	// count in the bucket.
	Results map[int]int `json:"results"`
	// AverageSuccessLatency is the running mean of the elapsed time over
	// successful relays, rounded to 5 decimal digits. Only meaningful when
	// Results contains at least one success.
	AverageSuccessLatency float64 `json:"averageSuccessLatency"`
}

// decodeRecord parses a stored quality record.
func decodeRecord(raw []byte) (QualityRecord, error) {
	var rec QualityRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return QualityRecord{}, serrors.Wrap("decoding quality record", err)
	}
	return rec, nil
}

func (r QualityRecord) encode() ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, serrors.Wrap("encoding quality record", err)
	}
	return raw, nil
}

// attempts is the total number of outcomes observed in the bucket.
func (r QualityRecord) attempts() int {
	var total int
	for _, count := range r.Results {
		total += count
	}
	return total
}

func (r QualityRecord) successes() int {
	return r.Results[http.StatusOK]
}

// fold returns a copy of the record with one new outcome folded in. For a
// successful outcome the running mean is updated as
// ((total-1)*avg + elapsed) / total, where total is the attempt count
// after the increment. The divisor deliberately counts all outcomes,
// failures included; changing it to the success count would shift the
// selection bias for flaky candidates.
func (r QualityRecord) fold(elapsed float64, code int) QualityRecord {
	next := QualityRecord{
		Results:               make(map[int]int, len(r.Results)+1),
		AverageSuccessLatency: r.AverageSuccessLatency,
	}
	for c, count := range r.Results {
		next.Results[c] = count
	}
	next.Results[code]++
	if code == http.StatusOK {
		total := next.attempts()
		next.AverageSuccessLatency = round5(
			(float64(total-1)*r.AverageSuccessLatency + elapsed) / float64(total))
	}
	return next
}

// newRecord initializes a record from a candidate's first observed outcome
// in the bucket.
func newRecord(elapsed float64, code int) QualityRecord {
	rec := QualityRecord{Results: map[int]int{code: 1}}
	if code == http.StatusOK {
		rec.AverageSuccessLatency = round5(elapsed)
	}
	return rec
}

func round5(v float64) float64 {
	return math.Round(v*1e5) / 1e5
}
