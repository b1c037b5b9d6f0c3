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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord(t *testing.T) {
	testCases := map[string]struct {
		elapsed  float64
		code     int
		expected QualityRecord
	}{
		"success": {
			elapsed: 120.5,
			code:    200,
			expected: QualityRecord{
				Results:               map[int]int{200: 1},
				AverageSuccessLatency: 120.5,
			},
		},
		"failure": {
			elapsed: 120.5,
			code:    500,
			expected: QualityRecord{
				Results: map[int]int{500: 1},
			},
		},
	}
	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, newRecord(tc.elapsed, tc.code))
		})
	}
}

func TestFoldRunningAverage(t *testing.T) {
	rec := newRecord(100, 200)
	rec = rec.fold(300, 200)
	assert.Equal(t, 200.0, rec.AverageSuccessLatency)
	assert.Equal(t, map[int]int{200: 2}, rec.Results)
}

func TestFoldFailureKeepsAverage(t *testing.T) {
	rec := newRecord(100, 200)
	rec = rec.fold(999, 500)
	assert.Equal(t, 100.0, rec.AverageSuccessLatency)
	assert.Equal(t, map[int]int{200: 1, 500: 1}, rec.Results)
}

// The running mean divides by the total attempt count, failures included.
// A flaky candidate's success latency is diluted accordingly.
func TestFoldDividesByTotalAttempts(t *testing.T) {
	rec := QualityRecord{
		Results:               map[int]int{200: 1, 500: 8},
		AverageSuccessLatency: 100,
	}
	rec = rec.fold(300, 200)
	// (9*100 + 300) / 10
	assert.Equal(t, 120.0, rec.AverageSuccessLatency)
	assert.Equal(t, 10, rec.attempts())
}

func TestFoldRounding(t *testing.T) {
	rec := newRecord(100, 200)
	rec = rec.fold(100.0000301, 200)
	assert.Equal(t, 100.00002, rec.AverageSuccessLatency)
}

func TestFoldDoesNotMutateInput(t *testing.T) {
	rec := QualityRecord{Results: map[int]int{200: 1}, AverageSuccessLatency: 50}
	_ = rec.fold(100, 200)
	assert.Equal(t, map[int]int{200: 1}, rec.Results)
	assert.Equal(t, 50.0, rec.AverageSuccessLatency)
}

func TestRecordCodec(t *testing.T) {
	rec := QualityRecord{
		Results:               map[int]int{200: 19, 500: 1},
		AverageSuccessLatency: 120.12345,
	}
	raw, err := rec.encode()
	require.NoError(t, err)
	parsed, err := decodeRecord(raw)
	require.NoError(t, err)
	assert.Equal(t, rec, parsed)
}

func TestDecodeRecordMalformed(t *testing.T) {
	_, err := decodeRecord([]byte(`{"results": "nope"}`))
	assert.Error(t, err)
}
