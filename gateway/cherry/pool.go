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

const (
	// initialWeightFactor is the number of pool entries the top-ranked
	// candidate of the top tier receives.
	initialWeightFactor = 10
	// topTierRate and midTierRate are the (strict) success rate bounds of
	// the two weighted tiers.
	topTierRate = 0.95
	midTierRate = 0.85

	// MaxAppFailuresPerPeriod is the failure quota for the application
	// flow. Application pools have many redundant members, so a generous
	// quota keeps the pool from thinning out too eagerly.
	MaxAppFailuresPerPeriod = 15
	// MaxNodeFailuresPerPeriod is the failure quota for the node flow. A
	// session's node set is small and fixed, so failing nodes are shelved
	// quickly.
	MaxNodeFailuresPerPeriod = 3
)

// buildWeightedPool expands the ranked logs into a pool of duplicated
// candidate ids; a uniform draw over the pool then implements the
// selection bias. The weight factor is carried across the whole ranked
// sequence rather than reset per tier, so rank position compounds with
// quality tier: the best candidate of a tier always receives strictly
// more entries than later candidates of the same tier.
//
// Candidates with zero successes are admitted with weight one until their
// attempt count reaches maxFailures; past that they are shelved for the
// remainder of the hour bucket and do not appear in the pool at all. The
// second return value is the number of shelved candidates.
func buildWeightedPool(ranked []ServiceLog, maxFailures int) ([]string, int) {
	pool := make([]string, 0, len(ranked)*initialWeightFactor)
	weightFactor := initialWeightFactor
	var shelved int
	for _, sl := range ranked {
		switch {
		case sl.SuccessRate > topTierRate:
			for i := 0; i < weightFactor; i++ {
				pool = append(pool, sl.ID)
			}
			weightFactor -= 2
		case sl.SuccessRate > midTierRate:
			for i := 0; i < weightFactor; i++ {
				pool = append(pool, sl.ID)
			}
			if weightFactor -= 3; weightFactor <= 0 {
				weightFactor = 1
			}
		case sl.SuccessRate > 0:
			pool = append(pool, sl.ID)
		case sl.Attempts < maxFailures:
			pool = append(pool, sl.ID)
		default:
			shelved++
		}
	}
	return pool, shelved
}
