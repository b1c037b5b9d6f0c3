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

import "sort"

// rankServiceLogs totally orders the logs by quality: success rate
// descending, then average success latency ascending (faster wins). Logs
// that are equal on both keys keep their input order.
func rankServiceLogs(logs []ServiceLog) {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].SuccessRate != logs[j].SuccessRate {
			return logs[i].SuccessRate > logs[j].SuccessRate
		}
		return logs[i].AverageSuccessLatency < logs[j].AverageSuccessLatency
	})
}
