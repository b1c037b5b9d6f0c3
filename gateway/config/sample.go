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

package config

const generalSample = `# The ID of the gateway instance. (required)
id = "gateway-1"
`

const pickerSample = `# Emit the full ranked candidate sequence on every selection, at debug
# level. (default false)
verbose = false
`

const storageSample = `# The quality store backend, "memory" or "etcd". (default "memory")
backend = "memory"

# The etcd cluster endpoints. Required for the etcd backend.
endpoints = []

# Timeout for the initial etcd connection attempt. (default 5s)
dial_timeout = "5s"

# Prefix prepended to all store keys.
prefix = ""
`

const metricsSample = `# The address the prometheus exporter listens on. If empty, metrics are
# not exported.
prometheus = "127.0.0.1:30452"
`

const apiSample = `# The address the management API listens on. If empty, the API is not
# exposed.
addr = "127.0.0.1:30451"
`
