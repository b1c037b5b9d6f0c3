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

package main

import (
	"context"

	"github.com/relaygate/relaygate/gateway"
	"github.com/relaygate/relaygate/gateway/config"
	"github.com/relaygate/relaygate/pkg/private/prom"
	"github.com/relaygate/relaygate/private/app/launcher"
)

var globalCfg config.Config

func main() {
	application := launcher.Application{
		TOMLConfig: &globalCfg,
		ShortName:  "RelayGate Gateway",
		Main:       realMain,
	}
	application.Run()
}

func realMain(ctx context.Context) error {
	prom.ExportElementID(globalCfg.General.ID)
	g := &gateway.Gateway{
		Config: &globalCfg,
	}
	return g.Run(ctx)
}
