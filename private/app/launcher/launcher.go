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

// Package launcher includes the shared application execution boilerplate
// of all relaygate servers.
package launcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/relaygate/relaygate/pkg/log"
	"github.com/relaygate/relaygate/pkg/private/serrors"
	libconfig "github.com/relaygate/relaygate/private/config"
)

// Configuration keys used by the launcher.
const (
	cfgConfigFile = "config"
)

// LoggingConfig is implemented by TOML configs that carry logging
// settings. The launcher sets the logging backend up from it before Main
// runs.
type LoggingConfig interface {
	Logging() log.Config
}

// Application models a relaygate server application.
type Application struct {
	// TOMLConfig holds the Go data structure for the application-specific
	// TOML configuration.
	TOMLConfig libconfig.Config

	// ShortName is the short name of the application. If empty, the
	// executable name is used.
	ShortName string

	// Main is the custom logic of the application. If nil, no custom logic
	// is executed (and only the setup/teardown harness runs). If Main
	// returns an error, the Run method will return a non-zero exit code.
	Main func(ctx context.Context) error

	// ErrorWriter specifies where error output should be printed. If nil,
	// os.Stderr is used.
	ErrorWriter io.Writer

	// cmd is the Cobra command for the application.
	cmd *cobra.Command

	// config contains the Viper configuration KV store.
	config *viper.Viper
}

// Run sets up the common server harness, and then passes control to the
// Main function (if one exists). Run will exit the application if it
// encounters a fatal error.
func (a *Application) Run() {
	if err := a.run(); err != nil {
		fmt.Fprintf(a.getErrorWriter(), "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func (a *Application) run() error {
	executable := filepath.Base(os.Args[0])
	shortName := a.getShortName(executable)

	a.cmd = newCommandTemplate(executable, shortName, a.TOMLConfig)
	a.cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return a.executeCommand(cmd.Context(), shortName)
	}
	a.config = viper.New()
	a.config.SetDefault(cfgConfigFile, "")
	if err := a.config.BindPFlags(a.cmd.Flags()); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return a.cmd.ExecuteContext(ctx)
}

func (a *Application) getShortName(executable string) string {
	if a.ShortName != "" {
		return a.ShortName
	}
	return executable
}

func (a *Application) getErrorWriter() io.Writer {
	if a.ErrorWriter != nil {
		return a.ErrorWriter
	}
	return os.Stderr
}

func (a *Application) executeCommand(ctx context.Context, shortName string) error {
	os.Setenv("TZ", "UTC")

	if err := libconfig.LoadFile(a.config.GetString(cfgConfigFile),
		a.TOMLConfig); err != nil {

		return serrors.Wrap("loading config", err,
			"file", a.config.GetString(cfgConfigFile))
	}
	a.TOMLConfig.InitDefaults()

	logCfg := log.Config{}
	if lc, ok := a.TOMLConfig.(LoggingConfig); ok {
		logCfg = lc.Logging()
	}
	if err := log.Setup(logCfg); err != nil {
		return serrors.Wrap("initializing logging", err)
	}
	defer log.Flush()
	defer log.HandlePanic()

	if err := a.TOMLConfig.Validate(); err != nil {
		return serrors.Wrap("validating config", err)
	}
	log.Info("Launched application", "short_name", shortName, "pid", os.Getpid())
	if a.Main == nil {
		return nil
	}
	return a.Main(ctx)
}

// newCommandTemplate returns a cobra command template for a relaygate
// server application.
func newCommandTemplate(executable, shortName string, cfg libconfig.Sampler) *cobra.Command {
	cmd := &cobra.Command{
		Use:           executable,
		Short:         shortName,
		Example:       fmt.Sprintf("  %s --config %s", executable, "config.toml"),
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
	}
	cmd.AddCommand(
		newSampleCmd(cfg),
		newVersionCmd(shortName),
	)
	cmd.Flags().String(cfgConfigFile, "", "Configuration file (required)")
	if err := cmd.MarkFlagRequired(cfgConfigFile); err != nil {
		panic(err)
	}
	return cmd
}

func newSampleCmd(cfg libconfig.Sampler) *cobra.Command {
	return &cobra.Command{
		Use:   "sample",
		Short: "Print a sample configuration file",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cfg.Sample(cmd.OutOrStdout())
		},
	}
}

func newVersionCmd(shortName string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", shortName)
		},
	}
}
