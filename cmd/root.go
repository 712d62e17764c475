// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/packetd/qclient/client"
	"github.com/packetd/qclient/confengine"
	"github.com/packetd/qclient/config"
	"github.com/packetd/qclient/logger"
	"github.com/packetd/qclient/metrics"
	"github.com/packetd/qclient/server"
)

var rootCmd = &cobra.Command{
	Use:          "qclient",
	Short:        "Pipelined RESP/QuarkDB client toolbox",
	SilenceUsage: true,
}

var (
	configPath   string
	flagAddress  string
	flagAuth     string
	flagBackpres string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file path (optional)")
	rootCmd.PersistentFlags().StringVar(&flagAddress, "address", "", "Server address, host:port (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagAuth, "auth", "", "Credentials as user:password (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagBackpres, "backpressure", "", "Max in-flight requests, 0 for unbounded (overrides config)")
}

// loadOptions merges the config file (if given) with the persistent flag
// overrides. Flags are kept as strings and coerced via cast so an empty
// string cleanly means "not set".
func loadOptions() (config.Options, error) {
	opts := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return opts, err
		}
		opts = loaded
	}

	if flagAddress != "" {
		opts.Address = flagAddress
	}
	if flagBackpres != "" {
		opts.Backpressure = cast.ToInt(flagBackpres)
	}
	if flagAuth != "" {
		user, pass := splitAuth(flagAuth)
		opts.Handshake.Enabled = true
		opts.Handshake.Auth = map[string]any{"username": user, "password": pass}
	}
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

func splitAuth(s string) (user, pass string) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return s[:i], s[i+1:]
		}
	}
	return "", s
}

// connect builds the client (and, when enabled in config, the debug HTTP
// server) every subcommand shares.
func connect() (*client.Client, config.Options, error) {
	opts, err := loadOptions()
	if err != nil {
		return nil, opts, err
	}
	logger.SetOptions(opts.Logger)

	var collectors *metrics.Collectors
	if opts.Server.Enabled {
		collectors = metrics.New()
		startDebugServer(opts)
	}

	cli, err := client.FromConfig(opts, collectors)
	return cli, opts, err
}

func startDebugServer(opts config.Options) {
	content := fmt.Sprintf("server:\n  enabled: true\n  address: %s\n  pprof: %v\n", opts.Server.Address, opts.Server.Pprof)
	conf, err := confengine.LoadContent([]byte(content))
	if err != nil {
		logger.Warnf("cmd: debug server config: %v", err)
		return
	}
	srv, err := server.New(conf)
	if err != nil || srv == nil {
		logger.Warnf("cmd: debug server not started: %v", err)
		return
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.Warnf("cmd: debug server exited: %v", err)
		}
	}()
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
