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

// Package config loads and validates this module's host-facing options
// from a YAML document via confengine (an elastic/go-ucfg wrapper).
package config

import (
	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/packetd/qclient/confengine"
	"github.com/packetd/qclient/logger"
)

// HandshakeOptions configures the demo handshake provider cmd/ and
// client.FromConfig wire up by default. Auth is an arbitrary free-form map so
// hosts can carry whatever fields their own handshake command needs
// without this package knowing about them; DecodeAuth turns it into a
// concrete HandshakeAuthOptions on demand.
type HandshakeOptions struct {
	Enabled bool           `config:"enabled"`
	Auth    map[string]any `config:"auth"`
}

// HandshakeAuthOptions is the concrete shape HandshakeOptions.Auth decodes
// into for the bundled username/password AUTH handshake.
type HandshakeAuthOptions struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// DecodeAuth decodes h.Auth into a HandshakeAuthOptions via mapstructure.
func (h HandshakeOptions) DecodeAuth() (HandshakeAuthOptions, error) {
	var out HandshakeAuthOptions
	if h.Auth == nil {
		return out, nil
	}
	if err := mapstructure.Decode(h.Auth, &out); err != nil {
		return out, errors.Wrap(err, "config: decode handshake.auth")
	}
	return out, nil
}

// Options is this module's complete host-facing configuration surface.
type Options struct {
	Address                string           `config:"address"`
	Backpressure           int              `config:"backpressure"` // 0 means unbounded
	TransparentUnavailable bool             `config:"transparent_unavailable"`
	ExclusivePubSub        bool             `config:"exclusive_pubsub"`
	Handshake              HandshakeOptions `config:"handshake"`
	Logger                 logger.Options   `config:"logger"`
	Server                 ServerOptions    `config:"server"`
}

// ServerOptions configures the optional debug HTTP server (metrics,
// pprof), mirroring server.Config's own `config` tags one level up.
type ServerOptions struct {
	Enabled bool   `config:"enabled"`
	Address string `config:"address"`
	Pprof   bool   `config:"pprof"`
}

// Default returns an Options with sane zero-config defaults: unbounded
// backpressure, no handshake, stdout logging at info level.
func Default() Options {
	return Options{
		Address: "127.0.0.1:7777",
		Logger: logger.Options{
			Stdout: true,
			Level:  "info",
		},
	}
}

// Load reads and unpacks a YAML document at path into an Options, starting
// from Default() so unset fields keep their defaults.
func Load(path string) (Options, error) {
	conf, err := confengine.LoadConfigPath(path)
	if err != nil {
		return Options{}, errors.Wrap(err, "config: load")
	}

	opts := Default()
	if err := conf.Unpack(&opts); err != nil {
		return Options{}, errors.Wrap(err, "config: unpack")
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Validate accumulates every independent validation failure via
// go-multierror instead of stopping at the first one, so a host fixing a
// broken config file sees every problem in one pass.
func (o Options) Validate() error {
	var result *multierror.Error
	if o.Address == "" {
		result = multierror.Append(result, errors.New("config: address must not be empty"))
	}
	if o.Backpressure < 0 {
		result = multierror.Append(result, errors.New("config: backpressure must be >= 0"))
	}
	if o.Handshake.Enabled {
		if _, err := o.Handshake.DecodeAuth(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
