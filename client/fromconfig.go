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

package client

import (
	"github.com/packetd/qclient/config"
	"github.com/packetd/qclient/metrics"
)

// FromConfig builds a Client from a loaded config.Options, wiring up the
// bundled AUTH handshake when one is configured. collectors may be nil.
func FromConfig(opts config.Options, collectors *metrics.Collectors) (*Client, error) {
	copts := Options{
		Address:                opts.Address,
		Backpressure:           opts.Backpressure,
		TransparentUnavailable: opts.TransparentUnavailable,
		ExclusivePubSub:        opts.ExclusivePubSub,
		Metrics:                collectors,
	}

	if opts.Handshake.Enabled {
		auth, err := opts.Handshake.DecodeAuth()
		if err != nil {
			return nil, err
		}
		copts.Handshake = NewAuthHandshake(auth.Username, auth.Password)
	}

	return New(copts)
}
