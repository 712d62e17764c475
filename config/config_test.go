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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qclient.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
address: 10.0.0.1:7777
backpressure: 128
transparent_unavailable: true
handshake:
  enabled: true
  auth:
    username: alice
    password: secret
logger:
  stdout: true
  level: warn
`)

	opts, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1:7777", opts.Address)
	assert.Equal(t, 128, opts.Backpressure)
	assert.True(t, opts.TransparentUnavailable)
	assert.Equal(t, "warn", opts.Logger.Level)

	auth, err := opts.Handshake.DecodeAuth()
	require.NoError(t, err)
	assert.Equal(t, "alice", auth.Username)
	assert.Equal(t, "secret", auth.Password)
}

func TestLoadKeepsDefaultsForUnsetFields(t *testing.T) {
	path := writeConfig(t, "backpressure: 16\n")

	opts, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, Default().Address, opts.Address)
	assert.Equal(t, 16, opts.Backpressure)
}

func TestValidateAccumulatesEveryFailure(t *testing.T) {
	opts := Options{
		Address:      "",
		Backpressure: -1,
	}

	err := opts.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address")
	assert.Contains(t, err.Error(), "backpressure")
}

func TestValidateOK(t *testing.T) {
	assert.NoError(t, Default().Validate())
}
