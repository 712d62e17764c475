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

// Package confengine wraps elastic/go-ucfg behind a small Config type so
// the rest of the module never touches ucfg directly: YAML in, struct
// tags (`config:"..."`) out.
package confengine

import (
	"fmt"

	"github.com/elastic/go-ucfg"
	"github.com/elastic/go-ucfg/yaml"
)

// Config wraps a *ucfg.Config with the handful of accessors this module
// actually needs.
type Config struct {
	conf *ucfg.Config
}

func New(conf *ucfg.Config) *Config {
	return &Config{conf: conf}
}

// Has reports whether key s exists in the document.
func (c *Config) Has(s string) bool {
	ok, err := c.conf.Has(s, -1)
	if err != nil {
		return false
	}
	return ok
}

// Child returns the sub-document rooted at s.
func (c *Config) Child(s string) (*Config, error) {
	content, err := c.conf.Child(s, -1)
	if err != nil {
		return nil, err
	}
	return &Config{conf: content}, nil
}

// Unpack decodes the whole document into to, honoring `config` tags.
func (c *Config) Unpack(to any) error {
	return c.conf.Unpack(to)
}

// UnpackChild decodes only the sub-document rooted at s into to.
func (c *Config) UnpackChild(s string, to any) error {
	content, err := c.conf.Child(s, -1)
	if err != nil {
		return err
	}
	return content.Unpack(to)
}

// Enabled reads the conventional `<s>.enabled` boolean, defaulting to
// false when the key is absent or not a bool.
func (c *Config) Enabled(s string) bool {
	ok, err := c.conf.Bool(fmt.Sprintf("%s.enabled", s), -1)
	if err != nil {
		return false
	}
	return ok
}

// LoadConfigPath parses the YAML file at path.
func LoadConfigPath(path string) (*Config, error) {
	config, err := yaml.NewConfigWithFile(path, ucfg.PathSep("."))
	if err != nil {
		return nil, err
	}
	return New(config), nil
}

// LoadContent parses an in-memory YAML document, used by cmd's
// flag-to-YAML rendering and by tests.
func LoadContent(b []byte) (*Config, error) {
	config, err := yaml.NewConfig(b, ucfg.PathSep("."))
	if err != nil {
		return nil, err
	}
	return New(config), nil
}
