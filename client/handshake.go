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
	"strings"

	"github.com/packetd/qclient/conn"
	"github.com/packetd/qclient/resp"
)

// AuthHandshake authenticates a fresh connection with a single
// AUTH <username> <password> exchange before any user request is written.
type AuthHandshake struct {
	username string
	password string
}

// NewAuthHandshake returns a handshake sending AUTH with the given
// credentials on every new connection.
func NewAuthHandshake(username, password string) *AuthHandshake {
	return &AuthHandshake{username: username, password: password}
}

// Restart implements conn.Handshake. A single-step handshake has no
// position to rewind.
func (h *AuthHandshake) Restart() {}

// ProvideHandshake implements conn.Handshake.
func (h *AuthHandshake) ProvideHandshake() resp.EncodedRequest {
	if h.username == "" {
		return resp.EncodeStrings("AUTH", h.password)
	}
	return resp.EncodeStrings("AUTH", h.username, h.password)
}

// ValidateResponse implements conn.Handshake: anything but +OK rejects
// the connection.
func (h *AuthHandshake) ValidateResponse(reply *resp.Reply) conn.HandshakeStatus {
	if reply != nil && reply.Kind == resp.KindStatus && strings.EqualFold(reply.Str, "OK") {
		return conn.HandshakeValidComplete
	}
	return conn.HandshakeInvalid
}
