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

package conn

import "github.com/packetd/qclient/resp"

// HandshakeStatus is the verdict a Handshake returns after inspecting one
// reply from the server.
type HandshakeStatus int

const (
	// HandshakeValidIncomplete means the reply looked correct, but more
	// handshake requests remain to be sent.
	HandshakeValidIncomplete HandshakeStatus = iota
	// HandshakeValidComplete means the reply looked correct and the
	// handshake is finished; the connection may enter Normal state.
	HandshakeValidComplete
	// HandshakeInvalid means the reply was wrong; the connection must be
	// dropped and retried from scratch.
	HandshakeInvalid
)

// Handshake drives whatever exchange must happen before a freshly
// connected socket is allowed to carry ordinary user requests — an AUTH
// command, a HELLO negotiating RESP3, a cluster redirect probe, or any
// combination staged one request at a time.
type Handshake interface {
	// Restart resets the handshake to its initial step. Called every time
	// a new underlying connection is established.
	Restart()
	// ProvideHandshake returns the next request to send.
	ProvideHandshake() resp.EncodedRequest
	// ValidateResponse inspects the reply to the most recently provided
	// request and reports how the handshake should proceed.
	ValidateResponse(reply *resp.Reply) HandshakeStatus
}
