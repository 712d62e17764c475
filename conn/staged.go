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

import (
	"time"

	"github.com/packetd/qclient/resp"
)

// Callback receives the reply to a staged request. A nil reply means the
// connection was torn down before an answer arrived (see ClearAllPending).
type Callback func(reply *resp.Reply)

// StagedRequest is one entry on the core's request queue: an already
// encoded command plus the bookkeeping needed to acknowledge it correctly.
// MultiSize is 0 for an ordinary request, or k > 0 when Encoded is a
// MULTI/.../EXEC block fusing k individual commands — in that case only
// the EXEC reply is ever handed to Callback.
type StagedRequest struct {
	Encoded   resp.EncodedRequest
	Callback  Callback
	MultiSize int
	Timestamp time.Time
}
