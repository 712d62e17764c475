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

import "github.com/packetd/qclient/pubsub"

// Listener receives classified pub/sub messages arriving out of band,
// either as RESP3 push frames or, in ExclusivePubSub state, as every reply
// on the connection.
type Listener interface {
	HandleIncomingMessage(msg pubsub.Message)
}
