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

package pubsub

import "github.com/packetd/qclient/resp"

// Parse classifies reply as a pub/sub Message. ok is false whenever reply
// doesn't have the shape of any recognized pub/sub frame; that's not an
// error on its own, it's the caller's job to decide what an unclassifiable
// array means in context.
func Parse(reply *resp.Reply) (msg Message, ok bool) {
	if reply == nil {
		return Message{}, false
	}

	var baseIdx int
	switch reply.Kind {
	case resp.KindArray:
		baseIdx = 0

	case resp.KindPush:
		// Some servers wrap push frames with a literal "pubsub" marker as
		// the first element, shifting everything else right by one; others
		// lead with the keyword directly.
		if len(reply.Array) > 0 && matchString(reply.Array[0], "pubsub") {
			baseIdx = 1
		}

	default:
		return Message{}, false
	}

	if len(reply.Array) < baseIdx+3 {
		return Message{}, false
	}
	head := reply.Array[baseIdx]

	switch {
	case matchString(head, "message"):
		if len(reply.Array) != baseIdx+3 {
			return Message{}, false
		}
		channel, ok1 := extractString(reply.Array[baseIdx+1])
		payload, ok2 := extractString(reply.Array[baseIdx+2])
		if !ok1 || !ok2 {
			return Message{}, false
		}
		return Message{Kind: KindMessage, Channel: channel, Payload: payload}, true

	case matchString(head, "pmessage"):
		if len(reply.Array) != baseIdx+4 {
			return Message{}, false
		}
		pattern, ok1 := extractString(reply.Array[baseIdx+1])
		channel, ok2 := extractString(reply.Array[baseIdx+2])
		payload, ok3 := extractString(reply.Array[baseIdx+3])
		if !ok1 || !ok2 || !ok3 {
			return Message{}, false
		}
		return Message{Kind: KindPatternMessage, Pattern: pattern, Channel: channel, Payload: payload}, true

	case matchString(head, "subscribe"):
		return parseAck(reply, baseIdx, KindSubscribe, false)

	case matchString(head, "psubscribe"):
		return parseAck(reply, baseIdx, KindPatternSubscribe, true)

	case matchString(head, "unsubscribe"):
		return parseAck(reply, baseIdx, KindUnsubscribe, false)

	case matchString(head, "punsubscribe"):
		return parseAck(reply, baseIdx, KindPatternUnsubscribe, true)

	default:
		return Message{}, false
	}
}

// parseAck parses the common "<keyword> <channel-or-pattern> <count>"
// three-element shape shared by all four (un)subscribe acknowledgements.
func parseAck(reply *resp.Reply, baseIdx int, kind Kind, isPattern bool) (Message, bool) {
	if len(reply.Array) != baseIdx+3 {
		return Message{}, false
	}
	name, ok1 := extractString(reply.Array[baseIdx+1])
	count, ok2 := extractInteger(reply.Array[baseIdx+2])
	if !ok1 || !ok2 {
		return Message{}, false
	}

	msg := Message{Kind: kind, ActiveSubscriptions: count}
	if isPattern {
		msg.Pattern = name
	} else {
		msg.Channel = name
	}
	return msg, true
}

func matchString(r *resp.Reply, want string) bool {
	s, ok := extractString(r)
	return ok && s == want
}

func extractString(r *resp.Reply) (string, bool) {
	if r == nil || r.Nil {
		return "", false
	}
	if r.Kind != resp.KindBulk && r.Kind != resp.KindStatus {
		return "", false
	}
	return r.Str, true
}

func extractInteger(r *resp.Reply) (int64, bool) {
	if r == nil || r.Kind != resp.KindInteger {
		return 0, false
	}
	return r.Integer, true
}
