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

package resp

import json "github.com/goccy/go-json"

// debugReply is the JSON-friendly projection of a Reply used by DebugJSON;
// Reply itself stays free of struct tags since it's on the hot path.
type debugReply struct {
	Kind    string        `json:"kind"`
	Str     string        `json:"str,omitempty"`
	Nil     bool          `json:"nil,omitempty"`
	Integer int64         `json:"integer,omitempty"`
	Array   []*debugReply `json:"array,omitempty"`
}

func toDebugReply(r *Reply) *debugReply {
	if r == nil {
		return nil
	}
	d := &debugReply{
		Kind:    r.Kind.String(),
		Str:     r.Str,
		Nil:     r.Nil,
		Integer: r.Integer,
	}
	for _, child := range r.Array {
		d.Array = append(d.Array, toDebugReply(child))
	}
	return d
}

// DebugJSON renders r as indented JSON, for the output of
// "qclient call --json".
func (r *Reply) DebugJSON() ([]byte, error) {
	return json.MarshalIndent(toDebugReply(r), "", "  ")
}
