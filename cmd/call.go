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

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var callJSON bool

var callCmd = &cobra.Command{
	Use:   "call COMMAND [ARG...]",
	Short: "Send one command and print its reply",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cli, _, err := connect()
		if err != nil {
			fatalf("failed to connect: %v", err)
		}
		defer cli.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		reply, err := cli.Do(ctx, args...)
		if err != nil {
			fatalf("command failed: %v", err)
		}

		if callJSON {
			out, err := reply.DebugJSON()
			if err != nil {
				fatalf("render reply: %v", err)
			}
			fmt.Println(string(out))
			return
		}
		fmt.Println(reply.String())
	},
	Example: "# qclient call SET greeting hello --address 127.0.0.1:7777",
}

func init() {
	callCmd.Flags().BoolVar(&callJSON, "json", false, "Print the full reply tree as JSON")
	rootCmd.AddCommand(callCmd)
}
