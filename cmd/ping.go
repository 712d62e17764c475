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

var pingCount int

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Send PINGs and report round-trip times",
	Run: func(cmd *cobra.Command, args []string) {
		cli, _, err := connect()
		if err != nil {
			fatalf("failed to connect: %v", err)
		}
		defer cli.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		for i := 0; i < pingCount; i++ {
			start := time.Now()
			reply, err := cli.Do(ctx, "PING")
			if err != nil {
				fatalf("ping %d failed: %v", i+1, err)
			}
			fmt.Printf("%s (%s)\n", reply.String(), time.Since(start))
		}
	},
	Example: "# qclient ping --address 127.0.0.1:7777 --count 3",
}

func init() {
	pingCmd.Flags().IntVar(&pingCount, "count", 1, "Number of pings to send")
	rootCmd.AddCommand(pingCmd)
}
