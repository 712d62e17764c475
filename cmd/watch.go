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

	"github.com/spf13/cobra"

	"github.com/packetd/qclient/internal/sigs"
	"github.com/packetd/qclient/pubsub"
)

var (
	watchChannels []string
	watchPatterns []string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Subscribe to channels/patterns and print deliveries",
	Run: func(cmd *cobra.Command, args []string) {
		if len(watchChannels) == 0 && len(watchPatterns) == 0 {
			fatalf("nothing to watch: pass --channel and/or --pattern")
		}

		cli, _, err := connect()
		if err != nil {
			fatalf("failed to connect: %v", err)
		}
		defer cli.Close()

		ctx := context.Background()
		deliveries := make(chan pubsub.Message, 128)

		forward := func(sub *pubsub.Subscription) {
			for msg := range sub.Messages() {
				deliveries <- msg
			}
		}
		for _, channel := range watchChannels {
			go forward(cli.Subscribe(ctx, channel))
		}
		for _, pattern := range watchPatterns {
			go forward(cli.PSubscribe(ctx, pattern))
		}

		term := sigs.Terminate()
		for {
			select {
			case msg := <-deliveries:
				printMessage(msg)
			case <-term:
				return
			}
		}
	},
	Example: "# qclient watch --channel news --pattern 'logs.*'",
}

func printMessage(msg pubsub.Message) {
	switch {
	case msg.Kind == pubsub.KindPatternMessage:
		fmt.Printf("[%s] %s %s: %s\n", msg.Kind, msg.Pattern, msg.Channel, msg.Payload)
	case msg.IsDelivery():
		fmt.Printf("[%s] %s: %s\n", msg.Kind, msg.Channel, msg.Payload)
	default:
		name := msg.Channel
		if name == "" {
			name = msg.Pattern
		}
		fmt.Printf("[%s] %s (active=%d)\n", msg.Kind, name, msg.ActiveSubscriptions)
	}
}

func init() {
	watchCmd.Flags().StringSliceVar(&watchChannels, "channel", nil, "Channels to subscribe to")
	watchCmd.Flags().StringSliceVar(&watchPatterns, "pattern", nil, "Patterns to psubscribe to")
	rootCmd.AddCommand(watchCmd)
}
