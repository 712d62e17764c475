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
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/packetd/qclient/internal/sigs"
	"github.com/packetd/qclient/vhash"
)

var (
	hashSet   []string
	hashWatch bool
)

var hashCmd = &cobra.Command{
	Use:   "hash KEY [FIELD...]",
	Short: "Read, write, or watch a shared versioned hash",
	Long: "Without flags, prints the requested fields (or the whole hash) once the\n" +
		"replica has resilvered. --set field=value writes durable entries through\n" +
		"a transaction; --watch streams change notifications until interrupted.",
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cli, _, err := connect()
		if err != nil {
			fatalf("failed to connect: %v", err)
		}
		defer cli.Close()

		hash := cli.Hash(args[0], vhash.Options{})
		defer hash.Close()

		if len(hashSet) > 0 {
			batch := vhash.NewUpdateBatch()
			for _, kv := range hashSet {
				field, value, ok := strings.Cut(kv, "=")
				if !ok {
					fatalf("bad --set entry %q, expected field=value", kv)
				}
				batch.SetDurable(field, value)
			}
			reply, ok := <-hash.Set(batch)
			if !ok || reply == nil {
				fatalf("write failed: connection torn down")
			}
			fmt.Println(reply.String())
			return
		}

		if hashWatch {
			sub := hash.Subscribe(true)
			defer sub.Close()

			term := sigs.Terminate()
			for {
				select {
				case change := <-sub.Changes():
					fmt.Printf("rev=%d %s: %q -> %q\n", hash.CurrentRevision(), change.Key, change.Old, change.New)
				case <-term:
					return
				}
			}
		}

		// One-shot read: give the initial resilver a moment to land.
		waitForRevision(hash, 3*time.Second)
		fields := args[1:]
		if len(fields) == 0 {
			for field, value := range hash.GetAll() {
				fmt.Printf("%s: %s\n", field, value)
			}
			return
		}
		for _, field := range fields {
			value, ok := hash.Get(field)
			if !ok {
				fmt.Printf("%s: (not found)\n", field)
				continue
			}
			fmt.Printf("%s: %s\n", field, value)
		}
	},
	Example: "# qclient hash cluster-config --watch",
}

func waitForRevision(hash *vhash.Hash, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for hash.CurrentRevision() == 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func init() {
	hashCmd.Flags().StringSliceVar(&hashSet, "set", nil, "Durable writes as field=value")
	hashCmd.Flags().BoolVar(&hashWatch, "watch", false, "Stream change notifications")
	rootCmd.AddCommand(hashCmd)
}
