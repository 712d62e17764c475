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
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/packetd/qclient/internal/splitio"
	"github.com/packetd/qclient/resp"
)

var pipeFile string

var pipeCmd = &cobra.Command{
	Use:   "pipe",
	Short: "Pipeline a file of commands, one per line",
	Long: "Reads commands from --file (or stdin), stages them all without waiting,\n" +
		"then prints every reply in order. Blank lines and #-comments are skipped.",
	Run: func(cmd *cobra.Command, args []string) {
		content, err := readPipeInput()
		if err != nil {
			fatalf("read input: %v", err)
		}

		cli, _, err := connect()
		if err != nil {
			fatalf("failed to connect: %v", err)
		}
		defer cli.Close()

		ctx := context.Background()
		var pending []<-chan *resp.Reply

		reader := splitio.NewReader(content)
		for {
			line, eof := reader.ReadLine()
			if eof {
				break
			}
			line = splitio.TrimDelim(line)
			text := strings.TrimSpace(string(line))
			if text == "" || strings.HasPrefix(text, "#") {
				continue
			}
			pending = append(pending, cli.DoAsync(ctx, strings.Fields(text)...))
		}

		for i, ch := range pending {
			reply := <-ch
			if reply == nil {
				fatalf("command %d: connection torn down before reply", i+1)
			}
			fmt.Println(reply.String())
		}
	},
	Example: "# qclient pipe --file commands.txt",
}

func readPipeInput() ([]byte, error) {
	if pipeFile == "" || pipeFile == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(pipeFile)
}

func init() {
	pipeCmd.Flags().StringVar(&pipeFile, "file", "", "Command file, one command per line (default stdin)")
	rootCmd.AddCommand(pipeCmd)
}
