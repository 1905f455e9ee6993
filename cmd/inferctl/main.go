// Command inferctl is a client for OpenAI-compatible inference endpoints,
// typically a vLLM server reached through a kubectl port-forward. It sends
// chat and text completions, computes embeddings, lists models, runs batch
// prompt files, and reports locally recorded usage and history.
//
// Results go to stdout; diagnostics go to stderr via slog. Exit code is 0
// on success and 1 on any error, including a response with no choices.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/tsahiduek/ai-on-eks/internal/version"
)

const usageText = `inferctl talks to OpenAI-compatible inference endpoints.

Usage:

  inferctl <command> [flags]

Commands:

  chat      send a chat completion and print the reply
  complete  send a legacy text completion
  embed     compute an embedding for a text
  models    list models served by the configured endpoints
  batch     run a JSONL file of prompts concurrently
  history   show or search recorded conversations
  usage     report recorded token usage
  version   print version information

Run "inferctl <command> -h" for the flags of a command.
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage(os.Stderr)
		return 1
	}

	var err error
	switch cmd, rest := args[0], args[1:]; cmd {
	case "chat":
		err = runChat(rest)
	case "complete":
		err = runComplete(rest)
	case "embed":
		err = runEmbed(rest)
	case "models":
		err = runModels(rest)
	case "batch":
		err = runBatch(rest)
	case "history":
		err = runHistory(rest)
	case "usage":
		err = runUsage(rest)
	case "version":
		fmt.Println(version.String())
	case "help", "-h", "-help", "--help":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "inferctl: unknown command %q\n\n", cmd)
		printUsage(os.Stderr)
		return 1
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "inferctl:", err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, usageText)
}
