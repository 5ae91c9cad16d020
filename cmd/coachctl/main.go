package main

import (
	"os"

	"coachhire-ai/cmd/coachctl/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
