// Package main is the entry point for the esplayer application.
package main

import (
	"os"

	"github.com/jmylchreest/esplayer/cmd/esplayer/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
