// Package main is the entry point for the transcoded server.
//
// transcoded accepts chunked video uploads, assembles them into staged
// sources, and transcodes them into standard renditions on a bounded
// worker pool, streaming progress to clients over Server-Sent Events.
package main

import (
	"os"

	"github.com/mediaspool/transcoded/cmd/transcoded/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
