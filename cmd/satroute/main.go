// Command satroute computes, persists and serves the per-step forwarding
// state of a satellite constellation.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
