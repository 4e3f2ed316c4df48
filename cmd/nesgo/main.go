// Package main implements the nesgo NES emulator executable.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"nesgo/internal/bus"
	"nesgo/internal/cartridge"
	"nesgo/internal/host"
	"nesgo/internal/version"
)

func main() {
	var (
		romFile = flag.String("rom", "", "Path to NES ROM file (required)")
		debug   = flag.Bool("debug", false, "Enable execution-log debugging")
		scale   = flag.Int("scale", 3, "Window scale factor")
		showVer = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVer {
		version.PrintBuildInfo()
		os.Exit(0)
	}

	if *romFile == "" {
		fmt.Fprintln(os.Stderr, "nesgo - Go NES Emulator")
		fmt.Fprintln(os.Stderr, "\nUSAGE:\n  nesgo -rom <file> [-scale N] [-debug]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cart, err := cartridge.LoadFromFile(*romFile)
	if err != nil {
		log.Fatalf("failed to load ROM %q: %v", *romFile, err)
	}

	nes := bus.New()
	nes.LoadCartridge(cart)

	if *debug {
		nes.EnableExecutionLogging()
	}

	game := host.NewGame(nes)
	if err := host.Run(game, fmt.Sprintf("nesgo - %s", *romFile), *scale); err != nil {
		log.Fatalf("emulator exited: %v", err)
	}
}
