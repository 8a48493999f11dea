// Command go2discover scans the local network for Go2 robots and prints
// each discovered serial/IP pair. Standalone complement to go2cli's
// "-method localsta" auto-discovery, useful for finding a robot's serial
// or confirming it is reachable before a full connection attempt.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ethan/go2-webrtc-driver/pkg/discovery"
	"github.com/ethan/go2-webrtc-driver/pkg/logger"
)

func main() {
	fs := flag.NewFlagSet("go2discover", flag.ExitOnError)
	logFlags := logger.RegisterFlags(fs)
	scanTimeout := fs.Duration("timeout", 5*time.Second, "how long to listen for discovery replies")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Scan the LAN for Go2 robots and print their serial/IP pairs.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing flags: %v\n", err)
		os.Exit(1)
	}

	logConfig, err := logFlags.ToConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error configuring logger: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(logConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *scanTimeout+time.Second)
	defer cancel()

	fmt.Printf("scanning for %s...\n", *scanTimeout)
	found, err := discovery.Scan(ctx, *scanTimeout, log)
	if err != nil && len(found) == 0 {
		fmt.Fprintf(os.Stderr, "scan failed: %v\n", err)
		os.Exit(1)
	}

	if len(found) == 0 {
		fmt.Println("no robots found")
		return
	}

	fmt.Printf("found %d robot(s):\n", len(found))
	for serial, ip := range found {
		fmt.Printf("  %s -> %s\n", serial, ip)
	}
}
