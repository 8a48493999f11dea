package logger

import (
	"flag"
	"fmt"
	"strings"
)

// Flags holds all logging-related command-line flags
type Flags struct {
	LogLevel        string
	LogFormat       string
	LogFile         string
	DebugSignaling  bool
	DebugDataChannel bool
	DebugLidar      bool
	DebugMedia      bool
	DebugHeartbeat  bool
	DebugAll        bool
}

// RegisterFlags registers logging flags with the given FlagSet
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}

	fs.StringVar(&f.LogLevel, "log-level", "info",
		"Log level: debug, info, warn, error")
	fs.StringVar(&f.LogLevel, "l", "info",
		"Log level (shorthand)")

	fs.StringVar(&f.LogFormat, "log-format", "console",
		"Log output format: console, json")

	fs.StringVar(&f.LogFile, "log-file", "",
		"Log output file path (default: stdout)")
	fs.StringVar(&f.LogFile, "o", "",
		"Log output file path (shorthand)")

	fs.BoolVar(&f.DebugSignaling, "debug-signaling", false,
		"Enable signaling handshake debugging (cloud/local SDP exchange)")
	fs.BoolVar(&f.DebugDataChannel, "debug-datachannel", false,
		"Enable data channel framing debugging (text/binary envelopes)")
	fs.BoolVar(&f.DebugLidar, "debug-lidar", false,
		"Enable LiDAR frame decode debugging")
	fs.BoolVar(&f.DebugMedia, "debug-media", false,
		"Enable audio/video track debugging")
	fs.BoolVar(&f.DebugHeartbeat, "debug-heartbeat", false,
		"Enable heartbeat and network-status debugging")
	fs.BoolVar(&f.DebugAll, "debug-all", false,
		"Enable all debug categories")

	return f
}

// ToConfig converts Flags to a logger Config
func (f *Flags) ToConfig() (*Config, error) {
	cfg := NewConfig()

	level, err := ParseLevel(f.LogLevel)
	if err != nil {
		return nil, err
	}
	cfg.Level = level

	format, err := ParseFormat(f.LogFormat)
	if err != nil {
		return nil, err
	}
	cfg.Format = format

	cfg.OutputFile = f.LogFile

	if f.DebugAll {
		cfg.EnableCategory(DebugAll)
		cfg.Level = LevelDebug
	} else {
		if f.DebugSignaling {
			cfg.EnableCategory(DebugSignaling)
			cfg.Level = LevelDebug
		}
		if f.DebugDataChannel {
			cfg.EnableCategory(DebugDataChannel)
			cfg.Level = LevelDebug
		}
		if f.DebugLidar {
			cfg.EnableCategory(DebugLidar)
			cfg.Level = LevelDebug
		}
		if f.DebugMedia {
			cfg.EnableCategory(DebugMedia)
			cfg.Level = LevelDebug
		}
		if f.DebugHeartbeat {
			cfg.EnableCategory(DebugHeartbeat)
			cfg.Level = LevelDebug
		}
	}

	return cfg, nil
}

// PrintUsageExamples prints usage examples for logging flags
func PrintUsageExamples() {
	examples := `
Logging Examples:

  Basic usage (INFO level, console format to stdout):
    ./go2cli

  Enable DEBUG level:
    ./go2cli --log-level debug
    ./go2cli -l debug

  Log to file:
    ./go2cli --log-file driver.log
    ./go2cli -o driver.log

  JSON format for structured logging:
    ./go2cli --log-format json -o driver.json

  Debug the signaling handshake only:
    ./go2cli --debug-signaling

  Debug LiDAR decoding only:
    ./go2cli --debug-lidar

  Debug multiple categories:
    ./go2cli --debug-signaling --debug-datachannel

  Debug everything:
    ./go2cli --debug-all -o debug.log
`
	fmt.Println(examples)
}

// String returns a string representation of enabled flags
func (f *Flags) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("level=%s", f.LogLevel))
	parts = append(parts, fmt.Sprintf("format=%s", f.LogFormat))

	if f.LogFile != "" {
		parts = append(parts, fmt.Sprintf("output=%s", f.LogFile))
	} else {
		parts = append(parts, "output=stdout")
	}

	var debugCategories []string
	if f.DebugAll {
		debugCategories = append(debugCategories, "all")
	} else {
		if f.DebugSignaling {
			debugCategories = append(debugCategories, "signaling")
		}
		if f.DebugDataChannel {
			debugCategories = append(debugCategories, "datachannel")
		}
		if f.DebugLidar {
			debugCategories = append(debugCategories, "lidar")
		}
		if f.DebugMedia {
			debugCategories = append(debugCategories, "media")
		}
		if f.DebugHeartbeat {
			debugCategories = append(debugCategories, "heartbeat")
		}
	}

	if len(debugCategories) > 0 {
		parts = append(parts, fmt.Sprintf("debug=[%s]", strings.Join(debugCategories, ",")))
	}

	return strings.Join(parts, " ")
}
