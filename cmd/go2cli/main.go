// Command go2cli connects to a Go2 over WebRTC, subscribes to one topic,
// and keeps the connection alive (heartbeat, network-status polling, fault
// reporting) until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethan/go2-webrtc-driver/pkg/config"
	"github.com/ethan/go2-webrtc-driver/pkg/correlator"
	"github.com/ethan/go2-webrtc-driver/pkg/faults"
	"github.com/ethan/go2-webrtc-driver/pkg/lidar"
	"github.com/ethan/go2-webrtc-driver/pkg/logger"
	"github.com/ethan/go2-webrtc-driver/pkg/session"
)

func main() {
	fs := flag.NewFlagSet("go2cli", flag.ExitOnError)
	logFlags := logger.RegisterFlags(fs)

	method := fs.String("method", "", "connection method: localap, localsta, remote (default: from .env or localap)")
	serial := fs.String("serial", "", "robot serial number (remote, or localsta without an ip)")
	ip := fs.String("ip", "", "robot ip address (localsta, overrides discovery)")
	envPath := fs.String("env", ".env", "path to a .env file with cloud credentials and defaults")
	topic := fs.String("topic", "rt/utlidar/switch", "topic to subscribe to after connecting")
	connectTimeout := fs.Duration("connect-timeout", 20*time.Second, "timeout for the initial connection")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Go2 WebRTC driver CLI\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		logger.PrintUsageExamples()
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
	logger.SetDefault(log)

	log.Info("starting go2cli", "log_config", logFlags.String())

	env, err := config.LoadEnv(*envPath)
	if err != nil {
		log.Warn("no .env file loaded, falling back to flags only", "path", *envPath, "error", err)
		env = &config.Env{}
	}

	conn, err := buildConnection(env, *method, *serial, *ip)
	if err != nil {
		log.Error("invalid connection configuration", "error", err)
		os.Exit(1)
	}

	decoder, err := lidar.New(lidar.LibVoxel, nil)
	if err != nil {
		log.Error("failed to build lidar decoder", "error", err)
		os.Exit(1)
	}

	sess := session.New(conn, decoder, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	connectCtx, connectCancel := context.WithTimeout(ctx, *connectTimeout)
	defer connectCancel()

	log.Info("connecting to go2", "method", conn.Method, "serial", conn.Serial, "ip", conn.IP)
	if err := sess.Connect(connectCtx); err != nil {
		log.Error("failed to connect", "error", err)
		os.Exit(1)
	}
	defer sess.Close()
	log.Info("connected")

	sess.OnFault(func(f faults.Fault) {
		log.Warn("robot fault", "source", f.SourceText, "code", f.CodeText, "time", f.Time)
	})

	if *topic != "" {
		err := sess.Channel.PubSub.Subscribe(*topic, func(e *correlator.Envelope) {
			log.Info("message received", "topic", *topic, "type", e.Type)
		})
		if err != nil {
			log.Error("failed to subscribe", "topic", *topic, "error", err)
		} else {
			log.Info("subscribed", "topic", *topic)
		}
	}

	log.Info("ready - press Ctrl+C to stop")
	<-ctx.Done()
	log.Info("shutting down")
}

// buildConnection resolves a config.Connection from .env defaults
// overridden by command-line flags.
func buildConnection(env *config.Env, methodFlag, serialFlag, ipFlag string) (*config.Connection, error) {
	methodStr := methodFlag
	if methodStr == "" {
		methodStr = env.Method
	}
	if methodStr == "" {
		methodStr = "localap"
	}
	method, err := config.ParseMethod(methodStr)
	if err != nil {
		return nil, err
	}

	serial := serialFlag
	if serial == "" {
		serial = env.Serial
	}
	ip := ipFlag
	if ip == "" {
		ip = env.IP
	}

	return config.New(config.Connection{
		Method:   method,
		Serial:   serial,
		IP:       ip,
		Username: env.Cloud.Email,
		Password: env.Cloud.Password,
	})
}
