// Command cot-client is a reference CoT streaming client.
//
// It connects to a TAK server over TCP, UDP or TLS, decodes the
// incoming CoT stream, tracks unit positions and sends position and
// chat traffic for the configured callsign.
//
// Usage:
//
//	cot-client [flags]
//
// Flags:
//
//	-config string     Configuration file path (YAML)
//	-server string     Server host
//	-port int          Server port (default 8087)
//	-proto string      Transport: tcp, udp, tls (default "tcp")
//	-callsign string   Callsign (default "GOTAK")
//	-team string       Team color (default "Cyan")
//	-log-level string  Log level: debug, info, warn, error (default "info")
//	-trace string      CBOR trace log file
//	-interactive       Enable interactive command mode
//
// Examples:
//
//	# Connect interactively to a local server
//	cot-client -server 192.168.1.10 -interactive
//
//	# TLS with legacy servers, full wire trace
//	cot-client -config client.yaml -trace trace.cbor
//
// Interactive Commands:
//
//	connect     - Connect to the configured server
//	disconnect  - Close the connection
//	position <lat> <lon> [hae] - Report own position
//	chat <room> <message...>   - Send a chat message
//	units       - List tracked units
//	track <uid> - Show position history for a unit
//	discover    - Browse for CoT servers on the LAN
//	status      - Show connection state
//	quit        - Exit the client
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/omnitak/cot-go/cmd/cot-client/interactive"
	"github.com/omnitak/cot-go/pkg/tak"
)

var (
	configFile  string
	serverHost  string
	serverPort  int
	protocol    string
	callsign    string
	team        string
	logLevel    string
	traceFile   string
	interactMod bool
)

func init() {
	flag.StringVar(&configFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&serverHost, "server", "", "Server host")
	flag.IntVar(&serverPort, "port", 0, "Server port")
	flag.StringVar(&protocol, "proto", "", "Transport: tcp, udp, tls")
	flag.StringVar(&callsign, "callsign", "", "Callsign")
	flag.StringVar(&team, "team", "", "Team color")
	flag.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&traceFile, "trace", "", "CBOR trace log file")
	flag.BoolVar(&interactMod, "interactive", false, "Enable interactive command mode")
}

func main() {
	flag.Parse()

	logger := setupLogging(logLevel)

	config, err := buildConfig()
	if err != nil {
		logger.Error("configuration error", "error", err)
		os.Exit(1)
	}

	logger.Info("CoT client starting",
		"callsign", config.Callsign,
		"server", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
		"protocol", config.Server.Protocol)

	client, err := tak.NewClient(config, logger)
	if err != nil {
		logger.Error("failed to create client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if interactMod {
		session, err := interactive.New(client)
		if err != nil {
			logger.Error("failed to create interactive session", "error", err)
			os.Exit(1)
		}
		// Route log output through readline so it prints above
		// the prompt instead of garbling the input line.
		logger = slog.New(slog.NewTextHandler(session.Stdout(), &slog.HandlerOptions{
			Level: parseLevel(logLevel),
		}))
		slog.SetDefault(logger)
		go session.Run(ctx, cancel)
	} else {
		if err := client.Connect(ctx); err != nil {
			logger.Error("connect failed", "error", err)
			os.Exit(1)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	client.Disconnect()
}

// buildConfig loads the config file when given and applies flag
// overrides on top.
func buildConfig() (tak.Config, error) {
	config := tak.DefaultConfig()

	if configFile != "" {
		loaded, err := tak.LoadConfig(configFile)
		if err != nil {
			return config, err
		}
		config = loaded
	}

	if serverHost != "" {
		config.Server.Host = serverHost
	}
	if serverPort != 0 {
		config.Server.Port = serverPort
	}
	if protocol != "" {
		config.Server.Protocol = protocol
	}
	if callsign != "" {
		config.Callsign = callsign
	}
	if team != "" {
		config.Team = team
	}
	if traceFile != "" {
		config.TraceFile = traceFile
	}
	if config.Callsign == "" {
		config.Callsign = "GOTAK"
	}

	return config, config.Validate()
}

func setupLogging(level string) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(level),
	}))
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
