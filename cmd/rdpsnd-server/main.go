// ABOUTME: Entry point for the audio output server
// ABOUTME: Parses CLI flags, configures logging and runs the server
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Resonate-Protocol/rdpsnd-go/internal/server"
	"github.com/Resonate-Protocol/rdpsnd-go/internal/version"
	"github.com/sirupsen/logrus"
)

var (
	port      = flag.Int("port", 8927, "WebSocket server port")
	name      = flag.String("name", "", "Server friendly name (default: hostname-rdpsnd)")
	logFile   = flag.String("log-file", "rdpsnd-server.log", "Log file path")
	debug     = flag.Bool("debug", false, "Enable debug logging")
	noMDNS    = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	audioFile = flag.String("audio", "", "Audio file or HTTP MP3 URL to stream (MP3, FLAC). If not specified, plays test tone")
	latency   = flag.Int("latency", 50, "Audio PDU batch duration in milliseconds")
	volume    = flag.Int("volume", 0, "Client volume percent sent on activation (0 = leave unchanged)")
	useTUI    = flag.Bool("tui", false, "Show the interactive status display")
)

func main() {
	flag.Parse()

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		logrus.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	// The TUI owns the terminal; log only to the file while it runs
	if *useTUI {
		logrus.SetOutput(f)
	} else {
		logrus.SetOutput(io.MultiWriter(os.Stdout, f))
	}
	if *debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	serverName := *name
	if serverName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serverName = fmt.Sprintf("%s-rdpsnd", hostname)
	}

	logrus.WithFields(logrus.Fields{
		"name":    serverName,
		"port":    *port,
		"version": version.Version,
		"log":     *logFile,
	}).Infof("Starting %s", version.Product)

	srv := server.New(server.Config{
		Port:       *port,
		Name:       serverName,
		EnableMDNS: !*noMDNS,
		Debug:      *debug,
		UseTUI:     *useTUI,
		AudioFile:  *audioFile,
		LatencyMs:  *latency,
		Volume:     *volume,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logrus.WithField("signal", sig.String()).Info("Shutting down gracefully")
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		logrus.Fatalf("Server error: %v", err)
	}

	logrus.Info("Server stopped")
}
