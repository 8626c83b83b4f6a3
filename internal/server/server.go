// ABOUTME: Audio output server accepting virtual channel connections
// ABOUTME: Runs one rdpsnd session per WebSocket connection and streams a shared source
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Resonate-Protocol/rdpsnd-go/internal/discovery"
	"github.com/Resonate-Protocol/rdpsnd-go/internal/metrics"
	"github.com/Resonate-Protocol/rdpsnd-go/internal/version"
	"github.com/Resonate-Protocol/rdpsnd-go/pkg/audio"
	"github.com/Resonate-Protocol/rdpsnd-go/pkg/rdpsnd"
	"github.com/Resonate-Protocol/rdpsnd-go/pkg/transport"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// ChannelPath is the HTTP path carrying the audio virtual channel
	ChannelPath = "/rdpsnd"

	// MetricsPath serves Prometheus metrics
	MetricsPath = "/metrics"
)

// Config holds server configuration
type Config struct {
	Port       int
	Name       string
	EnableMDNS bool
	Debug      bool
	UseTUI     bool
	AudioFile  string // Path or URL to stream (MP3, FLAC). Empty = test tone
	LatencyMs  int    // Audio PDU batch duration, 0 = session default
	Volume     int    // Percent sent to clients on activation, 0 = leave client volume alone

	// Formats offered to clients. Empty = DefaultFormats for the source.
	Formats []audio.Format
}

// Server represents the audio output server
type Server struct {
	config Config

	upgrader   websocket.Upgrader
	httpServer *http.Server
	mux        *http.ServeMux

	// Connected sessions; closedTotals accumulates stats of ended ones
	clients      map[string]*Client
	closedTotals metrics.Totals
	clientsMu    sync.RWMutex

	metrics *metrics.Metrics

	clockStart time.Time

	audioEngine  *AudioEngine
	sourceFormat audio.Format
	formats      []audio.Format

	mdnsManager *discovery.Manager
	tui         *ServerTUI

	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// Client is one connected audio session
type Client struct {
	ID      string
	Addr    string
	session *rdpsnd.Session
	started time.Time

	mu            sync.RWMutex
	State         string
	Format        string
	LastConfirmed uint8
	Confirmations uint64

	done     chan struct{}
	doneOnce sync.Once
}

func (c *Client) setState(state, format string) {
	c.mu.Lock()
	c.State = state
	if format != "" {
		c.Format = format
	}
	c.mu.Unlock()
}

func (c *Client) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

// New creates a new server instance
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		upgrader: websocket.Upgrader{
			// Served to trusted local networks; any origin is accepted
			CheckOrigin: func(r *http.Request) bool {
				if origin := r.Header.Get("Origin"); origin != "" {
					logrus.WithField("origin", origin).Debug("Accepting WebSocket from browser origin")
				}
				return true
			},
		},
		clients:    make(map[string]*Client),
		clockStart: time.Now(),
		stopChan:   make(chan struct{}),
	}
	s.metrics = metrics.NewMetrics(s.totals)
	s.mux.HandleFunc(ChannelPath, s.handleWebSocket)
	s.mux.Handle(MetricsPath, s.metrics.Handler())
	return s
}

// prepare opens the audio source and fixes the formats sessions use
func (s *Server) prepare() error {
	source, err := NewAudioSource(s.config.AudioFile)
	if err != nil {
		return fmt.Errorf("failed to open audio source: %w", err)
	}

	engine, err := NewAudioEngine(s, source)
	if err != nil {
		source.Close()
		return fmt.Errorf("failed to create audio engine: %w", err)
	}

	s.audioEngine = engine
	s.sourceFormat = engine.Format()
	s.formats = s.config.Formats
	if len(s.formats) == 0 {
		s.formats = DefaultFormats(s.sourceFormat)
	}
	return nil
}

// Start runs the server until Stop is called, the TUI quits or the
// listener fails
func (s *Server) Start() error {
	if s.config.UseTUI {
		s.tui = NewServerTUI(s.config.Name, s.config.Port)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.tui.Start(); err != nil {
				logrus.WithError(err).Error("TUI failed")
			}
		}()

		// Give TUI time to initialize
		time.Sleep(100 * time.Millisecond)
	}

	logrus.WithField("name", s.config.Name).Info("Server starting")

	if err := s.prepare(); err != nil {
		if s.tui != nil {
			s.tui.Stop()
		}
		return err
	}
	s.updateTUI()
	if s.tui != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.refreshTUI()
		}()
	}

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
			Path:        ChannelPath,
			Version:     version.String(),
		})

		if err := s.mdnsManager.Advertise(); err != nil {
			logrus.WithError(err).Warn("Failed to start mDNS advertisement")
		} else {
			logrus.Info("mDNS advertisement started")
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.audioEngine.Start()
	}()

	addr := fmt.Sprintf(":%d", s.config.Port)
	logrus.WithField("addr", addr).Info("Audio channel listening")

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	var serverErr error
	var tuiQuitChan <-chan struct{}
	if s.tui != nil {
		tuiQuitChan = s.tui.QuitChan()
	}

	select {
	case <-s.stopChan:
		logrus.Info("Server shutting down")
	case <-tuiQuitChan:
		logrus.Info("TUI quit requested, shutting down")
		s.Stop()
	case err := <-errChan:
		logrus.WithError(err).Error("HTTP server error")
		serverErr = err
		s.Stop()
	}

	// Reject new connections
	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	if s.tui != nil {
		s.tui.Stop()
	}

	s.audioEngine.Stop()

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("HTTP server shutdown error")
	}

	s.wg.Wait()
	s.audioEngine.Close()
	logrus.Info("Server stopped cleanly")

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// handleWebSocket upgrades a connection and serves one session on it
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShutdown {
		s.shutdownMu.RUnlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.shutdownMu.RUnlock()
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("WebSocket upgrade error")
		return
	}

	logrus.WithField("remote", r.RemoteAddr).Info("New audio channel connection")
	s.handleConnection(transport.NewWebSocketChannel(conn), r.RemoteAddr)
}

// handleConnection runs a session until the channel fails or the server stops
func (s *Server) handleConnection(ch transport.Channel, remote string) {
	client := &Client{
		Addr:    remote,
		State:   "negotiating",
		started: time.Now(),
		done:    make(chan struct{}),
	}

	session, err := rdpsnd.NewSession(rdpsnd.Config{
		ServerFormats: s.formats,
		SourceFormat:  &s.sourceFormat,
		LatencyMs:     s.config.LatencyMs,
		Opener:        transport.Static(ch),
		Handler:       s.sessionHandler(client),
		Logger:        logrus.WithField("remote", remote),
	})
	if err != nil {
		logrus.WithError(err).Error("Failed to create session")
		ch.Close()
		return
	}
	client.ID = session.ID()
	client.session = session

	if err := session.Start(context.Background()); err != nil {
		logrus.WithError(err).WithField("remote", remote).Error("Failed to start session")
		ch.Close()
		return
	}

	s.clientsMu.Lock()
	s.clients[client.ID] = client
	s.clientsMu.Unlock()
	s.metrics.RecordSessionStarted()
	s.updateTUI()

	defer func() {
		s.audioEngine.RemoveClient(client)

		stats := session.Stats()
		s.clientsMu.Lock()
		delete(s.clients, client.ID)
		s.closedTotals = addStats(s.closedTotals, stats)
		s.clientsMu.Unlock()
		s.metrics.RecordSessionEnded(time.Since(client.started).Seconds())

		logrus.WithField("session", client.ID).Info("Client disconnected")
		s.updateTUI()
	}()

	select {
	case <-client.done:
	case <-s.stopChan:
		s.audioEngine.RemoveClient(client)
		if err := session.Close(); err != nil {
			logrus.WithError(err).WithField("session", client.ID).Debug("Close on shutdown failed")
		}
	}

	if err := session.Stop(); err != nil {
		logrus.WithError(err).WithField("session", client.ID).Debug("Session stop error")
	}
}

// sessionHandler wires session events to the client record and the engine
func (s *Server) sessionHandler(client *Client) rdpsnd.Handler {
	return rdpsnd.HandlerFuncs{
		OnActivated: func(session *rdpsnd.Session) {
			formats := session.ClientFormats()
			index, ok := NegotiateFormat(formats, s.sourceFormat)
			if !ok {
				logrus.WithField("session", session.ID()).Warn("Client offers no usable audio format")
				s.metrics.RecordNegotiation(metrics.ResultUnsupported, "")
				client.setState("unsupported", "")
				s.updateTUI()
				return
			}

			if err := session.SelectFormat(index); err != nil {
				logrus.WithError(err).WithField("session", session.ID()).Error("Failed to select format")
				s.metrics.RecordNegotiation(metrics.ResultError, audio.TagName(formats[index].Tag))
				client.setState("error", "")
				s.updateTUI()
				return
			}

			if s.config.Volume > 0 {
				level := uint16(min(s.config.Volume, 100) * 0xFFFF / 100)
				if err := session.SetVolume(level, level); err != nil {
					logrus.WithError(err).Warn("Failed to set client volume")
				}
			}

			s.metrics.RecordNegotiation(metrics.ResultSelected, audio.TagName(formats[index].Tag))
			client.setState("streaming", formats[index].String())
			s.audioEngine.AddClient(client)
			s.updateTUI()
		},
		OnConfirmBlock: func(session *rdpsnd.Session, blockNo uint8, timestamp uint16) {
			s.metrics.RecordConfirmation()
			client.mu.Lock()
			client.LastConfirmed = blockNo
			client.Confirmations++
			client.mu.Unlock()

			if s.config.Debug {
				logrus.WithFields(logrus.Fields{
					"session":   session.ID(),
					"block":     blockNo,
					"timestamp": timestamp,
				}).Debug("Block confirmed")
			}
		},
		OnChannelError: func(session *rdpsnd.Session, err error) {
			logrus.WithError(err).WithField("session", session.ID()).Info("Audio channel closed")
			client.setState("closed", "")
			client.finish()
		},
	}
}

// totals sums the stats of closed and live sessions for the metrics scrape
func (s *Server) totals() metrics.Totals {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	t := s.closedTotals
	for _, client := range s.clients {
		t = addStats(t, client.session.Stats())
	}
	return t
}

func addStats(t metrics.Totals, stats rdpsnd.Stats) metrics.Totals {
	t.PDUsSent += stats.PDUsSent
	t.BytesSent += stats.BytesSent
	t.WavesSent += stats.WavesSent
	t.DroppedFrames += stats.DroppedFrames
	return t
}

// clockMillis returns the server clock in milliseconds
func (s *Server) clockMillis() int64 {
	return time.Since(s.clockStart).Milliseconds()
}
