// ABOUTME: TUI update helpers for server
// ABOUTME: Snapshots session state and pushes it to the TUI
package server

import (
	"sort"
	"time"
)

// updateTUI sends current server state to TUI
func (s *Server) updateTUI() {
	if s.tui == nil {
		return
	}
	s.tui.Update(s.status())
}

// status snapshots every session for display
func (s *Server) status() ServerStatus {
	s.clientsMu.RLock()
	clients := make([]ClientInfo, 0, len(s.clients))
	for _, client := range s.clients {
		client.mu.RLock()
		info := ClientInfo{
			Addr:          client.Addr,
			ID:            client.ID,
			Format:        client.Format,
			State:         client.State,
			LastConfirmed: client.LastConfirmed,
			Confirmations: client.Confirmations,
		}
		client.mu.RUnlock()

		stats := client.session.Stats()
		info.Version = client.session.ClientVersion()
		info.BlockNo = client.session.BlockNo()
		info.PDUsSent = stats.PDUsSent
		info.BytesSent = stats.BytesSent
		clients = append(clients, info)
	}
	s.clientsMu.RUnlock()

	sort.Slice(clients, func(i, j int) bool { return clients[i].Addr < clients[j].Addr })

	audioTitle := "Initializing..."
	if s.audioEngine != nil {
		title, artist, _ := s.audioEngine.source.Metadata()
		if artist != "" {
			audioTitle = artist + " - " + title
		} else {
			audioTitle = title
		}
	}

	formats := make([]string, len(s.formats))
	for i, f := range s.formats {
		formats[i] = f.String()
	}

	return ServerStatus{
		Name:       s.config.Name,
		Port:       s.config.Port,
		Uptime:     time.Since(s.clockStart),
		AudioTitle: audioTitle,
		Formats:    formats,
		Clients:    clients,
	}
}

// refreshTUI pushes block progress once a second until the server stops
func (s *Server) refreshTUI() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.updateTUI()
		case <-s.stopChan:
			return
		}
	}
}
