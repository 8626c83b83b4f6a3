// ABOUTME: Tests for format negotiation, audio sources and the WebSocket session path
// ABOUTME: Runs a real server on httptest and drives it with a minimal client
package server

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Resonate-Protocol/rdpsnd-go/pkg/audio"
	"github.com/Resonate-Protocol/rdpsnd-go/pkg/protocol"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var opus48 = audio.Format{Tag: audio.TagOpus, Channels: 2, SampleRate: 48000, BitsPerSample: 16}

func TestDefaultFormats(t *testing.T) {
	source := audio.NewPCM(44100, 2, 16)
	formats := DefaultFormats(source)

	require.Len(t, formats, 5)
	assert.True(t, formats[0].Matches(source), "source layout is offered first")
	assert.True(t, formats[1].Matches(audio.NewPCM(48000, 2, 16)))
	assert.True(t, formats[2].Matches(audio.NewPCM(22050, 2, 16)))
	assert.True(t, formats[3].Matches(audio.NewPCM(11025, 1, 16)))
	assert.Equal(t, audio.TagOpus, formats[4].Tag)
}

func TestDefaultFormatsDropsUnsupportedSource(t *testing.T) {
	source := audio.NewPCM(44100, 6, 16)
	formats := DefaultFormats(source)

	require.Len(t, formats, 5)
	for _, f := range formats {
		assert.NotEqual(t, uint16(6), f.Channels)
	}
}

func TestNegotiateFormat(t *testing.T) {
	source := audio.NewPCM(44100, 2, 16)
	adpcm := audio.Format{Tag: audio.TagDVIADPCM, Channels: 2, SampleRate: 22050, BlockAlign: 2048, BitsPerSample: 4}

	tests := []struct {
		name    string
		formats []audio.Format
		index   uint16
		ok      bool
	}{
		{"exact source match", []audio.Format{audio.NewPCM(48000, 2, 16), source}, 1, true},
		{"first pcm", []audio.Format{adpcm, audio.NewPCM(22050, 1, 8), audio.NewPCM(48000, 2, 16)}, 1, true},
		{"opus only", []audio.Format{adpcm, opus48}, 1, true},
		{"nothing usable", []audio.Format{adpcm}, 0, false},
		{"empty", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index, ok := NegotiateFormat(tt.formats, source)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.index, index)
		})
	}
}

func TestTestToneSource(t *testing.T) {
	tone := NewTestToneSource(DefaultToneRate, DefaultToneChannels)
	samples := make([]int32, 882*2)

	n, err := tone.Read(samples)
	require.NoError(t, err)
	assert.Equal(t, len(samples), n)

	assert.Equal(t, int32(0), samples[0], "sine starts at zero")
	limit := int32(audio.Max24Bit / 2)
	for i := 0; i < n; i += 2 {
		assert.Equal(t, samples[i], samples[i+1], "channels carry the same tone")
		assert.LessOrEqual(t, samples[i], limit)
		assert.GreaterOrEqual(t, samples[i], -limit)
	}

	title, _, _ := tone.Metadata()
	assert.Contains(t, title, "440")
}

func TestNewAudioSource(t *testing.T) {
	t.Run("empty path is the test tone", func(t *testing.T) {
		source, err := NewAudioSource("")
		require.NoError(t, err)
		defer source.Close()
		assert.Equal(t, DefaultToneRate, source.SampleRate())
		assert.Equal(t, DefaultToneChannels, source.Channels())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewAudioSource(filepath.Join(t.TempDir(), "missing.mp3"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "audio.wav")
		require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o644))

		_, err := NewAudioSource(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported audio format")
	})
}

func TestInt16ToSamples(t *testing.T) {
	buf := []byte{0x00, 0x10, 0x00, 0xF0}
	samples := make([]int32, 2)

	n := int16ToSamples(buf, samples)
	require.Equal(t, 2, n)
	assert.Equal(t, audio.SampleFromInt16(0x1000), samples[0])
	assert.Equal(t, audio.SampleFromInt16(-0x1000), samples[1])
}

func TestTitleFromPath(t *testing.T) {
	assert.Equal(t, "song", titleFromPath("/music/song.flac"))
	assert.Equal(t, "a.b", titleFromPath("a.b.mp3"))
}

// startTestServer runs the channel handler and the engine without the
// listener, mDNS or TUI
func startTestServer(t *testing.T, config Config) (*Server, string) {
	t.Helper()

	s := New(config)
	require.NoError(t, s.prepare())

	httpServer := httptest.NewServer(s.mux)
	go s.audioEngine.Start()

	t.Cleanup(func() {
		s.Stop()
		s.audioEngine.Stop()
		httpServer.Close()
		s.wg.Wait()
		s.audioEngine.Close()
	})

	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + ChannelPath
	return s, url
}

func readMessage(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	return msg
}

func writePDU(t *testing.T, conn *websocket.Conn, pdu []byte, err error) {
	t.Helper()
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, pdu))
}

func connectClient(t *testing.T, url string, version uint16, formats []audio.Format) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	offer := readMessage(t, conn)
	hdr, err := protocol.ParseHeader(offer)
	require.NoError(t, err)
	require.Equal(t, protocol.MsgFormats, hdr.Type)

	server, err := protocol.ParseClientFormats(offer[protocol.HeaderSize:])
	require.NoError(t, err)
	assert.Equal(t, protocol.ChannelVersionMax, server.Version)
	assert.NotEmpty(t, server.Formats)

	var w protocol.Writer
	pdu, err := protocol.BuildClientFormats(&w, &protocol.ClientFormats{Version: version, Formats: formats})
	writePDU(t, conn, pdu, err)

	if version >= protocol.ChannelVersionWin7 {
		pdu, err := protocol.BuildQualityMode(&w, protocol.QualityHigh)
		writePDU(t, conn, pdu, err)
	}
	return conn
}

func onlyClient(t *testing.T, s *Server) *Client {
	t.Helper()
	var client *Client
	require.Eventually(t, func() bool {
		s.clientsMu.RLock()
		defer s.clientsMu.RUnlock()
		for _, c := range s.clients {
			client = c
		}
		return len(s.clients) == 1
	}, 5*time.Second, 10*time.Millisecond)
	return client
}

func TestServerStreamsLegacyWave(t *testing.T) {
	s, url := startTestServer(t, Config{Name: "test"})
	conn := connectClient(t, url, protocol.ChannelVersionWinXP, []audio.Format{audio.NewPCM(44100, 2, 16)})

	info := readMessage(t, conn)
	hdr, err := protocol.ParseHeader(info)
	require.NoError(t, err)
	require.Equal(t, protocol.MsgWave, hdr.Type)
	require.Len(t, info, 16)

	// 50ms at 44100 Hz stereo 16-bit, sent after the WaveInfo PDU
	data := readMessage(t, conn)
	assert.Len(t, data, 2205*4)
	assert.Equal(t, []byte{0, 0, 0, 0}, data[:4])
	assert.Equal(t, uint16(len(data)+8), hdr.BodySize)

	ts := uint16(info[4]) | uint16(info[5])<<8
	assert.Equal(t, uint16(0), uint16(info[6])|uint16(info[7])<<8, "format index")
	block := info[8]

	var w protocol.Writer
	pdu, err := protocol.BuildWaveConfirm(&w, protocol.WaveConfirm{Timestamp: ts, BlockNo: block})
	writePDU(t, conn, pdu, err)

	client := onlyClient(t, s)
	require.Eventually(t, func() bool {
		client.mu.RLock()
		defer client.mu.RUnlock()
		return client.Confirmations == 1 && client.LastConfirmed == block
	}, 5*time.Second, 10*time.Millisecond)

	client.mu.RLock()
	assert.Equal(t, "streaming", client.State)
	client.mu.RUnlock()

	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, httptest.NewRequest("GET", MetricsPath, nil))
	metricsText := rec.Body.String()
	assert.Contains(t, metricsText, `rdpsnd_negotiations_total{result="selected",tag="pcm"} 1`)
	assert.Contains(t, metricsText, "rdpsnd_active_sessions 1")
	assert.Contains(t, metricsText, "rdpsnd_wave_confirmations_total 1")
	assert.Contains(t, metricsText, "rdpsnd_waves_sent_total")
}

func TestServerStreamsWave2(t *testing.T) {
	_, url := startTestServer(t, Config{Name: "test", LatencyMs: 20})
	conn := connectClient(t, url, protocol.ChannelVersionWin8, []audio.Format{audio.NewPCM(44100, 2, 16)})

	msg := readMessage(t, conn)
	hdr, err := protocol.ParseHeader(msg)
	require.NoError(t, err)
	require.Equal(t, protocol.MsgWave2, hdr.Type)
	assert.Len(t, msg, protocol.Wave2HeaderSize+882*4)
}

func TestServerSetsVolumeOnActivation(t *testing.T) {
	_, url := startTestServer(t, Config{Name: "test", Volume: 100})
	conn := connectClient(t, url, protocol.ChannelVersionWinXPSP1, []audio.Format{audio.NewPCM(44100, 2, 16)})

	msg := readMessage(t, conn)
	assert.Equal(t, []byte{byte(protocol.MsgSetVolume), 0, 4, 0, 0xFF, 0xFF, 0xFF, 0xFF}, msg)
}

func TestServerUnsupportedClientStaysConnected(t *testing.T) {
	s, url := startTestServer(t, Config{Name: "test"})
	adpcm := audio.Format{Tag: audio.TagDVIADPCM, Channels: 2, SampleRate: 22050, BlockAlign: 2048, BitsPerSample: 4}
	connectClient(t, url, protocol.ChannelVersionWinXP, []audio.Format{adpcm})

	client := onlyClient(t, s)
	require.Eventually(t, func() bool {
		client.mu.RLock()
		defer client.mu.RUnlock()
		return client.State == "unsupported"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestServerStopSendsClose(t *testing.T) {
	s, url := startTestServer(t, Config{Name: "test"})
	conn := connectClient(t, url, protocol.ChannelVersionWinXP, []audio.Format{audio.NewPCM(44100, 2, 16)})

	// wait for streaming to begin
	msg := readMessage(t, conn)
	require.Equal(t, byte(protocol.MsgWave), msg[0])

	s.Stop()

	// data messages start with cleared padding, so only PDUs begin with a type
	for {
		msg := readMessage(t, conn)
		if len(msg) == protocol.HeaderSize && msg[0] == byte(protocol.MsgClose) {
			break
		}
	}

	require.Eventually(t, func() bool {
		s.clientsMu.RLock()
		defer s.clientsMu.RUnlock()
		return len(s.clients) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestServerClientDisconnect(t *testing.T) {
	s, url := startTestServer(t, Config{Name: "test"})
	conn := connectClient(t, url, protocol.ChannelVersionWinXP, []audio.Format{audio.NewPCM(44100, 2, 16)})
	onlyClient(t, s)

	// at least one audio PDU so the closed session contributes to the totals
	readMessage(t, conn)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		s.clientsMu.RLock()
		defer s.clientsMu.RUnlock()
		return len(s.clients) == 0
	}, 5*time.Second, 10*time.Millisecond)

	totals := s.totals()
	assert.NotZero(t, totals.WavesSent)
	assert.NotZero(t, totals.BytesSent)
}
