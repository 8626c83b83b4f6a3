// ABOUTME: Test client for the audio output server
// ABOUTME: Negotiates formats, confirms every audio PDU and reports throughput
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/Resonate-Protocol/rdpsnd-go/internal/discovery"
	"github.com/Resonate-Protocol/rdpsnd-go/pkg/audio"
	"github.com/Resonate-Protocol/rdpsnd-go/pkg/protocol"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var (
	serverAddr = flag.String("server", "", "Server address host:port (default: discover via mDNS)")
	path       = flag.String("path", "/rdpsnd", "Audio channel path")
	version    = flag.Uint("version", uint(protocol.ChannelVersionWin8), "Channel version to announce")
	duration   = flag.Duration("duration", 10*time.Second, "How long to receive audio")
	debug      = flag.Bool("debug", false, "Log every PDU")
)

// probe tracks one connection
type probe struct {
	conn   *websocket.Conn
	out    protocol.Writer
	waves  int
	bytes  int
	blocks map[uint8]int

	// legacy WAVE: the WaveInfo PDU is followed by a headerless data message
	pendingInfo *protocol.WaveHeader
}

func main() {
	flag.Parse()
	if *debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	addr, channelPath := *serverAddr, *path
	if addr == "" {
		found, err := discover(5 * time.Second)
		if err != nil {
			logrus.Fatalf("Discovery failed: %v", err)
		}
		addr = net.JoinHostPort(found.Host, strconv.Itoa(found.Port))
		if found.Path != "" {
			channelPath = found.Path
		}
	}

	url := fmt.Sprintf("ws://%s%s", addr, channelPath)
	logrus.WithField("url", url).Info("Connecting")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		logrus.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	p := &probe{conn: conn, blocks: make(map[uint8]int)}
	if err := p.run(uint16(*version), time.Now().Add(*duration)); err != nil {
		logrus.Fatalf("Probe failed: %v", err)
	}

	logrus.WithFields(logrus.Fields{
		"waves":  p.waves,
		"bytes":  p.bytes,
		"blocks": len(p.blocks),
	}).Info("Probe complete")
}

func discover(timeout time.Duration) (*discovery.ServerInfo, error) {
	mgr := discovery.NewManager(discovery.Config{})
	defer mgr.Stop()

	if err := mgr.Browse(); err != nil {
		return nil, err
	}

	select {
	case server := <-mgr.Servers():
		return server, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("no server found within %v", timeout)
	}
}

func (p *probe) run(version uint16, deadline time.Time) error {
	offer, err := p.readServerFormats()
	if err != nil {
		return err
	}

	for i, f := range offer.Formats {
		logrus.WithField("index", i).Infof("Server offers %s", f)
	}

	// accept everything the server offers
	pdu, err := protocol.BuildClientFormats(&p.out, &protocol.ClientFormats{
		Version: version,
		Formats: offer.Formats,
	})
	if err != nil {
		return err
	}
	if err := p.send(pdu); err != nil {
		return err
	}

	if version >= protocol.ChannelVersionWin7 {
		pdu, err := protocol.BuildQualityMode(&p.out, protocol.QualityHigh)
		if err != nil {
			return err
		}
		if err := p.send(pdu); err != nil {
			return err
		}
	}

	for time.Now().Before(deadline) {
		p.conn.SetReadDeadline(deadline)
		_, msg, err := p.conn.ReadMessage()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		done, err := p.handle(msg, offer.Formats)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return nil
}

func (p *probe) readServerFormats() (*protocol.ClientFormats, error) {
	_, msg, err := p.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read server formats: %w", err)
	}
	hdr, err := protocol.ParseHeader(msg)
	if err != nil {
		return nil, err
	}
	if hdr.Type != protocol.MsgFormats {
		return nil, fmt.Errorf("expected FORMATS, got %s", hdr.Type)
	}
	// the server offer shares the client FORMATS layout
	return protocol.ParseClientFormats(msg[protocol.HeaderSize:])
}

// handle processes one channel message and reports whether the server closed
func (p *probe) handle(msg []byte, formats []audio.Format) (bool, error) {
	if p.pendingInfo != nil {
		info := *p.pendingInfo
		p.pendingInfo = nil
		p.bytes += len(msg)
		return false, p.confirm(info, formats)
	}

	hdr, err := protocol.ParseHeader(msg)
	if err != nil {
		return false, err
	}
	body := msg[protocol.HeaderSize:]

	switch hdr.Type {
	case protocol.MsgWave:
		info, err := parseWaveInfo(body)
		if err != nil {
			return false, err
		}
		p.pendingInfo = &info
	case protocol.MsgWave2:
		info, err := parseWaveInfo(body)
		if err != nil {
			return false, err
		}
		p.bytes += len(body) - (protocol.Wave2HeaderSize - protocol.HeaderSize)
		return false, p.confirm(info, formats)
	case protocol.MsgSetVolume:
		if len(body) >= 4 {
			logrus.WithFields(logrus.Fields{
				"left":  binary.LittleEndian.Uint16(body[0:2]),
				"right": binary.LittleEndian.Uint16(body[2:4]),
			}).Info("Volume set")
		}
	case protocol.MsgClose:
		logrus.Info("Server closed the audio stream")
		return true, nil
	default:
		logrus.WithField("type", hdr.Type.String()).Warn("Unexpected PDU")
	}
	return false, nil
}

func parseWaveInfo(body []byte) (protocol.WaveHeader, error) {
	if len(body) < protocol.WaveInfoSize-protocol.HeaderSize {
		return protocol.WaveHeader{}, fmt.Errorf("%w: wave header", protocol.ErrMalformedInput)
	}
	return protocol.WaveHeader{
		Timestamp: binary.LittleEndian.Uint16(body[0:2]),
		FormatNo:  binary.LittleEndian.Uint16(body[2:4]),
		BlockNo:   body[4],
	}, nil
}

func (p *probe) confirm(info protocol.WaveHeader, formats []audio.Format) error {
	p.waves++
	p.blocks[info.BlockNo]++

	if *debug {
		format := "unknown"
		if int(info.FormatNo) < len(formats) {
			format = formats[info.FormatNo].String()
		}
		logrus.WithFields(logrus.Fields{
			"block":     info.BlockNo,
			"timestamp": info.Timestamp,
			"format":    format,
		}).Debug("Audio PDU")
	}

	pdu, err := protocol.BuildWaveConfirm(&p.out, protocol.WaveConfirm{
		Timestamp: info.Timestamp,
		BlockNo:   info.BlockNo,
	})
	if err != nil {
		return err
	}
	return p.send(pdu)
}

func (p *probe) send(pdu []byte) error {
	return p.conn.WriteMessage(websocket.BinaryMessage, pdu)
}
