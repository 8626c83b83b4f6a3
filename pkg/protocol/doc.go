// ABOUTME: Audio virtual channel wire protocol package
// ABOUTME: Defines PDU layouts, format records and the inbound framing state machine
// Package protocol implements the wire side of the server audio channel.
//
// Every PDU starts with a 4-byte header: message type, one pad byte and a
// little-endian body length. Builders write the header with a zero length
// and patch it once the body is complete, since variable records (format
// trailers, encoded audio) make the length unknown up front.
//
// Inbound bytes arrive in arbitrary chunks; Framer reassembles them into
// complete messages one PDU at a time.
//
// Example:
//
//	var w protocol.Writer
//	pdu, err := protocol.BuildServerFormats(&w, formats, lastBlock)
package protocol
