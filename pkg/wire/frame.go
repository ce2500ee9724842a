// ABOUTME: Length-prefixed frame transport for the keep protocol.
// ABOUTME: 4-byte big-endian length header, strict size bounds, partial-read tolerant.

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxPacketSize is the largest frame payload accepted on either direction,
// enforced before writing and before reading a frame body.
const MaxPacketSize = 65536

var (
	// ErrFrameTooLarge indicates a payload or declared frame length over
	// MaxPacketSize. On the write path it is raised before any byte is
	// written; on the read path before the body is read.
	ErrFrameTooLarge = errors.New("frame exceeds max packet size")

	// ErrZeroFrame indicates a frame header declaring a zero-length body.
	ErrZeroFrame = errors.New("zero-length frame")

	// ErrConnectionClosed indicates the stream ended before a full frame
	// was collected.
	ErrConnectionClosed = errors.New("connection closed")
)

// WriteFrame writes payload prefixed with a 4-byte big-endian length.
// Oversize payloads fail with ErrFrameTooLarge before anything is written.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxPacketSize {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(payload), MaxPacketSize)
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	return nil
}

// ReadFrame reads one length-prefixed frame and returns its payload. It
// tolerates the header and body arriving in arbitrarily small chunks. A
// stream that ends mid-frame fails with ErrConnectionClosed reporting bytes
// received vs expected.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: partial frame header", ErrConnectionClosed)
		}
		return nil, err
	}

	length := binary.BigEndian.Uint32(header[:])
	if length == 0 {
		return nil, ErrZeroFrame
	}
	if length > MaxPacketSize {
		return nil, fmt.Errorf("%w: declared %d > %d", ErrFrameTooLarge, length, MaxPacketSize)
	}

	payload := make([]byte, length)
	n, err := io.ReadFull(r, payload)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrConnectionClosed, length, n)
		}
		return nil, err
	}
	return payload, nil
}

// WritePacket serializes p and writes it as one frame.
func WritePacket(w io.Writer, p *Packet) error {
	return WriteFrame(w, Marshal(p))
}

// ReadPacket reads one frame and parses it as a Packet.
func ReadPacket(r io.Reader) (*Packet, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	return Unmarshal(payload)
}
