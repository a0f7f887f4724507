// Package snapshot implements the shared-snapshot (deep-link) binary
// wire format of spec.md §6: a self-delimited binary stream of
// messages, URL-safe base64 encoded for embedding in a link.
//
// Grounded on the teacher's internal/proxy/socks5_client.go
// ParseTargetAddress/WriteTargetAddress: both read a type/flag byte,
// then a length-prefixed field, with io.ReadFull and bounds checks at
// every step rather than trusting the declared length. This version
// reads a whole list of fixed-plus-length-prefixed records instead of
// one SOCKS5 address, and adds the version byte and count-prefix
// spec.md §6 requires.
package snapshot

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Kkordik/vuelink-mesh/internal/codec"
	"github.com/Kkordik/vuelink-mesh/internal/model"
)

// Version is the only wire format version this package understands.
const Version = 1

// MaxMessages is the wire format's count-byte ceiling.
const MaxMessages = 255

// ErrUnsupportedVersion is returned when the leading version byte of a
// snapshot isn't Version.
var ErrUnsupportedVersion = fmt.Errorf("snapshot: unsupported version")

// ErrTooManyMessages is returned when Encode is asked to encode more
// than MaxMessages messages.
var ErrTooManyMessages = fmt.Errorf("snapshot: more than %d messages", MaxMessages)

// Encode serializes msgs into the raw (pre-base64) v1 binary format.
func Encode(msgs []model.Message) ([]byte, error) {
	if len(msgs) > MaxMessages {
		return nil, ErrTooManyMessages
	}

	var buf bytes.Buffer
	buf.WriteByte(Version)
	buf.WriteByte(byte(len(msgs)))

	for _, msg := range msgs {
		content, err := codec.EncodeContent(msg)
		if err != nil {
			return nil, fmt.Errorf("snapshot: encode message content: %w", err)
		}
		if len(content) > 0xFFFF {
			return nil, fmt.Errorf("snapshot: content length %d exceeds wire limit", len(content))
		}

		buf.WriteByte(codec.FlagsByte(msg.Type, msg.Priority))
		if msg.Repeat {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}

		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(content)))
		buf.Write(lenBuf[:])
		buf.Write(content)
	}
	return buf.Bytes(), nil
}

// Decode parses the raw (pre-base64) v1 binary format back into
// messages. It rejects a version byte other than Version and
// bounds-checks every declared content length against the remaining
// bytes (spec.md §6), rather than trusting the stream.
func Decode(data []byte) ([]model.Message, error) {
	r := bytes.NewReader(data)

	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("snapshot: read header: %w", err)
	}
	if header[0] != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, header[0])
	}
	count := int(header[1])

	msgs := make([]model.Message, 0, count)
	for i := 0; i < count; i++ {
		var fixed [4]byte
		if _, err := io.ReadFull(r, fixed[:]); err != nil {
			return nil, fmt.Errorf("snapshot: read message %d header: %w", i, err)
		}

		msgType, priority := codec.ParseFlagsByte(fixed[0])
		shouldForward := fixed[1] != 0
		contentLen := int(binary.BigEndian.Uint16(fixed[2:4]))

		content := make([]byte, contentLen)
		if _, err := io.ReadFull(r, content); err != nil {
			return nil, fmt.Errorf("snapshot: read message %d content (%d bytes): %w", i, contentLen, err)
		}

		msg := codec.DecodeContent(msgType, priority, content)
		msg.Repeat = shouldForward
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// EncodeLink produces the URL-safe, unpadded base64 deep-link payload
// for msgs.
func EncodeLink(msgs []model.Message) (string, error) {
	raw, err := Encode(msgs)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeLink is EncodeLink's inverse.
func DecodeLink(link string) ([]model.Message, error) {
	raw, err := base64.RawURLEncoding.DecodeString(link)
	if err != nil {
		return nil, fmt.Errorf("snapshot: decode base64: %w", err)
	}
	return Decode(raw)
}
