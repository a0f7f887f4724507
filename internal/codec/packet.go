// Package codec implements the Vuelink on-air packet format: encoding
// and parsing a single advertisement payload, and splitting a logical
// message into the chunks that Advertiser will emit one per dwell
// period (spec.md §4.1).
//
// Grounded on the teacher's internal/protocol/fragment.go: the same
// "small fixed header + raw payload, split on byte boundaries" shape,
// adapted from a [PacketID:2][Total:1][Seq:1] DNS-tunnel header to the
// bit-packed two-byte Vuelink header.
package codec

import (
	"github.com/rs/zerolog/log"

	"github.com/Kkordik/vuelink-mesh/internal/model"
)

const (
	// MaxAdvertisementLen is the maximum encoded payload length
	// (2-byte header + up to 21 bytes of content).
	MaxAdvertisementLen = 23
	// MinAdvertisementLen is the minimum encoded payload length (just
	// the 2-byte header, zero content bytes).
	MinAdvertisementLen = 2
	// MaxContentLen is the maximum content length per advertisement.
	MaxContentLen = 21
	// MaxParts is the number of parts the 3-bit wire fields can
	// represent (1..7).
	MaxParts = 7
)

// Encode serializes a single packet's worth of a message: msg.PartNo
// and msg.TotalParts are taken as already resolved (Split fills them
// in for multi-part messages; single-packet types default to 1/1).
//
// If the encoded content would exceed MaxContentLen but fits within 2x
// that bound, it is truncated with a logged warning rather than
// failing the call, per spec.md §7's PayloadTooLarge disposition.
func Encode(msg model.Message) ([]byte, error) {
	if msg.PartNo < 1 || msg.PartNo > MaxParts || msg.TotalParts < 1 || msg.TotalParts > MaxParts || msg.PartNo > msg.TotalParts {
		return nil, ErrInvalidPartNumbering
	}

	content, err := encodeContent(msg)
	if err != nil {
		return nil, err
	}
	if len(content) == 0 && msg.Type != model.MessageFlightUpdate {
		return nil, ErrEmptyContent
	}

	if len(content) > MaxContentLen {
		if len(content) > MaxContentLen*2 {
			return nil, ErrPayloadTooLarge
		}
		log.Warn().Int("len", len(content)).Int("max", MaxContentLen).Msg("codec: truncating oversized content")
		content = content[:MaxContentLen]
	}

	packet := make([]byte, 2+len(content))
	packet[0] = partInfoByte(msg.PartNo, msg.TotalParts, msg.Repeat)
	packet[1] = flagsByte(msg.Type, msg.Priority)
	copy(packet[2:], content)
	return packet, nil
}

func partInfoByte(partNo, totalParts int, repeat bool) byte {
	b := byte(partNo&0x7) | byte(totalParts&0x7)<<3
	if repeat {
		b |= 1 << 6
	}
	return b
}

func flagsByte(msgType model.MessageType, priority model.Priority) byte {
	return byte(msgType&0x7) | byte(priority&0x7)<<3
}

// FlagsByte exports the packet flags byte encoding (msgType in bits
// 0..2, priority in bits 3..5) for reuse by internal/snapshot, whose
// wire format shares this byte layout (spec.md §6).
func FlagsByte(msgType model.MessageType, priority model.Priority) byte {
	return flagsByte(msgType, priority)
}

// ParseFlagsByte is FlagsByte's inverse.
func ParseFlagsByte(b byte) (model.MessageType, model.Priority) {
	return model.MessageType(b & 0x7), model.Priority((b >> 3) & 0x7)
}

// EncodeContent exports the per-type content encoding step of Encode,
// for reuse by internal/snapshot (spec.md §6: "content (same encoding
// as §4.1 per-type)").
func EncodeContent(msg model.Message) ([]byte, error) {
	return encodeContent(msg)
}

// DecodeContent exports the per-type content decoding step of Parse,
// for reuse by internal/snapshot. msgType and priority must already be
// known; the returned message has its remaining fields filled in.
func DecodeContent(msgType model.MessageType, priority model.Priority, content []byte) model.Message {
	msg := model.Message{Type: msgType, Priority: priority}
	decodeContent(&msg, content)
	return msg
}

// Parse decodes a received advertisement payload into a Message. It
// never panics: malformed input yields (model.Message{}, false), and
// the caller (Scanner) is expected to drop it silently without
// counting it (spec.md §7, MalformedAdvertisement).
func Parse(data []byte) (model.Message, bool) {
	if len(data) < MinAdvertisementLen || len(data) > MaxAdvertisementLen {
		return model.Message{}, false
	}

	partNo := int(data[0] & 0x7)
	totalParts := int((data[0] >> 3) & 0x7)
	repeat := data[0]&(1<<6) != 0

	if partNo == 0 {
		partNo = 1
	}
	if totalParts == 0 {
		totalParts = 1
	}
	if partNo > totalParts {
		partNo, totalParts = 1, 1
	}

	msgType := model.MessageType(data[1] & 0x7)
	priority := model.Priority((data[1] >> 3) & 0x7)

	content := data[2:]

	msg := model.Message{
		Type:       msgType,
		Repeat:     repeat,
		Priority:   priority,
		PartNo:     partNo,
		TotalParts: totalParts,
	}

	decodeContent(&msg, content)
	return msg, true
}

func encodeContent(msg model.Message) ([]byte, error) {
	switch msg.Type {
	case model.MessageGeneralBasic:
		return msg.Content, nil
	case model.MessageGeneralText:
		return []byte(msg.Text), nil
	case model.MessageFlightUpdate:
		out := make([]byte, 1+len(msg.FlightID))
		out[0] = byte(msg.UpdateType)
		copy(out[1:], msg.FlightID)
		return out, nil
	case model.MessageFlightUpdateGeneral:
		if len(msg.FlightID) > 255 {
			return nil, ErrPayloadTooLarge
		}
		out := make([]byte, 1+len(msg.FlightID)+len(msg.Text))
		out[0] = byte(len(msg.FlightID))
		copy(out[1:], msg.FlightID)
		copy(out[1+len(msg.FlightID):], msg.Text)
		return out, nil
	default:
		return msg.Content, nil
	}
}

// decodeContent fills in the type-specific payload fields of msg from
// the raw content bytes, defaulting to sensible zero values when a
// required field is missing (spec.md §4.1's parse-time tolerance) and
// accepting malformed UTF-8 at segment edges (spec.md §7,
// UTF8DecodeError) instead of rejecting the packet.
func decodeContent(msg *model.Message, content []byte) {
	switch msg.Type {
	case model.MessageGeneralBasic:
		msg.Content = append([]byte(nil), content...)
	case model.MessageGeneralText:
		msg.Text = lossyUTF8(content)
	case model.MessageFlightUpdate:
		if len(content) == 0 {
			msg.UpdateType = model.FlightUpdateGeneral
			msg.FlightID = ""
			return
		}
		msg.UpdateType = model.FlightUpdateType(content[0])
		msg.FlightID = lossyUTF8(content[1:])
	case model.MessageFlightUpdateGeneral:
		if len(content) == 0 {
			msg.FlightID = ""
			msg.Text = ""
			return
		}
		flen := int(content[0])
		rest := content[1:]
		if flen > len(rest) {
			flen = len(rest)
		}
		msg.FlightID = lossyUTF8(rest[:flen])
		msg.Text = lossyUTF8(rest[flen:])
	default:
		msg.Content = append([]byte(nil), content...)
	}
}

// lossyUTF8 converts bytes to a string without validating them:
// string(b) never fails and keeps invalid UTF-8 sequences byte for
// byte (no U+FFFD substitution), so a codepoint split across two
// fragments is whole again once their texts are concatenated.
func lossyUTF8(b []byte) string {
	return string(b)
}
