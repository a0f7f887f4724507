package codec

import (
	"errors"
	"strings"
	"testing"

	"github.com/Kkordik/vuelink-mesh/internal/model"
)

func TestEncodeParseRoundTrip_GeneralBasic(t *testing.T) {
	msg := model.Message{
		Type:       model.MessageGeneralBasic,
		Content:    []byte("Hello"),
		Priority:   model.PriorityMedium,
		PartNo:     1,
		TotalParts: 1,
	}
	packet, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(packet) != 7 {
		t.Fatalf("expected 7-byte packet, got %d", len(packet))
	}

	got, ok := Parse(packet)
	if !ok {
		t.Fatalf("Parse failed")
	}
	if string(got.Content) != "Hello" || got.Priority != model.PriorityMedium || got.PartNo != 1 || got.TotalParts != 1 {
		t.Fatalf("unexpected round trip: %+v", got)
	}
}

func TestSplit_GeneralText(t *testing.T) {
	text := strings.Repeat("A", 63)
	msg := model.Message{Type: model.MessageGeneralText, Text: text, Priority: model.PriorityMedium}

	parts, err := Split(msg)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(parts))
	}

	var combined strings.Builder
	for i, p := range parts {
		if p.PartNo != i+1 || p.TotalParts != 3 {
			t.Fatalf("part %d has wrong numbering: %+v", i, p)
		}
		packet, err := Encode(p)
		if err != nil {
			t.Fatalf("Encode part %d: %v", i, err)
		}
		if len(packet)-2 > MaxContentLen {
			t.Fatalf("part %d content too large", i)
		}
		decoded, ok := Parse(packet)
		if !ok {
			t.Fatalf("Parse part %d failed", i)
		}
		combined.WriteString(decoded.Text)
	}
	if combined.String() != text {
		t.Fatalf("reassembled text mismatch: got %d chars want %d", combined.Len(), len(text))
	}
}

func TestSplit_BoundaryExactlyOnePart(t *testing.T) {
	text := strings.Repeat("A", 21)
	parts, err := Split(model.Message{Type: model.MessageGeneralText, Text: text})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(parts) != 1 {
		t.Fatalf("expected 1 part for exactly 21 bytes, got %d", len(parts))
	}
}

func TestSplit_BoundaryTwoParts(t *testing.T) {
	text := strings.Repeat("A", 22)
	parts, err := Split(model.Message{Type: model.MessageGeneralText, Text: text})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts for 22 bytes, got %d", len(parts))
	}
}

func TestSplit_RefusesOverSevenParts(t *testing.T) {
	text := strings.Repeat("A", 21*8)
	_, err := Split(model.Message{Type: model.MessageGeneralText, Text: text})
	if !errors.Is(err, ErrInvalidPartNumbering) {
		t.Fatalf("expected ErrInvalidPartNumbering, got %v", err)
	}
}

func TestParse_RejectsOutOfBoundsLengths(t *testing.T) {
	if _, ok := Parse([]byte{0x01}); ok {
		t.Fatalf("expected Parse to reject a 1-byte payload")
	}
	oversized := make([]byte, 24)
	if _, ok := Parse(oversized); ok {
		t.Fatalf("expected Parse to reject a 24-byte payload")
	}
}

func TestParse_FlightUpdateDefaultsOnEmptyContent(t *testing.T) {
	packet := []byte{partInfoByte(1, 1, false), flagsByte(model.MessageFlightUpdate, model.PriorityLow)}
	got, ok := Parse(packet)
	if !ok {
		t.Fatalf("Parse failed")
	}
	if got.UpdateType != model.FlightUpdateGeneral || got.FlightID != "" {
		t.Fatalf("expected default update type/flightID, got %+v", got)
	}
}

func TestEncodeParse_FlightUpdateGeneral(t *testing.T) {
	msg := model.Message{
		Type:       model.MessageFlightUpdateGeneral,
		FlightID:   "FL1",
		Text:       "gate change B12",
		PartNo:     1,
		TotalParts: 1,
	}
	packet, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, ok := Parse(packet)
	if !ok {
		t.Fatalf("Parse failed")
	}
	if got.FlightID != "FL1" || got.Text != "gate change B12" {
		t.Fatalf("unexpected round trip: %+v", got)
	}
}

func TestSplit_FlightUpdateGeneralRepeatsFlightID(t *testing.T) {
	text := strings.Repeat("B", 40)
	msg := model.Message{Type: model.MessageFlightUpdateGeneral, FlightID: "FL99", Text: text}

	parts, err := Split(msg)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(parts) < 2 {
		t.Fatalf("expected multiple parts, got %d", len(parts))
	}
	for _, p := range parts {
		if p.FlightID != "FL99" {
			t.Fatalf("expected flightID to be repeated on every chunk, got %q", p.FlightID)
		}
	}
}

func TestEncode_InvalidPartNumbering(t *testing.T) {
	_, err := Encode(model.Message{Type: model.MessageGeneralBasic, Content: []byte("x"), PartNo: 3, TotalParts: 2})
	if !errors.Is(err, ErrInvalidPartNumbering) {
		t.Fatalf("expected ErrInvalidPartNumbering, got %v", err)
	}
}
