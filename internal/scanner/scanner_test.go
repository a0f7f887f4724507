package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/Kkordik/vuelink-mesh/internal/adapter"
	"github.com/Kkordik/vuelink-mesh/internal/codec"
	"github.com/Kkordik/vuelink-mesh/internal/forward"
	"github.com/Kkordik/vuelink-mesh/internal/history"
	"github.com/Kkordik/vuelink-mesh/internal/model"
	"github.com/Kkordik/vuelink-mesh/internal/reassembly"
)

func newTestScanner(advertise forward.AdvertiseFunc) (*Scanner, *adapter.Medium) {
	medium := adapter.NewMedium()
	hist := history.New(history.NewMemoryKVStore(), history.DefaultCapacity, history.DefaultWindow)
	reasm := reassembly.New(200*time.Millisecond, 50*time.Millisecond)
	fwd := forward.New(advertise, 10*time.Millisecond)
	return New(model.DefaultManufacturerID, reasm, hist, fwd), medium
}

func emit(t *testing.T, from *adapter.LoopbackAdapter, msg model.Message) {
	t.Helper()
	parts, err := codec.Split(msg)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	for _, p := range parts {
		payload, err := codec.Encode(p)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if _, err := from.StartAdvertising(context.Background(), "peer-a", model.DefaultManufacturerID, payload, false); err != nil {
			t.Fatalf("StartAdvertising: %v", err)
		}
	}
}

func TestScanner_SinglePartDeliversAndForwards(t *testing.T) {
	var forwarded []model.Message
	s, medium := newTestScanner(func(msg model.Message, dwell time.Duration) error {
		forwarded = append(forwarded, msg)
		return nil
	})

	sender := adapter.NewLoopbackAdapter(medium, "peer-a", -40)
	receiver := adapter.NewLoopbackAdapter(medium, "peer-b", -40)
	if _, err := receiver.StartScanning(); err != nil {
		t.Fatalf("StartScanning: %v", err)
	}

	ch, cancel := s.Subscribe()
	defer cancel()

	msg := model.Message{Type: model.MessageGeneralText, Text: "short", Priority: model.PriorityUrgent}
	emit(t, sender, msg)

	for _, ev := range drain(receiver, 1) {
		s.HandleAdvertisement(ev)
	}

	select {
	case rm := <-ch:
		if rm.Message.Text != "short" {
			t.Fatalf("unexpected text %q", rm.Message.Text)
		}
		if !rm.WillForward {
			t.Fatalf("expected urgent message to be forwarded")
		}
	default:
		t.Fatalf("expected a published ReceivedMessage")
	}

	if len(forwarded) != 1 {
		t.Fatalf("expected exactly one rebroadcast, got %d", len(forwarded))
	}
}

func TestScanner_MultiPartReassemblesBeforePublishing(t *testing.T) {
	s, medium := newTestScanner(func(model.Message, time.Duration) error { return nil })

	sender := adapter.NewLoopbackAdapter(medium, "peer-a", -50)
	receiver := adapter.NewLoopbackAdapter(medium, "peer-b", -50)
	if _, err := receiver.StartScanning(); err != nil {
		t.Fatalf("StartScanning: %v", err)
	}

	ch, cancel := s.Subscribe()
	defer cancel()

	longText := ""
	for i := 0; i < 60; i++ {
		longText += "x"
	}
	msg := model.Message{Type: model.MessageGeneralText, Text: longText}
	emit(t, sender, msg)

	events := drain(receiver, 3)
	if len(events) < 2 {
		t.Fatalf("expected a multi-part message to produce multiple advertisements, got %d", len(events))
	}
	for _, ev := range events {
		s.HandleAdvertisement(ev)
	}

	select {
	case rm := <-ch:
		if rm.Message.Text != longText {
			t.Fatalf("reassembled text mismatch: got %d bytes, want %d", len(rm.Message.Text), len(longText))
		}
	case <-time.After(time.Second):
		t.Fatalf("expected reassembled message to be published")
	}
}

func TestScanner_IgnoresOtherManufacturerIDs(t *testing.T) {
	s, medium := newTestScanner(func(model.Message, time.Duration) error { return nil })
	sender := adapter.NewLoopbackAdapter(medium, "peer-a", -50)
	receiver := adapter.NewLoopbackAdapter(medium, "peer-b", -50)
	receiver.StartScanning()

	ch, cancel := s.Subscribe()
	defer cancel()

	payload, err := codec.Encode(model.Message{Type: model.MessageGeneralText, Text: "hi", PartNo: 1, TotalParts: 1})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	sender.StartAdvertising(context.Background(), "peer-a", 0x1234, payload, false)

	for _, ev := range drain(receiver, 1) {
		s.HandleAdvertisement(ev)
	}

	select {
	case rm := <-ch:
		t.Fatalf("expected non-matching manufacturer ID to be ignored, got %+v", rm)
	default:
	}
}

func drain(a *adapter.LoopbackAdapter, want int) []adapter.AdvertisementEvent {
	var events []adapter.AdvertisementEvent
	timeout := time.After(time.Second)
	for len(events) < want {
		select {
		case ev := <-a.Events():
			events = append(events, ev)
		case <-timeout:
			return events
		}
	}
	return events
}
