package adapter

import (
	"context"
	"testing"
)

func TestLoopbackAdapter_BroadcastsOnlyToScanningPeers(t *testing.T) {
	medium := NewMedium()
	sender := NewLoopbackAdapter(medium, "sender", -40)
	scanning := NewLoopbackAdapter(medium, "scanning", -40)
	idle := NewLoopbackAdapter(medium, "idle", -40)

	if _, err := scanning.StartScanning(); err != nil {
		t.Fatalf("StartScanning: %v", err)
	}

	payload := []byte{0x01, 0x02}
	if _, err := sender.StartAdvertising(context.Background(), "sender", 0xFFFF, payload, false); err != nil {
		t.Fatalf("StartAdvertising: %v", err)
	}

	select {
	case ev := <-scanning.Events():
		if len(ev.ManufacturerData) != 1 || ev.ManufacturerData[0].ID != 0xFFFF {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatalf("expected scanning peer to receive the advertisement")
	}

	select {
	case ev := <-idle.Events():
		t.Fatalf("expected non-scanning peer to receive nothing, got %+v", ev)
	default:
	}
}

func TestLoopbackAdapter_StateReportedOnCreation(t *testing.T) {
	medium := NewMedium()
	a := NewLoopbackAdapter(medium, "node", -60)

	select {
	case s := <-a.States():
		if s != StatePoweredOn {
			t.Fatalf("expected StatePoweredOn, got %v", s)
		}
	default:
		t.Fatalf("expected an initial state event")
	}
}

func TestLoopbackAdapter_AdvertisingAndScanningFlags(t *testing.T) {
	medium := NewMedium()
	a := NewLoopbackAdapter(medium, "node", -60)

	if a.IsAdvertising() || a.IsScanning() {
		t.Fatalf("expected both flags false initially")
	}
	a.StartAdvertising(context.Background(), "node", 0xFFFF, nil, false)
	if !a.IsAdvertising() {
		t.Fatalf("expected IsAdvertising true after StartAdvertising")
	}
	a.StopAdvertising()
	if a.IsAdvertising() {
		t.Fatalf("expected IsAdvertising false after StopAdvertising")
	}

	a.StartScanning()
	if !a.IsScanning() {
		t.Fatalf("expected IsScanning true after StartScanning")
	}
	a.StopScanning()
	if a.IsScanning() {
		t.Fatalf("expected IsScanning false after StopScanning")
	}
}
