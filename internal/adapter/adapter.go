// Package adapter defines the BLE adapter surface Vuelink consumes
// (spec.md §6) and a loopback fake implementing it. Per spec.md §1/§2,
// the real platform-specific BLE stack adapter is an external
// collaborator out of this module's scope; this package only provides
// the Go interface the core programs against plus test/demo scaffolding
// standing in for a real one (SPEC_FULL.md §12).
package adapter

import (
	"context"
	"sync"
	"sync/atomic"
)

// RadioState mirrors the platform Bluetooth power/permission state
// stream (spec.md §6).
type RadioState int

const (
	StateUnknown RadioState = iota
	StatePoweredOn
	StatePoweredOff
	StateUnauthorized
	StateUnsupported
)

// ManufacturerRecord is one manufacturer-specific data record carried
// in an advertisement.
type ManufacturerRecord struct {
	ID    uint16
	Bytes []byte
}

// AdvertisementEvent is a single discovered advertisement (spec.md
// §6). RSSI is -127 ("not available") when the adapter can't report
// signal strength, per SPEC_FULL.md §14's open-question decision.
type AdvertisementEvent struct {
	DeviceName        string
	ManufacturerData  []ManufacturerRecord
	RSSI              int16
}

// RSSIUnavailable is the sentinel used when an adapter has no reading,
// replacing the source's fixed -70 placeholder (SPEC_FULL.md §14).
const RSSIUnavailable int16 = -127

// Adapter is the BLE stack surface Vuelink consumes (spec.md §6). A
// real implementation bridges to the host OS's Bluetooth APIs; it is
// not provided by this module.
type Adapter interface {
	StartAdvertising(ctx context.Context, name string, manufacturerID uint16, payload []byte, includeServiceUUID bool) (bool, error)
	StopAdvertising() (bool, error)
	IsAdvertising() bool

	StartScanning() (bool, error)
	StopScanning() (bool, error)
	IsScanning() bool

	Events() <-chan AdvertisementEvent
	States() <-chan RadioState

	RequestPermissions(ctx context.Context) (bool, error)
}

// Medium is a shared "air" that LoopbackAdapters attached to it can
// broadcast advertisements across, simulating multiple BLE radios in
// range of each other within a single process.
type Medium struct {
	mu       sync.Mutex
	adapters []*LoopbackAdapter
}

// NewMedium creates an empty shared medium.
func NewMedium() *Medium {
	return &Medium{}
}

func (m *Medium) attach(a *LoopbackAdapter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adapters = append(m.adapters, a)
}

func (m *Medium) broadcast(from *LoopbackAdapter, ev AdvertisementEvent) {
	m.mu.Lock()
	targets := make([]*LoopbackAdapter, 0, len(m.adapters))
	for _, a := range m.adapters {
		if a != from {
			targets = append(targets, a)
		}
	}
	m.mu.Unlock()

	for _, a := range targets {
		if !a.IsScanning() {
			continue
		}
		select {
		case a.events <- ev:
		default:
		}
	}
}

// LoopbackAdapter is an in-memory Adapter implementation used by the
// demo CLIs and tests. StartAdvertising delivers one AdvertisementEvent
// to every other scanning adapter attached to the same Medium —
// modeling "one sighting per dwell" rather than continuous periodic
// advertising, which is sufficient to exercise the Scanner/Reassembler/
// Dedup/Forwarder pipeline end to end.
type LoopbackAdapter struct {
	medium *Medium
	name   string
	rssi   int16

	advertising atomic.Bool
	scanning    atomic.Bool

	events chan AdvertisementEvent
	states chan RadioState
}

// NewLoopbackAdapter creates a LoopbackAdapter attached to medium,
// labelled name and reporting rssi on its own advertisements as
// observed by peers. The DeviceName peers see is the name passed to
// StartAdvertising, not this label.
func NewLoopbackAdapter(medium *Medium, name string, rssi int16) *LoopbackAdapter {
	a := &LoopbackAdapter{
		medium: medium,
		name:   name,
		rssi:   rssi,
		events: make(chan AdvertisementEvent, 64),
		states: make(chan RadioState, 4),
	}
	medium.attach(a)
	a.states <- StatePoweredOn
	return a
}

func (a *LoopbackAdapter) StartAdvertising(_ context.Context, name string, manufacturerID uint16, payload []byte, _ bool) (bool, error) {
	a.advertising.Store(true)
	ev := AdvertisementEvent{
		DeviceName: name,
		RSSI:       a.rssi,
		ManufacturerData: []ManufacturerRecord{
			{ID: manufacturerID, Bytes: append([]byte(nil), payload...)},
		},
	}
	a.medium.broadcast(a, ev)
	return true, nil
}

func (a *LoopbackAdapter) StopAdvertising() (bool, error) {
	a.advertising.Store(false)
	return true, nil
}

func (a *LoopbackAdapter) IsAdvertising() bool { return a.advertising.Load() }

func (a *LoopbackAdapter) StartScanning() (bool, error) {
	a.scanning.Store(true)
	return true, nil
}

func (a *LoopbackAdapter) StopScanning() (bool, error) {
	a.scanning.Store(false)
	return true, nil
}

func (a *LoopbackAdapter) IsScanning() bool { return a.scanning.Load() }

func (a *LoopbackAdapter) Events() <-chan AdvertisementEvent { return a.events }
func (a *LoopbackAdapter) States() <-chan RadioState          { return a.states }

func (a *LoopbackAdapter) RequestPermissions(_ context.Context) (bool, error) {
	return true, nil
}
