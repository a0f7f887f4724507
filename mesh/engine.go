// Package mesh wires the Codec, Reassembler, History, Forwarder,
// Scanner Pipeline, and Advertiser Sequencer into the Host UI surface
// described in spec.md §6: advertise/cancelAdvertise, scan
// start/stop, a received-message subscription, forwarding on/off, and
// history list/clear/import.
package mesh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Kkordik/vuelink-mesh/internal/adapter"
	"github.com/Kkordik/vuelink-mesh/internal/advertiser"
	"github.com/Kkordik/vuelink-mesh/internal/forward"
	"github.com/Kkordik/vuelink-mesh/internal/history"
	"github.com/Kkordik/vuelink-mesh/internal/model"
	"github.com/Kkordik/vuelink-mesh/internal/reassembly"
	"github.com/Kkordik/vuelink-mesh/internal/scanner"
	"github.com/Kkordik/vuelink-mesh/internal/snapshot"
)

// Config holds the constants spec.md §6 names, with the documented
// defaults.
type Config struct {
	// ManufacturerID filters which advertisements the Scanner Pipeline
	// considers; default 0xFFFF (spec.md §6, testing value).
	ManufacturerID uint16
	// DeviceName is advertised with every packet; truncated to 8 bytes
	// if longer (spec.md §6). Default "VL".
	DeviceName string

	AdvertiseDwell time.Duration
	InterChunkGap  time.Duration

	FragmentTimeout time.Duration
	ReassemblyGCTick time.Duration

	HistoryCapacity int
	HistoryWindow   int
}

// DefaultConfig returns spec.md §6's documented constants.
func DefaultConfig() Config {
	return Config{
		ManufacturerID:   model.DefaultManufacturerID,
		DeviceName:       "VL",
		AdvertiseDwell:   advertiser.DefaultDwell,
		InterChunkGap:    advertiser.DefaultGap,
		FragmentTimeout:  60 * time.Second,
		ReassemblyGCTick: 30 * time.Second,
		HistoryCapacity:  history.DefaultCapacity,
		HistoryWindow:    history.DefaultWindow,
	}
}

func (c Config) deviceName() string {
	if len(c.DeviceName) <= 8 {
		return c.DeviceName
	}
	log.Warn().Str("name", c.DeviceName).Msg("mesh: device name truncated to 8 bytes")
	return c.DeviceName[:8]
}

// Engine is the running mesh node: one BLE Adapter driven by a
// Scanner Pipeline (inbound) and an Advertiser Sequencer (outbound),
// sharing a History and Forwarder.
type Engine struct {
	cfg     Config
	adapter adapter.Adapter

	hist      *history.History
	forwarder *forward.Forwarder
	reasm     *reassembly.Reassembler
	scan      *scanner.Scanner
	seq       *advertiser.Sequencer

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
	running bool
}

// New builds an Engine over a. store backs the persisted history;
// New does not load it — Start does, and returns any load error
// before going live.
func New(a adapter.Adapter, store history.KVStore, cfg Config) *Engine {
	e := &Engine{
		cfg:     cfg,
		adapter: a,
	}
	e.hist = history.New(store, cfg.HistoryCapacity, cfg.HistoryWindow)
	e.reasm = reassembly.New(cfg.FragmentTimeout, cfg.ReassemblyGCTick)
	e.seq = advertiser.New(a, cfg.AdvertiseDwell, cfg.InterChunkGap)
	e.forwarder = forward.New(e.rebroadcast, forward.DefaultDwell)
	e.scan = scanner.New(cfg.ManufacturerID, e.reasm, e.hist, e.forwarder)
	return e
}

func (e *Engine) rebroadcast(msg model.Message, dwell time.Duration) error {
	e.mu.Lock()
	ctx := e.ctx
	e.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	_, err := e.seq.Advertise(ctx, e.cfg.deviceName(), e.cfg.ManufacturerID, msg, dwell, nil)
	return err
}

// Start loads the persisted history and launches the Scanner
// Pipeline's event loop as a managed goroutine group (spec.md §10's
// errgroup-coordinated background loops). It returns once the group
// is running; call Wait to block until it exits (on ctx cancellation
// or a component error).
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("mesh: engine already started")
	}
	if err := e.hist.Load(); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("mesh: load history: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	e.ctx = groupCtx
	e.cancel = cancel
	e.group = group
	e.running = true
	e.mu.Unlock()

	group.Go(func() error {
		err := e.scan.Run(groupCtx, e.adapter)
		if err != nil && err != context.Canceled {
			return err
		}
		return nil
	})
	group.Go(func() error {
		return e.watchStates(groupCtx)
	})

	log.Info().Uint16("manufacturerId", e.cfg.ManufacturerID).Str("deviceName", e.cfg.deviceName()).Msg("mesh: engine started")
	return nil
}

func (e *Engine) watchStates(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case state, ok := <-e.adapter.States():
			if !ok {
				return nil
			}
			log.Info().Int("state", int(state)).Msg("mesh: radio state changed")
			if state == adapter.StateUnauthorized || state == adapter.StateUnsupported {
				log.Warn().Msg("mesh: radio unavailable, scan/advertise disabled until resolved")
			}
		}
	}
}

// Wait blocks until Start's goroutine group exits, returning its first
// error (nil on clean cancellation).
func (e *Engine) Wait() error {
	e.mu.Lock()
	group := e.group
	e.mu.Unlock()
	if group == nil {
		return fmt.Errorf("mesh: engine not started")
	}
	return group.Wait()
}

// Stop cancels the background loops, stops advertising/scanning, and
// persists history. It's safe to call even if Start failed partway.
func (e *Engine) Stop() error {
	e.mu.Lock()
	cancel := e.cancel
	e.running = false
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.seq.Cancel()
	e.adapter.StopAdvertising()
	e.adapter.StopScanning()
	return e.hist.Save()
}

// Advertise splits and emits msg over dwell periods (default
// cfg.AdvertiseDwell when dwell <= 0), suspending the caller until the
// sequence completes or is cancelled (spec.md §6).
func (e *Engine) Advertise(msg model.Message, dwell time.Duration, onComplete func(completed bool)) (bool, error) {
	e.mu.Lock()
	ctx := e.ctx
	e.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	return e.seq.Advertise(ctx, e.cfg.deviceName(), e.cfg.ManufacturerID, msg, dwell, onComplete)
}

// CancelAdvertise stops any in-flight Advertise sequence immediately.
func (e *Engine) CancelAdvertise() bool {
	return e.seq.Cancel()
}

// ScanStart begins discovery.
func (e *Engine) ScanStart() (bool, error) {
	return e.adapter.StartScanning()
}

// ScanStop halts discovery delivery.
func (e *Engine) ScanStop() (bool, error) {
	return e.adapter.StopScanning()
}

// Subscribe registers for the received-message stream (spec.md §6).
// The returned cancel func must be called once the subscriber is
// done.
func (e *Engine) Subscribe() (<-chan scanner.ReceivedMessage, func()) {
	return e.scan.Subscribe()
}

// SetForwardingEnabled toggles whether accepted messages are
// rebroadcast.
func (e *Engine) SetForwardingEnabled(enabled bool) {
	e.forwarder.SetEnabled(enabled)
}

// ForwardingEnabled reports the current forwarding toggle.
func (e *Engine) ForwardingEnabled() bool {
	return e.forwarder.Enabled()
}

// HistoryList returns the current history, oldest first.
func (e *Engine) HistoryList() []model.StoredMessage {
	return e.hist.List()
}

// HistoryClear wipes history in memory and in storage.
func (e *Engine) HistoryClear() error {
	return e.hist.Clear()
}

// ImportSharedSnapshot decodes a deep-link snapshot payload (spec.md
// §6's v1 binary format) and accepts each message into history,
// applying the same accept policy as a received message (duplicates
// are silently skipped). It returns the count of newly accepted
// messages. Imported messages are never forwarded — importing a
// snapshot only seeds local history.
func (e *Engine) ImportSharedSnapshot(data []byte) (int, error) {
	msgs, err := snapshot.Decode(data)
	if err != nil {
		return 0, fmt.Errorf("mesh: import shared snapshot: %w", err)
	}
	count := 0
	for _, msg := range msgs {
		if e.hist.Accept(msg) {
			count++
		}
	}
	return count, nil
}
