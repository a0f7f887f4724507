// Package advertiser implements the Advertiser Sequencer of spec.md
// §4.6: pacing a logical message's split chunks onto the BLE adapter,
// one dwell period at a time, with a small inter-chunk gap and an
// idempotent cancel.
//
// Grounded on the teacher's internal/protocol/dns_conn.go TX engine
// (paced, queued transmission with a cancellable worker loop) and
// internal/server/virtual_conn.go's queue-bridging shape; adapted from
// a free-running background worker pulling off a channel to a
// single-flight paced sequence that a caller awaits directly, since
// spec.md §5 requires advertise() to suspend the caller for the
// duration of the sequence rather than fire-and-forget it.
package advertiser

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Kkordik/vuelink-mesh/internal/adapter"
	"github.com/Kkordik/vuelink-mesh/internal/codec"
	"github.com/Kkordik/vuelink-mesh/internal/model"
)

// State is the Sequencer's current position in spec.md §4.6's state
// machine.
type State int

const (
	StateIdle State = iota
	StateAdvertising
	StateGap
)

// DefaultDwell and DefaultGap are spec.md §4.6's defaults.
const (
	DefaultDwell = 3 * time.Second
	DefaultGap   = 100 * time.Millisecond
)

// Sequencer serializes one outbound message's chunks onto an Adapter.
// Only one sequence runs at a time; starting a new one cancels any
// sequence already in flight (spec.md §4.6).
type Sequencer struct {
	adapter      adapter.Adapter
	defaultDwell time.Duration
	gap          time.Duration

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	state      State
}

// New creates a Sequencer driving a. defaultDwell/gap fall back to
// DefaultDwell/DefaultGap when zero.
func New(a adapter.Adapter, defaultDwell, gap time.Duration) *Sequencer {
	if defaultDwell <= 0 {
		defaultDwell = DefaultDwell
	}
	if gap <= 0 {
		gap = DefaultGap
	}
	return &Sequencer{adapter: a, defaultDwell: defaultDwell, gap: gap}
}

// State reports the current position in the state machine.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Cancel stops any in-flight sequence at the current chunk boundary or
// sooner, dropping remaining chunks, and returns Idle. It is
// idempotent: calling it while already Idle is a no-op returning
// false.
func (s *Sequencer) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked()
}

func (s *Sequencer) cancelLocked() bool {
	if s.cancel == nil {
		return false
	}
	s.cancel()
	s.cancel = nil
	s.state = StateIdle
	s.generation++
	return true
}

// Advertise splits msg and emits each chunk for dwell (or the
// Sequencer's default when dwell <= 0), waiting Gap between chunks,
// until the last chunk stops or the sequence is cancelled. It
// suspends the caller for the sequence's duration (spec.md §5). name
// and manufacturerID are passed through to the adapter unchanged.
//
// onComplete, if non-nil, is invoked with whether the sequence ran to
// completion (true) or was cut short by Cancel/adapter error (false).
// The return bool mirrors that same verdict. A non-nil error is either
// a Split failure, returned before any chunk is sent and without
// invoking onComplete, or an encode/adapter failure, which propagates
// the sequencer to Idle (spec.md §4.6).
func (s *Sequencer) Advertise(ctx context.Context, name string, manufacturerID uint16, msg model.Message, dwell time.Duration, onComplete func(completed bool)) (bool, error) {
	if dwell <= 0 {
		dwell = s.defaultDwell
	}

	parts, err := codec.Split(msg)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	s.cancelLocked()
	seqCtx, cancel := context.WithCancel(ctx)
	s.generation++
	myGen := s.generation
	s.cancel = cancel
	s.state = StateAdvertising
	s.mu.Unlock()

	completed, err := s.run(seqCtx, myGen, name, manufacturerID, parts, dwell)

	s.mu.Lock()
	if s.generation == myGen {
		s.cancel = nil
		s.state = StateIdle
	}
	s.mu.Unlock()

	if onComplete != nil {
		onComplete(completed)
	}
	return completed, err
}

func (s *Sequencer) run(ctx context.Context, myGen uint64, name string, manufacturerID uint16, parts []model.Message, dwell time.Duration) (bool, error) {
	for i, part := range parts {
		select {
		case <-ctx.Done():
			return false, nil
		default:
		}

		payload, err := codec.Encode(part)
		if err != nil {
			return false, err
		}
		if _, err := s.adapter.StartAdvertising(ctx, name, manufacturerID, payload, false); err != nil {
			log.Warn().Err(err).Int("part", i+1).Msg("advertiser: adapter failed to start advertising")
			return false, err
		}

		select {
		case <-time.After(dwell):
		case <-ctx.Done():
			s.adapter.StopAdvertising()
			return false, nil
		}
		if _, err := s.adapter.StopAdvertising(); err != nil {
			return false, err
		}

		if i == len(parts)-1 {
			continue
		}

		s.setGapState(myGen)
		select {
		case <-time.After(s.gap):
		case <-ctx.Done():
			return false, nil
		}
		s.setAdvertisingState(myGen)
	}
	return true, nil
}

func (s *Sequencer) setGapState(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == gen {
		s.state = StateGap
	}
}

func (s *Sequencer) setAdvertisingState(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == gen {
		s.state = StateAdvertising
	}
}
