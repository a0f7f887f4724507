// Package scanner implements the Scanner Pipeline of spec.md §4.5: the
// consumer of raw adapter advertisements that filters by manufacturer
// ID, parses the packet, deduplicates/reassembles/records/forwards it,
// and republishes the result to subscribers.
//
// Grounded on the teacher's internal/server/dns_handler.go HandleDNS:
// both pull a raw inbound unit off the wire, validate/parse it, hand
// valid fragments to a session/reassembly layer, and dispatch the
// completed unit onward — adapted from a single synchronous request
// handler to a long-lived event-loop goroutine over Adapter.Events().
package scanner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Kkordik/vuelink-mesh/internal/adapter"
	"github.com/Kkordik/vuelink-mesh/internal/codec"
	"github.com/Kkordik/vuelink-mesh/internal/forward"
	"github.com/Kkordik/vuelink-mesh/internal/history"
	"github.com/Kkordik/vuelink-mesh/internal/model"
	"github.com/Kkordik/vuelink-mesh/internal/reassembly"
)

// ReceivedMessage is published once per accepted, fully-assembled
// message (spec.md §6's received-message stream).
type ReceivedMessage struct {
	Source      string
	ReceivedAt  time.Time
	RSSI        int16
	Message     model.Message
	WillForward bool
}

// Scanner runs the ingestion pipeline over one Adapter's event stream.
type Scanner struct {
	manufacturerID uint16
	reassembler    *reassembly.Reassembler
	history        *history.History
	forwarder      *forward.Forwarder

	receivedCount atomic.Int64

	mu   sync.Mutex
	subs map[int]chan ReceivedMessage
	next int
}

// New creates a Scanner filtering advertisements to manufacturerID and
// wiring accepted messages through reassembler/hist/fwd.
func New(manufacturerID uint16, reassembler *reassembly.Reassembler, hist *history.History, fwd *forward.Forwarder) *Scanner {
	return &Scanner{
		manufacturerID: manufacturerID,
		reassembler:    reassembler,
		history:        hist,
		forwarder:      fwd,
		subs:           make(map[int]chan ReceivedMessage),
	}
}

// Subscribe registers for the ReceivedMessage stream. The returned
// cancel func must be called to release the channel; the channel is
// buffered and a slow subscriber drops events rather than blocking the
// pipeline.
func (s *Scanner) Subscribe() (<-chan ReceivedMessage, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	s.next++
	ch := make(chan ReceivedMessage, 32)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

func (s *Scanner) publish(rm ReceivedMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- rm:
		default:
			log.Warn().Str("source", rm.Source).Msg("scanner: subscriber channel full, dropping event")
		}
	}
}

// ReceivedCount reports how many manufacturer-ID-matching records
// HandleAdvertisement has parsed successfully, regardless of
// accept/dedup outcome; malformed records are not counted. Exposed for
// diagnostics.
func (s *Scanner) ReceivedCount() int64 {
	return s.receivedCount.Load()
}

// Run consumes a's event stream until ctx is cancelled or the channel
// closes.
func (s *Scanner) Run(ctx context.Context, a adapter.Adapter) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-a.Events():
			if !ok {
				return nil
			}
			s.HandleAdvertisement(ev)
		}
	}
}

// HandleAdvertisement processes one raw advertisement: every
// manufacturer-specific record matching manufacturerID is parsed and
// fed through the accept/reassemble/forward pipeline (spec.md §4.5).
// Non-matching records and unparseable payloads are dropped silently.
func (s *Scanner) HandleAdvertisement(ev adapter.AdvertisementEvent) {
	source := ev.DeviceName
	now := time.Now()

	for _, rec := range ev.ManufacturerData {
		if rec.ID != s.manufacturerID {
			continue
		}
		msg, ok := codec.Parse(rec.Bytes)
		if !ok {
			log.Debug().Str("source", source).Msg("scanner: dropping malformed advertisement")
			continue
		}
		s.receivedCount.Add(1)
		s.handleParsed(source, ev.RSSI, now, msg)
	}
}

func (s *Scanner) handleParsed(source string, rssi int16, now time.Time, msg model.Message) {
	if msg.TotalParts <= 1 {
		s.finalize(source, rssi, now, msg, s.forwarder.Enabled() && forward.Worthy(msg))
		return
	}

	key := reassembly.Key(source, msg.Type, now)
	result, complete := s.reassembler.Ingest(key, msg, forward.Worthy(msg))
	if !complete {
		return
	}
	// The enabled toggle is re-read live at completion time; only the
	// worthiness predicate is frozen across fragments (spec.md §4.2).
	s.finalize(source, rssi, now, result.Message, result.ForwardWorthy && s.forwarder.Enabled())
}

// finalize runs the accept-dedup check and, if accepted, records,
// publishes, and forwards the whole message. decided is the
// forward-or-drop verdict computed per handleParsed.
func (s *Scanner) finalize(source string, rssi int16, receivedAt time.Time, msg model.Message, decided bool) {
	if !s.history.Accept(msg) {
		return
	}
	willForward := s.forwarder.ForwardIfDecided(msg, decided)
	s.publish(ReceivedMessage{
		Source:      source,
		ReceivedAt:  receivedAt,
		RSSI:        rssi,
		Message:     msg,
		WillForward: willForward,
	})
}
