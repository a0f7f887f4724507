// Package history implements the Dedup/History Store of spec.md §4.3:
// the accept/duplicate-suppression policy and the bounded, persisted
// log of accepted messages.
//
// There is no dependency in the example pack for "serialize a bounded
// list of records to a JSON blob under an opaque key and reload it,
// tolerating corrupt entries" — it's a small, storage-agnostic concern
// the teacher itself doesn't have an analogue for (its nearest relative,
// internal/server/session.go, is an in-memory TTL cache with no
// durability). Persistence here is therefore plain encoding/json over
// a small KVStore abstraction (see store_kv.go), which is the
// appropriate stdlib-only answer per SPEC_FULL.md/DESIGN.md: no pack
// library does structured single-key JSON persistence better.
package history

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Kkordik/vuelink-mesh/internal/fingerprint"
	"github.com/Kkordik/vuelink-mesh/internal/model"
)

// DefaultCapacity is the maximum number of history entries retained
// (spec.md §6).
const DefaultCapacity = 50

// DefaultWindow is the number of most-recent entries scanned by the
// duplicate check (spec.md §6).
const DefaultWindow = 10

// StorageKey is the opaque key persisted entries are stored under
// (spec.md §6).
const StorageKey = "vuelink_saved_messages_json"

// KVStore is the minimal persistence surface History needs: load and
// save a single opaque blob under a key. A real host app backs this
// with its platform key-value store. This package provides
// MemoryKVStore (used by the tests and by the demo CLIs by default) and
// the filesystem-backed FileKVStore (used by the demo CLIs when
// -history-dir is set).
type KVStore interface {
	Load(key string) ([]byte, error)
	Save(key string, data []byte) error
}

// History is the Dedup/History Store component.
type History struct {
	mu       sync.Mutex
	store    KVStore
	capacity int
	window   int
	entries  []model.StoredMessage
}

// New creates a History backed by store, with the given capacity and
// duplicate-check window (spec.md §6 defaults: 50 and 10).
func New(store KVStore, capacity, window int) *History {
	return &History{store: store, capacity: capacity, window: window}
}

// Load populates the in-memory log from storage. Corrupt entries are
// skipped without aborting the load (spec.md §7, StorageCorruption).
func (h *History) Load() error {
	raw, err := h.store.Load(StorageKey)
	if err != nil {
		return fmt.Errorf("history: load: %w", err)
	}
	if raw == nil {
		return nil
	}

	var rawEntries []json.RawMessage
	if err := json.Unmarshal(raw, &rawEntries); err != nil {
		log.Warn().Err(err).Msg("history: stored blob is not a JSON array, starting empty")
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = h.entries[:0]
	for _, re := range rawEntries {
		sm, ok := decodeRecord(re)
		if !ok {
			log.Warn().Msg("history: skipping corrupt entry")
			continue
		}
		h.entries = append(h.entries, sm)
	}
	if len(h.entries) > h.capacity {
		h.entries = h.entries[len(h.entries)-h.capacity:]
	}
	return nil
}

// Save persists the current in-memory log.
func (h *History) Save() error {
	h.mu.Lock()
	records := make([]record, len(h.entries))
	for i, e := range h.entries {
		records[i] = encodeRecord(e)
	}
	h.mu.Unlock()

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("history: marshal: %w", err)
	}
	if err := h.store.Save(StorageKey, data); err != nil {
		return fmt.Errorf("history: save: %w", err)
	}
	return nil
}

// Accept applies spec.md §4.3's accept policy to msg. On acceptance,
// msg is appended to the history (evicting the oldest entry if the
// capacity is exceeded) and true is returned.
func (h *History) Accept(msg model.Message) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.window
	if n > len(h.entries) {
		n = len(h.entries)
	}
	recent := h.entries[len(h.entries)-n:]

	fp := contentFingerprint(msg)
	dup := false
	dupWithRepeat := false
	for _, entry := range recent {
		if contentFingerprint(entry.Message) != fp {
			continue
		}
		if !entry.Message.Equivalent(msg) {
			continue
		}
		dup = true
		if entry.Repeat {
			dupWithRepeat = true
		}
	}

	accept := !dup || (msg.Repeat && !dupWithRepeat)
	if !accept {
		return false
	}

	h.entries = append(h.entries, model.StoredMessage{Message: msg, ReceivedAt: time.Now()})
	if len(h.entries) > h.capacity {
		h.entries = h.entries[len(h.entries)-h.capacity:]
	}
	return true
}

// List returns a copy of the current history, oldest first.
func (h *History) List() []model.StoredMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]model.StoredMessage, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len reports the current history length.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Clear removes both the in-memory and persisted state (spec.md
// §4.3).
func (h *History) Clear() error {
	h.mu.Lock()
	h.entries = nil
	h.mu.Unlock()
	if err := h.store.Save(StorageKey, []byte("[]")); err != nil {
		return fmt.Errorf("history: clear: %w", err)
	}
	return nil
}

// contentFingerprint is a cheap pre-filter ahead of the authoritative
// Equivalent() comparison in Accept, so the window scan doesn't do a
// full field-by-field compare for entries that plainly differ
// (adapted from the teacher's sha256-based key fingerprinting; see
// internal/fingerprint and DESIGN.md).
func contentFingerprint(msg model.Message) string {
	switch msg.Type {
	case model.MessageGeneralText, model.MessageFlightUpdateGeneral:
		return fingerprint.Of(fmt.Sprintf("%d|%s|%s", msg.Type, msg.FlightID, msg.Text))
	case model.MessageGeneralBasic:
		return fingerprint.Of(fmt.Sprintf("%d|%s", msg.Type, base64.StdEncoding.EncodeToString(msg.Content)))
	case model.MessageFlightUpdate:
		return fingerprint.Of(fmt.Sprintf("%d|%s|%d", msg.Type, msg.FlightID, msg.UpdateType))
	default:
		return fingerprint.Of(fmt.Sprintf("%d|%s|%s", msg.Type, msg.Text, base64.StdEncoding.EncodeToString(msg.Content)))
	}
}
