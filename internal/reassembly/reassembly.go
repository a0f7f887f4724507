// Package reassembly implements the Reassembler component of spec.md
// §4.2: buffering incoming fragments keyed by (source, type,
// time-bucket), combining them once complete, and garbage-collecting
// stragglers after the fragment timeout.
//
// Grounded on the teacher's internal/server/reassembly.go and
// internal/protocol/fragment.go — both implement the same
// accumulate-chunks-until-count-reached shape keyed by a numeric
// packet ID. This version keys by the coarser (source, type,
// time-bucket) tuple spec.md requires and, instead of a hand-rolled
// "completed" map plus periodic sweep, leans on go-cache's own
// TTL+janitor (exactly the idiom the teacher's
// internal/server/session.go already uses for TTL-keyed state) to
// expire stale buckets.
package reassembly

import (
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"github.com/Kkordik/vuelink-mesh/internal/model"
)

// TimeBucketWidth is the coarseness of the reassembly key's time
// bucket (spec.md §4.2: "deliberately coarse so that chunks of one
// logical message ... cluster into the same bucket").
const TimeBucketWidth = 5 * time.Second

// bucket holds the in-progress state for one reassembly key.
type bucket struct {
	fragments       map[int]model.Message
	totalParts      int
	firstReceivedAt time.Time
	forwardWorthy   bool
	forwardDecided  bool
}

// Reassembler accumulates fragments into whole messages.
type Reassembler struct {
	mu              sync.Mutex
	store           *cache.Cache
	fragmentTimeout time.Duration
}

// New creates a Reassembler whose buckets expire fragmentTimeout after
// their first fragment arrived (later fragments do not extend it), with
// expired buckets purged roughly every gcTick (spec.md §6: defaults
// 60s / 30s).
func New(fragmentTimeout, gcTick time.Duration) *Reassembler {
	return &Reassembler{
		store:           cache.New(fragmentTimeout, gcTick),
		fragmentTimeout: fragmentTimeout,
	}
}

// Key derives the reassembly key for a fragment from its source
// identifier, message type, and the instant it was received (spec.md
// §4.2).
func Key(source string, msgType model.MessageType, receivedAt time.Time) string {
	timeBucket := receivedAt.UnixMilli() / TimeBucketWidth.Milliseconds()
	return fmt.Sprintf("%s|%d|%d", source, uint8(msgType), timeBucket)
}

// Result is what Ingest returns once a bucket completes.
type Result struct {
	Message       model.Message
	ForwardWorthy bool
}

// Ingest deposits one fragment into its bucket. forwardWorthy is the
// Forwarder-policy verdict for this fragment (spec.md §4.4's repeat-or-
// priority test, without the "forwarding globally enabled" runtime
// toggle); it is captured from the first fragment seen and reapplied
// atomically to the combined message, so a later fragment can't
// disagree with an earlier one about whether the assembled message is
// forward-worthy (spec.md §4.2).
//
// Ingest reports ok=true only when this fragment completed the
// bucket; the bucket is then discarded.
func (r *Reassembler) Ingest(key string, frag model.Message, forwardWorthy bool) (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b *bucket
	if v, found := r.store.Get(key); found {
		b = v.(*bucket)
	} else {
		b = &bucket{
			fragments:       make(map[int]model.Message, frag.TotalParts),
			totalParts:      frag.TotalParts,
			firstReceivedAt: time.Now(),
		}
		r.store.Set(key, b, r.fragmentTimeout)
	}

	if !b.forwardDecided {
		b.forwardWorthy = forwardWorthy
		b.forwardDecided = true
	}

	if frag.PartNo < 1 || frag.PartNo > b.totalParts {
		log.Warn().Str("key", key).Int("partNo", frag.PartNo).Int("total", b.totalParts).Msg("reassembly: fragment part number out of range for bucket")
		return Result{}, false
	}
	if _, exists := b.fragments[frag.PartNo]; !exists {
		b.fragments[frag.PartNo] = frag
	}

	if len(b.fragments) != b.totalParts {
		return Result{}, false
	}

	combined := combine(b)
	r.store.Delete(key)
	return Result{Message: combined, ForwardWorthy: b.forwardWorthy}, true
}

// combine concatenates a complete bucket's fragments in part-number
// order, per spec.md §4.2's per-type combination rule.
func combine(b *bucket) model.Message {
	first := b.fragments[1]
	out := first
	out.IsReassembled = true
	out.PartNo, out.TotalParts = 1, 1

	switch first.Type {
	case model.MessageGeneralText:
		var text string
		for i := 1; i <= b.totalParts; i++ {
			text += b.fragments[i].Text
		}
		out.Text = text
	case model.MessageFlightUpdateGeneral:
		var text string
		for i := 1; i <= b.totalParts; i++ {
			text += b.fragments[i].Text
		}
		out.Text = text
		out.FlightID = first.FlightID
	default:
		var content []byte
		for i := 1; i <= b.totalParts; i++ {
			content = append(content, b.fragments[i].Content...)
		}
		out.Content = content
	}
	return out
}

// Pending reports how many buckets are currently awaiting completion;
// exposed for tests and diagnostics.
func (r *Reassembler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.ItemCount()
}
