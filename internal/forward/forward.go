// Package forward implements the Forwarder of spec.md §4.4: deciding
// whether an accepted message gets rebroadcast, and handing the
// rebroadcast copy to the Advertiser Sequencer.
package forward

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Kkordik/vuelink-mesh/internal/model"
)

// DefaultDwell is the short dwell used when rebroadcasting a forwarded
// message (spec.md §4.4: "a short dwell (≈3 s)").
const DefaultDwell = 3 * time.Second

// AdvertiseFunc hands a logical message to the Advertiser Sequencer
// for a bounded dwell. mesh.Engine supplies one that runs the message
// through its Sequencer.
type AdvertiseFunc func(msg model.Message, dwell time.Duration) error

// Forwarder decides whether accepted messages are rebroadcast.
type Forwarder struct {
	enabled   atomic.Bool
	advertise AdvertiseFunc
	dwell     time.Duration
}

// New creates a Forwarder that calls advertise to rebroadcast. Forwarding
// starts enabled, matching a freshly booted mesh node.
func New(advertise AdvertiseFunc, dwell time.Duration) *Forwarder {
	f := &Forwarder{advertise: advertise, dwell: dwell}
	f.enabled.Store(true)
	return f
}

// SetEnabled toggles forwarding globally (spec.md §6,
// setForwardingEnabled).
func (f *Forwarder) SetEnabled(enabled bool) {
	f.enabled.Store(enabled)
}

// Enabled reports whether forwarding is currently enabled.
func (f *Forwarder) Enabled() bool {
	return f.enabled.Load()
}

// Worthy reports spec.md §4.4's forward-worthiness test for msg,
// independent of the global enabled toggle: the repeat flag is set, or
// the priority is urgent/emergency. This is the predicate the
// Reassembler freezes on the first fragment of a multi-part message
// (spec.md §4.2).
func Worthy(msg model.Message) bool {
	return msg.Repeat || msg.Priority.ForwardWorthy()
}

// Decide snapshots the forward-or-drop decision for msg right now:
// forwarding enabled AND msg is forward-worthy. Forward uses it; the
// Scanner does not, since for a multi-part message it freezes only
// Worthy on the first fragment and reads Enabled at completion.
func (f *Forwarder) Decide(msg model.Message) bool {
	return f.enabled.Load() && Worthy(msg)
}

// Forward applies the full accept-and-rebroadcast policy to an
// accepted message: forward iff forwarding is enabled AND msg is
// forward-worthy. It reports whether the rebroadcast was handed to the
// advertise func without error.
func (f *Forwarder) Forward(msg model.Message) bool {
	return f.ForwardIfDecided(msg, f.Decide(msg))
}

// ForwardIfDecided rebroadcasts msg iff decided is true, without
// re-evaluating the enabled/worthy policy — the Scanner passes the
// worthiness frozen by the Reassembler at a message's first fragment
// combined with the current enabled toggle (spec.md §4.2). It returns
// false when decided is false or the advertise func fails.
//
// The rebroadcast re-encodes the full logical message with Repeat
// forced true (spec.md §4.4/§9): downstream peers therefore apply
// their own accept policy and will themselves forward at most once
// before their own history suppresses further propagation.
func (f *Forwarder) ForwardIfDecided(msg model.Message, decided bool) bool {
	if !decided {
		return false
	}

	rebroadcast := msg
	rebroadcast.Repeat = true
	rebroadcast.IsReassembled = false
	rebroadcast.PartNo, rebroadcast.TotalParts = 0, 0

	if err := f.advertise(rebroadcast, f.dwell); err != nil {
		log.Warn().Err(err).Msg("forward: rebroadcast failed")
		return false
	}
	return true
}
