// Package model defines the Vuelink message data model: the enums and
// tagged message value described in spec.md §3, plus the persisted
// history record shape.
package model

import "time"

// DefaultManufacturerID is the Vuelink manufacturer tag used in testing
// (spec.md §6); production deployments are expected to configure their
// own.
const DefaultManufacturerID uint16 = 0xFFFF

// MessageType is the 3-bit wire enum identifying which message variant
// a packet carries.
type MessageType uint8

const (
	MessageUnknown MessageType = iota
	MessageGeneralBasic
	MessageGeneralText
	MessageFlightUpdate
	MessageFlightUpdateGeneral
	MessageSystem
	MessageEmergency
	MessageReserved
)

// String returns the symbolic name used when persisting history
// entries (spec.md §4.3: "each enum is stored by its symbolic name").
func (t MessageType) String() string {
	switch t {
	case MessageGeneralBasic:
		return "generalBasic"
	case MessageGeneralText:
		return "generalText"
	case MessageFlightUpdate:
		return "flightUpdate"
	case MessageFlightUpdateGeneral:
		return "flightUpdateGeneral"
	case MessageSystem:
		return "system"
	case MessageEmergency:
		return "emergency"
	case MessageReserved:
		return "reserved"
	default:
		return "unknown"
	}
}

// MessageTypeFromString parses the symbolic name back into its enum
// value. Unknown names decode to MessageUnknown rather than erroring,
// so a corrupt or forward-versioned history entry degrades instead of
// aborting the whole load (spec.md §7, StorageCorruption).
func MessageTypeFromString(s string) MessageType {
	switch s {
	case "generalBasic":
		return MessageGeneralBasic
	case "generalText":
		return MessageGeneralText
	case "flightUpdate":
		return MessageFlightUpdate
	case "flightUpdateGeneral":
		return MessageFlightUpdateGeneral
	case "system":
		return MessageSystem
	case "emergency":
		return MessageEmergency
	case "reserved":
		return MessageReserved
	default:
		return MessageUnknown
	}
}

// Splittable reports whether this message type may be fragmented
// across multiple advertisements (spec.md §4.1: "only generalBasic,
// generalText, and flightUpdateGeneral are splittable").
func (t MessageType) Splittable() bool {
	switch t {
	case MessageGeneralBasic, MessageGeneralText, MessageFlightUpdateGeneral:
		return true
	default:
		return false
	}
}

// Priority is the 3-bit wire enum carried alongside every message.
type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityUrgent
	PriorityEmergency
	PrioritySystem
	PriorityTest
	PriorityReserved
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	case PriorityEmergency:
		return "emergency"
	case PrioritySystem:
		return "system"
	case PriorityTest:
		return "test"
	case PriorityReserved:
		return "reserved"
	default:
		return "low"
	}
}

// PriorityFromString is the symbolic-name inverse of String, defaulting
// to PriorityLow on an unrecognized name.
func PriorityFromString(s string) Priority {
	switch s {
	case "low":
		return PriorityLow
	case "medium":
		return PriorityMedium
	case "high":
		return PriorityHigh
	case "urgent":
		return PriorityUrgent
	case "emergency":
		return PriorityEmergency
	case "system":
		return PrioritySystem
	case "test":
		return PriorityTest
	case "reserved":
		return PriorityReserved
	default:
		return PriorityLow
	}
}

// ForwardWorthy reports whether this priority alone is sufficient
// grounds to forward a message, independent of the repeat flag
// (spec.md §4.4).
func (p Priority) ForwardWorthy() bool {
	return p == PriorityUrgent || p == PriorityEmergency
}

// FlightUpdateType is the byte-sized enum carried in a FlightUpdate /
// FlightUpdateGeneral payload.
type FlightUpdateType uint8

const (
	FlightUpdateGeneral FlightUpdateType = iota
	FlightUpdateGateChange
	FlightUpdateBoarding
	FlightUpdateDelay
	FlightUpdateCancellation
	FlightUpdateEmergency
)

func (u FlightUpdateType) String() string {
	switch u {
	case FlightUpdateGateChange:
		return "gateChange"
	case FlightUpdateBoarding:
		return "boarding"
	case FlightUpdateDelay:
		return "delay"
	case FlightUpdateCancellation:
		return "cancellation"
	case FlightUpdateEmergency:
		return "emergency"
	default:
		return "general"
	}
}

// FlightUpdateTypeFromString defaults to FlightUpdateGeneral on an
// unrecognized name, matching spec.md §4.1's parse-time default for a
// missing update-type byte.
func FlightUpdateTypeFromString(s string) FlightUpdateType {
	switch s {
	case "gateChange":
		return FlightUpdateGateChange
	case "boarding":
		return FlightUpdateBoarding
	case "delay":
		return FlightUpdateDelay
	case "cancellation":
		return FlightUpdateCancellation
	case "emergency":
		return FlightUpdateEmergency
	default:
		return FlightUpdateGeneral
	}
}

// Message is the tagged logical value described in spec.md §3. Exactly
// one of the typed payload fields is meaningful; which one is
// determined by Type.
type Message struct {
	Type MessageType

	// GeneralBasic payload.
	Content []byte

	// GeneralText / FlightUpdateGeneral text payload.
	Text string

	// FlightUpdate / FlightUpdateGeneral payload.
	FlightID   string
	UpdateType FlightUpdateType

	// Common to every splittable/repeatable type.
	Repeat   bool
	Priority Priority

	// Part-info, filled in by the Codec during splitting/reassembly;
	// logically absent (PartNo==TotalParts==1) for whole messages.
	PartNo     int
	TotalParts int

	// IsReassembled is set by the Reassembler when this value was
	// produced by combining multiple fragments (spec.md §4.2).
	IsReassembled bool
}

// Equivalent implements the content-equivalence relation of spec.md
// §4.3: equal MessageType plus type-specific equality over semantic
// fields only. ReceivedAt, radio metadata, PartNo and TotalParts are
// deliberately excluded.
func (m Message) Equivalent(other Message) bool {
	if m.Type != other.Type {
		return false
	}
	switch m.Type {
	case MessageGeneralText, MessageFlightUpdateGeneral:
		if m.Text != other.Text {
			return false
		}
		if m.Type == MessageFlightUpdateGeneral && m.FlightID != other.FlightID {
			return false
		}
		return true
	case MessageGeneralBasic:
		return bytesEqual(m.Content, other.Content)
	case MessageFlightUpdate:
		return m.FlightID == other.FlightID && m.UpdateType == other.UpdateType
	default:
		return bytesEqual(m.Content, other.Content) && m.Text == other.Text
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// StoredMessage is a history record: the message identity fields plus
// the instant it was accepted (spec.md §3).
type StoredMessage struct {
	Message
	ReceivedAt time.Time
}
