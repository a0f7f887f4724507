package history

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/Kkordik/vuelink-mesh/internal/model"
)

// record is the on-disk shape described in spec.md §6: enums by
// symbolic name, binary content base64-encoded, unknown fields ignored
// on read.
type record struct {
	MessageType       string `json:"messageType"`
	Priority          string `json:"priority"`
	UpdateType        string `json:"updateType,omitempty"`
	RepeatFlag        bool   `json:"repeatFlag"`
	PartNumber        int    `json:"partNumber"`
	TotalParts        int    `json:"totalParts"`
	FlightID          string `json:"flightId,omitempty"`
	TextContent       string `json:"textContent,omitempty"`
	ContentBase64     string `json:"content_base64,omitempty"`
	ReceivedTimestamp string `json:"receivedTimestamp"`
}

func encodeRecord(sm model.StoredMessage) record {
	r := record{
		MessageType:       sm.Type.String(),
		Priority:          sm.Priority.String(),
		RepeatFlag:        sm.Repeat,
		PartNumber:        sm.PartNo,
		TotalParts:        sm.TotalParts,
		ReceivedTimestamp: sm.ReceivedAt.UTC().Format(time.RFC3339Nano),
	}
	switch sm.Type {
	case model.MessageFlightUpdate:
		r.UpdateType = sm.UpdateType.String()
		r.FlightID = sm.FlightID
	case model.MessageFlightUpdateGeneral:
		r.UpdateType = sm.UpdateType.String()
		r.FlightID = sm.FlightID
		r.TextContent = sm.Text
	case model.MessageGeneralText:
		r.TextContent = sm.Text
	case model.MessageGeneralBasic:
		r.ContentBase64 = base64.StdEncoding.EncodeToString(sm.Content)
	}
	return r
}

// decodeRecord parses one raw JSON record into a StoredMessage,
// reporting ok=false for a record too corrupt to use (spec.md §7,
// StorageCorruption) rather than erroring the whole load.
func decodeRecord(raw json.RawMessage) (model.StoredMessage, bool) {
	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return model.StoredMessage{}, false
	}

	receivedAt, err := time.Parse(time.RFC3339Nano, r.ReceivedTimestamp)
	if err != nil {
		receivedAt, err = time.Parse(time.RFC3339, r.ReceivedTimestamp)
		if err != nil {
			return model.StoredMessage{}, false
		}
	}

	msgType := model.MessageTypeFromString(r.MessageType)
	sm := model.StoredMessage{
		Message: model.Message{
			Type:       msgType,
			Priority:   model.PriorityFromString(r.Priority),
			Repeat:     r.RepeatFlag,
			PartNo:     r.PartNumber,
			TotalParts: r.TotalParts,
			FlightID:   r.FlightID,
			Text:       r.TextContent,
			UpdateType: model.FlightUpdateTypeFromString(r.UpdateType),
		},
		ReceivedAt: receivedAt,
	}

	if r.ContentBase64 != "" {
		content, err := base64.StdEncoding.DecodeString(r.ContentBase64)
		if err != nil {
			return model.StoredMessage{}, false
		}
		sm.Content = content
	}

	return sm, true
}
