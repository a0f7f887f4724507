package codec

import "github.com/Kkordik/vuelink-mesh/internal/model"

// Split breaks a logical outbound message into the ordered sequence of
// per-packet Messages that Advertiser will emit one per dwell period
// (spec.md §4.1). Only Splittable types may produce more than one
// part; non-splittable types always come back as a single-element
// slice with PartNo=TotalParts=1.
//
// True part counts above MaxParts cannot be represented by the 3-bit
// wire fields. Per spec.md §9's recommended fix, Split refuses rather
// than silently wrapping partNo/totalParts (the source's lossy
// behavior): it returns ErrInvalidPartNumbering.
func Split(msg model.Message) ([]model.Message, error) {
	if !msg.Type.Splittable() {
		single := msg
		single.PartNo, single.TotalParts = 1, 1
		return []model.Message{single}, nil
	}

	chunkSize, payload, err := chunkPlan(msg)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, ErrEmptyContent
	}

	n := (len(payload) + chunkSize - 1) / chunkSize
	if n > MaxParts {
		return nil, ErrInvalidPartNumbering
	}
	if n == 0 {
		n = 1
	}

	parts := make([]model.Message, 0, n)
	for i := 0; i < n; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		chunk := payload[start:end]

		part := msg
		part.PartNo = i + 1
		part.TotalParts = n
		applyChunk(&part, chunk)
		parts = append(parts, part)
	}
	return parts, nil
}

// chunkPlan returns the byte-split chunk size and the raw payload
// bytes to split, per spec.md §4.1's per-type chunkSize formulas.
func chunkPlan(msg model.Message) (int, []byte, error) {
	switch msg.Type {
	case model.MessageGeneralBasic:
		return MaxContentLen, msg.Content, nil
	case model.MessageGeneralText:
		return MaxContentLen, []byte(msg.Text), nil
	case model.MessageFlightUpdateGeneral:
		overhead := len(msg.FlightID) + 1
		size := MaxContentLen - overhead
		if size <= 0 {
			return 0, nil, ErrPayloadTooLarge
		}
		return size, []byte(msg.Text), nil
	default:
		return 0, nil, ErrInvalidPartNumbering
	}
}

// applyChunk stores one chunk's worth of bytes back into the
// type-appropriate field of part, ready for Encode.
func applyChunk(part *model.Message, chunk []byte) {
	switch part.Type {
	case model.MessageGeneralBasic:
		part.Content = append([]byte(nil), chunk...)
	case model.MessageGeneralText:
		part.Text = string(chunk)
	case model.MessageFlightUpdateGeneral:
		part.Text = string(chunk)
	}
}
