package codec

import "errors"

// Error kinds from spec.md §7. Encode and Split return
// ErrPayloadTooLarge, ErrInvalidPartNumbering and ErrEmptyContent
// rather than panicking. ErrMalformedAdvertisement is defined for
// completeness but not returned: Parse reports malformed input with
// ok=false instead.
var (
	ErrPayloadTooLarge      = errors.New("codec: content exceeds advertisement size bound")
	ErrInvalidPartNumbering = errors.New("codec: invalid part numbering")
	ErrMalformedAdvertisement = errors.New("codec: malformed advertisement")
	ErrEmptyContent         = errors.New("codec: content must be non-empty")
)
