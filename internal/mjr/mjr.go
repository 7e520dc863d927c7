// Package mjr implements the framed on-disk RTP container (component C1
// of the capture pipeline): an append-only sequence of tagged records,
// the first of which carries a small JSON info header, the rest raw RTP
// packets. Two on-disk generations are understood on read; only the
// current generation is written.
package mjr

import "errors"

// Medium identifies which RTP stream a file holds.
type Medium int

// Recognized media.
const (
	MediumAudio Medium = iota
	MediumVideo
)

func (m Medium) String() string {
	if m == MediumVideo {
		return "video"
	}
	return "audio"
}

// tag constants. The second byte of each is the discriminator spec.md
// describes: 'E' for the legacy format, 'J' for the current one.
const (
	oldFormatTag = "MEETECHO"
	newFormatTag = "MJR00004"
)

// Errors returned while parsing a container. Any of these aborts parsing
// for the whole file, per spec.md §4.1 and §7 ("parse errors ... fail-fast").
var (
	ErrShortRead     = errors.New("mjr: short read at record boundary")
	ErrBadTag        = errors.New("mjr: invalid leading tag")
	ErrBadInfoHeader = errors.New("mjr: info header missing required field")
	ErrUnknownMedium = errors.New("mjr: unrecognized medium tag")
	ErrAlreadyOpened = errors.New("mjr: header already written")
)

// InfoHeader is the JSON object stored as the first record of a new-format
// file.
type InfoHeader struct {
	Type    string `json:"t"`
	Codec   string `json:"c"`
	Created int64  `json:"s"`
	// FirstFrame is spec.md's "u" field. The upstream plugin this spec was
	// distilled from assigns it the same value as Created (a known bug,
	// see spec.md §9); we record the real timestamp of the first saved
	// frame instead.
	FirstFrame int64 `json:"u"`
}

func mediumFromTypeTag(t string) (Medium, bool) {
	switch t {
	case "a":
		return MediumAudio, true
	case "v":
		return MediumVideo, true
	default:
		return 0, false
	}
}

func typeTagFromMedium(m Medium) string {
	if m == MediumVideo {
		return "v"
	}
	return "a"
}
