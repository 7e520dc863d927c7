package frameindex

import (
	"errors"
	"fmt"
	"io"

	"github.com/pion/rtp"

	"github.com/kestrelmedia/recordplay/internal/mjr"
)

// resetThreshold and wrapAnchor are the constants spec.md §4.2 names
// without giving them handles: the backward jump that counts as a
// timestamp wrap/reset, and the anchor offset subtracted from the first
// observed timestamp so the very first comparison can never spuriously
// look like a wrap.
const (
	resetThreshold = 2_000_000_000
	wrapAnchor     = 1_000_000
)

type rawRecord struct {
	seq    uint16
	ts     uint32
	offset int64
	len    int
}

// Build parses path in two passes and returns the resulting ordered frame
// list together with the file's info header.
func Build(path string) (*List, mjr.Header, error) {
	r, err := mjr.OpenReader(path)
	if err != nil {
		return nil, mjr.Header{}, err
	}
	defer r.Close()

	header := r.Header()

	records, resetSeen, resetFirstTS, err := scanRecords(r)
	if err != nil {
		return nil, mjr.Header{}, fmt.Errorf("frameindex: %s: %w", path, err)
	}

	list := &List{}
	for _, rec := range records {
		list.insert(&Packet{
			Seq:    rec.seq,
			TSExt:  extendTimestamp(rec.ts, resetSeen, resetFirstTS),
			Len:    rec.len,
			Offset: rec.offset,
		})
	}

	return list, header, nil
}

// scanRecords is pass 1: walk every record, reading only the RTP header,
// tracking the latest timestamp and detecting wrap/reset. firstTS is fixed
// once, at the first observed timestamp minus wrapAnchor, and is what pass
// 2 uses to classify a record as pre- or post-reset. A reset simply latches
// resetSeen; per spec.md §4.2 pass 2 only needs to know that a reset
// happened somewhere and what firstTS was, not each individual anchor.
func scanRecords(r *mjr.Reader) (records []rawRecord, resetSeen bool, firstTS int64, err error) {
	var lastTS uint32
	haveFirst := false

	for {
		rec, nextErr := r.Next()
		if errors.Is(nextErr, io.EOF) {
			break
		}
		if nextErr != nil {
			return nil, false, 0, nextErr
		}

		var h rtp.Header
		if _, uerr := h.Unmarshal(rec.Payload); uerr != nil {
			return nil, false, 0, fmt.Errorf("invalid RTP header at offset %d: %w", rec.Offset, uerr)
		}

		records = append(records, rawRecord{
			seq:    h.SequenceNumber,
			ts:     h.Timestamp,
			offset: rec.Offset,
			len:    len(rec.Payload),
		})

		if !haveFirst {
			firstTS = int64(h.Timestamp) - wrapAnchor
			lastTS = h.Timestamp
			haveFirst = true
			continue
		}

		if int64(lastTS)-int64(h.Timestamp) > resetThreshold {
			resetSeen = true
		}

		lastTS = h.Timestamp
	}

	return records, resetSeen, firstTS, nil
}

// extendTimestamp is pass 2's per-record rule from spec.md §4.2.
func extendTimestamp(ts uint32, resetSeen bool, firstTS int64) uint64 {
	if !resetSeen {
		return uint64(ts)
	}

	if int64(ts) > firstTS {
		return uint64(ts)
	}

	return (uint64(1) << 32) + uint64(ts)
}
