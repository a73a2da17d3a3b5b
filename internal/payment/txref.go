package payment

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidReference is returned for a transaction reference that does not
// parse into a known booking shape.
var ErrInvalidReference = errors.New("invalid transaction reference")

// Kind tags what a transaction reference pays for.
type Kind int

const (
	KindSingle Kind = iota + 1
	KindGroup
	KindEvent
	KindEventFree
)

func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindGroup:
		return "group"
	case KindEvent:
		return "event"
	case KindEventFree:
		return "event_free"
	}
	return "unknown"
}

const (
	prefixGroup     = "TX-MULTI-"
	prefixSingle    = "TX-"
	prefixEvent     = "EVT-TX-"
	prefixEventFree = "EVT-FREE-"
)

// TxRef identifies one payment attempt and the bookings it covers.  It is
// minted when a checkout starts and parsed once when a payment is verified.
//
// Wire forms:
//
//	TX-{id}-{epoch}
//	TX-MULTI-{id1_id2_...}-{epoch}
//	EVT-TX-{bookingId}-{epoch}
//	EVT-FREE-{bookingId}-{epoch}
type TxRef struct {
	Kind  Kind
	IDs   []uint64
	Epoch int64
}

// RoomRef returns a single reference for one id and a group reference for
// more.
func RoomRef(ids []uint64, at time.Time) TxRef {
	kind := KindSingle
	if len(ids) > 1 {
		kind = KindGroup
	}
	return TxRef{Kind: kind, IDs: append([]uint64(nil), ids...), Epoch: at.Unix()}
}

// EventRef returns the reference of a paid event booking.
func EventRef(bookingID uint64, at time.Time) TxRef {
	return TxRef{Kind: KindEvent, IDs: []uint64{bookingID}, Epoch: at.Unix()}
}

// EventFreeRef returns the reference of a zero-amount event booking.
func EventFreeRef(bookingID uint64, at time.Time) TxRef {
	return TxRef{Kind: KindEventFree, IDs: []uint64{bookingID}, Epoch: at.Unix()}
}

// ID returns the first booking id.  Single and event references carry
// exactly one; for a group it is the id the receipt is built from.
func (r TxRef) ID() uint64 {
	if len(r.IDs) == 0 {
		return 0
	}
	return r.IDs[0]
}

// IsEvent reports whether the reference pays for an event booking.
func (r TxRef) IsEvent() bool { return r.Kind == KindEvent || r.Kind == KindEventFree }

func (r TxRef) String() string {
	epoch := strconv.FormatInt(r.Epoch, 10)
	switch r.Kind {
	case KindSingle:
		return prefixSingle + strconv.FormatUint(r.ID(), 10) + "-" + epoch
	case KindGroup:
		parts := make([]string, len(r.IDs))
		for i, id := range r.IDs {
			parts[i] = strconv.FormatUint(id, 10)
		}
		return prefixGroup + strings.Join(parts, "_") + "-" + epoch
	case KindEvent:
		return prefixEvent + strconv.FormatUint(r.ID(), 10) + "-" + epoch
	case KindEventFree:
		return prefixEventFree + strconv.FormatUint(r.ID(), 10) + "-" + epoch
	}
	return ""
}

// ParseTxRef decodes a reference.  Longer prefixes are matched first since
// "TX-" is a prefix of "TX-MULTI-".
func ParseTxRef(s string) (TxRef, error) {
	s = strings.TrimSpace(s)
	var kind Kind
	var rest string
	switch {
	case strings.HasPrefix(s, prefixEventFree):
		kind, rest = KindEventFree, s[len(prefixEventFree):]
	case strings.HasPrefix(s, prefixEvent):
		kind, rest = KindEvent, s[len(prefixEvent):]
	case strings.HasPrefix(s, prefixGroup):
		kind, rest = KindGroup, s[len(prefixGroup):]
	case strings.HasPrefix(s, prefixSingle):
		kind, rest = KindSingle, s[len(prefixSingle):]
	default:
		return TxRef{}, fmt.Errorf("%w: %q", ErrInvalidReference, s)
	}

	idPart, epochPart, ok := strings.Cut(rest, "-")
	if !ok || strings.Contains(epochPart, "-") {
		return TxRef{}, fmt.Errorf("%w: %q", ErrInvalidReference, s)
	}
	epoch, err := strconv.ParseInt(epochPart, 10, 64)
	if err != nil || epoch < 0 {
		return TxRef{}, fmt.Errorf("%w: bad timestamp in %q", ErrInvalidReference, s)
	}

	var rawIDs []string
	if kind == KindGroup {
		rawIDs = strings.Split(idPart, "_")
	} else {
		rawIDs = []string{idPart}
	}
	ids := make([]uint64, 0, len(rawIDs))
	for _, raw := range rawIDs {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			return TxRef{}, fmt.Errorf("%w: bad id %q in %q", ErrInvalidReference, raw, s)
		}
		ids = append(ids, id)
	}
	return TxRef{Kind: kind, IDs: ids, Epoch: epoch}, nil
}
