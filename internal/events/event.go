// Package events defines the annotation event model: immutable, append-only
// records whose replay order is deterministic across devices.
package events

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/dpavlenko/marksync/internal/anchor"
	"github.com/dpavlenko/marksync/internal/common"
	"github.com/dpavlenko/marksync/internal/hashx"
	"github.com/google/uuid"
)

// Event types emitted by the engine.
const (
	TypeCreated = "highlight.created"
	TypeRemoved = "highlight.removed"
)

// RecordVersion is the current HighlightRecord schema version.
const RecordVersion = 2

var hexDigest = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Record is an annotation as captured on some device. Records are owned by
// the event that created them and never edited in place; superseding a
// record means emitting a new event.
type Record struct {
	Version     int               `json:"version"`
	ID          string            `json:"id"`
	Text        string            `json:"text"`
	ContentHash string            `json:"contentHash"`
	ColorRole   string            `json:"colorRole"`
	Color       string            `json:"color,omitempty"`
	Type        string            `json:"type"`
	Ranges      []anchor.Selector `json:"ranges"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// Event is one entry of the append-only log.
type Event struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
	EventID   string `json:"eventId"`
	Data      Record `json:"data"`
}

// NewRecord assembles a highlight record, deriving the content digest from
// text. The digest is never independently settable: divergence between text
// and hash indicates corruption.
func NewRecord(text, colorRole, color string, ranges []anchor.Selector) (Record, error) {
	digest, err := hashx.Hash(text)
	if err != nil {
		return Record{}, err
	}

	r := Record{
		Version:     RecordVersion,
		ID:          uuid.NewString(),
		Text:        text,
		ContentHash: digest,
		ColorRole:   colorRole,
		Color:       color,
		Type:        "highlight",
		Ranges:      ranges,
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}

// NewEvent wraps a record into a log event with a fresh id and the current
// wall-clock timestamp.
func NewEvent(typ string, data Record) Event {
	return Event{
		Type:      typ,
		Timestamp: time.Now().UnixMilli(),
		EventID:   uuid.NewString(),
		Data:      data,
	}
}

// Validate checks the invariants required of a persisted record.
func (r Record) Validate() error {
	if _, err := uuid.Parse(r.ID); err != nil {
		return fmt.Errorf("%w: record id %q is not a uuid", common.ErrValidation, r.ID)
	}
	if r.Text == "" {
		return fmt.Errorf("%w: record text is empty", common.ErrValidation)
	}
	if !hexDigest.MatchString(r.ContentHash) {
		return fmt.Errorf("%w: malformed content hash", common.ErrValidation)
	}
	ok, err := hashx.Verify(r.Text, r.ContentHash)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: content hash does not match text", common.ErrValidation)
	}
	if len(r.Ranges) == 0 {
		return fmt.Errorf("%w: record has no ranges", common.ErrValidation)
	}
	for i, sel := range r.Ranges {
		if err := sel.Validate(); err != nil {
			return fmt.Errorf("range %d: %w", i, err)
		}
	}
	return nil
}

// Validate checks the invariants required of a persisted event.
func (e Event) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("%w: event type is empty", common.ErrValidation)
	}
	if e.Timestamp <= 0 {
		return fmt.Errorf("%w: event timestamp %d", common.ErrValidation, e.Timestamp)
	}
	if _, err := uuid.Parse(e.EventID); err != nil {
		return fmt.Errorf("%w: event id %q is not a uuid", common.ErrValidation, e.EventID)
	}
	return e.Data.Validate()
}

// Less reports whether e sorts before other in replay order: ascending
// timestamp, ties broken by lexical event id. Deterministic on every
// device, independent of insertion order.
func (e Event) Less(other Event) bool {
	if e.Timestamp != other.Timestamp {
		return e.Timestamp < other.Timestamp
	}
	return e.EventID < other.EventID
}

// Sort orders events in place into replay order.
func Sort(evs []Event) {
	sort.Slice(evs, func(i, j int) bool { return evs[i].Less(evs[j]) })
}
