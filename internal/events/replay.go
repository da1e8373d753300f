package events

// Replay folds an event sequence into the set of currently active
// highlights. Events are replayed in deterministic order regardless of the
// order they are passed in.
//
// Deduplication: the content digest is the cross-device identity of a
// highlight, so the earliest created-event per digest wins and later
// duplicates (the same passage captured on another device) are dropped.
// A removed-event tombstones the digest; a created-event arriving after the
// tombstone in replay order re-activates it.
func Replay(evs []Event) []Record {
	ordered := make([]Event, len(evs))
	copy(ordered, evs)
	Sort(ordered)

	active := make(map[string]Record)
	var order []string

	for _, e := range ordered {
		digest := e.Data.ContentHash
		switch e.Type {
		case TypeCreated:
			if _, dup := active[digest]; dup {
				continue
			}
			active[digest] = e.Data
			order = append(order, digest)
		case TypeRemoved:
			delete(active, digest)
		}
	}

	out := make([]Record, 0, len(active))
	for _, digest := range order {
		if r, ok := active[digest]; ok {
			out = append(out, r)
			delete(active, digest)
		}
	}
	return out
}
