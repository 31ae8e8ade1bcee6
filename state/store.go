package state

import (
	"context"
	"errors"
)

// ErrUnreachable is returned when the shared-state backend cannot be
// reached. It is the only store error that justifies giving up.
var ErrUnreachable = errors.New("state: store unreachable")

// Store is the process-wide typed record store. It is the only legal
// cross-task mutable state.
//
// Save persists every field of the record and increments the record's
// counter in one transaction; concurrent savers are serialized and readers
// never observe a partial write. Load fills the record from a
// counter-consistent snapshot, absent fields keeping their defaults.
// Publish emits the current counter on the channel named after the record;
// subscribers receive at most one counter per save, in monotonic order per
// channel, and are expected to Load if they want the data. Setup writes
// default values for fields that are absent and is idempotent.
type Store interface {
	Setup(ctx context.Context, r Marshaler) error
	Save(ctx context.Context, r Marshaler) error
	Load(ctx context.Context, r Record) error
	Publish(ctx context.Context, name string) error
	Subscribe(ctx context.Context, name string) (<-chan int64, error)
}

func fieldKey(name, field string) string {
	return name + "." + field
}

func counterKey(name string) string {
	return name + ".count"
}
