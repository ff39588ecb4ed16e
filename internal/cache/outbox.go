package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aimd54/datestreak/internal/models"
)

const (
	outboxKey      = "dg:outbox"
	outboxTriesKey = "dg:outbox:tries:"
)

// OutboxEntry names a pending remote write by its natural key. Writing the
// same entry twice is harmless because the remote write path is idempotent.
type OutboxEntry struct {
	UserID   string
	Mode     models.Mode
	PuzzleID uint
}

// Key returns the member stored in the outbox set.
func (e OutboxEntry) Key() string {
	return fmt.Sprintf("%s|%s|%d", e.UserID, e.Mode, e.PuzzleID)
}

// ParseOutboxKey reverses OutboxEntry.Key. The mode and puzzle id are taken
// from the right so user ids may contain the separator.
func ParseOutboxKey(key string) (OutboxEntry, error) {
	idSep := strings.LastIndex(key, "|")
	if idSep < 0 {
		return OutboxEntry{}, fmt.Errorf("malformed outbox key %q", key)
	}
	modeSep := strings.LastIndex(key[:idSep], "|")
	if modeSep < 0 {
		return OutboxEntry{}, fmt.Errorf("malformed outbox key %q", key)
	}
	mode, err := models.ParseMode(key[modeSep+1 : idSep])
	if err != nil {
		return OutboxEntry{}, fmt.Errorf("outbox key %q: %w", key, err)
	}
	id, err := strconv.ParseUint(key[idSep+1:], 10, 64)
	if err != nil {
		return OutboxEntry{}, fmt.Errorf("outbox key %q: bad puzzle id: %w", key, err)
	}
	return OutboxEntry{UserID: key[:modeSep], Mode: mode, PuzzleID: uint(id)}, nil
}

// Outbox is a retry queue of remote writes, ordered by next attempt time.
type Outbox struct {
	store Store
	base  time.Duration
	max   time.Duration
	now   func() time.Time
}

// NewOutbox creates an outbox with exponential backoff between base and max.
func NewOutbox(store Store, base, max time.Duration) *Outbox {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	return &Outbox{store: store, base: base, max: max, now: time.Now}
}

// Enqueue schedules the entry for the next drain.
func (o *Outbox) Enqueue(ctx context.Context, entry OutboxEntry) error {
	return o.store.ZAdd(ctx, outboxKey, float64(o.now().Unix()), entry.Key())
}

// Due returns up to limit entries whose retry time has come.
func (o *Outbox) Due(ctx context.Context, limit int) ([]OutboxEntry, error) {
	keys, err := o.store.ZRangeByScore(ctx, outboxKey, float64(o.now().Unix()), int64(limit))
	if err != nil {
		return nil, err
	}

	entries := make([]OutboxEntry, 0, len(keys))
	for _, k := range keys {
		entry, err := ParseOutboxKey(k)
		if err != nil {
			// Unreadable members would block the queue forever.
			_ = o.store.ZRem(ctx, outboxKey, k)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Ack removes a written entry.
func (o *Outbox) Ack(ctx context.Context, entry OutboxEntry) error {
	if err := o.store.ZRem(ctx, outboxKey, entry.Key()); err != nil {
		return err
	}
	return o.store.Del(ctx, outboxTriesKey+entry.Key())
}

// Retry pushes the entry back with a delay doubling on every failure.
// It returns the delay applied.
func (o *Outbox) Retry(ctx context.Context, entry OutboxEntry) (time.Duration, error) {
	tries, err := o.store.Incr(ctx, outboxTriesKey+entry.Key())
	if err != nil {
		return 0, err
	}

	delay := o.backoff(tries)
	next := o.now().Add(delay)
	if err := o.store.ZAdd(ctx, outboxKey, float64(next.Unix()), entry.Key()); err != nil {
		return 0, err
	}
	return delay, nil
}

func (o *Outbox) backoff(tries int64) time.Duration {
	delay := o.base
	for i := int64(1); i < tries; i++ {
		delay *= 2
		if delay >= o.max {
			return o.max
		}
	}
	return delay
}

// Len returns the number of queued entries.
func (o *Outbox) Len(ctx context.Context) (int64, error) {
	return o.store.ZCard(ctx, outboxKey)
}
