// Package history implements the persistent, retention-bounded record store
// used for exact-match alert deduplication. Records are keyed by a
// caller-supplied deterministic fingerprint; the store keeps at most one
// record per fingerprint (last write wins) and prunes records past the
// retention window.
package history

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"market-signal-alerts/internal/storage"
)

// Record is the minimal shape every stored record must satisfy.
type Record interface {
	NotifiedTime() time.Time
}

// Fingerprint derives the exact-match dedupe key from a record. It must be
// deterministic and collision-free for logically distinct events.
type Fingerprint[T Record] func(T) (string, error)

// Options configure a Store.
type Options struct {
	// Key is the storage key this store owns. Two concurrently scheduled
	// tasks must never share a key: merge-on-persist is best effort, not a
	// transaction.
	Key string
	// Retention is the maximum record age; records at or past it are pruned.
	Retention time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Store owns the fingerprint → record mapping for one task.
type Store[T Record] struct {
	kv          storage.KV
	key         string
	retention   time.Duration
	fingerprint Fingerprint[T]
	now         func() time.Time
	logger      zerolog.Logger

	loaded  bool
	records map[string]T
}

// NewStore wires a Store over the storage collaborator.
func NewStore[T Record](kv storage.KV, fingerprint Fingerprint[T], opts Options, logger zerolog.Logger) *Store[T] {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store[T]{
		kv:          kv,
		key:         opts.Key,
		retention:   opts.Retention,
		fingerprint: fingerprint,
		now:         now,
		logger:      logger.With().Str("component", "history").Str("key", opts.Key).Logger(),
		records:     make(map[string]T),
	}
}

// Load reads the persisted record array, rebuilds the fingerprint map, and
// prunes expired entries. A missing, empty, or malformed remote value means a
// cold start from an empty set; occasionally re-alerting beats crashing the
// monitor, so Load never fails.
func (s *Store[T]) Load(ctx context.Context) {
	s.records = make(map[string]T)
	for _, record := range s.readRemote(ctx) {
		fp, err := s.fingerprint(record)
		if err != nil {
			s.logger.Warn().Err(err).Msg("skipping persisted record with unfingerprintable shape")
			continue
		}
		s.records[fp] = record
	}
	s.Prune()
	s.loaded = true
}

func (s *Store[T]) ensureLoaded(ctx context.Context) {
	if !s.loaded {
		s.Load(ctx)
	}
}

func (s *Store[T]) readRemote(ctx context.Context) []T {
	raw, err := s.kv.GetItem(ctx, s.key)
	if err != nil {
		s.logger.Warn().Err(err).Msg("history read failed; starting from empty set")
		return nil
	}
	if len(raw) == 0 {
		return nil
	}

	var records []T
	if err := json.Unmarshal(raw, &records); err != nil {
		s.logger.Warn().Err(err).Msg("history value malformed; starting from empty set")
		return nil
	}
	return records
}

// Has reports whether a record with the same fingerprint is already known.
func (s *Store[T]) Has(record T) bool {
	fp, err := s.fingerprint(record)
	if err != nil {
		return false
	}
	_, ok := s.records[fp]
	return ok
}

// AddRecords inserts records into the in-memory map only. Records whose
// fingerprint function fails are kept out of the map but are not an error.
func (s *Store[T]) AddRecords(records []T) {
	for _, record := range records {
		fp, err := s.fingerprint(record)
		if err != nil {
			s.logger.Warn().Err(err).Msg("record excluded from dedupe map: fingerprint failed")
			continue
		}
		s.records[fp] = record
	}
}

// Remove drops records from the in-memory map, matching by fingerprint.
func (s *Store[T]) Remove(records []T) {
	for _, record := range records {
		fp, err := s.fingerprint(record)
		if err != nil {
			continue
		}
		delete(s.records, fp)
	}
}

// All returns the current in-memory record set.
func (s *Store[T]) All() []T {
	records := make([]T, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record)
	}
	return records
}

// Len reports the number of retained records.
func (s *Store[T]) Len() int {
	return len(s.records)
}

// Prune removes every record whose notification time is at or before
// now minus the retention window.
func (s *Store[T]) Prune() {
	cutoff := s.now().Add(-s.retention)
	for fp, record := range s.records {
		if !record.NotifiedTime().After(cutoff) {
			delete(s.records, fp)
		}
	}
}

// Persist prunes, merges in any remote record written concurrently by another
// process that is still within retention and not yet known locally, and
// writes the full merged set back as one array. The merge mitigates, but does
// not eliminate, lost updates between concurrent writers of the same key.
func (s *Store[T]) Persist(ctx context.Context) error {
	s.Prune()

	cutoff := s.now().Add(-s.retention)
	for _, remote := range s.readRemote(ctx) {
		if !remote.NotifiedTime().After(cutoff) {
			continue
		}
		fp, err := s.fingerprint(remote)
		if err != nil {
			continue
		}
		if _, ok := s.records[fp]; !ok {
			s.records[fp] = remote
		}
	}

	payload, err := json.Marshal(s.All())
	if err != nil {
		return err
	}
	return s.kv.SetItem(ctx, s.key, payload)
}

// ClearAll empties both the in-memory map and the remote value.
func (s *Store[T]) ClearAll(ctx context.Context) error {
	s.records = make(map[string]T)
	s.loaded = true
	return s.kv.SetItem(ctx, s.key, []byte("[]"))
}

// FilterResult partitions a candidate batch into new and duplicate inputs.
type FilterResult[I any, T Record] struct {
	New        []I
	Duplicates []I
	NewRecords []T
}

// FilterNew maps each input to its record and fingerprint, reporting inputs
// whose fingerprint is already known as duplicates. New records enter the
// in-memory map immediately, so two inputs in the same batch that collide
// with each other are also deduplicated: first occurrence wins. An input
// whose fingerprint function fails is treated as unconditionally new but
// stays out of the dedupe map, isolating one bad record from the batch.
func FilterNew[I any, T Record](ctx context.Context, s *Store[T], inputs []I, toRecord func(I) T) FilterResult[I, T] {
	s.ensureLoaded(ctx)

	result := FilterResult[I, T]{}
	for _, input := range inputs {
		record := toRecord(input)
		fp, err := s.fingerprint(record)
		if err != nil {
			s.logger.Warn().Err(err).Msg("fingerprint failed; treating record as new")
			result.New = append(result.New, input)
			result.NewRecords = append(result.NewRecords, record)
			continue
		}
		if _, ok := s.records[fp]; ok {
			result.Duplicates = append(result.Duplicates, input)
			continue
		}
		s.records[fp] = record
		result.New = append(result.New, input)
		result.NewRecords = append(result.NewRecords, record)
	}
	return result
}
