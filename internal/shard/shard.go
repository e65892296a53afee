// Package shard implements one partition of the record set. A Shard stores
// the records routed to it, numbers them with dense shard-local ordinals and
// keeps one lazily created FieldIndex per field name.
//
// Writes are two-phase so a cluster can make a replicated write all-or-
// nothing: Prepare validates and reserves the record, Commit makes it
// visible, Abort releases the reservation without side effects.
package shard

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cespare/xxhash/v2"

	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/fieldindex"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/posting"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/errors"
)

const numStripes = 256

// Options configure a Shard. The zero value uses the trie strategy and the
// replace duplicate policy.
type Options struct {
	Factory         fieldindex.Factory
	DuplicatePolicy string
	Wildcard        rune
}

// Shard owns a partition of records and their field indexes.
type Shard struct {
	id       int
	newIndex fieldindex.Factory
	policy   string
	wildcard rune

	// lifecycle is read-held by every in-flight write so Close can wait for
	// them to finish.
	lifecycle sync.RWMutex
	closed    bool

	// stripes serialize writes to the same record ID.
	stripes [numStripes]sync.Mutex

	mu      sync.RWMutex
	ords    map[string]uint32
	records []record.Record

	fieldsMu sync.RWMutex
	fields   map[string]fieldindex.FieldIndex

	logger *slog.Logger
}

func New(id int, opts Options) *Shard {
	if opts.Factory == nil {
		opts.Factory, _ = fieldindex.NewFactory(config.StrategyTrie, fieldindex.DefaultOptions())
	}
	if opts.DuplicatePolicy == "" {
		opts.DuplicatePolicy = config.DuplicateReplace
	}
	if opts.Wildcard == 0 {
		opts.Wildcard = '*'
	}
	return &Shard{
		id:       id,
		newIndex: opts.Factory,
		policy:   opts.DuplicatePolicy,
		wildcard: opts.Wildcard,
		ords:     make(map[string]uint32),
		fields:   make(map[string]fieldindex.FieldIndex),
		logger:   slog.Default().With("component", "shard", "shard_id", id),
	}
}

// ID returns the shard's index within its cluster.
func (s *Shard) ID() int { return s.id }

// Write is a prepared, not yet visible record write. Exactly one of Commit
// or Abort must be called.
type Write struct {
	s      *Shard
	rec    record.Record
	stripe *sync.Mutex
	done   bool
}

// Prepare reserves rec for writing. It fails with ErrShardClosed once the
// shard is closed and with ErrRecordExists when the shard rejects duplicates
// and already holds rec.ID. On success the caller holds the record's stripe
// lock until Commit or Abort.
func (s *Shard) Prepare(rec record.Record) (*Write, error) {
	const op = "shard.prepare"
	if rec.ID == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, op, "record id is empty")
	}
	s.lifecycle.RLock()
	if s.closed {
		s.lifecycle.RUnlock()
		return nil, apperrors.Newf(apperrors.ErrShardClosed, op, "shard %d", s.id)
	}
	stripe := &s.stripes[xxhash.Sum64String(rec.ID)%numStripes]
	stripe.Lock()
	if s.policy == config.DuplicateReject && s.Contains(rec.ID) {
		stripe.Unlock()
		s.lifecycle.RUnlock()
		return nil, apperrors.Newf(apperrors.ErrRecordExists, op, "record %q on shard %d", rec.ID, s.id)
	}
	return &Write{s: s, rec: rec.Clone(), stripe: stripe}, nil
}

// Commit makes the prepared record visible. The new version's postings are
// added before it is swapped in; under the replace policy the postings of the
// previous version that the new one no longer produces are retracted after
// the swap.
func (w *Write) Commit() {
	if w.done {
		return
	}
	w.done = true
	defer w.release()

	s := w.s
	s.mu.Lock()
	ord, exists := s.ords[w.rec.ID]
	if !exists {
		// Reserve the ordinal; the ID becomes visible with the swap below.
		ord = uint32(len(s.records))
		s.records = append(s.records, record.Record{ID: w.rec.ID})
	}
	s.mu.Unlock()

	for _, f := range w.rec.Fields {
		text := f.Value.Text()
		terms := tokenizer.Terms(text)
		if len(terms) == 0 {
			continue
		}
		ix := s.indexFor(f.Name)
		for _, term := range terms {
			ix.AddTerm(term, ord)
		}
		ix.AddValue(text, ord)
	}

	s.mu.Lock()
	prev := s.records[ord]
	s.records[ord] = w.rec
	s.ords[w.rec.ID] = ord
	s.mu.Unlock()

	if exists {
		s.retract(prev, w.rec, ord)
	}
}

// Abort releases a prepared write without changing the shard.
func (w *Write) Abort() {
	if w.done {
		return
	}
	w.done = true
	w.release()
}

func (w *Write) release() {
	w.stripe.Unlock()
	w.s.lifecycle.RUnlock()
}

// retract removes the postings prev produced that next does not.
func (s *Shard) retract(prev, next record.Record, ord uint32) {
	for _, f := range prev.Fields {
		ix := s.index(f.Name)
		if ix == nil {
			continue
		}
		oldText := f.Value.Text()
		var keep map[string]struct{}
		newText := ""
		if nv, ok := next.Get(f.Name); ok {
			newText = nv.Text()
			keep = make(map[string]struct{})
			for _, t := range tokenizer.Terms(newText) {
				keep[t] = struct{}{}
			}
		}
		for _, t := range tokenizer.Terms(oldText) {
			if _, ok := keep[t]; !ok {
				ix.RemoveTerm(t, ord)
			}
		}
		if oldText != "" && oldText != newText {
			ix.RemoveValue(oldText, ord)
		}
	}
}

// AddRecord prepares and immediately commits rec.
func (s *Shard) AddRecord(rec record.Record) error {
	w, err := s.Prepare(rec)
	if err != nil {
		return err
	}
	w.Commit()
	return nil
}

func (s *Shard) index(field string) fieldindex.FieldIndex {
	s.fieldsMu.RLock()
	defer s.fieldsMu.RUnlock()
	return s.fields[field]
}

func (s *Shard) indexFor(field string) fieldindex.FieldIndex {
	if ix := s.index(field); ix != nil {
		return ix
	}
	s.fieldsMu.Lock()
	defer s.fieldsMu.Unlock()
	if ix, ok := s.fields[field]; ok {
		return ix
	}
	ix := s.newIndex(field)
	s.fields[field] = ix
	s.logger.Debug("field index created", "field", field)
	return ix
}

// Search returns the IDs of records whose field contains every
// whitespace-separated word of term.
func (s *Shard) Search(field, term string) []string {
	ix := s.index(field)
	if ix == nil {
		return nil
	}
	terms := tokenizer.Terms(term)
	if len(terms) == 0 {
		return nil
	}
	bms := make([]*roaring.Bitmap, 0, len(terms))
	for _, t := range terms {
		bm := ix.Search(t)
		if bm.IsEmpty() {
			return nil
		}
		bms = append(bms, bm)
	}
	return s.resolve(posting.Intersect(bms...), TermMatcher(field, term))
}

// SearchValue returns the IDs of records whose whole field value equals raw.
func (s *Shard) SearchValue(field, raw string) []string {
	ix := s.index(field)
	if ix == nil || raw == "" {
		return nil
	}
	return s.resolve(ix.SearchValue(raw), ValueMatcher(field, raw))
}

// WildcardSearch returns the IDs of records with a term matching every
// whitespace-separated sub-pattern of pattern.
func (s *Shard) WildcardSearch(field, pattern string) []string {
	ix := s.index(field)
	if ix == nil {
		return nil
	}
	parts := strings.Fields(pattern)
	if len(parts) == 0 {
		return nil
	}
	bms := make([]*roaring.Bitmap, 0, len(parts))
	for _, p := range parts {
		bm := ix.WildcardSearch(p)
		if bm.IsEmpty() {
			return nil
		}
		bms = append(bms, bm)
	}
	return s.resolve(posting.Intersect(bms...), WildcardMatcher(field, pattern, s.wildcard))
}

// SearchAny returns the IDs of records where any field contains term. A term
// holding the wildcard rune is matched as a pattern.
func (s *Shard) SearchAny(term string) []string {
	if term == "" {
		return nil
	}
	wildcard := strings.ContainsRune(term, s.wildcard)
	ixs := s.indexes()
	bms := make([]*roaring.Bitmap, 0, len(ixs))
	for _, ix := range ixs {
		if wildcard {
			bms = append(bms, ix.WildcardSearch(term))
		} else {
			bms = append(bms, ix.Search(term))
		}
	}
	return s.resolve(posting.Union(bms...), AnyFieldMatcher([]string{term}, s.wildcard))
}

func (s *Shard) indexes() []fieldindex.FieldIndex {
	s.fieldsMu.RLock()
	defer s.fieldsMu.RUnlock()
	out := make([]fieldindex.FieldIndex, 0, len(s.fields))
	for _, ix := range s.fields {
		out = append(out, ix)
	}
	return out
}

// resolve maps ordinals to IDs, dropping records that no longer satisfy
// match.
func (s *Shard) resolve(bm *roaring.Bitmap, match Matcher) []string {
	if bm.IsEmpty() {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		ord := it.Next()
		if int(ord) < len(s.records) && match(s.records[ord]) {
			out = append(out, s.records[ord].ID)
		}
	}
	return out
}

// Get returns a copy of the stored record.
func (s *Shard) Get(id string) (record.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ord, ok := s.ords[id]
	if !ok {
		return record.Record{}, false
	}
	return s.records[ord].Clone(), true
}

func (s *Shard) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ords[id]
	return ok
}

// Len returns the number of records stored.
func (s *Shard) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ords)
}

// Fields returns the sorted names of every field seen by this shard.
func (s *Shard) Fields() []string {
	s.fieldsMu.RLock()
	out := make([]string, 0, len(s.fields))
	for name := range s.fields {
		out = append(out, name)
	}
	s.fieldsMu.RUnlock()
	sort.Strings(out)
	return out
}

// Stats summarizes a shard.
type Stats struct {
	ID             int
	Records        int
	Fields         int
	Index          fieldindex.Stats
	BloomFillRatio float64
}

func (s *Shard) Stats() Stats {
	st := Stats{ID: s.id, Records: s.Len()}
	ixs := s.indexes()
	st.Fields = len(ixs)
	var fill float64
	for _, ix := range ixs {
		fs := ix.Stats()
		st.Index.Add(fs)
		st.Index.Strategy = fs.Strategy
		fill += fs.BloomFillRatio
	}
	if len(ixs) > 0 {
		st.BloomFillRatio = fill / float64(len(ixs))
	}
	return st
}

// Close rejects further writes and waits for in-flight ones. Reads keep
// working on the records already committed.
func (s *Shard) Close() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Info("shard closed", "records", s.Len())
	return nil
}
