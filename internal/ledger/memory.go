package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// MemoryStore keeps the ledger in process memory, optionally mirroring every
// write to a Journal.
type MemoryStore struct {
	mu        sync.Mutex
	incidents []Incident
	counters  map[counterKey]RestartCounter
	now       Clock
	journal   *Journal
	log       *slog.Logger
}

// NewMemoryStore returns an empty in-memory ledger.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{
		counters: make(map[counterKey]RestartCounter),
		now:      o.now,
		log:      slog.Default().With("component", "ledger"),
	}
}

// OpenJournalStore replays the journal at path into a new MemoryStore and keeps
// appending to it.
func OpenJournalStore(path string, opts ...Option) (*MemoryStore, error) {
	entries, err := ReadJournal(path)
	if err != nil {
		return nil, err
	}
	s := NewMemoryStore(opts...)
	for _, e := range entries {
		s.apply(e)
	}
	j, err := NewJournal(path)
	if err != nil {
		return nil, err
	}
	s.journal = j
	s.log.Info("ledger journal replayed", "path", j.Path(), "entries", len(entries), "incidents", len(s.incidents))
	return s, nil
}

func (s *MemoryStore) apply(e JournalEntry) {
	switch e.Kind {
	case KindIncident:
		if e.Incident != nil {
			s.incidents = append(s.incidents, *e.Incident)
		}
	case KindRestartCount:
		if e.Counter != nil {
			s.counters[counterKey{e.Counter.PodName, e.Counter.Namespace}] = *e.Counter
		}
	}
}

// AddIncident appends an incident.
func (s *MemoryStore) AddIncident(_ context.Context, in Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal != nil {
		if err := s.journal.Append(JournalEntry{Kind: KindIncident, Incident: &in}); err != nil {
			return fmt.Errorf("journal incident %s: %w", in.ID, err)
		}
	}
	s.incidents = append(s.incidents, in)
	return nil
}

// Incidents returns matching incidents newest first.
func (s *MemoryStore) Incidents(_ context.Context, f Filter) ([]Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Incident, 0)
	for i := len(s.incidents) - 1; i >= 0; i-- {
		if !f.match(s.incidents[i]) {
			continue
		}
		out = append(out, s.incidents[i])
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

// RestartCount returns today's restart count, dropping a stale counter.
func (s *MemoryStore) RestartCount(_ context.Context, pod, namespace string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked(counterKey{pod, namespace}), nil
}

func (s *MemoryStore) currentLocked(key counterKey) int {
	c, ok := s.counters[key]
	if !ok {
		return 0
	}
	if c.Day != dayOf(s.now()) {
		delete(s.counters, key)
		return 0
	}
	return c.Count
}

// IncrementRestartCount bumps today's count and returns the new value.
func (s *MemoryStore) IncrementRestartCount(_ context.Context, pod, namespace string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := counterKey{pod, namespace}
	c := RestartCounter{
		PodName:   pod,
		Namespace: namespace,
		Count:     s.currentLocked(key) + 1,
		Day:       dayOf(s.now()),
	}
	if s.journal != nil {
		if err := s.journal.Append(JournalEntry{Kind: KindRestartCount, Counter: &c}); err != nil {
			return 0, fmt.Errorf("journal restart count %s/%s: %w", namespace, pod, err)
		}
	}
	s.counters[key] = c
	return c.Count, nil
}

// ClearOldRestartCounts removes counters whose day is not today.
func (s *MemoryStore) ClearOldRestartCounts(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	today := dayOf(s.now())
	removed := 0
	for key, c := range s.counters {
		if c.Day != today {
			delete(s.counters, key)
			removed++
		}
	}
	if removed > 0 {
		s.log.Debug("cleared stale restart counters", "removed", removed)
	}
	return removed, nil
}

// RestartCounts returns today's counters sorted by namespace and pod.
func (s *MemoryStore) RestartCounts(_ context.Context) ([]RestartCounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	today := dayOf(s.now())
	out := make([]RestartCounter, 0, len(s.counters))
	for _, c := range s.counters {
		if c.Day == today {
			out = append(out, c)
		}
	}
	sortCounters(out)
	return out, nil
}

// Close closes the journal, if any.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	return s.journal.Close()
}

func sortCounters(cs []RestartCounter) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Namespace != cs[j].Namespace {
			return cs[i].Namespace < cs[j].Namespace
		}
		return cs[i].PodName < cs[j].PodName
	})
}
