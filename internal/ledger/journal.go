package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Journal entry kinds.
const (
	KindIncident     = "incident"
	KindRestartCount = "restart_count"
)

// JournalEntry is one line of the ledger journal.
type JournalEntry struct {
	Timestamp time.Time       `json:"timestamp"`
	Kind      string          `json:"kind"`
	Incident  *Incident       `json:"incident,omitempty"`
	Counter   *RestartCounter `json:"counter,omitempty"`
	EntryHash string          `json:"entry_hash"`
}

// Journal writes append-only, hash-chained ledger entries to a JSON-lines file.
type Journal struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	prevHash string
}

// DefaultJournalPath is where the daemon keeps its journal unless configured.
const DefaultJournalPath = "/var/lib/kube-medic/ledger.jsonl"

// NewJournal opens (or creates) the journal at path.
// The directory is created with 0700; the file with 0600.
// It reads the last entry to recover the hash for chain continuity. A torn
// final line is truncated away before appending resumes.
func NewJournal(path string) (*Journal, error) {
	if path == "" {
		path = DefaultJournalPath
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("journal: create dir %s: %w", dir, err)
	}

	p, err := loadJournal(path)
	if err != nil {
		return nil, err
	}
	prevHash := ""
	if n := len(p.entries); n > 0 {
		prevHash = p.entries[n-1].EntryHash
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	if p.torn {
		if err := f.Truncate(p.goodLen); err != nil {
			f.Close()
			return nil, fmt.Errorf("journal: truncate torn tail: %w", err)
		}
		journalLog().Warn("truncated torn journal tail", "path", path, "bytes", p.size-p.goodLen)
	}
	if p.needsNewline {
		if _, err := f.Write([]byte{'\n'}); err != nil {
			f.Close()
			return nil, fmt.Errorf("journal: terminate last line: %w", err)
		}
	}

	return &Journal{path: path, file: f, prevHash: prevHash}, nil
}

// Path returns the journal file path.
func (j *Journal) Path() string { return j.path }

// Append writes an entry, computing its hash chain value.
func (j *Journal) Append(entry JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	hash, err := chainHash(j.prevHash, entry)
	if err != nil {
		return err
	}
	entry.EntryHash = hash

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("journal: marshal final: %w", err)
	}
	line = append(line, '\n')

	if _, err := j.file.Write(line); err != nil {
		return fmt.Errorf("journal: write: %w", err)
	}
	j.prevHash = hash
	return nil
}

// Close closes the underlying file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}

// chainHash is SHA256(prevHash + json_without_hash).
func chainHash(prevHash string, entry JournalEntry) (string, error) {
	entry.EntryHash = ""
	raw, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("journal: marshal: %w", err)
	}
	h := sha256.Sum256(append([]byte(prevHash), raw...))
	return fmt.Sprintf("%x", h), nil
}

// ErrTornTail reports an unparseable final journal line, as left by a crash
// part way through a write.
var ErrTornTail = errors.New("journal: torn final line")

type parsedJournal struct {
	entries []JournalEntry
	size    int64
	// goodLen is the byte length through the last parseable line.
	goodLen      int64
	torn         bool
	needsNewline bool
}

func loadJournal(path string) (parsedJournal, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return parsedJournal{}, nil
	}
	if err != nil {
		return parsedJournal{}, fmt.Errorf("journal: read %s: %w", path, err)
	}
	return parseJournal(data)
}

// parseJournal decodes JSON lines. Only the final non-blank line may fail to
// parse; that is reported as torn rather than as an error.
func parseJournal(data []byte) (parsedJournal, error) {
	p := parsedJournal{size: int64(len(data))}
	line := 0
	for off := 0; off < len(data); {
		line++
		raw, next := data[off:], len(data)
		if i := bytes.IndexByte(raw, '\n'); i >= 0 {
			raw, next = raw[:i], off+i+1
		}
		if len(bytes.TrimSpace(raw)) == 0 {
			off = next
			p.goodLen = int64(next)
			continue
		}

		var entry JournalEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			if len(bytes.TrimSpace(data[next:])) == 0 {
				p.torn = true
				return p, nil
			}
			return parsedJournal{}, fmt.Errorf("journal: line %d: %w", line, err)
		}
		p.entries = append(p.entries, entry)
		p.goodLen = int64(next)
		off = next
	}
	p.needsNewline = p.goodLen > 0 && data[p.goodLen-1] != '\n'
	return p, nil
}

// ReadJournal returns every entry in the journal at path. A missing file is an
// empty journal. A torn final line is skipped with a warning; VerifyJournal
// reports it.
func ReadJournal(path string) ([]JournalEntry, error) {
	if path == "" {
		path = DefaultJournalPath
	}
	p, err := loadJournal(path)
	if err != nil {
		return nil, err
	}
	if p.torn {
		journalLog().Warn("skipping torn journal tail", "path", path, "entries", len(p.entries), "bytes", p.size-p.goodLen)
	}
	return p.entries, nil
}

// VerifyJournal recomputes the hash chain and reports the first broken entry.
func VerifyJournal(path string) error {
	if path == "" {
		path = DefaultJournalPath
	}
	p, err := loadJournal(path)
	if err != nil {
		return err
	}
	prevHash := ""
	for i, e := range p.entries {
		want, err := chainHash(prevHash, e)
		if err != nil {
			return err
		}
		if e.EntryHash != want {
			return fmt.Errorf("journal: entry %d: hash mismatch", i)
		}
		prevHash = e.EntryHash
	}
	if p.torn {
		return fmt.Errorf("%w after %d entries", ErrTornTail, len(p.entries))
	}
	return nil
}

func journalLog() *slog.Logger {
	return slog.Default().With("component", "ledger")
}
