package scheduler

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/autofolio/autofolio/internal/storage"
)

// RunStatus is the outcome of one scheduler run
type RunStatus string

const (
	RunSuccess      RunStatus = "success"
	RunFailure      RunStatus = "failure"
	RunSkipped      RunStatus = "skipped"
	RunSuccessRetry RunStatus = "success_retry"
	RunFailureRetry RunStatus = "failure_retry"
)

// maxLogEntries caps the execution log at ring-buffer semantics: only the
// most recent entries are retained.
const maxLogEntries = 100

// LogEntry records the outcome of one scheduler run
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Status    RunStatus `json:"status"`
	Summary   string    `json:"summary"`
	Error     string    `json:"error,omitempty"`
}

// ExecutionLog is the append-only, capped run history persisted as JSON.
type ExecutionLog struct {
	path string
	log  zerolog.Logger

	mu sync.Mutex
}

type execLogFile struct {
	Entries []LogEntry `json:"entries"`
}

// NewExecutionLog creates an execution log backed by the given file.
func NewExecutionLog(path string, log zerolog.Logger) *ExecutionLog {
	return &ExecutionLog{
		path: path,
		log:  log.With().Str("component", "execution_log").Logger(),
	}
}

// Append records one run outcome, evicting the oldest entries beyond the cap.
func (l *ExecutionLog) Append(entry LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	lf := l.load()
	lf.Entries = append(lf.Entries, entry)
	if len(lf.Entries) > maxLogEntries {
		lf.Entries = lf.Entries[len(lf.Entries)-maxLogEntries:]
	}

	if err := storage.WriteJSON(l.path, lf); err != nil {
		return err
	}

	l.log.Info().
		Str("status", string(entry.Status)).
		Str("summary", entry.Summary).
		Msg("Execution logged")
	return nil
}

// Entries returns the retained history, oldest first.
func (l *ExecutionLog) Entries() ([]LogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load().Entries, nil
}

// Last returns the most recent entry, or nil when the log is empty.
func (l *ExecutionLog) Last() (*LogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.load().Entries
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[len(entries)-1], nil
}

func (l *ExecutionLog) load() *execLogFile {
	lf := &execLogFile{Entries: []LogEntry{}}
	if err := storage.ReadJSON(l.path, lf); err != nil {
		return &execLogFile{Entries: []LogEntry{}}
	}
	return lf
}
