package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/voxprivate/internal/pipeline"
)

// Record is a single journal entry. It never contains transcript text.
type Record struct {
	Timestamp   time.Time `json:"timestamp"`
	UtteranceID string    `json:"utterance_id,omitempty"`
	Command     string    `json:"command,omitempty"`
	Success     bool      `json:"success"`
	Kind        string    `json:"kind,omitempty"`
	ExitCode    *int      `json:"exit_code,omitempty"`
}

// Journal persists command outcomes as JSON lines in a local file.
// Thread-safe for concurrent use.
type Journal struct {
	mu   sync.Mutex
	path string
}

// NewJournal creates a Journal that appends to path. The file is created on
// the first write.
func NewJournal(path string) *Journal {
	return &Journal{path: path}
}

// Publish appends result events. Write errors are logged and dropped so a
// full disk never stalls the pipeline.
func (j *Journal) Publish(_ context.Context, ev pipeline.Event) {
	if ev.Type != pipeline.EventResult && ev.Type != pipeline.EventBusy {
		return
	}
	if err := j.Append(recordOf(ev)); err != nil {
		slog.Warn("feedback: journal write failed", "path", j.path, "err", err)
	}
}

// Append writes one record to the file.
func (j *Journal) Append(rec Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("feedback: marshal: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("feedback: open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("feedback: write journal: %w", err)
	}
	return nil
}

func recordOf(ev pipeline.Event) Record {
	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return Record{
		Timestamp:   ts.UTC(),
		UtteranceID: ev.UtteranceID,
		Command:     ev.Command,
		Success:     ev.Success,
		Kind:        ev.Kind,
		ExitCode:    ev.ExitCode,
	}
}

var _ pipeline.Feedback = (*Journal)(nil)
