package report

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// EventType represents the type of event
type EventType string

const (
	EventRunStart  EventType = "run_start"
	EventRunEnd    EventType = "run_end"
	EventIndex     EventType = "index"
	EventMatch     EventType = "match"
	EventVerify    EventType = "verify"
	EventReset     EventType = "reset"
	EventFileCheck EventType = "file_check"
	EventAudit     EventType = "audit"
	EventClean     EventType = "clean"
	EventError     EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// levelPriority maps event levels to numeric priorities for comparison
var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// ParseLevel converts a level name, defaulting to info
func ParseLevel(s string) EventLevel {
	level := EventLevel(s)
	if _, ok := levelPriority[level]; ok {
		return level
	}
	return LevelInfo
}

// Event represents a single event of a batch job
type Event struct {
	Timestamp time.Time         `json:"ts"`
	Level     EventLevel        `json:"level"`
	Event     EventType         `json:"event"`
	RunID     string            `json:"run_id,omitempty"`
	Job       string            `json:"job,omitempty"`
	ItemID    int64             `json:"item_id,omitempty"`
	Title     string            `json:"title,omitempty"`
	Artist    string            `json:"artist,omitempty"`
	Method    string            `json:"method,omitempty"`
	Status    string            `json:"status,omitempty"`
	Path      string            `json:"path,omitempty"`
	Count     int64             `json:"count,omitempty"`
	Duration  int64             `json:"duration_ms,omitempty"` // in milliseconds
	Error     string            `json:"error,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to a JSONL file
type EventLogger struct {
	file     afero.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	runID    string
	minLevel EventLevel
}

// NewEventLogger creates a new event logger for one run. minLevel
// determines which events are written (e.g., LevelInfo skips LevelDebug).
func NewEventLogger(fsys afero.Fs, outputDir, runID string, minLevel EventLevel) (*EventLogger, error) {
	if err := fsys.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	// Generate filename with timestamp and run
	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("events-%s.jsonl", timestamp)
	if runID != "" {
		filename = fmt.Sprintf("events-%s-%.8s.jsonl", timestamp, runID)
	}
	path := filepath.Join(outputDir, filename)

	file, err := fsys.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		runID:    runID,
		minLevel: minLevel,
	}, nil
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil // Silently ignore if logger not initialized
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.RunID == "" {
		event.RunID = l.runID
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return nil
}

// LogRunStart logs the start of a batch job
func (l *EventLogger) LogRunStart(job string) error {
	return l.Log(&Event{
		Level: LevelInfo,
		Event: EventRunStart,
		Job:   job,
	})
}

// LogRunEnd logs the end of a batch job with its counters
func (l *EventLogger) LogRunEnd(job string, duration time.Duration, counters map[string]int, err error) error {
	level := LevelInfo
	errMsg := ""
	if err != nil {
		level = LevelError
		errMsg = err.Error()
	}

	extra := make(map[string]string, len(counters))
	for k, v := range counters {
		extra[k] = fmt.Sprintf("%d", v)
	}

	return l.Log(&Event{
		Level:    level,
		Event:    EventRunEnd,
		Job:      job,
		Duration: duration.Milliseconds(),
		Error:    errMsg,
		Extra:    extra,
	})
}

// LogIndex logs tracks added to the index
func (l *EventLogger) LogIndex(job string, indexed int) error {
	return l.Log(&Event{
		Level: LevelInfo,
		Event: EventIndex,
		Job:   job,
		Count: int64(indexed),
	})
}

// LogMatch logs a missing item found in the library
func (l *EventLogger) LogMatch(itemID int64, title, artist, method string) error {
	return l.Log(&Event{
		Level:  LevelInfo,
		Event:  EventMatch,
		ItemID: itemID,
		Title:  title,
		Artist: artist,
		Method: method,
	})
}

// LogVerify logs the outcome of checking one item. Confirmed items are
// debug level; everything else is info.
func (l *EventLogger) LogVerify(itemID int64, title, artist, method string, exists bool) error {
	level := LevelInfo
	if exists {
		level = LevelDebug
	}

	return l.Log(&Event{
		Level:  level,
		Event:  EventVerify,
		ItemID: itemID,
		Title:  title,
		Artist: artist,
		Method: method,
		Extra: map[string]string{
			"exists": fmt.Sprintf("%t", exists),
		},
	})
}

// LogReset logs an item put back to status
func (l *EventLogger) LogReset(itemID int64, title, artist, status, reason string) error {
	return l.Log(&Event{
		Level:  LevelWarning,
		Event:  EventReset,
		ItemID: itemID,
		Title:  title,
		Artist: artist,
		Status: status,
		Extra: map[string]string{
			"reason": reason,
		},
	})
}

// LogFileCheck logs a download file lookup
func (l *EventLogger) LogFileCheck(itemID int64, title, artist, path string, found bool) error {
	level := LevelDebug
	if !found {
		level = LevelWarning
	}

	return l.Log(&Event{
		Level:  level,
		Event:  EventFileCheck,
		ItemID: itemID,
		Title:  title,
		Artist: artist,
		Path:   path,
		Extra: map[string]string{
			"found": fmt.Sprintf("%t", found),
		},
	})
}

// LogAudit logs the tier tallies of an audit
func (l *EventLogger) LogAudit(tallies map[string]int) error {
	extra := make(map[string]string, len(tallies))
	var total int64
	for k, v := range tallies {
		extra[k] = fmt.Sprintf("%d", v)
		total += int64(v)
	}

	return l.Log(&Event{
		Level: LevelInfo,
		Event: EventAudit,
		Count: total,
		Extra: extra,
	})
}

// LogClean logs registry entries removed by a cleanup
func (l *EventLogger) LogClean(job string, removed int64) error {
	return l.Log(&Event{
		Level: LevelInfo,
		Event: EventClean,
		Job:   job,
		Count: removed,
	})
}

// LogError logs an error event
func (l *EventLogger) LogError(job string, itemID int64, err error) error {
	return l.Log(&Event{
		Level:  LevelError,
		Event:  EventError,
		Job:    job,
		ItemID: itemID,
		Error:  err.Error(),
	})
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// RunID returns the run the logger belongs to
func (l *EventLogger) RunID() string {
	if l == nil {
		return ""
	}
	return l.runID
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}
