// Package trace carries the per-file processing context threaded through the
// pipeline stages. Every variant selection, fallback, decode failure, and
// exclusion decision is recorded here and finalized into the processing-log
// artifact; there is no ambient global trace state.
package trace

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry kinds.
const (
	KindVariantSelection = "variant-selection"
	KindFallback         = "fallback"
	KindDecodeFailure    = "decode-failure"
	KindExclusion        = "exclusion"
	KindNote             = "note"
)

// Entry is one recorded decision.
type Entry struct {
	Time    time.Time         `json:"time"`
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Log is the finalized processing-log artifact.
type Log struct {
	FileID     string    `json:"file_id"`
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Entries    []Entry   `json:"entries"`
}

// Context accumulates decisions for one file's pipeline run.
// A file is processed by a single worker, but the mutex keeps the contract
// safe if a stage ever fans out internally.
type Context struct {
	mu        sync.Mutex
	fileID    string
	runID     string
	startedAt time.Time
	entries   []Entry
}

// New creates a processing context for one file.
func New(fileID string) *Context {
	return &Context{
		fileID:    fileID,
		runID:     uuid.NewString(),
		startedAt: time.Now().UTC(),
	}
}

// RunID returns the unique id of this processing run.
func (c *Context) RunID() string { return c.runID }

func (c *Context) record(kind, message string, fields map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, Entry{
		Time:    time.Now().UTC(),
		Kind:    kind,
		Message: message,
		Fields:  fields,
	})
}

// VariantSelected records which variable variant was chosen for a parameter.
func (c *Context) VariantSelected(param, variant string, mode string) {
	c.record(KindVariantSelection, "selected variable variant", map[string]string{
		"parameter": param,
		"variant":   variant,
		"data_mode": mode,
	})
}

// Fallback records that the raw variant was used because no adjusted variant
// exists. Expected and normal for real-time files.
func (c *Context) Fallback(param, reason string) {
	c.record(KindFallback, "fell back to raw variant", map[string]string{
		"parameter": param,
		"reason":    reason,
	})
}

// DecodeFailure records a failed identification-field decode and the sentinel
// default substituted for it.
func (c *Context) DecodeFailure(field, reason, sentinel string) {
	c.record(KindDecodeFailure, "decode failed, sentinel substituted", map[string]string{
		"field":    field,
		"reason":   reason,
		"sentinel": sentinel,
	})
}

// Exclusion records values dropped for a reason.
func (c *Context) Exclusion(param, reason string, count int) {
	c.record(KindExclusion, "values excluded", map[string]string{
		"parameter": param,
		"reason":    reason,
		"count":     strconv.Itoa(count),
	})
}

// Note records an informational decision.
func (c *Context) Note(message string, fields map[string]string) {
	c.record(KindNote, message, fields)
}

// Entries returns a copy of the recorded entries.
func (c *Context) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// CountKind returns how many entries of a kind were recorded. Test helper.
func (c *Context) CountKind(kind string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Finalize snapshots the context into the processing-log artifact.
func (c *Context) Finalize() Log {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := make([]Entry, len(c.entries))
	copy(entries, c.entries)
	return Log{
		FileID:     c.fileID,
		RunID:      c.runID,
		StartedAt:  c.startedAt,
		FinishedAt: time.Now().UTC(),
		Entries:    entries,
	}
}
