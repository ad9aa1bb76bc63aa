package learning

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// statusDirs are the four sibling directories a correction can live in.
var statusDirs = []string{"pending", "approved", "rejected", "applied"}

// Storage persists corrections as <uuid>.json documents under four status
// directories. A correction's directory is determined by its final status;
// each save writes the new location and removes any stale copy, so a
// correction exists in exactly one directory at any time.
//
// Saves of distinct ids may run concurrently; a per-store mutex keeps the
// cross-directory move of one id atomic with respect to readers.
type Storage struct {
	basePath string
	mu       sync.Mutex
}

// NewStorage creates the four status directories under basePath if missing.
func NewStorage(basePath string) (*Storage, error) {
	s := &Storage{basePath: basePath}
	if err := s.ensureDirectories(); err != nil {
		return nil, err
	}
	return s, nil
}

// ensureDirectories creates the status directories.
func (s *Storage) ensureDirectories() error {
	for _, dir := range statusDirs {
		if err := os.MkdirAll(filepath.Join(s.basePath, dir), 0o755); err != nil {
			return fmt.Errorf("correction store: create %s: %w", dir, err)
		}
	}
	return nil
}

// dirFor maps a final status to its storage directory. Everything that is
// neither rejected, approved, pending, nor applied (processing, gate1_error)
// defaults to pending.
func dirFor(finalStatus string) string {
	switch {
	case strings.HasPrefix(finalStatus, "rejected"):
		return "rejected"
	case finalStatus == StatusApproved:
		return "approved"
	case finalStatus == StatusApplied:
		return "applied"
	default:
		return "pending"
	}
}

// path returns the file location for a correction id in the given directory.
func (s *Storage) path(dir, id string) string {
	return filepath.Join(s.basePath, dir, id+".json")
}

// Save persists c at the location its final status dictates and removes any
// older copy in another directory.
func (s *Storage) Save(c *Correction) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("correction store: marshal %s: %w", c.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.path(dirFor(c.FinalStatus), c.ID)
	for _, dir := range statusDirs {
		p := s.path(dir, c.ID)
		if p == target {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("correction store: remove stale %s: %w", p, err)
		}
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("correction store: write %s: %w", target, err)
	}
	return nil
}

// Load finds a correction by id across all directories. Returns (nil, nil)
// when no file exists.
func (s *Storage) Load(id string) (*Correction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, dir := range statusDirs {
		data, err := os.ReadFile(s.path(dir, id))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("correction store: read %s: %w", id, err)
		}
		var c Correction
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("correction store: decode %s: %w", id, err)
		}
		return &c, nil
	}
	return nil, nil
}

// ListPending returns the corrections in the pending directory, sorted
// ascending by submission time.
func (s *Storage) ListPending() ([]*Correction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.basePath, "pending"))
	if err != nil {
		return nil, fmt.Errorf("correction store: list pending: %w", err)
	}

	var out []*Correction
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.basePath, "pending", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("correction store: read %s: %w", e.Name(), err)
		}
		var c Correction
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("correction store: decode %s: %w", e.Name(), err)
		}
		out = append(out, &c)
	}

	slices.SortFunc(out, func(a, b *Correction) int {
		return strings.Compare(a.SubmittedAt, b.SubmittedAt)
	})
	return out, nil
}

// PendingCount returns the number of pending corrections.
func (s *Storage) PendingCount() (int, error) {
	pending, err := s.ListPending()
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}

// Healthy reports whether the storage directories are accessible.
func (s *Storage) Healthy() bool {
	return s.ensureDirectories() == nil
}

// ── Gate-transition helpers ──────────────────────────────────────────────────

// RecordGate1 stores the gate 1 result and advances the final status on
// reject or error.
func (s *Storage) RecordGate1(c *Correction, status, reason string) error {
	c.Gate1 = &GateResult{Status: status, Reason: reason, ProcessedAt: nowRFC3339()}
	switch status {
	case GateReject:
		c.FinalStatus = StatusRejectedGate1
	case GateError:
		c.FinalStatus = StatusGate1Error
	}
	return s.Save(c)
}

// RecordGate2A stores the gate 2a result and advances the final status on
// reject. A gate 2a error terminates the pipeline without a dedicated final
// status; the correction stays in processing.
func (s *Storage) RecordGate2A(c *Correction, status string, confidence float64, reason string) error {
	c.Gate2A = &GateResult{Status: status, Confidence: &confidence, Reason: reason, ProcessedAt: nowRFC3339()}
	if status == GateReject {
		c.FinalStatus = StatusRejectedGate2A
	}
	return s.Save(c)
}

// RecordGate2B stores the gate 2b result and advances the final status on
// reject.
func (s *Storage) RecordGate2B(c *Correction, status, reason string) error {
	c.Gate2B = &GateResult{Status: status, Reason: reason, ProcessedAt: nowRFC3339()}
	if status == GateReject {
		c.FinalStatus = StatusRejectedGate2B
	}
	return s.Save(c)
}

// RecordGate3Pending moves the correction into human review.
func (s *Storage) RecordGate3Pending(c *Correction) error {
	c.Gate3 = &Gate3Details{Status: Gate3Pending, SubmittedAt: nowRFC3339()}
	c.FinalStatus = StatusPending
	return s.Save(c)
}

// RecordGate3Review records an admin decision. action is "approve" or
// "reject"; reason is stored as the reject reason when present.
func (s *Storage) RecordGate3Review(c *Correction, action, reviewer, reason string) error {
	if c.Gate3 == nil {
		c.Gate3 = &Gate3Details{Status: Gate3Pending, SubmittedAt: nowRFC3339()}
	}
	c.Gate3.ReviewedAt = nowRFC3339()
	c.Gate3.Reviewer = reviewer
	if reason != "" {
		c.Gate3.RejectReason = reason
	}
	if action == "approve" {
		c.Gate3.Status = Gate3Approved
		c.FinalStatus = StatusApproved
	} else {
		c.Gate3.Status = Gate3Rejected
		c.FinalStatus = StatusRejectedGate3
	}
	return s.Save(c)
}

// MarkApplied records a successful memory commit.
func (s *Storage) MarkApplied(c *Correction, memoryID string) error {
	c.AppliedAt = nowRFC3339()
	c.MemoryID = memoryID
	c.FinalStatus = StatusApplied
	return s.Save(c)
}
