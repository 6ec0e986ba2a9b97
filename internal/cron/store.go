package cron

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists the job set as one JSON document, rewritten atomically
// (write temp, rename) on every mutation.
type Store struct {
	path string
	now  func() time.Time

	mu   sync.Mutex
	jobs map[string]*Job
}

type document struct {
	Jobs []*Job `json:"jobs"`
}

// NewStore opens (or creates) the job document at path.
func NewStore(path string, now func() time.Time) (*Store, error) {
	if path == "" {
		return nil, errors.New("job store path is required")
	}
	if now == nil {
		now = time.Now
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create job store dir: %w", err)
	}
	s := &Store{path: path, now: now, jobs: make(map[string]*Job)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read job store: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse job store: %w", err)
	}
	for _, job := range doc.Jobs {
		s.jobs[job.ID] = job
	}
	return nil
}

// persistLocked rewrites the document. Jobs are sorted by creation time
// so the file is stable across rewrites.
func (s *Store) persistLocked() error {
	doc := document{Jobs: make([]*Job, 0, len(s.jobs))}
	for _, job := range s.jobs {
		doc.Jobs = append(doc.Jobs, job)
	}
	sort.Slice(doc.Jobs, func(i, j int) bool {
		if doc.Jobs[i].CreatedAt.Equal(doc.Jobs[j].CreatedAt) {
			return doc.Jobs[i].ID < doc.Jobs[j].ID
		}
		return doc.Jobs[i].CreatedAt.Before(doc.Jobs[j].CreatedAt)
	})

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode job store: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write job store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename job store: %w", err)
	}
	return nil
}

// Add validates and persists a new job with its first next-run set.
func (s *Store) Add(job *Job) (*Job, error) {
	if job == nil {
		return nil, errors.New("job is required")
	}
	if err := job.Schedule.Validate(); err != nil {
		return nil, err
	}
	now := s.now()

	stored := job.Clone()
	stored.ID = uuid.NewString()[:8]
	stored.CreatedAt = now
	stored.UpdatedAt = now
	if stored.Schedule.Kind == KindAt {
		// One-shot jobs clean up after themselves unless asked not to.
		stored.DeleteAfterRun = true
		if job.DeleteAfterRunSet() {
			stored.DeleteAfterRun = job.DeleteAfterRun
		}
	}
	if stored.Enabled {
		stored.NextRun = stored.Schedule.Next(now)
		if stored.NextRun == nil {
			return nil, fmt.Errorf("job %q would never fire: scheduled time is in the past", stored.Name)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[stored.ID] = stored
	if err := s.persistLocked(); err != nil {
		delete(s.jobs, stored.ID)
		return nil, err
	}
	return stored.Clone(), nil
}

// Remove deletes a job.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job not found: %s", id)
	}
	delete(s.jobs, id)
	if err := s.persistLocked(); err != nil {
		s.jobs[id] = job
		return err
	}
	return nil
}

// SetEnabled toggles a job. Enabling recomputes next-run from now;
// disabling freezes it.
func (s *Store) SetEnabled(id string, enabled bool) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", id)
	}
	prev := job.Clone()
	job.Enabled = enabled
	job.UpdatedAt = s.now()
	if enabled {
		job.NextRun = job.Schedule.Next(s.now())
		if job.NextRun == nil {
			s.jobs[id] = prev
			return nil, fmt.Errorf("job %q would never fire: scheduled time is in the past", job.Name)
		}
	}
	if err := s.persistLocked(); err != nil {
		s.jobs[id] = prev
		return nil, err
	}
	return job.Clone(), nil
}

// Get returns one job.
func (s *Store) Get(id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", id)
	}
	return job.Clone(), nil
}

// List returns jobs sorted by creation time. Disabled jobs are included
// only when requested.
func (s *Store) List(includeDisabled bool) []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if !job.Enabled && !includeDisabled {
			continue
		}
		jobs = append(jobs, job.Clone())
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs
}

// due snapshots enabled jobs whose next run is at or before now.
func (s *Store) due(now time.Time) []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []*Job
	for _, job := range s.jobs {
		if job.Due(now) {
			jobs = append(jobs, job.Clone())
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs
}

// recordRun persists the outcome of one firing and advances (or
// retires) the job.
func (s *Store) recordRun(id string, ranAt time.Time, runErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil
	}
	ran := ranAt
	job.LastRun = &ran
	job.UpdatedAt = ranAt
	if runErr != nil {
		job.LastStatus = "error"
		job.LastError = runErr.Error()
	} else {
		job.LastStatus = "ok"
		job.LastError = ""
	}

	switch job.Schedule.Kind {
	case KindAt:
		job.NextRun = nil
		if job.DeleteAfterRun {
			delete(s.jobs, id)
		}
	default:
		// Advance past now so firings missed during downtime collapse
		// into the one that just happened.
		job.NextRun = job.Schedule.Next(ranAt)
	}
	return s.persistLocked()
}

// DeleteAfterRunSet reports whether DeleteAfterRun was set explicitly.
// JSON decoding cannot distinguish false from absent, so the store only
// honors an explicit false through this hook; the default for one-shot
// jobs is delete.
func (j *Job) DeleteAfterRunSet() bool {
	return j.deleteAfterRunSet
}

// MarkDeleteAfterRun records an explicit caller choice for
// DeleteAfterRun.
func (j *Job) MarkDeleteAfterRun(v bool) {
	j.DeleteAfterRun = v
	j.deleteAfterRunSet = true
}
