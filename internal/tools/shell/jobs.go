package shell

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// Background job retention policy.
const (
	// JobRetention is how long completed job state is kept.
	JobRetention = 24 * time.Hour
	// MaxRetainedJobs caps stored completed jobs.
	MaxRetainedJobs = 20
	// killGrace is the SIGTERM to SIGKILL window.
	killGrace = 2 * time.Second
)

// Job is one background process started by exec.
type Job struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Command   string    `json:"command"`
	PID       int       `json:"pid"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// JobStore manages background processes and their on-disk state under
// <workspace>/.pocketd/jobs/<id>/ with pid, command, name, status, and
// output.log files so jobs survive inspection across turns.
type JobStore struct {
	dir    string
	logger *slog.Logger

	mu     sync.Mutex
	live   map[string]*exec.Cmd
	closed bool
}

// NewJobStore creates a job store rooted in the workspace state dir.
func NewJobStore(workspace string, logger *slog.Logger) *JobStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobStore{
		dir:    filepath.Join(workspace, ".pocketd", "jobs"),
		logger: logger.With("component", "jobs"),
		live:   make(map[string]*exec.Cmd),
	}
}

func (s *JobStore) jobDir(id string) string {
	return filepath.Join(s.dir, id)
}

func (s *JobStore) writeMeta(id, file, value string) error {
	return os.WriteFile(filepath.Join(s.jobDir(id), file), []byte(value), 0o644)
}

func (s *JobStore) readMeta(id, file string) string {
	data, err := os.ReadFile(filepath.Join(s.jobDir(id), file))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Start launches command detached in its own process group and records
// its state. Output streams to <job dir>/output.log.
func (s *JobStore) Start(command, name, dir string) (*Job, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New("job store is closed")
	}
	s.mu.Unlock()

	id := uuid.NewString()[:8]
	jobDir := s.jobDir(id)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return nil, fmt.Errorf("create job dir: %w", err)
	}

	logFile, err := os.Create(filepath.Join(jobDir, "output.log"))
	if err != nil {
		return nil, fmt.Errorf("create output log: %w", err)
	}

	cmd := exec.Command("/bin/sh", "-c", command)
	cmd.Dir = dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		logFile.Close()
		os.RemoveAll(jobDir)
		return nil, fmt.Errorf("start command: %w", err)
	}

	job := &Job{
		ID:        id,
		Name:      name,
		Command:   command,
		PID:       cmd.Process.Pid,
		Status:    "running",
		StartedAt: time.Now(),
	}
	s.writeMetaAll(job)

	s.mu.Lock()
	s.live[id] = cmd
	s.mu.Unlock()

	go func() {
		defer logFile.Close()
		err := cmd.Wait()
		status := "exited:0"
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				status = fmt.Sprintf("exited:%d", exitErr.ExitCode())
			} else {
				status = "failed"
			}
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.live, id)
		if s.closed {
			return
		}
		if cur := s.readMeta(id, "status"); cur != "killed" {
			if werr := s.writeMeta(id, "status", status); werr != nil {
				s.logger.Warn("write job status failed", "job", id, "error", werr)
			}
		}
	}()

	s.gc()
	return job, nil
}

func (s *JobStore) writeMetaAll(job *Job) {
	meta := map[string]string{
		"pid":     strconv.Itoa(job.PID),
		"command": job.Command,
		"name":    job.Name,
		"status":  job.Status,
	}
	for file, value := range meta {
		if err := s.writeMeta(job.ID, file, value); err != nil {
			s.logger.Warn("write job metadata failed", "job", job.ID, "file", file, "error", err)
		}
	}
}

// Get loads one job's state from disk.
func (s *JobStore) Get(id string) (*Job, error) {
	info, err := os.Stat(s.jobDir(id))
	if err != nil {
		return nil, fmt.Errorf("job not found: %s", id)
	}
	pid, _ := strconv.Atoi(s.readMeta(id, "pid"))
	return &Job{
		ID:        id,
		Name:      s.readMeta(id, "name"),
		Command:   s.readMeta(id, "command"),
		PID:       pid,
		Status:    s.readMeta(id, "status"),
		StartedAt: info.ModTime(),
	}, nil
}

// List returns all known jobs, newest first.
func (s *JobStore) List() ([]*Job, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	jobs := make([]*Job, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if job, err := s.Get(entry.Name()); err == nil {
			jobs = append(jobs, job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].StartedAt.After(jobs[j].StartedAt) })
	return jobs, nil
}

// Output returns the last n lines of a job's log (default 50).
func (s *JobStore) Output(id string, n int) (string, error) {
	if _, err := os.Stat(s.jobDir(id)); err != nil {
		return "", fmt.Errorf("job not found: %s", id)
	}
	data, err := os.ReadFile(filepath.Join(s.jobDir(id), "output.log"))
	if err != nil {
		return "", fmt.Errorf("read output: %w", err)
	}
	if n <= 0 {
		n = 50
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n"), nil
}

// Kill terminates a running job's process group: SIGTERM, then SIGKILL
// after a grace period.
func (s *JobStore) Kill(id string) error {
	job, err := s.Get(id)
	if err != nil {
		return err
	}
	if job.Status != "running" {
		return fmt.Errorf("job %s is not running (status %s)", id, job.Status)
	}
	if job.PID <= 0 {
		return fmt.Errorf("job %s has no recorded pid", id)
	}

	if err := syscall.Kill(-job.PID, syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal job %s: %w", id, err)
	}
	go func() {
		time.Sleep(killGrace)
		// Best effort; the group may already be gone.
		_ = syscall.Kill(-job.PID, syscall.SIGKILL)
	}()

	if err := s.writeMeta(id, "status", "killed"); err != nil {
		s.logger.Warn("write killed status failed", "job", id, "error", err)
	}
	return nil
}

// Close stops job bookkeeping. Detached processes keep running, but no
// waiter touches the workspace after Close returns: a waiter holding the
// lock finishes its status write first, and later exits skip it.
func (s *JobStore) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// gc drops completed jobs past retention and trims the completed set to
// the cap, oldest first. Running jobs are never collected.
func (s *JobStore) gc() {
	jobs, err := s.List()
	if err != nil {
		return
	}
	var completed []*Job
	for _, job := range jobs {
		if job.Status != "running" {
			completed = append(completed, job)
		}
	}
	cutoff := time.Now().Add(-JobRetention)
	keep := completed[:0]
	for _, job := range completed {
		if job.StartedAt.Before(cutoff) {
			os.RemoveAll(s.jobDir(job.ID))
			continue
		}
		keep = append(keep, job)
	}
	if len(keep) > MaxRetainedJobs {
		// List is newest first, so the tail is oldest.
		for _, job := range keep[MaxRetainedJobs:] {
			os.RemoveAll(s.jobDir(job.ID))
		}
	}
}
