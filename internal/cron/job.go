// Package cron schedules jobs that wake the assistant without a user
// message: one-shot reminders, fixed intervals, and cron expressions.
// Due jobs become synthetic inbound messages for the agent loop, or
// direct outbound messages that bypass it.
package cron

import (
	"errors"
	"fmt"
	"strings"
	"time"

	robfig "github.com/robfig/cron/v3"
)

// ScheduleKind selects how a job recurs.
type ScheduleKind string

const (
	// KindAt fires once at an absolute time.
	KindAt ScheduleKind = "at"
	// KindEvery fires on a fixed interval.
	KindEvery ScheduleKind = "every"
	// KindCron fires per a standard 5-field cron expression.
	KindCron ScheduleKind = "cron"
)

// MinInterval is the smallest allowed interval for KindEvery.
const MinInterval = time.Minute

var cronParser = robfig.NewParser(
	robfig.Minute | robfig.Hour | robfig.Dom | robfig.Month | robfig.Dow,
)

// Schedule describes when a job fires. Exactly one kind-specific field
// is meaningful, selected by Kind.
type Schedule struct {
	Kind ScheduleKind `json:"kind"`

	// At is the absolute firing time for KindAt.
	At *time.Time `json:"at,omitempty"`

	// EveryMS is the interval in milliseconds for KindEvery.
	EveryMS int64 `json:"every_ms,omitempty"`

	// Expr is the cron expression for KindCron.
	Expr string `json:"expr,omitempty"`

	// Timezone overrides the local zone for cron evaluation.
	Timezone string `json:"timezone,omitempty"`
}

// Every returns the interval as a duration.
func (s Schedule) Every() time.Duration {
	return time.Duration(s.EveryMS) * time.Millisecond
}

// Validate checks the schedule's kind-specific constraints.
func (s Schedule) Validate() error {
	switch s.Kind {
	case KindAt:
		if s.At == nil {
			return errors.New("at schedule requires a timestamp")
		}
	case KindEvery:
		if s.Every() < MinInterval {
			return fmt.Errorf("every interval %s is below the %s minimum", s.Every(), MinInterval)
		}
	case KindCron:
		if strings.TrimSpace(s.Expr) == "" {
			return errors.New("cron schedule requires an expression")
		}
		if _, err := cronParser.Parse(s.Expr); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", s.Expr, err)
		}
		if s.Timezone != "" {
			if _, err := time.LoadLocation(s.Timezone); err != nil {
				return fmt.Errorf("invalid timezone %q: %w", s.Timezone, err)
			}
		}
	default:
		return fmt.Errorf("unknown schedule kind %q", s.Kind)
	}
	return nil
}

// Next computes the first firing at or after now. Nil means the
// schedule never fires again.
func (s Schedule) Next(now time.Time) *time.Time {
	switch s.Kind {
	case KindAt:
		if s.At == nil || s.At.Before(now) {
			return nil
		}
		t := *s.At
		return &t
	case KindEvery:
		t := now.Add(s.Every())
		return &t
	case KindCron:
		spec, err := cronParser.Parse(s.Expr)
		if err != nil {
			return nil
		}
		loc := time.Local
		if s.Timezone != "" {
			if override, err := time.LoadLocation(s.Timezone); err == nil {
				loc = override
			}
		}
		t := spec.Next(now.In(loc))
		return &t
	}
	return nil
}

// Job is one scheduled wake-up.
type Job struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Schedule Schedule `json:"schedule"`

	// Message is the payload text delivered when the job fires.
	Message string `json:"message"`

	// Deliver sends Message directly to Channel/To instead of waking
	// the agent loop.
	Deliver bool   `json:"deliver,omitempty"`
	Channel string `json:"channel,omitempty"`
	To      string `json:"to,omitempty"`

	Enabled        bool `json:"enabled"`
	DeleteAfterRun bool `json:"delete_after_run,omitempty"`

	// deleteAfterRunSet marks an explicit caller choice; see
	// MarkDeleteAfterRun.
	deleteAfterRunSet bool

	NextRun    *time.Time `json:"next_run,omitempty"`
	LastRun    *time.Time `json:"last_run,omitempty"`
	LastStatus string     `json:"last_status,omitempty"`
	LastError  string     `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Due reports whether the job should fire at now.
func (j *Job) Due(now time.Time) bool {
	return j.Enabled && j.NextRun != nil && !j.NextRun.After(now)
}

// Clone returns a deep copy.
func (j *Job) Clone() *Job {
	clone := *j
	if j.Schedule.At != nil {
		t := *j.Schedule.At
		clone.Schedule.At = &t
	}
	if j.NextRun != nil {
		t := *j.NextRun
		clone.NextRun = &t
	}
	if j.LastRun != nil {
		t := *j.LastRun
		clone.LastRun = &t
	}
	return &clone
}
