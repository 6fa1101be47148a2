package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleKind discriminates the supported schedule specification forms.
type ScheduleKind string

const (
	ScheduleKindCron       ScheduleKind = "cron"       // five-field cron expression
	ScheduleKindRecurrence ScheduleKind = "recurrence" // fixed calendar recurrence
	ScheduleKindOneShot    ScheduleKind = "one_shot"   // single absolute timestamp
)

// RecurrenceFrequency is the calendar unit of a fixed recurrence.
type RecurrenceFrequency string

const (
	RecurrenceDaily   RecurrenceFrequency = "daily"
	RecurrenceWeekly  RecurrenceFrequency = "weekly"
	RecurrenceMonthly RecurrenceFrequency = "monthly"
)

var (
	// ErrInvalidSchedule is returned when schedule validation fails.
	ErrInvalidSchedule = errors.New("invalid schedule specification")
)

// ScheduleSpec is the parsed schedule of a schedule-mode trigger. It is
// interpreted once at load time; Next computes occurrences without
// re-parsing on every tick.
type ScheduleSpec struct {
	Kind ScheduleKind `json:"kind" validate:"required,oneof=cron recurrence one_shot"`

	// CronExpression is set for ScheduleKindCron. Standard 5-field format
	// (minute hour day month weekday).
	CronExpression string `json:"cron_expression,omitempty"`

	// Recurrence fields, set for ScheduleKindRecurrence.
	Frequency  RecurrenceFrequency `json:"frequency,omitempty"`
	Hour       int                 `json:"hour,omitempty"`
	Minute     int                 `json:"minute,omitempty"`
	DayOfWeek  time.Weekday        `json:"day_of_week,omitempty"`  // weekly
	DayOfMonth int                 `json:"day_of_month,omitempty"` // monthly, 1-28

	// At is set for ScheduleKindOneShot.
	At *time.Time `json:"at,omitempty"`

	// parsedCron caches the compiled cron expression so a tick never
	// re-parses it. Populated by Validate, or lazily by Next.
	parsedCron cron.Schedule
}

// Validate checks the spec's internal consistency for its kind.
func (s *ScheduleSpec) Validate() error {
	switch s.Kind {
	case ScheduleKindCron:
		if s.CronExpression == "" {
			return fmt.Errorf("%w: cron expression is required", ErrInvalidSchedule)
		}

		parsed, err := cron.ParseStandard(s.CronExpression)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}

		s.parsedCron = parsed
	case ScheduleKindRecurrence:
		switch s.Frequency {
		case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		default:
			return fmt.Errorf("%w: unknown recurrence frequency %q", ErrInvalidSchedule, s.Frequency)
		}

		if s.Hour < 0 || s.Hour > 23 || s.Minute < 0 || s.Minute > 59 {
			return fmt.Errorf("%w: time of day out of range", ErrInvalidSchedule)
		}

		if s.Frequency == RecurrenceMonthly && (s.DayOfMonth < 1 || s.DayOfMonth > 28) {
			return fmt.Errorf("%w: day of month must be 1-28", ErrInvalidSchedule)
		}
	case ScheduleKindOneShot:
		if s.At == nil {
			return fmt.Errorf("%w: one-shot timestamp is required", ErrInvalidSchedule)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSchedule, s.Kind)
	}

	return nil
}

// Next returns the first occurrence strictly after the given time. ok is
// false when the schedule has no further occurrences (a one-shot whose time
// has passed); the scheduler disables such triggers instead of rescheduling.
func (s *ScheduleSpec) Next(after time.Time) (next time.Time, ok bool) {
	switch s.Kind {
	case ScheduleKindCron:
		if s.parsedCron == nil {
			parsed, err := cron.ParseStandard(s.CronExpression)
			if err != nil {
				return time.Time{}, false
			}

			s.parsedCron = parsed
		}

		return s.parsedCron.Next(after), true
	case ScheduleKindRecurrence:
		return s.nextRecurrence(after), true
	case ScheduleKindOneShot:
		if s.At == nil || !s.At.After(after) {
			return time.Time{}, false
		}

		return *s.At, true
	default:
		return time.Time{}, false
	}
}

func (s *ScheduleSpec) nextRecurrence(after time.Time) time.Time {
	candidate := time.Date(after.Year(), after.Month(), after.Day(), s.Hour, s.Minute, 0, 0, after.Location())

	switch s.Frequency {
	case RecurrenceDaily:
		if !candidate.After(after) {
			candidate = candidate.AddDate(0, 0, 1)
		}
	case RecurrenceWeekly:
		for candidate.Weekday() != s.DayOfWeek || !candidate.After(after) {
			candidate = candidate.AddDate(0, 0, 1)
		}
	case RecurrenceMonthly:
		candidate = time.Date(after.Year(), after.Month(), s.DayOfMonth, s.Hour, s.Minute, 0, 0, after.Location())
		if !candidate.After(after) {
			candidate = candidate.AddDate(0, 1, 0)
		}
	}

	return candidate
}
