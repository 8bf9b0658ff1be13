// Package schedule keeps the due times of a session's periodic messages.
//
// It knows nothing about what a class emits. The session engine asks which
// classes are due, does the work, and marks them fired.
package schedule

import (
	"fmt"
	"time"
)

// Class identifies one periodic activity.
type Class int

const (
	Position Class = iota
	Sensor
	Battery
)

func (c Class) String() string {
	switch c {
	case Position:
		return "position"
	case Sensor:
		return "sensor"
	case Battery:
		return "battery"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Entry registers a class with its period.
type Entry struct {
	Class  Class
	Period time.Duration
}

type slot struct {
	class  Class
	period time.Duration
	next   time.Time
}

// Scheduler holds one due time per registered class. It is owned by a
// single session and is not safe for concurrent use.
type Scheduler struct {
	slots []slot
}

// New registers the given classes. Each first fires one period after start.
// Registration order is the order DueNow reports classes in.
func New(start time.Time, entries ...Entry) (*Scheduler, error) {
	s := &Scheduler{slots: make([]slot, 0, len(entries))}
	for _, e := range entries {
		if e.Period <= 0 {
			return nil, fmt.Errorf("schedule: %s period must be positive, got %v", e.Class, e.Period)
		}
		if s.find(e.Class) != nil {
			return nil, fmt.Errorf("schedule: %s registered twice", e.Class)
		}
		s.slots = append(s.slots, slot{class: e.Class, period: e.Period, next: start.Add(e.Period)})
	}
	return s, nil
}

// DueNow returns the classes whose due time is at or before now.
func (s *Scheduler) DueNow(now time.Time) []Class {
	var due []Class
	for _, sl := range s.slots {
		if !now.Before(sl.next) {
			due = append(due, sl.class)
		}
	}
	return due
}

// MarkFired sets the next due time of class to now plus its period.
// Missed periods are not caught up.
func (s *Scheduler) MarkFired(class Class, now time.Time) {
	if sl := s.find(class); sl != nil {
		sl.next = now.Add(sl.period)
	}
}

// NextDue returns the earliest due time across all classes. The zero time
// is returned when nothing is registered.
func (s *Scheduler) NextDue() time.Time {
	var earliest time.Time
	for i, sl := range s.slots {
		if i == 0 || sl.next.Before(earliest) {
			earliest = sl.next
		}
	}
	return earliest
}

// Until returns how long to wait from now until the next class is due,
// never negative.
func (s *Scheduler) Until(now time.Time) time.Duration {
	next := s.NextDue()
	if next.IsZero() {
		return 0
	}
	if d := next.Sub(now); d > 0 {
		return d
	}
	return 0
}

func (s *Scheduler) find(class Class) *slot {
	for i := range s.slots {
		if s.slots[i].class == class {
			return &s.slots[i]
		}
	}
	return nil
}
