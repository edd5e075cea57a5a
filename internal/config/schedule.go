// Copyright 2025 Buildarr Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Weekday is a day of the week as written in configuration files
// (e.g. "monday"). It wraps time.Weekday for YAML decoding.
type Weekday time.Weekday

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday parses a case-insensitive weekday name.
func ParseWeekday(s string) (Weekday, error) {
	day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("invalid day of week %q", s)
	}
	return Weekday(day), nil
}

func (d Weekday) String() string {
	return strings.ToLower(time.Weekday(d).String())
}

// UnmarshalYAML decodes a weekday name.
func (d *Weekday) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	day, err := ParseWeekday(s)
	if err != nil {
		return err
	}
	*d = day
	return nil
}

// MarshalYAML encodes the weekday as its lowercase name.
func (d Weekday) MarshalYAML() (any, error) {
	return d.String(), nil
}

// TimeOfDay is a 24-hour wall-clock time written as "HH:MM".
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses a 24-hour "HH:MM" time string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid 24 hour time %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid 24 hour time %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid 24 hour time %q", s)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Before orders times of day chronologically.
func (t TimeOfDay) Before(other TimeOfDay) bool {
	if t.Hour != other.Hour {
		return t.Hour < other.Hour
	}
	return t.Minute < other.Minute
}

// UnmarshalYAML decodes an "HH:MM" time string.
func (t *TimeOfDay) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalYAML encodes the time as "HH:MM".
func (t TimeOfDay) MarshalYAML() (any, error) {
	return t.String(), nil
}

// ScheduleTime is one weekday + time-of-day tuple at which a run triggers.
type ScheduleTime struct {
	Day  Weekday
	Time TimeOfDay
}

func (s ScheduleTime) String() string {
	return fmt.Sprintf("%s %s", s.Day, s.Time)
}

// ScheduleSpec is the full set of scheduled trigger times, sorted by
// (day, time), plus whether configuration file changes also trigger a run.
type ScheduleSpec struct {
	Times       []ScheduleTime
	WatchConfig bool
}

// NextRun computes the first scheduled time strictly after now.
// Returns the zero time when no schedule times are configured.
func (s ScheduleSpec) NextRun(now time.Time) time.Time {
	if len(s.Times) == 0 {
		return time.Time{}
	}
	var next time.Time
	// A (day, time) tuple occurs exactly once in any 7-day window.
	for offset := 0; offset <= 7; offset++ {
		day := now.AddDate(0, 0, offset)
		for _, st := range s.Times {
			if time.Weekday(st.Day) != day.Weekday() {
				continue
			}
			candidate := time.Date(day.Year(), day.Month(), day.Day(),
				st.Time.Hour, st.Time.Minute, 0, 0, now.Location())
			if !candidate.After(now) {
				continue
			}
			if next.IsZero() || candidate.Before(next) {
				next = candidate
			}
		}
		if !next.IsZero() {
			break
		}
	}
	return next
}

// sortScheduleTimes orders schedule tuples by (day, time) and removes
// duplicates so the computed schedule is deterministic.
func sortScheduleTimes(times []ScheduleTime) []ScheduleTime {
	sorted := append([]ScheduleTime{}, times...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Day != sorted[j].Day {
			return sorted[i].Day < sorted[j].Day
		}
		return sorted[i].Time.Before(sorted[j].Time)
	})
	out := sorted[:0]
	for i, st := range sorted {
		if i == 0 || sorted[i-1] != st {
			out = append(out, st)
		}
	}
	return out
}
