package schedule

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

const (
	KindCron     = "cron"
	KindInterval = "interval"
)

type Schedule struct {
	Kind       string `json:"kind"`        // "cron" or "interval"
	CronExpr   string `json:"cron_expr"`   // Cron expression (if kind=cron)
	IntervalMs int64  `json:"interval_ms"` // Interval in ms (if kind=interval)
}

// Parse accepts a plain cron expression or a JSON schedule object and
// validates it.
func Parse(raw string) (*Schedule, error) {
	raw = strings.TrimSpace(raw)

	var s Schedule
	if err := json.Unmarshal([]byte(raw), &s); err != nil || s.Kind == "" {
		// Not JSON, try as plain cron expression
		s = Schedule{Kind: KindCron, CronExpr: raw}
	}

	switch s.Kind {
	case KindCron:
		if !gronx.New().IsValid(s.CronExpr) {
			return nil, fmt.Errorf("invalid cron expression: %s", s.CronExpr)
		}
	case KindInterval:
		if s.IntervalMs <= 0 {
			return nil, fmt.Errorf("interval_ms must be positive")
		}
	default:
		return nil, fmt.Errorf("unknown schedule kind: %s", s.Kind)
	}
	return &s, nil
}

// Next returns the first run strictly after ref.
func (s *Schedule) Next(ref time.Time) (time.Time, error) {
	switch s.Kind {
	case KindCron:
		next, err := gronx.NextTickAfter(s.CronExpr, ref, false)
		if err != nil {
			return time.Time{}, fmt.Errorf("next tick for %q: %w", s.CronExpr, err)
		}
		return next, nil
	case KindInterval:
		return ref.Add(time.Duration(s.IntervalMs) * time.Millisecond), nil
	default:
		return time.Time{}, fmt.Errorf("unknown schedule kind: %s", s.Kind)
	}
}

// String returns a human-readable description of the schedule.
func (s *Schedule) String() string {
	switch s.Kind {
	case KindCron:
		if strings.HasPrefix(s.CronExpr, "@") {
			return s.CronExpr
		}
		if s.CronExpr == "* * * * *" {
			return "Every minute"
		}
		return "Cron: " + s.CronExpr
	case KindInterval:
		d := time.Duration(s.IntervalMs) * time.Millisecond
		switch {
		case d%time.Hour == 0 && d >= time.Hour:
			h := int(d.Hours())
			if h == 1 {
				return "Every hour"
			}
			return fmt.Sprintf("Every %d hours", h)
		case d%time.Minute == 0 && d >= time.Minute:
			m := int(d.Minutes())
			if m == 1 {
				return "Every minute"
			}
			return fmt.Sprintf("Every %d minutes", m)
		case d%time.Second == 0 && d >= time.Second:
			return fmt.Sprintf("Every %d seconds", int(d.Seconds()))
		default:
			return "Every " + d.String()
		}
	default:
		return s.Kind
	}
}
