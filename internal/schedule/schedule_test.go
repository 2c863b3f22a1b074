package schedule

import (
	"testing"
	"time"
)

func TestParsePlainCron(t *testing.T) {
	s, err := Parse("0 9 * * *")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if s.Kind != KindCron {
		t.Errorf("expected kind 'cron', got '%s'", s.Kind)
	}
	if s.CronExpr != "0 9 * * *" {
		t.Errorf("expected cron expr '0 9 * * *', got '%s'", s.CronExpr)
	}
}

func TestParseWithWhitespace(t *testing.T) {
	s, err := Parse("  */5 * * * *  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.CronExpr != "*/5 * * * *" {
		t.Errorf("expected trimmed cron, got '%s'", s.CronExpr)
	}
}

func TestParseIntervalJSON(t *testing.T) {
	s, err := Parse(`{"kind":"interval","interval_ms":60000}`)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if s.Kind != KindInterval {
		t.Errorf("expected kind 'interval', got '%s'", s.Kind)
	}
	if s.IntervalMs != 60000 {
		t.Errorf("expected interval_ms 60000, got %d", s.IntervalMs)
	}
}

func TestParseInvalid(t *testing.T) {
	cases := []string{
		"not a cron",
		`{"kind":"cron","cron_expr":"bad"}`,
		`{"kind":"interval","interval_ms":0}`,
		`{"kind":"bogus"}`,
	}
	for _, raw := range cases {
		if _, err := Parse(raw); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestNextCron(t *testing.T) {
	s, err := Parse("0 9 * * *")
	if err != nil {
		t.Fatal(err)
	}
	ref := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	next, err := s.Next(ref)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	want := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestNextEveryMinuteIsInFuture(t *testing.T) {
	s, err := Parse("* * * * *")
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	next, err := s.Next(now)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !next.After(now) {
		t.Error("expected next run in the future")
	}
	if next.Sub(now) > time.Minute {
		t.Errorf("expected next run within a minute, got %v", next.Sub(now))
	}
}

func TestNextInterval(t *testing.T) {
	s := &Schedule{Kind: KindInterval, IntervalMs: 1500}
	ref := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	next, err := s.Next(ref)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if next.Sub(ref) != 1500*time.Millisecond {
		t.Errorf("expected 1.5s after ref, got %v", next.Sub(ref))
	}
}

func TestString(t *testing.T) {
	cases := []struct {
		s    Schedule
		want string
	}{
		{Schedule{Kind: KindCron, CronExpr: "@hourly"}, "@hourly"},
		{Schedule{Kind: KindCron, CronExpr: "* * * * *"}, "Every minute"},
		{Schedule{Kind: KindCron, CronExpr: "0 9 * * *"}, "Cron: 0 9 * * *"},
		{Schedule{Kind: KindInterval, IntervalMs: 3600000}, "Every hour"},
		{Schedule{Kind: KindInterval, IntervalMs: 7200000}, "Every 2 hours"},
		{Schedule{Kind: KindInterval, IntervalMs: 300000}, "Every 5 minutes"},
		{Schedule{Kind: KindInterval, IntervalMs: 30000}, "Every 30 seconds"},
		{Schedule{Kind: KindInterval, IntervalMs: 250}, "Every 250ms"},
	}
	for _, c := range cases {
		if got := c.s.String(); got != c.want {
			t.Errorf("%+v: expected %q, got %q", c.s, c.want, got)
		}
	}
}
