package config

import (
	"testing"
)

func TestDiff_NoChanges(t *testing.T) {
	cfg := defaults()
	d := Diff(&cfg, &cfg)
	if d.HasChanges() {
		t.Error("expected no changes")
	}
	if len(d.NonReloadable) != 0 {
		t.Errorf("expected no non-reloadable changes, got %v", d.NonReloadable)
	}
}

func TestDiff_ProtocolChanged(t *testing.T) {
	old := defaults()
	new := defaults()
	new.Protocol.RotationInterval = 120
	new.Protocol.TargetFreshness = 12

	d := Diff(&old, &new)
	if !d.ProtocolChanged {
		t.Fatal("expected protocol change")
	}
	if d.NewProtocol.RotationInterval != 120 {
		t.Errorf("expected rotation interval 120, got %d", d.NewProtocol.RotationInterval)
	}
	if d.NewProtocol.TargetFreshness != 12 {
		t.Errorf("expected target freshness 12, got %d", d.NewProtocol.TargetFreshness)
	}
}

func TestDiff_BootstrapOnlyProtocolFields(t *testing.T) {
	old := defaults()
	new := defaults()
	new.Protocol.TieBreakRange = 5000

	d := Diff(&old, &new)
	if d.ProtocolChanged {
		t.Error("tie break range alone should not be a reloadable change")
	}
	if len(d.NonReloadable) != 1 || d.NonReloadable[0] != "protocol.tie_break_range" {
		t.Errorf("expected [protocol.tie_break_range], got %v", d.NonReloadable)
	}
}

func TestDiff_ReportAndLogLevel(t *testing.T) {
	old := defaults()
	new := defaults()
	new.Report.Cron = "*/5 * * * *"
	new.Log.Level = "debug"

	d := Diff(&old, &new)
	if !d.ReportChanged || d.NewReportCron != "*/5 * * * *" {
		t.Errorf("expected report cron change, got %+v", d)
	}
	if !d.LogLevelChanged || d.NewLogLevel != "debug" {
		t.Errorf("expected log level change, got %+v", d)
	}
}

func TestDiff_NonReloadable(t *testing.T) {
	old := defaults()
	new := defaults()
	new.Team.Members = []string{"a", "b"}
	new.NATS.Port = 5222
	new.Store.Path = "/tmp/other.db"
	new.Web.Port = 9999
	new.Arena.Hostiles = 9

	d := Diff(&old, &new)
	if d.HasChanges() {
		t.Error("expected no reloadable changes")
	}

	want := map[string]bool{"team.members": true, "nats": true, "store.path": true, "web.port": true, "arena": true}
	if len(d.NonReloadable) != len(want) {
		t.Fatalf("expected %d non-reloadable, got %v", len(want), d.NonReloadable)
	}
	for _, f := range d.NonReloadable {
		if !want[f] {
			t.Errorf("unexpected non-reloadable field %s", f)
		}
	}
}
