package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	ProtocolChanged bool
	NewProtocol     ProtocolConfig

	ReportChanged bool
	NewReportCron string

	LogLevelChanged bool
	NewLogLevel     string

	// Non-reloadable fields that changed (log warnings only)
	NonReloadable []string
}

// HasChanges reports whether any reloadable field changed.
func (d *ConfigDiff) HasChanges() bool {
	return d.ProtocolChanged || d.ReportChanged || d.LogLevelChanged
}

// Diff compares two configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	// Tie-break range and mailbox size only matter at bootstrap.
	oldProto, newProto := old.Protocol, new.Protocol
	if oldProto.TieBreakRange != newProto.TieBreakRange {
		d.NonReloadable = append(d.NonReloadable, "protocol.tie_break_range")
	}
	if oldProto.MailboxSize != newProto.MailboxSize {
		d.NonReloadable = append(d.NonReloadable, "protocol.mailbox_size")
	}
	oldProto.TieBreakRange, newProto.TieBreakRange = 0, 0
	oldProto.MailboxSize, newProto.MailboxSize = 0, 0
	if !reflect.DeepEqual(oldProto, newProto) {
		d.ProtocolChanged = true
		d.NewProtocol = new.Protocol
	}

	if old.Report.Cron != new.Report.Cron {
		d.ReportChanged = true
		d.NewReportCron = new.Report.Cron
	}

	if old.Log.Level != new.Log.Level {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Log.Level
	}

	// Non-reloadable warnings
	if old.Team.Name != new.Team.Name {
		d.NonReloadable = append(d.NonReloadable, "team.name")
	}
	if !reflect.DeepEqual(old.Team.Members, new.Team.Members) {
		d.NonReloadable = append(d.NonReloadable, "team.members")
	}
	if !reflect.DeepEqual(old.Arena, new.Arena) {
		d.NonReloadable = append(d.NonReloadable, "arena")
	}
	if old.NATS != new.NATS {
		d.NonReloadable = append(d.NonReloadable, "nats")
	}
	if old.Store.Path != new.Store.Path {
		d.NonReloadable = append(d.NonReloadable, "store.path")
	}
	if old.Web.Port != new.Web.Port {
		d.NonReloadable = append(d.NonReloadable, "web.port")
	}

	return d
}
