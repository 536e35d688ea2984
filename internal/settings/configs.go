package settings

import (
	"github.com/spf13/cast"
)

// ServiceConfig is the persisted supervision policy for one script.
type ServiceConfig struct {
	Enabled             bool
	AutoRestart         bool
	MaxRestarts         int
	RestartDelaySeconds int
}

// DefaultServiceConfig returns the policy applied when nothing is persisted.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Enabled:             false,
		AutoRestart:         true,
		MaxRestarts:         3,
		RestartDelaySeconds: 5,
	}
}

// ServiceConfigFor reads a script's service config, filling unset fields
// from the defaults.
func (s *Store) ServiceConfigFor(identifier string) ServiceConfig {
	cfg := DefaultServiceConfig()
	group := s.Group(ServiceKey(identifier))
	if len(group) == 0 {
		return cfg
	}
	if v, ok := group["enabled"]; ok {
		cfg.Enabled = cast.ToBool(v)
	}
	if v, ok := group["auto_restart"]; ok {
		cfg.AutoRestart = cast.ToBool(v)
	}
	if v, ok := group["max_restarts"]; ok {
		cfg.MaxRestarts = cast.ToInt(v)
	}
	if v, ok := group["restart_delay_seconds"]; ok {
		cfg.RestartDelaySeconds = cast.ToInt(v)
	}
	return cfg
}

// SetServiceConfig persists a script's service config.
func (s *Store) SetServiceConfig(identifier string, cfg ServiceConfig) error {
	return s.Set(ServiceKey(identifier), map[string]any{
		"enabled":               cfg.Enabled,
		"auto_restart":          cfg.AutoRestart,
		"max_restarts":          cfg.MaxRestarts,
		"restart_delay_seconds": cfg.RestartDelaySeconds,
	})
}

// ScheduleConfig is the persisted schedule for one script.
type ScheduleConfig struct {
	Enabled         bool
	Type            string // "interval" or "cron"
	IntervalSeconds int
	CronExpression  string
	LastRun         float64 // unix seconds; 0 when never run
	NextRun         float64
}

// ScheduleConfigFor reads a script's schedule config.
func (s *Store) ScheduleConfigFor(identifier string) (ScheduleConfig, bool) {
	group := s.Group(ScheduleKey(identifier))
	if len(group) == 0 {
		return ScheduleConfig{}, false
	}
	cfg := ScheduleConfig{
		Enabled:         cast.ToBool(group["enabled"]),
		Type:            cast.ToString(group["type"]),
		IntervalSeconds: cast.ToInt(group["interval_seconds"]),
		CronExpression:  cast.ToString(group["cron_expression"]),
		LastRun:         cast.ToFloat64(group["last_run"]),
		NextRun:         cast.ToFloat64(group["next_run"]),
	}
	return cfg, true
}

// SetScheduleConfig persists a script's schedule config.
func (s *Store) SetScheduleConfig(identifier string, cfg ScheduleConfig) error {
	return s.Set(ScheduleKey(identifier), map[string]any{
		"enabled":          cfg.Enabled,
		"type":             cfg.Type,
		"interval_seconds": cfg.IntervalSeconds,
		"cron_expression":  cfg.CronExpression,
		"last_run":         cfg.LastRun,
		"next_run":         cfg.NextRun,
	})
}

// SetScheduleRunTimes updates only the persisted last/next run stamps.
// Best-effort by contract; callers log and continue on failure.
func (s *Store) SetScheduleRunTimes(identifier string, lastRun, nextRun float64) error {
	cfg, ok := s.ScheduleConfigFor(identifier)
	if !ok {
		return nil
	}
	cfg.LastRun = lastRun
	cfg.NextRun = nextRun
	return s.SetScheduleConfig(identifier, cfg)
}
