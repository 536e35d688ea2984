package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func TestSetPersistsBeforeNotify(t *testing.T) {
	s := openTestStore(t)

	// The handler must observe the value already on disk.
	var persisted string
	s.OnChange(func(key string) {
		if key != KeyTheme {
			return
		}
		raw, err := os.ReadFile(s.Path())
		if err != nil {
			t.Errorf("read settings file in handler: %v", err)
			return
		}
		var doc map[string]any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			t.Errorf("parse settings file in handler: %v", err)
			return
		}
		if appearance, ok := doc["appearance"].(map[string]any); ok {
			persisted, _ = appearance["theme"].(string)
		}
	})

	if err := s.Set(KeyTheme, "light"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if persisted != "light" {
		t.Fatalf("handler saw %q on disk, want %q", persisted, "light")
	}
}

func TestDefaultsApply(t *testing.T) {
	s := openTestStore(t)

	if got := s.GetInt(KeyScriptTimeoutSeconds); got != 30 {
		t.Fatalf("timeout default = %d, want 30", got)
	}
	if got := s.GetString(KeyTheme); got != "dark" {
		t.Fatalf("theme default = %q, want dark", got)
	}
	if !s.GetBool(KeySingleInstance) {
		t.Fatal("single_instance should default to true")
	}
}

func TestReopenSeesFlushedValues(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s.Set(HotkeyKey("backup.py"), "Ctrl+Shift+B"))

	reopened, err := Open(dir, nil)
	require.NoError(t, err)
	require.Equal(t, "Ctrl+Shift+B", reopened.GetString(HotkeyKey("backup.py")))
}

func TestDeleteRemovesKey(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	require.NoError(t, err)

	require.NoError(t, s.Set(HotkeyKey("a.py"), "Ctrl+1"))
	require.NoError(t, s.Set(HotkeyKey("b.py"), "Ctrl+2"))
	require.NoError(t, s.Delete(HotkeyKey("a.py")))

	if s.IsSet(HotkeyKey("a.py")) {
		t.Fatal("deleted key still set")
	}
	require.Equal(t, "Ctrl+2", s.GetString(HotkeyKey("b.py")))

	// The delete must survive a reopen, not just the in-memory view.
	reopened, err := Open(dir, nil)
	require.NoError(t, err)
	if reopened.IsSet(HotkeyKey("a.py")) {
		t.Fatal("deleted key reappeared after reopen")
	}
}

func TestGroupStrings(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Set(ExternalScriptKey("Backup"), `C:\tools\backup.py`))
	require.NoError(t, s.Set(ExternalScriptKey("Deploy"), `C:\tools\deploy.ps1`))

	got := s.GroupStrings(GroupExternalScripts)
	want := map[string]string{
		"backup": `C:\tools\backup.py`,
		"deploy": `C:\tools\deploy.ps1`,
	}
	require.Equal(t, want, got)
}

func TestServiceConfigDefaults(t *testing.T) {
	s := openTestStore(t)

	cfg := s.ServiceConfigFor("worker.py")
	if cfg.Enabled || !cfg.AutoRestart {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.MaxRestarts != 3 || cfg.RestartDelaySeconds != 5 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestServiceConfigRoundTrip(t *testing.T) {
	s := openTestStore(t)

	in := ServiceConfig{Enabled: true, AutoRestart: false, MaxRestarts: 7, RestartDelaySeconds: 1}
	require.NoError(t, s.SetServiceConfig("worker.py", in))
	require.Equal(t, in, s.ServiceConfigFor("worker.py"))
}

func TestScheduleConfigRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if _, ok := s.ScheduleConfigFor("sync.py"); ok {
		t.Fatal("schedule reported before one was stored")
	}

	in := ScheduleConfig{Enabled: true, Type: "cron", CronExpression: "0 9 * * 1-5"}
	require.NoError(t, s.SetScheduleConfig("sync.py", in))

	got, ok := s.ScheduleConfigFor("sync.py")
	require.True(t, ok)
	require.Equal(t, in, got)

	require.NoError(t, s.SetScheduleRunTimes("sync.py", 1700000000, 1700000600))
	got, _ = s.ScheduleConfigFor("sync.py")
	require.Equal(t, float64(1700000000), got.LastRun)
	require.Equal(t, float64(1700000600), got.NextRun)
}

func TestOpenRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, configFileName)
	require.NoError(t, os.WriteFile(path, []byte("{{not yaml"), 0o644))

	if _, err := Open(dir, nil); err == nil {
		t.Fatal("expected error for malformed settings file")
	}
}
