package collection

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"bindkit/internal/events"
	"bindkit/internal/loader"
	"bindkit/internal/script"
	"bindkit/internal/settings"
)

func writeScript(t *testing.T, dir, name, source string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
	return path
}

func newTestCatalog(t *testing.T, scriptDir string) (*Catalog, *settings.Store, *events.Bus) {
	t.Helper()
	store, err := settings.Open(t.TempDir(), nil)
	require.NoError(t, err)
	bus := events.NewBus(nil)
	ld := loader.New(scriptDir, store, &script.Analyzer{}, nil)
	return NewCatalog(ld, store, bus, nil), store, bus
}

func TestReloadAndDisabledFilter(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "alpha.py", "print(1)\n")
	writeScript(t, dir, "beta.py", "print(2)\n")

	c, store, _ := newTestCatalog(t, dir)
	require.NoError(t, c.Reload(context.Background()))
	require.Len(t, c.Scripts(), 2)

	require.NoError(t, c.SetEnabled("beta.py", false))
	require.Len(t, c.Scripts(), 1)
	require.Equal(t, "alpha.py", c.Scripts()[0].Identifier)
	require.Len(t, c.AllScripts(), 2)

	// Disabled scripts are still resolvable; callers gate on IsEnabled.
	_, found := c.Find("beta.py")
	require.True(t, found)
	require.False(t, c.IsEnabled("beta.py"))

	// The list survives a restart through the settings store.
	require.Equal(t, []string{"beta.py"}, store.GetStringSlice(settings.KeyDisabledScripts))
	fresh := NewCatalog(loader.New(dir, store, &script.Analyzer{}, nil), store, nil, nil)
	require.NoError(t, fresh.Reload(context.Background()))
	require.False(t, fresh.IsEnabled("beta.py"))

	require.NoError(t, c.SetEnabled("beta.py", true))
	require.Len(t, c.Scripts(), 2)
}

func TestAddAndRemoveExternal(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "local.py", "print(1)\n")

	externalDir := t.TempDir()
	externalPath := writeScript(t, externalDir, "tool.py", "def main():\n    pass\n")

	c, _, _ := newTestCatalog(t, dir)
	require.NoError(t, c.Reload(context.Background()))

	require.NoError(t, c.AddExternal(context.Background(), "tool", externalPath))
	info, ok := c.Find("tool")
	require.True(t, ok)
	require.True(t, info.IsExternal)
	require.Equal(t, "tool", info.Identifier)

	// Duplicate names, unsupported types, and missing files are rejected.
	require.Error(t, c.AddExternal(context.Background(), "tool", externalPath))
	require.Error(t, c.AddExternal(context.Background(), "doc", writeScript(t, externalDir, "doc.txt", "x\n")))
	require.Error(t, c.AddExternal(context.Background(), "gone", filepath.Join(externalDir, "gone.py")))

	alive := c.ExternalAlive()
	require.True(t, alive["tool"])

	require.NoError(t, c.RemoveExternal(context.Background(), "tool"))
	_, ok = c.Find("tool")
	require.False(t, ok)
	require.Error(t, c.RemoveExternal(context.Background(), "tool"))
}

func TestPresets(t *testing.T) {
	c, _, _ := newTestCatalog(t, t.TempDir())

	require.NoError(t, c.SavePreset("backup.py", "nightly", map[string]string{
		"target": "/mnt/backups",
		"level":  "full",
	}))

	presets := c.PresetsFor("backup.py")
	require.Len(t, presets, 1)
	require.Equal(t, "/mnt/backups", presets["nightly"]["target"])

	// Explicit arguments win over the stored preset.
	merged := c.MergePreset("backup.py", "nightly", map[string]string{"level": "incremental"})
	require.Equal(t, "incremental", merged["level"])
	require.Equal(t, "/mnt/backups", merged["target"])

	// Unknown preset names leave explicit arguments untouched.
	passthrough := c.MergePreset("backup.py", "missing", map[string]string{"level": "full"})
	require.Equal(t, map[string]string{"level": "full"}, passthrough)

	require.NoError(t, c.DeletePreset("backup.py", "nightly"))
	require.Empty(t, c.PresetsFor("backup.py"))
}

func TestSetCustomName(t *testing.T) {
	c, store, _ := newTestCatalog(t, t.TempDir())

	require.NoError(t, c.SetCustomName("Disk Cleanup", "Tidy Disks"))
	require.Equal(t, "Tidy Disks", store.GetString(settings.CustomNameKey("Disk Cleanup")))

	// Empty custom name clears the override.
	require.NoError(t, c.SetCustomName("Disk Cleanup", ""))
	require.False(t, store.IsSet(settings.CustomNameKey("Disk Cleanup")))
}

func TestReloadPublishesMenuRebuild(t *testing.T) {
	c, _, bus := newTestCatalog(t, t.TempDir())

	var mu sync.Mutex
	rebuilds := 0
	bus.Subscribe(events.KindMenuRebuild, func(events.Event) {
		mu.Lock()
		defer mu.Unlock()
		rebuilds++
	})

	require.NoError(t, c.Reload(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, rebuilds)
}
