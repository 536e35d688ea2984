package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"bindkit/internal/script"
	"bindkit/internal/settings"
)

func writeScript(t *testing.T, dir, name, source string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
	return path
}

func newTestLoader(t *testing.T, dir string) (*Loader, *settings.Store) {
	t.Helper()
	store, err := settings.Open(t.TempDir(), nil)
	require.NoError(t, err)
	return New(dir, store, &script.Analyzer{}, nil), store
}

func TestLoadDiscoversAndSorts(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "zeta.py", "def main():\n    pass\n")
	writeScript(t, dir, "Alpha.ps1", "Write-Host hi\n")
	writeScript(t, dir, "mid.sh", "echo hi\n")

	ld, _ := newTestLoader(t, dir)
	result, err := ld.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Scripts, 3)

	// Sorted by lowercased display name regardless of discovery order.
	require.Equal(t, "alpha.ps1", result.Scripts[0].Identifier)
	require.Equal(t, "mid.sh", result.Scripts[1].Identifier)
	require.Equal(t, "zeta.py", result.Scripts[2].Identifier)
}

func TestLoadIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"c.py", "a.py", "b.py", "d.sh", "e.bat"} {
		writeScript(t, dir, name, "print(1)\n")
	}

	ld, _ := newTestLoader(t, dir)
	first, err := ld.Load(context.Background())
	require.NoError(t, err)
	second, err := ld.Load(context.Background())
	require.NoError(t, err)

	require.Equal(t, len(first.Scripts), len(second.Scripts))
	for i := range first.Scripts {
		require.Equal(t, first.Scripts[i].Identifier, second.Scripts[i].Identifier)
	}
}

func TestLoadSkipsDunderAndUnsupported(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "keep.py", "print(1)\n")
	writeScript(t, dir, "__init__.py", "\n")
	writeScript(t, dir, "__helper.py", "print(1)\n")
	writeScript(t, dir, "notes.txt", "hello\n")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "subdir"), 0o755))

	ld, _ := newTestLoader(t, dir)
	result, err := ld.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Scripts, 1)
	require.Equal(t, "keep.py", result.Scripts[0].Identifier)
}

func TestLoadRecordsAnalysisFailures(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "good.py", "print(1)\n")
	badPath := writeScript(t, dir, "empty.py", "  \n")

	ld, _ := newTestLoader(t, dir)
	result, err := ld.Load(context.Background())
	require.NoError(t, err)

	require.Equal(t, "empty", result.Failed[badPath])
	// The failed script stays in the catalog, flagged non-executable.
	info, ok := result.Lookup("empty.py")
	require.True(t, ok)
	require.False(t, info.IsExecutable)
}

func TestExternalScripts(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "local.py", "print(1)\n")

	externalDir := t.TempDir()
	externalPath := writeScript(t, externalDir, "tool.py", "def main():\n    pass\n")

	ld, store := newTestLoader(t, dir)
	require.NoError(t, store.Set(settings.ExternalScriptKey("tool"), externalPath))
	require.NoError(t, store.Set(settings.ExternalScriptKey("ghost"), filepath.Join(externalDir, "gone.py")))

	result, err := ld.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Scripts, 2)

	info, ok := result.Lookup("tool")
	require.True(t, ok)
	require.True(t, info.IsExternal)
	require.Equal(t, externalPath, info.OriginPath)

	// The missing registration surfaces as a failure, not a crash.
	require.Len(t, result.Failed, 1)

	alive := ld.RefreshExternal()
	require.True(t, alive["tool"])
	require.False(t, alive["ghost"])
}

func TestExternalIdentifierIsRegisteredName(t *testing.T) {
	externalDir := t.TempDir()
	path := writeScript(t, externalDir, "tool.py", "print(1)\n")

	ld, store := newTestLoader(t, t.TempDir())
	require.NoError(t, store.Set(settings.ExternalScriptKey("My Tool"), path))

	result, err := ld.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Scripts, 1)

	// The registered name is what hotkeys, schedules, and presets persist
	// under, so it is the identifier, not the file basename. The settings
	// layer lowercases keys, so the name round-trips lowercased.
	require.Equal(t, "my tool", result.Scripts[0].Identifier)
	require.Equal(t, "my tool", result.Scripts[0].DisplayName)

	// The file stem still resolves through the legacy alias map.
	info, ok := result.Lookup("tool")
	require.True(t, ok)
	require.Equal(t, "my tool", info.Identifier)
}

func TestLoadHonorsCanceledContext(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "a.py", "print(1)\n")

	ld, _ := newTestLoader(t, dir)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ld.Load(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCustomNamesApply(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "disk_cleanup.py", "print(1)\n")

	ld, store := newTestLoader(t, dir)
	require.NoError(t, store.Set(settings.CustomNameKey("Disk Cleanup"), "Tidy Disks"))

	result, err := ld.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Scripts, 1)
	require.Equal(t, "Tidy Disks", result.Scripts[0].DisplayName)
}

func TestLegacyAliasLookup(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "backup.py", "print(1)\n")

	ld, _ := newTestLoader(t, dir)
	result, err := ld.Load(context.Background())
	require.NoError(t, err)

	// Settings written before identifiers carried extensions used the stem.
	info, ok := result.Lookup("backup")
	require.True(t, ok)
	require.Equal(t, "backup.py", info.Identifier)
}

func TestLegacyAliasAmbiguityKeepsFirst(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "backup.py", "print(1)\n")
	writeScript(t, dir, "backup.sh", "echo 1\n")

	ld, _ := newTestLoader(t, dir)
	result, err := ld.Load(context.Background())
	require.NoError(t, err)

	canonical, ok := result.Aliases["backup"]
	require.True(t, ok)
	// Display order decides the winner; both share the display name, so the
	// winner is simply the first in sorted order.
	require.Contains(t, []string{"backup.py", "backup.sh"}, canonical)

	info, found := result.Lookup("backup")
	require.True(t, found)
	require.Equal(t, canonical, info.Identifier)
}

func TestMissingDirectoryIsEmpty(t *testing.T) {
	ld, _ := newTestLoader(t, filepath.Join(t.TempDir(), "missing"))
	result, err := ld.Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, result.Scripts)
}
