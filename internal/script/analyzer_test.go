package script

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPowerShellParamBlock(t *testing.T) {
	source := `param(
    [Parameter(Mandatory=$true)]
    [string]$ServerName,
    [int]$Port = 443,   # target port
    [switch]$Force
)

Write-Host "connecting to $ServerName"
`
	info := analyzeSource(t, "connect.ps1", source)
	require.Equal(t, StrategyPowerShell, info.Strategy)
	require.True(t, info.IsExecutable)
	require.Len(t, info.Arguments, 3)

	server := info.Arguments[0]
	require.Equal(t, "ServerName", server.Name)
	require.True(t, server.Required)
	require.Equal(t, TypeString, server.Type)

	port := info.Arguments[1]
	require.Equal(t, "Port", port.Name)
	require.False(t, port.Required)
	require.Equal(t, TypeInt, port.Type)
	require.Equal(t, "443", port.Default)
	require.Equal(t, "target port", port.Help)

	force := info.Arguments[2]
	require.Equal(t, "Force", force.Name)
	require.Equal(t, TypeBool, force.Type)
}

func TestPowerShellMandatoryTrueNotMistakenForParam(t *testing.T) {
	// $true inside the attribute must not be picked up as the variable name.
	source := `param(
    [Parameter(Mandatory=$true)][string]$Name
)
`
	info := analyzeSource(t, "single.ps1", source)
	require.Len(t, info.Arguments, 1)
	require.Equal(t, "Name", info.Arguments[0].Name)
}

func TestPowerShellWithoutParamBlock(t *testing.T) {
	info := analyzeSource(t, "plain.ps1", "Get-Process | Sort-Object CPU\n")
	require.True(t, info.IsExecutable)
	require.Empty(t, info.Arguments)
}

func TestBatchPositionals(t *testing.T) {
	source := "@echo off\r\nREM %1 source folder\r\nREM %2 destination folder\r\nxcopy %1 %2 /E\r\n"
	info := analyzeSource(t, "copy.bat", source)
	require.Equal(t, StrategyBatch, info.Strategy)
	require.Len(t, info.Arguments, 2)

	require.Equal(t, "arg1", info.Arguments[0].Name)
	require.True(t, info.Arguments[0].Required)
	require.Equal(t, "source folder", info.Arguments[0].Help)
	require.Equal(t, "destination folder", info.Arguments[1].Help)
}

func TestBatchHighestIndexWins(t *testing.T) {
	info := analyzeSource(t, "three.cmd", "@echo %3\n")
	require.Len(t, info.Arguments, 3)
	require.Equal(t, "arg3", info.Arguments[2].Name)
}

func TestShellGetopts(t *testing.T) {
	source := `#!/bin/sh
while getopts "vf:o:" opt; do
  case $opt in
    v) verbose=1 ;;
    f) file="$OPTARG" ;;
    o) out="$OPTARG" ;;
  esac
done
`
	info := analyzeSource(t, "build.sh", source)
	require.Equal(t, StrategyShell, info.Strategy)
	require.Len(t, info.Arguments, 3)

	require.Equal(t, "v", info.Arguments[0].Name)
	require.Equal(t, TypeBool, info.Arguments[0].Type)
	require.Equal(t, "f", info.Arguments[1].Name)
	require.Equal(t, TypeString, info.Arguments[1].Type)
	require.Equal(t, "o", info.Arguments[2].Name)
	require.Equal(t, TypeString, info.Arguments[2].Type)
}

func TestShellPositionalFallback(t *testing.T) {
	source := `#!/bin/bash
# $1 input file
# $2 output file
cp "$1" "$2"
`
	info := analyzeSource(t, "cp.sh", source)
	require.Len(t, info.Arguments, 2)
	require.Equal(t, "input file", info.Arguments[0].Help)
	require.True(t, info.Arguments[1].Required)
}

func TestValidateValue(t *testing.T) {
	intArg := ArgumentSpec{Name: "count", Type: TypeInt}
	require.NoError(t, intArg.ValidateValue("42"))
	require.Error(t, intArg.ValidateValue("many"))

	floatArg := ArgumentSpec{Name: "scale", Type: TypeFloat}
	require.NoError(t, floatArg.ValidateValue("1.5"))
	require.Error(t, floatArg.ValidateValue("x"))

	choiceArg := ArgumentSpec{Name: "mode", Type: TypeString, Choices: []string{"fast", "slow"}}
	require.NoError(t, choiceArg.ValidateValue("fast"))
	require.Error(t, choiceArg.ValidateValue("medium"))
}

func TestCanonicalIdentifierAndLegacyKey(t *testing.T) {
	// Backslash paths come from persisted Windows settings and must resolve
	// identically regardless of the host platform.
	require.Equal(t, "backup.py", CanonicalIdentifier(`C:\tools\Backup.PY`))
	require.Equal(t, "backup", LegacyKey(`C:\tools\Backup.PY`))
	require.Equal(t, "backup.py", CanonicalIdentifier("/opt/tools/Backup.PY"))
	require.Equal(t, "Disk Cleanup", DisplayNameForPath("/opt/scripts/disk_cleanup.py"))
	require.Equal(t, "Disk Cleanup", DisplayNameForPath(`D:\scripts\disk_cleanup.py`))
}

func TestNormalizeStripsInteriorBOM(t *testing.T) {
	raw := []byte("\uFEFFprint(1)\nx = \"a\uFEFFb\"\n")
	text, ok := normalizeSource(raw)
	require.True(t, ok)
	require.NotContains(t, text, "\uFEFF")
}

func TestNeedsConfiguration(t *testing.T) {
	withRequired := analyzeSource(t, "req.py", `import argparse
p = argparse.ArgumentParser()
p.add_argument("--token", required=True)
p.parse_args()
`)
	require.True(t, withRequired.NeedsConfig)

	withDefaults := analyzeSource(t, "opt.py", `import argparse
p = argparse.ArgumentParser()
p.add_argument("--retries", default=3)
p.parse_args()
`)
	require.False(t, withDefaults.NeedsConfig)
}
