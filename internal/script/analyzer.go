package script

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Analyzer classifies script files and extracts their argument declarations.
// The zero value is usable; ForceService is consulted per-path so a settings
// override can promote any Python script to the service strategy.
type Analyzer struct {
	// ForceService reports whether the given canonical identifier has a
	// user override promoting it to the service strategy. May be nil.
	ForceService func(identifier string) bool
}

// Analyze reads and classifies the file at path. The returned Info always
// carries the identifier and kind; when analysis fails, IsExecutable is
// false and AnalyzerError holds the diagnostic.
func (a *Analyzer) Analyze(path string) (*Info, error) {
	info := &Info{
		FilePath:    path,
		Identifier:  CanonicalIdentifier(path),
		DisplayName: DisplayNameForPath(path),
		Kind:        KindForPath(path),
		OriginPath:  path,
		LegacyKeys:  []string{LegacyKey(path)},
	}

	if info.Kind == KindUnknown {
		info.AnalyzerError = fmt.Sprintf("unsupported script type %q", strings.ToLower(filepath.Ext(path)))
		return info, ErrUnsupported
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		info.AnalyzerError = fmt.Sprintf("read failed: %v", err)
		return info, fmt.Errorf("read script: %w", err)
	}

	if len(strings.TrimSpace(string(raw))) == 0 {
		info.AnalyzerError = "empty"
		return info, nil
	}

	source, ok := normalizeSource(raw)
	if !ok {
		info.AnalyzerError = "binary content"
		return info, nil
	}

	switch info.Kind {
	case KindPython:
		a.analyzePython(info, source)
	case KindPowerShell:
		analyzePowerShell(info, source)
	case KindBatch:
		analyzeBatch(info, source)
	case KindShell:
		analyzeShell(info, source)
	}

	info.NeedsConfig = requiresConfiguration(info)
	return info, nil
}

// requiresConfiguration reports whether the script cannot run without the
// user supplying values, i.e. it declares required arguments with no default.
func requiresConfiguration(info *Info) bool {
	for _, arg := range info.Arguments {
		if arg.Required && !arg.HasDefault {
			return true
		}
	}
	return false
}

// selectPythonStrategy applies the selection table for Python scripts:
// declared arguments force a subprocess, a parameterless main function
// enables the in-process function call, a bare __main__ guard still needs a
// subprocess, and everything else executes as an in-process module.
func (a *Analyzer) selectPythonStrategy(info *Info, hasMain, hasGuard bool) Strategy {
	if a.ForceService != nil && a.ForceService(info.Identifier) {
		return StrategyService
	}
	switch {
	case len(info.Arguments) > 0:
		return StrategySubprocess
	case hasMain:
		return StrategyInProcessFunction
	case hasGuard:
		return StrategySubprocess
	default:
		return StrategyInProcessModule
	}
}
