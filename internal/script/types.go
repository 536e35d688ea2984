// Package script classifies user script files, extracts their declared
// arguments, and selects an execution strategy. The analyzer is pure: it
// reads the file once and returns an immutable ScriptInfo, so it is safe to
// run from many discovery workers at once.
package script

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Kind is the interpreter family of a script, derived from its extension.
type Kind string

const (
	KindPython     Kind = "python"
	KindPowerShell Kind = "powershell"
	KindBatch      Kind = "batch"
	KindShell      Kind = "shell"
	KindUnknown    Kind = "unknown"
)

// Strategy selects how the executor runs a script.
type Strategy string

const (
	StrategySubprocess        Strategy = "subprocess"
	StrategyInProcessFunction Strategy = "in_process_function"
	StrategyInProcessModule   Strategy = "in_process_module"
	StrategyService           Strategy = "service"
	StrategyPowerShell        Strategy = "powershell"
	StrategyBatch             Strategy = "batch"
	StrategyShell             Strategy = "shell"
)

// TypeHint is the declared value type of an argument.
type TypeHint string

const (
	TypeString TypeHint = "str"
	TypeInt    TypeHint = "int"
	TypeFloat  TypeHint = "float"
	TypeBool   TypeHint = "bool"
)

// ErrUnsupported is returned for extensions outside the four families.
var ErrUnsupported = errors.New("unsupported script type")

// ArgumentSpec describes one declared script argument, in declaration order.
type ArgumentSpec struct {
	Name       string
	Required   bool
	Default    string
	HasDefault bool
	Help       string
	Type       TypeHint
	Choices    []string
}

// Info is the analyzer's immutable description of one script.
type Info struct {
	FilePath      string
	Identifier    string // lowercased stem+ext locally, registered name for external
	DisplayName   string
	Kind          Kind
	Strategy      Strategy
	Arguments     []ArgumentSpec
	IsExecutable  bool
	NeedsConfig   bool
	IsExternal    bool
	OriginPath    string
	LegacyKeys    []string
	AnalyzerError string
}

// HasArguments reports whether the script declares any arguments.
func (i *Info) HasArguments() bool {
	return len(i.Arguments) > 0
}

// Argument returns the spec for name, if declared.
func (i *Info) Argument(name string) (ArgumentSpec, bool) {
	for _, a := range i.Arguments {
		if a.Name == name {
			return a, true
		}
	}
	return ArgumentSpec{}, false
}

// KindForPath maps a file extension to its interpreter family.
func KindForPath(path string) Kind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py":
		return KindPython
	case ".ps1":
		return KindPowerShell
	case ".bat", ".cmd":
		return KindBatch
	case ".sh":
		return KindShell
	default:
		return KindUnknown
	}
}

// baseName splits on both separators so Windows paths persisted in settings
// resolve the same on every platform.
func baseName(path string) string {
	if i := strings.LastIndexByte(path, '\\'); i >= 0 {
		path = path[i+1:]
	}
	return filepath.Base(path)
}

// CanonicalIdentifier returns the lowercased stem+extension used as the
// runtime lookup key for local scripts.
func CanonicalIdentifier(path string) string {
	return strings.ToLower(baseName(path))
}

// LegacyKey returns the lowercased stem without extension, kept so persisted
// settings written before canonical identifiers existed still resolve.
func LegacyKey(path string) string {
	base := baseName(path)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}

// DisplayNameForPath derives the default display name from the file stem.
func DisplayNameForPath(path string) string {
	base := baseName(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.ReplaceAll(stem, "_", " ")
	stem = strings.ReplaceAll(stem, "-", " ")
	words := strings.Fields(stem)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// ValidateValue checks a provided value against the spec's type hint and
// choices. Returns a validation error suitable for an ExecutionResult.
func (a ArgumentSpec) ValidateValue(value string) error {
	if len(a.Choices) > 0 {
		found := false
		for _, c := range a.Choices {
			if c == value {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("argument %q: value %q not in choices %v", a.Name, value, a.Choices)
		}
	}
	switch a.Type {
	case TypeInt:
		if !isInt(value) {
			return fmt.Errorf("argument %q: %q is not an integer", a.Name, value)
		}
	case TypeFloat:
		if !isFloat(value) {
			return fmt.Errorf("argument %q: %q is not a number", a.Name, value)
		}
	}
	return nil
}

func isInt(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '+' || s[0] == '-' {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isFloat(s string) bool {
	if s == "" {
		return false
	}
	dot := false
	if s[0] == '+' || s[0] == '-' {
		s = s[1:]
	}
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.' && !dot:
			dot = true
		default:
			return false
		}
	}
	return digits > 0
}
