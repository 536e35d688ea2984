package script

import (
	"regexp"
	"strings"
)

var (
	psParamStart    = regexp.MustCompile(`(?im)^\s*param\s*\(`)
	psVariable      = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
	psMandatory     = regexp.MustCompile(`(?i)\[\s*Parameter\s*\([^)]*Mandatory\s*=\s*\$true[^)]*\)\s*\]`)
	psTypeAnnot     = regexp.MustCompile(`\[\s*(string|int|int32|int64|long|double|float|decimal|bool|boolean|switch)\s*\]`)
	psTrailComment  = regexp.MustCompile(`#\s*(.+)$`)
	psDefaultAssign = regexp.MustCompile(`^\s*=\s*(.+)$`)
)

// analyzePowerShell locates the param(...) block with balanced-parenthesis
// scanning and derives a spec per $Variable. The 200 characters preceding a
// variable are inspected for [Parameter(Mandatory=$true)] and [Type]
// annotations, matching how param blocks are conventionally laid out.
func analyzePowerShell(info *Info, source string) {
	info.Strategy = StrategyPowerShell
	info.IsExecutable = true

	loc := psParamStart.FindStringIndex(source)
	if loc == nil {
		return
	}
	open := strings.IndexByte(source[loc[0]:loc[1]], '(') + loc[0]
	block, _ := balancedSpan(source, open)
	if block == "" {
		return
	}

	var args []ArgumentSpec
	seen := make(map[string]bool)
	for _, entry := range splitTopLevel(block, ',') {
		varLoc := paramVariableIndex(entry)
		if varLoc == nil {
			continue
		}
		name := entry[varLoc[2]:varLoc[3]]
		if seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true

		spec := ArgumentSpec{Name: name, Type: TypeString}

		// Look back up to 200 chars for attribute annotations.
		lookback := entry[:varLoc[0]]
		if len(lookback) > 200 {
			lookback = lookback[len(lookback)-200:]
		}
		if psMandatory.MatchString(lookback) {
			spec.Required = true
		}
		if m := psTypeAnnot.FindStringSubmatch(lookback); m != nil {
			spec.Type = psTypeHint(m[1])
		}

		rest := entry[varLoc[1]:]
		if line, _, found := strings.Cut(rest, "\n"); found || rest != "" {
			if m := psDefaultAssign.FindStringSubmatch(stripTrailingComment(line)); m != nil {
				spec.Default = unquote(strings.TrimSpace(m[1]))
				spec.HasDefault = true
			}
		}
		// The trailing comment sits after the separating comma, so it is
		// recovered from the variable's own source line, not the entry.
		spec.Help = paramLineHelp(block, name)

		args = append(args, spec)
	}
	info.Arguments = args
}

// paramLineHelp returns the trailing # comment on the line declaring $name.
func paramLineHelp(block, name string) string {
	for _, line := range strings.Split(block, "\n") {
		if !strings.Contains(line, "$"+name) {
			continue
		}
		if m := psTrailComment.FindStringSubmatch(line); m != nil {
			return strings.TrimSpace(m[1])
		}
		return ""
	}
	return ""
}

// paramVariableIndex finds the parameter's own $Variable, skipping variables
// that appear inside [Parameter(...)] attribute brackets such as $true.
func paramVariableIndex(entry string) []int {
	for _, loc := range psVariable.FindAllStringSubmatchIndex(entry, -1) {
		depth := 0
		for i := 0; i < loc[0]; i++ {
			switch entry[i] {
			case '[', '(':
				depth++
			case ']', ')':
				depth--
			}
		}
		if depth == 0 {
			return loc
		}
	}
	return nil
}

func psTypeHint(name string) TypeHint {
	switch strings.ToLower(name) {
	case "int", "int32", "int64", "long":
		return TypeInt
	case "double", "float", "decimal":
		return TypeFloat
	case "bool", "boolean", "switch":
		return TypeBool
	default:
		return TypeString
	}
}

func stripTrailingComment(line string) string {
	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		return line[:idx]
	}
	return line
}
