package script

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	shellGetopts  = regexp.MustCompile(`getopts\s+["']([A-Za-z:]+)["']`)
	shellPosRef   = regexp.MustCompile(`\$([1-9])\b`)
	shellHelpLine = regexp.MustCompile(`(?m)^\s*#\s*\$([1-9])\s*[:\-]?\s*(.+)$`)
)

// analyzeShell prefers a getopts option string when present; otherwise it
// falls back to $1..$9 positional references with #-comment help.
func analyzeShell(info *Info, source string) {
	info.Strategy = StrategyShell
	info.IsExecutable = true

	if m := shellGetopts.FindStringSubmatch(source); m != nil {
		info.Arguments = getoptsArguments(m[1])
		return
	}

	maxIndex := 0
	for _, m := range shellPosRef.FindAllStringSubmatch(source, -1) {
		idx := int(m[1][0] - '0')
		if idx > maxIndex {
			maxIndex = idx
		}
	}
	if maxIndex == 0 {
		return
	}

	help := make(map[int]string)
	for _, m := range shellHelpLine.FindAllStringSubmatch(source, -1) {
		idx := int(m[1][0] - '0')
		if _, ok := help[idx]; !ok {
			help[idx] = strings.TrimSpace(m[2])
		}
	}

	args := make([]ArgumentSpec, 0, maxIndex)
	for i := 1; i <= maxIndex; i++ {
		args = append(args, ArgumentSpec{
			Name:     fmt.Sprintf("arg%d", i),
			Required: true,
			Type:     TypeString,
			Help:     help[i],
		})
	}
	info.Arguments = args
}

// getoptsArguments expands a getopts option string: each letter becomes an
// option; a ':' suffix marks it as value-taking, otherwise it is a flag.
func getoptsArguments(optstring string) []ArgumentSpec {
	optstring = strings.TrimPrefix(optstring, ":")

	var args []ArgumentSpec
	for i := 0; i < len(optstring); i++ {
		c := optstring[i]
		if !isLetter(c) {
			continue
		}
		spec := ArgumentSpec{Name: string(c), Type: TypeBool}
		if i+1 < len(optstring) && optstring[i+1] == ':' {
			spec.Type = TypeString
			i++
		}
		args = append(args, spec)
	}
	return args
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
