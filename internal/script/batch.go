package script

import (
	"fmt"
	"regexp"
	"strings"
)

var batchParamRef = regexp.MustCompile(`%([1-9])\b`)

// analyzeBatch scans for %1..%9 positional references and pairs each index
// with a help line from REM comments of the form "REM %N <text>".
func analyzeBatch(info *Info, source string) {
	info.Strategy = StrategyBatch
	info.IsExecutable = true

	maxIndex := 0
	for _, m := range batchParamRef.FindAllStringSubmatch(source, -1) {
		idx := int(m[1][0] - '0')
		if idx > maxIndex {
			maxIndex = idx
		}
	}
	if maxIndex == 0 {
		return
	}

	help := batchHelpLines(source)
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

var batchRemHelp = regexp.MustCompile(`(?im)^\s*REM\s+%([1-9])\s*[:\-]?\s*(.+)$`)

func batchHelpLines(source string) map[int]string {
	help := make(map[int]string)
	for _, m := range batchRemHelp.FindAllStringSubmatch(source, -1) {
		idx := int(m[1][0] - '0')
		if _, ok := help[idx]; !ok {
			help[idx] = strings.TrimSpace(m[2])
		}
	}
	return help
}
