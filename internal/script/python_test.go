package script

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func analyzeSource(t *testing.T, name, source string) *Info {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	a := &Analyzer{}
	info, err := a.Analyze(path)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	return info
}

func TestPythonStrategyMatrix(t *testing.T) {
	cases := []struct {
		name   string
		source string
		want   Strategy
	}{
		{
			name: "argparse args",
			source: `import argparse
parser = argparse.ArgumentParser()
parser.add_argument("--count", type=int)
parser.parse_args()
`,
			want: StrategySubprocess,
		},
		{
			name: "main function",
			source: `def main():
    print("hello")
`,
			want: StrategyInProcessFunction,
		},
		{
			name: "main with signature args",
			source: `def main(name, count=3):
    print(name, count)
`,
			want: StrategySubprocess,
		},
		{
			name: "guard only",
			source: `import sys
if __name__ == "__main__":
    sys.exit(0)
`,
			want: StrategySubprocess,
		},
		{
			name: "bare statements",
			source: `import time
print(time.time())
`,
			want: StrategyInProcessModule,
		},
		{
			name: "main beats guard",
			source: `def main():
    pass

if __name__ == "__main__":
    main()
`,
			want: StrategyInProcessFunction,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info := analyzeSource(t, "case.py", tc.source)
			if !info.IsExecutable {
				t.Fatalf("not executable: %s", info.AnalyzerError)
			}
			if info.Strategy != tc.want {
				t.Fatalf("strategy = %s, want %s", info.Strategy, tc.want)
			}
		})
	}
}

func TestForceServiceOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.py")
	require.NoError(t, os.WriteFile(path, []byte("def main():\n    pass\n"), 0o644))

	a := &Analyzer{ForceService: func(identifier string) bool { return identifier == "worker.py" }}
	info, err := a.Analyze(path)
	require.NoError(t, err)
	require.Equal(t, StrategyService, info.Strategy)
}

func TestArgparseExtraction(t *testing.T) {
	source := `import argparse

parser = argparse.ArgumentParser(description="demo")
parser.add_argument("--name", required=True, help="who to greet")
parser.add_argument("-c", "--count", type=int, default=1, help="repeat count")
parser.add_argument("--verbose", action="store_true")
parser.add_argument("--mode", choices=["fast", "slow"], default="fast")
parser.add_argument("target", help="positional target")
args = parser.parse_args()
`
	info := analyzeSource(t, "greet.py", source)
	require.Len(t, info.Arguments, 5)

	byName := map[string]ArgumentSpec{}
	for _, arg := range info.Arguments {
		byName[arg.Name] = arg
	}

	name := byName["name"]
	if !name.Required || name.Help != "who to greet" {
		t.Fatalf("unexpected --name spec: %+v", name)
	}

	count := byName["count"]
	if count.Name != "count" {
		t.Fatal("long option should win over the short alias")
	}
	require.Equal(t, TypeInt, count.Type)
	require.Equal(t, "1", count.Default)
	require.True(t, count.HasDefault)
	require.False(t, count.Required)

	require.Equal(t, TypeBool, byName["verbose"].Type)
	require.Equal(t, []string{"fast", "slow"}, byName["mode"].Choices)

	target := byName["target"]
	if !target.Required {
		t.Fatal("bare positional without default should be required")
	}

	// Declaration order is preserved.
	require.Equal(t, "name", info.Arguments[0].Name)
	require.Equal(t, "target", info.Arguments[4].Name)
}

func TestSignatureExtraction(t *testing.T) {
	source := `def main(host: str, port: int = 8080, dry_run: bool = False):
    pass
`
	info := analyzeSource(t, "deploy.py", source)
	require.Len(t, info.Arguments, 3)

	require.Equal(t, "host", info.Arguments[0].Name)
	require.True(t, info.Arguments[0].Required)

	port := info.Arguments[1]
	require.Equal(t, TypeInt, port.Type)
	require.Equal(t, "8080", port.Default)
	require.False(t, port.Required)

	require.Equal(t, TypeBool, info.Arguments[2].Type)
}

func TestMultilineSignature(t *testing.T) {
	source := `def main(
    source_dir,
    dest_dir,
    overwrite=False,
):
    pass
`
	info := analyzeSource(t, "copy.py", source)
	require.Len(t, info.Arguments, 3)
	require.Equal(t, "source_dir", info.Arguments[0].Name)
	require.Equal(t, "overwrite", info.Arguments[2].Name)
}

func TestDocstringOnlyNotExecutable(t *testing.T) {
	source := `"""Module docstring.

Spans several lines.
"""
import os
from pathlib import Path
`
	info := analyzeSource(t, "doc.py", source)
	if info.IsExecutable {
		t.Fatal("imports and docstrings alone should not be executable")
	}
	require.Equal(t, "no executable statements", info.AnalyzerError)
}

func TestUnbalancedSourceReported(t *testing.T) {
	info := analyzeSource(t, "broken.py", "def main(:\n    print((1, 2)\n")
	if info.IsExecutable {
		t.Fatal("unbalanced source should not be executable")
	}
	if info.AnalyzerError == "" {
		t.Fatal("expected a syntax diagnostic")
	}
}

func TestBracketsInsideStringsIgnored(t *testing.T) {
	source := `print("unbalanced ) ] } inside a string")
value = "(" + '['
`
	info := analyzeSource(t, "strings.py", source)
	if !info.IsExecutable {
		t.Fatalf("string contents tripped the balance check: %s", info.AnalyzerError)
	}
}

func TestEmptyAndBinaryFiles(t *testing.T) {
	empty := analyzeSource(t, "empty.py", "   \n\t\n")
	require.Equal(t, "empty", empty.AnalyzerError)
	require.False(t, empty.IsExecutable)

	binary := analyzeSource(t, "blob.py", "print(1)\x00\x00\x01\x02")
	require.Equal(t, "binary content", binary.AnalyzerError)
}

func TestBOMAndCRLFNormalized(t *testing.T) {
	source := "\xef\xbb\xbfdef main():\r\n    pass\r\n"
	info := analyzeSource(t, "bom.py", source)
	if !info.IsExecutable {
		t.Fatalf("BOM/CRLF source rejected: %s", info.AnalyzerError)
	}
	require.Equal(t, StrategyInProcessFunction, info.Strategy)
}

func TestUnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	a := &Analyzer{}
	info, err := a.Analyze(path)
	require.ErrorIs(t, err, ErrUnsupported)
	require.False(t, info.IsExecutable)
}

func TestAnalyzerIsPure(t *testing.T) {
	source := "def main(x, y=2):\n    return x\n"
	first := analyzeSource(t, "pure.py", source)
	second := analyzeSource(t, "pure.py", source)
	require.Equal(t, first.Arguments, second.Arguments)
	require.Equal(t, first.Strategy, second.Strategy)
}
