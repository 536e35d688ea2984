package script

import (
	"fmt"
	"strings"
)

// analyzePython detects the __main__ guard, a top-level main function, and
// argparse declarations, then applies the strategy selection table.
//
// The extractor is a tolerant structural scan rather than a full parser: it
// only needs declaration shapes, and user scripts routinely carry syntax the
// host should not choke on.
func (a *Analyzer) analyzePython(info *Info, source string) {
	if err := checkPythonStructure(source); err != nil {
		info.AnalyzerError = fmt.Sprintf("syntax error: %v", err)
		return
	}

	lines := strings.Split(source, "\n")
	hasGuard := false
	hasMain := false
	hasStatement := false
	mainSignature := ""

	inDocstring := false
	docstringDelim := ""
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if inDocstring {
			if strings.Contains(trimmed, docstringDelim) {
				inDocstring = false
			}
			continue
		}
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if delim, open := docstringStart(trimmed); open {
			inDocstring = true
			docstringDelim = delim
			continue
		}

		atTopLevel := !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t")
		if !atTopLevel {
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, "import ") || strings.HasPrefix(trimmed, "from "):
			// imports do not count toward executability
		case strings.HasPrefix(trimmed, "def main(") || strings.HasPrefix(trimmed, "def main ("):
			hasMain = true
			hasStatement = true
			mainSignature = extractSignature(lines, line)
		case strings.HasPrefix(trimmed, "if __name__") && strings.Contains(trimmed, "__main__"):
			hasGuard = true
			hasStatement = true
		default:
			hasStatement = true
		}
	}

	info.Arguments = extractArgparseArguments(source)
	if len(info.Arguments) == 0 && hasMain {
		info.Arguments = extractSignatureArguments(mainSignature)
	}

	info.IsExecutable = hasGuard || hasMain || hasStatement
	if !info.IsExecutable {
		info.AnalyzerError = "no executable statements"
	}
	info.Strategy = a.selectPythonStrategy(info, hasMain, hasGuard)
}

// docstringStart reports whether a line opens (and does not close) a
// triple-quoted string.
func docstringStart(trimmed string) (string, bool) {
	for _, delim := range []string{`"""`, "'''"} {
		if strings.HasPrefix(trimmed, delim) {
			rest := trimmed[len(delim):]
			if strings.Contains(rest, delim) {
				return "", false // single-line docstring
			}
			return delim, true
		}
	}
	return "", false
}

// extractSignature captures the full parenthesized parameter list of a def,
// following continuation lines until the parentheses balance.
func extractSignature(lines []string, defLine string) string {
	idx := -1
	for i, l := range lines {
		if l == defLine {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ""
	}

	var sb strings.Builder
	depth := 0
	started := false
	for i := idx; i < len(lines) && i < idx+50; i++ {
		for _, r := range lines[i] {
			switch r {
			case '(':
				depth++
				started = true
				if depth == 1 {
					continue
				}
			case ')':
				depth--
				if started && depth == 0 {
					return sb.String()
				}
			}
			if started && depth >= 1 {
				sb.WriteRune(r)
			}
		}
		if started {
			sb.WriteRune(' ')
		}
	}
	return sb.String()
}

// extractSignatureArguments converts a main() parameter list into specs.
func extractSignatureArguments(signature string) []ArgumentSpec {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return nil
	}

	var args []ArgumentSpec
	for _, param := range splitTopLevel(signature, ',') {
		param = strings.TrimSpace(param)
		if param == "" || strings.HasPrefix(param, "*") || param == "self" {
			continue
		}

		spec := ArgumentSpec{Type: TypeString, Required: true}

		if eq := indexTopLevel(param, '='); eq >= 0 {
			spec.Default = strings.TrimSpace(unquote(param[eq+1:]))
			spec.HasDefault = true
			spec.Required = false
			param = strings.TrimSpace(param[:eq])
		}
		if colon := indexTopLevel(param, ':'); colon >= 0 {
			spec.Type = typeHintFromAnnotation(strings.TrimSpace(param[colon+1:]))
			param = strings.TrimSpace(param[:colon])
		}
		if param == "" {
			continue
		}
		spec.Name = param
		args = append(args, spec)
	}
	return args
}

func typeHintFromAnnotation(annotation string) TypeHint {
	switch strings.TrimSpace(annotation) {
	case "int":
		return TypeInt
	case "float":
		return TypeFloat
	case "bool":
		return TypeBool
	default:
		return TypeString
	}
}

// extractArgparseArguments finds every add_argument(...) call and converts
// it into an ArgumentSpec, preserving declaration order.
func extractArgparseArguments(source string) []ArgumentSpec {
	if !strings.Contains(source, "ArgumentParser") {
		return nil
	}

	var args []ArgumentSpec
	search := source
	offset := 0
	for {
		idx := strings.Index(search, ".add_argument(")
		if idx < 0 {
			break
		}
		start := offset + idx + len(".add_argument(")
		body, end := balancedSpan(source, start-1)
		if end < 0 {
			break
		}
		if spec, ok := parseAddArgument(body); ok {
			args = append(args, spec)
		}
		offset = end
		search = source[offset:]
	}
	return args
}

// balancedSpan returns the content between the opening parenthesis at
// source[open] and its matching close, skipping string literals. end is the
// index just past the close, or -1 when unbalanced.
func balancedSpan(source string, open int) (string, int) {
	if open < 0 || open >= len(source) || source[open] != '(' {
		return "", -1
	}
	depth := 0
	var quote byte
	for i := open; i < len(source); i++ {
		c := source[i]
		if quote != 0 {
			if c == '\\' {
				i++
				continue
			}
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				return source[open+1 : i], i + 1
			}
		}
	}
	return "", -1
}

// parseAddArgument interprets one add_argument call body.
func parseAddArgument(body string) (ArgumentSpec, bool) {
	spec := ArgumentSpec{Type: TypeString}
	parts := splitTopLevel(body, ',')
	positional := true

	var flags []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		eq := indexTopLevel(part, '=')
		if positional && eq < 0 {
			flags = append(flags, unquote(part))
			continue
		}
		positional = false
		if eq < 0 {
			continue
		}

		key := strings.TrimSpace(part[:eq])
		value := strings.TrimSpace(part[eq+1:])
		switch key {
		case "required":
			spec.Required = value == "True"
		case "default":
			if value != "None" {
				spec.Default = unquote(value)
				spec.HasDefault = true
			}
		case "help":
			spec.Help = unquote(value)
		case "type":
			spec.Type = typeHintFromAnnotation(value)
		case "action":
			action := unquote(value)
			if action == "store_true" || action == "store_false" {
				spec.Type = TypeBool
			}
		case "choices":
			spec.Choices = parseChoices(value)
		}
	}

	name := chooseArgumentName(flags)
	if name == "" {
		return ArgumentSpec{}, false
	}
	spec.Name = name

	// Bare positionals are required unless a default was declared.
	if len(flags) > 0 && !strings.HasPrefix(flags[0], "-") && !spec.HasDefault {
		spec.Required = true
	}
	return spec, true
}

// chooseArgumentName prefers the long option name over short aliases.
func chooseArgumentName(flags []string) string {
	var short, long string
	for _, f := range flags {
		switch {
		case strings.HasPrefix(f, "--"):
			if long == "" {
				long = strings.TrimPrefix(f, "--")
			}
		case strings.HasPrefix(f, "-"):
			if short == "" {
				short = strings.TrimPrefix(f, "-")
			}
		default:
			if long == "" {
				long = f
			}
		}
	}
	if long != "" {
		return long
	}
	return short
}

func parseChoices(value string) []string {
	value = strings.TrimSpace(value)
	if len(value) < 2 {
		return nil
	}
	if (value[0] == '[' && value[len(value)-1] == ']') || (value[0] == '(' && value[len(value)-1] == ')') {
		value = value[1 : len(value)-1]
	}
	var choices []string
	for _, item := range splitTopLevel(value, ',') {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		choices = append(choices, unquote(item))
	}
	return choices
}

// splitTopLevel splits s on sep occurrences outside brackets and quotes.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	var quote byte
	last := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
				continue
			}
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	parts = append(parts, s[last:])
	return parts
}

// indexTopLevel returns the first index of c outside brackets and quotes.
func indexTopLevel(s string, c byte) int {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			if ch == '\\' {
				i++
				continue
			}
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			quote = ch
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		default:
			if ch == c && depth == 0 {
				return i
			}
		}
	}
	return -1
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '\'' && last == '\'') || (first == '"' && last == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// checkPythonStructure runs a lightweight balance check over the source,
// ignoring comments and string literals. It catches the truncated or
// mis-pasted files that would fail to compile, without pulling in a parser.
func checkPythonStructure(source string) error {
	var stack []byte
	var quote byte
	triple := ""
	line := 1

	for i := 0; i < len(source); i++ {
		c := source[i]
		if c == '\n' {
			line++
		}

		if triple != "" {
			if strings.HasPrefix(source[i:], triple) {
				i += 2
				triple = ""
			}
			continue
		}
		if quote != 0 {
			if c == '\\' {
				i++
				continue
			}
			if c == '\n' || c == quote {
				quote = 0
			}
			continue
		}

		switch c {
		case '#':
			for i < len(source) && source[i] != '\n' {
				i++
			}
			line++
		case '\'', '"':
			if strings.HasPrefix(source[i:], strings.Repeat(string(c), 3)) {
				triple = strings.Repeat(string(c), 3)
				i += 2
			} else {
				quote = c
			}
		case '(', '[', '{':
			stack = append(stack, c)
		case ')', ']', '}':
			if len(stack) == 0 {
				return fmt.Errorf("unbalanced %q at line %d", string(c), line)
			}
			open := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !bracketsMatch(open, c) {
				return fmt.Errorf("mismatched %q at line %d", string(c), line)
			}
		}
	}

	if len(stack) > 0 {
		return fmt.Errorf("unclosed %q", string(stack[len(stack)-1]))
	}
	if triple != "" {
		return fmt.Errorf("unterminated triple-quoted string")
	}
	return nil
}

func bracketsMatch(open byte, close byte) bool {
	switch open {
	case '(':
		return close == ')'
	case '[':
		return close == ']'
	case '{':
		return close == '}'
	}
	return false
}
