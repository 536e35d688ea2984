// Package hotkey maintains the persisted name-to-chord map with conflict
// rules, and adapts chords onto the OS global-hotkey primitive.
package hotkey

import (
	"fmt"
	"strings"
)

// Modifier mask bits, matching the Win32 RegisterHotKey values; other
// backends translate as needed.
const (
	ModAlt      uint32 = 0x0001
	ModCtrl     uint32 = 0x0002
	ModShift    uint32 = 0x0004
	ModWin      uint32 = 0x0008
	ModNoRepeat uint32 = 0x4000
)

// modifierOrder is the canonical order for normalized chords.
var modifierOrder = []string{"Ctrl", "Alt", "Shift", "Win"}

var modifierAliases = map[string]string{
	"ctrl":    "Ctrl",
	"control": "Ctrl",
	"alt":     "Alt",
	"shift":   "Shift",
	"win":     "Win",
	"windows": "Win",
	"super":   "Win",
	"meta":    "Win",
	"cmd":     "Win",
}

// NormalizeChord canonicalizes a chord string: modifiers uppercased into
// Ctrl, Alt, Shift, Win order, the key token title-cased, whitespace around
// '+' trimmed. Returns an error for empty or modifier-only chords.
func NormalizeChord(chord string) (string, error) {
	parts := strings.Split(chord, "+")

	seen := make(map[string]bool)
	var key string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if mod, ok := modifierAliases[strings.ToLower(part)]; ok {
			seen[mod] = true
			continue
		}
		if key != "" {
			return "", fmt.Errorf("chord %q has multiple key tokens", chord)
		}
		key = titleCaseKey(part)
	}
	if key == "" {
		return "", fmt.Errorf("chord %q has no key token", chord)
	}

	var out []string
	for _, mod := range modifierOrder {
		if seen[mod] {
			out = append(out, mod)
		}
	}
	out = append(out, key)
	return strings.Join(out, "+"), nil
}

func titleCaseKey(token string) string {
	if len(token) == 1 {
		return strings.ToUpper(token)
	}
	lower := strings.ToLower(token)
	// Function keys and numpad tokens keep their digit suffix.
	if len(lower) >= 2 && lower[0] == 'f' && isDigits(lower[1:]) {
		return "F" + lower[1:]
	}
	if strings.HasPrefix(lower, "numpad") {
		return "Numpad" + lower[6:]
	}
	return strings.ToUpper(lower[:1]) + lower[1:]
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// virtualKeys maps normalized key tokens to Win32 virtual-key codes.
var virtualKeys = map[string]uint32{
	"Backspace":   0x08,
	"Tab":         0x09,
	"Enter":       0x0D,
	"Pause":       0x13,
	"Escape":      0x1B,
	"Space":       0x20,
	"Pageup":      0x21,
	"Pagedown":    0x22,
	"End":         0x23,
	"Home":        0x24,
	"Left":        0x25,
	"Up":          0x26,
	"Right":       0x27,
	"Down":        0x28,
	"Printscreen": 0x2C,
	"Insert":      0x2D,
	"Delete":      0x2E,

	"Numpad0": 0x60, "Numpad1": 0x61, "Numpad2": 0x62, "Numpad3": 0x63,
	"Numpad4": 0x64, "Numpad5": 0x65, "Numpad6": 0x66, "Numpad7": 0x67,
	"Numpad8": 0x68, "Numpad9": 0x69,
	"Multiply": 0x6A, "Add": 0x6B, "Subtract": 0x6D, "Decimal": 0x6E, "Divide": 0x6F,

	";": 0xBA, "=": 0xBB, ",": 0xBC, "-": 0xBD, ".": 0xBE, "/": 0xBF,
	"`": 0xC0, "[": 0xDB, "\\": 0xDC, "]": 0xDD, "'": 0xDE,
}

func init() {
	for c := byte('0'); c <= '9'; c++ {
		virtualKeys[string(c)] = uint32(c)
	}
	for c := byte('A'); c <= 'Z'; c++ {
		virtualKeys[string(c)] = uint32(c)
	}
	for i := 1; i <= 24; i++ {
		virtualKeys[fmt.Sprintf("F%d", i)] = uint32(0x70 + i - 1)
	}
}

// ParseChord converts a normalized chord into (modifier mask, virtual-key
// code). The no-repeat flag is always set so held keys do not re-fire.
func ParseChord(chord string) (uint32, uint32, error) {
	normalized, err := NormalizeChord(chord)
	if err != nil {
		return 0, 0, err
	}

	parts := strings.Split(normalized, "+")
	mods := ModNoRepeat
	key := parts[len(parts)-1]
	for _, part := range parts[:len(parts)-1] {
		switch part {
		case "Ctrl":
			mods |= ModCtrl
		case "Alt":
			mods |= ModAlt
		case "Shift":
			mods |= ModShift
		case "Win":
			mods |= ModWin
		}
	}

	vk, ok := virtualKeys[key]
	if !ok {
		return 0, 0, fmt.Errorf("unknown key token %q", key)
	}
	return mods, vk, nil
}

// reservedChords are combinations the OS or ubiquitous applications own.
// The registry refuses to bind them even where the OS would allow it.
var reservedChords = map[string]bool{
	"Ctrl+C": true, "Ctrl+V": true, "Ctrl+X": true, "Ctrl+Z": true,
	"Ctrl+Y": true, "Ctrl+S": true, "Ctrl+O": true, "Ctrl+N": true,
	"Ctrl+P": true, "Ctrl+F": true, "Ctrl+H": true,
	"Alt+Tab": true, "Alt+F4": true, "Alt+Escape": true,
	"Ctrl+Alt+Delete": true, "Ctrl+Shift+Escape": true,
	"Win+L": true, "Win+D": true, "Win+E": true, "Win+R": true,
	"Win+Tab": true, "Win+X": true,
}

// IsReserved reports whether the normalized form of chord is reserved.
func IsReserved(chord string) bool {
	normalized, err := NormalizeChord(chord)
	if err != nil {
		return false
	}
	return reservedChords[normalized]
}
