package editor

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// KeyKind tags a decoded keystroke.
type KeyKind int

// Keystroke kinds.
const (
	KeyRune KeyKind = iota
	KeyEnter
	KeyBackspace
	KeyDelete
	KeyLeft
	KeyRight
	KeyUp
	KeyDown
	KeyHome
	KeyEnd
	KeyCtrl
	KeyEscape
	KeyTab
)

var kindNames = map[KeyKind]string{
	KeyRune:      "rune",
	KeyEnter:     "enter",
	KeyBackspace: "backspace",
	KeyDelete:    "delete",
	KeyLeft:      "left",
	KeyRight:     "right",
	KeyUp:        "up",
	KeyDown:      "down",
	KeyHome:      "home",
	KeyEnd:       "end",
	KeyCtrl:      "ctrl",
	KeyEscape:    "escape",
	KeyTab:       "tab",
}

// Key is one decoded keystroke. Rune is set for KeyRune and holds the
// lower-case letter for KeyCtrl.
type Key struct {
	Kind KeyKind
	Rune rune
}

// Ctrl returns the ctrl+letter chord for letter.
func Ctrl(letter rune) Key {
	return Key{Kind: KeyCtrl, Rune: letter}
}

// Runes returns one KeyRune per rune of s.
func Runes(s string) []Key {
	keys := make([]Key, 0, utf8.RuneCountInString(s))
	for _, r := range s {
		keys = append(keys, Key{Kind: KeyRune, Rune: r})
	}

	return keys
}

// String returns the key's canonical name, as accepted by ParseKey.
func (k Key) String() string {
	switch k.Kind {
	case KeyRune:
		return string(k.Rune)
	case KeyCtrl:
		return "ctrl+" + string(k.Rune)
	default:
		return kindNames[k.Kind]
	}
}

// ParseKey parses a chord name such as "ctrl+d" or "escape".
// Control letters that terminals cannot tell apart from other keys are rejected.
func ParseKey(name string) (Key, error) {
	n := strings.ToLower(strings.TrimSpace(name))

	switch n {
	case "escape", "esc":
		return Key{Kind: KeyEscape}, nil
	case "tab":
		return Key{Kind: KeyTab}, nil
	case "enter":
		return Key{Kind: KeyEnter}, nil
	}

	letter, ok := strings.CutPrefix(n, "ctrl+")
	if !ok || len(letter) != 1 || letter[0] < 'a' || letter[0] > 'z' {
		return Key{}, fmt.Errorf("unknown key %q", name)
	}

	switch letter[0] {
	case 'h', 'i', 'j', 'm':
		return Key{}, fmt.Errorf("key %q is indistinguishable from backspace, tab or enter", name)
	}

	return Ctrl(rune(letter[0])), nil
}

// decoder turns raw terminal bytes into keys. Incomplete escape sequences
// and UTF-8 runes are held until the next Feed or a Flush.
type decoder struct {
	pending []byte
}

// Feed appends p to any pending bytes and returns every complete key.
func (d *decoder) Feed(p []byte) []Key {
	d.pending = append(d.pending, p...)

	var keys []Key

	for len(d.pending) > 0 {
		key, n, ok := decodeOne(d.pending)
		if n == 0 {
			break
		}

		d.pending = d.pending[n:]

		if ok {
			keys = append(keys, key)
		}
	}

	if len(d.pending) == 0 {
		d.pending = nil
	}

	return keys
}

// Pending reports whether an incomplete sequence is buffered.
func (d *decoder) Pending() bool {
	return len(d.pending) > 0
}

// Flush resolves a buffered incomplete sequence. A lone ESC becomes KeyEscape;
// anything else is dropped.
func (d *decoder) Flush() []Key {
	if len(d.pending) == 0 {
		return nil
	}

	lone := len(d.pending) == 1 && d.pending[0] == 0x1b
	d.pending = nil

	if lone {
		return []Key{{Kind: KeyEscape}}
	}

	return nil
}

// decodeOne decodes the key at the start of p. It returns the number of
// bytes consumed (0 when more input is needed) and whether a key was produced.
func decodeOne(p []byte) (Key, int, bool) {
	b := p[0]

	switch {
	case b == 0x1b:
		return decodeEscape(p)
	case b == '\r':
		if len(p) > 1 && p[1] == '\n' {
			return Key{Kind: KeyEnter}, 2, true
		}

		return Key{Kind: KeyEnter}, 1, true
	case b == '\n':
		return Key{Kind: KeyEnter}, 1, true
	case b == '\t':
		return Key{Kind: KeyTab}, 1, true
	case b == 0x7f || b == 0x08:
		return Key{Kind: KeyBackspace}, 1, true
	case b >= 0x01 && b <= 0x1a:
		return Ctrl(rune('a' + b - 1)), 1, true
	case b < 0x20:
		return Key{}, 1, false
	case b < utf8.RuneSelf:
		return Key{Kind: KeyRune, Rune: rune(b)}, 1, true
	}

	if !utf8.FullRune(p) {
		return Key{}, 0, false
	}

	r, size := utf8.DecodeRune(p)
	if r == utf8.RuneError && size <= 1 {
		return Key{}, 1, false
	}

	return Key{Kind: KeyRune, Rune: r}, size, true
}

func decodeEscape(p []byte) (Key, int, bool) {
	if len(p) < 2 {
		return Key{}, 0, false
	}

	switch p[1] {
	case '[':
		return decodeCSI(p)
	case 'O':
		if len(p) < 3 {
			return Key{}, 0, false
		}

		key, ok := finalKey(p[2], "")

		return key, 3, ok
	default:
		// ESC followed by an ordinary byte: report escape, decode the byte next.
		return Key{Kind: KeyEscape}, 1, true
	}
}

func decodeCSI(p []byte) (Key, int, bool) {
	for i := 2; i < len(p); i++ {
		c := p[i]
		if c >= 0x40 && c <= 0x7e {
			key, ok := finalKey(c, string(p[2:i]))
			return key, i + 1, ok
		}

		if c < 0x20 || c > 0x3f {
			// Malformed; drop the introducer and resync.
			return Key{}, 2, false
		}
	}

	return Key{}, 0, false
}

func finalKey(final byte, params string) (Key, bool) {
	// Modifier parameters ("1;5") do not change the movement.
	if idx := strings.IndexByte(params, ';'); idx >= 0 {
		params = params[:idx]
	}

	switch final {
	case 'A':
		return Key{Kind: KeyUp}, true
	case 'B':
		return Key{Kind: KeyDown}, true
	case 'C':
		return Key{Kind: KeyRight}, true
	case 'D':
		return Key{Kind: KeyLeft}, true
	case 'H':
		return Key{Kind: KeyHome}, true
	case 'F':
		return Key{Kind: KeyEnd}, true
	case '~':
		switch params {
		case "1", "7":
			return Key{Kind: KeyHome}, true
		case "4", "8":
			return Key{Kind: KeyEnd}, true
		case "3":
			return Key{Kind: KeyDelete}, true
		}
	}

	return Key{}, false
}
