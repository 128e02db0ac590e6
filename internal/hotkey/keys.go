package hotkey

import (
	"fmt"
	"strings"

	"golang.design/x/hotkey"
)

// keyNames maps config names to key codes; codes are platform specific
var keyNames = map[string]hotkey.Key{
	"space":  hotkey.KeySpace,
	"return": hotkey.KeyReturn,
	"enter":  hotkey.KeyReturn,
	"escape": hotkey.KeyEscape,
	"esc":    hotkey.KeyEscape,
	"tab":    hotkey.KeyTab,
	"delete": hotkey.KeyDelete,
	"left":   hotkey.KeyLeft,
	"right":  hotkey.KeyRight,
	"up":     hotkey.KeyUp,
	"down":   hotkey.KeyDown,

	"a": hotkey.KeyA, "b": hotkey.KeyB, "c": hotkey.KeyC, "d": hotkey.KeyD,
	"e": hotkey.KeyE, "f": hotkey.KeyF, "g": hotkey.KeyG, "h": hotkey.KeyH,
	"i": hotkey.KeyI, "j": hotkey.KeyJ, "k": hotkey.KeyK, "l": hotkey.KeyL,
	"m": hotkey.KeyM, "n": hotkey.KeyN, "o": hotkey.KeyO, "p": hotkey.KeyP,
	"q": hotkey.KeyQ, "r": hotkey.KeyR, "s": hotkey.KeyS, "t": hotkey.KeyT,
	"u": hotkey.KeyU, "v": hotkey.KeyV, "w": hotkey.KeyW, "x": hotkey.KeyX,
	"y": hotkey.KeyY, "z": hotkey.KeyZ,

	"0": hotkey.Key0, "1": hotkey.Key1, "2": hotkey.Key2, "3": hotkey.Key3,
	"4": hotkey.Key4, "5": hotkey.Key5, "6": hotkey.Key6, "7": hotkey.Key7,
	"8": hotkey.Key8, "9": hotkey.Key9,

	"f1": hotkey.KeyF1, "f2": hotkey.KeyF2, "f3": hotkey.KeyF3, "f4": hotkey.KeyF4,
	"f5": hotkey.KeyF5, "f6": hotkey.KeyF6, "f7": hotkey.KeyF7, "f8": hotkey.KeyF8,
	"f9": hotkey.KeyF9, "f10": hotkey.KeyF10, "f11": hotkey.KeyF11, "f12": hotkey.KeyF12,
}

// displayNames are the names FormatHotkey prints for non-alphanumeric keys
var displayNames = map[hotkey.Key]string{
	hotkey.KeySpace:  "Space",
	hotkey.KeyReturn: "Return",
	hotkey.KeyEscape: "Esc",
	hotkey.KeyTab:    "Tab",
	hotkey.KeyDelete: "Delete",
	hotkey.KeyLeft:   "Left",
	hotkey.KeyRight:  "Right",
	hotkey.KeyUp:     "Up",
	hotkey.KeyDown:   "Down",
}

// ParseKey converts a key name such as "Space", "A" or "F9" to a key code
func ParseKey(name string) (hotkey.Key, error) {
	key, ok := keyNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown hotkey key %q", name)
	}
	return key, nil
}

// keyToString converts a key code to a display string
func keyToString(key hotkey.Key) string {
	if name, ok := displayNames[key]; ok {
		return name
	}
	for name, k := range keyNames {
		if k == key {
			return strings.ToUpper(name)
		}
	}
	return "Unknown"
}

// FormatHotkey returns a human-readable string representation of the hotkey
func FormatHotkey(modifiers []hotkey.Modifier, key hotkey.Key) string {
	var b strings.Builder
	for _, mod := range modifiers {
		b.WriteString(modifierSymbol(mod))
	}
	b.WriteString(keyToString(key))
	return b.String()
}
