package hotkey

import "golang.design/x/hotkey"

// Cmd maps to the Windows key
func modifiers(ctrl, shift, alt, cmd bool) []hotkey.Modifier {
	var mods []hotkey.Modifier
	if ctrl {
		mods = append(mods, hotkey.ModCtrl)
	}
	if shift {
		mods = append(mods, hotkey.ModShift)
	}
	if alt {
		mods = append(mods, hotkey.ModAlt)
	}
	if cmd {
		mods = append(mods, hotkey.ModWin)
	}
	return mods
}

func modifierSymbol(mod hotkey.Modifier) string {
	switch mod {
	case hotkey.ModCtrl:
		return "Ctrl+"
	case hotkey.ModShift:
		return "Shift+"
	case hotkey.ModAlt:
		return "Alt+"
	case hotkey.ModWin:
		return "Win+"
	default:
		return ""
	}
}
