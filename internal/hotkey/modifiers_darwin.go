package hotkey

import "golang.design/x/hotkey"

func modifiers(ctrl, shift, alt, cmd bool) []hotkey.Modifier {
	var mods []hotkey.Modifier
	if ctrl {
		mods = append(mods, hotkey.ModCtrl)
	}
	if shift {
		mods = append(mods, hotkey.ModShift)
	}
	if alt {
		mods = append(mods, hotkey.ModOption)
	}
	if cmd {
		mods = append(mods, hotkey.ModCmd)
	}
	return mods
}

func modifierSymbol(mod hotkey.Modifier) string {
	switch mod {
	case hotkey.ModCtrl:
		return "⌃"
	case hotkey.ModShift:
		return "⇧"
	case hotkey.ModOption:
		return "⌥"
	case hotkey.ModCmd:
		return "⌘"
	default:
		return ""
	}
}
