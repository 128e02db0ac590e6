package hotkey

import "golang.design/x/hotkey"

// X11 maps Alt to Mod1 and Super to Mod4 on common layouts
func modifiers(ctrl, shift, alt, cmd bool) []hotkey.Modifier {
	var mods []hotkey.Modifier
	if ctrl {
		mods = append(mods, hotkey.ModCtrl)
	}
	if shift {
		mods = append(mods, hotkey.ModShift)
	}
	if alt {
		mods = append(mods, hotkey.Mod1)
	}
	if cmd {
		mods = append(mods, hotkey.Mod4)
	}
	return mods
}

func modifierSymbol(mod hotkey.Modifier) string {
	switch mod {
	case hotkey.ModCtrl:
		return "Ctrl+"
	case hotkey.ModShift:
		return "Shift+"
	case hotkey.Mod1:
		return "Alt+"
	case hotkey.Mod4:
		return "Super+"
	default:
		return ""
	}
}
