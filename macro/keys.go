package macro

import (
	"strings"
	"unicode/utf8"
)

// Key-name aliases from other capture tools to the names the injection
// backend understands. Recordings made elsewhere stay playable.
var keyAliases = map[string]string{
	"alt_l":        "alt",
	"alt_r":        "ralt",
	"alt_gr":       "ralt",
	"ctrl_l":       "ctrl",
	"ctrl_r":       "rctrl",
	"control":      "ctrl",
	"shift_l":      "shift",
	"shift_r":      "rshift",
	"cmd_l":        "cmd",
	"cmd_r":        "rcmd",
	"super":        "cmd",
	"win":          "cmd",
	"meta":         "cmd",
	"caps_lock":    "capslock",
	"num_lock":     "numlock",
	"page_up":      "pageup",
	"page_down":    "pagedown",
	"print_screen": "printscreen",
	"return":       "enter",
	"escape":       "esc",
	"del":          "delete",
	"spacebar":     "space",
}

var namedKeys = map[string]struct{}{
	"esc": {}, "enter": {}, "tab": {}, "space": {}, "backspace": {},
	"delete": {}, "insert": {}, "home": {}, "end": {}, "pageup": {},
	"pagedown": {}, "up": {}, "down": {}, "left": {}, "right": {},
	"shift": {}, "rshift": {}, "ctrl": {}, "rctrl": {}, "alt": {},
	"ralt": {}, "cmd": {}, "rcmd": {}, "capslock": {}, "numlock": {},
	"printscreen": {}, "menu": {}, "pause": {},
	"f1": {}, "f2": {}, "f3": {}, "f4": {}, "f5": {}, "f6": {},
	"f7": {}, "f8": {}, "f9": {}, "f10": {}, "f11": {}, "f12": {},
	"f13": {}, "f14": {}, "f15": {}, "f16": {}, "f17": {}, "f18": {},
	"f19": {}, "f20": {}, "f21": {}, "f22": {}, "f23": {}, "f24": {},
	"audio_mute": {}, "audio_vol_down": {}, "audio_vol_up": {},
	"audio_play": {}, "audio_stop": {}, "audio_prev": {}, "audio_next": {},
}

// ResolveKey maps a recorded key name to the name the injection backend
// uses. A single printable character stands for itself. The legacy "Key."
// prefix some recorders emit is stripped before lookup. ok is false when
// the name cannot be resolved; callers then fall back to typing the name
// literally.
func ResolveKey(s string) (name string, ok bool) {
	s = strings.TrimPrefix(s, "Key.")
	if s == "" {
		return "", false
	}
	if utf8.RuneCountInString(s) == 1 {
		return s, true
	}

	lower := strings.ToLower(s)
	if mapped, found := keyAliases[lower]; found {
		return mapped, true
	}
	if _, found := namedKeys[lower]; found {
		return lower, true
	}
	return "", false
}
