package http

import xutil "SignalDesk/pkg/util"

// QueryLimit reads an integer query value and clamps it to [lo, hi]. An
// empty, invalid or zero value yields def.
func QueryLimit(raw string, def, lo, hi int) int {
	v := xutil.ParseIntDefault(raw, def)
	if v == 0 {
		v = def
	}
	return xutil.ClampInt(v, lo, hi)
}
