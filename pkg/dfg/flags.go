package dfg

import "strings"

// VarFlags is a per-name bitset of declaration properties that make
// ordinary def-use reasoning unsound for the name.
type VarFlags uint8

const (
	FlagReference VarFlags = 1 << iota // bound by reference (&$x)
	FlagGlobal                         // imported with `global`
	FlagStatic                         // declared with `static`

	flagNone VarFlags = 0
)

// AliasFlags is the set of flags that suppress unused-variable reports.
const AliasFlags = FlagReference | FlagGlobal | FlagStatic

// Has reports whether any bit of flag is set.
func (f VarFlags) Has(flag VarFlags) bool {
	return f&flag != 0
}

// with returns f with flag enabled. Bits are never cleared.
func (f VarFlags) with(flag VarFlags) VarFlags {
	return f | flag
}

func (f VarFlags) String() string {
	if f == flagNone {
		return "none"
	}
	var parts []string
	if f.Has(FlagReference) {
		parts = append(parts, "reference")
	}
	if f.Has(FlagGlobal) {
		parts = append(parts, "global")
	}
	if f.Has(FlagStatic) {
		parts = append(parts, "static")
	}
	return strings.Join(parts, "|")
}
