package shader

import (
	"maps"
	"slices"
)

// Source is named WGSL text as registered with a ShaderModuleCache.
type Source struct {
	Name string
	Code string
}

// Context selects pre-processor branches and substitutions for one compilation of a
// source. A flag set to false is the same as an absent flag; a value bound to zero is
// not the same as an unbound value.
type Context struct {
	// Flags enable #if blocks.
	Flags map[string]bool
	// Values are substituted for ${NAME} placeholders.
	Values map[string]int
}

// Enabled reports whether flag is set.
func (c Context) Enabled(flag string) bool {
	return c.Flags[flag]
}

// With returns a copy of the context with the given flags enabled.
//
// Parameters:
//   - flags: the flags to enable
//
// Returns:
//   - Context: the extended copy
func (c Context) With(flags ...string) Context {
	out := c.clone()
	if out.Flags == nil && len(flags) > 0 {
		out.Flags = make(map[string]bool, len(flags))
	}
	for _, f := range flags {
		out.Flags[f] = true
	}
	return out
}

// WithValue returns a copy of the context with name bound to v.
//
// Parameters:
//   - name: the placeholder name
//   - v: the substituted value
//
// Returns:
//   - Context: the extended copy
func (c Context) WithValue(name string, v int) Context {
	out := c.clone()
	if out.Values == nil {
		out.Values = make(map[string]int, 1)
	}
	out.Values[name] = v
	return out
}

// EnabledFlags returns the set flags in sorted order.
func (c Context) EnabledFlags() []string {
	var out []string
	for f, on := range c.Flags {
		if on {
			out = append(out, f)
		}
	}
	slices.Sort(out)
	return out
}

func (c Context) clone() Context {
	return Context{Flags: maps.Clone(c.Flags), Values: maps.Clone(c.Values)}
}
