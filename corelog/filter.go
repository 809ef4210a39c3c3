package corelog

import "strings"

// Filter is a parsed "level,target=level,target::sub=level" directive
// string, per spec §4.7.
type Filter struct {
	Default   Level
	PerTarget map[string]Level
}

func parseLevel(s string) (Level, bool) {
	switch strings.ToLower(s) {
	case "trace":
		return LevelTrace, true
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	default:
		return 0, false
	}
}

// ParseFilter parses a directive string such as "info,scheduler=debug". A
// comma-separated directive with no "=" sets the default level (if there
// are several, the last one wins); every other directive must be
// "target=level".
func ParseFilter(s string) (*Filter, error) {
	f := &Filter{Default: LevelInfo, PerTarget: make(map[string]Level)}
	if strings.TrimSpace(s) == "" {
		return f, nil
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if eq := strings.Index(part, "="); eq >= 0 {
			target := strings.TrimSpace(part[:eq])
			lvl, ok := parseLevel(strings.TrimSpace(part[eq+1:]))
			if target == "" || !ok {
				return nil, ErrBadFilter
			}
			f.PerTarget[target] = lvl
			continue
		}
		lvl, ok := parseLevel(part)
		if !ok {
			return nil, ErrBadFilter
		}
		f.Default = lvl
	}
	return f, nil
}

// Allows reports whether a record at level for target should be emitted.
// The most specific matching target prefix wins; "a::b::c" matches an
// entry for "a::b" before falling back to "a" or the default.
func (f *Filter) Allows(target string, level Level) bool {
	best := f.Default
	bestLen := -1
	for t, lvl := range f.PerTarget {
		if t == target || strings.HasPrefix(target, t+"::") {
			if len(t) > bestLen {
				best = lvl
				bestLen = len(t)
			}
		}
	}
	return level >= best
}
