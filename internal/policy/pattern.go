package policy

import (
	"fmt"
	"path"
	"strings"
)

type segmentKind int

const (
	segLiteral segmentKind = iota
	segOne                 // * or {name}
	segRest                // **
)

type segment struct {
	kind  segmentKind
	value string
}

// pathPattern is a compiled path pattern. Segments are literal, "*" or
// "{name}" for exactly one segment, or "**" for zero or more segments.
type pathPattern struct {
	raw      string
	segments []segment
}

func compilePath(raw string) (pathPattern, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "/") {
		return pathPattern{}, fmt.Errorf("path pattern %q must start with /", raw)
	}
	var segments []segment
	for _, part := range splitPath(raw) {
		switch {
		case part == "**":
			segments = append(segments, segment{kind: segRest})
		case part == "*":
			segments = append(segments, segment{kind: segOne})
		case strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") && len(part) > 2:
			segments = append(segments, segment{kind: segOne, value: part[1 : len(part)-1]})
		case strings.ContainsAny(part, "*{}"):
			return pathPattern{}, fmt.Errorf("path pattern %q: wildcards must span a whole segment", raw)
		default:
			segments = append(segments, segment{kind: segLiteral, value: part})
		}
	}
	return pathPattern{raw: raw, segments: segments}, nil
}

func (p pathPattern) match(parts []string) bool {
	return matchSegments(p.segments, parts)
}

func matchSegments(pattern []segment, parts []string) bool {
	for i, seg := range pattern {
		if seg.kind == segRest {
			rest := pattern[i+1:]
			for skip := 0; skip <= len(parts); skip++ {
				if matchSegments(rest, parts[skip:]) {
					return true
				}
			}
			return false
		}
		if len(parts) == 0 {
			return false
		}
		if seg.kind == segLiteral && seg.value != parts[0] {
			return false
		}
		parts = parts[1:]
	}
	return len(parts) == 0
}

// splitPath returns the non-empty segments of p. "/" has none.
func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// isClean reports whether p is absolute and already in canonical form. A
// single trailing slash is tolerated.
func isClean(p string) bool {
	if !strings.HasPrefix(p, "/") {
		return false
	}
	cleaned := path.Clean(p)
	return cleaned == p || (p != "/" && cleaned+"/" == p)
}
