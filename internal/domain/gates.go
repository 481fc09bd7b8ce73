package domain

import (
	"fmt"
	"regexp"
)

// Named tag patterns usable in a gate instead of a raw regex.
//
//	release    — clean version tags only (v1.2.3)
//	prerelease — version tags with an optional suffix (v1.2.3, v1.2.3-rc1, v1.2.3.post0)
var namedPatterns = map[string]string{
	"release":    `^v\d+\.\d+\.\d+$`,
	"prerelease": `^v\d+\.\d+\.\d+([-.].+)?$`,
}

// Gate decides whether a stage runs for a given run context. An empty gate
// always passes. Branch and TagPattern are alternatives: the gate opens when
// either matches.
type Gate struct {
	Branch     string
	TagPattern string

	re *regexp.Regexp
}

func (g Gate) Empty() bool {
	return g.Branch == "" && g.TagPattern == ""
}

// Compile resolves named patterns and validates the tag regex. It must be
// called once after loading, before Allows.
func (g *Gate) Compile() error {
	if g.TagPattern == "" {
		return nil
	}
	pat := g.TagPattern
	if named, ok := namedPatterns[pat]; ok {
		pat = named
	}
	re, err := regexp.Compile(pat)
	if err != nil {
		return fmt.Errorf("tag pattern %q: %w", g.TagPattern, err)
	}
	g.re = re
	return nil
}

// Allows reports whether the gate opens for rc, with a human-readable reason
// either way.
func (g *Gate) Allows(rc RunContext) (bool, string) {
	if g.Empty() {
		return true, "no gate"
	}
	if g.Branch != "" && rc.Branch == g.Branch {
		return true, fmt.Sprintf("branch is %s", g.Branch)
	}
	if g.re != nil && rc.Tag != "" && g.re.MatchString(rc.Tag) {
		return true, fmt.Sprintf("tag %s matches %s", rc.Tag, g.TagPattern)
	}
	switch {
	case g.Branch != "" && g.TagPattern != "":
		return false, fmt.Sprintf("branch is not %s and tag does not match %s", g.Branch, g.TagPattern)
	case g.Branch != "":
		return false, fmt.Sprintf("branch is not %s", g.Branch)
	default:
		return false, fmt.Sprintf("tag does not match %s", g.TagPattern)
	}
}
