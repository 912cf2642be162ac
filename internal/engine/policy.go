package engine

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Policy decides which project-relative paths actions may touch.
type Policy struct {
	protected []string
}

// NewPolicy compiles the protected glob list.
func NewPolicy(protected []string) (*Policy, error) {
	for _, p := range protected {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid protected pattern %q", p)
		}
	}
	return &Policy{protected: append([]string(nil), protected...)}, nil
}

// CleanRel normalises an action path to a slash-separated path relative to
// the project root. It rejects absolute paths and paths that leave the root.
func CleanRel(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("empty path")
	}
	p = strings.ReplaceAll(p, "\\", "/")
	if path.IsAbs(p) || (len(p) >= 2 && p[1] == ':') {
		return "", fmt.Errorf("%s: absolute paths are not allowed", p)
	}
	clean := path.Clean(p)
	if clean == "." {
		return "", fmt.Errorf("%s: refers to the project root", p)
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%s: escapes the project root", p)
	}
	return clean, nil
}

// Violation returns a reason when rel may not be touched, or "" when it may.
func (p *Policy) Violation(rel string) string {
	clean, err := CleanRel(rel)
	if err != nil {
		return err.Error()
	}
	for _, pattern := range p.protected {
		if ok, _ := doublestar.Match(pattern, clean); ok {
			return fmt.Sprintf("%s is protected by %q", clean, pattern)
		}
		// A protected directory pattern like ".git/**" also covers ".git" itself.
		if base, found := strings.CutSuffix(pattern, "/**"); found {
			if ok, _ := doublestar.Match(base, clean); ok {
				return fmt.Sprintf("%s is protected by %q", clean, pattern)
			}
		}
	}
	return ""
}
