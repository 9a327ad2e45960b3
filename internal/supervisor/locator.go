package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ArtifactRule selects a launchable jar by file name.
type ArtifactRule interface {
	Match(name string) bool
}

// RuleFunc adapts a function to ArtifactRule.
type RuleFunc func(name string) bool

func (f RuleFunc) Match(name string) bool { return f(name) }

// Without matches names that do not contain sub (case-insensitive).
func Without(sub string) ArtifactRule {
	sub = strings.ToLower(sub)
	return RuleFunc(func(name string) bool { return !strings.Contains(strings.ToLower(name), sub) })
}

// Containing matches names that contain sub (case-insensitive).
func Containing(sub string) ArtifactRule {
	sub = strings.ToLower(sub)
	return RuleFunc(func(name string) bool { return strings.Contains(strings.ToLower(name), sub) })
}

// ArtifactLocator finds the server jar to launch.
type ArtifactLocator interface {
	Locate(dir string) (string, error)
}

// RuleLocator tries each rule in order against the *.jar files in a directory,
// sorted by name, and returns the first match.
type RuleLocator struct {
	Rules []ArtifactRule
}

// DefaultLocator prefers any jar that is not an installer, then falls back to
// a forge jar.
func DefaultLocator() *RuleLocator {
	return &RuleLocator{Rules: []ArtifactRule{Without("installer"), Containing("forge")}}
}

func (l *RuleLocator) Locate(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s does not exist", ErrNoArtifact, dir)
		}
		return "", fmt.Errorf("scan %s: %w", dir, err)
	}
	// ReadDir returns entries sorted by file name
	var jars []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".jar") {
			continue
		}
		jars = append(jars, e.Name())
	}
	for _, r := range l.Rules {
		for _, name := range jars {
			if r.Match(name) {
				return filepath.Join(dir, name), nil
			}
		}
	}
	return "", fmt.Errorf("%w in %s", ErrNoArtifact, dir)
}
