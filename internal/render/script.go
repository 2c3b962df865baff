// Package render turns model output into Manim scripts and runs the Manim
// CLI to produce videos.
package render

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNoScene is returned when a script defines no Scene subclass.
var ErrNoScene = errors.New("no Scene class detected in generated code")

var (
	fenceRe = regexp.MustCompile("(?s)```(?:python|py)?[ \t]*\r?\n(.*?)```")
	sceneRe = regexp.MustCompile(`class\s+(\w+)\s*\(\s*Scene\s*\)`)
)

// ExtractCode returns the body of the first fenced code block in raw, or
// raw itself when there is none.
func ExtractCode(raw string) string {
	if m := fenceRe.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(raw)
}

// DetectScene returns the name of the first Scene subclass in code.
func DetectScene(code string) (string, error) {
	m := sceneRe.FindStringSubmatch(code)
	if m == nil {
		return "", ErrNoScene
	}
	return m[1], nil
}

// IsAnimation reports whether a model reply is an animation script rather
// than a prose answer.
func IsAnimation(raw string) bool {
	return sceneRe.MatchString(raw)
}
