// Package sandbox confines every path the engine touches to one
// user's directory tree. Paths arrive as segment lists, never as
// joined strings, so traversal tokens cannot hide inside separators.
package sandbox

import (
	"path"
	"strings"

	"pidrive-backend/internal/fault"
)

// Resolve joins segments under root after checking each one. Any
// segment that is empty, a dot form, or carries a separator aborts
// the whole resolution.
func Resolve(root string, segments []string) (string, error) {
	resolved := root
	for _, segment := range segments {
		if err := checkSegment(segment); err != nil {
			return "", err
		}
		resolved = path.Join(resolved, segment)
	}
	return resolved, nil
}

func checkSegment(segment string) error {
	switch segment {
	case "", ".", "..":
		return fault.Newf(fault.CodePathEscape, "illegal path segment %q", segment)
	}
	if strings.ContainsAny(segment, "/\\\x00") {
		return fault.Newf(fault.CodePathEscape, "illegal path segment %q", segment)
	}
	return nil
}

// CheckName validates a caller-supplied entry name for create and
// rename operations. The rules match checkSegment but surface the
// naming taxonomy instead of the traversal one.
func CheckName(name string) error {
	switch name {
	case "", ".", "..":
		return fault.Newf(fault.CodeInvalidName, "invalid entry name %q", name)
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return fault.Newf(fault.CodeInvalidName, "invalid entry name %q", name)
	}
	if strings.TrimSpace(name) == "" {
		return fault.Newf(fault.CodeInvalidName, "invalid entry name %q", name)
	}
	return nil
}
