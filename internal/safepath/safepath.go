// Package safepath turns server- or user-supplied names into file names that
// are safe to place inside the download directory.
package safepath

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode"
)

// ErrUnsafeName indicates a name that would escape the download directory.
var ErrUnsafeName = errors.New("unsafe file name")

// maxNameLen keeps names below common file system limits.
const maxNameLen = 255

// ValidateName checks that name is a single, plain path component.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%q: %w", name, ErrUnsafeName)
	case containsNull(name):
		return fmt.Errorf("%q contains NUL: %w", name, ErrUnsafeName)
	case isAbsolute(name):
		return fmt.Errorf("%q is absolute: %w", name, ErrUnsafeName)
	case containsTraversal(name):
		return fmt.Errorf("%q contains traversal: %w", name, ErrUnsafeName)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%q contains a separator: %w", name, ErrUnsafeName)
	}
	return nil
}

// Sanitize reduces name to its last component and strips characters that
// are not portable in file names. It returns "" when nothing usable is left.
func Sanitize(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(path.Clean("/" + name))

	name = strings.Map(func(r rune) rune {
		switch {
		case r == 0, unicode.IsControl(r):
			return -1
		case strings.ContainsRune(`<>:"|?*`, r):
			return '_'
		}
		return r
	}, name)

	name = strings.TrimSpace(name)
	name = strings.TrimLeft(name, ".")
	if len(name) > maxNameLen {
		name = truncate(name, maxNameLen)
	}
	if ValidateName(name) != nil {
		return ""
	}
	return name
}

// truncate shortens name to at most n bytes, keeping the extension and
// never splitting a UTF-8 sequence.
func truncate(name string, n int) string {
	ext := path.Ext(name)
	if len(ext) >= n {
		ext = ""
	}
	stem := strings.TrimSuffix(name, ext)
	limit := n - len(ext)
	cut := 0
	for i := range stem {
		if i > limit {
			break
		}
		cut = i
	}
	if len(stem) <= limit {
		cut = len(stem)
	}
	return stem[:cut] + ext
}

func containsNull(name string) bool {
	return strings.ContainsRune(name, 0)
}

func containsTraversal(name string) bool {
	for _, part := range strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return true
		}
	}
	return false
}

func isAbsolute(name string) bool {
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return true
	}
	// Windows volume names such as C: or C:\.
	return len(name) >= 2 && name[1] == ':' && unicode.IsLetter(rune(name[0]))
}
