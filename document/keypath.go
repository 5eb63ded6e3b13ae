package document

import (
	"fmt"
	"strings"
)

// Keypath names a header or a body field. A dotted keypath is a sequence of
// segments; a keypath starting with "$" is a JSONPath expression over the body.
type Keypath struct {
	raw      string
	segments []string
}

// KeypathError reports a keypath that cannot be interpreted
type KeypathError struct {
	Keypath string
	Msg     string
}

func (e *KeypathError) Error() string {
	return fmt.Sprintf("invalid keypath %q: %s", e.Keypath, e.Msg)
}

// ParseKeypath validates a single keypath
func ParseKeypath(s string) (Keypath, error) {
	if s == "" {
		return Keypath{}, &KeypathError{Keypath: s, Msg: "empty keypath"}
	}
	if strings.HasPrefix(s, "$") {
		return Keypath{raw: s}, nil
	}
	segments := strings.Split(s, ".")
	for i, seg := range segments {
		if seg == "" {
			return Keypath{}, &KeypathError{Keypath: s, Msg: fmt.Sprintf("empty segment at position %d", i)}
		}
	}
	return Keypath{raw: s, segments: segments}, nil
}

// ParseKeypaths validates every keypath in the list, failing on the first bad one
func ParseKeypaths(list []string) ([]Keypath, error) {
	out := make([]Keypath, 0, len(list))
	for _, s := range list {
		kp, err := ParseKeypath(s)
		if err != nil {
			return nil, err
		}
		out = append(out, kp)
	}
	return out, nil
}

func (k Keypath) String() string { return k.raw }

// IsJSONPath reports whether the keypath is a JSONPath expression
func (k Keypath) IsJSONPath() bool { return k.segments == nil && k.raw != "" }

// Segments returns the dotted segments; nil for JSONPath keypaths
func (k Keypath) Segments() []string {
	return append([]string(nil), k.segments...)
}

// jsonPathToSegments converts a normalized JSONPath like $.a[1].b or
// $['a'][1]['b'] into segments ["a","1","b"]
func jsonPathToSegments(path string) []string {
	p := strings.TrimPrefix(path, "$")
	p = strings.TrimPrefix(p, ".")
	if p == "" {
		return nil
	}
	var (
		segments  []string
		cur       strings.Builder
		inBracket bool
	)
	flush := func() {
		if cur.Len() > 0 {
			segments = append(segments, cur.String())
			cur.Reset()
		}
	}
	for _, r := range p {
		switch {
		case r == '.' && !inBracket:
			flush()
			continue
		case r == '[' && !inBracket:
			flush()
			inBracket = true
			continue
		case r == ']' && inBracket:
			seg := strings.Trim(cur.String(), "'\"")
			cur.Reset()
			inBracket = false
			segments = append(segments, seg)
			continue
		}
		cur.WriteRune(r)
	}
	flush()
	return segments
}
