package document

import (
	"fmt"
	"sort"

	gojson "github.com/coreos/go-json"

	"selective-disclosure/grammar"
	"selective-disclosure/rangeset"
)

// Value is one JSON value of a message body. Spans are in content coordinates;
// Body.Map translates them onto the transcript.
type Value struct {
	Kind   grammar.Kind
	Span   rangeset.Span
	Fields []Field  // object members in document order
	Items  []*Value // array elements

	chars rangeset.Span // characters between the quotes of a string
}

// Field is one object member
type Field struct {
	Key     string
	KeySpan rangeset.Span
	Value   *Value
}

// Field returns the member with exactly the given name
func (v *Value) Field(name string) (*Value, bool) {
	if v == nil || v.Kind != grammar.KindJSONObject {
		return nil, false
	}
	for _, f := range v.Fields {
		if f.Key == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Index returns the i-th array element
func (v *Value) Index(i int) (*Value, bool) {
	if v == nil || v.Kind != grammar.KindJSONArray || i < 0 || i >= len(v.Items) {
		return nil, false
	}
	return v.Items[i], true
}

// DisclosedSpan is the range revealed for this value: the characters between
// the quotes for strings, the whole token otherwise.
func (v *Value) DisclosedSpan() rangeset.Span {
	if v.Kind == grammar.KindJSONString {
		return v.chars
	}
	return v.Span
}

// ShapeError reports a syntax tree that cannot be converted into a document
type ShapeError struct {
	Kind grammar.Kind
	Span rangeset.Span
	Msg  string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("unexpected %s node at %s: %s", e.Kind, e.Span, e.Msg)
}

func shapeError(n *grammar.Node, format string, args ...any) *ShapeError {
	return &ShapeError{Kind: n.Kind, Span: n.Span(), Msg: fmt.Sprintf(format, args...)}
}

func buildValue(n *grammar.Node) (*Value, error) {
	v := &Value{Kind: n.Kind, Span: n.Span()}
	switch n.Kind {
	case grammar.KindJSONObject:
		for _, c := range n.Children {
			if c.Kind != grammar.KindJSONField || len(c.Children) != 2 || c.Children[0].Kind != grammar.KindJSONKey {
				return nil, shapeError(c, "object member must be a key followed by a value")
			}
			key := c.Children[0]
			val, err := buildValue(c.Children[1])
			if err != nil {
				return nil, err
			}
			if val.Span.Start < key.End {
				return nil, shapeError(c, "value overlaps its key")
			}
			v.Fields = append(v.Fields, Field{Key: key.Value, KeySpan: key.Span(), Value: val})
		}
	case grammar.KindJSONArray:
		for _, c := range n.Children {
			item, err := buildValue(c)
			if err != nil {
				return nil, err
			}
			v.Items = append(v.Items, item)
		}
	case grammar.KindJSONString:
		chars := n.Child(grammar.KindJSONChars)
		if chars == nil || len(n.Children) != 1 {
			return nil, shapeError(n, "string must hold exactly one character run")
		}
		if chars.Start != n.Start+1 || chars.End != n.End-1 {
			return nil, shapeError(n, "string characters must sit between the quotes")
		}
		v.chars = chars.Span()
	case grammar.KindJSONNumber, grammar.KindJSONBool, grammar.KindJSONNull:
		if !n.IsLeaf() {
			return nil, shapeError(n, "scalar must be a leaf")
		}
	default:
		return nil, shapeError(n, "not a JSON value")
	}
	return v, nil
}

// crossCheck parses the body a second time with an independent parser and
// requires the top-level shape to agree with the syntax tree
func crossCheck(doc []byte, root *Value) error {
	var node gojson.Node
	if err := gojson.Unmarshal(doc, &node); err != nil {
		return fmt.Errorf("JSON body rejected by cross-check parser: %w", err)
	}

	switch other := node.Value.(type) {
	case map[string]gojson.Node:
		if root.Kind != grammar.KindJSONObject {
			return fmt.Errorf("JSON cross-check: body is an object but was parsed as %s", root.Kind)
		}
		keys := make([]string, 0, len(root.Fields))
		for _, f := range root.Fields {
			keys = append(keys, f.Key)
		}
		otherKeys := make([]string, 0, len(other))
		for k := range other {
			otherKeys = append(otherKeys, k)
		}
		sort.Strings(keys)
		sort.Strings(otherKeys)
		if len(keys) != len(otherKeys) {
			return fmt.Errorf("JSON cross-check: %d top-level keys against %d", len(keys), len(otherKeys))
		}
		for i := range keys {
			if keys[i] != otherKeys[i] {
				return fmt.Errorf("JSON cross-check: top-level key %q has no counterpart", keys[i])
			}
		}
	case []gojson.Node:
		if root.Kind != grammar.KindJSONArray {
			return fmt.Errorf("JSON cross-check: body is an array but was parsed as %s", root.Kind)
		}
		if len(other) != len(root.Items) {
			return fmt.Errorf("JSON cross-check: %d array elements against %d", len(root.Items), len(other))
		}
	default:
		return fmt.Errorf("JSON cross-check: unexpected top-level %T", other)
	}
	return nil
}

// Body is the content of a message after framing has been removed
type Body struct {
	content *grammar.Content

	// JSON is the parsed value tree, nil when the body is not JSON-shaped
	JSON *Value
}

func newBody(c *grammar.Content) (*Body, error) {
	if c == nil {
		return nil, nil
	}
	b := &Body{content: c}
	if !c.IsJSON() {
		return b, nil
	}
	root, err := buildValue(c.Root)
	if err != nil {
		return nil, err
	}
	if err := crossCheck(c.Bytes(), root); err != nil {
		return nil, err
	}
	b.JSON = root
	return b, nil
}

// Chunked reports whether the body was transfer-coded in chunks
func (b *Body) Chunked() bool { return b.content.Chunked() }

// Bytes returns the de-framed body bytes
func (b *Body) Bytes() []byte { return b.content.Bytes() }

// Text returns the body bytes under a value
func (b *Body) Text(v *Value) string {
	return b.content.Slice(v.Span)
}

// Map translates a content span into transcript spans
func (b *Body) Map(span rangeset.Span) ([]rangeset.Span, error) {
	return b.content.Map(span.Start, span.End)
}
