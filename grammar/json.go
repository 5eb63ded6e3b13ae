package grammar

import "encoding/json"

// jsonParser is a strict RFC 8259 recursive-descent parser over body content.
// Offsets are content offsets; errors are reported at transcript offsets.
type jsonParser struct {
	grammar  Grammar
	content  *Content
	text     []byte
	fullText []byte
	pos      int
	end      int
	depth    int
	maxDepth int
}

func (j *jsonParser) fail(rule Kind, format string, args ...any) *ParseError {
	return newParseError(j.grammar, rule, j.fullText, j.content.offset(j.pos), format, args...)
}

func (j *jsonParser) eof() bool { return j.pos >= j.end }

func (j *jsonParser) peek() byte {
	if j.eof() {
		return 0
	}
	return j.text[j.pos]
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func (j *jsonParser) skipSpace() {
	for !j.eof() && isJSONSpace(j.text[j.pos]) {
		j.pos++
	}
}

// document consumes exactly one value followed only by whitespace
func (j *jsonParser) document() (*Node, error) {
	j.skipSpace()
	v, err := j.value()
	if err != nil {
		return nil, err
	}
	j.skipSpace()
	if !j.eof() {
		return nil, j.fail(KindBody, "unexpected %q after JSON value", j.peek())
	}
	return v, nil
}

func (j *jsonParser) value() (*Node, error) {
	if j.eof() {
		return nil, j.fail(KindJSONValue, "unexpected end of JSON input, expected a value")
	}
	switch c := j.peek(); {
	case c == '{':
		return j.object()
	case c == '[':
		return j.array()
	case c == '"':
		return j.quoted(KindJSONString)
	case c == 't':
		return j.literal("true", KindJSONBool)
	case c == 'f':
		return j.literal("false", KindJSONBool)
	case c == 'n':
		return j.literal("null", KindJSONNull)
	case c == '-' || isDigit(c):
		return j.number()
	default:
		return nil, j.fail(KindJSONValue, "expected a JSON value, found %q", c)
	}
}

func (j *jsonParser) enter(rule Kind) error {
	j.depth++
	if j.depth > j.maxDepth {
		return j.fail(rule, "nesting exceeds maximum depth of %d", j.maxDepth)
	}
	return nil
}

func (j *jsonParser) object() (*Node, error) {
	if err := j.enter(KindJSONObject); err != nil {
		return nil, err
	}
	defer func() { j.depth-- }()

	obj := &Node{Kind: KindJSONObject, Start: j.pos}
	j.pos++
	j.skipSpace()
	if j.peek() == '}' && !j.eof() {
		j.pos++
		obj.End = j.pos
		return obj, nil
	}

	seen := make(map[string]int)
	for {
		if j.eof() || j.peek() != '"' {
			return nil, j.fail(KindJSONKey, "expected object key")
		}
		key, err := j.quoted(KindJSONKey)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(j.content.raw[key.Start:key.End], &key.Value); err != nil {
			return nil, j.fail(KindJSONKey, "undecodable object key: %v", err)
		}
		if prev, dup := seen[key.Value]; dup {
			j.pos = key.Start
			return nil, j.fail(KindJSONKey, "duplicate object key %q (first at content offset %d)", key.Value, prev)
		}
		seen[key.Value] = key.Start

		j.skipSpace()
		if j.eof() || j.peek() != ':' {
			return nil, j.fail(KindJSONField, "expected ':' after object key")
		}
		j.pos++
		j.skipSpace()

		val, err := j.value()
		if err != nil {
			return nil, err
		}
		obj.add(&Node{Kind: KindJSONField, Start: key.Start, End: val.End, Children: []*Node{key, val}})

		j.skipSpace()
		if j.eof() {
			return nil, j.fail(KindJSONObject, "unterminated object")
		}
		switch j.peek() {
		case ',':
			j.pos++
			j.skipSpace()
		case '}':
			j.pos++
			obj.End = j.pos
			return obj, nil
		default:
			return nil, j.fail(KindJSONObject, "expected ',' or '}', found %q", j.peek())
		}
	}
}

func (j *jsonParser) array() (*Node, error) {
	if err := j.enter(KindJSONArray); err != nil {
		return nil, err
	}
	defer func() { j.depth-- }()

	arr := &Node{Kind: KindJSONArray, Start: j.pos}
	j.pos++
	j.skipSpace()
	if !j.eof() && j.peek() == ']' {
		j.pos++
		arr.End = j.pos
		return arr, nil
	}

	for {
		val, err := j.value()
		if err != nil {
			return nil, err
		}
		arr.add(val)

		j.skipSpace()
		if j.eof() {
			return nil, j.fail(KindJSONArray, "unterminated array")
		}
		switch j.peek() {
		case ',':
			j.pos++
			j.skipSpace()
		case ']':
			j.pos++
			arr.End = j.pos
			return arr, nil
		default:
			return nil, j.fail(KindJSONArray, "expected ',' or ']', found %q", j.peek())
		}
	}
}

// quoted consumes a string token. Value strings get a json-chars child covering
// the characters between the quotes; keys stay leaves.
func (j *jsonParser) quoted(kind Kind) (*Node, error) {
	start := j.pos
	j.pos++
	for {
		if j.eof() {
			j.pos = start
			return nil, j.fail(KindJSONString, "unterminated string")
		}
		c := j.text[j.pos]
		switch {
		case c == '"':
			node := &Node{Kind: kind, Start: start, End: j.pos + 1}
			if kind == KindJSONString {
				node.add(&Node{Kind: KindJSONChars, Start: start + 1, End: j.pos})
			}
			j.pos++
			return node, nil
		case c == '\\':
			if err := j.escape(); err != nil {
				return nil, err
			}
		case c < 0x20:
			return nil, j.fail(KindJSONString, "control character %q in string", c)
		default:
			j.pos++
		}
	}
}

func (j *jsonParser) escape() error {
	j.pos++
	if j.eof() {
		return j.fail(KindJSONString, "unterminated escape sequence")
	}
	switch j.text[j.pos] {
	case '"', '\\', '/', 'b', 'f', 'n', 'r', 't':
		j.pos++
		return nil
	case 'u':
		j.pos++
		for i := 0; i < 4; i++ {
			if j.eof() || !isHexDigit(j.text[j.pos]) {
				return j.fail(KindJSONString, "invalid \\u escape")
			}
			j.pos++
		}
		return nil
	default:
		return j.fail(KindJSONString, "invalid escape character %q", j.text[j.pos])
	}
}

// number consumes -? int frac? exp?
func (j *jsonParser) number() (*Node, error) {
	start := j.pos
	if j.peek() == '-' {
		j.pos++
	}
	switch {
	case j.eof() || !isDigit(j.peek()):
		return nil, j.fail(KindJSONNumber, "expected digit")
	case j.peek() == '0':
		j.pos++
	default:
		j.digits()
	}
	if !j.eof() && j.peek() == '.' {
		j.pos++
		if j.digits() == 0 {
			return nil, j.fail(KindJSONNumber, "expected digit after decimal point")
		}
	}
	if !j.eof() && (j.peek() == 'e' || j.peek() == 'E') {
		j.pos++
		if !j.eof() && (j.peek() == '+' || j.peek() == '-') {
			j.pos++
		}
		if j.digits() == 0 {
			return nil, j.fail(KindJSONNumber, "expected digit in exponent")
		}
	}
	return &Node{Kind: KindJSONNumber, Start: start, End: j.pos}, nil
}

func (j *jsonParser) digits() int {
	n := 0
	for !j.eof() && isDigit(j.peek()) {
		j.pos++
		n++
	}
	return n
}

func (j *jsonParser) literal(word string, kind Kind) (*Node, error) {
	start := j.pos
	if j.end-j.pos < len(word) || string(j.text[j.pos:j.pos+len(word)]) != word {
		return nil, j.fail(kind, "invalid literal, expected %q", word)
	}
	j.pos += len(word)
	return &Node{Kind: kind, Start: start, End: j.pos}, nil
}
