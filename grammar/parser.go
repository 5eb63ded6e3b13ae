// Package grammar parses raw HTTP/1.x transcripts into positioned syntax trees.
//
// Two grammars are supported, one for requests and one for responses. Both are
// strict: any input that does not match exactly fails with a *ParseError and no
// tree is returned, since an ambiguous parse must never drive a disclosure decision.
package grammar

import (
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const defaultMaxDepth = 256

// Options bound the work a parse may do
type Options struct {
	MaxSize  int // reject transcripts longer than this; 0 means unbounded
	MaxDepth int // JSON nesting ceiling; 0 means defaultMaxDepth
}

// Tree is the result of a successful parse
type Tree struct {
	Grammar Grammar
	Root    *Node
	Source  *Source

	// Content is the body as parsed by the body grammar, nil when the message has no body
	Content *Content
}

// ParseRequest parses a sent transcript with the request grammar
func ParseRequest(raw []byte, opts Options) (*Tree, error) {
	return parse(GrammarRequest, raw, opts)
}

// ParseResponse parses a received transcript with the response grammar
func ParseResponse(raw []byte, opts Options) (*Tree, error) {
	return parse(GrammarResponse, raw, opts)
}

type parser struct {
	grammar  Grammar
	src      *Source
	text     []byte
	pos      int
	maxDepth int
}

// headerField is a parsed header used for framing decisions
type headerField struct {
	name  string
	value string
}

func parse(g Grammar, raw []byte, opts Options) (*Tree, error) {
	rootKind := KindRequest
	if g == GrammarResponse {
		rootKind = KindResponse
	}
	if opts.MaxSize > 0 && len(raw) > opts.MaxSize {
		return nil, newParseError(g, rootKind, nil, opts.MaxSize, "transcript of %d bytes exceeds limit of %d bytes", len(raw), opts.MaxSize)
	}
	if len(raw) == 0 {
		return nil, newParseError(g, rootKind, nil, 0, "empty transcript")
	}

	src := NewSource(raw)
	p := &parser{
		grammar:  g,
		src:      src,
		text:     src.text,
		maxDepth: opts.MaxDepth,
	}
	if p.maxDepth <= 0 {
		p.maxDepth = defaultMaxDepth
	}

	root := &Node{Kind: rootKind, Start: 0, End: len(raw)}
	tree := &Tree{Grammar: g, Root: root, Source: src}

	status := 0
	if g == GrammarRequest {
		line, err := p.requestLine()
		if err != nil {
			return nil, err
		}
		root.add(line)
	} else {
		line, code, err := p.statusLine()
		if err != nil {
			return nil, err
		}
		root.add(line)
		status = code
	}

	fields, err := p.headers(root)
	if err != nil {
		return nil, err
	}
	if err := p.crlf(KindHeader); err != nil {
		return nil, err
	}

	content, err := p.body(root, fields, status)
	if err != nil {
		return nil, err
	}
	tree.Content = content

	logger.Debug("Parsed transcript",
		zap.String("component", "Grammar"),
		zap.String("grammar", string(g)),
		zap.Int("bytes", len(raw)),
		zap.Int("headers", len(fields)),
		zap.Bool("has_body", content != nil))

	return tree, nil
}

func (p *parser) fail(rule Kind, format string, args ...any) *ParseError {
	return newParseError(p.grammar, rule, p.text, p.pos, format, args...)
}

func (p *parser) eof() bool { return p.pos >= len(p.text) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.text[p.pos]
}

func (p *parser) atCRLF() bool {
	return p.pos+1 < len(p.text) && p.text[p.pos] == '\r' && p.text[p.pos+1] == '\n'
}

func (p *parser) crlf(rule Kind) error {
	if p.atCRLF() {
		p.pos += 2
		return nil
	}
	switch {
	case p.eof():
		return p.fail(rule, "unexpected end of input, expected CRLF")
	case p.peek() == '\n':
		return p.fail(rule, "bare LF line ending")
	default:
		return p.fail(rule, "expected CRLF, found %q", p.peek())
	}
}

func (p *parser) sp(rule Kind) error {
	if p.eof() || p.peek() != ' ' {
		return p.fail(rule, "expected single space")
	}
	p.pos++
	return nil
}

// token consumes 1*tchar
func (p *parser) token(kind Kind) (*Node, error) {
	start := p.pos
	for !p.eof() && isTChar(p.peek()) {
		p.pos++
	}
	if p.pos == start {
		return nil, p.fail(kind, "expected token character")
	}
	return &Node{Kind: kind, Start: start, End: p.pos}, nil
}

func (p *parser) requestLine() (*Node, error) {
	line := &Node{Kind: KindRequestLine, Start: p.pos}

	method, err := p.token(KindMethod)
	if err != nil {
		return nil, err
	}
	line.add(method)
	if err := p.sp(KindRequestLine); err != nil {
		return nil, err
	}

	start := p.pos
	for !p.eof() && p.peek() > 0x20 && p.peek() < 0x7f {
		p.pos++
	}
	if p.pos == start {
		return nil, p.fail(KindRequestTarget, "expected request target")
	}
	line.add(&Node{Kind: KindRequestTarget, Start: start, End: p.pos})
	if err := p.sp(KindRequestLine); err != nil {
		return nil, err
	}

	version, err := p.httpVersion()
	if err != nil {
		return nil, err
	}
	line.add(version)
	line.End = p.pos

	if err := p.crlf(KindRequestLine); err != nil {
		return nil, err
	}
	return line, nil
}

func (p *parser) statusLine() (*Node, int, error) {
	line := &Node{Kind: KindStatusLine, Start: p.pos}

	version, err := p.httpVersion()
	if err != nil {
		return nil, 0, err
	}
	line.add(version)
	if err := p.sp(KindStatusLine); err != nil {
		return nil, 0, err
	}

	start := p.pos
	for i := 0; i < 3; i++ {
		if p.eof() || !isDigit(p.peek()) {
			return nil, 0, p.fail(KindStatusCode, "expected three-digit status code")
		}
		p.pos++
	}
	code, _ := strconv.Atoi(string(p.text[start:p.pos]))
	line.add(&Node{Kind: KindStatusCode, Start: start, End: p.pos})

	if !p.eof() && p.peek() == ' ' {
		p.pos++
		start = p.pos
		for !p.eof() {
			c := p.peek()
			if !isFieldVChar(c) && c != ' ' && c != '\t' {
				break
			}
			p.pos++
		}
		line.add(&Node{Kind: KindReasonPhrase, Start: start, End: p.pos})
	}
	line.End = p.pos

	if err := p.crlf(KindStatusLine); err != nil {
		return nil, 0, err
	}
	return line, code, nil
}

// httpVersion consumes "HTTP/1." DIGIT
func (p *parser) httpVersion() (*Node, error) {
	start := p.pos
	const prefix = "HTTP/1."
	if len(p.text)-p.pos < len(prefix)+1 || string(p.text[p.pos:p.pos+len(prefix)]) != prefix {
		return nil, p.fail(KindHTTPVersion, "expected HTTP/1.x version")
	}
	p.pos += len(prefix)
	if !isDigit(p.peek()) {
		return nil, p.fail(KindHTTPVersion, "expected minor version digit")
	}
	p.pos++
	return &Node{Kind: KindHTTPVersion, Start: start, End: p.pos}, nil
}

// headers consumes *(header CRLF), stopping in front of the empty line
func (p *parser) headers(parent *Node) ([]headerField, error) {
	var fields []headerField
	for !p.atCRLF() {
		if p.eof() {
			return nil, p.fail(KindHeader, "unexpected end of input in header section")
		}
		if c := p.peek(); c == ' ' || c == '\t' {
			return nil, p.fail(KindHeader, "obsolete line folding is not accepted")
		}
		header, field, err := p.header()
		if err != nil {
			return nil, err
		}
		parent.add(header)
		fields = append(fields, field)
		if err := p.crlf(KindHeader); err != nil {
			return nil, err
		}
	}
	return fields, nil
}

// header consumes field-name ":" OWS field-value OWS
func (p *parser) header() (*Node, headerField, error) {
	header := &Node{Kind: KindHeader, Start: p.pos}

	name, err := p.token(KindHeaderName)
	if err != nil {
		return nil, headerField{}, err
	}
	header.add(name)

	if p.eof() || p.peek() != ':' {
		return nil, headerField{}, p.fail(KindHeader, "expected ':' after header name")
	}
	p.pos++
	p.ows()

	start := p.pos
	end := p.pos
	for !p.eof() && !p.atCRLF() {
		c := p.peek()
		switch {
		case isFieldVChar(c):
			p.pos++
			end = p.pos
		case c == ' ' || c == '\t':
			p.pos++
		default:
			return nil, headerField{}, p.fail(KindHeaderValue, "invalid byte %q in header value", c)
		}
	}
	header.add(&Node{Kind: KindHeaderValue, Start: start, End: end})
	header.End = p.pos

	field := headerField{
		name:  strings.ToLower(string(p.text[name.Start:name.End])),
		value: string(p.text[start:end]),
	}
	return header, field, nil
}

func (p *parser) ows() {
	for !p.eof() && (p.peek() == ' ' || p.peek() == '\t') {
		p.pos++
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// isTChar reports RFC 9110 token characters
func isTChar(c byte) bool {
	if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || isDigit(c) {
		return true
	}
	return strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0
}

// isFieldVChar reports VCHAR and obs-text
func isFieldVChar(c byte) bool {
	return (c > 0x20 && c < 0x7f) || c >= 0x80
}
