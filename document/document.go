// Package document turns positioned syntax trees into typed HTTP requests and
// responses and resolves keypaths against them into transcript byte ranges.
package document

import (
	"fmt"
	"strconv"
	"strings"

	"selective-disclosure/grammar"
	"selective-disclosure/rangeset"
)

// Header is one header line. Spans are transcript offsets.
type Header struct {
	Name      string
	Value     string
	NameSpan  rangeset.Span
	ValueSpan rangeset.Span
}

// Document is the resolution capability shared by requests and responses
type Document interface {
	// ResolveKeypaths returns the canonical union of the value spans matched by
	// include and exclude; the two lists are resolved independently.
	ResolveKeypaths(include, exclude []Keypath) (rangeset.Set, error)

	// Len is the transcript length, the upper bound of every span
	Len() int
}

// message holds what requests and responses have in common
type message struct {
	source  *grammar.Source
	headers []Header
	body    *Body
}

func newMessage(tree *grammar.Tree) (message, error) {
	m := message{source: tree.Source}
	for _, h := range tree.Root.ChildrenOf(grammar.KindHeader) {
		name := h.Child(grammar.KindHeaderName)
		value := h.Child(grammar.KindHeaderValue)
		if name == nil || value == nil || len(h.Children) != 2 {
			return message{}, shapeError(h, "header must hold a name and a value")
		}
		m.headers = append(m.headers, Header{
			Name:      tree.Source.Text(name),
			Value:     tree.Source.Text(value),
			NameSpan:  name.Span(),
			ValueSpan: value.Span(),
		})
	}
	body, err := newBody(tree.Content)
	if err != nil {
		return message{}, err
	}
	m.body = body
	return m, nil
}

// Headers returns the header lines in transcript order
func (m *message) Headers() []Header {
	return append([]Header(nil), m.headers...)
}

// HeaderValues returns the value of every header with the given name, compared case-insensitively
func (m *message) HeaderValues(name string) []Header {
	var out []Header
	for _, h := range m.headers {
		if strings.EqualFold(h.Name, name) {
			out = append(out, h)
		}
	}
	return out
}

// Body returns the message body, nil when there is none
func (m *message) Body() *Body { return m.body }

// Len returns the transcript length
func (m *message) Len() int { return m.source.Len() }

// Request is a parsed sent transcript
type Request struct {
	message
	Method  string
	Target  string
	Version string

	host *Header
}

// NewRequest builds a Request from a request tree
func NewRequest(tree *grammar.Tree) (*Request, error) {
	if tree == nil || tree.Grammar != grammar.GrammarRequest {
		return nil, fmt.Errorf("request document needs a request tree")
	}
	line := tree.Root.Child(grammar.KindRequestLine)
	if line == nil || len(line.Children) != 3 {
		return nil, shapeError(tree.Root, "request must start with a request line of three parts")
	}
	m, err := newMessage(tree)
	if err != nil {
		return nil, err
	}
	r := &Request{
		message: m,
		Method:  tree.Source.Text(line.Children[0]),
		Target:  tree.Source.Text(line.Children[1]),
		Version: tree.Source.Text(line.Children[2]),
	}

	hosts := r.HeaderValues("host")
	if len(hosts) > 1 {
		return nil, fmt.Errorf("request carries %d Host headers, the authority is ambiguous", len(hosts))
	}
	if len(hosts) == 1 {
		r.host = &hosts[0]
	}
	return r, nil
}

// Host returns the synthetic host field sourced from the Host header
func (r *Request) Host() (Header, bool) {
	if r.host == nil {
		return Header{}, false
	}
	return *r.host, true
}

// Response is a parsed received transcript
type Response struct {
	message
	Version    string
	StatusCode int
	Reason     string
}

// NewResponse builds a Response from a response tree
func NewResponse(tree *grammar.Tree) (*Response, error) {
	if tree == nil || tree.Grammar != grammar.GrammarResponse {
		return nil, fmt.Errorf("response document needs a response tree")
	}
	line := tree.Root.Child(grammar.KindStatusLine)
	if line == nil {
		return nil, shapeError(tree.Root, "response must start with a status line")
	}
	version := line.Child(grammar.KindHTTPVersion)
	status := line.Child(grammar.KindStatusCode)
	if version == nil || status == nil {
		return nil, shapeError(line, "status line must hold a version and a status code")
	}
	code, err := strconv.Atoi(tree.Source.Text(status))
	if err != nil {
		return nil, shapeError(status, "status code is not a number")
	}

	m, err := newMessage(tree)
	if err != nil {
		return nil, err
	}
	r := &Response{
		message:    m,
		Version:    tree.Source.Text(version),
		StatusCode: code,
	}
	if reason := line.Child(grammar.KindReasonPhrase); reason != nil {
		r.Reason = tree.Source.Text(reason)
	}
	return r, nil
}

// ParseRequest parses and builds a request document in one step
func ParseRequest(raw []byte, opts grammar.Options) (*Request, error) {
	tree, err := grammar.ParseRequest(raw, opts)
	if err != nil {
		return nil, err
	}
	return NewRequest(tree)
}

// ParseResponse parses and builds a response document in one step
func ParseResponse(raw []byte, opts grammar.Options) (*Response, error) {
	tree, err := grammar.ParseResponse(raw, opts)
	if err != nil {
		return nil, err
	}
	return NewResponse(tree)
}
