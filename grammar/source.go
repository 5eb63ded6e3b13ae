package grammar

import (
	"fmt"
	"unicode/utf8"

	"selective-disclosure/rangeset"
)

// substitute replaces every byte of an invalid UTF-8 sequence in the decoded text.
// It is a single byte so decoded offsets equal transcript offsets.
const substitute = '?'

// Source is an immutable transcript buffer together with its decoded text.
type Source struct {
	raw  []byte
	text []byte
}

// NewSource copies raw so later mutation by the caller cannot move node spans
func NewSource(raw []byte) *Source {
	buf := make([]byte, len(raw))
	copy(buf, raw)
	return &Source{raw: buf, text: Decode(buf)}
}

// Decode returns raw as text with one substitute byte per invalid UTF-8 byte.
// len(Decode(raw)) == len(raw) always holds.
func Decode(raw []byte) []byte {
	if utf8.Valid(raw) {
		return raw
	}
	out := make([]byte, len(raw))
	for i := 0; i < len(raw); {
		r, size := utf8.DecodeRune(raw[i:])
		if r == utf8.RuneError && size == 1 {
			out[i] = substitute
			i++
			continue
		}
		copy(out[i:i+size], raw[i:i+size])
		i += size
	}
	return out
}

// Len returns the transcript length
func (s *Source) Len() int { return len(s.raw) }

// Raw returns the transcript bytes. Callers must not modify them.
func (s *Source) Raw() []byte { return s.raw }

// Bytes returns the transcript bytes covered by a span
func (s *Source) Bytes(span rangeset.Span) []byte {
	return s.raw[span.Start:span.End]
}

// Text returns the transcript bytes under a node as a string
func (s *Source) Text(n *Node) string {
	return string(s.raw[n.Start:n.End])
}

// segment maps a run of content bytes onto the transcript
type segment struct {
	content int
	raw     int
	length  int
}

// Content is a message body as seen by the body grammar. For identity framing it
// shares the transcript's coordinates; for chunked framing its nodes are positioned
// in de-chunked coordinates and Map translates them back onto the transcript.
type Content struct {
	Root *Node

	raw      []byte
	text     []byte
	start    int
	end      int
	segments []segment
}

// Chunked reports whether node offsets are in de-chunked coordinates
func (c *Content) Chunked() bool { return c.segments != nil }

// IsJSON reports whether the body parsed as JSON
func (c *Content) IsJSON() bool { return c.Root != nil && c.Root.Kind.IsJSONValue() }

// Text returns the body bytes under a content node
func (c *Content) Text(n *Node) string {
	return string(c.raw[n.Start:n.End])
}

// Slice returns the body bytes under a content span
func (c *Content) Slice(span rangeset.Span) string {
	return string(c.raw[span.Start:span.End])
}

// Bytes returns the body bytes the content was parsed from, in content coordinates
func (c *Content) Bytes() []byte {
	return c.raw[c.start:c.end]
}

// Map translates a content range into transcript spans. Identity bodies yield one
// span; a chunked range yields one span per chunk-data piece it touches.
func (c *Content) Map(start, end int) ([]rangeset.Span, error) {
	if start > end {
		return nil, fmt.Errorf("invalid content range [%d,%d)", start, end)
	}
	if c.segments == nil {
		return []rangeset.Span{{Start: start, End: end}}, nil
	}

	var out []rangeset.Span
	covered := start
	for _, seg := range c.segments {
		segEnd := seg.content + seg.length
		if start == end && start >= seg.content && start <= segEnd {
			off := seg.raw + start - seg.content
			return []rangeset.Span{{Start: off, End: off}}, nil
		}
		lo := max(start, seg.content)
		hi := min(end, segEnd)
		if lo >= hi {
			continue
		}
		out = append(out, rangeset.Span{Start: seg.raw + lo - seg.content, End: seg.raw + hi - seg.content})
		covered += hi - lo
	}
	if covered != end {
		return nil, fmt.Errorf("content range [%d,%d) is not covered by chunk data", start, end)
	}
	return out, nil
}

// offset maps a single content offset onto the transcript, for error positions
func (c *Content) offset(pos int) int {
	if c.segments == nil {
		return pos
	}
	for _, seg := range c.segments {
		if pos >= seg.content && pos < seg.content+seg.length {
			return seg.raw + pos - seg.content
		}
	}
	if n := len(c.segments); n > 0 {
		last := c.segments[n-1]
		return last.raw + last.length
	}
	return 0
}
