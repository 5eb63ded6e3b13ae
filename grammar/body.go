package grammar

import (
	"strconv"
	"strings"
)

// body applies message framing to the bytes after the header section and
// parses the resulting content.
func (p *parser) body(root *Node, fields []headerField, status int) (*Content, error) {
	var (
		transferCodings []string
		contentLengths  []string
	)
	for _, f := range fields {
		switch f.name {
		case "transfer-encoding":
			for _, coding := range strings.Split(f.value, ",") {
				coding = strings.ToLower(strings.Trim(coding, " \t"))
				if coding != "" {
					transferCodings = append(transferCodings, coding)
				}
			}
		case "content-length":
			contentLengths = append(contentLengths, f.value)
		}
	}

	bodyStart := p.pos
	remaining := len(p.text) - bodyStart

	if p.grammar == GrammarResponse && (status/100 == 1 || status == 204 || status == 304) {
		if remaining > 0 {
			return nil, p.fail(KindBody, "status %d does not allow a body but %d bytes follow", status, remaining)
		}
		return nil, nil
	}

	if len(transferCodings) > 0 {
		if len(contentLengths) > 0 {
			return nil, p.fail(KindBody, "both Transfer-Encoding and Content-Length are present")
		}
		if transferCodings[len(transferCodings)-1] == "chunked" {
			return p.chunked(root)
		}
		if p.grammar == GrammarRequest {
			return nil, p.fail(KindBody, "request transfer coding %q is not chunked", transferCodings[len(transferCodings)-1])
		}
		// response runs until the connection closes
		return p.identity(root, len(p.text))
	}

	if len(contentLengths) > 0 {
		length, err := p.contentLength(contentLengths)
		if err != nil {
			return nil, err
		}
		if remaining < length {
			return nil, p.fail(KindBody, "body is truncated: Content-Length is %d but %d bytes follow", length, remaining)
		}
		if remaining > length {
			p.pos = bodyStart + length
			return nil, p.fail(KindBody, "%d unexpected bytes after Content-Length body", remaining-length)
		}
		return p.identity(root, len(p.text))
	}

	if p.grammar == GrammarRequest && remaining > 0 {
		return nil, p.fail(KindBody, "request has %d body bytes but no Content-Length or Transfer-Encoding", remaining)
	}
	return p.identity(root, len(p.text))
}

// contentLength requires every Content-Length value to be the same decimal number
func (p *parser) contentLength(values []string) (int, error) {
	length := -1
	for _, v := range values {
		if v == "" {
			return 0, p.fail(KindBody, "empty Content-Length")
		}
		for i := 0; i < len(v); i++ {
			if !isDigit(v[i]) {
				return 0, p.fail(KindBody, "invalid Content-Length %q", v)
			}
		}
		n, err := strconv.Atoi(v)
		if err != nil || n > len(p.text) {
			return 0, p.fail(KindBody, "Content-Length %q exceeds transcript length", v)
		}
		if length >= 0 && n != length {
			return 0, p.fail(KindBody, "conflicting Content-Length values %d and %d", length, n)
		}
		length = n
	}
	return length, nil
}

// identity treats [p.pos, end) as the body with no transfer coding
func (p *parser) identity(root *Node, end int) (*Content, error) {
	start := p.pos
	if start == end {
		return nil, nil
	}
	body := root.add(&Node{Kind: KindBody, Start: start, End: end})

	content := &Content{
		raw:   p.src.raw,
		text:  p.text,
		start: start,
		end:   end,
	}
	top, err := p.content(content)
	if err != nil {
		return nil, err
	}
	body.add(top)
	content.Root = top
	p.pos = end
	return content, nil
}

// chunked consumes *chunk last-chunk trailer-section CRLF
func (p *parser) chunked(root *Node) (*Content, error) {
	body := root.add(&Node{Kind: KindBody, Start: p.pos, End: len(p.text)})

	var (
		segments []segment
		raw      []byte
		text     []byte
	)
	for {
		chunk := &Node{Kind: KindChunk, Start: p.pos}

		sizeStart := p.pos
		size := 0
		for !p.eof() && isHexDigit(p.peek()) {
			size = size*16 + unhex(p.peek())
			if size > len(p.text) {
				return nil, p.fail(KindChunkSize, "chunk size exceeds transcript length")
			}
			p.pos++
		}
		if p.pos == sizeStart {
			return nil, p.fail(KindChunkSize, "expected hexadecimal chunk size")
		}
		chunk.add(&Node{Kind: KindChunkSize, Start: sizeStart, End: p.pos})

		if err := p.chunkExtensions(); err != nil {
			return nil, err
		}
		chunk.End = p.pos
		if err := p.crlf(KindChunk); err != nil {
			return nil, err
		}

		if size == 0 {
			body.add(chunk)
			break
		}

		if len(p.text)-p.pos < size {
			return nil, p.fail(KindChunkData, "chunk data is truncated: expected %d bytes, %d remain", size, len(p.text)-p.pos)
		}
		chunk.add(&Node{Kind: KindChunkData, Start: p.pos, End: p.pos + size})
		segments = append(segments, segment{content: len(raw), raw: p.pos, length: size})
		raw = append(raw, p.src.raw[p.pos:p.pos+size]...)
		text = append(text, p.text[p.pos:p.pos+size]...)
		p.pos += size
		chunk.End = p.pos
		body.add(chunk)

		if err := p.crlf(KindChunkData); err != nil {
			return nil, err
		}
	}

	if _, err := p.headers(body); err != nil {
		return nil, err
	}
	if err := p.crlf(KindBody); err != nil {
		return nil, err
	}
	if !p.eof() {
		return nil, p.fail(KindBody, "%d unexpected bytes after chunked body", len(p.text)-p.pos)
	}

	if len(raw) == 0 {
		return nil, nil
	}

	content := &Content{
		raw:      raw,
		text:     text,
		start:    0,
		end:      len(raw),
		segments: segments,
	}
	top, err := p.content(content)
	if err != nil {
		return nil, err
	}
	content.Root = top
	return content, nil
}

// chunkExtensions consumes *( BWS ";" chunk-ext ) up to the CRLF
func (p *parser) chunkExtensions() error {
	p.ows()
	if p.eof() || p.peek() != ';' {
		return nil
	}
	for !p.eof() && !p.atCRLF() {
		c := p.peek()
		if !isFieldVChar(c) && c != ' ' && c != '\t' {
			return p.fail(KindChunk, "invalid byte %q in chunk extension", c)
		}
		p.pos++
	}
	return nil
}

// content parses the body bytes with the JSON grammar when they are JSON-shaped,
// otherwise wraps them in a single opaque node
func (p *parser) content(c *Content) (*Node, error) {
	first := c.start
	for first < c.end && isJSONSpace(c.text[first]) {
		first++
	}
	if first == c.end || (c.text[first] != '{' && c.text[first] != '[') {
		return &Node{Kind: KindBodyText, Start: c.start, End: c.end}, nil
	}

	jp := &jsonParser{
		grammar:  p.grammar,
		content:  c,
		text:     c.text,
		pos:      first,
		end:      c.end,
		maxDepth: p.maxDepth,
		fullText: p.text,
	}
	return jp.document()
}

func unhex(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return 0
}
