package grammar

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

const scenarioRequest = "GET /a HTTP/1.1\r\nHost: example.com\r\nConnection: close\r\n\r\n"

func jsonResponse(body string) []byte {
	return []byte(fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Type: application/json\r\nContent-Length: %d\r\n\r\n%s", len(body), body))
}

// checkTree verifies containment and sibling ordering for every node
func checkTree(t *testing.T, n *Node) {
	t.Helper()
	prevEnd := n.Start
	for _, c := range n.Children {
		if c.Start < n.Start || c.End > n.End || c.Start > c.End {
			t.Fatalf("%s %v escapes parent %s %v", c.Kind, c.Span(), n.Kind, n.Span())
		}
		if c.Start < prevEnd {
			t.Fatalf("%s %v overlaps previous sibling ending at %d", c.Kind, c.Span(), prevEnd)
		}
		prevEnd = c.End
		checkTree(t, c)
	}
}

func TestParseRequestLineAndHeaders(t *testing.T) {
	tree, err := ParseRequest([]byte(scenarioRequest), Options{})
	if err != nil {
		t.Fatalf("ParseRequest failed: %v", err)
	}
	checkTree(t, tree.Root)

	line := tree.Root.Child(KindRequestLine)
	if line == nil {
		t.Fatal("missing request line")
	}
	expect := map[Kind]string{
		KindMethod:        "GET",
		KindRequestTarget: "/a",
		KindHTTPVersion:   "HTTP/1.1",
	}
	for kind, want := range expect {
		if got := tree.Source.Text(line.Child(kind)); got != want {
			t.Errorf("%s: expected %q, got %q", kind, want, got)
		}
	}

	headers := tree.Root.ChildrenOf(KindHeader)
	if len(headers) != 2 {
		t.Fatalf("expected 2 headers, got %d", len(headers))
	}
	if got := tree.Source.Text(headers[0].Child(KindHeaderValue)); got != "example.com" {
		t.Errorf("expected host value %q, got %q", "example.com", got)
	}
	if got := tree.Source.Text(headers[1].Child(KindHeaderName)); got != "Connection" {
		t.Errorf("expected header name %q, got %q", "Connection", got)
	}
	if tree.Content != nil {
		t.Error("request without body should have no content")
	}
}

func TestHeaderValueExcludesWhitespace(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nX-Pad: \t  padded value \t\r\nX-Empty:\r\nX-Dup: 1\r\nx-dup: 2\r\n\r\n"
	tree, err := ParseRequest([]byte(raw), Options{})
	if err != nil {
		t.Fatalf("ParseRequest failed: %v", err)
	}
	checkTree(t, tree.Root)

	headers := tree.Root.ChildrenOf(KindHeader)
	if len(headers) != 4 {
		t.Fatalf("duplicate headers must be separate nodes, got %d headers", len(headers))
	}
	if got := tree.Source.Text(headers[0].Child(KindHeaderValue)); got != "padded value" {
		t.Errorf("expected %q, got %q", "padded value", got)
	}
	if v := headers[1].Child(KindHeaderValue); v.Start != v.End {
		t.Errorf("empty header value should have an empty span, got %v", v.Span())
	}
}

func TestLeafOffsetFidelity(t *testing.T) {
	body := `{"state":"done","amount":"10.00","n":-1.5e3,"ok":true,"none":null,"list":[1,"two",{}],"recipient":{"account":"123"}}`
	raw := jsonResponse(body)
	tree, err := ParseResponse(raw, Options{})
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	checkTree(t, tree.Root)

	want := []string{
		"HTTP/1.1", "200", "OK",
		"Content-Type", "application/json",
		"Content-Length", fmt.Sprint(len(body)),
		`"state"`, "done", `"amount"`, "10.00", `"n"`, "-1.5e3", `"ok"`, "true",
		`"none"`, "null", `"list"`, "1", "two", "{}", `"recipient"`, `"account"`, "123",
	}
	leaves := tree.Root.Leaves()
	if len(leaves) != len(want) {
		t.Fatalf("expected %d leaves, got %d", len(want), len(leaves))
	}
	for i, leaf := range leaves {
		if got := string(raw[leaf.Start:leaf.End]); got != want[i] {
			t.Errorf("leaf %d (%s): expected %q, got %q", i, leaf.Kind, want[i], got)
		}
	}
}

func TestParseIsDeterministic(t *testing.T) {
	raw := jsonResponse(`{"a":{"b":[1,2,{"c":"d"}]},"e":"f"}`)
	first, err := ParseResponse(raw, Options{})
	if err != nil {
		t.Fatal(err)
	}
	second, err := ParseResponse(raw, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first.Root, second.Root) {
		t.Error("parsing identical bytes produced different trees")
	}
}

func TestMalformedInputRejected(t *testing.T) {
	tests := []struct {
		name    string
		grammar Grammar
		raw     string
		rule    Kind
	}{
		{"dangling json value", GrammarResponse, string(jsonResponse(`{"state": }`)), KindJSONValue},
		{"trailing comma", GrammarResponse, string(jsonResponse(`{"a":1,}`)), KindJSONKey},
		{"duplicate key", GrammarResponse, string(jsonResponse(`{"a":1,"a":2}`)), KindJSONKey},
		{"bad escape", GrammarResponse, string(jsonResponse(`{"a":"\x"}`)), KindJSONString},
		{"leading zero", GrammarResponse, string(jsonResponse(`{"a":01}`)), KindJSONObject},
		{"garbage after json", GrammarResponse, string(jsonResponse(`{"a":1} x`)), KindBody},
		{"unterminated object", GrammarResponse, string(jsonResponse(`{"a":1`)), KindJSONObject},
		{"bare LF", GrammarRequest, "GET / HTTP/1.1\nHost: a\r\n\r\n", KindRequestLine},
		{"missing target", GrammarRequest, "GET  HTTP/1.1\r\n\r\n", KindRequestTarget},
		{"http2 version", GrammarRequest, "GET / HTTP/2.0\r\n\r\n", KindHTTPVersion},
		{"space before colon", GrammarRequest, "GET / HTTP/1.1\r\nHost : a\r\n\r\n", KindHeader},
		{"obs fold", GrammarRequest, "GET / HTTP/1.1\r\nA: b\r\n c\r\n\r\n", KindHeader},
		{"control byte in value", GrammarRequest, "GET / HTTP/1.1\r\nA: b\x01c\r\n\r\n", KindHeaderValue},
		{"unterminated headers", GrammarRequest, "GET / HTTP/1.1\r\nA: b\r\n", KindHeader},
		{"request body without length", GrammarRequest, "POST / HTTP/1.1\r\nA: b\r\n\r\n{}", KindBody},
		{"short status code", GrammarResponse, "HTTP/1.1 20 OK\r\n\r\n", KindStatusCode},
		{"truncated content length", GrammarResponse, "HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\n{}", KindBody},
		{"extra bytes after content length", GrammarResponse, "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\n{}{}", KindBody},
		{"conflicting content length", GrammarResponse, "HTTP/1.1 200 OK\r\nContent-Length: 2\r\nContent-Length: 3\r\n\r\n{}", KindBody},
		{"length and chunked", GrammarResponse, "HTTP/1.1 200 OK\r\nContent-Length: 2\r\nTransfer-Encoding: chunked\r\n\r\n{}", KindBody},
		{"bad chunk size", GrammarResponse, "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\nzz\r\n", KindChunkSize},
		{"truncated chunk", GrammarResponse, "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n10\r\n{}\r\n", KindChunkData},
		{"body on 204", GrammarResponse, "HTTP/1.1 204 No Content\r\n\r\n{}", KindBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := parse(tt.grammar, []byte(tt.raw), Options{})
			if tree != nil {
				t.Fatal("no tree may be returned for malformed input")
			}
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected *ParseError, got %v", err)
			}
			if perr.Rule != tt.rule {
				t.Errorf("expected rule %s, got %s (%v)", tt.rule, perr.Rule, perr)
			}
			if perr.Grammar != tt.grammar {
				t.Errorf("expected grammar %s, got %s", tt.grammar, perr.Grammar)
			}
			if perr.Offset < 0 || perr.Offset > len(tt.raw) {
				t.Errorf("error offset %d outside input", perr.Offset)
			}
		})
	}
}

func TestDanglingValuePosition(t *testing.T) {
	body := `{"state": }`
	raw := jsonResponse(body)
	_, err := ParseResponse(raw, Options{})
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	bodyStart := len(raw) - len(body)
	if want := bodyStart + strings.Index(body, "}"); perr.Offset != want {
		t.Errorf("expected error at offset %d, got %d", want, perr.Offset)
	}
	if perr.Line != 5 {
		t.Errorf("expected error on line 5, got %d", perr.Line)
	}
}

func TestChunkedBodyMapsToTranscript(t *testing.T) {
	raw := []byte("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
		"12\r\n{\"state\":\"done\",\"a\r\n" +
		"8;ext=1\r\nmt\":\"x\"}\r\n" +
		"0\r\nX-Trailer: yes\r\n\r\n")
	tree, err := ParseResponse(raw, Options{})
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	checkTree(t, tree.Root)

	content := tree.Content
	if content == nil || !content.Chunked() || !content.IsJSON() {
		t.Fatalf("expected chunked JSON content, got %+v", content)
	}
	if got := string(content.Bytes()); got != `{"state":"done","amt":"x"}` {
		t.Fatalf("unexpected de-chunked content %q", got)
	}

	body := tree.Root.Child(KindBody)
	if chunks := body.ChildrenOf(KindChunk); len(chunks) != 3 {
		t.Fatalf("expected 3 chunks including the last chunk, got %d", len(chunks))
	}
	if body.Child(KindHeader) == nil {
		t.Error("expected trailer header under the body")
	}

	state := content.Root.Children[0].Children[1].Child(KindJSONChars)
	spans, err := content.Map(state.Start, state.End)
	if err != nil {
		t.Fatal(err)
	}
	if len(spans) != 1 || string(raw[spans[0].Start:spans[0].End]) != "done" {
		t.Errorf("expected one span over %q, got %v", "done", spans)
	}

	// the key "amt" straddles the first chunk boundary
	key := content.Root.Children[1].Children[0]
	spans, err = content.Map(key.Start, key.End)
	if err != nil {
		t.Fatal(err)
	}
	if len(spans) != 2 {
		t.Fatalf("expected key split across two chunks, got %v", spans)
	}
	var joined string
	for _, sp := range spans {
		joined += string(raw[sp.Start:sp.End])
	}
	if joined != content.Text(key) {
		t.Errorf("mapped spans %q do not reassemble the key %q", joined, content.Text(key))
	}
}

func TestOpaqueBody(t *testing.T) {
	raw := []byte("HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\n\r\nhello world")
	tree, err := ParseResponse(raw, Options{})
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if tree.Content == nil || tree.Content.IsJSON() {
		t.Fatal("expected opaque content")
	}
	if tree.Content.Root.Kind != KindBodyText || tree.Content.Text(tree.Content.Root) != "hello world" {
		t.Errorf("unexpected body node %s %q", tree.Content.Root.Kind, tree.Content.Text(tree.Content.Root))
	}
}

func TestInvalidUTF8KeepsOffsets(t *testing.T) {
	raw := []byte("GET / HTTP/1.1\r\nX-Bin: a\xffb\xc3\r\nHost: h\r\n\r\n")
	if got := Decode(raw); len(got) != len(raw) {
		t.Fatalf("decoded length %d differs from raw length %d", len(got), len(raw))
	}
	tree, err := ParseRequest(raw, Options{})
	if err != nil {
		t.Fatalf("ParseRequest failed: %v", err)
	}
	headers := tree.Root.ChildrenOf(KindHeader)
	if got := tree.Source.Text(headers[0].Child(KindHeaderValue)); got != "a\xffb\xc3" {
		t.Errorf("expected raw bytes in value, got %q", got)
	}
	if got := tree.Source.Text(headers[1].Child(KindHeaderValue)); got != "h" {
		t.Errorf("expected %q, got %q", "h", got)
	}
}

func TestLimits(t *testing.T) {
	if _, err := ParseRequest([]byte(scenarioRequest), Options{MaxSize: 10}); err == nil {
		t.Error("expected size limit error")
	}
	if _, err := ParseRequest(nil, Options{}); err == nil {
		t.Error("expected error for empty transcript")
	}
	deep := strings.Repeat("[", 20) + strings.Repeat("]", 20)
	if _, err := ParseResponse(jsonResponse(deep), Options{MaxDepth: 10}); err == nil {
		t.Error("expected depth limit error")
	}
	if _, err := ParseResponse(jsonResponse(deep), Options{MaxDepth: 20}); err != nil {
		t.Errorf("depth 20 should be accepted: %v", err)
	}
}
