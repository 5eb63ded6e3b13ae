package grammar

import "selective-disclosure/rangeset"

// Kind tags a syntax node with the grammar rule that produced it
type Kind int

const (
	KindRequest Kind = iota
	KindResponse
	KindRequestLine
	KindMethod
	KindRequestTarget
	KindHTTPVersion
	KindStatusLine
	KindStatusCode
	KindReasonPhrase
	KindHeader
	KindHeaderName
	KindHeaderValue
	KindBody
	KindChunk
	KindChunkSize
	KindChunkData
	KindBodyText
	KindJSONObject
	KindJSONArray
	KindJSONField
	KindJSONKey
	KindJSONString
	KindJSONChars
	KindJSONNumber
	KindJSONBool
	KindJSONNull
	KindJSONValue // rule name only, never a node
)

var kindNames = map[Kind]string{
	KindRequest:       "request",
	KindResponse:      "response",
	KindRequestLine:   "request-line",
	KindMethod:        "method",
	KindRequestTarget: "request-target",
	KindHTTPVersion:   "http-version",
	KindStatusLine:    "status-line",
	KindStatusCode:    "status-code",
	KindReasonPhrase:  "reason-phrase",
	KindHeader:        "header",
	KindHeaderName:    "header-name",
	KindHeaderValue:   "header-value",
	KindBody:          "body",
	KindChunk:         "chunk",
	KindChunkSize:     "chunk-size",
	KindChunkData:     "chunk-data",
	KindBodyText:      "body-text",
	KindJSONObject:    "json-object",
	KindJSONArray:     "json-array",
	KindJSONField:     "json-field",
	KindJSONKey:       "json-key",
	KindJSONString:    "json-string",
	KindJSONChars:     "json-chars",
	KindJSONNumber:    "json-number",
	KindJSONBool:      "json-bool",
	KindJSONNull:      "json-null",
	KindJSONValue:     "json-value",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsJSONValue reports whether nodes of this kind are JSON values
func (k Kind) IsJSONValue() bool {
	switch k {
	case KindJSONObject, KindJSONArray, KindJSONString, KindJSONNumber, KindJSONBool, KindJSONNull:
		return true
	}
	return false
}

// Node is a positioned syntax tree node. Start and End form a half-open byte
// span; every child span lies inside its parent's span and sibling spans are
// disjoint and ordered by Start.
type Node struct {
	Kind     Kind
	Start    int
	End      int
	Children []*Node

	// Value holds the decoded object key for KindJSONKey nodes
	Value string
}

// Span returns the node's byte range
func (n *Node) Span() rangeset.Span {
	return rangeset.Span{Start: n.Start, End: n.End}
}

// IsLeaf reports whether the node has no children
func (n *Node) IsLeaf() bool { return len(n.Children) == 0 }

// Child returns the first direct child of the given kind, or nil
func (n *Node) Child(kind Kind) *Node {
	for _, c := range n.Children {
		if c.Kind == kind {
			return c
		}
	}
	return nil
}

// ChildrenOf returns all direct children of the given kind
func (n *Node) ChildrenOf(kind Kind) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// Walk visits n and its descendants depth-first in document order.
// Returning false from fn skips the node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Leaves returns the leaf nodes under n in document order
func (n *Node) Leaves() []*Node {
	var out []*Node
	n.Walk(func(c *Node) bool {
		if c.IsLeaf() {
			out = append(out, c)
		}
		return true
	})
	return out
}

func (n *Node) add(c *Node) *Node {
	n.Children = append(n.Children, c)
	return c
}
