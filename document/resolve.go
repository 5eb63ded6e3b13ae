package document

import (
	"fmt"
	"strconv"
	"strings"

	jp "github.com/reclaimprotocol/jsonpathplus-go"
	"go.uber.org/zap"

	"selective-disclosure/grammar"
	"selective-disclosure/rangeset"
)

// Resolve parses the keypath lists and resolves them against doc
func Resolve(doc Document, include, exclude []string) (rangeset.Set, error) {
	inc, err := ParseKeypaths(include)
	if err != nil {
		return rangeset.Set{}, err
	}
	exc, err := ParseKeypaths(exclude)
	if err != nil {
		return rangeset.Set{}, err
	}
	return doc.ResolveKeypaths(inc, exc)
}

// ResolveKeypaths resolves against the synthetic host field, the headers and the body
func (r *Request) ResolveKeypaths(include, exclude []Keypath) (rangeset.Set, error) {
	return r.resolve(include, exclude, func(seg string) (rangeset.Span, bool) {
		if r.host == nil || !strings.EqualFold(seg, "host") {
			return rangeset.Span{}, false
		}
		return r.host.ValueSpan, true
	})
}

// ResolveKeypaths resolves against the headers and the body
func (r *Response) ResolveKeypaths(include, exclude []Keypath) (rangeset.Set, error) {
	return r.resolve(include, exclude, nil)
}

type syntheticField func(seg string) (rangeset.Span, bool)

func (m *message) resolve(include, exclude []Keypath, synthetic syntheticField) (rangeset.Set, error) {
	var spans []rangeset.Span
	for _, list := range [][]Keypath{include, exclude} {
		for _, kp := range list {
			found, err := m.resolveOne(kp, synthetic)
			if err != nil {
				return rangeset.Set{}, err
			}
			spans = append(spans, found...)
		}
	}

	set, err := rangeset.Merge(spans, m.Len())
	if err != nil {
		return rangeset.Set{}, fmt.Errorf("resolved spans violate transcript bounds: %w", err)
	}
	logger.Debug("Resolved keypaths",
		zap.Int("include", len(include)),
		zap.Int("exclude", len(exclude)),
		zap.Int("matched_spans", len(spans)),
		zap.Int("covered_bytes", set.Covered()))
	return set, nil
}

// resolveOne returns the transcript spans of one keypath; an unmatched keypath yields none
func (m *message) resolveOne(kp Keypath, synthetic syntheticField) ([]rangeset.Span, error) {
	if kp.IsJSONPath() {
		return m.resolveJSONPath(kp)
	}
	segs := kp.segments
	if len(segs) == 0 {
		return nil, &KeypathError{Keypath: kp.raw, Msg: "empty keypath"}
	}

	if len(segs) == 1 {
		if synthetic != nil {
			if span, ok := synthetic(segs[0]); ok {
				return []rangeset.Span{span}, nil
			}
		}
		if headers := m.HeaderValues(segs[0]); len(headers) > 0 {
			spans := make([]rangeset.Span, 0, len(headers))
			for _, h := range headers {
				spans = append(spans, h.ValueSpan)
			}
			return spans, nil
		}
	}

	if m.body == nil || m.body.JSON == nil {
		return nil, nil
	}
	v, ok := walk(m.body.JSON, segs)
	if !ok {
		return nil, nil
	}
	return m.body.Map(v.DisclosedSpan())
}

func (m *message) resolveJSONPath(kp Keypath) ([]rangeset.Span, error) {
	if m.body == nil || m.body.JSON == nil {
		return nil, nil
	}
	results, err := jp.Query(kp.raw, string(m.body.Bytes()))
	if err != nil {
		return nil, &KeypathError{Keypath: kp.raw, Msg: fmt.Sprintf("JSONPath query failed: %v", err)}
	}

	var spans []rangeset.Span
	for _, r := range results {
		v, ok := walk(m.body.JSON, jsonPathToSegments(r.Path))
		if !ok {
			return nil, fmt.Errorf("JSONPath result %q has no counterpart in the body tree", r.Path)
		}
		mapped, err := m.body.Map(v.DisclosedSpan())
		if err != nil {
			return nil, err
		}
		spans = append(spans, mapped...)
	}
	return spans, nil
}

// walk descends one segment at a time: object members by exact name, array
// elements by decimal index
func walk(v *Value, segs []string) (*Value, bool) {
	for _, seg := range segs {
		var ok bool
		switch v.Kind {
		case grammar.KindJSONObject:
			v, ok = v.Field(seg)
		case grammar.KindJSONArray:
			v, ok = v.Index(arrayIndex(seg))
		}
		if !ok {
			return nil, false
		}
	}
	return v, true
}

// arrayIndex parses an unsigned decimal segment, returning -1 for anything else
func arrayIndex(seg string) int {
	if seg == "" {
		return -1
	}
	for i := 0; i < len(seg); i++ {
		if seg[i] < '0' || seg[i] > '9' {
			return -1
		}
	}
	n, err := strconv.Atoi(seg)
	if err != nil {
		return -1
	}
	return n
}
