package grammar

import "fmt"

// Grammar identifies which message grammar is being applied
type Grammar string

const (
	GrammarRequest  Grammar = "request"
	GrammarResponse Grammar = "response"
)

// ParseError names the grammar rule that failed and where in the transcript
type ParseError struct {
	Grammar Grammar `json:"grammar"`
	Rule    Kind    `json:"rule"`
	Offset  int     `json:"offset"`
	Line    int     `json:"line"`
	Column  int     `json:"column"`
	Msg     string  `json:"message"`
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s grammar: rule %s at offset %d (line %d, column %d): %s",
		e.Grammar, e.Rule, e.Offset, e.Line, e.Column, e.Msg)
}

// newParseError computes the 1-based line and column of offset in text
func newParseError(g Grammar, rule Kind, text []byte, offset int, format string, args ...any) *ParseError {
	line, col := 1, 1
	for i := 0; i < offset && i < len(text); i++ {
		if text[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return &ParseError{
		Grammar: g,
		Rule:    rule,
		Offset:  offset,
		Line:    line,
		Column:  col,
		Msg:     fmt.Sprintf(format, args...),
	}
}
