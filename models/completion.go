package models

// CompletionKind is a coarse category for a completion proposal.
type CompletionKind uint8

const (
	CompletionOther CompletionKind = iota
	CompletionType
	CompletionFunction
	CompletionMacro
	CompletionVariable
	CompletionField
	CompletionKeyword
)

func (k CompletionKind) String() string {
	switch k {
	case CompletionType:
		return "type"
	case CompletionFunction:
		return "function"
	case CompletionMacro:
		return "macro"
	case CompletionVariable:
		return "variable"
	case CompletionField:
		return "field"
	case CompletionKeyword:
		return "keyword"
	default:
		return "other"
	}
}

type CompletionItem struct {
	Text string
	Kind CompletionKind
	// Detail carries the declaring line, trimmed, when known.
	Detail string
}

// Position is a zero-based line/column pair. Column counts bytes.
type Position struct {
	Line   int
	Column int
}

type Severity uint8

const (
	SeverityWarning Severity = iota + 1
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

type Diagnostic struct {
	File     FileIdentity
	Start    Position
	End      Position
	Severity Severity
	Message  string
}
