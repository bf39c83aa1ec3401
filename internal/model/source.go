package model

import "fmt"

// Path represents a file system path.
type Path string

// Position is a point in a source file. Line and Column are 1-based and Column
// counts bytes, matching go/token.Position.
type Position struct {
	Line   int `yaml:"line" json:"line"`
	Column int `yaml:"column" json:"column"`
}

// Before reports whether p comes strictly before other.
func (p Position) Before(other Position) bool {
	if p.Line != other.Line {
		return p.Line < other.Line
	}

	return p.Column < other.Column
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Location is a half-open range [Start, End) in a source file.
type Location struct {
	Start Position `yaml:"start" json:"start"`
	End   Position `yaml:"end" json:"end"`
}

// Valid reports whether the location is well formed.
func (l Location) Valid() bool {
	if l.Start.Line < 1 || l.Start.Column < 1 || l.End.Line < 1 || l.End.Column < 1 {
		return false
	}

	return !l.End.Before(l.Start)
}

func (l Location) String() string {
	return l.Start.String() + "-" + l.End.String()
}
