package script

import "github.com/alecthomas/participle/v2/lexer"

// Script is a parsed command script.
type Script struct {
	Stmts []*Stmt `parser:"@@*"`
}

// Stmt is one statement. Exactly one field is set.
type Stmt struct {
	Pos lexer.Position

	Send   *Send   `parser:"  \"send\" @@"`
	Query  *Query  `parser:"| \"query\" @@"`
	Read   *Read   `parser:"| \"read\" @@"`
	Expect *Expect `parser:"| \"expect\" @@"`
	Sleep  *Sleep  `parser:"| \"sleep\" @@"`
}

// Send writes Data.
type Send struct {
	Data string `parser:"@String"`
}

// Query writes Data and reads the reply.
type Query struct {
	Data string `parser:"@String"`
	Max  *int   `parser:"( \"max\" @Integer )?"`
}

// Read reads a reply.
type Read struct {
	Max *int `parser:"( \"max\" @Integer )?"`
}

// Expect checks the last reply.
type Expect struct {
	Hex  *string `parser:"  \"hex\" @String"`
	Len  *int    `parser:"| \"len\" @Integer"`
	Text *string `parser:"| @String"`
}

// Sleep pauses for MS milliseconds.
type Sleep struct {
	MS int `parser:"@Integer"`
}
