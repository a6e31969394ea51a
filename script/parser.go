package script

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Parser parses command scripts.
type Parser struct {
	parser *participle.Parser[Script]
}

// NewParser builds a script parser.
func NewParser() (*Parser, error) {
	parser, err := participle.Build[Script](
		participle.Lexer(Lexer),
		participle.Elide("Comment", "Whitespace"),
		participle.Map(unquote, "String"),
		participle.CaseInsensitive("Ident"),
		participle.UseLookahead(2),
	)
	if err != nil {
		return nil, fmt.Errorf("build parser: %w", err)
	}
	return &Parser{parser: parser}, nil
}

// unquote decodes a string literal. \xNN escapes become single raw bytes so
// scripts can carry binary payloads.
func unquote(t lexer.Token) (lexer.Token, error) {
	v, err := strconv.Unquote(t.Value)
	if err != nil {
		return t, fmt.Errorf("%s: bad string %s: %w", t.Pos, t.Value, err)
	}
	t.Value = v
	return t, nil
}

// Parse parses a script from r. name is used in positions.
func (p *Parser) Parse(name string, r io.Reader) (*Script, error) {
	s, err := p.parser.Parse(name, r)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return s, nil
}

// ParseString parses a script from a string.
func (p *Parser) ParseString(name, input string) (*Script, error) {
	s, err := p.parser.ParseString(name, input)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return s, nil
}

// ParseFile parses the script at path.
func (p *Parser) ParseFile(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	defer f.Close()
	return p.Parse(path, f)
}
