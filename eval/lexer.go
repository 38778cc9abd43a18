/*
Copyright 2024 batisdev

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package eval

import (
	"go/scanner"
	"go/token"
	"strconv"
	"strings"
)

// identReplacer rewrites the mapper expression vocabulary into Go syntax:
// "and"/"or"/"not" become "&&"/"||"/"!", "null" becomes "nil". Everything
// else passes through untouched.
func identReplacer(s string) string {
	switch s {
	case "and":
		return "&&"
	case "or":
		return "||"
	case "not":
		return "!"
	case "null":
		return "nil"
	default:
		return s
	}
}

// normalizeQuotes rewrites single-quoted string literals into double-quoted
// ones so go/scanner accepts them. Mapper expressions live inside XML
// attributes where single quotes are the convention. Escapes are not
// supported inside single quotes.
func normalizeQuotes(input string) string {
	if !strings.ContainsRune(input, '\'') {
		return input
	}
	var builder strings.Builder
	builder.Grow(len(input))
	inDouble := false
	for i := 0; i < len(input); i++ {
		c := input[i]
		switch {
		case c == '"':
			inDouble = !inDouble
			builder.WriteByte(c)
		case c == '\'' && !inDouble:
			end := strings.IndexByte(input[i+1:], '\'')
			if end < 0 {
				builder.WriteByte(c)
				continue
			}
			builder.WriteString(strconv.Quote(input[i+1 : i+1+end]))
			i += end + 1
		default:
			builder.WriteByte(c)
		}
	}
	return builder.String()
}

// Lexer performs lexical analysis on mapper expressions, converting them into
// strings go/parser understands.
type Lexer struct {
	scanner scanner.Scanner
}

// Tokenize scans the input and returns a string with the mapper vocabulary
// replaced, tokens joined by single spaces.
func (l *Lexer) Tokenize() string {
	var tokens []string
	for {
		_, tok, lit := l.scanner.Scan()
		if tok == token.EOF {
			break
		}
		switch tok {
		case token.IDENT:
			tokens = append(tokens, identReplacer(lit))
		case token.SEMICOLON:
			// the scanner inserts semicolons at line ends; expressions are single lines
			if lit == "\n" {
				continue
			}
			tokens = append(tokens, lit)
		default:
			if lit != "" {
				tokens = append(tokens, lit)
			} else {
				tokens = append(tokens, tok.String())
			}
		}
	}
	return strings.Join(tokens, " ")
}

// NewLexer creates a Lexer over the given expression source.
func NewLexer(input string) *Lexer {
	input = normalizeQuotes(input)
	var s scanner.Scanner
	fset := token.NewFileSet()
	file := fset.AddFile("", fset.Base(), len(input))
	s.Init(file, []byte(input), nil, 0)
	return &Lexer{scanner: s}
}
