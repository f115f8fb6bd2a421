package syntax

import "regexp"

var newlineRe = regexp.MustCompile(`\r\n|\r|\n`)

// SplitLines splits text on any newline convention.
func SplitLines(text string) []string {
	return newlineRe.Split(text, -1)
}

// Lex tokenizes every line of text under table. Line numbers start at 1.
func Lex(table *Table, text string) []Token {
	lines := SplitLines(text)
	tokens := make([]Token, 0, len(lines))
	for i, line := range lines {
		tokens = append(tokens, table.Tokenize(line, i+1))
	}
	return tokens
}

