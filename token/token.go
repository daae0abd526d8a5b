// Package token holds the fixed catalog of drawable heart tokens.
package token

// Token identifies one drawable heart by its color code.
type Token = string

// Size is the number of tokens in the catalog.
const Size = 26

var catalog = [Size]Token{
	// outer ring
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4", "#FFEAA7",
	"#DDA0DD", "#F39C12", "#E74C3C", "#9B59B6", "#1ABC9C",
	"#2ECC71", "#3498DB", "#FF9800", "#27AE60", "#8E44AD",
	"#17A2B8", "#F1C40F", "#E91E63",
	// inner ring
	"#FF5722", "#795548", "#607D8B", "#FF1744", "#00BCD4",
	"#9C27B0", "#FF6F00", "#4CAF50",
}

var index = func() map[Token]int {
	m := make(map[Token]int, Size)
	for i, t := range catalog {
		m[t] = i
	}
	return m
}()

// Catalog returns a copy of the catalog in display order.
func Catalog() []Token {
	out := make([]Token, Size)
	copy(out, catalog[:])
	return out
}

// Valid reports whether t is part of the catalog.
func Valid(t Token) bool {
	_, ok := index[t]
	return ok
}

// Index returns the catalog position of t, or -1.
func Index(t Token) int {
	if i, ok := index[t]; ok {
		return i
	}
	return -1
}

// At returns the token at catalog position i. It panics if i is out of range.
func At(i int) Token {
	return catalog[i]
}
