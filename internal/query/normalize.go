// Package query normalizes SQL text for cache keys and classifies
// statements by their effect so writes can evict cached reads.
package query

import (
	"regexp"
	"strings"
)

var (
	lineComment  = regexp.MustCompile(`--[^\n]*`)
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// Normalize returns the canonical form of a SQL statement: comments removed,
// whitespace runs collapsed to a single space, lower-cased and trimmed.
// Two statements that differ only in formatting normalize to the same text.
//
// Comments are stripped before whitespace is collapsed so that a line
// comment only swallows its own line.
func Normalize(sql string) string {
	s := blockComment.ReplaceAllString(sql, " ")
	s = lineComment.ReplaceAllString(s, " ")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(strings.ToLower(s))
}
