// ABOUTME: Placeholder scanner extracting {{name}} tokens from template text
// ABOUTME: Single left-to-right pass, first-occurrence order, duplicates collapsed

package prompt

import "strings"

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

// placeholder is one matched {{...}} token in a piece of text.
type placeholder struct {
	start int    // offset of the opening "{{"
	end   int    // offset just past the closing "}}"
	name  string // trimmed inner text
}

// nextPlaceholder finds the first well-formed placeholder at or after from.
// The inner text must be non-empty and must not contain '}'. Returns ok=false
// when no further placeholder exists.
func nextPlaceholder(content string, from int) (p placeholder, ok bool) {
	for from < len(content) {
		rel := strings.Index(content[from:], openDelim)
		if rel < 0 {
			return placeholder{}, false
		}
		start := from + rel
		innerStart := start + len(openDelim)

		// The inner run stops at the first '}'; it has to be followed by
		// another '}' and be at least one character long.
		close := strings.IndexByte(content[innerStart:], '}')
		if close < 0 {
			return placeholder{}, false
		}
		innerEnd := innerStart + close
		if close > 0 && innerEnd+1 < len(content) && content[innerEnd+1] == '}' {
			return placeholder{
				start: start,
				end:   innerEnd + len(closeDelim),
				name:  strings.TrimSpace(content[innerStart:innerEnd]),
			}, true
		}

		// No "{{" can start inside the failed run, so resume after its '}'.
		from = innerEnd + 1
	}
	return placeholder{}, false
}

// Scan returns the distinct placeholder names in content, in the order they
// first appear. Names are the trimmed inner text of each placeholder; tokens
// that are blank after trimming are skipped.
func Scan(content string) []string {
	names := []string{}
	seen := make(map[string]struct{})

	pos := 0
	for {
		p, ok := nextPlaceholder(content, pos)
		if !ok {
			break
		}
		pos = p.end
		if p.name == "" {
			continue
		}
		if _, dup := seen[p.name]; dup {
			continue
		}
		seen[p.name] = struct{}{}
		names = append(names, p.name)
	}
	return names
}

// Contains reports whether content references the named placeholder.
func Contains(content, name string) bool {
	for _, n := range Scan(content) {
		if n == name {
			return true
		}
	}
	return false
}
