// ABOUTME: Fuzzy, accent-insensitive ranking over titled documents
// ABOUTME: Thin wrapper over sahilm/fuzzy with x/text normalization

// Package search ranks templates and knowledge resources against a free-text
// query. Titles are matched fuzzily; bodies by normalized substring.
package search

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sahilm/fuzzy"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	titleWeight   = 100
	bodyWeight    = 50
	snippetRunes  = 160
	snippetBefore = 40
)

// Document is one searchable item.
type Document struct {
	ID    string
	Title string
	Body  string
}

// Hit is a ranked match.
type Hit struct {
	ID             string
	Title          string
	Score          int
	MatchedIndexes []int // byte offsets into the normalized title
	Snippet        string
}

// Normalize lowercases s, folds compatibility forms and strips combining
// marks, so "Café" and "cafe" compare equal.
func Normalize(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.Join(strings.Fields(out), " "))
}

type titles []string

func (t titles) String(i int) string { return t[i] }
func (t titles) Len() int            { return len(t) }

// Search ranks docs against query, best first. Documents matching neither
// title nor body are omitted. A limit of zero or less returns every hit.
func Search(query string, docs []Document, limit int) []Hit {
	q := Normalize(query)
	if q == "" {
		return []Hit{}
	}

	normTitles := make(titles, len(docs))
	for i, d := range docs {
		normTitles[i] = Normalize(d.Title)
	}

	hits := make(map[int]*Hit)
	for _, m := range fuzzy.FindFrom(q, normTitles) {
		hits[m.Index] = &Hit{
			ID:             docs[m.Index].ID,
			Title:          docs[m.Index].Title,
			Score:          titleWeight + m.Score,
			MatchedIndexes: m.MatchedIndexes,
		}
	}

	for i, d := range docs {
		if !strings.Contains(Normalize(d.Body), q) {
			continue
		}
		h, ok := hits[i]
		if !ok {
			h = &Hit{ID: d.ID, Title: d.Title}
			hits[i] = h
		}
		h.Score += bodyWeight
	}

	order := make([]int, 0, len(hits))
	for i := range hits {
		order = append(order, i)
	}
	sort.Slice(order, func(a, b int) bool {
		ha, hb := hits[order[a]], hits[order[b]]
		if ha.Score != hb.Score {
			return ha.Score > hb.Score
		}
		return order[a] < order[b]
	})

	if limit > 0 && len(order) > limit {
		order = order[:limit]
	}

	out := make([]Hit, len(order))
	for i, idx := range order {
		h := hits[idx]
		h.Snippet = Snippet(docs[idx].Body, query)
		out[i] = *h
	}
	return out
}

// Snippet returns up to snippetRunes runes of body around the first
// case-insensitive occurrence of query, or the start of body if absent.
func Snippet(body, query string) string {
	body = strings.Join(strings.Fields(body), " ")
	if body == "" {
		return ""
	}

	start := 0
	if q := strings.TrimSpace(query); q != "" {
		if at := strings.Index(strings.ToLower(body), strings.ToLower(q)); at >= 0 {
			start = utf8.RuneCountInString(body[:at]) - snippetBefore
		}
	}
	if start < 0 {
		start = 0
	}

	r := []rune(body)
	if start > len(r) {
		start = 0
	}
	end := start + snippetRunes
	if end > len(r) {
		end = len(r)
	}

	s := string(r[start:end])
	if start > 0 {
		s = "…" + s
	}
	if end < len(r) {
		s += "…"
	}
	return s
}
