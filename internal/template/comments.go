package template

import (
	"regexp"
	"strings"
)

// Comment is a single-line "//..." comment extracted from a resource
// body, anchored to the non-trivial lines immediately before/after it so
// it can be reinserted into a rewritten version of the same body.
type Comment struct {
	Text   string
	Before *string
	After  *string
}

const minAnchorLen = 3
const maxFuzzyDist = 6

var commentLineRe = regexp.MustCompile(`^\s*//.*`)

// ExtractComments finds every single-line comment in src along with its
// neighboring anchor lines. For a comment between two lines, anchors
// shorter than minAnchorLen are skipped, since short lines like "}"
// anchor unreliably; a comment on the first or last line takes its one
// neighbor as is.
func ExtractComments(src string) []Comment {
	lines := strings.Split(src, "\n")
	var comments []Comment

	anchor := func(i int) *string {
		if i < 0 || i >= len(lines) {
			return nil
		}
		if len(strings.TrimSpace(lines[i])) < minAnchorLen {
			return nil
		}
		s := lines[i]
		return &s
	}

	for i, line := range lines {
		if !commentLineRe.MatchString(line) {
			continue
		}
		c := Comment{Text: line}
		if i == 0 {
			if len(lines) > 1 {
				s := lines[1]
				c.After = &s
			}
		} else if i == len(lines)-1 {
			if len(lines) > 1 {
				s := lines[len(lines)-2]
				c.Before = &s
			}
		} else {
			c.Before = anchor(i - 1)
			c.After = anchor(i + 1)
		}
		comments = append(comments, c)
	}
	return comments
}

// codeLine pairs a line's byte offset in the joined buffer with its text.
type codeLine struct {
	offset int
	text   string
}

func codeLines(target string) []codeLine {
	lines := strings.Split(target, "\n")
	out := make([]codeLine, 0, len(lines))
	offset := 0
	for _, l := range lines {
		out = append(out, codeLine{offset: offset, text: l})
		offset += len(l) + 1
	}
	return out
}

// ApplyComments reinserts comments into target: first trying an exact
// match of the Before/After anchor text, then a fuzzy match (Levenshtein
// distance <= maxFuzzyDist). Comments that find no place in the first
// pass are retried once against the text as updated by the first pass;
// comments matching neither pass are dropped.
func ApplyComments(target string, comments []Comment) string {
	var leftover []Comment
	for _, c := range comments {
		if _, ok := tryExactAndFuzzy(&target, c); ok {
			continue
		}
		leftover = append(leftover, c)
	}
	for _, c := range leftover {
		tryExactAndFuzzy(&target, c)
	}
	return target
}

func tryExactAndFuzzy(target *string, c Comment) (int, bool) {
	if c.Before != nil {
		if pos := strings.Index(*target, *c.Before); pos >= 0 {
			insertAfterLine(target, pos, c.Text)
			return pos, true
		}
	}
	if c.After != nil {
		if pos := strings.Index(*target, *c.After); pos >= 0 {
			insertBefore(target, pos, c.Text)
			return pos, true
		}
	}
	if pos, ok := fuzzyFind(codeLines(*target), c.Before, c.After); ok {
		insertBefore(target, pos, c.Text)
		return pos, true
	}
	return 0, false
}

func insertBefore(buf *string, pos int, comment string) {
	if pos > 0 && (*buf)[pos-1] != '\n' {
		*buf = (*buf)[:pos] + "\n" + comment + "\n" + (*buf)[pos:]
		return
	}
	*buf = (*buf)[:pos] + comment + "\n" + (*buf)[pos:]
}

func insertAfterLine(buf *string, pos int, comment string) {
	rest := (*buf)[pos:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		insertAt := pos + nl + 1
		*buf = (*buf)[:insertAt] + comment + "\n" + (*buf)[insertAt:]
	} else {
		insertBefore(buf, pos, comment)
	}
}

// fuzzyFind scans every insertion position (before line i, or appended
// past the last line), widening the allowed Levenshtein distance from 0
// to maxFuzzyDist, and returns the byte offset of the first position
// whose surrounding lines match the anchors within that distance. An
// anchor whose neighbor would fall outside the buffer never matches.
func fuzzyFind(lines []codeLine, before, after *string) (int, bool) {
	if before == nil && after == nil {
		return 0, false
	}
	endOffset := 0
	if n := len(lines); n > 0 {
		endOffset = lines[n-1].offset + len(lines[n-1].text)
	}
	for dist := 0; dist <= maxFuzzyDist; dist++ {
		for i := 0; i <= len(lines); i++ {
			if before != nil {
				if i == 0 || levenshtein(strings.TrimSpace(*before), strings.TrimSpace(lines[i-1].text)) > dist {
					continue
				}
			}
			if after != nil {
				if i == len(lines) || levenshtein(strings.TrimSpace(*after), strings.TrimSpace(lines[i].text)) > dist {
					continue
				}
			}
			if i == len(lines) {
				return endOffset, true
			}
			return lines[i].offset, true
		}
	}
	return 0, false
}

// levenshtein computes plain rune-wise edit distance; fuzzy anchor
// matching needs nothing fancier.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			curr[j] = m
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
