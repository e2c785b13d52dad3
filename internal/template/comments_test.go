package template

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractApplyCommentsRoundTrip(t *testing.T) {
	body := "resource foo {\n  // keep me\n  id: 1\n}"

	comments := ExtractComments(body)
	require.Len(t, comments, 1)

	stripped := "resource foo {\n  id: 1\n}"
	restored := ApplyComments(stripped, comments)
	require.Equal(t, body, restored)
}

func TestApplyCommentsFuzzyMatchesRenamedAnchor(t *testing.T) {
	old := "alpha first line\n// important\nbeta second line"
	comments := ExtractComments(old)
	require.Len(t, comments, 1)

	// Both anchors shift by one character each, so neither survives an
	// exact substring match but both fall within the fuzzy distance.
	newBody := "alpha xfirst line\nbeta xsecond line"
	restored := ApplyComments(newBody, comments)
	require.Contains(t, restored, "// important")
}

func TestApplyCommentsDropsUnmatchedOrphans(t *testing.T) {
	comments := []Comment{{
		Text:   "// orphaned",
		Before: strp("this line does not exist anywhere nearby"),
		After:  strp("neither does this one"),
	}}

	target := "resource foo {\n  id: 1\n}"
	restored := ApplyComments(target, comments)
	require.Equal(t, target, restored)
}

func TestLevenshteinBasic(t *testing.T) {
	require.Equal(t, 0, levenshtein("abc", "abc"))
	require.Equal(t, 1, levenshtein("abc", "abd"))
	require.Equal(t, 3, levenshtein("", "abc"))
}
