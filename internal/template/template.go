// Package template implements out://addr[key] expansion, its reverse,
// and comment-preserving rewrites of resource files.
package template

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/autoschematic-sh/autoschematic/internal/outputmap"
	"github.com/autoschematic-sh/autoschematic/pkg/protocol"
)

var refRegexp = regexp.MustCompile(`out://([^\[]+)\[([^\]]+)\]`)

// GetReadOutputs pulls every out://addr[key] reference out of a resource
// body without resolving any of them.
func GetReadOutputs(body string) []protocol.ReadOutput {
	matches := refRegexp.FindAllStringSubmatch(body, -1)
	out := make([]protocol.ReadOutput, 0, len(matches))
	for _, m := range matches {
		out = append(out, protocol.ReadOutput{Addr: m[1], Key: m[2]})
	}
	return out
}

// Result is the outcome of expanding a resource body.
type Result struct {
	Body    string
	Found   map[protocol.ReadOutput]string
	Missing map[protocol.ReadOutput]struct{}
}

// Expand substitutes every out://addr[key] reference in body with the
// resolved value from <prefix>/.outputs/<addr>.out.json, leaving
// unresolved references verbatim and recording them in Missing.
// Expansion is one-pass: substituted values are not themselves templated.
func Expand(prefix, body string) (*Result, error) {
	res := &Result{
		Found:   map[protocol.ReadOutput]string{},
		Missing: map[protocol.ReadOutput]struct{}{},
	}

	var outerErr error
	out := refRegexp.ReplaceAllStringFunc(body, func(match string) string {
		sub := refRegexp.FindStringSubmatch(match)
		addr, key := sub[1], sub[2]
		ro := protocol.ReadOutput{Addr: addr, Key: key}

		val, ok, err := outputmap.Get(prefix, addr, key)
		if err != nil {
			outerErr = err
			return match
		}
		if !ok {
			res.Missing[ro] = struct{}{}
			return match
		}
		res.Found[ro] = val
		return val
	})
	if outerErr != nil {
		return nil, fmt.Errorf("expanding template: %w", outerErr)
	}
	res.Body = out
	return res, nil
}

// ReverseExpand takes a previously-templated body and a raw body with
// literal values substituted in, and rewrites the raw body to restore
// out://addr[key] references wherever a known output value of at least
// minLength characters appears literally. Used by pull-state to keep
// user-authored templates intact when refreshing remote state.
func ReverseExpand(prefix, templatedBody, rawBody string, minLength int) (string, error) {
	result := rawBody
	tmplResult, err := Expand(prefix, templatedBody)
	if err != nil {
		return "", err
	}
	for ro, value := range tmplResult.Found {
		if len(value) < minLength {
			continue
		}
		result = strings.ReplaceAll(result, value, ro.String())
	}
	return result, nil
}
