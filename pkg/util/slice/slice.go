// Package slice provides small generic helpers over slices used by the
// import pipeline's resource-group neighbor filtering.
package slice

import "github.com/samber/lo"

// Subtract removes items in slice b from slice a, returning the result.
// Implemented using a map for greater efficiency than lo.Difference /
// lo.Without when operating on large slices.
func Subtract[T comparable](a []T, b []T) []T {
	subtractionMap := lo.FromEntries(lo.Map(a, func(item T, _ int) lo.Entry[T, bool] {
		return lo.Entry[T, bool]{Key: item, Value: true}
	}))
	subtractionMap = lo.OmitByKeys(subtractionMap, b)

	return lo.Filter(a, func(x T, _ int) bool {
		_, ok := subtractionMap[x]
		return ok
	})
}
