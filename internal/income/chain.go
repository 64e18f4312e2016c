// Package income resolves the target income of an account for a month.
package income

// Tier is one step of a precedence chain. It reports whether it produced a value.
type Tier[In, Out any] func(In) (Out, bool)

// FirstMatch evaluates tiers in order and returns the first value produced.
// Later tiers are never evaluated once one matches.
func FirstMatch[In, Out any](in In, tiers ...Tier[In, Out]) (Out, bool) {
	for _, tier := range tiers {
		if out, ok := tier(in); ok {
			return out, true
		}
	}
	var zero Out
	return zero, false
}
