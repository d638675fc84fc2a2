// Package tokenestimate provides the engine's single source of truth for
// mapping text to an approximate token count (spec §4.1).
package tokenestimate

// Estimate maps text to an integer token count. The contract is
// deterministic, monotone in input length, and non-negative; a 4
// characters-per-token approximation is acceptable per spec and keeps every
// downstream budget comparison comparable within one process.
func Estimate(text string) int {
	return len(text) / 4
}

// Ratio applies a compression-level coefficient to a full token count,
// flooring per spec's estimation table (§4.6).
func Ratio(tokenCount int, coefficient float64) int {
	return int(float64(tokenCount) * coefficient)
}
