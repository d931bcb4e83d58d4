package store

// HistoryLimit caps the analysis and signal histories.
const HistoryLimit = 50

// Prepend puts item first and drops entries beyond max.
func Prepend[T any](list []T, item T, max int) []T {
	out := make([]T, 0, len(list)+1)
	out = append(out, item)
	out = append(out, list...)
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}
