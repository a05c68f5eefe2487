package dispatcher

import "fmt"

// Chunks splits items into contiguous runs of n, the last one possibly
// shorter. The chunks share the backing array of items.
func Chunks[T any](items []T, n int) ([][]T, error) {
	if n <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", n)
	}
	out := make([][]T, 0, (len(items)+n-1)/n)
	for start := 0; start < len(items); start += n {
		end := start + n
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end:end])
	}
	return out, nil
}
