// Package chunk splits large batches of work into bounded pieces.
package chunk

import "fmt"

// Process invokes fn on slices of items no larger than size. When the
// whole slice fits in one batch it is handed to fn as-is; otherwise the
// slice is partitioned recursively starting from offset, which lets an
// interrupted run resume where it stopped by passing the index of the
// first unprocessed item. Sub-batches always restart at offset zero.
// The first error from fn aborts the remaining batches.
func Process[T any](items []T, size, offset int, fn func([]T) error) error {
	if size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if offset < 0 || offset > len(items) {
		return fmt.Errorf("resume offset %d out of range for %d items", offset, len(items))
	}

	if len(items) <= size {
		return fn(items)
	}

	for i := offset; i < len(items); i += size {
		end := min(i+size, len(items))
		if err := Process(items[i:end], size, 0, fn); err != nil {
			return err
		}
	}

	return nil
}
