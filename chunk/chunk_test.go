package chunk

import (
	"errors"
	"testing"
)

func collectBatches(t *testing.T, items []int, size, offset int) [][]int {
	t.Helper()

	var batches [][]int
	err := Process(items, size, offset, func(batch []int) error {
		copied := make([]int, len(batch))
		copy(copied, batch)
		batches = append(batches, copied)
		return nil
	})
	if err != nil {
		t.Fatalf("Process() failed: %v", err)
	}
	return batches
}

func TestProcessSingleBatch(t *testing.T) {
	batches := collectBatches(t, []int{1, 2, 3}, 10, 0)

	if len(batches) != 1 {
		t.Fatalf("Expected 1 batch, got %d", len(batches))
	}
	if len(batches[0]) != 3 {
		t.Errorf("Expected the whole slice in one batch, got %v", batches[0])
	}
}

func TestProcessSplitsEvenly(t *testing.T) {
	batches := collectBatches(t, []int{1, 2, 3, 4, 5, 6}, 2, 0)

	want := [][]int{{1, 2}, {3, 4}, {5, 6}}
	if len(batches) != len(want) {
		t.Fatalf("Expected %d batches, got %d", len(want), len(batches))
	}
	for i := range want {
		if len(batches[i]) != len(want[i]) {
			t.Fatalf("Batch %d = %v, want %v", i, batches[i], want[i])
		}
		for j := range want[i] {
			if batches[i][j] != want[i][j] {
				t.Fatalf("Batch %d = %v, want %v", i, batches[i], want[i])
			}
		}
	}
}

func TestProcessUnevenTail(t *testing.T) {
	batches := collectBatches(t, []int{1, 2, 3, 4, 5}, 2, 0)

	if len(batches) != 3 {
		t.Fatalf("Expected 3 batches, got %d", len(batches))
	}
	if len(batches[2]) != 1 || batches[2][0] != 5 {
		t.Errorf("Expected final batch [5], got %v", batches[2])
	}
}

func TestProcessResumeOffset(t *testing.T) {
	// Resuming at index 4 skips the first two batches.
	batches := collectBatches(t, []int{1, 2, 3, 4, 5, 6}, 2, 4)

	if len(batches) != 1 {
		t.Fatalf("Expected 1 batch, got %d", len(batches))
	}
	if batches[0][0] != 5 || batches[0][1] != 6 {
		t.Errorf("Expected batch [5 6], got %v", batches[0])
	}
}

func TestProcessErrorAborts(t *testing.T) {
	wantErr := errors.New("boom")
	calls := 0

	err := Process([]int{1, 2, 3, 4, 5, 6}, 2, 0, func(batch []int) error {
		calls++
		if calls == 2 {
			return wantErr
		}
		return nil
	})

	if !errors.Is(err, wantErr) {
		t.Errorf("Expected error to propagate, got %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected processing to stop after the failing batch, got %d calls", calls)
	}
}

func TestProcessInvalidArguments(t *testing.T) {
	fn := func([]int) error { return nil }

	if err := Process([]int{1, 2}, 0, 0, fn); err == nil {
		t.Error("Process() with zero size should fail")
	}
	if err := Process([]int{1, 2}, -1, 0, fn); err == nil {
		t.Error("Process() with negative size should fail")
	}
	if err := Process([]int{1, 2}, 1, -1, fn); err == nil {
		t.Error("Process() with negative offset should fail")
	}
	if err := Process([]int{1, 2}, 1, 3, fn); err == nil {
		t.Error("Process() with offset beyond the slice should fail")
	}
}

func TestProcessEmptySlice(t *testing.T) {
	calls := 0
	err := Process(nil, 10, 0, func(batch []int) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Process() failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected the empty slice to be handed to fn once, got %d calls", calls)
	}
}
