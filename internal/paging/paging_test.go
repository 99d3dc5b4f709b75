package paging

import (
	"context"
	"errors"
	"slices"
	"testing"
)

// pagesOf splits items into pages of size n and counts fetches.
func pagesOf(items []int, n int, calls *int) FetchFunc[int] {
	return func(_ context.Context, page int) (Page[int], error) {
		*calls++
		start := (page - 1) * n
		if start >= len(items) {
			return Page[int]{}, nil
		}
		end := min(start+n, len(items))
		return Page[int]{Items: items[start:end], HasMore: end < len(items)}, nil
	}
}

func TestReadAll_ConcatenatesInOrder(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}
	calls := 0
	got, err := ReadAll(context.Background(), pagesOf(items, 3, &calls))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !slices.Equal(got, items) {
		t.Errorf("got %v, want %v", got, items)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestReadAll_EmptyListing(t *testing.T) {
	calls := 0
	got, err := ReadAll(context.Background(), pagesOf(nil, 10, &calls))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestReadAll_StartsAtPageOne(t *testing.T) {
	var seen []int
	fetch := func(_ context.Context, page int) (Page[string], error) {
		seen = append(seen, page)
		return Page[string]{Items: []string{"x"}, HasMore: page < 3}, nil
	}
	if _, err := ReadAll(context.Background(), fetch); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(seen, []int{1, 2, 3}) {
		t.Errorf("pages = %v", seen)
	}
}

func TestReadAll_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	fetch := func(_ context.Context, page int) (Page[int], error) {
		if page == 2 {
			return Page[int]{}, boom
		}
		return Page[int]{Items: []int{page}, HasMore: true}, nil
	}
	_, err := ReadAll(context.Background(), fetch)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
}

func TestReadAll_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	if _, err := ReadAll(ctx, pagesOf([]int{1}, 1, &calls)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestFind_StopsAtFirstMatch(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6}
	calls := 0
	got, ok, err := Find(context.Background(), pagesOf(items, 2, &calls), func(v int) bool { return v%3 == 0 })
	if err != nil {
		t.Fatal(err)
	}
	if !ok || got != 3 {
		t.Errorf("got %d/%v, want 3/true", got, ok)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestFind_NoMatchReadsEveryPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	calls := 0
	_, ok, err := Find(context.Background(), pagesOf(items, 2, &calls), func(v int) bool { return v > 10 })
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected no match")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}
