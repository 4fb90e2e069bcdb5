package collector

import (
	"context"
	"strconv"
)

// Page is one response of a paginated endpoint. An empty Next means the
// source has no further pages.
type Page[T any] struct {
	Items []T
	Next  string
}

// Source fetches the page addressed by cursor; the empty cursor addresses
// the first page.
type Source[T any] interface {
	FetchNext(ctx context.Context, cursor string) (Page[T], error)
}

// MaxIDSource pages backwards through an id-ordered timeline: the next
// cursor is the smallest id of the current page.
type MaxIDSource[T any] struct {
	Fetch func(ctx context.Context, maxID string) ([]T, error)
	ID    func(T) string
}

// FetchNext implements Source.
func (s MaxIDSource[T]) FetchNext(ctx context.Context, cursor string) (Page[T], error) {
	items, err := s.Fetch(ctx, cursor)
	if err != nil {
		return Page[T]{}, err
	}
	page := Page[T]{Items: items}
	for _, item := range items {
		id := s.ID(item)
		if page.Next == "" || CompareIDs(id, page.Next) < 0 {
			page.Next = id
		}
	}
	return page, nil
}

// LinkSource follows server supplied next-page URLs verbatim.
type LinkSource[T any] struct {
	Fetch func(ctx context.Context, cursor string) ([]T, string, error)
}

// FetchNext implements Source.
func (s LinkSource[T]) FetchNext(ctx context.Context, cursor string) (Page[T], error) {
	items, next, err := s.Fetch(ctx, cursor)
	if err != nil {
		return Page[T]{}, err
	}
	return Page[T]{Items: items, Next: next}, nil
}

// CompareIDs orders ids numerically when both are unsigned integers and
// falls back to length-then-lexical order, which agrees with numeric order
// for the snowflake-style ids servers hand out.
func CompareIDs(a, b string) int {
	an, aErr := strconv.ParseUint(a, 10, 64)
	bn, bErr := strconv.ParseUint(b, 10, 64)
	if aErr == nil && bErr == nil {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	}
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
