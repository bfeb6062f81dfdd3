package domain

import "strings"

// StatusFilter narrows listings to one status; StatusFilterAll disables the predicate.
type StatusFilter string

const StatusFilterAll StatusFilter = "all"

// ParseStatusFilter accepts "all", an empty value (treated as all) or a status.
func ParseStatusFilter(raw string) (StatusFilter, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" || trimmed == string(StatusFilterAll) {
		return StatusFilterAll, nil
	}
	status, err := ParseStatus(trimmed)
	if err != nil {
		return "", err
	}
	return StatusFilter(status), nil
}

// Filter describes a dashboard listing request. Search and Status compose with AND.
type Filter struct {
	Search   string
	Status   StatusFilter
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// Normalize fills defaults and clamps pagination.
func (f Filter) Normalize() Filter {
	f.Search = strings.TrimSpace(f.Search)
	if f.Status == "" {
		f.Status = StatusFilterAll
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	return f
}

// Offset returns the zero-based index of the first row of the page.
func (f Filter) Offset() int {
	n := f.Normalize()
	return (n.Page - 1) * n.PageSize
}

// Matches evaluates the filter predicates against a single order. Orders
// without a customer never match customer fields but still match on reference.
func (f Filter) Matches(order Order) bool {
	if f.Status != "" && f.Status != StatusFilterAll && OrderStatus(f.Status) != order.Status {
		return false
	}

	needle := strings.ToLower(strings.TrimSpace(f.Search))
	if needle == "" {
		return true
	}
	if strings.Contains(strings.ToLower(order.Reference), needle) {
		return true
	}
	return order.Customer.matches(needle)
}
