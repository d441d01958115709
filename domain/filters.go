package domain

// When restricts the filtered view to a due-date window.
type When string

const (
	WhenAll      When = "all"
	WhenToday    When = "today"
	WhenUpcoming When = "upcoming"
)

// Valid reports whether w is a known due-date window.
func (w When) Valid() bool {
	switch w {
	case WhenAll, WhenToday, WhenUpcoming:
		return true
	}
	return false
}

// Filters is the session-local view criteria. It is never persisted.
type Filters struct {
	Query    string   `json:"query"`
	When     When     `json:"when"`
	LabelIDs []string `json:"labelIds"`
}

// NewFilters returns the criteria a fresh session starts with.
func NewFilters() Filters {
	return Filters{When: WhenAll, LabelIDs: []string{}}
}

// FilterPatch is a partial filter update. Nil fields are left untouched.
type FilterPatch struct {
	Query    *string   `json:"query,omitempty"`
	When     *When     `json:"when,omitempty"`
	LabelIDs *[]string `json:"labelIds,omitempty"`
}
