package board

import (
	"strings"
	"time"

	"taskflow-api/domain"
)

const dateLayout = "2006-01-02"

// Visible computes the task subset matching the filters at the given time.
// Predicates are independent and combined with AND; the input state is not
// modified and task order is preserved.
func Visible(state domain.BoardState, filters domain.Filters, now time.Time) []domain.Task {
	query := strings.ToLower(strings.TrimSpace(filters.Query))
	today := now.Format(dateLayout)
	horizon := now.AddDate(0, 0, 7).Format(dateLayout)
	required := requiredNames(state.Labels, filters.LabelIDs)

	out := make([]domain.Task, 0, len(state.Tasks))
	for _, t := range state.Tasks {
		if filters.When == domain.WhenToday && t.DueDate != today {
			continue
		}
		if filters.When == domain.WhenUpcoming {
			// Strictly after today, at most seven days out.
			if t.DueDate == "" || t.DueDate <= today || t.DueDate > horizon {
				continue
			}
		}
		if !carriesNames(t, state.Labels, required) {
			continue
		}
		if query != "" {
			hay := strings.ToLower(t.Title + " " + t.Description)
			if !strings.Contains(hay, query) {
				continue
			}
		}
		out = append(out, t.Clone())
	}
	return out
}

// requiredNames resolves the required label ids to their display-name groups.
// Labels sharing a case-insensitive name count as one group, so any label of
// that name satisfies the requirement. An id with no label record forms its
// own group and can only be satisfied by that exact id.
func requiredNames(labels []domain.Label, ids []string) map[string]struct{} {
	if len(ids) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[nameGroup(labels, id)] = struct{}{}
	}
	return out
}

func carriesNames(t domain.Task, labels []domain.Label, required map[string]struct{}) bool {
	if len(required) == 0 {
		return true
	}
	carried := make(map[string]struct{}, len(t.Labels))
	for _, id := range t.Labels {
		carried[nameGroup(labels, id)] = struct{}{}
	}
	for name := range required {
		if _, ok := carried[name]; !ok {
			return false
		}
	}
	return true
}

func nameGroup(labels []domain.Label, id string) string {
	for _, l := range labels {
		if l.ID == id {
			return strings.ToLower(l.Name)
		}
	}
	return "id:" + id
}
