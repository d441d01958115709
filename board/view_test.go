package board

import (
	"context"
	"sync"
	"testing"
	"time"

	"taskflow-api/domain"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestViewRefreshesOnStoreChange(t *testing.T) {
	s := newGuestStore(&stubRemote{}, &memSnapshot{})
	s.Init(context.Background())
	defer s.Close()

	v := newViewAt(s, time.Hour, func() time.Time { return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC) })
	defer v.Close()

	if len(v.Tasks()) != 0 {
		t.Fatalf("expected empty view, got %v", v.Tasks())
	}

	s.AddTask(domain.TaskDraft{Title: "visible", Status: domain.StatusBacklog})
	if tasks := v.Tasks(); len(tasks) != 1 || tasks[0].Title != "visible" {
		t.Fatalf("view did not refresh on change: %v", tasks)
	}

	query := "zzz"
	s.SetFilters(domain.FilterPatch{Query: &query})
	if tasks := v.Tasks(); len(tasks) != 0 {
		t.Fatalf("view ignored filter change: %v", tasks)
	}
}

func TestViewRefreshesOnTick(t *testing.T) {
	s := newGuestStore(&stubRemote{}, &memSnapshot{})
	s.Init(context.Background())
	defer s.Close()

	// Simulated clock crosses midnight between refreshes; only the tick can
	// pick that up because no state changes.
	var mu sync.Mutex
	now := time.Date(2024, 6, 15, 23, 59, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	s.AddTask(domain.TaskDraft{Title: "due", Status: domain.StatusBacklog, DueDate: "2024-06-15"})
	when := domain.WhenToday
	s.SetFilters(domain.FilterPatch{When: &when})

	v := newViewAt(s, 10*time.Millisecond, clock)
	defer v.Close()

	if tasks := v.Tasks(); len(tasks) != 1 {
		t.Fatalf("expected task due today, got %v", tasks)
	}

	mu.Lock()
	now = time.Date(2024, 6, 16, 0, 0, 1, 0, time.UTC)
	mu.Unlock()

	waitFor(t, time.Second, func() bool { return len(v.Tasks()) == 0 })
}
