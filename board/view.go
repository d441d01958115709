package board

import (
	"sync"
	"time"

	"taskflow-api/domain"
)

// refilterInterval keeps date-relative filters correct as real time advances
// without any other state changing.
const refilterInterval = time.Minute

// View is the derived, filtered task list the rendering layer reads. It
// recomputes on every store change and on a periodic tick.
type View struct {
	store *Store
	now   func() time.Time

	mu    sync.Mutex
	tasks []domain.Task

	unsub func()
	stop  chan struct{}
	done  chan struct{}
}

// NewView builds a view over the store and starts its refresh loop. Close it
// when the session ends.
func NewView(store *Store) *View {
	return newViewAt(store, refilterInterval, time.Now)
}

func newViewAt(store *Store, interval time.Duration, now func() time.Time) *View {
	v := &View{
		store: store,
		now:   now,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	v.refresh()
	v.unsub = store.Subscribe(v.refresh)
	go v.tick(interval)
	return v
}

// Tasks returns the most recently computed visible task list.
func (v *View) Tasks() []domain.Task {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]domain.Task, len(v.tasks))
	for i, t := range v.tasks {
		out[i] = t.Clone()
	}
	return out
}

// Close detaches the view from the store and stops the tick loop.
func (v *View) Close() {
	v.unsub()
	close(v.stop)
	<-v.done
}

func (v *View) refresh() {
	tasks := v.store.Visible(v.now())
	v.mu.Lock()
	v.tasks = tasks
	v.mu.Unlock()
}

func (v *View) tick(interval time.Duration) {
	defer close(v.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			v.refresh()
		case <-v.stop:
			return
		}
	}
}
