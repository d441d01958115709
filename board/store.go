package board

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"taskflow-api/domain"
)

// Remote is the owner-scoped CRUD surface of the persistence service. Every
// call is a single attempt; the store performs no retries of its own.
type Remote interface {
	ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error)
	ListLabels(ctx context.Context, ownerID string) ([]domain.Label, error)
	ListTaskLabels(ctx context.Context, ownerID string) ([]domain.TaskLabel, error)

	InsertTask(ctx context.Context, ownerID string, t domain.Task) error
	UpdateTask(ctx context.Context, ownerID, id string, patch domain.TaskPatch) error
	UpsertTask(ctx context.Context, ownerID string, t domain.Task) error
	DeleteTask(ctx context.Context, ownerID, id string) error

	InsertLabels(ctx context.Context, ownerID string, labels []domain.Label) error
	UpdateLabel(ctx context.Context, ownerID, id string, patch domain.LabelPatch) error
	DeleteLabel(ctx context.Context, ownerID, id string) error

	InsertTaskLabels(ctx context.Context, ownerID string, rows []domain.TaskLabel) error
	DeleteTaskLabels(ctx context.Context, ownerID, taskID string) error
}

// Snapshot is the durable local slot holding the last-known board state. Load
// treats missing, unparsable, or unreachable payloads as absent; Save is
// best-effort and never reports an error.
type Snapshot interface {
	Load(ctx context.Context) (domain.BoardState, bool)
	Save(ctx context.Context, state domain.BoardState)
}

// Notice is a short, dismissible user-facing failure report. Failures never
// surface to mutation callers as errors.
type Notice struct {
	Message string `json:"message"`
}

const (
	noticeSaveFailed = "Couldn't save changes. Please retry."
	noticeLoadFailed = "Couldn't load your board. Showing a fresh one."
)

// Config assembles a Store. Remote may be nil, which forces guest mode.
type Config struct {
	Guest    bool
	OwnerID  string
	Remote   Remote
	Snapshot Snapshot
	Logger   *log.Logger

	// OnNotice receives user-facing failure reports. It may be called from a
	// dispatcher worker goroutine.
	OnNotice func(Notice)

	Workers       int
	Buffer        int
	RemoteTimeout time.Duration
	Handoff       time.Duration

	// Now and NewID exist for tests; zero values use the real clock and uuid.
	Now   func() time.Time
	NewID func() string
}

// Store is the single source of truth for the board. Mutations update the
// in-memory state synchronously, mirror it into the snapshot slot, notify
// subscribers, and, when authenticated, fire a detached remote write. A
// failed remote write raises a notice and is never rolled back locally;
// until the next full reload the remote copy may lag behind. Writes made
// while the remote is unreachable are not queued or replayed.
type Store struct {
	mu       sync.Mutex
	state    domain.BoardState
	filters  domain.Filters
	subs     map[int]func()
	nextSub  int
	guest    bool
	owner    string
	remote   Remote
	snapshot Snapshot
	disp     *dispatcher
	onNotice func(Notice)
	log      *log.Logger
	now      func() time.Time
	newID    func() string
}

// New builds a Store from the config. Call Init before first use and Close
// when the session ends.
func New(cfg Config) *Store {
	if cfg.Logger == nil {
		cfg.Logger = log.New()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = 30 * time.Second
	}
	if cfg.Handoff <= 0 {
		cfg.Handoff = 15 * time.Millisecond
	}

	s := &Store{
		state:    domain.BoardState{Tasks: []domain.Task{}, Labels: domain.DefaultLabels()},
		filters:  domain.NewFilters(),
		subs:     make(map[int]func()),
		guest:    cfg.Guest || cfg.OwnerID == "" || cfg.Remote == nil,
		owner:    cfg.OwnerID,
		remote:   cfg.Remote,
		snapshot: cfg.Snapshot,
		onNotice: cfg.OnNotice,
		log:      cfg.Logger,
		now:      cfg.Now,
		newID:    cfg.NewID,
	}
	s.disp = newDispatcher(cfg.Workers, cfg.Buffer, cfg.RemoteTimeout, cfg.Handoff, cfg.Logger, func(op string, err error) {
		s.raise(noticeSaveFailed)
	})
	return s
}

// Guest reports whether the store persists locally only.
func (s *Store) Guest() bool { return s.guest }

// Init loads the initial board state. Guest sessions read the snapshot slot;
// authenticated sessions fetch labels, tasks, and associations in parallel
// and fall back to an empty board with default labels if any fetch fails.
// Init never returns an error to the caller.
func (s *Store) Init(ctx context.Context) {
	var state domain.BoardState
	if s.guest {
		state = s.loadLocal(ctx)
	} else {
		state = s.loadRemote(ctx)
	}
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.afterChange()
}

func (s *Store) loadLocal(ctx context.Context) domain.BoardState {
	if s.snapshot == nil {
		return domain.BoardState{Tasks: []domain.Task{}, Labels: domain.DefaultLabels()}
	}
	state, ok := s.snapshot.Load(ctx)
	if !ok {
		return domain.BoardState{Tasks: []domain.Task{}, Labels: domain.DefaultLabels()}
	}
	return normalize(state)
}

func (s *Store) loadRemote(ctx context.Context) domain.BoardState {
	var (
		wg     sync.WaitGroup
		tasks  []domain.Task
		labels []domain.Label
		assocs []domain.TaskLabel
		tErr   error
		lErr   error
		aErr   error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		tasks, tErr = s.remote.ListTasks(ctx, s.owner)
	}()
	go func() {
		defer wg.Done()
		labels, lErr = s.remote.ListLabels(ctx, s.owner)
	}()
	go func() {
		defer wg.Done()
		assocs, aErr = s.remote.ListTaskLabels(ctx, s.owner)
	}()
	wg.Wait()

	if tErr != nil || lErr != nil || aErr != nil {
		s.log.WithFields(log.Fields{"tasks": errString(tErr), "labels": errString(lErr), "task_labels": errString(aErr)}).
			Error("board load failed; starting from defaults")
		s.raise(noticeLoadFailed)
		return domain.BoardState{Tasks: []domain.Task{}, Labels: domain.DefaultLabels()}
	}

	byTask := make(map[string][]string, len(assocs))
	for _, a := range assocs {
		byTask[a.TaskID] = append(byTask[a.TaskID], a.LabelID)
	}
	for i := range tasks {
		ids := byTask[tasks[i].ID]
		if ids == nil {
			ids = []string{}
		}
		tasks[i].Labels = ids
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}

	labels = s.seedDefaults(ctx, labels)
	return domain.BoardState{Tasks: tasks, Labels: labels}
}

// seedDefaults creates any default label whose name is not already present
// remotely, comparing names case-insensitively so existing same-named labels
// are not duplicated. Running it against an already-seeded board is a no-op.
func (s *Store) seedDefaults(ctx context.Context, labels []domain.Label) []domain.Label {
	have := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		have[strings.ToLower(l.Name)] = struct{}{}
	}
	var missing []domain.Label
	for _, d := range domain.DefaultLabels() {
		if _, ok := have[strings.ToLower(d.Name)]; ok {
			continue
		}
		d.ID = s.newID()
		missing = append(missing, d)
	}
	if len(missing) == 0 {
		return labels
	}
	if err := s.remote.InsertLabels(ctx, s.owner, missing); err != nil {
		s.log.WithField("error", err.Error()).Error("default label seeding failed")
		s.raise(noticeSaveFailed)
	}
	return append(labels, missing...)
}

// normalize repairs a snapshot payload: nil task lists become empty and an
// empty label list falls back to the defaults, keeping the never-empty label
// invariant.
func normalize(state domain.BoardState) domain.BoardState {
	if state.Tasks == nil {
		state.Tasks = []domain.Task{}
	}
	if len(state.Labels) == 0 {
		state.Labels = domain.DefaultLabels()
	}
	return state
}

// State returns a copy of the current board state.
func (s *Store) State() domain.BoardState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Filters returns the current view criteria.
func (s *Store) Filters() domain.Filters {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.filters
	f.LabelIDs = append([]string(nil), f.LabelIDs...)
	return f
}

// Visible returns the tasks matching the current filters at the given time.
func (s *Store) Visible(now time.Time) []domain.Task {
	s.mu.Lock()
	state := s.state
	filters := s.filters
	s.mu.Unlock()
	return Visible(state, filters, now)
}

// Subscribe registers fn to run after every state change and returns its
// unsubscribe function. Callbacks run synchronously on the mutating
// goroutine and must not call back into the store.
func (s *Store) Subscribe(fn func()) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// AddTask creates a task from the draft, prepends it to the sequence, and
// returns it.
func (s *Store) AddTask(d domain.TaskDraft) domain.Task {
	now := s.timestamp()
	t := domain.Task{
		ID:          s.newID(),
		Title:       d.Title,
		Description: d.Description,
		Status:      d.Status,
		DueDate:     d.DueDate,
		Labels:      append([]string{}, d.Labels...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	next := s.state.Clone()
	next.Tasks = append([]domain.Task{t.Clone()}, next.Tasks...)
	s.state = next
	s.mu.Unlock()
	s.afterChange()

	if !s.guest {
		task := t.Clone()
		rows := assocRows(task)
		s.disp.dispatch("task.insert", func(ctx context.Context) error {
			if err := s.remote.InsertTask(ctx, s.owner, task); err != nil {
				return err
			}
			if len(rows) == 0 {
				return nil
			}
			return s.remote.InsertTaskLabels(ctx, s.owner, rows)
		})
	}
	return t
}

// UpdateTask merges the patch into the matching task and bumps its update
// timestamp. When the patch carries labels, the remote associations are
// replaced wholesale rather than diffed. Returns false when no task matches.
func (s *Store) UpdateTask(id string, patch domain.TaskPatch) bool {
	s.mu.Lock()
	next := s.state.Clone()
	idx := taskIndex(next.Tasks, id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	t := &next.Tasks[idx]
	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Status != nil {
		t.Status = *patch.Status
	}
	if patch.DueDate != nil {
		t.DueDate = *patch.DueDate
	}
	if patch.Labels != nil {
		t.Labels = append([]string{}, (*patch.Labels)...)
	}
	t.UpdatedAt = s.timestamp()
	updated := t.Clone()
	s.state = next
	s.mu.Unlock()
	s.afterChange()

	if !s.guest {
		rows := assocRows(updated)
		replaceLabels := patch.Labels != nil
		s.disp.dispatch("task.update", func(ctx context.Context) error {
			if err := s.remote.UpdateTask(ctx, s.owner, id, patch); err != nil {
				return err
			}
			if !replaceLabels {
				return nil
			}
			if err := s.remote.DeleteTaskLabels(ctx, s.owner, id); err != nil {
				return err
			}
			if len(rows) == 0 {
				return nil
			}
			return s.remote.InsertTaskLabels(ctx, s.owner, rows)
		})
	}
	return true
}

// DeleteTask removes the task from the sequence. The remote store cascades
// association cleanup. Returns false when no task matches.
func (s *Store) DeleteTask(id string) bool {
	s.mu.Lock()
	next := s.state.Clone()
	idx := taskIndex(next.Tasks, id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	next.Tasks = append(next.Tasks[:idx], next.Tasks[idx+1:]...)
	s.state = next
	s.mu.Unlock()
	s.afterChange()

	if !s.guest {
		s.disp.dispatch("task.delete", func(ctx context.Context) error {
			return s.remote.DeleteTask(ctx, s.owner, id)
		})
	}
	return true
}

// RestoreTask re-inserts a previously deleted task, at the index-th slot of
// its status column or at the board front when index is negative. The
// snapshot is kept verbatim so a delete followed by a restore at the original
// index reproduces the prior sequence.
func (s *Store) RestoreTask(t domain.Task, index int) {
	s.mu.Lock()
	next := s.state.Clone()
	if idx := taskIndex(next.Tasks, t.ID); idx >= 0 {
		next.Tasks = append(next.Tasks[:idx], next.Tasks[idx+1:]...)
	}
	next.Tasks = insertTask(next.Tasks, t.Clone(), index)
	s.state = next
	s.mu.Unlock()
	s.afterChange()

	if !s.guest {
		task := t.Clone()
		rows := assocRows(task)
		s.disp.dispatch("task.restore", func(ctx context.Context) error {
			if err := s.remote.UpsertTask(ctx, s.owner, task); err != nil {
				return err
			}
			if err := s.remote.DeleteTaskLabels(ctx, s.owner, task.ID); err != nil {
				return err
			}
			if len(rows) == 0 {
				return nil
			}
			return s.remote.InsertTaskLabels(ctx, s.owner, rows)
		})
	}
}

// MoveTask moves the task to the destination column, at the index-th slot or
// the column front when index is negative. Column position is a local
// ordering concept; only the status change is persisted remotely. Returns
// false when no task matches.
func (s *Store) MoveTask(id string, status domain.Status, index int) bool {
	s.mu.Lock()
	next := s.state.Clone()
	idx := taskIndex(next.Tasks, id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	t := next.Tasks[idx]
	next.Tasks = append(next.Tasks[:idx], next.Tasks[idx+1:]...)
	t.Status = status
	t.UpdatedAt = s.timestamp()
	next.Tasks = insertTask(next.Tasks, t, index)
	s.state = next
	s.mu.Unlock()
	s.afterChange()

	if !s.guest {
		st := status
		s.disp.dispatch("task.move", func(ctx context.Context) error {
			return s.remote.UpdateTask(ctx, s.owner, id, domain.TaskPatch{Status: &st})
		})
	}
	return true
}

// AddLabel creates a label and appends it to the label list.
func (s *Store) AddLabel(name string, color domain.LabelColor) domain.Label {
	l := domain.Label{ID: s.newID(), Name: name, Color: color}

	s.mu.Lock()
	next := s.state.Clone()
	next.Labels = append(next.Labels, l)
	s.state = next
	s.mu.Unlock()
	s.afterChange()

	if !s.guest {
		s.disp.dispatch("label.insert", func(ctx context.Context) error {
			return s.remote.InsertLabels(ctx, s.owner, []domain.Label{l})
		})
	}
	return l
}

// UpdateLabel merges the patch into the matching label. Returns false when no
// label matches.
func (s *Store) UpdateLabel(id string, patch domain.LabelPatch) bool {
	s.mu.Lock()
	next := s.state.Clone()
	found := false
	for i := range next.Labels {
		if next.Labels[i].ID != id {
			continue
		}
		if patch.Name != nil {
			next.Labels[i].Name = *patch.Name
		}
		if patch.Color != nil {
			next.Labels[i].Color = *patch.Color
		}
		found = true
		break
	}
	if !found {
		s.mu.Unlock()
		return false
	}
	s.state = next
	s.mu.Unlock()
	s.afterChange()

	if !s.guest {
		s.disp.dispatch("label.update", func(ctx context.Context) error {
			return s.remote.UpdateLabel(ctx, s.owner, id, patch)
		})
	}
	return true
}

// DeleteLabel removes the label and strips its id from every task in the same
// state transition, so no task is left holding a dangling label id. Returns
// false when no label matches.
func (s *Store) DeleteLabel(id string) bool {
	s.mu.Lock()
	next := s.state.Clone()
	found := false
	labels := next.Labels[:0]
	for _, l := range next.Labels {
		if l.ID == id {
			found = true
			continue
		}
		labels = append(labels, l)
	}
	if !found {
		s.mu.Unlock()
		return false
	}
	next.Labels = labels
	for i := range next.Tasks {
		ids := next.Tasks[i].Labels[:0]
		for _, lid := range next.Tasks[i].Labels {
			if lid != id {
				ids = append(ids, lid)
			}
		}
		next.Tasks[i].Labels = ids
	}
	s.state = next
	s.mu.Unlock()
	s.afterChange()

	if !s.guest {
		s.disp.dispatch("label.delete", func(ctx context.Context) error {
			return s.remote.DeleteLabel(ctx, s.owner, id)
		})
	}
	return true
}

// SetFilters merges the patch into the current view criteria. Filters are
// session-local and never persisted.
func (s *Store) SetFilters(patch domain.FilterPatch) {
	s.mu.Lock()
	if patch.Query != nil {
		s.filters.Query = *patch.Query
	}
	if patch.When != nil {
		s.filters.When = *patch.When
	}
	if patch.LabelIDs != nil {
		s.filters.LabelIDs = append([]string{}, (*patch.LabelIDs)...)
	}
	s.mu.Unlock()
	s.notifyAll()
}

// Close stops the dispatcher, waiting for in-flight remote writes.
func (s *Store) Close() {
	s.disp.close()
}

func (s *Store) afterChange() {
	if s.snapshot != nil {
		s.snapshot.Save(context.Background(), s.State())
	}
	s.notifyAll()
}

func (s *Store) notifyAll() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (s *Store) raise(msg string) {
	if s.onNotice != nil {
		s.onNotice(Notice{Message: msg})
	}
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

func taskIndex(tasks []domain.Task, id string) int {
	for i, t := range tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func assocRows(t domain.Task) []domain.TaskLabel {
	rows := make([]domain.TaskLabel, 0, len(t.Labels))
	for _, lid := range t.Labels {
		rows = append(rows, domain.TaskLabel{TaskID: t.ID, LabelID: lid})
	}
	return rows
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
