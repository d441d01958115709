package storage

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"taskflow-api/domain"
)

// Storage is the remote persistence adapter over Azure Table Storage. Each
// record kind lives in its own table, partitioned by owner id with the record
// id as row key, so every operation is scoped to one owner's partition.
type Storage struct {
	taskTable      *aztables.Client
	labelTable     *aztables.Client
	taskLabelTable *aztables.Client
}

// New creates a Storage instance from the given connection string.
func New(connStr, tasksTable, labelsTable, taskLabelsTable string) (*Storage, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &Storage{
		taskTable:      svc.NewClient(tasksTable),
		labelTable:     svc.NewClient(labelsTable),
		taskLabelTable: svc.NewClient(taskLabelsTable),
	}, nil
}

type taskEntity struct {
	aztables.Entity
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Status      string `json:"Status"`
	DueDate     string `json:"DueDate"`
	CreatedAt   string `json:"CreatedAt"`
	UpdatedAt   string `json:"UpdatedAt"`
}

type labelEntity struct {
	aztables.Entity
	Name  string `json:"Name"`
	Color string `json:"Color"`
}

type taskLabelEntity struct {
	aztables.Entity
	TaskID  string `json:"TaskID"`
	LabelID string `json:"LabelID"`
}

func taskToEntity(ownerID string, t domain.Task) taskEntity {
	return taskEntity{
		Entity:      aztables.Entity{PartitionKey: ownerID, RowKey: t.ID},
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		DueDate:     t.DueDate,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func taskFromEntity(ent taskEntity) domain.Task {
	return domain.Task{
		ID:          ent.RowKey,
		Title:       ent.Title,
		Description: ent.Description,
		Status:      domain.Status(ent.Status),
		DueDate:     ent.DueDate,
		Labels:      []string{},
		CreatedAt:   ent.CreatedAt,
		UpdatedAt:   ent.UpdatedAt,
	}
}

// ListTasks retrieves the owner's tasks, newest first. Label ids are joined
// from the association table by the caller.
func (s *Storage) ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + ownerID + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			tasks = append(tasks, taskFromEntity(ent))
		}
	}
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].CreatedAt > tasks[j].CreatedAt })
	return tasks, nil
}

// ListLabels retrieves the owner's labels.
func (s *Storage) ListLabels(ctx context.Context, ownerID string) ([]domain.Label, error) {
	filter := "PartitionKey eq '" + ownerID + "'"
	pager := s.labelTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	labels := []domain.Label{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent labelEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			labels = append(labels, domain.Label{ID: ent.RowKey, Name: ent.Name, Color: domain.LabelColor(ent.Color)})
		}
	}
	return labels, nil
}

// ListTaskLabels retrieves the owner's task-label association rows.
func (s *Storage) ListTaskLabels(ctx context.Context, ownerID string) ([]domain.TaskLabel, error) {
	filter := "PartitionKey eq '" + ownerID + "'"
	pager := s.taskLabelTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	rows := []domain.TaskLabel{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent taskLabelEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			rows = append(rows, domain.TaskLabel{TaskID: ent.TaskID, LabelID: ent.LabelID})
		}
	}
	return rows, nil
}

// InsertTask adds a task row for the owner.
func (s *Storage) InsertTask(ctx context.Context, ownerID string, t domain.Task) error {
	data, err := json.Marshal(taskToEntity(ownerID, t))
	if err != nil {
		return err
	}
	_, err = s.taskTable.AddEntity(ctx, data, nil)
	return err
}

// UpsertTask inserts or replaces a task row for the owner.
func (s *Storage) UpsertTask(ctx context.Context, ownerID string, t domain.Task) error {
	data, err := json.Marshal(taskToEntity(ownerID, t))
	if err != nil {
		return err
	}
	_, err = s.taskTable.UpsertEntity(ctx, data, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}

// UpdateTask merges the changed scalar fields into the task row. Labels are
// association rows and are not written here.
func (s *Storage) UpdateTask(ctx context.Context, ownerID, id string, patch domain.TaskPatch) error {
	props := taskPatchProps(patch)
	if len(props) == 0 {
		return nil
	}
	data, err := mergeEntity(ownerID, id, props)
	if err != nil {
		return err
	}
	_, err = s.taskTable.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{UpdateMode: aztables.UpdateModeMerge})
	return err
}

// DeleteTask removes the task row and its association rows.
func (s *Storage) DeleteTask(ctx context.Context, ownerID, id string) error {
	if _, err := s.taskTable.DeleteEntity(ctx, ownerID, id, nil); err != nil {
		return err
	}
	return s.DeleteTaskLabels(ctx, ownerID, id)
}

// InsertLabels adds label rows for the owner.
func (s *Storage) InsertLabels(ctx context.Context, ownerID string, labels []domain.Label) error {
	for _, l := range labels {
		ent := labelEntity{
			Entity: aztables.Entity{PartitionKey: ownerID, RowKey: l.ID},
			Name:   l.Name,
			Color:  string(l.Color),
		}
		data, err := json.Marshal(ent)
		if err != nil {
			return err
		}
		if _, err := s.labelTable.AddEntity(ctx, data, nil); err != nil {
			return err
		}
	}
	return nil
}

// UpdateLabel merges the changed fields into the label row.
func (s *Storage) UpdateLabel(ctx context.Context, ownerID, id string, patch domain.LabelPatch) error {
	props := map[string]any{}
	if patch.Name != nil {
		props["Name"] = *patch.Name
	}
	if patch.Color != nil {
		props["Color"] = string(*patch.Color)
	}
	if len(props) == 0 {
		return nil
	}
	data, err := mergeEntity(ownerID, id, props)
	if err != nil {
		return err
	}
	_, err = s.labelTable.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{UpdateMode: aztables.UpdateModeMerge})
	return err
}

// DeleteLabel removes the label row. Tasks referencing the label are cleaned
// up by the store in the same transition; stale association rows are dropped
// here so the remote board does not resurrect them on reload.
func (s *Storage) DeleteLabel(ctx context.Context, ownerID, id string) error {
	if _, err := s.labelTable.DeleteEntity(ctx, ownerID, id, nil); err != nil {
		return err
	}
	filter := "PartitionKey eq '" + ownerID + "' and LabelID eq '" + id + "'"
	return s.deleteAssociations(ctx, filter)
}

// InsertTaskLabels adds association rows for the owner.
func (s *Storage) InsertTaskLabels(ctx context.Context, ownerID string, rows []domain.TaskLabel) error {
	for _, r := range rows {
		ent := taskLabelEntity{
			Entity:  aztables.Entity{PartitionKey: ownerID, RowKey: assocRowKey(r)},
			TaskID:  r.TaskID,
			LabelID: r.LabelID,
		}
		data, err := json.Marshal(ent)
		if err != nil {
			return err
		}
		if _, err := s.taskLabelTable.AddEntity(ctx, data, nil); err != nil {
			return err
		}
	}
	return nil
}

// DeleteTaskLabels removes every association row of the given task.
func (s *Storage) DeleteTaskLabels(ctx context.Context, ownerID, taskID string) error {
	filter := "PartitionKey eq '" + ownerID + "' and TaskID eq '" + taskID + "'"
	return s.deleteAssociations(ctx, filter)
}

func (s *Storage) deleteAssociations(ctx context.Context, filter string) error {
	pager := s.taskLabelTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, e := range resp.Entities {
			var ent taskLabelEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return err
			}
			if _, err := s.taskLabelTable.DeleteEntity(ctx, ent.PartitionKey, ent.RowKey, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func taskPatchProps(patch domain.TaskPatch) map[string]any {
	props := map[string]any{}
	if patch.Title != nil {
		props["Title"] = *patch.Title
	}
	if patch.Description != nil {
		props["Description"] = *patch.Description
	}
	if patch.Status != nil {
		props["Status"] = string(*patch.Status)
	}
	if patch.DueDate != nil {
		props["DueDate"] = *patch.DueDate
	}
	return props
}

func mergeEntity(partitionKey, rowKey string, props map[string]any) ([]byte, error) {
	ent := make(map[string]any, len(props)+2)
	for k, v := range props {
		ent[k] = v
	}
	ent["PartitionKey"] = partitionKey
	ent["RowKey"] = rowKey
	return json.Marshal(ent)
}

func assocRowKey(r domain.TaskLabel) string {
	return r.TaskID + "_" + r.LabelID
}
