package api

import (
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskflow-api/domain"
)

const requestMaxSize = 64 * 1024 // 64 KiB

// TaskLister supplies the filtered task list for the board read path.
type TaskLister interface {
	Tasks() []domain.Task
}

// Register wires up all API routes on the provided Echo instance. A nil auth
// serves the board as a guest session without any token checks; otherwise
// requests must carry a token whose subject matches ownerID.
func Register(e *echo.Echo, board Board, view TaskLister, auth Authenticator, ownerID string, logger *log.Logger) {
	e.GET("/healthz", healthz())
	e.GET("/api/board", getBoard(board, auth, ownerID, logger))
	e.GET("/api/tasks", getTasks(view, auth, ownerID))
	e.PUT("/api/filters", putFilters(board, auth, ownerID))

	e.POST("/api/tasks", postTask(board, auth, ownerID))
	e.PUT("/api/tasks/:id", putTask(board, auth, ownerID))
	e.DELETE("/api/tasks/:id", deleteTask(board, auth, ownerID))
	e.POST("/api/tasks/:id/move", postMove(board, auth, ownerID))
	e.POST("/api/tasks/:id/restore", postRestore(board, auth, ownerID))

	e.POST("/api/labels", postLabel(board, auth, ownerID))
	e.PUT("/api/labels/:id", putLabel(board, auth, ownerID))
	e.DELETE("/api/labels/:id", deleteLabel(board, auth, ownerID))
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

// authorize verifies the caller owns this board. Guest sessions (nil auth)
// pass unconditionally.
func authorize(c echo.Context, auth Authenticator, ownerID string) error {
	if auth == nil {
		return nil
	}
	sub, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	if ownerID != "" && sub != ownerID {
		return echo.NewHTTPError(http.StatusForbidden, "not your board")
	}
	return nil
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, requestMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	return nil
}

func getBoard(board Board, auth Authenticator, ownerID string, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newBoardRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		authErr := authorize(c, auth, ownerID)
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = authErr
			return err
		}

		state := board.State()
		metrics.SetTasksReturned(len(state.Tasks))
		metrics.SetLabelsReturned(len(state.Labels))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, state)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

func getTasks(view TaskLister, auth Authenticator, ownerID string) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := authorize(c, auth, ownerID); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, tasksResponse{Tasks: view.Tasks()})
	}
}

func putFilters(board Board, auth Authenticator, ownerID string) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := authorize(c, auth, ownerID); err != nil {
			return err
		}
		var patch domain.FilterPatch
		if err := decodeBody(c, &patch); err != nil {
			return err
		}
		if patch.When != nil && !patch.When.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid when value")
		}
		board.SetFilters(patch)
		return c.JSON(http.StatusOK, board.Filters())
	}
}

func postTask(board Board, auth Authenticator, ownerID string) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := authorize(c, auth, ownerID); err != nil {
			return err
		}
		var draft domain.TaskDraft
		if err := decodeBody(c, &draft); err != nil {
			return err
		}
		if draft.Title == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "missing title")
		}
		if draft.Status == "" {
			draft.Status = domain.StatusBacklog
		}
		if !draft.Status.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
		}
		t := board.AddTask(draft)
		return c.JSON(http.StatusCreated, t)
	}
}

func putTask(board Board, auth Authenticator, ownerID string) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := authorize(c, auth, ownerID); err != nil {
			return err
		}
		var patch domain.TaskPatch
		if err := decodeBody(c, &patch); err != nil {
			return err
		}
		if patch.Status != nil && !patch.Status.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
		}
		if !board.UpdateTask(c.Param("id"), patch) {
			return echo.NewHTTPError(http.StatusNotFound, "no such task")
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteTask(board Board, auth Authenticator, ownerID string) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := authorize(c, auth, ownerID); err != nil {
			return err
		}
		if !board.DeleteTask(c.Param("id")) {
			return echo.NewHTTPError(http.StatusNotFound, "no such task")
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type moveRequest struct {
	Status domain.Status `json:"status"`
	Index  *int          `json:"index,omitempty"`
}

func postMove(board Board, auth Authenticator, ownerID string) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := authorize(c, auth, ownerID); err != nil {
			return err
		}
		var req moveRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		if !req.Status.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
		}
		index := -1
		if req.Index != nil {
			index = *req.Index
		}
		if !board.MoveTask(c.Param("id"), req.Status, index) {
			return echo.NewHTTPError(http.StatusNotFound, "no such task")
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type restoreRequest struct {
	Task  domain.Task `json:"task"`
	Index *int        `json:"index,omitempty"`
}

func postRestore(board Board, auth Authenticator, ownerID string) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := authorize(c, auth, ownerID); err != nil {
			return err
		}
		var req restoreRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		if req.Task.ID == "" || req.Task.ID != c.Param("id") {
			return echo.NewHTTPError(http.StatusBadRequest, "task id mismatch")
		}
		index := -1
		if req.Index != nil {
			index = *req.Index
		}
		board.RestoreTask(req.Task, index)
		return c.NoContent(http.StatusNoContent)
	}
}

type labelRequest struct {
	Name  string            `json:"name"`
	Color domain.LabelColor `json:"color"`
}

func postLabel(board Board, auth Authenticator, ownerID string) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := authorize(c, auth, ownerID); err != nil {
			return err
		}
		var req labelRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		if req.Name == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "missing name")
		}
		if !req.Color.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid color")
		}
		l := board.AddLabel(req.Name, req.Color)
		return c.JSON(http.StatusCreated, l)
	}
}

func putLabel(board Board, auth Authenticator, ownerID string) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := authorize(c, auth, ownerID); err != nil {
			return err
		}
		var patch domain.LabelPatch
		if err := decodeBody(c, &patch); err != nil {
			return err
		}
		if patch.Color != nil && !patch.Color.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid color")
		}
		if !board.UpdateLabel(c.Param("id"), patch) {
			return echo.NewHTTPError(http.StatusNotFound, "no such label")
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteLabel(board Board, auth Authenticator, ownerID string) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := authorize(c, auth, ownerID); err != nil {
			return err
		}
		if !board.DeleteLabel(c.Param("id")) {
			return echo.NewHTTPError(http.StatusNotFound, "no such label")
		}
		return c.NoContent(http.StatusNoContent)
	}
}
