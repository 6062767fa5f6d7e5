package federation

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"quasiboard/internal/tasks"
)

type outboxBody struct {
	Type         string       `json:"type"`
	TotalItems   int          `json:"totalItems"`
	OrderedItems []tasks.Note `json:"orderedItems"`
}

type outboxOutput struct {
	Body outboxBody
}

func registerOutbox(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "outbox",
		Method:      http.MethodGet,
		Path:        "/quasi-board/outbox",
		Summary:     "OrderedCollection of task Notes",
	}, func(ctx context.Context, _ *struct{}) (*outboxOutput, error) {
		notes := cfg.Tasks.Notes(cfg.Ledger)
		return &outboxOutput{Body: outboxBody{
			Type:         "OrderedCollection",
			TotalItems:   len(notes),
			OrderedItems: notes,
		}}, nil
	})
}

type taskLookupInput struct {
	TaskID string `path:"task_id"`
}

type taskLookupOutput struct {
	Body tasks.Note
}

func registerTaskLookup(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "task-lookup",
		Method:      http.MethodGet,
		Path:        "/quasi-board/tasks/{task_id}",
		Summary:     "Single-task status lookup",
	}, func(ctx context.Context, in *taskLookupInput) (*taskLookupOutput, error) {
		note, ok := cfg.Tasks.ByID(cfg.Ledger, in.TaskID)
		if !ok {
			return nil, newAPIError(http.StatusNotFound, "not_found", "task not found", nil)
		}
		return &taskLookupOutput{Body: note}, nil
	})
}
