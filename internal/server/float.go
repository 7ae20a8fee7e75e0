package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"tasktimer/internal/surface"
)

// registerFloat exposes the secondary surface: a server-sent event stream
// of surface messages and the stop control it may send back.
func registerFloat(api huma.API, s *surface.Sync) {
	sse.Register(api, huma.Operation{
		OperationID: "float-events",
		Method:      http.MethodGet,
		Path:        "/float/events",
		Summary:     "Stream surface messages for a floating timer",
	}, map[string]any{
		"message": surface.Message{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		ch, cancel := s.Attach()
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				if err := send.Data(m); err != nil {
					return
				}
			}
		}
	})

	huma.Register(api, huma.Operation{
		OperationID: "float-stop",
		Method:      http.MethodPost,
		Path:        "/float/stop",
		Summary:     "Stop the task shown by the floating timer",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body FloatStopRequest `json:"body"`
	}) (*timerOutput, error) {
		snap, err := s.StopGeneration(ctx, input.Body.Generation, input.Body.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &timerOutput{Body: timerResponse(snap)}, nil
	})
}
