package techstock

import (
	"context"
	"fmt"
	"log"
	"net/http"
)

// HandleEvent routes a scheduled trigger. The Qiita import event always
// yields a TriggerResponse: import failures are reported in it with status
// 500 rather than returned as errors. Any other payload returns
// ErrUnknownEvent.
func (e *Engine) HandleEvent(ctx context.Context, ev Event) (*TriggerResponse, error) {
	if ev.Source != EventSourceScheduler || ev.Action != EventActionFetchQiita {
		return nil, fmt.Errorf("%w: source=%q action=%q", ErrUnknownEvent, ev.Source, ev.Action)
	}

	log.Printf("techstock: scheduled %s", ev.Action)
	result, err := e.ImportQiita(ctx)
	if err != nil {
		log.Printf("techstock: qiita import failed: %v", err)
		return &TriggerResponse{
			StatusCode: http.StatusInternalServerError,
			Success:    false,
			Message:    "Failed to fetch Qiita articles",
		}, nil
	}

	return &TriggerResponse{
		StatusCode: http.StatusOK,
		Success:    true,
		Message:    "Fetched Qiita articles",
		Data:       result,
	}, nil
}
