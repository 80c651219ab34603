package orchestration

import (
	"context"

	"github.com/tripsmith-ai/tripsmith/core"
	"github.com/tripsmith-ai/tripsmith/media"
	"github.com/tripsmith-ai/tripsmith/storage"
)

// TaskTypeMediaGenerate identifies background media rendering tasks.
const TaskTypeMediaGenerate = "media.generate"

// NewMediaTaskHandler builds the handler that renders poster and video
// assets for a finished plan. The production result lands on the task
// record either way; attaching it to a saved itinerary is best effort,
// keyed by the task id, and a missing row is success rather than an
// error so redelivered and orphaned tasks stay harmless. A nil
// itinerary store skips the back-fill entirely.
func NewMediaTaskHandler(director *media.Director, itineraries storage.ItineraryStore, logger core.Logger) core.TaskHandler {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cl, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cl.WithComponent("planner/orchestration")
	}

	return func(ctx context.Context, task *core.Task, reporter core.ProgressReporter) error {
		req, err := media.ParseRequest(task.Input)
		if err != nil {
			return &core.TaskError{
				Code:    core.TaskErrorCodeInvalidInput,
				Message: err.Error(),
			}
		}

		reporter.Report(&core.TaskProgress{
			CurrentStep: 1,
			TotalSteps:  2,
			StepName:    "Rendering media",
			Percentage:  10,
		})

		assets, err := director.Produce(ctx, req)
		if err != nil {
			return err
		}
		task.Result = assets.Result()

		reporter.Report(&core.TaskProgress{
			CurrentStep: 2,
			TotalSteps:  2,
			StepName:    "Attaching media",
			Percentage:  90,
		})

		if itineraries == nil {
			return nil
		}
		attachment := storage.MediaAttachment{
			PosterURL: assets.PosterURL,
			VideoURL:  assets.VideoURL,
			Assets:    assets.Result(),
		}
		if err := itineraries.AttachMediaByTask(ctx, task.ID, attachment); err != nil {
			logger.Warn("Itinerary media back-fill failed, result stays on the task", map[string]interface{}{
				"operation": "media_backfill",
				"task_id":   task.ID,
				"error":     err.Error(),
			})
		}
		return nil
	}
}
