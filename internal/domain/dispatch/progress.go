package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/zen/pkg/logger"
)

// Stage names. A reputation stage is keyed by its receiver.
const (
	StageHashtag    = "hashtag"
	StageExperience = "xp"
	stageRepPrefix  = "rep/"
	stagePartial    = "partial"
)

// StageReputation names the reputation grant to receiverID.
func StageReputation(receiverID string) string {
	return stageRepPrefix + receiverID
}

func stageKey(eventID, stage string) string {
	return eventID + "#" + stage
}

// progress tracks the stages of one delivery. When a delivery fails part way
// the completed stages are recorded in the processed set next to a partial
// marker, and the redelivery runs only the stages that are missing.
type progress struct {
	eventID   string
	resumed   bool
	skipped   []string
	completed []string
}

func (d *Dispatcher) loadProgress(ctx context.Context, eventID string) (*progress, error) {
	resumed, err := d.processed.Seen(ctx, stageKey(eventID, stagePartial))
	if err != nil {
		return nil, err
	}
	return &progress{eventID: eventID, resumed: resumed}, nil
}

// pending reports whether stage still has to run for this delivery. A stage
// whose state cannot be read is treated as done.
func (d *Dispatcher) pending(ctx context.Context, pr *progress, stage string) bool {
	if !pr.resumed {
		return true
	}
	done, err := d.processed.Seen(ctx, stageKey(pr.eventID, stage))
	if err != nil {
		d.logger.Error(ctx, "failed to read stage state, skipping stage",
			logger.String("event_id", pr.eventID), logger.String("stage", stage), logger.Error(err))
		done = true
	}
	if done {
		pr.skipped = append(pr.skipped, stage)
		return false
	}
	return true
}

func (pr *progress) done(stage string) {
	pr.completed = append(pr.completed, stage)
}

// saveProgress records the completed stages and then the partial marker.
func (d *Dispatcher) saveProgress(ctx context.Context, pr *progress) error {
	var errs []error
	for _, stage := range pr.completed {
		if _, err := d.processed.SeenAndRecord(ctx, stageKey(pr.eventID, stage)); err != nil {
			errs = append(errs, fmt.Errorf("stage %s: %w", stage, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if _, err := d.processed.SeenAndRecord(ctx, stageKey(pr.eventID, stagePartial)); err != nil {
		return fmt.Errorf("stage %s: %w", stagePartial, err)
	}
	return nil
}

// clearProgress drops the stage records of a resumed delivery once the event
// as a whole is processed. The event ID itself stays recorded.
func (d *Dispatcher) clearProgress(ctx context.Context, pr *progress) {
	if !pr.resumed {
		return
	}
	stages := make([]string, 0, len(pr.skipped)+1)
	stages = append(stages, pr.skipped...)
	for _, stage := range append(stages, stagePartial) {
		if err := d.processed.Unrecord(ctx, stageKey(pr.eventID, stage)); err != nil {
			d.logger.Debug(ctx, "failed to clear stage record",
				logger.String("event_id", pr.eventID), logger.String("stage", stage), logger.Error(err))
		}
	}
}
