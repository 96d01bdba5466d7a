package extraction

import (
	"context"

	"github.com/msc-platform/ivr/pkg/common/logger"
	"github.com/msc-platform/ivr/pkg/common/models"
)

// Invalidator drops cached fact maps when the portal reports an episode or
// one of its product requests changed.
type Invalidator struct {
	extractor *Extractor
}

func NewInvalidator(extractor *Extractor) *Invalidator {
	return &Invalidator{extractor: extractor}
}

// Handle is a kafka.EventHandler.
func (i *Invalidator) Handle(ctx context.Context, event models.Event) error {
	switch event.Type {
	case models.EventEpisodeUpdated, models.EventProductRequestUpdated:
	default:
		return nil
	}

	episodeID := models.Stringify(event.Data["episode_id"])
	if episodeID == "" {
		logger.Log.WithField("event_id", event.ID).Warn("Change event without episode_id")
		return nil
	}
	return i.extractor.ClearCache(ctx, episodeID)
}
