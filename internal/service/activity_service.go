package service

import (
	"context"
	"log/slog"

	"ghostwriter/internal/models"
	"ghostwriter/internal/repository"
)

// ActivityService appends to and reads the per-user activity feed.
type ActivityService struct {
	activityRepo repository.ActivityRepository
	publisher    EventPublisher
}

func NewActivityService(activityRepo repository.ActivityRepository, publisher EventPublisher) *ActivityService {
	return &ActivityService{activityRepo: activityRepo, publisher: publisher}
}

// Record stores an activity and publishes it to the user's channel. The feed
// is secondary to the action that produced it, so failures are only logged.
func (s *ActivityService) Record(ctx context.Context, userID uint, activityType, message string, meta map[string]any) {
	if s == nil || s.activityRepo == nil {
		return
	}

	activity := &models.Activity{UserID: userID, Type: activityType, Message: message}
	if err := activity.SetMetadata(meta); err != nil {
		slog.WarnContext(ctx, "activity metadata dropped", slog.String("type", activityType), slog.String("error", err.Error()))
	}
	if err := s.activityRepo.Create(ctx, activity); err != nil {
		slog.WarnContext(ctx, "failed to record activity",
			slog.Uint64("user_id", uint64(userID)),
			slog.String("type", activityType),
			slog.String("error", err.Error()))
		return
	}

	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishEvent(ctx, userID, "activity", activity); err != nil {
		slog.WarnContext(ctx, "failed to publish activity", slog.String("type", activityType), slog.String("error", err.Error()))
	}
}

func (s *ActivityService) List(ctx context.Context, userID uint, limit, offset int) ([]models.Activity, int64, error) {
	return s.activityRepo.ListByUser(ctx, userID, limit, offset)
}
