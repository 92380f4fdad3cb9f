package service

import (
	"context"
	"fmt"
	"time"

	"ghostwriter/internal/featureflags"
	"ghostwriter/internal/models"
	"ghostwriter/internal/repository"
	"ghostwriter/internal/validation"
)

// PostPublisher sends a post to LinkedIn and records the outcome on it.
// *LinkedInService implements it.
type PostPublisher interface {
	PublishPost(ctx context.Context, post *models.Post, trigger string) error
}

type PostService struct {
	postRepo   repository.PostRepository
	clientRepo repository.ClientRepository
	userRepo   repository.UserRepository
	publisher  PostPublisher
	flags      *featureflags.Manager
	activity   *ActivityService
	now        func() time.Time
}

type CreatePostInput struct {
	UserID      uint
	ClientID    uint
	Content     string
	ScheduledAt *time.Time
}

// UpdatePostInput changes content and/or moves the post to another client.
type UpdatePostInput struct {
	UserID   uint
	PostID   uint
	Content  *string
	ClientID *uint
}

type ListPostsInput struct {
	UserID   uint
	ClientID uint
	Status   string
	Limit    int
	Offset   int
}

func NewPostService(
	postRepo repository.PostRepository,
	clientRepo repository.ClientRepository,
	userRepo repository.UserRepository,
	publisher PostPublisher,
	flags *featureflags.Manager,
	activity *ActivityService,
) *PostService {
	return &PostService{
		postRepo:   postRepo,
		clientRepo: clientRepo,
		userRepo:   userRepo,
		publisher:  publisher,
		flags:      flags,
		activity:   activity,
		now:        utcNow,
	}
}

func (s *PostService) List(ctx context.Context, in ListPostsInput) ([]models.Post, int64, error) {
	if in.Status != "" && !models.IsValidPostStatus(in.Status) {
		return nil, 0, models.NewValidationError("Invalid status")
	}
	_, scope, err := loadScope(ctx, s.userRepo, in.UserID)
	if err != nil {
		return nil, 0, err
	}
	return s.postRepo.List(ctx, scope, repository.PostFilter{
		ClientID: in.ClientID,
		Status:   in.Status,
		Limit:    in.Limit,
		Offset:   in.Offset,
	})
}

func (s *PostService) Get(ctx context.Context, userID, postID uint) (*models.Post, error) {
	_, scope, err := loadScope(ctx, s.userRepo, userID)
	if err != nil {
		return nil, err
	}
	return s.postRepo.GetVisible(ctx, postID, scope)
}

func (s *PostService) Create(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	if err := validation.ValidatePostContent(in.Content); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if in.ClientID == 0 {
		return nil, models.NewValidationError("client_id is required")
	}
	if in.ScheduledAt != nil && !in.ScheduledAt.After(s.now()) {
		return nil, models.NewValidationError("Scheduled time must be in the future")
	}

	_, scope, err := loadScope(ctx, s.userRepo, in.UserID)
	if err != nil {
		return nil, err
	}
	client, err := s.clientRepo.GetVisible(ctx, in.ClientID, scope)
	if err != nil {
		return nil, err
	}

	post := &models.Post{
		ClientID: client.ID,
		UserID:   in.UserID,
		Content:  in.Content,
		Status:   models.PostStatusDraft,
	}
	activityType, message := models.ActivityPostCreated, "Drafted a post for "+client.Name
	if in.ScheduledAt != nil {
		at := in.ScheduledAt.UTC()
		post.Status = models.PostStatusScheduled
		post.ScheduledAt = &at
		activityType, message = models.ActivityPostScheduled, "Scheduled a post for "+client.Name
	}

	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, err
	}
	post.Client = client

	s.activity.Record(ctx, in.UserID, activityType, message,
		map[string]any{"post_id": post.ID, "client_id": client.ID})
	invalidateOverviews(ctx, s.userRepo, in.UserID, client)
	return post, nil
}

func (s *PostService) Update(ctx context.Context, in UpdatePostInput) (*models.Post, error) {
	_, scope, err := loadScope(ctx, s.userRepo, in.UserID)
	if err != nil {
		return nil, err
	}
	post, err := s.postRepo.GetVisible(ctx, in.PostID, scope)
	if err != nil {
		return nil, err
	}
	if post.Status == models.PostStatusPublished {
		return nil, models.NewValidationError("Published posts cannot be edited")
	}

	if in.Content != nil {
		if err := validation.ValidatePostContent(*in.Content); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		post.Content = *in.Content
	}
	if in.ClientID != nil && *in.ClientID != post.ClientID {
		client, err := s.clientRepo.GetVisible(ctx, *in.ClientID, scope)
		if err != nil {
			return nil, err
		}
		post.ClientID = client.ID
		post.Client = client
	}

	if err := s.postRepo.Update(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *PostService) Delete(ctx context.Context, userID, postID uint) error {
	post, err := s.Get(ctx, userID, postID)
	if err != nil {
		return err
	}
	if err := s.postRepo.Delete(ctx, post.ID); err != nil {
		return err
	}
	invalidateOverviews(ctx, s.userRepo, userID, post.Client)
	return nil
}

// Schedule sets or moves the post's publish time.
func (s *PostService) Schedule(ctx context.Context, userID, postID uint, at time.Time) (*models.Post, error) {
	post, err := s.Get(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	if post.Status == models.PostStatusPublished {
		return nil, models.NewValidationError("Published posts cannot be scheduled")
	}
	if !at.After(s.now()) {
		return nil, models.NewValidationError("Scheduled time must be in the future")
	}
	if post.Status != models.PostStatusScheduled && !models.CanTransition(post.Status, models.PostStatusScheduled) {
		return nil, models.NewValidationError(fmt.Sprintf("Cannot schedule a %s post", post.Status))
	}

	at = at.UTC()
	post.Status = models.PostStatusScheduled
	post.ScheduledAt = &at
	post.FailureReason = ""
	if err := s.postRepo.Update(ctx, post); err != nil {
		return nil, err
	}

	s.activity.Record(ctx, userID, models.ActivityPostScheduled, "Scheduled a post",
		map[string]any{"post_id": post.ID, "scheduled_at": at})
	return post, nil
}

// Unschedule returns a scheduled post to draft.
func (s *PostService) Unschedule(ctx context.Context, userID, postID uint) (*models.Post, error) {
	post, err := s.Get(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	if post.Status == models.PostStatusPublished {
		return nil, models.NewValidationError("Published posts cannot be unscheduled")
	}
	if post.Status != models.PostStatusScheduled {
		return nil, models.NewValidationError("Post is not scheduled")
	}

	post.Status = models.PostStatusDraft
	post.ScheduledAt = nil
	if err := s.postRepo.Update(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// Publish sends a visible post to LinkedIn now.
func (s *PostService) Publish(ctx context.Context, userID, postID uint) (*models.Post, error) {
	post, err := s.Get(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	if post.Status == models.PostStatusPublished {
		return nil, models.NewValidationError("Post is already published")
	}
	if !s.flags.Allows(featureflags.LinkedInPublish, userID) {
		return nil, models.NewForbiddenError("LinkedIn publishing is disabled for this account")
	}

	if err := s.publisher.PublishPost(ctx, post, TriggerManual); err != nil {
		return nil, err
	}
	return post, nil
}
