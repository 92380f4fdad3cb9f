// Package service holds the business rules between HTTP handlers and repositories.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"ghostwriter/internal/cache"
	"ghostwriter/internal/email"
	"ghostwriter/internal/models"
	"ghostwriter/internal/repository"
)

// Mailer sends the product's transactional emails. *email.Mailer implements it.
type Mailer interface {
	SendVerification(ctx context.Context, to, name, token string) error
	SendPasswordReset(ctx context.Context, to, name, token string) error
	SendAgencyInvite(ctx context.Context, to, inviterName, agencyName, token string) error
	SendPaymentFailed(ctx context.Context, to, name, plan string) error
	SendWeeklyDigest(ctx context.Context, to string, d email.Digest) error
}

// EventPublisher fans events out to live subscribers. *notifications.Notifier implements it.
type EventPublisher interface {
	PublishEvent(ctx context.Context, userID uint, eventType string, payload any) error
}

// ItemResult is the outcome of one item in a batch job.
type ItemResult struct {
	PostID  uint   `json:"post_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// WebhookResult acknowledges a webhook delivery.
type WebhookResult struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// asyncRunner runs fn outside the request.
type asyncRunner func(ctx context.Context, task string, fn func(context.Context) error)

const backgroundTimeout = 30 * time.Second

// runInBackground detaches fn from the request lifetime and logs its failure.
func runInBackground(ctx context.Context, task string, fn func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, backgroundTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			slog.WarnContext(ctx, "background task failed",
				slog.String("task", task),
				slog.String("error", err.Error()))
		}
	}()
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// newToken returns a 64 character random hex token.
func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", models.NewInternalError(err)
	}
	return hex.EncodeToString(b), nil
}

// loadScope returns the user and the visibility scope they query with.
func loadScope(ctx context.Context, users repository.UserRepository, userID uint) (*models.User, repository.Scope, error) {
	user, err := users.GetByID(ctx, userID)
	if err != nil {
		return nil, repository.Scope{}, err
	}
	return user, repository.ScopeFor(user), nil
}

// invalidateOverviews drops cached overviews that include client: the
// actor's, plus every member's when the client is shared with an agency.
// client may be nil.
func invalidateOverviews(ctx context.Context, users repository.UserRepository, actorID uint, client *models.Client) {
	if cache.GetClient() == nil {
		return
	}
	ids := []uint{actorID}
	if client != nil {
		ids = append(ids, client.UserID)
		if client.AgencyID != nil {
			members, err := users.ListIDsByAgency(ctx, *client.AgencyID)
			if err != nil {
				slog.WarnContext(ctx, "overview invalidation limited to actor",
					slog.Uint64("agency_id", uint64(*client.AgencyID)), slog.String("error", err.Error()))
			}
			ids = append(ids, members...)
		}
	}
	cache.InvalidateOverview(ctx, ids...)
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// excerpt shortens s to at most n runes.
func excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "…"
}
