package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"ghostwriter/internal/billing"
	"ghostwriter/internal/models"
	"ghostwriter/internal/observability"
	"ghostwriter/internal/repository"

	"github.com/stripe/stripe-go/v79"
)

// Stripe subscription statuses stored on the user.
const (
	SubscriptionActive   = "active"
	SubscriptionPastDue  = "past_due"
	SubscriptionCanceled = "canceled"
)

type BillingService struct {
	gateway       billing.Gateway
	catalog       *billing.Catalog
	userRepo      repository.UserRepository
	webhookRepo   repository.WebhookEventRepository
	mailer        Mailer
	activity      *ActivityService
	webhookSecret string
	appBaseURL    string
	now           func() time.Time
	runAsync      asyncRunner
}

// BillingDeps wires a BillingService. A nil Gateway disables checkout and portal.
type BillingDeps struct {
	Gateway       billing.Gateway
	Catalog       *billing.Catalog
	Users         repository.UserRepository
	Webhooks      repository.WebhookEventRepository
	Mailer        Mailer
	Activity      *ActivityService
	WebhookSecret string
	AppBaseURL    string
}

// Subscription is the caller's billing state.
type Subscription struct {
	Plan             string     `json:"plan"`
	Status           string     `json:"status"`
	CurrentPeriodEnd *time.Time `json:"current_period_end"`
}

func NewBillingService(deps BillingDeps) *BillingService {
	return &BillingService{
		gateway:       deps.Gateway,
		catalog:       deps.Catalog,
		userRepo:      deps.Users,
		webhookRepo:   deps.Webhooks,
		mailer:        deps.Mailer,
		activity:      deps.Activity,
		webhookSecret: deps.WebhookSecret,
		appBaseURL:    deps.AppBaseURL,
		now:           utcNow,
		runAsync:      runInBackground,
	}
}

func (s *BillingService) Plans() []billing.Plan {
	return s.catalog.Plans()
}

func (s *BillingService) Subscription(ctx context.Context, userID uint) (*Subscription, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Subscription{
		Plan:             user.EffectivePlan(),
		Status:           user.SubscriptionStatus,
		CurrentPeriodEnd: user.CurrentPeriodEnd,
	}, nil
}

// errBillingDisabled reports a missing Stripe key as a client error that
// still matches billing.ErrNotConfigured.
func errBillingDisabled() error {
	return &models.AppError{
		Code:    models.CodeValidation,
		Message: "Billing is not configured",
		Err:     billing.ErrNotConfigured,
	}
}

// Checkout starts a subscription checkout for a paid plan and returns its URL.
func (s *BillingService) Checkout(ctx context.Context, userID uint, planID string) (string, error) {
	if s.gateway == nil {
		return "", errBillingDisabled()
	}
	plan, ok := s.catalog.Get(planID)
	if !ok || !plan.Purchasable() {
		return "", models.NewValidationError("Invalid plan")
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}

	if user.StripeCustomerID == "" {
		customerID, err := s.gateway.CreateCustomer(ctx, user.ID, user.Email, user.Name)
		if err != nil {
			return "", models.NewUpstreamError("Could not create billing account", err)
		}
		user.StripeCustomerID = customerID
		if err := s.userRepo.Update(ctx, user); err != nil {
			return "", err
		}
	}

	checkoutURL, err := s.gateway.CreateCheckoutSession(ctx, billing.CheckoutInput{
		CustomerID: user.StripeCustomerID,
		UserID:     user.ID,
		Plan:       plan,
		SuccessURL: s.appBaseURL + "/billing?checkout=success",
		CancelURL:  s.appBaseURL + "/billing?checkout=canceled",
	})
	if err != nil {
		return "", models.NewUpstreamError("Could not start checkout", err)
	}
	return checkoutURL, nil
}

// Portal returns a customer portal URL for managing the subscription.
func (s *BillingService) Portal(ctx context.Context, userID uint) (string, error) {
	if s.gateway == nil {
		return "", errBillingDisabled()
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.StripeCustomerID == "" {
		return "", models.NewValidationError("No billing account found")
	}

	portalURL, err := s.gateway.CreatePortalSession(ctx, user.StripeCustomerID, s.appBaseURL+"/billing")
	if err != nil {
		return "", models.NewUpstreamError("Could not open billing portal", err)
	}
	return portalURL, nil
}

// HandleWebhook verifies a Stripe delivery, logs it and reconciles the
// user's subscription fields. Nothing is written unless the signature matches.
func (s *BillingService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	ev, err := billing.ParseWebhook(payload, signature, s.webhookSecret)
	if err != nil {
		observability.WebhookEvents.WithLabelValues(models.WebhookSourceStripe, observability.ResultRejected).Inc()
		return nil, models.NewValidationError("Invalid signature")
	}

	event, err := s.webhookRepo.Record(ctx, &models.WebhookEvent{
		Source:     models.WebhookSourceStripe,
		ExternalID: ev.ID,
		EventType:  string(ev.Type),
		Payload:    string(payload),
	})
	if err != nil {
		return nil, err
	}
	if event.Processed {
		observability.WebhookEvents.WithLabelValues(models.WebhookSourceStripe, observability.ResultDuplicate).Inc()
		return &WebhookResult{Received: true, Duplicate: true}, nil
	}

	if err := s.dispatch(ctx, ev); err != nil {
		observability.WebhookEvents.WithLabelValues(models.WebhookSourceStripe, observability.ResultError).Inc()
		slog.ErrorContext(ctx, "stripe webhook failed",
			slog.String("event_id", ev.ID),
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()))
		if markErr := s.webhookRepo.MarkFailed(ctx, event.ID, err.Error()); markErr != nil {
			slog.ErrorContext(ctx, "failed to record webhook error", slog.String("error", markErr.Error()))
		}
		return nil, models.NewInternalError(err)
	}

	if err := s.webhookRepo.MarkProcessed(ctx, event.ID, s.now()); err != nil {
		return nil, err
	}
	observability.WebhookEvents.WithLabelValues(models.WebhookSourceStripe, observability.ResultOK).Inc()
	return &WebhookResult{Received: true}, nil
}

func (s *BillingService) dispatch(ctx context.Context, ev stripe.Event) error {
	if ev.Data == nil {
		return nil
	}
	switch string(ev.Type) {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
			return fmt.Errorf("decode checkout session: %w", err)
		}
		return s.checkoutCompleted(ctx, &sess)

	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return s.subscriptionChanged(ctx, &sub)

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return s.subscriptionDeleted(ctx, &sub)

	case "invoice.payment_failed", "invoice.payment_succeeded":
		var inv stripe.Invoice
		if err := json.Unmarshal(ev.Data.Raw, &inv); err != nil {
			return fmt.Errorf("decode invoice: %w", err)
		}
		return s.invoicePaid(ctx, &inv, string(ev.Type) == "invoice.payment_succeeded")
	}
	return nil
}

func (s *BillingService) checkoutCompleted(ctx context.Context, sess *stripe.CheckoutSession) error {
	id, err := strconv.ParseUint(sess.ClientReferenceID, 10, 32)
	if err != nil || id == 0 {
		slog.WarnContext(ctx, "checkout session without user reference", slog.String("session_id", sess.ID))
		return nil
	}
	user, err := s.userRepo.GetByID(ctx, uint(id))
	if err != nil {
		if models.ErrorCode(err) == models.CodeNotFound {
			slog.WarnContext(ctx, "checkout session for unknown user", slog.Uint64("user_id", id))
			return nil
		}
		return err
	}

	previous := user.EffectivePlan()
	if sess.Customer != nil && sess.Customer.ID != "" {
		user.StripeCustomerID = sess.Customer.ID
	}
	if sess.Subscription != nil && sess.Subscription.ID != "" {
		user.StripeSubscriptionID = sess.Subscription.ID
	}
	if plan, ok := s.catalog.Get(sess.Metadata["plan"]); ok {
		user.Plan = plan.ID
	}
	user.SubscriptionStatus = SubscriptionActive

	if err := s.userRepo.Update(ctx, user); err != nil {
		return err
	}
	s.recordPlanChange(ctx, user, previous)
	return nil
}

func (s *BillingService) userByCustomer(ctx context.Context, customer *stripe.Customer) (*models.User, error) {
	if customer == nil || customer.ID == "" {
		return nil, nil
	}
	user, err := s.userRepo.GetByStripeCustomerID(ctx, customer.ID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		slog.WarnContext(ctx, "stripe event for unknown customer", slog.String("customer_id", customer.ID))
	}
	return user, nil
}

func (s *BillingService) subscriptionChanged(ctx context.Context, sub *stripe.Subscription) error {
	user, err := s.userByCustomer(ctx, sub.Customer)
	if err != nil || user == nil {
		return err
	}

	previous := user.EffectivePlan()
	user.StripeSubscriptionID = sub.ID
	user.SubscriptionStatus = string(sub.Status)
	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		user.CurrentPeriodEnd = &end
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item == nil || item.Price == nil {
				continue
			}
			if plan, ok := s.catalog.ForPrice(item.Price.ID); ok {
				user.Plan = plan.ID
				break
			}
		}
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return err
	}
	s.recordPlanChange(ctx, user, previous)
	return nil
}

func (s *BillingService) subscriptionDeleted(ctx context.Context, sub *stripe.Subscription) error {
	user, err := s.userByCustomer(ctx, sub.Customer)
	if err != nil || user == nil {
		return err
	}

	previous := user.EffectivePlan()
	user.Plan = models.PlanFree
	user.SubscriptionStatus = SubscriptionCanceled
	user.StripeSubscriptionID = ""

	if err := s.userRepo.Update(ctx, user); err != nil {
		return err
	}
	s.recordPlanChange(ctx, user, previous)
	return nil
}

func (s *BillingService) invoicePaid(ctx context.Context, inv *stripe.Invoice, succeeded bool) error {
	user, err := s.userByCustomer(ctx, inv.Customer)
	if err != nil || user == nil {
		return err
	}

	if succeeded {
		user.SubscriptionStatus = SubscriptionActive
	} else {
		user.SubscriptionStatus = SubscriptionPastDue
	}
	if err := s.userRepo.Update(ctx, user); err != nil {
		return err
	}

	if !succeeded && s.mailer != nil {
		to, name, plan := user.Email, user.Name, user.EffectivePlan()
		s.runAsync(ctx, "payment_failed_email", func(ctx context.Context) error {
			return s.mailer.SendPaymentFailed(ctx, to, name, plan)
		})
	}
	return nil
}

func (s *BillingService) recordPlanChange(ctx context.Context, user *models.User, previous string) {
	current := user.EffectivePlan()
	if current == previous {
		return
	}
	s.activity.Record(ctx, user.ID, models.ActivityPlanChanged,
		fmt.Sprintf("Plan changed from %s to %s", previous, current),
		map[string]any{"from": previous, "to": current})
}
