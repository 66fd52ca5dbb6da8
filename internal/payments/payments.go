// Package payments sells plans through a hosted checkout. Credits are granted
// once per paid session, when the buyer polls its status.
package payments

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/illegalcall/brainyx/internal/apperr"
	"github.com/illegalcall/brainyx/internal/billing"
	"github.com/illegalcall/brainyx/internal/models"
	"github.com/illegalcall/brainyx/internal/repository"
)

const PaymentStatusPaid = "paid"

const (
	msgInvalidOrigin   = "origin_url no válido"
	msgSessionNotFound = "Sesión de pago no encontrada"
	msgUnavailable     = "Pagos no disponibles"
)

// Session is the provider-neutral view of a checkout session.
type Session struct {
	ID            string
	URL           string
	Status        string
	PaymentStatus string
	UserID        string
	PlanID        string
}

type Checkout interface {
	CreateSession(ctx context.Context, user *models.User, plan models.Plan, successURL, cancelURL string) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
}

type Service struct {
	checkout Checkout
	billing  *billing.Service
	records  repository.RecordStore
	now      func() time.Time
}

// NewService returns a Service. A nil checkout makes every call report the
// feature as unavailable.
func NewService(checkout Checkout, billingSvc *billing.Service, records repository.RecordStore) *Service {
	return &Service{checkout: checkout, billing: billingSvc, records: records, now: time.Now}
}

func (s *Service) Enabled() bool {
	return s.checkout != nil
}

func (s *Service) CreateCheckout(ctx context.Context, user *models.User, req models.CheckoutRequest) (*models.CheckoutResponse, error) {
	if !s.Enabled() {
		return nil, apperr.Unavailable(msgUnavailable)
	}

	plan, err := billing.LookupPlan(req.PlanID)
	if err != nil {
		return nil, err
	}

	origin, err := parseOrigin(req.OriginURL)
	if err != nil {
		return nil, err
	}
	successURL := origin + "/settings?session_id={CHECKOUT_SESSION_ID}"
	cancelURL := origin + "/settings"

	sess, err := s.checkout.CreateSession(ctx, user, plan, successURL, cancelURL)
	if err != nil {
		return nil, err
	}

	slog.Info("Checkout session created", "user_id", user.ID, "plan", plan.ID, "session_id", sess.ID)
	return &models.CheckoutResponse{URL: sess.URL, SessionID: sess.ID}, nil
}

// Status reports a checkout session and grants its plan the first time the
// session is seen paid.
func (s *Service) Status(ctx context.Context, user *models.User, sessionID string) (*models.CheckoutStatusResponse, error) {
	if !s.Enabled() {
		return nil, apperr.Unavailable(msgUnavailable)
	}

	sess, err := s.checkout.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != user.ID {
		return nil, apperr.NotFound(msgSessionNotFound)
	}

	resp := &models.CheckoutStatusResponse{
		Status:        sess.Status,
		PaymentStatus: sess.PaymentStatus,
		Credits:       user.Credits,
	}
	if sess.PaymentStatus != PaymentStatusPaid {
		return resp, nil
	}

	plan, err := billing.LookupPlan(sess.PlanID)
	if err != nil {
		return nil, fmt.Errorf("checkout session %s has unknown plan %q: %w", sess.ID, sess.PlanID, err)
	}

	first, err := s.records.MarkCheckoutApplied(ctx, sess.ID, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to record checkout session: %w", err)
	}
	if !first {
		return resp, nil
	}

	balance, err := s.billing.Grant(ctx, user.ID, plan, models.TransactionSourceStripe, sess.ID)
	if err != nil {
		return nil, err
	}
	user.Credits = balance
	user.Plan = plan.ID
	resp.Credits = balance
	return resp, nil
}

func parseOrigin(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", apperr.BadRequest(msgInvalidOrigin)
	}
	return u.Scheme + "://" + u.Host, nil
}
