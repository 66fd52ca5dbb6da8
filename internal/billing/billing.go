// Package billing holds the plan catalog and the credit ledger operations.
package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/illegalcall/brainyx/internal/apperr"
	"github.com/illegalcall/brainyx/internal/audit"
	"github.com/illegalcall/brainyx/internal/metrics"
	"github.com/illegalcall/brainyx/internal/models"
	"github.com/illegalcall/brainyx/internal/repository"
)

const (
	PlanPromocion = "promocion"
	PlanEstandar  = "estandar"
	PlanPremium   = "premium"
)

const (
	msgInvalidPlan = "Plan no válido"
	msgNoCredits   = "Saldo agotado. Compra un plan para recargar créditos"
)

var catalog = []models.Plan{
	{ID: PlanPromocion, Name: "Plan Promoción", Price: 250, Credits: 50000, Description: "Ideal para proyectos pequeños y pruebas."},
	{ID: PlanEstandar, Name: "Plan Estándar", Price: 400, Credits: 100000, Description: "Para uso regular y proyectos medianos."},
	{ID: PlanPremium, Name: "Plan Premium", Price: 500, Credits: 200000, Description: "Uso profesional e ilimitado."},
}

// Plans returns the catalog keyed by plan id.
func Plans() map[string]models.Plan {
	plans := make(map[string]models.Plan, len(catalog))
	for _, p := range catalog {
		plans[p.ID] = p
	}
	return plans
}

func LookupPlan(id string) (models.Plan, error) {
	for _, p := range catalog {
		if p.ID == id {
			return p, nil
		}
	}
	return models.Plan{}, apperr.BadRequest(msgInvalidPlan)
}

// Debit is the ledger rule every store applies atomically.
func Debit(balance, amount int64) int64 {
	if amount >= balance {
		return 0
	}
	return balance - amount
}

// Gate rejects credit-consuming work once the balance is exhausted.
func Gate(user *models.User) error {
	if user.Credits <= 0 {
		return apperr.PaymentRequired(msgNoCredits)
	}
	return nil
}

type Service struct {
	store    repository.UserStore
	recorder *audit.Recorder
	now      func() time.Time
}

func NewService(store repository.UserStore, recorder *audit.Recorder) *Service {
	return &Service{store: store, recorder: recorder, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Purchase adds a plan's credits to the user's balance and makes it the
// current plan. Purchases are additive.
func (s *Service) Purchase(ctx context.Context, user *models.User, planID string) (*models.PurchaseResponse, error) {
	plan, err := LookupPlan(planID)
	if err != nil {
		return nil, err
	}

	balance, err := s.Grant(ctx, user.ID, plan, models.TransactionSourcePurchase, "")
	if err != nil {
		return nil, err
	}
	user.Credits = balance
	user.Plan = plan.ID
	return &models.PurchaseResponse{Plan: plan.ID, Credits: balance}, nil
}

// Grant credits a plan to userID and writes the transaction record.
func (s *Service) Grant(ctx context.Context, userID string, plan models.Plan, source, reference string) (int64, error) {
	now := s.now().UTC()
	balance, err := s.store.AddCredits(ctx, userID, plan.Credits, plan.ID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to add credits: %w", err)
	}
	metrics.CreditsGranted.WithLabelValues(plan.ID).Add(float64(plan.Credits))

	err = s.recorder.Transaction(ctx, models.Transaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		PlanID:    plan.ID,
		Amount:    plan.Price,
		Credits:   plan.Credits,
		Source:    source,
		Reference: reference,
		Timestamp: now,
	})
	if err != nil {
		slog.Error("Failed to record transaction", "user_id", userID, "plan", plan.ID, "error", err)
	}
	return balance, nil
}

// Charge debits amount from the user after a completed exchange and writes
// the usage record. The returned balance is never negative.
func (s *Service) Charge(ctx context.Context, usage models.Usage) (int64, error) {
	now := s.now().UTC()
	balance, err := s.store.DebitCredits(ctx, usage.UserID, usage.Credits, now)
	if err != nil {
		return 0, fmt.Errorf("failed to debit credits: %w", err)
	}
	metrics.CreditsDebited.WithLabelValues(usage.Source).Add(float64(usage.Credits))

	usage.ID = uuid.NewString()
	usage.Timestamp = now
	if err := s.recorder.Usage(ctx, usage); err != nil {
		slog.Error("Failed to record usage", "user_id", usage.UserID, "error", err)
	}
	return balance, nil
}

func (s *Service) Usage(user *models.User) models.UsageResponse {
	return models.UsageResponse{Credits: user.Credits, Plan: user.Plan}
}
