package payments

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"

	"github.com/illegalcall/brainyx/internal/models"
)

const (
	metadataUserID = "user_id"
	metadataPlanID = "plan_id"
)

// StripeCheckout creates and reads Stripe Checkout sessions.
type StripeCheckout struct {
	client   *client.API
	currency string
}

func NewStripeCheckout(secretKey, currency string) (*StripeCheckout, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("stripe API key is required")
	}

	sc := &client.API{}
	sc.Init(secretKey, nil)

	return &StripeCheckout{client: sc, currency: currency}, nil
}

func (s *StripeCheckout) CreateSession(ctx context.Context, user *models.User, plan models.Plan, successURL, cancelURL string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(s.currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(plan.Name),
					Description: stripe.String(plan.Description),
				},
				UnitAmount: stripe.Int64(plan.Price * 100),
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(user.ID),
		CustomerEmail:     stripe.String(user.Email),
	}
	params.Context = ctx
	params.AddMetadata(metadataUserID, user.ID)
	params.AddMetadata(metadataPlanID, plan.ID)

	sess, err := s.client.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	return fromStripe(sess), nil
}

func (s *StripeCheckout) GetSession(ctx context.Context, id string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := s.client.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch checkout session: %w", err)
	}
	return fromStripe(sess), nil
}

func fromStripe(sess *stripe.CheckoutSession) *Session {
	return &Session{
		ID:            sess.ID,
		URL:           sess.URL,
		Status:        string(sess.Status),
		PaymentStatus: string(sess.PaymentStatus),
		UserID:        sess.Metadata[metadataUserID],
		PlanID:        sess.Metadata[metadataPlanID],
	}
}
