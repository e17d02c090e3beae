// Package billing talks to Stripe for checkout, the customer portal and
// subscription webhooks.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"lifeblocks/api/internal/plans"
)

var (
	ErrNotConfigured    = errors.New("billing is not configured")
	ErrUnavailable      = errors.New("billing provider unavailable")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrUnknownPrice     = errors.New("unknown price")
)

type checkoutSessions interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type portalSessions interface {
	New(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
}

// Prices maps Stripe price ids to plan tiers.
type Prices map[string]plans.Tier

type Config struct {
	SecretKey     string
	WebhookSecret string
	Prices        Prices
}

type Gateway struct {
	checkout      checkoutSessions
	portal        portalSessions
	webhookSecret string
	prices        Prices
	logger        log.FieldLogger
}

// NewGateway builds a gateway on the Stripe API client. A missing secret key
// yields a gateway whose session calls return ErrNotConfigured.
func NewGateway(cfg Config, logger log.FieldLogger) *Gateway {
	if logger == nil {
		logger = log.StandardLogger()
	}
	g := &Gateway{webhookSecret: cfg.WebhookSecret, prices: cfg.Prices, logger: logger}
	if cfg.SecretKey != "" {
		sc := client.New(cfg.SecretKey, nil)
		g.checkout = sc.CheckoutSessions
		g.portal = sc.BillingPortalSessions
	}
	return g
}

type CheckoutRequest struct {
	PriceID       string
	SuccessURL    string
	CancelURL     string
	CustomerEmail string
	// UserID comes back on the completed checkout as client_reference_id.
	UserID     string
	CustomerID string
}

// CreateCheckoutSession starts a subscription checkout and returns the
// session id and hosted url.
func (g *Gateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, string, error) {
	if g.checkout == nil {
		return "", "", ErrNotConfigured
	}
	tier, ok := g.prices[req.PriceID]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownPrice, req.PriceID)
	}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(req.PriceID),
			Quantity: stripe.Int64(1),
		}},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.UserID),
		Metadata:          map[string]string{"plan": string(tier), "userId": req.UserID},
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	} else if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.Context = ctx

	sess, err := g.checkout.New(params)
	if err != nil {
		g.logger.WithError(err).WithField("user", req.UserID).Error("create checkout session")
		return "", "", ErrUnavailable
	}
	return sess.ID, sess.URL, nil
}

// CreatePortalSession returns the customer portal url.
func (g *Gateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	if g.portal == nil {
		return "", ErrNotConfigured
	}
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	sess, err := g.portal.New(params)
	if err != nil {
		g.logger.WithError(err).WithField("customer", customerID).Error("create portal session")
		return "", ErrUnavailable
	}
	return sess.URL, nil
}

// SubscriptionChange is the billing state a webhook asks us to persist.
// UserID is only known for completed checkouts; other events are matched by
// CustomerID.
type SubscriptionChange struct {
	Event      string
	UserID     string
	CustomerID string
	Status     string
	Plan       plans.Tier
}

// HandleWebhook verifies the Stripe signature and translates the event. A nil
// change with a nil error means the event is not one we act on.
func (g *Gateway) HandleWebhook(payload []byte, signature string) (*SubscriptionChange, error) {
	if g.webhookSecret == "" {
		return nil, ErrNotConfigured
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if event.Data == nil {
		return nil, nil
	}

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		userID := sess.ClientReferenceID
		if userID == "" {
			userID = sess.Metadata["userId"]
		}
		change := &SubscriptionChange{
			Event:  string(event.Type),
			UserID: userID,
			Status: string(stripe.SubscriptionStatusActive),
			Plan:   plans.For(plans.Tier(sess.Metadata["plan"])).Tier,
		}
		if sess.Customer != nil {
			change.CustomerID = sess.Customer.ID
		}
		return change, nil

	case "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		change := &SubscriptionChange{
			Event:  string(event.Type),
			Status: string(sub.Status),
			Plan:   g.subscriptionTier(&sub),
		}
		if sub.Customer != nil {
			change.CustomerID = sub.Customer.ID
		}
		if event.Type == "customer.subscription.deleted" {
			change.Status = string(stripe.SubscriptionStatusCanceled)
			change.Plan = plans.TierFree
		}
		return change, nil
	}
	return nil, nil
}

func (g *Gateway) subscriptionTier(sub *stripe.Subscription) plans.Tier {
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item == nil || item.Price == nil {
				continue
			}
			if tier, ok := g.prices[item.Price.ID]; ok {
				return tier
			}
		}
	}
	if tier := sub.Metadata["plan"]; tier != "" {
		return plans.For(plans.Tier(tier)).Tier
	}
	return plans.TierFree
}
