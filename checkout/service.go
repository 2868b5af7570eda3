// Package checkout turns the visible cart into a hosted Stripe Checkout session.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	stripecl "github.com/stripe/stripe-go/v79/client"
	"go.uber.org/zap"

	"goflare.io/storefront/models"
)

var ErrEmptyCart = errors.New("no items to checkout")

// zeroDecimal lists the currencies Stripe charges in whole units.
var zeroDecimal = map[stripe.Currency]bool{
	stripe.CurrencyBIF: true, stripe.CurrencyCLP: true, stripe.CurrencyDJF: true,
	stripe.CurrencyGNF: true, stripe.CurrencyJPY: true, stripe.CurrencyKMF: true,
	stripe.CurrencyKRW: true, stripe.CurrencyMGA: true, stripe.CurrencyPYG: true,
	stripe.CurrencyRWF: true, stripe.CurrencyUGX: true, stripe.CurrencyVND: true,
	stripe.CurrencyVUV: true, stripe.CurrencyXAF: true, stripe.CurrencyXOF: true,
	stripe.CurrencyXPF: true,
}

// SessionCreator creates Checkout sessions. *session.Client from the Stripe SDK satisfies it.
type SessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type Config struct {
	SuccessURL string
	CancelURL  string
	Currency   stripe.Currency
}

type Service interface {
	CreateSession(ctx context.Context, c models.Cart) (*stripe.CheckoutSession, error)
}

type service struct {
	sessions SessionCreator
	config   Config
	logger   *zap.Logger
}

func NewService(sessions SessionCreator, config Config, logger *zap.Logger) Service {
	if config.Currency == "" {
		config.Currency = stripe.CurrencyUSD
	}
	return &service{
		sessions: sessions,
		config:   config,
		logger:   logger,
	}
}

// NewStripeService creates sessions through the Stripe API with secretKey.
func NewStripeService(secretKey string, config Config, logger *zap.Logger) Service {
	return NewService(stripecl.New(secretKey, nil).CheckoutSessions, config, logger)
}

func (s *service) CreateSession(ctx context.Context, c models.Cart) (*stripe.CheckoutSession, error) {
	params, err := BuildParams(c, s.config)
	if err != nil {
		return nil, err
	}
	params.Context = ctx

	session, err := s.sessions.New(params)
	if err != nil {
		s.logger.Error("Failed to create checkout session", zap.Int("items", len(c.Items)), zap.Error(err))
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	s.logger.Info("Checkout session created",
		zap.String("session_id", session.ID),
		zap.Int("total_items", c.TotalItems()),
		zap.String("total_price", c.TotalPrice().String()))
	return session, nil
}

// BuildParams maps every cart item to one payment line item.
func BuildParams(c models.Cart, config Config) (*stripe.CheckoutSessionParams, error) {
	if c.IsEmpty() {
		return nil, ErrEmptyCart
	}

	currency := config.Currency
	if currency == "" {
		currency = stripe.CurrencyUSD
	}

	li := make([]*stripe.CheckoutSessionLineItemParams, 0, len(c.Items))
	for _, item := range c.Items {
		amount, err := MinorUnits(item.Product.Price, currency)
		if err != nil {
			return nil, fmt.Errorf("failed to price %s: %w", item.Product.ID, err)
		}

		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name:     stripe.String(productName(item.Product)),
			Metadata: map[string]string{"product_id": item.Product.ID},
		}
		if item.Product.Brand != "" {
			product.Description = stripe.String(item.Product.Brand)
		}
		if item.Product.Image != "" {
			product.Images = stripe.StringSlice([]string{item.Product.Image})
		}

		li = append(li, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(int64(item.Quantity)),

			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(string(currency)),
				UnitAmount:  stripe.Int64(amount),
				ProductData: product,
			},
		})
	}

	return &stripe.CheckoutSessionParams{
		SuccessURL: stripe.String(config.SuccessURL),
		CancelURL:  stripe.String(config.CancelURL),
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:  li,
	}, nil
}

// MinorUnits converts price into the smallest currency unit, rounding half away from zero.
func MinorUnits(price decimal.Decimal, currency stripe.Currency) (int64, error) {
	if price.IsNegative() {
		return 0, fmt.Errorf("negative price %s", price)
	}
	exp := int32(2)
	if zeroDecimal[stripe.Currency(strings.ToLower(string(currency)))] {
		exp = 0
	}
	return price.Shift(exp).Round(0).IntPart(), nil
}

func productName(p models.ProductSnapshot) string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}
