package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"festival-booking/internal/broker"
	"festival-booking/internal/models"
	"festival-booking/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Simulated payment outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFail    = "fail"
	OutcomeRandom  = "random"
)

// Reasons a session is declined without charging the visitor
const (
	DeclineReasonMock       = "mock_payment_declined"
	DeclineReasonExpired    = "session_expired"
	DeclineReasonNotPayable = "order_not_payable"
)

// OrderReader is what the gateway needs to know about the order it charges
type OrderReader interface {
	GetOrder(ctx context.Context, id string) (*models.Order, error)
}

// SimulatedGateway stands in for the hosted payment page. Sessions live in
// Redis; completing one publishes a payment event like a real provider's
// webhook would.
type SimulatedGateway struct {
	sessions       PaymentSessionStore
	orders         OrderReader
	eventPublisher EventPublisher
	clock          *Clock
	baseURL        string
	storefront     *url.URL
	successRate    float64 // Mock success rate (0.0 - 1.0)
	sessionTTL     time.Duration
	logger         *zap.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

// GatewayConfig configures the simulated gateway
type GatewayConfig struct {
	BaseURL       string
	// StorefrontURL is the origin return URLs must belong to
	StorefrontURL string
	SuccessRate   float64
	SessionTTL    time.Duration
}

// NewSimulatedGateway creates a new simulated payment gateway
func NewSimulatedGateway(sessions PaymentSessionStore, orders OrderReader, eventPublisher EventPublisher, clock *Clock, cfg GatewayConfig) *SimulatedGateway {
	storefront, err := url.Parse(cfg.StorefrontURL)
	if err != nil || storefront.Host == "" {
		storefront = nil
	}
	return &SimulatedGateway{
		sessions:       sessions,
		orders:         orders,
		eventPublisher: eventPublisher,
		clock:          clock,
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		storefront:     storefront,
		successRate:    cfg.SuccessRate,
		sessionTTL:     cfg.SessionTTL,
		logger:         util.GetLogger(),
		rnd:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Initiate opens a payment session and returns where to send the visitor.
// The session lives for the configured TTL but never past deadline.
func (g *SimulatedGateway) Initiate(ctx context.Context, orderID string, amount decimal.Decimal, returnURL string, deadline time.Time) (*models.PaymentSession, error) {
	ctx, span := util.StartSpan(ctx, "SimulatedGateway.Initiate", attribute.String("order_id", orderID))
	defer span.End()

	if err := g.checkReturnURL(returnURL); err != nil {
		return nil, err
	}

	now := g.clock.Now()
	ttl := g.sessionTTL
	if remaining := deadline.Sub(now); remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("order %s reservation expired: %w", orderID, models.ErrOrderNotPending)
	}

	util.PaymentAttemptsTotal.Inc()

	merchantOrderID := fmt.Sprintf("MO-%s", uuid.New().String())
	session := &models.PaymentSession{
		MerchantOrderID: merchantOrderID,
		OrderID:         orderID,
		Amount:          amount,
		PaymentURL:      g.baseURL + "/api/v1/payments/simulate/" + merchantOrderID,
		ReturnURL:       returnURL,
		Status:          models.PaymentStatusPending,
		CreatedAt:       now.UTC(),
		ExpiresAt:       now.Add(ttl).UTC(),
	}

	if err := g.sessions.SavePaymentSession(ctx, session, ttl); err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to save payment session: %w", err)
	}

	g.logger.Info("Payment session opened",
		zap.String("order_id", orderID),
		zap.String("merchant_order_id", merchantOrderID),
		zap.String("amount", amount.StringFixed(2)),
		zap.Duration("ttl", ttl))
	return session, nil
}

// Status reports COMPLETED, PENDING or FAILED. Expired sessions are not found.
func (g *SimulatedGateway) Status(ctx context.Context, merchantOrderID string) (string, error) {
	session, err := g.sessions.GetPaymentSession(ctx, merchantOrderID)
	if err != nil {
		return "", err
	}
	return session.Status, nil
}

// Complete settles a pending session as the visitor would on the payment
// page. Settled sessions are returned unchanged. A session whose order is no
// longer pending, or whose deadline has passed, is declined without charging.
func (g *SimulatedGateway) Complete(ctx context.Context, merchantOrderID, outcome string) (*models.PaymentSession, error) {
	ctx, span := util.StartSpan(ctx, "SimulatedGateway.Complete", attribute.String("merchant_order_id", merchantOrderID))
	defer span.End()

	start := time.Now()
	defer func() {
		util.PaymentProcessingLatency.Observe(time.Since(start).Seconds())
	}()

	session, err := g.sessions.GetPaymentSession(ctx, merchantOrderID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.PaymentStatusPending {
		return session, nil
	}

	var success bool
	switch outcome {
	case OutcomeSuccess:
		success = true
	case OutcomeFail:
		success = false
	case OutcomeRandom, "":
		success = g.roll()
	default:
		return nil, invalidField("outcome", "Outcome must be success, fail or random")
	}

	reason := DeclineReasonMock
	declined, err := g.unpayable(ctx, session)
	if err != nil {
		util.FailSpan(span, err)
		return nil, err
	}
	if declined != "" {
		success, reason = false, declined
	}

	if success {
		session.Status = models.PaymentStatusCompleted
	} else {
		session.Status = models.PaymentStatusFailed
	}
	if err := g.sessions.UpdatePaymentSession(ctx, session); err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to update payment session: %w", err)
	}

	if success {
		util.PaymentSuccessTotal.Inc()
		g.logger.Info("Payment succeeded",
			zap.String("order_id", session.OrderID),
			zap.String("merchant_order_id", merchantOrderID))

		event := &models.PaymentSuccessEvent{
			BaseEvent:       broker.NewBaseEvent(models.EventTypePaymentSuccess),
			OrderID:         session.OrderID,
			MerchantOrderID: merchantOrderID,
			Amount:          session.Amount,
		}
		if err := g.eventPublisher.PublishPaymentSuccess(ctx, event); err != nil {
			g.logger.Error("Failed to publish PaymentSuccess event", zap.Error(err))
		}
	} else {
		util.PaymentFailedTotal.Inc()
		g.logger.Warn("Payment failed",
			zap.String("order_id", session.OrderID),
			zap.String("merchant_order_id", merchantOrderID),
			zap.String("reason", reason))

		event := &models.PaymentFailedEvent{
			BaseEvent:       broker.NewBaseEvent(models.EventTypePaymentFailed),
			OrderID:         session.OrderID,
			MerchantOrderID: merchantOrderID,
			Reason:          reason,
		}
		if err := g.eventPublisher.PublishPaymentFailed(ctx, event); err != nil {
			g.logger.Error("Failed to publish PaymentFailed event", zap.Error(err))
		}
	}

	return session, nil
}

// unpayable returns a decline reason when the session must not be charged
func (g *SimulatedGateway) unpayable(ctx context.Context, session *models.PaymentSession) (string, error) {
	if !g.clock.Now().Before(session.ExpiresAt) {
		return DeclineReasonExpired, nil
	}
	order, err := g.orders.GetOrder(ctx, session.OrderID)
	if errors.Is(err, models.ErrNotFound) {
		return DeclineReasonNotPayable, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load order for payment: %w", err)
	}
	if order.Status != models.OrderStatusPending {
		return DeclineReasonNotPayable, nil
	}
	return "", nil
}

// checkReturnURL accepts an empty URL or one on the storefront origin
func (g *SimulatedGateway) checkReturnURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || g.storefront == nil ||
		!strings.EqualFold(u.Scheme, g.storefront.Scheme) || !strings.EqualFold(u.Host, g.storefront.Host) {
		return invalidField("return_url", "Return URL must point to the storefront")
	}
	return nil
}

func (g *SimulatedGateway) roll() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rnd.Float64() < g.successRate
}
