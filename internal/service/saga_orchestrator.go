package service

import (
	"context"
	"errors"
	"fmt"

	"festival-booking/internal/models"
	"festival-booking/internal/util"

	"go.uber.org/zap"
)

// SagaOrchestrator applies payment events to orders
type SagaOrchestrator struct {
	store  OrderStore
	orders *OrderService
	logger *zap.Logger
}

// NewSagaOrchestrator creates a new saga orchestrator
func NewSagaOrchestrator(store OrderStore, orders *OrderService) *SagaOrchestrator {
	return &SagaOrchestrator{
		store:  store,
		orders: orders,
		logger: util.GetLogger(),
	}
}

// HandlePaymentSuccess confirms the order of a completed payment
func (so *SagaOrchestrator) HandlePaymentSuccess(ctx context.Context, event *models.PaymentSuccessEvent) error {
	ctx, span := util.StartSpan(ctx, "SagaOrchestrator.HandlePaymentSuccess")
	defer span.End()

	processed, err := so.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		so.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	so.logger.Info("Handling payment success",
		zap.String("order_id", event.OrderID),
		zap.String("merchant_order_id", event.MerchantOrderID))

	_, err = so.orders.ConfirmPaid(ctx, event.OrderID, event.MerchantOrderID)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrOrderNotPending), errors.Is(err, models.ErrNotFound):
		// paid too late: the sweeper or the visitor cancelled first
		so.logger.Warn("Payment completed for an order that cannot be confirmed",
			zap.String("order_id", event.OrderID),
			zap.String("merchant_order_id", event.MerchantOrderID),
			zap.Error(err))
	default:
		util.FailSpan(span, err)
		return fmt.Errorf("failed to confirm order: %w", err)
	}

	if err := so.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		so.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	return nil
}

// HandlePaymentFailed cancels the order of a declined payment and releases
// its reservations
func (so *SagaOrchestrator) HandlePaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	ctx, span := util.StartSpan(ctx, "SagaOrchestrator.HandlePaymentFailed")
	defer span.End()

	processed, err := so.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		so.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	so.logger.Warn("Handling payment failure - starting compensation",
		zap.String("order_id", event.OrderID),
		zap.String("reason", event.Reason))

	if err := so.store.UpdatePaymentStatus(ctx, event.MerchantOrderID, models.PaymentStatusFailed); err != nil && !errors.Is(err, models.ErrNotFound) {
		so.logger.Error("Failed to update payment status", zap.Error(err))
	}

	_, err = so.orders.CancelOrder(ctx, event.OrderID, models.CancelReasonPaymentFailed)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrOrderNotPending), errors.Is(err, models.ErrNotFound):
		so.logger.Warn("Payment failed for an order that is no longer pending",
			zap.String("order_id", event.OrderID),
			zap.Error(err))
	default:
		util.FailSpan(span, err)
		return fmt.Errorf("failed to cancel order: %w", err)
	}

	if err := so.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		so.logger.Error("Failed to mark event processed", zap.Error(err))
	}

	so.logger.Info("Order cancelled and compensated", zap.String("order_id", event.OrderID))
	return nil
}
