package usecase

import (
	"context"
	"time"

	"marketplace-core/internal/domain"
	"marketplace-core/pkg/id"
	"marketplace-core/pkg/xerrors"
)

// Notifier delivers user-facing notifications. Implementations are expected to
// be asynchronous; usecases call Notify after the state change has committed
// and never fail the operation on delivery problems.
type Notifier interface {
	Notify(ctx context.Context, n *domain.Notification)
}

// EventProducer publishes ledger transaction events for downstream consumers
// (analytics, reconciliation).
type EventProducer interface {
	PublishTransaction(ctx context.Context, t *domain.Transaction)
}

// NopNotifier and NopProducer stand in where delivery is not wired (tests,
// local runs without brokers).
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, *domain.Notification) {}

type NopProducer struct{}

func (NopProducer) PublishTransaction(context.Context, *domain.Transaction) {}

// publishTransactions forwards committed ledger entries to the event stream.
// Nil entries mean the operation moved no money (a refund before funds were
// locked, a free tier) and are skipped.
func publishTransactions(ctx context.Context, events EventProducer, txns ...*domain.Transaction) {
	for _, t := range txns {
		if t != nil {
			events.PublishTransaction(ctx, t)
		}
	}
}

func requireActor(userID string) error {
	if userID == "" {
		return xerrors.ErrUnauthenticated
	}
	return nil
}

func newNotification(userID, typ, title, body string, data map[string]string) *domain.Notification {
	return &domain.Notification{
		ID:        id.NewULID(),
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Body:      body,
		Data:      data,
		CreatedAt: time.Now(),
	}
}
