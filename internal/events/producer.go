package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"marketplace-core/internal/domain"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// TransactionEvent is the wire form of a ledger entry published for downstream
// consumers (analytics, reconciliation, fraud review).
type TransactionEvent struct {
	TransactionID int64     `json:"transaction_id"`
	WalletID      int64     `json:"wallet_id"`
	Type          string    `json:"type"`
	Amount        string    `json:"amount"`
	Description   string    `json:"description"`
	Reference     string    `json:"reference"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// LedgerProducer buffers ledger events through an inbox channel and writes
// them to kafka from a single goroutine, so callers never block on the broker.
type LedgerProducer struct {
	w       *kafka.Writer
	inbox   chan kafka.Message
	closeCh chan struct{}
	logger  *zap.Logger
}

func NewLedgerProducer(brokers []string, topic string, buf int, logger *zap.Logger) *LedgerProducer {
	return &LedgerProducer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        true,
		},
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
		logger:  logger,
	}
}

// Start runs the writer loop until ctx is cancelled, then flushes the inbox.
func (p *LedgerProducer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case <-ctx.Done():
				for {
					select {
					case m := <-p.inbox:
						p.write(m)
					default:
						_ = p.w.Close()
						return
					}
				}
			case m := <-p.inbox:
				p.write(m)
			}
		}
	}()
}

func (p *LedgerProducer) write(m kafka.Message) {
	if err := p.w.WriteMessages(context.Background(), m); err != nil {
		p.logger.Warn("ledger event write failed", zap.Error(err))
	}
}

// PublishTransaction enqueues the event, dropping it when the inbox is full
// rather than stalling the money movement that produced it.
func (p *LedgerProducer) PublishTransaction(_ context.Context, t *domain.Transaction) {
	ev := TransactionEvent{
		TransactionID: t.ID,
		WalletID:      t.WalletID,
		Type:          string(t.Type),
		Amount:        t.Amount.String(),
		Description:   t.Description,
		Reference:     t.Reference,
		OccurredAt:    t.CreatedAt,
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("marshal ledger event", zap.Error(err))
		return
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(t.WalletID, 10)),
		Value: payload,
		Time:  time.Now(),
	}
	select {
	case p.inbox <- msg:
	default:
		p.logger.Warn("ledger event dropped, inbox full",
			zap.Int64("transaction_id", t.ID))
	}
}

// WaitClosed blocks until the writer loop has flushed and exited.
func (p *LedgerProducer) WaitClosed() { <-p.closeCh }
