package pub

import (
	"context"
	"encoding/json"

	"marketplace-core/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// envelope is what actually goes over the channel: the notification plus a
// per-delivery request id the notification service uses for dedupe.
type envelope struct {
	RequestID    string               `json:"request_id"`
	Notification *domain.Notification `json:"notification"`
}

// NotificationPublisher pushes user notifications onto a redis channel. The
// notification service subscribes there and handles fan-out (push, email,
// websocket); this module only produces the payload.
type NotificationPublisher struct {
	rdb     *redis.Client
	channel string
	logger  *zap.Logger
}

func NewNotificationPublisher(rdb *redis.Client, channel string, logger *zap.Logger) *NotificationPublisher {
	return &NotificationPublisher{rdb: rdb, channel: channel, logger: logger}
}

// Notify publishes best-effort: a delivery failure is logged, never surfaced
// to the caller, since the state change it announces has already committed.
func (p *NotificationPublisher) Notify(ctx context.Context, n *domain.Notification) {
	payload, err := json.Marshal(envelope{
		RequestID:    uuid.New().String(),
		Notification: n,
	})
	if err != nil {
		p.logger.Error("marshal notification", zap.Error(err))
		return
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.logger.Warn("publish notification",
			zap.String("type", n.Type),
			zap.String("user_id", n.UserID),
			zap.Error(err))
		return
	}
	p.logger.Debug("notification published",
		zap.String("type", n.Type),
		zap.String("user_id", n.UserID))
}
