package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace-core/config"
	"marketplace-core/internal/domain"
	"marketplace-core/internal/repository"
	"marketplace-core/pkg/id"
	"marketplace-core/pkg/xerrors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const renewalBatchSize = 200

type SubscriptionUsecase struct {
	subs     repository.SubscriptionRepository
	wallets  repository.WalletRepository
	notifier Notifier
	redis    *redis.Client
	events   EventProducer
	ids      *id.Snowflake
	pricing  config.PricingTable
	logger   *zap.Logger
}

func NewSubscriptionUsecase(
	subs repository.SubscriptionRepository,
	wallets repository.WalletRepository,
	notifier Notifier,
	rdb *redis.Client,
	events EventProducer,
	ids *id.Snowflake,
	pricing config.PricingTable,
	logger *zap.Logger,
) *SubscriptionUsecase {
	return &SubscriptionUsecase{
		subs:     subs,
		wallets:  wallets,
		notifier: notifier,
		redis:    rdb,
		events:   events,
		ids:      ids,
		pricing:  pricing,
		logger:   logger,
	}
}

// Subscribe starts (or switches to) a paid tier, charging the first billing
// period up front.
func (uc *SubscriptionUsecase) Subscribe(ctx context.Context, userID string, tier domain.Tier, cycle domain.BillingCycle) (*domain.Subscription, error) {
	if err := requireActor(userID); err != nil {
		return nil, err
	}
	if !domain.ValidTier(tier) || !domain.ValidCycle(cycle) {
		return nil, fmt.Errorf("%w: unknown tier or billing cycle", xerrors.ErrInvalidRequest)
	}
	price, ok := uc.pricing.Price(string(tier), string(cycle))
	if !ok {
		return nil, fmt.Errorf("%w: no price for tier %s (%s)", xerrors.ErrInvalidRequest, tier, cycle)
	}

	w, err := uc.wallets.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	s, charge, err := uc.subs.Subscribe(ctx, userID, w.ID, tier, cycle, price, uc.ids.Generate(), time.Now())
	if err != nil {
		return nil, err
	}

	invalidateWalletCache(ctx, uc.redis, uc.logger, userID)
	publishTransactions(ctx, uc.events, charge)
	uc.logger.Info("subscription started",
		zap.String("user_id", userID),
		zap.String("tier", string(tier)),
		zap.String("cycle", string(cycle)))
	return s, nil
}

// GetSubscription returns the stored subscription, or a synthetic free one
// when the user never subscribed.
func (uc *SubscriptionUsecase) GetSubscription(ctx context.Context, userID string) (*domain.Subscription, error) {
	if err := requireActor(userID); err != nil {
		return nil, err
	}
	s, err := uc.subs.GetByUserID(ctx, userID)
	if errors.Is(err, xerrors.ErrNotFound) {
		return &domain.Subscription{UserID: userID, Tier: domain.TierFree}, nil
	}
	return s, err
}

// EffectiveTier is what feature gates consult.
func (uc *SubscriptionUsecase) EffectiveTier(ctx context.Context, userID string) (domain.Tier, error) {
	s, err := uc.subs.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return domain.TierFree, nil
		}
		return domain.TierFree, err
	}
	return domain.EffectiveTier(s, time.Now()), nil
}

// Renew charges one billing period and extends the expiry. A wallet that
// cannot cover the price downgrades the subscription to free and switches
// auto-renew off; the balance is never partially debited. The downgraded
// subscription is returned without error, since the downgrade is the defined
// outcome of that case rather than a failure of the operation.
func (uc *SubscriptionUsecase) Renew(ctx context.Context, userID string) (*domain.Subscription, error) {
	if err := requireActor(userID); err != nil {
		return nil, err
	}
	s, err := uc.subs.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return uc.renew(ctx, s)
}

func (uc *SubscriptionUsecase) renew(ctx context.Context, s *domain.Subscription) (*domain.Subscription, error) {
	if s.Tier == domain.TierFree {
		return nil, fmt.Errorf("%w: free tier does not renew", xerrors.ErrInvalidRequest)
	}
	price, ok := uc.pricing.Price(string(s.Tier), string(s.BillingCycle))
	if !ok {
		return nil, fmt.Errorf("%w: no price for tier %s (%s)", xerrors.ErrInvalidRequest, s.Tier, s.BillingCycle)
	}

	w, err := uc.wallets.GetByUserID(ctx, s.UserID)
	if err != nil {
		return nil, err
	}

	renewed, charge, err := uc.subs.Renew(ctx, s.ID, w.ID, price, uc.ids.Generate(), time.Now())
	if err != nil {
		if errors.Is(err, xerrors.ErrInsufficientFunds) {
			return uc.downgrade(ctx, s)
		}
		return nil, err
	}

	invalidateWalletCache(ctx, uc.redis, uc.logger, s.UserID)
	publishTransactions(ctx, uc.events, charge)
	uc.logger.Info("subscription renewed",
		zap.String("user_id", s.UserID),
		zap.String("tier", string(renewed.Tier)),
		zap.Time("expires_at", renewed.ExpiresAt))
	uc.notifier.Notify(ctx, newNotification(s.UserID, domain.NotificationSubscriptionRenewed,
		"Subscription renewed",
		fmt.Sprintf("Your %s plan was renewed for %s.", renewed.Tier, price.StringFixed(2)),
		map[string]string{"tier": string(renewed.Tier)}))
	return renewed, nil
}

func (uc *SubscriptionUsecase) downgrade(ctx context.Context, s *domain.Subscription) (*domain.Subscription, error) {
	down, err := uc.subs.Downgrade(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	uc.logger.Warn("subscription downgraded on failed renewal",
		zap.String("user_id", s.UserID),
		zap.String("previous_tier", string(s.Tier)))
	uc.notifier.Notify(ctx, newNotification(s.UserID, domain.NotificationSubscriptionDowngraded,
		"Subscription downgraded",
		"Your renewal could not be charged, so your plan was moved to free. Top up and resubscribe to restore it.",
		map[string]string{"previous_tier": string(s.Tier)}))
	return down, nil
}

// RenewDue processes every auto-renewing subscription past its expiry. Run by
// the scheduled sweep; safe to invoke repeatedly since each pass only picks up
// rows still due.
func (uc *SubscriptionUsecase) RenewDue(ctx context.Context) error {
	now := time.Now()
	var processed int
	for {
		due, err := uc.subs.ListDueForRenewal(ctx, now, renewalBatchSize)
		if err != nil {
			return fmt.Errorf("list due subscriptions: %w", err)
		}
		if len(due) == 0 {
			break
		}
		var failed int
		for _, s := range due {
			if _, err := uc.renew(ctx, s); err != nil {
				failed++
				uc.logger.Error("renewal sweep failed for subscription",
					zap.Int64("subscription_id", s.ID),
					zap.String("user_id", s.UserID),
					zap.Error(err))
				continue
			}
			processed++
		}
		// Rows that errored stay due and would be re-fetched; stop once a
		// whole batch makes no progress and let the next sweep retry.
		if failed == len(due) || len(due) < renewalBatchSize {
			break
		}
	}
	uc.logger.Info("renewal sweep finished", zap.Int("processed", processed))
	return nil
}
