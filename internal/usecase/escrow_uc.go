package usecase

import (
	"context"
	"fmt"

	"marketplace-core/internal/domain"
	"marketplace-core/internal/repository"
	"marketplace-core/pkg/id"
	"marketplace-core/pkg/xerrors"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type EscrowUsecase struct {
	escrows  repository.EscrowRepository
	wallets  repository.WalletRepository
	notifier Notifier
	redis    *redis.Client
	events   EventProducer
	ids      *id.Snowflake
	feePct   decimal.Decimal
	logger   *zap.Logger
}

func NewEscrowUsecase(
	escrows repository.EscrowRepository,
	wallets repository.WalletRepository,
	notifier Notifier,
	rdb *redis.Client,
	events EventProducer,
	ids *id.Snowflake,
	feePct decimal.Decimal,
	logger *zap.Logger,
) *EscrowUsecase {
	return &EscrowUsecase{
		escrows:  escrows,
		wallets:  wallets,
		notifier: notifier,
		redis:    rdb,
		events:   events,
		ids:      ids,
		feePct:   feePct,
		logger:   logger,
	}
}

type CreateOrderInput struct {
	SellerID   string          `json:"seller_id"`
	OrderTotal decimal.Decimal `json:"order_total"`
}

func (uc *EscrowUsecase) CreateOrder(ctx context.Context, buyerID string, in CreateOrderInput) (*domain.EscrowOrder, error) {
	if err := requireActor(buyerID); err != nil {
		return nil, err
	}
	if in.SellerID == "" || in.SellerID == buyerID {
		return nil, fmt.Errorf("%w: seller must be another user", xerrors.ErrInvalidRequest)
	}
	if !in.OrderTotal.IsPositive() {
		return nil, fmt.Errorf("%w: order total must be positive", xerrors.ErrInvalidRequest)
	}

	o := &domain.EscrowOrder{
		BuyerID:    buyerID,
		SellerID:   in.SellerID,
		OrderTotal: in.OrderTotal,
	}
	if err := uc.escrows.Create(ctx, o); err != nil {
		return nil, err
	}
	uc.logger.Info("escrow order created",
		zap.Int64("order_id", o.ID),
		zap.String("buyer_id", buyerID),
		zap.String("total", in.OrderTotal.String()))
	return o, nil
}

func (uc *EscrowUsecase) GetOrder(ctx context.Context, actorID string, orderID int64) (*domain.EscrowOrder, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	o, err := uc.escrows.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.BuyerID != actorID && o.SellerID != actorID {
		return nil, xerrors.ErrNotFound
	}
	return o, nil
}

// LockFunds moves the order to funds_locked and takes the order total out of
// the buyer's wallet. Only the buyer can do this.
func (uc *EscrowUsecase) LockFunds(ctx context.Context, actorID string, orderID int64) (*domain.EscrowOrder, error) {
	o, err := uc.GetOrder(ctx, actorID, orderID)
	if err != nil {
		return nil, err
	}
	if o.BuyerID != actorID {
		return nil, fmt.Errorf("%w: only the buyer can lock funds", xerrors.ErrInvalidRequest)
	}

	w, err := uc.wallets.GetByUserID(ctx, o.BuyerID)
	if err != nil {
		return nil, err
	}
	o, entry, err := uc.escrows.LockFunds(ctx, orderID, w.ID, uc.ids.Generate())
	if err != nil {
		return nil, err
	}

	invalidateWalletCache(ctx, uc.redis, uc.logger, o.BuyerID)
	publishTransactions(ctx, uc.events, entry)
	uc.logger.Info("escrow funds locked", zap.Int64("order_id", orderID))
	uc.notifyStatus(ctx, o, o.SellerID, "Payment received into escrow. Ship the item.")
	return o, nil
}

// MarkShipped is the seller's acknowledgement that the item is on its way.
func (uc *EscrowUsecase) MarkShipped(ctx context.Context, actorID string, orderID int64) (*domain.EscrowOrder, error) {
	o, err := uc.GetOrder(ctx, actorID, orderID)
	if err != nil {
		return nil, err
	}
	if o.SellerID != actorID {
		return nil, fmt.Errorf("%w: only the seller can mark shipped", xerrors.ErrInvalidRequest)
	}

	o, err = uc.escrows.Advance(ctx, orderID, domain.EscrowStatusShipped)
	if err != nil {
		return nil, err
	}
	uc.notifyStatus(ctx, o, o.BuyerID, "Your order has shipped.")
	return o, nil
}

// MarkDelivered is the buyer's confirmation of receipt.
func (uc *EscrowUsecase) MarkDelivered(ctx context.Context, actorID string, orderID int64) (*domain.EscrowOrder, error) {
	o, err := uc.GetOrder(ctx, actorID, orderID)
	if err != nil {
		return nil, err
	}
	if o.BuyerID != actorID {
		return nil, fmt.Errorf("%w: only the buyer can confirm delivery", xerrors.ErrInvalidRequest)
	}

	o, err = uc.escrows.Advance(ctx, orderID, domain.EscrowStatusDelivered)
	if err != nil {
		return nil, err
	}
	uc.notifyStatus(ctx, o, o.SellerID, "Delivery confirmed. Funds release next.")
	return o, nil
}

// Release pays the seller the order total minus the platform fee. This is the
// only transition that credits anyone.
func (uc *EscrowUsecase) Release(ctx context.Context, actorID string, orderID int64) (*domain.EscrowOrder, error) {
	o, err := uc.GetOrder(ctx, actorID, orderID)
	if err != nil {
		return nil, err
	}

	w, err := uc.wallets.GetByUserID(ctx, o.SellerID)
	if err != nil {
		return nil, err
	}
	net := uc.netProceeds(o.OrderTotal)
	o, entry, err := uc.escrows.Release(ctx, orderID, w.ID, net, uc.ids.Generate())
	if err != nil {
		return nil, err
	}

	invalidateWalletCache(ctx, uc.redis, uc.logger, o.SellerID)
	publishTransactions(ctx, uc.events, entry)
	uc.logger.Info("escrow released",
		zap.Int64("order_id", orderID),
		zap.String("net_proceeds", net.String()))
	uc.notifyStatus(ctx, o, o.SellerID, fmt.Sprintf("Escrow released: %s credited to your wallet.", net.StringFixed(2)))
	return o, nil
}

// Dispute freezes the order in the disputed state. Either party can raise it
// from any non-terminal state.
func (uc *EscrowUsecase) Dispute(ctx context.Context, actorID string, orderID int64) (*domain.EscrowOrder, error) {
	o, err := uc.GetOrder(ctx, actorID, orderID)
	if err != nil {
		return nil, err
	}

	o, err = uc.escrows.Advance(ctx, orderID, domain.EscrowStatusDisputed)
	if err != nil {
		return nil, err
	}

	counterparty := o.SellerID
	if actorID == o.SellerID {
		counterparty = o.BuyerID
	}
	uc.notifyStatus(ctx, o, counterparty, "A dispute was opened on your order.")
	return o, nil
}

// Refund returns the order total to the buyer if funds were locked, and ends
// the order. Reachable from any non-terminal state.
func (uc *EscrowUsecase) Refund(ctx context.Context, actorID string, orderID int64) (*domain.EscrowOrder, error) {
	o, err := uc.GetOrder(ctx, actorID, orderID)
	if err != nil {
		return nil, err
	}

	w, err := uc.wallets.GetByUserID(ctx, o.BuyerID)
	if err != nil {
		return nil, err
	}
	o, entry, err := uc.escrows.Refund(ctx, orderID, w.ID, uc.ids.Generate())
	if err != nil {
		return nil, err
	}

	invalidateWalletCache(ctx, uc.redis, uc.logger, o.BuyerID)
	publishTransactions(ctx, uc.events, entry)
	uc.logger.Info("escrow refunded", zap.Int64("order_id", orderID))
	uc.notifyStatus(ctx, o, o.BuyerID, "Your order was refunded.")
	return o, nil
}

func (uc *EscrowUsecase) netProceeds(total decimal.Decimal) decimal.Decimal {
	fee := total.Mul(uc.feePct).Div(decimal.NewFromInt(100)).Round(2)
	return total.Sub(fee)
}

func (uc *EscrowUsecase) notifyStatus(ctx context.Context, o *domain.EscrowOrder, userID, body string) {
	uc.notifier.Notify(ctx, newNotification(userID, domain.NotificationEscrowUpdated,
		"Order update", body, map[string]string{
			"order_id": fmt.Sprintf("%d", o.ID),
			"status":   string(o.Status),
		}))
}
