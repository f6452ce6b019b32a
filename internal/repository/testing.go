package repository

// In-memory implementations of the repository interfaces, used by usecase
// tests. They share the validation rules in internal/domain with the postgres
// implementations and apply every multi-step mutation under one lock, so the
// atomicity the SQL guarantees with conditional updates holds here too.

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"marketplace-core/internal/domain"
	"marketplace-core/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Wallets
// ---------------------------------------------------------------------------

type MemoryWalletRepo struct {
	mu           sync.Mutex
	nextID       int64
	nextTxID     int64
	wallets      map[int64]*domain.Wallet
	byUser       map[string]int64
	transactions []*domain.Transaction
}

func NewMemoryWalletRepo() *MemoryWalletRepo {
	return &MemoryWalletRepo{
		wallets: make(map[int64]*domain.Wallet),
		byUser:  make(map[string]int64),
	}
}

func (r *MemoryWalletRepo) Create(ctx context.Context, userID string) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byUser[userID]; ok {
		w := *r.wallets[id]
		return &w, nil
	}
	r.nextID++
	now := time.Now()
	w := &domain.Wallet{ID: r.nextID, UserID: userID, Balance: decimal.Zero, CreatedAt: now, UpdatedAt: now}
	r.wallets[w.ID] = w
	r.byUser[userID] = w.ID
	cp := *w
	return &cp, nil
}

func (r *MemoryWalletRepo) GetByID(ctx context.Context, id int64) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (r *MemoryWalletRepo) GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byUser[userID]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *r.wallets[id]
	return &cp, nil
}

func (r *MemoryWalletRepo) Debit(ctx context.Context, walletID int64, amount decimal.Decimal, description, reference string) (*domain.Transaction, error) {
	return r.DebitTx(ctx, nil, walletID, amount, description, reference)
}

func (r *MemoryWalletRepo) Credit(ctx context.Context, walletID int64, amount decimal.Decimal, description, reference string) (*domain.Transaction, error) {
	return r.CreditTx(ctx, nil, walletID, amount, description, reference)
}

func (r *MemoryWalletRepo) DebitTx(ctx context.Context, _ pgx.Tx, walletID int64, amount decimal.Decimal, description, reference string) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.wallets[walletID]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	if w.Balance.LessThan(amount) {
		return nil, xerrors.ErrInsufficientFunds
	}
	w.Balance = w.Balance.Sub(amount)
	w.UpdatedAt = time.Now()
	return r.appendTransaction(walletID, domain.TransactionTypeWithdrawal, amount.Neg(), description, reference), nil
}

func (r *MemoryWalletRepo) CreditTx(ctx context.Context, _ pgx.Tx, walletID int64, amount decimal.Decimal, description, reference string) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.wallets[walletID]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	w.Balance = w.Balance.Add(amount)
	w.UpdatedAt = time.Now()
	return r.appendTransaction(walletID, domain.TransactionTypeDeposit, amount, description, reference), nil
}

// exists reports whether a wallet is present, letting the composing repos
// check both sides of a transfer before moving any money.
func (r *MemoryWalletRepo) exists(walletID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.wallets[walletID]
	return ok
}

func (r *MemoryWalletRepo) appendTransaction(walletID int64, typ domain.TransactionType, amount decimal.Decimal, description, reference string) *domain.Transaction {
	r.nextTxID++
	t := &domain.Transaction{
		ID:          r.nextTxID,
		WalletID:    walletID,
		Type:        typ,
		Amount:      amount,
		Description: description,
		Reference:   reference,
		CreatedAt:   time.Now(),
	}
	r.transactions = append(r.transactions, t)
	cp := *t
	return &cp
}

func (r *MemoryWalletRepo) ListTransactions(ctx context.Context, walletID int64, limit, offset int) ([]*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []*domain.Transaction
	for _, t := range r.transactions {
		if t.WalletID == walletID {
			cp := *t
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// ---------------------------------------------------------------------------
// Auctions
// ---------------------------------------------------------------------------

type MemoryAuctionRepo struct {
	mu        sync.Mutex
	nextID    int64
	nextBidID int64
	auctions  map[int64]*domain.Auction
	bids      map[int64][]*domain.Bid // auctionID -> bids
}

func NewMemoryAuctionRepo() *MemoryAuctionRepo {
	return &MemoryAuctionRepo{
		auctions: make(map[int64]*domain.Auction),
		bids:     make(map[int64][]*domain.Bid),
	}
}

func (r *MemoryAuctionRepo) Create(ctx context.Context, a *domain.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	a.ID = r.nextID
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	r.auctions[a.ID] = &cp
	return nil
}

func (r *MemoryAuctionRepo) GetByID(ctx context.Context, id int64) (*domain.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.auctions[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryAuctionRepo) PlaceBid(ctx context.Context, auctionID int64, bidderID string, amount decimal.Decimal, maxBid *decimal.Decimal, now time.Time) (*PlaceBidResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.auctions[auctionID]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	if err := a.ValidateBid(bidderID, amount, now); err != nil {
		return nil, err
	}

	outbid := ""
	if a.HighestBidderID != nil && *a.HighestBidderID != bidderID {
		outbid = *a.HighestBidderID
	}

	for _, b := range r.bids[auctionID] {
		b.IsWinning = false
	}
	r.nextBidID++
	bid := &domain.Bid{
		ID:        r.nextBidID,
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    amount,
		MaxBid:    maxBid,
		IsWinning: true,
		CreatedAt: now,
	}
	r.bids[auctionID] = append(r.bids[auctionID], bid)

	amt := amount
	bidder := bidderID
	a.CurrentBid = &amt
	a.HighestBidderID = &bidder
	a.BidCount++
	a.UpdatedAt = now

	bidCp := *bid
	aCp := *a
	return &PlaceBidResult{Bid: &bidCp, Auction: &aCp, OutbidUserID: outbid}, nil
}

func (r *MemoryAuctionRepo) BuyNow(ctx context.Context, auctionID int64, buyerID string, now time.Time) (*domain.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.auctions[auctionID]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	if a.Status != domain.AuctionStatusActive || now.After(a.EndsAt) {
		return nil, xerrors.ErrAuctionNotActive
	}
	if a.BuyNowPrice == nil {
		return nil, xerrors.ErrBuyNowUnavailable
	}

	a.Status = domain.AuctionStatusSold
	a.WinnerID = &buyerID
	a.FinalPrice = a.BuyNowPrice
	a.UpdatedAt = now
	cp := *a
	return &cp, nil
}

func (r *MemoryAuctionRepo) Close(ctx context.Context, auctionID int64, now time.Time) (*domain.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.auctions[auctionID]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	if a.Status != domain.AuctionStatusActive {
		return nil, xerrors.ErrAuctionNotActive
	}
	if now.Before(a.EndsAt) {
		return nil, fmt.Errorf("%w: auction has not ended yet", xerrors.ErrInvalidRequest)
	}

	if a.ReserveMet() {
		a.Status = domain.AuctionStatusSold
		a.WinnerID = a.HighestBidderID
		a.FinalPrice = a.CurrentBid
	} else {
		a.Status = domain.AuctionStatusEnded
	}
	a.UpdatedAt = now
	cp := *a
	return &cp, nil
}

func (r *MemoryAuctionRepo) ListBids(ctx context.Context, auctionID int64) ([]*domain.Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bids := r.bids[auctionID]
	out := make([]*domain.Bid, 0, len(bids))
	for i := len(bids) - 1; i >= 0; i-- {
		cp := *bids[i]
		out = append(out, &cp)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Escrow
// ---------------------------------------------------------------------------

type MemoryEscrowRepo struct {
	mu      sync.Mutex
	nextID  int64
	orders  map[int64]*domain.EscrowOrder
	wallets *MemoryWalletRepo
}

func NewMemoryEscrowRepo(wallets *MemoryWalletRepo) *MemoryEscrowRepo {
	return &MemoryEscrowRepo{
		orders:  make(map[int64]*domain.EscrowOrder),
		wallets: wallets,
	}
}

func (r *MemoryEscrowRepo) Create(ctx context.Context, o *domain.EscrowOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	o.ID = r.nextID
	o.Status = domain.EscrowStatusPending
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	cp := *o
	r.orders[o.ID] = &cp
	return nil
}

func (r *MemoryEscrowRepo) GetByID(ctx context.Context, id int64) (*domain.EscrowOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *MemoryEscrowRepo) transition(o *domain.EscrowOrder, to domain.EscrowStatus, now time.Time) error {
	if !domain.CanTransition(o.Status, to) {
		return xerrors.ErrInvalidTransition
	}
	o.Status = to
	o.UpdatedAt = now
	ts := now
	switch to {
	case domain.EscrowStatusFundsLocked:
		o.LockedAt = &ts
	case domain.EscrowStatusShipped:
		o.ShippedAt = &ts
	case domain.EscrowStatusDelivered:
		o.DeliveredAt = &ts
	case domain.EscrowStatusReleased:
		o.ReleasedAt = &ts
	}
	return nil
}

func (r *MemoryEscrowRepo) LockFunds(ctx context.Context, orderID, buyerWalletID int64, reference string) (*domain.EscrowOrder, *domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok {
		return nil, nil, xerrors.ErrNotFound
	}
	if !domain.CanTransition(o.Status, domain.EscrowStatusFundsLocked) {
		return nil, nil, xerrors.ErrInvalidTransition
	}
	desc := fmt.Sprintf("escrow payment for order #%d", orderID)
	entry, err := r.wallets.DebitTx(ctx, nil, buyerWalletID, o.OrderTotal, desc, reference)
	if err != nil {
		return nil, nil, err
	}
	_ = r.transition(o, domain.EscrowStatusFundsLocked, time.Now())
	cp := *o
	return &cp, entry, nil
}

func (r *MemoryEscrowRepo) Advance(ctx context.Context, orderID int64, to domain.EscrowStatus) (*domain.EscrowOrder, error) {
	switch to {
	case domain.EscrowStatusFundsLocked, domain.EscrowStatusReleased, domain.EscrowStatusRefunded:
		return nil, xerrors.ErrInvalidTransition
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	if err := r.transition(o, to, time.Now()); err != nil {
		return nil, err
	}
	cp := *o
	return &cp, nil
}

func (r *MemoryEscrowRepo) Release(ctx context.Context, orderID, sellerWalletID int64, netProceeds decimal.Decimal, reference string) (*domain.EscrowOrder, *domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok {
		return nil, nil, xerrors.ErrNotFound
	}
	if !domain.CanTransition(o.Status, domain.EscrowStatusReleased) {
		return nil, nil, xerrors.ErrInvalidTransition
	}
	desc := fmt.Sprintf("escrow release for order #%d", orderID)
	entry, err := r.wallets.CreditTx(ctx, nil, sellerWalletID, netProceeds, desc, reference)
	if err != nil {
		return nil, nil, err
	}
	_ = r.transition(o, domain.EscrowStatusReleased, time.Now())
	cp := *o
	return &cp, entry, nil
}

func (r *MemoryEscrowRepo) Refund(ctx context.Context, orderID, buyerWalletID int64, reference string) (*domain.EscrowOrder, *domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok {
		return nil, nil, xerrors.ErrNotFound
	}
	if !domain.CanTransition(o.Status, domain.EscrowStatusRefunded) {
		return nil, nil, xerrors.ErrInvalidTransition
	}
	var entry *domain.Transaction
	if o.LockedAt != nil {
		desc := fmt.Sprintf("escrow refund for order #%d", orderID)
		var err error
		entry, err = r.wallets.CreditTx(ctx, nil, buyerWalletID, o.OrderTotal, desc, reference)
		if err != nil {
			return nil, nil, err
		}
	}
	_ = r.transition(o, domain.EscrowStatusRefunded, time.Now())
	cp := *o
	return &cp, entry, nil
}

// ---------------------------------------------------------------------------
// Fractional ownership
// ---------------------------------------------------------------------------

type MemoryFractionalRepo struct {
	mu           sync.Mutex
	nextID       int64
	nextOwnID    int64
	nextResaleID int64
	listings     map[int64]*domain.FractionalListing
	ownerships   map[int64]map[string]*domain.Ownership // listingID -> holder -> ownership
	resales      map[int64]*domain.ResaleListing
	wallets      *MemoryWalletRepo
}

func NewMemoryFractionalRepo(wallets *MemoryWalletRepo) *MemoryFractionalRepo {
	return &MemoryFractionalRepo{
		listings:   make(map[int64]*domain.FractionalListing),
		ownerships: make(map[int64]map[string]*domain.Ownership),
		resales:    make(map[int64]*domain.ResaleListing),
		wallets:    wallets,
	}
}

func (r *MemoryFractionalRepo) CreateListing(ctx context.Context, l *domain.FractionalListing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	l.ID = r.nextID
	l.AvailableShares = l.TotalShares
	l.SharePrice = domain.SharePriceFor(l.TotalValue, l.TotalShares)
	l.CreatedAt = time.Now()
	l.UpdatedAt = l.CreatedAt
	cp := *l
	r.listings[l.ID] = &cp
	return nil
}

func (r *MemoryFractionalRepo) GetListing(ctx context.Context, id int64) (*domain.FractionalListing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.listings[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (r *MemoryFractionalRepo) GetOwnership(ctx context.Context, listingID int64, holderID string) (*domain.Ownership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.ownerships[listingID][holderID]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *MemoryFractionalRepo) ListHoldings(ctx context.Context, holderID string) ([]*domain.Ownership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Ownership
	for _, holders := range r.ownerships {
		if o, ok := holders[holderID]; ok && o.SharesOwned > 0 {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ListingID < out[j].ListingID })
	return out, nil
}

func (r *MemoryFractionalRepo) GetResale(ctx context.Context, resaleID int64) (*domain.ResaleListing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rl, ok := r.resales[resaleID]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *rl
	return &cp, nil
}

func (r *MemoryFractionalRepo) PurchaseShares(ctx context.Context, listingID int64, buyerID string, buyerWalletID, ownerWalletID, quantity int64, reference string) (*PurchaseResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.listings[listingID]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	if quantity > l.AvailableShares {
		return nil, xerrors.ErrInsufficientShares
	}
	if quantity < l.MinShares {
		var held int64
		if o, ok := r.ownerships[listingID][buyerID]; ok {
			held = o.SharesOwned
		}
		if held < l.MinShares {
			return nil, xerrors.ErrBelowMinimum
		}
	}

	// Both wallets are checked before any money moves, so a failure here
	// leaves no partial debit behind.
	if !r.wallets.exists(ownerWalletID) {
		return nil, xerrors.ErrNotFound
	}
	cost := l.SharePrice.Mul(decimal.NewFromInt(quantity))
	desc := fmt.Sprintf("purchase of %d shares in listing #%d", quantity, listingID)
	debit, err := r.wallets.DebitTx(ctx, nil, buyerWalletID, cost, desc, reference)
	if err != nil {
		return nil, err
	}
	proceeds := fmt.Sprintf("sale of %d shares in listing #%d", quantity, listingID)
	credit, err := r.wallets.CreditTx(ctx, nil, ownerWalletID, cost, proceeds, reference)
	if err != nil {
		return nil, err
	}

	l.AvailableShares -= quantity
	l.UpdatedAt = time.Now()
	own := r.upsertOwnership(listingID, buyerID, quantity)

	cp := *own
	return &PurchaseResult{Ownership: &cp, Cost: cost, Transactions: []*domain.Transaction{debit, credit}}, nil
}

func (r *MemoryFractionalRepo) upsertOwnership(listingID int64, holderID string, delta int64) *domain.Ownership {
	holders, ok := r.ownerships[listingID]
	if !ok {
		holders = make(map[string]*domain.Ownership)
		r.ownerships[listingID] = holders
	}
	o, ok := holders[holderID]
	if !ok {
		r.nextOwnID++
		o = &domain.Ownership{
			ID:        r.nextOwnID,
			ListingID: listingID,
			HolderID:  holderID,
			CreatedAt: time.Now(),
		}
		holders[holderID] = o
	}
	o.SharesOwned += delta
	o.UpdatedAt = time.Now()
	return o
}

func (r *MemoryFractionalRepo) ListForResale(ctx context.Context, listingID int64, sellerID string, quantity int64, pricePerShare decimal.Decimal) (*domain.ResaleListing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.ownerships[listingID][sellerID]
	if !ok {
		return nil, xerrors.ErrNotFound
	}

	var alreadyListed int64
	for _, rl := range r.resales {
		if rl.ListingID == listingID && rl.SellerID == sellerID && rl.Status == domain.ResaleStatusActive {
			alreadyListed += rl.Quantity
		}
	}
	if quantity > o.SharesOwned-alreadyListed {
		return nil, xerrors.ErrExceedsOwnedBalance
	}

	r.nextResaleID++
	now := time.Now()
	rl := &domain.ResaleListing{
		ID:            r.nextResaleID,
		ListingID:     listingID,
		SellerID:      sellerID,
		Quantity:      quantity,
		PricePerShare: pricePerShare,
		Status:        domain.ResaleStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	r.resales[rl.ID] = rl
	cp := *rl
	return &cp, nil
}

func (r *MemoryFractionalRepo) PurchaseResale(ctx context.Context, resaleID int64, buyerID string, buyerWalletID, sellerWalletID int64, reference string) (*PurchaseResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rl, ok := r.resales[resaleID]
	if !ok || rl.Status != domain.ResaleStatusActive {
		return nil, xerrors.ErrNotFound
	}
	seller, ok := r.ownerships[rl.ListingID][rl.SellerID]
	if !ok || seller.SharesOwned < rl.Quantity {
		return nil, xerrors.ErrInsufficientShares
	}

	if !r.wallets.exists(sellerWalletID) {
		return nil, xerrors.ErrNotFound
	}
	cost := rl.PricePerShare.Mul(decimal.NewFromInt(rl.Quantity))
	desc := fmt.Sprintf("resale purchase of %d shares in listing #%d", rl.Quantity, rl.ListingID)
	debit, err := r.wallets.DebitTx(ctx, nil, buyerWalletID, cost, desc, reference)
	if err != nil {
		return nil, err
	}
	proceeds := fmt.Sprintf("resale of %d shares in listing #%d", rl.Quantity, rl.ListingID)
	credit, err := r.wallets.CreditTx(ctx, nil, sellerWalletID, cost, proceeds, reference)
	if err != nil {
		return nil, err
	}

	seller.SharesOwned -= rl.Quantity
	seller.UpdatedAt = time.Now()
	own := r.upsertOwnership(rl.ListingID, buyerID, rl.Quantity)
	rl.Status = domain.ResaleStatusSold
	rl.UpdatedAt = time.Now()

	cp := *own
	return &PurchaseResult{Ownership: &cp, Cost: cost, Transactions: []*domain.Transaction{debit, credit}}, nil
}

// ---------------------------------------------------------------------------
// Subscriptions
// ---------------------------------------------------------------------------

type MemorySubscriptionRepo struct {
	mu      sync.Mutex
	nextID  int64
	byUser  map[string]*domain.Subscription
	byID    map[int64]*domain.Subscription
	wallets *MemoryWalletRepo
}

func NewMemorySubscriptionRepo(wallets *MemoryWalletRepo) *MemorySubscriptionRepo {
	return &MemorySubscriptionRepo{
		byUser:  make(map[string]*domain.Subscription),
		byID:    make(map[int64]*domain.Subscription),
		wallets: wallets,
	}
}

func (r *MemorySubscriptionRepo) GetByUserID(ctx context.Context, userID string) (*domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byUser[userID]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MemorySubscriptionRepo) Subscribe(ctx context.Context, userID string, walletID int64, tier domain.Tier, cycle domain.BillingCycle, price decimal.Decimal, reference string, now time.Time) (*domain.Subscription, *domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var charge *domain.Transaction
	if price.IsPositive() {
		desc := fmt.Sprintf("%s subscription (%s)", tier, cycle)
		var err error
		charge, err = r.wallets.DebitTx(ctx, nil, walletID, price, desc, reference)
		if err != nil {
			return nil, nil, err
		}
	}

	s, ok := r.byUser[userID]
	if !ok {
		r.nextID++
		s = &domain.Subscription{ID: r.nextID, UserID: userID, CreatedAt: now}
		r.byUser[userID] = s
		r.byID[s.ID] = s
	}
	s.Tier = tier
	s.Price = price
	s.BillingCycle = cycle
	s.StartedAt = now
	s.ExpiresAt = domain.NextExpiry(now, cycle)
	s.AutoRenew = true
	s.UpdatedAt = now
	cp := *s
	return &cp, charge, nil
}

func (r *MemorySubscriptionRepo) Renew(ctx context.Context, subID, walletID int64, price decimal.Decimal, reference string, now time.Time) (*domain.Subscription, *domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[subID]
	if !ok {
		return nil, nil, xerrors.ErrNotFound
	}

	var charge *domain.Transaction
	if price.IsPositive() {
		desc := fmt.Sprintf("%s subscription renewal (%s)", s.Tier, s.BillingCycle)
		var err error
		charge, err = r.wallets.DebitTx(ctx, nil, walletID, price, desc, reference)
		if err != nil {
			return nil, nil, err
		}
	}

	base := s.ExpiresAt
	if now.After(base) {
		base = now
	}
	s.ExpiresAt = domain.NextExpiry(base, s.BillingCycle)
	s.Price = price
	s.UpdatedAt = now
	cp := *s
	return &cp, charge, nil
}

func (r *MemorySubscriptionRepo) Downgrade(ctx context.Context, subID int64) (*domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[subID]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	s.Tier = domain.TierFree
	s.Price = decimal.Zero
	s.AutoRenew = false
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}

// SetExpiry backdates a subscription, letting tests drive the renewal sweep
// without waiting out a billing period.
func (r *MemorySubscriptionRepo) SetExpiry(subID int64, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byID[subID]; ok {
		s.ExpiresAt = at
	}
}

func (r *MemorySubscriptionRepo) ListDueForRenewal(ctx context.Context, now time.Time, limit int) ([]*domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.Subscription
	for _, s := range r.byID {
		if s.AutoRenew && !s.ExpiresAt.After(now) && s.Tier != domain.TierFree {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
