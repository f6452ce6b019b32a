package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"marketplace-core/internal/usecase"
	"marketplace-core/pkg/response"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type AuctionHandler struct {
	auctionUC *usecase.AuctionUsecase
	logger    *zap.Logger
}

func NewAuctionHandler(auctionUC *usecase.AuctionUsecase, logger *zap.Logger) *AuctionHandler {
	return &AuctionHandler{auctionUC: auctionUC, logger: logger}
}

func (h *AuctionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title         string           `json:"title"`
		StartingPrice decimal.Decimal  `json:"starting_price"`
		BidIncrement  decimal.Decimal  `json:"bid_increment"`
		ReservePrice  *decimal.Decimal `json:"reserve_price,omitempty"`
		BuyNowPrice   *decimal.Decimal `json:"buy_now_price,omitempty"`
		DurationHours int              `json:"duration_hours"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	a, err := h.auctionUC.CreateAuction(r.Context(), userID(r), usecase.CreateAuctionInput{
		Title:         req.Title,
		StartingPrice: req.StartingPrice,
		BidIncrement:  req.BidIncrement,
		ReservePrice:  req.ReservePrice,
		BuyNowPrice:   req.BuyNowPrice,
		Duration:      time.Duration(req.DurationHours) * time.Hour,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, a)
}

func (h *AuctionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	a, err := h.auctionUC.GetAuction(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, a)
}

func (h *AuctionHandler) ListBids(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	bids, err := h.auctionUC.ListBids(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, bids)
}

func (h *AuctionHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req struct {
		Amount decimal.Decimal  `json:"amount"`
		MaxBid *decimal.Decimal `json:"max_bid,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	bid, err := h.auctionUC.PlaceBid(r.Context(), id, userID(r), req.Amount, req.MaxBid)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, bid)
}

func (h *AuctionHandler) BuyNow(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	a, err := h.auctionUC.BuyNow(r.Context(), id, userID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, a)
}

func (h *AuctionHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	a, err := h.auctionUC.CloseAuction(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, a)
}
