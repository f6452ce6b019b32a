package handler

import (
	"encoding/json"
	"net/http"

	"marketplace-core/internal/usecase"
	"marketplace-core/pkg/response"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type FractionalHandler struct {
	fractionalUC *usecase.FractionalUsecase
	logger       *zap.Logger
}

func NewFractionalHandler(fractionalUC *usecase.FractionalUsecase, logger *zap.Logger) *FractionalHandler {
	return &FractionalHandler{fractionalUC: fractionalUC, logger: logger}
}

func (h *FractionalHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	var req usecase.CreateListingInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	l, err := h.fractionalUC.CreateListing(r.Context(), userID(r), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, l)
}

func (h *FractionalHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	l, err := h.fractionalUC.GetListing(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, l)
}

func (h *FractionalHandler) ListHoldings(w http.ResponseWriter, r *http.Request) {
	holdings, err := h.fractionalUC.ListHoldings(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, holdings)
}

func (h *FractionalHandler) PurchaseShares(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req struct {
		Quantity int64 `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.fractionalUC.PurchaseShares(r.Context(), userID(r), id, req.Quantity)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, res)
}

func (h *FractionalHandler) ListForResale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req struct {
		Quantity      int64           `json:"quantity"`
		PricePerShare decimal.Decimal `json:"price_per_share"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	rl, err := h.fractionalUC.ListSharesForResale(r.Context(), userID(r), id, req.Quantity, req.PricePerShare)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, rl)
}

func (h *FractionalHandler) PurchaseResale(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	res, err := h.fractionalUC.PurchaseResaleShares(r.Context(), userID(r), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, res)
}
