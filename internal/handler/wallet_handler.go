package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"marketplace-core/internal/usecase"
	"marketplace-core/pkg/response"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type WalletHandler struct {
	walletUC *usecase.WalletUsecase
	logger   *zap.Logger
}

func NewWalletHandler(walletUC *usecase.WalletUsecase, logger *zap.Logger) *WalletHandler {
	return &WalletHandler{walletUC: walletUC, logger: logger}
}

func (h *WalletHandler) Create(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.walletUC.CreateWallet(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, wallet)
}

func (h *WalletHandler) Get(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.walletUC.GetWallet(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, wallet)
}

func (h *WalletHandler) TopUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	tx, err := h.walletUC.TopUp(r.Context(), userID(r), req.Amount)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, tx)
}

func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	txs, err := h.walletUC.ListTransactions(r.Context(), userID(r), limit, offset)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, txs)
}
