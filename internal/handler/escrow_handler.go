package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"marketplace-core/internal/domain"
	"marketplace-core/internal/usecase"
	"marketplace-core/pkg/response"

	"go.uber.org/zap"
)

type EscrowHandler struct {
	escrowUC *usecase.EscrowUsecase
	logger   *zap.Logger
}

func NewEscrowHandler(escrowUC *usecase.EscrowUsecase, logger *zap.Logger) *EscrowHandler {
	return &EscrowHandler{escrowUC: escrowUC, logger: logger}
}

func (h *EscrowHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req usecase.CreateOrderInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	o, err := h.escrowUC.CreateOrder(r.Context(), userID(r), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, o)
}

func (h *EscrowHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.escrowUC.GetOrder)
}

func (h *EscrowHandler) LockFunds(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.escrowUC.LockFunds)
}

func (h *EscrowHandler) MarkShipped(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.escrowUC.MarkShipped)
}

func (h *EscrowHandler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.escrowUC.MarkDelivered)
}

func (h *EscrowHandler) Release(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.escrowUC.Release)
}

func (h *EscrowHandler) Dispute(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.escrowUC.Dispute)
}

func (h *EscrowHandler) Refund(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.escrowUC.Refund)
}

// Every escrow action shares the same shape: actor + order id in, order out.
func (h *EscrowHandler) run(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, actorID string, orderID int64) (*domain.EscrowOrder, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	o, err := op(r.Context(), userID(r), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, o)
}
