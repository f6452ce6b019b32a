package handler

import (
	"encoding/json"
	"net/http"

	"marketplace-core/internal/domain"
	"marketplace-core/internal/usecase"
	"marketplace-core/pkg/response"

	"go.uber.org/zap"
)

type SubscriptionHandler struct {
	subUC  *usecase.SubscriptionUsecase
	logger *zap.Logger
}

func NewSubscriptionHandler(subUC *usecase.SubscriptionUsecase, logger *zap.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{subUC: subUC, logger: logger}
}

func (h *SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tier  domain.Tier         `json:"tier"`
		Cycle domain.BillingCycle `json:"billing_cycle"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	s, err := h.subUC.Subscribe(r.Context(), userID(r), req.Tier, req.Cycle)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, s)
}

func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.subUC.GetSubscription(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, s)
}

func (h *SubscriptionHandler) Renew(w http.ResponseWriter, r *http.Request) {
	s, err := h.subUC.Renew(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, s)
}
