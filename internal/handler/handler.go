package handler

import (
	"errors"
	"net/http"
	"strconv"

	"marketplace-core/pkg/response"
	"marketplace-core/pkg/xerrors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// userID reads the authenticated user from the X-User-ID header, set by the
// API gateway after it verifies the session token. An empty value means the
// request never passed authentication.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, xerrors.ErrInvalidRequest
	}
	return id, nil
}

// writeError maps the error taxonomy onto HTTP statuses. Unknown errors are
// logged and reported as transient so callers know a retry is reasonable.
func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, xerrors.ErrUnauthenticated):
		response.Error(w, r, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, xerrors.ErrNotFound):
		response.Error(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, xerrors.ErrInvalidRequest),
		errors.Is(err, xerrors.ErrInvalidDuration):
		response.Error(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, xerrors.ErrInsufficientFunds):
		response.Error(w, r, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, xerrors.ErrInvalidTransition),
		errors.Is(err, xerrors.ErrAuctionNotActive),
		errors.Is(err, xerrors.ErrBuyNowUnavailable):
		response.Error(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, xerrors.ErrSelfBidDisallowed),
		errors.Is(err, xerrors.ErrBidTooLow),
		errors.Is(err, xerrors.ErrInsufficientShares),
		errors.Is(err, xerrors.ErrBelowMinimum),
		errors.Is(err, xerrors.ErrExceedsOwnedBalance):
		response.Error(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, xerrors.ErrTransient):
		response.Error(w, r, http.StatusServiceUnavailable, "temporarily unavailable, retry")
	default:
		logger.Error("unhandled error", zap.Error(err))
		response.Error(w, r, http.StatusInternalServerError, "internal server error")
	}
}
