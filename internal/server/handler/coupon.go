package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/consensusbot/internal/domain"
	"github.com/alanyoungcy/consensusbot/internal/service"
)

// CouponService defines the methods that the coupon handler requires from the
// service layer.
type CouponService interface {
	Create(ctx context.Context, userID string, picks []service.PickInput) (domain.Coupon, error)
	Get(ctx context.Context, id string) (domain.Coupon, error)
	ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Coupon, error)
}

// CouponHandler serves coupon endpoints.
type CouponHandler struct {
	svc    CouponService
	logger *slog.Logger
}

// NewCouponHandler creates a CouponHandler.
func NewCouponHandler(svc CouponService, logger *slog.Logger) *CouponHandler {
	return &CouponHandler{svc: svc, logger: logHandler(logger, "coupon")}
}

type createCouponRequest struct {
	UserID string              `json:"user_id"`
	Picks  []service.PickInput `json:"picks"`
}

// Create stores a new pending coupon.
// POST /api/coupons
func (h *CouponHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	present, err := decodeBody(r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !present {
		writeError(w, http.StatusBadRequest, "missing coupon")
		return
	}

	c, err := h.svc.Create(r.Context(), req.UserID, req.Picks)
	if err != nil {
		writeServiceError(w, r, h.logger, "create coupon", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// Get returns one coupon with its picks.
// GET /api/coupons/{id}
func (h *CouponHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing coupon id")
		return
	}
	c, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get coupon", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type listCouponsResponse struct {
	Coupons []domain.Coupon `json:"coupons"`
}

// ListByUser returns a user's coupons, newest first.
// GET /api/users/{id}/coupons?limit=50&offset=0
func (h *CouponHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID := pathParam(r, "id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}
	cs, err := h.svc.ListByUser(r.Context(), userID, parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "list coupons", err)
		return
	}
	if cs == nil {
		cs = []domain.Coupon{}
	}
	writeJSON(w, http.StatusOK, listCouponsResponse{Coupons: cs})
}
