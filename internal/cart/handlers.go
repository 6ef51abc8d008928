package cart

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-storefront/internal/cartengine"
	"github.com/noah-isme/backend-storefront/internal/common"
	"github.com/noah-isme/backend-storefront/internal/repo"
	"github.com/noah-isme/backend-storefront/internal/voucher"
)

// Handler wires the cart service to HTTP.
type Handler struct {
	Svc       *Service
	Validator *validator.Validate
}

// Routes mounts all cart endpoints on the router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Delete("/{id}", h.Clear)
	r.Post("/{id}/items", h.AddItem)
	r.Patch("/{id}/items/{ref}", h.UpdateItem)
	r.Delete("/{id}/items/{ref}", h.RemoveItem)
	r.Put("/{id}/shipping-method", h.SetShippingMethod)
	r.Put("/{id}/payment-method", h.SetPaymentMethod)
	r.Put("/{id}/shipping-country", h.SetShippingCountry)
	r.Get("/{id}/shipping-options", h.ShippingOptions)
	r.Post("/{id}/voucher", h.ApplyVoucher)
	r.Delete("/{id}/voucher", h.RemoveVoucher)
}

// Create returns the active cart for the caller, creating one when needed.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	var payload struct {
		AnonID string `json:"anonId"`
	}
	_ = json.NewDecoder(r.Body).Decode(&payload)

	var userID *uuid.UUID
	if id, ok := common.UserUUID(r.Context()); ok {
		userID = &id
	}
	anonID := strings.TrimSpace(payload.AnonID)
	if anonID == "" && userID == nil {
		anonID = uuid.NewString()
	}
	var anonPtr *string
	if anonID != "" {
		anonPtr = &anonID
	}
	sess, err := h.Svc.EnsureCart(r.Context(), userID, anonPtr)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, h.Svc.BuildView(sess))
}

// Get returns the computed cart view.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	h.withCart(w, r, func(id uuid.UUID) (*Session, error) {
		return h.Svc.Get(r.Context(), id)
	})
}

// AddItem adds quantity of a product to the cart.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ProductRef string      `json:"productRef" validate:"required"`
		Qty        json.Number `json:"qty" validate:"required"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	qty, err := decimal.NewFromString(payload.Qty.String())
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "qty must be a number", nil)
		return
	}
	h.withCart(w, r, func(id uuid.UUID) (*Session, error) {
		return h.Svc.AddItem(r.Context(), id, payload.ProductRef, qty)
	})
}

// UpdateItem sets the absolute quantity for a line item.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	var payload struct {
		Qty json.Number `json:"qty" validate:"required"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	qty, err := decimal.NewFromString(payload.Qty.String())
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "qty must be a number", nil)
		return
	}
	h.withCart(w, r, func(id uuid.UUID) (*Session, error) {
		return h.Svc.SetItemQuantity(r.Context(), id, ref, qty)
	})
}

// RemoveItem deletes a line item.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	h.withCart(w, r, func(id uuid.UUID) (*Session, error) {
		return h.Svc.RemoveItem(r.Context(), id, ref)
	})
}

// SetShippingMethod chooses the cart's shipping method.
func (h *Handler) SetShippingMethod(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Method string `json:"method"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	h.withCart(w, r, func(id uuid.UUID) (*Session, error) {
		return h.Svc.SetShippingMethod(r.Context(), id, strings.TrimSpace(payload.Method))
	})
}

// SetPaymentMethod chooses the cart's payment method.
func (h *Handler) SetPaymentMethod(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Method string `json:"method"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	h.withCart(w, r, func(id uuid.UUID) (*Session, error) {
		return h.Svc.SetPaymentMethod(r.Context(), id, strings.TrimSpace(payload.Method))
	})
}

// SetShippingCountry changes the destination country.
func (h *Handler) SetShippingCountry(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Country string `json:"country" validate:"required,len=2"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	h.withCart(w, r, func(id uuid.UUID) (*Session, error) {
		return h.Svc.SetShippingCountry(r.Context(), id, payload.Country)
	})
}

// ShippingOptions lists shipping methods for the cart's destination.
func (h *Handler) ShippingOptions(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	id, err := parseCartID(r)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid cart id", nil)
		return
	}
	sess, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, h.Svc.ShippingOptions(sess))
}

// ApplyVoucher attaches a voucher code to the cart.
func (h *Handler) ApplyVoucher(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Code string `json:"code" validate:"required"`
	}
	if !h.decode(w, r, &payload) {
		return
	}
	h.withCart(w, r, func(id uuid.UUID) (*Session, error) {
		return h.Svc.ApplyVoucher(r.Context(), id, payload.Code)
	})
}

// RemoveVoucher detaches the applied voucher.
func (h *Handler) RemoveVoucher(w http.ResponseWriter, r *http.Request) {
	h.withCart(w, r, func(id uuid.UUID) (*Session, error) {
		return h.Svc.RemoveVoucher(r.Context(), id)
	})
}

// Clear empties the cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	h.withCart(w, r, func(id uuid.UUID) (*Session, error) {
		return h.Svc.Clear(r.Context(), id)
	})
}

// withCart runs one cart operation and renders the refreshed view.
func (h *Handler) withCart(w http.ResponseWriter, r *http.Request, fn func(uuid.UUID) (*Session, error)) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	id, err := parseCartID(r)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid cart id", nil)
		return
	}
	sess, err := fn(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, h.Svc.BuildView(sess))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, payload any) bool {
	if err := json.NewDecoder(r.Body).Decode(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return false
	}
	if h.Validator != nil {
		if err := h.Validator.Struct(payload); err != nil {
			appErr := common.NewAppError("BAD_REQUEST", err.Error(), http.StatusBadRequest, err).
				WithDetails(validationDetails(err))
			h.writeError(w, appErr)
			return false
		}
	}
	return true
}

// validationDetails maps failed struct fields to the rule they violated.
func validationDetails(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return fields
}

func parseCartID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	appErr := classifyError(err)
	common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Error(), appErr.Details)
}

// classifyError maps domain sentinels onto the code and status the API
// responds with. Errors the cart layer does not recognize stay internal.
func classifyError(err error) *common.AppError {
	if err == nil {
		return common.NewAppError("INTERNAL", "unknown error", http.StatusInternalServerError, nil)
	}
	if appErr, ok := common.AsAppError(err); ok {
		if appErr.HTTPStatus == 0 {
			appErr.HTTPStatus = http.StatusBadRequest
		}
		return appErr
	}
	switch {
	case errors.Is(err, ErrCartNotFound), errors.Is(err, ErrCartExpired):
		return common.NewAppError("NOT_FOUND", "", http.StatusNotFound, err)
	case errors.Is(err, repo.ErrVersionConflict):
		return common.NewAppError("CONFLICT", "", http.StatusConflict, err)
	case errors.Is(err, cartengine.ErrInsufficientStock):
		return common.NewAppError("INSUFFICIENT_STOCK", "", http.StatusUnprocessableEntity, err)
	case errors.Is(err, cartengine.ErrInvalidQuantity),
		errors.Is(err, cartengine.ErrUnresolvedProduct),
		errors.Is(err, ErrUnknownShippingMethod),
		errors.Is(err, ErrUnknownPaymentMethod),
		errors.Is(err, ErrInvalidCountry):
		return common.NewAppError("UNPROCESSABLE", "", http.StatusUnprocessableEntity, err)
	case errors.Is(err, ErrVoucherNotFound):
		return common.NewAppError("VOUCHER_NOT_FOUND", "", http.StatusNotFound, err)
	case errors.Is(err, voucher.ErrMinimumSpendUnmet),
		errors.Is(err, voucher.ErrUsageLimitReached),
		errors.Is(err, voucher.ErrVoucherInactive),
		errors.Is(err, voucher.ErrVoucherExpired):
		return common.NewAppError("VOUCHER_REJECTED", "", http.StatusUnprocessableEntity, err)
	default:
		return common.NewAppError("INTERNAL", "", http.StatusInternalServerError, err)
	}
}
