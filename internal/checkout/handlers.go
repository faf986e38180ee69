package checkout

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arkan-dev/backend-mall/internal/common"
	"github.com/arkan-dev/backend-mall/internal/coupon"
	"github.com/arkan-dev/backend-mall/internal/order"
	"github.com/arkan-dev/backend-mall/internal/pricing"
	"github.com/arkan-dev/backend-mall/internal/shipping"
	"github.com/arkan-dev/backend-mall/internal/stock"
)

// Handler exposes the checkout endpoints.
type Handler struct {
	Svc      *Service
	Coupons  *coupon.Engine
	Validate *validator.Validate
	Logger   zerolog.Logger
}

// Routes mounts the checkout endpoints on a fresh router.
func (h Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/calculate", h.calculate)
	r.Post("/quick", h.quick)
	r.Post("/submit", h.submit)
	r.Post("/coupons", h.recommendCoupons)
	return r
}

type checkoutRequest struct {
	Items          json.RawMessage `json:"items" validate:"required"`
	CouponCodes    []string        `json:"couponCodes" validate:"max=20,dive,required"`
	AddressID      string          `json:"addressId" validate:"omitempty,uuid"`
	Region         string          `json:"region" validate:"max=64"`
	Remark         string          `json:"remark" validate:"max=500"`
	IntegralPoints int64           `json:"integralPoints" validate:"gte=0"`
}

type submitRequest struct {
	checkoutRequest
	AddressID string `json:"addressId" validate:"required,uuid"`
}

func (h Handler) calculate(w http.ResponseWriter, r *http.Request) {
	in, ok := h.bind(w, r)
	if !ok {
		return
	}
	result, err := h.Svc.CalculateCheckout(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, newQuoteView(result))
}

func (h Handler) quick(w http.ResponseWriter, r *http.Request) {
	in, ok := h.bind(w, r)
	if !ok {
		return
	}
	result, err := h.Svc.QuickCalculate(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, newQuoteView(result))
}

func (h Handler) submit(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authedUser(w, r)
	if !ok {
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "malformed request body", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeValidation, err.Error(), nil)
		return
	}
	in := req.input(userID)
	in.AddressID = uuid.MustParse(req.AddressID)

	result, err := h.Svc.Process(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	view := newQuoteView(result)
	common.JSON(w, http.StatusCreated, submitView{
		quoteView: view,
		Order:     newOrderView(result.Order),
	})
}

// recommendCoupons evaluates the caller's claimable coupons against the
// current cart and returns them ranked by benefit.
func (h Handler) recommendCoupons(w http.ResponseWriter, r *http.Request) {
	in, ok := h.bind(w, r)
	if !ok {
		return
	}
	items, err := h.Svc.resolveItems(r.Context(), in.RawItems)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	recs, err := h.Coupons.Recommend(r.Context(), h.Svc.newContext(in, items))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	views := make([]couponView, 0, len(recs))
	for _, rec := range recs {
		views = append(views, couponView{
			Code:     rec.Coupon.Code,
			Name:     rec.Coupon.Name,
			Kind:     string(rec.Coupon.Kind),
			Discount: rec.Discount,
			Extras:   newExtraViews(rec.Extras),
		})
	}
	common.JSON(w, http.StatusOK, map[string]any{"coupons": views})
}

func (h Handler) bind(w http.ResponseWriter, r *http.Request) (Input, bool) {
	userID, ok := h.authedUser(w, r)
	if !ok {
		return Input{}, false
	}
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "malformed request body", nil)
		return Input{}, false
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, common.CodeValidation, err.Error(), nil)
		return Input{}, false
	}
	return req.input(userID), true
}

func (h Handler) authedUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := common.AuthUser(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return uuid.Nil, false
	}
	return userID, true
}

func (r checkoutRequest) input(userID uuid.UUID) Input {
	in := Input{
		UserID:         userID,
		RawItems:       r.Items,
		CouponCodes:    r.CouponCodes,
		Region:         r.Region,
		Remark:         r.Remark,
		IntegralPoints: r.IntegralPoints,
	}
	if r.AddressID != "" {
		if id, err := uuid.Parse(r.AddressID); err == nil {
			in.AddressID = id
		}
	}
	return in
}

func (h Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := common.AsAppError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		h.Logger.Error().
			Err(err).
			Str("path", r.URL.Path).
			Msg("checkout request failed")
	}
	common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
}

// View types shape the wire responses.

type quoteView struct {
	OriginalPrice string          `json:"originalPrice"`
	FinalPrice    string          `json:"finalPrice"`
	Discount      string          `json:"discount"`
	Total         string          `json:"total"`
	Breakdown     []breakdownView `json:"breakdown,omitempty"`
	Coupons       []string        `json:"appliedCoupons,omitempty"`
	Extras        []extraView     `json:"extraItems,omitempty"`
	Stock         *stockView      `json:"stock,omitempty"`
	Shipping      *shippingView   `json:"shipping,omitempty"`
}

type submitView struct {
	quoteView
	Order *orderView `json:"order"`
}

type breakdownView struct {
	SkuCode       string `json:"skuCode,omitempty"`
	Quantity      int    `json:"quantity,omitempty"`
	OriginalPrice string `json:"originalPrice"`
	FinalPrice    string `json:"finalPrice"`
	Discount      string `json:"discount"`
	Source        string `json:"source"`
}

type extraView struct {
	SkuID      string `json:"skuId"`
	Quantity   int    `json:"quantity"`
	UnitPrice  string `json:"unitPrice"`
	TotalPrice string `json:"totalPrice"`
	Kind       string `json:"kind"`
	CouponCode string `json:"couponCode,omitempty"`
}

type stockView struct {
	Valid    bool              `json:"valid"`
	Errors   map[string]string `json:"errors,omitempty"`
	Warnings map[string]string `json:"warnings,omitempty"`
}

type shippingView struct {
	Fee         string `json:"fee"`
	Free        bool   `json:"free"`
	Deliverable bool   `json:"deliverable"`
	Error       string `json:"error,omitempty"`
}

type couponView struct {
	Code     string      `json:"code"`
	Name     string      `json:"name"`
	Kind     string      `json:"kind"`
	Discount string      `json:"discount"`
	Extras   []extraView `json:"extraItems,omitempty"`
}

type orderView struct {
	ID           string `json:"id"`
	SerialNumber string `json:"serialNumber"`
	Status       string `json:"status"`
	TotalAmount  string `json:"totalAmount"`
	AutoCancelAt string `json:"autoCancelAt"`
}

func newQuoteView(res Result) quoteView {
	view := quoteView{
		OriginalPrice: res.Price.OriginalPrice,
		FinalPrice:    res.Price.FinalPrice,
		Discount:      res.Price.Discount,
		Total:         res.Total,
		Coupons:       res.Price.AppliedCoupons(),
		Breakdown:     newBreakdownViews(res.Price.Breakdown),
		Extras:        newExtraViews(res.Extras),
	}
	if res.Stock != nil {
		view.Stock = newStockView(*res.Stock)
	}
	if res.Shipping != nil {
		view.Shipping = newShippingView(*res.Shipping)
	}
	return view
}

func newBreakdownViews(rows []pricing.ProductPrice) []breakdownView {
	out := make([]breakdownView, 0, len(rows))
	for _, row := range rows {
		out = append(out, breakdownView{
			SkuCode:       row.SkuCode,
			Quantity:      row.Quantity,
			OriginalPrice: row.OriginalPrice,
			FinalPrice:    row.FinalPrice,
			Discount:      row.Discount,
			Source:        row.Source,
		})
	}
	return out
}

func newExtraViews(extras []pricing.ExtraItem) []extraView {
	out := make([]extraView, 0, len(extras))
	for _, ex := range extras {
		out = append(out, extraView{
			SkuID:      ex.SkuID.String(),
			Quantity:   ex.Quantity,
			UnitPrice:  ex.UnitPrice,
			TotalPrice: ex.TotalPrice,
			Kind:       string(ex.Kind),
			CouponCode: ex.CouponCode,
		})
	}
	return out
}

func newStockView(res stock.Result) *stockView {
	view := &stockView{Valid: res.Valid}
	if len(res.Errors) > 0 {
		view.Errors = stringKeyed(res.Errors)
	}
	if len(res.Warnings) > 0 {
		view.Warnings = stringKeyed(res.Warnings)
	}
	return view
}

func stringKeyed(in map[uuid.UUID]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k.String()] = v
	}
	return out
}

func newShippingView(res shipping.Result) *shippingView {
	return &shippingView{
		Fee:         res.Fee,
		Free:        res.Free,
		Deliverable: res.Deliverable,
		Error:       res.Error,
	}
}

func newOrderView(c *order.Contract) *orderView {
	if c == nil {
		return nil
	}
	return &orderView{
		ID:           c.ID.String(),
		SerialNumber: c.SerialNumber,
		Status:       string(c.Status),
		TotalAmount:  c.TotalAmount,
		AutoCancelAt: c.AutoCancelAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
