package httpx

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-marketplace-core/internal/inventory"
	"github.com/ariefcatur/go-marketplace-core/internal/market"
	"github.com/ariefcatur/go-marketplace-core/internal/orders"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type orderLineReq struct {
	ItemID   string `json:"item_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"gt=0,max=2147483647"`
	// Name, Price and Image are sent by older clients; the stored snapshot
	// always comes from the catalog.
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Image string          `json:"image"`
}

type createOrderReq struct {
	Items           []orderLineReq          `json:"items" validate:"dive"`
	ShippingAddress *market.ShippingAddress `json:"shipping_address"`
	PaymentMethod   string                  `json:"payment_method" validate:"max=64"`
}

type lineResp struct {
	ItemID   string          `json:"item_id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	Image    string          `json:"image"`
}

type orderResp struct {
	ID              string                  `json:"id"`
	UserName        string                  `json:"user_name"`
	Items           []lineResp              `json:"items"`
	TotalAmount     decimal.Decimal         `json:"total_amount"`
	TaxAmount       decimal.Decimal         `json:"tax_amount"`
	ShippingAmount  decimal.Decimal         `json:"shipping_amount"`
	Status          market.OrderStatus      `json:"status"`
	ShippingAddress *market.ShippingAddress `json:"shipping_address"`
	PaymentMethod   string                  `json:"payment_method"`
	TrackingNumber  *string                 `json:"tracking_number"`
	CreatedAt       time.Time               `json:"created_at"`
}

func toOrderResp(o *market.Order) orderResp {
	lines := make([]lineResp, 0, len(o.Items))
	for _, l := range o.Items {
		lines = append(lines, lineResp{
			ItemID:   l.ItemID.String(),
			Name:     l.Name,
			Price:    l.Price.Round(2),
			Quantity: l.Quantity,
			Image:    l.Image,
		})
	}
	addr := o.ShippingAddress
	return orderResp{
		ID:              o.ID.String(),
		UserName:        o.OwnerName,
		Items:           lines,
		TotalAmount:     o.TotalAmount.Round(2),
		TaxAmount:       o.TaxAmount.Round(2),
		ShippingAmount:  o.ShippingAmount.Round(2),
		Status:          o.Status,
		ShippingAddress: &addr,
		PaymentMethod:   o.PaymentMethod,
		TrackingNumber:  o.TrackingNumber,
		CreatedAt:       o.CreatedAt,
	}
}

func (a *API) createOrder(w http.ResponseWriter, r *http.Request) {
	req, ok := ValidateRequest[createOrderReq](w, r)
	if !ok {
		return
	}

	cart := orders.Cart{
		Lines:          make([]inventory.Line, 0, len(req.Items)),
		PaymentMethod:  strings.TrimSpace(req.PaymentMethod),
		IdempotencyKey: r.Header.Get(HeaderIdempotencyKey),
	}
	if req.ShippingAddress != nil {
		cart.ShippingAddress = *req.ShippingAddress
	}
	for _, it := range req.Items {
		id, err := market.ParseID(it.ItemID)
		if err != nil {
			WriteError(w, r, a.Log, err)
			return
		}
		cart.Lines = append(cart.Lines, inventory.Line{ItemID: id, Quantity: it.Quantity})
	}

	res, err := a.Orders.CreateOrder(r.Context(), caller(r), cart)
	if err != nil {
		WriteError(w, r, a.Log, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	JSON(w, status, toOrderResp(res.Order))
}

func (a *API) listOrders(w http.ResponseWriter, r *http.Request) {
	list, err := a.Orders.ListOrders(r.Context(), caller(r))
	if err != nil {
		WriteError(w, r, a.Log, err)
		return
	}
	out := make([]orderResp, 0, len(list))
	for i := range list {
		out = append(out, toOrderResp(&list[i]))
	}
	JSON(w, http.StatusOK, out)
}

func (a *API) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := a.Orders.GetOrder(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, a.Log, err)
		return
	}
	JSON(w, http.StatusOK, toOrderResp(o))
}
