package cart

import (
	"time"

	"github.com/noah-isme/backend-storefront/internal/cartengine"
	"github.com/noah-isme/backend-storefront/internal/delivery"
	"github.com/noah-isme/backend-storefront/internal/obs"
)

// ItemView is the API representation of one cart line.
type ItemView struct {
	ProductRef string `json:"productRef"`
	Title      string `json:"title"`
	Quantity   string `json:"qty"`
	UnitPrice  string `json:"unitPrice"`
	LineTotal  string `json:"lineTotal"`
	TaxRate    string `json:"taxRate"`
	Notice     string `json:"notice,omitempty"`
}

// TaxBucketView is one tax rate bucket of the cart.
type TaxBucketView struct {
	Rate   string `json:"rate"`
	Amount string `json:"amount"`
}

// TotalsView groups the cart's monetary aggregates.
type TotalsView struct {
	ProductValue string `json:"productValue"`
	WithFees     string `json:"withFees"`
	Total        string `json:"total"`
	TaxTotal     string `json:"taxTotal"`
}

// View is the API representation of a computed cart.
type View struct {
	ID              string           `json:"id"`
	AnonID          *string          `json:"anonId,omitempty"`
	UserID          *string          `json:"userId,omitempty"`
	Items           []ItemView       `json:"items"`
	ShippingMethod  string           `json:"shippingMethod,omitempty"`
	PaymentMethod   string           `json:"paymentMethod,omitempty"`
	ShippingCountry string           `json:"shippingCountry"`
	Voucher         *string          `json:"voucher,omitempty"`
	Totals          TotalsView       `json:"totals"`
	TaxBuckets      []TaxBucketView  `json:"taxBuckets"`
	WeightGrams     *int64           `json:"weightGrams,omitempty"`
	InStock         bool             `json:"inStock"`
	Delivery        *delivery.Window `json:"delivery,omitempty"`
	Currency        string           `json:"currency"`
	Version         int64            `json:"version"`
}

// ShippingOption describes one shipping method offered for the cart's
// destination, priced at the cart's current weight.
type ShippingOption struct {
	Ref       string           `json:"ref"`
	Title     string           `json:"title"`
	Pickup    bool             `json:"pickup"`
	Fee       *string          `json:"fee,omitempty"`
	Available bool             `json:"available"`
	Cheapest  bool             `json:"cheapest"`
	Delivery  *delivery.Window `json:"delivery,omitempty"`
}

// BuildView computes the full pricing view for a session.
func (s *Service) BuildView(sess *Session) View {
	start := time.Now()
	defer func() {
		if obs.CartComputeDuration != nil {
			obs.CartComputeDuration.Observe(obs.DurationMillis(time.Since(start)))
		}
	}()

	engine := sess.Engine
	none := cartengine.Exclude{}
	mode := s.Cfg.Mode
	if mode == cartengine.PriceModeDefault {
		mode = cartengine.PriceModeGross
	}

	view := View{
		ID:              sess.Cart.ID.String(),
		AnonID:          sess.Cart.AnonID,
		Items:           make([]ItemView, 0, len(engine.Items())),
		ShippingMethod:  engine.ShippingMethod(),
		PaymentMethod:   engine.PaymentMethod(),
		ShippingCountry: engine.ShippingCountry(),
		Voucher:         sess.Cart.VoucherCode,
		Currency:        s.Cfg.Currency,
		Version:         sess.Cart.Version,
		InStock:         engine.IsAvailableInStock(),
	}
	if sess.Cart.UserID != nil {
		id := sess.Cart.UserID.String()
		view.UserID = &id
	}

	for _, li := range engine.Items() {
		item := ItemView{
			ProductRef: li.ProductRef,
			Title:      sess.Snapshot.Title(li.ProductRef),
			Quantity:   li.Quantity.String(),
			Notice:     li.Notice,
		}
		if unit, ok := li.Price(engine.Catalog(), true, mode); ok {
			item.UnitPrice = cartengine.RoundMoney(unit).StringFixed(2)
		}
		if line, ok := li.Price(engine.Catalog(), false, mode); ok {
			item.LineTotal = cartengine.RoundMoney(line).StringFixed(2)
		}
		if rate, ok := engine.Catalog().TaxRate(li.ProductRef, false); ok {
			item.TaxRate = rate.String()
		}
		view.Items = append(view.Items, item)
	}

	buckets := engine.TaxRatesWithFees(none)
	for _, b := range buckets.Buckets() {
		view.TaxBuckets = append(view.TaxBuckets, TaxBucketView{
			Rate:   b.Rate.String(),
			Amount: b.Amount().StringFixed(2),
		})
	}
	view.Totals = TotalsView{
		ProductValue: engine.TaxableAmount(mode, none).StringFixed(2),
		WithFees:     engine.TaxableAmountWithFees(mode, none).StringFixed(2),
		Total:        engine.AmountTotal(mode, none).StringFixed(2),
		TaxTotal:     buckets.Sum().StringFixed(2),
	}

	if weight, ok := engine.WeightTotal(); ok {
		view.WeightGrams = &weight
	}
	if window, ok := sess.Estimator.TimeData(engine.ShippingMethod(), false); ok {
		view.Delivery = &window
	}
	return view
}

// ShippingOptions lists the methods available for the cart's destination
// with fees and delivery windows at the current cart weight.
func (s *Service) ShippingOptions(sess *Session) []ShippingOption {
	engine := sess.Engine
	country := engine.ShippingCountry()
	weight, _ := engine.WeightTotal()
	cheapest, hasCheapest := engine.CheapestShippingMethod(country)

	infos := sess.Quoter.MethodsForCountry(country)
	out := make([]ShippingOption, 0, len(infos))
	for _, info := range infos {
		method, _ := sess.Quoter.Method(info.Ref)
		option := ShippingOption{
			Ref:      info.Ref,
			Title:    method.Title,
			Pickup:   info.Pickup,
			Cheapest: hasCheapest && info.Ref == cheapest,
		}
		if quote, ok := sess.Quoter.ShippingFee(info.Ref, weight); ok {
			fee := cartengine.RoundMoney(quote.Amount).StringFixed(2)
			option.Fee = &fee
			option.Available = true
		}
		if window, ok := sess.Estimator.TimeData(info.Ref, false); ok {
			option.Delivery = &window
		}
		out = append(out, option)
	}
	return out
}
