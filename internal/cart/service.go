// Package cart orchestrates cart persistence, pricing computation, and
// domain events behind the HTTP API.
package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-storefront/internal/cartengine"
	"github.com/noah-isme/backend-storefront/internal/catalog"
	"github.com/noah-isme/backend-storefront/internal/delivery"
	"github.com/noah-isme/backend-storefront/internal/events"
	"github.com/noah-isme/backend-storefront/internal/obs"
	"github.com/noah-isme/backend-storefront/internal/payment"
	"github.com/noah-isme/backend-storefront/internal/repo"
	"github.com/noah-isme/backend-storefront/internal/shipping"
	"github.com/noah-isme/backend-storefront/internal/voucher"
)

var (
	// ErrCartNotFound indicates the cart id does not resolve to a live cart.
	ErrCartNotFound = errors.New("cart not found")
	// ErrCartExpired indicates the cart exists but its TTL ran out.
	ErrCartExpired = errors.New("cart expired")
	// ErrUnknownShippingMethod indicates the method ref is not configured.
	ErrUnknownShippingMethod = errors.New("unknown shipping method")
	// ErrUnknownPaymentMethod indicates the method ref is not configured.
	ErrUnknownPaymentMethod = errors.New("unknown payment method")
	// ErrInvalidCountry indicates the shipping country code is unusable.
	ErrInvalidCountry = errors.New("invalid shipping country")
	// ErrVoucherNotFound indicates the voucher code does not exist.
	ErrVoucherNotFound = errors.New("voucher not found")
)

type cartStore interface {
	Load(ctx context.Context, id uuid.UUID) (*repo.Cart, error)
	FindActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) (*repo.Cart, error)
	FindActiveByAnon(ctx context.Context, anonID string, now time.Time) (*repo.Cart, error)
	Create(ctx context.Context, cart *repo.Cart) error
	Save(ctx context.Context, cart *repo.Cart) error
}

type voucherStore interface {
	GetByCode(ctx context.Context, code string) (repo.Voucher, error)
	IncrementUsage(ctx context.Context, code string) error
}

type snapshotSource interface {
	Snapshot(ctx context.Context, refs []string) (*catalog.Snapshot, error)
}

type shippingSource interface {
	ListAll(ctx context.Context) ([]repo.ShippingMethod, error)
	ListTiers(ctx context.Context) ([]repo.ShippingFeeTier, error)
}

type paymentSource interface {
	ListAll(ctx context.Context) ([]repo.PaymentMethod, error)
}

// Config holds cart behaviour settings.
type Config struct {
	Mode           cartengine.PriceMode
	DefaultCountry string
	TTL            time.Duration
	CountSaturdays bool
	Currency       string
}

// feeProvider fuses the shipping quoter and payment provider into the
// engine's single fee source.
type feeProvider struct {
	shipping *shipping.Quoter
	payments *payment.Provider
}

func (f feeProvider) ShippingFee(method string, weightGrams int64) (cartengine.ShippingQuote, bool) {
	return f.shipping.ShippingFee(method, weightGrams)
}

func (f feeProvider) PaymentFee(method string) (cartengine.PaymentQuote, bool) {
	return f.payments.PaymentFee(method)
}

func (f feeProvider) MethodsForCountry(country string) []cartengine.ShippingMethodInfo {
	return f.shipping.MethodsForCountry(country)
}

// Session is one loaded cart together with the engine and helpers built
// from a point-in-time snapshot of catalog and method configuration.
type Session struct {
	Cart      *repo.Cart
	Engine    *cartengine.Engine
	Snapshot  *catalog.Snapshot
	Quoter    *shipping.Quoter
	Payments  *payment.Provider
	Voucher   *voucher.Module
	Estimator *delivery.Estimator
}

// Service loads carts, runs mutations through the pricing engine, and
// persists the aggregate with an optimistic version check.
type Service struct {
	Carts    cartStore
	Vouchers voucherStore
	Catalog  snapshotSource
	Shipping shippingSource
	Payments paymentSource
	Events   *events.Bus
	Cfg      Config
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// EnsureCart returns the active cart for the user or anonymous id,
// creating a fresh one when neither resolves.
func (s *Service) EnsureCart(ctx context.Context, userID *uuid.UUID, anonID *string) (*Session, error) {
	if s.Carts == nil {
		return nil, errors.New("cart: store not configured")
	}
	now := s.now()
	if userID != nil {
		cart, err := s.Carts.FindActiveByUser(ctx, *userID, now)
		if err == nil {
			return s.assemble(ctx, cart)
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
	}
	if anonID != nil && strings.TrimSpace(*anonID) != "" {
		cart, err := s.Carts.FindActiveByAnon(ctx, *anonID, now)
		if err == nil {
			return s.assemble(ctx, cart)
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
	}
	cart := &repo.Cart{
		UserID:          userID,
		AnonID:          anonID,
		ShippingCountry: s.Cfg.DefaultCountry,
		ExpiresAt:       now.Add(s.Cfg.TTL),
	}
	if err := s.Carts.Create(ctx, cart); err != nil {
		return nil, err
	}
	s.emit(ctx, events.TopicCartCreated, cart.ID, map[string]any{"country": cart.ShippingCountry})
	return s.assemble(ctx, cart)
}

// Get loads a live cart by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	return s.load(ctx, id)
}

func (s *Service) load(ctx context.Context, id uuid.UUID, extraRefs ...string) (*Session, error) {
	if s.Carts == nil {
		return nil, errors.New("cart: store not configured")
	}
	cart, err := s.Carts.Load(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrCartNotFound
		}
		return nil, err
	}
	if cart.ExpiresAt.Before(s.now()) {
		return nil, ErrCartExpired
	}
	return s.assemble(ctx, cart, extraRefs...)
}

// assemble builds the pricing engine for a persisted cart. The catalog
// snapshot covers the persisted items plus any extraRefs a mutation is
// about to touch. Stale items are reconciled by the engine's cleanup
// pass; when that changes anything the reconciled state is written back
// immediately.
func (s *Service) assemble(ctx context.Context, cart *repo.Cart, extraRefs ...string) (*Session, error) {
	refs := make([]string, 0, len(cart.Items)+len(extraRefs))
	for _, item := range cart.Items {
		refs = append(refs, item.ProductRef)
	}
	refs = append(refs, extraRefs...)
	snap, err := s.Catalog.Snapshot(ctx, refs)
	if err != nil {
		return nil, err
	}
	quoter, err := shipping.LoadQuoter(ctx, s.Shipping)
	if err != nil {
		return nil, err
	}
	provider, err := payment.LoadProvider(ctx, s.Payments)
	if err != nil {
		return nil, err
	}
	voucherMod := voucher.NewModule()
	fees := feeProvider{shipping: quoter, payments: provider}
	engine := cartengine.New(
		cartengine.Config{Mode: s.Cfg.Mode, DefaultCountry: s.Cfg.DefaultCountry},
		snap,
		fees,
		[]cartengine.Module{voucherMod, &payment.Conditions{Provider: provider}},
	)
	for _, item := range cart.Items {
		engine.RestoreLineItem(item.ProductRef, item.Quantity, item.Notice)
	}
	engine.SetShippingMethod(cart.ShippingMethod)
	engine.SetPaymentMethod(cart.PaymentMethod)
	engine.SetShippingCountry(cart.ShippingCountry)
	changed := engine.CleanUp()

	if cart.VoucherCode != nil {
		rule, err := s.loadVoucherRule(ctx, *cart.VoucherCode)
		if err == nil && rule.ValidateRedeemed(s.now(), engine.TaxableAmount(cartengine.PriceModeGross, cartengine.Exclude{})) == nil {
			voucherMod.Apply(rule)
			engine.Invalidate()
		} else {
			cart.VoucherCode = nil
			changed = true
		}
	}

	sess := &Session{
		Cart:     cart,
		Engine:   engine,
		Snapshot: snap,
		Quoter:   quoter,
		Payments: provider,
		Voucher:  voucherMod,
		Estimator: &delivery.Estimator{
			Engine:         engine,
			Fees:           fees,
			CountSaturdays: s.Cfg.CountSaturdays,
			Now:            s.Now,
		},
	}
	if changed {
		if err := s.persist(ctx, sess); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

func (s *Service) loadVoucherRule(ctx context.Context, code string) (voucher.Rule, error) {
	if s.Vouchers == nil {
		return voucher.Rule{}, errors.New("cart: voucher store not configured")
	}
	row, err := s.Vouchers.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return voucher.Rule{}, ErrVoucherNotFound
		}
		return voucher.Rule{}, err
	}
	return voucher.RuleFromRow(row), nil
}

// persist writes the engine state back into the aggregate and saves it.
func (s *Service) persist(ctx context.Context, sess *Session) error {
	cart := sess.Cart
	engineItems := sess.Engine.Items()
	cart.Items = make([]repo.CartItem, 0, len(engineItems))
	for _, li := range engineItems {
		cart.Items = append(cart.Items, repo.CartItem{
			ProductRef: li.ProductRef,
			Quantity:   li.Quantity,
			Notice:     li.Notice,
		})
	}
	cart.ShippingMethod = sess.Engine.ShippingMethod()
	cart.PaymentMethod = sess.Engine.PaymentMethod()
	cart.ShippingCountry = sess.Engine.ShippingCountry()
	cart.ExpiresAt = s.now().Add(s.Cfg.TTL)
	if err := s.Carts.Save(ctx, cart); err != nil {
		if errors.Is(err, repo.ErrVersionConflict) && obs.CartVersionConflictTotal != nil {
			obs.CartVersionConflictTotal.Inc()
		}
		return err
	}
	return nil
}

func (s *Service) emit(ctx context.Context, topic string, cartID uuid.UUID, payload any) {
	if s.Events == nil {
		return
	}
	// Event emission is best effort; a notifier failure must not fail the
	// mutation that already persisted.
	_, _ = s.Events.Emit(ctx, topic, cartID, payload)
}

func (s *Service) mutate(ctx context.Context, id uuid.UUID, op, topic string, extraRefs []string, fn func(*Session) (any, error)) (*Session, error) {
	sess, err := s.load(ctx, id, extraRefs...)
	if err != nil {
		obs.ObserveMutation(op, err)
		return nil, err
	}
	payload, err := fn(sess)
	obs.ObserveMutation(op, err)
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, sess); err != nil {
		return nil, err
	}
	if topic != "" {
		s.emit(ctx, topic, sess.Cart.ID, payload)
	}
	return sess, nil
}

// AddItem adds quantity of a product to the cart.
func (s *Service) AddItem(ctx context.Context, id uuid.UUID, ref string, qty decimal.Decimal) (*Session, error) {
	return s.mutate(ctx, id, "add_item", events.TopicCartItemAdded, []string{ref}, func(sess *Session) (any, error) {
		if _, err := sess.Engine.AddLineItem(ref, qty); err != nil {
			return nil, err
		}
		return map[string]any{"productRef": ref, "qty": qty.String()}, nil
	})
}

// SetItemQuantity sets an absolute quantity; zero or less removes the item.
func (s *Service) SetItemQuantity(ctx context.Context, id uuid.UUID, ref string, qty decimal.Decimal) (*Session, error) {
	return s.mutate(ctx, id, "set_quantity", events.TopicCartItemUpdated, []string{ref}, func(sess *Session) (any, error) {
		if err := sess.Engine.SetQuantity(ref, qty); err != nil {
			return nil, err
		}
		return map[string]any{"productRef": ref, "qty": qty.String()}, nil
	})
}

// RemoveItem deletes the product's line item.
func (s *Service) RemoveItem(ctx context.Context, id uuid.UUID, ref string) (*Session, error) {
	return s.mutate(ctx, id, "remove_item", events.TopicCartItemRemoved, nil, func(sess *Session) (any, error) {
		sess.Engine.RemoveLineItem(ref)
		return map[string]any{"productRef": ref}, nil
	})
}

// SetShippingMethod chooses a configured shipping method.
func (s *Service) SetShippingMethod(ctx context.Context, id uuid.UUID, ref string) (*Session, error) {
	return s.mutate(ctx, id, "set_shipping_method", events.TopicCartMethodsChanged, nil, func(sess *Session) (any, error) {
		if ref != "" {
			if _, ok := sess.Quoter.Method(ref); !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownShippingMethod, ref)
			}
		}
		sess.Engine.SetShippingMethod(ref)
		return map[string]any{"shippingMethod": ref}, nil
	})
}

// SetPaymentMethod chooses a configured payment method.
func (s *Service) SetPaymentMethod(ctx context.Context, id uuid.UUID, ref string) (*Session, error) {
	return s.mutate(ctx, id, "set_payment_method", events.TopicCartMethodsChanged, nil, func(sess *Session) (any, error) {
		if ref != "" {
			if _, ok := sess.Payments.Method(ref); !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownPaymentMethod, ref)
			}
		}
		sess.Engine.SetPaymentMethod(ref)
		return map[string]any{"paymentMethod": ref}, nil
	})
}

// SetShippingCountry changes the destination country. A chosen shipping
// method that cannot ship there is dropped rather than kept stale.
func (s *Service) SetShippingCountry(ctx context.Context, id uuid.UUID, country string) (*Session, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	if len(country) != 2 {
		obs.ObserveMutation("set_country", ErrInvalidCountry)
		return nil, ErrInvalidCountry
	}
	return s.mutate(ctx, id, "set_country", events.TopicCartMethodsChanged, nil, func(sess *Session) (any, error) {
		sess.Engine.SetShippingCountry(country)
		if chosen := sess.Engine.ShippingMethod(); chosen != "" {
			allowed := false
			for _, info := range sess.Quoter.MethodsForCountry(country) {
				if info.Ref == chosen {
					allowed = true
					break
				}
			}
			if !allowed {
				sess.Engine.SetShippingMethod("")
			}
		}
		return map[string]any{"country": country}, nil
	})
}

// ApplyVoucher validates and attaches a voucher code to the cart.
func (s *Service) ApplyVoucher(ctx context.Context, id uuid.UUID, code string) (*Session, error) {
	code = strings.TrimSpace(code)
	return s.mutate(ctx, id, "apply_voucher", events.TopicCartVoucherApplied, nil, func(sess *Session) (any, error) {
		rule, err := s.loadVoucherRule(ctx, code)
		if err != nil {
			return nil, err
		}
		value := sess.Engine.TaxableAmount(cartengine.PriceModeGross, cartengine.Exclude{})
		if err := rule.Validate(s.now(), value); err != nil {
			return nil, err
		}
		if err := s.Vouchers.IncrementUsage(ctx, code); err != nil {
			return nil, err
		}
		sess.Voucher.Apply(rule)
		sess.Engine.Invalidate()
		sess.Cart.VoucherCode = &code
		return map[string]any{"code": code}, nil
	})
}

// RemoveVoucher detaches the applied voucher.
func (s *Service) RemoveVoucher(ctx context.Context, id uuid.UUID) (*Session, error) {
	return s.mutate(ctx, id, "remove_voucher", events.TopicCartVoucherRemoved, nil, func(sess *Session) (any, error) {
		sess.Voucher.Remove()
		sess.Engine.Invalidate()
		sess.Cart.VoucherCode = nil
		return map[string]any{}, nil
	})
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, id uuid.UUID) (*Session, error) {
	return s.mutate(ctx, id, "clear", events.TopicCartCleared, nil, func(sess *Session) (any, error) {
		sess.Engine.Clear()
		sess.Voucher.Remove()
		sess.Cart.VoucherCode = nil
		return map[string]any{}, nil
	})
}
