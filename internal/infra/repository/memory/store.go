// Package memory is a map-backed implementation of the repository ports.
//
// WithinTx runs one unit of work at a time against a copy of the state and
// swaps the copy in only when fn returns nil, so a failing unit of work leaves
// nothing behind. It backs the usecase and handler tests and the
// STORAGE_DRIVER=memory mode of cmd/api.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
	repo "github.com/rs-labo46/ec-fulfillment/internal/repository"
)

type invKey struct {
	variantID  int64
	locationID int64
}

type couponKey struct {
	userID   int64
	couponID int64
}

type state struct {
	nextID int64

	variants      map[int64]model.ProductVariant
	inventory     map[invKey]model.InventoryRecord
	invTxns       []model.InventoryTransaction
	orders        map[int64]model.Order
	orderItems    map[int64][]model.OrderItem
	orderVouchers map[int64][]model.OrderVoucher
	orderCoupons  map[int64][]model.OrderCoupon
	vouchers      map[int64]model.Voucher
	voucherGrants map[int64]model.VoucherGrant
	coupons       map[int64]model.Coupon
	couponGrants  map[couponKey]model.CouponGrant
	couponUsages  []model.CouponUsage
	carts         map[int64]model.Cart
	cartItems     map[int64]model.CartItem
	auditLogs     []model.AuditLog
	interactions  []model.Interaction
}

func newState() *state {
	return &state{
		variants:      map[int64]model.ProductVariant{},
		inventory:     map[invKey]model.InventoryRecord{},
		orders:        map[int64]model.Order{},
		orderItems:    map[int64][]model.OrderItem{},
		orderVouchers: map[int64][]model.OrderVoucher{},
		orderCoupons:  map[int64][]model.OrderCoupon{},
		vouchers:      map[int64]model.Voucher{},
		voucherGrants: map[int64]model.VoucherGrant{},
		coupons:       map[int64]model.Coupon{},
		couponGrants:  map[couponKey]model.CouponGrant{},
		carts:         map[int64]model.Cart{},
		cartItems:     map[int64]model.CartItem{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneSliceMap[K comparable, V any](m map[K][]V) map[K][]V {
	out := make(map[K][]V, len(m))
	for k, v := range m {
		out[k] = append([]V(nil), v...)
	}
	return out
}

func (s *state) clone() *state {
	return &state{
		nextID:        s.nextID,
		variants:      cloneMap(s.variants),
		inventory:     cloneMap(s.inventory),
		invTxns:       append([]model.InventoryTransaction(nil), s.invTxns...),
		orders:        cloneMap(s.orders),
		orderItems:    cloneSliceMap(s.orderItems),
		orderVouchers: cloneSliceMap(s.orderVouchers),
		orderCoupons:  cloneSliceMap(s.orderCoupons),
		vouchers:      cloneMap(s.vouchers),
		voucherGrants: cloneMap(s.voucherGrants),
		coupons:       cloneMap(s.coupons),
		couponGrants:  cloneMap(s.couponGrants),
		couponUsages:  append([]model.CouponUsage(nil), s.couponUsages...),
		carts:         cloneMap(s.carts),
		cartItems:     cloneMap(s.cartItems),
		auditLogs:     append([]model.AuditLog(nil), s.auditLogs...),
		interactions:  append([]model.Interaction(nil), s.interactions...),
	}
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

type Store struct {
	mu   sync.Mutex
	data *state
	now  func() time.Time
}

func NewStore() *Store {
	return &Store{data: newState(), now: time.Now}
}

func (s *Store) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(&repos{st: work, now: s.now}); err != nil {
		return err
	}
	s.data = work
	return nil
}

// view runs fn against the committed state without a unit of work.
func (s *Store) view(fn func(st *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.data)
}

func (s *Store) mutate(fn func(st *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.data)
}

// ---- seeding (catalog and promotions are owned elsewhere) ----

func (s *Store) PutVariant(v model.ProductVariant) model.ProductVariant {
	s.mutate(func(st *state) {
		if v.ID == 0 {
			v.ID = st.id()
		} else if v.ID > st.nextID {
			st.nextID = v.ID
		}
		st.variants[v.ID] = v
	})
	return v
}

// PutStock sets quantity through an import movement so the ledger stays balanced.
func (s *Store) PutStock(variantID, locationID, qty int64) {
	s.mutate(func(st *state) {
		k := invKey{variantID, locationID}
		rec := st.inventory[k]
		if rec.ID == 0 {
			rec = model.InventoryRecord{ID: st.id(), VariantID: variantID, LocationID: locationID, CreatedAt: s.now()}
		}
		rec.Quantity += qty
		rec.UpdatedAt = s.now()
		st.inventory[k] = rec
		st.invTxns = append(st.invTxns, model.InventoryTransaction{
			ID:           st.id(),
			VariantID:    variantID,
			LocationID:   locationID,
			MovementType: model.MovementImport,
			Reason:       model.ReasonSupplierIntake,
			Quantity:     qty,
			Note:         "seed",
			CreatedAt:    s.now(),
		})
	})
}

func (s *Store) PutVoucher(v model.Voucher) model.Voucher {
	s.mutate(func(st *state) {
		if v.ID == 0 {
			v.ID = st.id()
		}
		st.vouchers[v.ID] = v
	})
	return v
}

func (s *Store) PutVoucherGrant(g model.VoucherGrant) model.VoucherGrant {
	s.mutate(func(st *state) {
		if g.ID == 0 {
			g.ID = st.id()
		}
		g.Voucher = model.Voucher{}
		st.voucherGrants[g.ID] = g
	})
	return g
}

func (s *Store) PutCoupon(c model.Coupon) model.Coupon {
	s.mutate(func(st *state) {
		if c.ID == 0 {
			c.ID = st.id()
		}
		st.coupons[c.ID] = c
	})
	return c
}

func (s *Store) PutCouponGrant(g model.CouponGrant) model.CouponGrant {
	s.mutate(func(st *state) {
		if g.ID == 0 {
			g.ID = st.id()
		}
		g.Coupon = model.Coupon{}
		st.couponGrants[couponKey{g.UserID, g.CouponID}] = g
	})
	return g
}

// ---- inspection ----

func (s *Store) Stock(variantID, locationID int64) int64 {
	var q int64
	s.view(func(st *state) { q = st.inventory[invKey{variantID, locationID}].Quantity })
	return q
}

func (s *Store) Transactions(variantID, locationID int64) []model.InventoryTransaction {
	var out []model.InventoryTransaction
	s.view(func(st *state) {
		for _, t := range st.invTxns {
			if t.VariantID == variantID && t.LocationID == locationID {
				out = append(out, t)
			}
		}
	})
	return out
}

func (s *Store) OrderByCode(code string) (model.Order, bool) {
	var (
		o  model.Order
		ok bool
	)
	s.view(func(st *state) {
		for _, v := range st.orders {
			if v.Code == code {
				o, ok = v, true
				return
			}
		}
	})
	return o, ok
}

func (s *Store) Orders() []model.Order {
	var out []model.Order
	s.view(func(st *state) {
		for _, o := range st.orders {
			out = append(out, o)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) VoucherGrant(id int64) model.VoucherGrant {
	var g model.VoucherGrant
	s.view(func(st *state) { g = st.voucherGrants[id] })
	return g
}

func (s *Store) CouponGrant(userID, couponID int64) model.CouponGrant {
	var g model.CouponGrant
	s.view(func(st *state) { g = st.couponGrants[couponKey{userID, couponID}] })
	return g
}

func (s *Store) CouponUsages() []model.CouponUsage {
	var out []model.CouponUsage
	s.view(func(st *state) { out = append(out, st.couponUsages...) })
	return out
}

func (s *Store) Variant(id int64) model.ProductVariant {
	var v model.ProductVariant
	s.view(func(st *state) { v = st.variants[id] })
	return v
}

func (s *Store) AuditLogs() []model.AuditLog {
	var out []model.AuditLog
	s.view(func(st *state) { out = append(out, st.auditLogs...) })
	return out
}

func (s *Store) Interactions() []model.Interaction {
	var out []model.Interaction
	s.view(func(st *state) { out = append(out, st.interactions...) })
	return out
}

// CartItemsOf returns the items of the user's active cart.
func (s *Store) CartItemsOf(userID int64) []model.CartItem {
	var out []model.CartItem
	s.view(func(st *state) {
		for _, c := range st.carts {
			if c.UserID != userID || c.Status != model.CartStatusActive {
				continue
			}
			for _, it := range st.cartItems {
				if it.CartID == c.ID {
					out = append(out, it)
				}
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CartsOf returns every cart the user has had, oldest first.
func (s *Store) CartsOf(userID int64) []model.Cart {
	var out []model.Cart
	s.view(func(st *state) {
		for _, c := range st.carts {
			if c.UserID == userID {
				out = append(out, c)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type repos struct {
	st  *state
	now func() time.Time
}

func (r *repos) Orders() repo.OrderRepository             { return orderRepo{r} }
func (r *repos) OrderItems() repo.OrderItemRepository     { return orderItemRepo{r} }
func (r *repos) Carts() repo.CartRepository               { return cartRepo{r} }
func (r *repos) Inventory() repo.InventoryRepository      { return inventoryRepo{r} }
func (r *repos) Variants() repo.VariantRepository         { return variantRepo{r} }
func (r *repos) Entitlements() repo.EntitlementRepository { return entitlementRepo{r} }
func (r *repos) AuditLogs() repo.AuditLogRepository       { return auditRepo{r} }
func (r *repos) Interactions() repo.InteractionRepository { return interactionRepo{r} }
