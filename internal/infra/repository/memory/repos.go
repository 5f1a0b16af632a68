package memory

import (
	"context"
	"sort"
	"time"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
	repo "github.com/rs-labo46/ec-fulfillment/internal/repository"
)

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// ---- inventory ----

type inventoryRepo struct{ *repos }

func (r inventoryRepo) DecreaseIfEnough(ctx context.Context, variantID, locationID, qty int64) (model.InventoryRecord, bool, error) {
	k := invKey{variantID, locationID}
	rec, ok := r.st.inventory[k]
	if !ok || rec.Quantity < qty {
		return model.InventoryRecord{}, false, nil
	}
	rec.Quantity -= qty
	rec.UpdatedAt = r.now()
	r.st.inventory[k] = rec
	return rec, true, nil
}

func (r inventoryRepo) Increase(ctx context.Context, variantID, locationID, qty int64) (model.InventoryRecord, error) {
	k := invKey{variantID, locationID}
	rec, ok := r.st.inventory[k]
	if !ok {
		rec = model.InventoryRecord{ID: r.st.id(), VariantID: variantID, LocationID: locationID, CreatedAt: r.now()}
	}
	rec.Quantity += qty
	rec.UpdatedAt = r.now()
	r.st.inventory[k] = rec
	return rec, nil
}

func (r inventoryRepo) Find(ctx context.Context, variantID, locationID int64) (model.InventoryRecord, error) {
	rec, ok := r.st.inventory[invKey{variantID, locationID}]
	if !ok {
		return model.InventoryRecord{}, repo.ErrNotFound
	}
	return rec, nil
}

func (r inventoryRepo) ListByVariant(ctx context.Context, variantID int64) ([]model.InventoryRecord, error) {
	out := []model.InventoryRecord{}
	for _, rec := range r.st.inventory {
		if rec.VariantID == variantID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		return out[i].LocationID < out[j].LocationID
	})
	return out, nil
}

func (r inventoryRepo) AppendTransaction(ctx context.Context, t model.InventoryTransaction) error {
	t.ID = r.st.id()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.now()
	}
	r.st.invTxns = append(r.st.invTxns, t)
	return nil
}

func (r inventoryRepo) SumSignedMovements(ctx context.Context, variantID, locationID int64) (int64, error) {
	var sum int64
	for _, t := range r.st.invTxns {
		if t.VariantID == variantID && t.LocationID == locationID {
			sum += t.SignedQuantity()
		}
	}
	return sum, nil
}

// ---- orders ----

type orderRepo struct{ *repos }

func (r orderRepo) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	o, ok := r.st.orders[orderID]
	if !ok {
		return model.Order{}, repo.ErrNotFound
	}
	return o, nil
}

func (r orderRepo) FindByCode(ctx context.Context, code string) (model.Order, error) {
	for _, o := range r.st.orders {
		if o.Code == code {
			return o, nil
		}
	}
	return model.Order{}, repo.ErrNotFound
}

// WithinTx is already serialized.
func (r orderRepo) FindByCodeForUpdate(ctx context.Context, code string) (model.Order, error) {
	return r.FindByCode(ctx, code)
}

func (r orderRepo) FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error) {
	return r.FindByID(ctx, orderID)
}

func (r orderRepo) sorted(keep func(model.Order) bool) []model.Order {
	out := []model.Order{}
	for _, o := range r.st.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (r orderRepo) ListByUserID(ctx context.Context, userID int64, pg int, limit int) ([]model.Order, int64, error) {
	all := r.sorted(func(o model.Order) bool { return o.UserID == userID })
	return page(all, (pg-1)*limit, limit), int64(len(all)), nil
}

func (r orderRepo) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	all := r.sorted(func(o model.Order) bool {
		if f.Status != "" && string(o.Status) != f.Status {
			return false
		}
		if f.PaymentStatus != "" && string(o.PaymentStatus) != f.PaymentStatus {
			return false
		}
		if f.UserID != nil && o.UserID != *f.UserID {
			return false
		}
		if f.From != nil && o.CreatedAt.Before(*f.From) {
			return false
		}
		if f.To != nil && o.CreatedAt.After(*f.To) {
			return false
		}
		return true
	})
	return page(all, (f.Page-1)*f.Limit, f.Limit), int64(len(all)), nil
}

func (r orderRepo) ListPendingGateway(ctx context.Context, createdBefore time.Time, limit int) ([]model.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	all := r.sorted(func(o model.Order) bool {
		return o.PaymentMethod == model.PaymentMethodGateway &&
			o.PaymentStatus == model.PaymentStatusPending &&
			o.Status == model.OrderStatusPending &&
			o.PaymentRef != "" &&
			o.CreatedAt.Before(createdBefore)
	})
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	return page(all, 0, limit), nil
}

func (r orderRepo) Create(ctx context.Context, order model.Order) (model.Order, error) {
	for _, o := range r.st.orders {
		if o.Code == order.Code {
			return model.Order{}, repo.ErrDuplicate
		}
	}
	if order.Version == 0 {
		order.Version = 1
	}
	now := r.now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	order.ID = r.st.id()
	r.st.orders[order.ID] = order
	return order, nil
}

func (r orderRepo) UpdateState(ctx context.Context, order model.Order) (model.Order, error) {
	cur, ok := r.st.orders[order.ID]
	if !ok || cur.Version != order.Version {
		return model.Order{}, repo.ErrStaleVersion
	}
	cur.Status = order.Status
	cur.PaymentStatus = order.PaymentStatus
	cur.CancelReason = order.CancelReason
	cur.StockReserved = order.StockReserved
	cur.PaymentRef = order.PaymentRef
	cur.Version++
	cur.UpdatedAt = r.now()
	r.st.orders[cur.ID] = cur
	return cur, nil
}

func (r orderRepo) CreateVouchers(ctx context.Context, orderID int64, vouchers []model.OrderVoucher) error {
	for _, v := range vouchers {
		v.ID = r.st.id()
		v.OrderID = orderID
		r.st.orderVouchers[orderID] = append(r.st.orderVouchers[orderID], v)
	}
	return nil
}

func (r orderRepo) CreateCoupons(ctx context.Context, orderID int64, coupons []model.OrderCoupon) error {
	for _, c := range coupons {
		c.ID = r.st.id()
		c.OrderID = orderID
		r.st.orderCoupons[orderID] = append(r.st.orderCoupons[orderID], c)
	}
	return nil
}

func (r orderRepo) ListVouchers(ctx context.Context, orderID int64) ([]model.OrderVoucher, error) {
	return append([]model.OrderVoucher{}, r.st.orderVouchers[orderID]...), nil
}

func (r orderRepo) ListCoupons(ctx context.Context, orderID int64) ([]model.OrderCoupon, error) {
	return append([]model.OrderCoupon{}, r.st.orderCoupons[orderID]...), nil
}

// ---- order items ----

type orderItemRepo struct{ *repos }

func (r orderItemRepo) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	for _, it := range items {
		it.ID = r.st.id()
		it.OrderID = orderID
		if it.CreatedAt.IsZero() {
			it.CreatedAt = r.now()
		}
		r.st.orderItems[orderID] = append(r.st.orderItems[orderID], it)
	}
	return nil
}

func (r orderItemRepo) AssignLocation(ctx context.Context, itemID int64, locationID int64) error {
	for orderID, items := range r.st.orderItems {
		for i := range items {
			if items[i].ID == itemID {
				items[i].LocationID = locationID
				r.st.orderItems[orderID] = items
				return nil
			}
		}
	}
	return repo.ErrNotFound
}

func (r orderItemRepo) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	return append([]model.OrderItem{}, r.st.orderItems[orderID]...), nil
}

func (r orderItemRepo) ListByOrderIDs(ctx context.Context, orderIDs []int64) (map[int64][]model.OrderItem, error) {
	out := make(map[int64][]model.OrderItem, len(orderIDs))
	for _, id := range orderIDs {
		if items := r.st.orderItems[id]; len(items) > 0 {
			out[id] = append([]model.OrderItem{}, items...)
		}
	}
	return out, nil
}

// ---- carts ----

type cartRepo struct{ *repos }

func (r cartRepo) ActiveCart(ctx context.Context, userID int64) (model.Cart, error) {
	if c, err := r.FindActive(ctx, userID); err == nil {
		return c, nil
	}
	now := r.now()
	c := model.Cart{ID: r.st.id(), UserID: userID, Status: model.CartStatusActive, CreatedAt: now, UpdatedAt: now}
	r.st.carts[c.ID] = c
	return c, nil
}

func (r cartRepo) FindActive(ctx context.Context, userID int64) (model.Cart, error) {
	for _, c := range r.st.carts {
		if c.UserID == userID && c.Status == model.CartStatusActive {
			return c, nil
		}
	}
	return model.Cart{}, repo.ErrNotFound
}

func (r cartRepo) Items(ctx context.Context, cartID int64) ([]model.CartItem, error) {
	out := []model.CartItem{}
	for _, it := range r.st.cartItems {
		if it.CartID == cartID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r cartRepo) FindOwnedItem(ctx context.Context, userID, itemID int64) (model.CartItem, error) {
	it, ok := r.st.cartItems[itemID]
	if !ok {
		return model.CartItem{}, repo.ErrNotFound
	}
	c, ok := r.st.carts[it.CartID]
	if !ok || c.UserID != userID || c.CheckedOut() {
		return model.CartItem{}, repo.ErrNotFound
	}
	return it, nil
}

func (r cartRepo) AddItem(ctx context.Context, cartID, variantID, qty, unitPrice int64) error {
	now := r.now()
	for id, it := range r.st.cartItems {
		if it.CartID == cartID && it.VariantID == variantID {
			it.Quantity += qty
			it.UnitPriceSnapshot = unitPrice
			it.UpdatedAt = now
			r.st.cartItems[id] = it
			return nil
		}
	}
	it := model.CartItem{
		ID:                r.st.id(),
		CartID:            cartID,
		VariantID:         variantID,
		Quantity:          qty,
		UnitPriceSnapshot: unitPrice,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	r.st.cartItems[it.ID] = it
	return nil
}

func (r cartRepo) SetQuantity(ctx context.Context, itemID, qty int64) error {
	it, ok := r.st.cartItems[itemID]
	if !ok {
		return repo.ErrNotFound
	}
	it.Quantity = qty
	it.UpdatedAt = r.now()
	r.st.cartItems[itemID] = it
	return nil
}

func (r cartRepo) RemoveItem(ctx context.Context, itemID int64) error {
	if _, ok := r.st.cartItems[itemID]; !ok {
		return repo.ErrNotFound
	}
	delete(r.st.cartItems, itemID)
	return nil
}

func (r cartRepo) CheckOut(ctx context.Context, cartID, orderID int64, at time.Time) error {
	c, ok := r.st.carts[cartID]
	if !ok || c.CheckedOut() {
		return repo.ErrNotFound
	}
	c.Status = model.CartStatusCheckedOut
	c.OrderID = &orderID
	c.CheckedOutAt = &at
	c.UpdatedAt = at
	r.st.carts[cartID] = c
	return nil
}

// ---- variants ----

type variantRepo struct{ *repos }

func (r variantRepo) FindByID(ctx context.Context, id int64) (model.ProductVariant, error) {
	v, ok := r.st.variants[id]
	if !ok {
		return model.ProductVariant{}, repo.ErrNotFound
	}
	return v, nil
}

func (r variantRepo) IncrementSoldCount(ctx context.Context, id int64, qty int64) error {
	v, ok := r.st.variants[id]
	if !ok {
		return repo.ErrNotFound
	}
	v.SoldCount += qty
	r.st.variants[id] = v
	return nil
}

// ---- entitlements ----

type entitlementRepo struct{ *repos }

func (r entitlementRepo) FindVoucherGrant(ctx context.Context, grantID int64) (model.VoucherGrant, error) {
	g, ok := r.st.voucherGrants[grantID]
	if !ok {
		return model.VoucherGrant{}, repo.ErrNotFound
	}
	g.Voucher = r.st.vouchers[g.VoucherID]
	return g, nil
}

func (r entitlementRepo) MarkVoucherGrantUsed(ctx context.Context, grantID int64, userID int64, orderID int64, at time.Time) (bool, error) {
	g, ok := r.st.voucherGrants[grantID]
	if !ok || g.UserID != userID || g.IsUsed {
		return false, nil
	}
	g.IsUsed = true
	g.UsedAt = &at
	g.OrderID = &orderID
	r.st.voucherGrants[grantID] = g
	return true, nil
}

func (r entitlementRepo) FindCouponGrant(ctx context.Context, userID int64, couponID int64) (model.CouponGrant, error) {
	g, ok := r.st.couponGrants[couponKey{userID, couponID}]
	if !ok {
		return model.CouponGrant{}, repo.ErrNotFound
	}
	g.Coupon = r.st.coupons[g.CouponID]
	return g, nil
}

func (r entitlementRepo) MarkCouponGrantUsed(ctx context.Context, userID int64, couponID int64, at time.Time) (bool, error) {
	k := couponKey{userID, couponID}
	g, ok := r.st.couponGrants[k]
	if !ok || g.IsUsed {
		return false, nil
	}
	g.IsUsed = true
	g.UsedAt = &at
	r.st.couponGrants[k] = g
	return true, nil
}

func (r entitlementRepo) CreateCouponUsage(ctx context.Context, usage model.CouponUsage) (bool, error) {
	for _, u := range r.st.couponUsages {
		if u.UserID == usage.UserID && u.CouponID == usage.CouponID && u.OrderID == usage.OrderID {
			return false, nil
		}
	}
	usage.ID = r.st.id()
	if usage.CreatedAt.IsZero() {
		usage.CreatedAt = r.now()
	}
	r.st.couponUsages = append(r.st.couponUsages, usage)
	return true, nil
}

func (r entitlementRepo) CouponUsageExists(ctx context.Context, userID int64, couponID int64, orderID int64) (bool, error) {
	for _, u := range r.st.couponUsages {
		if u.UserID == userID && u.CouponID == couponID && u.OrderID == orderID {
			return true, nil
		}
	}
	return false, nil
}

// ---- audit / interactions ----

type auditRepo struct{ *repos }

func (r auditRepo) Create(ctx context.Context, log model.AuditLog) error {
	log.ID = r.st.id()
	if log.CreatedAt.IsZero() {
		log.CreatedAt = r.now()
	}
	r.st.auditLogs = append(r.st.auditLogs, log)
	return nil
}

func (r auditRepo) ListByResource(ctx context.Context, res model.AuditResourceType, resourceID int64) ([]model.AuditLog, error) {
	out := []model.AuditLog{}
	for _, l := range r.st.auditLogs {
		if l.Resource == res && l.ResourceID == resourceID {
			out = append(out, l)
		}
	}
	return out, nil
}

type interactionRepo struct{ *repos }

func (r interactionRepo) Create(ctx context.Context, it model.Interaction) error {
	it.ID = r.st.id()
	if it.CreatedAt.IsZero() {
		it.CreatedAt = r.now()
	}
	r.st.interactions = append(r.st.interactions, it)
	return nil
}
