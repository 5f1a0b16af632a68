package usecase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
	"github.com/rs-labo46/ec-fulfillment/internal/infra/gateway"
	"github.com/rs-labo46/ec-fulfillment/internal/logging"
	repo "github.com/rs-labo46/ec-fulfillment/internal/repository"
)

// PaymentGateway は外部決済の窓口。DBトランザクションの中からは呼ばない。
type PaymentGateway interface {
	CreatePayment(ctx context.Context, req gateway.PaymentRequest) (gateway.PaymentResponse, error)
	QueryStatus(ctx context.Context, orderCode string) (gateway.Callback, error)
	ParseWebhook(body []byte) (gateway.Callback, error)
	ParseReturn(q url.Values) (gateway.Callback, error)
}

type CheckoutLineItem struct {
	VariantID int64 `json:"variant_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

type CheckoutInput struct {
	LineItems     []CheckoutLineItem     `json:"line_items" validate:"required,min=1,dive"`
	Shipping      model.ShippingSnapshot `json:"shipping" validate:"required"`
	ShippingFee   int64                  `json:"shipping_fee" validate:"gte=0"`
	DeclaredTotal int64                  `json:"declared_total" validate:"gte=0"`
	Vouchers      []VoucherRef           `json:"vouchers" validate:"dive"`
	Coupons       []CouponRef            `json:"coupons" validate:"dive"`
	PaymentMethod model.PaymentMethod    `json:"payment_method" validate:"required,oneof=cod gateway"`
}

type CheckoutResult struct {
	OrderID       int64               `json:"order_id"`
	OrderCode     string              `json:"order_code"`
	Status        model.OrderStatus   `json:"status"`
	PaymentStatus model.PaymentStatus `json:"payment_status"`
	TotalAmount   int64               `json:"total_amount"`
	PayURL        string              `json:"pay_url,omitempty"`
}

// CheckoutUsecase はカートの内容から注文を作る。
// cod はその場で在庫確保・割引消費・カート削除まで行い、
// gateway は在庫の有無だけ確認して決済完了を待つ。
type CheckoutUsecase struct {
	tm       repo.TransactionManager
	ledger   *InventoryLedger
	redeemer *EntitlementRedeemer
	gw       PaymentGateway
	rt       Runtime
}

func NewCheckoutUsecase(
	tm repo.TransactionManager,
	ledger *InventoryLedger,
	redeemer *EntitlementRedeemer,
	gw PaymentGateway,
	rt Runtime,
) *CheckoutUsecase {
	return &CheckoutUsecase{
		tm:       tm,
		ledger:   ledger,
		redeemer: redeemer,
		gw:       gw,
		rt:       rt.withDefaults(),
	}
}

// 注文1件分の組み立て結果
type draft struct {
	order    model.Order
	items    []model.OrderItem
	vouchers []model.OrderVoucher
	coupons  []model.OrderCoupon
}

func (u *CheckoutUsecase) Checkout(ctx context.Context, userID int64, in CheckoutInput) (res CheckoutResult, err error) {
	ctx, span := tracer.Start(ctx, "checkout")
	span.SetAttributes(attribute.String("payment_method", string(in.PaymentMethod)))
	start := time.Now()
	defer func() {
		u.rt.Metrics.Checkout(string(in.PaymentMethod), resultLabel(err))
		u.rt.logError(ctx, "checkout", logging.Fields{
			OrderCode:  res.OrderCode,
			OrderID:    res.OrderID,
			Step:       "checkout",
			Status:     resultLabel(err),
			DurationMS: logging.Since(start),
			Err:        err,
		})
		endSpan(span, err)
	}()

	if userID <= 0 {
		return CheckoutResult{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if err := validateCheckout(in); err != nil {
		return CheckoutResult{}, err
	}

	code := u.rt.NewOrderCode(u.rt.Clock.Now())
	span.SetAttributes(attribute.String("order_code", code))

	ob := &outbox{}
	var order model.Order
	err = u.tm.WithinTx(ctx, func(r repo.TxRepos) error {
		d, err := u.build(ctx, r, ob, userID, code, in)
		if err != nil {
			return err
		}

		created, err := r.Orders().Create(ctx, d.order)
		if err == repo.ErrDuplicate {
			return newError(KindConflict, "order_code_taken", "order code collision, retry checkout")
		}
		if err != nil {
			return dbError(err)
		}
		if err := r.OrderItems().CreateBulk(ctx, created.ID, d.items); err != nil {
			return dbError(err)
		}
		if err := r.Orders().CreateVouchers(ctx, created.ID, d.vouchers); err != nil {
			return dbError(err)
		}
		if err := r.Orders().CreateCoupons(ctx, created.ID, d.coupons); err != nil {
			return dbError(err)
		}

		if created.PaymentMethod == model.PaymentMethodCOD {
			for _, v := range d.vouchers {
				if err := u.redeemer.RedeemVoucherGrant(ctx, r, userID, v.GrantID, created.ID); err != nil {
					return err
				}
			}
			for _, c := range d.coupons {
				if err := u.redeemer.RedeemCouponGrant(ctx, r, userID, c.CouponID, created.ID); err != nil {
					return err
				}
			}
			if err := checkOutCart(ctx, r, userID, created.ID, u.rt.Clock.Now()); err != nil {
				return err
			}
			ob.add(userNotice(model.NotificationOrder, model.EventOrderCreated, created,
				fmt.Sprintf("order %s placed, pay %d on delivery", created.Code, created.TotalAmount)))
			ob.add(adminNotice(model.NotificationOrder, model.EventOrderCreated, created.Code,
				fmt.Sprintf("new cod order %s (%d)", created.Code, created.TotalAmount)))
		}

		order = created
		return nil
	})
	if err != nil {
		return CheckoutResult{}, wrapTxError(err)
	}
	u.rt.flush(ctx, ob)

	res = CheckoutResult{
		OrderID:       order.ID,
		OrderCode:     order.Code,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		TotalAmount:   order.TotalAmount,
	}
	if order.PaymentMethod != model.PaymentMethodGateway {
		return res, nil
	}

	// 注文はコミット済み。決済開始に失敗しても pending のまま残し、/orders/:code/pay で再開できる。
	payURL, err := u.initiate(ctx, order)
	if err != nil {
		return res, err
	}
	res.PayURL = payURL
	return res, nil
}

// RetryPayment は決済待ちのgateway注文の決済URLを取り直す。
func (u *CheckoutUsecase) RetryPayment(ctx context.Context, userID int64, code string) (res CheckoutResult, err error) {
	ctx, span := tracer.Start(ctx, "checkout.retry_payment")
	span.SetAttributes(attribute.String("order_code", code))
	defer func() { endSpan(span, err) }()

	var order model.Order
	err = u.tm.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByCode(ctx, code)
		if err == repo.ErrNotFound {
			return orderNotFound()
		}
		if err != nil {
			return dbError(err)
		}
		order = o
		return nil
	})
	if err != nil {
		return CheckoutResult{}, wrapTxError(err)
	}
	if order.UserID != userID {
		return CheckoutResult{}, orderNotFound()
	}
	if order.PaymentMethod != model.PaymentMethodGateway {
		return CheckoutResult{}, validationError("order %s is not a gateway order", code)
	}
	if order.PaymentStatus != model.PaymentStatusPending || order.Status != model.OrderStatusPending {
		return CheckoutResult{}, invalidTransition(string(order.PaymentStatus), string(model.PaymentStatusPending))
	}

	res = CheckoutResult{
		OrderID:       order.ID,
		OrderCode:     order.Code,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		TotalAmount:   order.TotalAmount,
	}
	payURL, err := u.initiate(ctx, order)
	if err != nil {
		return res, err
	}
	res.PayURL = payURL
	return res, nil
}

// build は在庫確保（cod）または在庫確認（gateway）をしながら注文を組み立てる。
func (u *CheckoutUsecase) build(ctx context.Context, r repo.TxRepos, ob *outbox, userID int64, code string, in CheckoutInput) (draft, error) {
	now := u.rt.Clock.Now()
	cod := in.PaymentMethod == model.PaymentMethodCOD

	items := make([]model.OrderItem, 0, len(in.LineItems))
	var subtotal int64
	for _, li := range in.LineItems {
		v, err := r.Variants().FindByID(ctx, li.VariantID)
		if err == repo.ErrNotFound {
			return draft{}, notFound(fmt.Sprintf("variant %d not found", li.VariantID))
		}
		if err != nil {
			return draft{}, dbError(err)
		}
		if !v.IsActive {
			return draft{}, validationError("variant %d is not for sale", v.ID)
		}

		var locationID int64
		if cod {
			loc, ok, err := u.ledger.ReserveAny(ctx, r, ob, v.ID, li.Quantity, code)
			if err != nil {
				return draft{}, err
			}
			if !ok {
				return draft{}, outOfStock(v.ID, v.Name, li.Quantity)
			}
			locationID = loc
		} else {
			ok, err := u.ledger.Available(ctx, r, v.ID, li.Quantity)
			if err != nil {
				return draft{}, err
			}
			if !ok {
				return draft{}, outOfStock(v.ID, v.Name, li.Quantity)
			}
		}

		item := model.OrderItem{
			VariantID:               v.ID,
			LocationID:              locationID,
			NameSnapshot:            v.Name,
			AttributesSnapshot:      v.Attributes,
			ImageSnapshot:           v.ImageURL,
			UnitPriceSnapshot:       v.Price,
			DiscountedPriceSnapshot: v.EffectivePrice(),
			Quantity:                li.Quantity,
			CreatedAt:               now,
		}
		subtotal += item.LineTotal()
		items = append(items, item)
	}

	// 割引はスコープごとに残額の範囲で積み上げる
	remaining := map[model.ApplyScope]int64{
		model.ApplyScopeOrder:    subtotal,
		model.ApplyScopeShipping: in.ShippingFee,
	}
	apply := func(rule model.DiscountRule, scope model.ApplyScope, what string, id int64) (int64, error) {
		if subtotal < rule.MinOrderValue {
			e := validationError("%s %d requires an order of at least %d", what, id, rule.MinOrderValue)
			e.Details = map[string]any{"id": id, "min_order_value": rule.MinOrderValue}
			return 0, e
		}
		amount := rule.DiscountFor(remaining[scope])
		remaining[scope] -= amount
		return amount, nil
	}

	var discount int64
	vouchers := make([]model.OrderVoucher, 0, len(in.Vouchers))
	for _, ref := range in.Vouchers {
		g, err := u.redeemer.ResolveVoucher(ctx, r, userID, ref.GrantID)
		if err != nil {
			return draft{}, err
		}
		amount, err := apply(g.Voucher.DiscountRule, ref.ApplyScope, "voucher grant", g.ID)
		if err != nil {
			return draft{}, err
		}
		discount += amount
		vouchers = append(vouchers, model.OrderVoucher{GrantID: g.ID, ApplyScope: ref.ApplyScope, Amount: amount})
	}
	coupons := make([]model.OrderCoupon, 0, len(in.Coupons))
	for _, ref := range in.Coupons {
		g, err := u.redeemer.ResolveCoupon(ctx, r, userID, ref.CouponID)
		if err != nil {
			return draft{}, err
		}
		amount, err := apply(g.Coupon.DiscountRule, ref.ApplyScope, "coupon", g.CouponID)
		if err != nil {
			return draft{}, err
		}
		discount += amount
		coupons = append(coupons, model.OrderCoupon{CouponID: g.CouponID, ApplyScope: ref.ApplyScope, Amount: amount})
	}

	total := subtotal + in.ShippingFee - discount
	if total != in.DeclaredTotal {
		e := newError(KindValidation, "total_mismatch",
			fmt.Sprintf("declared total %d does not match computed total %d", in.DeclaredTotal, total))
		e.Details = map[string]any{"declared_total": in.DeclaredTotal, "computed_total": total}
		return draft{}, e
	}

	return draft{
		order: model.Order{
			Code:          code,
			UserID:        userID,
			Shipping:      in.Shipping,
			PaymentMethod: in.PaymentMethod,
			PaymentStatus: model.PaymentStatusPending,
			Status:        model.OrderStatusPending,
			Subtotal:      subtotal,
			ShippingFee:   in.ShippingFee,
			Discount:      discount,
			TotalAmount:   total,
			StockReserved: cod,
			Version:       1,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		items:    items,
		vouchers: vouchers,
		coupons:  coupons,
	}, nil
}

// initiate はゲートウェイに決済を作らせ、requestId を注文に残す。
func (u *CheckoutUsecase) initiate(ctx context.Context, order model.Order) (string, error) {
	if u.gw == nil {
		return "", gatewayError(fmt.Errorf("payment gateway is not configured"))
	}
	resp, err := u.gw.CreatePayment(ctx, gateway.PaymentRequest{
		OrderCode: order.Code,
		Amount:    order.TotalAmount,
		OrderInfo: "Payment for order " + order.Code,
	})
	if err != nil {
		e := gatewayError(err)
		e.Details = map[string]any{"order_id": order.ID, "order_code": order.Code}
		return "", e
	}

	// requestId は照会の手がかり。書けなくても決済自体は進める。
	err = u.tm.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByCodeForUpdate(ctx, order.Code)
		if err != nil {
			return err
		}
		if o.PaymentStatus.IsTerminal() {
			return nil
		}
		o.PaymentRef = resp.RequestID
		_, err = r.Orders().UpdateState(ctx, o)
		return err
	})
	if err != nil {
		logging.Log(ctx, u.rt.Logger, "payment ref not saved", logging.Fields{
			OrderCode: order.Code,
			Step:      "initiate_payment",
			Err:       err,
		})
	}
	return resp.PayURL, nil
}

func validateCheckout(in CheckoutInput) error {
	if !in.PaymentMethod.Valid() {
		return validationError("payment_method must be cod or gateway")
	}
	if len(in.LineItems) == 0 {
		return validationError("line_items must not be empty")
	}
	seen := make(map[int64]bool, len(in.LineItems))
	for _, li := range in.LineItems {
		if li.VariantID <= 0 {
			return validationError("invalid variant_id")
		}
		if li.Quantity < 1 {
			return validationError("quantity of variant %d must be at least 1", li.VariantID)
		}
		if seen[li.VariantID] {
			e := newError(KindConflict, "duplicate_line_item", fmt.Sprintf("variant %d appears more than once", li.VariantID))
			e.Details = map[string]any{"variant_id": li.VariantID}
			return e
		}
		seen[li.VariantID] = true
	}
	if in.ShippingFee < 0 || in.DeclaredTotal < 0 {
		return validationError("amounts must not be negative")
	}

	s := in.Shipping
	if strings.TrimSpace(s.RecipientName) == "" || strings.TrimSpace(s.Phone) == "" ||
		strings.TrimSpace(s.Province) == "" || strings.TrimSpace(s.Line1) == "" {
		return validationError("shipping recipient_name, phone, province and line1 are required")
	}

	grants := map[int64]bool{}
	for _, v := range in.Vouchers {
		if v.GrantID <= 0 || !v.ApplyScope.Valid() {
			return validationError("invalid voucher reference")
		}
		if grants[v.GrantID] {
			return validationError("voucher grant %d appears more than once", v.GrantID)
		}
		grants[v.GrantID] = true
	}
	coupons := map[int64]bool{}
	for _, c := range in.Coupons {
		if c.CouponID <= 0 || !c.ApplyScope.Valid() {
			return validationError("invalid coupon reference")
		}
		if coupons[c.CouponID] {
			return validationError("coupon %d appears more than once", c.CouponID)
		}
		coupons[c.CouponID] = true
	}
	return nil
}
