package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
	"github.com/rs-labo46/ec-fulfillment/internal/infra/gateway"
	"github.com/rs-labo46/ec-fulfillment/internal/logging"
	repo "github.com/rs-labo46/ec-fulfillment/internal/repository"
)

type ReconcileSource string

const (
	SourceWebhook ReconcileSource = "webhook"
	SourceReturn  ReconcileSource = "return"
	SourcePoll    ReconcileSource = "poll"
)

// 反映結果
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomePending   = "pending"
	OutcomeNoop      = "noop"
)

type ReconcileResult struct {
	OrderCode     string              `json:"order_code"`
	Source        ReconcileSource     `json:"source"`
	Outcome       string              `json:"outcome"`
	Status        model.OrderStatus   `json:"status"`
	PaymentStatus model.PaymentStatus `json:"payment_status"`
	Reason        string              `json:"reason,omitempty"`
}

// Locker は複数プロセスのうち1つだけがスイープするためのロック
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error)
}

// 同時更新で負けたときの再試行回数
const reconcileAttempts = 3

// PaymentReconciler はゲートウェイからの結果（webhook・リダイレクト・照会）を注文に反映する。
// 注文コードで引き、支払いが終端なら何もしない。
type PaymentReconciler struct {
	tm       repo.TransactionManager
	ledger   *InventoryLedger
	redeemer *EntitlementRedeemer
	gw       PaymentGateway
	rt       Runtime
}

func NewPaymentReconciler(
	tm repo.TransactionManager,
	ledger *InventoryLedger,
	redeemer *EntitlementRedeemer,
	gw PaymentGateway,
	rt Runtime,
) *PaymentReconciler {
	return &PaymentReconciler{
		tm:       tm,
		ledger:   ledger,
		redeemer: redeemer,
		gw:       gw,
		rt:       rt.withDefaults(),
	}
}

// HandleWebhook はIPNの本文を検証してから反映する。
func (p *PaymentReconciler) HandleWebhook(ctx context.Context, body []byte) (ReconcileResult, error) {
	cb, err := p.gw.ParseWebhook(body)
	if err != nil {
		p.rt.Metrics.Reconciled(string(SourceWebhook), string(KindInvalidCallback))
		return ReconcileResult{Source: SourceWebhook}, invalidCallback(err)
	}
	return p.Reconcile(ctx, SourceWebhook, cb)
}

// HandleReturn はリダイレクトの署名だけ確認し、確定結果はゲートウェイに照会して決める。
// 照会に失敗したときは何も変えず、リダイレクトの結果を表示用に返す。
func (p *PaymentReconciler) HandleReturn(ctx context.Context, q url.Values) (ReconcileResult, error) {
	cb, err := p.gw.ParseReturn(q)
	if err != nil {
		p.rt.Metrics.Reconciled(string(SourceReturn), string(KindInvalidCallback))
		return ReconcileResult{Source: SourceReturn}, invalidCallback(err)
	}

	res, err := p.PollAndReconcile(ctx, cb.OrderCode)
	if err != nil {
		p.rt.logError(ctx, "return landing poll failed", logging.Fields{
			OrderCode: cb.OrderCode,
			Step:      string(SourceReturn),
			Err:       err,
		})
		if errors.Is(err, ErrNotFound) {
			return ReconcileResult{OrderCode: cb.OrderCode, Source: SourceReturn}, err
		}
		return ReconcileResult{
			OrderCode: cb.OrderCode,
			Source:    SourceReturn,
			Outcome:   outcomeLabel(cb.FinalOutcome()),
		}, nil
	}
	res.Source = SourceReturn
	return res, nil
}

// PollAndReconcile はゲートウェイに状態を照会して反映する。何度呼んでもよい。
func (p *PaymentReconciler) PollAndReconcile(ctx context.Context, orderCode string) (ReconcileResult, error) {
	if orderCode == "" {
		return ReconcileResult{}, validationError("order code is required")
	}
	cb, err := p.gw.QueryStatus(ctx, orderCode)
	if err != nil {
		p.rt.Metrics.Reconciled(string(SourcePoll), string(KindGateway))
		return ReconcileResult{OrderCode: orderCode, Source: SourcePoll}, gatewayError(err)
	}
	if cb.OrderCode == "" {
		cb.OrderCode = orderCode
	}
	if cb.OrderCode != orderCode {
		return ReconcileResult{OrderCode: orderCode, Source: SourcePoll},
			invalidCallback(fmt.Errorf("%w: query answered for %s", gateway.ErrMalformed, cb.OrderCode))
	}
	return p.Reconcile(ctx, SourcePoll, cb)
}

// Reconcile は検証済みの結果を注文に反映する。
func (p *PaymentReconciler) Reconcile(ctx context.Context, source ReconcileSource, cb gateway.Callback) (res ReconcileResult, err error) {
	ctx, span := tracer.Start(ctx, "reconcile")
	span.SetAttributes(
		attribute.String("source", string(source)),
		attribute.String("order_code", cb.OrderCode),
		attribute.Int("result_code", cb.ResultCode),
	)
	start := time.Now()
	defer func() {
		label := res.Outcome
		if err != nil {
			label = resultLabel(err)
		}
		p.rt.Metrics.Reconciled(string(source), label)
		p.rt.logError(ctx, "reconcile", logging.Fields{
			OrderCode:  cb.OrderCode,
			Step:       string(source),
			Status:     label,
			DurationMS: logging.Since(start),
			Err:        err,
		})
		endSpan(span, err)
	}()

	if cb.OrderCode == "" {
		return ReconcileResult{Source: source}, invalidCallback(fmt.Errorf("%w: orderId is empty", gateway.ErrMalformed))
	}

	for attempt := 1; ; attempt++ {
		res, err = p.apply(ctx, source, cb)
		if !errors.Is(err, repo.ErrStaleVersion) {
			break
		}
		if attempt >= reconcileAttempts {
			err = concurrentUpdate()
			break
		}
	}
	res.OrderCode = cb.OrderCode
	res.Source = source
	return res, wrapTxError(err)
}

// 処理中として待つのは照会の応答だけ。IPN とリダイレクトは 0 以外を失敗として確定させる。
func outcomeFor(source ReconcileSource, cb gateway.Callback) gateway.Outcome {
	if source == SourcePoll {
		return cb.Outcome()
	}
	return cb.FinalOutcome()
}

// 決済成功時に在庫が足りなかった明細
type stockShortage struct {
	item model.OrderItem
}

func (e *stockShortage) Error() string {
	return fmt.Sprintf("variant %d (%s) is out of stock", e.item.VariantID, e.item.NameSnapshot)
}

func (p *PaymentReconciler) apply(ctx context.Context, source ReconcileSource, cb gateway.Callback) (ReconcileResult, error) {
	outcome := outcomeFor(source, cb)

	ob := &outbox{}
	var res ReconcileResult
	err := p.tm.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := p.lockOrder(ctx, r, cb)
		if err != nil {
			return err
		}
		res = resultOf(o, OutcomeNoop)
		if o.PaymentStatus.IsTerminal() {
			return nil
		}

		switch outcome {
		case gateway.OutcomePending:
			res.Outcome = OutcomePending
			return nil
		case gateway.OutcomeSuccess:
			o, err = p.complete(ctx, r, ob, o, cb)
		default:
			reason := fmt.Sprintf("payment failed: %s (resultCode=%d)", cb.Message, cb.ResultCode)
			o, err = p.fail(ctx, r, ob, o, reason, false)
		}
		if err != nil {
			return err
		}
		res = resultOf(o, string(o.PaymentStatus))
		return nil
	})

	var short *stockShortage
	if errors.As(err, &short) {
		// 確保はロールバック済み。別トランザクションで注文を失敗にする。
		return p.failForShortage(ctx, cb, short)
	}
	if err != nil {
		return ReconcileResult{}, err
	}
	p.rt.flush(ctx, ob)
	return res, nil
}

func (p *PaymentReconciler) failForShortage(ctx context.Context, cb gateway.Callback, short *stockShortage) (ReconcileResult, error) {
	ob := &outbox{}
	var res ReconcileResult
	err := p.tm.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := p.lockOrder(ctx, r, cb)
		if err != nil {
			return err
		}
		if o.PaymentStatus.IsTerminal() {
			res = resultOf(o, OutcomeNoop)
			return nil
		}
		reason := fmt.Sprintf("paid but %s at payment confirmation", short.Error())
		o, err = p.fail(ctx, r, ob, o, reason, true)
		if err != nil {
			return err
		}
		res = resultOf(o, OutcomeFailed)
		return nil
	})
	if err != nil {
		return ReconcileResult{}, err
	}
	p.rt.flush(ctx, ob)
	return res, nil
}

func (p *PaymentReconciler) lockOrder(ctx context.Context, r repo.TxRepos, cb gateway.Callback) (model.Order, error) {
	o, err := r.Orders().FindByCodeForUpdate(ctx, cb.OrderCode)
	if err == repo.ErrNotFound {
		return model.Order{}, orderNotFound()
	}
	if err != nil {
		return model.Order{}, dbError(err)
	}
	if o.PaymentMethod != model.PaymentMethodGateway {
		return model.Order{}, invalidCallback(fmt.Errorf("order %s is not paid through the gateway", o.Code))
	}
	// 照会・IPNは金額を返す。0は省略扱い。
	if cb.Amount != 0 && cb.Amount != o.TotalAmount {
		return model.Order{}, invalidCallback(fmt.Errorf("amount %d does not match order total %d", cb.Amount, o.TotalAmount))
	}
	return o, nil
}

// complete は在庫確保・割引消費・カート削除をして注文を確定する。
func (p *PaymentReconciler) complete(ctx context.Context, r repo.TxRepos, ob *outbox, o model.Order, cb gateway.Callback) (model.Order, error) {
	items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
	if err != nil {
		return model.Order{}, dbError(err)
	}
	for _, it := range items {
		loc, ok, err := p.ledger.ReserveAny(ctx, r, ob, it.VariantID, it.Quantity, o.Code)
		if err != nil {
			return model.Order{}, err
		}
		if !ok {
			return model.Order{}, &stockShortage{item: it}
		}
		if err := r.OrderItems().AssignLocation(ctx, it.ID, loc); err != nil {
			return model.Order{}, dbError(err)
		}
	}

	vouchers, err := r.Orders().ListVouchers(ctx, o.ID)
	if err != nil {
		return model.Order{}, dbError(err)
	}
	for _, v := range vouchers {
		err := p.redeemer.RedeemVoucherGrant(ctx, r, o.UserID, v.GrantID, o.ID)
		if err := p.entitlementConflict(ob, o, "voucher grant", v.GrantID, err); err != nil {
			return model.Order{}, err
		}
	}
	coupons, err := r.Orders().ListCoupons(ctx, o.ID)
	if err != nil {
		return model.Order{}, dbError(err)
	}
	for _, c := range coupons {
		err := p.redeemer.RedeemCouponGrant(ctx, r, o.UserID, c.CouponID, o.ID)
		if err := p.entitlementConflict(ob, o, "coupon", c.CouponID, err); err != nil {
			return model.Order{}, err
		}
	}

	if err := checkOutCart(ctx, r, o.UserID, o.ID, p.rt.Clock.Now()); err != nil {
		return model.Order{}, err
	}

	o.PaymentStatus = model.PaymentStatusCompleted
	o.Status = model.OrderStatusConfirmed
	o.StockReserved = true
	if cb.TransID != "" {
		o.PaymentRef = cb.TransID
	}
	updated, err := r.Orders().UpdateState(ctx, o)
	if err != nil {
		return model.Order{}, err
	}

	ob.add(userNotice(model.NotificationPayment, model.EventPaymentCompleted, updated,
		fmt.Sprintf("payment of %d for order %s received", updated.TotalAmount, updated.Code)))
	ob.add(userNotice(model.NotificationOrder, model.EventOrderConfirmed, updated,
		fmt.Sprintf("order %s confirmed", updated.Code)))
	ob.add(adminNotice(model.NotificationOrder, model.EventOrderCreated, updated.Code,
		fmt.Sprintf("new paid order %s (%d)", updated.Code, updated.TotalAmount)))
	return updated, nil
}

// 支払い済みなので、割引が別注文で使われていても注文は確定させ、管理者に知らせる。
func (p *PaymentReconciler) entitlementConflict(ob *outbox, o model.Order, what string, id int64, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrEntitlementAlreadyUsed) || errors.Is(err, ErrEntitlementNotFound) {
		ob.add(adminNotice(model.NotificationEntitlement, model.EventEntitlementConflict, o.Code,
			fmt.Sprintf("%s %d on paid order %s could not be redeemed: %v", what, id, o.Code, err)))
		return nil
	}
	return err
}

// fail は支払い失敗・注文キャンセルにする。在庫と割引には触らない。
func (p *PaymentReconciler) fail(ctx context.Context, r repo.TxRepos, ob *outbox, o model.Order, reason string, refund bool) (model.Order, error) {
	o.PaymentStatus = model.PaymentStatusFailed
	o.Status = model.OrderStatusCancelled
	o.CancelReason = reason
	updated, err := r.Orders().UpdateState(ctx, o)
	if err != nil {
		return model.Order{}, err
	}

	ob.add(userNotice(model.NotificationPayment, model.EventPaymentFailed, updated,
		fmt.Sprintf("order %s was cancelled: %s", updated.Code, reason)))
	if refund {
		ob.add(adminNotice(model.NotificationPayment, model.EventRefundRequired, updated.Code,
			fmt.Sprintf("refund %d for order %s: %s", updated.TotalAmount, updated.Code, reason)))
	}
	return updated, nil
}

func resultOf(o model.Order, outcome string) ReconcileResult {
	return ReconcileResult{
		OrderCode:     o.Code,
		Outcome:       outcome,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		Reason:        o.CancelReason,
	}
}

func outcomeLabel(o gateway.Outcome) string {
	switch o {
	case gateway.OutcomeSuccess:
		return OutcomeCompleted
	case gateway.OutcomePending:
		return OutcomePending
	}
	return OutcomeFailed
}

// ---- 決済待ち注文のスイープ ----

type SweepConfig struct {
	Interval  time.Duration
	MinAge    time.Duration
	BatchSize int
	LockTTL   time.Duration
}

func (c SweepConfig) withDefaults() SweepConfig {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.MinAge <= 0 {
		c.MinAge = 5 * time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.LockTTL <= 0 {
		c.LockTTL = c.Interval
	}
	return c
}

type SweepReport struct {
	Skipped   bool `json:"skipped"`
	Checked   int  `json:"checked"`
	Completed int  `json:"completed"`
	Failed    int  `json:"failed"`
	Pending   int  `json:"pending"`
	Errors    int  `json:"errors"`
}

const sweepLockKey = "ec-fulfillment:reconcile-sweep"

// SweepPending は古い決済待ちgateway注文をゲートウェイに照会して反映する。
// ロックが取れなければ他のプロセスに任せて何もしない。
func (p *PaymentReconciler) SweepPending(ctx context.Context, locker Locker, cfg SweepConfig) (SweepReport, error) {
	cfg = cfg.withDefaults()
	if locker != nil {
		release, ok, err := locker.TryAcquire(ctx, sweepLockKey, cfg.LockTTL)
		if err != nil {
			return SweepReport{}, err
		}
		if !ok {
			return SweepReport{Skipped: true}, nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				logging.Log(ctx, p.rt.Logger, "sweep lock release failed", logging.Fields{Step: "sweep", Err: err})
			}
		}()
	}

	var pending []model.Order
	err := p.tm.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		pending, err = r.Orders().ListPendingGateway(ctx, p.rt.Clock.Now().Add(-cfg.MinAge), cfg.BatchSize)
		return err
	})
	if err != nil {
		return SweepReport{}, dbError(err)
	}

	var rep SweepReport
	for _, o := range pending {
		if ctx.Err() != nil {
			break
		}
		rep.Checked++
		res, err := p.PollAndReconcile(ctx, o.Code)
		if err != nil {
			rep.Errors++
			continue
		}
		switch res.Outcome {
		case OutcomeCompleted:
			rep.Completed++
		case OutcomeFailed:
			rep.Failed++
		case OutcomePending:
			rep.Pending++
		}
	}
	return rep, nil
}

// RunSweeper は ctx が終わるまで一定間隔で SweepPending を回す。
func (p *PaymentReconciler) RunSweeper(ctx context.Context, locker Locker, cfg SweepConfig) {
	cfg = cfg.withDefaults()
	t := time.NewTicker(cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			start := time.Now()
			rep, err := p.SweepPending(ctx, locker, cfg)
			status := fmt.Sprintf("checked=%d completed=%d failed=%d pending=%d errors=%d",
				rep.Checked, rep.Completed, rep.Failed, rep.Pending, rep.Errors)
			if rep.Skipped {
				status = "skipped"
			}
			logging.Log(ctx, p.rt.Logger, "reconcile sweep", logging.Fields{
				Step:       "sweep",
				Status:     status,
				DurationMS: logging.Since(start),
				Err:        err,
			})
		}
	}
}
