package usecase

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
	"github.com/rs-labo46/ec-fulfillment/internal/metrics"
	repo "github.com/rs-labo46/ec-fulfillment/internal/repository"
)

// InventoryLedger は在庫数の増減と移動ログの追記を必ずセットで行う。
// 呼び出し側のトランザクション（TxRepos）の中で使う。
type InventoryLedger struct {
	lowStockThreshold int64
	metrics           *metrics.Metrics
}

func NewInventoryLedger(lowStockThreshold int64, m *metrics.Metrics) *InventoryLedger {
	return &InventoryLedger{lowStockThreshold: lowStockThreshold, metrics: m}
}

type Movement struct {
	VariantID      int64
	LocationID     int64
	Quantity       int64
	Reference      string
	Note           string
	UnitCost       decimal.NullDecimal
	CounterpartyID *int64
}

// ReserveAndCommit は quantity >= qty のときだけ減らす。足りなければ ok=false。
func (l *InventoryLedger) ReserveAndCommit(ctx context.Context, r repo.TxRepos, ob *outbox, mv Movement) (bool, error) {
	if mv.Quantity <= 0 {
		return false, validationError("quantity must be positive")
	}
	rec, ok, err := r.Inventory().DecreaseIfEnough(ctx, mv.VariantID, mv.LocationID, mv.Quantity)
	if err != nil {
		return false, dbError(err)
	}
	l.metrics.Reservation(ok)
	if !ok {
		return false, nil
	}
	if err := l.append(ctx, r, mv, model.MovementExport, model.ReasonSale); err != nil {
		return false, err
	}
	l.checkLow(ob, rec)
	return true, nil
}

// ReserveAny は在庫の多い拠点から順に1拠点で確保する。確保できた拠点IDを返す。
func (l *InventoryLedger) ReserveAny(ctx context.Context, r repo.TxRepos, ob *outbox, variantID, qty int64, reference string) (int64, bool, error) {
	recs, err := r.Inventory().ListByVariant(ctx, variantID)
	if err != nil {
		return 0, false, dbError(err)
	}
	for _, rec := range recs {
		if rec.Quantity < qty {
			// 多い順なのでこれ以降も足りない
			break
		}
		ok, err := l.ReserveAndCommit(ctx, r, ob, Movement{
			VariantID:  variantID,
			LocationID: rec.LocationID,
			Quantity:   qty,
			Reference:  reference,
			Note:       "sale " + reference,
		})
		if err != nil {
			return 0, false, err
		}
		if ok {
			return rec.LocationID, true, nil
		}
	}
	return 0, false, nil
}

// Available は確保せずに、1拠点で qty 以上あるかだけ見る。
func (l *InventoryLedger) Available(ctx context.Context, r repo.TxRepos, variantID, qty int64) (bool, error) {
	recs, err := r.Inventory().ListByVariant(ctx, variantID)
	if err != nil {
		return false, dbError(err)
	}
	return len(recs) > 0 && recs[0].Quantity >= qty, nil
}

// Release は確保の取り消し。元の販売を reference で指す。
func (l *InventoryLedger) Release(ctx context.Context, r repo.TxRepos, ob *outbox, mv Movement) error {
	if mv.Note == "" {
		mv.Note = "release " + mv.Reference
	}
	return l.increase(ctx, r, ob, mv, model.ReasonSaleRollback)
}

// Receive は仕入先からの入庫
func (l *InventoryLedger) Receive(ctx context.Context, r repo.TxRepos, ob *outbox, mv Movement) error {
	return l.increase(ctx, r, ob, mv, model.ReasonSupplierIntake)
}

// Adjust は管理者の手動調整。マイナスは在庫の範囲内でだけ。
func (l *InventoryLedger) Adjust(ctx context.Context, r repo.TxRepos, ob *outbox, mv Movement, delta int64) error {
	switch {
	case delta > 0:
		mv.Quantity = delta
		return l.increase(ctx, r, ob, mv, model.ReasonAdjustment)
	case delta < 0:
		mv.Quantity = -delta
		rec, ok, err := r.Inventory().DecreaseIfEnough(ctx, mv.VariantID, mv.LocationID, mv.Quantity)
		if err != nil {
			return dbError(err)
		}
		if !ok {
			e := newError(KindOutOfStock, "", fmt.Sprintf("variant %d at location %d has less than %d units", mv.VariantID, mv.LocationID, mv.Quantity))
			e.Details = map[string]any{"variant_id": mv.VariantID, "location_id": mv.LocationID}
			return e
		}
		if err := l.append(ctx, r, mv, model.MovementExport, model.ReasonAdjustment); err != nil {
			return err
		}
		l.checkLow(ob, rec)
		return nil
	}
	return validationError("delta must not be zero")
}

type LedgerAudit struct {
	VariantID  int64 `json:"variant_id"`
	LocationID int64 `json:"location_id"`
	Quantity   int64 `json:"quantity"`
	LedgerSum  int64 `json:"ledger_sum"`
	Consistent bool  `json:"consistent"`
}

// Audit は移動ログの符号付き合計と在庫数を比べる。
func (l *InventoryLedger) Audit(ctx context.Context, r repo.TxRepos, variantID, locationID int64) (LedgerAudit, error) {
	var qty int64
	rec, err := r.Inventory().Find(ctx, variantID, locationID)
	switch {
	case err == nil:
		qty = rec.Quantity
	case err == repo.ErrNotFound:
	default:
		return LedgerAudit{}, dbError(err)
	}
	sum, err := r.Inventory().SumSignedMovements(ctx, variantID, locationID)
	if err != nil {
		return LedgerAudit{}, dbError(err)
	}
	return LedgerAudit{
		VariantID:  variantID,
		LocationID: locationID,
		Quantity:   qty,
		LedgerSum:  sum,
		Consistent: qty == sum,
	}, nil
}

func (l *InventoryLedger) increase(ctx context.Context, r repo.TxRepos, ob *outbox, mv Movement, reason model.MovementReason) error {
	if mv.Quantity <= 0 {
		return validationError("quantity must be positive")
	}
	rec, err := r.Inventory().Increase(ctx, mv.VariantID, mv.LocationID, mv.Quantity)
	if err != nil {
		return dbError(err)
	}
	if err := l.append(ctx, r, mv, model.MovementImport, reason); err != nil {
		return err
	}
	if reason == model.ReasonSaleRollback && ob != nil {
		ob.add(adminNotice(model.NotificationInventory, model.EventStockReleased, mv.Reference,
			fmt.Sprintf("%d units of variant %d returned to location %d (%s)", mv.Quantity, mv.VariantID, mv.LocationID, mv.Reference)))
	}
	l.checkLow(ob, rec)
	return nil
}

func (l *InventoryLedger) append(ctx context.Context, r repo.TxRepos, mv Movement, mt model.MovementType, reason model.MovementReason) error {
	err := r.Inventory().AppendTransaction(ctx, model.InventoryTransaction{
		VariantID:      mv.VariantID,
		LocationID:     mv.LocationID,
		MovementType:   mt,
		Reason:         reason,
		Quantity:       mv.Quantity,
		UnitCost:       mv.UnitCost,
		CounterpartyID: mv.CounterpartyID,
		Reference:      mv.Reference,
		Note:           mv.Note,
	})
	if err != nil {
		return dbError(err)
	}
	return nil
}

func (l *InventoryLedger) checkLow(ob *outbox, rec model.InventoryRecord) {
	if ob == nil || rec.Quantity > l.lowStockThreshold {
		return
	}
	ob.add(adminNotice(model.NotificationInventory, model.EventLowStock, "",
		fmt.Sprintf("variant %d at location %d is low on stock: %d left", rec.VariantID, rec.LocationID, rec.Quantity)))
}
