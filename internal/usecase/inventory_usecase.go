package usecase

import (
	"context"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
	repo "github.com/rs-labo46/ec-fulfillment/internal/repository"
)

// InventoryUsecase は管理者の入庫・調整・台帳照合
type InventoryUsecase struct {
	tx     repo.TransactionManager
	ledger *InventoryLedger
	rt     Runtime
}

func NewInventoryUsecase(tx repo.TransactionManager, ledger *InventoryLedger, rt Runtime) *InventoryUsecase {
	return &InventoryUsecase{tx: tx, ledger: ledger, rt: rt.withDefaults()}
}

type ReceiveStockInput struct {
	VariantID  int64  `json:"variant_id" validate:"required,gt=0"`
	LocationID int64  `json:"location_id" validate:"required,gt=0"`
	Quantity   int64  `json:"quantity" validate:"required,gt=0"`
	UnitCost   string `json:"unit_cost"`
	SupplierID *int64 `json:"supplier_id"`
	Note       string `json:"note" validate:"max=500"`
	Reference  string `json:"reference" validate:"max=64"`
}

type AdjustStockInput struct {
	VariantID  int64  `json:"variant_id" validate:"required,gt=0"`
	LocationID int64  `json:"location_id" validate:"required,gt=0"`
	Delta      int64  `json:"delta" validate:"required"`
	Reason     string `json:"reason" validate:"required,max=500"`
}

type StockOutput struct {
	VariantID  int64 `json:"variant_id"`
	LocationID int64 `json:"location_id"`
	Quantity   int64 `json:"quantity"`
}

// Receive は仕入先からの入庫。単価は小数2桁まで。
func (u *InventoryUsecase) Receive(ctx context.Context, actorAdminUserID int64, in ReceiveStockInput) (StockOutput, error) {
	if actorAdminUserID <= 0 {
		return StockOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if in.VariantID <= 0 || in.LocationID <= 0 {
		return StockOutput{}, validationError("variant_id and location_id are required")
	}
	if in.Quantity <= 0 {
		return StockOutput{}, validationError("quantity must be positive")
	}

	var cost decimal.NullDecimal
	if s := strings.TrimSpace(in.UnitCost); s != "" {
		d, err := decimal.NewFromString(s)
		if err != nil || d.IsNegative() {
			return StockOutput{}, validationError("invalid unit_cost %q", in.UnitCost)
		}
		cost = decimal.NewNullDecimal(d.Round(2))
	}

	mv := Movement{
		VariantID:      in.VariantID,
		LocationID:     in.LocationID,
		Quantity:       in.Quantity,
		Reference:      strings.TrimSpace(in.Reference),
		Note:           strings.TrimSpace(in.Note),
		UnitCost:       cost,
		CounterpartyID: in.SupplierID,
	}
	return u.mutate(ctx, actorAdminUserID, model.AuditActionReceiveStock, mv, func(r repo.TxRepos, ob *outbox) error {
		return u.ledger.Receive(ctx, r, ob, mv)
	})
}

// Adjust は棚卸し差異などの手動調整。delta はマイナスも可。
func (u *InventoryUsecase) Adjust(ctx context.Context, actorAdminUserID int64, in AdjustStockInput) (StockOutput, error) {
	if actorAdminUserID <= 0 {
		return StockOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if in.VariantID <= 0 || in.LocationID <= 0 {
		return StockOutput{}, validationError("variant_id and location_id are required")
	}
	if in.Delta == 0 {
		return StockOutput{}, validationError("delta must not be zero")
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return StockOutput{}, validationError("reason is required")
	}

	actor := actorAdminUserID
	mv := Movement{
		VariantID:      in.VariantID,
		LocationID:     in.LocationID,
		Note:           reason,
		CounterpartyID: &actor,
	}
	return u.mutate(ctx, actorAdminUserID, model.AuditActionAdjustStock, mv, func(r repo.TxRepos, ob *outbox) error {
		return u.ledger.Adjust(ctx, r, ob, mv, in.Delta)
	})
}

// Audit は移動ログの合計と在庫数が一致しているかを返す。
func (u *InventoryUsecase) Audit(ctx context.Context, variantID, locationID int64) (LedgerAudit, error) {
	if variantID <= 0 || locationID <= 0 {
		return LedgerAudit{}, validationError("variant_id and location_id are required")
	}
	var out LedgerAudit
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		out, err = u.ledger.Audit(ctx, r, variantID, locationID)
		return err
	})
	if err != nil {
		return LedgerAudit{}, wrapTxError(err)
	}
	return out, nil
}

type stockAudit struct {
	Quantity int64  `json:"quantity"`
	Note     string `json:"note,omitempty"`
}

// mutate は在庫の変更と監査ログを同じトランザクションで書く。
func (u *InventoryUsecase) mutate(ctx context.Context, actor int64, action model.AuditAction, mv Movement, fn func(r repo.TxRepos, ob *outbox) error) (StockOutput, error) {
	ob := &outbox{}
	var out StockOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if _, err := r.Variants().FindByID(ctx, mv.VariantID); err == repo.ErrNotFound {
			return notFound("variant not found")
		} else if err != nil {
			return dbError(err)
		}

		var before int64
		rec, err := r.Inventory().Find(ctx, mv.VariantID, mv.LocationID)
		switch {
		case err == nil:
			before = rec.Quantity
		case err == repo.ErrNotFound:
		default:
			return dbError(err)
		}

		if err := fn(r, ob); err != nil {
			return err
		}

		rec, err = r.Inventory().Find(ctx, mv.VariantID, mv.LocationID)
		if err != nil {
			return dbError(err)
		}

		entry, err := model.NewAuditLog(actor, action, model.AuditResourceVariant, mv.VariantID,
			stockAudit{Quantity: before}, stockAudit{Quantity: rec.Quantity, Note: mv.Note}, u.rt.Clock.Now())
		if err != nil {
			return internalError(err)
		}
		if err := r.AuditLogs().Create(ctx, entry); err != nil {
			return dbError(err)
		}

		out = StockOutput{VariantID: rec.VariantID, LocationID: rec.LocationID, Quantity: rec.Quantity}
		return nil
	})
	if err != nil {
		return StockOutput{}, wrapTxError(err)
	}
	u.rt.flush(ctx, ob)
	return out, nil
}
