package repository_test

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rs-labo46/ec-fulfillment/internal/domain/model"
	"github.com/rs-labo46/ec-fulfillment/internal/infra/db"
	infraRepo "github.com/rs-labo46/ec-fulfillment/internal/infra/repository"
	repo "github.com/rs-labo46/ec-fulfillment/internal/repository"
	"github.com/rs-labo46/ec-fulfillment/internal/usecase"
)

// TEST_DATABASE_URL=postgres://... go test ./internal/infra/repository/
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}
	gdb, err := db.Connect(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, db.MigrateUp(ctx, gdb))
	return gdb
}

func seedVariant(t *testing.T, gdb *gorm.DB) model.ProductVariant {
	t.Helper()
	v := model.ProductVariant{
		ProductID: 1,
		SKU:       "IT-" + uuid.NewString()[:8],
		Name:      "integration tee",
		Price:     1500,
		IsActive:  true,
	}
	require.NoError(t, gdb.Create(&v).Error)
	return v
}

// 並行予約の売り越しが起きないことを実DBの条件付き UPDATE で確かめる。メモリストアの並行テストは直列化しか見ない。
func TestGorm_ConcurrentReservations(t *testing.T) {
	gdb := openTestDB(t)
	tm := infraRepo.NewTxManagerGorm(gdb)
	ledger := usecase.NewInventoryLedger(0, nil)
	ctx := context.Background()
	v := seedVariant(t, gdb)

	err := tm.WithinTx(ctx, func(r repo.TxRepos) error {
		return ledger.Receive(ctx, r, nil, usecase.Movement{VariantID: v.ID, LocationID: 1, Quantity: 5, Reference: "it-seed"})
	})
	require.NoError(t, err)

	var (
		wg sync.WaitGroup
		ok atomic.Int64
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := tm.WithinTx(ctx, func(r repo.TxRepos) error {
				got, err := ledger.ReserveAndCommit(ctx, r, nil, usecase.Movement{VariantID: v.ID, LocationID: 1, Quantity: 1, Reference: "it-sale"})
				if got {
					ok.Add(1)
				}
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(5), ok.Load())

	err = tm.WithinTx(ctx, func(r repo.TxRepos) error {
		audit, err := ledger.Audit(ctx, r, v.ID, 1)
		require.NoError(t, err)
		assert.Zero(t, audit.Quantity)
		assert.True(t, audit.Consistent)
		return nil
	})
	require.NoError(t, err)
}

func TestGorm_RollbackLeavesNoMovement(t *testing.T) {
	gdb := openTestDB(t)
	tm := infraRepo.NewTxManagerGorm(gdb)
	ledger := usecase.NewInventoryLedger(0, nil)
	ctx := context.Background()
	v := seedVariant(t, gdb)

	err := tm.WithinTx(ctx, func(r repo.TxRepos) error {
		if err := ledger.Receive(ctx, r, nil, usecase.Movement{VariantID: v.ID, LocationID: 2, Quantity: 3}); err != nil {
			return err
		}
		return usecase.ErrConflict
	})
	require.ErrorIs(t, err, usecase.ErrConflict)

	var n int64
	require.NoError(t, gdb.Model(&model.InventoryTransaction{}).Where("variant_id = ?", v.ID).Count(&n).Error)
	assert.Zero(t, n)
	require.NoError(t, gdb.Model(&model.InventoryRecord{}).Where("variant_id = ?", v.ID).Count(&n).Error)
	assert.Zero(t, n)
}

func TestGorm_VoucherRedeemedOnce(t *testing.T) {
	gdb := openTestDB(t)
	tm := infraRepo.NewTxManagerGorm(gdb)
	redeemer := usecase.NewEntitlementRedeemer(nil)
	ctx := context.Background()

	voucher := model.Voucher{Code: "IT-" + uuid.NewString()[:8], DiscountRule: model.DiscountRule{DiscountType: model.DiscountFixed, Value: 100}}
	require.NoError(t, gdb.Create(&voucher).Error)
	grant := model.VoucherGrant{UserID: 77, VoucherID: voucher.ID}
	require.NoError(t, gdb.Omit("Voucher").Create(&grant).Error)

	// 注文行が無くても grant.order_id はFKではないので使える
	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := int64(1); i <= 6; i++ {
		wg.Add(1)
		go func(orderID int64) {
			defer wg.Done()
			err := tm.WithinTx(ctx, func(r repo.TxRepos) error {
				return redeemer.RedeemVoucherGrant(ctx, r, 77, grant.ID, orderID)
			})
			if err == nil {
				wins.Add(1)
				return
			}
			assert.ErrorIs(t, err, usecase.ErrEntitlementAlreadyUsed)
		}(900000 + i)
	}
	wg.Wait()
	assert.Equal(t, int64(1), wins.Load())
}
