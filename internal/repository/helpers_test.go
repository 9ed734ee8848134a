package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/nimasrn/matatu-pay/internal/model"
	"github.com/nimasrn/matatu-pay/pkg/pg"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testDB struct {
	*pg.DB
	rawDB *gorm.DB
}

func setupTestDB(t *testing.T) *testDB {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(Entities()...))

	return &testDB{
		DB:    pg.New(db, db),
		rawDB: db,
	}
}

func seedAccount(t *testing.T, db *testDB, number string, typ model.AccountType) *model.Account {
	acc, err := NewAccountRepository(db.DB).Create(context.Background(), &model.Account{
		AccountNumber: number,
		Name:          "Account " + number,
		Type:          typ,
		IsActive:      true,
	})
	require.NoError(t, err)
	return acc
}

func pendingTransaction(id, vehicle string) *model.Transaction {
	return &model.Transaction{
		TransactionID:     id,
		VehicleCode:       vehicle,
		PayerPhone:        "254712345678",
		FareAmount:        100,
		ServiceCharge:     2,
		TotalAmount:       102,
		OwnerShare:        2,
		PlatformShare:     0,
		PlatformPercent:   "10",
		OwnerAccountID:    1,
		PlatformAccountID: 2,
		Status:            model.TransactionStatusPending,
	}
}
