package helpers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	gateway "github.com/nimasrn/matatu-pay/internal/gateways"
	"github.com/nimasrn/matatu-pay/internal/model"
	"github.com/nimasrn/matatu-pay/internal/repository"
	"github.com/nimasrn/matatu-pay/pkg/pg"
	"github.com/nimasrn/matatu-pay/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB opens a private in-memory sqlite database with the full schema.
func SetupTestDB(t *testing.T) *pg.DB {
	db := openTestGorm(t, t.Name())
	return pg.New(db, db)
}

// SetupSplitTestDB returns the primary and a handle that writes to it but reads from a
// second, empty database, the way a replica that has not caught up behaves.
func SetupSplitTestDB(t *testing.T) (primary *pg.DB, split *pg.DB) {
	p := openTestGorm(t, t.Name()+"_primary")
	r := openTestGorm(t, t.Name()+"_replica")
	return pg.New(p, p), pg.New(r, p)
}

func openTestGorm(t *testing.T, name string) *gorm.DB {
	name = strings.NewReplacer("/", "_", " ", "_").Replace(name)
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

	require.NoError(t, db.AutoMigrate(repository.Entities()...))
	return db
}

func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr := miniredis.RunT(t)

	adapter, err := redis.NewRedisAdapter(t.Name()+"-"+mr.Addr(), "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}

// Fleet is the minimum set of rows a payment needs.
type Fleet struct {
	Owner    *model.Account
	Platform *model.Account
	Vehicle  *model.Vehicle
}

// SeedFleet creates an active owner, the platform account and vehicle 3025.
func SeedFleet(t *testing.T, db *pg.DB) *Fleet {
	owner := CreateTestAccount(t, db, "OWN-001", model.AccountTypeOwner)
	platform := CreateTestAccount(t, db, "PLT-001", model.AccountTypePlatform)
	vehicle := CreateTestVehicle(t, db, "3025", owner.ID)
	return &Fleet{Owner: owner, Platform: platform, Vehicle: vehicle}
}

func CreateTestAccount(t *testing.T, db *pg.DB, number string, typ model.AccountType) *model.Account {
	acc, err := repository.NewAccountRepository(db).Create(context.Background(), &model.Account{
		AccountNumber: number,
		Name:          "Account " + number,
		Type:          typ,
		IsActive:      true,
	})
	require.NoError(t, err)
	return acc
}

func CreateTestVehicle(t *testing.T, db *pg.DB, code string, ownerID int64) *model.Vehicle {
	v, err := repository.NewVehicleRepository(db).Create(context.Background(), &model.Vehicle{
		Code:           code,
		Route:          "Route " + code,
		OwnerAccountID: ownerID,
		IsActive:       true,
	})
	require.NoError(t, err)
	return v
}

// CreatePendingTransaction stores a 100 fare on vehicle 3025 already attached to checkoutID.
func CreatePendingTransaction(t *testing.T, db *pg.DB, fleet *Fleet, checkoutID string) *model.Transaction {
	ctx := context.Background()
	repo := repository.NewTransactionRepository(db)

	txn, err := repo.Create(ctx, &model.Transaction{
		TransactionID:     model.NewTransactionID(time.Now()),
		VehicleCode:       fleet.Vehicle.Code,
		PayerPhone:        "254712345678",
		FareAmount:        100,
		ServiceCharge:     2,
		TotalAmount:       102,
		OwnerShare:        2,
		PlatformShare:     0,
		PlatformPercent:   "10",
		OwnerAccountID:    fleet.Owner.ID,
		PlatformAccountID: fleet.Platform.ID,
		Status:            model.TransactionStatusPending,
	})
	require.NoError(t, err)

	require.NoError(t, repo.AttachGatewayIDs(ctx, txn.TransactionID, "mr-"+checkoutID, checkoutID))
	txn, err = repo.GetByTransactionID(ctx, txn.TransactionID)
	require.NoError(t, err)
	return txn
}

// FakeGateway records prompts and answers queries from a per-checkout result table.
type FakeGateway struct {
	mu        sync.Mutex
	seq       int
	Initiated []gateway.InitiateRequest
	Results   map[string]*gateway.QueryResponse
	Queries   int

	InitiateErr error
	QueryErr    error
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{Results: make(map[string]*gateway.QueryResponse)}
}

func (g *FakeGateway) Initiate(_ context.Context, req gateway.InitiateRequest) (*gateway.InitiateResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.InitiateErr != nil {
		return nil, g.InitiateErr
	}
	g.seq++
	g.Initiated = append(g.Initiated, req)
	return &gateway.InitiateResponse{
		MerchantRequestID:   fmt.Sprintf("mr-%d", g.seq),
		CheckoutRequestID:   fmt.Sprintf("ws_CO_%d", g.seq),
		ResponseCode:        "0",
		ResponseDescription: "Success. Request accepted for processing",
		CustomerMessage:     "Success. Request accepted for processing",
	}, nil
}

func (g *FakeGateway) Query(_ context.Context, checkoutID string) (*gateway.QueryResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.Queries++
	if g.QueryErr != nil {
		return nil, g.QueryErr
	}
	res, ok := g.Results[checkoutID]
	if !ok {
		return nil, &gateway.GatewayError{Op: gateway.OpQuery, StatusCode: 500, Code: "500.001.1001", Message: "The transaction is being processed"}
	}
	return res, nil
}

func (g *FakeGateway) SetResult(checkoutID string, code int, desc string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Results[checkoutID] = &gateway.QueryResponse{CheckoutRequestID: checkoutID, ResultCode: code, ResultDesc: desc}
}

func (g *FakeGateway) QueryCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Queries
}

func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	if !WaitForCondition(t, timeout, condition) {
		t.Fatal(msg)
	}
}

func ContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func Ptr[T any](v T) *T {
	return &v
}
