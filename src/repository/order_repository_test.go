package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"tradeledger/src/model"
	"tradeledger/src/testutil"
)

func TestOrderRepositorySearch(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := NewOrderRepository(mockDB)

	createdAt := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	orders := []model.Order{
		{ID: 1, Symbol: "BTCUSDT", Side: model.SideBuy, Status: model.OrderStatusDone, CreatedAt: createdAt, UpdatedAt: createdAt},
		{ID: 2, Symbol: "ETHUSDT", Side: model.SideSell, Status: model.OrderStatusApproved, CreatedAt: createdAt.Add(24 * time.Hour), UpdatedAt: createdAt.Add(24 * time.Hour)},
	}

	orderRows := func(returned ...model.Order) *sqlmock.Rows {
		rows := sqlmock.NewRows([]string{"id", "symbol", "side", "status", "created_at", "updated_at"})
		for _, order := range returned {
			rows.AddRow(order.ID, order.Symbol, order.Side, order.Status, order.CreatedAt, order.UpdatedAt)
		}
		return rows
	}

	t.Run("no filters", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" ORDER BY created_at DESC, id DESC`)).
			WillReturnRows(orderRows(orders[1], orders[0]))

		results, err := repo.Search(context.Background(), OrderSearchOptions{})
		require.NoError(t, err)
		require.Len(t, results, 2)
		require.Equal(t, "ETHUSDT", results[0].Symbol)
	})

	t.Run("filters by symbol and status", func(t *testing.T) {
		symbol := "ETHUSDT"
		status := model.OrderStatusApproved
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" WHERE symbol = $1 AND status = $2 ORDER BY created_at DESC, id DESC`)).
			WithArgs(symbol, status).
			WillReturnRows(orderRows(orders[1]))

		results, err := repo.Search(context.Background(), OrderSearchOptions{Symbol: &symbol, Status: &status})
		require.NoError(t, err)
		require.Len(t, results, 1)
		require.Equal(t, model.SideSell, results[0].Side)
	})

	t.Run("applies created window and pagination", func(t *testing.T) {
		after := createdAt.Add(-time.Hour)
		before := createdAt.Add(36 * time.Hour)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" WHERE created_at >= $1 AND created_at <= $2 ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4`)).
			WithArgs(after, before, 1, 1).
			WillReturnRows(orderRows(orders[0]))

		results, err := repo.Search(context.Background(), OrderSearchOptions{
			CreatedAfter:  &after,
			CreatedBefore: &before,
			Limit:         1,
			Offset:        1,
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		require.Equal(t, "BTCUSDT", results[0].Symbol)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepositoryExistsLive(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := NewOrderRepository(mockDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "orders" WHERE symbol = $1 AND side = $2 AND status IN ($3,$4)`)).
		WithArgs("BTCUSDT", model.SideBuy, model.OrderStatusPending, model.OrderStatusApproved).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	live, err := repo.ExistsLive(context.Background(), "BTCUSDT", model.SideBuy)
	require.NoError(t, err)
	require.True(t, live)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionWithAutoLogIsCompareAndSet(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewOrderRepository(db)
	ctx := context.Background()

	order := &model.Order{
		Symbol:         "BTCUSDT",
		Side:           model.SideBuy,
		Amount:         decimal.NewFromInt(100),
		AmountType:     model.AmountNotional,
		ReferencePrice: decimal.NewFromInt(10000),
		Status:         model.OrderStatusPending,
	}
	require.NoError(t, repo.CreateWithAutoLog(ctx, order, "admitted"))

	now := time.Now().UTC()
	ok, err := repo.TransitionWithAutoLog(ctx, order.ID, model.OrderStatusPending, model.OrderStatusApproved, "", now)
	require.NoError(t, err)
	require.True(t, ok)

	// Stale expectation: the order is no longer PENDING.
	ok, err = repo.TransitionWithAutoLog(ctx, order.ID, model.OrderStatusPending, model.OrderStatusVetoed, "late veto", now)
	require.NoError(t, err)
	require.False(t, ok)

	stored, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusApproved, stored.Status)
	require.NotNil(t, stored.ApprovedAt)
	require.Len(t, stored.Logs, 2)
	require.Equal(t, "", stored.Logs[0].FromStatus)
	require.Equal(t, model.OrderStatusPending, stored.Logs[1].FromStatus)
	require.Equal(t, model.OrderStatusApproved, stored.Logs[1].ToStatus)
}

func TestFindByIDNotFound(t *testing.T) {
	repo := NewOrderRepository(testutil.NewDB(t))

	order, err := repo.FindByID(context.Background(), 42)
	require.NoError(t, err)
	require.Nil(t, order)
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	dialector := postgres.New(postgres.Config{
		DSN:                  "sqlmock_db_0",
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		sqlDB.Close()
		t.Fatalf("failed to open gorm DB with sqlmock: %v", err)
	}

	return gdb, mock
}
