package serializer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tradeledger/src/model"
	"tradeledger/src/testutil"
)

func testConfig() Config {
	return Config{RetryAttempts: 3, RetryBase: time.Millisecond, RetryMax: 5 * time.Millisecond, QueueSize: 100}
}

func TestSubmitAppliesInTransaction(t *testing.T) {
	db := testutil.NewDB(t)
	s := New(db, testConfig())
	defer s.Close()

	err := s.Submit(context.Background(), PriorityLedger, "create bucket", func(tx *gorm.DB) error {
		return tx.Create(&model.CashBucket{BucketID: "trading", Balance: decimal.NewFromInt(100)}).Error
	})
	require.NoError(t, err)

	var bucket model.CashBucket
	require.NoError(t, db.First(&bucket, "bucket_id = ?", "trading").Error)
	testutil.RequireDecimal(t, decimal.NewFromInt(100), bucket.Balance)
}

func TestSubmitRollsBackOnError(t *testing.T) {
	db := testutil.NewDB(t)
	s := New(db, testConfig())
	defer s.Close()

	boom := errors.New("boom")
	err := s.Submit(context.Background(), PriorityLedger, "failing", func(tx *gorm.DB) error {
		if err := tx.Create(&model.CashBucket{BucketID: "trading", Balance: decimal.NewFromInt(5)}).Error; err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, db.Model(&model.CashBucket{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestPriorityOrdering(t *testing.T) {
	db := testutil.NewDB(t)
	s := New(db, testConfig())
	defer s.Close()

	// Hold the worker so the following jobs queue up behind it.
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = s.Submit(context.Background(), PriorityBackground, "blocker", func(tx *gorm.DB) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	var mu sync.Mutex
	var order []string
	record := func(name string) func(tx *gorm.DB) error {
		return func(tx *gorm.DB) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}

	var wg sync.WaitGroup
	submit := func(p Priority, name string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Submit(context.Background(), p, name, record(name)); err != nil {
				t.Errorf("submit %s: %v", name, err)
			}
		}()
		// Wait until the job is queued so FIFO order inside a priority is stable.
		require.Eventually(t, func() bool {
			s.mu.Lock()
			defer s.mu.Unlock()
			for _, j := range s.queue {
				if j.name == name {
					return true
				}
			}
			return false
		}, time.Second, time.Millisecond)
	}

	submit(PriorityBackground, "bg")
	submit(PriorityOrders, "orders-1")
	submit(PriorityOrders, "orders-2")
	submit(PriorityCritical, "critical")
	submit(PriorityLedger, "ledger")

	close(release)
	wg.Wait()

	require.Equal(t, []string{"critical", "ledger", "orders-1", "orders-2", "bg"}, order)
}

func TestTransientErrorsAreRetried(t *testing.T) {
	db := testutil.NewDB(t)
	s := New(db, testConfig())
	defer s.Close()

	calls := 0
	err := s.Submit(context.Background(), PriorityOrders, "flaky", func(tx *gorm.DB) error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})

	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestBusinessErrorsAreNotRetried(t *testing.T) {
	db := testutil.NewDB(t)
	s := New(db, testConfig())
	defer s.Close()

	calls := 0
	err := s.Submit(context.Background(), PriorityOrders, "rule", func(tx *gorm.DB) error {
		calls++
		return errors.New("insufficient balance")
	})

	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestCancelledBeforeStartIsDropped(t *testing.T) {
	db := testutil.NewDB(t)
	s := New(db, testConfig())
	defer s.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = s.Submit(context.Background(), PriorityCritical, "blocker", func(tx *gorm.DB) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	ran := false
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Submit(ctx, PriorityBackground, "dropped", func(tx *gorm.DB) error {
			ran = true
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.queue.Len() == 1
	}, time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	s.Close()
	require.False(t, ran)
}

func TestSubmitAfterClose(t *testing.T) {
	s := New(testutil.NewDB(t), testConfig())
	s.Close()

	err := s.Submit(context.Background(), PriorityCritical, "late", func(tx *gorm.DB) error { return nil })
	require.ErrorIs(t, err, ErrClosed)
}

func TestIsTransient(t *testing.T) {
	require.True(t, IsTransient(errors.New("database is locked (5) (SQLITE_BUSY)")))
	require.False(t, IsTransient(errors.New("constraint failed")))
	require.False(t, IsTransient(nil))
}
