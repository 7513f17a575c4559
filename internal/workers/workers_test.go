package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyhub/internal/engine/licensing"
	"keyhub/internal/platform/audit"
	"keyhub/internal/platform/metrics"
	"keyhub/internal/platform/repositories"
)

func TestStart_RunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var runs, failing int32
	wg := Start(ctx,
		Job{Name: "count", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
			atomic.AddInt32(&runs, 1)
			return nil
		}},
		Job{Name: "fail", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
			atomic.AddInt32(&failing, 1)
			return errors.New("boom")
		}},
		Job{Name: "disabled", Run: func(context.Context) error {
			t.Error("disabled job must not run")
			return nil
		}},
	)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&runs) >= 3 && atomic.LoadInt32(&failing) >= 3
	}, time.Second, time.Millisecond)

	cancel()
	wg.Wait()
}

func TestRefreshKeyGauges(t *testing.T) {
	ctx := context.Background()
	keystore := licensing.NewKeystore(repositories.NewMemoryRepository())
	_, err := keystore.Generate(ctx, licensing.GenerateParams{Type: licensing.KeyTypePermanent})
	require.NoError(t, err)
	_, err = keystore.BlacklistUser(ctx, "5", "", "admin")
	require.NoError(t, err)

	m := metrics.New()
	require.NoError(t, RefreshKeyGauges(keystore, m, time.Minute).Run(ctx))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Keys.WithLabelValues("total")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Keys.WithLabelValues("active")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Keys.WithLabelValues("blacklisted_users")))
}

func TestPruneAuditLogs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM audit_logs").WithArgs(sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 2))

	logger := audit.NewLogger(db)
	require.NoError(t, PruneAuditLogs(logger, 24*time.Hour, time.Hour).Run(context.Background()))
	require.NoError(t, PruneAuditLogs(logger, 0, time.Hour).Run(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
