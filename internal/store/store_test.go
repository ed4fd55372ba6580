package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/wizprobe/internal/findings"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func newMockStore(t *testing.T, logger *zap.Logger) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing().WillReturnError(nil)
	s, err := New(context.Background(), mockPool, logger)
	require.NoError(t, err)
	return s, mockPool
}

var (
	started  = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	finished = started.Add(12 * time.Second)
)

func sampleRecord() findings.Record {
	return findings.Record{
		ID:         "run-1",
		TargetURL:  "http://localhost:5174/construction-forecast/",
		StartedAt:  started,
		FinishedAt: finished,
		Defects: []findings.Defect{
			{Kind: findings.KindContinuityLoss, Step: 3, Field: "taks", Expected: "0.30", Message: "Step 1 TAKS (0.30) not visible in Step 3"},
			{Kind: findings.KindFormattingArtifact, Step: 4, Field: "setback", Expected: "1.70", Observed: "1.7000000000000002", Message: "Çıkma shows as 1.7000000000000002 instead of 1.70"},
		},
		Warnings: []findings.Warning{{Step: 2, Message: "Step 2 may be missing area information (Kullanılabilir, Kalan)"}},
	}
}

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestEnsureSchema(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	for _, stmt := range schema {
		mockPool.ExpectExec(flexibleSQLMatcher(stmt)).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}
	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())

	t.Run("stops at the first failure", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectExec(flexibleSQLMatcher(schema[0])).WillReturnError(errors.New("permission denied"))
		err := s.EnsureSchema(context.Background())
		assert.ErrorContains(t, err, "failed to apply schema: permission denied")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestSaveRun(t *testing.T) {
	ctx := context.Background()

	t.Run("should persist a run and its defects without rollback errors", func(t *testing.T) {
		observedZapCore, observedLogs := observer.New(zapcore.ErrorLevel)
		s, mockPool := newMockStore(t, zap.New(observedZapCore))
		rec := sampleRecord()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertRun)).
			WithArgs(rec.ID, rec.TargetURL, started, pgxmock.AnyArg(), false, 2, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlDeleteDefects)).
			WithArgs(rec.ID).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectCopyFrom(pgx.Identifier{"wizprobe_defects"}, DefectColumns).
			WillReturnResult(2)
		// Expect Commit AND the subsequent Rollback (which returns ErrTxClosed)
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.SaveRun(ctx, rec))
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Empty(t, observedLogs.All(), "Expected no errors logged on successful commit")
	})

	t.Run("should skip the copy for a clean run", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		rec := sampleRecord()
		rec.Defects = nil
		rec.Warnings = nil

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertRun)).
			WithArgs(rec.ID, rec.TargetURL, started, pgxmock.AnyArg(), false, 0, []byte("[]")).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlDeleteDefects)).
			WithArgs(rec.ID).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.SaveRun(ctx, rec))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should return error if begin fails", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		beginErr := errors.New("too many connections")
		mockPool.ExpectBegin().WillReturnError(beginErr)

		err := s.SaveRun(ctx, sampleRecord())
		assert.ErrorIs(t, err, beginErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should rollback if copy fails", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		copyErr := errors.New("copy failed")

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertRun)).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlDeleteDefects)).WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectCopyFrom(pgx.Identifier{"wizprobe_defects"}, DefectColumns).
			WillReturnError(copyErr)
		mockPool.ExpectRollback()

		err := s.SaveRun(ctx, sampleRecord())
		assert.ErrorIs(t, err, copyErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should report a short copy", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertRun)).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlDeleteDefects)).WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectCopyFrom(pgx.Identifier{"wizprobe_defects"}, DefectColumns).WillReturnResult(1)
		mockPool.ExpectRollback()

		err := s.SaveRun(ctx, sampleRecord())
		assert.EqualError(t, err, "mismatch in copied defects count: expected 2, got 1")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestGetRun(t *testing.T) {
	ctx := context.Background()

	t.Run("should load a run with ordered defects", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		want := sampleRecord()
		fin := finished

		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectRun)).
			WithArgs(want.ID).
			WillReturnRows(pgxmock.NewRows([]string{"target_url", "started_at", "finished_at", "terminal", "warnings"}).
				AddRow(want.TargetURL, started, &fin, false, []byte(`[{"step":2,"message":"Step 2 may be missing area information (Kullanılabilir, Kalan)"}]`)))

		defectRows := pgxmock.NewRows([]string{"kind", "step", "field", "expected", "observed", "message"})
		for _, d := range want.Defects {
			defectRows.AddRow(string(d.Kind), d.Step, d.Field, d.Expected, d.Observed, d.Message)
		}
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectDefects)).
			WithArgs(want.ID).
			WillReturnRows(defectRows)

		got, err := s.GetRun(ctx, want.ID)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should return ErrRunNotFound for unknown IDs", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectRun)).
			WithArgs("missing").
			WillReturnError(pgx.ErrNoRows)

		_, err := s.GetRun(ctx, "missing")
		assert.ErrorIs(t, err, ErrRunNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should wrap defect query errors", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		fin := finished
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectRun)).
			WithArgs("run-1").
			WillReturnRows(pgxmock.NewRows([]string{"target_url", "started_at", "finished_at", "terminal", "warnings"}).
				AddRow("http://x", started, &fin, true, []byte(`[]`)))
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectDefects)).
			WithArgs("run-1").
			WillReturnError(errors.New("connection reset"))

		_, err := s.GetRun(ctx, "run-1")
		assert.ErrorContains(t, err, "failed to query defects: connection reset")
	})
}

func TestListRuns(t *testing.T) {
	ctx := context.Background()
	s, mockPool := newMockStore(t, zap.NewNop())
	fin := finished

	mockPool.ExpectQuery(flexibleSQLMatcher(sqlListRuns)).
		WithArgs(20).
		WillReturnRows(pgxmock.NewRows([]string{"id", "target_url", "started_at", "finished_at", "terminal", "defect_count"}).
			AddRow("run-2", "http://x", started.Add(time.Hour), &fin, true, 1).
			AddRow("run-1", "http://x", started, &fin, false, 0))

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, RunSummary{ID: "run-2", TargetURL: "http://x", StartedAt: started.Add(time.Hour), FinishedAt: finished, Terminal: true, Defects: 1}, runs[0])
	assert.Equal(t, "run-1", runs[1].ID)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
