package services

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/model-registry/model-registry/internal/audit"
	"github.com/model-registry/model-registry/internal/db/models"
	"github.com/model-registry/model-registry/internal/db/repositories"
	"github.com/model-registry/model-registry/internal/telemetry"
)

// 2023-11-14T22:13:20Z
const usageNow = int64(1_700_000_000)

func newReporter(t *testing.T) (*Reporter, sqlmock.Sqlmock) {
	t.Helper()
	dbx, mock := newMockDBx(t)
	r := NewReporter(repositories.NewAccessLogRepository(dbx), repositories.NewUserRepository(dbx), 30, 366)
	r.now = fixedClock(usageNow)
	return r, mock
}

// ---------------------------------------------------------------------------
// Window
// ---------------------------------------------------------------------------

func TestResolveWindow_Defaults(t *testing.T) {
	r, _ := newReporter(t)

	w, err := r.ResolveWindow(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, usageNow, w.Until)
	assert.Equal(t, usageNow-30*86400, w.Since)

	w, err = r.ResolveWindow(nil, int64Ptr(1000*86400))
	require.NoError(t, err)
	assert.Equal(t, int64(970*86400), w.Since)
}

func TestResolveWindow_Rejects(t *testing.T) {
	r, _ := newReporter(t)

	_, err := r.ResolveWindow(int64Ptr(200), int64Ptr(100))
	assert.True(t, IsKind(err, KindInvalidArgument), "inverted: %v", err)

	_, err = r.ResolveWindow(int64Ptr(0), int64Ptr(367*86400))
	assert.True(t, IsKind(err, KindInvalidArgument), "too wide: %v", err)

	_, err = r.ResolveWindow(int64Ptr(0), int64Ptr(366*86400))
	assert.NoError(t, err)
}

func TestResolveWindow_ExtremeValues(t *testing.T) {
	r, _ := newReporter(t)

	tests := []struct {
		name         string
		since, until *int64
	}{
		{"span overflows int64", int64Ptr(math.MinInt64 / 2), int64Ptr(math.MaxInt64/2 + 10)},
		{"negative since", int64Ptr(-1), int64Ptr(100)},
		{"negative until", nil, int64Ptr(-86400)},
		{"until past year 9999", int64Ptr(0), int64Ptr(math.MaxInt64)},
		{"since min int", int64Ptr(math.MinInt64), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.ResolveWindow(tt.since, tt.until)
			assert.True(t, IsKind(err, KindInvalidArgument), "%v", err)
		})
	}

	// the default since never goes below the epoch
	w, err := r.ResolveWindow(nil, int64Ptr(86400))
	require.NoError(t, err)
	assert.Equal(t, int64(0), w.Since)
}

// ---------------------------------------------------------------------------
// FillDaily
// ---------------------------------------------------------------------------

func TestFillDaily_GapFillsEveryDay(t *testing.T) {
	// 2024-01-01T12:00:00Z .. 2024-01-03T01:00:00Z touches three UTC days.
	w := Window{Since: 1704110400, Until: 1704243600}
	rows := []models.DailyUsage{{Day: "2024-01-02", Events: 4, Downloads: 1}}

	got := FillDaily(w, rows)
	assert.Equal(t, []models.DailyUsage{
		{Day: "2024-01-01"},
		{Day: "2024-01-02", Events: 4, Downloads: 1},
		{Day: "2024-01-03"},
	}, got)
}

func TestFillDaily_CalendarDays(t *testing.T) {
	// midnight to midnight of 2024-01-04 covers four calendar days inclusive
	// of the closing instant; ending one second earlier covers three.
	aligned := Window{Since: 1704067200, Until: 1704067200 + 3*86400 - 1}
	assert.Len(t, FillDaily(aligned, nil), 3)

	// a 3*86400 span starting at noon touches four UTC days
	unaligned := Window{Since: 1704110400, Until: 1704110400 + 3*86400}
	got := FillDaily(unaligned, nil)
	require.Len(t, got, 4)
	assert.Equal(t, "2024-01-01", got[0].Day)
	assert.Equal(t, "2024-01-04", got[3].Day)
}

func TestFillDaily_InvertedWindow(t *testing.T) {
	assert.Empty(t, FillDaily(Window{Since: 200, Until: 100}, nil))
}

func TestFillDaily_SingleInstant(t *testing.T) {
	got := FillDaily(Window{Since: 1704110400, Until: 1704110400}, nil)
	require.Len(t, got, 1)
	assert.Equal(t, "2024-01-01", got[0].Day)
}

// ---------------------------------------------------------------------------
// Reports
// ---------------------------------------------------------------------------

func expectReportQueries(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) AS events").
		WillReturnRows(sqlmock.NewRows([]string{"events", "manifests", "files_list", "downloads", "last_seen_ts"}).
			AddRow(int64(5), int64(1), int64(1), int64(3), usageNow-10))
	mock.ExpectQuery("COUNT\\(DISTINCT l.repo_id\\)").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))
	mock.ExpectQuery("GROUP BY l.repo_id").
		WillReturnRows(sqlmock.NewRows([]string{"repo_id", "downloads"}).
			AddRow("org/a", int64(2)).AddRow("org/b", int64(1)))
	mock.ExpectQuery("GROUP BY day").
		WillReturnRows(sqlmock.NewRows([]string{"day", "events", "downloads"}).
			AddRow("2023-11-14", int64(5), int64(3)))
}

func TestUsageForUser(t *testing.T) {
	r, mock := newReporter(t)
	expectReportQueries(mock)

	since := usageNow - 2*86400
	rep, err := r.UsageForUser(context.Background(), 7, &since, nil, 20)
	require.NoError(t, err)

	assert.Equal(t, Window{Since: since, Until: usageNow}, rep.Window)
	assert.Equal(t, int64(5), rep.Totals.Events)
	assert.Equal(t, int64(3), rep.Totals.Downloads)
	assert.Equal(t, usageNow-10, rep.LastSeenTS)
	assert.Equal(t, int64(2), rep.DistinctModels)
	assert.Len(t, rep.TopModels, 2)
	require.Len(t, rep.TimeseriesDaily, 3)
	assert.Equal(t, int64(5), rep.TimeseriesDaily[2].Events)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageForUser_LimitBounds(t *testing.T) {
	r, _ := newReporter(t)
	for _, limit := range []int{0, 201} {
		_, err := r.UsageForUser(context.Background(), 1, nil, nil, limit)
		assert.True(t, IsKind(err, KindInvalidArgument), "limit=%d", limit)
	}
}

func TestUsageAdmin_LimitBounds(t *testing.T) {
	r, _ := newReporter(t)
	ctx := context.Background()

	_, err := r.UsageAdmin(ctx, nil, nil, 501, 100, nil, nil)
	assert.True(t, IsKind(err, KindInvalidArgument))
	_, err = r.UsageAdmin(ctx, nil, nil, 50, 1001, nil, nil)
	assert.True(t, IsKind(err, KindInvalidArgument))
}

func TestUsageAdmin_UnknownEmailIsEmpty(t *testing.T) {
	r, mock := newReporter(t)
	mock.ExpectQuery("FROM users WHERE email").
		WithArgs("ghost@example.com").
		WillReturnRows(sqlmock.NewRows(userCols))

	since := usageNow - 86400
	rep, err := r.UsageAdmin(context.Background(), &since, nil, 50, 100, nil, strPtr("ghost@example.com"))
	require.NoError(t, err)

	assert.Zero(t, rep.Totals.Events)
	assert.Zero(t, rep.LastSeenTS)
	assert.Empty(t, rep.TopUsers)
	assert.NotNil(t, rep.TopUsers)
	assert.Empty(t, rep.TopModels)
	assert.Len(t, rep.TimeseriesDaily, 2)
	require.NotNil(t, rep.Filter)
	assert.Equal(t, "ghost@example.com", *rep.Filter.Email)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageAdmin_FilterByUserID(t *testing.T) {
	r, mock := newReporter(t)
	expectReportQueries(mock)
	mock.ExpectQuery("JOIN users u").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "email", "name", "events", "downloads", "last_seen_ts"}).
			AddRow(int64(7), "dev@example.com", "Dev", int64(5), int64(3), usageNow-10))

	rep, err := r.UsageAdmin(context.Background(), nil, nil, 50, 100, int64Ptr(7), nil)
	require.NoError(t, err)
	require.Len(t, rep.TopUsers, 1)
	assert.Equal(t, int64(7), rep.TopUsers[0].UserID)
	require.NotNil(t, rep.Filter)
	assert.Equal(t, int64(7), *rep.Filter.UserID)
	require.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Recorder
// ---------------------------------------------------------------------------

type captureShipper struct {
	mu      sync.Mutex
	entries []*audit.LogEntry
}

func (c *captureShipper) Ship(_ context.Context, e *audit.LogEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	return nil
}

func (c *captureShipper) Close() error { return nil }

func TestRecorder_WritesAndShips(t *testing.T) {
	dbx, mock := newMockDBx(t)
	ship := &captureShipper{}
	rec := NewRecorder(repositories.NewAccessLogRepository(dbx), ship, 0)
	rec.now = fixedClock(usageNow)

	before := testutil.ToFloat64(telemetry.UsageEventsRecordedTotal.WithLabelValues(models.EventDownload))
	mock.ExpectExec("INSERT INTO access_logs").WillReturnResult(sqlmock.NewResult(1, 1))

	rec.Record(Event{
		Type:      models.EventDownload,
		Status:    models.AccessOK,
		UserID:    int64Ptr(7),
		RepoID:    "org/m",
		RFilename: "w.bin",
		ObjectKey: "models/org/m/w.bin",
	})
	rec.Wait()

	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, before+1, testutil.ToFloat64(telemetry.UsageEventsRecordedTotal.WithLabelValues(models.EventDownload)))
	require.Len(t, ship.entries, 1)
	assert.Equal(t, "org/m", ship.entries[0].RepoID)
	assert.Equal(t, usageNow, ship.entries[0].Timestamp.Unix())
}

func TestRecorder_FailureIsCounted(t *testing.T) {
	dbx, mock := newMockDBx(t)
	rec := NewRecorder(repositories.NewAccessLogRepository(dbx), nil, 0)

	before := testutil.ToFloat64(telemetry.UsageRecordFailuresTotal)
	mock.ExpectExec("INSERT INTO access_logs").WillReturnError(errors.New("db down"))

	rec.Record(Event{Type: models.EventManifest, Status: models.AccessOK})
	rec.Wait()

	assert.Equal(t, before+1, testutil.ToFloat64(telemetry.UsageRecordFailuresTotal))
}
