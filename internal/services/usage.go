package services

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/model-registry/model-registry/internal/audit"
	"github.com/model-registry/model-registry/internal/db/models"
	"github.com/model-registry/model-registry/internal/db/repositories"
	"github.com/model-registry/model-registry/internal/safego"
	"github.com/model-registry/model-registry/internal/telemetry"
)

const secondsPerDay = 86400

// maxTimestamp is 9999-12-31T23:59:59Z, the last instant a report day can name
const maxTimestamp = int64(253402300799)

// Event is one access to be accounted. Empty strings are stored as NULL.
type Event struct {
	Type       string
	Status     string
	UserID     *int64
	APIKeyID   *int64
	RepoID     string
	RFilename  string
	ObjectKey  string
	Size       *int64
	RemoteAddr string
	UserAgent  string
}

// Recorder writes access events in the background. A failed write is logged and
// counted in usage_record_failures_total; it never reaches the request that
// produced the event.
type Recorder struct {
	logs    *repositories.AccessLogRepository
	shipper audit.Shipper
	timeout time.Duration
	now     func() time.Time
	wg      sync.WaitGroup
}

// NewRecorder creates a Recorder. shipper may be nil.
func NewRecorder(logs *repositories.AccessLogRepository, shipper audit.Shipper, timeout time.Duration) *Recorder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Recorder{logs: logs, shipper: shipper, timeout: timeout, now: time.Now}
}

// Record stamps ev with the current time and queues its write. It does not block.
func (r *Recorder) Record(ev Event) {
	entry := &models.AccessLogEntry{
		TS:         r.now().Unix(),
		UserID:     ev.UserID,
		APIKeyID:   ev.APIKeyID,
		EventType:  ev.Type,
		RepoID:     nullable(ev.RepoID),
		RFilename:  nullable(ev.RFilename),
		ObjectKey:  nullable(ev.ObjectKey),
		Size:       ev.Size,
		Status:     ev.Status,
		RemoteAddr: nullable(ev.RemoteAddr),
		UserAgent:  nullable(ev.UserAgent),
	}

	r.wg.Add(1)
	safego.Go(func() {
		defer r.wg.Done()
		r.write(entry)
	})
}

func (r *Recorder) write(entry *models.AccessLogEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.logs.Insert(ctx, entry); err != nil {
		telemetry.UsageRecordFailuresTotal.Inc()
		slog.Error("failed to record access event",
			"event_type", entry.EventType, "status", entry.Status, "user_id", entry.UserID, "error", err)
	} else {
		telemetry.UsageEventsRecordedTotal.WithLabelValues(entry.EventType).Inc()
	}

	if r.shipper == nil {
		return
	}
	ae := &audit.LogEntry{
		Timestamp: time.Unix(entry.TS, 0).UTC(),
		Action:    entry.EventType,
		Status:    entry.Status,
		UserID:    entry.UserID,
		APIKeyID:  entry.APIKeyID,
		RepoID:    deref(entry.RepoID),
		RFilename: deref(entry.RFilename),
		ObjectKey: deref(entry.ObjectKey),
		Size:      entry.Size,
		IPAddress: deref(entry.RemoteAddr),
		UserAgent: deref(entry.UserAgent),
	}
	if err := r.shipper.Ship(ctx, ae); err != nil {
		slog.Warn("failed to ship access event", "event_type", entry.EventType, "error", err)
	}
}

// Wait blocks until all queued writes have finished
func (r *Recorder) Wait() {
	r.wg.Wait()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Window is an inclusive [Since, Until] range of Unix seconds
type Window struct {
	Since int64 `json:"since"`
	Until int64 `json:"until"`
}

// UsageReport aggregates access events of one population over a window
type UsageReport struct {
	Window          Window                  `json:"window"`
	Totals          models.UsageTotals      `json:"totals"`
	LastSeenTS      int64                   `json:"last_seen_ts"`
	DistinctModels  int64                   `json:"distinct_models"`
	TopModels       []models.ModelDownloads `json:"top_models"`
	TimeseriesDaily []models.DailyUsage     `json:"timeseries_daily"`
}

// UsageFilter narrows the admin report to one user
type UsageFilter struct {
	UserID *int64  `json:"user_id"`
	Email  *string `json:"email"`
}

// AdminUsageReport adds the user ranking and the echoed filter
type AdminUsageReport struct {
	UsageReport
	TopUsers []models.UserActivity `json:"top_users"`
	Filter   *UsageFilter          `json:"filter,omitempty"`
}

// Reporter computes usage reports from access_logs
type Reporter struct {
	logs              *repositories.AccessLogRepository
	users             *repositories.UserRepository
	defaultWindowDays int
	maxWindowDays     int
	now               func() time.Time
}

// NewReporter creates a Reporter
func NewReporter(logs *repositories.AccessLogRepository, users *repositories.UserRepository, defaultWindowDays, maxWindowDays int) *Reporter {
	return &Reporter{
		logs:              logs,
		users:             users,
		defaultWindowDays: defaultWindowDays,
		maxWindowDays:     maxWindowDays,
		now:               time.Now,
	}
}

// ResolveWindow applies defaults (until = now, since = until - default window)
// and rejects inverted, oversized or out-of-range windows.
func (r *Reporter) ResolveWindow(since, until *int64) (Window, error) {
	if err := checkTimestamp("since", since); err != nil {
		return Window{}, err
	}
	if err := checkTimestamp("until", until); err != nil {
		return Window{}, err
	}

	w := Window{Until: r.now().Unix()}
	if until != nil {
		w.Until = *until
	}
	w.Since = max(w.Until-int64(r.defaultWindowDays)*secondsPerDay, 0)
	if since != nil {
		w.Since = *since
	}

	if w.Since > w.Until {
		return Window{}, InvalidArgument("since must not be after until")
	}
	if w.Since < w.Until-int64(r.maxWindowDays)*secondsPerDay {
		return Window{}, InvalidArgumentf("window must not exceed %d days", r.maxWindowDays)
	}
	return w, nil
}

func checkTimestamp(name string, v *int64) error {
	if v != nil && (*v < 0 || *v > maxTimestamp) {
		return InvalidArgumentf("%s must be between 0 and %d", name, maxTimestamp)
	}
	return nil
}

// UsageForUser reports one user's activity
func (r *Reporter) UsageForUser(ctx context.Context, userID int64, since, until *int64, topModelsLimit int) (*UsageReport, error) {
	if topModelsLimit < 1 || topModelsLimit > 200 {
		return nil, InvalidArgument("top_models_limit must be between 1 and 200")
	}
	w, err := r.ResolveWindow(since, until)
	if err != nil {
		return nil, err
	}
	return r.report(ctx, repositories.UsageQuery{Since: w.Since, Until: w.Until, UserID: &userID}, w, topModelsLimit)
}

// UsageAdmin reports activity across users. filterUserID takes precedence over
// filterEmail; an email that matches no user selects an empty population.
func (r *Reporter) UsageAdmin(ctx context.Context, since, until *int64, topUsersLimit, topModelsLimit int, filterUserID *int64, filterEmail *string) (*AdminUsageReport, error) {
	if topUsersLimit < 1 || topUsersLimit > 500 {
		return nil, InvalidArgument("top_users_limit must be between 1 and 500")
	}
	if topModelsLimit < 1 || topModelsLimit > 1000 {
		return nil, InvalidArgument("top_models_limit must be between 1 and 1000")
	}
	w, err := r.ResolveWindow(since, until)
	if err != nil {
		return nil, err
	}

	var filter *UsageFilter
	if filterUserID != nil || (filterEmail != nil && strings.TrimSpace(*filterEmail) != "") {
		filter = &UsageFilter{UserID: filterUserID, Email: filterEmail}
	}

	q := repositories.UsageQuery{Since: w.Since, Until: w.Until, UserID: filterUserID}
	if filterUserID == nil && filter != nil {
		user, err := r.users.GetByEmail(ctx, strings.TrimSpace(*filterEmail))
		if err != nil {
			return nil, err
		}
		if user == nil {
			return &AdminUsageReport{
				UsageReport: emptyReport(w),
				TopUsers:    []models.UserActivity{},
				Filter:      filter,
			}, nil
		}
		q.UserID = &user.ID
	}

	base, err := r.report(ctx, q, w, topModelsLimit)
	if err != nil {
		return nil, err
	}
	topUsers, err := r.logs.TopUsers(ctx, q, topUsersLimit)
	if err != nil {
		return nil, err
	}

	return &AdminUsageReport{UsageReport: *base, TopUsers: topUsers, Filter: filter}, nil
}

func (r *Reporter) report(ctx context.Context, q repositories.UsageQuery, w Window, topModelsLimit int) (*UsageReport, error) {
	totals, err := r.logs.Totals(ctx, q)
	if err != nil {
		return nil, err
	}
	distinct, err := r.logs.DistinctModels(ctx, q)
	if err != nil {
		return nil, err
	}
	top, err := r.logs.TopModels(ctx, q, topModelsLimit)
	if err != nil {
		return nil, err
	}
	daily, err := r.logs.Daily(ctx, q)
	if err != nil {
		return nil, err
	}

	return &UsageReport{
		Window:          w,
		Totals:          *totals,
		LastSeenTS:      totals.LastSeenTS,
		DistinctModels:  distinct,
		TopModels:       top,
		TimeseriesDaily: FillDaily(w, daily),
	}, nil
}

func emptyReport(w Window) UsageReport {
	return UsageReport{
		Window:          w,
		TopModels:       []models.ModelDownloads{},
		TimeseriesDaily: FillDaily(w, nil),
	}
}

// FillDaily returns one entry per UTC calendar day touched by w, in order,
// taking counts from rows and zero elsewhere.
func FillDaily(w Window, rows []models.DailyUsage) []models.DailyUsage {
	byDay := make(map[string]models.DailyUsage, len(rows))
	for _, row := range rows {
		byDay[row.Day] = row
	}

	start := time.Unix(w.Since, 0).UTC().Truncate(24 * time.Hour)
	end := time.Unix(w.Until, 0).UTC().Truncate(24 * time.Hour)
	if end.Before(start) {
		return []models.DailyUsage{}
	}

	out := make([]models.DailyUsage, 0, int(end.Sub(start).Hours()/24)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		day := d.Format("2006-01-02")
		if row, ok := byDay[day]; ok {
			out = append(out, row)
			continue
		}
		out = append(out, models.DailyUsage{Day: day})
	}
	return out
}
