// Package reports builds the read-only dashboard aggregates and their CSV
// export.
//
// Purpose:
//
//	The dashboard shows a headline snapshot (persons, active and expired
//	policies, claims paid this year) plus grouped aggregates. The snapshot is
//	cached in Redis for a short TTL when a cache is configured. Exports are
//	streamed to the caller or uploaded to object storage and handed out as a
//	presigned URL.
//
// Dependencies:
//   - internal/storage/postgres: aggregate queries
//   - github.com/redis/go-redis/v9: snapshot cache
//   - github.com/aws/aws-sdk-go-v2: S3-compatible export delivery
//   - github.com/oklog/ulid/v2: time-ordered export object keys
package reports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/otherjamesbrown/agency-service/internal/domain"
	"github.com/otherjamesbrown/agency-service/internal/metrics"
	"github.com/otherjamesbrown/agency-service/internal/storage/postgres"
)

// DefaultTopCities is the number of cities listed when no limit is configured.
const DefaultTopCities = 5

// Store is the aggregate query surface.
type Store interface {
	Snapshot(ctx context.Context, today domain.Date) (postgres.Snapshot, error)
	ActiveByProduct(ctx context.Context, today domain.Date) ([]postgres.LabelValue, error)
	MonthlyNewPolicies(ctx context.Context) ([]postgres.SeriesPoint, error)
	ClaimsByState(ctx context.Context) ([]postgres.ClaimAggregate, error)
	TopCities(ctx context.Context, limit int) ([]postgres.CityCount, error)
	ClaimsByYear(ctx context.Context) ([]postgres.LabelValue, error)
}

// SnapshotCache stores snapshots per day.
type SnapshotCache interface {
	Get(ctx context.Context, day domain.Date) (postgres.Snapshot, bool, error)
	Set(ctx context.Context, day domain.Date, snap postgres.Snapshot) error
}

// Delivery uploads an export and returns a download URL.
type Delivery interface {
	UploadCSV(ctx context.Context, key string, data []byte) (Upload, error)
}

// Dashboard bundles every aggregate for one day.
type Dashboard struct {
	Day             domain.Date               `json:"day"`
	Snapshot        postgres.Snapshot         `json:"snapshot"`
	ActiveByProduct []postgres.LabelValue     `json:"activeByProduct"`
	MonthlyNew      []postgres.SeriesPoint    `json:"monthlyNewPolicies"`
	ClaimsByState   []postgres.ClaimAggregate `json:"claimsByState"`
	TopCities       []postgres.CityCount      `json:"topCities"`
	ClaimsByYear    []postgres.LabelValue     `json:"claimsByYear"`
}

// Options configures a Service.
type Options struct {
	Store     Store
	Cache     SnapshotCache
	Delivery  Delivery
	TopCities int
	Logger    *zap.Logger
}

// Service computes dashboards and exports.
type Service struct {
	store     Store
	cache     SnapshotCache
	delivery  Delivery
	topCities int
	logger    *zap.Logger
	today     func() domain.Date
}

// NewService constructs a Service. Cache and Delivery are optional.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	top := opts.TopCities
	if top <= 0 {
		top = DefaultTopCities
	}
	return &Service{
		store:     opts.Store,
		cache:     opts.Cache,
		delivery:  opts.Delivery,
		topCities: top,
		logger:    logger.With(zap.String("component", "reports")),
		today:     domain.Today,
	}
}

// DeliveryConfigured reports whether exports can be uploaded.
func (s *Service) DeliveryConfigured() bool {
	return s.delivery != nil
}

// Snapshot returns today's headline counters, from the cache when possible.
func (s *Service) Snapshot(ctx context.Context) (postgres.Snapshot, error) {
	day := s.today()
	if s.cache != nil {
		snap, ok, err := s.cache.Get(ctx, day)
		if err != nil {
			s.logger.Warn("snapshot cache read failed", zap.Error(err))
		} else if ok {
			return snap, nil
		}
	}
	snap, err := s.store.Snapshot(ctx, day)
	if err != nil {
		return postgres.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, day, snap); err != nil {
			s.logger.Warn("snapshot cache write failed", zap.Error(err))
		}
	}
	return snap, nil
}

// Dashboard loads every aggregate.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	start := time.Now()
	defer func() { metrics.ObserveReportGeneration(time.Since(start).Seconds()) }()

	day := s.today()
	d := Dashboard{Day: day}
	var err error
	if d.Snapshot, err = s.Snapshot(ctx); err != nil {
		return Dashboard{}, err
	}
	if d.ActiveByProduct, err = s.store.ActiveByProduct(ctx, day); err != nil {
		return Dashboard{}, fmt.Errorf("active by product: %w", err)
	}
	if d.MonthlyNew, err = s.store.MonthlyNewPolicies(ctx); err != nil {
		return Dashboard{}, fmt.Errorf("monthly new policies: %w", err)
	}
	if d.ClaimsByState, err = s.store.ClaimsByState(ctx); err != nil {
		return Dashboard{}, fmt.Errorf("claims by state: %w", err)
	}
	if d.TopCities, err = s.store.TopCities(ctx, s.topCities); err != nil {
		return Dashboard{}, fmt.Errorf("top cities: %w", err)
	}
	if d.ClaimsByYear, err = s.store.ClaimsByYear(ctx); err != nil {
		return Dashboard{}, fmt.Errorf("claims by year: %w", err)
	}
	return d, nil
}

// Export renders the CSV for kind and returns it with its download file name.
func (s *Service) Export(ctx context.Context, kind Kind) ([]byte, string, error) {
	if !kind.Valid() {
		return nil, "", &domain.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown export type %q", kind)}
	}
	d, err := s.Dashboard(ctx)
	if err != nil {
		return nil, "", err
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, kind, d); err != nil {
		return nil, "", err
	}
	metrics.RecordReportExport("download", "success")
	return buf.Bytes(), kind.FileName(d.Day), nil
}

// ErrDeliveryDisabled is returned by Publish when no Delivery is configured.
var ErrDeliveryDisabled = errors.New("reports: export delivery is not configured")

// Publish renders the CSV for kind and uploads it under reports/<ulid>.csv.
func (s *Service) Publish(ctx context.Context, kind Kind) (Upload, error) {
	if s.delivery == nil {
		return Upload{}, ErrDeliveryDisabled
	}
	data, _, err := s.Export(ctx, kind)
	if err != nil {
		return Upload{}, err
	}
	key := fmt.Sprintf("reports/%s.csv", ulid.Make().String())
	up, err := s.delivery.UploadCSV(ctx, key, data)
	if err != nil {
		metrics.RecordReportExport("s3", "error")
		return Upload{}, fmt.Errorf("publish export: %w", err)
	}
	metrics.RecordReportExport("s3", "success")
	return up, nil
}
