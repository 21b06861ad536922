package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/example/backhaul-matching/internal/models"
	"github.com/example/backhaul-matching/internal/observability"
)

// Service is the search entry point: retrieve, filter, score, sort, page.
// It holds no per-request state and is safe for concurrent use.
type Service struct {
	retriever *Retriever
	cfg       Config
	logger    *slog.Logger
}

func NewService(finder Finder, cfg Config, logger *slog.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("matcher config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		retriever: &Retriever{Finder: finder, BufferKm: cfg.CandidateBufferKm, Limit: cfg.CandidateLimit},
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// WithClock replaces the time source used for the default search date.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.retriever.Now = now
	return s
}

func (s *Service) Config() Config { return s.cfg }

func (s *Service) Search(ctx context.Context, q models.SearchQuery) (models.SearchResult, error) {
	start := time.Now()
	if err := validateQuery(q); err != nil {
		observability.SearchesTotal.WithLabelValues("invalid").Inc()
		return models.SearchResult{}, err
	}
	deviation := s.ClampDeviation(q.DeviationKm)
	page, pageSize := s.pageParams(q.Page, q.PageSize)

	cands, window, err := s.retriever.Candidates(ctx, *q.Pickup, q.Date, q.TruckType, deviation)
	if err != nil {
		observability.SearchesTotal.WithLabelValues("unavailable").Inc()
		s.logger.Error("route search failed", "error", err, "deviation_km", deviation)
		return models.SearchResult{}, fmt.Errorf("%w: %w", ErrSearchUnavailable, err)
	}

	matches := FilterMatches(cands, *q.Pickup, *q.Drop, deviation, s.cfg.TruckSpeedKmh)
	ScoreAll(matches, deviation)
	SortMatches(matches, q.SortBy)
	pageItems, total := Paginate(matches, page, pageSize)

	observability.SearchesTotal.WithLabelValues("ok").Inc()
	observability.SearchCandidates.Observe(float64(len(cands)))
	observability.SearchMatches.Observe(float64(total))
	observability.SearchLatency.Observe(time.Since(start).Seconds())
	s.logger.Debug("route search",
		"window_from", window.From,
		"deviation_km", deviation,
		"truck_type", q.TruckType,
		"sort", q.SortBy,
		"candidates", len(cands),
		"matches", total,
		"page", page,
	)

	return models.SearchResult{
		Matches:         pageItems,
		Total:           total,
		Page:            page,
		PageSize:        pageSize,
		Pages:           int(math.Ceil(float64(total) / float64(pageSize))),
		DeviationKmUsed: deviation,
	}, nil
}

// ClampDeviation applies the default to a missing or non-positive request
// and caps it at the configured maximum. It never fails.
func (s *Service) ClampDeviation(requested *float64) float64 {
	d := s.cfg.DefaultDeviationKm
	if requested != nil && *requested > 0 && !math.IsNaN(*requested) {
		d = *requested
	}
	return math.Min(d, s.cfg.MaxDeviationKm)
}

func (s *Service) pageParams(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = s.cfg.DefaultPageSize
	}
	if pageSize > s.cfg.MaxPageSize {
		pageSize = s.cfg.MaxPageSize
	}
	return page, pageSize
}

func validateQuery(q models.SearchQuery) error {
	if q.Pickup == nil || q.Drop == nil {
		return fmt.Errorf("%w: pickup and drop coordinates are required", ErrInvalidQuery)
	}
	if err := q.Pickup.Validate(); err != nil {
		return fmt.Errorf("%w: pickup: %w", ErrInvalidQuery, err)
	}
	if err := q.Drop.Validate(); err != nil {
		return fmt.Errorf("%w: drop: %w", ErrInvalidQuery, err)
	}
	return nil
}
