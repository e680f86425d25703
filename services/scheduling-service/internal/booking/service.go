// Package booking is the application layer of the scheduling service. It
// reads consistent snapshots, runs the resolver and the guard, and commits
// changes together with their outbox events.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	otelx "github.com/md-rashed-zaman/clinicsched/libs/otel"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/clock"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/metrics"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "scheduling-service/booking"

// Policy bounds how far ahead a booking may be made, counted in days from
// today in the clinic's location. Zero disables a bound; when either bound
// is set, dates before today are rejected too.
type Policy struct {
	MinAdvanceDays int
	MaxAdvanceDays int
}

type Config struct {
	Policy   Policy
	Location *time.Location
	Now      func() time.Time
}

type Service struct {
	store   Store
	cache   Cache
	logger  *slog.Logger
	metrics *metrics.Metrics
	policy  Policy
	loc     *time.Location
	now     func() time.Time
}

// NewService wires the service. cache and m may be nil.
func NewService(store Store, cache Cache, logger *slog.Logger, m *metrics.Metrics, cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:   store,
		cache:   cache,
		logger:  logger,
		metrics: m,
		policy:  cfg.Policy,
		loc:     cfg.Location,
		now:     cfg.Now,
	}
}

func (s *Service) today() civil.Date {
	return civil.DateOf(s.now().In(s.loc))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// ResolveAvailability returns the slots for [from, to], serving cached days
// when possible and resolving the rest from one snapshot.
func (s *Service) ResolveAvailability(ctx context.Context, professionalID string, from, to civil.Date) (slots []model.ResolvedSlot, err error) {
	ctx, span := otelx.StartSpan(ctx, tracerName, "booking.ResolveAvailability", "professional_id", professionalID)
	defer func() { endSpan(span, err) }()

	if professionalID == "" {
		return nil, model.Invalid("professional_id", "is required")
	}
	if err := availability.ValidateRange(from, to); err != nil {
		return nil, err
	}
	dates := clock.DateRange(from, to)

	version, cached := s.cachedDays(ctx, professionalID, dates)
	var missing []civil.Date
	for _, d := range dates {
		if _, ok := cached[d]; !ok {
			missing = append(missing, d)
		}
	}

	if len(missing) > 0 {
		first, last := missing[0], missing[len(missing)-1]
		snap, err := s.store.Snapshot(ctx, professionalID, first, last)
		if err != nil {
			return nil, err
		}
		r := availability.NewResolver(snap)
		fresh := make(map[civil.Date][]model.ResolvedSlot, len(missing))
		for _, d := range missing {
			fresh[d] = r.Date(professionalID, d)
		}
		s.storeDays(ctx, professionalID, version, fresh)
		if cached == nil {
			cached = fresh
		} else {
			for d, v := range fresh {
				cached[d] = v
			}
		}
	}

	for _, d := range dates {
		slots = append(slots, cached[d]...)
	}
	for _, sl := range slots {
		s.metrics.ObserveSlot(string(sl.Status))
	}
	return slots, nil
}

// cachedDays returns version -1 when the cache is off or unreachable so that
// nothing is written back.
func (s *Service) cachedDays(ctx context.Context, professionalID string, dates []civil.Date) (int64, map[civil.Date][]model.ResolvedSlot) {
	if s.cache == nil {
		return -1, nil
	}
	version, err := s.cache.Version(ctx, professionalID)
	if err != nil {
		s.metrics.ObserveCache("error")
		s.logger.Warn("availability cache unavailable", "professional_id", professionalID, "err", err)
		return -1, nil
	}
	days, err := s.cache.GetMany(ctx, professionalID, version, dates)
	if err != nil {
		s.metrics.ObserveCache("error")
		s.logger.Warn("availability cache read failed", "professional_id", professionalID, "err", err)
		return version, nil
	}
	for range days {
		s.metrics.ObserveCache("hit")
	}
	for i := len(days); i < len(dates); i++ {
		s.metrics.ObserveCache("miss")
	}
	return version, days
}

func (s *Service) storeDays(ctx context.Context, professionalID string, version int64, days map[civil.Date][]model.ResolvedSlot) {
	if s.cache == nil || version < 0 {
		return
	}
	if err := s.cache.SetMany(ctx, professionalID, version, days); err != nil {
		s.logger.Warn("availability cache write failed", "professional_id", professionalID, "err", err)
	}
}

func (s *Service) invalidate(ctx context.Context, professionalID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, professionalID); err != nil {
		s.metrics.ObserveCache("error")
		s.logger.Error("availability cache invalidation failed", "professional_id", professionalID, "err", err)
	}
}

// CheckBookingConflict runs the guard against the current state without
// writing anything.
func (s *Service) CheckBookingConflict(ctx context.Context, p availability.Proposal) error {
	if !p.Date.IsValid() {
		return model.Invalid("date", "must be a valid YYYY-MM-DD date")
	}
	snap, err := s.store.Snapshot(ctx, p.ProfessionalID, p.Date, p.Date)
	if err != nil {
		return err
	}
	return availability.CheckBookingConflict(snap, p)
}

func (s *Service) checkPolicy(date civil.Date) error {
	if s.policy.MinAdvanceDays <= 0 && s.policy.MaxAdvanceDays <= 0 {
		return nil
	}
	ahead := date.DaysSince(s.today())
	if ahead < 0 {
		return model.Invalid("date", "must not be in the past")
	}
	if s.policy.MinAdvanceDays > 0 && ahead < s.policy.MinAdvanceDays {
		return model.Invalid("date", fmt.Sprintf("must be booked at least %d days in advance", s.policy.MinAdvanceDays))
	}
	if s.policy.MaxAdvanceDays > 0 && ahead > s.policy.MaxAdvanceDays {
		return model.Invalid("date", fmt.Sprintf("must be booked at most %d days in advance", s.policy.MaxAdvanceDays))
	}
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrConflict):
		return "conflict"
	case errors.Is(err, model.ErrValidation):
		return "validation"
	case errors.Is(err, model.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func newID() string { return uuid.NewString() }
