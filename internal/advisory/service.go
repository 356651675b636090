// Package advisory issues, stores and summarizes outage advisories. The
// store refreshes itself from district predictions when it is read and the
// last refresh is older than the configured interval.
package advisory

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/grid-outage-forecast/internal/domain"
	"github.com/couchcryptid/grid-outage-forecast/internal/forecast"
	"github.com/couchcryptid/grid-outage-forecast/internal/observability"
)

// Query limits.
const (
	DefaultActiveLimit  = 10
	MaxActiveLimit      = 100
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
	MaxHistoryDays      = 90
)

// Public summary sizes.
const (
	summaryMessages        = 3
	summaryRecommendations = 5
	summaryUpdateInterval  = time.Hour
)

// maxStored bounds the advisory history kept in memory.
const maxStored = 5000

// AlertLevelNormal is reported by PublicSummary when nothing is in force.
const AlertLevelNormal = "normal"

// DistrictPredictor scores every catalog district.
// forecast.Service implements it.
type DistrictPredictor interface {
	AllDistricts(ctx context.Context, horizon int) ([]forecast.DistrictPrediction, error)
}

// Service is the advisory store.
type Service struct {
	predictor       DistrictPredictor
	refreshInterval time.Duration
	clock           clockwork.Clock
	metrics         *observability.Metrics
	logger          *slog.Logger

	mu            sync.Mutex
	advisories    []domain.Advisory
	byID          map[string]int
	auto          map[string]string // district -> id of its refresher-issued advisory
	subscriptions map[string]Subscription
	lastRefresh   time.Time
}

// NewService creates an advisory Service. A nil predictor disables the
// automatic refresh.
func NewService(predictor DistrictPredictor, refreshInterval time.Duration, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		predictor:       predictor,
		refreshInterval: refreshInterval,
		clock:           clock,
		metrics:         metrics,
		logger:          logger,
		byID:            make(map[string]int),
		auto:            make(map[string]string),
		subscriptions:   make(map[string]Subscription),
	}
}

// Location names the area an advisory is generated for.
type Location struct {
	Name string `json:"name"`
}

// GenerateRequest asks for an advisory describing a risk assessment.
type GenerateRequest struct {
	RiskScore         *float64                `json:"risk_score"`
	Location          *Location               `json:"location"`
	WeatherConditions *domain.AdvisoryWeather `json:"weather_conditions"`
}

// Validate checks that all three fields are present.
func (r GenerateRequest) Validate() error {
	switch {
	case r.RiskScore == nil:
		return &domain.ValidationError{Field: "risk_score", Reason: "is required"}
	case *r.RiskScore < 0 || *r.RiskScore > 100:
		return &domain.ValidationError{Field: "risk_score", Reason: "must be between 0 and 100"}
	case r.Location == nil:
		return &domain.ValidationError{Field: "location", Reason: "is required"}
	case r.WeatherConditions == nil:
		return &domain.ValidationError{Field: "weather_conditions", Reason: "is required"}
	}
	return nil
}

// Generate creates and stores an advisory from a risk assessment.
func (s *Service) Generate(req GenerateRequest) (domain.Advisory, error) {
	if err := req.Validate(); err != nil {
		return domain.Advisory{}, err
	}
	adv := domain.GenerateAdvisory(uuid.NewString(), *req.RiskScore, req.Location.Name, *req.WeatherConditions, s.clock.Now().UTC())

	s.mu.Lock()
	s.add(adv)
	s.mu.Unlock()

	s.logger.Info("advisory generated", "id", adv.ID, "severity", adv.Severity, "area", adv.AffectedAreas[0])
	return adv, nil
}

// add stores adv. Callers hold s.mu.
func (s *Service) add(adv domain.Advisory) {
	s.advisories = append(s.advisories, adv)
	s.byID[adv.ID] = len(s.advisories) - 1
	s.metrics.AdvisoriesIssued.WithLabelValues(string(adv.Severity)).Inc()

	if len(s.advisories) > maxStored {
		drop := len(s.advisories) - maxStored
		s.advisories = append([]domain.Advisory(nil), s.advisories[drop:]...)
		s.reindex()
	}
}

func (s *Service) reindex() {
	s.byID = make(map[string]int, len(s.advisories))
	for i, a := range s.advisories {
		s.byID[a.ID] = i
	}
}

// Get returns the advisory with id, or domain.ErrNotFound.
func (s *Service) Get(id string) (domain.Advisory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[id]
	if !ok {
		return domain.Advisory{}, domain.ErrNotFound
	}
	return s.advisories[i], nil
}

// ActiveQuery filters Active. Zero values mean no filter and the default
// limit.
type ActiveQuery struct {
	Region   string
	Severity domain.RiskLevel
	Limit    int
}

// ActiveList is the response for Active.
type ActiveList struct {
	Advisories  []domain.Advisory `json:"advisories"`
	TotalCount  int               `json:"total_count"`
	ActiveCount int               `json:"active_count"`
}

// Active lists advisories still in force, most severe and newest first.
func (s *Service) Active(ctx context.Context, q ActiveQuery) (ActiveList, error) {
	limit, err := checkLimit(q.Limit, DefaultActiveLimit, MaxActiveLimit)
	if err != nil {
		return ActiveList{}, err
	}
	s.refreshIfStale(ctx)

	now := s.clock.Now()
	s.mu.Lock()
	var out []domain.Advisory
	for _, a := range s.advisories {
		if !a.Active(now) {
			continue
		}
		if q.Region != "" && !a.Affects(q.Region) {
			continue
		}
		if q.Severity != "" && a.Severity != q.Severity {
			continue
		}
		out = append(out, a)
	}
	s.mu.Unlock()

	sortBySeverity(out)
	if len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []domain.Advisory{}
	}
	return ActiveList{Advisories: out, TotalCount: len(out), ActiveCount: len(out)}, nil
}

func sortBySeverity(advs []domain.Advisory) {
	sort.SliceStable(advs, func(i, j int) bool {
		ri, rj := advs[i].Severity.Rank(), advs[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		return advs[i].IssuedAt.After(advs[j].IssuedAt)
	})
}

func checkLimit(limit, def, maxLimit int) (int, error) {
	if limit == 0 {
		return def, nil
	}
	if limit < 1 || limit > maxLimit {
		return 0, &domain.ValidationError{Field: "limit", Reason: "must be between 1 and " + itoa(maxLimit)}
	}
	return limit, nil
}

// PublicSummary is the citizen-facing digest of high and critical
// advisories.
type PublicSummary struct {
	CurrentAlertLevel string    `json:"current_alert_level"`
	KeyMessages       []string  `json:"key_messages"`
	AffectedAreas     []string  `json:"affected_areas"`
	Recommendations   []string  `json:"recommendations"`
	LastUpdated       time.Time `json:"last_updated"`
	NextUpdate        time.Time `json:"next_update"`
}

// PublicSummary digests active high and critical advisories, optionally for
// areas whose name contains location.
func (s *Service) PublicSummary(ctx context.Context, location string) PublicSummary {
	s.refreshIfStale(ctx)

	now := s.clock.Now().UTC()
	loc := strings.ToLower(strings.TrimSpace(location))

	s.mu.Lock()
	var public []domain.Advisory
	for _, a := range s.advisories {
		if !a.Active(now) || a.Severity.Rank() < domain.RiskHigh.Rank() {
			continue
		}
		if loc != "" && !mentions(a.AffectedAreas, loc) {
			continue
		}
		public = append(public, a)
	}
	s.mu.Unlock()
	sortBySeverity(public)

	out := PublicSummary{
		CurrentAlertLevel: AlertLevelNormal,
		KeyMessages:       []string{},
		AffectedAreas:     []string{},
		Recommendations:   []string{},
		LastUpdated:       now,
		NextUpdate:        now.Add(summaryUpdateInterval),
	}
	if len(public) == 0 {
		return out
	}

	out.CurrentAlertLevel = string(public[0].Severity)
	for i, a := range public {
		if i < summaryMessages {
			out.KeyMessages = append(out.KeyMessages, a.Message)
		}
		out.AffectedAreas = appendUnique(out.AffectedAreas, a.AffectedAreas...)
		out.Recommendations = appendUnique(out.Recommendations, a.Recommendations...)
	}
	if len(out.Recommendations) > summaryRecommendations {
		out.Recommendations = out.Recommendations[:summaryRecommendations]
	}
	return out
}

func mentions(areas []string, needle string) bool {
	for _, a := range areas {
		if strings.Contains(strings.ToLower(a), needle) {
			return true
		}
	}
	return false
}

func appendUnique(dst []string, items ...string) []string {
	for _, it := range items {
		found := false
		for _, d := range dst {
			if d == it {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, it)
		}
	}
	return dst
}

// HistoryQuery selects advisories issued in [Start, End].
type HistoryQuery struct {
	Start  time.Time
	End    time.Time
	Region string
	Limit  int
}

// HistoryStats summarizes a history window.
type HistoryStats struct {
	TotalAdvisories      int            `json:"total_advisories"`
	BySeverity           map[string]int `json:"by_severity"`
	ByRegion             map[string]int `json:"by_region"`
	AverageDurationHours float64        `json:"average_duration_hours"`
}

// DateRange echoes the history window.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// History is the response for a history query.
type History struct {
	Advisories []domain.Advisory `json:"advisories"`
	Statistics HistoryStats      `json:"statistics"`
	DateRange  DateRange         `json:"date_range"`
}

// History lists advisories issued within the window, newest first.
func (s *Service) History(q HistoryQuery) (History, error) {
	if !q.End.After(q.Start) {
		return History{}, &domain.ValidationError{Field: "end_date", Reason: "must be after start_date"}
	}
	// Only whole days count toward the limit.
	if q.End.Sub(q.Start)/(24*time.Hour) > MaxHistoryDays {
		return History{}, &domain.ValidationError{Field: "end_date", Reason: "date range limited to 90 days"}
	}
	limit, err := checkLimit(q.Limit, DefaultHistoryLimit, MaxHistoryLimit)
	if err != nil {
		return History{}, err
	}

	s.mu.Lock()
	var out []domain.Advisory
	for i := len(s.advisories) - 1; i >= 0; i-- {
		a := s.advisories[i]
		if a.IssuedAt.Before(q.Start) || a.IssuedAt.After(q.End) {
			continue
		}
		if q.Region != "" && !a.Affects(q.Region) {
			continue
		}
		out = append(out, a)
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []domain.Advisory{}
	}

	return History{
		Advisories: out,
		Statistics: historyStats(out),
		DateRange:  DateRange{Start: q.Start, End: q.End},
	}, nil
}

func historyStats(advs []domain.Advisory) HistoryStats {
	stats := HistoryStats{
		TotalAdvisories: len(advs),
		BySeverity:      map[string]int{},
		ByRegion:        map[string]int{},
	}
	if len(advs) == 0 {
		return stats
	}
	durations := make([]float64, len(advs))
	for i, a := range advs {
		stats.BySeverity[string(a.Severity)]++
		for _, area := range a.AffectedAreas {
			stats.ByRegion[area]++
		}
		durations[i] = a.ValidUntil.Sub(a.IssuedAt).Hours()
	}
	stats.AverageDurationHours = stat.Mean(durations, nil)
	return stats
}

// refreshIfStale reissues district advisories when the last refresh is older
// than the refresh interval. Failures are logged and the stale store served.
func (s *Service) refreshIfStale(ctx context.Context) {
	if s.predictor == nil {
		return
	}
	now := s.clock.Now()
	s.mu.Lock()
	if !s.lastRefresh.IsZero() && now.Sub(s.lastRefresh) < s.refreshInterval {
		s.mu.Unlock()
		return
	}
	s.lastRefresh = now
	s.mu.Unlock()

	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn("advisory refresh failed", "error", err)
	}
}

// Refresh predicts every district and issues an advisory for each one at
// medium risk or above. A district's previous refresher advisory is
// superseded only when its severity changes; it is expired when risk drops
// below medium.
func (s *Service) Refresh(ctx context.Context) error {
	preds, err := s.predictor.AllDistricts(ctx, domain.DefaultHorizonHours)
	if err != nil {
		return err
	}
	now := s.clock.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	issued := 0
	for _, dp := range preds {
		level := dp.Prediction.RiskLevel
		prevID, hasPrev := s.auto[dp.District]
		var prev *domain.Advisory
		if hasPrev {
			if i, ok := s.byID[prevID]; ok && s.advisories[i].Active(now) {
				prev = &s.advisories[i]
			}
		}

		if level.Rank() < domain.RiskMedium.Rank() {
			if prev != nil {
				prev.ValidUntil = now
			}
			delete(s.auto, dp.District)
			continue
		}
		if prev != nil && prev.Severity == level {
			continue
		}
		if prev != nil {
			prev.ValidUntil = now
		}

		w := domain.AdvisoryWeatherFrom(dp.Weather.Input())
		adv := domain.GenerateAdvisory(uuid.NewString(), dp.Prediction.RiskScore, dp.DisplayName, w, now)
		s.add(adv)
		s.auto[dp.District] = adv.ID
		issued++
	}
	s.logger.Info("advisories refreshed", "districts", len(preds), "issued", issued)
	return nil
}
