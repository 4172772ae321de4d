package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/hkracing/racesync/config"
	"github.com/hkracing/racesync/errs"
	"github.com/hkracing/racesync/internal/schema"
)

// HTTPSource fetches raw race-day documents over the upstream results API.
// The limiter is the shared upstream rate budget; it is consulted before
// every request regardless of caller concurrency.
type HTTPSource struct {
	baseURL   string
	client    *http.Client
	limiter   *rate.Limiter
	retention time.Duration
	now       func() time.Time
}

// NewHTTPSource constructs an HTTPSource from the source settings.
func NewHTTPSource(cfg config.SourceSettings, limiter *rate.Limiter) *HTTPSource {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), maxInt(cfg.RateBurst, 1))
	}
	return &HTTPSource{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		client:    &http.Client{Timeout: cfg.HTTPTimeout},
		limiter:   limiter,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		now:       time.Now,
	}
}

type dayDocument struct {
	RaceDate   string `json:"race_date"`
	Racecourse string `json:"racecourse"`
	Races      []struct {
		RaceNumber int        `json:"race_number"`
		Payload    RawPayload `json:"payload"`
	} `json:"races"`
}

// Fetch retrieves the raw payloads for one race day. Days older than the
// upstream retention window report unavailable without issuing a request.
func (s *HTTPSource) Fetch(ctx context.Context, date schema.Date, venue schema.Venue) (DayPayload, error) {
	if s.retention > 0 {
		cutoff := schema.DateOf(s.now().Add(-s.retention))
		if date.Before(cutoff) {
			return DayPayload{}, errs.New("source/fetch", errs.CodeUnavailable,
				errs.WithMessage(fmt.Sprintf("date %s beyond retention window", date)))
		}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return DayPayload{}, fmt.Errorf("source rate budget: %w", err)
	}

	url := fmt.Sprintf("%s/api/results/%s/%s", s.baseURL, date, venue)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return DayPayload{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return DayPayload{}, errs.New("source/fetch", errs.CodeTransient,
			errs.WithMessage("upstream request failed"), errs.WithCause(err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return DayPayload{}, errs.New("source/fetch", errs.CodeNotFound,
			errs.WithMessage(fmt.Sprintf("no results for %s %s", date, venue)))
	case resp.StatusCode == http.StatusGone:
		return DayPayload{}, errs.New("source/fetch", errs.CodeUnavailable,
			errs.WithMessage(fmt.Sprintf("results for %s %s aged out", date, venue)))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return DayPayload{}, errs.New("source/fetch", errs.CodeTransient,
			errs.WithHTTP(resp.StatusCode))
	default:
		return DayPayload{}, errs.New("source/fetch", errs.CodeInvalid,
			errs.WithHTTP(resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return DayPayload{}, errs.New("source/fetch", errs.CodeTransient,
			errs.WithMessage("read upstream body"), errs.WithCause(err))
	}

	var doc dayDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return DayPayload{}, errs.New("source/fetch", errs.CodeMalformedRecord,
			errs.WithMessage("decode upstream document"), errs.WithCause(err))
	}

	day := DayPayload{Date: date, Venue: venue, Races: make([]RawRace, 0, len(doc.Races))}
	for _, race := range doc.Races {
		fields := race.Payload
		if fields == nil {
			fields = RawPayload{}
		}
		day.Races = append(day.Races, RawRace{RaceNo: race.RaceNumber, Fields: fields})
	}
	return day, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
