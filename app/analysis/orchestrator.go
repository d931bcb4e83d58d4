// Package analysis turns an uploaded chart into a recommendation and runs its side effects.
package analysis

import (
	"context"
	"encoding/base64"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tickrify1/tickrify.com-sub000/app/events"
	"github.com/tickrify1/tickrify.com-sub000/app/marketdata"
	"github.com/tickrify1/tickrify.com-sub000/app/models"
	"github.com/tickrify1/tickrify.com-sub000/app/usage"
)

var (
	ErrUsageLimitExceeded = errors.New("monthly analysis limit exceeded")
	ErrMissingImage       = errors.New("chart image is required")
	ErrInvalidImage       = errors.New("chart image is not valid base64")
	ErrAnalysisInProgress = errors.New("an analysis is already running")
)

// State is the per-user lifecycle of the latest invocation.
type State string

const (
	StateIdle        State = "idle"
	StateAnalyzing   State = "analyzing"
	StateResultReady State = "resultReady"
	StateFailed      State = "failed"
)

type Request struct {
	UserID      string
	Email       string
	Symbol      string
	ImageBase64 string
	// ContentType is filled from the data URI prefix or by sniffing the decoded bytes.
	ContentType string
}

func (r Request) MIMEType() string {
	if r.ContentType != "" {
		return r.ContentType
	}
	return "image/png"
}

// Limits resolves a user's plan cap.
type Limits interface {
	Limit(ctx context.Context, userID string) (models.PlanType, int, error)
}

// Usage is the monthly counter.
type Usage interface {
	Current(ctx context.Context, userID string) (models.MonthlyUsage, error)
	Increment(ctx context.Context, userID string) (models.MonthlyUsage, error)
}

type Deps struct {
	Analyzer    Analyzer
	Fallback    *Fallback
	History     History
	Performance *PerformanceStore
	Usage       Usage
	Limits      Limits
	Scheduler   SignalScheduler
	Events      events.Publisher
	// Quotes is optional.
	Quotes  marketdata.Source
	Timeout time.Duration
}

// A finished state reads as idle after stateTTL and is then swept.
const stateTTL = 5 * time.Minute

type stateEntry struct {
	state State
	at    time.Time
}

type Orchestrator struct {
	deps  Deps
	now   func() time.Time
	newID func() string

	mu      sync.Mutex
	states  map[string]stateEntry
	sweptAt time.Time
}

func NewOrchestrator(d Deps) *Orchestrator {
	if d.Fallback == nil {
		d.Fallback = NewFallback(nil)
	}
	if d.Analyzer == nil {
		d.Analyzer = FallbackOnly{}
	}
	if d.Events == nil {
		d.Events = events.Discard{}
	}
	if d.Timeout <= 0 {
		d.Timeout = 60 * time.Second
	}
	return &Orchestrator{deps: d, now: time.Now, newID: uuid.NewString, states: map[string]stateEntry{}}
}

// State reports the lifecycle of userID's latest invocation.
func (o *Orchestrator) State(userID string) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.states[userID]
	if !ok || e.expired(o.now()) {
		return StateIdle
	}
	return e.state
}

func (e stateEntry) expired(now time.Time) bool {
	return e.state != StateAnalyzing && now.Sub(e.at) > stateTTL
}

func (o *Orchestrator) begin(userID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := o.now()
	o.sweep(now)
	if o.states[userID].state == StateAnalyzing {
		return ErrAnalysisInProgress
	}
	o.states[userID] = stateEntry{state: StateAnalyzing, at: now}
	return nil
}

func (o *Orchestrator) finish(userID string, s State) {
	o.mu.Lock()
	o.states[userID] = stateEntry{state: s, at: o.now()}
	o.mu.Unlock()
}

// sweep drops expired entries at most once per stateTTL. Callers hold o.mu.
func (o *Orchestrator) sweep(now time.Time) {
	if now.Sub(o.sweptAt) < stateTTL {
		return
	}
	o.sweptAt = now
	for id, e := range o.states {
		if e.expired(now) {
			delete(o.states, id)
		}
	}
}

// Analyze runs one chart analysis. Analyzer failures fall back to a template result,
// and persistence failures are logged; only guard and input errors are returned.
func (o *Orchestrator) Analyze(ctx context.Context, req Request) (result models.Analysis, err error) {
	if err := o.begin(req.UserID); err != nil {
		return models.Analysis{}, err
	}
	defer func() {
		if err != nil {
			o.finish(req.UserID, StateFailed)
			return
		}
		o.finish(req.UserID, StateResultReady)
	}()

	planType, limit, err := o.deps.Limits.Limit(ctx, req.UserID)
	if err != nil {
		return models.Analysis{}, err
	}
	current, err := o.deps.Usage.Current(ctx, req.UserID)
	if err != nil {
		return models.Analysis{}, err
	}
	if !usage.CanAnalyze(current.Count, limit) {
		log.Printf("analysis blocked user=%s plan=%s count=%d limit=%d", req.UserID, planType, current.Count, limit)
		return models.Analysis{}, ErrUsageLimitExceeded
	}

	image, contentType, err := prepareImage(req.ImageBase64)
	if err != nil {
		return models.Analysis{}, err
	}
	req.ImageBase64 = image
	req.ContentType = contentType
	req.Symbol = strings.TrimSpace(req.Symbol)

	quote := o.quote(ctx, req.Symbol)

	callCtx, cancel := context.WithTimeout(ctx, o.deps.Timeout)
	upstream, err := o.deps.Analyzer.Analyze(callCtx, req)
	cancel()
	if err != nil {
		log.Printf("remote analysis failed user=%s err=%v; using fallback", req.UserID, err)
		var base float64
		if quote != nil {
			base, _ = quote.Float64()
		}
		upstream = o.deps.Fallback.Generate(req.Symbol, base)
	}

	a := Normalize(upstream, NormalizeInput{
		ID:        o.newID(),
		Symbol:    req.Symbol,
		ImageData: image,
		Now:       o.now(),
		Quote:     quote,
	})

	count := current.Count
	if err := o.deps.History.AddAnalysis(ctx, req.UserID, a); err != nil {
		log.Printf("persistence failed user=%s analysis=%s err=%v", req.UserID, a.ID, err)
	} else if next, err := o.deps.Usage.Increment(ctx, req.UserID); err != nil {
		log.Printf("persistence failed user=%s usage increment err=%v", req.UserID, err)
	} else {
		count = next.Count
	}

	if o.deps.Performance != nil {
		o.deps.Performance.Record(ctx, req.UserID, a)
	}

	if o.deps.Scheduler != nil {
		job := models.SignalJob{UserID: req.UserID, Email: req.Email, Analysis: withoutImage(a)}
		if err := o.deps.Scheduler.Schedule(ctx, job); err != nil {
			log.Printf("signal schedule failed user=%s analysis=%s err=%v", req.UserID, a.ID, err)
		}
	}

	if limit != models.Unlimited && count >= limit {
		o.deps.Events.Publish(ctx, events.Event{
			Kind:   events.KindUpgradeRequired,
			UserID: req.UserID,
			Email:  req.Email,
			Payload: events.UpgradeRequiredPayload{
				PlanType: string(planType),
				Count:    count,
				Limit:    limit,
			},
		})
	}

	log.Printf("analysis done user=%s id=%s rec=%s confidence=%d", req.UserID, a.ID, a.Recommendation, a.Confidence)
	return a, nil
}

func (o *Orchestrator) quote(ctx context.Context, symbol string) *decimal.Decimal {
	if o.deps.Quotes == nil || symbol == "" {
		return nil
	}
	q, err := o.deps.Quotes.Quote(ctx, symbol)
	if err != nil {
		log.Printf("quote lookup failed symbol=%s err=%v", symbol, err)
		return nil
	}
	return &q.Price
}

// prepareImage strips a data URI prefix and checks the payload decodes.
func prepareImage(raw string) (string, string, error) {
	s := strings.TrimSpace(raw)
	contentType := ""
	if strings.HasPrefix(s, "data:") {
		header, data, ok := strings.Cut(s, ",")
		if !ok {
			return "", "", ErrInvalidImage
		}
		contentType = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		s = data
	}
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return "", "", ErrMissingImage
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", "", ErrInvalidImage
	}
	if contentType == "" {
		contentType = http.DetectContentType(decoded)
	}
	return s, contentType, nil
}

// Signal jobs travel through SQS, which caps message size well below a chart image.
func withoutImage(a models.Analysis) models.Analysis {
	a.ImageData = ""
	return a
}
