package analysis

import (
	"context"
	"encoding/base64"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/shopspring/decimal"

	"github.com/tickrify1/tickrify.com-sub000/app/events"
	"github.com/tickrify1/tickrify.com-sub000/app/marketdata"
	"github.com/tickrify1/tickrify.com-sub000/app/models"
	"github.com/tickrify1/tickrify.com-sub000/app/store"
	"github.com/tickrify1/tickrify.com-sub000/app/usage"
)

var testImage = base64.StdEncoding.EncodeToString([]byte("\x89PNG\r\n\x1a\nchart"))

type fixedLimits struct {
	plan  models.PlanType
	limit int
}

func (f fixedLimits) Limit(context.Context, string) (models.PlanType, int, error) {
	return f.plan, f.limit, nil
}

type recordingScheduler struct {
	mu   sync.Mutex
	jobs []models.SignalJob
}

func (r *recordingScheduler) Schedule(_ context.Context, job models.SignalJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return nil
}

type harness struct {
	orch      *Orchestrator
	history   *KVHistory
	counter   *usage.Counter
	scheduler *recordingScheduler
	events    *[]events.Event
}

func newHarness(t *testing.T, analyzer Analyzer, limit int) *harness {
	t.Helper()
	backend := store.NewMemoryBackend()
	bus := events.NewBus()
	var seen []events.Event
	bus.Subscribe(func(_ context.Context, e events.Event) { seen = append(seen, e) })

	h := &harness{
		history:   NewKVHistory(backend),
		counter:   usage.NewCounter(usage.NewLocalStore(backend)),
		scheduler: &recordingScheduler{},
		events:    &seen,
	}
	h.orch = NewOrchestrator(Deps{
		Analyzer:    analyzer,
		Fallback:    NewFallback(rand.New(rand.NewSource(7))),
		History:     h.history,
		Performance: NewPerformanceStore(backend),
		Usage:       h.counter,
		Limits:      fixedLimits{plan: models.PlanFree, limit: limit},
		Scheduler:   h.scheduler,
		Events:      bus,
		Timeout:     2 * time.Second,
	})
	return h
}

func endpointServer(t *testing.T, status int, body string) *EndpointAnalyzer {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/analyze-chart" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return NewEndpointAnalyzer(server.URL, time.Second)
}

func TestAnalyzeFallsBackOnServerError(t *testing.T) {
	h := newHarness(t, endpointServer(t, http.StatusInternalServerError, `{"error":"boom"}`), 10)

	a, err := h.orch.Analyze(context.Background(), Request{UserID: "u1", Symbol: "BTC/USDT", ImageBase64: testImage})
	if err != nil {
		t.Fatalf("expected fallback result, got error %v", err)
	}
	if a.Recommendation != models.RecommendationBuy && a.Recommendation != models.RecommendationSell {
		t.Fatalf("fallback recommendation must be BUY or SELL, got %s", a.Recommendation)
	}
	if a.Symbol != "BTC/USDT" || a.Reasoning == "" || a.ID == "" {
		t.Fatalf("incomplete fallback analysis: %+v", a)
	}
	if h.orch.State("u1") != StateResultReady {
		t.Fatalf("expected resultReady, got %s", h.orch.State("u1"))
	}
}

func TestAnalyzeSuccessPrependsAndIncrements(t *testing.T) {
	h := newHarness(t, endpointServer(t, http.StatusOK, `{"acao":"compra","justificativa":"rompimento de resistência"}`), 10)
	ctx := context.Background()

	before, _ := h.history.Analyses(ctx, "u1")
	first, err := h.orch.Analyze(ctx, Request{UserID: "u1", ImageBase64: "data:image/png;base64," + testImage})
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if first.Recommendation != models.RecommendationBuy {
		t.Fatalf("expected BUY, got %s", first.Recommendation)
	}
	if first.AIDecision == nil || first.AIDecision.Action != "compra" {
		t.Fatalf("expected ai decision to be kept: %+v", first.AIDecision)
	}
	if first.TargetPrice != DefaultTargetPrice || first.StopLoss != DefaultStopLoss || first.Confidence != DefaultConfidence {
		t.Fatalf("expected documented defaults, got %+v", first)
	}

	second, err := h.orch.Analyze(ctx, Request{UserID: "u1", ImageBase64: testImage})
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}

	after, _ := h.history.Analyses(ctx, "u1")
	if len(after) != len(before)+2 || after[0].ID != second.ID || after[1].ID != first.ID {
		t.Fatalf("expected newest first, got %d entries", len(after))
	}
	cur, _ := h.counter.Current(ctx, "u1")
	if cur.Count != 2 {
		t.Fatalf("expected usage 2, got %d", cur.Count)
	}
	if len(h.scheduler.jobs) != 2 || h.scheduler.jobs[0].Analysis.ImageData != "" {
		t.Fatalf("expected two image-free signal jobs, got %+v", h.scheduler.jobs)
	}
}

func TestAnalyzeLimitScenario(t *testing.T) {
	h := newHarness(t, FallbackOnly{}, 10)
	ctx := context.Background()
	for i := 0; i < 9; i++ {
		if _, err := h.counter.Increment(ctx, "u1"); err != nil {
			t.Fatalf("Increment error: %v", err)
		}
	}

	if _, err := h.orch.Analyze(ctx, Request{UserID: "u1", Email: "u1@example.com", ImageBase64: testImage}); err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	cur, _ := h.counter.Current(ctx, "u1")
	if cur.Count != 10 || usage.CanAnalyze(cur.Count, 10) {
		t.Fatalf("expected count 10 and no more analyses, got %d", cur.Count)
	}

	var upgrade *events.Event
	for i := range *h.events {
		if (*h.events)[i].Kind == events.KindUpgradeRequired {
			upgrade = &(*h.events)[i]
		}
	}
	if upgrade == nil || upgrade.Email != "u1@example.com" {
		t.Fatalf("expected upgrade_required event, got %+v", *h.events)
	}

	_, err := h.orch.Analyze(ctx, Request{UserID: "u1", ImageBase64: testImage})
	if !errors.Is(err, ErrUsageLimitExceeded) {
		t.Fatalf("expected ErrUsageLimitExceeded, got %v", err)
	}
	if h.orch.State("u1") != StateFailed {
		t.Fatalf("expected failed state, got %s", h.orch.State("u1"))
	}
}

type countingAnalyzer struct{ calls int }

func (c *countingAnalyzer) Analyze(context.Context, Request) (Upstream, error) {
	c.calls++
	return FromDecision(DecisionResult{Acao: "esperar"}), nil
}

func TestAnalyzeRejectsBadImages(t *testing.T) {
	analyzer := &countingAnalyzer{}
	h := newHarness(t, analyzer, 10)
	ctx := context.Background()

	if _, err := h.orch.Analyze(ctx, Request{UserID: "u1", ImageBase64: "   "}); !errors.Is(err, ErrMissingImage) {
		t.Fatalf("expected ErrMissingImage, got %v", err)
	}
	if _, err := h.orch.Analyze(ctx, Request{UserID: "u1", ImageBase64: "data:image/png;base64,"}); !errors.Is(err, ErrMissingImage) {
		t.Fatalf("expected ErrMissingImage for empty data uri, got %v", err)
	}
	if _, err := h.orch.Analyze(ctx, Request{UserID: "u1", ImageBase64: "%%%not-base64"}); !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage, got %v", err)
	}
	if analyzer.calls != 0 {
		t.Fatalf("analyzer must not be called for bad input")
	}
	if cur, _ := h.counter.Current(ctx, "u1"); cur.Count != 0 {
		t.Fatalf("usage must not change, got %d", cur.Count)
	}
}

type failingHistory struct{ *KVHistory }

func (failingHistory) AddAnalysis(context.Context, string, models.Analysis) error {
	return errors.New("disk full")
}

func TestPersistenceFailureStillReturnsResult(t *testing.T) {
	h := newHarness(t, &countingAnalyzer{}, 10)
	h.orch.deps.History = failingHistory{h.history}

	a, err := h.orch.Analyze(context.Background(), Request{UserID: "u1", ImageBase64: testImage})
	if err != nil {
		t.Fatalf("persistence failures must not surface, got %v", err)
	}
	if a.Recommendation != models.RecommendationHold {
		t.Fatalf("expected HOLD for esperar, got %s", a.Recommendation)
	}
	if cur, _ := h.counter.Current(context.Background(), "u1"); cur.Count != 0 {
		t.Fatalf("usage must only increment after a successful save, got %d", cur.Count)
	}
}

type blockingAnalyzer struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingAnalyzer) Analyze(ctx context.Context, _ Request) (Upstream, error) {
	close(b.started)
	<-b.release
	return FromDecision(DecisionResult{Acao: "venda"}), nil
}

func TestConcurrentAnalyzeRejected(t *testing.T) {
	analyzer := &blockingAnalyzer{started: make(chan struct{}), release: make(chan struct{})}
	h := newHarness(t, analyzer, models.Unlimited)

	done := make(chan error, 1)
	go func() {
		_, err := h.orch.Analyze(context.Background(), Request{UserID: "u1", ImageBase64: testImage})
		done <- err
	}()
	<-analyzer.started

	if h.orch.State("u1") != StateAnalyzing {
		t.Fatalf("expected analyzing state")
	}
	if _, err := h.orch.Analyze(context.Background(), Request{UserID: "u1", ImageBase64: testImage}); !errors.Is(err, ErrAnalysisInProgress) {
		t.Fatalf("expected ErrAnalysisInProgress, got %v", err)
	}
	close(analyzer.release)
	if err := <-done; err != nil {
		t.Fatalf("first Analyze error: %v", err)
	}
	if h.orch.State("u1") != StateResultReady {
		t.Fatalf("expected resultReady")
	}
}

func TestFinishedStatesExpire(t *testing.T) {
	h := newHarness(t, FallbackOnly{}, models.Unlimited)
	now := time.Date(2025, time.May, 2, 12, 0, 0, 0, time.UTC)
	h.orch.now = func() time.Time { return now }
	ctx := context.Background()

	for _, id := range []string{"u1", "u2"} {
		if _, err := h.orch.Analyze(ctx, Request{UserID: id, ImageBase64: testImage}); err != nil {
			t.Fatalf("Analyze error: %v", err)
		}
	}
	if h.orch.State("u1") != StateResultReady {
		t.Fatalf("expected resultReady right after the run")
	}

	now = now.Add(stateTTL + time.Minute)
	if h.orch.State("u1") != StateIdle {
		t.Fatalf("expected idle once the result is stale, got %s", h.orch.State("u1"))
	}
	if _, err := h.orch.Analyze(ctx, Request{UserID: "u3", ImageBase64: testImage}); err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	h.orch.mu.Lock()
	n := len(h.orch.states)
	h.orch.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected stale entries swept, %d left", n)
	}
}

type fixedQuotes struct{ price float64 }

func (f fixedQuotes) Quote(context.Context, string) (marketdata.Quote, error) {
	return marketdata.Quote{Price: decimal.NewFromFloat(f.price)}, nil
}

func TestAnalyzeDerivesLevelsFromQuote(t *testing.T) {
	h := newHarness(t, endpointServer(t, http.StatusOK, `{"acao":"venda","justificativa":"topo duplo"}`), 10)
	h.orch.deps.Quotes = fixedQuotes{price: 100}

	a, err := h.orch.Analyze(context.Background(), Request{UserID: "u1", Symbol: "ETH/USDT", ImageBase64: testImage})
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	if a.Recommendation != models.RecommendationSell || a.TargetPrice != 97 || a.StopLoss != 102 {
		t.Fatalf("expected levels from quote, got target=%v stop=%v", a.TargetPrice, a.StopLoss)
	}
}

func TestFallbackUniformBuySell(t *testing.T) {
	f := NewFallback(rand.New(rand.NewSource(1)))
	seen := map[models.Recommendation]int{}
	for i := 0; i < 200; i++ {
		a := Normalize(f.Generate("BTC/USDT", 0), NormalizeInput{Now: time.Now()})
		seen[a.Recommendation]++
	}
	if len(seen) != 2 || seen[models.RecommendationBuy] == 0 || seen[models.RecommendationSell] == 0 {
		t.Fatalf("expected both BUY and SELL only, got %v", seen)
	}
}

type fakeChat struct {
	reply string
	got   []*schema.Message
}

func (f *fakeChat) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.got = in
	return schema.AssistantMessage(f.reply, nil), nil
}

func TestVisionAnalyzer(t *testing.T) {
	chat := &fakeChat{reply: "```json\n{\"recommendation\":\"SELL\",\"confidence\":0.82,\"reasoning\":\"divergência\",\"targetPrice\":41000,\"stopLoss\":46000}\n```"}
	v := NewVisionAnalyzer(chat)

	u, err := v.Analyze(context.Background(), Request{UserID: "u1", Symbol: "BTC/USDT", ImageBase64: testImage, ContentType: "image/png"})
	if err != nil {
		t.Fatalf("Analyze error: %v", err)
	}
	a := Normalize(u, NormalizeInput{Now: time.Now()})
	if a.Recommendation != models.RecommendationSell || a.Confidence != 82 || a.TargetPrice != 41000 || a.StopLoss != 46000 {
		t.Fatalf("unexpected normalized result: %+v", a)
	}
	if len(chat.got) != 2 || len(chat.got[1].MultiContent) != 2 {
		t.Fatalf("expected system prompt plus text and image parts")
	}
	img := chat.got[1].MultiContent[1].ImageURL
	if img == nil || img.URL != "data:image/png;base64,"+testImage {
		t.Fatalf("unexpected image part: %+v", img)
	}
}

func TestTimerSchedulerGeneratesSignal(t *testing.T) {
	backend := store.NewMemoryBackend()
	history := NewKVHistory(backend)
	bus := events.NewBus()
	var got []events.Event
	bus.Subscribe(func(_ context.Context, e events.Event) { got = append(got, e) })

	s := NewTimerScheduler(NewSignalGenerator(history, bus), 10*time.Millisecond)
	a := models.Analysis{ID: "a1", Symbol: "BTC/USDT", Recommendation: models.RecommendationBuy, Confidence: 80, TargetPrice: 46000}
	if err := s.Schedule(context.Background(), models.SignalJob{UserID: "u1", Analysis: a}); err != nil {
		t.Fatalf("Schedule error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sigs, _ := history.Signals(context.Background(), "u1"); len(sigs) == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()

	sigs, _ := history.Signals(context.Background(), "u1")
	if len(sigs) != 1 || sigs[0].AnalysisID != "a1" || sigs[0].Type != models.RecommendationBuy || sigs[0].Price != 46000 {
		t.Fatalf("unexpected signals: %+v", sigs)
	}
	if len(got) != 1 || got[0].Kind != events.KindSignalGenerated {
		t.Fatalf("expected signal_generated event, got %+v", got)
	}
}

func TestTimerSchedulerStopCancelsPending(t *testing.T) {
	history := NewKVHistory(store.NewMemoryBackend())
	s := NewTimerScheduler(NewSignalGenerator(history, nil), time.Hour)
	_ = s.Schedule(context.Background(), models.SignalJob{UserID: "u1"})
	s.Stop()
	if sigs, _ := history.Signals(context.Background(), "u1"); len(sigs) != 0 {
		t.Fatalf("stopped timer must not fire")
	}
}

type fakeSQS struct{ input *sqs.SendMessageInput }

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.input = in
	return &sqs.SendMessageOutput{}, nil
}

func TestSQSSchedulerCapsDelay(t *testing.T) {
	client := &fakeSQS{}
	s := NewSQSScheduler(client, "https://sqs.local/q", time.Hour)
	if err := s.Schedule(context.Background(), models.SignalJob{UserID: "u1"}); err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	if client.input.DelaySeconds != maxSQSDelay || *client.input.QueueUrl != "https://sqs.local/q" {
		t.Fatalf("unexpected input: %+v", client.input)
	}
}
