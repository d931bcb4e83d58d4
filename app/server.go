package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"

	"github.com/tickrify1/tickrify.com-sub000/app/analysis"
	"github.com/tickrify1/tickrify.com-sub000/app/billing"
	"github.com/tickrify1/tickrify.com-sub000/app/config"
	"github.com/tickrify1/tickrify.com-sub000/app/events"
	"github.com/tickrify1/tickrify.com-sub000/app/identity"
	"github.com/tickrify1/tickrify.com-sub000/app/marketdata"
	"github.com/tickrify1/tickrify.com-sub000/app/scheduler"
	"github.com/tickrify1/tickrify.com-sub000/app/store"
	"github.com/tickrify1/tickrify.com-sub000/app/usage"
	"github.com/tickrify1/tickrify.com-sub000/auth"
)

const quoteCacheTTL = time.Minute

// Server owns every per-user state holder behind the HTTP handlers.
type Server struct {
	cfg *config.Config

	backend      store.Backend
	billing      *billing.Service
	pending      *billing.PendingPrices
	usage        *usage.Counter
	history      analysis.History
	performance  *analysis.PerformanceStore
	orchestrator *analysis.Orchestrator
	signals      *analysis.SignalGenerator
	identity     *identity.Service
	sessions     *auth.SessionIssuer
	verifier     auth.TokenVerifier
	bus          *events.Bus
	hub          *events.Hub
	stripe       StripeAPI
	housekeeping *scheduler.Scheduler

	closers []func()
}

// Bootstrap builds a Server from cfg. Optional infrastructure that cannot be
// reached is logged and replaced by its local fallback.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Server, error) {
	s := &Server{cfg: cfg}

	if cfg.DB.Enabled() {
		d, err := OpenDB(ctx, cfg.DB)
		if err != nil {
			return nil, err
		}
		db = d
		s.closers = append(s.closers, func() { d.Close() })
	}

	redisClient := s.connectRedis(ctx)

	backend, err := s.openBackend(cfg.Storage, redisClient)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.backend = backend

	s.bus = events.NewBus()
	s.hub = events.NewHub()
	s.hub.Attach(s.bus)
	notifier := events.NewUpgradeNotifier(events.NewResendMailer(cfg.Events.ResendAPIKey, cfg.Events.EmailFrom), cfg.Stripe.FrontendURL)
	s.closers = append(s.closers, notifier.Attach(s.bus))
	if cfg.Events.AMQPURL != "" {
		fwd, err := events.NewAMQPForwarder(cfg.Events.AMQPURL)
		if err != nil {
			log.Printf("level=warn component=bootstrap msg=\"rabbitmq forwarder unavailable; events stay local\" err=%v", err)
		} else {
			s.closers = append(s.closers, fwd.Close, fwd.Attach(s.bus))
			// Signals generated by the SQS worker reach this process's websocket clients this way.
			if err := fwd.Consume(s.bus, events.KindSignalGenerated, events.KindSubscriptionUpdated, events.KindUpgradeRequired); err != nil {
				log.Printf("level=warn component=bootstrap msg=\"rabbitmq consumer unavailable; remote events not received\" err=%v", err)
			}
			log.Println("level=info component=bootstrap msg=\"rabbitmq forwarder connected\"")
		}
	} else if cfg.QueueURL != "" {
		log.Println("level=warn component=bootstrap msg=\"QUEUE_URL set without AMQP_URL; worker signals will not reach websocket clients\"")
	}

	var remoteSubs billing.SubscriptionStore
	if cfg.Storage.Backend == "postgres" && db != nil {
		remoteSubs = billing.NewPostgresStore(db)
	}
	s.billing = billing.NewService(billing.NewCatalog(cfg.Stripe.PriceIDTrader, cfg.Stripe.PriceIDAlphaPro), billing.NewKVStore(backend), remoteSubs, s.bus)
	s.pending = billing.NewPendingPrices(backend)

	usageStore, pruner := s.usageStore(cfg.Storage.UsageBackend, backend, redisClient)
	s.usage = usage.NewCounter(usageStore)

	if cfg.Storage.Backend == "postgres" && db != nil {
		s.history = analysis.NewPostgresHistory(db)
	} else {
		s.history = analysis.NewKVHistory(backend)
	}
	s.performance = analysis.NewPerformanceStore(backend)
	s.signals = analysis.NewSignalGenerator(s.history, s.bus)

	analyzer, err := newAnalyzer(ctx, cfg.Analysis)
	if err != nil {
		s.Close()
		return nil, err
	}
	var quotes marketdata.Source
	if cfg.Analysis.MarketQuotes {
		quotes = marketdata.NewCache(marketdata.YahooSource{}, quoteCacheTTL)
	}
	s.orchestrator = analysis.NewOrchestrator(analysis.Deps{
		Analyzer:    analyzer,
		History:     s.history,
		Performance: s.performance,
		Usage:       s.usage,
		Limits:      s.billing,
		Scheduler:   s.signalScheduler(ctx),
		Events:      s.bus,
		Quotes:      quotes,
	})

	s.sessions = auth.NewSessionIssuer(cfg.Auth.SessionSecret, cfg.Auth.SessionTTL)
	chain := auth.VerifiersFromConfig(cfg.Auth)
	s.verifier = append(chain, s.sessions)

	var remoteIDs identity.Provider
	if cfg.Auth.SupabaseURL != "" && cfg.Auth.SupabaseAnonKey != "" {
		remoteIDs = identity.NewSupabaseProvider(cfg.Auth.SupabaseURL, cfg.Auth.SupabaseAnonKey)
	} else {
		log.Println("level=info component=bootstrap msg=\"supabase not configured; using local accounts\"")
	}
	s.identity = identity.NewService(remoteIDs, identity.NewLocalProvider(ctx, backend, s.sessions), backend)

	s.stripe = InitStripe(cfg.Stripe)

	s.housekeeping = scheduler.New(cfg.Housekeeping, pruner)
	return s, nil
}

func (s *Server) connectRedis(ctx context.Context) *redis.Client {
	needed := s.cfg.Storage.Local == "redis" || s.cfg.Storage.UsageBackend == "redis"
	if !needed {
		return nil
	}
	opts, err := redis.ParseURL(s.cfg.Storage.RedisURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; using local storage\" err=%v", err)
		return nil
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis ping failed; using local storage\" err=%v", err)
		client.Close()
		return nil
	}
	s.closers = append(s.closers, func() { client.Close() })
	log.Println("level=info component=bootstrap msg=\"redis connected\"")
	return client
}

func (s *Server) openBackend(cfg config.StorageConfig, redisClient *redis.Client) (store.Backend, error) {
	switch cfg.Local {
	case "memory":
		return store.NewMemoryBackend(), nil
	case "sqlite":
		b, err := store.NewSQLiteBackend(filepath.Join(cfg.LocalPath, "tickrify.db"))
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { b.Close() })
		return b, nil
	case "redis":
		if redisClient != nil {
			return store.NewRedisBackend(redisClient, "tickrify:kv"), nil
		}
	}
	return store.NewFileBackend(cfg.LocalPath)
}

func (s *Server) usageStore(kind string, backend store.Backend, redisClient *redis.Client) (usage.Store, scheduler.Pruner) {
	switch kind {
	case "postgres":
		if db != nil {
			p := usage.NewPostgresStore(db)
			return p, p
		}
		log.Println("level=warn component=bootstrap msg=\"usage backend postgres without database; using local\"")
	case "redis":
		if redisClient != nil {
			return usage.NewRedisStore(redisClient, ""), nil
		}
	}
	return usage.NewLocalStore(backend), nil
}

func (s *Server) signalScheduler(ctx context.Context) analysis.SignalScheduler {
	delay := s.cfg.Analysis.SignalDelay
	if s.cfg.QueueURL != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err == nil {
			log.Printf("level=info component=bootstrap msg=\"signal jobs via sqs\" queue=%s", s.cfg.QueueURL)
			return analysis.NewSQSScheduler(sqs.NewFromConfig(awsCfg), s.cfg.QueueURL, delay)
		}
		log.Printf("level=warn component=bootstrap msg=\"aws config failed; signals run in-process\" err=%v", err)
	}
	timers := analysis.NewTimerScheduler(s.signals, delay)
	s.closers = append(s.closers, timers.Stop)
	return timers
}

func newAnalyzer(ctx context.Context, cfg config.AnalysisConfig) (analysis.Analyzer, error) {
	switch cfg.Provider {
	case "endpoint":
		if cfg.EndpointURL == "" {
			log.Println("level=warn component=bootstrap msg=\"VITE_API_URL not set; analyses use fallback\"")
			return analysis.FallbackOnly{}, nil
		}
		return analysis.NewEndpointAnalyzer(cfg.EndpointURL, 60*time.Second), nil
	case "openai", "gemini":
		baseURL, key, model := "", cfg.OpenAIKey, cfg.OpenAIModel
		if cfg.Provider == "gemini" {
			baseURL, key, model = analysis.GeminiOpenAIBaseURL, cfg.GeminiKey, cfg.GeminiModel
		}
		if key == "" {
			log.Printf("level=warn component=bootstrap msg=\"%s key not set; analyses use fallback\"", cfg.Provider)
			return analysis.FallbackOnly{}, nil
		}
		chat, err := analysis.NewOpenAIChat(ctx, baseURL, key, model)
		if err != nil {
			return nil, fmt.Errorf("init %s chat model: %w", cfg.Provider, err)
		}
		return analysis.NewVisionAnalyzer(chat), nil
	}
	return analysis.FallbackOnly{}, nil
}

// Start launches background housekeeping.
func (s *Server) Start() error {
	if err := s.housekeeping.Start(); err != nil {
		return err
	}
	s.closers = append(s.closers, func() { <-s.housekeeping.Stop().Done() })
	return nil
}

// Close releases resources in reverse order of acquisition.
func (s *Server) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func (s *Server) Config() *config.Config                     { return s.cfg }
func (s *Server) Billing() *billing.Service                  { return s.billing }
func (s *Server) Usage() *usage.Counter                      { return s.usage }
func (s *Server) Orchestrator() *analysis.Orchestrator       { return s.orchestrator }
func (s *Server) History() analysis.History                  { return s.history }
func (s *Server) SignalGenerator() *analysis.SignalGenerator { return s.signals }

// Database is the Postgres handle, or nil.
func (s *Server) Database() *sql.DB { return db }

func trimURL(u string) string { return strings.TrimRight(u, "/") }
