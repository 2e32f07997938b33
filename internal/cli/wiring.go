package cli

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"

	"medquiz-service/internal/app"
	"medquiz-service/internal/auth"
	"medquiz-service/internal/config"
	"medquiz-service/internal/infra/amqp"
	"medquiz-service/internal/infra/gemini"
	"medquiz-service/internal/infra/memory"
	"medquiz-service/internal/infra/postgres"
	rediscache "medquiz-service/internal/infra/redis"
)

// services is the fully wired application shared by the start and bot commands.
type services struct {
	accounts  *app.AccountService
	catalog   *app.Catalog
	sessions  *app.SessionManager
	engine    *app.ScoringEngine
	stats     *app.StatsService
	tutor     *app.Tutor
	handshake *app.HandshakeCoordinator
	hub       *app.LeaderboardHub
	codec     *auth.SessionCodec

	closers []func() error
}

func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}
}

func buildServices(ctx context.Context, cfg config.Config) (*services, error) {
	svc := &services{}
	ok := false
	defer func() {
		if !ok {
			svc.Close()
		}
	}()

	categories := cfg.Categories
	if len(categories) == 0 {
		categories = app.DefaultCategories()
	}

	var repo app.Repository
	var store seeder
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		svc.closers = append(svc.closers, func() error { pool.Close(); return nil })
		pg := postgres.NewStore(pool)
		repo, store = pg, pg
		log.Printf("storage: postgres")
	} else {
		mem := memory.NewStore()
		repo, store = mem, mem
		log.Printf("storage: in-memory")
	}
	// The in-memory store would otherwise start empty on every boot.
	if cfg.Quiz.SeedDemo || cfg.Postgres.URL == "" {
		if err := seedDemo(ctx, store, categories); err != nil {
			return nil, err
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		svc.closers = append(svc.closers, redisClient.Close)
	}

	itemTTL := config.TTLDuration(cfg.Quiz.TTL, config.TTLDuration(cfg.Redis.TTL, 10*time.Minute))
	handshakeTTL := config.TTLDuration(cfg.Auth.HandshakeTTL, app.DefaultHandshakeTTL)

	var items app.ItemRepository
	var tokens app.TokenStore
	if redisClient != nil {
		items = rediscache.NewItemCache(redisClient, repo, itemTTL)
		tokens = rediscache.NewTokenStore(redisClient, handshakeTTL)
	} else {
		items = memory.NewItemCache(repo, itemTTL)
		tokens = memory.NewTokenStore()
	}

	svc.stats = app.NewStatsService(repo, repo, repo)
	svc.hub = app.NewLeaderboardHub(svc.stats)
	sinks := []app.ActivitySink{svc.hub}
	if cfg.AMQP.URL != "" {
		pub := amqp.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Queue)
		svc.closers = append(svc.closers, pub.Close)
		sinks = append(sinks, pub)
	}

	var model app.TutorModel
	if cfg.Tutor.APIKey != "" {
		m, err := gemini.NewModel(ctx, cfg.Tutor.APIKey, cfg.Tutor.Model)
		if err != nil {
			log.Printf("tutor: gemini unavailable, answering with fallback: %v", err)
		} else {
			svc.closers = append(svc.closers, m.Close)
			model = m
		}
	}

	svc.accounts = app.NewAccountService(repo, repo, cfg.Auth.BcryptCost)
	svc.catalog = app.NewCatalog(repo, categories)
	svc.sessions = app.NewSessionManager(repo)
	svc.engine = app.NewScoringEngine(items, repo, svc.sessions, repo, sinks...)
	svc.tutor = app.NewTutor(model, repo, config.TTLDuration(cfg.Tutor.Timeout, app.DefaultTutorTimeout), sinks...)
	svc.handshake = app.NewHandshakeCoordinator(svc.accounts, tokens, app.HandshakeConfig{
		BotName:        cfg.Telegram.BotName,
		PublicBaseURL:  cfg.Server.PublicBaseURL,
		TTL:            handshakeTTL,
		AllowTokenless: cfg.Auth.AllowTokenless,
	})

	secret := cfg.Auth.SessionSecret
	if secret == "" {
		var err error
		if secret, err = auth.RandomHex(32); err != nil {
			return nil, err
		}
		log.Printf("auth: SESSION_SECRET not set, sessions will not survive a restart")
	}
	svc.codec = auth.NewSessionCodec(secret, config.TTLDuration(cfg.Auth.SessionTTL, 7*24*time.Hour))

	ok = true
	return svc, nil
}
