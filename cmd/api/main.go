package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"github.com/robertarktes/seatcheckout/internal/adapters/backend"
	"github.com/robertarktes/seatcheckout/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/seatcheckout/internal/adapters/mongo"
	"github.com/robertarktes/seatcheckout/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/seatcheckout/internal/adapters/redis"
	"github.com/robertarktes/seatcheckout/internal/config"
	httphandler "github.com/robertarktes/seatcheckout/internal/http"
	"github.com/robertarktes/seatcheckout/internal/idempotency"
	"github.com/robertarktes/seatcheckout/internal/observability"
	"github.com/robertarktes/seatcheckout/internal/rateLimit"
	"github.com/robertarktes/seatcheckout/internal/rates"
	"github.com/robertarktes/seatcheckout/internal/seatmap"
	"github.com/robertarktes/seatcheckout/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	decimal.MarshalJSONWithoutQuotes = true

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := observability.SetupOTel(ctx, cfg, "seatcheckout-api")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger(cfg.LogLevel)

	pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	crdbRepo := crdb.NewRepository(pool)
	if err := crdbRepo.Migrate(ctx); err != nil {
		log.Fatalf("failed to migrate crdb: %v", err)
	}

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	audit := mongoadapter.NewAuditLogger(mongoClient.Database(cfg.MongoDB), logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	layoutCache := redisadapter.NewCache(redisClient, cfg.LayoutCacheTTL)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), cfg.IdempotencyTTL)
	rl := rateLimit.NewRateLimiter(redisClient, cfg.RateLimitPerMinute, time.Minute)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer rabbitConn.Close()
	consumer, err := rabbit.NewConsumer(rabbitConn, logger)
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}

	client := backend.NewClient(cfg.BackendURL, cfg.BackendTO, logger)
	poller := rates.NewPoller(client, cfg.DefaultConversionRate, cfg.RatePollInterval, logger)

	sessions := session.NewManager(session.Options{
		IdleTTL:  cfg.SessionIdleTTL,
		MaxSeats: cfg.MaxSeats,
		Rates:    poller,
		Surface:  cfg.SeatMap,
		Bookers: func(token string, eventID int64) seatmap.Booker {
			return seatmap.BookerFunc(client.SeatBooker(token, eventID))
		},
	}, logger)

	auth, err := httphandler.NewAuthenticator(cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("failed to load jwt key: %v", err)
	}

	handlers := httphandler.NewHandlers(httphandler.Deps{
		Config:   cfg,
		Backend:  client,
		Layouts:  layoutCache,
		Receipts: crdbRepo,
		Audit:    audit,
		Rates:    poller,
		Sessions: sessions,
		Readiness: map[string]func(context.Context) error{
			"crdb":  crdbRepo.Ping,
			"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
			"mongo": func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) },
		},
	})

	r := httphandler.SetupRouter(handlers, logger, auth, rl, idemp)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		poller.Run(gctx)
		return nil
	})
	g.Go(func() error {
		sessions.Run(gctx, cfg.SessionSweepInterval)
		return nil
	})
	g.Go(func() error {
		return consumer.Consume(gctx, func(ctx context.Context, msg rabbit.SeatStatusChanged) error {
			n := sessions.ApplySeatStatus(msg.EventID, msg.SeatID, msg.Status)
			logger.WithField("event_id", msg.EventID).Debug("seat ", msg.SeatID, " is now ", msg.Status, " in ", n, " sessions")
			return layoutCache.InvalidateLayout(ctx, msg.EventID)
		})
	})
	g.Go(func() error {
		logger.Info("listening on ", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown Server ...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped: ", err)
	}
	logger.Info("Server exiting")
}
