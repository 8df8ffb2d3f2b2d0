package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"iou_ledger/internal/config"
	"iou_ledger/internal/repository/store"
	"iou_ledger/internal/service/auth"
	"iou_ledger/internal/service/cache"
	"iou_ledger/internal/service/directory"
	"iou_ledger/internal/service/messages"
	"iou_ledger/internal/service/notes"
	"iou_ledger/internal/service/nullifier"
	redisSvc "iou_ledger/internal/service/redis"
	"iou_ledger/internal/service/server"
	"iou_ledger/internal/service/transfer"
	"iou_ledger/internal/utils/log"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// keyValue is what both the redis service and the in-memory cache offer:
// TTL keys for auth and lists for queued notifications.
type keyValue interface {
	auth.Store
	server.Queue
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := log.Init(cfg.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	db, kv, closeFn, err := backends(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	mode, err := nullifier.ParseKeyMode(cfg.NullifierKeyMode)
	if err != nil {
		return err
	}

	logger := log.L()
	dir := directory.New(db)
	registry := nullifier.NewRegistry(db, dir, mode, logger.Named("nullifier"))
	if err := dir.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("user indexes: %w", err)
	}
	if err := registry.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("nullifier indexes: %w", err)
	}

	histories := notes.NewHistoryStore(db, dir, logger.Named("notes"))
	msgs := messages.NewService(db, dir, logger.Named("messages"))
	orchestrator := transfer.NewOrchestrator(db, dir, histories, msgs, logger.Named("transfer"))

	transfer.NewReconciler(db, orchestrator, cfg.ReconcileGrace, logger.Named("reconciler")).
		Start(ctx, cfg.ReconcileInterval)

	s := server.NewHttpServer(server.Services{
		Directory:  dir,
		Notes:      notes.NewNoteStore(db, dir, logger.Named("notes")),
		Histories:  histories,
		Messages:   msgs,
		Nullifiers: registry,
		Transfers:  orchestrator,
		Auth: auth.NewService(kv, dir,
			auth.WithChallengeTTL(cfg.ChallengeTTL),
			auth.WithSessionTTL(cfg.SessionTTL),
			auth.WithLogger(logger.Named("auth")),
		),
	}, kv, server.Options{
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
		RequireSession: cfg.RequireSession,
	})

	log.Info("starting",
		zap.String("addr", cfg.Addr),
		zap.Bool("memory", cfg.Memory),
		zap.String("nullifier_key", string(registry.Mode())),
	)
	return s.Run(ctx, cfg.Addr)
}

func backends(ctx context.Context, cfg *config.Config) (store.Database, keyValue, func(), error) {
	if cfg.Memory {
		log.Warn("running on in-memory store, nothing is persisted")
		return store.NewMemoryDatabase(), cache.NewMemoryCache(), func() {}, nil
	}

	mongoDBClient, err := initMongo(ctx, cfg.MongoURI)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("mongo: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	kv := redisSvc.NewRedis(rdb)
	if err := kv.Ping(ctx); err != nil {
		_ = mongoDBClient.Disconnect(context.Background())
		return nil, nil, nil, fmt.Errorf("redis: %w", err)
	}

	closeFn := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoDBClient.Disconnect(ctx); err != nil {
			log.Warn("mongo disconnect failed", zap.Error(err))
		}
		if err := rdb.Close(); err != nil {
			log.Warn("redis close failed", zap.Error(err))
		}
	}
	return store.NewMongoDatabase(mongoDBClient.Database(cfg.MongoDatabase), cfg.StoreTimeout), kv, closeFn, nil
}

func initMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	return client, client.Ping(ctx, nil)
}
