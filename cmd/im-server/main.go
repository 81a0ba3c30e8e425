package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/negi-jagdish/village-im/internal/api"
	"github.com/negi-jagdish/village-im/internal/auth"
	"github.com/negi-jagdish/village-im/internal/chat"
	"github.com/negi-jagdish/village-im/internal/config"
	"github.com/negi-jagdish/village-im/internal/db"
	"github.com/negi-jagdish/village-im/internal/hub"
	"github.com/negi-jagdish/village-im/internal/metrics"
	"github.com/negi-jagdish/village-im/internal/presence"
	"github.com/negi-jagdish/village-im/internal/repo"
	"github.com/negi-jagdish/village-im/internal/sweep"
	"github.com/negi-jagdish/village-im/internal/ws"
	"github.com/negi-jagdish/village-im/pkg/push"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "c", "./config.yml", "config file(s), comma-separated")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}
	metrics.Register()

	mysql, err := db.Open(db.Config{
		DSN:          cfg.MySQL.DSN,
		MaxOpenConns: cfg.MySQL.MaxOpenConns,
		MaxIdleConns: cfg.MySQL.MaxIdleConns,
		ConnMaxLife:  cfg.MySQL.ConnMaxLife,
		ConnMaxIdle:  cfg.MySQL.ConnMaxIdle,
	})
	if err != nil {
		log.Fatal("connect mysql", zap.Error(err))
	}
	defer func() { _ = mysql.Close() }()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.Database,
	})
	defer func() { _ = rdb.Close() }()

	messages := repo.NewMessageRepo(mysql)
	groups := repo.NewGroupRepo(mysql)
	members := repo.NewMemberRepo(mysql)
	receipts := repo.NewReceiptRepo(mysql)
	reactions := repo.NewReactionRepo(mysql)
	devices := repo.NewDeviceRepo(mysql)

	authn := auth.New(rdb, auth.Options{
		Secret:       cfg.Auth.Token.Secret,
		RedisPrefix:  cfg.Auth.Token.RedisPrefix,
		Header:       cfg.Auth.Token.Header,
		BearerPrefix: cfg.Auth.Token.BearerPrefix,
		QueryKey:     cfg.Auth.Token.QueryKey,
	})
	pres := presence.New(rdb)

	sessions := hub.New(hub.Options{
		SendQueue:    cfg.WS.SendQueue,
		WriteTimeout: cfg.WS.WriteTimeout,
		Logger:       log,
	})

	var pusher chat.Pusher
	var pushQueue *push.Queue
	if cfg.Push.Enabled == "Y" {
		provider := push.NewHTTPProvider(cfg.Push.Endpoint, cfg.Push.ServerKey, cfg.Push.Timeout)
		pushQueue = push.NewQueue(provider, rdb, push.Options{
			Workers:     cfg.Push.Workers,
			QueueSize:   cfg.Push.QueueSize,
			SendTimeout: cfg.Push.Timeout,
			Logger:      log,
		})
		pusher = pushQueue
	}

	svc := chat.New(chat.Options{
		Messages:  messages,
		Groups:    groups,
		Members:   members,
		Receipts:  receipts,
		Reactions: reactions,
		Devices:   devices,
		Hub:       sessions,
		Push:      pusher,
		Horizon:   cfg.Horizon(),
		Logger:    log,
	})

	sweeper, err := sweep.New(messages, sweep.Options{
		Cron:    cfg.Retention.Cron,
		Horizon: cfg.Horizon(),
		Logger:  log,
	})
	if err != nil {
		log.Fatal("retention sweep", zap.Error(err))
	}
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go sweeper.Run(sweepCtx)

	gateway := ws.New(sessions, svc, authn, pres, log)

	mux := http.NewServeMux()
	mux.Handle("/", api.New(svc, authn, pres, log).Router())
	mux.HandleFunc("/ws", gateway.Handle)
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: mux,
	}
	go func() {
		log.Info("listening", zap.String("addr", cfg.HTTP.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	stopSweep()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if pushQueue != nil {
		pushQueue.Close()
	}
	log.Info("bye")
}
