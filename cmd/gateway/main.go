package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"PulseChat/global"
	"PulseChat/logger"
	"PulseChat/service/auth"
	"PulseChat/service/gateway"
	"PulseChat/service/hub"
	"PulseChat/service/queue"
	"PulseChat/service/ratelimit"
	"PulseChat/service/relay"
	"PulseChat/service/router"
	"PulseChat/service/store"
	"PulseChat/tools/safe"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to yaml config")
	flag.Parse()

	cfg, err := global.Load(*configPath)
	if err != nil {
		logger.Errorf("[main] load config: %v", err)
		os.Exit(1)
	}
	global.ConfigIds(cfg.Gateway.NodeID)

	bootCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Message store is the one hard dependency: routing needs history,
	// pending delivery and block checks.
	mongoStore, err := store.NewMongoStore(bootCtx, store.MongoConfig{
		URI:         cfg.Mongo.URI,
		Database:    cfg.Mongo.Database,
		MaxPoolSize: cfg.Mongo.MaxPoolSize,
	})
	if err != nil {
		logger.Errorf("[main] mongo connect: %v", err)
		os.Exit(1)
	}
	logger.Infof("[main] mongo connected db=%s", cfg.Mongo.Database)

	// Presence mirror is optional. Without it cross-process lookups lose
	// the shared view but local routing still works.
	var mirror *store.PresenceMirror
	if cfg.Redis.Addr != "" {
		mirror, err = store.NewPresenceMirror(bootCtx, store.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Gateway.ID, cfg.Redis.PresenceTTL.Std())
		if err != nil {
			logger.Warnf("[main] redis unavailable, presence mirror off: %v", err)
			mirror = nil
		} else {
			logger.Infof("[main] presence mirror on %s", cfg.Redis.Addr)
		}
	}

	var offline queue.OfflineQueue
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		kq, err := queue.NewKafkaQueue(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			logger.Warnf("[main] kafka unavailable, offline queue off: %v", err)
		} else {
			offline = kq
			defer func() { _ = kq.Close() }()
			logger.Infof("[main] offline queue topic=%s", cfg.Kafka.Topic)
		}
	}

	// A relay connect failure degrades to single-process mode rather than
	// refusing to start.
	var rl *relay.Relay
	if cfg.Nats.Enabled && cfg.Nats.URL != "" {
		rl, err = relay.Connect(cfg.Nats.URL, cfg.Gateway.ID)
		if err != nil {
			logger.Warnf("[main] nats unavailable, relay off: %v", err)
			rl = nil
		}
	}

	h := hub.New(hub.Conf{
		GatewayID: cfg.Gateway.ID,
		SendQueue: cfg.Gateway.SendQueue,
		RateLimit: ratelimit.Conf{
			Window:     cfg.RateLimit.Window.Std(),
			Cap:        cfg.RateLimit.Cap,
			SweepEvery: cfg.RateLimit.Sweep.Std(),
		},
	})
	rt := router.New(router.Conf{
		Hub:    h,
		Store:  mongoStore,
		Blocks: mongoStore,
		Queue:  offline,
		Relay:  rl,
		Mirror: mirror,
	})
	verifier := auth.NewVerifier(cfg.JwtSecret(), cfg.Auth.TTL.Std())
	srv := gateway.NewServer(cfg, h, rt, rl, mirror, verifier)

	safe.Go(func() { serveHealth(cfg.Gateway.GRPCAddr) })
	safe.Go(func() { waitForShutdown(h, rl, mirror, mongoStore) })

	if err := srv.Run(); err != nil {
		logger.Errorf("[main] http server: %v", err)
		os.Exit(1)
	}
}

// serveHealth exposes the standard gRPC health service for probes and
// load balancers.
func serveHealth(addr string) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Errorf("[main] grpc listen %s: %v", addr, err)
		return
	}
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus("pulsechat.Gateway", healthpb.HealthCheckResponse_SERVING)
	logger.Infof("[main] grpc health on %s", addr)
	if err := gs.Serve(lis); err != nil {
		logger.Errorf("[main] grpc serve: %v", err)
	}
}

func waitForShutdown(h *hub.Hub, rl *relay.Relay, mirror *store.PresenceMirror, mongoStore *store.MongoStore) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	logger.Infof("[main] signal %s, shutting down", s)

	rl.Close()
	h.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if mirror != nil {
		_ = mirror.Close()
	}
	if mongoStore != nil {
		_ = mongoStore.Close(ctx)
	}
	_ = logger.Sync()
	os.Exit(0)
}
