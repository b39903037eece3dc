package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/gen1sim/api/rest"
	"github.com/kasuganosora/gen1sim/api/sse"
	apows "github.com/kasuganosora/gen1sim/api/ws"
	"github.com/kasuganosora/gen1sim/audit"
	"github.com/kasuganosora/gen1sim/cache"
	"github.com/kasuganosora/gen1sim/config"
	dbadapter "github.com/kasuganosora/gen1sim/db"
	"github.com/kasuganosora/gen1sim/game/battle"
	"github.com/kasuganosora/gen1sim/game/match"
	"github.com/kasuganosora/gen1sim/game/player"
	"github.com/kasuganosora/gen1sim/game/runner"
	mw "github.com/kasuganosora/gen1sim/middleware"
	"github.com/kasuganosora/gen1sim/model"
	"github.com/kasuganosora/gen1sim/plugin/hook"
	"github.com/kasuganosora/gen1sim/resource"
	"github.com/kasuganosora/gen1sim/scheduler"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const usage = `usage: gen1sim [serve|fuzz] [config.yaml]`

func main() {
	mode, cfgPath := "serve", ""
	for _, a := range os.Args[1:] {
		switch a {
		case "serve", "fuzz":
			mode = a
		case "-h", "--help", "help":
			fmt.Println(usage)
			return
		default:
			cfgPath = a
		}
	}

	cfg := config.Default()
	if cfgPath != "" {
		var err error
		if cfg, err = config.Load(cfgPath); err != nil {
			log.Fatalf("config: %v", err)
		}
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	// ---- Data tables ----
	dex := resource.NewDex(cfg.Battle.DataDir)
	if err := dex.Load(); err != nil {
		logger.Fatal("data tables", zap.String("dir", cfg.Battle.DataDir), zap.Error(err))
	}
	logger.Info("data tables loaded",
		zap.Int("species", len(dex.Species)),
		zap.Int("moves", len(dex.Moves)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if mode == "fuzz" {
		os.Exit(fuzz(ctx, cfg, dex, logger))
	}
	serve(ctx, cfg, dex, logger)
}

// fuzz runs the self-play replay check and returns the exit code.
func fuzz(ctx context.Context, cfg *config.Config, dex *resource.Dex, logger *zap.Logger) int {
	rep, err := runner.Run(ctx, runner.Config{
		Workers:  cfg.Fuzz.Workers,
		Battles:  cfg.Fuzz.Battles,
		MaxTurns: cfg.Fuzz.MaxTurns,
		Seed:     cfg.Fuzz.Seed,
		Strategy: cfg.Fuzz.Strategy,
		Dex:      dex,
		Rules:    cfg.Battle.Rules(),
		Logger:   logger,
	})
	if rep != nil {
		out, _ := json.MarshalIndent(rep, "", "  ")
		fmt.Println(string(out))
	}
	if err != nil {
		logger.Error("fuzz run failed", zap.Error(err))
		return 1
	}
	if rep.Failed > 0 {
		for _, o := range rep.Outcomes {
			if o.Err != "" {
				logger.Warn("battle failed",
					zap.Int("battle", o.Index),
					zap.Uint16s("seed", o.Seed[:]),
					zap.String("error", o.Err))
			}
		}
		return 2
	}
	return 0
}

func serve(ctx context.Context, cfg *config.Config, dex *resource.Dex, logger *zap.Logger) {
	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}
	if cfg.Security.JWTSecret == "" {
		logger.Fatal("security.jwt_secret is required")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		logger.Fatal("db", zap.Error(err))
	}
	if err := model.AutoMigrate(db); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Audit ----
	auditSvc := audit.New(db, logger)

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		logger.Fatal("cache", zap.Error(err))
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		logger.Fatal("pubsub", zap.Error(err))
	}
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Scheduler / Hooks ----
	sched := scheduler.New(logger)
	hooks := hook.NewHookCenter()
	hooks.Register(hook.BattleEnded, 100, "log_result", func(_ context.Context, _ string, data interface{}) (interface{}, error) {
		if rec, ok := data.(*model.BattleRecord); ok {
			logger.Info("battle recorded",
				zap.String("match_id", rec.MatchID),
				zap.String("result", rec.Result),
				zap.Int("turns", rec.Turns),
				zap.String("digest", rec.Digest))
		}
		return data, nil
	})

	// ---- Matches ----
	rules := cfg.Battle.Rules()
	mgr := match.NewManager(match.Config{
		Dex:      dex,
		Rules:    rules,
		Cache:    c,
		PubSub:   pubsub,
		Hooks:    hooks,
		Recorder: auditSvc,
		Tokens: func(id string, seat battle.SideID, ttl time.Duration) (string, error) {
			return mw.GenerateSeatToken(id, seat.String(), cfg.Security.JWTSecret, ttl)
		},
		TokenTTL:  cfg.Security.JWTTTLH,
		Scheduler: sched,
		Grace:     cfg.Battle.Grace,
		Logger:    logger,
	})
	sm := player.NewSessionManager(logger)

	// ---- Periodic Scheduler Tasks ----
	if idle := cfg.Battle.IdleTimeout; idle > 0 {
		sched.AddTicker("idle_sweep", idle/4, func(ctx context.Context) {
			mgr.Sweep(ctx, idle)
		})
	}
	sched.AddTicker("stats_log", time.Minute, func(ctx context.Context) {
		stats, err := mgr.Stats(ctx)
		if err != nil {
			logger.Warn("stats read failed", zap.Error(err))
			return
		}
		logger.Info("match stats",
			zap.Any("stats", stats),
			zap.Int("connected_seats", sm.Count()))
	})

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	matchH := apirest.NewMatchHandler(mgr, auditSvc, logger)
	recordH := apirest.NewRecordHandler(db, dex, logger)
	adminH := apirest.NewAdminHandler(mgr, sm, sched, dex, rules, cfg.Fuzz, logger)

	wsRouter := apows.NewRouter(logger)
	wsH := apows.NewHandler(mgr, pubsub, cfg.Security, sm, auditSvc, wsRouter, logger)
	sseH := sse.NewHandler(pubsub, mgr, logger)

	// one seat submits a few choices per turn at most
	perSeat := mw.RateLimitBy(rate.Limit(5), 10, func(c *gin.Context) string {
		seat, _ := mw.GetSeat(c)
		return c.Param("id") + ":" + seat.String()
	})

	api := r.Group("/api")
	{
		api.POST("/matches", matchH.Create)
		api.GET("/matches", matchH.List)
		api.GET("/matches/:id", matchH.Get)
		api.GET("/matches/:id/log", matchH.Log)
		api.GET("/matches/:id/events", sseH.ServeSSE)

		seatG := api.Group("/matches/:id")
		seatG.Use(mw.SeatAuth(cfg.Security, c))
		seatG.GET("/choices", matchH.Choices)
		seatG.GET("/request", matchH.Request)
		seatG.POST("/choose", perSeat, matchH.Choose)
		seatG.GET("/ws", wsH.ServeWS)

		api.GET("/records", recordH.List)
		api.GET("/records/:id", recordH.Get)
		api.POST("/records/:id/verify", recordH.Verify)

		adminG := api.Group("/admin")
		adminG.Use(mw.IPWhitelist(cfg.Server.AdminIPs), apirest.AdminAuth(cfg.Server.AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.GET("/stats", adminH.Stats)
		adminG.GET("/recent", adminH.Recent)
		adminG.POST("/sweep", adminH.Sweep)
		adminG.POST("/matches/:id/abandon", adminH.Abandon)
		adminG.POST("/matches/:id/kick/:seat", adminH.KickSeat)
		adminG.POST("/fuzz", adminH.Fuzz)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		logger.Info("Server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	sm.CloseAllSessions()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	sched.Stop()
	mgr.Close(shutdownCtx)
	auditSvc.Stop(shutdownCtx)
	logger.Info("shutdown complete")
}
