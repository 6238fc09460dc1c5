package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/cors"

	"petpet/activity"
	"petpet/admin"
	"petpet/auth"
	"petpet/cart"
	"petpet/config"
	"petpet/db"
	"petpet/filemgr"
	"petpet/globals"
	"petpet/idempotency"
	"petpet/invoice"
	"petpet/metrics"
	"petpet/mq"
	"petpet/notify"
	"petpet/orders"
	"petpet/products"
	"petpet/ratelim"
	"petpet/rdx"
	"petpet/reviews"
	"petpet/routes"
)

// securityHeaders applies a set of recommended HTTP security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "frame-ancestors 'none'")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Cache-Control", "no-store")
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs each request method, path, status, remote address, and duration.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := metrics.NewStatusWriter(w)
		next.ServeHTTP(sw, r)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.Status,
			"remote", r.RemoteAddr,
			"duration", time.Since(start),
		)
	})
}

func setupLogger(cfg config.Log) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.Format == "text" {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.Log)
	globals.JwtSecret = []byte(cfg.Auth.JWTSecret)

	if err := run(cfg); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped cleanly")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	authSvc := auth.NewService(store, auth.Options{
		Secret:     globals.JwtSecret,
		AccessTTL:  cfg.Auth.AccessTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
	})
	if err := authSvc.SeedAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
		return err
	}

	hub := notify.NewHub()
	go hub.Run()
	defer hub.Stop()

	// events go through Redis when configured so every instance sees them
	var events mq.Publisher
	if cfg.Redis.Addr != "" {
		client, err := rdx.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer client.Close()
		events = mq.NewRedis(client, cfg.Redis.Channel)
		go mq.StartWorker(ctx, client, cfg.Redis.Channel, hub.HandleEvent)
	} else {
		local := mq.NewLocal()
		local.Subscribe(hub.HandleEvent)
		events = local
	}

	var audit activity.Recorder = activity.Nop{}
	if cfg.Mongo.URI != "" {
		m, err := activity.ConnectMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection)
		if err != nil {
			return err
		}
		defer m.Close(context.Background())
		audit = m
	}

	transitions, err := orders.ParseTransitions(cfg.Orders.Transitions)
	if err != nil {
		return err
	}

	files := filemgr.New(cfg.Uploads.Dir, cfg.Uploads.URLPrefix, cfg.Uploads.MaxBytes)
	catalog := products.NewService(store, events, audit, files)
	if cfg.Database.SeedCatalog {
		if _, err := catalog.SeedCatalog(ctx); err != nil {
			return err
		}
	}
	reviewSvc := reviews.NewService(store, events, audit)
	orderSvc := orders.NewService(store, events, audit, orders.Options{
		Transitions:     transitions,
		RestockOnCancel: cfg.Orders.RestockOnCancel,
	})

	registry := metrics.NewRegistry()
	limiter := ratelim.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)
	go limiter.Run(time.Minute, ctx.Done())

	idem := idempotency.New(store, idempotency.DefaultTTL)
	go idem.Run(ctx, time.Hour)

	pages := cfg.Pagination
	router := routes.RoutesWrapper(routes.Deps{
		Products:    products.NewHandlers(catalog, pages.PageSize, pages.MaxPageSize, cfg.Uploads.MaxBytes),
		Cart:        cart.NewHandlers(cart.NewService(store)),
		Orders:      orders.NewHandlers(orderSvc, invoice.NewSigner(cfg.Invoice.Secret), pages.PageSize, pages.MaxPageSize),
		Reviews:     reviews.NewHandlers(reviewSvc, pages.PageSize, pages.MaxPageSize),
		Admin:       admin.NewHandlers(admin.NewService(store, catalog), reviewSvc, audit, registry, pages.AdminPageSize, pages.MaxPageSize),
		Auth:        auth.NewHandlers(authSvc, true),
		Live:        notify.Handler(hub, notify.NewUpgrader(cfg.Server.AllowedOrigins)),
		Idempotency: idem,
		Limiter:     limiter,
		Metrics:     registry,
		UploadDir:   cfg.Uploads.Dir,
		UploadURL:   cfg.Uploads.URLPrefix,
	})

	// CORS → security headers → logging → router
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", idempotency.Header},
		ExposedHeaders:   []string{"Location", "Idempotent-Replayed"},
		AllowCredentials: true,
	}).Handler(router)

	server := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           loggingMiddleware(securityHeaders(corsHandler)),
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}
	server.RegisterOnShutdown(hub.Stop)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", cfg.Server.Port, "driver", cfg.Database.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
