package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	apiversions "github.com/goliatone/go-apiversions"
	"github.com/goliatone/go-apiversions/adapters/gojob"
	"github.com/goliatone/go-apiversions/adapters/gologger"
	"github.com/goliatone/go-apiversions/core"
	sqlstore "github.com/goliatone/go-apiversions/store/sql"
	"github.com/goliatone/go-apiversions/transport"
	"github.com/goliatone/go-apiversions/webhooks"
	"github.com/goliatone/go-logger/glog"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/rs/cors"
)

func main() {
	configPath := flag.String("config", ".", "directory holding config.yaml")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loader, err := newViperLoader(*configPath)
	if err != nil {
		newServerLogger("info", nil).Fatal("load config", "error", err)
	}
	settings := loader.Settings()

	baseLogger := newServerLogger(settings.LogLevel, nil)
	_, logger := gologger.Resolve("server", nil, baseLogger)
	if loader.found {
		logger.Info("loaded config.yaml", "path", *configPath)
	} else {
		logger.Info("no config.yaml found, using defaults and env vars")
	}

	service, err := apiversions.NewBuiltinService(apiversions.Config{},
		apiversions.WithConfigProvider(core.NewCfgxConfigProvider(loader)),
		apiversions.WithLogger(baseLogger),
	)
	if err != nil {
		logger.Fatal("build versioning service", "error", err)
	}

	client, err := sqlstore.NewPersistenceClient(ctx, sqlstore.PersistenceConfig{
		Driver: settings.DBDriver,
		Server: settings.DBDSN,
	})
	if err != nil {
		logger.Fatal("open database", "error", err)
	}
	defer client.Close()

	cacheConfig := repositorycache.DefaultConfig()
	cacheConfig.TTL = time.Minute
	cacheService, err := repositorycache.NewCacheService(cacheConfig)
	if err != nil {
		logger.Fatal("build cache", "error", err)
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client,
		sqlstore.WithCacheService(cacheService),
		sqlstore.WithVersionCatalog(service.Catalog()),
	)
	if err != nil {
		logger.Fatal("build account version store", "error", err)
	}
	accountVersions := factory.AccountVersions()

	deliveries, err := sqlstore.NewDeliveryQueue(ctx, factory.DB())
	if err != nil {
		logger.Fatal("build webhook delivery queue", "error", err)
	}
	enqueuer := gojob.NewEnqueuerAdapter(deliveries)
	backend := newDemoBackend(enqueuer.Enqueue)

	shaperOpts := []webhooks.ShaperOption{webhooks.WithLogger(baseLogger)}
	if settings.CoalesceWindow > 0 {
		shaperOpts = append(shaperOpts, webhooks.WithBurstController(webhooks.NewBurstController(webhooks.BurstOptions{
			Mode:   webhooks.BurstModeCoalesce,
			Window: settings.CoalesceWindow,
		})))
		logger.Info("webhook coalescing enabled", "window", settings.CoalesceWindow.String())
	}
	shaper, err := webhooks.NewShaper(service, webhooks.NewHTTPSender(), shaperOpts...)
	if err != nil {
		logger.Fatal("build webhook shaper", "error", err)
	}
	worker, err := gojob.NewDeliveryWorker(shaper,
		gojob.RetryPolicy{MaxAttempts: settings.MaxAttempts, MaxDelay: time.Minute, DeadLetterOnMax: true},
		gojob.WithSecretLookup(backend.SubscriptionSecret),
		gojob.WithLogger(baseLogger),
	)
	if err != nil {
		logger.Fatal("build webhook worker", "error", err)
	}
	go func() {
		if err := worker.Run(ctx, deliveries, 0); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("webhook worker stopped", "error", err)
		}
	}()

	requester := transport.NewDispatchRequester()
	if err := backend.Register(requester); err != nil {
		logger.Fatal("register backend handlers", "error", err)
	}
	if err := requester.Start(ctx); err != nil {
		logger.Fatal("start requester", "error", err)
	}
	defer requester.Stop(context.Background())

	resolver := transport.NewVersionResolver(service,
		transport.WithAccountVersionSource(accountVersions.(transport.AccountVersionSource)),
		transport.WithVersionHeader(service.Config().Routing.VersionHeader),
	)
	adapter, err := transport.NewAdapter(service, requester,
		transport.WithResolver(resolver),
		transport.WithLogger(baseLogger),
	)
	if err != nil {
		logger.Fatal("build route adapter", "error", err)
	}
	if err := adapter.Routes(
		transport.Route{Name: "workflow.create", Method: http.MethodPost, Path: "/workflows", Status: http.StatusCreated},
		transport.Route{Name: "workflow.read", Method: http.MethodGet, Path: "/workflows/{id}", URLParams: map[string]string{"id": "workflowId"}},
		transport.Route{Name: "workflow.list", Method: http.MethodGet, Path: "/workflows"},
		transport.Route{Name: "webhook.create", Method: http.MethodPost, Path: "/webhooks", Status: http.StatusCreated},
	); err != nil {
		logger.Fatal("register routes", "error", err)
	}
	registerAccountRoutes(adapter.Router(), accountVersions, service.CanonicalVersion())
	adapter.Router().Get("/versions", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, service.DescribeCatalog())
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   settings.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{resolver.VersionHeader(), transport.RequestIDHeader},
	})

	server := &http.Server{
		Addr:         settings.Addr,
		Handler:      corsHandler.Handler(adapter),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting api versions server", "addr", settings.Addr, "canonical", service.CanonicalVersion())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	cancel()
	logger.Info("server exited")
}

// newServerLogger builds the JSON process logger. A nil writer keeps stdout.
func newServerLogger(level string, writer io.Writer) *glog.BaseLogger {
	if level == "" {
		level = "info"
	}
	return glog.NewLogger(
		glog.WithLoggerTypeJSON(),
		glog.WithLevel(level),
		glog.WithName("apiversions"),
		glog.WithWriter(writer),
	)
}

type accountVersionBody struct {
	APIVersion string `json:"apiVersion"`
	Default    bool   `json:"default,omitempty"`
}

// registerAccountRoutes exposes the account default version. These routes
// are not versioned themselves; accounts without a default report canonical.
func registerAccountRoutes(router chi.Router, store sqlstore.AccountVersionRepository, canonical string) {
	router.Get("/accounts/{accountId}/api-version", func(w http.ResponseWriter, r *http.Request) {
		record, err := store.Get(r.Context(), chi.URLParam(r, "accountId"))
		if errors.Is(err, sqlstore.ErrAccountVersionNotFound) {
			writeJSON(w, http.StatusOK, accountVersionBody{APIVersion: canonical, Default: true})
			return
		}
		if err != nil {
			writeRenderedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, accountVersionBody{APIVersion: record.APIVersion})
	})
	router.Put("/accounts/{accountId}/api-version", func(w http.ResponseWriter, r *http.Request) {
		var body accountVersionBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, transport.ErrorEnvelope{Error: transport.ErrorBody{
				Code:    core.ErrorBadInput,
				Message: "invalid JSON body",
			}})
			return
		}
		record, err := store.Upsert(r.Context(), chi.URLParam(r, "accountId"), body.APIVersion)
		if err != nil {
			writeRenderedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, accountVersionBody{APIVersion: record.APIVersion})
	})
	router.Delete("/accounts/{accountId}/api-version", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Delete(r.Context(), chi.URLParam(r, "accountId")); err != nil {
			writeRenderedError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func writeRenderedError(w http.ResponseWriter, err error) {
	status, envelope := transport.RenderError(err)
	writeJSON(w, status, envelope)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
