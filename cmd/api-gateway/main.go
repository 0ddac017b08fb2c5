package main

import (
	"flag"
	"fmt"
	"net/http"
	"time"

	"github.com/RescueLink/RescueLink/internal/common/config"
	"github.com/RescueLink/RescueLink/internal/common/logger"
	"github.com/RescueLink/RescueLink/internal/common/middleware"
	"github.com/RescueLink/RescueLink/internal/common/tracing"
	"github.com/RescueLink/RescueLink/internal/dispatch"
	"github.com/RescueLink/RescueLink/internal/notify"
	"github.com/RescueLink/RescueLink/internal/store"
	"github.com/RescueLink/RescueLink/internal/watch"
	"github.com/gorilla/mux"
)

var (
	configPath = flag.String("config", "configs/api-gateway.json", "配置文件路径")
	dbDriver   = flag.String("db", "", "存储驱动（mysql / memory），留空取配置文件")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	tracer, closer, err := tracing.InitTracer(cfg.Server.Name, cfg.Jaeger.Endpoint, cfg.Jaeger.Sampler)
	if err != nil {
		log.Warnf("failed to init tracer: %v", err)
	} else {
		defer closer.Close()
	}
	_ = tracer

	driver := *dbDriver
	if driver == "" {
		driver = cfg.Database.Driver
	}
	var st store.Store
	switch driver {
	case "memory":
		log.Warn("using in-memory store, data will not survive restarts")
		st = store.NewMemory()
	default:
		db, err := store.Open(cfg.Database)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		if err := store.AutoMigrate(db); err != nil {
			log.Fatalf("failed to migrate database: %v", err)
		}
		st = store.NewGorm(db)
	}

	hub := watch.NewHub()
	defer hub.Close()
	notifier := notify.NewLogNotifier(nil)

	ledger := dispatch.NewLedger(st, hub, notifier)
	h := &handlers{
		cfg:      cfg,
		log:      log,
		store:    st,
		registry: dispatch.NewRegistry(st, hub, notifier),
		matcher:  dispatch.NewMatcher(st, ledger, hub, notifier),
		ledger:   ledger,
		linkage:  dispatch.NewLinkage(st, hub, notifier),
		breaker:  middleware.NewCircuitBreaker("dispatch-core", 5, 10*time.Second),
		limiter:  middleware.NewTokenBucket(200, 100),
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(h.rateLimit, h.authenticate)

	api.HandleFunc("/auth/register", h.register).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)

	api.HandleFunc("/emergencies", h.createEmergency).Methods(http.MethodPost)
	api.HandleFunc("/emergencies", h.listEmergencies).Methods(http.MethodGet)
	api.HandleFunc("/emergencies/{id}", h.getEmergency).Methods(http.MethodGet)
	api.HandleFunc("/emergencies/{id}", h.cancelEmergency).Methods(http.MethodDelete)
	api.HandleFunc("/emergencies/{id}/accept", h.acceptEmergency).Methods(http.MethodPost)
	api.HandleFunc("/emergencies/{id}/decline", h.declineEmergency).Methods(http.MethodPost)
	api.HandleFunc("/emergencies/{id}/form", h.submitForm).Methods(http.MethodPost)
	api.HandleFunc("/emergencies/{id}/form", h.getForm).Methods(http.MethodGet)

	api.HandleFunc("/capacity", h.adjustCapacity).Methods(http.MethodPost)
	api.HandleFunc("/accounts/me", h.myAccount).Methods(http.MethodGet)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Infof("api-gateway listening on %s (store=%s)", addr, driver)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("api-gateway exited with error: %v", err)
	}
}
