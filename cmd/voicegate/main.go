package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voicegate/voicegate/internal/agent"
	"github.com/voicegate/voicegate/internal/agent/agents"
	"github.com/voicegate/voicegate/internal/api"
	"github.com/voicegate/voicegate/internal/config"
	"github.com/voicegate/voicegate/internal/database"
	"github.com/voicegate/voicegate/internal/gateway"
	"github.com/voicegate/voicegate/internal/media"
	"github.com/voicegate/voicegate/internal/metrics"
	sipserver "github.com/voicegate/voicegate/internal/sip"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting voicegate",
		"http_port", cfg.HTTPPort,
		"sip_port", cfg.SIPPort,
		"data_dir", cfg.DataDir,
		"default_model", cfg.DefaultModel,
	)
	if cfg.AIAPIKey == "" {
		slog.Warn("no ai api key configured, calls will fail to connect to the model")
	}

	db, err := database.Open(cfg.DataDir)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	callRepo := database.NewCallRepository(db)
	taskRepo := database.NewTaskRepository(db)
	ideaRepo := database.NewIdeaRepository(db)
	projectRepo := database.NewProjectRepository(db)
	orderRepo := database.NewOrderRepository(db)
	screeningRepo := database.NewScreeningRepository(db)

	registry, err := buildRegistry(cfg, taskRepo, ideaRepo, projectRepo, orderRepo)
	if err != nil {
		slog.Error("failed to build agent registry", "error", err)
		os.Exit(1)
	}
	slog.Info("agents registered", "agents", registry.Names())

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	sipSrv, err := sipserver.NewServer(cfg)
	if err != nil {
		slog.Error("failed to create sip server", "error", err)
		os.Exit(1)
	}

	firewall := sipserver.NewTrunkFirewall(cfg.FirewallEnabled, trunkIdentities(cfg), logger)

	ports, err := media.NewPortPool(cfg.RTPPortMin, cfg.RTPPortMax, logger)
	if err != nil {
		slog.Error("failed to create rtp port pool", "error", err)
		os.Exit(1)
	}

	hub := api.NewHub(nil)
	gw := gateway.New(cfg, sipSrv, firewall, ports, registry, callRepo, screeningRepo, hub)
	hub.SetController(gw)
	sipSrv.SetHandler(gw)

	if err := sipSrv.Start(appCtx); err != nil {
		slog.Error("failed to start sip server", "error", err)
		os.Exit(1)
	}

	startTime := time.Now()
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(metrics.NewCollector(
		gw,
		&registrarStatusAdapter{registrar: sipSrv.Registrar()},
		callRepo,
		gw,
		firewall,
		startTime,
	))

	handler := api.NewServer(api.Deps{
		Config:    cfg,
		Gateway:   gw,
		Registrar: sipSrv.Registrar(),
		Firewall:  firewall,
		Calls:     callRepo,
		Tasks:     taskRepo,
		Ideas:     ideaRepo,
		Projects:  projectRepo,
		Orders:    orderRepo,
		Screening: screeningRepo,
		Hub:       hub,
		Metrics:   promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}),
		Broadcast: hub,
	})
	defer handler.Stop()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	// Terminate a live call cleanly before the SIP stack goes away.
	if err := gw.HangupActive(); err == nil {
		slog.Info("active call terminated for shutdown")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down servers")
	sipSrv.Stop()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("voicegate stopped")
}

// buildRegistry registers the fixed agent set: the security gate, the
// central switchboard and the specialists.
func buildRegistry(cfg *config.Config, tasks database.TaskRepository,
	ideas database.IdeaRepository, projects database.ProjectRepository,
	orders database.OrderRepository) (*agent.Registry, error) {

	registry := agent.NewRegistry()
	for _, a := range []agent.Agent{
		agents.NewSecurityAgent(cfg.AccessCode),
		agents.NewCentralAgent(registry),
		agents.NewIdeasAgent(ideas, projects),
		agents.NewCodeAgent(tasks),
		agents.NewBestellAgent(orders),
	} {
		if err := registry.Register(a); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// trunkIdentities lists the strings that identify our own trunk in a From
// URI, used by the firewall for INVITEs arriving from private addresses.
func trunkIdentities(cfg *config.Config) []string {
	var ids []string
	if cfg.TrunkUser != "" {
		ids = append(ids, cfg.TrunkUser)
	}
	if cfg.TrunkHost != "" {
		ids = append(ids, cfg.TrunkHost)
	}
	return ids
}

// registrarStatusAdapter bridges the SIP registrar to the metrics collector.
type registrarStatusAdapter struct {
	registrar *sipserver.Registrar
}

func (a *registrarStatusAdapter) RegistrarStatus() string {
	return string(a.registrar.State().Status)
}
