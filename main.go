package main

import (
	"log"

	"github.com/fasthttp/router"
	"github.com/joho/godotenv"
	"github.com/valyala/fasthttp"

	"hdxplane/internal/agent"
	"hdxplane/internal/bootstrap"
	"hdxplane/internal/collector"
	"hdxplane/internal/config"
	"hdxplane/internal/db"
	"hdxplane/internal/http/handlers"
	appmw "hdxplane/internal/http/middleware"
	"hdxplane/internal/opamp"
	"hdxplane/internal/provision"
	"hdxplane/internal/registry"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	sqlDB, err := db.Connect(cfg)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	if _, err := db.EnsureBootstrapAdmin(sqlDB, cfg); err != nil {
		log.Fatalf("failed to ensure bootstrap admin: %v", err)
	}

	var provisioner *provision.Provisioner
	if cfg.ProvisioningEnabled {
		provisioner, err = provision.Connect(cfg)
		if err != nil {
			log.Fatalf("failed to connect analytical store admin endpoint: %v", err)
		}
	} else {
		log.Printf("tenant storage provisioning is disabled")
	}

	connStore := db.NewConnectionStore(sqlDB)
	bootstrapper := bootstrap.New(bootstrapProvisioner(provisioner), connStore, cfg.ClickHouseQueryHost)
	reg := registry.New(db.NewTokenStore(sqlDB), cfg.ShardCount)
	agents := agent.NewRegistry()
	synth := collector.NewSynthesizer(reg, connStore)

	agent.StartEvictionWorker(agents)

	handlers.InitPrometheusMetrics()
	opamp.InitMetrics()

	// OpAMP listener: unauthenticated, binary, polled by the collectors.
	opampRouter := router.New()
	opampRouter.GET("/healthz", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	})
	opampRouter.POST("/v1/opamp", opamp.Handler(agents, synth))

	go func() {
		log.Printf("opamp endpoint listening on %s", cfg.OpAMPAddr)
		if err := fasthttp.ListenAndServe(cfg.OpAMPAddr, opampRouter.Handler); err != nil {
			log.Fatalf("opamp server error: %v", err)
		}
	}()

	// Control-plane API listener.
	r := router.New()
	auth := appmw.SessionAuth(sqlDB)

	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	})

	r.POST("/signup", handlers.Signup(sqlDB, bootstrapper))
	r.POST("/login", handlers.Login(sqlDB))
	r.POST("/logout", handlers.Logout())

	r.GET("/team", auth(handlers.GetTeam(sqlDB)))

	r.GET("/ingestion-tokens", auth(handlers.ListTokens(reg)))
	r.POST("/ingestion-tokens", auth(handlers.CreateToken(reg)))
	r.POST("/ingestion-tokens/{id}/rotate", auth(handlers.RotateToken(reg)))
	r.DELETE("/ingestion-tokens/{id}", auth(handlers.RevokeToken(reg)))
	r.PATCH("/ingestion-tokens/{id}/shard", auth(handlers.AssignTokenShard(reg)))

	r.GET("/sources", auth(handlers.ListSources(sqlDB)))
	r.GET("/sources/{id}", auth(handlers.GetSource(sqlDB)))
	r.DELETE("/sources/{id}", auth(handlers.DeleteSource(sqlDB)))

	r.GET("/metrics", handlers.MetricsHandler())
	r.GET("/v1/metrics", handlers.ShardMetricsHandler(reg))

	log.Printf("control plane listening on %s (%d shard(s), provisioning=%v)", cfg.APIAddr, cfg.ShardCount, cfg.ProvisioningEnabled)
	if err := fasthttp.ListenAndServe(cfg.APIAddr, r.Handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// bootstrapProvisioner keeps the typed-nil *Provisioner out of the
// interface so the orchestrator sees provisioning as disabled.
func bootstrapProvisioner(p *provision.Provisioner) bootstrap.StorageProvisioner {
	if p == nil {
		return nil
	}
	return p
}
