// Package cloudvm_api is the VM management API served by the cloudvm engine: account
// registration and login, and per-user CRUD over virtual machine records.
package cloudvm_api

import (
	"context"
	"log/slog"
	"time"

	"github.com/jacksonzamorano/cloudvm"
	"github.com/jacksonzamorano/cloudvm/cloudvm-cache"
	"github.com/jacksonzamorano/cloudvm/cloudvm-db"
	"github.com/jacksonzamorano/cloudvm/cloudvm-exchange"
	"github.com/jacksonzamorano/cloudvm/cloudvm-metrics"
)

const (
	UsersCollection = "users"
	VmsCollection   = "vms"
)

// CorsOptions are the CORS headers set on every response.
type CorsOptions struct {
	Origin  string
	Headers string
	Methods string
}

func DefaultCorsOptions() CorsOptions {
	return CorsOptions{
		Origin:  "*",
		Headers: "Content-Type, Authorization",
		Methods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
	}
}

// Api holds the collaborators every handler needs. Store, Issuer and Hasher are required;
// a nil Cache disables read caching and a nil Metrics leaves /metrics unregistered.
type Api struct {
	Store    cloudvm_db.DocumentStore
	Issuer   *cloudvm_exchange.TokenIssuer
	Hasher   *cloudvm_exchange.PasswordHasher
	Cache    cloudvm_cache.Cache
	CacheTTL time.Duration
	Metrics  *cloudvm_metrics.Collector
	Cors     CorsOptions
	Logger   *slog.Logger

	now func() time.Time
}

func NewApi(store cloudvm_db.DocumentStore, issuer *cloudvm_exchange.TokenIssuer, hasher *cloudvm_exchange.PasswordHasher) *Api {
	return &Api{
		Store:  store,
		Issuer: issuer,
		Hasher: hasher,
		Cors:   DefaultCorsOptions(),
		Logger: slog.Default(),
		now:    time.Now,
	}
}

// Register prepares the store and mounts middleware and routes on router.
func (api *Api) Register(ctx context.Context, router *cloudvm.Router) error {
	if err := api.Store.EnsureUnique(ctx, UsersCollection, "email"); err != nil {
		return err
	}

	router.AddGlobalMiddleware(api.RequestIdMiddleware)
	router.AddGlobalMiddleware(api.CorsMiddleware)
	router.AddGlobalMiddleware(api.AuthMiddleware)

	router.RegisterRoute(cloudvm.Get, "/health", api.Health)
	if api.Metrics != nil {
		router.RegisterRoute(cloudvm.Get, "/metrics", api.Metrics.Handler)
	}
	router.AddRouteGroup("/api/auth", cloudvm.NewRouteGroup(
		cloudvm.PostRoute("/login", api.Login),
		cloudvm.PostRoute("/register", api.RegisterUser),
		cloudvm.GetRoute("/me", api.Me),
	))
	router.AddRouteGroup("/api/vms", cloudvm.NewRouteGroup(
		cloudvm.GetRoute("", api.ListVms),
		cloudvm.GetRoute("/:id", api.GetVm),
		cloudvm.PostRoute("", api.CreateVm),
		cloudvm.PatchRoute("/:id", api.UpdateVm),
		cloudvm.DeleteRoute("/:id", api.DeleteVm),
	))
	return nil
}

func (api *Api) Health(req *cloudvm.HttpRequest, res *cloudvm.HttpResponse) error {
	database := "ok"
	if err := api.Store.Ping(req.Ctx()); err != nil {
		api.Logger.Warn("health check: store unreachable", "error", err)
		database = "unavailable"
	}
	return res.SetJson(cloudvm.StatusOK, map[string]any{
		"status":    "ok",
		"service":   "CloudVM Backend",
		"timestamp": api.now().Unix(),
		"database":  database,
	})
}
