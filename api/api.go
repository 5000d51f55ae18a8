// Package api exposes a vault session and the portfolio records over HTTP.
package api

import (
	"context"
	_ "embed"
	"log/slog"
	"net/http"
	"net/netip"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"
	"golang.org/x/time/rate"

	"github.com/0xn1ku/nexusvault/storage"
	"github.com/0xn1ku/nexusvault/vault"
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	session        *vault.Session
	data           *storage.DataAccess
	limiter        *unlockLimiter
	audit          *auditLogger
	log            *slog.Logger
	trustedProxies []netip.Prefix
	maxBodyBytes   int64

	alertFn     AlertFunc
	webhookURL  string
	webhookAuth string
	unlockLimit rate.Limit
	unlockBurst int
}

//go:embed openapi.yaml
var openapiDoc []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for request and audit events.
// If not set, a JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.log = logger
	}
}

// WithTrustedProxies lists the peers whose forwarding headers name the
// client address. By default no proxy headers are trusted.
func WithTrustedProxies(prefixes ...netip.Prefix) Option {
	return func(a *API) {
		a.trustedProxies = prefixes
	}
}

// WithUnlockRate sets the per-client unlock attempt rate and burst.
func WithUnlockRate(limit rate.Limit, burst int) Option {
	return func(a *API) {
		a.unlockLimit = limit
		a.unlockBurst = burst
	}
}

// WithAlertFunc registers a callback for unlock failure spikes and bulk
// reveals.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		a.alertFn = fn
	}
}

// WithAuditWebhook forwards every audit event to url. authHeader, if set,
// is a "Header: value" pair added to each request.
func WithAuditWebhook(url, authHeader string) Option {
	return func(a *API) {
		a.webhookURL = url
		a.webhookAuth = authHeader
	}
}

// New creates a new API instance around one vault session and the record
// collections.
func New(session *vault.Session, data *storage.DataAccess, opts ...Option) *API {
	a := &API{
		session:      session,
		data:         data,
		maxBodyBytes: defaultMaxBodyBytes,
		unlockLimit:  defaultUnlockRate,
		unlockBurst:  defaultUnlockBurst,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.data == nil {
		a.data = storage.NewDataAccess(nil)
	}
	if a.log == nil {
		a.log = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	a.limiter = newUnlockLimiter(a.unlockLimit, a.unlockBurst)
	a.audit = newAuditLogger(a.log)
	if a.alertFn != nil {
		a.audit.metrics = newMetricsCollector(a.alertFn)
	}
	if a.webhookURL != "" {
		a.audit.webhook = newAuditWebhook(a.webhookURL, a.webhookAuth, a.log)
	}
	return a
}

// Close flushes pending audit webhook deliveries.
func (a *API) Close() {
	if a.audit != nil && a.audit.webhook != nil {
		a.audit.webhook.close()
	}
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(SecurityHeaders)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiDoc)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Route("/vault", func(r chi.Router) {
		r.Use(a.limitBody)
		r.Get("/", a.VaultStatus)
		r.Post("/unlock", a.Unlock)
		r.Post("/lock", a.Lock)
		r.Get("/secrets", a.ListSecrets)
		r.Post("/secrets/{id}/reveal", a.RevealSecret)
		r.Delete("/secrets/{id}/reveal", a.HideSecret)
	})

	r.Route("/records/{collection}", func(r chi.Router) {
		r.Get("/", a.ListRecords)
		r.Get("/{id}", a.GetRecord)
		r.With(a.requireUnlocked).Delete("/{id}", a.DeleteRecord)
	})

	return r
}

// refreshRecords tracks the stored secret records on the session so they
// can be revealed. Store failures are logged; the bundle stays usable.
func (a *API) refreshRecords(ctx context.Context) {
	if !a.data.Configured() {
		return
	}
	secrets, err := a.data.Secrets.List(ctx)
	if err != nil {
		a.log.WarnContext(ctx, "listing secret records failed", "error", err)
		return
	}
	a.session.Track(secrets...)
}
