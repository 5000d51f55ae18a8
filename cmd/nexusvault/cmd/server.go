package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/0xn1ku/nexusvault/api"
	"github.com/0xn1ku/nexusvault/storage"
	"github.com/0xn1ku/nexusvault/storage/driver"
	"github.com/0xn1ku/nexusvault/vault"
)

type serverFlags struct {
	tlsCert        string
	tlsKey         string
	trustedProxies []string
	webhookURL     string
	webhookAuth    string
}

func newServerCmd(c *cli) *cobra.Command {
	var f serverFlags
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Serve the vault and record API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServer(cmd, c, f)
		},
	}
	flags := cmd.Flags()
	flags.String("listen", "", "address to listen on (default :8080)")
	_ = c.v.BindPFlag("server.listen_addr", flags.Lookup("listen"))
	flags.StringVar(&f.tlsCert, "tls-cert", "", "path to TLS certificate file")
	flags.StringVar(&f.tlsKey, "tls-key", "", "path to TLS key file")
	flags.StringSliceVar(&f.trustedProxies, "trusted-proxy", nil, "CIDR or address whose forwarding headers are trusted (repeatable)")
	flags.StringVar(&f.webhookURL, "audit-webhook-url", "", "POST audit events to this URL")
	flags.StringVar(&f.webhookAuth, "audit-webhook-auth", "", `header for audit webhook requests, e.g. "Authorization: Bearer t"`)
	return cmd
}

func runServer(cmd *cobra.Command, c *cli, f serverFlags) error {
	if (f.tlsCert == "") != (f.tlsKey == "") {
		return errors.New("--tls-cert and --tls-key must be given together")
	}
	proxies, err := parseTrustedProxies(f.trustedProxies)
	if err != nil {
		return err
	}
	cfg, log, err := c.load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := driver.Open(ctx, driver.Config{
		URL:      cfg.Store.URL,
		Key:      cfg.Store.Key,
		Database: cfg.Store.Database,
	}, log)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	data := storage.NewDataAccess(backend)
	defer data.Close()

	p, err := loadPayload(ctx, cfg)
	if err != nil {
		return err
	}
	if p.Expired(time.Now()) {
		log.Warn("payload already expired; every unlock will be denied", "expires_at", p.ExpiresAt)
	}
	session := vault.NewSession(nil, p, vault.WithLogger(log))
	defer session.Lock()

	opts := []api.Option{
		api.WithLogger(log),
		api.WithTrustedProxies(proxies...),
		api.WithAlertFunc(func(e api.AlertEvent) {
			log.Warn("security alert", "type", e.Type, "count", e.Count, "threshold", e.Threshold)
		}),
	}
	if f.webhookURL != "" {
		opts = append(opts, api.WithAuditWebhook(f.webhookURL, f.webhookAuth))
	}
	a := api.New(session, data, opts...)
	defer a.Close()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Mount("/api/v1", a.Router())

	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           r,
		ErrorLog:          slog.NewLogLogger(log.Handler(), slog.LevelError),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	done := make(chan error, 1)
	go func() {
		var err error
		if f.tlsCert != "" {
			err = server.ListenAndServeTLS(f.tlsCert, f.tlsKey)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			done <- fmt.Errorf("server failed: %w", err)
			return
		}
		done <- nil
	}()

	printBanner(cmd.OutOrStdout())
	log.Info("server started",
		"addr", cfg.Server.ListenAddr,
		"tls", f.tlsCert != "",
		"store", backend.Name(),
		"payload_expires_at", p.ExpiresAt,
	)

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-done:
		return err
	}
}

// parseTrustedProxies accepts CIDRs and bare addresses, which become
// single-host prefixes.
func parseTrustedProxies(values []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(values))
	for _, raw := range values {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}
