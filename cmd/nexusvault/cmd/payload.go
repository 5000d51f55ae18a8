package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/0xn1ku/nexusvault/internal/config"
	"github.com/0xn1ku/nexusvault/payload"
)

var errNoPayload = errors.New("no payload configured; set NEXUS_PAYLOAD or pass --payload")

// loadPayload fetches and decodes the configured sealed payload.
func loadPayload(ctx context.Context, cfg *config.Config) (payload.Payload, error) {
	if cfg.Payload.Location == "" {
		return payload.Payload{}, errNoPayload
	}
	src, err := payload.OpenSource(ctx, cfg.Payload.Location, payload.S3Options{
		Region:   cfg.Payload.S3Region,
		Endpoint: cfg.Payload.S3Endpoint,
	})
	if err != nil {
		return payload.Payload{}, err
	}
	raw, err := src.Load(ctx)
	if err != nil {
		return payload.Payload{}, fmt.Errorf("loading payload: %w", err)
	}
	return payload.Parse(raw, []byte(cfg.Payload.TokenKey))
}
