package storage

import (
	"context"
	"encoding/json"
	"time"
)

// Unconfigured is the degraded backend used when no store credentials are
// present. Reads are empty, everything else is ErrNotConfigured.
type Unconfigured struct{}

var _ Backend = Unconfigured{}

// IsUnconfigured reports whether b is the degraded backend.
func IsUnconfigured(b Backend) bool {
	switch b.(type) {
	case Unconfigured, *Unconfigured:
		return true
	}
	return false
}

func (Unconfigured) Name() string { return "unconfigured" }

func (Unconfigured) List(context.Context, string, Query) ([]Document, error) {
	return []Document{}, nil
}

func (Unconfigured) Get(context.Context, string, string) (Document, error) {
	return Document{}, ErrNotConfigured
}

func (Unconfigured) Insert(context.Context, string, Document) (Document, error) {
	return Document{}, ErrNotConfigured
}

func (Unconfigured) Update(context.Context, string, string, map[string]json.RawMessage, time.Time) (Document, error) {
	return Document{}, ErrNotConfigured
}

func (Unconfigured) Delete(context.Context, string, string) error {
	return ErrNotConfigured
}

func (Unconfigured) Close() error { return nil }
