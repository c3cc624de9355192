package app

import (
	"errors"

	"orderchat/pkg/events"
	"orderchat/pkg/storage"
	"orderchat/pkg/store"
	"orderchat/pkg/token"
)

// Config wires the application's collaborators. Events and Archive are
// optional; when nil the corresponding side effects are skipped.
type Config struct {
	Store   store.Store
	Tokens  *token.Service
	Events  events.Publisher
	Archive storage.ObjectStore
}

// App is the core application service: credentials, orders, and chat.
type App struct {
	store   store.Store
	tokens  *token.Service
	events  events.Publisher
	archive storage.ObjectStore
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token service required")
	}
	return &App{
		store:   cfg.Store,
		tokens:  cfg.Tokens,
		events:  cfg.Events,
		archive: cfg.Archive,
	}, nil
}
