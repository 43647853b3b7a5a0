package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"campusconnect/api/internal/auth"
	"campusconnect/api/internal/config"
	"campusconnect/api/internal/search"
)

type pinger interface {
	Ping(context.Context) error
}

// indexAdmin is the operator surface of the search engine.
type indexAdmin interface {
	Ping(context.Context) error
	Host() string
	Initialize(context.Context) error
	Stats(context.Context) (search.IndexStats, error)
	Task(context.Context, int64) (search.TaskStatus, error)
	ClearIndex(context.Context) error
}

type indexSyncer interface {
	SyncAll(context.Context) (search.SyncResult, error)
	ApplyEvent(context.Context, search.ChangeEvent) error
}

type Service struct {
	cfg      config.Config
	db       pinger
	engine   indexAdmin
	syncer   indexSyncer
	searcher search.Searcher
}

// New wires the service. engine may be nil when no search engine is
// configured; searches then go to the fallback alone.
func New(cfg config.Config, db pinger, engine indexAdmin, syncer indexSyncer, searcher search.Searcher) *Service {
	return &Service{
		cfg:      cfg,
		db:       db,
		engine:   engine,
		syncer:   syncer,
		searcher: searcher,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	if s.db == nil {
		return errors.New("database not configured")
	}
	return s.db.Ping(ctx)
}

// PingEngine checks the search engine; nil engines report errSearchDisabled.
func (s *Service) PingEngine(ctx context.Context) error {
	if s.engine == nil {
		return errSearchDisabled
	}
	return s.engine.Ping(ctx)
}

// AuthorizeAdmin checks an operator token. With no admin token configured
// every caller is allowed.
func (s *Service) AuthorizeAdmin(token string) error {
	if s.cfg.AdminToken == "" {
		return nil
	}
	if !auth.TokenEqual(token, s.cfg.AdminToken) {
		return errUnauthorized
	}
	return nil
}

// ProcessWebhook authenticates a change notification against the raw
// payload and applies it. Stale events are acknowledged without effect so
// the notifier does not redeliver them.
func (s *Service) ProcessWebhook(ctx context.Context, payload []byte, authorization string) (string, error) {
	if err := auth.RequireSecret(s.cfg.WebhookSecret); err != nil {
		return "", errWebhookUnavailable
	}
	signature, ok := auth.BearerToken(authorization)
	if !ok || !auth.Verify(payload, signature, s.cfg.WebhookSecret) {
		log.Printf("webhook: rejected notification with invalid signature")
		return "", errInvalidSignature
	}

	var event search.ChangeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return "", invalidPayload(err)
	}

	if err := s.syncer.ApplyEvent(ctx, event); err != nil {
		if errors.Is(err, search.ErrStaleEvent) {
			log.Printf("webhook: %v", err)
			return fmt.Sprintf("Ignored stale %s event", event.Type), nil
		}
		log.Printf("webhook: apply %s event: %v", event.Type, err)
		return "", err
	}
	return fmt.Sprintf("Processed %s event", event.Type), nil
}

func (s *Service) Search(ctx context.Context, q search.Query) (search.Results, error) {
	return s.searcher.Search(ctx, q)
}

// SyncNow configures the index and pushes every public note. A settings
// failure is logged and does not block the push.
func (s *Service) SyncNow(ctx context.Context) (search.SyncResult, error) {
	if err := s.PingEngine(ctx); err != nil {
		return search.SyncResult{}, err
	}
	if err := s.engine.Initialize(ctx); err != nil {
		log.Printf("sync: index settings incomplete: %v", err)
	}
	result, err := s.syncer.SyncAll(ctx)
	if err != nil {
		log.Printf("sync: full sync failed: %v", err)
		return search.SyncResult{}, err
	}
	return result, nil
}

// SyncStatus reports engine health and address.
func (s *Service) SyncStatus(ctx context.Context) (healthy bool, host string) {
	if s.engine == nil {
		return false, ""
	}
	return s.engine.Ping(ctx) == nil, s.engine.Host()
}

func (s *Service) IndexStats(ctx context.Context) (search.IndexStats, error) {
	if s.engine == nil {
		return search.IndexStats{}, errSearchDisabled
	}
	return s.engine.Stats(ctx)
}

func (s *Service) Task(ctx context.Context, uid int64) (search.TaskStatus, error) {
	if s.engine == nil {
		return search.TaskStatus{}, errSearchDisabled
	}
	return s.engine.Task(ctx, uid)
}

// ClearIndex drops and recreates the notes index. Searches return nothing
// until the next full sync.
func (s *Service) ClearIndex(ctx context.Context) error {
	if s.engine == nil {
		return errSearchDisabled
	}
	if err := s.engine.ClearIndex(ctx); err != nil {
		return err
	}
	log.Printf("sync: notes index cleared")
	return nil
}
