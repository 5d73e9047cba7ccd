// Package pickup consumes pickup notifications from Postgres and hands
// freshly claimed sessions to the state machine. Delivery is at-least-once;
// the conditional claim in the Store makes duplicates safe no-ops.
package pickup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/KraakeAA/CoinFlipHelper/internal/match/engine"
	"github.com/KraakeAA/CoinFlipHelper/internal/match/repository"
	"github.com/KraakeAA/CoinFlipHelper/internal/models"
)

// Store defines what the dispatcher needs from the durable store.
type Store interface {
	ClaimPending(ctx context.Context, externalGameID, claimedBy string) (*models.Session, error)
	Persist(ctx context.Context, id uuid.UUID, status models.SessionStatus, snapshot []byte) error
	FetchOverduePending(ctx context.Context, olderThan time.Duration, limit int32) ([]string, error)
}

// Starter defines what the dispatcher needs from the state machine.
type Starter interface {
	Start(ctx context.Context, sess *models.Session) error
}

// Config configures the pickup listener.
type Config struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	Channel          string        // NOTIFY channel to LISTEN on
	FallbackInterval time.Duration // How often to poll for missed notifications
	PingInterval     time.Duration
	OverdueAfter     time.Duration // Age before a pending row counts as missed
	BatchSize        int32
}

// DefaultConfig returns the default listener configuration.
func DefaultConfig() Config {
	return Config{
		Channel:          repository.PickupChannel,
		FallbackInterval: 30 * time.Second,
		PingInterval:     90 * time.Second,
		OverdueAfter:     5 * time.Second,
		BatchSize:        100,
	}
}

// Dispatcher claims pending sessions and starts them.
type Dispatcher struct {
	listener   *pq.Listener
	store      Store
	starter    Starter
	cfg        Config
	instanceID string
}

// NewDispatcher opens the LISTEN connection and subscribes to the pickup
// channel.
func NewDispatcher(store Store, starter Starter, cfg Config) (*Dispatcher, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("pickup listener event")
			}
		},
	)
	if err := l.Listen(cfg.Channel); err != nil {
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.Channel).
		Msg("listening for pickup notifications")

	return &Dispatcher{
		listener:   l,
		store:      store,
		starter:    starter,
		cfg:        cfg,
		instanceID: uuid.New().String()[:8],
	}, nil
}

// Run consumes notifications until the context is cancelled. A fallback poll
// claims pending rows whose notification was lost, and the connection is
// pinged periodically.
func (d *Dispatcher) Run(ctx context.Context) error {
	log.Info().
		Str("instance", d.instanceID).
		Dur("ping_interval", d.cfg.PingInterval).
		Dur("fallback_interval", d.cfg.FallbackInterval).
		Msg("pickup dispatcher started")

	pingTicker := time.NewTicker(d.cfg.PingInterval)
	fallbackTicker := time.NewTicker(d.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("instance", d.instanceID).Msg("pickup dispatcher shutting down")
			return d.Stop()
		case note := <-d.listener.Notify:
			if note == nil {
				// nil notification means the connection was lost and re-established
				continue
			}
			d.handlePickup(ctx, note.Extra)
		case <-fallbackTicker.C:
			if err := d.claimOverdue(ctx); err != nil {
				log.Error().Err(err).Msg("failed to claim overdue pending sessions")
			}
		case <-pingTicker.C:
			if err := d.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping pickup listener")
			}
		}
	}
}

// Stop closes the LISTEN connection.
func (d *Dispatcher) Stop() error {
	return d.listener.Close()
}

// handlePickup claims exactly one pending row for externalGameID and starts
// it. Zero matching rows — already claimed, or an unknown id — is a silent
// no-op. Setup failure after a successful claim is reported to the store;
// there is no retry.
func (d *Dispatcher) handlePickup(ctx context.Context, externalGameID string) {
	sess, err := d.store.ClaimPending(ctx, externalGameID, d.instanceID)
	if err != nil {
		log.Error().
			Err(err).
			Str("external_game_id", externalGameID).
			Msg("failed to claim pending session")
		return
	}
	if sess == nil {
		log.Debug().
			Str("external_game_id", externalGameID).
			Msg("no pending session to claim")
		return
	}

	log.Info().
		Str("session_id", sess.ID.String()).
		Str("external_game_id", externalGameID).
		Str("instance", d.instanceID).
		Msg("claimed pending session")

	if err := d.starter.Start(ctx, sess); err != nil {
		log.Error().
			Err(err).
			Str("session_id", sess.ID.String()).
			Msg("failed to start claimed session")
		if !errors.Is(err, engine.ErrPresentationFailed) {
			// Presentation failures are already finalized by the engine;
			// anything else is recorded here so the row never sticks at
			// in_progress.
			if perr := d.store.Persist(ctx, sess.ID, models.StatusCompletedError, nil); perr != nil {
				log.Error().Err(perr).Str("session_id", sess.ID.String()).Msg("failed to record setup error")
			}
		}
	}
}

// claimOverdue sweeps pending rows whose notification was missed and runs
// them through the normal claim path.
func (d *Dispatcher) claimOverdue(ctx context.Context) error {
	ids, err := d.store.FetchOverduePending(ctx, d.cfg.OverdueAfter, d.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, id := range ids {
		d.handlePickup(ctx, id)
	}
	return nil
}
