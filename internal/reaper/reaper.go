// Package reaper closes idle anonymous sessions on a timer.
package reaper

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/TheInfexted/livechat-cs-sub000/internal/metrics"
	"github.com/TheInfexted/livechat-cs-sub000/internal/models"
	"github.com/TheInfexted/livechat-cs-sub000/internal/store"
	"github.com/TheInfexted/livechat-cs-sub000/internal/tenant"
	"github.com/TheInfexted/livechat-cs-sub000/internal/ws"
)

// Reaper periodically sweeps the session store for anonymous sessions that
// waited too long or went silent, closes them, and notifies any connections
// still attached. Authenticated sessions are categorically out of reach:
// excluded in the query and re-checked in process before any write.
type Reaper struct {
	sessions store.SessionStore
	messages store.MessageLog
	resolver *tenant.Resolver
	registry *ws.Registry
	logger   zerolog.Logger

	interval       time.Duration
	waitingTimeout time.Duration
	activeTimeout  time.Duration

	cron *cron.Cron
}

// New creates a reaper with the given sweep policy.
func New(sessions store.SessionStore, messages store.MessageLog, resolver *tenant.Resolver, registry *ws.Registry, interval, waitingTimeout, activeTimeout time.Duration, logger zerolog.Logger) *Reaper {
	return &Reaper{
		sessions:       sessions,
		messages:       messages,
		resolver:       resolver,
		registry:       registry,
		logger:         logger.With().Str("component", "reaper").Logger(),
		interval:       interval,
		waitingTimeout: waitingTimeout,
		activeTimeout:  activeTimeout,
	}
}

// Start runs one sweep immediately, then schedules sweeps at the configured
// interval.
func (r *Reaper) Start(ctx context.Context) error {
	if n, err := r.Sweep(ctx); err != nil {
		r.logger.Error().Err(err).Msg("startup sweep failed")
	} else if n > 0 {
		r.logger.Info().Int("closed", n).Msg("startup sweep closed idle sessions")
	}

	r.cron = cron.New()
	_, err := r.cron.AddFunc("@every "+r.interval.String(), func() {
		if n, err := r.Sweep(context.Background()); err != nil {
			r.logger.Error().Err(err).Msg("sweep failed")
		} else if n > 0 {
			r.logger.Info().Int("closed", n).Msg("sweep closed idle sessions")
		}
	})
	if err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop halts the schedule. A sweep already in flight finishes.
func (r *Reaper) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// Sweep closes every qualifying idle anonymous session and returns how many
// it closed. Failures on one session never stop the rest of the sweep.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	now := time.Now()
	waitingBefore := now.Add(-r.waitingTimeout)
	activeBefore := now.Add(-r.activeTimeout)

	idle, err := r.sessions.FindIdleAnonymous(ctx, waitingBefore, activeBefore)
	if err != nil {
		return 0, err
	}

	closed := 0
	for i := range idle {
		session := &idle[i]

		// The query already filtered on role; re-assert it anyway. A
		// session that fails this check is skipped, never closed.
		if session.Role != models.RoleAnonymous {
			r.logger.Warn().Str("token", session.Token).Str("role", session.Role).Msg("non-anonymous session in reap set, skipping")
			continue
		}

		if err := r.sessions.SetSessionStatus(ctx, session.Token, models.SessionClosed); err != nil {
			r.logger.Error().Err(err).Str("token", session.Token).Msg("close failed")
			continue
		}

		msg := &models.Message{
			Token:      session.Token,
			Sender:     models.SenderSystem,
			SenderName: "System",
			Body:       "Chat closed due to inactivity",
			Kind:       models.MessageSystem,
		}
		partition := r.resolver.Resolve(ctx, session).Partition
		if _, err := r.messages.Append(ctx, partition, msg); err != nil {
			r.logger.Error().Err(err).Str("token", session.Token).Msg("closure message persist failed")
		}

		if r.registry.Has(session.Token) {
			r.registry.Broadcast(session.Token, ws.SessionClosedFrame(session.Token, ws.CloseReasonTimeout))
			r.registry.Drop(session.Token)
		}

		metrics.SessionsReaped.Inc()
		closed++
	}

	return closed, nil
}
