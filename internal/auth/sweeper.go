package auth

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"tours-backend/internal/store"
)

// Sweeper periodically expires stale invitations and deletes expired
// refresh tokens.
type Sweeper struct {
	store     *store.Store
	invites   *Invites
	interval  time.Duration
	scheduler gocron.Scheduler
}

func NewSweeper(s *store.Store, invites *Invites, interval time.Duration) *Sweeper {
	return &Sweeper{store: s, invites: invites, interval: interval}
}

// Start schedules the sweep on the configured interval.
func (sw *Sweeper) Start() error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(sw.interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			sw.Sweep(ctx) //nolint:errcheck
		}),
		gocron.WithName("auth-maintenance"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	sched.Start()
	sw.scheduler = sched
	log.Printf("Maintenance sweeper started (%s interval)", sw.interval)
	return nil
}

// Stop shuts the scheduler down, waiting for a running sweep.
func (sw *Sweeper) Stop() {
	if sw.scheduler == nil {
		return
	}
	if err := sw.scheduler.Shutdown(); err != nil {
		log.Printf("WARN: maintenance sweeper shutdown: %v", err)
	}
}

// Sweep runs one maintenance pass.
func (sw *Sweeper) Sweep(ctx context.Context) (expired, tokens int64, err error) {
	expired, err = sw.invites.ExpirePending(ctx)
	if err != nil {
		log.Printf("ERROR: maintenance sweep: %v", err)
		return 0, 0, err
	}

	pb := sw.store.Dialect.NewParamBuilder()
	tokens, err = store.Exec(ctx, sw.store.DB,
		"DELETE FROM _refresh_tokens WHERE expires_at <= "+pb.Add(sw.store.Dialect.TimeParam(sw.invites.now())), pb.Params()...)
	if err != nil {
		log.Printf("ERROR: maintenance sweep: delete refresh tokens: %v", err)
		return expired, 0, err
	}

	if expired > 0 || tokens > 0 {
		log.Printf("Maintenance sweep: %d invitations expired, %d refresh tokens deleted", expired, tokens)
	}
	return expired, tokens, nil
}
