// Package scheduler runs periodic housekeeping on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// RetainMonths is how many past months of usage counters are kept.
const RetainMonths = 3

// Pruner deletes usage rows older than the cutoff month.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

type Scheduler struct {
	cron     *cron.Cron
	schedule string
	pruner   Pruner
	now      func() time.Time
}

func New(schedule string, pruner Pruner) *Scheduler {
	c := cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(log.Default()))))
	return &Scheduler{cron: c, schedule: schedule, pruner: pruner, now: time.Now}
}

func (s *Scheduler) Start() error {
	if s.pruner == nil {
		log.Println("level=info component=scheduler msg=\"no usage pruner configured; housekeeping idle\"")
		return nil
	}
	if _, err := s.cron.AddFunc(s.schedule, s.PruneUsage); err != nil {
		return fmt.Errorf("schedule usage prune %q: %w", s.schedule, err)
	}
	s.cron.Start()
	log.Printf("level=info component=scheduler msg=\"housekeeping started\" schedule=%q", s.schedule)
	return nil
}

// Stop halts the cron and returns a context that is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Cutoff is the first day of the oldest retained month.
func Cutoff(now time.Time) time.Time {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start.AddDate(0, -(RetainMonths - 1), 0)
}

func (s *Scheduler) PruneUsage() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	cutoff := Cutoff(s.now())
	n, err := s.pruner.Prune(ctx, cutoff)
	if err != nil {
		log.Printf("level=error component=scheduler msg=\"usage prune failed\" err=%v", err)
		return
	}
	log.Printf("level=info component=scheduler msg=\"usage pruned\" cutoff=%s rows=%d", cutoff.Format("2006-01-02"), n)
}
