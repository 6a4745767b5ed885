// Package scheduler periodically drains the scene batch spool.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// Job is one scheduled pass. It receives the controller's context.
type Job func(ctx context.Context) error

// Controller runs a Job every interval until its context is cancelled.
// Passes never overlap: a pass still running when the next one is due
// delays it.
type Controller struct {
	ctx       context.Context
	wg        *sync.WaitGroup
	interval  time.Duration
	job       Job
	scheduler *gocron.Scheduler
	logger    *zap.SugaredLogger
}

// NewController creates a new scheduler controller
func NewController(ctx context.Context, wg *sync.WaitGroup, interval time.Duration, job Job, logger *zap.SugaredLogger) (*Controller, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("scheduler interval must be positive, got %s", interval)
	}
	return &Controller{
		ctx:       ctx,
		wg:        wg,
		interval:  interval,
		job:       job,
		scheduler: gocron.NewScheduler(time.UTC),
		logger:    logger,
	}, nil
}

// StartController schedules the job and returns. The first pass runs
// immediately.
func (c *Controller) StartController() error {
	c.logger.Infof("Starting scheduler with interval %v", c.interval)

	_, err := c.scheduler.Every(c.interval).SingletonMode().Do(func() {
		if c.ctx.Err() != nil {
			return
		}
		if err := c.job(c.ctx); err != nil {
			c.logger.Errorf("scheduled pass failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("error scheduling job: %w", err)
	}

	c.scheduler.StartAsync()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		<-c.ctx.Done()
		c.scheduler.Stop()
		c.logger.Info("Scheduler stopped")
	}()

	return nil
}
