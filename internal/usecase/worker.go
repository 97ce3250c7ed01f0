package usecase

import (
	"context"
	"time"

	"medassess/internal/ports"
)

// Worker wires the interval driver with the pending-document analysis.
type Worker struct {
	driver    ports.Scheduler
	service   *Service
	batchSize int
}

// NewWorker returns a helper to start/stop the recurring analysis job.
func NewWorker(driver ports.Scheduler, service *Service, batchSize int) *Worker {
	return &Worker{driver: driver, service: service, batchSize: batchSize}
}

// Start registers the pending-document job with the provided scheduler.
func (w *Worker) Start(ctx context.Context) error {
	if w.driver == nil || w.service == nil {
		return nil
	}

	job := func(time.Time) {
		_ = w.service.ProcessPending(ctx, w.batchSize)
	}

	return w.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (w *Worker) Stop(ctx context.Context) error {
	if w.driver == nil {
		return nil
	}

	return w.driver.Stop(ctx)
}
