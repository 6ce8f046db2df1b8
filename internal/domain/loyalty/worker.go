package loyalty

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Expirer runs one expiry sweep
type Expirer interface {
	ExpireDue(ctx context.Context) (ExpirySummary, error)
}

// Worker runs the points expiry sweep on a ticker
type Worker struct {
	expirer  Expirer
	interval time.Duration
	timeout  time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewWorker creates a new expiry worker
func NewWorker(expirer Expirer, interval time.Duration) *Worker {
	if interval == 0 {
		interval = 24 * time.Hour
	}
	return &Worker{
		expirer:  expirer,
		interval: interval,
		timeout:  10 * time.Minute,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background worker
func (w *Worker) Start() {
	log.Info().Dur("interval", w.interval).Msg("Starting points expiry worker...")
	w.wg.Add(1)
	go w.loop()
}

// Stop stops the worker and waits for a running sweep to finish
func (w *Worker) Stop() {
	log.Info().Msg("Stopping points expiry worker...")
	close(w.stopCh)
	w.wg.Wait()
}

func (w *Worker) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run once immediately on startup
	w.sweep()

	for {
		select {
		case <-ticker.C:
			w.sweep()
		case <-w.stopCh:
			return
		}
	}
}

func (w *Worker) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	go func() {
		select {
		case <-w.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	log.Debug().Msg("Starting points expiry sweep...")
	if _, err := w.expirer.ExpireDue(ctx); err != nil {
		log.Error().Err(err).Msg("Points expiry sweep failed")
		return
	}
	log.Debug().Msg("Finished points expiry sweep")
}
