package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// How often the scheduler checks whether the optimization gate opened.
	// The real cadence comes from the state row's optimization frequency;
	// early checks are no-ops.
	defaultOptimizerInterval = 15 * time.Minute

	optimizerRunTimeout = 30 * time.Second
)

// OptimizerService drives the time-gated optimization cycle from a background
// goroutine. The cycle itself lives on the coordinator so a manual trigger
// and the scheduler share one gate.
type OptimizerService struct {
	coordinator *CoordinatorService
	logger      *zap.Logger

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewOptimizerService(coordinator *CoordinatorService, logger *zap.Logger) *OptimizerService {
	return &OptimizerService{
		coordinator: coordinator,
		logger:      logger,
		interval:    defaultOptimizerInterval,
		stopCh:      make(chan struct{}),
	}
}

func (s *OptimizerService) SetInterval(d time.Duration) {
	s.interval = d
}

// Start runs the scheduler in a background goroutine until Stop.
func (s *OptimizerService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("optimization scheduler started", zap.Duration("interval", s.interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), optimizerRunTimeout)
				ran, err := s.coordinator.TriggerOptimization(ctx)
				cancel()
				if err != nil {
					s.logger.Error("optimization cycle failed", zap.Error(err))
				} else if ran {
					s.logger.Info("scheduled optimization cycle completed")
				}
			case <-s.stopCh:
				s.logger.Info("optimization scheduler stopped")
				return
			}
		}
	}()
}

// Stop signals the scheduler to exit and waits for it.
func (s *OptimizerService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}
