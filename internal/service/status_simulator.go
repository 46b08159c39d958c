package service

import (
	"time"

	"chatline/internal/constants"
	"chatline/internal/metrics"
	"chatline/internal/models"
	"chatline/internal/scheduler"
	"chatline/internal/store"

	"github.com/sirupsen/logrus"
)

type statusStep struct {
	status models.DeliveryStatus
	offset time.Duration
}

// StatusSimulator advances locally sent messages through Sent, Delivered and Read.
// The broker never acknowledges delivery, so progress is driven by timers measured from
// the publish. It must be used from the timeline.
type StatusSimulator struct {
	scheduler scheduler.Scheduler
	store     *store.Store
	registry  *metrics.Registry
	logger    *logrus.Logger
	steps     []statusStep
	pending   map[int64][]scheduler.CancelFunc
}

// NewStatusSimulator creates a simulator. Zero offsets fall back to the defaults.
func NewStatusSimulator(sched scheduler.Scheduler, st *store.Store, config models.StatusConfig, registry *metrics.Registry, logger *logrus.Logger) *StatusSimulator {
	if config.SentDelayMs <= 0 {
		config.SentDelayMs = constants.DefaultStatusSentDelayMs
	}
	if config.DeliveredDelayMs <= 0 {
		config.DeliveredDelayMs = constants.DefaultStatusDeliveredDelayMs
	}
	if config.ReadDelayMs <= 0 {
		config.ReadDelayMs = constants.DefaultStatusReadDelayMs
	}
	if registry == nil {
		registry = metrics.GetRegistry()
	}

	return &StatusSimulator{
		scheduler: sched,
		store:     st,
		registry:  registry,
		logger:    logger,
		steps: []statusStep{
			{status: models.StatusSent, offset: time.Duration(config.SentDelayMs) * time.Millisecond},
			{status: models.StatusDelivered, offset: time.Duration(config.DeliveredDelayMs) * time.Millisecond},
			{status: models.StatusRead, offset: time.Duration(config.ReadDelayMs) * time.Millisecond},
		},
		pending: make(map[int64][]scheduler.CancelFunc),
	}
}

// Track schedules the status progression for a message that was just published
func (s *StatusSimulator) Track(id int64) {
	s.Cancel(id)

	cancels := make([]scheduler.CancelFunc, 0, len(s.steps))
	for i, step := range s.steps {
		step := step
		last := i == len(s.steps)-1
		cancels = append(cancels, s.scheduler.After(step.offset, func() {
			s.advance(id, step.status)
			if last {
				delete(s.pending, id)
			}
		}))
	}
	s.pending[id] = cancels
}

func (s *StatusSimulator) advance(id int64, next models.DeliveryStatus) {
	if !s.store.AdvanceStatus(id, next) {
		// message deleted or already past this status
		return
	}
	s.registry.IncrementCounter(metrics.StatusTransitions, map[string]string{"status": next.String()}, "Simulated delivery status transitions")
	s.logger.WithFields(logrus.Fields{
		LogFieldMessageID: id,
		LogFieldStatus:    next.String(),
	}).Debug("Advanced delivery status")
}

// Cancel drops any pending steps for a message
func (s *StatusSimulator) Cancel(id int64) {
	for _, cancel := range s.pending[id] {
		cancel()
	}
	delete(s.pending, id)
}

// Stop cancels every pending step
func (s *StatusSimulator) Stop() {
	for id := range s.pending {
		s.Cancel(id)
	}
}

// Pending returns how many messages still have steps scheduled
func (s *StatusSimulator) Pending() int {
	return len(s.pending)
}
