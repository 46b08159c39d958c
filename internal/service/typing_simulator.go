package service

import (
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"chatline/internal/constants"
	"chatline/internal/metrics"
	"chatline/internal/models"
	"chatline/internal/privacy"
	"chatline/internal/scheduler"

	"github.com/sirupsen/logrus"
)

// TypingSimulator periodically shows one other participant as typing.
// It runs independently of the connection state. Apart from Typing and Roster, methods
// must be called from the timeline.
type TypingSimulator struct {
	scheduler   scheduler.Scheduler
	rng         *rand.Rand
	registry    *metrics.Registry
	logger      *logrus.Logger
	self        string
	interval    time.Duration
	display     time.Duration
	probability float64

	running     bool
	enabled     bool
	tickCancel  scheduler.CancelFunc
	clearCancel scheduler.CancelFunc
	listeners   []func(typing string)

	mu     sync.RWMutex
	roster []string
	typing string
}

// NewTypingSimulator creates a simulator for the given roster. rng may be nil, in which case
// a randomly seeded source is used.
func NewTypingSimulator(
	sched scheduler.Scheduler,
	config models.TypingConfig,
	participants []string,
	self string,
	rng *rand.Rand,
	registry *metrics.Registry,
	logger *logrus.Logger,
) *TypingSimulator {
	if config.IntervalMs <= 0 {
		config.IntervalMs = constants.DefaultTypingIntervalMs
	}
	if config.DisplayMs <= 0 {
		config.DisplayMs = constants.DefaultTypingDisplayMs
	}
	if config.Probability < 0 || config.Probability > 1 {
		config.Probability = constants.DefaultTypingProbability
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if registry == nil {
		registry = metrics.GetRegistry()
	}

	ts := &TypingSimulator{
		scheduler:   sched,
		rng:         rng,
		registry:    registry,
		logger:      logger,
		self:        self,
		interval:    time.Duration(config.IntervalMs) * time.Millisecond,
		display:     time.Duration(config.DisplayMs) * time.Millisecond,
		probability: config.Probability,
		enabled:     config.IsEnabled(),
	}
	for _, p := range participants {
		ts.addLocked(p)
	}
	return ts
}

// Start begins ticking. Calling Start twice is a no-op.
func (ts *TypingSimulator) Start() {
	if ts.running {
		return
	}
	ts.running = true
	ts.scheduleTick()
}

// Stop cancels the ticker and clears any indicator
func (ts *TypingSimulator) Stop() {
	ts.running = false
	if ts.tickCancel != nil {
		ts.tickCancel()
		ts.tickCancel = nil
	}
	ts.clear()
}

// SetEnabled toggles the simulation without stopping the ticker
func (ts *TypingSimulator) SetEnabled(enabled bool) {
	if ts.enabled == enabled {
		return
	}
	ts.enabled = enabled
	ts.logger.WithField("enabled", enabled).Info("Typing simulation toggled")
	if !enabled {
		ts.clear()
	}
}

// OnChange registers a listener called with the typing participant, or "" when cleared
func (ts *TypingSimulator) OnChange(fn func(typing string)) {
	ts.listeners = append(ts.listeners, fn)
}

// Typing returns the participant currently shown as typing, or ""
func (ts *TypingSimulator) Typing() string {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.typing
}

// Roster returns the known participants in join order
func (ts *TypingSimulator) Roster() []string {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return slices.Clone(ts.roster)
}

// Join adds a participant seen through a JOIN announcement
func (ts *TypingSimulator) Join(name string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.addLocked(name)
}

// Leave removes a participant; if they were typing the indicator clears
func (ts *TypingSimulator) Leave(name string) {
	ts.mu.Lock()
	if i := slices.Index(ts.roster, name); i >= 0 {
		ts.roster = slices.Delete(ts.roster, i, i+1)
	}
	wasTyping := ts.typing == name
	ts.mu.Unlock()

	if wasTyping {
		ts.clear()
	}
}

func (ts *TypingSimulator) addLocked(name string) {
	if name == "" || slices.Contains(ts.roster, name) {
		return
	}
	ts.roster = append(ts.roster, name)
}

func (ts *TypingSimulator) scheduleTick() {
	ts.tickCancel = ts.scheduler.After(ts.interval, ts.tick)
}

func (ts *TypingSimulator) tick() {
	if !ts.running {
		return
	}
	ts.scheduleTick()

	if !ts.enabled || ts.rng.Float64() >= ts.probability {
		return
	}

	candidates := ts.candidates()
	if len(candidates) == 0 {
		return
	}
	who := candidates[ts.rng.IntN(len(candidates))]
	ts.show(who)
}

func (ts *TypingSimulator) candidates() []string {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	out := make([]string, 0, len(ts.roster))
	for _, p := range ts.roster {
		if p != ts.self {
			out = append(out, p)
		}
	}
	return out
}

func (ts *TypingSimulator) show(who string) {
	if ts.clearCancel != nil {
		ts.clearCancel()
	}

	ts.mu.Lock()
	ts.typing = who
	ts.mu.Unlock()

	ts.registry.IncrementCounter(metrics.TypingIndicatorsShown, nil, "Typing indicators shown")
	ts.logger.WithField(LogFieldSender, privacy.MaskSender(who)).Debug("Participant typing")
	ts.emit(who)

	ts.clearCancel = ts.scheduler.After(ts.display, func() {
		ts.clearCancel = nil
		ts.clear()
	})
}

func (ts *TypingSimulator) clear() {
	if ts.clearCancel != nil {
		ts.clearCancel()
		ts.clearCancel = nil
	}

	ts.mu.Lock()
	was := ts.typing
	ts.typing = ""
	ts.mu.Unlock()

	if was != "" {
		ts.emit("")
	}
}

func (ts *TypingSimulator) emit(typing string) {
	for _, fn := range ts.listeners {
		fn(typing)
	}
}
