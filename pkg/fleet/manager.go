// Package fleet keeps the simulated bot deployments: their records, the
// timed connection sequence, fabricated telemetry and the conversation
// dispatch that feeds user messages through the reply engines.
package fleet

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"botsim/pkg/engine"
	"botsim/pkg/logger"
	"botsim/pkg/session"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
)

const logTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Delays are the pauses between the steps of the connection sequence.
type Delays struct {
	Attempt   time.Duration
	Validate  time.Duration
	Establish time.Duration
	GoLive    time.Duration
	Redeploy  time.Duration
}

func DefaultDelays() Delays {
	return Delays{
		Attempt:   500 * time.Millisecond,
		Validate:  1000 * time.Millisecond,
		Establish: 800 * time.Millisecond,
		GoLive:    1200 * time.Millisecond,
		Redeploy:  1000 * time.Millisecond,
	}
}

type Options struct {
	Delays           Delays
	LogLimit         int
	TelemetryMin     time.Duration
	TelemetryMax     time.Duration
	CrashProbability float64
	DefaultLanguage  string

	Engines  *engine.Set
	Sessions *session.SessionManager
	// Registerer receives the fleet collectors; nil leaves them unregistered.
	Registerer prometheus.Registerer
	// Random returns values in [0,1); defaults to math/rand/v2.
	Random func() float64
}

func DefaultOptions() Options {
	return Options{
		Delays:           DefaultDelays(),
		LogLimit:         100,
		TelemetryMin:     5 * time.Second,
		TelemetryMax:     7 * time.Second,
		CrashProbability: 0.02,
		DefaultLanguage:  engine.LanguagePython,
	}
}

type Manager struct {
	mu        sync.Mutex
	bots      map[string]*Bot
	order     []string
	nextSeq   int
	timers    map[string][]*time.Timer
	telemetry map[string]cron.EntryID
	cleared   map[string]uint64
	subs      map[int]chan Event
	nextSub   int
	closed    bool

	opts     Options
	engines  *engine.Set
	sessions *session.SessionManager
	cron     *cron.Cron
	metrics  *metrics
	random   func() float64
}

func NewManager(opts Options) *Manager {
	if opts.LogLimit <= 0 {
		opts.LogLimit = 100
	}
	if opts.TelemetryMin <= 0 {
		opts.TelemetryMin = 5 * time.Second
	}
	if opts.TelemetryMax < opts.TelemetryMin {
		opts.TelemetryMax = opts.TelemetryMin
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = engine.LanguagePython
	}

	m := &Manager{
		bots:      make(map[string]*Bot),
		timers:    make(map[string][]*time.Timer),
		telemetry: make(map[string]cron.EntryID),
		cleared:   make(map[string]uint64),
		subs:      make(map[int]chan Event),
		opts:      opts,
		engines:   opts.Engines,
		sessions:  opts.Sessions,
		cron:      cron.New(),
		random:    opts.Random,
	}
	if m.engines == nil {
		m.engines = engine.NewSet(engine.SandboxOptions{})
	}
	if m.sessions == nil {
		m.sessions = session.NewSessionManager("", 0)
	}
	if m.random == nil {
		m.random = rand.Float64
	}
	m.metrics = newMetrics(opts.Registerer, m)
	m.cron.Start()
	return m
}

// Launch creates a bot and starts its connection sequence.
func (m *Manager) Launch(spec Spec) (Bot, error) {
	spec, err := m.normalizeSpec(spec)
	if err != nil {
		return Bot{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Bot{}, ErrClosed
	}

	m.nextSeq++
	if spec.Name == "" {
		spec.Name = fmt.Sprintf("Bot #%d", m.nextSeq)
	}
	now := time.Now().UTC()
	bot := &Bot{
		ID:         uuid.NewString(),
		Name:       spec.Name,
		Status:     StatusStopped,
		Code:       spec.Code,
		Token:      spec.Token,
		Language:   spec.Language,
		Logs:       []string{formatLogLine(now, "Bot created.")},
		Generation: 1,
		Created:    now,
		Updated:    now,
	}
	m.bots[bot.ID] = bot
	m.order = append(m.order, bot.ID)

	snapshot := bot.clone()
	m.publishLocked(Event{Type: EventCreated, BotID: bot.ID, Bot: &snapshot})
	logger.InfoCF("fleet", "Bot launched", map[string]interface{}{
		logger.FieldBotID:    bot.ID,
		logger.FieldBotName:  bot.Name,
		logger.FieldLanguage: bot.Language,
	})

	m.mutateLocked(bot.ID, func(e *edit) { e.log("Deployment initiated...") })
	m.connectLocked(bot.ID, bot.Generation)

	return m.bots[bot.ID].clone(), nil
}

// Update replaces a bot's code, token and language and redeploys it.
func (m *Manager) Update(id string, spec Spec) (Bot, error) {
	spec, err := m.normalizeSpec(spec)
	if err != nil {
		return Bot{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	updated, ok := m.mutateLocked(id, func(e *edit) {
		e.bumpGeneration()
		if spec.Name != "" {
			e.Name = spec.Name
		}
		e.Code, e.Token, e.Language = spec.Code, spec.Token, spec.Language
		e.Status, e.CPU, e.RAM = StatusStopped, 0, 0
		e.log("Bot update initiated...")
	})
	if !ok {
		return Bot{}, fmt.Errorf("update %s: %w", id, ErrBotNotFound)
	}
	m.clearTranscriptLocked(id)

	gen := updated.Generation
	m.afterLocked(id, gen, m.opts.Delays.Redeploy, func() {
		m.mutateLocked(id, func(e *edit) { e.log("Redeploying with new configuration...") })
		m.connectLocked(id, gen)
	})
	return updated, nil
}

func (m *Manager) Stop(id string) (Bot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stopped, ok := m.mutateLocked(id, func(e *edit) {
		e.bumpGeneration()
		e.Status, e.CPU, e.RAM = StatusStopped, 0, 0
		e.log("Bot stopped by user.")
	})
	if !ok {
		return Bot{}, fmt.Errorf("stop %s: %w", id, ErrBotNotFound)
	}
	return stopped, nil
}

func (m *Manager) Restart(id string) (Bot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	restarted, ok := m.mutateLocked(id, func(e *edit) {
		e.bumpGeneration()
		e.Status, e.CPU, e.RAM = StatusStopped, 0, 0
		e.log("Restarting bot...")
	})
	if !ok {
		return Bot{}, fmt.Errorf("restart %s: %w", id, ErrBotNotFound)
	}
	m.clearTranscriptLocked(id)

	gen := restarted.Generation
	m.afterLocked(id, gen, m.opts.Delays.Redeploy, func() {
		m.connectLocked(id, gen)
	})
	return restarted, nil
}

func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bots[id]; !ok {
		return fmt.Errorf("delete %s: %w", id, ErrBotNotFound)
	}
	m.cancelTimersLocked(id)
	m.stopTelemetryLocked(id)
	delete(m.bots, id)
	for i, other := range m.order {
		if other == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.sessions.Delete(id)
	delete(m.cleared, id)
	m.publishLocked(Event{Type: EventDeleted, BotID: id})
	logger.InfoCF("fleet", "Bot deleted", map[string]interface{}{logger.FieldBotID: id})
	return nil
}

func (m *Manager) Get(id string) (Bot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bots[id]
	if !ok {
		return Bot{}, fmt.Errorf("get %s: %w", id, ErrBotNotFound)
	}
	return b.clone(), nil
}

// Find resolves a bot by ID, by exact name or by a unique ID prefix.
func (m *Manager) Find(ref string) (Bot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.bots[ref]; ok {
		return b.clone(), nil
	}
	var match *Bot
	for _, id := range m.order {
		b := m.bots[id]
		if b.Name == ref {
			return b.clone(), nil
		}
		if ref != "" && strings.HasPrefix(b.ID, ref) {
			if match != nil {
				return Bot{}, fmt.Errorf("bot reference %q is ambiguous", ref)
			}
			match = b
		}
	}
	if match == nil {
		return Bot{}, fmt.Errorf("find %s: %w", ref, ErrBotNotFound)
	}
	return match.clone(), nil
}

// List returns all bots in launch order.
func (m *Manager) List() []Bot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Bot, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.bots[id].clone())
	}
	return out
}

// Logs returns the last tail log lines of a bot, or all of them if tail <= 0.
func (m *Manager) Logs(id string, tail int) ([]string, error) {
	b, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if tail > 0 && len(b.Logs) > tail {
		return b.Logs[len(b.Logs)-tail:], nil
	}
	return b.Logs, nil
}

func (m *Manager) Transcript(id string) ([]session.Message, error) {
	if _, err := m.Get(id); err != nil {
		return nil, err
	}
	return m.sessions.GetHistory(id), nil
}

// Stats is a point-in-time summary of the fleet.
type Stats struct {
	Total            int `json:"total"`
	Running          int `json:"running"`
	Stopped          int `json:"stopped"`
	Errored          int `json:"errored"`
	TelemetryEntries int `json:"telemetry_entries"`
	PendingTimers    int `json:"pending_timers"`
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Stats{Total: len(m.bots), TelemetryEntries: len(m.telemetry)}
	for _, b := range m.bots {
		switch b.Status {
		case StatusRunning:
			st.Running++
		case StatusError:
			st.Errored++
		default:
			st.Stopped++
		}
	}
	for _, ts := range m.timers {
		st.PendingTimers += len(ts)
	}
	return st
}

// TelemetryOrphans lists bots whose telemetry schedule does not match their
// status: running without an entry, or an entry without running.
func (m *Manager) TelemetryOrphans() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id, b := range m.bots {
		_, scheduled := m.telemetry[id]
		if scheduled != (b.Status == StatusRunning) {
			out = append(out, id)
		}
	}
	for id := range m.telemetry {
		if _, ok := m.bots[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Close cancels every pending transition, stops telemetry and closes all
// subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for id := range m.timers {
		m.cancelTimersLocked(id)
	}
	for id := range m.telemetry {
		m.stopTelemetryLocked(id)
	}
	m.mu.Unlock()

	<-m.cron.Stop().Done()

	m.mu.Lock()
	for key, ch := range m.subs {
		close(ch)
		delete(m.subs, key)
	}
	m.mu.Unlock()
}

func (m *Manager) normalizeSpec(spec Spec) (Spec, error) {
	lang := spec.Language
	if strings.TrimSpace(lang) == "" {
		lang = m.opts.DefaultLanguage
	}
	normalized, err := engine.NormalizeLanguage(lang)
	if err != nil {
		return Spec{}, err
	}
	spec.Language = normalized
	spec.Name = strings.TrimSpace(spec.Name)
	spec.Token = strings.TrimSpace(spec.Token)
	if strings.TrimSpace(spec.Code) == "" {
		spec.Code, _ = engine.Template(normalized)
	}
	return spec, nil
}

// edit is a working copy of a record inside mutateLocked.
type edit struct {
	Bot
	lines   []string
	resched bool
}

func (e *edit) log(line string) {
	e.lines = append(e.lines, line)
}

// clearTranscriptLocked wipes the conversation of id. Simulations started
// before the wipe drop their answer.
func (m *Manager) clearTranscriptLocked(id string) {
	m.cleared[id]++
	m.sessions.Clear(id)
}

// bumpGeneration invalidates every pending transition of the bot.
func (e *edit) bumpGeneration() {
	e.Generation++
	e.resched = true
}

// mutateLocked replaces the record for id with a modified copy and emits
// the matching events. It also keeps telemetry in step with the status.
func (m *Manager) mutateLocked(id string, fn func(e *edit)) (Bot, bool) {
	cur, ok := m.bots[id]
	if !ok {
		return Bot{}, false
	}
	e := &edit{Bot: cur.clone()}
	fn(e)

	now := time.Now().UTC()
	next := e.Bot
	next.Updated = now
	for _, line := range e.lines {
		next.Logs = append(next.Logs, formatLogLine(now, line))
	}
	if over := len(next.Logs) - m.opts.LogLimit; over > 0 {
		next.Logs = append([]string(nil), next.Logs[over:]...)
	}
	m.bots[id] = &next

	if e.resched {
		m.cancelTimersLocked(id)
	}
	if next.Status == StatusRunning {
		m.startTelemetryLocked(id)
	} else {
		m.stopTelemetryLocked(id)
	}

	snapshot := next.clone()
	if cur.Status != next.Status {
		m.publishLocked(Event{Type: EventStatus, BotID: id, Bot: &snapshot})
		logger.InfoCF("fleet", "Bot status changed", map[string]interface{}{
			logger.FieldBotID:      id,
			logger.FieldStatus:     string(next.Status),
			logger.FieldGeneration: next.Generation,
		})
	} else if len(e.lines) == 0 {
		m.publishLocked(Event{Type: EventUpdated, BotID: id, Bot: &snapshot})
	}
	for _, line := range next.Logs[max(0, len(next.Logs)-len(e.lines)):] {
		m.publishLocked(Event{Type: EventLog, BotID: id, Log: line, Bot: &snapshot})
	}
	return snapshot, true
}

func formatLogLine(t time.Time, line string) string {
	return fmt.Sprintf("[%s] %s", t.UTC().Format(logTimeLayout), line)
}
