// Package notify pages operators about clusters that need attention.
//
// The Alerter listens on the event bus and sends a Telegram message when an
// evaluation fails with an alertable error, when a cluster keeps failing, or
// when the registry or history store becomes unavailable. Repeat alerts for
// the same subject are suppressed for a configurable interval.
package notify

import (
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Iron-Ham/clusterscaler/internal/config"
	"github.com/Iron-Ham/clusterscaler/internal/errors"
	"github.com/Iron-Ham/clusterscaler/internal/event"
	"github.com/Iron-Ham/clusterscaler/internal/logging"
	"github.com/Iron-Ham/clusterscaler/internal/scaling"
)

const (
	defaultRepeatInterval   = 30 * time.Minute
	defaultFailureThreshold = 3
	queueSize               = 64
)

// Sender delivers one Telegram message. *tgbotapi.BotAPI satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Option configures an Alerter.
type Option func(*Alerter)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(a *Alerter) { a.logger = l }
}

// WithRepeatInterval sets how long repeat alerts for one subject are held
// back. Zero sends every alert.
func WithRepeatInterval(d time.Duration) Option {
	return func(a *Alerter) { a.repeat = d }
}

// WithFailureThreshold sets how many consecutive failures of one cluster
// raise an alert even when each error on its own is not alertable.
func WithFailureThreshold(n int) Option {
	return func(a *Alerter) { a.threshold = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Alerter) { a.now = now }
}

// Alerter turns bus events into Telegram alerts.
type Alerter struct {
	sender    Sender
	chatIDs   []int64
	logger    *logging.Logger
	repeat    time.Duration
	threshold int
	now       func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
	failures map[string]int

	bus    *event.Bus
	subIDs []string
	queue  chan string
	done   chan struct{}
}

// NewTelegram connects to the Bot API with the configured token.
func NewTelegram(cfg config.TelegramConfig, opts ...Option) (*Alerter, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, errors.Wrap(err, "connect telegram bot")
	}
	opts = append([]Option{WithRepeatInterval(cfg.RepeatInterval)}, opts...)
	return New(bot, cfg.ChatIDs, opts...), nil
}

// New creates an Alerter that delivers through sender to every chat in
// chatIDs.
func New(sender Sender, chatIDs []int64, opts ...Option) *Alerter {
	a := &Alerter{
		sender:    sender,
		chatIDs:   append([]int64(nil), chatIDs...),
		logger:    logging.NopLogger(),
		repeat:    defaultRepeatInterval,
		threshold: defaultFailureThreshold,
		now:       time.Now,
		lastSent:  make(map[string]time.Time),
		failures:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.WithComponent("notify")
	return a
}

// Attach subscribes to bus and starts the delivery goroutine. Delivery runs
// off the publisher's goroutine; when the queue is full alerts are dropped
// and logged.
func (a *Alerter) Attach(bus *event.Bus) {
	queue := make(chan string, queueSize)
	a.mu.Lock()
	a.queue = queue
	a.mu.Unlock()
	a.bus = bus
	a.done = make(chan struct{})
	go a.deliver(queue)

	a.subIDs = append(a.subIDs,
		bus.Subscribe(event.TypeClusterEvaluated, a.handleEvaluated),
		bus.Subscribe(event.TypeRegistryUnavailable, a.handleRegistryUnavailable),
		bus.Subscribe(event.TypeHistoryWriteFailed, a.handleHistoryWriteFailed),
	)
}

// Detach unsubscribes from the bus and waits for queued alerts to be sent.
func (a *Alerter) Detach() {
	if a.bus == nil {
		return
	}
	for _, id := range a.subIDs {
		a.bus.Unsubscribe(id)
	}
	a.subIDs = nil
	a.bus = nil

	a.mu.Lock()
	close(a.queue)
	a.queue = nil
	a.mu.Unlock()
	<-a.done
}

func (a *Alerter) deliver(queue <-chan string) {
	defer close(a.done)
	for text := range queue {
		for _, chatID := range a.chatIDs {
			if _, err := a.sender.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
				a.logger.Warn("telegram send failed", "chat_id", chatID, "error", err.Error())
			}
		}
	}
}

func (a *Alerter) handleEvaluated(e event.Event) {
	ev, ok := e.(event.ClusterEvaluatedEvent)
	if !ok {
		return
	}
	id := ev.Record.ClusterID

	a.mu.Lock()
	switch ev.Record.Outcome {
	case scaling.OutcomeSuccess:
		delete(a.failures, id)
	case scaling.OutcomeFailure:
		a.failures[id]++
	}
	count := a.failures[id]
	a.mu.Unlock()

	if ev.Record.Outcome != scaling.OutcomeFailure {
		return
	}

	switch {
	case errors.IsAlertable(ev.Err):
		a.alert("cluster:"+id, fmt.Sprintf("[%s] %s: %s", errors.GetSeverity(ev.Err), id, ev.Record.Reason))
	case a.threshold > 0 && count >= a.threshold:
		a.alert("cluster:"+id, fmt.Sprintf("[%s] %s failed %d times in a row: %s",
			errors.GetSeverity(ev.Err), id, count, ev.Record.Reason))
	}
}

func (a *Alerter) handleRegistryUnavailable(e event.Event) {
	ev, ok := e.(event.RegistryUnavailableEvent)
	if !ok {
		return
	}
	a.alert("registry", fmt.Sprintf("cluster registry unavailable, cycle %s abandoned: %v", ev.CycleID, ev.Err))
}

func (a *Alerter) handleHistoryWriteFailed(e event.Event) {
	ev, ok := e.(event.HistoryWriteFailedEvent)
	if !ok {
		return
	}
	a.alert("history:"+ev.ClusterID, fmt.Sprintf("%s: scaling event %s not recorded: %v", ev.ClusterID, ev.EventID, ev.Err))
}

// alert queues text unless subject was alerted within the repeat interval.
func (a *Alerter) alert(subject, text string) {
	now := a.now()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.queue == nil {
		return
	}
	if last, ok := a.lastSent[subject]; ok && a.repeat > 0 && now.Sub(last) < a.repeat {
		a.logger.Debug("alert suppressed", "subject", subject)
		return
	}

	select {
	case a.queue <- "clusterscaler: " + text:
		a.lastSent[subject] = now
	default:
		a.logger.Warn("alert queue full, dropping alert", "subject", subject)
	}
}
