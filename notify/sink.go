package notify

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nothing010101/pfp/core"
)

const (
	DefaultTimeout = 3 * time.Second
	TipTimeout     = 5 * time.Second

	tipPrefix = "Tip:"
)

type (
	// Sink is the notification channel of a workspace. Only errors, export
	// results, reset confirmations and tips are surfaced; everything else is
	// logged at debug level and dropped.
	Sink struct {
		mu      sync.Mutex
		now     func() time.Time
		publish func(core.Notification)
		active  []core.Notification
	}

	Option func(*Sink)
)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Sink) { s.now = now } }

// WithPublisher forwards every surfaced notification to fn.
func WithPublisher(fn func(core.Notification)) Option {
	return func(s *Sink) { s.publish = fn }
}

func NewSink(opts ...Option) *Sink {
	s := &Sink{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Surfaced reports whether n passes the display policy.
func Surfaced(n core.Notification) bool {
	if n.Severity == core.SeverityError {
		return true
	}
	switch n.Kind {
	case core.KindExport, core.KindReset, core.KindTip:
		return true
	}
	return false
}

// Timeout is how long n stays on screen.
func Timeout(n core.Notification) time.Duration {
	if n.Kind == core.KindTip || strings.Contains(n.Message, tipPrefix) {
		return TipTimeout
	}
	return DefaultTimeout
}

func (s *Sink) Notify(n core.Notification) {
	if n.Kind == "" {
		n.Kind = core.KindGeneral
	}
	if n.Severity == "" {
		n.Severity = core.SeverityInfo
	}
	log := logrus.WithFields(logrus.Fields{
		"kind":     n.Kind,
		"severity": n.Severity,
	})
	if !Surfaced(n) {
		log.WithField("message", n.Message).Debug("Notification suppressed")
		return
	}

	n.ID = uuid.NewString()
	now := s.now()
	n.ExpiresAt = now.Add(Timeout(n))

	s.mu.Lock()
	s.active = append(s.prune(now), n)
	publish := s.publish
	s.mu.Unlock()

	log.WithField("notification_id", n.ID).Info(n.Message)
	if publish != nil {
		publish(n)
	}
}

// Active returns the notifications that have not been dismissed yet.
func (s *Sink) Active() []core.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = s.prune(s.now())
	out := make([]core.Notification, len(s.active))
	copy(out, s.active)
	return out
}

func (s *Sink) prune(now time.Time) []core.Notification {
	kept := s.active[:0]
	for _, n := range s.active {
		if now.Before(n.ExpiresAt) {
			kept = append(kept, n)
		}
	}
	return kept
}

// Info, Success and Error are shorthands for general messages.

func (s *Sink) Info(kind core.NotificationKind, msg string) {
	s.Notify(core.Notification{Kind: kind, Message: msg, Severity: core.SeverityInfo})
}

func (s *Sink) Success(kind core.NotificationKind, msg string) {
	s.Notify(core.Notification{Kind: kind, Message: msg, Severity: core.SeveritySuccess})
}

func (s *Sink) Error(msg string) {
	s.Notify(core.Notification{Kind: core.KindGeneral, Message: msg, Severity: core.SeverityError})
}
