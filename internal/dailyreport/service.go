// Package dailyreport submits daily reports and mirrors them to Slack at
// most once per report.
package dailyreport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/polycle/member/internal/slack"
	"github.com/polycle/member/internal/store"
)

// DeliveryStatus describes what happened to the Slack mirror of a submit.
type DeliveryStatus string

const (
	DeliverySent        DeliveryStatus = "sent"
	DeliveryAlreadySent DeliveryStatus = "already_sent"
	DeliveryFailed      DeliveryStatus = "failed"
	DeliveryDisabled    DeliveryStatus = "disabled"
)

// Repository is the report storage the service needs.
type Repository interface {
	Save(ctx context.Context, r store.Report) (store.Report, bool, error)
	MarkDelivered(ctx context.Context, key store.ReportKey, ts, channel string) error
}

// Notifier posts a rendered report. Implemented by *slack.Poster.
type Notifier interface {
	Post(ctx context.Context, text, userToken string) (slack.Delivery, error)
}

var (
	_ Repository = (*store.Reports)(nil)
	_ Notifier   = (*slack.Poster)(nil)
)

// SubmitRequest is one report submission.
type SubmitRequest struct {
	Report    store.Report
	UserToken string // the submitter's Slack user token, if any
}

// Result is the outcome of a submit.
type Result struct {
	Report        store.Report   `json:"report"`
	Created       bool           `json:"created"`
	Delivery      DeliveryStatus `json:"delivery"`
	DeliveryError string         `json:"deliveryError,omitempty"`
}

// Service saves reports and delivers them.
type Service struct {
	reports  Repository
	notifier Notifier
	logger   *zap.Logger
	locks    keyLocks
}

// NewService returns a Service. notifier may be nil, which disables delivery.
func NewService(reports Repository, notifier Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{reports: reports, notifier: notifier, logger: logger}
}

// Submit validates and stores the report, then posts it to Slack unless it
// has already been delivered. Delivery problems never fail the submit.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (Result, error) {
	rep := req.Report
	if err := Validate(&rep); err != nil {
		return Result{}, err
	}

	key := rep.Key()
	unlock := s.locks.lock(key)
	defer unlock()

	saved, created, err := s.reports.Save(ctx, rep)
	if err != nil {
		return Result{}, err
	}
	res := Result{Report: saved, Created: created}
	log := s.logger.With(zap.String("report", key.String()))

	if saved.Delivered() {
		res.Delivery = DeliveryAlreadySent
		log.Debug("report already delivered", zap.String("ts", saved.SlackTS))
		return res, nil
	}
	if s.notifier == nil {
		res.Delivery = DeliveryDisabled
		return res, nil
	}

	d, err := s.notifier.Post(ctx, slack.FormatReport(saved), req.UserToken)
	switch {
	case errors.Is(err, slack.ErrNoChannel), errors.Is(err, slack.ErrNoCredentials):
		res.Delivery = DeliveryDisabled
		log.Debug("report delivery disabled", zap.Error(err))
		return res, nil
	case err != nil:
		res.Delivery = DeliveryFailed
		res.DeliveryError = err.Error()
		log.Warn("report delivery failed", zap.Error(err))
		return res, nil
	}

	res.Delivery = DeliverySent
	res.Report.SlackTS = d.TS
	res.Report.SlackChannel = d.Channel
	log.Info("report delivered",
		zap.String("channel", d.Channel),
		zap.String("ts", d.TS),
		zap.String("via", d.Via),
	)

	if err := s.reports.MarkDelivered(ctx, key, d.TS, d.Channel); err != nil {
		// The message is out but the row does not know it. A later save
		// would post again, so this needs a manual stamp.
		log.Error("recording report delivery failed",
			zap.String("channel", d.Channel),
			zap.String("ts", d.TS),
			zap.Error(err),
		)
	}
	return res, nil
}

// ErrInvalid is returned for reports that fail validation.
var ErrInvalid = store.ErrInvalid

// Validate normalizes r and checks it is submittable.
func Validate(r *store.Report) error {
	r.Date = strings.TrimSpace(r.Date)
	if _, err := time.Parse(store.DateLayout, r.Date); err != nil {
		return fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalid, r.Date)
	}
	r.User = store.NormalizeSlug(r.User)
	if r.User == "" {
		return fmt.Errorf("%w: user is required", ErrInvalid)
	}
	r.Done = strings.TrimSpace(r.Done)
	r.Plan = strings.TrimSpace(r.Plan)
	r.Blockers = strings.TrimSpace(r.Blockers)
	r.Notes = strings.TrimSpace(r.Notes)
	if r.Done == "" && r.Plan == "" {
		return fmt.Errorf("%w: at least one of done or plan is required", ErrInvalid)
	}
	return nil
}

// Today returns the current date in loc as YYYY-MM-DD.
func Today(loc *time.Location) string {
	return DateIn(time.Now(), loc)
}

// DateIn formats t as a report date in loc.
func DateIn(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(store.DateLayout)
}

// keyLocks serializes submits per report key.
type keyLocks struct {
	mu    sync.Mutex
	locks map[store.ReportKey]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyLocks) lock(key store.ReportKey) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[store.ReportKey]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
