// Package submissions appends visitor submissions to a popup's embedded log.
package submissions

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/popcatch-backend/internal/popups"
	"github.com/angelmondragon/popcatch-backend/internal/rules"
	"github.com/angelmondragon/popcatch-backend/pkg/db/models"
	"github.com/angelmondragon/popcatch-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/popcatch-backend/pkg/errors"
	"github.com/angelmondragon/popcatch-backend/pkg/logger"
	"github.com/angelmondragon/popcatch-backend/pkg/metrics"
	"github.com/angelmondragon/popcatch-backend/pkg/outbox"
	"github.com/angelmondragon/popcatch-backend/pkg/outbox/payloads"
)

const (
	defaultMaxRetries = 5
	defaultBaseDelay  = 5 * time.Millisecond
	jitterWindow      = 10 * time.Millisecond
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Recorder persists submissions.
type Recorder interface {
	Record(ctx context.Context, popupID uuid.UUID, email string, code *string) (*rules.RuleConfig, error)
	RecordForStore(ctx context.Context, storeID uuid.UUID, email string, code *string) (*rules.RuleConfig, error)
}

// Options tune the version-check retry loop.
type Options struct {
	MaxRetries int
	BaseDelay  time.Duration
	Now        func() time.Time
}

type recorder struct {
	repo    popups.Repository
	tx      txRunner
	outbox  outboxPublisher
	logg    *logger.Logger
	metrics *metrics.PopupMetrics
	opts    Options
}

// NewRecorder builds a recorder over the popups repository.
func NewRecorder(repo popups.Repository, tx txRunner, publisher outboxPublisher, logg *logger.Logger, m *metrics.PopupMetrics, opts Options) (Recorder, error) {
	if repo == nil {
		return nil, fmt.Errorf("popups repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultBaseDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &recorder{repo: repo, tx: tx, outbox: publisher, logg: logg, metrics: m, opts: opts}, nil
}

// Record appends email and code to the popup log. Each attempt reads the row
// and writes it back only if its version is unchanged; a lost race re-reads
// and tries again until MaxRetries attempts have been spent.
func (r *recorder) Record(ctx context.Context, popupID uuid.UUID, email string, code *string) (*rules.RuleConfig, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required").
			WithDetails(map[string]any{"field": "email", "reason": "missing"})
	}
	issued := ""
	if code != nil {
		issued = strings.TrimSpace(*code)
	}

	for attempt := 1; ; attempt++ {
		cfg, written, err := r.attempt(ctx, popupID, email, issued)
		if err != nil {
			return nil, err
		}
		if written {
			return cfg, nil
		}

		r.metrics.IncRecordConflict()
		if r.logg != nil {
			logCtx := r.logg.WithFields(ctx, map[string]any{
				"popup_id": popupID.String(),
				"attempt":  attempt,
			})
			r.logg.Debug(logCtx, "popup config version conflict")
		}
		if attempt >= r.opts.MaxRetries {
			return nil, pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "submission could not be recorded").
				WithDetails(map[string]any{"popup_id": popupID.String(), "attempts": attempt})
		}
		if err := r.sleep(ctx, r.backoff(attempt)); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record submission")
		}
	}
}

func (r *recorder) attempt(ctx context.Context, popupID uuid.UUID, email, code string) (*rules.RuleConfig, bool, error) {
	var (
		cfg     *rules.RuleConfig
		written bool
	)
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := r.repo.WithTx(tx)
		popup, err := repo.FindByID(ctx, popupID)
		if err != nil {
			return err
		}
		cfg, err = rules.Parse(popup.Config)
		if err != nil {
			return err
		}
		cfg.AppendSubmission(email, code, r.opts.Now())
		raw, err := cfg.Marshal()
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode popup config")
		}
		written, err = repo.UpdateConfigIfVersion(ctx, popupID, popup.Version, raw)
		if err != nil || !written {
			return err
		}
		return r.emit(ctx, tx, popup, cfg, email, code)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, pkgerrors.New(pkgerrors.CodeNotFound, "popup not found")
		}
		if typed := pkgerrors.As(err); typed != nil {
			return nil, false, typed
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record submission")
	}
	return cfg, written, nil
}

func (r *recorder) emit(ctx context.Context, tx *gorm.DB, popup *models.Popup, cfg *rules.RuleConfig, email, code string) error {
	var issued *string
	if code != "" {
		issued = &code
	}
	storeID := popup.StoreID
	return r.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPopupSubmissionRecorded,
		AggregateType: enums.AggregatePopup,
		AggregateID:   popup.ID,
		Actor:         &outbox.ActorRef{StoreID: &storeID, Source: "storefront"},
		Data: payloads.SubmissionRecordedEvent{
			PopupID:         popup.ID,
			StoreID:         popup.StoreID,
			Email:           email,
			DiscountCode:    issued,
			ConfigVersion:   popup.Version + 1,
			SubmissionCount: len(cfg.Emails),
			RecordedAt:      r.opts.Now().UTC(),
		},
	})
}

// RecordForStore records against the store's active popup. A store that has
// never had a popup gets one created from the default rule document first; a
// store whose popups are all inactive is reported as not found.
func (r *recorder) RecordForStore(ctx context.Context, storeID uuid.UUID, email string, code *string) (*rules.RuleConfig, error) {
	popup, err := r.repo.FindActiveByStore(ctx, storeID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active popup")
		}
		existing, listErr := r.repo.ListByStore(ctx, storeID)
		if listErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, listErr, "list store popups")
		}
		if len(existing) > 0 {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active popup")
		}
		popup, err = r.createDefault(ctx, storeID)
		if err != nil {
			return nil, err
		}
	}
	return r.Record(ctx, popup.ID, email, code)
}

func (r *recorder) createDefault(ctx context.Context, storeID uuid.UUID) (*models.Popup, error) {
	raw, err := rules.Default().Marshal()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode default config")
	}
	popup := &models.Popup{
		StoreID:  storeID,
		Type:     enums.PopupTypeOptIn,
		IsActive: true,
		Config:   raw,
	}
	if _, err := r.repo.Create(ctx, popup); err != nil {
		// a concurrent submission may have created it first
		if existing, findErr := r.repo.FindActiveByStore(ctx, storeID); findErr == nil {
			return existing, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create default popup")
	}
	if r.logg != nil {
		r.logg.Info(r.logg.WithPopupID(ctx, popup.ID.String()), "created default popup for submission")
	}
	return popup, nil
}

func (r *recorder) backoff(attempt int) time.Duration {
	base := r.opts.BaseDelay * time.Duration(attempt)
	return base + rand.N(jitterWindow)
}

func (r *recorder) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
