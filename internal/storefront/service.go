// Package storefront serves popup decisions, impressions and submissions to
// visitors arriving through the app proxy.
package storefront

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/popcatch-backend/internal/discounts"
	"github.com/angelmondragon/popcatch-backend/internal/eligibility"
	"github.com/angelmondragon/popcatch-backend/internal/impressions"
	"github.com/angelmondragon/popcatch-backend/internal/rules"
	"github.com/angelmondragon/popcatch-backend/internal/stores"
	"github.com/angelmondragon/popcatch-backend/internal/submissions"
	"github.com/angelmondragon/popcatch-backend/pkg/db/models"
	"github.com/angelmondragon/popcatch-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/popcatch-backend/pkg/errors"
	"github.com/angelmondragon/popcatch-backend/pkg/logger"
	"github.com/angelmondragon/popcatch-backend/pkg/metrics"
)

type storeLookup interface {
	GetByShop(ctx context.Context, shop string) (*stores.StoreDTO, error)
}

type popupReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Popup, error)
	FindActiveByStore(ctx context.Context, storeID uuid.UUID) (*models.Popup, error)
	ListByStore(ctx context.Context, storeID uuid.UUID) ([]models.Popup, error)
}

type impressionCounter interface {
	Prior(ctx context.Context, key impressions.Key, per enums.FrequencyPeriod, now time.Time, loc *time.Location) (int, error)
	Record(ctx context.Context, key impressions.Key, per enums.FrequencyPeriod, now time.Time, loc *time.Location) (int, error)
}

// Service is the storefront entry point.
type Service interface {
	Decide(ctx context.Context, shop string, q VisitorQuery) (*DecisionDTO, error)
	RecordImpression(ctx context.Context, shop string, in ImpressionInput) (*ImpressionDTO, error)
	Submit(ctx context.Context, shop, email string) (*SubmissionDTO, error)
}

// Params wires the storefront service.
type Params struct {
	Stores      storeLookup
	Popups      popupReader
	Issuer      discounts.Issuer
	Recorder    submissions.Recorder
	Impressions impressionCounter
	Policy      eligibility.Policy
	Logger      *logger.Logger
	Metrics     *metrics.PopupMetrics
	Now         func() time.Time
}

type service struct {
	stores      storeLookup
	popups      popupReader
	issuer      discounts.Issuer
	recorder    submissions.Recorder
	impressions impressionCounter
	policy      eligibility.Policy
	logg        *logger.Logger
	metrics     *metrics.PopupMetrics
	now         func() time.Time
}

// NewService validates params and builds the service.
func NewService(p Params) (Service, error) {
	if p.Stores == nil {
		return nil, fmt.Errorf("store lookup required")
	}
	if p.Popups == nil {
		return nil, fmt.Errorf("popup reader required")
	}
	if p.Issuer == nil {
		return nil, fmt.Errorf("discount issuer required")
	}
	if p.Recorder == nil {
		return nil, fmt.Errorf("submission recorder required")
	}
	if p.Impressions == nil {
		return nil, fmt.Errorf("impression counter required")
	}
	if p.Policy.EmptyPageConditions == "" {
		p.Policy = eligibility.DefaultPolicy
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &service{
		stores:      p.Stores,
		popups:      p.Popups,
		issuer:      p.Issuer,
		recorder:    p.Recorder,
		impressions: p.Impressions,
		policy:      p.Policy,
		logg:        p.Logger,
		metrics:     p.Metrics,
		now:         p.Now,
	}, nil
}

// Decide evaluates the store's active popup for the visitor. An unknown store
// or a store without an active popup is a hidden popup, not an error.
func (s *service) Decide(ctx context.Context, shop string, q VisitorQuery) (*DecisionDTO, error) {
	store, err := s.stores.GetByShop(ctx, shop)
	if err != nil {
		if isNotFound(err) {
			return s.hidden(ReasonNoActivePopup), nil
		}
		return nil, err
	}
	popup, err := s.popups.FindActiveByStore(ctx, store.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.hidden(ReasonNoActivePopup), nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active popup")
	}

	cfg, parseErr := rules.Parse(popup.Config)
	if parseErr != nil {
		s.warn(ctx, popup.ID, "popup config failed to parse", parseErr)
		cfg = nil
	}

	now := s.now()
	loc := loadLocation(q.Timezone)
	visitor := eligibility.Visitor{
		CountryCode: strings.TrimSpace(q.Country),
		Path:        q.Path,
		Now:         now,
		Location:    loc,
	}
	if cfg != nil && cfg.Frequency.Type == enums.FrequencyLimit {
		prior, err := s.impressions.Prior(ctx, impressionKey(store.Shop, popup.ID, q.VisitorID), cfg.Frequency.Limit.Per, now, loc)
		if err != nil {
			return nil, err
		}
		visitor.PriorImpressions = prior
	}

	decision := eligibility.Evaluate(cfg, visitor, s.policy)
	for _, reason := range decision.Reasons {
		s.metrics.IncDecision(string(reason))
	}
	out := &DecisionDTO{Show: decision.Show, Reasons: decision.Reasons}
	if decision.Show {
		public, err := cfg.MarshalPublic()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode popup config")
		}
		out.Popup = &PublicPopup{ID: popup.ID, Type: popup.Type, Config: public}
	}
	return out, nil
}

func (s *service) RecordImpression(ctx context.Context, shop string, in ImpressionInput) (*ImpressionDTO, error) {
	if strings.TrimSpace(in.VisitorID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "visitor_id is required").
			WithDetails(map[string]any{"field": "visitor_id", "reason": "missing"})
	}
	store, err := s.stores.GetByShop(ctx, shop)
	if err != nil {
		return nil, err
	}
	popup, err := s.popups.FindByID(ctx, in.PopupID)
	if err != nil || popup.StoreID != store.ID {
		if err == nil || errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "popup not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load popup")
	}

	per := rules.DefaultFrequencyPeriod
	if cfg, err := rules.Parse(popup.Config); err == nil {
		per = cfg.Frequency.Limit.Per
	}
	now := s.now()
	loc := loadLocation(in.Timezone)
	count, err := s.impressions.Record(ctx, impressionKey(store.Shop, popup.ID, in.VisitorID), per, now, loc)
	if err != nil {
		return nil, err
	}
	return &ImpressionDTO{
		PopupID:     popup.ID,
		Impressions: count,
		WindowEnds:  eligibility.WindowEnd(per, now, loc).UTC(),
	}, nil
}

// Submit issues a discount according to the active popup and records the
// submission. A failed issuance fails the submission so nothing is recorded
// for a code the visitor never received.
func (s *service) Submit(ctx context.Context, shop, email string) (*SubmissionDTO, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		s.metrics.IncSubmission("invalid")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required").
			WithDetails(map[string]any{"field": "email", "reason": "missing"})
	}
	store, err := s.stores.GetByShop(ctx, shop)
	if err != nil {
		s.metrics.IncSubmission("store_missing")
		return nil, err
	}
	if s.logg != nil {
		ctx = s.logg.WithShop(ctx, store.Shop)
	}

	popup, cfg, err := s.activeConfig(ctx, store.ID)
	if err != nil {
		s.metrics.IncSubmission("popup_missing")
		return nil, err
	}

	token := ""
	if store.AccessToken != nil {
		token = *store.AccessToken
	}
	result, err := s.issuer.Issue(ctx, cfg, discounts.Submission{
		Shop:        store.Shop,
		AccessToken: token,
		Email:       email,
	})
	if err != nil {
		s.metrics.IncSubmission("issuance_failed")
		return nil, err
	}

	if popup != nil {
		_, err = s.recorder.Record(ctx, popup.ID, email, result.DiscountCode)
	} else {
		_, err = s.recorder.RecordForStore(ctx, store.ID, email, result.DiscountCode)
	}
	if err != nil {
		s.metrics.IncSubmission("record_failed")
		return nil, err
	}

	s.metrics.IncSubmission("recorded")
	out := &SubmissionDTO{Success: true, HasDiscount: result.DiscountCreated, Message: messageSubscribed}
	if result.DiscountCreated {
		out.DiscountCode = result.DiscountCode
		out.Message = messageDiscount
	}
	return out, nil
}

// activeConfig returns the active popup and its parsed rules. A store that
// has never had a popup yields a nil popup and the default rules.
func (s *service) activeConfig(ctx context.Context, storeID uuid.UUID) (*models.Popup, *rules.RuleConfig, error) {
	popup, err := s.popups.FindActiveByStore(ctx, storeID)
	if err == nil {
		cfg, err := rules.Parse(popup.Config)
		if err != nil {
			return nil, nil, err
		}
		return popup, cfg, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load active popup")
	}
	existing, err := s.popups.ListByStore(ctx, storeID)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list store popups")
	}
	if len(existing) > 0 {
		return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active popup")
	}
	return nil, rules.Default(), nil
}

func (s *service) hidden(reason eligibility.Reason) *DecisionDTO {
	s.metrics.IncDecision(string(reason))
	return &DecisionDTO{Show: false, Reasons: []eligibility.Reason{reason}}
}

func (s *service) warn(ctx context.Context, popupID uuid.UUID, msg string, err error) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithPopupID(ctx, popupID.String())
	logCtx = s.logg.WithField(logCtx, "error", err.Error())
	s.logg.Warn(logCtx, msg)
}

func impressionKey(shop string, popupID uuid.UUID, visitorID string) impressions.Key {
	return impressions.Key{Shop: shop, PopupID: popupID.String(), VisitorID: strings.TrimSpace(visitorID)}
}

// loadLocation resolves an IANA zone name, falling back to UTC.
func loadLocation(name string) *time.Location {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

func isNotFound(err error) bool {
	typed := pkgerrors.As(err)
	return typed != nil && typed.Code() == pkgerrors.CodeNotFound
}
