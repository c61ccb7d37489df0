package popups

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/popcatch-backend/internal/rules"
	"github.com/angelmondragon/popcatch-backend/pkg/db"
	"github.com/angelmondragon/popcatch-backend/pkg/db/models"
	"github.com/angelmondragon/popcatch-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/popcatch-backend/pkg/errors"
	"github.com/angelmondragon/popcatch-backend/pkg/outbox"
	"github.com/angelmondragon/popcatch-backend/pkg/outbox/payloads"
)

const (
	defaultMaxRetries = 5
	activeIndex       = "ux_popups_one_active_per_store"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service exposes store-scoped popup management.
type Service interface {
	Create(ctx context.Context, storeID uuid.UUID, input CreateInput) (*PopupDTO, error)
	List(ctx context.Context, storeID uuid.UUID) ([]PopupDTO, error)
	Get(ctx context.Context, storeID, id uuid.UUID) (*PopupDTO, error)
	GetActive(ctx context.Context, storeID uuid.UUID) (*PopupDTO, error)
	Update(ctx context.Context, storeID, id uuid.UUID, patch PopupPatch) (*PopupDTO, error)
	Activate(ctx context.Context, storeID, id uuid.UUID) (*PopupDTO, error)
	Delete(ctx context.Context, storeID, id uuid.UUID) error
}

type service struct {
	repo       Repository
	tx         txRunner
	outbox     outboxPublisher
	maxRetries int
}

// NewService builds a popup service. maxRetries bounds config write retries
// after a version conflict; zero selects the default.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, maxRetries int) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("popups repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &service{repo: repo, tx: tx, outbox: outbox, maxRetries: maxRetries}, nil
}

func (s *service) Create(ctx context.Context, storeID uuid.UUID, input CreateInput) (*PopupDTO, error) {
	popupType := input.Type
	if popupType == "" {
		popupType = enums.PopupTypeOptIn
	}
	if !popupType.IsValid() {
		return nil, invalidType(popupType)
	}
	config, err := prepareConfig(input.Config, nil)
	if err != nil {
		return nil, err
	}

	popup := &models.Popup{
		StoreID:  storeID,
		Type:     popupType,
		IsActive: input.IsActive,
		Config:   config,
	}
	var deactivated []uuid.UUID
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if popup.IsActive {
			ids, err := repo.DeactivateOthers(ctx, storeID, uuid.Nil)
			if err != nil {
				return err
			}
			deactivated = ids
		}
		if _, err := repo.Create(ctx, popup); err != nil {
			return err
		}
		if popup.IsActive {
			return s.emitActivated(ctx, tx, popup, deactivated)
		}
		return nil
	})
	if err != nil {
		return nil, writeError(err, "create popup")
	}
	return fromModel(popup), nil
}

func (s *service) List(ctx context.Context, storeID uuid.UUID) ([]PopupDTO, error) {
	rows, err := s.repo.ListByStore(ctx, storeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list popups")
	}
	return fromModels(rows), nil
}

func (s *service) Get(ctx context.Context, storeID, id uuid.UUID) (*PopupDTO, error) {
	popup, err := s.load(ctx, s.repo, storeID, id)
	if err != nil {
		return nil, err
	}
	return fromModel(popup), nil
}

func (s *service) GetActive(ctx context.Context, storeID uuid.UUID) (*PopupDTO, error) {
	popup, err := s.repo.FindActiveByStore(ctx, storeID)
	if err != nil {
		return nil, mapLookupError(err)
	}
	return fromModel(popup), nil
}

// Update applies a partial patch. A config patch is merged over the stored
// submission log and written with a version check, so concurrent storefront
// submissions are never lost to an admin save.
func (s *service) Update(ctx context.Context, storeID, id uuid.UUID, patch PopupPatch) (*PopupDTO, error) {
	if patch.Type != nil && !patch.Type.IsValid() {
		return nil, invalidType(*patch.Type)
	}
	if patch.Config != nil {
		if _, err := rules.Parse(patch.Config); err != nil {
			return nil, err
		}
	}

	for attempt := 1; ; attempt++ {
		updated, conflict, err := s.tryUpdate(ctx, storeID, id, patch)
		if err != nil {
			return nil, err
		}
		if !conflict {
			return fromModel(updated), nil
		}
		if attempt >= s.maxRetries {
			return nil, pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "popup was modified concurrently").
				WithDetails(map[string]any{"popup_id": id.String(), "attempts": attempt})
		}
		if err := sleepCtx(ctx, time.Duration(attempt)*10*time.Millisecond); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update popup")
		}
	}
}

func (s *service) tryUpdate(ctx context.Context, storeID, id uuid.UUID, patch PopupPatch) (*models.Popup, bool, error) {
	var (
		updated  *models.Popup
		conflict bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := s.load(ctx, repo, storeID, id)
		if err != nil {
			return err
		}

		if patch.Config != nil {
			stored, _ := rules.Parse(current.Config)
			merged, err := prepareConfig(patch.Config, stored)
			if err != nil {
				return err
			}
			ok, err := repo.UpdateConfigIfVersion(ctx, id, current.Version, merged)
			if err != nil {
				return err
			}
			if !ok {
				conflict = true
				return nil
			}
		}

		rest := PopupPatch{Type: patch.Type, IsActive: patch.IsActive}
		result, err := repo.Update(ctx, id, rest)
		if err != nil {
			return err
		}
		updated = result.Popup

		if patch.IsActive != nil && *patch.IsActive && !current.IsActive {
			return s.emitActivated(ctx, tx, updated, result.Deactivated)
		}
		return nil
	})
	if err != nil {
		return nil, false, writeError(err, "update popup")
	}
	return updated, conflict, nil
}

func (s *service) Activate(ctx context.Context, storeID, id uuid.UUID) (*PopupDTO, error) {
	active := true
	return s.Update(ctx, storeID, id, PopupPatch{IsActive: &active})
}

func (s *service) Delete(ctx context.Context, storeID, id uuid.UUID) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := s.load(ctx, repo, storeID, id); err != nil {
			return err
		}
		return repo.Delete(ctx, id)
	})
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return mapLookupError(err)
}

// load fetches a popup and hides rows owned by other stores.
func (s *service) load(ctx context.Context, repo Repository, storeID, id uuid.UUID) (*models.Popup, error) {
	popup, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err)
	}
	if popup.StoreID != storeID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "popup not found")
	}
	return popup, nil
}

func (s *service) emitActivated(ctx context.Context, tx *gorm.DB, popup *models.Popup, deactivated []uuid.UUID) error {
	storeID := popup.StoreID
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPopupActivated,
		AggregateType: enums.AggregatePopup,
		AggregateID:   popup.ID,
		Actor:         &outbox.ActorRef{StoreID: &storeID, Source: "admin"},
		Data: payloads.PopupActivatedEvent{
			PopupID:     popup.ID,
			StoreID:     popup.StoreID,
			Type:        popup.Type,
			Deactivated: deactivated,
			ActivatedAt: time.Now().UTC(),
		},
	})
}

// prepareConfig parses raw (default document when empty), carries over the
// submission log from stored and re-encodes it.
func prepareConfig(raw json.RawMessage, stored *rules.RuleConfig) (json.RawMessage, error) {
	cfg, err := rules.Parse(raw)
	if err != nil {
		return nil, err
	}
	cfg.ReplaceLog(stored)
	out, err := cfg.Marshal()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode popup config")
	}
	return out, nil
}

func invalidType(t enums.PopupType) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid popup type").
		WithDetails(map[string]any{"field": "type", "value": string(t)})
}

// writeError maps a failed write. Losing an activation race against the
// one-active-per-store index surfaces as a conflict.
func writeError(err error, msg string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	if db.IsUniqueViolation(err, activeIndex) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "another popup was activated concurrently")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

func mapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "popup not found")
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load popup")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
