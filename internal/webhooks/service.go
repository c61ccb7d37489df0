// Package webhooks applies Shopify lifecycle and privacy webhooks to stored
// shops and popups.
package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/popcatch-backend/internal/popups"
	"github.com/angelmondragon/popcatch-backend/internal/rules"
	"github.com/angelmondragon/popcatch-backend/internal/stores"
	pkgerrors "github.com/angelmondragon/popcatch-backend/pkg/errors"
	"github.com/angelmondragon/popcatch-backend/pkg/logger"
)

// Topics handled by Service. Anything else is acknowledged and ignored.
const (
	TopicAppUninstalled       = "app/uninstalled"
	TopicCustomersDataRequest = "customers/data_request"
	TopicCustomersRedact      = "customers/redact"
	TopicShopRedact           = "shop/redact"
	defaultRedactMaxRetries   = 5
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service handles one verified webhook delivery.
type Service interface {
	Handle(ctx context.Context, topic, shop string, body []byte) error
}

type service struct {
	stores     *stores.Repository
	popups     popups.Repository
	tx         txRunner
	logg       *logger.Logger
	maxRetries int
}

// NewService builds the webhook service.
func NewService(storeRepo *stores.Repository, popupRepo popups.Repository, tx txRunner, logg *logger.Logger, maxRetries int) (Service, error) {
	if storeRepo == nil {
		return nil, fmt.Errorf("store repository required")
	}
	if popupRepo == nil {
		return nil, fmt.Errorf("popup repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if maxRetries <= 0 {
		maxRetries = defaultRedactMaxRetries
	}
	return &service{stores: storeRepo, popups: popupRepo, tx: tx, logg: logg, maxRetries: maxRetries}, nil
}

func (s *service) Handle(ctx context.Context, topic, shop string, body []byte) error {
	ctx = s.logg.WithFields(ctx, map[string]any{"topic": topic, "shop": shop})

	switch topic {
	case TopicAppUninstalled, TopicShopRedact, TopicCustomersRedact:
	case TopicCustomersDataRequest:
		// Submitted emails are visible to the merchant in the admin; nothing to export here.
		s.logg.Info(ctx, "customer data request acknowledged")
		return nil
	default:
		s.logg.Warn(ctx, "ignoring unhandled webhook topic")
		return nil
	}

	store, err := s.stores.FindByShop(ctx, shop)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Info(ctx, "webhook for unknown shop ignored")
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store")
	}
	ctx = s.logg.WithStoreID(ctx, store.ID.String())

	switch topic {
	case TopicAppUninstalled:
		return s.uninstall(ctx, store.ID)
	case TopicShopRedact:
		return s.redactShop(ctx, store.ID)
	default:
		return s.redactCustomer(ctx, store.ID, body)
	}
}

// uninstall forgets the access token and switches every popup off, so the
// storefront falls silent until the shop reinstalls.
func (s *service) uninstall(ctx context.Context, storeID uuid.UUID) error {
	var deactivated []uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.stores.WithTx(tx).ClearAccessToken(ctx, storeID); err != nil {
			return err
		}
		ids, err := s.popups.WithTx(tx).DeactivateOthers(ctx, storeID, uuid.Nil)
		deactivated = ids
		return err
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply uninstall")
	}
	s.logg.Info(s.logg.WithField(ctx, "deactivated", len(deactivated)), "shop uninstalled")
	return nil
}

func (s *service) redactShop(ctx context.Context, storeID uuid.UUID) error {
	var removed int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := s.popups.WithTx(tx).DeleteByStore(ctx, storeID)
		if err != nil {
			return err
		}
		removed = n
		return s.stores.WithTx(tx).Delete(ctx, storeID)
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redact shop")
	}
	s.logg.Info(s.logg.WithField(ctx, "popups_deleted", removed), "shop data redacted")
	return nil
}

type customerRedactPayload struct {
	Customer struct {
		Email string `json:"email"`
	} `json:"customer"`
}

// redactCustomer strips the customer's email from every popup log of the
// store. Each popup is rewritten under the version check.
func (s *service) redactCustomer(ctx context.Context, storeID uuid.UUID, body []byte) error {
	var payload customerRedactPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid customers/redact payload")
	}
	if payload.Customer.Email == "" {
		s.logg.Info(ctx, "customer redact without email ignored")
		return nil
	}

	rows, err := s.popups.ListByStore(ctx, storeID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list popups")
	}
	total := 0
	for _, row := range rows {
		n, err := s.redactPopup(ctx, row.ID, payload.Customer.Email)
		if err != nil {
			return err
		}
		total += n
	}
	s.logg.Info(s.logg.WithField(ctx, "entries_removed", total), "customer data redacted")
	return nil
}

func (s *service) redactPopup(ctx context.Context, popupID uuid.UUID, email string) (int, error) {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		popup, err := s.popups.FindByID(ctx, popupID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, nil
			}
			return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load popup")
		}
		cfg, err := rules.Parse(popup.Config)
		if err != nil {
			s.logg.Warn(s.logg.WithPopupID(ctx, popupID.String()), "skipping popup with unreadable config")
			return 0, nil
		}
		removed := cfg.RedactEmail(email)
		if removed == 0 {
			return 0, nil
		}
		raw, err := cfg.Marshal()
		if err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode popup config")
		}
		ok, err := s.popups.UpdateConfigIfVersion(ctx, popupID, popup.Version, raw)
		if err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write popup config")
		}
		if ok {
			return removed, nil
		}
	}
	return 0, pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "popup changed while redacting").
		WithDetails(map[string]any{"popup_id": popupID.String()})
}
