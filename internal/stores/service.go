package stores

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/popcatch-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/popcatch-backend/pkg/errors"
	"github.com/angelmondragon/popcatch-backend/pkg/shopify"
)

type storeRepository interface {
	Upsert(ctx context.Context, shop string, accessToken *string) (*models.Store, error)
	FindByShop(ctx context.Context, shop string) (*models.Store, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Store, error)
}

// Service exposes store operations.
type Service interface {
	Upsert(ctx context.Context, shop string, accessToken *string) (*StoreDTO, error)
	GetByShop(ctx context.Context, shop string) (*StoreDTO, error)
	GetByID(ctx context.Context, id uuid.UUID) (*StoreDTO, error)
}

type service struct {
	repo storeRepository
}

// NewService builds a store service with the provided repository.
func NewService(repo storeRepository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("store repository required")
	}
	return &service{repo: repo}, nil
}

// NormalizeShop lowercases and validates a myshopify domain.
func NormalizeShop(shop string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(shop))
	if !shopify.ValidShopDomain(normalized) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid shop domain").
			WithDetails(map[string]any{"shop": shop})
	}
	return normalized, nil
}

func (s *service) Upsert(ctx context.Context, shop string, accessToken *string) (*StoreDTO, error) {
	normalized, err := NormalizeShop(shop)
	if err != nil {
		return nil, err
	}
	if accessToken != nil {
		trimmed := strings.TrimSpace(*accessToken)
		if trimmed == "" {
			accessToken = nil
		} else {
			accessToken = &trimmed
		}
	}
	store, err := s.repo.Upsert(ctx, normalized, accessToken)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert store")
	}
	return FromModel(store), nil
}

func (s *service) GetByShop(ctx context.Context, shop string) (*StoreDTO, error) {
	normalized, err := NormalizeShop(shop)
	if err != nil {
		return nil, err
	}
	store, err := s.repo.FindByShop(ctx, normalized)
	if err != nil {
		return nil, mapLookupError(err)
	}
	return FromModel(store), nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*StoreDTO, error) {
	store, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err)
	}
	return FromModel(store), nil
}

func mapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store")
}
