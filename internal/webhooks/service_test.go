package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/popcatch-backend/internal/popups"
	"github.com/angelmondragon/popcatch-backend/internal/rules"
	"github.com/angelmondragon/popcatch-backend/internal/stores"
	"github.com/angelmondragon/popcatch-backend/pkg/db/dbtest"
	"github.com/angelmondragon/popcatch-backend/pkg/db/models"
	"github.com/angelmondragon/popcatch-backend/pkg/enums"
	"github.com/angelmondragon/popcatch-backend/pkg/logger"
)

const shop = "demo.myshopify.com"

type fixture struct {
	svc      Service
	stores   *stores.Repository
	popups   popups.Repository
	storeID  uuid.UUID
	activeID uuid.UUID
}

func newFixture(t *testing.T, emails ...string) fixture {
	t.Helper()
	client := dbtest.Open(t)
	storeRepo := stores.NewRepository(client.DB())
	popupRepo := popups.NewRepository(client.DB())
	logg := logger.New(logger.Options{ServiceName: "webhooks-test", Output: io.Discard})
	svc, err := NewService(storeRepo, popupRepo, client, logg, 0)
	require.NoError(t, err)

	ctx := context.Background()
	token := "shpat_123"
	store, err := storeRepo.Upsert(ctx, shop, &token)
	require.NoError(t, err)

	cfg := rules.Default()
	for _, e := range emails {
		cfg.AppendSubmission(e, "", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	}
	raw, err := cfg.Marshal()
	require.NoError(t, err)
	active, err := popupRepo.Create(ctx, &models.Popup{StoreID: store.ID, Type: enums.PopupTypeOptIn, IsActive: true, Config: raw})
	require.NoError(t, err)

	return fixture{svc: svc, stores: storeRepo, popups: popupRepo, storeID: store.ID, activeID: active.ID}
}

func TestUninstallClearsTokenAndDeactivates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Handle(ctx, TopicAppUninstalled, shop, []byte(`{}`)))

	store, err := f.stores.FindByShop(ctx, shop)
	require.NoError(t, err)
	assert.Nil(t, store.AccessToken)

	popup, err := f.popups.FindByID(ctx, f.activeID)
	require.NoError(t, err)
	assert.False(t, popup.IsActive)
}

func TestShopRedactDeletesEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Handle(ctx, TopicShopRedact, shop, []byte(`{"shop_domain":"demo.myshopify.com"}`)))

	_, err := f.stores.FindByShop(ctx, shop)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	rows, err := f.popups.ListByStore(ctx, f.storeID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCustomerRedactRemovesEmailAndBumpsVersion(t *testing.T) {
	f := newFixture(t, "keep@example.com", "gone@example.com")
	ctx := context.Background()
	body, err := json.Marshal(map[string]any{"customer": map[string]any{"email": "GONE@example.com"}})
	require.NoError(t, err)

	require.NoError(t, f.svc.Handle(ctx, TopicCustomersRedact, shop, body))

	popup, err := f.popups.FindByID(ctx, f.activeID)
	require.NoError(t, err)
	assert.Equal(t, 2, popup.Version)
	cfg, err := rules.Parse(popup.Config)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep@example.com"}, cfg.Emails)
	require.NotNil(t, cfg.LastEmail)
	assert.Equal(t, "keep@example.com", *cfg.LastEmail)
}

func TestCustomerRedactWithoutMatchLeavesRow(t *testing.T) {
	f := newFixture(t, "keep@example.com")
	ctx := context.Background()

	require.NoError(t, f.svc.Handle(ctx, TopicCustomersRedact, shop, []byte(`{"customer":{"email":"nobody@example.com"}}`)))

	popup, err := f.popups.FindByID(ctx, f.activeID)
	require.NoError(t, err)
	assert.Equal(t, 1, popup.Version)
}

func TestCustomerRedactRejectsBadPayload(t *testing.T) {
	f := newFixture(t)
	assert.Error(t, f.svc.Handle(context.Background(), TopicCustomersRedact, shop, []byte(`not json`)))
}

func TestUnknownShopAndTopicAreAcknowledged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.NoError(t, f.svc.Handle(ctx, TopicAppUninstalled, "other.myshopify.com", nil))
	assert.NoError(t, f.svc.Handle(ctx, "orders/create", shop, nil))
	assert.NoError(t, f.svc.Handle(ctx, TopicCustomersDataRequest, shop, nil))

	store, err := f.stores.FindByShop(ctx, shop)
	require.NoError(t, err)
	assert.NotNil(t, store.AccessToken)
}
