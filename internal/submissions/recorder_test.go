package submissions

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/popcatch-backend/internal/popups"
	"github.com/angelmondragon/popcatch-backend/internal/rules"
	"github.com/angelmondragon/popcatch-backend/pkg/db/dbtest"
	"github.com/angelmondragon/popcatch-backend/pkg/db/models"
	"github.com/angelmondragon/popcatch-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/popcatch-backend/pkg/errors"
	"github.com/angelmondragon/popcatch-backend/pkg/outbox"
)

var fixedNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func strPtr(v string) *string { return &v }

// casRepo is an in-memory popups repository with the same version-check
// semantics as the SQL one.
type casRepo struct {
	popups.Repository
	mu     sync.Mutex
	rows   map[uuid.UUID]models.Popup
	writes int
}

func newCASRepo(popup models.Popup) *casRepo {
	return &casRepo{rows: map[uuid.UUID]models.Popup{popup.ID: popup}}
}

func (c *casRepo) WithTx(*gorm.DB) popups.Repository { return c }

func (c *casRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Popup, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	row, ok := c.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	row.Config = append(json.RawMessage(nil), row.Config...)
	return &row, nil
}

func (c *casRepo) UpdateConfigIfVersion(_ context.Context, id uuid.UUID, version int, config json.RawMessage) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	row, ok := c.rows[id]
	if !ok || row.Version != version {
		return false, nil
	}
	row.Config = config
	row.Version++
	c.rows[id] = row
	c.writes++
	return true, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type countingOutbox struct {
	mu     sync.Mutex
	events []outbox.DomainEvent
}

func (c *countingOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

// alwaysStale loses every version race.
type alwaysStale struct{ *casRepo }

func (a alwaysStale) WithTx(*gorm.DB) popups.Repository { return a }

func (alwaysStale) UpdateConfigIfVersion(context.Context, uuid.UUID, int, json.RawMessage) (bool, error) {
	return false, nil
}

func seedPopup(t *testing.T, raw string) models.Popup {
	t.Helper()
	return models.Popup{
		ID:       uuid.New(),
		StoreID:  uuid.New(),
		Type:     enums.PopupTypeOptIn,
		IsActive: true,
		Config:   json.RawMessage(raw),
		Version:  1,
	}
}

func TestConcurrentSubmissionsAreAllRecorded(t *testing.T) {
	const submitters = 12
	popup := seedPopup(t, `{"content":{"title":"Join"}}`)
	repo := newCASRepo(popup)
	events := &countingOutbox{}
	rec, err := NewRecorder(repo, passthroughTx{}, events, nil, nil, Options{
		MaxRetries: submitters + 1,
		BaseDelay:  time.Microsecond,
		Now:        func() time.Time { return fixedNow },
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, submitters)
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := rec.Record(context.Background(), popup.ID, fmt.Sprintf("visitor%d@example.com", i), nil)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := repo.FindByID(context.Background(), popup.ID)
	require.NoError(t, err)
	assert.Equal(t, 1+submitters, stored.Version)
	cfg, err := rules.Parse(stored.Config)
	require.NoError(t, err)
	assert.Len(t, cfg.Emails, submitters)
	assert.Len(t, events.events, submitters)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(stored.Config, &doc))
	assert.JSONEq(t, `{"title":"Join"}`, string(doc["content"]))
}

func TestRecordSurfacesConflictWhenRetriesRunOut(t *testing.T) {
	popup := seedPopup(t, `{}`)
	repo := alwaysStale{newCASRepo(popup)}
	events := &countingOutbox{}
	rec, err := NewRecorder(repo, passthroughTx{}, events, nil, nil, Options{MaxRetries: 3, BaseDelay: time.Microsecond})
	require.NoError(t, err)

	_, err = rec.Record(context.Background(), popup.ID, "a@example.com", nil)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConcurrencyConflict, typed.Code())
	assert.True(t, pkgerrors.MetadataFor(typed.Code()).Retryable)
	assert.Empty(t, events.events)
}

func TestRecordRequiresEmail(t *testing.T) {
	popup := seedPopup(t, `{}`)
	rec, err := NewRecorder(newCASRepo(popup), passthroughTx{}, &countingOutbox{}, nil, nil, Options{})
	require.NoError(t, err)

	_, err = rec.Record(context.Background(), popup.ID, "   ", nil)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestRecordUnknownPopup(t *testing.T) {
	rec, err := NewRecorder(newCASRepo(seedPopup(t, `{}`)), passthroughTx{}, &countingOutbox{}, nil, nil, Options{})
	require.NoError(t, err)

	_, err = rec.Record(context.Background(), uuid.New(), "a@example.com", nil)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestNewRecorderValidatesDependencies(t *testing.T) {
	repo := newCASRepo(seedPopup(t, `{}`))
	_, err := NewRecorder(nil, passthroughTx{}, &countingOutbox{}, nil, nil, Options{})
	assert.Error(t, err)
	_, err = NewRecorder(repo, nil, &countingOutbox{}, nil, nil, Options{})
	assert.Error(t, err)
	_, err = NewRecorder(repo, passthroughTx{}, nil, nil, nil, Options{})
	assert.Error(t, err)
}

func newSQLRecorder(t *testing.T) (Recorder, popups.Repository, *gorm.DB) {
	t.Helper()
	client := dbtest.Open(t)
	repo := popups.NewRepository(client.DB())
	pub := outbox.NewService(outbox.NewRepository(client.DB()), nil)
	rec, err := NewRecorder(repo, client, pub, nil, nil, Options{Now: func() time.Time { return fixedNow }})
	require.NoError(t, err)
	return rec, repo, client.DB()
}

func TestRecordPreservesRulesAndEmitsEvent(t *testing.T) {
	rec, repo, db := newSQLRecorder(t)
	ctx := context.Background()
	raw := `{"discount":{"discount_code":{"enabled":true,"discountValue":15}},"style":{"color":"#000"}}`
	popup, err := repo.Create(ctx, &models.Popup{StoreID: uuid.New(), Type: enums.PopupTypeOptIn, Config: json.RawMessage(raw)})
	require.NoError(t, err)

	cfg, err := rec.Record(ctx, popup.ID, " first@example.com ", strPtr("POPUP-AAAA1111"))
	require.NoError(t, err)
	assert.Equal(t, []string{"first@example.com"}, cfg.Emails)

	_, err = rec.Record(ctx, popup.ID, "second@example.com", nil)
	require.NoError(t, err)

	stored, err := repo.FindByID(ctx, popup.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Version)

	parsed, err := rules.Parse(stored.Config)
	require.NoError(t, err)
	assert.Equal(t, []string{"first@example.com", "second@example.com"}, parsed.Emails)
	assert.Equal(t, []string{"POPUP-AAAA1111"}, parsed.DiscountCodes)
	require.NotNil(t, parsed.LastEmail)
	assert.Equal(t, "second@example.com", *parsed.LastEmail)
	require.NotNil(t, parsed.UpdatedAt)
	assert.True(t, parsed.UpdatedAt.Equal(fixedNow))
	assert.True(t, parsed.Discount.DiscountCode.Enabled)
	assert.Equal(t, "15", parsed.Discount.DiscountCode.DiscountValue.String())

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(stored.Config, &doc))
	assert.JSONEq(t, `{"color":"#000"}`, string(doc["style"]))

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventPopupSubmissionRecorded).
		Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestRecordForStoreCreatesDefaultPopup(t *testing.T) {
	rec, repo, _ := newSQLRecorder(t)
	ctx := context.Background()
	storeID := uuid.New()

	cfg, err := rec.RecordForStore(ctx, storeID, "first@example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"first@example.com"}, cfg.Emails)

	listed, err := repo.ListByStore(ctx, storeID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.True(t, listed[0].IsActive)

	created, err := rules.Parse(listed[0].Config)
	require.NoError(t, err)
	def := rules.Default()
	assert.Equal(t, def.Trigger, created.Trigger)
	assert.Equal(t, def.PageRules.Type, created.PageRules.Type)
	assert.Equal(t, def.LocationRules.Type, created.LocationRules.Type)
	assert.Equal(t, "none", created.Strategy().Name())

	_, err = rec.RecordForStore(ctx, storeID, "second@example.com", nil)
	require.NoError(t, err)
	listed, err = repo.ListByStore(ctx, storeID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
}

func TestRecordForStoreWithoutActivePopup(t *testing.T) {
	rec, repo, _ := newSQLRecorder(t)
	ctx := context.Background()
	storeID := uuid.New()
	_, err := repo.Create(ctx, &models.Popup{StoreID: storeID, Type: enums.PopupTypeOptIn, Config: json.RawMessage(`{}`)})
	require.NoError(t, err)

	_, err = rec.RecordForStore(ctx, storeID, "a@example.com", nil)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestBackoffStaysWithinJitterWindow(t *testing.T) {
	rec := &recorder{opts: Options{BaseDelay: 20 * time.Millisecond}}
	for attempt := 1; attempt <= 4; attempt++ {
		base := time.Duration(attempt) * 20 * time.Millisecond
		for range 50 {
			d := rec.backoff(attempt)
			assert.GreaterOrEqual(t, d, base)
			assert.Less(t, d, base+jitterWindow)
		}
	}
}
