package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/popcatch-backend/pkg/db/dbtest"
	"github.com/angelmondragon/popcatch-backend/pkg/db/models"
	"github.com/angelmondragon/popcatch-backend/pkg/enums"
	"github.com/angelmondragon/popcatch-backend/pkg/outbox"
)

const limitedRules = `{
  "discount": {"discount_code": {"enabled": true, "discountType": "percentage", "discountValue": "-10"}},
  "frequency": {"type": "LIMIT", "limit": {"count": 2, "per": "Week"}},
  "page_rules": {"type": "SPECIFIC", "matchOption": "any", "conditions": [{"match": "StartsWith", "value": "/products"}]},
  "location_rules": {"type": "INCLUDE", "countries": ["us", "CA"]}
}`

func writeRules(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := newRootCmd(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateSummarizesDocument(t *testing.T) {
	out, err := run(t, "validate", writeRules(t, limitedRules))
	require.NoError(t, err)

	var report validateReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.Valid)
	assert.Equal(t, "auto_code", report.Strategy)
	assert.Equal(t, "LIMIT", report.Frequency)
	assert.Equal(t, "SPECIFIC", report.Pages)
	assert.Equal(t, "INCLUDE", report.Locations)
}

func TestValidateRejectsUnknownEnum(t *testing.T) {
	_, err := run(t, "validate", writeRules(t, `{"frequency":{"type":"SOMETIMES"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
}

func TestValidateMissingFile(t *testing.T) {
	_, err := run(t, "validate", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestEvaluateShowsEligibleVisitor(t *testing.T) {
	out, err := run(t, "evaluate", writeRules(t, limitedRules),
		"--path", "/products/hat", "--country", "US", "--at", "2024-06-05T10:00:00Z", "--impressions", "1")
	require.NoError(t, err)

	var report struct {
		Show    bool     `json:"show"`
		Reasons []string `json:"reasons"`
		Window  string   `json:"window"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.Show)
	assert.Equal(t, []string{"eligible"}, report.Reasons)
	assert.Equal(t, "w2024-06-03", report.Window)
}

func TestEvaluateHidesWithFirstFailingReason(t *testing.T) {
	path := writeRules(t, limitedRules)

	cases := []struct {
		name   string
		args   []string
		reason string
	}{
		{name: "country", args: []string{"--path", "/products/hat", "--country", "DE"}, reason: "location_not_included"},
		{name: "page", args: []string{"--path", "/cart", "--country", "US"}, reason: "page_not_matched"},
		{name: "frequency", args: []string{"--path", "/products/hat", "--country", "CA", "--impressions", "2"}, reason: "frequency_capped"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := run(t, append([]string{"evaluate", path}, tc.args...)...)
			require.NoError(t, err)
			var report struct {
				Show    bool     `json:"show"`
				Reasons []string `json:"reasons"`
			}
			require.NoError(t, json.Unmarshal([]byte(out), &report))
			assert.False(t, report.Show)
			assert.Equal(t, []string{tc.reason}, report.Reasons)
		})
	}
}

func TestEvaluateRejectsBadFlags(t *testing.T) {
	path := writeRules(t, limitedRules)

	_, err := run(t, "evaluate", path, "--at", "yesterday")
	require.Error(t, err)

	_, err = run(t, "evaluate", path, "--tz", "Mars/Olympus")
	require.Error(t, err)

	_, err = run(t, "evaluate", path, "--impressions", "-1")
	require.Error(t, err)
}

func runDLQ(t *testing.T, reader dlqReader, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := newDLQCmd(func(context.Context) (dlqReader, func() error, error) {
		return reader, func() error { return nil }, nil
	})
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func seedDeadLetter(t *testing.T) (*outbox.DLQRepository, uuid.UUID) {
	t.Helper()
	client := dbtest.Open(t)
	repo := outbox.NewDLQRepository(client.DB())
	eventID := uuid.New()
	msg := "topic missing"
	require.NoError(t, client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return repo.InsertTx(tx, models.OutboxDLQ{
			EventID:       eventID,
			EventType:     enums.EventPopupSubmissionRecorded,
			AggregateType: enums.AggregatePopup,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			ErrorReason:   enums.OutboxDLQReasonNonRetryable,
			ErrorMessage:  &msg,
			AttemptCount:  1,
		})
	}))
	return repo, eventID
}

func TestDLQListAndShow(t *testing.T) {
	repo, eventID := seedDeadLetter(t)

	out, err := runDLQ(t, repo, "list", "--limit", "5")
	require.NoError(t, err)
	var listed []dlqEntry
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, eventID, listed[0].EventID)
	assert.Equal(t, "non_retryable", listed[0].Reason)
	assert.Equal(t, "topic missing", listed[0].Error)

	out, err = runDLQ(t, repo, "show", eventID.String())
	require.NoError(t, err)
	var shown dlqEntry
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, "popup_submission_recorded", shown.EventType)
}

func TestDLQRejectsBadInput(t *testing.T) {
	repo, _ := seedDeadLetter(t)

	_, err := runDLQ(t, repo, "show", "not-a-uuid")
	assert.Error(t, err)
	_, err = runDLQ(t, repo, "show", uuid.NewString())
	assert.ErrorContains(t, err, "no dead letter")
	_, err = runDLQ(t, repo, "list", "--limit", "0")
	assert.Error(t, err)
}
