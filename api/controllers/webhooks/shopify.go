package webhooks

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/popcatch-backend/api/responses"
	"github.com/angelmondragon/popcatch-backend/internal/webhooks"
	"github.com/angelmondragon/popcatch-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/popcatch-backend/pkg/errors"
	"github.com/angelmondragon/popcatch-backend/pkg/logger"
)

const (
	topicHeader     = "X-Shopify-Topic"
	shopHeader      = "X-Shopify-Shop-Domain"
	webhookIDHeader = "X-Shopify-Webhook-Id"
	maxWebhookBody  = 1 << 20
)

// Guard deduplicates deliveries by webhook id.
type Guard interface {
	CheckAndMark(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

// ShopifyWebhook verifies and applies Shopify lifecycle and privacy webhooks.
// guard may be nil, in which case redeliveries are applied again.
func ShopifyWebhook(svc webhooks.Service, secret string, guard Guard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}
		if len(payload) > maxWebhookBody {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "webhook body too large"))
			return
		}

		if !auth.VerifyWebhook(payload, r.Header.Get(auth.WebhookHMACHeader), secret) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		topic := strings.TrimSpace(r.Header.Get(topicHeader))
		shop := strings.ToLower(strings.TrimSpace(r.Header.Get(shopHeader)))
		if topic == "" || shop == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "webhook topic and shop headers are required"))
			return
		}

		id := strings.TrimSpace(r.Header.Get(webhookIDHeader))
		if guard != nil && id != "" {
			seen, err := guard.CheckAndMark(ctx, id)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
				return
			}
			if seen {
				responses.WriteSuccess(w, nil)
				return
			}
		}

		if err := svc.Handle(ctx, topic, shop, payload); err != nil {
			if guard != nil && id != "" {
				_ = guard.Release(ctx, id)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithFields(ctx, map[string]any{"topic": topic, "webhook_id": id}), "shopify webhook processed")
		}
		responses.WriteSuccess(w, nil)
	}
}
