package responses

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	pkgerrors "github.com/angelmondragon/popcatch-backend/pkg/errors"
	"github.com/angelmondragon/popcatch-backend/pkg/logger"
	"github.com/angelmondragon/popcatch-backend/pkg/types"
)

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

// WriteRaw renders payload without the data envelope. The storefront script
// consumes these bodies directly.
func WriteRaw(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, status, payload)
}

func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	typed, meta := classify(err)

	payload := types.ErrorEnvelope{
		Error: types.APIError{
			Code:    string(typed.Code()),
			Message: publicMessage(typed, meta),
		},
	}

	if meta.DetailsAllowed {
		if details := typed.Details(); details != nil {
			payload.Error.Details = details
		}
	}

	logRequestError(ctx, logg, err, typed)
	writeJSON(w, meta.HTTPStatus, payload)
}

// WriteStorefrontError renders the flat {error, details} body used by the
// storefront submission endpoint.
func WriteStorefrontError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	typed, meta := classify(err)

	payload := types.StorefrontError{
		Error: publicMessage(typed, meta),
		Code:  string(typed.Code()),
	}
	if meta.DetailsAllowed {
		payload.Details = typed.Details()
	}

	logRequestError(ctx, logg, err, typed)
	writeJSON(w, meta.HTTPStatus, payload)
}

func classify(err error) (*pkgerrors.Error, pkgerrors.Metadata) {
	if err == nil {
		err = errors.New("unknown error")
	}

	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	return typed, pkgerrors.MetadataFor(typed.Code())
}

func publicMessage(typed *pkgerrors.Error, meta pkgerrors.Metadata) string {
	msg := meta.PublicMessage
	switch typed.Code() {
	case pkgerrors.CodeValidation,
		pkgerrors.CodeForbidden,
		pkgerrors.CodeUnauthorized,
		pkgerrors.CodeNotFound,
		pkgerrors.CodeConflict,
		pkgerrors.CodeStateConflict,
		pkgerrors.CodeIdempotency,
		pkgerrors.CodeRateLimit,
		pkgerrors.CodeUpstream,
		pkgerrors.CodeConcurrencyConflict:
		if m := typed.Message(); m != "" {
			msg = m
		}
	}
	return msg
}

func logRequestError(ctx context.Context, logg *logger.Logger, err error, typed *pkgerrors.Error) {
	if logg == nil {
		return
	}
	dump := pkgerrors.Dump(err)

	fields := map[string]any{
		"error":         dump.TopMessage,
		"error_code":    dump.Code,
		"error_chain":   dump.Chain,
		"pg_code":       dump.PGCode,
		"pg_detail":     dump.PGDetail,
		"pg_message":    dump.PGMessage,
		"pg_table":      dump.PGTable,
		"pg_column":     dump.PGColumn,
		"pg_constraint": dump.PGConstraint,
	}

	if d := typed.Details(); d != nil {
		if dm, ok := d.(map[string]any); ok {
			if step, ok := dm["step"]; ok {
				fields["step"] = step
			}
			if status, ok := dm["status"]; ok {
				fields["upstream_status"] = status
			}
		}
	}

	ctx = logg.WithFields(ctx, fields)
	if pkgerrors.MetadataFor(typed.Code()).HTTPStatus < http.StatusInternalServerError {
		logg.Warn(ctx, "request.error")
		return
	}
	logg.Error(ctx, "request.error", err)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf(`{"level":"error","msg":"failed to encode response","err":"%v"}`, err)
	}
}
