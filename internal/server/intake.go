package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Dallionking/donna-assistant/internal/booking/calendly"
	"github.com/Dallionking/donna-assistant/internal/command"
	"github.com/Dallionking/donna-assistant/internal/domain"
	"github.com/Dallionking/donna-assistant/internal/engine"
)

type ingestOutput struct {
	Body engine.IngestResult `json:"body"`
}

func registerCommands(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "apply-command",
		Method:      http.MethodPost,
		Path:        "/commands",
		Summary:     "Interpret and apply a command",
		Description: "Accepts either free text or a structured intent/target/action triple. " +
			"Mutations without a trigger phrase are staged until the same actor confirms.",
		Errors: []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body command.Raw `json:"body"`
	}) (*struct {
		Body command.Outcome `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		out, err := e.ApplyCommand(ctx, input.Body, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body command.Outcome `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-pending-command",
		Method:      http.MethodGet,
		Path:        "/commands/pending",
		Summary:     "Command awaiting confirmation",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body command.Pending `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		pending, err := e.PendingCommand(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		if pending == nil {
			return nil, newAPIError(http.StatusNotFound, "nothing_pending", domain.ErrNothingPending.Error(), nil)
		}
		return &struct {
			Body command.Pending `json:"body"`
		}{Body: *pending}, nil
	})
}

func registerBookings(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "ingest-bookings",
		Method:      http.MethodPost,
		Path:        "/bookings",
		Summary:     "Ingest booking events",
		Errors:      []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body BookingsRequest `json:"body"`
	}) (*ingestOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		source := input.Body.Source
		if source == "" {
			source = "api"
		}
		res, err := e.IngestBookings(ctx, source, input.Body.Bookings, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &ingestOutput{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-day-bookings",
		Method:      http.MethodGet,
		Path:        "/days/{date}/bookings",
		Summary:     "Bookings touching a day",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *datePath) (*struct {
		Body []domain.BookingEvent `json:"body"`
	}, error) {
		date, derr := resolveDate(e, input.Date)
		if derr != nil {
			return nil, derr
		}
		items, err := e.Bookings(ctx, date)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.BookingEvent{}
		}
		return &struct {
			Body []domain.BookingEvent `json:"body"`
		}{Body: items}, nil
	})
}

func registerCalendlyWebhook(api huma.API, cfg Config) {
	e := cfg.Engine
	huma.Register(api, huma.Operation{
		OperationID: "calendly-webhook",
		Method:      http.MethodPost,
		Path:        "/webhooks/calendly",
		Summary:     "Calendly invitee webhook",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Signature string `header:"Calendly-Webhook-Signature"`
		RawBody   []byte
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		body := input.RawBody
		if len(body) == 0 {
			body = bodyBytes(ctx)
		}
		if cfg.CalendlySecret != "" {
			if err := calendly.Verify(cfg.CalendlySecret, body, input.Signature, time.Now(), calendly.DefaultTolerance); err != nil {
				e.Log.Warn().Err(err).Msg("calendly webhook rejected")
				return nil, newAPIError(http.StatusUnauthorized, "invalid_signature", err.Error(), nil)
			}
		}
		event, b, err := calendly.ParseWebhook(body)
		if errors.Is(err, calendly.ErrIgnoredEvent) {
			return &struct {
				Body map[string]any `json:"body"`
			}{Body: map[string]any{"status": "ignored", "event": event}}, nil
		}
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		res, err := e.IngestBookings(ctx, calendly.Source, []domain.BookingEvent{b}, calendly.Source)
		if err != nil {
			return nil, handleError(err)
		}
		e.Log.Info().Str("event", event).Str("booking", b.SourceID).Int("changed", res.Changed).Msg("calendly webhook")
		if res.Changed > 0 && cfg.OnBooking != nil {
			cfg.OnBooking()
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{"status": "accepted", "event": event, "changed": res.Changed}}, nil
	})
}

func registerKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/me/keys",
		Summary:       "Issue an API key for the calling actor",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body APIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyCreated `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		key, plain, err := e.CreateAPIKey(ctx, actorID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyCreated `json:"body"`
		}{Body: APIKeyCreated{Key: key, Plaintext: plain}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/me/keys",
		Summary:     "List the calling actor's API keys",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.APIKey `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := e.ListAPIKeys(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		if keys == nil {
			keys = []domain.APIKey{}
		}
		return &struct {
			Body []domain.APIKey `json:"body"`
		}{Body: keys}, nil
	})
}
