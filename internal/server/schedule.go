package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Dallionking/donna-assistant/internal/domain"
	"github.com/Dallionking/donna-assistant/internal/engine"
	"github.com/Dallionking/donna-assistant/internal/notify"
)

type dayOutput struct {
	Body domain.ScheduleDay `json:"body"`
}

type daysOutput struct {
	Body []domain.ScheduleDay `json:"body"`
}

type datePath struct {
	Date string `path:"date" doc:"YYYY-MM-DD, today or tomorrow"`
}

// dayTransition registers a POST /days/{date}/<verb> operation.
func dayTransition(api huma.API, e engine.Engine, id, verb, summary string, fn func(ctx context.Context, date, actorID string) (domain.ScheduleDay, error)) {
	huma.Register(api, huma.Operation{
		OperationID: id,
		Method:      http.MethodPost,
		Path:        "/days/{date}/" + verb,
		Summary:     summary,
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *datePath) (*dayOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		date, derr := resolveDate(e, input.Date)
		if derr != nil {
			return nil, derr
		}
		day, err := fn(ctx, date, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &dayOutput{Body: day}, nil
	})
}

func registerDays(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-days",
		Method:      http.MethodGet,
		Path:        "/days",
		Summary:     "List schedule days",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		From string `query:"from" doc:"Inclusive start date"`
		To   string `query:"to" doc:"Inclusive end date"`
	}) (*daysOutput, error) {
		from, to := input.From, input.To
		var derr huma.StatusError
		if from != "" {
			if from, derr = resolveDate(e, from); derr != nil {
				return nil, derr
			}
		}
		if to != "" {
			if to, derr = resolveDate(e, to); derr != nil {
				return nil, derr
			}
		}
		days, err := e.ListDays(ctx, from, to)
		if err != nil {
			return nil, handleError(err)
		}
		if days == nil {
			days = []domain.ScheduleDay{}
		}
		return &daysOutput{Body: days}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-day",
		Method:      http.MethodGet,
		Path:        "/days/{date}",
		Summary:     "Get a schedule day",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *datePath) (*dayOutput, error) {
		date, derr := resolveDate(e, input.Date)
		if derr != nil {
			return nil, derr
		}
		day, err := e.GetDay(ctx, date)
		if err != nil {
			return nil, handleError(err)
		}
		return &dayOutput{Body: day}, nil
	})

	dayTransition(api, e, "plan-day", "plan", "Plan or replan a day", e.PlanDay)
	dayTransition(api, e, "propose-day", "propose", "Propose a day for approval", e.ProposeDay)
	dayTransition(api, e, "approve-day", "approve", "Approve a proposed day", e.ApproveDay)
	dayTransition(api, e, "activate-day", "activate", "Activate an approved day", e.ActivateDay)

	huma.Register(api, huma.Operation{
		OperationID: "override-block",
		Method:      http.MethodPost,
		Path:        "/days/{date}/overrides",
		Summary:     "Override a time range",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Date string          `path:"date"`
		Body OverrideRequest `json:"body"`
	}) (*dayOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		date, derr := resolveDate(e, input.Date)
		if derr != nil {
			return nil, derr
		}
		start, err := domain.ParseClock(input.Body.Start)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"start": input.Body.Start})
		}
		end, err := domain.ParseClock(input.Body.End)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"end": input.Body.End})
		}
		day, err := e.OverrideBlock(ctx, engine.OverrideInput{
			Date:    date,
			Start:   start,
			End:     end,
			Project: input.Body.Project,
			Label:   input.Body.Label,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &dayOutput{Body: day}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "skip-project",
		Method:      http.MethodPost,
		Path:        "/days/{date}/skips",
		Summary:     "Skip a project for the day",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Date string      `path:"date"`
		Body SkipRequest `json:"body"`
	}) (*dayOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		date, derr := resolveDate(e, input.Date)
		if derr != nil {
			return nil, derr
		}
		day, err := e.SkipProject(ctx, date, input.Body.Project, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &dayOutput{Body: day}, nil
	})
}

func registerBoundary(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "evening-rollover",
		Method:      http.MethodPost,
		Path:        "/boundary/rollover",
		Summary:     "Archive today and propose tomorrow",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.RolloverResult `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.EveningRollover(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.RolloverResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "morning-brief",
		Method:      http.MethodPost,
		Path:        "/boundary/brief",
		Summary:     "Activate today and build the morning brief",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body notify.Brief `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		brief, err := e.MorningBrief(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body notify.Brief `json:"body"`
		}{Body: brief}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "block-reminders",
		Method:      http.MethodPost,
		Path:        "/boundary/remind",
		Summary:     "Announce active-day blocks that are running now",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []notify.Reminder `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		reminders, err := e.BlockReminders(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		if reminders == nil {
			reminders = []notify.Reminder{}
		}
		return &struct {
			Body []notify.Reminder `json:"body"`
		}{Body: reminders}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "week-ahead",
		Method:      http.MethodPost,
		Path:        "/boundary/week-ahead",
		Summary:     "Preview the next seven days",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body notify.WeekAhead `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		w, err := e.WeekAhead(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body notify.WeekAhead `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "weekly-review",
		Method:      http.MethodPost,
		Path:        "/boundary/weekly-review",
		Summary:     "Sum up project time over the last seven days",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body notify.WeeklyReview `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		r, err := e.WeeklyReview(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body notify.WeeklyReview `json:"body"`
		}{Body: r}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resync",
		Method:      http.MethodPost,
		Path:        "/boundary/resync",
		Summary:     "Re-resolve today and tomorrow against bookings",
	}, func(ctx context.Context, _ *struct{}) (*daysOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		days, err := e.Resync(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		if days == nil {
			days = []domain.ScheduleDay{}
		}
		return &daysOutput{Body: days}, nil
	})
}
