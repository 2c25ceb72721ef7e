package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Dallionking/donna-assistant/internal/domain"
	"github.com/Dallionking/donna-assistant/internal/engine"
	"github.com/Dallionking/donna-assistant/internal/repo"
)

type projectOutput struct {
	Body domain.Project `json:"body"`
}

type projectsOutput struct {
	Body []domain.Project `json:"body"`
}

type statusOutput struct {
	Body domain.PRDStatus `json:"body"`
}

type projectPath struct {
	ProjectID string `path:"project_id" doc:"Project id or display name"`
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "register-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Register project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body ProjectCreateRequest `json:"body"`
	}) (*projectOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		tier := input.Body.Tier
		if tier == "" {
			tier = domain.TierRotating
		}
		p, err := e.RegisterProject(ctx, engine.ProjectInput{
			ID:          input.Body.ID,
			DisplayName: input.Body.DisplayName,
			RootPath:    input.Body.RootPath,
			Tier:        tier,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &projectOutput{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*projectsOutput, error) {
		items, err := e.ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Project{}
		}
		return &projectsOutput{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-attention",
		Method:      http.MethodGet,
		Path:        "/attention",
		Summary:     "Projects not worked recently",
	}, func(ctx context.Context, _ *struct{}) (*projectsOutput, error) {
		items, err := e.NeedingAttention(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Project{}
		}
		return &projectsOutput{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project with its status",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body ProjectDetail `json:"body"`
	}, error) {
		p, err := e.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		detail := ProjectDetail{Project: p}
		st, err := e.Repo.GetStatus(ctx, nil, p.ID)
		switch {
		case err == nil:
			detail.Status = &st
		case !errors.Is(err, repo.ErrNotFound):
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectDetail `json:"body"`
		}{Body: detail}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-project-tier",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/tier",
		Summary:     "Change priority tier",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ProjectID string      `path:"project_id"`
		Body      TierRequest `json:"body"`
	}) (*projectOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.SetTier(ctx, input.ProjectID, input.Body.Tier, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &projectOutput{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "deactivate-project",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/deactivate",
		Summary:     "Deactivate project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*projectOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.DeactivateProject(ctx, input.ProjectID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &projectOutput{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project-status",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/status",
		Summary:     "Project PRD status",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*statusOutput, error) {
		st, err := e.ProjectStatus(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &statusOutput{Body: st}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-project-status",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/status",
		Summary:     "Report PRD status",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ProjectID string        `path:"project_id"`
		Body      StatusRequest `json:"body"`
	}) (*statusOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		next := domain.PRDStatus{
			CurrentItemID:       input.Body.CurrentItemID,
			CurrentItemProgress: input.Body.CurrentItemProgress,
			NextItemID:          input.Body.NextItemID,
			PhasePriority:       input.Body.PhasePriority,
		}
		if next.PhasePriority == "" {
			next.PhasePriority = domain.PhaseP2
		}
		st, err := e.UpdateStatus(ctx, input.ProjectID, next, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &statusOutput{Body: st}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-project-item",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/complete",
		Summary:     "Mark the current item complete",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *projectPath) (*statusOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		st, err := e.MarkComplete(ctx, input.ProjectID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &statusOutput{Body: st}, nil
	})
}

type templateOutput struct {
	Body TemplateBody `json:"body"`
}

func registerTemplate(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-template",
		Method:      http.MethodGet,
		Path:        "/template",
		Summary:     "Routine template",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*templateOutput, error) {
		tmpl, err := e.GetTemplate(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &templateOutput{Body: templateBody(tmpl)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-template",
		Method:      http.MethodPut,
		Path:        "/template",
		Summary:     "Replace routine template",
		Errors:      []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body TemplateBody `json:"body"`
	}) (*templateOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		tmpl, err := input.Body.toDomain()
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		stored, err := e.SetTemplate(ctx, tmpl, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &templateOutput{Body: templateBody(stored)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-template-slot",
		Method:      http.MethodPut,
		Path:        "/template/slots/{name}",
		Summary:     "Add or replace a slot",
		Errors:      []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Name string   `path:"name"`
		Body SlotBody `json:"body"`
	}) (*templateOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		input.Body.Name = input.Name
		slot, err := input.Body.toDomain()
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		stored, err := e.SetSlot(ctx, slot, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &templateOutput{Body: templateBody(stored)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-template-slot",
		Method:      http.MethodDelete,
		Path:        "/template/slots/{name}",
		Summary:     "Remove a slot",
		Errors:      []int{http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name"`
	}) (*templateOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		stored, err := e.RemoveSlot(ctx, input.Name, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &templateOutput{Body: templateBody(stored)}, nil
	})
}
