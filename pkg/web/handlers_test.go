package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/onramp/pkg/models"
	"github.com/dukex/onramp/pkg/reconcile"
	"github.com/dukex/onramp/pkg/services"
	"github.com/dukex/onramp/pkg/store/memory"
	"github.com/dukex/onramp/pkg/web"
)

type testEnv struct {
	app         *fiber.App
	store       *memory.Store
	templates   *services.Templates
	onboardings *services.Onboardings
}

// problemBody is the RFC 7807 shape the error helpers respond with.
type problemBody struct {
	Type   string `json:"type"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	st, err := memory.NewStore(testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close(context.Background()) })

	templateService := services.NewTemplates(st, testLogger(), reconcile.New(st, testLogger()))
	onboardingService := services.NewOnboardings(st, testLogger())

	handlers := web.NewAPIHandlers(templateService, onboardingService, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()

	tg := app.Group("/templates")
	tg.Get("/", handlers.GetTemplates)
	tg.Post("/", handlers.CreateTemplate)
	tg.Get("/:id", handlers.GetTemplate)
	tg.Patch("/:id", handlers.UpdateTemplate)
	tg.Delete("/:id", handlers.DeleteTemplate)

	og := app.Group("/onboardings")
	og.Get("/", handlers.GetOnboardings)
	og.Post("/", handlers.CreateOnboarding)
	og.Get("/:id", handlers.GetOnboarding)
	og.Patch("/:id/steps/:position", handlers.UpdateOnboardingStep)
	og.Delete("/:id", handlers.DeleteOnboarding)

	app.Get("/healthz", handlers.HealthCheck)

	return &testEnv{app: app, store: st, templates: templateService, onboardings: onboardingService}
}

func (e *testEnv) request(t *testing.T, method, path string, payload any) *http.Response {
	t.Helper()

	var body io.Reader

	switch p := payload.(type) {
	case nil:
	case string:
		body = bytes.NewReader([]byte(p))
	default:
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.app.Test(req)
	require.NoError(t, err)

	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	defer func() { _ = resp.Body.Close() }()

	var out T

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return out
}

func (e *testEnv) createTemplate(t *testing.T, name string, titles ...string) models.Template {
	t.Helper()

	steps := make([]models.Step, 0, len(titles))
	for _, title := range titles {
		steps = append(steps, models.Step{Title: title})
	}

	created, err := e.templates.Create(context.Background(), &models.Template{
		Name:  name,
		Role:  "engineering",
		Steps: steps,
	})
	require.NoError(t, err)

	return *created
}

func TestAPIHandlers_CreateTemplate(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
	}{
		{
			name: "successful creation",
			requestBody: web.CreateTemplateRequest{
				Name:        "Engineering Onboarding",
				Description: "Plan for engineering hires",
				Role:        "engineering",
				Steps:       []models.Step{{Title: "Laptop"}, {Title: "Accounts"}},
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "validation error - missing name",
			requestBody:    web.CreateTemplateRequest{Description: "No name"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "validation error - name too short",
			requestBody:    web.CreateTemplateRequest{Name: "ab"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "validation error - step without title",
			requestBody: web.CreateTemplateRequest{
				Name:  "Engineering Onboarding",
				Steps: []models.Step{{Description: "no title"}},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid JSON",
			requestBody:    "not-json",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestApp(t)

			resp := env.request(t, http.MethodPost, "/templates", tt.requestBody)

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedStatus == http.StatusCreated {
				created := decodeBody[models.Template](t, resp)
				assert.NotEmpty(t, created.ID)
				assert.Equal(t, "Engineering Onboarding", created.Name)
				assert.True(t, created.IsActive)
				require.Len(t, created.Steps, 2)
				assert.Equal(t, 1, created.Steps[0].Position)
				assert.Equal(t, models.StepStatusPending, created.Steps[1].Status)
			} else {
				_ = resp.Body.Close()
			}
		})
	}
}

func TestAPIHandlers_GetTemplates(t *testing.T) {
	env := setupTestApp(t)

	resp := env.request(t, http.MethodGet, "/templates", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	empty := decodeBody[struct {
		Templates  []models.Template `json:"templates"`
		TotalCount int               `json:"total_count"`
	}](t, resp)
	assert.Empty(t, empty.Templates)
	assert.Equal(t, 0, empty.TotalCount)

	env.createTemplate(t, "Sales Onboarding", "CRM access")
	env.createTemplate(t, "Engineering Onboarding", "Laptop")

	resp = env.request(t, http.MethodGet, "/templates", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	listed := decodeBody[struct {
		Templates  []models.Template `json:"templates"`
		TotalCount int               `json:"total_count"`
	}](t, resp)
	require.Equal(t, 2, listed.TotalCount)
	assert.Equal(t, "Engineering Onboarding", listed.Templates[0].Name)
}

func TestAPIHandlers_GetTemplate(t *testing.T) {
	env := setupTestApp(t)
	created := env.createTemplate(t, "Engineering Onboarding", "Laptop")

	resp := env.request(t, http.MethodGet, "/templates/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	fetched := decodeBody[models.Template](t, resp)
	assert.Equal(t, created.ID, fetched.ID)

	resp = env.request(t, http.MethodGet, "/templates/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	problem := decodeBody[problemBody](t, resp)
	assert.Equal(t, "not_found", problem.Type)
}

func TestAPIHandlers_UpdateTemplate(t *testing.T) {
	env := setupTestApp(t)
	created := env.createTemplate(t, "Engineering Onboarding", "Laptop", "Accounts")

	name := "Engineering Onboarding v2"
	resp := env.request(t, http.MethodPatch, "/templates/"+created.ID, web.UpdateTemplateRequest{Name: &name})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	updated := decodeBody[models.Template](t, resp)
	assert.Equal(t, name, updated.Name)
	// A patch without steps leaves the plan untouched.
	require.Len(t, updated.Steps, 2)

	steps := []models.Step{{Title: "Accounts"}, {Title: "Badge"}}
	resp = env.request(t, http.MethodPatch, "/templates/"+created.ID, web.UpdateTemplateRequest{Steps: &steps})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	updated = decodeBody[models.Template](t, resp)
	require.Len(t, updated.Steps, 2)
	assert.Equal(t, "Accounts", updated.Steps[0].Title)
	assert.Equal(t, 2, updated.Steps[1].Position)

	short := "ab"
	resp = env.request(t, http.MethodPatch, "/templates/"+created.ID, web.UpdateTemplateRequest{Name: &short})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	resp = env.request(t, http.MethodPatch, "/templates/missing", web.UpdateTemplateRequest{Name: &name})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAPIHandlers_DeleteTemplate(t *testing.T) {
	env := setupTestApp(t)
	created := env.createTemplate(t, "Engineering Onboarding", "Laptop")

	resp := env.request(t, http.MethodDelete, "/templates/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_ = resp.Body.Close()

	resp = env.request(t, http.MethodGet, "/templates/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()

	resp = env.request(t, http.MethodDelete, "/templates/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAPIHandlers_CreateOnboarding(t *testing.T) {
	env := setupTestApp(t)
	tmpl := env.createTemplate(t, "Engineering Onboarding", "Laptop", "Accounts")

	tests := []struct {
		name           string
		requestBody    any
		expectedStatus int
		expectedType   string
		validateResult func(t *testing.T, created models.Onboarding)
	}{
		{
			name: "bare creation with seeded steps",
			requestBody: web.CreateOnboardingRequest{
				EmployeeName: "Ada Lovelace",
				Steps:        []models.Step{{Title: "Custom intro"}},
			},
			expectedStatus: http.StatusCreated,
			validateResult: func(t *testing.T, created models.Onboarding) {
				t.Helper()
				assert.Nil(t, created.TemplateID)
				require.Len(t, created.Steps, 1)
				assert.Equal(t, 1, created.Steps[0].Position)
				assert.Equal(t, 0, created.Progress)
			},
		},
		{
			name: "creation from template",
			requestBody: web.CreateOnboardingRequest{
				EmployeeName: "Grace Hopper",
				TemplateID:   &tmpl.ID,
			},
			expectedStatus: http.StatusCreated,
			validateResult: func(t *testing.T, created models.Onboarding) {
				t.Helper()
				require.NotNil(t, created.TemplateID)
				assert.Equal(t, tmpl.ID, *created.TemplateID)
				assert.Equal(t, "engineering", created.Role)
				require.Len(t, created.Steps, 2)
				assert.Equal(t, models.StepStatusPending, created.Steps[0].Status)
			},
		},
		{
			name: "unknown template",
			requestBody: func() web.CreateOnboardingRequest {
				missing := "missing"

				return web.CreateOnboardingRequest{EmployeeName: "Ada Lovelace", TemplateID: &missing}
			}(),
			expectedStatus: http.StatusNotFound,
			expectedType:   "template_not_found",
		},
		{
			name:           "validation error - missing employee name",
			requestBody:    web.CreateOnboardingRequest{Department: "Platform"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid JSON",
			requestBody:    "not-json",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.request(t, http.MethodPost, "/onboardings", tt.requestBody)

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			switch {
			case tt.expectedStatus == http.StatusCreated:
				created := decodeBody[models.Onboarding](t, resp)
				assert.NotEmpty(t, created.ID)
				tt.validateResult(t, created)
			case tt.expectedType != "":
				problem := decodeBody[problemBody](t, resp)
				assert.Equal(t, tt.expectedType, problem.Type)
			default:
				_ = resp.Body.Close()
			}
		})
	}
}

func TestAPIHandlers_UpdateOnboardingStep(t *testing.T) {
	env := setupTestApp(t)

	created, err := env.onboardings.Create(context.Background(), services.NewOnboarding{
		EmployeeName: "Ada Lovelace",
		Steps:        []models.Step{{Title: "Laptop"}, {Title: "Accounts"}},
	})
	require.NoError(t, err)

	resp := env.request(t, http.MethodPatch, "/onboardings/"+created.ID+"/steps/2",
		web.UpdateStepStatusRequest{Status: models.StepStatusCompleted})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	updated := decodeBody[models.Onboarding](t, resp)
	assert.Equal(t, 50, updated.Progress)
	assert.Equal(t, models.StepStatusCompleted, updated.Steps[1].Status)

	resp = env.request(t, http.MethodPatch, "/onboardings/"+created.ID+"/steps/99",
		web.UpdateStepStatusRequest{Status: models.StepStatusCompleted})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	problem := decodeBody[problemBody](t, resp)
	assert.Equal(t, "step_not_found", problem.Type)

	resp = env.request(t, http.MethodPatch, "/onboardings/missing/steps/1",
		web.UpdateStepStatusRequest{Status: models.StepStatusCompleted})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	problem = decodeBody[problemBody](t, resp)
	assert.Equal(t, "onboarding_not_found", problem.Type)

	resp = env.request(t, http.MethodPatch, "/onboardings/"+created.ID+"/steps/abc",
		web.UpdateStepStatusRequest{Status: models.StepStatusCompleted})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	resp = env.request(t, http.MethodPatch, "/onboardings/"+created.ID+"/steps/1", `{"status":"done"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAPIHandlers_DeleteOnboarding(t *testing.T) {
	env := setupTestApp(t)

	created, err := env.onboardings.Create(context.Background(), services.NewOnboarding{EmployeeName: "Ada Lovelace"})
	require.NoError(t, err)

	resp := env.request(t, http.MethodDelete, "/onboardings/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_ = resp.Body.Close()

	resp = env.request(t, http.MethodDelete, "/onboardings/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	env := setupTestApp(t)

	resp := env.request(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "healthy", body["status"])

	require.NoError(t, env.store.Close(context.Background()))

	resp = env.request(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	body = decodeBody[map[string]any](t, resp)
	assert.Equal(t, "unhealthy", body["status"])
}
