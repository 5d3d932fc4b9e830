package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/xxxsen/common/webapi"

	"github.com/xxxsen/docqa/internal/handler"
	"github.com/xxxsen/docqa/internal/middleware"
	"github.com/xxxsen/docqa/internal/pkg/errs"
	"github.com/xxxsen/docqa/internal/service"
	"github.com/xxxsen/docqa/internal/vectorindex"
)

type fakePipeline struct {
	lastDocuments []string
	lastQuestions []string
	runErr        error
}

func (f *fakePipeline) Run(ctx context.Context, documents []string, questions []string) (*service.Result, error) {
	f.lastDocuments = documents
	f.lastQuestions = questions
	if f.runErr != nil {
		return nil, f.runErr
	}
	answers := make([]string, len(questions))
	for i := range questions {
		answers[i] = "answer " + questions[i]
	}
	return &service.Result{Answers: answers, DocumentCount: len(documents), ProcessingTime: 0.1}, nil
}

func (f *fakePipeline) RunDetailed(ctx context.Context, documents []string, questions []string) (*service.DetailedResult, error) {
	res, err := f.Run(ctx, documents, questions)
	if err != nil {
		return nil, err
	}
	return &service.DetailedResult{Result: *res}, nil
}

func (f *fakePipeline) Stats(ctx context.Context) (vectorindex.Stats, error) {
	return vectorindex.Stats{TotalChunks: 42, Dimension: 768, Backend: "memory"}, nil
}

func (f *fakePipeline) ClearIndex(ctx context.Context) error {
	return nil
}

func setupRouter(t *testing.T, pipeline *fakePipeline, token string) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	deps := handler.RouterDeps{
		Pipeline:    handler.NewPipelineHandler(pipeline, t.TempDir()),
		BearerToken: token,
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		"",
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(nil),
		),
	)
	require.NoError(t, err)
	return engine
}

func postJSON(t *testing.T, router http.Handler, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestRunEndpoint(t *testing.T) {
	pipeline := &fakePipeline{}
	router := setupRouter(t, pipeline, "")

	resp := postJSON(t, router, "/api/v1/run", map[string]interface{}{
		"documents": []string{"https://example.com/policy.pdf"},
		"questions": []string{"what is covered"},
	}, "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), "answer what is covered")
	require.Equal(t, []string{"https://example.com/policy.pdf"}, pipeline.lastDocuments)
}

func TestRunEndpointMissingFields(t *testing.T) {
	router := setupRouter(t, &fakePipeline{}, "")
	resp := postJSON(t, router, "/api/v1/run", map[string]interface{}{
		"documents": []string{},
		"questions": []string{"q"},
	}, "")
	require.Contains(t, resp.Body.String(), "documents and questions are required")
}

func TestRunEndpointMultipart(t *testing.T) {
	pipeline := &fakePipeline{}
	router := setupRouter(t, pipeline, "")

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("documents", "policy.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("uploaded policy text"))
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("questions", `["what is covered"]`))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/run", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), "answer what is covered")
	require.Len(t, pipeline.lastDocuments, 1)
}

func TestRunEndpointPipelineError(t *testing.T) {
	pipeline := &fakePipeline{runErr: fmt.Errorf("%w: no documents could be processed", errs.ErrNoContent)}
	router := setupRouter(t, pipeline, "")
	resp := postJSON(t, router, "/api/v1/run", map[string]interface{}{
		"documents": []string{"broken"},
		"questions": []string{"q"},
	}, "")
	require.Contains(t, resp.Body.String(), "no documents could be processed")
}

func TestRunDetailedEndpoint(t *testing.T) {
	router := setupRouter(t, &fakePipeline{}, "")
	resp := postJSON(t, router, "/api/v1/run/detailed", map[string]interface{}{
		"documents": []string{"doc"},
		"questions": []string{"q"},
	}, "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), "answer q")
}

func TestStatsEndpoint(t *testing.T) {
	router := setupRouter(t, &fakePipeline{}, "")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), "42")
	require.Contains(t, resp.Body.String(), "memory")
}

func TestClearIndexEndpoint(t *testing.T) {
	router := setupRouter(t, &fakePipeline{}, "")
	resp := postJSON(t, router, "/api/v1/index/clear", map[string]interface{}{}, "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), "cleared")
}

func TestHealthzSkipsAuth(t *testing.T) {
	router := setupRouter(t, &fakePipeline{}, "secret-token")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/healthz", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), "ok")
}

func TestBearerAuthRequired(t *testing.T) {
	pipeline := &fakePipeline{}
	router := setupRouter(t, pipeline, "secret-token")

	resp := postJSON(t, router, "/api/v1/run", map[string]interface{}{
		"documents": []string{"doc"},
		"questions": []string{"q"},
	}, "")
	require.Contains(t, resp.Body.String(), "missing authorization")
	require.Nil(t, pipeline.lastQuestions)

	resp = postJSON(t, router, "/api/v1/run", map[string]interface{}{
		"documents": []string{"doc"},
		"questions": []string{"q"},
	}, "wrong-token")
	require.Contains(t, resp.Body.String(), "invalid token")

	resp = postJSON(t, router, "/api/v1/run", map[string]interface{}{
		"documents": []string{"doc"},
		"questions": []string{"q"},
	}, "secret-token")
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), "answer q")
}
