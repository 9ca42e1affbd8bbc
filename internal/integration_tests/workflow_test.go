package integrationtests

import (
	"context"
	"fmt"
	"testing"
	"time"

	backend "promptx/internal/api"
	"promptx/internal/core"
	"promptx/internal/database"
	"promptx/internal/messaging"
	"promptx/internal/research"
	"promptx/internal/templates"
	"promptx/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const workspaceBucket = "workspaces"

type stubSearcher struct{}

func (s *stubSearcher) Search(ctx context.Context, query string, opts research.SearchOptions) ([]research.SearchResult, error) {
	return []research.SearchResult{
		{Title: "Prompt patterns", Url: "https://example.com/patterns", Content: "a short survey of prompt patterns"},
	}, nil
}

type stubReader struct{}

func (r *stubReader) Fetch(ctx context.Context, url string) (research.Page, error) {
	return research.Page{Url: url, Markdown: "# Prompt patterns\n\nthe full article"}, nil
}

func createWorkspace(t *testing.T, router chi.Router, name string) uuid.UUID {
	var res api.CreateWorkspaceResponse
	err := httpRequest(router, "POST", "/workspaces", api.CreateWorkspaceRequest{Name: name}, &res)
	require.NoError(t, err)
	return res.WorkspaceId
}

func uploadArtifact(t *testing.T, router chi.Router, workspaceId uuid.UUID, name string, content any) {
	err := httpRequest(router, "PUT", fmt.Sprintf("/workspaces/%s/artifacts/%s", workspaceId, name), content, nil)
	require.NoError(t, err)
}

func waitForBuildJob(t *testing.T, router chi.Router, workspaceId, jobId uuid.UUID) api.BuildJob {
	var job api.BuildJob

	for i := 0; i < 20; i++ {
		time.Sleep(500 * time.Millisecond)
		err := httpRequest(router, "GET", fmt.Sprintf("/workspaces/%s/builds/%s", workspaceId, jobId), nil, &job)
		require.NoError(t, err)

		if job.Status == database.JobCompleted || job.Status == database.JobFailed {
			return job
		}
	}

	t.Fatal("timeout reached before build job completed")
	return job
}

func waitForResearchJob(t *testing.T, router chi.Router, workspaceId, jobId uuid.UUID) api.ResearchJob {
	var job api.ResearchJob

	for i := 0; i < 20; i++ {
		time.Sleep(500 * time.Millisecond)
		err := httpRequest(router, "GET", fmt.Sprintf("/workspaces/%s/research/%s", workspaceId, jobId), nil, &job)
		require.NoError(t, err)

		if job.Status == database.JobCompleted || job.Status == database.JobFailed {
			return job
		}
	}

	t.Fatal("timeout reached before research job completed")
	return job
}

func TestBuildWorkflow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	store := setupS3Storage(t, ctx)
	require.NoError(t, store.CreateBucket(ctx, workspaceBucket))

	db := createDB(t)

	queue := messaging.NewInMemoryQueue()

	builder, err := core.NewPayloadBuilder(core.BuilderConfig{})
	require.NoError(t, err)

	registry, err := templates.LoadRegistry()
	require.NoError(t, err)

	service := backend.NewBackendService(db, store, queue, builder, registry, workspaceBucket)
	router := chi.NewRouter()
	service.AddRoutes(router)

	worker := core.NewTaskProcessor(db, store, queue, builder, &stubSearcher{}, &stubReader{}, workspaceBucket)

	go worker.Start()
	defer worker.Stop()

	workspaceId := createWorkspace(t, router, "workflow-test")

	uploadArtifact(t, router, workspaceId, core.AnalysisArtifact, api.Analysis{
		Task:       "translate support tickets to English",
		Goal:       "produce a faithful translation preserving tone",
		Constraint: "do not translate product names",
		Output:     api.OutputSpec{Type: "json", Notion: "object with a translation field"},
	})
	uploadArtifact(t, router, workspaceId, core.TestDataArtifact, api.TestData{
		Dataset: []api.TestDataItem{
			{Input: "El pago no funciona", Output: `{"translation": "The payment is not working"}`},
		},
	})

	var submitted api.SubmitBuildResponse
	err = httpRequest(router, "POST", fmt.Sprintf("/workspaces/%s/builds", workspaceId), api.SubmitBuildRequest{}, &submitted)
	require.NoError(t, err)

	job := waitForBuildJob(t, router, workspaceId, submitted.JobId)

	require.Equal(t, database.JobCompleted, job.Status, "job error: %s", job.Error)
	require.Len(t, job.Messages, 5)
	assert.Equal(t, "system", job.Messages[0].Role)
	assert.Equal(t, core.DefaultPlaceholder, job.Messages[3].Content)
	assert.True(t, job.Messages[4].Prefix)

	// the stored artifact must match what the job reports
	var payload []api.Message
	err = httpRequest(router, "GET", fmt.Sprintf("/workspaces/%s/artifacts/%s", workspaceId, core.PayloadArtifact), nil, &payload)
	require.NoError(t, err)
	assert.Equal(t, job.Messages, payload)

	var artifacts api.ListArtifactsResponse
	err = httpRequest(router, "GET", fmt.Sprintf("/workspaces/%s/artifacts", workspaceId), nil, &artifacts)
	require.NoError(t, err)

	names := make([]string, 0, len(artifacts.Artifacts))
	for _, artifact := range artifacts.Artifacts {
		names = append(names, artifact.Name)
	}
	assert.ElementsMatch(t, []string{core.AnalysisArtifact, core.TestDataArtifact, core.PayloadArtifact}, names)
}

func TestResearchWorkflow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	store := setupS3Storage(t, ctx)
	require.NoError(t, store.CreateBucket(ctx, workspaceBucket))

	db := createDB(t)

	queue := messaging.NewInMemoryQueue()

	builder, err := core.NewPayloadBuilder(core.BuilderConfig{})
	require.NoError(t, err)

	registry, err := templates.LoadRegistry()
	require.NoError(t, err)

	service := backend.NewBackendService(db, store, queue, builder, registry, workspaceBucket)
	router := chi.NewRouter()
	service.AddRoutes(router)

	worker := core.NewTaskProcessor(db, store, queue, builder, &stubSearcher{}, &stubReader{}, workspaceBucket)

	go worker.Start()
	defer worker.Stop()

	workspaceId := createWorkspace(t, router, "research-test")

	var submitted api.SubmitResearchResponse
	err = httpRequest(router, "POST", fmt.Sprintf("/workspaces/%s/research", workspaceId), api.SubmitResearchRequest{
		Query:      "prompt engineering for translation",
		FetchPages: true,
	}, &submitted)
	require.NoError(t, err)

	job := waitForResearchJob(t, router, workspaceId, submitted.JobId)

	require.Equal(t, database.JobCompleted, job.Status, "job error: %s", job.Error)
	assert.Equal(t, 1, job.ResultCount)

	var result struct {
		Query   string `json:"query"`
		Results []struct {
			Title    string `json:"title"`
			Url      string `json:"url"`
			Markdown string `json:"markdown"`
		} `json:"results"`
	}
	err = httpRequest(router, "GET", fmt.Sprintf("/workspaces/%s/research/%s/result", workspaceId, submitted.JobId), nil, &result)
	require.NoError(t, err)

	assert.Equal(t, "prompt engineering for translation", result.Query)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "Prompt patterns", result.Results[0].Title)
	assert.Equal(t, "# Prompt patterns\n\nthe full article", result.Results[0].Markdown)
}
