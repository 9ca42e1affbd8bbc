package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	backend "promptx/internal/api"
	"promptx/internal/core"
	"promptx/internal/database"
	"promptx/internal/messaging"
	"promptx/internal/storage"
	"promptx/internal/templates"
	"promptx/pkg/api"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func createDB(t *testing.T, create ...any) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, database.GetMigrator(db).Migrate())

	for _, c := range create {
		require.NoError(t, db.Create(c).Error)
	}

	return db
}

type testEnv struct {
	router  chi.Router
	db      *gorm.DB
	queue   *messaging.InMemoryQueue
	storage storage.Provider
}

func newTestEnv(t *testing.T, create ...any) *testEnv {
	db := createDB(t, create...)

	provider, err := storage.NewLocalProvider(t.TempDir())
	require.NoError(t, err)

	builder, err := core.NewPayloadBuilder(core.BuilderConfig{})
	require.NoError(t, err)

	registry, err := templates.LoadRegistry()
	require.NoError(t, err)

	queue := messaging.NewInMemoryQueue()

	service := backend.NewBackendService(db, provider, queue, builder, registry, "test-bucket")
	router := chi.NewRouter()
	service.AddRoutes(router)

	return &testEnv{router: router, db: db, queue: queue, storage: provider}
}

func (env *testEnv) nextTask(t *testing.T) messaging.Task {
	select {
	case task := <-env.queue.Tasks():
		return task
	case <-time.After(time.Second):
		t.Fatal("no task published")
		return nil
	}
}

func TestCreateWorkspace(t *testing.T) {
	env := newTestEnv(t)

	body, err := json.Marshal(api.CreateWorkspaceRequest{Name: "my-project"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/workspaces", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, "recieved response: "+rec.Body.String())
	var response api.CreateWorkspaceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.NotEqual(t, uuid.Nil, response.WorkspaceId)

	req = httptest.NewRequest(http.MethodGet, "/workspaces/"+response.WorkspaceId.String(), nil)
	rec = httptest.NewRecorder()

	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var workspace api.Workspace
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &workspace))
	assert.Equal(t, response.WorkspaceId, workspace.Id)
	assert.Equal(t, "my-project", workspace.Name)
}

func TestCreateWorkspace_InvalidName(t *testing.T) {
	env := newTestEnv(t)

	body, err := json.Marshal(api.CreateWorkspaceRequest{Name: "bad name!"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/workspaces", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListWorkspaces(t *testing.T) {
	id1, id2 := uuid.New(), uuid.New()
	env := newTestEnv(t,
		&database.Workspace{Id: id1, Name: "first", CreationTime: time.Now().UTC().Add(-time.Hour)},
		&database.Workspace{Id: id2, Name: "second", CreationTime: time.Now().UTC()},
	)

	req := httptest.NewRequest(http.MethodGet, "/workspaces", nil)
	rec := httptest.NewRecorder()

	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var response api.ListWorkspacesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response.Workspaces, 2)
	assert.Equal(t, "second", response.Workspaces[0].Name)
	assert.Equal(t, "first", response.Workspaces[1].Name)
}

func TestListWorkspaces_Paginated(t *testing.T) {
	now := time.Now().UTC()
	env := newTestEnv(t,
		&database.Workspace{Id: uuid.New(), Name: "oldest", CreationTime: now.Add(-2 * time.Hour)},
		&database.Workspace{Id: uuid.New(), Name: "middle", CreationTime: now.Add(-time.Hour)},
		&database.Workspace{Id: uuid.New(), Name: "newest", CreationTime: now},
	)

	req := httptest.NewRequest(http.MethodGet, "/workspaces?limit=1&offset=1", nil)
	rec := httptest.NewRecorder()

	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var response api.ListWorkspacesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response.Workspaces, 1)
	assert.Equal(t, "middle", response.Workspaces[0].Name)
}

func TestGetWorkspace_NotFound(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/workspaces/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()

	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadAndDownloadArtifact(t *testing.T) {
	workspaceId := uuid.New()
	env := newTestEnv(t, &database.Workspace{Id: workspaceId, Name: "ws", CreationTime: time.Now().UTC()})

	analysis, err := json.Marshal(api.Analysis{
		Task:   "Extract order ids",
		Goal:   "Return the order id for each message",
		Output: api.OutputSpec{Type: api.OutputTypeJson},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/workspaces/"+workspaceId.String()+"/artifacts/analysis.json", bytes.NewReader(analysis))
	rec := httptest.NewRecorder()

	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, "recieved response: "+rec.Body.String())
	var artifact api.Artifact
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &artifact))
	assert.Equal(t, "analysis.json", artifact.Name)
	assert.Equal(t, int64(len(analysis)), artifact.Size)

	req = httptest.NewRequest(http.MethodGet, "/workspaces/"+workspaceId.String()+"/artifacts", nil)
	rec = httptest.NewRecorder()

	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var listing api.ListArtifactsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Equal(t, []api.Artifact{{Name: "analysis.json", Size: int64(len(analysis))}}, listing.Artifacts)

	req = httptest.NewRequest(http.MethodGet, "/workspaces/"+workspaceId.String()+"/artifacts/analysis.json", nil)
	rec = httptest.NewRecorder()

	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, analysis, rec.Body.Bytes())
}

func TestUploadArtifact_UnknownName(t *testing.T) {
	workspaceId := uuid.New()
	env := newTestEnv(t, &database.Workspace{Id: workspaceId, Name: "ws", CreationTime: time.Now().UTC()})

	for _, name := range []string{"notes.txt", "final_prompt.json", ".."} {
		req := httptest.NewRequest(http.MethodPut, "/workspaces/"+workspaceId.String()+"/artifacts/"+name, bytes.NewReader([]byte("x")))
		rec := httptest.NewRecorder()

		env.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code, "artifact name %s should be rejected", name)
	}
}

func TestDownloadArtifact_Missing(t *testing.T) {
	workspaceId := uuid.New()
	env := newTestEnv(t, &database.Workspace{Id: workspaceId, Name: "ws", CreationTime: time.Now().UTC()})

	req := httptest.NewRequest(http.MethodGet, "/workspaces/"+workspaceId.String()+"/artifacts/test_data.json", nil)
	rec := httptest.NewRecorder()

	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func (env *testEnv) uploadArtifact(t *testing.T, workspaceId uuid.UUID, name string, content any) {
	t.Helper()

	body, err := json.Marshal(content)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/workspaces/"+workspaceId.String()+"/artifacts/"+name, bytes.NewReader(body))
	rec := httptest.NewRecorder()

	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, "recieved response: "+rec.Body.String())
}

func TestSubmitBuildJob(t *testing.T) {
	workspaceId := uuid.New()
	env := newTestEnv(t, &database.Workspace{Id: workspaceId, Name: "ws", CreationTime: time.Now().UTC()})

	t.Run("MissingArtifacts", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/workspaces/"+workspaceId.String()+"/builds", nil)
		rec := httptest.NewRecorder()

		env.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	env.uploadArtifact(t, workspaceId, "analysis.json", api.Analysis{
		Task:   "Extract order ids",
		Goal:   "Return the order id for each message",
		Output: api.OutputSpec{Type: api.OutputTypeJson},
	})
	env.uploadArtifact(t, workspaceId, "test_data.json", api.TestData{
		Dataset: []api.TestDataItem{{Input: "order #17 arrived", Output: `{"order_id": 17}`}},
	})

	var response api.SubmitBuildResponse
	t.Run("Submit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/workspaces/"+workspaceId.String()+"/builds", nil)
		rec := httptest.NewRecorder()

		env.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, "recieved response: "+rec.Body.String())
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		assert.NotEqual(t, uuid.Nil, response.JobId)

		task := env.nextTask(t)
		assert.Equal(t, messaging.BuildQueue, task.Type())
		var payload messaging.BuildTaskPayload
		require.NoError(t, json.Unmarshal(task.Payload(), &payload))
		assert.Equal(t, response.JobId, payload.JobId)
		assert.Equal(t, workspaceId, payload.WorkspaceId)
	})

	t.Run("GetJob", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/workspaces/"+workspaceId.String()+"/builds/"+response.JobId.String(), nil)
		rec := httptest.NewRecorder()

		env.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var job api.BuildJob
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
		assert.Equal(t, response.JobId, job.Id)
		assert.Equal(t, database.JobQueued, job.Status)
		assert.Equal(t, core.DefaultPlaceholder, job.Placeholder)
	})

	t.Run("ListJobs", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/workspaces/"+workspaceId.String()+"/builds", nil)
		rec := httptest.NewRecorder()

		env.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var listing api.ListBuildJobsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
		require.Len(t, listing.Jobs, 1)
		assert.Equal(t, response.JobId, listing.Jobs[0].Id)
	})
}

func TestSubmitBuildJob_CustomPlaceholder(t *testing.T) {
	workspaceId := uuid.New()
	env := newTestEnv(t, &database.Workspace{Id: workspaceId, Name: "ws", CreationTime: time.Now().UTC()})

	env.uploadArtifact(t, workspaceId, "analysis.json", api.Analysis{
		Task:   "Classify sentiment",
		Goal:   "Answer with one word",
		Output: api.OutputSpec{Type: api.OutputTypeText},
	})
	env.uploadArtifact(t, workspaceId, "test_data.json", api.TestData{})

	body, err := json.Marshal(api.SubmitBuildRequest{Placeholder: "%%INPUT%%"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/workspaces/"+workspaceId.String()+"/builds", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, "recieved response: "+rec.Body.String())
	var response api.SubmitBuildResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))

	var job database.BuildJob
	require.NoError(t, env.db.First(&job, "id = ?", response.JobId).Error)
	assert.Equal(t, "%%INPUT%%", job.Placeholder)
}

func TestBuildPayload(t *testing.T) {
	env := newTestEnv(t)

	body, err := json.Marshal(api.BuildRequest{
		Analysis: api.Analysis{
			Task:   "Extract order ids",
			Goal:   "Return the order id for each message",
			Output: api.OutputSpec{Type: api.OutputTypeJson},
		},
		TestData: api.TestData{
			Dataset: []api.TestDataItem{{Input: "order #17 arrived", Output: `{"order_id": 17}`}},
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/build", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, "recieved response: "+rec.Body.String())
	var response api.BuildResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response.Messages, 5)
	assert.Equal(t, api.RoleSystem, response.Messages[0].Role)
	assert.Equal(t, core.DefaultPlaceholder, response.Messages[3].Content)
	assert.True(t, response.Messages[4].Prefix)
}

func TestBuildPayload_InvalidAnalysis(t *testing.T) {
	env := newTestEnv(t)

	body, err := json.Marshal(api.BuildRequest{
		Analysis: api.Analysis{
			Task:   "Extract order ids",
			Goal:   "Return the order id",
			Output: api.OutputSpec{Type: "xml"},
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/build", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "unrecognized type")
}

func TestBuildPayload_MalformedBody(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/build", bytes.NewReader([]byte("{")))
	rec := httptest.NewRecorder()

	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitResearchJob(t *testing.T) {
	workspaceId := uuid.New()
	env := newTestEnv(t, &database.Workspace{Id: workspaceId, Name: "ws", CreationTime: time.Now().UTC()})

	body, err := json.Marshal(api.SubmitResearchRequest{Query: "few shot prompting", MaxResults: 3, FetchPages: true})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/workspaces/"+workspaceId.String()+"/research", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, "recieved response: "+rec.Body.String())
	var response api.SubmitResearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))

	task := env.nextTask(t)
	assert.Equal(t, messaging.ResearchQueue, task.Type())
	var payload messaging.ResearchTaskPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, response.JobId, payload.JobId)
	assert.Equal(t, "few shot prompting", payload.Query)
	assert.Equal(t, 3, payload.MaxResults)
	assert.True(t, payload.FetchPages)

	req = httptest.NewRequest(http.MethodGet, "/workspaces/"+workspaceId.String()+"/research/"+response.JobId.String(), nil)
	rec = httptest.NewRecorder()

	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var job api.ResearchJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, database.JobQueued, job.Status)
	assert.Equal(t, "few shot prompting", job.Query)
	assert.Equal(t, 3, job.MaxResults)
	assert.True(t, job.FetchPages)
}

func TestSubmitResearchJob_EmptyQuery(t *testing.T) {
	workspaceId := uuid.New()
	env := newTestEnv(t, &database.Workspace{Id: workspaceId, Name: "ws", CreationTime: time.Now().UTC()})

	body, err := json.Marshal(api.SubmitResearchRequest{Query: "   "})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/workspaces/"+workspaceId.String()+"/research", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDownloadResearchResult_NotComplete(t *testing.T) {
	workspaceId, jobId := uuid.New(), uuid.New()
	env := newTestEnv(t,
		&database.Workspace{Id: workspaceId, Name: "ws", CreationTime: time.Now().UTC()},
		&database.ResearchJob{Id: jobId, WorkspaceId: workspaceId, Query: "q", Status: database.JobRunning, CreationTime: time.Now().UTC()},
	)

	req := httptest.NewRequest(http.MethodGet, "/workspaces/"+workspaceId.String()+"/research/"+jobId.String()+"/result", nil)
	rec := httptest.NewRecorder()

	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDeleteWorkspace(t *testing.T) {
	workspaceId := uuid.New()
	env := newTestEnv(t, &database.Workspace{Id: workspaceId, Name: "ws", CreationTime: time.Now().UTC()})

	env.uploadArtifact(t, workspaceId, "analysis.json", api.Analysis{
		Task:   "Classify sentiment",
		Goal:   "Answer with one word",
		Output: api.OutputSpec{Type: api.OutputTypeText},
	})

	req := httptest.NewRequest(http.MethodDelete, "/workspaces/"+workspaceId.String(), nil)
	rec := httptest.NewRecorder()

	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/workspaces/"+workspaceId.String(), nil)
	rec = httptest.NewRecorder()

	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, err := env.storage.GetObject(context.Background(), "test-bucket", workspaceId.String()+"/analysis.json")
	assert.Error(t, err)
}

func TestListMetaPrompts(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/meta-prompts", nil)
	rec := httptest.NewRecorder()

	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var response api.ListMetaPromptsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.NotEmpty(t, response.MetaPrompts)

	byName := make(map[string]api.MetaPrompt)
	for _, prompt := range response.MetaPrompts {
		byName[prompt.Name] = prompt
	}
	architect, ok := byName["prompt_architect"]
	require.True(t, ok)
	assert.Equal(t, []string{"requirement"}, architect.Variables)
}

func TestRenderMetaPrompt(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/meta-prompts/prompt_architect?requirement=Summarize+support+tickets", nil)
	rec := httptest.NewRecorder()

	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, "recieved response: "+rec.Body.String())
	var response api.RenderMetaPromptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Empty(t, response.Unresolved)

	rendered := false
	for _, msg := range response.Messages {
		if msg.Role == api.RoleUser {
			assert.Contains(t, msg.Content, "Summarize support tickets")
			rendered = true
		}
	}
	assert.True(t, rendered)
}

func TestRenderMetaPrompt_Unknown(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/meta-prompts/does-not-exist", nil)
	rec := httptest.NewRecorder()

	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
