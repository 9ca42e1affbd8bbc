package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"promptx/internal/core"
	"promptx/internal/database"
	"promptx/internal/messaging"
	"promptx/internal/storage"
	"promptx/internal/templates"
	"promptx/pkg/api"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Workspace artifacts are small documents, so uploads are capped well below
// anything a legitimate client would send.
const maxArtifactBytes = 10 << 20

const maxListLimit = 100

var uploadableArtifacts = []string{core.RequirementArtifact, core.AnalysisArtifact, core.TestDataArtifact}

type BackendService struct {
	db        *gorm.DB
	storage   storage.Provider
	publisher messaging.Publisher
	builder   *core.PayloadBuilder
	registry  *templates.Registry
	bucket    string
}

func NewBackendService(db *gorm.DB, store storage.Provider, pub messaging.Publisher, builder *core.PayloadBuilder, registry *templates.Registry, bucket string) *BackendService {
	return &BackendService{db: db, storage: store, publisher: pub, builder: builder, registry: registry, bucket: bucket}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Post("/build", RestHandler(s.BuildPayload))
	r.Route("/workspaces", func(r chi.Router) {
		r.Post("/", RestHandler(s.CreateWorkspace))
		r.Get("/", RestHandler(s.ListWorkspaces))
		r.Route("/{workspace_id}", func(r chi.Router) {
			r.Get("/", RestHandler(s.GetWorkspace))
			r.Delete("/", RestHandler(s.DeleteWorkspace))
			r.Get("/artifacts", RestHandler(s.ListArtifacts))
			r.Put("/artifacts/{artifact_name}", RestHandler(s.UploadArtifact))
			r.Get("/artifacts/{artifact_name}", s.DownloadArtifact)
			r.Post("/builds", RestHandler(s.SubmitBuildJob))
			r.Get("/builds", RestHandler(s.ListBuildJobs))
			r.Get("/builds/{job_id}", RestHandler(s.GetBuildJob))
			r.Post("/research", RestHandler(s.SubmitResearchJob))
			r.Get("/research/{job_id}", RestHandler(s.GetResearchJob))
			r.Get("/research/{job_id}/result", s.DownloadResearchResult)
		})
	})
	r.Route("/meta-prompts", func(r chi.Router) {
		r.Get("/", RestHandler(s.ListMetaPrompts))
		r.Get("/{name}", RestHandler(s.RenderMetaPrompt))
	})
}

func (s *BackendService) CreateWorkspace(r *http.Request) (any, error) {
	req, err := ParseRequest[api.CreateWorkspaceRequest](r)
	if err != nil {
		return nil, err
	}

	if err := validateWorkspaceName(req.Name); err != nil {
		return nil, err
	}

	ctx := r.Context()

	workspace := &database.Workspace{
		Id:           uuid.New(),
		Name:         req.Name,
		CreationTime: time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(workspace).Error; err != nil {
		slog.Error("error creating workspace", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create workspace entry")
	}

	slog.Info("Created workspace", "workspace_id", workspace.Id, "name", workspace.Name)
	return api.CreateWorkspaceResponse{WorkspaceId: workspace.Id}, nil
}

func (s *BackendService) ListWorkspaces(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.ListQuery](r)
	if err != nil {
		return nil, err
	}
	limit := params.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	var workspaces []database.Workspace
	if err := s.db.WithContext(r.Context()).Order("creation_time desc").Limit(limit).Offset(params.Offset).Find(&workspaces).Error; err != nil {
		slog.Error("error listing workspaces", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving workspace records")
	}

	return api.ListWorkspacesResponse{Workspaces: convertWorkspaces(workspaces)}, nil
}

func (s *BackendService) GetWorkspace(r *http.Request) (any, error) {
	workspace, err := s.getWorkspace(r)
	if err != nil {
		return nil, err
	}

	return convertWorkspace(workspace), nil
}

func (s *BackendService) DeleteWorkspace(r *http.Request) (any, error) {
	workspace, err := s.getWorkspace(r)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	if err := s.db.WithContext(ctx).Delete(&database.Workspace{}, "id = ?", workspace.Id).Error; err != nil {
		slog.Error("error deleting workspace", "workspace_id", workspace.Id, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to delete workspace entry")
	}

	// The row is gone at this point, leftover artifacts are only wasted space.
	if err := s.storage.DeletePrefix(ctx, s.bucket, workspace.Id.String()); err != nil {
		slog.Error("error deleting workspace artifacts", "workspace_id", workspace.Id, "error", err)
	}

	slog.Info("Deleted workspace", "workspace_id", workspace.Id)
	return nil, nil
}

func (s *BackendService) getWorkspace(r *http.Request) (database.Workspace, error) {
	workspaceId, err := URLParamUUID(r, "workspace_id")
	if err != nil {
		return database.Workspace{}, err
	}

	var workspace database.Workspace
	if err := s.db.WithContext(r.Context()).First(&workspace, "id = ?", workspaceId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return database.Workspace{}, CodedErrorf(http.StatusNotFound, "workspace not found")
		}
		slog.Error("error getting workspace", "error", err)
		return database.Workspace{}, CodedErrorf(http.StatusInternalServerError, "error retrieving workspace record")
	}

	return workspace, nil
}

func (s *BackendService) UploadArtifact(r *http.Request) (any, error) {
	workspace, err := s.getWorkspace(r)
	if err != nil {
		return nil, err
	}

	name := chi.URLParam(r, "artifact_name")
	if !slices.Contains(uploadableArtifacts, name) {
		return nil, CodedErrorf(http.StatusBadRequest, "artifact '%s' cannot be uploaded: expected one of %s", name, strings.Join(uploadableArtifacts, ", "))
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxArtifactBytes+1))
	if err != nil {
		slog.Error("error reading artifact body", "error", err)
		return nil, CodedErrorf(http.StatusBadRequest, "unable to read request body")
	}
	if len(data) > maxArtifactBytes {
		return nil, CodedErrorf(http.StatusRequestEntityTooLarge, "artifact exceeds %d byte limit", maxArtifactBytes)
	}

	// Uploads are stored as-is, a build validates the contents.
	key := fmt.Sprintf("%s/%s", workspace.Id, name)
	if err := s.storage.PutObject(r.Context(), s.bucket, key, bytes.NewReader(data)); err != nil {
		slog.Error("error storing artifact", "bucket", s.bucket, "key", key, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to store artifact")
	}

	return api.Artifact{Name: name, Size: int64(len(data))}, nil
}

func (s *BackendService) ListArtifacts(r *http.Request) (any, error) {
	workspace, err := s.getWorkspace(r)
	if err != nil {
		return nil, err
	}

	objects, err := s.storage.ListObjects(r.Context(), s.bucket, workspace.Id.String())
	if err != nil {
		slog.Error("error listing workspace artifacts", "workspace_id", workspace.Id, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to list workspace artifacts")
	}

	return api.ListArtifactsResponse{Artifacts: convertArtifacts(objects, workspace.Id.String()+"/")}, nil
}

func (s *BackendService) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	workspace, err := s.getWorkspace(r)
	if err != nil {
		writeError(w, err)
		return
	}

	name := chi.URLParam(r, "artifact_name")
	if !slices.Contains(uploadableArtifacts, name) && name != core.PayloadArtifact {
		writeError(w, CodedErrorf(http.StatusBadRequest, "unknown artifact '%s'", name))
		return
	}

	data, err := s.storage.GetObject(r.Context(), s.bucket, fmt.Sprintf("%s/%s", workspace.Id, name))
	if err != nil {
		writeError(w, CodedErrorf(http.StatusNotFound, "artifact '%s' not found", name))
		return
	}

	writeArtifact(w, name, data)
}

func writeArtifact(w http.ResponseWriter, name string, data []byte) {
	contentType := "text/plain; charset=utf-8"
	if strings.HasSuffix(name, ".json") {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)

	if _, err := w.Write(data); err != nil {
		slog.Error("error writing artifact response", "artifact", name, "error", err)
	}
}

func (s *BackendService) SubmitBuildJob(r *http.Request) (any, error) {
	workspace, err := s.getWorkspace(r)
	if err != nil {
		return nil, err
	}

	// The body is optional, an empty post builds with the default placeholder.
	var req api.SubmitBuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		slog.Error("error parsing request body", "error", err)
		return nil, CodedErrorf(http.StatusBadRequest, "unable to parse request body")
	}

	ctx := r.Context()

	if err := s.checkBuildInputs(ctx, workspace.Id); err != nil {
		return nil, err
	}

	placeholder := req.Placeholder
	if placeholder == "" {
		placeholder = core.DefaultPlaceholder
	}

	job := &database.BuildJob{
		Id:           uuid.New(),
		WorkspaceId:  workspace.Id,
		Status:       database.JobQueued,
		Placeholder:  placeholder,
		CreationTime: time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		slog.Error("error creating build job", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create build job entry")
	}

	payload := messaging.BuildTaskPayload{JobId: job.Id, WorkspaceId: workspace.Id}
	if err := s.publisher.PublishBuildTask(ctx, payload); err != nil {
		slog.Error("error publishing build task", "job_id", job.Id, "error", err)
		database.SaveBuildJobError(ctx, s.db, job.Id, "failed to queue build task")
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to queue build task")
	}

	slog.Info("Submitted build job", "job_id", job.Id, "workspace_id", workspace.Id)
	return api.SubmitBuildResponse{JobId: job.Id}, nil
}

// checkBuildInputs rejects a submission early when the workspace cannot
// possibly build, so the caller hears about it synchronously instead of
// through a failed job.
func (s *BackendService) checkBuildInputs(ctx context.Context, workspaceId uuid.UUID) error {
	objects, err := s.storage.ListObjects(ctx, s.bucket, workspaceId.String())
	if err != nil {
		slog.Error("error listing workspace artifacts", "workspace_id", workspaceId, "error", err)
		return CodedErrorf(http.StatusInternalServerError, "failed to list workspace artifacts")
	}

	present := make(map[string]bool, len(objects))
	for _, obj := range objects {
		present[strings.TrimPrefix(obj.Name, workspaceId.String()+"/")] = true
	}

	for _, name := range []string{core.AnalysisArtifact, core.TestDataArtifact} {
		if !present[name] {
			return CodedErrorf(http.StatusUnprocessableEntity, "workspace is missing %s: upload it before submitting a build", name)
		}
	}

	return nil
}

func (s *BackendService) ListBuildJobs(r *http.Request) (any, error) {
	workspace, err := s.getWorkspace(r)
	if err != nil {
		return nil, err
	}

	params, err := ParseRequestQueryParams[api.ListQuery](r)
	if err != nil {
		return nil, err
	}
	limit := params.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	var jobs []database.BuildJob
	if err := s.db.WithContext(r.Context()).Where("workspace_id = ?", workspace.Id).Order("creation_time desc").Limit(limit).Offset(params.Offset).Find(&jobs).Error; err != nil {
		slog.Error("error listing build jobs", "workspace_id", workspace.Id, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving build job records")
	}

	return api.ListBuildJobsResponse{Jobs: convertBuildJobs(jobs)}, nil
}

func (s *BackendService) GetBuildJob(r *http.Request) (any, error) {
	workspaceId, err := URLParamUUID(r, "workspace_id")
	if err != nil {
		return nil, err
	}
	jobId, err := URLParamUUID(r, "job_id")
	if err != nil {
		return nil, err
	}

	var job database.BuildJob
	if err := s.db.WithContext(r.Context()).First(&job, "id = ? AND workspace_id = ?", jobId, workspaceId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "build job not found")
		}
		slog.Error("error getting build job", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving build job record")
	}

	return convertBuildJob(job), nil
}

// BuildPayload assembles a payload synchronously from inline analysis and
// test data, without touching any workspace.
func (s *BackendService) BuildPayload(r *http.Request) (any, error) {
	req, err := ParseRequest[api.BuildRequest](r)
	if err != nil {
		return nil, err
	}

	messages, err := s.builder.WithPlaceholder(req.Placeholder).Build(req.Analysis, req.TestData)
	if err != nil {
		if errors.Is(err, core.ErrValidation) {
			return nil, CodedError(http.StatusUnprocessableEntity, err)
		}
		slog.Error("error assembling payload", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to assemble payload")
	}

	return api.BuildResponse{Messages: messages}, nil
}

func (s *BackendService) SubmitResearchJob(r *http.Request) (any, error) {
	workspace, err := s.getWorkspace(r)
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.SubmitResearchRequest](r)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(req.Query) == "" {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "missing required field: query")
	}

	ctx := r.Context()

	job := &database.ResearchJob{
		Id:           uuid.New(),
		WorkspaceId:  workspace.Id,
		Query:        req.Query,
		MaxResults:   req.MaxResults,
		FetchPages:   req.FetchPages,
		Status:       database.JobQueued,
		CreationTime: time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		slog.Error("error creating research job", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create research job entry")
	}

	payload := messaging.ResearchTaskPayload{
		JobId:       job.Id,
		WorkspaceId: workspace.Id,
		Query:       req.Query,
		MaxResults:  req.MaxResults,
		FetchPages:  req.FetchPages,
	}
	if err := s.publisher.PublishResearchTask(ctx, payload); err != nil {
		slog.Error("error publishing research task", "job_id", job.Id, "error", err)
		database.SaveResearchJobError(ctx, s.db, job.Id, "failed to queue research task")
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to queue research task")
	}

	slog.Info("Submitted research job", "job_id", job.Id, "workspace_id", workspace.Id)
	return api.SubmitResearchResponse{JobId: job.Id}, nil
}

func (s *BackendService) GetResearchJob(r *http.Request) (any, error) {
	workspaceId, err := URLParamUUID(r, "workspace_id")
	if err != nil {
		return nil, err
	}
	jobId, err := URLParamUUID(r, "job_id")
	if err != nil {
		return nil, err
	}

	var job database.ResearchJob
	if err := s.db.WithContext(r.Context()).First(&job, "id = ? AND workspace_id = ?", jobId, workspaceId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "research job not found")
		}
		slog.Error("error getting research job", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving research job record")
	}

	return convertResearchJob(job), nil
}

func (s *BackendService) DownloadResearchResult(w http.ResponseWriter, r *http.Request) {
	workspaceId, err := URLParamUUID(r, "workspace_id")
	if err != nil {
		writeError(w, err)
		return
	}
	jobId, err := URLParamUUID(r, "job_id")
	if err != nil {
		writeError(w, err)
		return
	}

	var job database.ResearchJob
	if err := s.db.WithContext(r.Context()).First(&job, "id = ? AND workspace_id = ?", jobId, workspaceId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, CodedErrorf(http.StatusNotFound, "research job not found"))
			return
		}
		writeError(w, CodedErrorf(http.StatusInternalServerError, "error retrieving research job record"))
		return
	}

	if job.Status != database.JobCompleted {
		writeError(w, CodedErrorf(http.StatusUnprocessableEntity, "research job is not complete: job has status: %s", job.Status))
		return
	}

	key := fmt.Sprintf("%s/research/%s.json", workspaceId, jobId)
	data, err := s.storage.GetObject(r.Context(), s.bucket, key)
	if err != nil {
		slog.Error("error reading research result", "bucket", s.bucket, "key", key, "error", err)
		writeError(w, CodedErrorf(http.StatusInternalServerError, "research result is missing"))
		return
	}

	writeArtifact(w, key, data)
}

func (s *BackendService) ListMetaPrompts(r *http.Request) (any, error) {
	names := s.registry.Names()

	prompts := make([]api.MetaPrompt, 0, len(names))
	for _, name := range names {
		vars, err := s.registry.Variables(name)
		if err != nil {
			slog.Error("error collecting template variables", "template", name, "error", err)
			return nil, CodedErrorf(http.StatusInternalServerError, "failed to inspect meta prompt templates")
		}

		tpl, _ := s.registry.Get(name)
		prompts = append(prompts, api.MetaPrompt{Name: name, Description: tpl.Description, Variables: vars})
	}

	return api.ListMetaPromptsResponse{MetaPrompts: prompts}, nil
}

// RenderMetaPrompt fills a template with the request's query params. Unknown
// params are ignored and unfilled slots are reported back, so callers can
// render incrementally.
func (s *BackendService) RenderMetaPrompt(r *http.Request) (any, error) {
	name := chi.URLParam(r, "name")

	vars := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			vars[key] = values[0]
		}
	}

	messages, unresolved, err := s.registry.Render(name, vars)
	if err != nil {
		return nil, CodedErrorf(http.StatusNotFound, "meta prompt '%s' not found", name)
	}

	return api.RenderMetaPromptResponse{Messages: messages, Unresolved: unresolved}, nil
}
