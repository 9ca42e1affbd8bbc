package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"promptx/internal/database"
	"promptx/internal/messaging"
	"promptx/internal/research"
	"promptx/internal/storage"
	"promptx/pkg/api"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Workspace artifacts have fixed names so the toolchain around a workspace
// can find them without extra bookkeeping.
const (
	RequirementArtifact = "requirement.txt"
	AnalysisArtifact    = "analysis.json"
	TestDataArtifact    = "test_data.json"
	PayloadArtifact     = "final_prompt.json"
)

type TaskProcessor struct {
	db       *gorm.DB
	storage  storage.Provider
	reciever messaging.Reciever

	builder  *PayloadBuilder
	searcher research.Searcher
	reader   research.PageFetcher

	bucket string
}

func NewTaskProcessor(db *gorm.DB, store storage.Provider, reciever messaging.Reciever, builder *PayloadBuilder, searcher research.Searcher, reader research.PageFetcher, bucket string) *TaskProcessor {
	return &TaskProcessor{
		db:       db,
		storage:  store,
		reciever: reciever,
		builder:  builder,
		searcher: searcher,
		reader:   reader,
		bucket:   bucket,
	}
}

func (proc *TaskProcessor) Start() {
	slog.Info("starting task processor")

	for task := range proc.reciever.Tasks() {
		proc.ProcessTask(task)
	}
}

func (proc *TaskProcessor) Stop() {
	slog.Info("stopping task processor")

	proc.reciever.Close()
}

func (proc *TaskProcessor) ProcessTask(task messaging.Task) {
	ctx := context.Background()

	var err error
	switch task.Type() {

	case messaging.BuildQueue:
		var payload messaging.BuildTaskPayload
		if err = json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("error unmarshalling build task", "error", err)
			if err := task.Reject(); err != nil { // Discard malformed message
				slog.Error("error rejecting message from queue", "error", err)
			}
			return
		}
		err = proc.processBuildTask(ctx, payload)

	case messaging.ResearchQueue:
		var payload messaging.ResearchTaskPayload
		if err = json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("error unmarshalling research task", "error", err)
			if err := task.Reject(); err != nil { // Discard malformed message
				slog.Error("error rejecting message from queue", "error", err)
			}
			return
		}
		err = proc.processResearchTask(ctx, payload)

	default:
		slog.Error("received unknown task type", "queue", task.Type())
		if err := task.Reject(); err != nil { // reject unknown message type
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	if err != nil {
		slog.Error("error processing task", "queue", task.Type(), "error", err)
		if err := task.Nack(); err != nil {
			slog.Error("error reporting processing failure on message from queue", "error", err)
		}
	} else {
		slog.Info("successfully processed task", "queue", task.Type())
		if err := task.Ack(); err != nil {
			slog.Error("error acknowledging message from queue", "error", err)
		}
	}
}

func (proc *TaskProcessor) processBuildTask(ctx context.Context, payload messaging.BuildTaskPayload) error {
	jobId := payload.JobId

	slog.Info("processing build task", "job_id", jobId, "workspace_id", payload.WorkspaceId)

	var job database.BuildJob
	if err := proc.db.First(&job, "id = ?", jobId).Error; err != nil {
		slog.Error("error fetching build job", "job_id", jobId, "error", err)
		return fmt.Errorf("error getting build job: %w", err)
	}

	if err := database.UpdateBuildJobStatus(ctx, proc.db, jobId, database.JobRunning); err != nil {
		slog.Error("error marking build job as running", "job_id", jobId, "error", err)
	}

	messages, err := proc.buildPayload(ctx, payload.WorkspaceId, job.Placeholder)
	if err != nil {
		database.SaveBuildJobError(ctx, proc.db, jobId, err.Error())
		if errors.Is(err, ErrValidation) {
			// bad workspace data, a retry cannot succeed
			slog.Error("build job failed on invalid workspace artifacts", "job_id", jobId, "error", err)
			return nil
		}
		return fmt.Errorf("error building payload for job %s: %w", jobId, err)
	}

	serialized, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		database.SaveBuildJobError(ctx, proc.db, jobId, err.Error())
		return fmt.Errorf("error serializing payload for job %s: %w", jobId, err)
	}

	key := fmt.Sprintf("%s/%s", payload.WorkspaceId, PayloadArtifact)
	if err := proc.storage.PutObject(ctx, proc.bucket, key, bytes.NewReader(serialized)); err != nil {
		database.SaveBuildJobError(ctx, proc.db, jobId, err.Error())
		return fmt.Errorf("error writing payload artifact for job %s: %w", jobId, err)
	}

	if err := database.SaveBuildJobResult(ctx, proc.db, jobId, datatypes.JSON(serialized)); err != nil {
		return fmt.Errorf("error saving build job result: %w", err)
	}

	slog.Info("build job completed", "job_id", jobId, "workspace_id", payload.WorkspaceId)
	return nil
}

func (proc *TaskProcessor) buildPayload(ctx context.Context, workspaceId uuid.UUID, placeholder string) ([]api.Message, error) {
	analysisData, err := proc.storage.GetObject(ctx, proc.bucket, fmt.Sprintf("%s/%s", workspaceId, AnalysisArtifact))
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", AnalysisArtifact, err)
	}
	analysis, err := ParseAnalysis(analysisData)
	if err != nil {
		return nil, err
	}

	testDataBytes, err := proc.storage.GetObject(ctx, proc.bucket, fmt.Sprintf("%s/%s", workspaceId, TestDataArtifact))
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", TestDataArtifact, err)
	}
	testData, err := ParseTestData(testDataBytes)
	if err != nil {
		return nil, err
	}

	return proc.builder.WithPlaceholder(placeholder).Build(analysis, testData)
}

type researchEntry struct {
	research.SearchResult

	Markdown string `json:"markdown,omitempty"`
}

func (proc *TaskProcessor) processResearchTask(ctx context.Context, payload messaging.ResearchTaskPayload) error {
	jobId := payload.JobId

	slog.Info("processing research task", "job_id", jobId, "workspace_id", payload.WorkspaceId, "query", payload.Query)

	var job database.ResearchJob
	if err := proc.db.First(&job, "id = ?", jobId).Error; err != nil {
		slog.Error("error fetching research job", "job_id", jobId, "error", err)
		return fmt.Errorf("error getting research job: %w", err)
	}

	if err := database.UpdateResearchJobStatus(ctx, proc.db, jobId, database.JobRunning); err != nil {
		slog.Error("error marking research job as running", "job_id", jobId, "error", err)
	}

	results, err := proc.searcher.Search(ctx, payload.Query, research.SearchOptions{MaxResults: payload.MaxResults})
	if err != nil {
		database.SaveResearchJobError(ctx, proc.db, jobId, err.Error())
		return fmt.Errorf("error searching for job %s: %w", jobId, err)
	}

	entries := make([]researchEntry, 0, len(results))
	for _, result := range results {
		entry := researchEntry{SearchResult: result}
		if payload.FetchPages {
			page, err := proc.reader.Fetch(ctx, result.Url)
			if err != nil {
				// a single unreadable source should not sink the whole job
				slog.Warn("skipping unreadable page", "job_id", jobId, "url", result.Url, "error", err)
			} else {
				entry.Markdown = page.Markdown
			}
		}
		entries = append(entries, entry)
	}

	serialized, err := json.MarshalIndent(map[string]any{"query": payload.Query, "results": entries}, "", "  ")
	if err != nil {
		database.SaveResearchJobError(ctx, proc.db, jobId, err.Error())
		return fmt.Errorf("error serializing research results for job %s: %w", jobId, err)
	}

	key := fmt.Sprintf("%s/research/%s.json", payload.WorkspaceId, jobId)
	if err := proc.storage.PutObject(ctx, proc.bucket, key, bytes.NewReader(serialized)); err != nil {
		database.SaveResearchJobError(ctx, proc.db, jobId, err.Error())
		return fmt.Errorf("error writing research artifact for job %s: %w", jobId, err)
	}

	if err := database.SaveResearchJobResult(ctx, proc.db, jobId, len(entries)); err != nil {
		return fmt.Errorf("error saving research job result: %w", err)
	}

	slog.Info("research job completed", "job_id", jobId, "result_count", len(entries))
	return nil
}
