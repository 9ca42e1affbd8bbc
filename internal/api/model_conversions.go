package api

import (
	"encoding/json"
	"log/slog"
	"promptx/internal/database"
	"promptx/internal/storage"
	"promptx/pkg/api"
	"strings"
)

func convertWorkspace(w database.Workspace) api.Workspace {
	return api.Workspace{
		Id:           w.Id,
		Name:         w.Name,
		CreationTime: w.CreationTime,
	}
}

func convertWorkspaces(ws []database.Workspace) []api.Workspace {
	workspaces := make([]api.Workspace, 0, len(ws))
	for _, w := range ws {
		workspaces = append(workspaces, convertWorkspace(w))
	}
	return workspaces
}

func convertBuildJob(j database.BuildJob) api.BuildJob {
	job := api.BuildJob{
		Id:           j.Id,
		WorkspaceId:  j.WorkspaceId,
		Status:       j.Status,
		Placeholder:  j.Placeholder,
		Error:        j.Error,
		CreationTime: j.CreationTime,
	}

	if j.CompletionTime.Valid {
		t := j.CompletionTime.Time
		job.CompletionTime = &t
	}

	if len(j.Messages) > 0 {
		if err := json.Unmarshal(j.Messages, &job.Messages); err != nil {
			slog.Error("error decoding stored build messages", "job_id", j.Id, "error", err)
		}
	}

	return job
}

func convertBuildJobs(js []database.BuildJob) []api.BuildJob {
	jobs := make([]api.BuildJob, 0, len(js))
	for _, j := range js {
		jobs = append(jobs, convertBuildJob(j))
	}
	return jobs
}

func convertResearchJob(j database.ResearchJob) api.ResearchJob {
	job := api.ResearchJob{
		Id:           j.Id,
		WorkspaceId:  j.WorkspaceId,
		Query:        j.Query,
		Status:       j.Status,
		MaxResults:   j.MaxResults,
		FetchPages:   j.FetchPages,
		ResultCount:  j.ResultCount,
		Error:        j.Error,
		CreationTime: j.CreationTime,
	}

	if j.CompletionTime.Valid {
		t := j.CompletionTime.Time
		job.CompletionTime = &t
	}

	return job
}

// convertArtifacts strips the workspace prefix so clients see bare artifact
// names.
func convertArtifacts(objects []storage.Object, prefix string) []api.Artifact {
	artifacts := make([]api.Artifact, 0, len(objects))
	for _, obj := range objects {
		artifacts = append(artifacts, api.Artifact{
			Name: strings.TrimPrefix(obj.Name, prefix),
			Size: obj.Size,
		})
	}
	return artifacts
}
