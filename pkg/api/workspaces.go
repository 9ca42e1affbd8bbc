package api

import (
	"time"

	"github.com/google/uuid"
)

type CreateWorkspaceRequest struct {
	Name string `json:"name"`
}

type CreateWorkspaceResponse struct {
	WorkspaceId uuid.UUID `json:"workspace_id"`
}

type Workspace struct {
	Id           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	CreationTime time.Time `json:"creation_time"`
}

type ListWorkspacesResponse struct {
	Workspaces []Workspace `json:"workspaces"`
}

// ListQuery is shared by the list endpoints. A limit of 0 means the server
// default.
type ListQuery struct {
	Limit  int `schema:"limit"`
	Offset int `schema:"offset"`
}

type Artifact struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

type ListArtifactsResponse struct {
	Artifacts []Artifact `json:"artifacts"`
}

// SubmitBuildRequest queues a payload build over a workspace's analysis.json
// and test_data.json. Placeholder overrides the default runtime-input marker.
type SubmitBuildRequest struct {
	Placeholder string `json:"placeholder,omitempty"`
}

type SubmitBuildResponse struct {
	JobId uuid.UUID `json:"job_id"`
}

type BuildJob struct {
	Id             uuid.UUID  `json:"id"`
	WorkspaceId    uuid.UUID  `json:"workspace_id"`
	Status         string     `json:"status"`
	Placeholder    string     `json:"placeholder"`
	Messages       []Message  `json:"messages,omitempty"`
	Error          string     `json:"error,omitempty"`
	CreationTime   time.Time  `json:"creation_time"`
	CompletionTime *time.Time `json:"completion_time,omitempty"`
}

type ListBuildJobsResponse struct {
	Jobs []BuildJob `json:"jobs"`
}

// BuildRequest is the stateless build input: the caller supplies the analysis
// and test data inline and gets the assembled payload back.
type BuildRequest struct {
	Analysis    Analysis `json:"analysis"`
	TestData    TestData `json:"test_data"`
	Placeholder string   `json:"placeholder,omitempty"`
}

type BuildResponse struct {
	Messages []Message `json:"messages"`
}

type SubmitResearchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
	FetchPages bool   `json:"fetch_pages,omitempty"`
}

type SubmitResearchResponse struct {
	JobId uuid.UUID `json:"job_id"`
}

type ResearchJob struct {
	Id             uuid.UUID  `json:"id"`
	WorkspaceId    uuid.UUID  `json:"workspace_id"`
	Query          string     `json:"query"`
	Status         string     `json:"status"`
	MaxResults     int        `json:"max_results,omitempty"`
	FetchPages     bool       `json:"fetch_pages,omitempty"`
	ResultCount    int        `json:"result_count"`
	Error          string     `json:"error,omitempty"`
	CreationTime   time.Time  `json:"creation_time"`
	CompletionTime *time.Time `json:"completion_time,omitempty"`
}

type MetaPrompt struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Variables   []string `json:"variables"`
}

type ListMetaPromptsResponse struct {
	MetaPrompts []MetaPrompt `json:"meta_prompts"`
}

type RenderMetaPromptResponse struct {
	Messages   []Message `json:"messages"`
	Unresolved []string  `json:"unresolved,omitempty"`
}
