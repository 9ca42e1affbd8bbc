package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	BuildQueue      = "build_queue"
	ResearchQueue   = "research_queue"
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

type BuildTaskPayload struct {
	JobId       uuid.UUID
	WorkspaceId uuid.UUID
}

type ResearchTaskPayload struct {
	JobId       uuid.UUID
	WorkspaceId uuid.UUID

	Query      string
	MaxResults int
	FetchPages bool
}

type Publisher interface {
	PublishBuildTask(ctx context.Context, payload BuildTaskPayload) error

	PublishResearchTask(ctx context.Context, payload ResearchTaskPayload) error

	Close()
}

type Reciever interface {
	Tasks() <-chan Task

	Close()
}
