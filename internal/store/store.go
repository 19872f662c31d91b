package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/notegraphhq/notegraph/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	GetLatestJobByConversation(ctx context.Context, conversationID string) (*models.Job, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error
}

type jobUpdateParams struct {
	ErrorMessage    *string
	RemoteJobID     *string
	Result          *string
	ProgressMessage *string
	ProgressPercent *float64
}

type JobUpdateOption func(*jobUpdateParams)

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
	}
}

func WithRemoteJobID(id string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.RemoteJobID = &id
	}
}

func WithResult(content string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Result = &content
	}
}

func WithProgress(message string, percent float64) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ProgressMessage = &message
		p.ProgressPercent = &percent
	}
}
