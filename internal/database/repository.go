package database

import (
	"context"
	"time"

	"github.com/voicegate/voicegate/internal/database/models"
)

// CallRepository manages the call history.
type CallRepository interface {
	Create(ctx context.Context, call *models.Call) error
	Finish(ctx context.Context, call *models.Call) error
	GetByID(ctx context.Context, id string) (*models.Call, error)
	List(ctx context.Context, limit, offset int) ([]models.Call, int, error)
	CountByOutcome(ctx context.Context) (map[string]int64, error)
	TotalCost(ctx context.Context) (float64, error)
}

// TaskRepository manages agent tasks.
type TaskRepository interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id string) (*models.Task, error)
	UpdateStatus(ctx context.Context, id, status, result, errMsg string, progress float64) error
	List(ctx context.Context, limit int) ([]models.Task, error)
	ListByStatus(ctx context.Context, status string) ([]models.Task, error)
}

// IdeaRepository manages captured ideas.
type IdeaRepository interface {
	Create(ctx context.Context, idea *models.Idea) error
	GetByID(ctx context.Context, id string) (*models.Idea, error)
	List(ctx context.Context, limit int) ([]models.Idea, error)
	AppendNote(ctx context.Context, id, note string) error
	UpdateStatus(ctx context.Context, id, status string) error
}

// ProjectRepository manages projects.
type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	GetByID(ctx context.Context, id string) (*models.Project, error)
	List(ctx context.Context, limit int) ([]models.Project, error)
	Update(ctx context.Context, project *models.Project) error
}

// OrderRepository manages phoned-in orders.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	List(ctx context.Context, limit int) ([]models.Order, error)
	AddItem(ctx context.Context, id string, item models.OrderItem) error
	UpdateStatus(ctx context.Context, id, status string) error
}

// ScreeningRepository manages the caller blacklist, whitelist and the
// failed-unlock history behind the auto-blacklist.
type ScreeningRepository interface {
	IsBlacklisted(ctx context.Context, callerID string) (bool, error)
	AddToBlacklist(ctx context.Context, callerID, reason string) error
	// RemoveFromBlacklist also purges the caller's failed-unlock records so
	// the auto-blacklist requires three fresh failures. Returns false when
	// the caller was not blacklisted.
	RemoveFromBlacklist(ctx context.Context, callerID string) (bool, error)
	ListBlacklist(ctx context.Context) ([]models.BlacklistEntry, error)

	IsWhitelisted(ctx context.Context, callerID string) (bool, error)
	AddToWhitelist(ctx context.Context, callerID, note string) error
	RemoveFromWhitelist(ctx context.Context, callerID string) (bool, error)
	ListWhitelist(ctx context.Context) ([]models.WhitelistEntry, error)

	RecordFailedCall(ctx context.Context, callerID string) error
	CountRecentFailures(ctx context.Context, callerID string, window time.Duration) (int, error)
	// CheckAndAutoBlacklist blacklists the caller when the failure count in
	// the rolling window reaches the threshold. Returns true when the caller
	// was blacklisted by this call.
	CheckAndAutoBlacklist(ctx context.Context, callerID string) (bool, error)
}
