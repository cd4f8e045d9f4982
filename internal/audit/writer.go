package audit

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/carbridge-backend/pkg/auth"
	"github.com/angelmondragon/carbridge-backend/pkg/db/models"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
	"github.com/angelmondragon/carbridge-backend/pkg/types"
)

// Entry describes one privileged mutation.
type Entry struct {
	Action       enums.AuditAction
	ResourceType enums.AuditResourceType
	ResourceID   uuid.UUID
	Actor        auth.Actor
	Details      map[string]any
}

// Writer appends audit rows on the caller's transaction. Callers must treat a
// returned error as fatal so the mutation rolls back with it.
type Writer struct{}

// NewWriter returns an audit writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Record inserts entry on tx.
func (w *Writer) Record(ctx context.Context, tx *gorm.DB, entry Entry) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if !entry.Action.IsValid() {
		return errors.New("unknown audit action")
	}
	if entry.ResourceID == uuid.Nil {
		return errors.New("audit resource id required")
	}
	if entry.Actor.UserID == uuid.Nil {
		return errors.New("audit actor required")
	}

	details := types.JSONObject(entry.Details)
	if entry.Actor.RequestID != "" {
		details = make(types.JSONObject, len(entry.Details)+1)
		for k, v := range entry.Details {
			details[k] = v
		}
		details["request_id"] = entry.Actor.RequestID
	}

	row := models.AuditLogEntry{
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		ActorID:      entry.Actor.UserID,
		ActorRole:    entry.Actor.Role,
		Details:      details,
	}
	if ip := strings.TrimSpace(entry.Actor.IP); ip != "" {
		row.IPAddress = &ip
	}
	return tx.WithContext(ctx).Create(&row).Error
}

// Repository reads audit history.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds an audit reader to db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ListByResource returns every entry for resourceID, oldest first.
func (r *Repository) ListByResource(ctx context.Context, resourceID uuid.UUID) ([]models.AuditLogEntry, error) {
	var rows []models.AuditLogEntry
	err := r.db.WithContext(ctx).
		Where("resource_id = ?", resourceID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// ListByAction returns every entry recorded for action, newest first.
func (r *Repository) ListByAction(ctx context.Context, action enums.AuditAction) ([]models.AuditLogEntry, error) {
	var rows []models.AuditLogEntry
	err := r.db.WithContext(ctx).
		Where("action = ?", action).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}
