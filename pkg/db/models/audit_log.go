package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/carbridge-backend/pkg/enums"
	"github.com/angelmondragon/carbridge-backend/pkg/types"
)

// AuditLogEntry is an append-only record of a privileged mutation.
type AuditLogEntry struct {
	ID           uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	Action       enums.AuditAction       `gorm:"column:action;type:text;not null;index"`
	ResourceType enums.AuditResourceType `gorm:"column:resource_type;type:text;not null"`
	ResourceID   uuid.UUID               `gorm:"column:resource_id;type:uuid;not null;index"`
	ActorID      uuid.UUID               `gorm:"column:actor_id;type:uuid;not null"`
	ActorRole    enums.Role              `gorm:"column:actor_role;type:text;not null"`
	Details      types.JSONObject        `gorm:"column:details;type:jsonb;not null"`
	IPAddress    *string                 `gorm:"column:ip_address"`
	CreatedAt    time.Time               `gorm:"column:created_at;autoCreateTime"`
}

// TableName pins the table name used by migrations.
func (AuditLogEntry) TableName() string {
	return "audit_logs"
}
