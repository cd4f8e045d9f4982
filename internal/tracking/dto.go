package tracking

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/carbridge-backend/pkg/db/models"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
)

// StageDTO is the API shape of one tracking stage.
type StageDTO struct {
	ID          uuid.UUID                 `json:"id"`
	StageType   enums.TrackingStageType   `json:"stage_type"`
	Status      enums.TrackingStageStatus `json:"status"`
	Location    *string                   `json:"location,omitempty"`
	ETA         *time.Time                `json:"eta,omitempty"`
	Notes       *string                   `json:"notes,omitempty"`
	StartedAt   *time.Time                `json:"started_at,omitempty"`
	CompletedAt *time.Time                `json:"completed_at,omitempty"`
	UpdatedAt   time.Time                 `json:"updated_at"`
}

// Timeline is the ordered stage list of one escrow.
type Timeline struct {
	EscrowID uuid.UUID  `json:"escrowId"`
	Stages   []StageDTO `json:"stages"`
}

// UpdateInput is an admin stage update. Nil optional fields are left as is.
type UpdateInput struct {
	EscrowID  uuid.UUID
	StageType string
	Status    string
	Location  *string
	ETA       *time.Time
	Notes     *string
}

// StageChange is the message fanned out to stream subscribers.
type StageChange struct {
	Type     string    `json:"type"`
	EscrowID uuid.UUID `json:"escrowId"`
	Stage    StageDTO  `json:"stage"`
}

const stageChangeType = "stage_updated"

// StageFromModel maps a stage row to its API shape.
func StageFromModel(stage models.OrderTrackingStage) StageDTO {
	return StageDTO{
		ID:          stage.ID,
		StageType:   stage.StageType,
		Status:      stage.Status,
		Location:    stage.Location,
		ETA:         stage.ETA,
		Notes:       stage.Notes,
		StartedAt:   stage.StartedAt,
		CompletedAt: stage.CompletedAt,
		UpdatedAt:   stage.UpdatedAt,
	}
}

// orderStages returns one entry per canonical stage type in timeline order.
// Missing stages render as pending.
func orderStages(escrowID uuid.UUID, stages []models.OrderTrackingStage) []StageDTO {
	byType := make(map[enums.TrackingStageType]models.OrderTrackingStage, len(stages))
	for _, stage := range stages {
		byType[stage.StageType] = stage
	}
	out := make([]StageDTO, 0, len(enums.TrackingStageOrder))
	for _, stageType := range enums.TrackingStageOrder {
		stage, ok := byType[stageType]
		if !ok {
			stage = models.OrderTrackingStage{EscrowID: escrowID, StageType: stageType, Status: enums.TrackingStatusPending}
		}
		out = append(out, StageFromModel(stage))
	}
	return out
}

// blockingStage returns the first stage before target that is not completed.
func blockingStage(target enums.TrackingStageType, stages []models.OrderTrackingStage) (enums.TrackingStageType, bool) {
	status := make(map[enums.TrackingStageType]enums.TrackingStageStatus, len(stages))
	for _, stage := range stages {
		status[stage.StageType] = stage.Status
	}
	for _, earlier := range enums.TrackingStageOrder[:target.Index()] {
		if status[earlier] != enums.TrackingStatusCompleted {
			return earlier, true
		}
	}
	return "", false
}
