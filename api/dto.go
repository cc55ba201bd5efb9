/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Templates:
    TemplateDTO, CreateTemplateRequest

  Instances:
    InstanceDTO, CompleteResponse, CompleteVirtualRequest

  Task board:
    TaskBoardDTO (instances + virtuals + uncovered templates)

  Admin:
    MaterializeResponse, RunDTO

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - codec/codec.go: The metadata field encoding carried in Metadata
*/
package api

import (
	"time"

	"github.com/warp/recurrence-engine/codec"
	"github.com/warp/recurrence-engine/store/sqlite"
	"github.com/warp/recurrence-engine/task"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// TemplateDTO represents a recurring task template in API responses.
// Metadata is the rule in its field encoding, as the user would type it.
type TemplateDTO struct {
	Name     string `json:"name"`
	Project  string `json:"project"`
	Section  string `json:"section"`
	Metadata string `json:"metadata"`
}

// CreateTemplateRequest is the request to create or update a template.
// Metadata carries the recurrence fields (recurring::, starting::, ...).
type CreateTemplateRequest struct {
	Name     string `json:"name"`
	Project  string `json:"project"`
	Section  string `json:"section"`
	Metadata string `json:"metadata"`
}

// InstanceDTO represents an occurrence in API responses. Virtual instances
// have an empty id.
type InstanceDTO struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Project string `json:"project"`
	Section string `json:"section"`
	Due     string `json:"due"`
	State   string `json:"state"`
}

// TaskBoardDTO is the combined user-facing view: persisted instances,
// session virtuals, and templates not yet covered by any instance.
type TaskBoardDTO struct {
	Instances []InstanceDTO `json:"instances"`
	Virtuals  []InstanceDTO `json:"virtuals"`
	Templates []TemplateDTO `json:"templates"`
}

// CompleteVirtualRequest identifies a virtual occurrence to complete.
type CompleteVirtualRequest struct {
	Name    string `json:"name"`
	Project string `json:"project"`
	Section string `json:"section"`
	Due     string `json:"due"`
}

// CompleteResponse reports a completion and the occurrence it spawned.
type CompleteResponse struct {
	Completed InstanceDTO  `json:"completed"`
	Next      *InstanceDTO `json:"next,omitempty"`
}

// MaterializeResponse reports the outcome of a materialization pass.
type MaterializeResponse struct {
	Ran     bool          `json:"ran"`
	Created []InstanceDTO `json:"created"`
	Skipped int           `json:"skipped"`
}

// RunDTO represents a recorded materialization pass.
type RunDTO struct {
	ID           string `json:"id"`
	StartedAt    string `json:"started_at"`
	CompletedAt  string `json:"completed_at,omitempty"`
	CreatedCount int    `json:"created_count"`
	SkippedCount int    `json:"skipped_count"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
}

// ErrorResponse is the standard error shape.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toInstanceDTO(inst task.Instance) InstanceDTO {
	return InstanceDTO{
		ID:      inst.ID,
		Name:    inst.Identity.Name,
		Project: inst.Identity.Project,
		Section: inst.Identity.Section,
		Due:     inst.Due.String(),
		State:   string(inst.State),
	}
}

func toInstanceDTOs(insts []task.Instance) []InstanceDTO {
	dtos := make([]InstanceDTO, len(insts))
	for i, inst := range insts {
		dtos[i] = toInstanceDTO(inst)
	}
	return dtos
}

func toTemplateDTO(tpl task.Template) TemplateDTO {
	return TemplateDTO{
		Name:     tpl.Identity.Name,
		Project:  tpl.Identity.Project,
		Section:  tpl.Identity.Section,
		Metadata: codec.EncodeRule(tpl.Rule),
	}
}

func toRunDTO(r sqlite.MaterializationRun) RunDTO {
	dto := RunDTO{
		ID:           r.ID,
		StartedAt:    r.StartedAt.Format(time.RFC3339),
		CreatedCount: r.CreatedCount,
		SkippedCount: r.SkippedCount,
		Status:       r.Status,
		Error:        r.Error,
	}
	if r.CompletedAt != nil {
		dto.CompletedAt = r.CompletedAt.Format(time.RFC3339)
	}
	return dto
}
