package handler

import (
	"strings"

	dErrors "planhub/pkg/domain-errors"

	"planhub/internal/plan/models"
)

// CreatePlanRequest is the HTTP request body for POST /v1/plan. The body is
// the aggregate itself; any client-supplied versionTag is discarded by the
// service.
type CreatePlanRequest models.Plan

// Validate validates the aggregate shape.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *CreatePlanRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	r.ObjectID = strings.TrimSpace(r.ObjectID)
	if r.ObjectID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "objectId is required")
	}
	seen := make(map[string]struct{}, len(r.LinkedServices))
	for _, svc := range r.LinkedServices {
		id := strings.TrimSpace(svc.ObjectID)
		if id == "" {
			// Tolerated: the conversion engine skips this subtree.
			continue
		}
		if _, dup := seen[id]; dup {
			return dErrors.New(dErrors.CodeBadRequest, "linkedServices objectIds must be unique")
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Plan returns the validated aggregate.
func (r *CreatePlanRequest) Plan() *models.Plan {
	p := models.Plan(*r)
	return &p
}
