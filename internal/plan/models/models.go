// Package models holds the benefit plan aggregate.
//
// A Plan is the aggregate root and the unit of consistency: it owns exactly
// one CostShare and zero or more LinkedServices, each of which owns a
// ServiceDetail and a service-level CostShare. The whole tree is stored and
// versioned as one value; the search index receives a flattened projection of
// it (see internal/plan/convert).
package models

import "encoding/json"

// Relationship tags for flattened index documents.
const (
	RelationshipPlan             = "plan"
	RelationshipPlanCostShare    = "planCostShare"
	RelationshipLinkedService    = "linkedService"
	RelationshipService          = "service"
	RelationshipServiceCostShare = "serviceCostShare"
)

// Plan is the aggregate root.
//
// Invariants:
//   - ObjectID is non-empty and globally unique
//   - exactly one CostShare, zero or more LinkedServices
//   - VersionTag is derived from content, never client-settable
type Plan struct {
	ObjectID       string          `json:"objectId"`
	ObjectType     string          `json:"objectType,omitempty"`
	PlanType       string          `json:"planType,omitempty"`
	Organization   string          `json:"organization,omitempty"`
	CreationDate   string          `json:"creationDate,omitempty"`
	CostShare      CostShare       `json:"costShare"`
	LinkedServices []LinkedService `json:"linkedServices,omitempty"`
	VersionTag     string          `json:"versionTag,omitempty"`
}

// CostShare holds deductible and copay terms. It appears both at the plan
// level and nested inside each linked service.
type CostShare struct {
	ObjectID     string  `json:"objectId"`
	ObjectType   string  `json:"objectType,omitempty"`
	Organization string  `json:"organization,omitempty"`
	Deductible   float64 `json:"deductible"`
	Copay        float64 `json:"copay"`
}

// LinkedService is one service attached to a plan. Its ObjectID is unique
// within the owning plan's LinkedServices sequence.
type LinkedService struct {
	ObjectID         string        `json:"objectId"`
	ObjectType       string        `json:"objectType,omitempty"`
	Organization     string        `json:"organization,omitempty"`
	ServiceDetail    ServiceDetail `json:"serviceDetail"`
	ServiceCostShare CostShare     `json:"serviceCostShare"`
}

// ServiceDetail names the underlying service.
type ServiceDetail struct {
	ObjectID     string `json:"objectId"`
	ObjectType   string `json:"objectType,omitempty"`
	Organization string `json:"organization,omitempty"`
	Name         string `json:"name,omitempty"`
}

// Clone returns a deep copy of the plan.
func (p *Plan) Clone() *Plan {
	cp := *p
	if p.LinkedServices != nil {
		cp.LinkedServices = make([]LinkedService, len(p.LinkedServices))
		copy(cp.LinkedServices, p.LinkedServices)
	}
	return &cp
}

// OwnedIDs lists every objectId the plan transitively owns, the plan's own id
// first. Used by the delete cascade and by diagnostics.
func (p *Plan) OwnedIDs() []string {
	ids := []string{p.ObjectID}
	if p.CostShare.ObjectID != "" {
		ids = append(ids, p.CostShare.ObjectID)
	}
	for _, svc := range p.LinkedServices {
		if svc.ObjectID != "" {
			ids = append(ids, svc.ObjectID)
		}
		if svc.ServiceDetail.ObjectID != "" {
			ids = append(ids, svc.ServiceDetail.ObjectID)
		}
		if svc.ServiceCostShare.ObjectID != "" {
			ids = append(ids, svc.ServiceCostShare.ObjectID)
		}
	}
	return ids
}

// AsMap converts the plan to its generic JSON form. Used by the merge-patch
// rule and by fingerprinting, both of which operate on the wire shape rather
// than on struct fields.
func (p *Plan) AsMap() (map[string]any, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// FromMap decodes a generic JSON form back into a Plan.
func FromMap(m map[string]any) (*Plan, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var p Plan
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
