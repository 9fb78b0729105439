// Package convert flattens a plan aggregate into index documents.
//
// The walk is a typed recursive descent over the closed set of entity shapes
// the aggregate can contain (plan, plan cost share, linked service, service
// detail, service cost share). Anything outside that set never reaches the
// index: an entity without an objectId is reported as a skip, not an error.
//
// Flatten is pure and deterministic: the same aggregate always yields the
// same documents in the same order, root first, then direct children in
// source order, then grandchildren, so index writes can rely on
// parent-before-child ordering.
package convert

import (
	"planhub/internal/index"
	"planhub/internal/plan/models"
)

// Skip records one entity excluded from indexing.
type Skip struct {
	Relationship string
	Reason       string
}

// Flatten decomposes the aggregate into independently addressable documents.
func Flatten(p *models.Plan) ([]index.Document, []Skip) {
	var (
		docs  []index.Document
		skips []Skip
	)
	if p == nil || p.ObjectID == "" {
		return nil, []Skip{{Relationship: models.RelationshipPlan, Reason: "missing objectId"}}
	}
	root := p.ObjectID

	docs = append(docs, index.Document{
		ID:           root,
		Relationship: models.RelationshipPlan,
		RoutingKey:   root,
		Fields:       planFields(p),
	})

	if doc, ok := costShareDoc(p.CostShare, models.RelationshipPlanCostShare, root, root); ok {
		docs = append(docs, doc)
	} else {
		skips = append(skips, Skip{Relationship: models.RelationshipPlanCostShare, Reason: "missing objectId"})
	}

	for _, svc := range p.LinkedServices {
		svcDocs, svcSkips := flattenService(svc, root)
		docs = append(docs, svcDocs...)
		skips = append(skips, svcSkips...)
	}
	return docs, skips
}

// FlattenRoot emits only the plan document and its cost share. Used by update
// propagation, which re-emits the root (its versionTag changed) without
// touching unchanged services.
func FlattenRoot(p *models.Plan) ([]index.Document, []Skip) {
	if p == nil || p.ObjectID == "" {
		return nil, []Skip{{Relationship: models.RelationshipPlan, Reason: "missing objectId"}}
	}
	docs := []index.Document{{
		ID:           p.ObjectID,
		Relationship: models.RelationshipPlan,
		RoutingKey:   p.ObjectID,
		Fields:       planFields(p),
	}}
	var skips []Skip
	if doc, ok := costShareDoc(p.CostShare, models.RelationshipPlanCostShare, p.ObjectID, p.ObjectID); ok {
		docs = append(docs, doc)
	} else {
		skips = append(skips, Skip{Relationship: models.RelationshipPlanCostShare, Reason: "missing objectId"})
	}
	return docs, skips
}

// FlattenServices flattens only the given linked services of a plan. Used by
// update propagation so unchanged children are not re-emitted.
func FlattenServices(planID string, services []models.LinkedService) ([]index.Document, []Skip) {
	var (
		docs  []index.Document
		skips []Skip
	)
	for _, svc := range services {
		svcDocs, svcSkips := flattenService(svc, planID)
		docs = append(docs, svcDocs...)
		skips = append(skips, svcSkips...)
	}
	return docs, skips
}

func flattenService(svc models.LinkedService, root string) ([]index.Document, []Skip) {
	if svc.ObjectID == "" {
		// The service anchors its children's parentId; without it the
		// whole subtree is unaddressable.
		return nil, []Skip{{Relationship: models.RelationshipLinkedService, Reason: "missing objectId"}}
	}

	docs := []index.Document{{
		ID:           svc.ObjectID,
		ParentID:     root,
		Relationship: models.RelationshipLinkedService,
		RoutingKey:   root,
		Fields:       serviceFields(svc),
	}}
	var skips []Skip

	if svc.ServiceDetail.ObjectID != "" {
		docs = append(docs, index.Document{
			ID:           svc.ServiceDetail.ObjectID,
			ParentID:     svc.ObjectID,
			Relationship: models.RelationshipService,
			RoutingKey:   root,
			Fields:       detailFields(svc.ServiceDetail),
		})
	} else {
		skips = append(skips, Skip{Relationship: models.RelationshipService, Reason: "missing objectId"})
	}

	if doc, ok := costShareDoc(svc.ServiceCostShare, models.RelationshipServiceCostShare, svc.ObjectID, root); ok {
		docs = append(docs, doc)
	} else {
		skips = append(skips, Skip{Relationship: models.RelationshipServiceCostShare, Reason: "missing objectId"})
	}
	return docs, skips
}

func costShareDoc(cs models.CostShare, relationship, parent, root string) (index.Document, bool) {
	if cs.ObjectID == "" {
		return index.Document{}, false
	}
	return index.Document{
		ID:           cs.ObjectID,
		ParentID:     parent,
		Relationship: relationship,
		RoutingKey:   root,
		Fields: map[string]any{
			"objectId":     cs.ObjectID,
			"objectType":   cs.ObjectType,
			"organization": cs.Organization,
			"deductible":   cs.Deductible,
			"copay":        cs.Copay,
		},
	}, true
}

// planFields carries the plan's own scalars only; the nested cost share and
// services are emitted as separate documents.
func planFields(p *models.Plan) map[string]any {
	return map[string]any{
		"objectId":     p.ObjectID,
		"objectType":   p.ObjectType,
		"planType":     p.PlanType,
		"organization": p.Organization,
		"creationDate": p.CreationDate,
		"versionTag":   p.VersionTag,
	}
}

func serviceFields(svc models.LinkedService) map[string]any {
	return map[string]any{
		"objectId":     svc.ObjectID,
		"objectType":   svc.ObjectType,
		"organization": svc.Organization,
	}
}

func detailFields(d models.ServiceDetail) map[string]any {
	return map[string]any{
		"objectId":     d.ObjectID,
		"objectType":   d.ObjectType,
		"organization": d.Organization,
		"name":         d.Name,
	}
}
