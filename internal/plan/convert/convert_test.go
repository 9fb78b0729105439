package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planhub/internal/plan/models"
)

func samplePlan() *models.Plan {
	return &models.Plan{
		ObjectID:     "p1",
		ObjectType:   "plan",
		PlanType:     "inNetwork",
		Organization: "example.com",
		CreationDate: "2017-04-12",
		CostShare: models.CostShare{
			ObjectID:   "c1",
			ObjectType: "membercostshare",
			Deductible: 100,
			Copay:      20,
		},
		LinkedServices: []models.LinkedService{
			{
				ObjectID:   "s1",
				ObjectType: "planservice",
				ServiceDetail: models.ServiceDetail{
					ObjectID: "d1",
					Name:     "Yearly physical",
				},
				ServiceCostShare: models.CostShare{
					ObjectID:   "sc1",
					Deductible: 10,
					Copay:      0,
				},
			},
		},
	}
}

func TestFlattenEmitsParentBeforeChild(t *testing.T) {
	docs, skips := Flatten(samplePlan())
	require.Empty(t, skips)
	require.Len(t, docs, 5)

	assert.Equal(t, "p1", docs[0].ID)
	assert.Equal(t, models.RelationshipPlan, docs[0].Relationship)
	assert.Empty(t, docs[0].ParentID)

	assert.Equal(t, "c1", docs[1].ID)
	assert.Equal(t, models.RelationshipPlanCostShare, docs[1].Relationship)
	assert.Equal(t, "p1", docs[1].ParentID)

	assert.Equal(t, "s1", docs[2].ID)
	assert.Equal(t, models.RelationshipLinkedService, docs[2].Relationship)
	assert.Equal(t, "p1", docs[2].ParentID)

	assert.Equal(t, "d1", docs[3].ID)
	assert.Equal(t, models.RelationshipService, docs[3].Relationship)
	assert.Equal(t, "s1", docs[3].ParentID)

	assert.Equal(t, "sc1", docs[4].ID)
	assert.Equal(t, models.RelationshipServiceCostShare, docs[4].Relationship)
	assert.Equal(t, "s1", docs[4].ParentID)

	for _, doc := range docs {
		assert.Equal(t, "p1", doc.RoutingKey)
	}
}

func TestFlattenScalarFieldsOnly(t *testing.T) {
	docs, _ := Flatten(samplePlan())

	planDoc := docs[0]
	assert.Equal(t, "inNetwork", planDoc.Fields["planType"])
	assert.NotContains(t, planDoc.Fields, "costShare")
	assert.NotContains(t, planDoc.Fields, "linkedServices")

	costDoc := docs[1]
	assert.Equal(t, float64(100), costDoc.Fields["deductible"])
	assert.Equal(t, float64(20), costDoc.Fields["copay"])

	detailDoc := docs[3]
	assert.Equal(t, "Yearly physical", detailDoc.Fields["name"])
}

func TestFlattenDeterministic(t *testing.T) {
	plan := samplePlan()
	first, _ := Flatten(plan)
	second, _ := Flatten(plan)
	assert.Equal(t, first, second)
}

func TestFlattenSkipsEntitiesWithoutObjectID(t *testing.T) {
	plan := samplePlan()
	plan.LinkedServices = append(plan.LinkedServices, models.LinkedService{
		// no objectId: the whole subtree is unaddressable
		ServiceDetail: models.ServiceDetail{ObjectID: "d2", Name: "Dental"},
	})

	withExtra, skips := Flatten(plan)
	require.Len(t, skips, 1)
	assert.Equal(t, models.RelationshipLinkedService, skips[0].Relationship)

	base, _ := Flatten(samplePlan())
	assert.Equal(t, base, withExtra)
}

func TestFlattenSkipsCostShareWithoutObjectID(t *testing.T) {
	plan := samplePlan()
	plan.CostShare.ObjectID = ""

	docs, skips := Flatten(plan)
	require.Len(t, skips, 1)
	assert.Equal(t, models.RelationshipPlanCostShare, skips[0].Relationship)
	require.Len(t, docs, 4)
	for _, doc := range docs {
		assert.NotEqual(t, models.RelationshipPlanCostShare, doc.Relationship)
	}
}

func TestFlattenNilPlan(t *testing.T) {
	docs, skips := Flatten(nil)
	assert.Empty(t, docs)
	require.Len(t, skips, 1)
}

func TestFlattenServicesSubset(t *testing.T) {
	plan := samplePlan()
	docs, skips := FlattenServices(plan.ObjectID, plan.LinkedServices)
	require.Empty(t, skips)
	require.Len(t, docs, 3)
	assert.Equal(t, "s1", docs[0].ID)
	assert.Equal(t, "p1", docs[0].ParentID)
}
