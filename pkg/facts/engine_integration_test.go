//go:build integration

package facts_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davis-data/davis-storage/pkg/entities"
	"github.com/davis-data/davis-storage/pkg/facts"
	"github.com/davis-data/davis-storage/pkg/models"
	"github.com/davis-data/davis-storage/pkg/testhelpers"
)

// fixture holds the entity ids a facts test writes against.
type fixture struct {
	dataSet int64
	gender  int64 // categorical
	male    int64 // attribute of gender
	female  int64 // attribute of gender
	age     int64 // numerical
	comment int64 // text
}

func setupFactsTest(t *testing.T) (*facts.Engine, fixture) {
	db := testhelpers.GetTestDB(t)
	db.Reset(t)
	ctx := context.Background()

	storage := entities.NewStorage(db.Pool, entities.NewRegistry(nil), zap.NewNop())

	created, err := storage.Create(ctx, "master", []models.Entity{
		models.NewDataSet("census", 0),
		models.NewCategoricalVariable("gender"),
		models.NewNumericalVariable("age"),
		models.NewTextVariable("comment"),
	})
	require.NoError(t, err)

	fx := fixture{
		dataSet: created[0].EntityID(),
		gender:  created[1].EntityID(),
		age:     created[2].EntityID(),
		comment: created[3].EntityID(),
	}

	attrs, err := storage.Create(ctx, "master", []models.Entity{
		models.NewAttribute("male", fx.gender),
		models.NewAttribute("female", fx.gender),
	})
	require.NoError(t, err)
	fx.male = attrs[0].EntityID()
	fx.female = attrs[1].EntityID()

	return facts.NewEngine(db.Pool, zap.NewNop()), fx
}

func writeIndividuals(t *testing.T, e *facts.Engine, fx fixture, ages ...float64) {
	t.Helper()
	individuals := make([]models.Individual, 0, len(ages))
	for i, age := range ages {
		attr := fx.male
		if i%2 == 1 {
			attr = fx.female
		}
		individuals = append(individuals, models.NewIndividual(int64(i+1), fx.dataSet,
			models.NewCategoricalFact(fx.gender, attr),
			models.NewNumericalFact(fx.age, age),
		))
	}
	count, err := e.Create(context.Background(), "master", individuals)
	require.NoError(t, err)
	require.Equal(t, len(ages), count)
}

func TestWriteAndReadBack(t *testing.T) {
	e, fx := setupFactsTest(t)
	ctx := context.Background()

	individual := models.NewIndividual(1, fx.dataSet,
		models.NewCategoricalFact(fx.gender, fx.male),
		models.NewNumericalFact(fx.age, 34),
		models.NewTextFact(fx.comment, "respondent"),
	)
	count, err := e.Create(ctx, "master", []models.Individual{individual})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	read, err := e.Query(ctx, "master", nil, []int64{fx.dataSet}, 0)
	require.NoError(t, err)
	require.Len(t, read, 1)
	assert.Equal(t, int64(1), read[0].ID)
	assert.Equal(t, fx.dataSet, read[0].DataSet)
	require.Len(t, read[0].Facts, 3)

	// Facts come back ordered by variable id: gender, age, comment.
	assert.Equal(t, fx.gender, read[0].Facts[0].Variable)
	require.NotNil(t, read[0].Facts[0].Attribute)
	assert.Equal(t, fx.male, *read[0].Facts[0].Attribute)
	require.NotNil(t, read[0].Facts[1].Numerical)
	assert.Equal(t, 34.0, *read[0].Facts[1].Numerical)
	assert.Equal(t, "respondent", read[0].Facts[2].Text)
}

func TestNumericalFilter(t *testing.T) {
	e, fx := setupFactsTest(t)
	ctx := context.Background()

	writeIndividuals(t, e, fx, 120, 130, 125, 180, 10000)

	read, err := e.Query(ctx, "master",
		[]models.FactFilter{models.NumericalFilter(fx.age, "<", 122)}, nil, 0)
	require.NoError(t, err)
	require.Len(t, read, 1)
	assert.Equal(t, int64(1), read[0].ID)
	require.NotNil(t, read[0].Facts[1].Numerical)
	assert.Equal(t, 120.0, *read[0].Facts[1].Numerical)
}

func TestCategoricalFilter(t *testing.T) {
	e, fx := setupFactsTest(t)
	ctx := context.Background()

	writeIndividuals(t, e, fx, 20, 30, 40, 50)

	read, err := e.Query(ctx, "master",
		[]models.FactFilter{models.CategoricalFilter(fx.gender, fx.female)}, nil, 0)
	require.NoError(t, err)
	require.Len(t, read, 2)
	assert.Equal(t, int64(2), read[0].ID)
	assert.Equal(t, int64(4), read[1].ID)
}

// Filters AND together: an individual must match every one.
func TestFiltersIntersect(t *testing.T) {
	e, fx := setupFactsTest(t)
	ctx := context.Background()

	writeIndividuals(t, e, fx, 20, 30, 40, 50)

	read, err := e.Query(ctx, "master", []models.FactFilter{
		models.CategoricalFilter(fx.gender, fx.male),
		models.NumericalFilter(fx.age, ">=", 40),
	}, nil, 0)
	require.NoError(t, err)
	require.Len(t, read, 1)
	assert.Equal(t, int64(3), read[0].ID)
}

func TestTextFilter(t *testing.T) {
	e, fx := setupFactsTest(t)
	ctx := context.Background()

	_, err := e.Create(ctx, "master", []models.Individual{
		models.NewIndividual(1, fx.dataSet, models.NewTextFact(fx.comment, "yes")),
		models.NewIndividual(2, fx.dataSet, models.NewTextFact(fx.comment, "no")),
	})
	require.NoError(t, err)

	read, err := e.Query(ctx, "master",
		[]models.FactFilter{models.TextFilter(fx.comment, "yes")}, nil, 0)
	require.NoError(t, err)
	require.Len(t, read, 1)
	assert.Equal(t, int64(1), read[0].ID)
}

func TestQueryLimitCapsIndividualRange(t *testing.T) {
	e, fx := setupFactsTest(t)
	ctx := context.Background()

	writeIndividuals(t, e, fx, 20, 30, 40, 50, 60)

	read, err := e.Query(ctx, "master", nil, nil, 3)
	require.NoError(t, err)
	require.Len(t, read, 3)
	assert.Equal(t, int64(3), read[2].ID)
}

func TestNullNumericalRoundTrip(t *testing.T) {
	e, fx := setupFactsTest(t)
	ctx := context.Background()

	_, err := e.Create(ctx, "master", []models.Individual{
		models.NewIndividual(1, fx.dataSet, models.NewNumericalFact(fx.age, "garbage")),
	})
	require.NoError(t, err)

	read, err := e.Query(ctx, "master", nil, nil, 0)
	require.NoError(t, err)
	require.Len(t, read, 1)
	assert.Nil(t, read[0].Facts[0].Numerical)
}

func TestDeleteByCriteria(t *testing.T) {
	e, fx := setupFactsTest(t)
	ctx := context.Background()

	writeIndividuals(t, e, fx, 20, 30)

	count, err := e.Delete(ctx, "master", models.DeleteCriteria{Variables: []int64{fx.age}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	read, err := e.Query(ctx, "master", nil, nil, 0)
	require.NoError(t, err)
	for _, individual := range read {
		for _, f := range individual.Facts {
			assert.NotEqual(t, fx.age, f.Variable)
		}
	}
}
