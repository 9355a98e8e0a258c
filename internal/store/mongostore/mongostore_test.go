package mongostore

import (
	"errors"
	"testing"

	"dashboard/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestSearchFilter(t *testing.T) {
	assert.Equal(t, bson.M{}, searchFilter(models.TransactionFilter{}))

	f := searchFilter(models.TransactionFilter{Search: "1.5 (kg)", Price: 0})
	or, ok := f["$or"].(bson.A)
	require.True(t, ok)
	require.Len(t, or, 3)

	re := primitive.Regex{Pattern: `1\.5 \(kg\)`, Options: "i"}
	assert.Equal(t, bson.M{"title": re}, or[0])
	assert.Equal(t, bson.M{"description": re}, or[1])
	assert.Equal(t, bson.M{"price": 0.0}, or[2])
}

func TestPriceRangeFilter(t *testing.T) {
	first := priceRangeFilter(3, models.PriceRanges[0])
	assert.Equal(t, bson.M{"$gte": 0.0, "$lt": 100.0}, first["price"])
	assert.Equal(t, monthExpr(3), first["$expr"])

	last := priceRangeFilter(3, models.PriceRanges[len(models.PriceRanges)-1])
	assert.Equal(t, bson.M{"$gte": 901.0}, last["price"])
}

func TestMonthExpr(t *testing.T) {
	assert.Equal(t,
		bson.M{"$eq": bson.A{bson.M{"$month": "$dateOfSale"}, 7}},
		monthExpr(7))
	assert.Equal(t, bson.M{"sold": false, "$expr": monthExpr(7)}, soldFilter(7, false))
}

func TestPipelines(t *testing.T) {
	sale := saleAmountPipeline(5)
	require.Len(t, sale, 2)
	assert.Equal(t, "$match", sale[0][0].Key)
	assert.Equal(t, bson.M{"sold": true, "$expr": monthExpr(5)}, sale[0][0].Value)
	assert.Equal(t, "$group", sale[1][0].Key)

	cat := categoryPipeline(5)
	require.Len(t, cat, 2)
	group, ok := cat[1][0].Value.(bson.D)
	require.True(t, ok)
	assert.Equal(t, bson.E{Key: "_id", Value: "$category"}, group[0])
}

func TestClassifyInsertError(t *testing.T) {
	res, err := classifyInsertError(5, nil)
	require.NoError(t, err)
	assert.Equal(t, models.InsertResult{Inserted: 5}, res)

	bwe := mongo.BulkWriteException{WriteErrors: []mongo.BulkWriteError{
		{WriteError: mongo.WriteError{Index: 1, Code: 11000, Message: "E11000 duplicate key error"}},
		{WriteError: mongo.WriteError{Index: 3, Code: 121, Message: "Document failed validation"}},
	}}
	res, err = classifyInsertError(5, bwe)
	require.NoError(t, err)
	assert.Equal(t, models.InsertResult{Inserted: 3, Duplicates: 1, Failed: 1}, res)

	_, err = classifyInsertError(5, errors.New("server selection timeout"))
	assert.Error(t, err)

	_, err = classifyInsertError(5, mongo.BulkWriteException{WriteConcernError: &mongo.WriteConcernError{Code: 64}})
	assert.Error(t, err)
}
