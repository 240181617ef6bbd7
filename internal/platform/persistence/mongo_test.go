package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestMongoDB_Database(t *testing.T) {
	// mongo.Connect is lazy, so no server is needed to build a handle
	client, err := mongo.Connect(context.TODO(), options.Client().ApplyURI("mongodb://localhost:27017"))
	require.NoError(t, err)
	db := client.Database("finance_ledger")

	mdb := &MongoDB{logger: testLogger(), client: client, database: db}

	assert.Equal(t, db, mdb.Database())
	assert.Equal(t, "finance_ledger", mdb.Database().Name())
	assert.NoError(t, mdb.Close(context.Background()))
}
