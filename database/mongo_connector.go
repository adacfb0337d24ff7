package database

import (
	"context"
	"time"

	"github.com/go-errors/errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/x/mongo/driver/connstring"
)

const defaultOperationTimeout = 10 * time.Second

type MongoConnectorOpts struct {
	options.ClientOptions
	Name     string
	Database string
}

type MongoConnector struct {
	ctx     context.Context
	client  *mongo.Client
	options *MongoConnectorOpts
}

// IndexField is one key of an index; Order is 1 (ascending) or -1 (descending).
type IndexField struct {
	Name  string
	Order int
}

type MongoIndexDefinition struct {
	Name   string
	Fields []IndexField
	Unique bool
	Sparse bool
}

// MongoIndexableModel defines models that can specify MongoDB indexes
type MongoIndexableModel interface {
	DefineMongoIndexes() []MongoIndexDefinition
}

/**
 * NewMongoConnector creates a new MongoDB connector.
 * It initializes the MongoDB client with the provided options and checks the connection.
 */
func NewMongoConnector(opts *MongoConnectorOpts) (*MongoConnector, error) {
	connector := &MongoConnector{
		ctx:     context.Background(),
		options: opts,
	}

	err := connector.connect()
	if err != nil {
		return nil, err
	}

	if err := connector.Ping(); err != nil {
		return nil, err
	}

	return connector, nil
}

// NewMongoConnectorFromURI builds a connector for uri. The database name comes
// from database, then from the URI path, then defaults to "storefront".
func NewMongoConnectorFromURI(uri string, database string) (*MongoConnector, error) {
	clientOptions := options.Client().ApplyURI(uri)

	conn, err := connstring.Parse(uri)
	if err != nil {
		return nil, err
	}

	dbName := database
	if dbName == "" {
		dbName = conn.Database
	}
	if dbName == "" {
		dbName = "storefront"
	}

	return NewMongoConnector(&MongoConnectorOpts{
		ClientOptions: *clientOptions,
		Name:          "mongodb",
		Database:      dbName,
	})
}

/**
 * connect initializes the MongoDB client with the provided options.
 */
func (receiver *MongoConnector) connect() error {
	opts := receiver.options.ClientOptions

	client, err := mongo.Connect(&opts)
	if err != nil {
		return err
	}

	receiver.client = client
	return nil
}

/**
 * Ping checks the connection to the MongoDB server.
 */
func (receiver *MongoConnector) Ping() error {
	if receiver.client == nil {
		return errors.New("mongo client not initialized")
	}
	ctx, cancel := context.WithTimeout(receiver.ctx, defaultOperationTimeout)
	defer cancel()
	return receiver.client.Ping(ctx, nil)
}

/**
 * Disconnect closes the connection to the MongoDB server.
 */
func (receiver *MongoConnector) Disconnect() error {
	if receiver.client == nil {
		return errors.New("mongo client not initialized")
	}
	return receiver.client.Disconnect(receiver.ctx)
}

func (receiver *MongoConnector) GetDriver() any {
	return receiver.client
}

func (receiver *MongoConnector) GetName() string {
	return receiver.options.Name
}

func (receiver *MongoConnector) GetDatabaseName() string {
	return receiver.options.Database
}

func (receiver *MongoConnector) Collection(name string) *mongo.Collection {
	return receiver.client.Database(receiver.options.Database).Collection(name)
}

// EnsureIndexes creates the indexes the model declares. Creating an index that
// already exists with the same definition is a no-op on the server.
func (receiver *MongoConnector) EnsureIndexes(model IModel) error {
	indexable, ok := model.(MongoIndexableModel)
	if !ok {
		return nil
	}

	models := toMongoIndexModels(indexable.DefineMongoIndexes())
	if len(models) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(receiver.ctx, defaultOperationTimeout)
	defer cancel()

	_, err := receiver.Collection(model.GetTableName()).Indexes().CreateMany(ctx, models)
	if err != nil {
		return errors.Errorf("create indexes on %s: %v", model.GetTableName(), err)
	}
	return nil
}

func toMongoIndexModels(defs []MongoIndexDefinition) []mongo.IndexModel {
	models := make([]mongo.IndexModel, 0, len(defs))
	for _, def := range defs {
		if len(def.Fields) == 0 {
			continue
		}

		keys := bson.D{}
		for _, field := range def.Fields {
			order := field.Order
			if order == 0 {
				order = 1
			}
			keys = append(keys, bson.E{Key: field.Name, Value: order})
		}

		opts := options.Index().SetUnique(def.Unique).SetSparse(def.Sparse)
		if def.Name != "" {
			opts.SetName(def.Name)
		}

		models = append(models, mongo.IndexModel{Keys: keys, Options: opts})
	}
	return models
}
