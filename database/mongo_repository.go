package database

import (
	"context"
	"errors"
	"time"

	"github.com/xompass/storefront-rest/http_errors"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	ID       = "_id"
	SET      = "$set"
	CREATED  = "created"
	MODIFIED = "modified"
)

// Error codes for mongo_repository
const (
	MONGO_CONNECTOR_TYPE_MISMATCH = "MONGO_CONNECTOR_TYPE_MISMATCH"
	MONGO_CONNECTOR_NIL           = "MONGO_CONNECTOR_NIL"
	MONGO_CLIENT_NOT_INITIALIZED  = "MONGO_CLIENT_NOT_INITIALIZED"
	MONGO_DATABASE_NAME_REQUIRED  = "MONGO_DATABASE_NAME_REQUIRED"
	MONGO_ID_CANNOT_BE_NIL        = "MONGO_ID_CANNOT_BE_NIL"
	MONGO_UPDATE_CANNOT_BE_NIL    = "MONGO_UPDATE_CANNOT_BE_NIL"
	MONGO_NO_DOCUMENTS_FOUND      = "MONGO_NO_DOCUMENTS_FOUND"
	MONGO_DUPLICATE_KEY           = "MONGO_DUPLICATE_KEY"
	MONGO_OPERATION_FAILED        = "MONGO_OPERATION_FAILED"
	MONGO_CONNECTION_ERROR        = "MONGO_CONNECTION_ERROR"
	MONGO_VALIDATION_ERROR        = "MONGO_VALIDATION_ERROR"
)

// mapMongoError maps MongoDB errors to standardized http_errors
func mapMongoError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return http_errors.NotFoundErrorWithCode(MONGO_NO_DOCUMENTS_FOUND, "document not found")
	}

	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) {
		for _, writeError := range writeErr.WriteErrors {
			switch writeError.Code {
			case 11000, 11001: // Duplicate key errors
				return http_errors.ConflictErrorWithCode(MONGO_DUPLICATE_KEY, "duplicate key error: "+writeError.Message)
			case 121: // Document validation failure
				return http_errors.BadRequestErrorWithCode(MONGO_VALIDATION_ERROR, "validation error: "+writeError.Message)
			default:
				return http_errors.BadRequestErrorWithCode(MONGO_OPERATION_FAILED, "write operation failed: "+writeError.Message)
			}
		}
	}

	var commandErr mongo.CommandError
	if errors.As(err, &commandErr) {
		switch commandErr.Code {
		case 11000, 11001:
			return http_errors.ConflictErrorWithCode(MONGO_DUPLICATE_KEY, "duplicate key error: "+commandErr.Message)
		case 121:
			return http_errors.BadRequestErrorWithCode(MONGO_VALIDATION_ERROR, "validation error: "+commandErr.Message)
		default:
			return http_errors.BadRequestErrorWithCode(MONGO_OPERATION_FAILED, "command failed: "+commandErr.Message)
		}
	}

	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return http_errors.InternalServerErrorWithCode(MONGO_CONNECTION_ERROR, "database connection error")
	}

	return http_errors.InternalServerErrorWithCode(MONGO_OPERATION_FAILED, "database operation failed: "+err.Error())
}

// IsConnectionError reports whether err came from an unreachable database, as
// opposed to a query that ran and failed.
func IsConnectionError(err error) bool {
	var errResponse *http_errors.ErrorResponse
	if errors.As(err, &errResponse) {
		return errResponse.ErrorCode == MONGO_CONNECTION_ERROR
	}
	return mongo.IsNetworkError(err) || mongo.IsTimeout(err)
}

type MongoRepository[T IModel] struct {
	Options    RepositoryOptions
	collection *mongo.Collection
	connector  *MongoConnector
	now        func() time.Time
}

func NewMongoRepository[T IModel](ds *Datasource, options RepositoryOptions) (*MongoRepository[T], error) {
	var instance T

	err := ds.RegisterModel(instance)
	if err != nil {
		return nil, err
	}

	tmp, err := ds.GetModelConnector(instance)
	if err != nil {
		return nil, err
	}

	connector, ok := tmp.(*MongoConnector)
	if !ok {
		return nil, http_errors.InternalServerErrorWithCode(MONGO_CONNECTOR_TYPE_MISMATCH, "the connector for model "+instance.GetModelName()+" is not a MongoConnector")
	}

	if connector == nil {
		return nil, http_errors.InternalServerErrorWithCode(MONGO_CONNECTOR_NIL, "connector is nil")
	}

	if _, ok := connector.GetDriver().(*mongo.Client); !ok {
		return nil, http_errors.InternalServerErrorWithCode(MONGO_CLIENT_NOT_INITIALIZED, "the MongoDB client is not initialized correctly")
	}

	if connector.GetDatabaseName() == "" {
		return nil, http_errors.BadRequestErrorWithCode(MONGO_DATABASE_NAME_REQUIRED, "database name is required")
	}

	return &MongoRepository[T]{
		Options:    options,
		collection: connector.Collection(instance.GetTableName()),
		connector:  connector,
		now:        time.Now,
	}, nil
}

func (repository *MongoRepository[T]) GetConnector() Connector {
	return repository.connector
}

func (repository *MongoRepository[T]) Find(ctx context.Context, filter Filter, opts *FindOptions) ([]T, error) {
	if filter == nil {
		filter = Filter{}
	}

	findOpts := options.Find()
	if opts != nil {
		if opts.Sort != nil {
			findOpts.SetSort(opts.Sort)
		}
		if opts.Limit > 0 {
			findOpts.SetLimit(opts.Limit)
		}
		if opts.Skip > 0 {
			findOpts.SetSkip(opts.Skip)
		}
	}

	cursor, err := repository.collection.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, mapMongoError(err)
	}

	var receiver []T
	if err = cursor.All(ctx, &receiver); err != nil {
		return nil, mapMongoError(err)
	}

	if receiver == nil {
		return []T{}, nil
	}
	return receiver, nil
}

func (repository *MongoRepository[T]) FindOne(ctx context.Context, filter Filter) (*T, error) {
	if filter == nil {
		filter = Filter{}
	}

	receiver := new(T)
	result := repository.collection.FindOne(ctx, filter)
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, mapMongoError(err)
	}

	if err := result.Decode(receiver); err != nil {
		return nil, mapMongoError(err)
	}

	return receiver, nil
}

func (repository *MongoRepository[T]) FindById(ctx context.Context, id any) (*T, error) {
	if id == nil {
		return nil, http_errors.BadRequestErrorWithCode(MONGO_ID_CANNOT_BE_NIL, "id cannot be nil")
	}

	return repository.FindOne(ctx, Filter{ID: id})
}

func (repository *MongoRepository[T]) Create(ctx context.Context, doc T) (*T, error) {
	if hook, ok := any(doc).(BeforeCreateHook); ok {
		if err := hook.BeforeCreate(); err != nil {
			return nil, err
		}
	}

	document, err := repository.prepareInsertDocument(doc)
	if err != nil {
		return nil, err
	}

	inserted, err := repository.collection.InsertOne(ctx, document)
	if err != nil {
		return nil, mapMongoError(err)
	}

	return repository.FindById(ctx, inserted.InsertedID)
}

func (repository *MongoRepository[T]) FindOneOrCreate(ctx context.Context, filter Filter, doc T) (*T, error) {
	if filter == nil {
		filter = Filter{}
	}

	if hook, ok := any(doc).(BeforeCreateHook); ok {
		if err := hook.BeforeCreate(); err != nil {
			return nil, err
		}
	}

	document, err := repository.prepareInsertDocument(doc)
	if err != nil {
		return nil, err
	}
	// Fields present in the filter cannot also appear in $setOnInsert.
	for key := range filter {
		delete(document, key)
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	result := repository.collection.FindOneAndUpdate(ctx, filter, bson.M{"$setOnInsert": document}, opts)
	if err := result.Err(); err != nil {
		return nil, mapMongoError(err)
	}

	receiver := new(T)
	if err := result.Decode(receiver); err != nil {
		return nil, mapMongoError(err)
	}
	return receiver, nil
}

func (repository *MongoRepository[T]) UpdateById(ctx context.Context, id any, set any) error {
	if id == nil {
		return http_errors.BadRequestErrorWithCode(MONGO_ID_CANNOT_BE_NIL, "id cannot be nil")
	}
	if set == nil {
		return http_errors.BadRequestErrorWithCode(MONGO_UPDATE_CANNOT_BE_NIL, "update cannot be nil")
	}

	if hook, ok := set.(BeforeUpdateHook); ok {
		if err := hook.BeforeUpdate(); err != nil {
			return err
		}
	}

	update, err := repository.prepareUpdateDocument(set)
	if err != nil {
		return err
	}

	result, err := repository.collection.UpdateOne(ctx, Filter{ID: id}, update)
	if err != nil {
		return mapMongoError(err)
	}
	if result.MatchedCount == 0 {
		return http_errors.NotFoundErrorWithCode(MONGO_NO_DOCUMENTS_FOUND, "document not found")
	}

	return nil
}

func (repository *MongoRepository[T]) Count(ctx context.Context, filter Filter) (int64, error) {
	if filter == nil {
		filter = Filter{}
	}

	count, err := repository.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, mapMongoError(err)
	}
	return count, nil
}

func (repository *MongoRepository[T]) prepareInsertDocument(doc T) (bson.M, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, http_errors.BadRequestErrorWithCode(MONGO_OPERATION_FAILED, "cannot encode document: "+err.Error())
	}

	document := bson.M{}
	if err := bson.Unmarshal(raw, &document); err != nil {
		return nil, http_errors.BadRequestErrorWithCode(MONGO_OPERATION_FAILED, "cannot encode document: "+err.Error())
	}

	now := repository.now()
	if repository.Options.Created {
		document[CREATED] = now
	}
	if repository.Options.Modified {
		document[MODIFIED] = now
	}

	return document, nil
}

func (repository *MongoRepository[T]) prepareUpdateDocument(set any) (bson.M, error) {
	fields := bson.M{}
	switch v := set.(type) {
	case bson.M:
		for key, value := range v {
			fields[key] = value
		}
	default:
		raw, err := bson.Marshal(v)
		if err != nil {
			return nil, http_errors.BadRequestErrorWithCode(MONGO_OPERATION_FAILED, "cannot encode update: "+err.Error())
		}
		if err := bson.Unmarshal(raw, &fields); err != nil {
			return nil, http_errors.BadRequestErrorWithCode(MONGO_OPERATION_FAILED, "cannot encode update: "+err.Error())
		}
	}

	delete(fields, ID)
	if repository.Options.Modified {
		fields[MODIFIED] = repository.now()
	}

	return bson.M{SET: fields}, nil
}
