package database

import (
	"context"
)

type Repository[T IModel] interface {
	// GetConnector returns the connector used by this repository.
	GetConnector() Connector

	// Find retrieves all documents matching the filter.
	// If no documents match, it returns an empty slice.
	Find(ctx context.Context, filter Filter, opts *FindOptions) ([]T, error)

	// FindOne retrieves the first document matching the filter.
	// It returns nil and no error when nothing matches.
	FindOne(ctx context.Context, filter Filter) (*T, error)

	// FindById retrieves a single document by its ID.
	// It returns nil and no error when the document does not exist.
	FindById(ctx context.Context, id any) (*T, error)

	// Create inserts a new document into the collection and returns the created document.
	Create(ctx context.Context, doc T) (*T, error)

	// FindOneOrCreate finds a document matching the filter or inserts doc if none exists.
	FindOneOrCreate(ctx context.Context, filter Filter, doc T) (*T, error)

	// UpdateById applies $set with the given fields to a single document.
	UpdateById(ctx context.Context, id any, set any) error

	// Count returns the number of documents matching the filter.
	Count(ctx context.Context, filter Filter) (int64, error)
}
