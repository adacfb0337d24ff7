package database

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

type IModel interface {
	GetTableName() string
	GetModelName() string
	GetConnectorName() string
	GetId() any
}

type BeforeCreateHook interface {
	BeforeCreate() error
}

type BeforeUpdateHook interface {
	BeforeUpdate() error
}

// Filter is a native MongoDB query document.
type Filter = bson.M

type FindOptions struct {
	Limit int64
	Skip  int64
	Sort  bson.D
}

type RepositoryOptions struct {
	Created  bool // stamp "created" on insert
	Modified bool // stamp "modified" on insert and update
}
