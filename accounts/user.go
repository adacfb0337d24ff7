package accounts

import (
	"strings"
	"time"

	"github.com/go-errors/errors"
	"github.com/xompass/storefront-rest/auth"
	"github.com/xompass/storefront-rest/database"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// User is a document of the users collection.
//
// AccountType is the canonical classification. UserType is the field older
// documents were written with and is only read when AccountType is empty.
type User struct {
	ID          bson.ObjectID    `bson:"_id,omitempty" json:"id"`
	Phone       string           `bson:"phone" json:"phone"`
	Email       string           `bson:"email,omitempty" json:"email,omitempty"`
	Name        string           `bson:"name,omitempty" json:"name,omitempty"`
	Role        auth.Role        `bson:"role" json:"role"`
	AccountType auth.AccountType `bson:"accountType,omitempty" json:"accountType"`
	UserType    string           `bson:"userType,omitempty" json:"-"`
	Status      auth.Status      `bson:"status" json:"status"`
	CompanyName string           `bson:"companyName,omitempty" json:"companyName,omitempty"`
	Created     time.Time        `bson:"created,omitempty" json:"created"`
	Modified    time.Time        `bson:"modified,omitempty" json:"modified"`
}

func (u User) GetTableName() string {
	return "users"
}

func (u User) GetModelName() string {
	return "User"
}

func (u User) GetConnectorName() string {
	return "mongodb"
}

func (u User) GetId() any {
	return u.ID
}

func (u User) DefineMongoIndexes() []database.MongoIndexDefinition {
	return []database.MongoIndexDefinition{
		{Name: "phone_unique", Fields: []database.IndexField{{Name: "phone", Order: 1}}, Unique: true},
		{Name: "email_unique", Fields: []database.IndexField{{Name: "email", Order: 1}}, Unique: true, Sparse: true},
		{Name: "status_created", Fields: []database.IndexField{{Name: "status", Order: 1}, {Name: "created", Order: -1}}},
	}
}

func (u User) BeforeCreate() error {
	if strings.TrimSpace(u.Phone) == "" {
		return errors.New("user phone is required")
	}
	if !u.Role.Valid() {
		return errors.Errorf("invalid role %q", u.Role)
	}
	if !u.AccountType.Valid() {
		return errors.Errorf("invalid account type %q", u.AccountType)
	}
	if !u.Status.Valid() {
		return errors.Errorf("invalid status %q", u.Status)
	}
	return nil
}

// EffectiveAccountType returns the account type and whether it came from the
// legacy userType field. ok is false when neither field holds a known value.
func (u User) EffectiveAccountType() (accountType auth.AccountType, legacy bool, ok bool) {
	if u.AccountType != "" {
		return u.AccountType, false, u.AccountType.Valid()
	}
	if u.UserType != "" {
		parsed, valid := auth.ParseAccountType(u.UserType)
		return parsed, true, valid
	}
	return "", false, false
}
