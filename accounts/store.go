package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xompass/storefront-rest/auth"
	"github.com/xompass/storefront-rest/database"
	"github.com/xompass/storefront-rest/http_errors"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// ErrNotFound is returned for ids that do not name a stored user. The session
// resolver treats it as a blocked account.
var ErrNotFound = auth.ErrSubjectNotFound

var ErrInvalidInput = errors.New("invalid account input")

const maxListLimit = 200

// Store reads and updates users. Every call goes to the repository so status
// and account type changes are visible on the next request.
type Store struct {
	users  database.Repository[User]
	logger zerolog.Logger
}

func NewStore(users database.Repository[User], logger zerolog.Logger) *Store {
	return &Store{users: users, logger: logger}
}

func parseID(id string) (bson.ObjectID, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return bson.ObjectID{}, ErrNotFound
	}
	return oid, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*User, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindById(ctx, oid)
	if err != nil {
		return nil, fmt.Errorf("find user %s: %w", id, err)
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

func (s *Store) LookupStatus(ctx context.Context, subjectID string) (auth.Status, error) {
	user, err := s.FindByID(ctx, subjectID)
	if err != nil {
		return "", err
	}
	if !user.Status.Valid() {
		s.logger.Warn().Str("subject", subjectID).Str("status", string(user.Status)).Msg("user has unknown status")
	}
	return user.Status, nil
}

func (s *Store) LookupAccountType(ctx context.Context, subjectID string) (auth.AccountType, error) {
	user, err := s.FindByID(ctx, subjectID)
	if err != nil {
		return "", err
	}

	accountType, legacy, ok := user.EffectiveAccountType()
	if legacy {
		s.logger.Warn().Str("subject", subjectID).Str("userType", user.UserType).Msg("account type read from legacy userType field")
	}
	if !ok {
		s.logger.Warn().Str("subject", subjectID).Msg("user has no known account type")
	}
	return accountType, nil
}

// FindOrCreateByPhone returns the user registered with phone, creating an
// active Individual user when there is none.
func (s *Store) FindOrCreateByPhone(ctx context.Context, phone string) (*User, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, fmt.Errorf("%w: phone is required", ErrInvalidInput)
	}

	user, err := s.users.FindOneOrCreate(ctx, database.Filter{"phone": phone}, User{
		Phone:       phone,
		Role:        auth.RoleUser,
		AccountType: auth.AccountIndividual,
		Status:      auth.StatusActive,
	})
	if err != nil {
		return nil, fmt.Errorf("find or create user: %w", err)
	}
	return user, nil
}

// List returns a page of users, newest first, and the total count.
func (s *Store) List(ctx context.Context, limit, skip int64) ([]User, int64, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	if skip < 0 {
		skip = 0
	}

	users, err := s.users.Find(ctx, database.Filter{}, &database.FindOptions{
		Limit: limit,
		Skip:  skip,
		Sort:  bson.D{{Key: database.CREATED, Value: -1}},
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	total, err := s.users.Count(ctx, database.Filter{})
	if err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	return users, total, nil
}

func (s *Store) SetStatus(ctx context.Context, id string, status auth.Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return s.update(ctx, id, bson.M{"status": status})
}

func (s *Store) SetAccountType(ctx context.Context, id string, accountType auth.AccountType) error {
	if !accountType.Valid() {
		return fmt.Errorf("%w: unknown account type %q", ErrInvalidInput, accountType)
	}
	return s.update(ctx, id, bson.M{"accountType": accountType})
}

// SetRole changes the stored role. Tokens already issued keep their role until
// they expire.
func (s *Store) SetRole(ctx context.Context, id string, role auth.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	return s.update(ctx, id, bson.M{"role": role})
}

func (s *Store) update(ctx context.Context, id string, set bson.M) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	if err := s.users.UpdateById(ctx, oid, set); err != nil {
		var resp *http_errors.ErrorResponse
		if errors.As(err, &resp) && resp.ErrorCode == database.MONGO_NO_DOCUMENTS_FOUND {
			return ErrNotFound
		}
		return fmt.Errorf("update user %s: %w", id, err)
	}
	return nil
}
