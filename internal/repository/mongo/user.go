package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/sakif/videotube/internal/apperror"
	"github.com/sakif/videotube/internal/model"
	"github.com/sakif/videotube/internal/repository"
)

var _ repository.UserRepository = (*DB)(nil)

const conflictMessage = "User with email or username already exists"

// Create inserts u with an xid string _id, matching the ids the SQLite store
// hands out so tokens and URLs look the same whichever store is configured.
func (db *DB) Create(ctx context.Context, u *model.User) error {
	now := time.Now().UTC().Truncate(time.Millisecond) // BSON dates are millisecond precision
	u.ID = xid.New().String()
	u.CreatedAt = now
	u.UpdatedAt = now
	if u.WatchHistory == nil {
		u.WatchHistory = []string{}
	}

	if _, err := db.users.InsertOne(ctx, u); err != nil {
		if field := duplicateField(err); field != "" {
			return apperror.Conflict(field, conflictMessage)
		}
		return fmt.Errorf("mongo: inserting user %q: %w", u.Username, err)
	}
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := db.users.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&u)
	if err != nil {
		if isNoDocuments(err) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("mongo: getting user %s: %w", id, err)
	}
	return &u, nil
}

func (db *DB) FindByUsernameOrEmail(ctx context.Context, username, email string) (*model.User, error) {
	filter := usernameOrEmailFilter(username, email)
	if filter == nil {
		return nil, apperror.NotFoundMessage("User does not exist")
	}

	var u model.User
	err := db.users.FindOne(ctx, filter, options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: 1}})).Decode(&u)
	if err != nil {
		if isNoDocuments(err) {
			return nil, apperror.NotFoundMessage("User does not exist")
		}
		return nil, fmt.Errorf("mongo: finding user by username/email: %w", err)
	}
	return &u, nil
}

// SetRefreshToken sets refreshToken, or removes the field with $unset when
// token is nil.
func (db *DB) SetRefreshToken(ctx context.Context, id string, token *string) error {
	return db.updateOne(ctx, id, refreshTokenUpdate(token, time.Now().UTC()))
}

func (db *DB) SetPassword(ctx context.Context, id, hash string) error {
	return db.updateOne(ctx, id, bson.D{{Key: "$set", Value: bson.D{
		{Key: "password", Value: hash},
		{Key: "updatedAt", Value: time.Now().UTC()},
	}}})
}

// Update is findOneAndUpdate returning the document after the write.
func (db *DB) Update(ctx context.Context, id string, upd model.UserUpdate) (*model.User, error) {
	if upd.IsEmpty() {
		return db.GetUserByID(ctx, id)
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var u model.User
	err := db.users.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: id}},
		profileUpdate(upd, time.Now().UTC()),
		opts,
	).Decode(&u)
	if err != nil {
		if isNoDocuments(err) {
			return nil, apperror.NotFound("user", id)
		}
		if field := duplicateField(err); field != "" {
			return nil, apperror.Conflict(field, conflictMessage)
		}
		return nil, fmt.Errorf("mongo: updating user %s: %w", id, err)
	}
	return &u, nil
}

func (db *DB) updateOne(ctx context.Context, id string, update bson.D) error {
	res, err := db.users.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, update)
	if err != nil {
		return fmt.Errorf("mongo: updating user %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

// usernameOrEmailFilter builds {$or: [{username}, {email}]} from the
// non-empty arguments. It returns nil when both are empty.
func usernameOrEmailFilter(username, email string) bson.D {
	var or bson.A
	if username != "" {
		or = append(or, bson.D{{Key: "username", Value: username}})
	}
	if email != "" {
		or = append(or, bson.D{{Key: "email", Value: email}})
	}
	if len(or) == 0 {
		return nil
	}
	return bson.D{{Key: "$or", Value: or}}
}

func refreshTokenUpdate(token *string, now time.Time) bson.D {
	if token == nil {
		return bson.D{
			{Key: "$unset", Value: bson.D{{Key: "refreshToken", Value: ""}}},
			{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: now}}},
		}
	}
	return bson.D{{Key: "$set", Value: bson.D{
		{Key: "refreshToken", Value: *token},
		{Key: "updatedAt", Value: now},
	}}}
}

func profileUpdate(upd model.UserUpdate, now time.Time) bson.D {
	var set bson.D
	add := func(key string, v *string) {
		if v != nil {
			set = append(set, bson.E{Key: key, Value: *v})
		}
	}
	add("fullName", upd.FullName)
	add("email", upd.Email)
	add("avatar", upd.Avatar)
	add("coverImage", upd.CoverImage)
	set = append(set, bson.E{Key: "updatedAt", Value: now})

	return bson.D{{Key: "$set", Value: set}}
}
