package handler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/asmorodws/simlok2-sub012/internal/cache"
	"github.com/asmorodws/simlok2-sub012/internal/model"
	"github.com/asmorodws/simlok2-sub012/internal/repository"
)

// getUserID extracts the user_id set by the JWT middleware and converts it
// to uint64.  JSON numbers arrive as float64, but the claim may also have
// been stored as a string or integer depending on the issuer.
func getUserID(c echo.Context) (uint64, error) {
	v := c.Get("user_id")
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// getRole extracts the role claim set by the JWT middleware.
func getRole(c echo.Context) (string, error) {
	if role, ok := c.Get("role").(string); ok && role != "" {
		return role, nil
	}
	return "", errors.New("invalid role in context")
}

// SubjectValidator resolves a JWT subject into its current user row
// through the validation cache, so hot paths (every scan, every stream
// heartbeat) do not hit the users table each time.  An inactive or
// deleted account fails validation; the failed lookup itself is never
// cached.
type SubjectValidator struct {
	users *repository.UserRepo
	cache *cache.Validation
	ttl   time.Duration
}

// NewSubjectValidator wires the validator to its user source and cache.
func NewSubjectValidator(users *repository.UserRepo, c *cache.Validation, ttl time.Duration) *SubjectValidator {
	return &SubjectValidator{users: users, cache: c, ttl: ttl}
}

// validate returns the cached user for id, recomputing when the entry is
// older than the TTL.  ErrUserNotFound propagates for unknown subjects;
// an existing but deactivated account returns ErrForbidden.
func (s *SubjectValidator) validate(ctx context.Context, id uint64) (*model.User, error) {
	key := "user:" + strconv.FormatUint(id, 10)
	v, err := s.cache.GetOrCompute(key, s.ttl, func() (interface{}, error) {
		return s.users.GetByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	u, ok := v.(*model.User)
	if !ok {
		return nil, errors.New("unexpected validation cache value")
	}
	if !u.IsActive {
		return nil, repository.ErrForbidden
	}
	return u, nil
}
