package reconcile

import (
	"context"

	"github.com/roach88/fusionsync/internal/domain"
	"github.com/roach88/fusionsync/internal/payload"
)

// ResolveUser returns the user with ref's uuid, creating it when absent.
// Existing users are returned unchanged. A nil ref resolves to nil.
func (s *Session) ResolveUser(ctx context.Context, ref *payload.ActorRef) (*domain.User, error) {
	if ref == nil {
		return nil, nil
	}
	if ref.UUID == "" {
		return nil, errMissingIdentifier("user", "uuid")
	}
	if ref.Email == "" {
		return nil, errMissingIdentifier("user "+ref.UUID, "email")
	}

	user, o, err := resolveOrCreate(
		func() (domain.User, error) { return s.tx.FindUserByUUID(ctx, ref.UUID) },
		func() (domain.User, error) {
			return s.tx.CreateUser(ctx, domain.User{
				UUID:      ref.UUID,
				Name:      ref.Name,
				Email:     ref.Email,
				Role:      ref.Role,
				Active:    true,
				CreatedAt: s.now().UTC(),
			})
		},
	)
	if err != nil {
		return nil, storeError("resolve user "+ref.UUID, err)
	}
	if err := s.track(ctx, o, domain.KindUser, user.ID, user.UUID); err != nil {
		return nil, err
	}
	return &user, nil
}

// userID returns the id of u, or nil for no user.
func userID(u *domain.User) *int64 {
	if u == nil {
		return nil
	}
	id := u.ID
	return &id
}
