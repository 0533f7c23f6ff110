package service

import (
	"context"

	"escaperoom/internal/models"
)

// Requester is the identity every operation acts on behalf of.
type Requester struct {
	UserID  int64
	IsAdmin bool
}

// Authenticated reports whether the requester carries an identity.
func (r Requester) Authenticated() bool {
	return r.UserID != 0
}

// CanAccess is the single ownership predicate: admins see everything,
// users see their own bookings.
func (r Requester) CanAccess(b *models.Booking) bool {
	return r.IsAdmin || b.IsOwnedBy(r.UserID)
}

func authorize(r Requester, b *models.Booking) error {
	if !r.Authenticated() {
		return ErrUnauthenticated
	}
	if !r.CanAccess(b) {
		return ErrPermissionDenied
	}
	return nil
}

type requesterKey struct{}

// WithRequester stores r in ctx.
func WithRequester(ctx context.Context, r Requester) context.Context {
	return context.WithValue(ctx, requesterKey{}, r)
}

// RequesterFrom returns the requester stored in ctx, if any.
func RequesterFrom(ctx context.Context) (Requester, bool) {
	r, ok := ctx.Value(requesterKey{}).(Requester)
	return r, ok
}
