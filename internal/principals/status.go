package principals

import (
	"context"

	"github.com/nmkhang/authcore/model"
)

// Administrative status transitions. These go through the same conditional
// update the lockout tracker uses, so concurrent writers cannot clobber each
// other's state.

func Suspend(ctx context.Context, repo Repository, id uint) (bool, error) {
	from := []string{model.PrincipalStatusActive, model.PrincipalStatusLocked}
	return repo.TransitionStatus(ctx, id, from, model.PrincipalStatusSuspended)
}

func Reactivate(ctx context.Context, repo Repository, id uint) (bool, error) {
	from := []string{model.PrincipalStatusSuspended, model.PrincipalStatusLocked, model.PrincipalStatusExpired}
	return repo.TransitionStatus(ctx, id, from, model.PrincipalStatusActive)
}
