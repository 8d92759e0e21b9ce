package conversation

import (
	"context"
	"errors"

	"medbot/internal/storage"

	"go.uber.org/zap"
)

// Access is the permission an entry point or state requires
type Access int

const (
	// AccessPublic is open to everyone, banned users included
	AccessPublic Access = iota
	// AccessMember requires the user not to be banned
	AccessMember
	// AccessRegistration is the admin registration workflow; banned users are refused
	AccessRegistration
	// AccessContributor requires a registered admin or a superuser
	AccessContributor
	// AccessSuperuser requires the user to be on the superuser allow-list
	AccessSuperuser
)

// guard returns a denial reply and false when the user may not proceed
type guard func(ctx context.Context, userID int64, level Access) (Reply, bool)

// authorize runs the guard chain, stopping at the first denial
func (e *Engine) authorize(ctx context.Context, userID int64, level Access) (Reply, bool) {
	for _, g := range e.guards {
		if denial, ok := g(ctx, userID, level); !ok {
			return denial, false
		}
	}
	return Reply{}, true
}

func (e *Engine) banGuard(ctx context.Context, userID int64, level Access) (Reply, bool) {
	if level == AccessPublic {
		return Reply{}, true
	}

	_, err := e.repo.GetBan(ctx, userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return Reply{}, true
	case err != nil:
		e.logger.Error("Failed to check ban", zap.Error(err), zap.Int64("user_id", userID))
		return failureReply(), false
	}

	e.logger.Info("Denied banned user", zap.Int64("user_id", userID))
	return Reply{Text: msgDeniedBanned}, false
}

func (e *Engine) contributorGuard(ctx context.Context, userID int64, level Access) (Reply, bool) {
	if level != AccessContributor || e.superusers[userID] {
		return Reply{}, true
	}

	_, err := e.repo.GetAdmin(ctx, userID)
	switch {
	case err == nil:
		return Reply{}, true
	case errors.Is(err, storage.ErrNotFound):
		e.logger.Info("Denied unregistered contributor", zap.Int64("user_id", userID))
		return Reply{Text: msgDeniedContributor}, false
	default:
		e.logger.Error("Failed to check admin", zap.Error(err), zap.Int64("user_id", userID))
		return failureReply(), false
	}
}

func (e *Engine) superuserGuard(ctx context.Context, userID int64, level Access) (Reply, bool) {
	if level != AccessSuperuser || e.superusers[userID] {
		return Reply{}, true
	}

	e.logger.Info("Denied non-superuser", zap.Int64("user_id", userID))
	return Reply{Text: msgDeniedSuperuser}, false
}
