package account

import (
	"context"

	"github.com/vehicert/vehicert/internal/flow"
)

// ChangePassword sets a new password through a settings flow, resuming flowID
// when one is given (the recovery handoff arrives with a settings flow id).
// The length gate runs locally; everything else is the provider's verdict,
// returned classified.
func (s *Service) ChangePassword(ctx context.Context, flowID, newPassword string) (*flow.Flow, error) {
	if len(newPassword) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}

	store := flow.NewStore(s.client, flow.KindSettings, s.logger)
	if _, err := store.Bootstrap(ctx, flowID, flow.CreateOptions{}); err != nil {
		return nil, err
	}

	res, err := store.Submit(ctx, "password", map[string]any{"password": newPassword})
	if err != nil {
		return nil, err
	}
	if res.Flow != nil {
		return res.Flow, nil
	}
	return store.Current(), nil
}
