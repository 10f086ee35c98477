package credentials

import (
	"context"

	"github.com/jrsteele09/go-session-identity/internal/errors"
	"golang.org/x/oauth2"
)

var _ oauth2.TokenSource = (*mainSlotSource)(nil)

type mainSlotSource struct {
	ctx   context.Context
	store *Store
}

// TokenSource reads the main slot on every call, so a borrowed token is picked
// up by requests made while it is swapped in.
func (s *Store) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &mainSlotSource{ctx: ctx, store: s}
}

func (m *mainSlotSource) Token() (*oauth2.Token, error) {
	t := m.store.MainToken(m.ctx)
	if t == "" {
		return nil, errors.ErrNoActiveIdentity
	}
	return &oauth2.Token{AccessToken: t, TokenType: "Bearer"}, nil
}
