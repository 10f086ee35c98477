package refreshrepofake

import (
	"sync"

	"github.com/jrsteele09/go-session-identity/internal/errors"
	"github.com/jrsteele09/go-session-identity/token/refresh"
)

var _ refresh.Repo = (*FakeRefreshTokenRepo)(nil)

type FakeRefreshTokenRepo struct {
	tokens   map[string]*refresh.StoredRefreshToken
	subjects map[string]string // user/impersonator key to token
	lock     sync.RWMutex
}

func NewFakeRefreshTokenRepo() refresh.Repo {
	return &FakeRefreshTokenRepo{
		tokens:   make(map[string]*refresh.StoredRefreshToken),
		subjects: make(map[string]string),
	}
}

func subjectKey(userID, impersonatorID string) string {
	return userID + "|" + impersonatorID
}

func (tr *FakeRefreshTokenRepo) Upsert(refreshToken *refresh.StoredRefreshToken) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	stored := *refreshToken
	tr.tokens[refreshToken.Token] = &stored
	tr.subjects[subjectKey(refreshToken.UserID, refreshToken.ImpersonatorID)] = refreshToken.Token
	return nil
}

func (tr *FakeRefreshTokenRepo) Delete(token string) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	rt, ok := tr.tokens[token]
	if !ok {
		return errors.ErrNotFound
	}
	key := subjectKey(rt.UserID, rt.ImpersonatorID)
	if tr.subjects[key] == token {
		delete(tr.subjects, key)
	}
	delete(tr.tokens, token)
	return nil
}

func (tr *FakeRefreshTokenRepo) Get(token string) (*refresh.StoredRefreshToken, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	rt, ok := tr.tokens[token]
	if !ok {
		return nil, errors.ErrNotFound
	}
	found := *rt
	return &found, nil
}

func (tr *FakeRefreshTokenRepo) GetBySubject(userID, impersonatorID string) (*refresh.StoredRefreshToken, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	token, ok := tr.subjects[subjectKey(userID, impersonatorID)]
	if !ok {
		return nil, errors.ErrNotFound
	}
	found := *tr.tokens[token]
	return &found, nil
}
