package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jrsteele09/go-session-identity/broadcast"
	"github.com/jrsteele09/go-session-identity/kvstore"
	"github.com/jrsteele09/go-session-identity/users"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// Store is the only writer of credential keys. Tab-scoped keys go to tab and
// cross-tab keys go to shared.
type Store struct {
	tab      kvstore.Repo
	shared   kvstore.Repo
	notifier broadcast.Notifier
	origin   string

	// borrowSem serialises borrowed-token calls so overlapping borrows cannot restore each other's token
	borrowSem *semaphore.Weighted

	// slotMu guards the main slot while a borrow swaps it or a resync re-mirrors it
	slotMu        sync.Mutex
	borrowing     bool
	resyncPending bool
}

type StoreOption func(*Store)

// WithNotifier publishes an auth changed event, tagged with origin, whenever cross-tab keys change
func WithNotifier(n broadcast.Notifier, origin string) StoreOption {
	return func(s *Store) {
		s.notifier = n
		s.origin = origin
	}
}

// New creates a Store over the tab-scoped and cross-tab backends
func New(tab, shared kvstore.Repo, opts ...StoreOption) *Store {
	s := &Store{
		tab:       tab,
		shared:    shared,
		borrowSem: semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Origin is the id this store tags its published events with
func (s *Store) Origin() string {
	return s.origin
}

func (s *Store) repoFor(l Lifetime) kvstore.Repo {
	if l == CrossTab {
		return s.shared
	}
	return s.tab
}

func (s *Store) read(ctx context.Context, k storageKey) string {
	v, ok, err := s.repoFor(k.lifetime).Get(ctx, k.name)
	if err != nil {
		log.Err(err).Str("key", k.name).Stringer("lifetime", k.lifetime).Msg("credential read failed")
		return ""
	}
	if !ok {
		return ""
	}
	return v
}

// batches groups the writes of one operation by the backend they land in
type batches map[Lifetime]*kvstore.Batch

// put queues value under k, or the deletion of k when value is empty
func (b batches) put(k storageKey, value string) {
	batch, ok := b[k.lifetime]
	if !ok {
		batch = kvstore.NewBatch()
		b[k.lifetime] = batch
	}
	if value == "" {
		batch.Remove(k.name)
		return
	}
	batch.Put(k.name, value)
}

// apply writes the cross-tab batch before the tab batch; each backend applies its batch atomically
func (s *Store) apply(ctx context.Context, b batches) error {
	for _, l := range []Lifetime{CrossTab, TabScoped} {
		if b[l].Empty() {
			continue
		}
		if err := s.repoFor(l).Apply(ctx, b[l]); err != nil {
			return fmt.Errorf("write %s keys: %w", l, err)
		}
	}
	return nil
}

func (s *Store) readUser(ctx context.Context, k storageKey) *users.User {
	raw := s.read(ctx, k)
	if raw == "" {
		return nil
	}
	u := &users.User{}
	if err := json.Unmarshal([]byte(raw), u); err != nil {
		log.Err(err).Str("key", k.name).Msg("discarding unreadable stored user")
		return nil
	}
	return u
}

func encodeUser(u *users.User) (string, error) {
	if u == nil {
		return "", nil
	}
	b, err := json.Marshal(u)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Get returns the record stored for scope, or nil when there is none.
// Backend failures are logged and reported as absence.
func (s *Store) Get(ctx context.Context, scope Scope) *Record {
	keys, ok := layout[scope]
	if !ok {
		return nil
	}
	access := s.read(ctx, keys.access)
	if access == "" {
		return nil
	}
	rec := &Record{
		Scope:       scope,
		AccessToken: access,
	}
	if keys.refresh.name != "" {
		rec.RefreshToken = s.read(ctx, keys.refresh)
	}
	if keys.owner.name != "" {
		rec.Owner = s.readUser(ctx, keys.owner)
	}
	if keys.email.name != "" && rec.Owner == nil {
		if email := s.read(ctx, keys.email); email != "" {
			rec.Owner = &users.User{Email: email}
		}
	}
	if keys.resource.name != "" {
		rec.PrimaryResourceID = s.read(ctx, keys.resource)
	}
	if keys.message.name != "" {
		rec.Message = s.read(ctx, keys.message)
	}
	return rec
}

// Set overwrites the whole record for scope. Fields left empty delete their keys.
// When scope is the active scope after the write, the main slot is updated to match.
func (s *Store) Set(ctx context.Context, scope Scope, rec Record) error {
	keys, ok := layout[scope]
	if !ok {
		return fmt.Errorf("[Store.Set] unknown scope %s", scope)
	}
	if rec.AccessToken == "" {
		return fmt.Errorf("[Store.Set] %s record has no access token", scope)
	}
	rec.Scope = scope

	owner, err := encodeUser(rec.Owner)
	if err != nil {
		return fmt.Errorf("[Store.Set] encode owner: %w", err)
	}

	values := map[storageKey]string{
		keys.access:   rec.AccessToken,
		keys.refresh:  rec.RefreshToken,
		keys.owner:    owner,
		keys.email:    rec.Email(),
		keys.resource: rec.PrimaryResourceID,
		keys.message:  rec.Message,
	}
	b := batches{}
	crossTab := false
	for _, k := range keys.all() {
		b.put(k, values[k])
		crossTab = crossTab || k.lifetime == CrossTab
	}
	// a tab-scoped record and its main slot mirror land in the same batch
	if s.activeAfterSet(ctx, scope) {
		if err := mirrorInto(b, &rec); err != nil {
			return fmt.Errorf("[Store.Set] %w", err)
		}
	}
	if err := s.apply(ctx, b); err != nil {
		return fmt.Errorf("[Store.Set] %s: %w", scope, err)
	}
	if crossTab {
		s.publish(ctx)
	}
	return nil
}

// activeAfterSet reports whether a record written to scope becomes the active one
func (s *Store) activeAfterSet(ctx context.Context, scope Scope) bool {
	switch scope {
	case ScopeImpersonation:
		return true
	case ScopeRegular:
		return s.read(ctx, layout[ScopeImpersonation].access) == ""
	default:
		return false
	}
}

// Clear removes the record for scope. If it was the active record the main slot
// follows the next active scope, or is emptied when none remains.
func (s *Store) Clear(ctx context.Context, scope Scope) error {
	keys, ok := layout[scope]
	if !ok {
		return nil
	}
	wasActive := s.ActiveScope(ctx) == scope

	b := batches{}
	crossTab := false
	for _, k := range keys.all() {
		b.put(k, "")
		crossTab = crossTab || k.lifetime == CrossTab
	}
	if err := s.apply(ctx, b); err != nil {
		return fmt.Errorf("[Store.Clear] %s: %w", scope, err)
	}

	if wasActive {
		if err := s.mirror(ctx, s.Get(ctx, s.ActiveScope(ctx))); err != nil {
			return fmt.Errorf("[Store.Clear] %w", err)
		}
	}
	if crossTab {
		s.publish(ctx)
	}
	return nil
}

// ClearAll removes every record and the main slot in both lifetimes
func (s *Store) ClearAll(ctx context.Context) error {
	tabKeys := []string{}
	sharedKeys := []string{}
	add := func(k storageKey) {
		if k.lifetime == CrossTab {
			sharedKeys = append(sharedKeys, k.name)
		} else {
			tabKeys = append(tabKeys, k.name)
		}
	}
	for _, scope := range Scopes {
		for _, k := range layout[scope].all() {
			add(k)
		}
	}
	for _, k := range mainSlotKeys {
		add(k)
	}

	if err := s.tab.Delete(ctx, tabKeys...); err != nil {
		return fmt.Errorf("[Store.ClearAll] tab: %w", err)
	}
	if err := s.shared.Delete(ctx, sharedKeys...); err != nil {
		return fmt.Errorf("[Store.ClearAll] cross tab: %w", err)
	}
	s.publish(ctx)
	return nil
}

// mirror copies rec into the main slot; a nil rec empties it
func (s *Store) mirror(ctx context.Context, rec *Record) error {
	b := batches{}
	if err := mirrorInto(b, rec); err != nil {
		return err
	}
	if err := s.apply(ctx, b); err != nil {
		return fmt.Errorf("main slot: %w", err)
	}
	return nil
}

func mirrorInto(b batches, rec *Record) error {
	if rec == nil {
		for _, k := range mainSlotKeys {
			b.put(k, "")
		}
		return nil
	}
	owner, err := encodeUser(rec.Owner)
	if err != nil {
		return fmt.Errorf("encode main slot owner: %w", err)
	}
	b.put(mainTokenKey, rec.AccessToken)
	b.put(mainUserKey, owner)
	b.put(mainResourceKey, rec.PrimaryResourceID)
	return nil
}

func (s *Store) publish(ctx context.Context) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, s.origin); err != nil {
		log.Err(err).Str("origin", s.origin).Msg("auth changed publish failed")
	}
}

// ActiveScope derives the scope whose credentials the tab is currently acting with
func (s *Store) ActiveScope(ctx context.Context) Scope {
	switch {
	case s.read(ctx, layout[ScopeImpersonation].access) != "":
		return ScopeImpersonation
	case s.read(ctx, layout[ScopeRegular].access) != "":
		return ScopeRegular
	default:
		return ScopeNone
	}
}

// MainToken is the token outgoing calls authorise with. A tab with an empty
// slot, such as one opened after a reload, falls back to the cross-tab token.
func (s *Store) MainToken(ctx context.Context) string {
	if t := s.read(ctx, mainTokenKey); t != "" {
		return t
	}
	return s.read(ctx, layout[ScopeRegular].access)
}

// MainUser is the owner of the main slot, with the same fallback as MainToken
func (s *Store) MainUser(ctx context.Context) *users.User {
	if s.read(ctx, mainTokenKey) != "" {
		return s.readUser(ctx, mainUserKey)
	}
	return s.readUser(ctx, layout[ScopeRegular].owner)
}

// MainResourceID is the restaurant of the main slot identity
func (s *Store) MainResourceID(ctx context.Context) string {
	if s.read(ctx, mainTokenKey) != "" {
		return s.read(ctx, mainResourceKey)
	}
	return s.read(ctx, layout[ScopeRegular].resource)
}

// Borrow runs fn once with the main slot holding rec's access token, then puts
// the previous slot value back. A slot that was empty is left empty. The slot
// is restored when fn errors or panics. Waiting for another borrow gives up
// when ctx is done.
//
// A Resync arriving during fn is held back until fn returns and then applied
// in place of the restore. If something else rewrote the slot meanwhile, that
// write is kept.
func (s *Store) Borrow(ctx context.Context, rec Record, fn func(ctx context.Context) error) error {
	if rec.AccessToken == "" {
		return fmt.Errorf("[Store.Borrow] %s record has no access token", rec.Scope)
	}
	if err := s.borrowSem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("[Store.Borrow] waiting for main slot: %w", err)
	}
	defer s.borrowSem.Release(1)

	prev, hadPrev, err := s.swapMainToken(ctx, rec.AccessToken)
	if err != nil {
		return fmt.Errorf("[Store.Borrow] %w", err)
	}
	defer func() {
		if err := s.restoreMainToken(context.WithoutCancel(ctx), rec.AccessToken, prev, hadPrev); err != nil {
			log.Err(err).Msg("main slot restore failed")
		}
	}()

	return fn(ctx)
}

func (s *Store) swapMainToken(ctx context.Context, token string) (string, bool, error) {
	s.slotMu.Lock()
	defer s.slotMu.Unlock()
	prev, hadPrev, err := s.tab.Get(ctx, mainTokenKey.name)
	if err != nil {
		return "", false, fmt.Errorf("read main slot: %w", err)
	}
	if err := s.tab.Upsert(ctx, mainTokenKey.name, token); err != nil {
		return "", false, fmt.Errorf("swap main slot: %w", err)
	}
	s.borrowing = true
	s.resyncPending = false
	return prev, hadPrev, nil
}

func (s *Store) restoreMainToken(ctx context.Context, borrowed, prev string, hadPrev bool) error {
	s.slotMu.Lock()
	defer s.slotMu.Unlock()
	pending := s.resyncPending
	s.borrowing = false
	s.resyncPending = false

	cur, _, err := s.tab.Get(ctx, mainTokenKey.name)
	if err != nil {
		return fmt.Errorf("read main slot: %w", err)
	}
	if cur != borrowed {
		log.Debug().Msg("main slot rewritten during borrow, keeping the newer value")
		return nil
	}
	if pending {
		if handled, err := s.resyncLocked(ctx); handled || err != nil {
			return err
		}
	}
	if hadPrev {
		return s.tab.Upsert(ctx, mainTokenKey.name, prev)
	}
	return s.tab.Delete(ctx, mainTokenKey.name)
}

// Snapshot returns every stored key of both lifetimes, prefixed with its
// lifetime, so two snapshots can be compared for exact equality.
func (s *Store) Snapshot(ctx context.Context) map[string]string {
	out := map[string]string{}
	for _, l := range []Lifetime{TabScoped, CrossTab} {
		repo := s.repoFor(l)
		keys, err := repo.Keys(ctx)
		if err != nil {
			log.Err(err).Stringer("lifetime", l).Msg("credential snapshot failed")
			continue
		}
		for _, k := range keys {
			if v, ok, err := repo.Get(ctx, k); err == nil && ok {
				out[l.String()+":"+k] = v
			}
		}
	}
	return out
}

// Resync re-mirrors the main slot from the active record. Another tab may have
// changed the cross-tab record under us; an impersonating tab keeps its slot.
// During a borrow the resync is deferred until the borrow ends.
func (s *Store) Resync(ctx context.Context) error {
	s.slotMu.Lock()
	defer s.slotMu.Unlock()
	if s.borrowing {
		s.resyncPending = true
		log.Debug().Msg("resync deferred until borrow ends")
		return nil
	}
	if _, err := s.resyncLocked(ctx); err != nil {
		return fmt.Errorf("[Store.Resync] %w", err)
	}
	return nil
}

// resyncLocked reports whether it rewrote the main slot. slotMu must be held.
func (s *Store) resyncLocked(ctx context.Context) (bool, error) {
	scope := s.ActiveScope(ctx)
	if scope == ScopeImpersonation {
		return false, nil
	}
	if err := s.mirror(ctx, s.Get(ctx, scope)); err != nil {
		return false, err
	}
	return true, nil
}
