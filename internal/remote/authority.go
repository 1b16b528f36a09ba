package remote

import (
	"context"
	"sort"
	"sync"
	"time"

	"tasksync/backend"
)

// version is one entity as stored by the authority, stamped with the authority's own clock
type version struct {
	entity     backend.Entity
	modifiedAt time.Time
}

type userData struct {
	tasks   map[string]version
	domains map[string]version
}

func (u *userData) table(kind backend.Kind) map[string]version {
	if kind == backend.KindTask {
		return u.tasks
	}
	return u.domains
}

// Authority is an in-memory remote authority shared by every device of every user.
// Conflicts between versions use last-write-wins on the client updatedAt; what changed
// since a pull cursor is decided by the authority's clock, so device clock skew never
// hides a write from a pull.
type Authority struct {
	mu    sync.Mutex
	users map[string]*userData
	now   func() time.Time
	last  time.Time
}

// NewAuthority creates an empty authority
func NewAuthority() *Authority {
	return &Authority{
		users: make(map[string]*userData),
		now:   time.Now,
	}
}

// SetClock replaces the authority clock
func (a *Authority) SetClock(now func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.now = now
}

// tick returns a server timestamp strictly after every previously issued one. Callers hold a.mu.
func (a *Authority) tick() time.Time {
	t := backend.Timestamp(a.now())
	if !t.After(a.last) {
		t = a.last.Add(time.Millisecond)
	}
	a.last = t
	return t
}

func (a *Authority) user(userID string) *userData {
	u, ok := a.users[userID]
	if !ok {
		u = &userData{
			tasks:   make(map[string]version),
			domains: make(map[string]version),
		}
		a.users[userID] = u
	}
	return u
}

// Push applies a change-set for userID. Incoming versions older than the stored one are
// counted as conflicts and dropped; an echo with the same updatedAt is accepted without a write.
func (a *Authority) Push(userID string, req backend.PushRequest) backend.PushResponse {
	a.mu.Lock()
	defer a.mu.Unlock()

	u := a.user(userID)
	resp := backend.PushResponse{}

	apply := func(incoming backend.Entity) {
		backend.Normalize(incoming)
		table := u.table(incoming.Kind())
		stored, exists := table[incoming.EntityID()]
		switch {
		case !exists || backend.NewerThan(incoming, stored.entity):
			table[incoming.EntityID()] = version{entity: incoming, modifiedAt: a.tick()}
			resp.Pushed++
		case incoming.LastModified().Equal(stored.entity.LastModified()):
			resp.Pushed++
		default:
			resp.Conflicts++
		}
	}

	for i := range req.Domains {
		d := req.Domains[i]
		apply(&d)
	}
	for i := range req.Tasks {
		t := req.Tasks[i]
		apply(&t)
	}

	serverTime := a.tick()
	resp.ServerTime = &serverTime
	return resp
}

// Pull returns every entity the authority stored after since (nil means everything).
// ServerTime is reserved under the lock: any later write gets a strictly greater stamp.
func (a *Authority) Pull(userID string, req backend.PullRequest) backend.PullResponse {
	a.mu.Lock()
	defer a.mu.Unlock()

	u := a.user(userID)
	resp := backend.PullResponse{
		Tasks:   []backend.Task{},
		Domains: []backend.Domain{},
	}

	for _, v := range changedSince(u.domains, req.LastSyncAt) {
		resp.Domains = append(resp.Domains, *v.entity.(*backend.Domain))
	}
	for _, v := range changedSince(u.tasks, req.LastSyncAt) {
		resp.Tasks = append(resp.Tasks, *v.entity.(*backend.Task))
	}

	serverTime := a.tick()
	resp.ServerTime = &serverTime
	return resp
}

// Count returns how many versions (tombstones included) the authority holds for userID
func (a *Authority) Count(userID string, kind backend.Kind) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.user(userID).table(kind))
}

// Get returns the authority's version of an entity, or nil
func (a *Authority) Get(userID string, kind backend.Kind, id string) backend.Entity {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.user(userID).table(kind)[id]
	if !ok {
		return nil
	}
	return v.entity
}

func changedSince(table map[string]version, since *time.Time) []version {
	var out []version
	for _, v := range table {
		if since == nil || v.modifiedAt.After(*since) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].modifiedAt.Before(out[j].modifiedAt)
	})
	return out
}

// Client returns a RemoteClient that calls the authority in-process
func (a *Authority) Client() backend.RemoteClient {
	return localClient{authority: a}
}

type localClient struct {
	authority *Authority
}

func (c localClient) Push(ctx context.Context, userID string, req backend.PushRequest) (*backend.PushResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, backend.NewBackendError("push", 0, "request cancelled").WithError(err)
	}
	resp := c.authority.Push(userID, req)
	return &resp, nil
}

func (c localClient) Pull(ctx context.Context, userID string, req backend.PullRequest) (*backend.PullResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, backend.NewBackendError("pull", 0, "request cancelled").WithError(err)
	}
	resp := c.authority.Pull(userID, req)
	return &resp, nil
}
