package packages

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ngoendcuong/HomeLengo-sub000/internal/models"
)

var errInjected = errors.New("injected failure")

// memState is the in-memory equivalent of the tables the service touches.
type memState struct {
	packages      map[int64]models.UserServicePackage
	roles         map[int64][]string
	agents        map[int64]int64 // user id -> agent id
	properties    map[int64]int64 // property id -> agent id
	photos        map[int64][]string
	reviews       map[int64]int
	notifications map[int64]int
}

func (s memState) clone() memState {
	c := memState{
		packages:      map[int64]models.UserServicePackage{},
		roles:         map[int64][]string{},
		agents:        map[int64]int64{},
		properties:    map[int64]int64{},
		photos:        map[int64][]string{},
		reviews:       map[int64]int{},
		notifications: map[int64]int{},
	}
	for k, v := range s.packages {
		c.packages[k] = v
	}
	for k, v := range s.roles {
		c.roles[k] = append([]string(nil), v...)
	}
	for k, v := range s.agents {
		c.agents[k] = v
	}
	for k, v := range s.properties {
		c.properties[k] = v
	}
	for k, v := range s.photos {
		c.photos[k] = append([]string(nil), v...)
	}
	for k, v := range s.reviews {
		c.reviews[k] = v
	}
	for k, v := range s.notifications {
		c.notifications[k] = v
	}
	return c
}

// memStore serializes transactions with a mutex, standing in for the row
// locks MySQL takes.
type memStore struct {
	mu      sync.Mutex
	state   memState
	failOn  string
	commits int
}

func newMemStore() *memStore {
	return &memStore{state: memState{}.clone()}
}

func (m *memStore) addPackage(id, userID int64, end time.Time, active bool) {
	e := end
	m.state.packages[id] = models.UserServicePackage{ID: id, UserID: userID, PlanID: 1, EndDate: &e, IsActive: active}
}

func (m *memStore) addAgent(userID, agentID int64, roles ...string) {
	m.state.agents[userID] = agentID
	m.state.roles[userID] = roles
}

func (m *memStore) addProperty(id, agentID int64, photoKeys []string, reviews int) {
	m.state.properties[id] = agentID
	m.state.photos[id] = photoKeys
	m.state.reviews[id] = reviews
}

func (m *memStore) snapshot() memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

func (m *memStore) FindExpired(_ context.Context, now time.Time, userID *int64) ([]models.UserServicePackage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "FindExpired" {
		return nil, errInjected
	}

	var list []models.UserServicePackage
	for _, p := range m.state.packages {
		if !p.ExpiredAt(now) {
			continue
		}
		if userID != nil && p.UserID != *userID {
			continue
		}
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].UserID != list[j].UserID {
			return list[i].UserID < list[j].UserID
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}

func (m *memStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := m.state.clone()
	if err := fn(&memTx{m: m}); err != nil {
		m.state = before
		return err
	}
	m.commits++
	return nil
}

type memTx struct {
	m *memStore
}

func (t *memTx) fail(op string) error {
	if t.m.failOn == op {
		return errInjected
	}
	return nil
}

func (t *memTx) LockUser(context.Context, int64) error { return t.fail("LockUser") }

func (t *memTx) ReloadPackage(_ context.Context, id int64) (models.UserServicePackage, error) {
	p, ok := t.m.state.packages[id]
	if !ok {
		return p, ErrPackageNotFound
	}
	return p, t.fail("ReloadPackage")
}

func (t *memTx) DeactivatePackage(_ context.Context, id int64) error {
	p := t.m.state.packages[id]
	p.IsActive = false
	t.m.state.packages[id] = p
	return t.fail("DeactivatePackage")
}

func (t *memTx) ReplaceRoles(_ context.Context, userID int64, role string) error {
	t.m.state.roles[userID] = []string{role}
	return t.fail("ReplaceRoles")
}

func (t *memTx) AgentIDForUser(_ context.Context, userID int64) (int64, bool, error) {
	id, ok := t.m.state.agents[userID]
	return id, ok, t.fail("AgentIDForUser")
}

func (t *memTx) PropertyIDsForAgent(_ context.Context, agentID int64) ([]int64, error) {
	var ids []int64
	for pid, aid := range t.m.state.properties {
		if aid == agentID {
			ids = append(ids, pid)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, t.fail("PropertyIDsForAgent")
}

func (t *memTx) DeletePropertyCascade(_ context.Context, propertyID int64) ([]string, error) {
	keys := t.m.state.photos[propertyID]
	delete(t.m.state.photos, propertyID)
	delete(t.m.state.reviews, propertyID)
	delete(t.m.state.properties, propertyID)
	return keys, t.fail("DeletePropertyCascade")
}

func (t *memTx) Notify(_ context.Context, userID int64, _, _ string) error {
	t.m.state.notifications[userID]++
	return t.fail("Notify")
}

type recordingRemover struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (r *recordingRemover) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	return r.err
}
