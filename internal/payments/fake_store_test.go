package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ngoendcuong/HomeLengo-sub000/internal/models"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/plans"
	"github.com/ngoendcuong/HomeLengo-sub000/internal/vnpay"
)

var errInjected = errors.New("injected failure")

type fakeState struct {
	txns     map[string]models.PaymentTransaction
	packages map[int64]models.UserServicePackage
	roles    map[int64]map[string]bool
	agents   map[int64]bool
	notes    map[int64]int
}

func (s fakeState) clone() fakeState {
	c := fakeState{
		txns:     map[string]models.PaymentTransaction{},
		packages: map[int64]models.UserServicePackage{},
		roles:    map[int64]map[string]bool{},
		agents:   map[int64]bool{},
		notes:    map[int64]int{},
	}
	for k, v := range s.txns {
		c.txns[k] = v
	}
	for k, v := range s.packages {
		c.packages[k] = v
	}
	for k, v := range s.roles {
		c.roles[k] = map[string]bool{}
		for r := range v {
			c.roles[k][r] = true
		}
	}
	for k, v := range s.agents {
		c.agents[k] = v
	}
	for k, v := range s.notes {
		c.notes[k] = v
	}
	return c
}

type fakeStore struct {
	mu     sync.Mutex
	plans  map[int64]models.ServicePlan
	state  fakeState
	nextID int64
	failOn string
	// ops records the transaction calls in order
	ops []string
}

func newFakeStore(plansList ...models.ServicePlan) *fakeStore {
	f := &fakeStore{plans: map[int64]models.ServicePlan{}, state: fakeState{}.clone(), nextID: 100}
	for _, p := range plansList {
		f.plans[p.ID] = p
	}
	return f
}

func (f *fakeStore) snapshot() fakeState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.clone()
}

func (f *fakeStore) Plan(_ context.Context, planID int64) (*models.ServicePlan, error) {
	p, ok := f.plans[planID]
	if !ok {
		return nil, plans.ErrPlanNotFound
	}
	return &p, nil
}

func (f *fakeStore) CreatePending(_ context.Context, txn *models.PaymentTransaction, planID int64, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	pkgID := f.nextID
	f.state.packages[pkgID] = models.UserServicePackage{ID: pkgID, UserID: txn.UserID, PlanID: planID, StartDate: now, CreatedAt: now}
	f.nextID++
	txn.ID = f.nextID
	txn.PackageID = pkgID
	txn.CreatedAt = now
	f.state.txns[txn.TxnRef] = *txn
	return nil
}

func (f *fakeStore) FindByTxnRef(_ context.Context, txnRef string) (*models.PaymentTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.state.txns[txnRef]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	return &t, nil
}

func (f *fakeStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	before := f.state.clone()
	if err := fn(&fakeTx{f: f}); err != nil {
		f.state = before
		return err
	}
	return nil
}

type fakeTx struct {
	f *fakeStore
}

func (t *fakeTx) fail(op string) error {
	if t.f.failOn == op {
		return errInjected
	}
	return nil
}

func (t *fakeTx) LockUser(_ context.Context, userID int64) error {
	t.f.ops = append(t.f.ops, fmt.Sprintf("LockUser(%d)", userID))
	return t.fail("LockUser")
}

func (t *fakeTx) ReloadTransaction(_ context.Context, txnRef string) (*models.PaymentTransaction, error) {
	t.f.ops = append(t.f.ops, "ReloadTransaction")
	txn, ok := t.f.state.txns[txnRef]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	return &txn, nil
}

func (t *fakeTx) MarkStatus(_ context.Context, txnID int64, status string, ret vnpay.Return, now time.Time) error {
	t.f.ops = append(t.f.ops, "MarkStatus")
	for ref, txn := range t.f.state.txns {
		if txn.ID != txnID {
			continue
		}
		if txn.Status != models.PaymentInitiated {
			return ErrAlreadyProcessed
		}
		txn.Status = status
		code := ret.ResponseCode
		txn.ResponseCode = &code
		txn.UpdatedAt = now
		t.f.state.txns[ref] = txn
		return t.fail("MarkStatus")
	}
	return ErrTransactionNotFound
}

func (t *fakeTx) PlanForPackage(ctx context.Context, packageID int64) (*models.ServicePlan, error) {
	return t.f.Plan(ctx, t.f.state.packages[packageID].PlanID)
}

func (t *fakeTx) ActivatePackage(_ context.Context, userID, packageID int64, start, end time.Time) error {
	for id, p := range t.f.state.packages {
		if p.UserID == userID && p.IsActive && id != packageID {
			s := start
			p.IsActive = false
			p.EndDate = &s
			t.f.state.packages[id] = p
		}
	}
	p := t.f.state.packages[packageID]
	p.IsActive = true
	p.StartDate = start
	e := end
	p.EndDate = &e
	t.f.state.packages[packageID] = p
	return t.fail("ActivatePackage")
}

func (t *fakeTx) GrantAgent(_ context.Context, userID int64) error {
	if t.f.state.roles[userID] == nil {
		t.f.state.roles[userID] = map[string]bool{}
	}
	t.f.state.roles[userID][models.RoleAgent] = true
	t.f.state.agents[userID] = true
	return t.fail("GrantAgent")
}

func (t *fakeTx) Notify(_ context.Context, userID int64, _, _ string) error {
	t.f.state.notes[userID]++
	return t.fail("Notify")
}
