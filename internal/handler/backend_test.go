package handler

import (
	"context"
	"errors"
	"sync"

	"tenant-service/internal/credential"
	"tenant-service/internal/model"
	"tenant-service/internal/provisioning"
)

// memoryBackend stands in for the database behind every store the routes use
type memoryBackend struct {
	mu          sync.Mutex
	nextID      uint
	tenants     map[uint]*model.Tenant
	actors      map[uint]*model.Actor
	branches    map[uint]*model.Branch
	assignments map[uint]uint // actor id -> branch id
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{
		tenants:     map[uint]*model.Tenant{},
		actors:      map[uint]*model.Actor{},
		branches:    map[uint]*model.Branch{},
		assignments: map[uint]uint{},
	}
}

func (m *memoryBackend) id() uint {
	m.nextID++
	return m.nextID
}

func (m *memoryBackend) usernameTaken(username string) bool {
	for _, a := range m.actors {
		if a.Username == username {
			return true
		}
	}
	return false
}

func (m *memoryBackend) ProvisionAttempt(_ context.Context, a provisioning.Attempt) (*provisioning.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.tenants {
		if t.Slug == a.Slug {
			return nil, model.ErrSlugTaken
		}
	}
	if m.usernameTaken(a.Input.Username) {
		return nil, model.ErrConflict
	}

	tenant := &model.Tenant{ID: m.id(), Slug: a.Slug, Name: a.Input.CompanyName, TaxID: a.Input.TaxID, Country: a.Input.Country, OnboardingStatus: model.OnboardingPending}
	actor := &model.Actor{ID: m.id(), Username: a.Input.Username, PasswordHash: a.PasswordHash, RoleCode: model.RoleOwner, TenantID: tenant.ID, AccountClass: model.AccountCompany, Active: true}
	branch := &model.Branch{ID: m.id(), TenantID: tenant.ID, Name: a.Input.BranchName}
	m.tenants[tenant.ID] = tenant
	m.actors[actor.ID] = actor
	m.branches[branch.ID] = branch

	return &provisioning.Result{Tenant: *tenant, Actor: *actor, Branch: *branch}, nil
}

func (m *memoryBackend) FindLoginRecord(_ context.Context, class model.AccountClass, username string) (*credential.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.actors {
		if a.Username != username || a.AccountClass != class {
			continue
		}
		rec := &credential.Record{Actor: *a, Tenant: *m.tenants[a.TenantID]}
		if class == model.AccountManager {
			branchID, ok := m.assignments[a.ID]
			if !ok {
				return nil, model.ErrNotFound
			}
			rec.BranchID = &branchID
		}
		return rec, nil
	}
	return nil, model.ErrNotFound
}

func (m *memoryBackend) FindByID(_ context.Context, id uint) (*model.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tenants[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	clone := *t
	return &clone, nil
}

func (m *memoryBackend) Update(_ context.Context, tenant *model.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := m.tenants[tenant.ID]
	stored.Name, stored.TaxID, stored.Country, stored.OnboardingStatus = tenant.Name, tenant.TaxID, tenant.Country, tenant.OnboardingStatus
	return nil
}

func (m *memoryBackend) CompleteOnboarding(ctx context.Context, tenant *model.Tenant, _ uint, _ string) error {
	return m.Update(ctx, tenant)
}

func (m *memoryBackend) CreateManager(_ context.Context, actor *model.Actor, branchID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.branches[branchID]
	if !ok || b.TenantID != actor.TenantID {
		return model.ErrNotFound
	}
	if m.usernameTaken(actor.Username) {
		return model.ErrConflict
	}
	actor.ID = m.id()
	clone := *actor
	m.actors[actor.ID] = &clone
	m.assignments[actor.ID] = branchID
	return nil
}

// memoryBranches is the branch view of memoryBackend
type memoryBranches struct {
	*memoryBackend
}

func (b memoryBranches) ListByTenant(_ context.Context, tenantID uint) ([]model.Branch, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []model.Branch
	for id := uint(1); id <= b.nextID; id++ {
		if br, ok := b.branches[id]; ok && br.TenantID == tenantID {
			out = append(out, *br)
		}
	}
	return out, nil
}

func (b memoryBranches) FindByID(_ context.Context, tenantID, id uint) (*model.Branch, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	br, ok := b.branches[id]
	if !ok || br.TenantID != tenantID {
		return nil, model.ErrNotFound
	}
	clone := *br
	return &clone, nil
}

func (b memoryBranches) Create(_ context.Context, branch *model.Branch) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	branch.ID = b.id()
	clone := *branch
	b.branches[branch.ID] = &clone
	return nil
}

func (b memoryBranches) Update(_ context.Context, branch *model.Branch) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	clone := *branch
	b.branches[branch.ID] = &clone
	return nil
}

func (b memoryBranches) Delete(_ context.Context, tenantID, id uint) (*model.Branch, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	br, ok := b.branches[id]
	if !ok || br.TenantID != tenantID {
		return nil, model.ErrNotFound
	}
	count := 0
	for _, other := range b.branches {
		if other.TenantID == tenantID {
			count++
		}
	}
	if count <= 1 {
		return nil, model.ErrConflict
	}
	delete(b.branches, id)
	return br, nil
}

// memoryAudit collects audit rows, or fails every write when down is set
type memoryAudit struct {
	mu   sync.Mutex
	rows []*model.AuditLog
	down bool
}

func (a *memoryAudit) Create(_ context.Context, entry *model.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.down {
		return errors.New("audit table unavailable")
	}
	entry.ID = uint(len(a.rows) + 1)
	a.rows = append(a.rows, entry)
	return nil
}

func (a *memoryAudit) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.rows)
}
