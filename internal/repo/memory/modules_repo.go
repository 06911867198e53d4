package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/geocoder89/learnhub/internal/domain/module"
	"github.com/geocoder89/learnhub/internal/domain/user"
)

// EmailResolver fills in the email of a user reference. Optional.
type EmailResolver interface {
	EmailByID(id string) (string, bool)
}

type storedModule struct {
	m   module.Module
	seq int64
}

type ModulesRepo struct {
	mu     sync.RWMutex
	items  map[string]*storedModule
	seq    int64
	emails EmailResolver
}

func NewModulesRepo(emails EmailResolver) *ModulesRepo {
	return &ModulesRepo{
		items:  make(map[string]*storedModule),
		emails: emails,
	}
}

func (r *ModulesRepo) Create(_ context.Context, m module.Module) (module.Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	m.EnrolledUsers = []module.Ref{}
	r.items[m.ID] = &storedModule{m: m, seq: r.seq}

	return r.view(m), nil
}

func (r *ModulesRepo) List(_ context.Context, filter module.ListFilter) ([]module.Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.page(r.sorted(func(m module.Module) bool {
		return filter.Category == nil || m.Category == *filter.Category
	}), filter.Offset(), filter.Limit), nil
}

func (r *ModulesRepo) ListEnrolledBy(_ context.Context, userID string) ([]module.Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sorted(func(m module.Module) bool { return m.IsEnrolled(userID) }), nil
}

func (r *ModulesRepo) GetByID(_ context.Context, id string) (module.Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.items[id]
	if !ok {
		return module.Module{}, module.ErrNotFound
	}

	return r.view(s.m), nil
}

func (r *ModulesRepo) Update(_ context.Context, id string, req module.UpdateModuleRequest) (module.Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.items[id]
	if !ok {
		return module.Module{}, module.ErrNotFound
	}

	s.m.Title = req.Title
	s.m.Description = req.Description
	s.m.Category = req.Category
	s.m.EstimatedTime = req.EstimatedTime
	s.m.UpdatedAt = time.Now().UTC()

	return r.view(s.m), nil
}

func (r *ModulesRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return module.ErrNotFound
	}

	delete(r.items, id)
	return nil
}

// Enroll is add-if-absent under the write lock, matching the postgres
// primary-key semantics. With a resolver configured, unknown users are
// rejected like the postgres foreign key does.
func (r *ModulesRepo) Enroll(_ context.Context, moduleID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.items[moduleID]
	if !ok {
		return false, module.ErrNotFound
	}

	if r.emails != nil {
		if _, known := r.emails.EmailByID(userID); !known {
			return false, user.ErrNotFound
		}
	}

	if s.m.IsEnrolled(userID) {
		return false, nil
	}

	s.m.EnrolledUsers = append(s.m.EnrolledUsers, module.Ref{ID: userID})
	return true, nil
}

func (r *ModulesRepo) CountEnrollments(_ context.Context, moduleID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.items[moduleID]
	if !ok {
		return 0, module.ErrNotFound
	}

	return len(s.m.EnrolledUsers), nil
}

// sorted returns matching modules newest first. Must hold r.mu.
func (r *ModulesRepo) sorted(keep func(module.Module) bool) []module.Module {
	matched := make([]*storedModule, 0, len(r.items))
	for _, s := range r.items {
		if keep(s.m) {
			matched = append(matched, s)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.m.CreatedAt.Equal(b.m.CreatedAt) {
			return a.m.CreatedAt.After(b.m.CreatedAt)
		}
		return a.seq > b.seq
	})

	out := make([]module.Module, 0, len(matched))
	for _, s := range matched {
		out = append(out, r.view(s.m))
	}
	return out
}

func (r *ModulesRepo) page(mods []module.Module, offset, limit int) []module.Module {
	if offset >= len(mods) {
		return []module.Module{}
	}

	end := offset + limit
	if limit <= 0 || end > len(mods) {
		end = len(mods)
	}

	return mods[offset:end]
}

// view copies m so callers never share the stored enrollment slice, and
// resolves reference emails when a resolver is configured.
func (r *ModulesRepo) view(m module.Module) module.Module {
	refs := make([]module.Ref, len(m.EnrolledUsers))
	copy(refs, m.EnrolledUsers)
	m.EnrolledUsers = refs

	if r.emails == nil {
		return m
	}

	if email, ok := r.emails.EmailByID(m.CreatedBy.ID); ok {
		m.CreatedBy.Email = email
	}
	for i := range m.EnrolledUsers {
		if email, ok := r.emails.EmailByID(m.EnrolledUsers[i].ID); ok {
			m.EnrolledUsers[i].Email = email
		}
	}
	return m
}
