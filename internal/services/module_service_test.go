package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/geocoder89/learnhub/internal/domain/module"
	"github.com/geocoder89/learnhub/internal/domain/user"
	"github.com/geocoder89/learnhub/internal/jobs"
	"github.com/geocoder89/learnhub/internal/services"
)

func createReq(title, category string) module.CreateModuleRequest {
	return module.CreateModuleRequest{
		Title:         title,
		Description:   "Learn " + title,
		Category:      category,
		EstimatedTime: 45,
	}
}

func TestCreateModule_SetsCreator(t *testing.T) {
	f := newFixture()

	m, err := f.svc.CreateModule(context.Background(), createReq("Go", "backend"), "admin-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if m.CreatedBy.ID != "admin-1" || m.ID == "" || len(m.EnrolledUsers) != 0 {
		t.Fatalf("unexpected module: %+v", m)
	}
}

func TestGetModuleByID_NotFound(t *testing.T) {
	f := newFixture()

	_, err := f.svc.GetModuleByID(context.Background(), "missing")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetEnrollmentCount_NotFound(t *testing.T) {
	f := newFixture()

	_, err := f.svc.GetEnrollmentCount(context.Background(), "missing")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetEnrollmentCount_ZeroWhenNoEnrollments(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	m, _ := f.svc.CreateModule(ctx, createReq("Go", "backend"), "admin-1")

	n, err := f.svc.GetEnrollmentCount(ctx, m.ID)
	if err != nil || n != 0 {
		t.Fatalf("expected 0, got %d err=%v", n, err)
	}
}

func TestEnrollInModule_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	member, err := f.auth.Register(ctx, "member@example.com", "secret123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	m, _ := f.svc.CreateModule(ctx, createReq("Go", "backend"), "admin-1")

	for i := 0; i < 2; i++ {
		got, err := f.svc.EnrollInModule(ctx, m.ID, member.ID)
		if err != nil {
			t.Fatalf("enroll #%d: %v", i+1, err)
		}
		if len(got.EnrolledUsers) != 1 || got.EnrolledUsers[0].ID != member.ID {
			t.Fatalf("enroll #%d: unexpected set %+v", i+1, got.EnrolledUsers)
		}
	}

	n, _ := f.svc.GetEnrollmentCount(ctx, m.ID)
	if n != 1 {
		t.Fatalf("expected enrollment count 1, got %d", n)
	}

	// only the enrollment that changed the set is confirmed
	if len(f.queue.created) != 1 {
		t.Fatalf("expected 1 confirmation job, got %d", len(f.queue.created))
	}

	decoded, err := jobs.DecodePayload(jobs.JobType(f.queue.created[0].Type), f.queue.created[0].Payload)
	if err != nil {
		t.Fatalf("decode job payload: %v", err)
	}
	p := decoded.(jobs.EnrollmentConfirmationPayload)
	if p.Email != "member@example.com" || p.ModuleID != m.ID || p.ModuleTitle != "Go" {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestEnrollInModule_QueueFailureDoesNotFailEnrollment(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.queue.err = errors.New("queue down")

	member, _ := f.auth.Register(ctx, "member@example.com", "secret123")
	m, _ := f.svc.CreateModule(ctx, createReq("Go", "backend"), "admin-1")

	if _, err := f.svc.EnrollInModule(ctx, m.ID, member.ID); err != nil {
		t.Fatalf("expected enrollment to succeed, got %v", err)
	}
}

func TestEnrollInModule_NotFound(t *testing.T) {
	f := newFixture()

	_, err := f.svc.EnrollInModule(context.Background(), "missing", "user-1")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEnrollInModule_UnknownUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	m, _ := f.svc.CreateModule(ctx, createReq("Go", "backend"), "admin-1")

	_, err := f.svc.EnrollInModule(ctx, m.ID, "ghost")
	if !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("expected user.ErrNotFound, got %v", err)
	}
	if len(f.queue.created) != 0 {
		t.Fatalf("expected no confirmation job, got %d", len(f.queue.created))
	}
}

func TestGetEnrolledModules(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	u1 := f.registerUser(t, "u1@example.com")
	u2 := f.registerUser(t, "u2@example.com")

	a, _ := f.svc.CreateModule(ctx, createReq("A", "x"), "admin-1")
	_, _ = f.svc.CreateModule(ctx, createReq("B", "x"), "admin-1")
	c, _ := f.svc.CreateModule(ctx, createReq("C", "x"), "admin-1")

	_, _ = f.svc.EnrollInModule(ctx, a.ID, u1)
	_, _ = f.svc.EnrollInModule(ctx, c.ID, u1)
	_, _ = f.svc.EnrollInModule(ctx, c.ID, u2)

	got, err := f.svc.GetEnrolledModules(ctx, u1)
	if err != nil {
		t.Fatalf("enrolled: %v", err)
	}

	if len(got) != 2 || got[0].ID != c.ID || got[1].ID != a.ID {
		t.Fatalf("expected [C A], got %+v", got)
	}

	none, _ := f.svc.GetEnrolledModules(ctx, "user-3")
	if len(none) != 0 {
		t.Fatalf("expected no modules, got %d", len(none))
	}
}

func TestMutationAuthorization(t *testing.T) {
	const owner = "owner-1"
	const other = "other-1"

	tests := []struct {
		name    string
		userID  string
		role    string
		wantErr error
	}{
		{name: "owner_plain_user", userID: owner, role: user.RoleUser},
		{name: "owner_admin", userID: owner, role: user.RoleAdmin},
		{name: "admin_not_owner", userID: other, role: user.RoleAdmin},
		{name: "neither", userID: other, role: user.RoleUser, wantErr: services.ErrForbidden},
		{name: "no_role_not_owner", userID: other, role: "", wantErr: services.ErrForbidden},
		{name: "anonymous", userID: "", role: "", wantErr: services.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run("update_"+tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture()
			m, _ := f.svc.CreateModule(ctx, createReq("Go", "backend"), owner)

			upd := module.UpdateModuleRequest{Title: "Go 2", Description: "d", Category: "backend", EstimatedTime: 60}
			got, err := f.svc.UpdateModule(ctx, m.ID, upd, tt.userID, tt.role)

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}

			stored, _ := f.svc.GetModuleByID(ctx, m.ID)
			if tt.wantErr == nil {
				if got.Title != "Go 2" || stored.Title != "Go 2" || stored.EstimatedTime != 60 {
					t.Fatalf("update not applied: %+v", stored)
				}
			} else if stored.Title != "Go" {
				t.Fatalf("forbidden update was applied: %+v", stored)
			}
		})

		t.Run("delete_"+tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture()
			m, _ := f.svc.CreateModule(ctx, createReq("Go", "backend"), owner)

			err := f.svc.DeleteModule(ctx, m.ID, tt.userID, tt.role)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}

			_, getErr := f.svc.GetModuleByID(ctx, m.ID)
			if tt.wantErr == nil && !errors.Is(getErr, services.ErrNotFound) {
				t.Fatalf("expected module to be gone, got %v", getErr)
			}
			if tt.wantErr != nil && getErr != nil {
				t.Fatalf("forbidden delete removed the module: %v", getErr)
			}
		})
	}
}

func TestUpdateModule_KeepsEnrollment(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	m, _ := f.svc.CreateModule(ctx, createReq("Go", "backend"), "admin-1")
	_, _ = f.svc.EnrollInModule(ctx, m.ID, f.registerUser(t, "member@example.com"))

	upd := module.UpdateModuleRequest{Title: "Go 2", Description: "d", Category: "backend", EstimatedTime: 60}
	got, err := f.svc.UpdateModule(ctx, m.ID, upd, "admin-1", user.RoleAdmin)
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if len(got.EnrolledUsers) != 1 {
		t.Fatalf("update changed enrollment: %+v", got.EnrolledUsers)
	}
}

func TestUpdateAndDelete_NotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	upd := module.UpdateModuleRequest{Title: "t", Description: "d", Category: "c", EstimatedTime: 1}
	if _, err := f.svc.UpdateModule(ctx, "missing", upd, "u", user.RoleAdmin); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("update: expected ErrNotFound, got %v", err)
	}
	if err := f.svc.DeleteModule(ctx, "missing", "u", user.RoleAdmin); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("delete: expected ErrNotFound, got %v", err)
	}
}

func TestGetAllModules_Pagination(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	first, _ := f.svc.CreateModule(ctx, createReq("First", "x"), "admin-1")
	_, _ = f.svc.CreateModule(ctx, createReq("Second", "x"), "admin-1")

	page2, err := f.svc.GetAllModules(ctx, module.ListFilter{Page: 2, Limit: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	// newest first, so the second page holds the module created first
	if len(page2) != 1 || page2[0].ID != first.ID {
		t.Fatalf("expected [First], got %+v", page2)
	}

	page3, err := f.svc.GetAllModules(ctx, module.ListFilter{Page: 3, Limit: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page3) != 0 {
		t.Fatalf("expected empty page, got %d", len(page3))
	}
}

func TestGetAllModules_CategoryAndDefaults(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	for i := 0; i < 12; i++ {
		cat := "backend"
		if i%2 == 0 {
			cat = "frontend"
		}
		_, _ = f.svc.CreateModule(ctx, createReq("M", cat), "admin-1")
	}

	all, _ := f.svc.GetAllModules(ctx, module.ListFilter{})
	if len(all) != module.DefaultLimit {
		t.Fatalf("expected default limit %d, got %d", module.DefaultLimit, len(all))
	}

	backend := "backend"
	filtered, _ := f.svc.GetAllModules(ctx, module.ListFilter{Category: &backend, Page: 1, Limit: 50})
	if len(filtered) != 6 {
		t.Fatalf("expected 6 backend modules, got %d", len(filtered))
	}
	for _, m := range filtered {
		if m.Category != "backend" {
			t.Fatalf("unexpected category %q", m.Category)
		}
	}
}

func TestCanMutate(t *testing.T) {
	m := module.Module{CreatedBy: module.Ref{ID: "owner"}}

	if !services.CanMutate(m, "owner", user.RoleUser) {
		t.Fatalf("owner should be allowed")
	}
	if !services.CanMutate(m, "someone", user.RoleAdmin) {
		t.Fatalf("admin should be allowed")
	}
	if services.CanMutate(m, "someone", user.RoleUser) {
		t.Fatalf("non-owner user must be denied")
	}
	if services.CanMutate(module.Module{}, "", user.RoleUser) {
		t.Fatalf("empty owner must not match empty user")
	}
}

// Register A, log in, an admin creates M, A enrolls twice, count stays 1.
// The admin-only create is enforced at the route; see the router test.
func TestEndToEnd_EnrollmentFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	a, err := f.auth.Register(ctx, "a@example.com", "secret123")
	if err != nil {
		t.Fatalf("register A: %v", err)
	}

	login, err := f.auth.Login(ctx, "a@example.com", "secret123")
	if err != nil {
		t.Fatalf("login A: %v", err)
	}
	if login.User.ID != a.ID {
		t.Fatalf("login returned a different user")
	}

	m, err := f.svc.CreateModule(ctx, createReq("Go", "backend"), "admin-1")
	if err != nil {
		t.Fatalf("admin create: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := f.svc.EnrollInModule(ctx, m.ID, a.ID); err != nil {
			t.Fatalf("enroll #%d: %v", i+1, err)
		}

		n, err := f.svc.GetEnrollmentCount(ctx, m.ID)
		if err != nil || n != 1 {
			t.Fatalf("after enroll #%d: expected count 1, got %d err=%v", i+1, n, err)
		}
	}
}
