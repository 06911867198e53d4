package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/geocoder89/learnhub/internal/auth"
	"github.com/geocoder89/learnhub/internal/domain/job"
	"github.com/geocoder89/learnhub/internal/repo/memory"
	"github.com/geocoder89/learnhub/internal/security"
	"github.com/geocoder89/learnhub/internal/services"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	security.Cost = bcrypt.MinCost
}

type fixture struct {
	users   *memory.UsersRepo
	modules *memory.ModulesRepo
	tokens  *auth.Manager
	auth    *services.AuthService
	svc     *services.ModuleService
	queue   *fakeQueue
}

func newFixture() *fixture {
	users := memory.NewUsersRepo()
	modules := memory.NewModulesRepo(users)
	tokens := auth.NewManager("test-secret", 7*24*time.Hour)
	queue := &fakeQueue{}

	return &fixture{
		users:   users,
		modules: modules,
		tokens:  tokens,
		auth:    services.NewAuthService(users, tokens, nil),
		svc:     services.NewModuleService(modules, services.WithJobQueue(queue)),
		queue:   queue,
	}
}

func (f *fixture) registerUser(t *testing.T, email string) string {
	t.Helper()

	u, err := f.auth.Register(context.Background(), email, "secret123")
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return u.ID
}

type fakeQueue struct {
	created []job.CreateRequest
	err     error
}

func (q *fakeQueue) Create(_ context.Context, req job.CreateRequest) (job.Job, bool, error) {
	if q.err != nil {
		return job.Job{}, false, q.err
	}
	q.created = append(q.created, req)
	return job.New(req), true, nil
}
