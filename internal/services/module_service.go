package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/geocoder89/learnhub/internal/domain/job"
	"github.com/geocoder89/learnhub/internal/domain/module"
	"github.com/geocoder89/learnhub/internal/jobs"
	"github.com/geocoder89/learnhub/internal/observability"
)

type ModuleStore interface {
	Create(ctx context.Context, m module.Module) (module.Module, error)
	List(ctx context.Context, filter module.ListFilter) ([]module.Module, error)
	ListEnrolledBy(ctx context.Context, userID string) ([]module.Module, error)
	GetByID(ctx context.Context, id string) (module.Module, error)
	Update(ctx context.Context, id string, req module.UpdateModuleRequest) (module.Module, error)
	Delete(ctx context.Context, id string) error
	// Enroll must be an atomic add-if-absent; added reports whether the set grew.
	Enroll(ctx context.Context, moduleID, userID string) (added bool, err error)
	CountEnrollments(ctx context.Context, moduleID string) (int, error)
}

type JobEnqueuer interface {
	Create(ctx context.Context, req job.CreateRequest) (job.Job, bool, error)
}

type ModuleService struct {
	modules ModuleStore
	jobs    JobEnqueuer
	prom    *observability.Prom
	log     *slog.Logger
}

type ModuleServiceOption func(*ModuleService)

// WithJobQueue enables enrollment confirmation jobs.
func WithJobQueue(q JobEnqueuer) ModuleServiceOption {
	return func(s *ModuleService) { s.jobs = q }
}

func WithMetrics(p *observability.Prom) ModuleServiceOption {
	return func(s *ModuleService) { s.prom = p }
}

func WithLogger(l *slog.Logger) ModuleServiceOption {
	return func(s *ModuleService) { s.log = l }
}

func NewModuleService(modules ModuleStore, opts ...ModuleServiceOption) *ModuleService {
	s := &ModuleService{modules: modules, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateModule persists a module owned by creatorID. Admin gating happens
// on the route, not here.
func (s *ModuleService) CreateModule(ctx context.Context, req module.CreateModuleRequest, creatorID string) (module.Module, error) {
	m, err := s.modules.Create(ctx, module.NewFromCreateRequest(req, creatorID))
	if err != nil {
		return module.Module{}, fmt.Errorf("create module: %w", err)
	}
	return m, nil
}

func (s *ModuleService) GetAllModules(ctx context.Context, filter module.ListFilter) ([]module.Module, error) {
	if filter.Page < 1 {
		filter.Page = module.DefaultPage
	}
	if filter.Limit < 1 {
		filter.Limit = module.DefaultLimit
	}
	if filter.Limit > module.MaxLimit {
		filter.Limit = module.MaxLimit
	}

	mods, err := s.modules.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	return mods, nil
}

func (s *ModuleService) GetModuleByID(ctx context.Context, id string) (module.Module, error) {
	m, err := s.modules.GetByID(ctx, id)
	if err != nil {
		return module.Module{}, fmt.Errorf("get module %s: %w", id, err)
	}
	return m, nil
}

func (s *ModuleService) UpdateModule(ctx context.Context, id string, req module.UpdateModuleRequest, userID, role string) (module.Module, error) {
	if err := s.authorize(ctx, id, userID, role); err != nil {
		return module.Module{}, err
	}

	m, err := s.modules.Update(ctx, id, req)
	if err != nil {
		return module.Module{}, fmt.Errorf("update module %s: %w", id, err)
	}
	return m, nil
}

func (s *ModuleService) DeleteModule(ctx context.Context, id, userID, role string) error {
	if err := s.authorize(ctx, id, userID, role); err != nil {
		return err
	}

	if err := s.modules.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete module %s: %w", id, err)
	}
	return nil
}

// EnrollInModule adds userID to the module's enrollment set. Enrolling twice
// is a no-op, not an error.
func (s *ModuleService) EnrollInModule(ctx context.Context, moduleID, userID string) (module.Module, error) {
	added, err := s.modules.Enroll(ctx, moduleID, userID)
	if err != nil {
		return module.Module{}, fmt.Errorf("enroll in module %s: %w", moduleID, err)
	}

	s.prom.ObserveEnrollment(added)

	m, err := s.modules.GetByID(ctx, moduleID)
	if err != nil {
		return module.Module{}, fmt.Errorf("get module %s: %w", moduleID, err)
	}

	if added {
		s.enqueueConfirmation(ctx, m, userID)
	}

	return m, nil
}

func (s *ModuleService) GetEnrolledModules(ctx context.Context, userID string) ([]module.Module, error) {
	mods, err := s.modules.ListEnrolledBy(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list enrolled modules: %w", err)
	}
	return mods, nil
}

func (s *ModuleService) GetEnrollmentCount(ctx context.Context, moduleID string) (int, error) {
	n, err := s.modules.CountEnrollments(ctx, moduleID)
	if err != nil {
		return 0, fmt.Errorf("count enrollments for %s: %w", moduleID, err)
	}
	return n, nil
}

func (s *ModuleService) authorize(ctx context.Context, id, userID, role string) error {
	m, err := s.modules.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get module %s: %w", id, err)
	}

	if !CanMutate(m, userID, role) {
		return ErrForbidden
	}
	return nil
}

// enqueueConfirmation is best effort: the enrollment already happened, so a
// queue failure is logged and swallowed.
func (s *ModuleService) enqueueConfirmation(ctx context.Context, m module.Module, userID string) {
	if s.jobs == nil {
		return
	}

	email := ""
	for _, ref := range m.EnrolledUsers {
		if ref.ID == userID {
			email = ref.Email
			break
		}
	}

	if email == "" {
		s.log.WarnContext(ctx, "enrollment confirmation skipped: no email", "module_id", m.ID, "user_id", userID)
		return
	}

	payload := jobs.EnrollmentConfirmationPayload{
		ModuleID:    m.ID,
		ModuleTitle: m.Title,
		UserID:      userID,
		Email:       email,
		RequestedAt: time.Now().UTC(),
	}

	raw, err := jobs.EncodePayload(jobs.JobEnrollmentConfirmation, payload)
	if err != nil {
		s.log.ErrorContext(ctx, "encode enrollment confirmation", "err", err)
		return
	}

	key := payload.IdempotencyKey()

	_, _, err = s.jobs.Create(ctx, job.CreateRequest{
		Type:           string(jobs.JobEnrollmentConfirmation),
		Payload:        raw,
		MaxAttempts:    5,
		IdempotencyKey: &key,
	})
	if err != nil {
		s.log.ErrorContext(ctx, "enqueue enrollment confirmation", "module_id", m.ID, "user_id", userID, "err", err)
	}
}
