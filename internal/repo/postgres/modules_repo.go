package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/geocoder89/learnhub/internal/domain/module"
	"github.com/geocoder89/learnhub/internal/domain/user"
	"github.com/geocoder89/learnhub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const moduleColumns = `m.id, m.title, m.description, m.category, m.estimated_time,
	m.created_by, COALESCE(u.email, ''), m.created_at, m.updated_at`

const moduleFrom = ` FROM modules m LEFT JOIN users u ON u.id = m.created_by`

type ModulesRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewModulesRepo(pool *pgxpool.Pool, prom *observability.Prom) *ModulesRepo {
	return &ModulesRepo{pool: pool, prom: prom}
}

func scanModule(row pgx.Row, m *module.Module) error {
	return row.Scan(
		&m.ID,
		&m.Title,
		&m.Description,
		&m.Category,
		&m.EstimatedTime,
		&m.CreatedBy.ID,
		&m.CreatedBy.Email,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
}

func (r *ModulesRepo) Create(ctx context.Context, m module.Module) (module.Module, error) {
	var out module.Module

	err := r.prom.ObserveDB("modules.create", func() error {
		return scanModule(r.pool.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO modules (id, title, description, category, estimated_time, created_by, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			RETURNING *
		)
		SELECT `+moduleColumns+` FROM ins m LEFT JOIN users u ON u.id = m.created_by`,
			m.ID, m.Title, m.Description, m.Category, m.EstimatedTime, m.CreatedBy.ID, m.CreatedAt, m.UpdatedAt,
		), &out)
	})

	if err != nil {
		if isForeignKeyViolation(err) {
			return module.Module{}, user.ErrNotFound
		}
		return module.Module{}, err
	}

	out.EnrolledUsers = []module.Ref{}
	return out, nil
}

func (r *ModulesRepo) List(ctx context.Context, filter module.ListFilter) ([]module.Module, error) {
	var conds []string
	var args []interface{}

	argsPosition := 1

	if filter.Category != nil {
		conds = append(conds, fmt.Sprintf("m.category = $%d", argsPosition))
		args = append(args, *filter.Category)
		argsPosition++
	}

	query := `SELECT ` + moduleColumns + moduleFrom

	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	// newest first, id breaks ties so pages never overlap
	query += fmt.Sprintf(" ORDER BY m.created_at DESC, m.id DESC LIMIT $%d OFFSET $%d", argsPosition, argsPosition+1)
	args = append(args, filter.Limit, filter.Offset())

	return r.queryModules(ctx, "modules.list", query, args...)
}

func (r *ModulesRepo) ListEnrolledBy(ctx context.Context, userID string) ([]module.Module, error) {
	query := `SELECT ` + moduleColumns + moduleFrom + `
		WHERE EXISTS (
			SELECT 1 FROM module_enrollments e
			WHERE e.module_id = m.id AND e.user_id = $1
		)
		ORDER BY m.created_at DESC, m.id DESC`

	mods, err := r.queryModules(ctx, "modules.list_enrolled_by", query, userID)
	if err != nil && isInvalidInput(err) {
		return []module.Module{}, nil
	}
	return mods, err
}

func (r *ModulesRepo) GetByID(ctx context.Context, id string) (module.Module, error) {
	var m module.Module

	err := r.prom.ObserveDB("modules.get_by_id", func() error {
		return scanModule(r.pool.QueryRow(ctx, `SELECT `+moduleColumns+moduleFrom+` WHERE m.id = $1`, id), &m)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidInput(err) {
			return module.Module{}, module.ErrNotFound
		}
		return module.Module{}, err
	}

	mods := []module.Module{m}
	if err := r.attachEnrollments(ctx, mods); err != nil {
		return module.Module{}, err
	}

	return mods[0], nil
}

func (r *ModulesRepo) Update(ctx context.Context, id string, req module.UpdateModuleRequest) (module.Module, error) {
	var tag pgconn.CommandTag

	err := r.prom.ObserveDB("modules.update", func() error {
		var err error
		tag, err = r.pool.Exec(ctx, `
		UPDATE modules
			SET title = $2,
				description = $3,
				category = $4,
				estimated_time = $5,
				updated_at = NOW()
		WHERE id = $1`,
			id, req.Title, req.Description, req.Category, req.EstimatedTime,
		)
		return err
	})

	if err != nil {
		if isInvalidInput(err) {
			return module.Module{}, module.ErrNotFound
		}
		return module.Module{}, err
	}

	if tag.RowsAffected() == 0 {
		return module.Module{}, module.ErrNotFound
	}

	return r.GetByID(ctx, id)
}

func (r *ModulesRepo) Delete(ctx context.Context, id string) error {
	var tag pgconn.CommandTag

	err := r.prom.ObserveDB("modules.delete", func() error {
		var err error
		tag, err = r.pool.Exec(ctx, `DELETE FROM modules WHERE id = $1`, id)
		return err
	})

	if err != nil {
		if isInvalidInput(err) {
			return module.ErrNotFound
		}
		return err
	}

	// if no rows were deleted as a result return a not found error
	if tag.RowsAffected() == 0 {
		return module.ErrNotFound
	}

	return nil
}

// Enroll adds userID to the module's enrollment set in a single statement.
// The primary key on (module_id, user_id) makes it an atomic add-if-absent;
// added is false when the user was already a member.
func (r *ModulesRepo) Enroll(ctx context.Context, moduleID, userID string) (added bool, err error) {
	var found bool

	err = r.prom.ObserveDB("modules.enroll", func() error {
		return r.pool.QueryRow(ctx, `
		WITH target AS (
			SELECT id FROM modules WHERE id = $1
		), ins AS (
			INSERT INTO module_enrollments (module_id, user_id)
			SELECT id, $2::uuid FROM target
			ON CONFLICT (module_id, user_id) DO NOTHING
			RETURNING module_id
		)
		SELECT EXISTS(SELECT 1 FROM target), EXISTS(SELECT 1 FROM ins)`,
			moduleID, userID,
		).Scan(&found, &added)
	})

	if err != nil {
		var pgErr *pgconn.PgError
		switch {
		case isInvalidInput(err):
			return false, module.ErrNotFound
		case errors.As(err, &pgErr) && pgErr.Code == "23503" && pgErr.ConstraintName == "module_enrollments_user_id_fkey":
			return false, user.ErrNotFound
		case isForeignKeyViolation(err):
			// module deleted between the lookup and the insert
			return false, module.ErrNotFound
		}
		return false, err
	}

	if !found {
		return false, module.ErrNotFound
	}

	return added, nil
}

func (r *ModulesRepo) CountEnrollments(ctx context.Context, moduleID string) (int, error) {
	var found bool
	var total int

	err := r.prom.ObserveDB("modules.count_enrollments", func() error {
		return r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM modules WHERE id = $1),
			(SELECT COUNT(*) FROM module_enrollments WHERE module_id = $1)`,
			moduleID,
		).Scan(&found, &total)
	})

	if err != nil {
		if isInvalidInput(err) {
			return 0, module.ErrNotFound
		}
		return 0, err
	}

	if !found {
		return 0, module.ErrNotFound
	}

	return total, nil
}

func (r *ModulesRepo) queryModules(ctx context.Context, op, query string, args ...interface{}) ([]module.Module, error) {
	var rows pgx.Rows

	err := r.prom.ObserveDB(op, func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, query, args...)
		return qerr
	})

	if err != nil {
		return nil, err
	}

	defer rows.Close()

	out := make([]module.Module, 0)

	for rows.Next() {
		var m module.Module

		if err := scanModule(rows, &m); err != nil {
			return nil, err
		}

		out = append(out, m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.attachEnrollments(ctx, out); err != nil {
		return nil, err
	}

	return out, nil
}

// attachEnrollments fills EnrolledUsers for every module in one query,
// ordered by enrollment time.
func (r *ModulesRepo) attachEnrollments(ctx context.Context, mods []module.Module) error {
	if len(mods) == 0 {
		return nil
	}

	ids := make([]string, 0, len(mods))
	index := make(map[string]int, len(mods))

	for i := range mods {
		mods[i].EnrolledUsers = []module.Ref{}
		ids = append(ids, mods[i].ID)
		index[mods[i].ID] = i
	}

	var rows pgx.Rows

	err := r.prom.ObserveDB("modules.enrollments_for", func() error {
		var qerr error
		rows, qerr = r.pool.Query(ctx, `
		SELECT e.module_id, e.user_id, COALESCE(u.email, '')
		FROM module_enrollments e
		LEFT JOIN users u ON u.id = e.user_id
		WHERE e.module_id = ANY($1::uuid[])
		ORDER BY e.enrolled_at ASC, e.user_id ASC`, ids)
		return qerr
	})

	if err != nil {
		return err
	}

	defer rows.Close()

	for rows.Next() {
		var moduleID string
		var ref module.Ref

		if err := rows.Scan(&moduleID, &ref.ID, &ref.Email); err != nil {
			return err
		}

		if i, ok := index[moduleID]; ok {
			mods[i].EnrolledUsers = append(mods[i].EnrolledUsers, ref)
		}
	}

	return rows.Err()
}
