package candidate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/postgres"
	"github.com/lib/pq"
)

type PostgresRepository struct {
	db *postgres.Client
}

var _ Repository = (*PostgresRepository)(nil)

func NewPostgresRepository(db *postgres.Client) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const candidateColumns = `
	c.id, c.name, c.email, COALESCE(c.title, ''), COALESCE(c.company, ''),
	COALESCE(c.experience_years, 0), COALESCE(c.location, ''), c.availability_status,
	COALESCE(c.image_url, ''), COALESCE(c.about, ''), c.contact_locked,
	COALESCE(c.match_percent, 0), c.created_at, c.updated_at,
	COALESCE((SELECT array_agg(s.skill_name ORDER BY s.skill_name)
	          FROM candidate_skills s WHERE s.candidate_id = c.id), '{}')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCandidate(row rowScanner) (Candidate, error) {
	var c Candidate
	var availability string
	err := row.Scan(
		&c.ID, &c.Name, &c.Email, &c.Title, &c.Company,
		&c.ExperienceYears, &c.Location, &availability,
		&c.ImageURL, &c.About, &c.ContactLocked,
		&c.MatchPercent, &c.CreatedAt, &c.UpdatedAt,
		pq.Array(&c.Skills),
	)
	c.AvailabilityStatus = Availability(availability)
	return c, err
}

// likePattern escapes LIKE metacharacters so user input matches literally.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// whereClause builds the shared filter predicate; args start at $1.
func whereClause(f Filter) (string, []any) {
	f = f.Normalize()
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Location != "" {
		add("c.location ILIKE $%d", likePattern(f.Location))
	}
	if f.Role != "" {
		add("c.title ILIKE $%d", likePattern(f.Role))
	}
	if f.ExperienceMin > 0 {
		add("c.experience_years >= $%d", f.ExperienceMin)
	}
	if len(f.Skills) > 0 {
		lowered := make([]string, len(f.Skills))
		for i, s := range f.Skills {
			lowered[i] = strings.ToLower(s)
		}
		add(`(SELECT COUNT(DISTINCT lower(s.skill_name)) FROM candidate_skills s
		      WHERE s.candidate_id = c.id AND lower(s.skill_name) = ANY($%d)) = `+fmt.Sprint(len(lowered)),
			pq.Array(lowered))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *PostgresRepository) List(ctx context.Context, f Filter, limit, offset int) ([]Candidate, int, error) {
	where, args := whereClause(f)

	var total int
	if err := r.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM candidates c`+where, args...).Scan(&total); err != nil {
		return nil, 0, apperrors.Storage("counting candidates", err)
	}

	n := len(args)
	query := `SELECT ` + candidateColumns + ` FROM candidates c` + where +
		fmt.Sprintf(` ORDER BY c.id DESC LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.db.DB.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, apperrors.Storage("listing candidates", err)
	}
	defer rows.Close()

	out := make([]Candidate, 0, limit)
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, 0, apperrors.Storage("scanning candidate", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperrors.Storage("iterating candidates", err)
	}
	return out, total, nil
}

func (r *PostgresRepository) Count(ctx context.Context, f Filter) (int, error) {
	where, args := whereClause(f)
	var total int
	if err := r.db.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM candidates c`+where, args...).Scan(&total); err != nil {
		return 0, apperrors.Storage("counting candidates", err)
	}
	return total, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id int64) (Candidate, error) {
	c, err := scanCandidate(r.db.DB.QueryRowContext(ctx,
		`SELECT `+candidateColumns+` FROM candidates c WHERE c.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Candidate{}, fmt.Errorf("candidate %d: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return Candidate{}, apperrors.Storage("reading candidate", err)
	}
	return c, nil
}

func (r *PostgresRepository) Details(ctx context.Context, accountID, id int64) (Details, error) {
	c, err := r.Get(ctx, id)
	if err != nil {
		return Details{}, err
	}
	d := Details{Candidate: c, Experience: []Experience{}, Education: []Education{}}

	rows, err := r.db.DB.QueryContext(ctx, `
		SELECT id, company, position, start_date, end_date, COALESCE(description, ''), order_index
		FROM candidate_experience WHERE candidate_id = $1 ORDER BY order_index ASC`, id)
	if err != nil {
		return Details{}, apperrors.Storage("listing experience", err)
	}
	for rows.Next() {
		var e Experience
		var end sql.NullTime
		if err := rows.Scan(&e.ID, &e.Company, &e.Position, &e.StartDate, &end, &e.Description, &e.OrderIndex); err != nil {
			rows.Close()
			return Details{}, apperrors.Storage("scanning experience", err)
		}
		if end.Valid {
			e.EndDate = &end.Time
		}
		d.Experience = append(d.Experience, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Details{}, apperrors.Storage("iterating experience", err)
	}

	rows, err = r.db.DB.QueryContext(ctx, `
		SELECT id, institution, degree, COALESCE(field_of_study, ''), COALESCE(graduation_year, 0), order_index
		FROM candidate_education WHERE candidate_id = $1 ORDER BY order_index ASC`, id)
	if err != nil {
		return Details{}, apperrors.Storage("listing education", err)
	}
	for rows.Next() {
		var e Education
		if err := rows.Scan(&e.ID, &e.Institution, &e.Degree, &e.FieldOfStudy, &e.GraduationYear, &e.OrderIndex); err != nil {
			rows.Close()
			return Details{}, apperrors.Storage("scanning education", err)
		}
		d.Education = append(d.Education, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Details{}, apperrors.Storage("iterating education", err)
	}

	if err := r.db.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM shortlists WHERE user_id = $1 AND candidate_id = $2)`,
		accountID, id,
	).Scan(&d.IsShortlisted); err != nil {
		return Details{}, apperrors.Storage("reading shortlist", err)
	}
	return d, nil
}

func (r *PostgresRepository) ToggleShortlist(ctx context.Context, accountID, id int64) (bool, error) {
	var shortlisted bool
	err := r.db.InTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM candidates WHERE id = $1)`, id).Scan(&exists); err != nil {
			return apperrors.Storage("reading candidate", err)
		}
		if !exists {
			return fmt.Errorf("candidate %d: %w", id, apperrors.ErrNotFound)
		}

		res, err := tx.ExecContext(ctx,
			`DELETE FROM shortlists WHERE user_id = $1 AND candidate_id = $2`, accountID, id)
		if err != nil {
			return apperrors.Storage("removing from shortlist", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			shortlisted = false
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO shortlists (user_id, candidate_id) VALUES ($1, $2)
			ON CONFLICT (user_id, candidate_id) DO NOTHING`, accountID, id); err != nil {
			return apperrors.Storage("adding to shortlist", err)
		}
		shortlisted = true
		return nil
	})
	return shortlisted, err
}

func (r *PostgresRepository) Shortlist(ctx context.Context, accountID int64) ([]Candidate, error) {
	rows, err := r.db.DB.QueryContext(ctx, `
		SELECT `+candidateColumns+`
		FROM candidates c
		INNER JOIN shortlists sl ON sl.candidate_id = c.id
		WHERE sl.user_id = $1
		ORDER BY sl.created_at DESC, c.id DESC`, accountID)
	if err != nil {
		return nil, apperrors.Storage("listing shortlist", err)
	}
	defer rows.Close()

	out := []Candidate{}
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, apperrors.Storage("scanning shortlisted candidate", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Storage("iterating shortlist", err)
	}
	return out, nil
}

func (r *PostgresRepository) Unlock(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.DB.ExecContext(ctx, `
		UPDATE candidates SET contact_locked = FALSE, updated_at = NOW()
		WHERE id = $1 AND contact_locked`, id)
	if err != nil {
		return false, apperrors.Storage("unlocking contact", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.Storage("unlocking contact", err)
	}
	if n == 1 {
		return true, nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// Insert writes a profile with its skills and history in one transaction.
func (r *PostgresRepository) Insert(ctx context.Context, p Profile) (int64, error) {
	var id int64
	err := r.db.InTx(ctx, func(tx *sql.Tx) error {
		c := p.Candidate
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO candidates (name, email, title, company, experience_years, location,
			                        availability_status, image_url, about, contact_locked, match_percent)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id`,
			c.Name, c.Email, c.Title, c.Company, c.ExperienceYears, c.Location,
			string(c.AvailabilityStatus), c.ImageURL, c.About, c.ContactLocked, c.MatchPercent,
		).Scan(&id); err != nil {
			return apperrors.Storage("inserting candidate", err)
		}
		for _, skill := range c.Skills {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO candidate_skills (candidate_id, skill_name) VALUES ($1, $2)
				ON CONFLICT DO NOTHING`, id, skill); err != nil {
				return apperrors.Storage("inserting skill", err)
			}
		}
		for _, e := range p.Experience {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO candidate_experience (candidate_id, company, position, start_date, end_date, description, order_index)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				id, e.Company, e.Position, e.StartDate, e.EndDate, e.Description, e.OrderIndex); err != nil {
				return apperrors.Storage("inserting experience", err)
			}
		}
		for _, e := range p.Education {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO candidate_education (candidate_id, institution, degree, field_of_study, graduation_year, order_index)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				id, e.Institution, e.Degree, e.FieldOfStudy, e.GraduationYear, e.OrderIndex); err != nil {
				return apperrors.Storage("inserting education", err)
			}
		}
		return nil
	})
	return id, err
}
