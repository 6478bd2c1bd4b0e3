package campaign

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/postgres"
)

type PostgresStore struct {
	db *postgres.Client
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *postgres.Client) *PostgresStore {
	return &PostgresStore{db: db}
}

const insertCampaignSQL = `
	INSERT INTO campaigns (user_id, name, type, status)
	VALUES ($1, $2, $3, $4)
	RETURNING id, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, accountID int64, n NewCampaign) (Campaign, error) {
	c := Campaign{AccountID: accountID, Name: n.Name, Type: n.Type, Status: StatusDraft}
	err := s.db.DB.QueryRowContext(ctx, insertCampaignSQL,
		accountID, c.Name, string(c.Type), string(c.Status),
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	switch {
	case postgres.IsUniqueViolation(err):
		return Campaign{}, errDuplicate(n.Name)
	case err != nil:
		return Campaign{}, apperrors.Storage("inserting campaign", err)
	}
	return c, nil
}

func (s *PostgresStore) List(ctx context.Context, accountID int64) ([]Campaign, error) {
	rows, err := s.db.DB.QueryContext(ctx, `
		SELECT c.id, c.user_id, c.name, c.type, c.status, c.created_at, c.updated_at,
		       COUNT(r.id), COUNT(r.opened_at), COUNT(r.replied_at)
		FROM campaigns c
		LEFT JOIN campaign_recipients r ON r.campaign_id = c.id
		WHERE c.user_id = $1
		GROUP BY c.id
		ORDER BY c.created_at DESC, c.id DESC`, accountID)
	if err != nil {
		return nil, apperrors.Storage("listing campaigns", err)
	}
	defer rows.Close()

	out := []Campaign{}
	for rows.Next() {
		var (
			c                     Campaign
			typ, status           string
			sent, opened, replied int
		)
		if err := rows.Scan(&c.ID, &c.AccountID, &c.Name, &typ, &status, &c.CreatedAt, &c.UpdatedAt,
			&sent, &opened, &replied); err != nil {
			return nil, apperrors.Storage("scanning campaign", err)
		}
		c.Type, c.Status = Type(typ), Status(status)
		c.Stats = newStats(sent, opened, replied)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Storage("iterating campaigns", err)
	}
	return out, nil
}

func (s *PostgresStore) Sequences(ctx context.Context, accountID, campaignID int64) ([]Sequence, error) {
	var owner int64
	err := s.db.DB.QueryRowContext(ctx, `SELECT user_id FROM campaigns WHERE id = $1`, campaignID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != accountID) {
		return nil, fmt.Errorf("campaign %d: %w", campaignID, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, apperrors.Storage("reading campaign", err)
	}

	seqs, err := s.sequences(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if len(seqs) == 0 {
		return seqs, nil
	}
	byID := make(map[int64]int, len(seqs))
	for i := range seqs {
		byID[seqs[i].ID] = i
	}

	rows, err := s.db.DB.QueryContext(ctx, `
		SELECT st.id, st.sequence_id, st.step_order, st.delay_days, st.subject, st.body_content
		FROM sequence_steps st
		JOIN email_sequences es ON es.id = st.sequence_id
		WHERE es.campaign_id = $1
		ORDER BY st.sequence_id, st.step_order`, campaignID)
	if err != nil {
		return nil, apperrors.Storage("listing sequence steps", err)
	}
	defer rows.Close()
	for rows.Next() {
		var st Step
		if err := rows.Scan(&st.ID, &st.SequenceID, &st.Order, &st.DelayDays, &st.Subject, &st.Body); err != nil {
			return nil, apperrors.Storage("scanning sequence step", err)
		}
		if i, ok := byID[st.SequenceID]; ok {
			seqs[i].Steps = append(seqs[i].Steps, st)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Storage("iterating sequence steps", err)
	}
	return seqs, nil
}

func (s *PostgresStore) sequences(ctx context.Context, campaignID int64) ([]Sequence, error) {
	rows, err := s.db.DB.QueryContext(ctx, `
		SELECT id, campaign_id, name, COALESCE(subject, ''), status, created_at
		FROM email_sequences
		WHERE campaign_id = $1
		ORDER BY created_at, id`, campaignID)
	if err != nil {
		return nil, apperrors.Storage("listing sequences", err)
	}
	defer rows.Close()

	seqs := []Sequence{}
	for rows.Next() {
		seq := Sequence{Steps: []Step{}}
		if err := rows.Scan(&seq.ID, &seq.CampaignID, &seq.Name, &seq.Subject, &seq.Status, &seq.CreatedAt); err != nil {
			return nil, apperrors.Storage("scanning sequence", err)
		}
		seqs = append(seqs, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Storage("iterating sequences", err)
	}
	return seqs, nil
}

func (s *PostgresStore) Insert(ctx context.Context, accountID int64, d Demo) (int64, error) {
	var id int64
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		var created, updated sql.NullTime
		if err := tx.QueryRowContext(ctx, insertCampaignSQL,
			accountID, d.Name, string(d.Type), string(d.Status),
		).Scan(&id, &created, &updated); err != nil {
			if postgres.IsUniqueViolation(err) {
				return errDuplicate(d.Name)
			}
			return apperrors.Storage("inserting campaign", err)
		}
		for _, seq := range d.Sequences {
			var seqID int64
			if err := tx.QueryRowContext(ctx, `
				INSERT INTO email_sequences (campaign_id, name, subject, status)
				VALUES ($1, $2, $3, $4)
				RETURNING id`, id, seq.Name, seq.Subject, seq.Status).Scan(&seqID); err != nil {
				return apperrors.Storage("inserting sequence", err)
			}
			for _, st := range seq.Steps {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO sequence_steps (sequence_id, step_order, delay_days, subject, body_content)
					VALUES ($1, $2, $3, $4, $5)`,
					seqID, st.Order, st.DelayDays, st.Subject, st.Body); err != nil {
					return apperrors.Storage("inserting sequence step", err)
				}
			}
		}
		for _, r := range d.Recipients {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO campaign_recipients (campaign_id, candidate_id, status, sent_at, opened_at, replied_at)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				id, r.CandidateID, r.Status, r.SentAt, r.OpenedAt, r.RepliedAt); err != nil {
				return apperrors.Storage("inserting campaign recipient", err)
			}
		}
		return nil
	})
	return id, err
}
