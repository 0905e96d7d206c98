package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gitlab.com/timkado/api/daisi-panel-service/internal/adapters/config"
	"gitlab.com/timkado/api/daisi-panel-service/internal/domain"
)

const selectUsers = `
SELECT id::text, nickname, name, username, phone, email, platform, client_id::text,
       alara_automation_active, human_required
FROM users`

type userRow struct {
	ID                    string  `db:"id"`
	Nickname              *string `db:"nickname"`
	Name                  *string `db:"name"`
	Username              *string `db:"username"`
	Phone                 *string `db:"phone"`
	Email                 *string `db:"email"`
	Platform              *string `db:"platform"`
	ClientID              *string `db:"client_id"`
	AlaraAutomationActive *bool   `db:"alara_automation_active"`
	HumanRequired         *bool   `db:"human_required"`
}

func (r userRow) toContact() domain.Contact {
	return domain.Contact{
		ID:                    r.ID,
		Nickname:              deref(r.Nickname),
		Name:                  deref(r.Name),
		Username:              deref(r.Username),
		Phone:                 deref(r.Phone),
		Email:                 deref(r.Email),
		Platform:              deref(r.Platform),
		ClientID:              deref(r.ClientID),
		AlaraAutomationActive: r.AlaraAutomationActive,
		HumanRequired:         r.HumanRequired,
	}
}

// ContactRepository reads contacts from the users table.
type ContactRepository struct {
	pool   *pgxpool.Pool
	config config.Provider
}

// NewContactRepository creates a ContactRepository.
func NewContactRepository(pool *pgxpool.Pool, cfgProvider config.Provider) *ContactRepository {
	return &ContactRepository{pool: pool, config: cfgProvider}
}

// GetFilteredUsers implements domain.ContactRepository.
func (r *ContactRepository) GetFilteredUsers(ctx context.Context, tenantID string) ([]domain.Contact, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout(r.config.Get().Postgres))
	defer cancel()

	q := newQuery(selectUsers)
	q.whereTenant(tenantID)
	q.orderBy("id")

	rows, err := r.pool.Query(ctx, q.sql(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	users, err := pgx.CollectRows(rows, pgx.RowToStructByName[userRow])
	if err != nil {
		return nil, fmt.Errorf("scan users: %w", err)
	}

	contacts := make([]domain.Contact, 0, len(users))
	for _, u := range users {
		contacts = append(contacts, u.toContact())
	}
	return contacts, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
