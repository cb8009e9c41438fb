package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ============================================================================
// PostgreSQL Configuration
// ============================================================================

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port"`
	Database        string        `json:"database" yaml:"database"`
	Username        string        `json:"username" yaml:"username"`
	Password        string        `json:"password" yaml:"password"`
	SSLMode         string        `json:"ssl_mode" yaml:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time"`
}

// DefaultPostgresConfig returns default PostgreSQL configuration.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Host:            "localhost",
		Port:            5432,
		Database:        "siem",
		Username:        "siem_app",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}
}

// DSN returns the connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.Username, c.Password, c.SSLMode,
	)
}

// ============================================================================
// PostgreSQL Connection
// ============================================================================

// PostgresConn represents a PostgreSQL database connection.
type PostgresConn struct {
	db     *sqlx.DB
	config PostgresConfig
}

// NewPostgresConn creates a new PostgreSQL connection.
func NewPostgresConn(cfg PostgresConfig) (*PostgresConn, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return &PostgresConn{
		db:     db,
		config: cfg,
	}, nil
}

// Close closes the PostgreSQL connection.
func (c *PostgresConn) Close() error {
	return c.db.Close()
}

// Ping tests the connection.
func (c *PostgresConn) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// IsHealthy returns true if the connection is healthy.
func (c *PostgresConn) IsHealthy(ctx context.Context) bool {
	return c.Ping(ctx) == nil
}

// DB returns the sqlx.DB instance.
func (c *PostgresConn) DB() *sqlx.DB {
	return c.db
}

// ============================================================================
// PostgreSQL Transaction
// ============================================================================

// pgTransaction implements Transaction interface.
type pgTransaction struct {
	tx *sqlx.Tx
}

func (t *pgTransaction) Commit() error {
	return t.tx.Commit()
}

func (t *pgTransaction) Rollback() error {
	return t.tx.Rollback()
}

// WithTransaction executes a function within a transaction.
func (c *PostgresConn) WithTransaction(ctx context.Context, fn TxFunc) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	pgTx := &pgTransaction{tx: tx}

	if err := fn(ctx, pgTx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	return tx.Commit()
}

// ============================================================================
// PostgreSQL User Repository Implementation
// ============================================================================

// postgresUserRepository implements UserRepository.
type postgresUserRepository struct {
	conn *PostgresConn
}

// NewPostgresUserRepository creates a new PostgreSQL user repository.
func NewPostgresUserRepository(conn *PostgresConn) UserRepository {
	return &postgresUserRepository{conn: conn}
}

// Create creates a new user.
func (r *postgresUserRepository) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO auth.users (
			id, tenant_id, email, username, display_name, password_hash, role, status,
			mfa_enabled, created_at, updated_at
		) VALUES (
			COALESCE(NULLIF($1, ''), uuid_generate_v4()::text), $2, $3, $4, $5, $6, $7, $8,
			$9, COALESCE($10, CURRENT_TIMESTAMP), CURRENT_TIMESTAMP
		)
		RETURNING id, created_at, updated_at
	`

	err := r.conn.db.QueryRowContext(ctx, query,
		user.ID, user.TenantID, user.Email, user.Username, user.DisplayName,
		user.PasswordHash, user.Role, user.Status, user.MFAEnabled, user.CreatedAt,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID.
func (r *postgresUserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, tenant_id, email, username, display_name, password_hash, role, status,
			mfa_enabled, last_login_at, failed_login_attempts, created_at, updated_at
		FROM auth.users
		WHERE id = $1 AND status != 'DELETED'
	`

	var user User
	err := r.conn.db.GetContext(ctx, &user, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// GetByEmail retrieves a user by email.
func (r *postgresUserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT id, tenant_id, email, username, display_name, password_hash, role, status,
			mfa_enabled, last_login_at, failed_login_attempts, created_at, updated_at
		FROM auth.users
		WHERE email = $1 AND status != 'DELETED'
	`

	var user User
	err := r.conn.db.GetContext(ctx, &user, query, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return &user, nil
}

// GetByUsername retrieves a user by username within a tenant.
func (r *postgresUserRepository) GetByUsername(ctx context.Context, tenantID, username string) (*User, error) {
	query := `
		SELECT id, tenant_id, email, username, display_name, password_hash, role, status,
			mfa_enabled, last_login_at, failed_login_attempts, created_at, updated_at
		FROM auth.users
		WHERE tenant_id = $1 AND username = $2 AND status != 'DELETED'
	`

	var user User
	err := r.conn.db.GetContext(ctx, &user, query, tenantID, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}

	return &user, nil
}

// Update updates a user.
func (r *postgresUserRepository) Update(ctx context.Context, user *User) error {
	query := `
		UPDATE auth.users
		SET email = $2, username = $3, display_name = $4, role = $5, status = $6,
			mfa_enabled = $7, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.conn.db.QueryRowContext(ctx, query,
		user.ID, user.Email, user.Username, user.DisplayName, user.Role,
		user.Status, user.MFAEnabled,
	).Scan(&user.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	return nil
}

// Delete soft-deletes a user.
func (r *postgresUserRepository) Delete(ctx context.Context, id string) error {
	query := `
		UPDATE auth.users
		SET status = 'DELETED', updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	result, err := r.conn.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// List retrieves users with filtering and pagination.
func (r *postgresUserRepository) List(ctx context.Context, opts QueryOptions) ([]*User, int, error) {
	// Build WHERE clause
	conditions := []string{"status != 'DELETED'"}
	args := []interface{}{}
	argIndex := 1

	if opts.TenantID != "" {
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", argIndex))
		args = append(args, opts.TenantID)
		argIndex++
	}

	for _, f := range opts.Filters {
		switch f.Operator {
		case OpEq:
			conditions = append(conditions, fmt.Sprintf("%s = $%d", f.Field, argIndex))
			args = append(args, f.Value)
			argIndex++
		case OpLike:
			conditions = append(conditions, fmt.Sprintf("%s ILIKE $%d", f.Field, argIndex))
			args = append(args, "%"+f.Value.(string)+"%")
			argIndex++
		case OpIn:
			values := f.Value.([]string)
			placeholders := make([]string, len(values))
			for i, v := range values {
				placeholders[i] = fmt.Sprintf("$%d", argIndex)
				args = append(args, v)
				argIndex++
			}
			conditions = append(conditions, fmt.Sprintf("%s IN (%s)", f.Field, strings.Join(placeholders, ", ")))
		}
	}

	whereClause := strings.Join(conditions, " AND ")

	// Count query
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM auth.users WHERE %s", whereClause)
	var total int
	if err := r.conn.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	// Build ORDER BY
	orderBy := "created_at DESC"
	if len(opts.Sorts) > 0 {
		orders := make([]string, len(opts.Sorts))
		for i, s := range opts.Sorts {
			orders[i] = fmt.Sprintf("%s %s", s.Field, s.Order)
		}
		orderBy = strings.Join(orders, ", ")
	}

	// Data query
	dataQuery := fmt.Sprintf(`
		SELECT id, tenant_id, email, username, display_name, role, status,
			mfa_enabled, last_login_at, failed_login_attempts, created_at, updated_at
		FROM auth.users
		WHERE %s
		ORDER BY %s
		LIMIT $%d OFFSET $%d
	`, whereClause, orderBy, argIndex, argIndex+1)

	args = append(args, opts.Pagination.Limit(), opts.Pagination.Offset())

	var users []*User
	if err := r.conn.db.SelectContext(ctx, &users, dataQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}

	return users, total, nil
}

// Exists checks if a user exists.
func (r *postgresUserRepository) Exists(ctx context.Context, id string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM auth.users WHERE id = $1 AND status != 'DELETED')`
	var exists bool
	err := r.conn.db.GetContext(ctx, &exists, query, id)
	return exists, err
}

// UpdatePassword updates user password.
func (r *postgresUserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	query := `
		UPDATE auth.users
		SET password_hash = $2, password_changed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := r.conn.db.ExecContext(ctx, query, userID, passwordHash)
	return err
}

// UpdateLastLogin updates last login information.
func (r *postgresUserRepository) UpdateLastLogin(ctx context.Context, userID, ip string) error {
	query := `
		UPDATE auth.users
		SET last_login_at = CURRENT_TIMESTAMP, last_login_ip = $2, failed_login_attempts = 0
		WHERE id = $1
	`
	_, err := r.conn.db.ExecContext(ctx, query, userID, ip)
	return err
}

// IncrementFailedLogin increments failed login counter.
func (r *postgresUserRepository) IncrementFailedLogin(ctx context.Context, userID string) error {
	query := `
		UPDATE auth.users
		SET failed_login_attempts = failed_login_attempts + 1
		WHERE id = $1
	`
	_, err := r.conn.db.ExecContext(ctx, query, userID)
	return err
}

// ResetFailedLogin resets failed login counter.
func (r *postgresUserRepository) ResetFailedLogin(ctx context.Context, userID string) error {
	query := `UPDATE auth.users SET failed_login_attempts = 0 WHERE id = $1`
	_, err := r.conn.db.ExecContext(ctx, query, userID)
	return err
}

// ListByTenant retrieves users for a tenant.
func (r *postgresUserRepository) ListByTenant(ctx context.Context, tenantID string, opts QueryOptions) ([]*User, int, error) {
	opts.TenantID = tenantID
	return r.List(ctx, opts)
}

// GetUserGroups retrieves group IDs for a user.
func (r *postgresUserRepository) GetUserGroups(ctx context.Context, userID string) ([]string, error) {
	query := `SELECT group_id FROM auth.user_group_memberships WHERE user_id = $1`
	var groups []string
	err := r.conn.db.SelectContext(ctx, &groups, query, userID)
	return groups, err
}

// ============================================================================
// PostgreSQL Tenant Repository Implementation
// ============================================================================

// postgresTenantRepository implements TenantRepository.
type postgresTenantRepository struct {
	conn *PostgresConn
}

// NewPostgresTenantRepository creates a new PostgreSQL tenant repository.
func NewPostgresTenantRepository(conn *PostgresConn) TenantRepository {
	return &postgresTenantRepository{conn: conn}
}

// Create creates a new tenant.
func (r *postgresTenantRepository) Create(ctx context.Context, tenant *Tenant) error {
	query := `
		INSERT INTO meta.tenants (
			id, name, slug, display_name, tier, status, max_users, max_events_per_day,
			retention_days, features, settings, created_at, updated_at
		) VALUES (
			COALESCE(NULLIF($1, ''), uuid_generate_v4()::text), $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, COALESCE($12, CURRENT_TIMESTAMP), CURRENT_TIMESTAMP
		)
		RETURNING id, created_at, updated_at
	`

	err := r.conn.db.QueryRowContext(ctx, query,
		tenant.ID, tenant.Name, tenant.Slug, tenant.DisplayName, tenant.Tier, tenant.Status,
		tenant.MaxUsers, tenant.MaxEventsPerDay, tenant.RetentionDays, tenant.Features,
		tenant.Settings, tenant.CreatedAt,
	).Scan(&tenant.ID, &tenant.CreatedAt, &tenant.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}

	return nil
}

// GetByID retrieves a tenant by ID.
func (r *postgresTenantRepository) GetByID(ctx context.Context, id string) (*Tenant, error) {
	query := `
		SELECT id, name, slug, display_name, tier, status, max_users, max_events_per_day,
			retention_days, features, settings, created_at, updated_at
		FROM meta.tenants
		WHERE id = $1 AND status != 'DELETED'
	`

	var tenant Tenant
	err := r.conn.db.GetContext(ctx, &tenant, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	return &tenant, nil
}

// GetBySlug retrieves a tenant by slug.
func (r *postgresTenantRepository) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	query := `
		SELECT id, name, slug, display_name, tier, status, max_users, max_events_per_day,
			retention_days, features, settings, created_at, updated_at
		FROM meta.tenants
		WHERE slug = $1 AND status != 'DELETED'
	`

	var tenant Tenant
	err := r.conn.db.GetContext(ctx, &tenant, query, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get tenant by slug: %w", err)
	}

	return &tenant, nil
}

// Update updates a tenant.
func (r *postgresTenantRepository) Update(ctx context.Context, tenant *Tenant) error {
	query := `
		UPDATE meta.tenants
		SET name = $2, display_name = $3, tier = $4, status = $5, max_users = $6,
			max_events_per_day = $7, retention_days = $8, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.conn.db.QueryRowContext(ctx, query,
		tenant.ID, tenant.Name, tenant.DisplayName, tenant.Tier, tenant.Status,
		tenant.MaxUsers, tenant.MaxEventsPerDay, tenant.RetentionDays,
	).Scan(&tenant.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}

	return nil
}

// Delete soft-deletes a tenant.
func (r *postgresTenantRepository) Delete(ctx context.Context, id string) error {
	query := `
		UPDATE meta.tenants
		SET status = 'DELETED', deleted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := r.conn.db.ExecContext(ctx, query, id)
	return err
}

// List retrieves tenants with filtering and pagination.
func (r *postgresTenantRepository) List(ctx context.Context, opts QueryOptions) ([]*Tenant, int, error) {
	conditions := []string{"status != 'DELETED'"}
	args := []interface{}{}
	argIndex := 1

	for _, f := range opts.Filters {
		switch f.Operator {
		case OpEq:
			conditions = append(conditions, fmt.Sprintf("%s = $%d", f.Field, argIndex))
			args = append(args, f.Value)
			argIndex++
		}
	}

	whereClause := strings.Join(conditions, " AND ")

	// Count
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM meta.tenants WHERE %s", whereClause)
	var total int
	if err := r.conn.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	// Data
	orderBy := "created_at DESC"
	dataQuery := fmt.Sprintf(`
		SELECT id, name, slug, display_name, tier, status, max_users, max_events_per_day,
			retention_days, features, settings, created_at, updated_at
		FROM meta.tenants
		WHERE %s
		ORDER BY %s
		LIMIT $%d OFFSET $%d
	`, whereClause, orderBy, argIndex, argIndex+1)

	args = append(args, opts.Pagination.Limit(), opts.Pagination.Offset())

	var tenants []*Tenant
	if err := r.conn.db.SelectContext(ctx, &tenants, dataQuery, args...); err != nil {
		return nil, 0, err
	}

	return tenants, total, nil
}

// Exists checks if a tenant exists.
func (r *postgresTenantRepository) Exists(ctx context.Context, id string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM meta.tenants WHERE id = $1 AND status != 'DELETED')`
	var exists bool
	err := r.conn.db.GetContext(ctx, &exists, query, id)
	return exists, err
}

// UpdateFeatures updates tenant features.
func (r *postgresTenantRepository) UpdateFeatures(ctx context.Context, tenantID string, features map[string]bool) error {
	query := `UPDATE meta.tenants SET features = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	_, err := r.conn.db.ExecContext(ctx, query, tenantID, features)
	return err
}

// UpdateSettings updates tenant settings.
func (r *postgresTenantRepository) UpdateSettings(ctx context.Context, tenantID string, settings map[string]interface{}) error {
	query := `UPDATE meta.tenants SET settings = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	_, err := r.conn.db.ExecContext(ctx, query, tenantID, settings)
	return err
}

// GetUsage retrieves tenant usage for a date.
func (r *postgresTenantRepository) GetUsage(ctx context.Context, tenantID string, date time.Time) (*TenantUsage, error) {
	query := `
		SELECT tenant_id, date, events_ingested, bytes_ingested, active_users,
			api_calls, alerts_generated
		FROM meta.tenant_usage
		WHERE tenant_id = $1 AND date = $2
	`

	var usage TenantUsage
	err := r.conn.db.GetContext(ctx, &usage, query, tenantID, date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &usage, nil
}

// RecordUsage records tenant usage.
func (r *postgresTenantRepository) RecordUsage(ctx context.Context, usage *TenantUsage) error {
	query := `
		INSERT INTO meta.tenant_usage (
			tenant_id, date, events_ingested, bytes_ingested, active_users, api_calls, alerts_generated
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, date) DO UPDATE SET
			events_ingested = tenant_usage.events_ingested + EXCLUDED.events_ingested,
			bytes_ingested = tenant_usage.bytes_ingested + EXCLUDED.bytes_ingested,
			active_users = GREATEST(tenant_usage.active_users, EXCLUDED.active_users),
			api_calls = tenant_usage.api_calls + EXCLUDED.api_calls,
			alerts_generated = tenant_usage.alerts_generated + EXCLUDED.alerts_generated
	`

	_, err := r.conn.db.ExecContext(ctx, query,
		usage.TenantID, usage.Date, usage.EventsIngested, usage.BytesIngested,
		usage.ActiveUsers, usage.APICalls, usage.AlertsGenerated,
	)

	return err
}

// ============================================================================
// PostgreSQL Detection Rule Repository Implementation
// ============================================================================

// postgresDetectionRuleRepository implements DetectionRuleRepository.
type postgresDetectionRuleRepository struct {
	conn *PostgresConn
}

// NewPostgresDetectionRuleRepository creates a new PostgreSQL detection rule repository.
func NewPostgresDetectionRuleRepository(conn *PostgresConn) DetectionRuleRepository {
	return &postgresDetectionRuleRepository{conn: conn}
}

// Create creates a new detection rule.
func (r *postgresDetectionRuleRepository) Create(ctx context.Context, rule *DetectionRule) error {
	query := `
		INSERT INTO meta.detection_rules (
			id, tenant_id, rule_id, name, description, rule_type, severity, rule_content,
			compiled_query, status, is_enabled, mitre_tactics, mitre_techniques, tags,
			version, created_at, updated_at
		) VALUES (
			COALESCE(NULLIF($1, ''), uuid_generate_v4()::text), $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14, $15, COALESCE($16, CURRENT_TIMESTAMP), CURRENT_TIMESTAMP
		)
		RETURNING id, created_at, updated_at
	`

	err := r.conn.db.QueryRowContext(ctx, query,
		rule.ID, rule.TenantID, rule.RuleID, rule.Name, rule.Description, rule.RuleType,
		rule.Severity, rule.RuleContent, rule.CompiledQuery, rule.Status, rule.IsEnabled,
		rule.MITRETactics, rule.MITRETechniques, rule.Tags, rule.Version, rule.CreatedAt,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)

	return err
}

// GetByID retrieves a rule by ID.
func (r *postgresDetectionRuleRepository) GetByID(ctx context.Context, id string) (*DetectionRule, error) {
	query := `
		SELECT id, tenant_id, rule_id, name, description, rule_type, severity, rule_content,
			compiled_query, status, is_enabled, mitre_tactics, mitre_techniques, tags,
			version, created_at, updated_at
		FROM meta.detection_rules
		WHERE id = $1 AND status != 'ARCHIVED'
	`

	var rule DetectionRule
	err := r.conn.db.GetContext(ctx, &rule, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &rule, nil
}

// GetByRuleID retrieves a rule by rule_id.
func (r *postgresDetectionRuleRepository) GetByRuleID(ctx context.Context, tenantID, ruleID string) (*DetectionRule, error) {
	query := `
		SELECT id, tenant_id, rule_id, name, description, rule_type, severity, rule_content,
			compiled_query, status, is_enabled, mitre_tactics, mitre_techniques, tags,
			version, created_at, updated_at
		FROM meta.detection_rules
		WHERE tenant_id = $1 AND rule_id = $2 AND is_latest = true AND status != 'ARCHIVED'
	`

	var rule DetectionRule
	err := r.conn.db.GetContext(ctx, &rule, query, tenantID, ruleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &rule, nil
}

// Update updates a detection rule.
func (r *postgresDetectionRuleRepository) Update(ctx context.Context, rule *DetectionRule) error {
	query := `
		UPDATE meta.detection_rules
		SET name = $2, description = $3, rule_type = $4, severity = $5, rule_content = $6,
			compiled_query = $7, mitre_tactics = $8, mitre_techniques = $9, tags = $10,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING updated_at
	`

	return r.conn.db.QueryRowContext(ctx, query,
		rule.ID, rule.Name, rule.Description, rule.RuleType, rule.Severity, rule.RuleContent,
		rule.CompiledQuery, rule.MITRETactics, rule.MITRETechniques, rule.Tags,
	).Scan(&rule.UpdatedAt)
}

// Delete soft-deletes a detection rule.
func (r *postgresDetectionRuleRepository) Delete(ctx context.Context, id string) error {
	query := `UPDATE meta.detection_rules SET status = 'ARCHIVED', updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	_, err := r.conn.db.ExecContext(ctx, query, id)
	return err
}

// List retrieves rules with filtering and pagination.
func (r *postgresDetectionRuleRepository) List(ctx context.Context, opts QueryOptions) ([]*DetectionRule, int, error) {
	conditions := []string{"status != 'ARCHIVED'", "is_latest = true"}
	args := []interface{}{}
	argIndex := 1

	if opts.TenantID != "" {
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", argIndex))
		args = append(args, opts.TenantID)
		argIndex++
	}

	whereClause := strings.Join(conditions, " AND ")

	// Count
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM meta.detection_rules WHERE %s", whereClause)
	var total int
	if err := r.conn.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	// Data
	dataQuery := fmt.Sprintf(`
		SELECT id, tenant_id, rule_id, name, description, rule_type, severity, rule_content,
			compiled_query, status, is_enabled, mitre_tactics, mitre_techniques, tags,
			version, created_at, updated_at
		FROM meta.detection_rules
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argIndex, argIndex+1)

	args = append(args, opts.Pagination.Limit(), opts.Pagination.Offset())

	var rules []*DetectionRule
	if err := r.conn.db.SelectContext(ctx, &rules, dataQuery, args...); err != nil {
		return nil, 0, err
	}

	return rules, total, nil
}

// Exists checks if a rule exists.
func (r *postgresDetectionRuleRepository) Exists(ctx context.Context, id string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM meta.detection_rules WHERE id = $1 AND status != 'ARCHIVED')`
	var exists bool
	err := r.conn.db.GetContext(ctx, &exists, query, id)
	return exists, err
}

// ListEnabled retrieves enabled rules for a tenant.
func (r *postgresDetectionRuleRepository) ListEnabled(ctx context.Context, tenantID string) ([]*DetectionRule, error) {
	query := `
		SELECT id, tenant_id, rule_id, name, description, rule_type, severity, rule_content,
			compiled_query, status, is_enabled, mitre_tactics, mitre_techniques, tags,
			version, created_at, updated_at
		FROM meta.detection_rules
		WHERE tenant_id = $1 AND is_enabled = true AND status = 'ENABLED' AND is_latest = true
		ORDER BY severity DESC, name
	`

	var rules []*DetectionRule
	err := r.conn.db.SelectContext(ctx, &rules, query, tenantID)
	return rules, err
}

// UpdateStatus updates rule status.
func (r *postgresDetectionRuleRepository) UpdateStatus(ctx context.Context, tenantID, ruleID, status string) error {
	query := `
		UPDATE meta.detection_rules
		SET status = $3, updated_at = CURRENT_TIMESTAMP
		WHERE tenant_id = $1 AND rule_id = $2 AND is_latest = true
	`
	_, err := r.conn.db.ExecContext(ctx, query, tenantID, ruleID, status)
	return err
}

// Enable enables a rule.
func (r *postgresDetectionRuleRepository) Enable(ctx context.Context, tenantID, ruleID string) error {
	query := `
		UPDATE meta.detection_rules
		SET is_enabled = true, status = 'ENABLED', updated_at = CURRENT_TIMESTAMP
		WHERE tenant_id = $1 AND rule_id = $2 AND is_latest = true
	`
	_, err := r.conn.db.ExecContext(ctx, query, tenantID, ruleID)
	return err
}

// Disable disables a rule.
func (r *postgresDetectionRuleRepository) Disable(ctx context.Context, tenantID, ruleID string) error {
	query := `
		UPDATE meta.detection_rules
		SET is_enabled = false, status = 'DISABLED', updated_at = CURRENT_TIMESTAMP
		WHERE tenant_id = $1 AND rule_id = $2 AND is_latest = true
	`
	_, err := r.conn.db.ExecContext(ctx, query, tenantID, ruleID)
	return err
}

// IncrementExecutions increments rule execution counters.
func (r *postgresDetectionRuleRepository) IncrementExecutions(ctx context.Context, tenantID, ruleID string, matches int64) error {
	query := `
		UPDATE meta.detection_rules
		SET executions_total = executions_total + 1,
			matches_total = matches_total + $3,
			last_executed_at = CURRENT_TIMESTAMP
		WHERE tenant_id = $1 AND rule_id = $2 AND is_latest = true
	`
	_, err := r.conn.db.ExecContext(ctx, query, tenantID, ruleID, matches)
	return err
}

// CreateVersion creates a new version of a rule.
func (r *postgresDetectionRuleRepository) CreateVersion(ctx context.Context, rule *DetectionRule) error {
	// Start transaction
	return r.conn.WithTransaction(ctx, func(ctx context.Context, tx Transaction) error {
		pgTx := tx.(*pgTransaction)

		// Set old version as not latest
		_, err := pgTx.tx.ExecContext(ctx, `
			UPDATE meta.detection_rules
			SET is_latest = false
			WHERE tenant_id = $1 AND rule_id = $2 AND is_latest = true
		`, rule.TenantID, rule.RuleID)
		if err != nil {
			return err
		}

		// Insert new version
		rule.ID = "" // Generate new ID
		rule.Version++
		return r.Create(ctx, rule)
	})
}

// GetVersions retrieves all versions of a rule.
func (r *postgresDetectionRuleRepository) GetVersions(ctx context.Context, tenantID, ruleID string) ([]*DetectionRule, error) {
	query := `
		SELECT id, tenant_id, rule_id, name, description, rule_type, severity, rule_content,
			compiled_query, status, is_enabled, mitre_tactics, mitre_techniques, tags,
			version, created_at, updated_at
		FROM meta.detection_rules
		WHERE tenant_id = $1 AND rule_id = $2
		ORDER BY version DESC
	`

	var rules []*DetectionRule
	err := r.conn.db.SelectContext(ctx, &rules, query, tenantID, ruleID)
	return rules, err
}

// postgresPlaybookRepository implements PlaybookRepository.
type postgresPlaybookRepository struct {
	conn *PostgresConn
}

// NewPostgresPlaybookRepository creates a new PostgreSQL playbook repository.
func NewPostgresPlaybookRepository(conn *PostgresConn) PlaybookRepository {
	return &postgresPlaybookRepository{conn: conn}
}

type playbookRow struct {
	TenantEntity
	Name             string         `db:"name"`
	DisplayName      string         `db:"display_name"`
	Description      string         `db:"description"`
	Category         string         `db:"category"`
	Definition       []byte         `db:"definition"`
	TriggerType      string         `db:"trigger_type"`
	TriggerConfig    []byte         `db:"trigger_config"`
	Status           string         `db:"status"`
	IsEnabled        bool           `db:"is_enabled"`
	RequiresApproval bool           `db:"requires_approval"`
	ExecutionCount   int64          `db:"execution_count"`
	SuccessCount     int64          `db:"success_count"`
	FailureCount     int64          `db:"failure_count"`
	Version          int            `db:"version"`
	Tags             pq.StringArray `db:"tags"`
}

func (row *playbookRow) toPlaybook() (*Playbook, error) {
	pb := &Playbook{
		TenantEntity:     row.TenantEntity,
		Name:             row.Name,
		DisplayName:      row.DisplayName,
		Description:      row.Description,
		Category:         row.Category,
		TriggerType:      row.TriggerType,
		Status:           row.Status,
		IsEnabled:        row.IsEnabled,
		RequiresApproval: row.RequiresApproval,
		ExecutionCount:   row.ExecutionCount,
		SuccessCount:     row.SuccessCount,
		FailureCount:     row.FailureCount,
		Version:          row.Version,
		Tags:             []string(row.Tags),
	}
	if len(row.Definition) > 0 {
		if err := json.Unmarshal(row.Definition, &pb.Definition); err != nil {
			return nil, fmt.Errorf("unmarshal playbook definition: %w", err)
		}
	}
	if len(row.TriggerConfig) > 0 {
		if err := json.Unmarshal(row.TriggerConfig, &pb.TriggerConfig); err != nil {
			return nil, fmt.Errorf("unmarshal playbook trigger config: %w", err)
		}
	}
	return pb, nil
}

const playbookColumns = `id, tenant_id, name, display_name, description, category, definition,
	trigger_type, trigger_config, status, is_enabled, requires_approval, execution_count,
	success_count, failure_count, version, tags, created_at, updated_at`

// Create creates a new playbook.
func (r *postgresPlaybookRepository) Create(ctx context.Context, pb *Playbook) error {
	definition, err := json.Marshal(pb.Definition)
	if err != nil {
		return fmt.Errorf("marshal playbook definition: %w", err)
	}
	triggerConfig, err := json.Marshal(pb.TriggerConfig)
	if err != nil {
		return fmt.Errorf("marshal playbook trigger config: %w", err)
	}

	query := `
		INSERT INTO meta.playbooks (
			id, tenant_id, name, display_name, description, category, definition,
			trigger_type, trigger_config, status, is_enabled, requires_approval, version, tags
		) VALUES (
			COALESCE(NULLIF($1, ''), uuid_generate_v4()::text), $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13, $14
		)
		RETURNING id, created_at, updated_at
	`

	return r.conn.db.QueryRowContext(ctx, query,
		pb.ID, pb.TenantID, pb.Name, pb.DisplayName, pb.Description, pb.Category, definition,
		pb.TriggerType, triggerConfig, pb.Status, pb.IsEnabled, pb.RequiresApproval, pb.Version,
		pq.Array(pb.Tags),
	).Scan(&pb.ID, &pb.CreatedAt, &pb.UpdatedAt)
}

// GetByID retrieves a playbook by ID.
func (r *postgresPlaybookRepository) GetByID(ctx context.Context, id string) (*Playbook, error) {
	query := fmt.Sprintf(`SELECT %s FROM meta.playbooks WHERE id = $1 AND status != 'ARCHIVED'`, playbookColumns)

	var row playbookRow
	if err := r.conn.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toPlaybook()
}

// GetByName retrieves a playbook by name.
func (r *postgresPlaybookRepository) GetByName(ctx context.Context, tenantID, name string) (*Playbook, error) {
	query := fmt.Sprintf(`SELECT %s FROM meta.playbooks WHERE tenant_id = $1 AND name = $2 AND status != 'ARCHIVED'`, playbookColumns)

	var row playbookRow
	if err := r.conn.db.GetContext(ctx, &row, query, tenantID, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toPlaybook()
}

// Update updates an existing playbook.
func (r *postgresPlaybookRepository) Update(ctx context.Context, pb *Playbook) error {
	definition, err := json.Marshal(pb.Definition)
	if err != nil {
		return fmt.Errorf("marshal playbook definition: %w", err)
	}
	triggerConfig, err := json.Marshal(pb.TriggerConfig)
	if err != nil {
		return fmt.Errorf("marshal playbook trigger config: %w", err)
	}

	query := `
		UPDATE meta.playbooks
		SET name = $2, display_name = $3, description = $4, category = $5, definition = $6,
			trigger_type = $7, trigger_config = $8, is_enabled = $9, requires_approval = $10,
			tags = $11, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING version, updated_at
	`

	return r.conn.db.QueryRowContext(ctx, query,
		pb.ID, pb.Name, pb.DisplayName, pb.Description, pb.Category, definition,
		pb.TriggerType, triggerConfig, pb.IsEnabled, pb.RequiresApproval, pq.Array(pb.Tags),
	).Scan(&pb.Version, &pb.UpdatedAt)
}

// Delete soft-deletes a playbook.
func (r *postgresPlaybookRepository) Delete(ctx context.Context, id string) error {
	query := `UPDATE meta.playbooks SET status = 'ARCHIVED', is_enabled = false, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	_, err := r.conn.db.ExecContext(ctx, query, id)
	return err
}

// List retrieves playbooks with filtering and pagination.
func (r *postgresPlaybookRepository) List(ctx context.Context, opts QueryOptions) ([]*Playbook, int, error) {
	conditions := []string{"status != 'ARCHIVED'"}
	args := []interface{}{}
	argIndex := 1

	if opts.TenantID != "" {
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", argIndex))
		args = append(args, opts.TenantID)
		argIndex++
	}

	whereClause := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM meta.playbooks WHERE %s", whereClause)
	var total int
	if err := r.conn.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	dataQuery := fmt.Sprintf(`
		SELECT %s FROM meta.playbooks
		WHERE %s
		ORDER BY updated_at DESC
		LIMIT $%d OFFSET $%d
	`, playbookColumns, whereClause, argIndex, argIndex+1)
	args = append(args, opts.Pagination.Limit(), opts.Pagination.Offset())

	var rows []playbookRow
	if err := r.conn.db.SelectContext(ctx, &rows, dataQuery, args...); err != nil {
		return nil, 0, err
	}

	playbooks := make([]*Playbook, 0, len(rows))
	for i := range rows {
		pb, err := rows[i].toPlaybook()
		if err != nil {
			return nil, 0, err
		}
		playbooks = append(playbooks, pb)
	}

	return playbooks, total, nil
}

// Exists checks if a playbook exists.
func (r *postgresPlaybookRepository) Exists(ctx context.Context, id string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM meta.playbooks WHERE id = $1 AND status != 'ARCHIVED')`
	var exists bool
	err := r.conn.db.GetContext(ctx, &exists, query, id)
	return exists, err
}

// ListEnabled retrieves enabled playbooks for a tenant.
func (r *postgresPlaybookRepository) ListEnabled(ctx context.Context, tenantID string) ([]*Playbook, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM meta.playbooks
		WHERE tenant_id = $1 AND is_enabled = true AND status != 'ARCHIVED'
		ORDER BY name
	`, playbookColumns)

	var rows []playbookRow
	if err := r.conn.db.SelectContext(ctx, &rows, query, tenantID); err != nil {
		return nil, err
	}

	playbooks := make([]*Playbook, 0, len(rows))
	for i := range rows {
		pb, err := rows[i].toPlaybook()
		if err != nil {
			return nil, err
		}
		playbooks = append(playbooks, pb)
	}
	return playbooks, nil
}

// ListByTrigger retrieves enabled playbooks matching a trigger type.
func (r *postgresPlaybookRepository) ListByTrigger(ctx context.Context, tenantID, triggerType string) ([]*Playbook, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM meta.playbooks
		WHERE tenant_id = $1 AND trigger_type = $2 AND is_enabled = true AND status != 'ARCHIVED'
		ORDER BY name
	`, playbookColumns)

	var rows []playbookRow
	if err := r.conn.db.SelectContext(ctx, &rows, query, tenantID, triggerType); err != nil {
		return nil, err
	}

	playbooks := make([]*Playbook, 0, len(rows))
	for i := range rows {
		pb, err := rows[i].toPlaybook()
		if err != nil {
			return nil, err
		}
		playbooks = append(playbooks, pb)
	}
	return playbooks, nil
}

// UpdateStatus updates a playbook's status.
func (r *postgresPlaybookRepository) UpdateStatus(ctx context.Context, tenantID, playbookID, status string) error {
	query := `
		UPDATE meta.playbooks
		SET status = $3, updated_at = CURRENT_TIMESTAMP
		WHERE tenant_id = $1 AND id = $2
	`
	_, err := r.conn.db.ExecContext(ctx, query, tenantID, playbookID, status)
	return err
}

// Enable enables a playbook.
func (r *postgresPlaybookRepository) Enable(ctx context.Context, tenantID, playbookID string) error {
	query := `UPDATE meta.playbooks SET is_enabled = true, updated_at = CURRENT_TIMESTAMP WHERE tenant_id = $1 AND id = $2`
	_, err := r.conn.db.ExecContext(ctx, query, tenantID, playbookID)
	return err
}

// Disable disables a playbook.
func (r *postgresPlaybookRepository) Disable(ctx context.Context, tenantID, playbookID string) error {
	query := `UPDATE meta.playbooks SET is_enabled = false, updated_at = CURRENT_TIMESTAMP WHERE tenant_id = $1 AND id = $2`
	_, err := r.conn.db.ExecContext(ctx, query, tenantID, playbookID)
	return err
}

// IncrementExecution increments a playbook's run counters.
func (r *postgresPlaybookRepository) IncrementExecution(ctx context.Context, tenantID, playbookID string, success bool) error {
	column := "failure_count"
	if success {
		column = "success_count"
	}
	query := fmt.Sprintf(`
		UPDATE meta.playbooks
		SET execution_count = execution_count + 1, %s = %s + 1
		WHERE tenant_id = $1 AND id = $2
	`, column, column)
	_, err := r.conn.db.ExecContext(ctx, query, tenantID, playbookID)
	return err
}

// CreateVersion creates a new version of a playbook, archiving the prior one.
func (r *postgresPlaybookRepository) CreateVersion(ctx context.Context, pb *Playbook) error {
	return r.conn.WithTransaction(ctx, func(ctx context.Context, tx Transaction) error {
		pgTx := tx.(*pgTransaction)

		_, err := pgTx.tx.ExecContext(ctx, `
			UPDATE meta.playbooks SET status = 'ARCHIVED' WHERE tenant_id = $1 AND name = $2 AND status != 'ARCHIVED'
		`, pb.TenantID, pb.Name)
		if err != nil {
			return err
		}

		pb.ID = ""
		pb.Version++
		return r.Create(ctx, pb)
	})
}

// postgresPlaybookRunRepository implements PlaybookRunRepository.
type postgresPlaybookRunRepository struct {
	conn *PostgresConn
}

// NewPostgresPlaybookRunRepository creates a new PostgreSQL playbook run log repository.
func NewPostgresPlaybookRunRepository(conn *PostgresConn) PlaybookRunRepository {
	return &postgresPlaybookRunRepository{conn: conn}
}

// Append writes one run log row. The log is append-only: there is no Update or Delete.
func (r *postgresPlaybookRunRepository) Append(ctx context.Context, run *PlaybookRun) error {
	query := `
		INSERT INTO meta.playbook_runs (
			id, tenant_id, playbook_id, alert_id, action_name, action_type, status,
			duration_ms, error, created_at
		) VALUES (
			COALESCE(NULLIF($1, ''), uuid_generate_v4()::text), $2, $3, $4, $5, $6, $7,
			$8, $9, CURRENT_TIMESTAMP
		)
		RETURNING id, created_at
	`
	return r.conn.db.QueryRowContext(ctx, query,
		run.ID, run.TenantID, run.PlaybookID, run.AlertID, run.ActionName, run.ActionType,
		run.Status, run.DurationMS, run.Error,
	).Scan(&run.ID, &run.CreatedAt)
}

// ListByAlert retrieves every action run recorded against an alert.
func (r *postgresPlaybookRunRepository) ListByAlert(ctx context.Context, tenantID, alertID string) ([]*PlaybookRun, error) {
	query := `
		SELECT id, tenant_id, playbook_id, alert_id, action_name, action_type, status,
			duration_ms, error, created_at, created_at AS updated_at
		FROM meta.playbook_runs
		WHERE tenant_id = $1 AND alert_id = $2
		ORDER BY created_at ASC
	`
	var runs []*PlaybookRun
	err := r.conn.db.SelectContext(ctx, &runs, query, tenantID, alertID)
	return runs, err
}

// ListByPlaybook retrieves a playbook's run history with pagination.
func (r *postgresPlaybookRunRepository) ListByPlaybook(ctx context.Context, tenantID, playbookID string, opts QueryOptions) ([]*PlaybookRun, int, error) {
	var total int
	if err := r.conn.db.GetContext(ctx, &total, `
		SELECT COUNT(*) FROM meta.playbook_runs WHERE tenant_id = $1 AND playbook_id = $2
	`, tenantID, playbookID); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, tenant_id, playbook_id, alert_id, action_name, action_type, status,
			duration_ms, error, created_at, created_at AS updated_at
		FROM meta.playbook_runs
		WHERE tenant_id = $1 AND playbook_id = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	var runs []*PlaybookRun
	if err := r.conn.db.SelectContext(ctx, &runs, query, tenantID, playbookID, opts.Pagination.Limit(), opts.Pagination.Offset()); err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

// postgresCaseRepository implements CaseRepository.
type postgresCaseRepository struct {
	conn *PostgresConn
}

// NewPostgresCaseRepository creates a new PostgreSQL case repository.
func NewPostgresCaseRepository(conn *PostgresConn) CaseRepository {
	return &postgresCaseRepository{conn: conn}
}

const caseColumns = `id, tenant_id, case_number, title, summary, case_type, severity, priority,
	status, resolution, assignee_id, owner_id, alert_count, detected_at, closed_at,
	mitre_tactics, mitre_techniques, tags, created_at, updated_at`

type caseRow struct {
	TenantEntity
	CaseNumber      string         `db:"case_number"`
	Title           string         `db:"title"`
	Summary         string         `db:"summary"`
	CaseType        string         `db:"case_type"`
	Severity        string         `db:"severity"`
	Priority        string         `db:"priority"`
	Status          string         `db:"status"`
	Resolution      string         `db:"resolution"`
	AssigneeID      string         `db:"assignee_id"`
	OwnerID         string         `db:"owner_id"`
	AlertCount      int            `db:"alert_count"`
	DetectedAt      time.Time      `db:"detected_at"`
	ClosedAt        sql.NullTime   `db:"closed_at"`
	MITRETactics    pq.StringArray `db:"mitre_tactics"`
	MITRETechniques pq.StringArray `db:"mitre_techniques"`
	Tags            pq.StringArray `db:"tags"`
}

func (row *caseRow) toCase() *Case {
	c := &Case{
		TenantEntity:    row.TenantEntity,
		CaseNumber:      row.CaseNumber,
		Title:           row.Title,
		Summary:         row.Summary,
		CaseType:        row.CaseType,
		Severity:        row.Severity,
		Priority:        row.Priority,
		Status:          row.Status,
		Resolution:      row.Resolution,
		AssigneeID:      row.AssigneeID,
		OwnerID:         row.OwnerID,
		AlertCount:      row.AlertCount,
		DetectedAt:      row.DetectedAt,
		MITRETactics:    []string(row.MITRETactics),
		MITRETechniques: []string(row.MITRETechniques),
		Tags:            []string(row.Tags),
	}
	if row.ClosedAt.Valid {
		c.ClosedAt = row.ClosedAt.Time
	}
	return c
}

// Create creates a new case.
func (r *postgresCaseRepository) Create(ctx context.Context, c *Case) error {
	query := `
		INSERT INTO meta.cases (
			id, tenant_id, case_number, title, summary, case_type, severity, priority,
			status, resolution, assignee_id, owner_id, detected_at, mitre_tactics,
			mitre_techniques, tags
		) VALUES (
			COALESCE(NULLIF($1, ''), uuid_generate_v4()::text), $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13, $14, $15
		)
		RETURNING id, created_at, updated_at
	`
	return r.conn.db.QueryRowContext(ctx, query,
		c.ID, c.TenantID, c.CaseNumber, c.Title, c.Summary, c.CaseType, c.Severity, c.Priority,
		c.Status, c.Resolution, c.AssigneeID, c.OwnerID, c.DetectedAt,
		pq.Array(c.MITRETactics), pq.Array(c.MITRETechniques), pq.Array(c.Tags),
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

// GetByID retrieves a case by ID.
func (r *postgresCaseRepository) GetByID(ctx context.Context, id string) (*Case, error) {
	query := fmt.Sprintf(`SELECT %s FROM meta.cases WHERE id = $1`, caseColumns)

	var row caseRow
	if err := r.conn.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toCase(), nil
}

// GetByNumber retrieves a case by its human-readable case number.
func (r *postgresCaseRepository) GetByNumber(ctx context.Context, tenantID, caseNumber string) (*Case, error) {
	query := fmt.Sprintf(`SELECT %s FROM meta.cases WHERE tenant_id = $1 AND case_number = $2`, caseColumns)

	var row caseRow
	if err := r.conn.db.GetContext(ctx, &row, query, tenantID, caseNumber); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toCase(), nil
}

// Update updates an existing case.
func (r *postgresCaseRepository) Update(ctx context.Context, c *Case) error {
	query := `
		UPDATE meta.cases
		SET title = $2, summary = $3, case_type = $4, severity = $5, priority = $6,
			status = $7, resolution = $8, assignee_id = $9, owner_id = $10,
			mitre_tactics = $11, mitre_techniques = $12, tags = $13, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
		RETURNING updated_at
	`
	return r.conn.db.QueryRowContext(ctx, query,
		c.ID, c.Title, c.Summary, c.CaseType, c.Severity, c.Priority, c.Status, c.Resolution,
		c.AssigneeID, c.OwnerID, pq.Array(c.MITRETactics), pq.Array(c.MITRETechniques), pq.Array(c.Tags),
	).Scan(&c.UpdatedAt)
}

// Delete removes a case.
func (r *postgresCaseRepository) Delete(ctx context.Context, id string) error {
	_, err := r.conn.db.ExecContext(ctx, `DELETE FROM meta.cases WHERE id = $1`, id)
	return err
}

// List retrieves cases with filtering and pagination.
func (r *postgresCaseRepository) List(ctx context.Context, opts QueryOptions) ([]*Case, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	argIndex := 1

	if opts.TenantID != "" {
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", argIndex))
		args = append(args, opts.TenantID)
		argIndex++
	}

	whereClause := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM meta.cases WHERE %s", whereClause)
	var total int
	if err := r.conn.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	dataQuery := fmt.Sprintf(`
		SELECT %s FROM meta.cases
		WHERE %s
		ORDER BY detected_at DESC
		LIMIT $%d OFFSET $%d
	`, caseColumns, whereClause, argIndex, argIndex+1)
	args = append(args, opts.Pagination.Limit(), opts.Pagination.Offset())

	var rows []caseRow
	if err := r.conn.db.SelectContext(ctx, &rows, dataQuery, args...); err != nil {
		return nil, 0, err
	}

	cases := make([]*Case, 0, len(rows))
	for i := range rows {
		cases = append(cases, rows[i].toCase())
	}
	return cases, total, nil
}

// Exists checks if a case exists.
func (r *postgresCaseRepository) Exists(ctx context.Context, id string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM meta.cases WHERE id = $1)`
	var exists bool
	err := r.conn.db.GetContext(ctx, &exists, query, id)
	return exists, err
}

// UpdateStatus updates a case's status and, when closing, its resolution.
func (r *postgresCaseRepository) UpdateStatus(ctx context.Context, tenantID, caseID, status, resolution string) error {
	query := `
		UPDATE meta.cases
		SET status = $3, resolution = $4, closed_at = CASE WHEN $3 = 'closed' THEN CURRENT_TIMESTAMP ELSE closed_at END,
			updated_at = CURRENT_TIMESTAMP
		WHERE tenant_id = $1 AND id = $2
	`
	_, err := r.conn.db.ExecContext(ctx, query, tenantID, caseID, status, resolution)
	return err
}

// AssignTo assigns a case to an analyst.
func (r *postgresCaseRepository) AssignTo(ctx context.Context, tenantID, caseID, assigneeID string) error {
	query := `UPDATE meta.cases SET assignee_id = $3, updated_at = CURRENT_TIMESTAMP WHERE tenant_id = $1 AND id = $2`
	_, err := r.conn.db.ExecContext(ctx, query, tenantID, caseID, assigneeID)
	return err
}

// LinkAlert links an alert to a case and bumps the case's alert count.
func (r *postgresCaseRepository) LinkAlert(ctx context.Context, tenantID, caseID, alertID string) error {
	return r.conn.WithTransaction(ctx, func(ctx context.Context, tx Transaction) error {
		pgTx := tx.(*pgTransaction)

		_, err := pgTx.tx.ExecContext(ctx, `
			INSERT INTO meta.case_alerts (tenant_id, case_id, alert_id)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
		`, tenantID, caseID, alertID)
		if err != nil {
			return err
		}

		_, err = pgTx.tx.ExecContext(ctx, `
			UPDATE meta.cases SET alert_count = alert_count + 1, updated_at = CURRENT_TIMESTAMP
			WHERE tenant_id = $1 AND id = $2
		`, tenantID, caseID)
		return err
	})
}

// UnlinkAlert removes an alert from a case and decrements its alert count.
func (r *postgresCaseRepository) UnlinkAlert(ctx context.Context, tenantID, caseID, alertID string) error {
	return r.conn.WithTransaction(ctx, func(ctx context.Context, tx Transaction) error {
		pgTx := tx.(*pgTransaction)

		_, err := pgTx.tx.ExecContext(ctx, `
			DELETE FROM meta.case_alerts WHERE tenant_id = $1 AND case_id = $2 AND alert_id = $3
		`, tenantID, caseID, alertID)
		if err != nil {
			return err
		}

		_, err = pgTx.tx.ExecContext(ctx, `
			UPDATE meta.cases SET alert_count = GREATEST(alert_count - 1, 0), updated_at = CURRENT_TIMESTAMP
			WHERE tenant_id = $1 AND id = $2
		`, tenantID, caseID)
		return err
	})
}

// GetAlerts returns the alert IDs linked to a case.
func (r *postgresCaseRepository) GetAlerts(ctx context.Context, tenantID, caseID string) ([]string, error) {
	var alertIDs []string
	err := r.conn.db.SelectContext(ctx, &alertIDs, `
		SELECT alert_id FROM meta.case_alerts WHERE tenant_id = $1 AND case_id = $2
	`, tenantID, caseID)
	return alertIDs, err
}

// AddTimeline appends a timeline entry to a case.
func (r *postgresCaseRepository) AddTimeline(ctx context.Context, tenantID, caseID string, entry *TimelineEntry) error {
	query := `
		INSERT INTO meta.case_timeline (
			id, tenant_id, case_id, event_time, event_type, title, description, actor_id, actor_name
		) VALUES (
			COALESCE(NULLIF($1, ''), uuid_generate_v4()::text), $2, $3, CURRENT_TIMESTAMP, $4, $5, $6, $7, $8
		)
		RETURNING id
	`
	return r.conn.db.QueryRowContext(ctx, query,
		entry.ID, tenantID, caseID, entry.EventType, entry.Title, entry.Description, entry.ActorID, entry.ActorName,
	).Scan(&entry.ID)
}

// GetTimeline retrieves a case's timeline entries.
func (r *postgresCaseRepository) GetTimeline(ctx context.Context, tenantID, caseID string, opts QueryOptions) ([]*TimelineEntry, error) {
	query := `
		SELECT id, case_id, event_time, event_type, title, description, actor_id, actor_name
		FROM meta.case_timeline
		WHERE tenant_id = $1 AND case_id = $2
		ORDER BY event_time ASC
		LIMIT $3 OFFSET $4
	`
	var entries []*TimelineEntry
	err := r.conn.db.SelectContext(ctx, &entries, query, tenantID, caseID, opts.Pagination.Limit(), opts.Pagination.Offset())
	return entries, err
}

// GetStats computes aggregate case statistics for a tenant.
func (r *postgresCaseRepository) GetStats(ctx context.Context, filter CaseFilter) (*CaseStats, error) {
	stats := &CaseStats{CasesByStatus: map[string]int64{}, CasesBySeverity: map[string]int64{}, CasesByType: map[string]int64{}}

	if err := r.conn.db.GetContext(ctx, &stats.TotalCases, `SELECT COUNT(*) FROM meta.cases WHERE tenant_id = $1`, filter.TenantID); err != nil {
		return nil, err
	}
	if err := r.conn.db.GetContext(ctx, &stats.OpenCases, `
		SELECT COUNT(*) FROM meta.cases WHERE tenant_id = $1 AND status != 'closed'
	`, filter.TenantID); err != nil {
		return nil, err
	}

	type countRow struct {
		Key   string `db:"key"`
		Count int64  `db:"count"`
	}
	byStatus := []countRow{}
	if err := r.conn.db.SelectContext(ctx, &byStatus, `
		SELECT status AS key, COUNT(*) AS count FROM meta.cases WHERE tenant_id = $1 GROUP BY status
	`, filter.TenantID); err != nil {
		return nil, err
	}
	for _, row := range byStatus {
		stats.CasesByStatus[row.Key] = row.Count
	}

	bySeverity := []countRow{}
	if err := r.conn.db.SelectContext(ctx, &bySeverity, `
		SELECT severity AS key, COUNT(*) AS count FROM meta.cases WHERE tenant_id = $1 GROUP BY severity
	`, filter.TenantID); err != nil {
		return nil, err
	}
	for _, row := range bySeverity {
		stats.CasesBySeverity[row.Key] = row.Count
	}

	byType := []countRow{}
	if err := r.conn.db.SelectContext(ctx, &byType, `
		SELECT case_type AS key, COUNT(*) AS count FROM meta.cases WHERE tenant_id = $1 GROUP BY case_type
	`, filter.TenantID); err != nil {
		return nil, err
	}
	for _, row := range byType {
		stats.CasesByType[row.Key] = row.Count
	}

	return stats, nil
}
