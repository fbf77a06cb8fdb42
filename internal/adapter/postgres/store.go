package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/NovaLink/internal/domain"
	"github.com/Strob0t/NovaLink/internal/domain/agent"
	"github.com/Strob0t/NovaLink/internal/domain/alert"
	"github.com/Strob0t/NovaLink/internal/domain/command"
	"github.com/Strob0t/NovaLink/internal/domain/message"
	"github.com/Strob0t/NovaLink/internal/domain/session"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Agent types ---

func (s *Store) ListAgentTypes(ctx context.Context) ([]agent.Type, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, icon, color FROM agent_types ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list agent types: %w", err)
	}
	defer rows.Close()

	var types []agent.Type
	for rows.Next() {
		var t agent.Type
		if err := rows.Scan(&t.ID, &t.Name, &t.Icon, &t.Color); err != nil {
			return nil, fmt.Errorf("scan agent type: %w", err)
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

func (s *Store) GetAgentType(ctx context.Context, id int64) (*agent.Type, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, icon, color FROM agent_types WHERE id = $1`, id)

	var t agent.Type
	if err := row.Scan(&t.ID, &t.Name, &t.Icon, &t.Color); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get agent type %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get agent type %d: %w", id, err)
	}
	return &t, nil
}

func (s *Store) CreateAgentType(ctx context.Context, t agent.Type) (*agent.Type, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO agent_types (name, icon, color) VALUES ($1, $2, $3)
		 RETURNING id, name, icon, color`,
		t.Name, t.Icon, t.Color)

	var created agent.Type
	if err := row.Scan(&created.ID, &created.Name, &created.Icon, &created.Color); err != nil {
		return nil, fmt.Errorf("create agent type: %w", err)
	}
	return &created, nil
}

// --- Agents ---

func scanAgent(row pgx.Row) (agent.Agent, error) {
	var a agent.Agent
	err := row.Scan(&a.ID, &a.Name, &a.ProjectID, &a.TypeID, &a.Status,
		&a.Memory, &a.CPU, &a.Uptime, &a.LastActive)
	return a, err
}

const agentColumns = `id, name, project_id, type_id, status, memory, cpu, uptime, last_active`

func (s *Store) ListAgents(ctx context.Context) ([]agent.Agent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+agentColumns+` FROM agents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []agent.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func (s *Store) GetAgent(ctx context.Context, id int64) (*agent.Agent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = $1`, id)

	a, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get agent %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get agent %d: %w", id, err)
	}
	return &a, nil
}

func (s *Store) CreateAgent(ctx context.Context, a agent.Agent) (*agent.Agent, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO agents (name, project_id, type_id, status, memory, cpu, uptime, last_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+agentColumns,
		a.Name, a.ProjectID, a.TypeID, a.Status, a.Memory, a.CPU, a.Uptime, a.LastActive)

	created, err := scanAgent(row)
	if err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}
	return &created, nil
}

func (s *Store) UpdateAgentStatus(ctx context.Context, id int64, status agent.Status) (*agent.Agent, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE agents SET status = $2, last_active = now() WHERE id = $1
		 RETURNING `+agentColumns,
		id, status)

	a, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("update agent %d status: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("update agent %d status: %w", id, err)
	}
	return &a, nil
}

// --- Messages ---

func (s *Store) ListMessages(ctx context.Context, agentID int64) ([]message.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, agent_id, content, type, timestamp FROM messages
		 WHERE agent_id = $1 ORDER BY timestamp, id`, agentID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []message.Message
	for rows.Next() {
		var m message.Message
		if err := rows.Scan(&m.ID, &m.AgentID, &m.Content, &m.Type, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *Store) CreateMessage(ctx context.Context, m message.Message) (*message.Message, error) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO messages (agent_id, content, type, timestamp)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, agent_id, content, type, timestamp`,
		m.AgentID, m.Content, m.Type, m.Timestamp)

	var created message.Message
	if err := row.Scan(&created.ID, &created.AgentID, &created.Content, &created.Type, &created.Timestamp); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return &created, nil
}

// --- Alerts ---

func (s *Store) ListAlerts(ctx context.Context) ([]alert.Alert, error) {
	return s.queryAlerts(ctx,
		`SELECT id, agent_id, message, resolved, timestamp FROM alerts ORDER BY id`)
}

func (s *Store) ListAgentAlerts(ctx context.Context, agentID int64) ([]alert.Alert, error) {
	return s.queryAlerts(ctx,
		`SELECT id, agent_id, message, resolved, timestamp FROM alerts
		 WHERE agent_id = $1 ORDER BY id`, agentID)
}

func (s *Store) queryAlerts(ctx context.Context, sql string, args ...any) ([]alert.Alert, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []alert.Alert
	for rows.Next() {
		var a alert.Alert
		if err := rows.Scan(&a.ID, &a.AgentID, &a.Message, &a.Resolved, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (s *Store) CreateAlert(ctx context.Context, a alert.Alert) (*alert.Alert, error) {
	// Transient alerts carry negative ids and must never reach a table.
	if a.ID < 0 {
		return nil, fmt.Errorf("%w: refusing to persist transient alert", domain.ErrValidation)
	}

	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO alerts (agent_id, message, resolved, timestamp)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, agent_id, message, resolved, timestamp`,
		a.AgentID, a.Message, a.Resolved, a.Timestamp)

	var created alert.Alert
	if err := row.Scan(&created.ID, &created.AgentID, &created.Message, &created.Resolved, &created.Timestamp); err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}
	return &created, nil
}

func (s *Store) ResolveAlert(ctx context.Context, id int64) (*alert.Alert, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE alerts SET resolved = TRUE WHERE id = $1
		 RETURNING id, agent_id, message, resolved, timestamp`, id)

	var a alert.Alert
	if err := row.Scan(&a.ID, &a.AgentID, &a.Message, &a.Resolved, &a.Timestamp); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("resolve alert %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("resolve alert %d: %w", id, err)
	}
	return &a, nil
}

// --- Commands ---

func (s *Store) ListCommands(ctx context.Context, agentID int64) ([]command.Command, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, agent_id, command, executed, timestamp FROM commands
		 WHERE agent_id = $1 ORDER BY id`, agentID)
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	defer rows.Close()

	var cmds []command.Command
	for rows.Next() {
		var c command.Command
		if err := rows.Scan(&c.ID, &c.AgentID, &c.Command, &c.Executed, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		cmds = append(cmds, c)
	}
	return cmds, rows.Err()
}

func (s *Store) CreateCommand(ctx context.Context, c command.Command) (*command.Command, error) {
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO commands (agent_id, command, executed, timestamp)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, agent_id, command, executed, timestamp`,
		c.AgentID, c.Command, c.Executed, c.Timestamp)

	var created command.Command
	if err := row.Scan(&created.ID, &created.AgentID, &created.Command, &created.Executed, &created.Timestamp); err != nil {
		return nil, fmt.Errorf("create command: %w", err)
	}
	return &created, nil
}

func (s *Store) ExecuteCommand(ctx context.Context, id int64) (*command.Command, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE commands SET executed = TRUE WHERE id = $1
		 RETURNING id, agent_id, command, executed, timestamp`, id)

	var c command.Command
	if err := row.Scan(&c.ID, &c.AgentID, &c.Command, &c.Executed, &c.Timestamp); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("execute command %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("execute command %d: %w", id, err)
	}
	return &c, nil
}

// --- Sessions ---

func (s *Store) CreateSession(ctx context.Context, sess session.Session) error {
	claimsJSON, err := json.Marshal(sess.Claims)
	if err != nil {
		return fmt.Errorf("marshal claims: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (id, secret_hash, claims, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		sess.ID, sess.SecretHash, claimsJSON, sess.ExpiresAt, sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*session.Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, secret_hash, claims, expires_at, created_at FROM sessions WHERE id = $1`, id)

	var sess session.Session
	var claimsJSON []byte
	if err := row.Scan(&sess.ID, &sess.SecretHash, &claimsJSON, &sess.ExpiresAt, &sess.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get session: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if err := json.Unmarshal(claimsJSON, &sess.Claims); err != nil {
		return nil, fmt.Errorf("unmarshal claims: %w", err)
	}
	return &sess, nil
}

func (s *Store) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
