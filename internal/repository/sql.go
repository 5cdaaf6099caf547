package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/supportdesk/internal/domain"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// SQLStore implements Store on SQLite or Postgres.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// NewSQLiteStore opens a SQLite store.
func NewSQLiteStore(dsn string) (*SQLStore, error) {
	return Open(DriverSQLite, dsn)
}

// Open connects to the database and runs migrations.
func Open(driver, dsn string) (*SQLStore, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// For in-memory SQLite, multiple connections create separate databases.
		if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
			db.SetMaxOpenConns(1)
			db.SetMaxIdleConns(1)
		}
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	s := &SQLStore{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// migrate runs database migrations.
func (s *SQLStore) migrate() error {
	ts := "DATETIME"
	if s.driver == DriverPostgres {
		ts = "TIMESTAMPTZ"
	}
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			created_at ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			conversation_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT 'New Chat',
			created_at ` + ts + ` NOT NULL,
			updated_at ` + ts + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, updated_at)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(conversation_id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			agent_name TEXT,
			data TEXT,
			created_at ` + ts + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS orders (
			order_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			order_number TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL DEFAULT 'pending',
			items TEXT NOT NULL,
			total TEXT NOT NULL,
			tracking_number TEXT,
			eta TEXT,
			created_at ` + ts + ` NOT NULL,
			updated_at ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS payments (
			payment_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			invoice_number TEXT NOT NULL UNIQUE,
			amount TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'paid',
			items TEXT NOT NULL,
			date TEXT NOT NULL,
			created_at ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			responder TEXT,
			status TEXT NOT NULL,
			started_at ` + ts + ` NOT NULL,
			ended_at ` + ts + `,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_conversation ON runs(conversation_id, started_at)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL REFERENCES runs(run_id),
			ts BIGINT NOT NULL,
			type TEXT NOT NULL,
			payload TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, ts)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders for drivers that use $n.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// EnsureUser inserts the user unless one with the same id exists. It
// reports whether a row was inserted.
func (s *SQLStore) EnsureUser(ctx context.Context, user *domain.User) (bool, error) {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	res, err := s.exec(ctx,
		`INSERT INTO users (user_id, name, email, created_at) VALUES (?, ?, ?, ?) ON CONFLICT (user_id) DO NOTHING`,
		user.ID, user.Name, user.Email, user.CreatedAt.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetUser retrieves a user by ID.
func (s *SQLStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	var u domain.User
	err := s.queryRow(ctx, `SELECT user_id, name, email, created_at FROM users WHERE user_id = ?`, userID).
		Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateConversation creates a new conversation.
func (s *SQLStore) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = conv.CreatedAt
	}
	if conv.Title == "" {
		conv.Title = "New Chat"
	}
	_, err := s.exec(ctx,
		`INSERT INTO conversations (conversation_id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		conv.ID, conv.UserID, conv.Title, conv.CreatedAt.UTC(), conv.UpdatedAt.UTC())
	return err
}

// GetConversation retrieves a conversation by ID.
func (s *SQLStore) GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := s.queryRow(ctx,
		`SELECT conversation_id, user_id, title, created_at, updated_at FROM conversations WHERE conversation_id = ?`,
		conversationID).Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConversations returns a user's conversations, most recently updated first.
func (s *SQLStore) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	rows, err := s.query(ctx,
		`SELECT conversation_id, user_id, title, created_at, updated_at FROM conversations WHERE user_id = ? ORDER BY updated_at DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	convs := []domain.Conversation{}
	for rows.Next() {
		var c domain.Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// TouchConversation bumps updated_at.
func (s *SQLStore) TouchConversation(ctx context.Context, conversationID string) error {
	_, err := s.exec(ctx, `UPDATE conversations SET updated_at = ? WHERE conversation_id = ?`, time.Now().UTC(), conversationID)
	return err
}

// DeleteConversation removes a conversation and its messages.
func (s *SQLStore) DeleteConversation(ctx context.Context, conversationID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM messages WHERE conversation_id = ?`), conversationID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM conversations WHERE conversation_id = ?`), conversationID); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateMessage stores a message.
func (s *SQLStore) CreateMessage(ctx context.Context, msg *domain.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	var data sql.NullString
	if msg.Data != nil {
		b, err := json.Marshal(msg.Data)
		if err != nil {
			return fmt.Errorf("failed to encode message data: %w", err)
		}
		data = sql.NullString{String: string(b), Valid: true}
	}
	_, err := s.exec(ctx,
		`INSERT INTO messages (message_id, conversation_id, role, content, agent_name, data, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, nullString(msg.AgentName), data, msg.CreatedAt.UTC())
	return err
}

// ListMessages returns the newest limit messages of a conversation in
// chronological order. A limit of zero returns all of them.
func (s *SQLStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	query := `SELECT message_id, conversation_id, role, content, agent_name, data, created_at FROM messages WHERE conversation_id = ? ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	msgs, err := s.scanMessages(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// SearchMessages finds a user's messages containing term, case-insensitively.
func (s *SQLStore) SearchMessages(ctx context.Context, userID, term string, limit int) ([]domain.Message, error) {
	query := `SELECT m.message_id, m.conversation_id, m.role, m.content, m.agent_name, m.data, m.created_at
		FROM messages m JOIN conversations c ON c.conversation_id = m.conversation_id
		WHERE c.user_id = ? AND LOWER(m.content) LIKE ?
		ORDER BY m.created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return s.scanMessages(ctx, query, userID, "%"+strings.ToLower(term)+"%")
}

func (s *SQLStore) scanMessages(ctx context.Context, query string, args ...interface{}) ([]domain.Message, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []domain.Message{}
	for rows.Next() {
		var m domain.Message
		var agentName, data sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &agentName, &data, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.AgentName = agentName.String
		if data.Valid && data.String != "" {
			var rd domain.RichData
			if err := json.Unmarshal([]byte(data.String), &rd); err != nil {
				return nil, fmt.Errorf("failed to decode data of message %s: %w", m.ID, err)
			}
			m.Data = &rd
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// CreateOrder stores an order.
func (s *SQLStore) CreateOrder(ctx context.Context, o *domain.OrderRecord) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = o.CreatedAt
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("failed to encode order items: %w", err)
	}
	_, err = s.exec(ctx,
		`INSERT INTO orders (order_id, user_id, order_number, status, items, total, tracking_number, eta, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.UserID, o.OrderNumber, o.Status, string(items), o.Total, nullString(o.TrackingNumber), nullString(o.ETA), o.CreatedAt.UTC(), o.UpdatedAt.UTC())
	if isUniqueViolation(err) {
		return fmt.Errorf("order number %s: %w", o.OrderNumber, domain.ErrDuplicate)
	}
	return err
}

// isUniqueViolation reports whether err is a unique constraint failure on
// either driver.
func isUniqueViolation(err error) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// GetOrderByNumber retrieves one of a user's orders.
func (s *SQLStore) GetOrderByNumber(ctx context.Context, userID, orderNumber string) (*domain.OrderRecord, error) {
	var o domain.OrderRecord
	var items string
	var tracking, eta sql.NullString
	err := s.queryRow(ctx,
		`SELECT order_id, user_id, order_number, status, items, total, tracking_number, eta, created_at, updated_at FROM orders WHERE order_number = ? AND user_id = ?`,
		orderNumber, userID).Scan(&o.ID, &o.UserID, &o.OrderNumber, &o.Status, &items, &o.Total, &tracking, &eta, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(items), &o.Items); err != nil {
		return nil, fmt.Errorf("failed to decode order items: %w", err)
	}
	o.TrackingNumber = tracking.String
	o.ETA = eta.String
	return &o, nil
}

// UpdateOrderStatus sets an order's status. Cancelled orders lose their ETA.
func (s *SQLStore) UpdateOrderStatus(ctx context.Context, orderNumber, status string) error {
	query := `UPDATE orders SET status = ?, updated_at = ? WHERE order_number = ?`
	if status == "cancelled" {
		query = `UPDATE orders SET status = ?, eta = NULL, updated_at = ? WHERE order_number = ?`
	}
	res, err := s.exec(ctx, query, status, time.Now().UTC(), orderNumber)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("order %s not found", orderNumber)
	}
	return nil
}

// CreatePayment stores a payment.
func (s *SQLStore) CreatePayment(ctx context.Context, p *domain.PaymentRecord) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	items, err := json.Marshal(p.Items)
	if err != nil {
		return fmt.Errorf("failed to encode payment items: %w", err)
	}
	_, err = s.exec(ctx,
		`INSERT INTO payments (payment_id, user_id, invoice_number, amount, status, items, date, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.InvoiceNumber, p.Amount, p.Status, string(items), p.Date, p.CreatedAt.UTC())
	return err
}

// GetPaymentByInvoice retrieves one of a user's payments.
func (s *SQLStore) GetPaymentByInvoice(ctx context.Context, userID, invoiceNumber string) (*domain.PaymentRecord, error) {
	var p domain.PaymentRecord
	var items string
	err := s.queryRow(ctx,
		`SELECT payment_id, user_id, invoice_number, amount, status, items, date, created_at FROM payments WHERE invoice_number = ? AND user_id = ?`,
		invoiceNumber, userID).Scan(&p.ID, &p.UserID, &p.InvoiceNumber, &p.Amount, &p.Status, &items, &p.Date, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(items), &p.Items); err != nil {
		return nil, fmt.Errorf("failed to decode payment items: %w", err)
	}
	return &p, nil
}

// CreateRun creates a new run.
func (s *SQLStore) CreateRun(ctx context.Context, run *domain.Run) error {
	_, err := s.exec(ctx,
		`INSERT INTO runs (run_id, conversation_id, responder, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.RunID, run.ConversationID, nullString(run.Responder), run.Status, run.StartedAt.UTC())
	return err
}

// GetRun retrieves a run by ID.
func (s *SQLStore) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	var run domain.Run
	var responder, errData sql.NullString
	var endedAt sql.NullTime
	err := s.queryRow(ctx,
		`SELECT run_id, conversation_id, responder, status, started_at, ended_at, error FROM runs WHERE run_id = ?`,
		runID).Scan(&run.RunID, &run.ConversationID, &responder, &run.Status, &run.StartedAt, &endedAt, &errData)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	run.Responder = responder.String
	if endedAt.Valid {
		run.EndedAt = &endedAt.Time
	}
	if errData.Valid {
		run.Error = json.RawMessage(errData.String)
	}
	return &run, nil
}

// UpdateRunResponder records which responder handled the run.
func (s *SQLStore) UpdateRunResponder(ctx context.Context, runID, responder string) error {
	_, err := s.exec(ctx, `UPDATE runs SET responder = ? WHERE run_id = ?`, responder, runID)
	return err
}

// UpdateRunCompleted updates a run to a terminal state.
func (s *SQLStore) UpdateRunCompleted(ctx context.Context, runID string, status domain.RunStatus, errData []byte) error {
	var errStr sql.NullString
	if errData != nil {
		errStr = sql.NullString{String: string(errData), Valid: true}
	}
	_, err := s.exec(ctx,
		`UPDATE runs SET status = ?, ended_at = ?, error = ? WHERE run_id = ?`,
		status, time.Now().UTC(), errStr, runID)
	return err
}

// CreateEvent creates a new event.
func (s *SQLStore) CreateEvent(ctx context.Context, event *domain.Event) error {
	_, err := s.exec(ctx,
		`INSERT INTO events (event_id, run_id, ts, type, payload) VALUES (?, ?, ?, ?, ?)`,
		event.EventID, event.RunID, event.Ts, event.Type, nullString(string(event.Payload)))
	return err
}

// GetEvents retrieves events for a run.
func (s *SQLStore) GetEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.Event, error) {
	query := `SELECT event_id, run_id, ts, type, payload FROM events WHERE run_id = ?`
	args := []interface{}{runID}

	if afterTs > 0 {
		query += ` AND ts > ?`
		args = append(args, afterTs)
	}
	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			args = append(args, t)
		}
		query += fmt.Sprintf(" AND type IN (%s)", strings.Join(placeholders, ","))
	}

	query += ` ORDER BY ts ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		var event domain.Event
		var payload sql.NullString
		if err := rows.Scan(&event.EventID, &event.RunID, &event.Ts, &event.Type, &payload); err != nil {
			return nil, err
		}
		if payload.Valid && payload.String != "" {
			event.Payload = json.RawMessage(payload.String)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
