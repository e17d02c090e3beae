package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"lifeblocks/api/internal/blocks"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) GetBoard(ctx context.Context, boardID string) (blocks.Board, error) {
	var board blocks.Board
	var order []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, mobile_order, updated_at
		FROM boards
		WHERE id=$1
	`, boardID).Scan(&board.ID, &board.OwnerID, &board.Title, &order, &board.UpdatedAt)
	if err != nil {
		return blocks.Board{}, err
	}
	// A corrupt order is rebuilt by reconciliation.
	if err := json.Unmarshal(order, &board.MobileOrder); err != nil {
		board.MobileOrder = nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT doc FROM blocks
		WHERE board_id=$1
		ORDER BY position ASC, id ASC
	`, boardID)
	if err != nil {
		return blocks.Board{}, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()

	board.Blocks = make([]blocks.Block, 0)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return blocks.Board{}, fmt.Errorf("scan block: %w", err)
		}
		block, err := blocks.Decode(doc)
		if err != nil {
			return blocks.Board{}, fmt.Errorf("decode block: %w", err)
		}
		board.Blocks = append(board.Blocks, block)
	}
	if err := rows.Err(); err != nil {
		return blocks.Board{}, fmt.Errorf("iterate blocks: %w", err)
	}
	return board, nil
}

// ListBoards returns boards the user owns or is a member of.
func (s *PostgresStore) ListBoards(ctx context.Context, userID string) ([]BoardSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.owner_id, b.title, COALESCE(m.role, 'owner'),
			(SELECT COUNT(*) FROM blocks bl WHERE bl.board_id = b.id),
			b.updated_at
		FROM boards b
		LEFT JOIN board_members m ON m.board_id = b.id AND m.user_id = $1
		WHERE b.owner_id = $1 OR m.user_id IS NOT NULL
		ORDER BY b.updated_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()

	items := make([]BoardSummary, 0)
	for rows.Next() {
		var item BoardSummary
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.Title, &item.Role, &item.BlockCount, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate boards: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountBoards(ctx context.Context, ownerID string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM boards WHERE owner_id=$1`, ownerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count boards: %w", err)
	}
	return count, nil
}

// CreateBoard inserts the board, its owner membership and any starter blocks.
func (s *PostgresStore) CreateBoard(ctx context.Context, board blocks.Board) error {
	order, err := json.Marshal(nonNilOrder(board.MobileOrder))
	if err != nil {
		return fmt.Errorf("encode mobile order: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create board: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO boards (id, owner_id, title, mobile_order)
		VALUES ($1, $2, $3, $4::jsonb)
	`, board.ID, board.OwnerID, board.Title, string(order)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert board: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO board_members (board_id, user_id, role)
		VALUES ($1, $2, 'owner')
		ON CONFLICT (board_id, user_id) DO UPDATE SET role='owner'
	`, board.ID, board.OwnerID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert owner membership: %w", err)
	}
	for i, block := range board.Blocks {
		if err := insertBlock(ctx, tx, board.ID, i, block); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create board: %w", err)
	}
	return nil
}

func insertBlock(ctx context.Context, db execer, boardID string, position int, block blocks.Block) error {
	doc, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("encode block %s: %w", block.ID, err)
	}
	if _, err := db.ExecContext(ctx, `
		INSERT INTO blocks (board_id, id, type, position, doc, search_text)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)
	`, boardID, block.ID, string(block.Type), position, string(doc), blocks.PlainText(block.Content)); err != nil {
		return fmt.Errorf("insert block %s: %w", block.ID, err)
	}
	return nil
}

func (s *PostgresStore) DeleteBoard(ctx context.Context, boardID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM boards WHERE id=$1`, boardID)
	return requireRow("delete board", result, err)
}

// UpsertBlock writes the whole block document. New blocks go to the end of
// the board; concurrent writers to the same block are last write wins.
func (s *PostgresStore) UpsertBlock(ctx context.Context, boardID string, block blocks.Block) error {
	doc, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("encode block %s: %w", block.ID, err)
	}
	result, err := s.db.ExecContext(ctx, `
		WITH touched AS (
			UPDATE boards SET updated_at=NOW() WHERE id=$1 RETURNING id
		)
		INSERT INTO blocks (board_id, id, type, position, doc, search_text)
		SELECT touched.id, $2, $3,
			COALESCE((SELECT MAX(position) + 1 FROM blocks WHERE board_id=$1), 0),
			$4::jsonb, $5
		FROM touched
		ON CONFLICT (board_id, id) DO UPDATE
		SET type=EXCLUDED.type, doc=EXCLUDED.doc, search_text=EXCLUDED.search_text, updated_at=NOW()
	`, boardID, block.ID, string(block.Type), string(doc), blocks.PlainText(block.Content))
	return requireRow("upsert block", result, err)
}

func (s *PostgresStore) DeleteBlock(ctx context.Context, boardID, blockID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM blocks WHERE board_id=$1 AND id=$2`, boardID, blockID)
	return requireRow("delete block", result, err)
}

func (s *PostgresStore) SaveMobileOrder(ctx context.Context, boardID string, order []string) error {
	raw, err := json.Marshal(nonNilOrder(order))
	if err != nil {
		return fmt.Errorf("encode mobile order: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE boards SET mobile_order=$2::jsonb, updated_at=NOW() WHERE id=$1
	`, boardID, string(raw))
	return requireRow("save mobile order", result, err)
}

func (s *PostgresStore) SetBlockHidden(ctx context.Context, boardID, blockID string, hidden bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE blocks
		SET doc=jsonb_set(doc, '{mobileHidden}', to_jsonb($3::boolean)), updated_at=NOW()
		WHERE board_id=$1 AND id=$2
	`, boardID, blockID, hidden)
	return requireRow("set block hidden", result, err)
}

const userColumns = `id, email, display_name, password_hash, role, subscription_status, subscription_plan, stripe_customer_id, storage_used, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var user User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&user.Role,
		&user.Subscription.Status,
		&user.Subscription.Plan,
		&user.Subscription.CustomerID,
		&user.StorageUsed,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func (s *PostgresStore) GetUser(ctx context.Context, userID string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID))
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email)=LOWER($1)`, email))
}

func (s *PostgresStore) GetUserByCustomer(ctx context.Context, customerID string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE stripe_customer_id=$1`, customerID))
}

// UpsertUser creates the user or refreshes its profile. Empty display name
// and password hash keep the stored values; role and billing fields are only
// set on insert.
func (s *PostgresStore) UpsertUser(ctx context.Context, user User) (User, error) {
	saved, err := scanUser(s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, display_name, password_hash, role)
		VALUES ($1, $2, $3, $4, COALESCE(NULLIF($5, ''), 'user'))
		ON CONFLICT (id) DO UPDATE SET
			email=EXCLUDED.email,
			display_name=CASE WHEN EXCLUDED.display_name='' THEN users.display_name ELSE EXCLUDED.display_name END,
			password_hash=CASE WHEN EXCLUDED.password_hash='' THEN users.password_hash ELSE EXCLUDED.password_hash END,
			updated_at=NOW()
		RETURNING `+userColumns,
		user.ID, user.Email, user.DisplayName, user.PasswordHash, user.Role))
	if err != nil {
		return User{}, fmt.Errorf("upsert user: %w", err)
	}
	return saved, nil
}

// UpdateSubscription stores the billing state. An empty customer id keeps the
// stored one.
func (s *PostgresStore) UpdateSubscription(ctx context.Context, userID string, sub Subscription) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET subscription_status=$2,
			subscription_plan=$3,
			stripe_customer_id=CASE WHEN $4='' THEN stripe_customer_id ELSE $4 END,
			updated_at=NOW()
		WHERE id=$1
	`, userID, sub.Status, sub.Plan, sub.CustomerID)
	return requireRow("update subscription", result, err)
}

// AddStorageUsed adjusts the byte counter, never below zero, and returns the
// new total.
func (s *PostgresStore) AddStorageUsed(ctx context.Context, userID string, delta int64) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE users SET storage_used=GREATEST(storage_used + $2, 0), updated_at=NOW()
		WHERE id=$1
		RETURNING storage_used
	`, userID, delta).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *PostgresStore) ListMembers(ctx context.Context, boardID string) ([]Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.board_id, m.user_id, m.role, u.email, u.display_name, m.created_at
		FROM board_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.board_id=$1
		ORDER BY m.created_at ASC
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	items := make([]Member, 0)
	for rows.Next() {
		var item Member
		if err := rows.Scan(&item.BoardID, &item.UserID, &item.Role, &item.Email, &item.DisplayName, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return items, nil
}

// MemberRole returns "" when the user has no role on the board.
func (s *PostgresStore) MemberRole(ctx context.Context, boardID, userID string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT role FROM board_members WHERE board_id=$1 AND user_id=$2`, boardID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read member role: %w", err)
	}
	return role, nil
}

func (s *PostgresStore) UpsertMember(ctx context.Context, boardID, userID, role string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO board_members (board_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (board_id, user_id) DO UPDATE SET role=EXCLUDED.role
	`, boardID, userID, role)
	if err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveMember(ctx context.Context, boardID, userID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM board_members WHERE board_id=$1 AND user_id=$2`, boardID, userID)
	return requireRow("remove member", result, err)
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// requireRow turns a write that touched nothing into sql.ErrNoRows.
func requireRow(op string, result sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func nonNilOrder(order []string) []string {
	if order == nil {
		return []string{}
	}
	return order
}
