package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/courtalert/internal/model"
)

// PostgresSignupAttemptRepo はPostgreSQLを使用した登録試行ログリポジトリ。
type PostgresSignupAttemptRepo struct {
	db *sql.DB
}

// NewPostgresSignupAttemptRepo はPostgresSignupAttemptRepoを生成する。
func NewPostgresSignupAttemptRepo(db *sql.DB) *PostgresSignupAttemptRepo {
	return &PostgresSignupAttemptRepo{db: db}
}

// Create は登録試行を1件追記する。
func (r *PostgresSignupAttemptRepo) Create(ctx context.Context, attempt *model.SignupAttempt) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO signup_attempts (id, ip_address, fingerprint, email, blocked, created_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6)`,
		attempt.ID, attempt.IPAddress, attempt.Fingerprint, attempt.Email, attempt.Blocked, attempt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("登録試行の追記に失敗しました: %w", err)
	}
	return nil
}

// CountByIPSince は指定IPのsince以降の非ブロック試行数を返す。
func (r *PostgresSignupAttemptRepo) CountByIPSince(ctx context.Context, ip string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM signup_attempts
		 WHERE ip_address = $1 AND blocked = FALSE AND created_at >= $2`,
		ip, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("IP別試行数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// CountByFingerprintSince は指定フィンガープリントのsince以降の非ブロック試行数を返す。
func (r *PostgresSignupAttemptRepo) CountByFingerprintSince(ctx context.Context, fingerprint string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM signup_attempts
		 WHERE fingerprint = $1 AND blocked = FALSE AND created_at >= $2`,
		fingerprint, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("フィンガープリント別試行数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ SignupAttemptRepository = (*PostgresSignupAttemptRepo)(nil)
