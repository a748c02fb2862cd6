package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/courtalert/internal/model"
)

// subscriberColumns はSELECT句で取得する購読者のカラム一覧。
const subscriberColumns = `id, email, name,
	extension_granted_at, extension_expires_at,
	selected_facilities, selected_days,
	preferred_start_hour, preferred_end_hour, alert_hour,
	alerts_enabled, unsubscribe_token, unsubscribed_at,
	emails_sent, last_email_sent_at,
	source, ab_group, created_at, updated_at`

// PostgresSubscriberRepo はPostgreSQLを使用した購読者リポジトリ。
type PostgresSubscriberRepo struct {
	db *sql.DB
}

// NewPostgresSubscriberRepo はPostgresSubscriberRepoを生成する。
func NewPostgresSubscriberRepo(db *sql.DB) *PostgresSubscriberRepo {
	return &PostgresSubscriberRepo{db: db}
}

// FindByEmail は正規化済みメールアドレスで購読者を検索する。見つからない場合はnilを返す。
func (r *PostgresSubscriberRepo) FindByEmail(ctx context.Context, email string) (*model.Subscriber, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE email = $1`,
		email,
	)
	sub, err := scanSubscriber(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("メールアドレスによる購読者の検索に失敗しました: %w", err)
	}
	return sub, nil
}

// FindByToken は配信停止トークンで購読者を検索する。見つからない場合はnilを返す。
func (r *PostgresSubscriberRepo) FindByToken(ctx context.Context, token string) (*model.Subscriber, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE unsubscribe_token = $1`,
		token,
	)
	sub, err := scanSubscriber(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("トークンによる購読者の検索に失敗しました: %w", err)
	}
	return sub, nil
}

// Create は購読者を新規作成する。
func (r *PostgresSubscriberRepo) Create(ctx context.Context, sub *model.Subscriber) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO subscribers (
			id, email, name,
			extension_granted_at, extension_expires_at,
			selected_facilities, selected_days,
			preferred_start_hour, preferred_end_hour, alert_hour,
			alerts_enabled, unsubscribe_token,
			emails_sent, source, ab_group, created_at, updated_at
		) VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NULLIF($15, ''), $16, $17)`,
		sub.ID, sub.Email, sub.Name,
		sub.ExtensionGrantedAt, sub.ExtensionExpiresAt,
		pq.Array(sub.SelectedFacilities), pq.Array(toInt64Slice(sub.SelectedDays)),
		sub.PreferredStartHour, sub.PreferredEndHour, sub.AlertHour,
		sub.AlertsEnabled, sub.UnsubscribeToken,
		sub.EmailsSent, sub.Source, sub.ABGroup, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("購読者の作成に失敗しました: %w", err)
	}
	return nil
}

// RenewExtension は再登録時にトライアル期間を更新し、アラートを再有効化する。
func (r *PostgresSubscriberRepo) RenewExtension(ctx context.Context, id string, grantedAt, expiresAt time.Time, name, abGroup string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE subscribers SET
			extension_granted_at = $2,
			extension_expires_at = $3,
			alerts_enabled = TRUE,
			unsubscribed_at = NULL,
			name = COALESCE(NULLIF($4, ''), name),
			ab_group = COALESCE(NULLIF($5, ''), ab_group),
			updated_at = NOW()
		 WHERE id = $1`,
		id, grantedAt, expiresAt, name, abGroup,
	)
	if err != nil {
		return fmt.Errorf("トライアル期間の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("購読者が見つかりません: %s", id)
	}
	return nil
}

// UpdatePreferences は配信設定を部分更新する。nilフィールドは変更しない。
func (r *PostgresSubscriberRepo) UpdatePreferences(ctx context.Context, id string, patch PreferencePatch) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE subscribers SET
			selected_facilities = COALESCE($2, selected_facilities),
			selected_days = COALESCE($3, selected_days),
			preferred_start_hour = COALESCE($4, preferred_start_hour),
			preferred_end_hour = COALESCE($5, preferred_end_hour),
			alert_hour = COALESCE($6, alert_hour),
			updated_at = NOW()
		 WHERE id = $1`,
		id,
		nullableInt64Array(patch.SelectedFacilities),
		nullableIntArray(patch.SelectedDays),
		nullableInt(patch.PreferredStartHour),
		nullableInt(patch.PreferredEndHour),
		nullableInt(patch.AlertHour),
	)
	if err != nil {
		return fmt.Errorf("配信設定の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("購読者が見つかりません: %s", id)
	}
	return nil
}

// Unsubscribe はアラートを無効化し、配信停止日時を記録する。
func (r *PostgresSubscriberRepo) Unsubscribe(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE subscribers SET alerts_enabled = FALSE, unsubscribed_at = $2, updated_at = NOW()
		 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("配信停止の記録に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("購読者が見つかりません: %s", id)
	}
	return nil
}

// ListDueForAlert は指定時刻・曜日に配信すべき購読者を返す。
func (r *PostgresSubscriberRepo) ListDueForAlert(ctx context.Context, hour, dayOfWeek int, now time.Time) ([]*model.Subscriber, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers
		 WHERE alerts_enabled = TRUE
		   AND unsubscribed_at IS NULL
		   AND extension_expires_at > $1
		   AND alert_hour = $2
		   AND $3 = ANY(selected_days)
		 ORDER BY created_at ASC`,
		now, hour, dayOfWeek,
	)
	if err != nil {
		return nil, fmt.Errorf("配信対象購読者の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var subs []*model.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("購読者行の読み取りに失敗しました: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("配信対象購読者の走査に失敗しました: %w", err)
	}
	return subs, nil
}

// RecordSend は送信成功後にemails_sentをインクリメントし、last_email_sent_atを更新する。
func (r *PostgresSubscriberRepo) RecordSend(ctx context.Context, id string, sentAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE subscribers SET emails_sent = emails_sent + 1, last_email_sent_at = $2, updated_at = NOW()
		 WHERE id = $1`,
		id, sentAt,
	)
	if err != nil {
		return fmt.Errorf("送信統計の更新に失敗しました: %w", err)
	}
	return nil
}

// rowScanner はsql.Rowとsql.Rowsの共通Scanインターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanSubscriber は1行分の購読者レコードを読み取る。
func scanSubscriber(row rowScanner) (*model.Subscriber, error) {
	sub := &model.Subscriber{}
	var (
		name           sql.NullString
		abGroup        sql.NullString
		unsubscribedAt sql.NullTime
		lastSentAt     sql.NullTime
		facilities     pq.Int64Array
		days           pq.Int64Array
	)

	err := row.Scan(
		&sub.ID, &sub.Email, &name,
		&sub.ExtensionGrantedAt, &sub.ExtensionExpiresAt,
		&facilities, &days,
		&sub.PreferredStartHour, &sub.PreferredEndHour, &sub.AlertHour,
		&sub.AlertsEnabled, &sub.UnsubscribeToken, &unsubscribedAt,
		&sub.EmailsSent, &lastSentAt,
		&sub.Source, &abGroup, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sub.Name = name.String
	sub.ABGroup = abGroup.String
	sub.SelectedFacilities = []int64(facilities)
	sub.SelectedDays = toIntSlice(days)
	if unsubscribedAt.Valid {
		t := unsubscribedAt.Time
		sub.UnsubscribedAt = &t
	}
	if lastSentAt.Valid {
		t := lastSentAt.Time
		sub.LastEmailSentAt = &t
	}
	return sub, nil
}

// toInt64Slice は[]intを[]int64へ変換する（pq.Array用）。
func toInt64Slice(values []int) []int64 {
	result := make([]int64, len(values))
	for i, v := range values {
		result[i] = int64(v)
	}
	return result
}

// toIntSlice はpq.Int64Arrayを[]intへ変換する。
func toIntSlice(values pq.Int64Array) []int {
	result := make([]int, len(values))
	for i, v := range values {
		result[i] = int(v)
	}
	return result
}

// nullableInt は*intをクエリパラメータへ変換する。nilはSQLのNULLになる。
func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

// nullableInt64Array は*[]int64をクエリパラメータへ変換する。nilはSQLのNULLになる。
func nullableInt64Array(v *[]int64) any {
	if v == nil {
		return nil
	}
	return pq.Array(*v)
}

// nullableIntArray は*[]intをクエリパラメータへ変換する。nilはSQLのNULLになる。
func nullableIntArray(v *[]int) any {
	if v == nil {
		return nil
	}
	return pq.Array(toInt64Slice(*v))
}

// compile-time interface check
var _ SubscriberRepository = (*PostgresSubscriberRepo)(nil)
