package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/courtalert/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATEコード。
const uniqueViolation = "23505"

// PostgresSendLogRepo はPostgreSQLを使用した送信ログリポジトリ。
type PostgresSendLogRepo struct {
	db *sql.DB
}

// NewPostgresSendLogRepo はPostgresSendLogRepoを生成する。
func NewPostgresSendLogRepo(db *sql.DB) *PostgresSendLogRepo {
	return &PostgresSendLogRepo{db: db}
}

// Create は送信ログを追記する。
// 同一購読者・同一暦日の日次アラート一意制約に違反した場合はErrDuplicateSendを返す。
func (r *PostgresSendLogRepo) Create(ctx context.Context, log *model.SendLog) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO send_logs (
			id, subscriber_id, email, sent_at,
			facilities_included, slots_included, email_type, transport_message_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))`,
		log.ID, log.SubscriberID, log.Email, log.SentAt,
		pq.Array(log.FacilitiesIncluded), log.SlotsIncluded, string(log.EmailType), log.TransportMessageID,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return ErrDuplicateSend
		}
		return fmt.Errorf("送信ログの追記に失敗しました: %w", err)
	}
	return nil
}

// ListSentSince は指定購読者集合のうち、since以降に指定種別のメールを送信済みの
// 購読者ID集合を返す。購読者数Nによらず必ず1回のクエリで解決する。
func (r *PostgresSendLogRepo) ListSentSince(ctx context.Context, subscriberIDs []string, emailType model.EmailType, since time.Time) (map[string]bool, error) {
	sent := make(map[string]bool)
	if len(subscriberIDs) == 0 {
		return sent, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT subscriber_id FROM send_logs
		 WHERE subscriber_id = ANY($1::uuid[])
		   AND email_type = $2
		   AND sent_at >= $3`,
		pq.Array(subscriberIDs), string(emailType), since,
	)
	if err != nil {
		return nil, fmt.Errorf("送信済み購読者の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("送信ログ行の読み取りに失敗しました: %w", err)
		}
		sent[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("送信ログの走査に失敗しました: %w", err)
	}
	return sent, nil
}

// compile-time interface check
var _ SendLogRepository = (*PostgresSendLogRepo)(nil)
