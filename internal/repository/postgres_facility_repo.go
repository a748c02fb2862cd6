package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/courtalert/internal/model"
)

// PostgresFacilityRepo はPostgreSQLを使用した施設リポジトリ。
// 施設データはこのコアにとって読み取り専用。
type PostgresFacilityRepo struct {
	db *sql.DB
}

// NewPostgresFacilityRepo はPostgresFacilityRepoを生成する。
func NewPostgresFacilityRepo(db *sql.DB) *PostgresFacilityRepo {
	return &PostgresFacilityRepo{db: db}
}

// ListAll は全施設を返す。
func (r *PostgresFacilityRepo) ListAll(ctx context.Context) ([]*model.Facility, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, address, map_url, available_intervals FROM facilities ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("施設一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var facilities []*model.Facility
	for rows.Next() {
		f := &model.Facility{}
		if err := rows.Scan(&f.ID, &f.Title, &f.Address, &f.MapURL, &f.AvailableIntervals); err != nil {
			return nil, fmt.Errorf("施設行の読み取りに失敗しました: %w", err)
		}
		facilities = append(facilities, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("施設一覧の走査に失敗しました: %w", err)
	}
	return facilities, nil
}

// compile-time interface check
var _ FacilityRepository = (*PostgresFacilityRepo)(nil)
