package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tfshop-dev/cell-scheduler/backend/internal/domain"
)

// ScheduleRunRecord: 数据库中的一次排程运行
type ScheduleRunRecord struct {
	ID                 int64               `json:"id"`
	ScheduleDate       time.Time           `json:"scheduleDate"`
	ShiftMinutes       int                 `json:"shiftMinutes"`
	RecommendedMethod  string              `json:"recommendedMethod"`
	RecommendedVariant string              `json:"recommendedVariant"`
	Document           *domain.ScheduleRun `json:"document"`
	CreatedAt          time.Time           `json:"createdAt"`
	Version            int32               `json:"-"`
}

// InsertScheduleRun 保存一次排程运行。同一天重跑会覆盖之前的结果。
func (r *Repository) InsertScheduleRun(record *ScheduleRunRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.TransactionTimeout)*time.Second)
	defer cancel()

	document, err := json.Marshal(record.Document)
	if err != nil {
		return err
	}

	tx, err := r.dbpool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// 先把同一天的旧结果删掉
	query := `DELETE FROM schedule_runs WHERE schedule_date = $1`
	if _, err := tx.ExecContext(ctx, query, record.ScheduleDate); err != nil {
		return err
	}

	query = `
		INSERT INTO schedule_runs (schedule_date, shift_minutes, recommended_method, recommended_variant, document)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, version
	`

	if err := tx.QueryRowContext(ctx, query,
		record.ScheduleDate,
		record.ShiftMinutes,
		record.RecommendedMethod,
		record.RecommendedVariant,
		document,
	).Scan(&record.ID, &record.CreatedAt, &record.Version); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	return nil
}

// GetScheduleRunByDate 按排程日取回运行结果
func (r *Repository) GetScheduleRunByDate(scheduleDate time.Time) (*ScheduleRunRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	query := `
		SELECT id, schedule_date, shift_minutes, recommended_method, recommended_variant, document, created_at, version
		FROM schedule_runs
		WHERE schedule_date = $1
	`

	record := &ScheduleRunRecord{}
	var document []byte

	if err := r.dbpool.QueryRowContext(ctx, query, scheduleDate).Scan(
		&record.ID,
		&record.ScheduleDate,
		&record.ShiftMinutes,
		&record.RecommendedMethod,
		&record.RecommendedVariant,
		&document,
		&record.CreatedAt,
		&record.Version,
	); err != nil {
		return nil, err
	}

	record.Document = &domain.ScheduleRun{}
	if err := json.Unmarshal(document, record.Document); err != nil {
		return nil, err
	}

	return record, nil
}

// GetAllScheduleRuns 列出全部运行（不含完整文档，避免一次拖回太多数据）
func (r *Repository) GetAllScheduleRuns() ([]*ScheduleRunRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	query := `
		SELECT id, schedule_date, shift_minutes, recommended_method, recommended_variant, created_at, version
		FROM schedule_runs
		ORDER BY schedule_date DESC
	`

	rows, err := r.dbpool.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*ScheduleRunRecord
	for rows.Next() {
		record := &ScheduleRunRecord{}
		if err := rows.Scan(
			&record.ID,
			&record.ScheduleDate,
			&record.ShiftMinutes,
			&record.RecommendedMethod,
			&record.RecommendedVariant,
			&record.CreatedAt,
			&record.Version,
		); err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}
