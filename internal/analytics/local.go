package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// LocalTable is the table the embedded engine stores views in.
const LocalTable = "page_views"

// PageView mirrors the hosted engine's column layout so the same statements
// run against both engines.
type PageView struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp time.Time `gorm:"column:timestamp;not null;index:idx_page_views_site_time,priority:2"`
	Index1    string    `gorm:"column:index1;size:96;not null;index:idx_page_views_site_time,priority:1"`
	Blob1     string    `gorm:"column:blob1;size:2048;not null"`
	Blob2     string    `gorm:"column:blob2;size:128;not null"`
	Double1   float64   `gorm:"column:double1;not null;default:1"`
}

// TableName specifies the table name for GORM
func (PageView) TableName() string {
	return LocalTable
}

// LocalTransport runs statements in-process against the application database
// and answers with a `{"results": [...]}` envelope.
type LocalTransport struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewLocalTransport(db *gorm.DB, logger *slog.Logger) *LocalTransport {
	return &LocalTransport{db: db, logger: logger}
}

func (t *LocalTransport) Dialect() Dialect {
	return LocalDialect{}
}

func (t *LocalTransport) Query(ctx context.Context, sql string) ([]byte, error) {
	rows, err := t.db.WithContext(ctx).Raw(sql).Rows()
	if err != nil {
		return nil, &RemoteQueryError{Message: err.Error()}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, &RemoteQueryError{Message: err.Error()}
	}

	results := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, &RemoteQueryError{Message: err.Error()}
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &RemoteQueryError{Message: err.Error()}
	}

	body, err := json.Marshal(map[string]any{"results": results})
	if err != nil {
		return nil, fmt.Errorf("encode local analytics result: %w", err)
	}
	return body, nil
}

func (t *LocalTransport) Write(ctx context.Context, view View) error {
	pv := PageView{
		Timestamp: view.At.UTC().Truncate(time.Second),
		Index1:    view.Site,
		Blob1:     view.Path,
		Blob2:     view.Visitor,
		Double1:   view.Weight,
	}
	return sqlite.PerformWrite(t.logger, t.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Create(&pv).Error
	})
}

// PruneBefore deletes stored views older than cutoff and reports how many
// were removed.
func (t *LocalTransport) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := sqlite.PerformWrite(t.logger, t.db.WithContext(ctx), func(tx *gorm.DB) error {
		res := tx.Where("timestamp < ?", cutoff.UTC().Truncate(time.Second)).Delete(&PageView{})
		removed = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("prune page views: %w", err)
	}
	return removed, nil
}
