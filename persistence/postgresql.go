// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq" // PostgreSQL 驱动

	"github.com/wfunc/poisonheart/models"
)

// PostgreSQL 数据库实现, plain database/sql over lib/pq.
type PostgreSQL struct {
	db *sql.DB
}

var _ Database = (*PostgreSQL)(nil)

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	db, err := sql.Open("postgres", dsn(host, port, user, password, dbname))
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	// 设置连接池参数
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return NewSQLDatabase(ctx, db)
}

// NewSQLDatabase wraps an open *sql.DB and creates the archive table.
// It takes ownership of db and closes it when the table cannot be created.
func NewSQLDatabase(ctx context.Context, db *sql.DB) (*PostgreSQL, error) {
	if err := initTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgreSQL{db: db}, nil
}

// initTables 初始化数据库表结构
func initTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS game_records (
            id SERIAL PRIMARY KEY,
            room_id VARCHAR(255) NOT NULL,
            winner_id VARCHAR(255) NOT NULL,
            winner_name VARCHAR(255) NOT NULL,
            loser_id VARCHAR(255) NOT NULL,
            loser_name VARCHAR(255) NOT NULL,
            winner_secret VARCHAR(16) NOT NULL,
            loser_secret VARCHAR(16) NOT NULL,
            draws INTEGER NOT NULL DEFAULT 0,
            finished_at TIMESTAMPTZ NOT NULL,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            deleted_at TIMESTAMPTZ
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_game_records_room_id ON game_records(room_id)`)
	return err
}

// SaveGameRecord 保存游戏记录
func (p *PostgreSQL) SaveGameRecord(ctx context.Context, r models.GameRecord) error {
	_, err := p.db.ExecContext(ctx, `
        INSERT INTO game_records
            (room_id, winner_id, winner_name, loser_id, loser_name, winner_secret, loser_secret, draws, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		r.RoomID, r.WinnerID, r.WinnerName, r.LoserID, r.LoserName,
		r.WinnerSecret, r.LoserSecret, r.Draws, r.FinishedAt,
	)
	return err
}

// ListGameRecords 查询游戏记录
func (p *PostgreSQL) ListGameRecords(ctx context.Context, roomID string, limit int) ([]models.GameRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
        SELECT room_id, winner_id, winner_name, loser_id, loser_name, winner_secret, loser_secret, draws, finished_at
        FROM game_records
        WHERE deleted_at IS NULL AND ($1 = '' OR room_id = $1)
        ORDER BY finished_at DESC
        LIMIT $2`,
		roomID, normalizeLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.GameRecord
	for rows.Next() {
		var r models.GameRecord
		if err := rows.Scan(&r.RoomID, &r.WinnerID, &r.WinnerName, &r.LoserID, &r.LoserName,
			&r.WinnerSecret, &r.LoserSecret, &r.Draws, &r.FinishedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close 关闭数据库连接
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
