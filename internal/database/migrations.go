package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema описывает таблицы активностей и купонов.
// Уникальность (activity_id, user_id) защищает от повторной доставки события захвата.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS activity (
		id                    BIGINT PRIMARY KEY,
		name                  VARCHAR(64) NOT NULL,
		type                  SMALLINT NOT NULL,
		discount_amount       NUMERIC(12, 2) NOT NULL DEFAULT 0,
		amount_condition      NUMERIC(12, 2) NOT NULL DEFAULT 0,
		discount_rate         INT NOT NULL DEFAULT 0,
		validity_days         INT NOT NULL,
		distribute_start_time TIMESTAMPTZ NOT NULL,
		distribute_end_time   TIMESTAMPTZ NOT NULL,
		total_num             INT NOT NULL,
		stock_num             INT NOT NULL,
		status                SMALLINT NOT NULL,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT activity_stock_bounds CHECK (stock_num >= 0 AND stock_num <= total_num)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_activity_status_start ON activity (status, distribute_start_time)`,
	`CREATE INDEX IF NOT EXISTS idx_activity_status_end ON activity (status, distribute_end_time)`,
	`CREATE TABLE IF NOT EXISTS coupon (
		id               BIGINT PRIMARY KEY,
		activity_id      BIGINT NOT NULL REFERENCES activity (id),
		name             VARCHAR(64) NOT NULL,
		type             SMALLINT NOT NULL,
		discount_amount  NUMERIC(12, 2) NOT NULL DEFAULT 0,
		amount_condition NUMERIC(12, 2) NOT NULL DEFAULT 0,
		discount_rate    INT NOT NULL DEFAULT 0,
		validity_time    TIMESTAMPTZ NOT NULL,
		status           SMALLINT NOT NULL,
		user_id          BIGINT NOT NULL,
		user_name        VARCHAR(64) NOT NULL DEFAULT '',
		user_phone       VARCHAR(32) NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT uq_coupon_activity_user UNIQUE (activity_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_coupon_activity_status ON coupon (activity_id, status)`,
	`CREATE TABLE IF NOT EXISTS coupon_write_off (
		id             BIGINT PRIMARY KEY,
		coupon_id      BIGINT NOT NULL REFERENCES coupon (id),
		user_id        BIGINT NOT NULL,
		orders_id      BIGINT NOT NULL,
		activity_id    BIGINT NOT NULL,
		write_off_time TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_coupon_write_off_activity ON coupon_write_off (activity_id)`,
}

// Migrate создаёт недостающие таблицы и индексы в одной транзакции
func (db *DB) Migrate(ctx context.Context) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		for i, stmt := range schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to apply migration step %d: %w", i, err)
			}
		}
		return nil
	})
}
