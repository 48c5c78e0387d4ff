package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/parts-ledger/internal/core/domain"
	"github.com/rl1809/parts-ledger/internal/port"
)

const mysqlDuplicateEntry = 1062

var schema = []string{
	`CREATE TABLE IF NOT EXISTS inventory_items (
		id                 VARCHAR(36)   NOT NULL PRIMARY KEY,
		part_id            VARCHAR(64)   NOT NULL,
		location           VARCHAR(128)  NOT NULL DEFAULT '',
		available_quantity INT           NOT NULL DEFAULT 0,
		reserved_quantity  INT           NOT NULL DEFAULT 0,
		minimum_quantity   INT           NOT NULL DEFAULT 0,
		average_cost       DECIMAL(18,4) NOT NULL DEFAULT 0,
		sale_price         DECIMAL(18,4) NOT NULL DEFAULT 0,
		status             VARCHAR(16)   NOT NULL,
		version            INT           NOT NULL DEFAULT 1,
		created_at         DATETIME(6)   NOT NULL,
		updated_at         DATETIME(6)   NOT NULL,
		deleted_at         DATETIME(6)   NULL,
		active_key         VARCHAR(200)  AS (IF(status = 'ACTIVE' AND deleted_at IS NULL, CONCAT(part_id, '|', location), NULL)) STORED,
		UNIQUE KEY uq_active_part_location (active_key),
		KEY idx_items_part (part_id),
		CONSTRAINT chk_available_non_negative CHECK (available_quantity >= 0),
		CONSTRAINT chk_reserved_non_negative CHECK (reserved_quantity >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS inventory_movements (
		seq                   BIGINT        NOT NULL AUTO_INCREMENT PRIMARY KEY,
		id                    VARCHAR(36)   NOT NULL,
		type                  VARCHAR(16)   NOT NULL,
		quantity              INT           NOT NULL,
		occurred_at           DATETIME(6)   NOT NULL,
		part_id               VARCHAR(64)   NOT NULL,
		item_id               VARCHAR(36)   NOT NULL,
		service_order_item_id VARCHAR(64)   NOT NULL DEFAULT '',
		vehicle_id            VARCHAR(64)   NOT NULL DEFAULT '',
		reference_code        VARCHAR(128)  NOT NULL DEFAULT '',
		notes                 TEXT          NOT NULL,
		unit_cost             DECIMAL(18,4) NOT NULL DEFAULT 0,
		unit_price            DECIMAL(18,4) NOT NULL DEFAULT 0,
		balance_after         INT           NOT NULL,
		reserved_after        INT           NOT NULL,
		performed_by          VARCHAR(128)  NOT NULL DEFAULT '',
		UNIQUE KEY uq_movement_id (id),
		KEY idx_movements_item (item_id, seq),
		KEY idx_movements_part (part_id, occurred_at),
		KEY idx_movements_soi (service_order_item_id),
		KEY idx_movements_vehicle (vehicle_id),
		CONSTRAINT chk_quantity_positive CHECK (quantity > 0)
	)`,
}

const itemColumns = `id, part_id, location, available_quantity, reserved_quantity, minimum_quantity,
	average_cost, sale_price, status, version, created_at, updated_at, deleted_at`

const movementColumns = `id, type, quantity, occurred_at, part_id, item_id, service_order_item_id, vehicle_id,
	reference_code, notes, unit_cost, unit_price, balance_after, reserved_after, performed_by`

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// EnsureSchema creates the item and ledger tables when missing.
func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) CreateItem(ctx context.Context, item domain.InventoryItem, seed *domain.Movement) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO inventory_items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.PartID, item.Location, item.AvailableQuantity, item.ReservedQuantity, item.MinimumQuantity,
		item.AverageCost, item.SalePrice, item.Status, item.Version, item.CreatedAt, item.UpdatedAt, nullTime(item.DeletedAt),
	)
	if err != nil {
		if isDuplicate(err) {
			return port.ErrDuplicateItem
		}
		return fmt.Errorf("insert item: %w", err)
	}

	if seed != nil {
		if err := insertMovement(ctx, tx, *seed); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (m *MySQLAdapter) GetItem(ctx context.Context, itemID string) (*domain.InventoryItem, error) {
	items, err := queryItems(ctx, m.db, `SELECT `+itemColumns+` FROM inventory_items WHERE id = ?`, itemID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (m *MySQLAdapter) ListItems(ctx context.Context, filter domain.ItemFilter) ([]domain.InventoryItem, error) {
	var (
		where []string
		args  []any
	)
	if filter.PartID != "" {
		where = append(where, "part_id = ?")
		args = append(args, filter.PartID)
	}
	if filter.Location != "" {
		where = append(where, "location = ?")
		args = append(args, filter.Location)
	}
	if filter.ActiveOnly {
		where = append(where, "status = ?")
		args = append(args, domain.ItemStatusActive)
	}
	if !filter.IncludeDeleted || filter.ActiveOnly {
		where = append(where, "deleted_at IS NULL")
	}

	q := `SELECT ` + itemColumns + ` FROM inventory_items`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at, id`
	return queryItems(ctx, m.db, q, args...)
}

func (m *MySQLAdapter) UpdateItem(ctx context.Context, item domain.InventoryItem, expectedVersion int) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE inventory_items
		SET minimum_quantity = ?, location = ?, average_cost = ?, sale_price = ?, status = ?,
			deleted_at = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		item.MinimumQuantity, item.Location, item.AverageCost, item.SalePrice, item.Status,
		nullTime(item.DeletedAt), item.Version, item.UpdatedAt,
		item.ID, expectedVersion,
	)
	if err != nil {
		if isDuplicate(err) {
			return port.ErrDuplicateItem
		}
		return fmt.Errorf("update item: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return port.ErrOptimisticLock
	}
	return nil
}

func (m *MySQLAdapter) DeleteItem(ctx context.Context, itemID string, expectedVersion int) error {
	result, err := m.db.ExecContext(ctx, `
		DELETE FROM inventory_items
		WHERE id = ? AND version = ?
		AND NOT EXISTS (SELECT 1 FROM inventory_movements WHERE item_id = ?)`,
		itemID, expectedVersion, itemID,
	)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return port.ErrOptimisticLock
	}
	return nil
}

func (m *MySQLAdapter) ApplyMovement(ctx context.Context, item domain.InventoryItem, expectedVersion int, movement domain.Movement) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE inventory_items
		SET available_quantity = ?, reserved_quantity = ?, average_cost = ?, sale_price = ?,
			version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		item.AvailableQuantity, item.ReservedQuantity, item.AverageCost, item.SalePrice,
		item.Version, item.UpdatedAt,
		item.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update item balance: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return port.ErrOptimisticLock
	}

	if err := insertMovement(ctx, tx, movement); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *MySQLAdapter) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.Movement, error) {
	q, args := movementQuery(filter)
	return queryMovements(ctx, m.db, q, args...)
}

func (m *MySQLAdapter) CountMovements(ctx context.Context, itemID string) (int, error) {
	var count int
	err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM inventory_movements WHERE item_id = ?`, itemID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count movements: %w", err)
	}
	return count, nil
}

// Snapshot reads items and movements inside one REPEATABLE READ transaction
// so both reflect the same commit point.
func (m *MySQLAdapter) Snapshot(ctx context.Context, partID string, filter *domain.MovementFilter) (*port.Snapshot, error) {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	q := `SELECT ` + itemColumns + ` FROM inventory_items`
	var args []any
	if partID != "" {
		q += ` WHERE part_id = ?`
		args = append(args, partID)
	}
	q += ` ORDER BY created_at, id`

	items, err := queryItems(ctx, tx, q, args...)
	if err != nil {
		return nil, err
	}

	snap := &port.Snapshot{Items: items, Movements: []domain.Movement{}}
	if filter != nil {
		mq, margs := movementQuery(*filter)
		if snap.Movements, err = queryMovements(ctx, tx, mq, margs...); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit snapshot: %w", err)
	}
	return snap, nil
}

func movementQuery(filter domain.MovementFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if filter.PartID != "" {
		where = append(where, "part_id = ?")
		args = append(args, filter.PartID)
	}
	if filter.ItemID != "" {
		where = append(where, "item_id = ?")
		args = append(args, filter.ItemID)
	}
	if len(filter.ServiceOrderItemIDs) > 0 {
		where = append(where, "service_order_item_id IN ("+placeholders(len(filter.ServiceOrderItemIDs))+")")
		args = append(args, toAny(filter.ServiceOrderItemIDs)...)
	}
	if len(filter.VehicleIDs) > 0 {
		where = append(where, "vehicle_id IN ("+placeholders(len(filter.VehicleIDs))+")")
		args = append(args, toAny(filter.VehicleIDs)...)
	}
	if len(filter.Types) > 0 {
		where = append(where, "type IN ("+placeholders(len(filter.Types))+")")
		args = append(args, toAny(filter.Types)...)
	}
	if !filter.Since.IsZero() {
		where = append(where, "occurred_at >= ?")
		args = append(args, filter.Since)
	}
	if !filter.Until.IsZero() {
		where = append(where, "occurred_at < ?")
		args = append(args, filter.Until)
	}

	q := `SELECT ` + movementColumns + ` FROM inventory_movements`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY seq`
	if filter.Limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}
	return q, args
}

func insertMovement(ctx context.Context, tx *sql.Tx, mv domain.Movement) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO inventory_movements (`+movementColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		mv.ID, mv.Type, mv.Quantity, mv.OccurredAt, mv.PartID, mv.ItemID, mv.ServiceOrderItemID, mv.VehicleID,
		mv.ReferenceCode, mv.Notes, mv.UnitCost, mv.UnitPrice, mv.BalanceAfter, mv.ReservedAfter, mv.PerformedBy,
	)
	if err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

func queryItems(ctx context.Context, q queryer, query string, args ...any) ([]domain.InventoryItem, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	items := []domain.InventoryItem{}
	for rows.Next() {
		var (
			it      domain.InventoryItem
			deleted sql.NullTime
		)
		if err := rows.Scan(&it.ID, &it.PartID, &it.Location, &it.AvailableQuantity, &it.ReservedQuantity,
			&it.MinimumQuantity, &it.AverageCost, &it.SalePrice, &it.Status, &it.Version,
			&it.CreatedAt, &it.UpdatedAt, &deleted); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if deleted.Valid {
			t := deleted.Time
			it.DeletedAt = &t
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func queryMovements(ctx context.Context, q queryer, query string, args ...any) ([]domain.Movement, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query movements: %w", err)
	}
	defer rows.Close()

	movements := []domain.Movement{}
	for rows.Next() {
		var mv domain.Movement
		if err := rows.Scan(&mv.ID, &mv.Type, &mv.Quantity, &mv.OccurredAt, &mv.PartID, &mv.ItemID,
			&mv.ServiceOrderItemID, &mv.VehicleID, &mv.ReferenceCode, &mv.Notes, &mv.UnitCost, &mv.UnitPrice,
			&mv.BalanceAfter, &mv.ReservedAfter, &mv.PerformedBy); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		movements = append(movements, mv)
	}
	return movements, rows.Err()
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toAny[T any](xs []T) []any {
	out := make([]any, len(xs))
	for i, v := range xs {
		out[i] = v
	}
	return out
}
