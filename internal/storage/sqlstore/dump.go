package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Dump returns every row of every table except the response time series,
// keyed by table name.
func (d *DB) Dump(ctx context.Context) (map[string][]map[string]any, error) {
	out := make(map[string][]map[string]any, len(dumpTables))
	for _, table := range dumpTables {
		rows, err := d.x.QueryxContext(ctx, `SELECT * FROM `+table)
		if err != nil {
			return nil, fmt.Errorf("dump %s: %w", table, err)
		}

		records := []map[string]any{}
		for rows.Next() {
			record := map[string]any{}
			if err := rows.MapScan(record); err != nil {
				rows.Close()
				return nil, fmt.Errorf("dump %s: %w", table, err)
			}
			for k, v := range record {
				if b, ok := v.([]byte); ok {
					record[k] = string(b)
				}
			}
			records = append(records, record)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("dump %s: %w", table, err)
		}
		rows.Close()

		out[table] = records
	}
	return out, nil
}

// SnapshotTo writes a consistent copy of the SQLite database to dest,
// replacing any existing file.
func (d *DB) SnapshotTo(ctx context.Context, dest string) error {
	if d.dialect != DialectSQLite {
		return fmt.Errorf("snapshot %s database: %w", d.dialect, errors.ErrUnsupported)
	}
	if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove old snapshot: %w", err)
	}
	if _, err := d.exec(ctx, `VACUUM INTO ?`, dest); err != nil {
		return fmt.Errorf("snapshot to %s: %w", dest, err)
	}
	return nil
}
