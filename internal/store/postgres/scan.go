package postgres

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/futo-org/polycentric-sub000/internal/model"
)

func scanStoredEvent(row *sqlx.Row) (*StoredEvent, error) {
	var (
		ev             StoredEvent
		rawProcess     []byte
		systemKeyType  int64
		logicalClock   int64
		contentType    int64
		unixMillis     sql.NullInt64
	)
	if err := row.Scan(&ev.ID, &systemKeyType, &ev.SystemKey, &rawProcess, &logicalClock, &contentType, &ev.RawEvent, &unixMillis); err != nil {
		return nil, err
	}
	return fillStoredEvent(&ev, rawProcess, systemKeyType, logicalClock, contentType, unixMillis)
}

func scanStoredEvents(rows *sqlx.Rows) ([]StoredEvent, error) {
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var (
			ev            StoredEvent
			rawProcess    []byte
			systemKeyType int64
			logicalClock  int64
			contentType   int64
			unixMillis    sql.NullInt64
		)
		if err := rows.Scan(&ev.ID, &systemKeyType, &ev.SystemKey, &rawProcess, &logicalClock, &contentType, &ev.RawEvent, &unixMillis); err != nil {
			return nil, fmt.Errorf("scan stored event: %w", err)
		}
		filled, err := fillStoredEvent(&ev, rawProcess, systemKeyType, logicalClock, contentType, unixMillis)
		if err != nil {
			return nil, err
		}
		out = append(out, *filled)
	}
	return out, rows.Err()
}

func fillStoredEvent(ev *StoredEvent, rawProcess []byte, systemKeyType, logicalClock, contentType int64, unixMillis sql.NullInt64) (*StoredEvent, error) {
	process, err := model.ProcessFromBytes(rawProcess)
	if err != nil {
		return nil, fmt.Errorf("decode process: %w", err)
	}
	ev.Process = process
	ev.SystemKeyType = uint64(systemKeyType)
	ev.LogicalClock = uint64(logicalClock)
	ev.ContentType = uint64(contentType)
	if unixMillis.Valid {
		v := uint64(unixMillis.Int64)
		ev.UnixMilliseconds = &v
	}
	return ev, nil
}
