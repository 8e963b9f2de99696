package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/futo-org/polycentric-sub000/internal/model"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestApplyMigrationsExecutesEveryFile(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	entries, err := migrationFiles.ReadDir("migrations")
	require.NoError(t, err)
	for range entries {
		mock.ExpectExec(".*").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, ApplyMigrations(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEventReturnsRowID(t *testing.T) {
	store, mock := newMockStore(t)

	pub := model.PublicKey{Type: model.KeyTypeEd25519, Bytes: make([]byte, 32)}
	var proc model.Process
	ev := model.Event{System: pub, Process: proc, LogicalClock: 1, ContentType: model.ContentTypePost, Content: []byte("hi")}
	se := model.SignedEvent{Event: ev.Encode(), Signature: []byte{1, 2, 3}}

	mock.ExpectQuery(`INSERT INTO events`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec(`INSERT INTO event_processing_status`).WillReturnResult(sqlmock.NewResult(1, 1))

	id, err := store.InsertEvent(context.Background(), se, ev)
	require.NoError(t, err)
	require.Equal(t, int64(7), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceProcessStateRejectsOwnershipConflict(t *testing.T) {
	store, mock := newMockStore(t)

	systemKeyA := []byte("system-a-key-bytes-32-long-pad!")
	systemKeyB := []byte("system-b-key-bytes-32-long-pad!")
	var proc model.Process
	proc[0] = 9

	mock.ExpectQuery(`SELECT system_key_type, system_key FROM process_state`).
		WillReturnRows(sqlmock.NewRows([]string{"system_key_type", "system_key"}).AddRow(int64(1), systemKeyA))

	err := store.AdvanceProcessState(context.Background(), 1, systemKeyB, proc, 5)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceProcessStateFirstSeenInserts(t *testing.T) {
	store, mock := newMockStore(t)

	systemKey := []byte("system-key-bytes-32-bytes-long!")
	var proc model.Process
	proc[0] = 3

	mock.ExpectQuery(`SELECT system_key_type, system_key FROM process_state`).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO process_state`).WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.AdvanceProcessState(context.Background(), 1, systemKey, proc, 1)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestKnownRangesForSystemGroupsContiguousRuns(t *testing.T) {
	store, mock := newMockStore(t)

	systemKey := []byte("system-key-bytes-32-bytes-long!")
	var proc model.Process
	proc[0] = 1

	rows := sqlmock.NewRows([]string{"process", "low", "high"}).
		AddRow(proc.Bytes(), int64(1), int64(3)).
		AddRow(proc.Bytes(), int64(6), int64(6))
	mock.ExpectQuery(`WITH combined AS`).WillReturnRows(rows)

	ranges, err := store.KnownRangesForSystem(context.Background(), 1, systemKey)
	require.NoError(t, err)
	require.Len(t, ranges, 2)
	require.Equal(t, uint64(1), ranges[0].Low)
	require.Equal(t, uint64(3), ranges[0].High)
	require.Equal(t, uint64(6), ranges[1].Low)
	require.Equal(t, uint64(6), ranges[1].High)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDoesEventExist(t *testing.T) {
	store, mock := newMockStore(t)
	systemKey := []byte("system-key-bytes-32-bytes-long!")
	var proc model.Process

	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM events`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := store.DoesEventExist(context.Background(), 1, systemKey, proc, 1)
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}
