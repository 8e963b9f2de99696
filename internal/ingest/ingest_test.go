package ingest

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/futo-org/polycentric-sub000/internal/model"
	"github.com/futo-org/polycentric-sub000/internal/store/postgres"
)

type fakeSink struct {
	enqueued []model.Event
}

func (f *fakeSink) Enqueue(_ model.SignedEvent, ev model.Event) {
	f.enqueued = append(f.enqueued, ev)
}

func newTestEngine(t *testing.T) (*Engine, sqlmock.Sqlmock, *fakeSink) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := postgres.New(db)
	sink := &fakeSink{}
	return New(store, sink, nil), mock, sink
}

func testKeypair(t *testing.T) (model.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return model.PublicKey{Type: model.KeyTypeEd25519, Bytes: pub}, priv
}

func signedPost(pub model.PublicKey, priv ed25519.PrivateKey, proc model.Process, clock uint64) model.SignedEvent {
	ev := model.Event{System: pub, Process: proc, LogicalClock: clock, ContentType: model.ContentTypePost, Content: []byte("hello")}
	return model.SignEvent(ev.Encode(), priv)
}

func TestIngestOneRejectsBadSignature(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	pub, priv := testKeypair(t)
	var proc model.Process
	se := signedPost(pub, priv, proc, 1)
	se.Signature[0] ^= 0xFF

	_, err := engine.IngestOne(context.Background(), se)
	require.Error(t, err)
}

func TestIngestOneAcceptsNewEvent(t *testing.T) {
	engine, mock, sink := newTestEngine(t)

	pub, priv := testKeypair(t)
	var proc model.Process
	se := signedPost(pub, priv, proc, 1)

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT system_key_type, system_key FROM process_state").WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO process_state").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM events`).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM deletions`).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("INSERT INTO events").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectExec("INSERT INTO event_processing_status").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	result, err := engine.IngestOne(context.Background(), se)
	require.NoError(t, err)
	require.True(t, result.Accepted)
	require.False(t, result.Deleted)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Len(t, sink.enqueued, 1)
}

func TestIngestOneIdempotentReplayIsANoOp(t *testing.T) {
	engine, mock, sink := newTestEngine(t)

	pub, priv := testKeypair(t)
	var proc model.Process
	se := signedPost(pub, priv, proc, 1)

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT system_key_type, system_key FROM process_state").
		WillReturnRows(sqlmock.NewRows([]string{"system_key_type", "system_key"}).AddRow(int64(pub.Type), pub.Bytes))
	mock.ExpectExec("UPDATE process_state SET logical_clock").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM events`).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectCommit()

	result, err := engine.IngestOne(context.Background(), se)
	require.NoError(t, err)
	require.False(t, result.Accepted)
	require.False(t, result.Deleted)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Empty(t, sink.enqueued)
}

func TestIngestOneRejectsProcessOwnershipConflict(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	pubA, _ := testKeypair(t)
	pubB, privB := testKeypair(t)
	var proc model.Process
	se := signedPost(pubB, privB, proc, 1)

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT system_key_type, system_key FROM process_state").
		WillReturnRows(sqlmock.NewRows([]string{"system_key_type", "system_key"}).AddRow(int64(pubA.Type), pubA.Bytes))
	mock.ExpectRollback()

	_, err := engine.IngestOne(context.Background(), se)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
