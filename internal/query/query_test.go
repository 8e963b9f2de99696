package query

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

type fakeModerator struct {
	hidden map[int64]bool
}

func (f *fakeModerator) IsHidden(_ context.Context, eventID int64) (bool, error) {
	return f.hidden[eventID], nil
}

func newTestEngine(t *testing.T, moderator *fakeModerator) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := postgres.New(db)
	if moderator == nil {
		return New(store, nil), mock
	}
	return New(store, moderator), mock
}

func signedEventRow(t *testing.T, id int64, pub model.PublicKey, priv ed25519.PrivateKey, proc model.Process, clock uint64) []interface{} {
	t.Helper()
	ev := model.Event{System: pub, Process: proc, LogicalClock: clock, ContentType: model.ContentTypePost, Content: []byte("x")}
	se := model.SignEvent(ev.Encode(), priv)
	return []interface{}{id, int64(pub.Type), pub.Bytes, proc.Bytes(), int64(clock), int64(model.ContentTypePost), se.Encode(), nil}
}

func TestExploreFiltersHiddenEvents(t *testing.T) {
	pub, priv := ed25519Keypair(t)
	var proc model.Process

	moderator := &fakeModerator{hidden: map[int64]bool{2: true}}
	engine, mock := newTestEngine(t, moderator)

	cols := []string{"id", "system_key_type", "system_key", "process", "logical_clock", "content_type", "raw_event", "unix_milliseconds"}
	rows := sqlmock.NewRows(cols).
		AddRow(signedEventRow(t, 1, pub, priv, proc, 1)...).
		AddRow(signedEventRow(t, 2, pub, priv, proc, 2)...)
	mock.ExpectQuery("FROM events WHERE id >").WillReturnRows(rows)

	page, err := engine.Explore(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	require.EqualValues(t, 1, page.NextCursor)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSystemHeadPicksHighestClockPerProcess(t *testing.T) {
	engine, mock := newTestEngine(t, nil)

	pub, _ := ed25519Keypair(t)
	var p1, p2 model.Process
	p1[0] = 1
	p2[0] = 2

	mock.ExpectQuery("FROM process_state WHERE system_key_type").
		WillReturnRows(sqlmock.NewRows([]string{"process"}).AddRow(p1.Bytes()).AddRow(p2.Bytes()))
	mock.ExpectQuery("WITH combined AS").WillReturnRows(
		sqlmock.NewRows([]string{"process", "low", "high"}).
			AddRow(p1.Bytes(), int64(1), int64(2)).
			AddRow(p2.Bytes(), int64(1), int64(1)),
	)

	heads, err := engine.SystemHead(context.Background(), pub)
	require.NoError(t, err)
	require.Equal(t, uint64(2), heads[p1])
	require.Equal(t, uint64(1), heads[p2])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveHandleReturnsNilWhenUnbound(t *testing.T) {
	engine, mock := newTestEngine(t, nil)
	mock.ExpectQuery("FROM identity_handles WHERE handle").WillReturnError(sql.ErrNoRows)

	pub, err := engine.ResolveHandle(context.Background(), "nobody")
	require.NoError(t, err)
	require.Nil(t, pub)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimHandleRejectsWhenTakenByAnotherSystem(t *testing.T) {
	engine, mock := newTestEngine(t, nil)
	pub, _ := ed25519Keypair(t)

	mock.ExpectExec("INSERT INTO identity_handles").WillReturnResult(sqlmock.NewResult(0, 0))

	err := engine.ClaimHandle(context.Background(), "alice", pub)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func ed25519Keypair(t *testing.T) (model.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return model.PublicKey{Type: model.KeyTypeEd25519, Bytes: pub}, priv
}
