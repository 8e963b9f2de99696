package moderation

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/futo-org/polycentric-sub000/internal/model"
	"github.com/futo-org/polycentric-sub000/internal/store/postgres"
)

func newTestCoordinator(t *testing.T, csam CSAMClassifier, tag TagClassifier) (*Coordinator, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := postgres.New(db)
	c := New(store, csam, tag, 20, time.Second, nil)
	return c, mock
}

func postEventRow(t *testing.T, id int64, content string) []interface{} {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	var proc model.Process

	post := model.Post{Content: &content}
	ev := model.Event{
		System:       model.PublicKey{Type: model.KeyTypeEd25519, Bytes: pub},
		Process:      proc,
		LogicalClock: 1,
		ContentType:  model.ContentTypePost,
		Content:      post.Encode(),
	}
	se := model.SignEvent(ev.Encode(), priv)
	return []interface{}{id, se.Encode()}
}

type stubCSAM struct {
	isCSAM bool
	err    error
}

func (s *stubCSAM) ClassifyImage(_ context.Context, _ PendingEvent) (bool, error) {
	return s.isCSAM, s.err
}

type stubTag struct {
	tags []Tag
	err  error
}

func (s *stubTag) Classify(_ context.Context, _ PendingEvent) ([]Tag, error) {
	return s.tags, s.err
}

func TestProcessBatchApprovesCleanPost(t *testing.T) {
	c, mock := newTestCoordinator(t, &stubCSAM{}, &stubTag{tags: []Tag{{Name: "sexual", Level: 1}}})

	mock.ExpectBegin()
	mock.ExpectQuery("FROM events e").WillReturnRows(
		sqlmock.NewRows([]string{"id", "raw_event"}).AddRow(postEventRow(t, 1, "hello")...),
	)
	mock.ExpectExec("UPDATE event_processing_status").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectExec("UPDATE event_processing_status SET status = \\$2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := c.processBatch(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessBatchRejectsCSAMHit(t *testing.T) {
	c, mock := newTestCoordinator(t, &stubCSAM{isCSAM: true}, nil)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM events e").WillReturnRows(
		sqlmock.NewRows([]string{"id", "raw_event"}).AddRow(postEventRow(t, 2, "hello")...),
	)
	mock.ExpectExec("UPDATE event_processing_status").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectExec("UPDATE event_processing_status SET status = \\$2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := c.processBatch(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessBatchRecordsClassifierFailure(t *testing.T) {
	c, mock := newTestCoordinator(t, &stubCSAM{err: context.DeadlineExceeded}, nil)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM events e").WillReturnRows(
		sqlmock.NewRows([]string{"id", "raw_event"}).AddRow(postEventRow(t, 3, "hello")...),
	)
	mock.ExpectExec("UPDATE event_processing_status").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectExec("SET status = 'error'").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := c.processBatch(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessBatchNoCandidatesIsANoop(t *testing.T) {
	c, mock := newTestCoordinator(t, &stubCSAM{}, nil)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM events e").WillReturnRows(
		sqlmock.NewRows([]string{"id", "raw_event"}),
	)
	mock.ExpectCommit()

	err := c.processBatch(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
