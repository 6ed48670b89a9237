package storage

import (
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return &Store{db: db}, mock
}

var documentColumns = []string{"id", "user_id", "title", "type", "answers", "created_at"}

func TestMock_GetDocumentNoRows(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM documents WHERE id = ?")).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows(documentColumns))

	_, err := s.GetDocument("d1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMock_GetDocumentCorruptAnswers(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM documents WHERE id = ?")).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows(documentColumns).
			AddRow("d1", "u1", "t", "sok", "{not json", "2025-01-01T00:00:00.000000Z"))

	_, err := s.GetDocument("d1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding answers of document d1")
}

func TestMock_GetDocumentBadTimestamp(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM documents WHERE id = ?")).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows(documentColumns).
			AddRow("d1", "u1", "t", "sok", "{}", "yesterday"))

	_, err := s.GetDocument("d1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing timestamp")
}

func TestMock_ListDocumentsQueryError(t *testing.T) {
	s, mock := newMockStore(t)
	boom := errors.New("disk I/O error")
	mock.ExpectQuery(regexp.QuoteMeta("FROM documents WHERE user_id = ?")).
		WithArgs("u1").
		WillReturnError(boom)

	_, err := s.ListDocumentsForUser("u1")
	assert.ErrorIs(t, err, boom)
}

func TestMock_DeleteDocumentNoRows(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM documents WHERE id = ?")).
		WithArgs("d1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, s.DeleteDocument("d1"), ErrNotFound)
}

func TestMock_CreateUserPassesThroughErrors(t *testing.T) {
	s, mock := newMockStore(t)
	boom := errors.New("database is locked")
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs("u1", "a@example.com", "hash", "", "", sqlmock.AnyArg()).
		WillReturnError(boom)

	err := s.CreateUser(User{ID: "u1", Email: " A@example.com", PasswordHash: "hash"})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrDuplicateEmail)
}

func TestMock_FailJobFinalAttempt(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT attempts, max_attempts FROM jobs WHERE id = ?")).
		WithArgs("j1").
		WillReturnRows(sqlmock.NewRows([]string{"attempts", "max_attempts"}).AddRow(2, 3))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE jobs SET status = 'failed'")).
		WithArgs(3, "boom", sqlmock.AnyArg(), "j1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.FailJob("j1", "boom"))
}

func TestMock_FailJobUnknown(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT attempts, max_attempts FROM jobs WHERE id = ?")).
		WithArgs("j1").
		WillReturnRows(sqlmock.NewRows([]string{"attempts", "max_attempts"}))
	mock.ExpectRollback()

	assert.ErrorIs(t, s.FailJob("j1", "boom"), ErrNotFound)
}

func TestMock_ClaimNextJobSelectError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM jobs")).
		WillReturnError(errors.New("no such table: jobs"))
	mock.ExpectRollback()

	_, err := s.ClaimNextJob([]string{"render_pdf"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "selecting next job")
}
