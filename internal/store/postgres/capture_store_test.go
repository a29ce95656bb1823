package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pagesnap/internal/snapshot"
)

func TestCreateCaptureInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCaptureStoreWithPool(mock)
	require.NoError(t, err)

	submitted := time.Unix(1700000000, 0).UTC()
	c := snapshot.Capture{
		ID:        "cap-1",
		URL:       "https://example.com",
		Status:    snapshot.CaptureStatusQueued,
		Submitted: submitted,
	}

	mock.ExpectExec("INSERT INTO captures").
		WithArgs(c.ID, c.URL, c.Status, c.Submitted).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateCapture(context.Background(), c))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCaptureRequiresID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCaptureStoreWithPool(mock)
	require.NoError(t, err)

	require.Error(t, store.CreateCapture(context.Background(), snapshot.Capture{}))
}

func TestUpdateCaptureStatus(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCaptureStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE captures").
		WithArgs("cap-1", snapshot.CaptureStatusRunning, "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.UpdateCaptureStatus(context.Background(), "cap-1", snapshot.CaptureStatusRunning, ""))

	mock.ExpectExec("UPDATE captures").
		WithArgs("missing", snapshot.CaptureStatusFailed, "boom", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.UpdateCaptureStatus(context.Background(), "missing", snapshot.CaptureStatusFailed, "boom")
	require.ErrorIs(t, err, snapshot.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetCaptureResultStoresJSON(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCaptureStoreWithPool(mock)
	require.NoError(t, err)

	result := snapshot.CaptureResult{
		DocumentName: "example.com_20250102_150405.html",
		ContentHash:  "abc123",
	}

	mock.ExpectExec("UPDATE captures SET result").
		WithArgs("cap-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.SetCaptureResult(context.Background(), "cap-1", result))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendMessageInsertsPayload(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCaptureStoreWithPool(mock)
	require.NoError(t, err)

	sentAt := time.Unix(1700000000, 0).UTC()
	msg := snapshot.Message{Kind: snapshot.MessageText, Text: "capturing...", SentAt: sentAt}

	mock.ExpectExec("INSERT INTO capture_messages").
		WithArgs(
			"cap-1",
			snapshot.MessageText,
			[]byte(`{"kind":"text","text":"capturing...","sent_at":"2023-11-14T22:13:20Z"}`),
			sentAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.AppendMessage(context.Background(), "cap-1", msg))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCaptureAssemblesRowAndTranscript(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCaptureStoreWithPool(mock)
	require.NoError(t, err)

	submitted := time.Unix(1700000000, 0).UTC()
	started := submitted.Add(time.Second)
	finished := submitted.Add(5 * time.Second)

	captureRows := pgxmock.NewRows([]string{
		"id", "url", "status", "submitted_at", "started_at", "finished_at", "error_text", "result",
	}).AddRow(
		"cap-1",
		"https://example.com",
		snapshot.CaptureStatusSucceeded,
		submitted,
		&started,
		&finished,
		"",
		[]byte(`{"document_name":"example.com_20250102_150405.html","content_hash":"abc123","used_headless":true}`),
	)
	mock.ExpectQuery("SELECT id, url, status").
		WithArgs("cap-1").
		WillReturnRows(captureRows)

	messageRows := pgxmock.NewRows([]string{"payload"}).
		AddRow([]byte(`{"kind":"text","text":"capturing..."}`)).
		AddRow([]byte(`{"kind":"file","file_name":"webpage_example.com.html"}`))
	mock.ExpectQuery("SELECT payload").
		WithArgs("cap-1").
		WillReturnRows(messageRows)

	c, err := store.GetCapture(context.Background(), "cap-1")
	require.NoError(t, err)
	require.Equal(t, "cap-1", c.ID)
	require.Equal(t, snapshot.CaptureStatusSucceeded, c.Status)
	require.NotNil(t, c.Started)
	require.NotNil(t, c.Finished)
	require.Equal(t, "abc123", c.Result.ContentHash)
	require.True(t, c.Result.UsedHeadless)
	require.Len(t, c.Messages, 2)
	require.Equal(t, snapshot.MessageText, c.Messages[0].Kind)
	require.Equal(t, "webpage_example.com.html", c.Messages[1].FileName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListCapturesFiltersByStatus(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCaptureStoreWithPool(mock)
	require.NoError(t, err)

	submitted := time.Unix(1700000000, 0).UTC()
	succeeded := snapshot.CaptureStatusSucceeded

	listRows := pgxmock.NewRows([]string{
		"id", "url", "status", "submitted_at", "started_at", "finished_at", "error_text", "result",
	}).AddRow(
		"cap-2",
		"https://example.org",
		snapshot.CaptureStatusSucceeded,
		submitted.Add(time.Minute),
		(*time.Time)(nil),
		(*time.Time)(nil),
		"",
		[]byte(`{"content_hash":"def456"}`),
	).AddRow(
		"cap-1",
		"https://example.com",
		snapshot.CaptureStatusSucceeded,
		submitted,
		(*time.Time)(nil),
		(*time.Time)(nil),
		"",
		[]byte(nil),
	)
	mock.ExpectQuery("SELECT id, url, status").
		WithArgs(&succeeded, 10, 0).
		WillReturnRows(listRows)

	captures, err := store.ListCaptures(context.Background(), &succeeded, 10, 0)
	require.NoError(t, err)
	require.Len(t, captures, 2)
	require.Equal(t, "cap-2", captures[0].ID)
	require.Equal(t, "def456", captures[0].Result.ContentHash)
	require.Equal(t, "cap-1", captures[1].ID)
	require.Empty(t, captures[1].Result.ContentHash)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListCapturesNilStatusListsAll(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCaptureStoreWithPool(mock)
	require.NoError(t, err)

	emptyRows := pgxmock.NewRows([]string{
		"id", "url", "status", "submitted_at", "started_at", "finished_at", "error_text", "result",
	})
	mock.ExpectQuery("SELECT id, url, status").
		WithArgs((*snapshot.CaptureStatus)(nil), 50, 10).
		WillReturnRows(emptyRows)

	captures, err := store.ListCaptures(context.Background(), nil, 50, 10)
	require.NoError(t, err)
	require.Empty(t, captures)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCaptureNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCaptureStoreWithPool(mock)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, url, status").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err = store.GetCapture(context.Background(), "missing")
	require.ErrorIs(t, err, snapshot.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
