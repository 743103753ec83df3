package session

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilArchiveIsNoop(t *testing.T) {
	var a *Archive
	ctx := context.Background()

	assert.NoError(t, a.EnsureSession(ctx, "sess-1"))
	assert.NoError(t, a.AppendTurn(ctx, "sess-1", "привет", "здравствуйте"))
	assert.NoError(t, a.MarkClosed(ctx, "sess-1", BookingBooked, "ref-1"))
	assert.Nil(t, NewArchive(nil))
}

func TestEnsureSessionInsertsNewDialogue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT id FROM dialogues`).
		WithArgs("sess-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO dialogues`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	a := NewArchive(db)
	require.NoError(t, a.EnsureSession(context.Background(), "sess-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendTurnWritesBothMessages(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT id FROM dialogues`).
		WithArgs("sess-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO dialogues`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO dialogue_messages`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO dialogue_messages`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	a := NewArchive(db)
	require.NoError(t, a.AppendTurn(context.Background(), "sess-1", "Иван. Болит голова", "Уточните, пожалуйста"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendTurnSkipsEmptyReply(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id"}).AddRow("5f1c0f6e-8a53-4bb4-9d0e-05a9f4a1a001")
	mock.ExpectQuery(`SELECT id FROM dialogues`).WithArgs("sess-1").WillReturnRows(rows)
	mock.ExpectExec(`UPDATE dialogues SET updated_at`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO dialogue_messages`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	a := NewArchive(db)
	require.NoError(t, a.AppendTurn(context.Background(), "sess-1", "да", "  "))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkClosedRecordsOutcome(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE dialogues SET`).
		WithArgs("booked", "ref-42", sqlmock.AnyArg(), "sess-1").
		WillReturnResult(sqlmock.NewResult(1, 1))

	a := NewArchive(db)
	require.NoError(t, a.MarkClosed(context.Background(), "sess-1", BookingBooked, "ref-42"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
