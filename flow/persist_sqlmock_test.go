package flow

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestUpsertIndexRowWritesIndexAndFTSEntries(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	f := &LLMFlow{
		ID:         uuid.New(),
		State:      Completed,
		Type:       TypeChat,
		Timestamps: Timestamps{Created: time.Now()},
		Routing:    RoutingMeta{Provider: "openai", ResolvedModel: "gpt-4"},
	}

	mock.ExpectExec(`INSERT INTO flow_index`).
		WithArgs(f.ID.String(), sqlmock.AnyArg(), "openai", "gpt-4", "completed", sqlmock.AnyArg(), 0, 0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO flow_fts`).
		WithArgs(f.ID.String(), "", "").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, upsertIndexRow(db, f))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertIndexRowPropagatesExecError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	f := &LLMFlow{ID: uuid.New(), State: Failed, Timestamps: Timestamps{Created: time.Now()}}

	mock.ExpectExec(`INSERT INTO flow_index`).WillReturnError(errBoom)

	err = upsertIndexRow(db, f)
	require.ErrorIs(t, err, errBoom)
	require.NoError(t, mock.ExpectationsWereMet())
}
