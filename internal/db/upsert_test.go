package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "contacts",
		Columns:      []string{"owner_id", "email"},
		ConflictKeys: []string{"owner_id", "email"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "contacts",
		ConflictKeys: []string{"email"},
	}, [][]any{{"o1", "a@b.com"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:   "contacts",
		Columns: []string{"owner_id", "email"},
	}, [][]any{{"o1", "a@b.com"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_DoNothing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"owner_id", "email", "name"}
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_contacts"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_contacts"}, cols).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "contacts" .* ON CONFLICT \("owner_id", "email"\) DO NOTHING`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "contacts",
		Columns:      cols,
		ConflictKeys: []string{"owner_id", "email"},
		DoNothing:    true,
	}, [][]any{
		{"o1", "a@acme.com", "A"},
		{"o1", "b@acme.com", "B"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyFails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"owner_id", "email"}
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_contacts"}, cols).
		WillReturnError(errors.New("copy broke"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "contacts",
		Columns:      cols,
		ConflictKeys: []string{"owner_id", "email"},
	}, [][]any{{"o1", "a@acme.com"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy into temp table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildUpsertSQL(t *testing.T) {
	tests := []struct {
		name string
		cfg  UpsertConfig
		want string
	}{
		{
			name: "update_all_non_key",
			cfg: UpsertConfig{
				Table:        "contacts",
				Columns:      []string{"email", "name", "title"},
				ConflictKeys: []string{"email"},
			},
			want: `INSERT INTO "contacts" ("email", "name", "title") SELECT "email", "name", "title" FROM "tmp" ON CONFLICT ("email") DO UPDATE SET "name" = EXCLUDED."name", "title" = EXCLUDED."title"`,
		},
		{
			name: "explicit_update_cols",
			cfg: UpsertConfig{
				Table:        "crm.contacts",
				Columns:      []string{"email", "name", "title"},
				ConflictKeys: []string{"email"},
				UpdateCols:   []string{"name"},
			},
			want: `INSERT INTO "crm"."contacts" ("email", "name", "title") SELECT "email", "name", "title" FROM "tmp" ON CONFLICT ("email") DO UPDATE SET "name" = EXCLUDED."name"`,
		},
		{
			name: "only_keys",
			cfg: UpsertConfig{
				Table:        "contacts",
				Columns:      []string{"email"},
				ConflictKeys: []string{"email"},
			},
			want: `INSERT INTO "contacts" ("email") SELECT "email" FROM "tmp" ON CONFLICT ("email") DO NOTHING`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildUpsertSQL(tt.cfg, "tmp"))
		})
	}
}

func TestSanitizeTable(t *testing.T) {
	assert.Equal(t, `"contacts"`, sanitizeTable("contacts"))
	assert.Equal(t, `"crm"."contacts"`, sanitizeTable("crm.contacts"))
}
