package postgres

import (
	"testing"

	"github.com/jackc/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaingraph/indexer/model"
	"github.com/chaingraph/indexer/storelayout"
)

func upsertTable() *storelayout.Table {
	return &storelayout.Table{
		Name: "daily_volume",
		Columns: []storelayout.Column{
			{Name: "day", Kind: storelayout.ColString},
			{Name: "volume", Kind: storelayout.ColBigInt},
		},
	}
}

func TestUpsertSQL_IncludesBlockRangeColumn(t *testing.T) {
	query, args := upsertSQL("sgd1", upsertTable(),
		model.Key{EntityType: "DailyVolume", ID: "2024-01-01"},
		model.Entity{"day": model.NewString("2024-01-01")},
		42,
		UpsertConflictFragment{Constraint: "daily_volume_day_key"},
	)

	assert.Contains(t, query, "INSERT INTO sgd1.daily_volume (id, block_range, day, volume)")
	require.Len(t, args, 4)
	r, ok := args[1].(pgtype.Int4range)
	require.True(t, ok, "block_range must bind as a typed range like bulkInsert's rows")
	assert.EqualValues(t, 42, r.Lower.Int)
	assert.Equal(t, pgtype.Unbounded, r.UpperType)
}

func TestUpsertSQL_EmptyFields_DoNothing(t *testing.T) {
	query, _ := upsertSQL("sgd1", upsertTable(),
		model.Key{ID: "x"}, model.Entity{}, 1,
		UpsertConflictFragment{Constraint: "daily_volume_day_key"},
	)
	assert.Contains(t, query, "ON CONFLICT ON CONSTRAINT daily_volume_day_key DO NOTHING")
}

func TestUpsertSQL_FieldsRenderSortedUpdateExpressions(t *testing.T) {
	query, _ := upsertSQL("sgd1", upsertTable(),
		model.Key{ID: "x"}, model.Entity{}, 1,
		UpsertConflictFragment{
			Constraint: "daily_volume_day_key",
			Fields: map[string]string{
				"volume": "daily_volume.volume + EXCLUDED.volume",
				"day":    "EXCLUDED.day",
			},
		},
	)
	assert.Contains(t, query, "DO UPDATE SET day = EXCLUDED.day, volume = daily_volume.volume + EXCLUDED.volume")
}

func TestUpsertSQL_NumericColumnsKeepCasts(t *testing.T) {
	query, _ := upsertSQL("sgd1", upsertTable(),
		model.Key{ID: "x"}, model.Entity{"volume": model.NewBigInt(nil)}, 1,
		UpsertConflictFragment{Constraint: "c"},
	)
	assert.Contains(t, query, "$4::numeric")
}
