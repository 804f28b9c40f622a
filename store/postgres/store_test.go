package postgres

import (
	"math/big"
	"testing"

	"github.com/jackc/pgtype"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaingraph/indexer/model"
	"github.com/chaingraph/indexer/storelayout"
)

func TestOpenRange_HalfOpenFromBlock(t *testing.T) {
	r := openRange(42)
	assert.Equal(t, pgtype.Present, r.Status)
	assert.EqualValues(t, 42, r.Lower.Int)
	assert.Equal(t, pgtype.Inclusive, r.LowerType)
	assert.Equal(t, pgtype.Unbounded, r.UpperType)
	assert.Equal(t, pgtype.Null, r.Upper.Status)
}

func TestBindExpr_NumericCastsForBigTypes(t *testing.T) {
	assert.Equal(t, "$1::numeric", bindExpr(storelayout.Column{Kind: storelayout.ColBigInt}, 1))
	assert.Equal(t, "$2::numeric", bindExpr(storelayout.Column{Kind: storelayout.ColBigDecimal}, 2))
}

func TestBindExpr_TSVectorWrapsToTSVector(t *testing.T) {
	assert.Equal(t, "to_tsvector('english', $3)", bindExpr(storelayout.Column{Kind: storelayout.ColTSVector}, 3))
}

func TestBindExpr_EnumCastsToText(t *testing.T) {
	assert.Equal(t, "$4::text", bindExpr(storelayout.Column{Kind: storelayout.ColEnum}, 4))
}

func TestBindExpr_PlainColumn_NoCast(t *testing.T) {
	assert.Equal(t, "$5", bindExpr(storelayout.Column{Kind: storelayout.ColString}, 5))
}

func TestToSQL_NullValue_ReturnsNil(t *testing.T) {
	got := toSQL(storelayout.Column{Kind: storelayout.ColString}, model.Null())
	assert.Nil(t, got)
}

func TestToSQL_BigIntEncodesAsDecimalString(t *testing.T) {
	n := big.NewInt(123456789)
	got := toSQL(storelayout.Column{Kind: storelayout.ColBigInt}, model.NewBigInt(n))
	assert.Equal(t, "123456789", got)
}

func TestToSQL_ListWrapsElementsInPQArray(t *testing.T) {
	v := model.NewList([]model.Value{model.NewString("a"), model.NewString("b")})
	got := toSQL(storelayout.Column{Kind: storelayout.ColList, ElemKind: storelayout.ColString}, v)
	_, ok := got.(*pq.StringArray)
	assert.True(t, ok, "a List value must bind as a pq.Array-wrapped slice")
}

func TestFromSQL_NilRaw_ReturnsNullValue(t *testing.T) {
	v := fromSQL(storelayout.Column{Kind: storelayout.ColString}, nil)
	assert.True(t, v.IsNull())
}

func TestFromSQL_BigIntRoundTrip(t *testing.T) {
	v := fromSQL(storelayout.Column{Kind: storelayout.ColBigInt}, "987654321")
	require.Equal(t, model.ValueBigInt, v.Kind)
	assert.Equal(t, "987654321", v.Big.String())
}

func TestFromSQL_BigDecimalRoundTrip(t *testing.T) {
	v := fromSQL(storelayout.Column{Kind: storelayout.ColBigDecimal}, "3.25")
	require.Equal(t, model.ValueBigDecimal, v.Kind)
	f, _ := v.Dec.Float64()
	assert.InDelta(t, 3.25, f, 0.0001)
}

func TestFromSQL_IntFromInt32(t *testing.T) {
	v := fromSQL(storelayout.Column{Kind: storelayout.ColInt}, int32(7))
	require.Equal(t, model.ValueInt, v.Kind)
	assert.EqualValues(t, 7, v.Int)
}

func TestFromSQL_BoolPassthrough(t *testing.T) {
	v := fromSQL(storelayout.Column{Kind: storelayout.ColBool}, true)
	assert.True(t, v.Bool)
}

func TestFromSQL_EnumColumnYieldsEnumValue(t *testing.T) {
	v := fromSQL(storelayout.Column{Kind: storelayout.ColEnum}, "ACTIVE")
	require.Equal(t, model.ValueEnum, v.Kind)
}
