package kt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueryBuilderIsImmutable(t *testing.T) {
	base := NewQueryBuilder()
	withFilter := base.Filter("type", 0, "cat")

	require.Empty(t, base.conditions)
	require.Len(t, withFilter.conditions, 1)
}

func TestQueryBuilderCmdBlobsOrderAndDefaults(t *testing.T) {
	q := NewQueryBuilder().
		Filter("type", 0, "cat").
		OrderBy("name", OrderDesc).
		Limit(10)

	blobs := q.cmdBlobs()
	require.Len(t, blobs, 3)
	require.Equal(t, "addcond\x00type\x000\x00cat", string(blobs[0]))
	require.Equal(t, "setorder\x00name\x001", string(blobs[1]))
	// Only Limit was set: offset defaults to 0, per spec §4.8.
	require.Equal(t, "setlimit\x0010\x000", string(blobs[2]))
}

func TestQueryBuilderDefaultLimitWhenOnlyOffsetSet(t *testing.T) {
	q := NewQueryBuilder().Offset(5)
	blobs := q.cmdBlobs()
	require.Len(t, blobs, 1)
	require.Equal(t, "setlimit\x002147483648\x005", string(blobs[0]))
}

func TestQueryBuilderNoLimitDirectiveWhenNeitherSet(t *testing.T) {
	q := NewQueryBuilder().Filter("type", 0, "cat")
	blobs := q.cmdBlobs()
	require.Len(t, blobs, 1)
}

func TestQueryBuilderRequiresTokyoTyrant(t *testing.T) {
	cl := &Client{cfg: cfg{kind: KyotoTycoon}}
	_, err := NewQueryBuilder().Execute(context.Background(), cl)
	require.Error(t, err)
	var kerr *Error
	require.ErrorAs(t, err, &kerr)
	require.Equal(t, KindConfiguration, kerr.Kind)
}
