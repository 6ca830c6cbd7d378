package quotes

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comercia/comercia/internal/shared"
)

func TestMapWriteError(t *testing.T) {
	assert.NoError(t, mapWriteError(nil))

	cases := map[string]struct {
		err    error
		reason string
	}{
		"second sent quote": {
			err:    &pgconn.PgError{Code: "23505", ConstraintName: sentIndex},
			reason: reasonSentExists,
		},
		"quote referenced by project": {
			err:    fmt.Errorf("delete: %w", &pgconn.PgError{Code: "23503", ConstraintName: projectQuote}),
			reason: reasonGovernsProject,
		},
		"serialization failure": {
			err:    &pgconn.PgError{Code: "40001"},
			reason: "quote changed concurrently, retry",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := mapWriteError(tc.err)
			require.ErrorIs(t, err, shared.ErrConflict)
			var conflict *shared.ConflictError
			require.True(t, errors.As(err, &conflict))
			assert.Equal(t, tc.reason, conflict.Reason)
		})
	}

	other := &pgconn.PgError{Code: "23503", ConstraintName: "quote_items_quote_id_fkey"}
	assert.Same(t, other, mapWriteError(other))
}
