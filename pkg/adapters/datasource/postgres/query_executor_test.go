package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-askdb/pkg/apperrors"
	sqlguard "github.com/ekaya-inc/ekaya-askdb/pkg/sql"
)

func TestQueryExecutor_RejectsUnvalidatedStatement(t *testing.T) {
	executor := NewQueryExecutor(nil, ExecutorOptions{}, zap.NewNop())

	_, err := executor.Run(context.Background(), sqlguard.ValidatedSQL{})

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrQuery)
}

func TestNewQueryExecutor_DefaultMaxRows(t *testing.T) {
	executor := NewQueryExecutor(nil, ExecutorOptions{MaxRows: 0}, zap.NewNop())
	assert.Equal(t, DefaultMaxRows, executor.opts.MaxRows)
}
