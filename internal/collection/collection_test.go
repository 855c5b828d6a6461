package collection

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ning0612/relocator/internal/domain"
)

func TestOpenAndCheck(t *testing.T) {
	ctx := context.Background()
	path := Path(t.TempDir())
	require.NoError(t, Create(ctx, path))

	opener := NewSQLiteOpener()
	col, err := opener.Open(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, path, col.Path())

	ok, err := col.BasicCheck(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, col.Close())
	require.NoError(t, col.Close(), "second close is a no-op")
}

func TestOpen_Missing(t *testing.T) {
	_, err := NewSQLiteOpener().Open(context.Background(), Path(t.TempDir()))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOpen_Locked(t *testing.T) {
	ctx := context.Background()
	path := Path(t.TempDir())
	require.NoError(t, Create(ctx, path))

	opener := NewSQLiteOpener()
	opener.Lock()
	_, err := opener.Open(ctx, path)
	assert.ErrorIs(t, err, domain.ErrCollectionLocked)

	opener.Unlock()
	col, err := opener.Open(ctx, path)
	require.NoError(t, err)
	col.Close()
}

func TestOpen_NotADatabase(t *testing.T) {
	ctx := context.Background()
	path := Path(t.TempDir())
	require.NoError(t, os.WriteFile(path, []byte("this is not a database, just some text padding it out"), 0644))

	opener := NewSQLiteOpener()
	col, err := opener.Open(ctx, path)
	if err != nil {
		return // rejected on open
	}
	defer col.Close()

	_, err = col.BasicCheck(ctx)
	assert.Error(t, err)
}

func TestCloseAll(t *testing.T) {
	ctx := context.Background()
	path := Path(t.TempDir())
	require.NoError(t, Create(ctx, path))

	opener := NewSQLiteOpener()
	_, err := opener.Open(ctx, path)
	require.NoError(t, err)
	_, err = opener.Open(ctx, path)
	require.NoError(t, err)

	require.NoError(t, opener.CloseAll())
	assert.Empty(t, opener.open)
}

func TestCreate_Exists(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, Create(context.Background(), path))
	assert.ErrorIs(t, Create(context.Background(), path), domain.ErrAlreadyExists)
}
