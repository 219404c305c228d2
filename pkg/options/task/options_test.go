package task

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/trackinglog/pkg/errors"
)

func TestCompleteDerivesPaths(t *testing.T) {
	o := NewOptions()
	o.RootPath = "/srv/task"
	require.NoError(t, o.Complete())

	assert.Equal(t, "/srv/task/logs", o.Log.RootPath)
	assert.Equal(t, "/srv/task/logs/cache", o.Log.CachePath)
	assert.Equal(t, "/srv/task/emails", o.Email.RootFolder)
	assert.Equal(t, "/srv/task/locks", o.Lock.FolderPath)
	assert.Equal(t, 100, o.Log.CacheCountLimit)
	assert.Equal(t, 7, o.Log.CacheDayLimit)
	assert.NoError(t, o.Validate())
}

func TestCompleteKeepsExplicitPaths(t *testing.T) {
	o := NewOptions()
	o.RootPath = "/srv/task"
	o.Log.RootPath = "/var/log/task"
	o.Lock.FolderPath = "/run/task"
	require.NoError(t, o.Complete())

	assert.Equal(t, "/var/log/task", o.Log.RootPath)
	assert.Equal(t, "/var/log/task/cache", o.Log.CachePath)
	assert.Equal(t, "/run/task", o.Lock.FolderPath)
}

func TestValidateAggregates(t *testing.T) {
	o := NewOptions()
	o.RootPath = ""
	require.NoError(t, o.Complete())
	o.Log.Profiling = "bogus"

	err := o.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidRootPath)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestEnsureDirs(t *testing.T) {
	o := NewOptions()
	o.RootPath = filepath.Join(t.TempDir(), "task")
	require.NoError(t, o.Complete())
	require.NoError(t, o.EnsureDirs())

	for _, dir := range []string{o.RootPath, o.Log.RootPath, o.Log.CachePath, o.Lock.FolderPath} {
		info, err := os.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}
}

func TestEmailSetupAndRedaction(t *testing.T) {
	o := NewOptions()
	user, pass := "ops", "s3cret"
	o.Email.Setup("/srv/emails", &user, &pass)
	o.Email.Setup("/srv/emails2", nil, nil)

	assert.Equal(t, "ops", o.Email.Username)
	assert.Equal(t, "s3cret", o.Email.Password)
	assert.Equal(t, "/srv/emails2", o.Email.RootFolder)
	assert.NotContains(t, o.Email.String(), "s3cret")

	data, err := json.Marshal(o.Email)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "s3cret")
	assert.Contains(t, string(data), "***hidden***")
}
