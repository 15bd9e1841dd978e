//nolint:thelper // ok for tests
package secrets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestSeedStoreKeyring(t *testing.T) {
	keyring.MockInit()
	s := NewSeedStore("racegarage-test", "")

	_, err := s.Load("rA")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save("rA", "sSEED"))
	seed, err := s.Load("rA")
	require.NoError(t, err)
	assert.Equal(t, "sSEED", seed)

	require.NoError(t, s.Delete("rA"))
	_, err = s.Load("rA")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, s.Save(" ", "sSEED"))
}

func TestSeedStoreFallback(t *testing.T) {
	keyring.MockInitWithError(errors.New("keyring backend not available"))
	path := filepath.Join(t.TempDir(), "secrets", "seeds.json")
	s := NewSeedStore("racegarage-test", path)

	require.NoError(t, s.Save("rA", "sSEED"))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	seed, err := s.Load("rA")
	require.NoError(t, err)
	assert.Equal(t, "sSEED", seed)

	require.NoError(t, s.Delete("rA"))
	_, err = s.Load("rA")
	assert.ErrorIs(t, err, ErrNotFound)
}
