package envtoken

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gokeyring "github.com/zalando/go-keyring"

	"github.com/hay-kot/gltodo/internal/core/credential"
	"github.com/hay-kot/gltodo/internal/store/keyring"
)

func TestStore_EnvOverride(t *testing.T) {
	gokeyring.MockInit()
	ctx := context.Background()
	account := credential.Account{Name: "default", BaseURL: "https://gitlab.com"}

	kr := keyring.New("")
	require.NoError(t, kr.Store(ctx, credential.Credential{Account: account, Token: "stored", Username: "alice"}))

	t.Setenv("GLTODO_TEST_TOKEN", "from-env")
	s := New(kr, "GLTODO_TEST_TOKEN")
	assert.True(t, s.Overridden())

	got, err := s.Get(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, "from-env", got.Token)
	assert.Equal(t, account, got.Account)
	assert.Equal(t, credential.SourceEnv, got.Source)
	assert.False(t, got.Clearable())
}

func TestStore_FallsBackToWrapped(t *testing.T) {
	gokeyring.MockInit()
	ctx := context.Background()
	account := credential.Account{Name: "default", BaseURL: "https://gitlab.com"}

	t.Setenv("GLTODO_TEST_TOKEN", "")
	s := New(keyring.New(""), "GLTODO_TEST_TOKEN")
	assert.False(t, s.Overridden())

	_, err := s.Get(ctx, account)
	require.ErrorIs(t, err, credential.ErrUnavailable)

	require.NoError(t, s.Store(ctx, credential.Credential{Account: account, Token: "stored"}))
	got, err := s.Get(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, "stored", got.Token)
	assert.True(t, got.Clearable())

	require.NoError(t, s.Clear(ctx, account))
	_, err = s.Get(ctx, account)
	require.ErrorIs(t, err, credential.ErrUnavailable)
}
