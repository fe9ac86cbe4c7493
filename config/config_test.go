package config

import (
	"os"
	"testing"

	"github.com/relloyd/etl-engine/rdbms/shared"
	"github.com/stretchr/testify/require"
)

func TestFileSetGetDelete(t *testing.T) {
	dir := t.TempDir()
	f := NewConfigFileWithDir(dir, "test.yaml")
	require.False(t, f.Exists())

	keys, err := f.GetAllKeys()
	require.NoError(t, err)
	require.Empty(t, keys)

	require.NoError(t, f.Set("b", "2"))
	require.NoError(t, f.Set("a", "1"))
	require.True(t, f.Exists())

	// Re-open to prove the data was persisted and can be decrypted.
	g := NewConfigFileWithDir(dir, "test.yaml")
	var v string
	require.NoError(t, g.Get("a", &v))
	require.Equal(t, "1", v)
	keys, err = g.GetAllKeys()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, keys)

	err = g.Get("missing", &v)
	require.ErrorAs(t, err, &KeyNotFoundError{})
	require.Error(t, g.Delete("missing"))
	require.NoError(t, g.Delete("a"))
	keys, _ = g.GetAllKeys()
	require.Equal(t, []string{"b"}, keys)
}

func TestConnections(t *testing.T) {
	dir := t.TempDir()
	f := NewConfigFileWithDir(dir, ConnectionsConfigFileFullName)
	c := shared.ConnectionDetails{Type: "postgres", LogicalName: "pg", Data: map[string]string{"dsn": "postgres://u:p@h/db"}}
	require.NoError(t, f.Set("pg", c))

	g := NewConfigFileWithDir(dir, ConnectionsConfigFileFullName)
	got, err := g.LoadConnection("pg")
	require.NoError(t, err)
	require.Equal(t, c, got)

	typ, err := g.GetConnectionType("pg")
	require.NoError(t, err)
	require.Equal(t, "postgres", typ)

	_, err = g.LoadConnection("nope")
	require.Error(t, err)

	// Environment DSN override.
	require.NoError(t, os.Setenv("ETL_PG_DSN", "postgres://other/db"))
	defer os.Unsetenv("ETL_PG_DSN")
	got, err = g.LoadConnection("pg")
	require.NoError(t, err)
	require.Equal(t, "postgres://other/db", got.Data["dsn"])
}

func TestSettingsDefaults(t *testing.T) {
	s := NewSettingsWithDir(t.TempDir())
	require.False(t, s.Initialized())
	d, err := s.LoadDefaults()
	require.NoError(t, err)
	require.Equal(t, "info", d.LogLevel)
	require.Equal(t, 1, d.Parallelism)

	require.NoError(t, s.Main.Set(KeyParallelism, "4"))
	require.True(t, s.Initialized())
	require.NoError(t, os.Setenv("ETL_LOG_LEVEL", "debug"))
	defer os.Unsetenv("ETL_LOG_LEVEL")
	d, err = s.LoadDefaults()
	require.NoError(t, err)
	require.Equal(t, 4, d.Parallelism)
	require.Equal(t, "debug", d.LogLevel)
	require.True(t, IsDefaultKey(KeyScenarioDir))
	require.False(t, IsDefaultKey("nope"))
}

func TestEncryptDecrypt(t *testing.T) {
	a, err := Encrypt([]byte("secret"), fileKey)
	require.NoError(t, err)
	b, err := Encrypt([]byte("secret"), fileKey)
	require.NoError(t, err)
	require.NotEqual(t, a, b) // fresh nonce per call
	got, err := Decrypt(a, fileKey)
	require.NoError(t, err)
	require.Equal(t, "secret", string(got))

	a[len(a)-1] ^= 0xff
	_, err = Decrypt(a, fileKey)
	require.Error(t, err)
	_, err = Decrypt([]byte("x"), fileKey)
	require.Error(t, err)
}

func TestEncryptedFileRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	f := NewEncryptedFile(dir, "bad.yaml")
	_, err := f.Get()
	require.IsType(t, FileNotFoundError{}, err)
	require.NoError(t, os.WriteFile(f.FullPath, []byte("!!not base64!!"), 0600))
	_, err = f.Get()
	require.Error(t, err)
	require.Contains(t, err.Error(), "not base64")
}
