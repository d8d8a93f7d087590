package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Name    string            `json:"name"`
	Port    int               `json:"port"`
	Headers map[string]string `json:"headers"`
}

func write(t *testing.T, path, contents string) {
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
}

func TestReadConfigMergesLocal(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "config.json5")
	write(t, name, `{
		// comments are allowed
		name: "base",
		port: 1,
	}`)
	write(t, filepath.Join(dir, "config.local.json5"), `{port: 2}`)

	config, err := ReadConfig[testConfig](name)
	require.NoError(t, err)
	require.Equal(t, testConfig{Name: "base", Port: 2}, config)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "config.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadWithDefaults(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "config.json5")
	defaults := testConfig{Name: "default", Port: 2533}

	config, err := ReadWithDefaults(name, defaults)
	require.NoError(t, err)
	require.Equal(t, defaults, config)

	write(t, name, `{name: "custom"}`)
	config, err = ReadWithDefaults(name, defaults)
	require.NoError(t, err)
	require.Equal(t, testConfig{Name: "custom", Port: 2533}, config)

	write(t, name, `{name: `)
	_, err = ReadWithDefaults(name, defaults)
	require.Error(t, err)
}

func TestLocalName(t *testing.T) {
	require.Equal(t, filepath.Join("a", "b", "config.local.json5"), LocalName(filepath.Join("a", "b", "config.json5")))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PLATEWATCH_TEST_STR", "value")
	t.Setenv("PLATEWATCH_TEST_FLOAT", "0.8")
	t.Setenv("PLATEWATCH_TEST_BAD", "high")

	s := "default"
	EnvString(&s, "PLATEWATCH_TEST_STR")
	require.Equal(t, "value", s)
	EnvString(&s, "PLATEWATCH_TEST_UNSET")
	require.Equal(t, "value", s)

	f := 0.7
	require.NoError(t, EnvFloat(&f, "PLATEWATCH_TEST_FLOAT"))
	require.Equal(t, 0.8, f)
	require.Error(t, EnvFloat(&f, "PLATEWATCH_TEST_BAD"))
	require.Equal(t, 0.8, f)
}

func TestLoadDotenv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	write(t, path, "PLATEWATCH_DOTENV_TEST=from-file\n")
	t.Setenv("PLATEWATCH_DOTENV_TEST", "")
	os.Unsetenv("PLATEWATCH_DOTENV_TEST")

	require.NoError(t, LoadDotenv(filepath.Join(dir, "missing.env"), path))
	require.Equal(t, "from-file", os.Getenv("PLATEWATCH_DOTENV_TEST"))
}
