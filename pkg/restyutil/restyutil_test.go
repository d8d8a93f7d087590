package restyutil

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/require"
)

func TestFormatHeaders(t *testing.T) {
	headers := http.Header{}
	headers.Set("Authorization", "Bearer secret-token")
	headers.Set("Content-Type", "application/json")

	out := formatHeaders(headers)
	require.Equal(t, "Authorization: <redacted>\nContent-Type: application/json", out)
	require.Equal(t, "", formatHeaders(http.Header{}))
}

func TestInstrumentClientWritesExchanges(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	dir := filepath.Join(t.TempDir(), "resty")
	output, err := NewFilesystemOutput(dir)
	require.NoError(t, err)

	client := resty.New()
	InstrumentClient(client, nil, output)

	_, err = client.R().
		SetAuthToken("secret-token").
		SetBody(map[string]string{"hello": "world"}).
		Post(server.URL)
	require.NoError(t, err)

	contents, err := os.ReadFile(filepath.Join(dir, "1"))
	require.NoError(t, err)
	require.True(t, strings.Contains(string(contents), `{"ok":true}`))
	require.False(t, strings.Contains(string(contents), "secret-token"))
}
