package warehouse

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWarehouse_HTTP_Execute(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.Equal(t, "SELECT media_source, clicks FROM events FORMAT JSON", string(body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"meta": [{"name": "media_source", "type": "String"}, {"name": "clicks", "type": "UInt64"}],
			"data": [{"media_source": "facebook", "clicks": 42}, {"media_source": "google", "clicks": 1.5}],
			"rows": 2
		}`))
	}))
	defer srv.Close()

	set, err := NewHTTP(srv.URL, srv.Client()).Execute(t.Context(), "  SELECT media_source, clicks FROM events; ")
	require.NoError(t, err)
	require.Equal(t, []string{"media_source", "clicks"}, set.Columns)
	require.Equal(t, int64(42), set.Rows[0]["clicks"])
	require.Equal(t, 1.5, set.Rows[1]["clicks"])
}

func TestWarehouse_HTTP_ErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "Code: 60. DB::Exception: Table default.nope does not exist", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewHTTP(srv.URL, srv.Client()).Execute(t.Context(), "SELECT * FROM nope")
	require.Error(t, err)
	require.Contains(t, err.Error(), "404")
	require.Contains(t, err.Error(), "does not exist")
}

func TestWarehouse_HTTP_BadPayloadAndEmptyQuery(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	wh := NewHTTP(srv.URL, srv.Client())
	_, err := wh.Execute(t.Context(), "SELECT 1")
	require.ErrorContains(t, err, "failed to parse response")

	_, err = wh.Execute(t.Context(), " ; ")
	require.EqualError(t, err, "empty query")
}
