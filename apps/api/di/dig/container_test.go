package dig_container

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/masomo-guardian/apps/api/echo"
	"github.com/trezcool/masomo-guardian/core"
)

func TestNew(t *testing.T) {
	c := New(core.NewTestConfig)

	err := c.Invoke(func(server *echoapi.Server, closers ClosersParam) {
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Body.String(), `"db":"ok"`)
		assert.Contains(t, rec.Body.String(), `"throttle":"ok"`)

		assert.Len(t, closers.Closers, 3)
		for _, closer := range closers.Closers {
			assert.NoError(t, closer.Close())
		}
	})
	require.NoError(t, err)
}
