package gravatar_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactly/accounts/pkg/gravatar"
)

func TestHash(t *testing.T) {
	// reference value from the gravatar documentation
	assert.Equal(t, "0bc83cb571cd1c50ba6f3e8a78ef1346", gravatar.Hash("MyEmailAddress@example.com "))
	// trimming and lowercasing are part of the hash contract
	assert.Equal(t, gravatar.Hash("jane@example.com"), gravatar.Hash("  JANE@Example.COM  "))
}

func TestAvatarURL(t *testing.T) {
	t.Run("image exists", func(t *testing.T) {
		var probed string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			probed = r.URL.String()
			w.WriteHeader(http.StatusOK)
		}))
		t.Cleanup(srv.Close)

		c := gravatar.NewClient()
		c.BaseURL = srv.URL

		url, err := c.AvatarURL(context.Background(), "jane@example.com")
		require.NoError(t, err)
		assert.Contains(t, url, "/avatar/"+gravatar.Hash("jane@example.com"))
		assert.Contains(t, url, "s=256")
		// the probe asks for a 404 default, the returned URL does not
		assert.Contains(t, probed, "d=404")
		assert.NotContains(t, url, "d=404")
	})

	t.Run("no registered image", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		t.Cleanup(srv.Close)

		c := gravatar.NewClient()
		c.BaseURL = srv.URL

		_, err := c.AvatarURL(context.Background(), "jane@example.com")
		require.Error(t, err)
	})

	t.Run("service unreachable", func(t *testing.T) {
		c := gravatar.NewClient()
		c.BaseURL = "http://127.0.0.1:1"

		_, err := c.AvatarURL(context.Background(), "jane@example.com")
		require.Error(t, err)
	})
}
