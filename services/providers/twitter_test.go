package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTwitterProvider_GetOrCreateUser(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if !strings.Contains(gotAuth, `oauth_token="tok1"`) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "true", r.URL.Query().Get("include_email"))
		_, _ = w.Write([]byte(`{"id_str":"777","screen_name":"jack","email":"jack@example.com","profile_image_url_https":"https://tw/p.png"}`))
	}))
	defer srv.Close()

	res := &recordingResolver{}
	p := NewTwitterProvider("ckey", "csecret", srv.URL, res, nil, time.Second)

	assert.Equal(t, "twitter", p.Name())
	assert.Equal(t, 2, p.Arity())

	user, err := p.GetOrCreateUser(context.Background(), "app:a", "tok1", "tok2")
	require.NoError(t, err)
	assert.Equal(t, "twitter:777", user.Identifier)

	profile := res.last()
	assert.Equal(t, "jack", profile.Name)
	assert.Equal(t, "jack@example.com", profile.Email)

	assert.True(t, strings.HasPrefix(gotAuth, "OAuth "))
	assert.Contains(t, gotAuth, `oauth_consumer_key="ckey"`)
	assert.Contains(t, gotAuth, `oauth_signature_method="HMAC-SHA1"`)
	assert.Contains(t, gotAuth, `oauth_nonce="`)
	assert.Contains(t, gotAuth, `oauth_timestamp="`)
	assert.Contains(t, gotAuth, `oauth_signature="`)

	_, err = p.GetOrCreateUser(context.Background(), "app:a", "other", "tok2")
	assert.Error(t, err)

	_, err = p.GetOrCreateUser(context.Background(), "app:a", "only-one")
	assert.Error(t, err)
}

func TestNewTwitterProvider_DefaultURL(t *testing.T) {
	p := NewTwitterProvider("k", "s", "", &recordingResolver{}, nil, time.Second)
	assert.Equal(t, DefaultTwitterVerifyURL, p.verifyURL)
}
