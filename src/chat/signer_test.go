package chat

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignIsDeterministic(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("CST", 8*3600))

	a := Sign("secret", "key", "spark.example.com", "/v1/assistants/abc", ts)
	b := Sign("secret", "key", "spark.example.com", "/v1/assistants/abc", ts)

	assert.Equal(t, a, b)
	assert.Equal(t, "Mon, 01 Jan 2024 19:04:05 GMT", a.Date)
}

func TestSignKnownVector(t *testing.T) {
	ts := time.Date(2024, 1, 1, 19, 4, 5, 0, time.UTC)
	got := Sign("YWQ5YWEx", "b14a01cd", "spark.example.com", "/v1/assistants/abc", ts)

	origin := "host: spark.example.com\ndate: Mon, 01 Jan 2024 19:04:05 GMT\nGET /v1/assistants/abc HTTP/1.1"
	mac := hmac.New(sha256.New, []byte("YWQ5YWEx"))
	mac.Write([]byte(origin))
	wantSig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	require.Equal(t, wantSig, got.Signature)

	rawAuth, err := base64.StdEncoding.DecodeString(got.Authorization)
	require.NoError(t, err)
	assert.Equal(t,
		`api_key="b14a01cd", algorithm="hmac-sha256", headers="host date request-line", signature="`+wantSig+`"`,
		string(rawAuth))

	require.True(t, strings.HasPrefix(got.URL, "wss://spark.example.com/v1/assistants/abc?"))
	u, err := url.Parse(got.URL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, got.Authorization, q.Get("authorization"))
	assert.Equal(t, "Mon, 01 Jan 2024 19:04:05 GMT", q.Get("date"))
	assert.Equal(t, "spark.example.com", q.Get("host"))
}

func TestSignDependsOnSecret(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	a := Sign("one", "key", "h", "/p", ts)
	b := Sign("two", "key", "h", "/p", ts)
	assert.NotEqual(t, a.Signature, b.Signature)
	assert.Equal(t, a.Date, b.Date)
}
