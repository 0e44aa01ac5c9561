package chat

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"time"
)

// DateFormat is the RFC 1123 layout the gateway expects, always in GMT.
const DateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// SignedRequest carries everything needed to open an authenticated socket.
type SignedRequest struct {
	Host          string
	Path          string
	Date          string
	Signature     string
	Authorization string
	URL           string
}

// Sign builds the HMAC-SHA256 authorization for a GET upgrade of path on host.
// The result depends only on its arguments.
func Sign(secretKey, apiKey, host, path string, ts time.Time) SignedRequest {
	date := ts.UTC().Format(DateFormat)
	origin := fmt.Sprintf("host: %s\ndate: %s\nGET %s HTTP/1.1", host, date, path)

	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(origin))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	authOrigin := fmt.Sprintf(`api_key="%s", algorithm="hmac-sha256", headers="host date request-line", signature="%s"`, apiKey, signature)
	authorization := base64.StdEncoding.EncodeToString([]byte(authOrigin))

	q := url.Values{}
	q.Set("authorization", authorization)
	q.Set("date", date)
	q.Set("host", host)

	return SignedRequest{
		Host:          host,
		Path:          path,
		Date:          date,
		Signature:     signature,
		Authorization: authorization,
		URL:           "wss://" + host + path + "?" + q.Encode(),
	}
}
