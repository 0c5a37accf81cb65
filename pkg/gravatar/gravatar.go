// Package gravatar resolves a default avatar image URL for an email
// address. Lookups are best-effort: callers are expected to proceed
// without an avatar when the service is unreachable.
package gravatar

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://www.gravatar.com"

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Size    int
}

func NewClient() *Client {
	return &Client{
		BaseURL: defaultBaseURL,
		HTTP:    &http.Client{Timeout: 5 * time.Second},
		Size:    256,
	}
}

// Hash returns the gravatar hash for an email: md5 of the trimmed,
// lowercased address.
func Hash(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

// AvatarURL probes gravatar for an image registered to email and returns
// its URL. The probe uses d=404 so that addresses without a gravatar
// come back as an error instead of a generated placeholder.
func (c *Client) AvatarURL(ctx context.Context, email string) (string, error) {
	url := fmt.Sprintf("%s/avatar/%s?s=%d", c.BaseURL, Hash(email), c.Size)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url+"&d=404", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gravatar: no image for %s (status %d)", email, resp.StatusCode)
	}
	return url, nil
}
