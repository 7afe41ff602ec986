package provider

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
)

// HTTPFetcher 用普通 GET 抓取页面。
type HTTPFetcher struct {
	Client *http.Client
}

func (HTTPFetcher) Name() string { return ModeHTTP }

// 页面体积上限：详情页通常 < 1MiB，超出视为异常响应。
const maxBodyBytes = 8 << 20

var challengeMarkers = [][]byte{
	[]byte(`id="challenge-form"`),
	[]byte(`cf-browser-verification`),
	[]byte(`id="cf-challenge`),
}

func (f HTTPFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	c := f.Client
	if c == nil {
		c = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}

	// 最终落在 consent/验证页：视为被拦截，不尝试绕过。
	if resp.Request != nil && resp.Request.URL != nil {
		p := strings.ToLower(resp.Request.URL.Path)
		if strings.Contains(p, "/consent") || strings.Contains(p, "/cdn-cgi/") {
			return nil, &BlockedError{URL: resp.Request.URL.String(), Reason: BlockReasonConsent}
		}
	}
	for _, m := range challengeMarkers {
		if bytes.Contains(b, m) {
			return nil, &BlockedError{URL: pageURL, Reason: BlockReasonChallenge}
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPStatusError{URL: pageURL, StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}
	}
	if len(b) == 0 {
		return nil, errors.New("empty response body")
	}
	return b, nil
}
