package routing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

func (k *Kakao) newRequest(ctx context.Context, endpoint string, query url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.URL.RawQuery = query.Encode()
	req.Header.Set("Authorization", "KakaoAK "+k.apiKey)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do sends a single request. There is no retry: a failed lookup is retried by
// the next cache miss instead.
func (k *Kakao) do(req *http.Request) (*http.Response, error) {
	resp, err := k.session.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &httpStatusError{
			Code: resp.StatusCode,
			Body: strings.TrimSpace(string(b)),
		}
	}
	return resp, nil
}
