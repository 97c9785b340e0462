package fetchhttp

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/batchfetch/internal/utils"
)

// Source serves sizes via HEAD and content via Range GET requests.
type Source struct {
	client utils.HTTPDoer
}

func NewSource(client utils.HTTPDoer) *Source {
	return &Source{client: client}
}

func (s *Source) Size(ctx context.Context, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, fmt.Errorf("error creating HEAD request for %s: %w", url, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("error checking %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("server returned %d for %s", resp.StatusCode, url)
	}
	contentLength := resp.Header.Get("Content-Length")
	if contentLength == "" {
		return 0, &utils.SizeUnavailableError{URL: url, Name: path.Base(req.URL.Path)}
	}
	size, err := strconv.ParseInt(contentLength, 10, 64)
	if err != nil || size < 0 {
		return 0, &utils.SizeUnavailableError{URL: url, Name: path.Base(req.URL.Path)}
	}
	log.Debug().Str("op", "http/source").Str("url", url).Int64("size", size).Msg("Remote size")
	return size, nil
}

func (s *Source) OpenRange(ctx context.Context, url string, offset int64) (*utils.RangeResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating GET request for %s: %w", url, err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	req.Header.Set("Connection", "keep-alive")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error executing GET request for %s: %w", url, err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return &utils.RangeResponse{Body: resp.Body, Offset: 0, Partial: false}, nil
	case http.StatusPartialContent:
		start, ok := utils.ContentRangeStart(resp.Header.Get("Content-Range"))
		if ok && start != offset {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: asked for %d, got %d from %s", utils.ErrRangeMismatch, offset, start, url)
		}
		return &utils.RangeResponse{Body: resp.Body, Offset: offset, Partial: true}, nil
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code %d for %s", resp.StatusCode, url)
	}
}
