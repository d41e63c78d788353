package youthcenter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"policy_sync/internal/domain"
)

const (
	SourceID   = "youthcenter"
	SourceName = "Youth Center Open API"
)

// Config holds Open API source configuration.
type Config struct {
	BaseURL        string
	APIKey         string
	PageSize       int
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Source fetches paginated policy pages from the Open API.
type Source struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	pageSize       int
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

// New creates a new Open API source.
func New(cfg Config, logger *slog.Logger) *Source {
	return &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:        cfg.BaseURL,
		apiKey:         cfg.APIKey,
		pageSize:       cfg.PageSize,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("source", SourceID),
	}
}

// ID returns the source identifier.
func (s *Source) ID() string {
	return SourceID
}

// Name returns human-readable name.
func (s *Source) Name() string {
	return SourceName
}

// FetchPages walks the feed page by page up to maxPages. Each returned page
// carries the verbatim response body plus the policy records split out of it,
// so the raw landing zone can record pages exactly as received.
func (s *Source) FetchPages(ctx context.Context, maxPages int) ([]domain.FetchedPage, error) {
	var pages []domain.FetchedPage

	for pageNum := 1; pageNum <= maxPages; pageNum++ {
		page, total, err := s.fetchPage(ctx, pageNum)
		if page != nil {
			// Failed fetches are returned too, so the raw landing zone keeps
			// an audit row for them.
			pages = append(pages, *page)
		}
		if err != nil {
			return pages, fmt.Errorf("fetch page %d: %w", pageNum, err)
		}

		s.logger.Debug("fetched page",
			"page", pageNum,
			"records", len(page.Records),
			"total_available", total,
		)

		if pageNum*s.pageSize >= total {
			break
		}
	}

	return pages, nil
}

func (s *Source) fetchPage(ctx context.Context, pageNum int) (*domain.FetchedPage, int, error) {
	query := url.Values{}
	query.Set("apiKeyNm", s.apiKey)
	query.Set("rtnType", "json")
	query.Set("pageNum", fmt.Sprintf("%d", pageNum))
	query.Set("pageSize", fmt.Sprintf("%d", s.pageSize))

	var page *domain.FetchedPage
	var total int
	var err error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		page, total, err = s.doRequest(ctx, query, pageNum)
		if err == nil {
			return page, total, nil
		}

		if attempt == s.maxAttempts {
			break
		}

		backoff := s.calculateBackoff(attempt)
		s.logger.Warn("request failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return page, 0, fmt.Errorf("after %d attempts: %w", s.maxAttempts, err)
}

func (s *Source) doRequest(ctx context.Context, query url.Values, pageNum int) (*domain.FetchedPage, int, error) {
	reqURL := s.baseURL + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "PolicySync/1.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}

	queryParams, _ := json.Marshal(map[string]string{
		"pageNum":  query.Get("pageNum"),
		"pageSize": query.Get("pageSize"),
		"rtnType":  query.Get("rtnType"),
	})

	page := &domain.FetchedPage{
		Page: domain.RawPage{
			BaseURL:     s.baseURL,
			HTTPStatus:  resp.StatusCode,
			PageNo:      pageNum,
			PageSize:    s.pageSize,
			QueryParams: queryParams,
			Payload:     body,
		},
	}

	if resp.StatusCode != http.StatusOK {
		// The page is still returned so the raw store keeps the failed fetch.
		return page, 0, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return page, 0, fmt.Errorf("decode response: %w", err)
	}

	if apiResp.ResultCode != 200 {
		return page, 0, fmt.Errorf("api error %d: %s", apiResp.ResultCode, apiResp.ResultMessage)
	}

	for _, raw := range apiResp.Result.Policies {
		var key policyKey
		if err := json.Unmarshal(raw, &key); err != nil || key.PlcyNo == "" {
			s.logger.Warn("skipping record without policy id", "page", pageNum)
			continue
		}

		page.Records = append(page.Records, domain.LandingRecord{
			PolicyID: key.PlcyNo,
			RawJSON:  raw,
			PageNo:   pageNum,
		})
	}

	return page, apiResp.Result.Paging.TotalCount, nil
}

func (s *Source) calculateBackoff(attempt int) time.Duration {
	backoff := s.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > s.maxBackoff {
		backoff = s.maxBackoff
	}
	return backoff
}
