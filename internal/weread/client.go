package weread

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/mrlokans/weread2flomo/internal/entities"
)

const (
	DefaultBaseURL = "https://weread.qq.com"

	notebookPath     = "/api/user/notebook"
	bookmarkListPath = "/web/book/bookmarklist"
	chapterInfosPath = "/web/book/chapterInfos"
	reviewListPath   = "/web/review/list"
	bookInfoPath     = "/api/book/info"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36"

	defaultTimeout     = 30 * time.Second
	defaultMaxRetries  = 3
	initialRetryDelay  = 1 * time.Second
	maxRetryDelay      = 30 * time.Second
	retryBackoffFactor = 2
)

// Client reads the user's notebooks from WeRead using a browser cookie.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cookie     string
	maxRetries int
	retryDelay time.Duration
	now        func() time.Time
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithMaxRetries sets how many attempts a request gets in total.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// NewClient creates a new WeRead API client
func NewClient(cookie string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    DefaultBaseURL,
		cookie:     cookie,
		maxRetries: defaultMaxRetries,
		retryDelay: initialRetryDelay,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type errorFields struct {
	ErrCode      int    `json:"errCode"`
	ErrCodeLower int    `json:"errcode"`
	ErrMsg       string `json:"errMsg"`
	ErrMsgLower  string `json:"errmsg"`
}

func (e errorFields) err() error {
	code := e.ErrCode
	if code == 0 {
		code = e.ErrCodeLower
	}
	if code == 0 {
		return nil
	}
	msg := e.ErrMsg
	if msg == "" {
		msg = e.ErrMsgLower
	}
	return &APIError{Code: code, Message: msg}
}

type notebookResponse struct {
	errorFields
	Books []struct {
		BookID string `json:"bookId"`
		Book   struct {
			Title    string `json:"title"`
			Author   string `json:"author"`
			Cover    string `json:"cover"`
			Category string `json:"category"`
		} `json:"book"`
	} `json:"books"`
}

type bookmarkListResponse struct {
	errorFields
	Updated []struct {
		BookmarkID string `json:"bookmarkId"`
		BookID     string `json:"bookId"`
		ChapterUID int    `json:"chapterUid"`
		MarkText   string `json:"markText"`
		CreateTime int64  `json:"createTime"`
	} `json:"updated"`
}

type chapterData struct {
	ChapterUID int    `json:"chapterUid"`
	ChapterIdx *int   `json:"chapterIdx"`
	Title      string `json:"title"`
	Level      int    `json:"level"`
}

type reviewListResponse struct {
	errorFields
	Reviews []struct {
		Review *struct {
			BookmarkID string `json:"bookmarkId"`
			Content    string `json:"content"`
			ChapterUID int    `json:"chapterUid"`
			Type       int    `json:"type"`
		} `json:"review"`
	} `json:"reviews"`
}

type bookInfoResponse struct {
	errorFields
	BookID    string `json:"bookId"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Intro     string `json:"intro"`
	Category  string `json:"category"`
	Publisher string `json:"publisher"`
	ISBN      string `json:"isbn"`
}

// CheckSession verifies the cookie by listing the notebook.
func (c *Client) CheckSession(ctx context.Context) error {
	if c.cookie == "" {
		return fmt.Errorf("%w: no cookie configured", ErrSessionExpired)
	}
	var resp notebookResponse
	if err := c.get(ctx, notebookPath, nil, &resp); err != nil {
		return err
	}
	return resp.err()
}

// Books lists every book that has notes or highlights, in notebook order.
func (c *Client) Books(ctx context.Context) ([]entities.Book, error) {
	var resp notebookResponse
	if err := c.get(ctx, notebookPath, nil, &resp); err != nil {
		return nil, err
	}
	if err := resp.err(); err != nil {
		return nil, err
	}

	books := make([]entities.Book, 0, len(resp.Books))
	for _, b := range resp.Books {
		if b.BookID == "" {
			continue
		}
		books = append(books, entities.Book{
			ID:       b.BookID,
			Title:    b.Book.Title,
			Author:   b.Book.Author,
			Cover:    b.Book.Cover,
			Category: b.Book.Category,
		})
	}
	return books, nil
}

func (c *Client) BookInfo(ctx context.Context, bookID string) (*entities.BookInfo, error) {
	var resp bookInfoResponse
	if err := c.get(ctx, bookInfoPath, url.Values{"bookId": {bookID}}, &resp); err != nil {
		return nil, err
	}
	if err := resp.err(); err != nil {
		return nil, err
	}
	return &entities.BookInfo{
		ID:        resp.BookID,
		Title:     resp.Title,
		Author:    resp.Author,
		Intro:     resp.Intro,
		Category:  resp.Category,
		Publisher: resp.Publisher,
		ISBN:      resp.ISBN,
	}, nil
}

// Bookmarks returns the highlights of a book, dropping entries without text
// or chapter.
func (c *Client) Bookmarks(ctx context.Context, bookID string) ([]entities.Bookmark, error) {
	var resp bookmarkListResponse
	if err := c.get(ctx, bookmarkListPath, url.Values{"bookId": {bookID}}, &resp); err != nil {
		return nil, err
	}
	if err := resp.err(); err != nil {
		return nil, err
	}

	bookmarks := make([]entities.Bookmark, 0, len(resp.Updated))
	for _, bm := range resp.Updated {
		if bm.MarkText == "" || bm.ChapterUID == 0 {
			continue
		}
		bookmarks = append(bookmarks, entities.Bookmark{
			ID:         bm.BookmarkID,
			BookID:     bookID,
			ChapterUID: bm.ChapterUID,
			Text:       bm.MarkText,
			CreatedAt:  bm.CreateTime,
		})
	}
	return bookmarks, nil
}

// Chapters returns the chapter list followed by the synthetic review chapter.
// Calling it resets parts of the WeRead session, so fetch bookmarks first.
func (c *Client) Chapters(ctx context.Context, bookID string) ([]entities.Chapter, error) {
	body, err := json.Marshal(map[string][]string{"bookIds": {bookID}})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, chapterInfosPath, nil, body, bookID, &raw); err != nil {
		return nil, err
	}

	data, err := parseChapters(raw)
	if err != nil {
		return nil, err
	}

	chapters := make([]entities.Chapter, 0, len(data)+1)
	for _, ch := range data {
		chapters = append(chapters, entities.Chapter{
			UID:   ch.ChapterUID,
			Index: ch.ChapterIdx,
			Title: ch.Title,
			Level: ch.Level,
		})
	}
	reviewIdx := entities.ReviewChapterUID
	chapters = append(chapters, entities.Chapter{
		UID:   entities.ReviewChapterUID,
		Index: &reviewIdx,
		Title: entities.ReviewChapterTitle,
		Level: 1,
	})
	return chapters, nil
}

// parseChapters accepts the three shapes the endpoint has been seen to
// return: {"data":[{"updated":[...]}]}, {"updated":[...]} and a bare array.
func parseChapters(raw json.RawMessage) ([]chapterData, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("empty chapter response")
	}

	type wrapped struct {
		Updated []chapterData `json:"updated"`
	}

	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("failed to decode chapters: %w", err)
		}
		if len(items) == 0 {
			return nil, nil
		}
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(items[0], &probe); err != nil {
			return nil, fmt.Errorf("failed to decode chapters: %w", err)
		}
		if _, ok := probe["updated"]; ok {
			var w []wrapped
			if err := json.Unmarshal(trimmed, &w); err != nil {
				return nil, fmt.Errorf("failed to decode chapters: %w", err)
			}
			return w[0].Updated, nil
		}
		var chapters []chapterData
		if err := json.Unmarshal(trimmed, &chapters); err != nil {
			return nil, fmt.Errorf("failed to decode chapters: %w", err)
		}
		return chapters, nil
	}

	var obj struct {
		errorFields
		Data    []wrapped     `json:"data"`
		Updated []chapterData `json:"updated"`
	}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, fmt.Errorf("failed to decode chapters: %w", err)
	}
	switch {
	case len(obj.Data) > 0:
		return obj.Data[0].Updated, nil
	case obj.Updated != nil:
		return obj.Updated, nil
	}
	if err := obj.err(); err != nil {
		return nil, err
	}
	return nil, errors.New("unexpected chapter response format")
}

// Reviews returns the user's own notes on a book. Book-level reviews are
// moved to the synthetic review chapter.
func (c *Client) Reviews(ctx context.Context, bookID string) ([]entities.Review, error) {
	params := url.Values{
		"bookId":   {bookID},
		"listType": {"11"},
		"mine":     {"1"},
		"syncKey":  {"0"},
	}
	var resp reviewListResponse
	if err := c.get(ctx, reviewListPath, params, &resp); err != nil {
		return nil, err
	}
	if err := resp.err(); err != nil {
		return nil, err
	}

	reviews := make([]entities.Review, 0, len(resp.Reviews))
	for _, item := range resp.Reviews {
		if item.Review == nil {
			continue
		}
		r := entities.Review{
			BookmarkID: item.Review.BookmarkID,
			Content:    item.Review.Content,
			ChapterUID: item.Review.ChapterUID,
			Type:       item.Review.Type,
		}
		if r.Type == entities.ReviewTypeBook {
			r.ChapterUID = entities.ReviewChapterUID
		}
		reviews = append(reviews, r)
	}
	return reviews, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, params, nil, "", out)
}

// do retries rate limits and server errors with exponential backoff.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body []byte, bookID string, out any) error {
	if params == nil {
		params = url.Values{}
	}
	// Cache buster, WeRead serves stale notebooks otherwise.
	params.Set("_", strconv.FormatInt(c.now().UnixMilli(), 10))
	endpoint := c.baseURL + path + "?" + params.Encode()

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.calculateRetryDelay(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = c.doRequest(ctx, method, endpoint, body, bookID, out)
		if lastErr == nil {
			return nil
		}

		// Only retry on rate limits or server errors
		if !isRetryableError(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, body []byte, bookID string, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Cookie", c.cookie)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	req.Header.Set("Origin", DefaultBaseURL)
	if bookID != "" {
		req.Header.Set("Referer", DefaultBaseURL+"/web/reader/"+bookID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrSessionExpired
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode >= 500 {
		return &ServerError{StatusCode: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(data))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) calculateRetryDelay(attempt int) time.Duration {
	delay := c.retryDelay
	for i := 1; i < attempt; i++ {
		delay *= time.Duration(retryBackoffFactor)
	}
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

func isRetryableError(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var serverErr *ServerError
	return errors.As(err, &serverErr)
}
