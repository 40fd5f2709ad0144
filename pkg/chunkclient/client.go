// Package chunkclient реализует клиент сервиса чанковой загрузки с повторами и докачкой.
package chunkclient

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sir_venger/chunk_lite/pkg/chunkproto"
)

const defaultRetryMax = 4

// Client ходит в HTTP API сервиса. Сетевые ошибки и 5xx повторяются,
// 409 на склейке повторяется после паузы из Retry-After.
type Client struct {
	baseURL  string
	http     *retryablehttp.Client
	progress io.Writer
}

type Option func(*Client)

// WithHTTPClient подменяет транспортный клиент, например на клиент httptest.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http.HTTPClient = hc }
}

// WithRetry задаёт число повторов и границы паузы между ними.
func WithRetry(retryMax int, minWait, maxWait time.Duration) Option {
	return func(c *Client) {
		c.http.RetryMax = retryMax
		c.http.RetryWaitMin = minWait
		c.http.RetryWaitMax = maxWait
	}
}

// WithLogger пишет попытки и повторы в slog.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.http.Logger = l
		}
	}
}

// WithProgress включает индикатор выполнения UploadFile в w.
func WithProgress(w io.Writer) Option {
	return func(c *Client) { c.progress = w }
}

// New создаёт клиент для сервиса по адресу baseURL.
func New(baseURL string, opts ...Option) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = defaultRetryMax
	rc.Logger = nil
	rc.CheckRetry = checkRetry
	rc.Backoff = backoff
	// После последней попытки отдаём ответ сервера как есть, чтобы разобрать тело ошибки.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    rc,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check возвращает индексы чанков, которые сервер уже получил.
func (c *Client) Check(ctx context.Context, hash string) ([]int, error) {
	u := c.baseURL + chunkproto.PathCheck + "?" + url.Values{chunkproto.QueryHash: {hash}}.Encode()
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	var out chunkproto.CheckResponse
	if err = c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// UploadChunk отправляет один чанк multipart-формой вместе с его SHA-256.
// Тело собирается в памяти, чтобы повтор мог отправить его заново.
func (c *Client) UploadChunk(ctx context.Context, hash string, index int, data []byte) error {
	sum := sha256.Sum256(data)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := [][2]string{
		{chunkproto.FieldHash, hash},
		{chunkproto.FieldIndex, strconv.Itoa(index)},
		{chunkproto.FieldSha256, hex.EncodeToString(sum[:])},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return err
		}
	}
	fw, err := mw.CreateFormFile(chunkproto.FieldFile, strconv.Itoa(index))
	if err != nil {
		return err
	}
	if _, err = fw.Write(data); err != nil {
		return err
	}
	if err = mw.Close(); err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chunkproto.PathUpload, body.Bytes())
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.do(req, nil)
}

// Merge просит сервер склеить сессию в файл filename. total = 0 отключает проверку числа чанков.
//
// Если ответ на первую попытку потерялся, а склейка на сервере прошла, повтор получит 404:
// сессии уже нет. Тогда Merge ищет файл filename и считает склейку выполненной,
// если он собран из той же сессии.
func (c *Client) Merge(ctx context.Context, hash, filename string, total int) (chunkproto.Artifact, error) {
	payload, err := json.Marshal(chunkproto.MergeRequest{Hash: hash, Filename: filename, Total: total})
	if err != nil {
		return chunkproto.Artifact{}, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chunkproto.PathMerge, payload)
	if err != nil {
		return chunkproto.Artifact{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out chunkproto.MergeResponse
	if err = c.do(req, &out); err != nil {
		if IsStatus(err, http.StatusNotFound) {
			if a, lookupErr := c.Artifact(ctx, filename); lookupErr == nil && a.SessionKey == hash {
				return a, nil
			}
		}
		return chunkproto.Artifact{}, err
	}
	if out.Artifact == nil {
		return chunkproto.Artifact{}, fmt.Errorf("merge response without artifact")
	}
	return *out.Artifact, nil
}

// Artifact читает метаданные собранного файла.
func (c *Client) Artifact(ctx context.Context, name string) (chunkproto.Artifact, error) {
	u := c.baseURL + fmt.Sprintf(chunkproto.PathArtifactFormat, url.PathEscape(name))
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return chunkproto.Artifact{}, err
	}

	var out chunkproto.Artifact
	if err = c.do(req, &out); err != nil {
		return chunkproto.Artifact{}, err
	}
	return out, nil
}

func (c *Client) do(req *retryablehttp.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

// checkRetry дополняет стандартную политику: 409 с Retry-After означает,
// что склейка занята другим запросом и её стоит повторить.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if resp != nil && resp.StatusCode == http.StatusConflict && resp.Header.Get(chunkproto.HeaderRetryAfter) != "" {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

func backoff(minWait, maxWait time.Duration, attempt int, resp *http.Response) time.Duration {
	if resp != nil && resp.StatusCode == http.StatusConflict {
		if s, err := strconv.Atoi(resp.Header.Get(chunkproto.HeaderRetryAfter)); err == nil && s >= 0 {
			return min(time.Duration(s)*time.Second, maxWait)
		}
	}
	return retryablehttp.DefaultBackoff(minWait, maxWait, attempt, resp)
}
