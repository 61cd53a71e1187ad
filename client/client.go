package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"

	vderrors "github.com/23skdu/vdbload/internal/errors"
	"github.com/23skdu/vdbload/internal/limiter"
	"github.com/23skdu/vdbload/internal/metrics"
	"github.com/23skdu/vdbload/internal/pool"
)

// Operation names used in errors and metric labels.
const (
	OpLogin             = "login"
	OpCreateCollection  = "create_collection"
	OpGetCollection     = "get_collection"
	OpCreateIndex       = "create_index"
	OpCreateTransaction = "create_transaction"
	OpUpsert            = "upsert"
	OpCommit            = "commit"
	OpAbort             = "abort"
	OpSearch            = "search"
)

// responseBuffers holds response bodies until they are decoded; decoded
// values never alias the buffer.
var responseBuffers = pool.NewBytePool()

// Client talks to the vector database REST API. It is safe for concurrent use.
type Client struct {
	baseURL      *url.URL
	http         *http.Client
	limiter      *limiter.RateLimiter
	logger       *zap.Logger
	maxErrorBody int
	session      atomic.Pointer[Session]
}

// New creates a client for the service rooted at host (e.g. "https://127.0.0.1:8443").
func New(host string, opts ...Option) (*Client, error) {
	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	u, err := url.Parse(strings.TrimRight(host, "/"))
	if err != nil {
		return nil, vderrors.Wrap(err, vderrors.ErrorTypeConfiguration, "new_client", "invalid host")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, vderrors.NewConfigurationError("new_client", fmt.Sprintf("unsupported scheme %q", u.Scheme))
	}
	if u.Host == "" {
		return nil, vderrors.NewConfigurationError("new_client", "host is empty")
	}

	httpClient := cfg.httpClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.MaxIdleConns = cfg.maxConns * 2
		transport.MaxIdleConnsPerHost = cfg.maxConns * 2
		transport.IdleConnTimeout = 60 * time.Second
		if cfg.insecureTLS {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // self-signed test servers
		}
		httpClient = &http.Client{
			Timeout:   cfg.timeout,
			Transport: transport,
		}
	}

	return &Client{
		baseURL:      u,
		http:         httpClient,
		limiter:      cfg.limiter,
		logger:       cfg.logger,
		maxErrorBody: cfg.maxErrorBody,
	}, nil
}

// Session returns the current session, or nil before Login.
func (c *Client) Session() *Session {
	return c.session.Load()
}

// SetSession installs an existing session, e.g. one shared between clients.
func (c *Client) SetSession(s *Session) {
	c.session.Store(s)
}

// Login creates a session and uses its token for all later requests.
func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	body := map[string]string{"username": username, "password": password}
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.do(ctx, OpLogin, http.MethodPost, "/auth/create-session", body, vderrors.ErrorTypeAuth, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, vderrors.New(vderrors.ErrorTypeAuth, OpLogin, "response carries no access_token")
	}

	s := &Session{Token: resp.AccessToken, Username: username, CreatedAt: time.Now()}
	c.session.Store(s)
	return s, nil
}

// CreateCollection creates a collection. A 409 means it already exists; see IsConflict.
func (c *Client) CreateCollection(ctx context.Context, spec CollectionSpec) (*Collection, error) {
	var col Collection
	if err := c.do(ctx, OpCreateCollection, http.MethodPost, "/vectordb/collections", spec, vderrors.ErrorTypeCollection, &col); err != nil {
		return nil, err
	}
	if col.Name == "" {
		col.Name = spec.Name
	}
	return &col, nil
}

// GetCollection fetches collection metadata by name or id.
func (c *Client) GetCollection(ctx context.Context, name string) (*Collection, error) {
	var col Collection
	if err := c.do(ctx, OpGetCollection, http.MethodGet, collectionPath(name), nil, vderrors.ErrorTypeCollection, &col); err != nil {
		return nil, err
	}
	return &col, nil
}

// CreateDenseIndex builds an explicit dense index on a collection.
func (c *Client) CreateDenseIndex(ctx context.Context, collection string, spec IndexSpec) error {
	return c.do(ctx, OpCreateIndex, http.MethodPost, collectionPath(collection)+"/indexes/dense", spec, vderrors.ErrorTypeCollection, nil)
}

// CreateTransaction opens a transaction on collection and returns its id.
func (c *Client) CreateTransaction(ctx context.Context, collection string) (string, error) {
	var resp struct {
		TransactionID FlexibleID `json:"transaction_id"`
	}
	if err := c.do(ctx, OpCreateTransaction, http.MethodPost, collectionPath(collection)+"/transactions", nil, vderrors.ErrorTypeTransactionCreate, &resp); err != nil {
		return "", err
	}
	if resp.TransactionID == "" {
		return "", vderrors.New(vderrors.ErrorTypeTransactionCreate, OpCreateTransaction, "response carries no transaction_id")
	}
	return resp.TransactionID.String(), nil
}

// Upsert inserts or replaces vectors inside an open transaction.
func (c *Client) Upsert(ctx context.Context, collection, txnID string, vectors []Vector) error {
	body := struct {
		Vectors []Vector `json:"vectors"`
	}{Vectors: vectors}
	return c.do(ctx, OpUpsert, http.MethodPost, transactionPath(collection, txnID)+"/upsert", body, vderrors.ErrorTypeBatchUpsert, nil)
}

// Commit commits an open transaction.
func (c *Client) Commit(ctx context.Context, collection, txnID string) error {
	return c.do(ctx, OpCommit, http.MethodPost, transactionPath(collection, txnID)+"/commit", nil, vderrors.ErrorTypeTransactionCommit, nil)
}

// Abort discards an open transaction.
func (c *Client) Abort(ctx context.Context, collection, txnID string) error {
	return c.do(ctx, OpAbort, http.MethodPost, transactionPath(collection, txnID)+"/abort", nil, vderrors.ErrorTypeTransactionAbort, nil)
}

// Search returns the approximate nearest neighbours of req.Vector, best first.
// An empty knn list yields an empty, non-nil slice.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]Neighbor, error) {
	var resp searchResponse
	if err := c.do(ctx, OpSearch, http.MethodPost, "/vectordb/search", req, vderrors.ErrorTypeSearch, &resp); err != nil {
		return nil, err
	}

	out := make([]Neighbor, 0, len(resp.RespVectorKNN.KNN))
	for i, raw := range resp.RespVectorKNN.KNN {
		n, err := parseNeighbor(raw)
		if err != nil {
			return nil, vderrors.WrapSearchError(err, OpSearch, "malformed knn entry").WithContext("position", i)
		}
		out = append(out, n)
	}
	return out, nil
}

func collectionPath(name string) string {
	return "/vectordb/collections/" + url.PathEscape(name)
}

func transactionPath(collection, txnID string) string {
	return collectionPath(collection) + "/transactions/" + url.PathEscape(txnID)
}

// do sends one request and decodes a 2xx body into out (when non-nil and
// the body is non-empty). Each call is attempted exactly once.
func (c *Client) do(ctx context.Context, op, method, path string, in any, errType vderrors.ErrorType, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return transportError(errType, op, err)
	}

	var body io.Reader
	if in != nil {
		payload, err := gojson.Marshal(in)
		if err != nil {
			return vderrors.Wrap(err, errType, op, "encode request")
		}
		metrics.RequestBytesTotal.WithLabelValues(op).Add(float64(len(payload)))
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return vderrors.Wrap(err, errType, op, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if s := c.session.Load(); s != nil {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(op, 0, start)
		return transportError(errType, op, err)
	}
	defer resp.Body.Close()

	buf := responseBuffers.Get()
	defer responseBuffers.Put(buf)
	_, err = buf.ReadFrom(resp.Body)
	c.observe(op, resp.StatusCode, start)
	if err != nil {
		return transportError(errType, op, err)
	}
	data := buf.Bytes()

	c.logger.Debug("request completed",
		zap.String("operation", op),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(errType, op, resp.StatusCode, data, c.maxErrorBody)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := gojson.Unmarshal(data, out); err != nil {
		return vderrors.Wrap(err, errType, op, "decode response").WithStatus(resp.StatusCode)
	}
	return nil
}

func (c *Client) observe(op string, status int, start time.Time) {
	metrics.RequestsTotal.WithLabelValues(op, metrics.StatusLabel(status)).Inc()
	metrics.RequestDurationSeconds.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
