// Package client implements the typed HTTP client for the quelmap analysis
// service, its configuration, and the error kinds shared by the
// orchestration layer.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	api "github.com/quelmap-inc/quelmap/api/v1alpha1"
)

const requestIDHeader = "X-Request-Id"

// Client talks to one quelmap server. It is safe for concurrent use.
type Client struct {
	server     string
	httpClient *http.Client
}

// New returns a client for the server named in config.
func New(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		server:     config.Service.Server,
		httpClient: newHTTPClient(),
	}, nil
}

// NewFromConfigFile returns a client using the config read from filename.
func NewFromConfigFile(filename string) (*Client, error) {
	config, err := ParseConfigFile(filename)
	if err != nil {
		return nil, err
	}
	return New(config)
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// do sends the request and decodes a JSON body into out (when out is
// non-nil). Network failures and 5xx map to TransportError; other non-2xx
// statuses map to BusinessError carrying the server's detail message.
func (c *Client) do(req *http.Request, op string, out interface{}) error {
	req.Header.Set(requestIDHeader, uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportErr(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return statusErr(op, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return &BusinessError{Op: op, Message: readDetail(resp.Body, resp.StatusCode)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return transportErr(op, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

// readDetail extracts FastAPI-style {"detail": "..."} error bodies.
func readDetail(body io.Reader, status int) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return fmt.Sprintf("server returned status %d", status)
}

func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, out interface{}) error {
	u := c.server + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return transportErr(op, err)
	}
	return c.do(req, op, out)
}

func (c *Client) postJSON(ctx context.Context, op, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return transportErr(op, err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.server+path, reader)
	if err != nil {
		return transportErr(op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, op, out)
}

// Health probes GET /health.
func (c *Client) Health(ctx context.Context) error {
	return c.getJSON(ctx, "health", "/health", nil, nil)
}

// CreateSpace creates a new analysis space and returns its id. The call is
// not idempotent: retrying a failed call may create a duplicate space.
func (c *Client) CreateSpace(ctx context.Context) (string, error) {
	var resp api.CreateSpaceResponse
	if err := c.postJSON(ctx, "create space", "/create-space", nil, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// GetSpace returns the ordered job ids of the space's analysis thread.
func (c *Client) GetSpace(ctx context.Context, spaceID string) ([]string, error) {
	var resp api.GetSpaceResponse
	if err := c.getJSON(ctx, "get space", "/get-space/"+url.PathEscape(spaceID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.AnalysisIDs, nil
}

// StartAnalysis submits a job. A business failure the server reports in the
// response body is returned as data in the response, not as an error.
func (c *Client) StartAnalysis(ctx context.Context, req api.StartAnalysisRequest) (*api.StartAnalysisResponse, error) {
	var resp api.StartAnalysisResponse
	if err := c.postJSON(ctx, "start analysis", "/start-analysis", &req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetReport fetches the current snapshot for a job.
func (c *Client) GetReport(ctx context.Context, jobID string) (*api.Report, error) {
	query := url.Values{"id": []string{jobID}}
	var resp api.Report
	if err := c.getJSON(ctx, "get report", "/get-report", query, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetModelList fetches the models available at the configured model
// endpoint. baseURL and apiKey come from the durable settings.
func (c *Client) GetModelList(ctx context.Context, baseURL, apiKey string) ([]api.ModelInfo, error) {
	query := url.Values{}
	if baseURL != "" {
		query.Set("base_url", baseURL)
	}
	if apiKey != "" {
		query.Set("api_key", apiKey)
	}
	var resp api.ModelListResponse
	if err := c.getJSON(ctx, "get model list", "/get-model-list", query, &resp); err != nil {
		return nil, err
	}
	return resp.Models, nil
}

// GetTableList fetches the catalog of server-held tables.
func (c *Client) GetTableList(ctx context.Context) (*api.TableListResponse, error) {
	var resp api.TableListResponse
	if err := c.getJSON(ctx, "get table list", "/api/get-table-list", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TableDataParams select one page of a sorted/filtered table view. The
// server applies sort and filter before pagination.
type TableDataParams struct {
	Limit         int
	Offset        int
	SortColumn    string
	SortDirection string
	FilterColumn  string
	FilterValue   string
}

func (p TableDataParams) query() url.Values {
	q := url.Values{}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	q.Set("offset", strconv.Itoa(p.Offset))
	if p.SortColumn != "" {
		q.Set("sort_column", p.SortColumn)
		q.Set("sort_direction", p.SortDirection)
	}
	if p.FilterColumn != "" {
		q.Set("filter_column", p.FilterColumn)
		q.Set("filter_value", p.FilterValue)
	}
	return q
}

// GetTableData fetches one page of a table view.
func (c *Client) GetTableData(ctx context.Context, tableName string, params TableDataParams) (*api.TableDataResponse, error) {
	var resp api.TableDataResponse
	path := "/api/table-data/" + url.PathEscape(tableName)
	if err := c.getJSON(ctx, "get table data", path, params.query(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RenameTable renames a server-held table. Callers must bump the mutation
// epoch on success.
func (c *Client) RenameTable(ctx context.Context, tableName, newTableName string) error {
	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	if err := form.WriteField("new_table_name", newTableName); err != nil {
		return transportErr("rename table", err)
	}
	if err := form.Close(); err != nil {
		return transportErr("rename table", err)
	}
	path := c.server + "/api/rename-table/" + url.PathEscape(tableName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, path, body)
	if err != nil {
		return transportErr("rename table", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	return c.do(req, "rename table", nil)
}

// DeleteTable drops a server-held table. Callers must bump the mutation
// epoch on success.
func (c *Client) DeleteTable(ctx context.Context, tableName string) error {
	path := c.server + "/api/delete-table/" + url.PathEscape(tableName)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return transportErr("delete table", err)
	}
	return c.do(req, "delete table", nil)
}

// UploadFiles ingests CSV/XLSX files into the server's database.
func (c *Client) UploadFiles(ctx context.Context, paths []string) (*api.ConnectionResponse, error) {
	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, transportErr("upload files", err)
		}
		part, err := form.CreateFormFile("files", filepath.Base(p))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		f.Close()
		if err != nil {
			return nil, transportErr("upload files", err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, transportErr("upload files", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.server+"/api/upload-csv-xlsx", body)
	if err != nil {
		return nil, transportErr("upload files", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	var resp api.ConnectionResponse
	if err := c.do(req, "upload files", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ConnectPostgres copies an external PostgreSQL database into the server.
func (c *Client) ConnectPostgres(ctx context.Context, connectionString string) (*api.ConnectionResponse, error) {
	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	if err := form.WriteField("connection_string", connectionString); err != nil {
		return nil, transportErr("connect postgres", err)
	}
	if err := form.Close(); err != nil {
		return nil, transportErr("connect postgres", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.server+"/api/connect-external-postgres", body)
	if err != nil {
		return nil, transportErr("connect postgres", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	var resp api.ConnectionResponse
	if err := c.do(req, "connect postgres", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadSQLite ingests a SQLite database file into the server.
func (c *Client) UploadSQLite(ctx context.Context, path string) (*api.ConnectionResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, transportErr("upload sqlite", err)
	}
	defer f.Close()

	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	part, err := form.CreateFormFile("file", filepath.Base(path))
	if err == nil {
		_, err = io.Copy(part, f)
	}
	if err != nil {
		return nil, transportErr("upload sqlite", err)
	}
	if err := form.Close(); err != nil {
		return nil, transportErr("upload sqlite", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.server+"/api/upload-sqlite-db", body)
	if err != nil {
		return nil, transportErr("upload sqlite", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	var resp api.ConnectionResponse
	if err := c.do(req, "upload sqlite", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
