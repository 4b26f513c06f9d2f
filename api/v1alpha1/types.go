// Package v1alpha1 contains the wire types of the quelmap analysis service
// HTTP contract. Field names follow the server's JSON exactly.
package v1alpha1

// CreateSpaceResponse is returned by POST /create-space.
type CreateSpaceResponse struct {
	ID string `json:"id"`
}

// GetSpaceResponse is returned by GET /get-space/{id}. AnalysisIDs is the
// ordered list of job ids forming the analysis thread.
type GetSpaceResponse struct {
	AnalysisIDs []string `json:"analysis_ids"`
}

// AnalysisMode selects how the server executes a job.
type AnalysisMode string

const (
	ModeStandard AnalysisMode = "standard"
	ModeAgentic  AnalysisMode = "agentic"
)

// StartAnalysisRequest is the body of POST /start-analysis.
// Index -1 appends a new job to the thread; Index >= 0 replaces the job at
// that position (the server drops everything from Index onward and appends
// the replacement).
type StartAnalysisRequest struct {
	SpaceID string   `json:"space_id"`
	Query   string   `json:"query"`
	Tables  []string `json:"tables"`
	Mode    string   `json:"mode"`
	Model   string   `json:"model"`
	Index   int      `json:"index"`
}

// StartAnalysisResponse carries either the new job id or a business error
// reported by the server (e.g. no database registered).
type StartAnalysisResponse struct {
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

// Content block types produced by the server.
const (
	ContentMarkdown = "markdown"
	ContentVariable = "variable"
	ContentImage    = "image"
	ContentTable    = "table"
)

// ContentBlock is one rendered artifact of a finished job. Exactly one of
// the payload fields is set depending on Type.
type ContentBlock struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Data    string `json:"data,omitempty"`
	Base64  string `json:"base64,omitempty"`
	Table   string `json:"table,omitempty"`
}

// ActionStep is one executed sub-step of a job, produced entirely
// server-side.
type ActionStep struct {
	Type    string `json:"type"`
	Query   string `json:"query,omitempty"`
	Python  string `json:"python,omitempty"`
	Content string `json:"content,omitempty"`
}

// Report is the full job snapshot returned by GET /get-report. A snapshot is
// immutable per fetch; Done=false means the job is still running, a
// non-empty Error is terminal regardless of Done.
type Report struct {
	Done       bool           `json:"done"`
	Progress   string         `json:"progress"`
	Query      string         `json:"query"`
	Error      string         `json:"error"`
	PythonCode string         `json:"python_code"`
	Content    []ContentBlock `json:"content"`
	Steps      []ActionStep   `json:"steps"`
}

// Terminal reports whether no further snapshots will be produced for this
// job.
func (r *Report) Terminal() bool {
	return r.Done || r.Error != ""
}

// ModelInfo describes one model offered by the configured model endpoint.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ModelListResponse is returned by GET /get-model-list.
type ModelListResponse struct {
	Models []ModelInfo `json:"models"`
}

// TableListResponse is returned by GET /api/get-table-list.
type TableListResponse struct {
	TableCount int      `json:"table_count"`
	TableNames []string `json:"table_names"`
	Message    string   `json:"message"`
}

// TableDataResponse is one page of a server-held table returned by
// GET /api/table-data/{name}. PreviewRows is the number of rows in Data;
// TotalRows is the filtered total for the whole view.
type TableDataResponse struct {
	TableName   string                   `json:"table_name"`
	Columns     []string                 `json:"columns"`
	Data        []map[string]interface{} `json:"data"`
	TotalRows   int                      `json:"total_rows"`
	PreviewRows int                      `json:"preview_rows"`
}

// ConnectionResponse is returned by the dataset mutation endpoints (upload,
// connect, rename, delete).
type ConnectionResponse struct {
	Message    string   `json:"message"`
	TableCount int      `json:"table_count"`
	TableNames []string `json:"table_names"`
}
