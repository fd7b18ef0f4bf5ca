package snapshots

// Semi-structured column names of the analysis log.
const (
	FieldConfig     = "config"
	FieldDirSummary = "dir_summary"
	FieldLLMSummary = "llm_summary"
	FieldResults    = "results"
	FieldPCAvgExprs = "pc_avg_exprs"
)

// SemiStructuredFields lists the columns run through the field decoder, in output order.
var SemiStructuredFields = []string{
	FieldConfig,
	FieldDirSummary,
	FieldLLMSummary,
	FieldResults,
	FieldPCAvgExprs,
}

// PartitionKey identifies one analysis run in the log.
type PartitionKey struct {
	CancerCode string
	Version    int64
}

// RawRow is an analysis log row as delivered by a Store. Fields holds the
// semi-structured columns exactly as stored (string-encoded or already structured);
// a column that is absent or NULL is not present in the map.
type RawRow struct {
	AnalysisID   string
	CancerCode   string
	LogTimestamp int64
	Fields       map[string]any
}

// Key returns the partition key of the row.
func (r RawRow) Key() PartitionKey {
	return PartitionKey{CancerCode: r.CancerCode, Version: r.LogTimestamp}
}

// Snapshot is the decoded and reshaped view of the latest analysis run for a cancer code.
// It is derived on every read and never persisted.
type Snapshot struct {
	AnalysisID      string          `json:"analysis_id,omitempty"`
	CancerCode      string          `json:"cancer_code"`
	LogTimestamp    int64           `json:"log_timestamp"`
	Config          *DecodedValue   `json:"config,omitempty"`
	DirSummary      *DecodedValue   `json:"dir_summary,omitempty"`
	LLMSummary      *DecodedValue   `json:"llm_summary,omitempty"`
	Results         *DecodedValue   `json:"results,omitempty"`
	PCAvgExprs      *DecodedValue   `json:"pc_avg_exprs,omitempty"`
	PCAvgExprsPivot ComponentPivots `json:"pc_avg_exprs_pivot"`
}

// Field returns the decoded column by name.
func (s Snapshot) Field(name string) (DecodedValue, bool) {
	var v *DecodedValue
	switch name {
	case FieldConfig:
		v = s.Config
	case FieldDirSummary:
		v = s.DirSummary
	case FieldLLMSummary:
		v = s.LLMSummary
	case FieldResults:
		v = s.Results
	case FieldPCAvgExprs:
		v = s.PCAvgExprs
	}
	if v == nil {
		return DecodedValue{}, false
	}
	return *v, true
}
