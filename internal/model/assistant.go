package model

// ProcessQueryRequest is a natural-language question against one or more
// registered databases. Schema is filled in by the broker from the latest
// snapshots before the request reaches the assistant.
type ProcessQueryRequest struct {
	Query       string       `json:"query"`
	DatabaseIDs []int64      `json:"databaseIds"`
	Schema      []SchemaInfo `json:"schema,omitempty"`
	Context     string       `json:"context,omitempty"`
}

// ProcessQueryResponse is the structured answer produced by the assistant.
type ProcessQueryResponse struct {
	Explanation       string                   `json:"explanation"`
	SQL               string                   `json:"sql,omitempty"`
	Results           []map[string]interface{} `json:"results,omitempty"`
	Confidence        int                      `json:"confidence"`
	Suggestions       []string                 `json:"suggestions,omitempty"`
	PipelineSteps     []PipelineStep           `json:"pipelineSteps,omitempty"`
	ConnectionHelp    string                   `json:"connectionHelp,omitempty"`
	FollowUpQuestions []string                 `json:"followUpQuestions,omitempty"`
}

// PipelineStep is one stage of a suggested ETL pipeline.
type PipelineStep struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	SQL           string   `json:"sql,omitempty"`
	Dependencies  []string `json:"dependencies,omitempty"`
	EstimatedTime string   `json:"estimatedTime,omitempty"`
}

// PipelineRequest asks the assistant to design an ETL pipeline.
type PipelineRequest struct {
	Source       string       `json:"source"`
	Target       string       `json:"target"`
	Requirements string       `json:"requirements"`
	DatabaseIDs  []int64      `json:"databaseIds,omitempty"`
	Schema       []SchemaInfo `json:"schema,omitempty"`
}

// ValidationResult is the assistant's verdict on a SQL statement.
type ValidationResult struct {
	IsValid     bool     `json:"isValid"`
	Errors      []string `json:"errors"`
	Suggestions []string `json:"suggestions"`
}
