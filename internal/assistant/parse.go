package assistant

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/promptelt/promptelt/internal/model"
)

// Confidence values used when the model omits one or cannot be parsed.
const (
	defaultConfidence         = 75
	defaultPipelineConfidence = 80
	fallbackConfidence        = 60
	fallbackPipelineConf      = 70
)

// extractJSON returns the text between the first '{' and the last '}'.
// Models tend to wrap JSON in prose or code fences.
func extractJSON(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

type rawResponse struct {
	Explanation       string                   `json:"explanation"`
	SQL               string                   `json:"sql"`
	Confidence        *float64                 `json:"confidence"`
	Suggestions       []string                 `json:"suggestions"`
	Results           []map[string]interface{} `json:"results"`
	ConnectionHelp    json.RawMessage          `json:"connectionHelp"`
	FollowUpQuestions []string                 `json:"followUpQuestions"`
	PipelineSteps     []model.PipelineStep     `json:"pipelineSteps"`
}

func confidenceOr(c *float64, def int) int {
	if c == nil || *c == 0 {
		return def
	}
	return int(math.Round(math.Max(0, math.Min(100, *c))))
}

// plainText returns a JSON string value as is and renders any other JSON
// value as compact text. Some models answer connectionHelp with an object
// despite being told not to.
func plainText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// ParseQueryResponse turns model output into a response. Output that holds
// no parseable JSON object becomes the explanation itself, with a lower
// confidence and a hint to rephrase.
func ParseQueryResponse(text string) (model.ProcessQueryResponse, error) {
	obj, ok := extractJSON(text)
	if !ok {
		return fallbackQueryResponse(text), ErrMalformedResponse
	}
	var raw rawResponse
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return fallbackQueryResponse(text), fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	resp := model.ProcessQueryResponse{
		Explanation:       raw.Explanation,
		SQL:               raw.SQL,
		Confidence:        confidenceOr(raw.Confidence, defaultConfidence),
		Suggestions:       nonNil(raw.Suggestions),
		Results:           raw.Results,
		ConnectionHelp:    plainText(raw.ConnectionHelp),
		FollowUpQuestions: nonNil(raw.FollowUpQuestions),
	}
	if resp.Explanation == "" {
		resp.Explanation = text
	}
	return resp, nil
}

func fallbackQueryResponse(text string) model.ProcessQueryResponse {
	return model.ProcessQueryResponse{
		Explanation: text,
		Confidence:  fallbackConfidence,
		Suggestions: []string{"Response format may not be optimal - please rephrase your query"},
	}
}

// ParsePipelineResponse turns model output into a pipeline design. When
// the model returns no steps they are recovered from numbered lines.
func ParsePipelineResponse(text string) (model.ProcessQueryResponse, error) {
	if obj, ok := extractJSON(text); ok {
		var raw rawResponse
		if err := json.Unmarshal([]byte(obj), &raw); err == nil {
			steps := raw.PipelineSteps
			if len(steps) == 0 {
				steps = ExtractPipelineSteps(text)
			}
			resp := model.ProcessQueryResponse{
				Explanation:   raw.Explanation,
				Confidence:    confidenceOr(raw.Confidence, defaultPipelineConfidence),
				Suggestions:   nonNil(raw.Suggestions),
				PipelineSteps: steps,
			}
			if resp.Explanation == "" {
				resp.Explanation = text
			}
			return resp, nil
		}
	}
	return model.ProcessQueryResponse{
		Explanation:   text,
		Confidence:    fallbackPipelineConf,
		PipelineSteps: ExtractPipelineSteps(text),
		Suggestions:   []string{"ETL pipeline generated - review steps carefully before execution"},
	}, ErrMalformedResponse
}

var numberedLine = regexp.MustCompile(`(\d+\.\s*)([^\n]+)`)

// ExtractPipelineSteps builds one step per "N. text" occurrence.
func ExtractPipelineSteps(text string) []model.PipelineStep {
	steps := []model.PipelineStep{}
	for i, m := range numberedLine.FindAllStringSubmatch(text, -1) {
		n := i + 1
		steps = append(steps, model.PipelineStep{
			ID:            fmt.Sprintf("step-%d", n),
			Name:          fmt.Sprintf("Step %d", n),
			Description:   strings.TrimSpace(m[2]),
			EstimatedTime: "5-15 minutes",
		})
	}
	return steps
}

// ParseValidation reads the model's verdict on a SQL statement. An
// unparseable verdict is treated as valid with a warning.
func ParseValidation(text string) (model.ValidationResult, error) {
	if obj, ok := extractJSON(text); ok {
		var v model.ValidationResult
		if err := json.Unmarshal([]byte(obj), &v); err == nil {
			v.Errors = nonNil(v.Errors)
			v.Suggestions = nonNil(v.Suggestions)
			return v, nil
		}
	}
	return unvalidated(), ErrMalformedResponse
}

func unvalidated() model.ValidationResult {
	return model.ValidationResult{
		IsValid:     true,
		Errors:      []string{},
		Suggestions: []string{"Unable to validate query - proceed with caution"},
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
