package assistant

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/promptelt/promptelt/internal/model"
)

const querySystemPrompt = `You are a helpful database connection assistant for the PromptELT platform. Be conversational, friendly, and guide users through actual database connections.

FOR CONNECTION QUESTIONS:
- Ask clarifying questions about their setup ("Do you have your connection details ready?")
- Guide them to find credentials ("You can find these in your Snowflake admin console...")
- Provide specific parameter explanations ("Account URL looks like: yourcompany.snowflakecomputing.com")
- Offer multiple connection methods (username/password, key-pair, SSO)
- Give real examples they can adapt
- Ask follow-up questions to help troubleshoot

FOR DATABASE-SPECIFIC GUIDANCE:
- Snowflake: Guide through account URL, warehouse, database, schema, role selection
- Databricks: Explain workspace URL, cluster selection, personal access tokens
- SQL Server: Cover server name, database, authentication methods
- Salesforce: Explain login URL, security tokens, API versions

Always respond in JSON format with:
- explanation: Conversational, helpful response that guides the user
- sql: SQL query if data retrieval is needed
- confidence: Number 0-100 indicating confidence
- suggestions: Next steps, follow-up questions, or related topics to explore
- connectionHelp: Plain text step-by-step connection guide, NOT JSON format
- followUpQuestions: Array of specific questions to help the user with next steps`

const connectionUserPrompt = `Connection question: %q

Target databases (IDs): %s

This user wants to connect to their database through the PromptELT platform. Be conversational and helpful:

1. Ask if they have their connection details ready
2. Guide them to find credentials in their database admin console
3. Explain each required parameter clearly
4. Provide real examples they can adapt for their setup
5. Ask follow-up questions to understand their environment
6. Offer different authentication methods
7. Give troubleshooting tips for common issues

IMPORTANT: For connectionHelp field, provide plain text instructions, NOT JSON.`

const dataUserPrompt = `Data query: %q

Target databases (IDs): %s

This user wants to work with their data. Be conversational and helpful:

1. Understand what they're trying to accomplish
2. Generate appropriate SQL statements
3. Explain the query in plain language
4. Show what results to expect
5. Suggest related queries they might find useful`

const pipelineSystemPrompt = `You are an expert ETL/ELT pipeline architect. Create comprehensive data pipeline specifications with:
1. Step-by-step transformation logic
2. Data quality checks
3. Error handling strategies
4. Performance optimization
5. Monitoring and alerting

Respond in JSON with explanation, confidence (0-100), suggestions and pipelineSteps (id, name, description, sql, dependencies, estimatedTime).

Available schema information: %s`

const pipelineUserPrompt = `Create an ETL pipeline from %s to %s with these requirements:
%s

Please provide:
1. Detailed explanation of the pipeline strategy
2. SQL statements for each transformation step
3. Data validation checks
4. Estimated timeline and dependencies`

const validateUserPrompt = `Validate this SQL query for syntax, logic, and best practices:

%s

%s

Respond with JSON containing: isValid (boolean), errors (array), suggestions (array)`

func querySystem(schema []model.SchemaInfo, context string) string {
	var b strings.Builder
	b.WriteString(querySystemPrompt)
	if len(schema) > 0 {
		b.WriteString("\n\nAvailable database schema:\n")
		b.WriteString(indentJSON(schema))
	}
	if context != "" {
		b.WriteString("\n\nAdditional context: ")
		b.WriteString(context)
	}
	return b.String()
}

// isConnectionQuestion reports whether the user is asking how to connect
// rather than asking about data.
func isConnectionQuestion(q string) bool {
	q = strings.ToLower(q)
	return strings.Contains(q, "connect") || strings.Contains(q, "how do i")
}

func queryUser(q string, ids []int64) string {
	tmpl := dataUserPrompt
	if isConnectionQuestion(q) {
		tmpl = connectionUserPrompt
	}
	return fmt.Sprintf(tmpl, q, joinIDs(ids))
}

func pipelineSystem(schema []model.SchemaInfo) string {
	ctx := "None provided"
	if len(schema) > 0 {
		ctx = indentJSON(schema)
	}
	return fmt.Sprintf(pipelineSystemPrompt, ctx)
}

func pipelineUser(req model.PipelineRequest) string {
	return fmt.Sprintf(pipelineUserPrompt, req.Source, req.Target, req.Requirements)
}

func validateUser(sql string, schema []model.SchemaInfo) string {
	ctx := ""
	if len(schema) > 0 {
		ctx = "Schema context: " + indentJSON(schema)
	}
	return fmt.Sprintf(validateUserPrompt, sql, ctx)
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}

func indentJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(b)
}
