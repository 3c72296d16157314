package agent

import (
	"fmt"
	"strings"

	"github.com/mstolbov/askdb/internal/store"
)

// defaultSchemaColumns describes the cars table when introspection is not
// available (e.g. before the dataset is loaded).
var defaultSchemaColumns = []string{
	"year", "make", "model", "trim", "body", "transmission", "vin", "state",
	"condition", "odometer", "color", "interior", "seller", "mmr",
	"sellingprice", "saledate",
}

const systemPromptTemplate = `You are a helpful data analyst assistant for a car auction/pricing database.
Your role is to help users understand and query car pricing data.

GUIDELINES:
1. Data access: never guess at data; use the tools to query what you need.
2. Safety: only SELECT queries are executed. Attempts to modify data (DELETE, UPDATE, INSERT, DROP) are blocked.
3. Tool usage:
   - query_database for specific data questions
   - get_database_statistics for general overviews
   - generate_chart when the user asks for a chart, visualization, or trend; choose an appropriate chart type
   - create_support_ticket when you cannot help or the user asks for human assistance
4. If you cannot answer a question or the user seems frustrated, proactively suggest creating a support ticket.
5. Explain findings clearly with relevant numbers and insights.

DATABASE SCHEMA:
- Table: cars
- Columns: %s

Be concise, helpful, and data-driven in your responses.`

// SystemPrompt builds the agent's system turn from the live table schema,
// falling back to the known dataset columns when info is empty.
func SystemPrompt(info store.TableInfo) string {
	columns := make([]string, 0, len(info.Columns))
	for _, c := range info.Columns {
		columns = append(columns, c.Name)
	}
	if len(columns) == 0 {
		columns = defaultSchemaColumns
	}
	return fmt.Sprintf(systemPromptTemplate, strings.Join(columns, ", "))
}
