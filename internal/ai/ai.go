// Package ai answers visitor questions about listings with Gemini. The model
// can look data up through a single read-only SQL tool.
package ai

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	defaultModel = "gemini-1.5-flash"
	sqlToolName  = "run_readonly_sql"
	maxToolCalls = 5
	maxRows      = 50
)

var ErrQueryNotAllowed = errors.New("query not allowed")

// AIService holds the Gemini client and the read-only database connection.
type AIService struct {
	client *genai.Client
	db     *sql.DB
	model  string
	log    *slog.Logger
}

// NewAIService initializes the Gemini client.
func NewAIService(ctx context.Context, apiKey, model string, dbReadOnly *sql.DB, log *slog.Logger) (*AIService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if model == "" {
		model = defaultModel
	}
	return &AIService{client: client, db: dbReadOnly, model: model, log: log.With("component", "AIService")}, nil
}

func (s *AIService) Close() error {
	return s.client.Close()
}

// GenerateResponse answers one message and returns the reply with the total
// token count of the exchange.
func (s *AIService) GenerateResponse(ctx context.Context, userMessage, userRole string) (string, int, error) {
	model := s.client.GenerativeModel(s.model)
	model.Tools = []*genai.Tool{{
		FunctionDeclarations: []*genai.FunctionDeclaration{{
			Name:        sqlToolName,
			Description: "Executes a READ-ONLY MySQL SELECT over the public listing tables.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"query": {Type: genai.TypeString, Description: "The MySQL SELECT query to execute."},
				},
				Required: []string{"query"},
			},
		}},
	}}
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(fmt.Sprintf(`
			You are the HomeLengo real estate assistant. Visitor role: %s.
			Access: MySQL database through %s.
			Schema: %s
			Rules: SELECT only, only on the tables above, only status = 'published' listings.
			Prices are in VND. Answer in the visitor's language and be concise.
		`, userRole, sqlToolName, schemaDefinition))},
	}

	cs := model.StartChat()
	res, err := cs.SendMessage(ctx, genai.Text(userMessage))
	if err != nil {
		return "", 0, fmt.Errorf("error sending message: %w", err)
	}

	tokens := 0
	for calls := 0; ; calls++ {
		if res.UsageMetadata != nil {
			tokens = int(res.UsageMetadata.TotalTokenCount)
		}
		if len(res.Candidates) == 0 || res.Candidates[0].Content == nil || len(res.Candidates[0].Content.Parts) == 0 {
			return "No response.", tokens, nil
		}

		part := res.Candidates[0].Content.Parts[0]
		funcCall, ok := part.(genai.FunctionCall)
		if !ok {
			return fmt.Sprintf("%v", part), tokens, nil
		}
		if funcCall.Name != sqlToolName {
			return "", tokens, fmt.Errorf("unknown function: %s", funcCall.Name)
		}
		if calls >= maxToolCalls {
			return "", tokens, fmt.Errorf("too many tool calls")
		}

		query, _ := funcCall.Args["query"].(string)
		s.log.Debug("AI running SQL", "query", query)
		result, err := s.runReadOnlyQuery(ctx, query)
		if err != nil {
			result = fmt.Sprintf("SQL Error: %v", err)
		}

		res, err = cs.SendMessage(ctx, genai.FunctionResponse{
			Name:     sqlToolName,
			Response: map[string]any{"result": result},
		})
		if err != nil {
			return "", tokens, fmt.Errorf("tool response error: %w", err)
		}
	}
}

func (s *AIService) runReadOnlyQuery(ctx context.Context, query string) (string, error) {
	if err := CheckReadOnly(query); err != nil {
		return "", err
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return "", err
	}
	defer rows.Close()
	return rowsToJSON(rows)
}

func rowsToJSON(rows *sql.Rows) (string, error) {
	columns, err := rows.Columns()
	if err != nil {
		return "", err
	}

	table := []map[string]any{}
	for rows.Next() && len(table) < maxRows {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", err
		}
		entry := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				entry[col] = string(b)
			} else {
				entry[col] = values[i]
			}
		}
		table = append(table, entry)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	data, err := json.Marshal(table)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// allowedTables are the tables the assistant may read. Accounts, payments
// and chat history are not among them.
var allowedTables = map[string]bool{
	"properties":         true,
	"property_photos":    true,
	"property_features":  true,
	"property_amenities": true,
	"amenities":          true,
	"reviews":            true,
	"agents":             true,
	"service_plans":      true,
}

var (
	forbiddenWords = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|create|truncate|replace|grant|revoke|rename|call|handler|lock|unlock|set|load_file|outfile|dumpfile|sleep|benchmark)\b`)
	tableRefs      = regexp.MustCompile("(?i)\\b(?:from|join)\\s+`?([a-z0-9_]+)`?(?:\\s*\\.\\s*`?([a-z0-9_]+)`?)?")
)

// CheckReadOnly accepts a single SELECT statement that only reads
// allowedTables.
func CheckReadOnly(query string) error {
	q := strings.TrimSpace(query)
	q = strings.TrimSuffix(q, ";")
	if q == "" {
		return fmt.Errorf("%w: empty query", ErrQueryNotAllowed)
	}
	if strings.ContainsAny(q, ";") || strings.Contains(q, "--") || strings.Contains(q, "/*") || strings.Contains(q, "#") {
		return fmt.Errorf("%w: multiple statements or comments", ErrQueryNotAllowed)
	}
	if !strings.EqualFold(firstWord(q), "select") {
		return fmt.Errorf("%w: only SELECT is allowed", ErrQueryNotAllowed)
	}
	if m := forbiddenWords.FindString(q); m != "" {
		return fmt.Errorf("%w: %s is not allowed", ErrQueryNotAllowed, strings.ToUpper(m))
	}

	refs := tableRefs.FindAllStringSubmatch(q, -1)
	if len(refs) == 0 {
		return fmt.Errorf("%w: no table referenced", ErrQueryNotAllowed)
	}
	for _, ref := range refs {
		table := strings.ToLower(ref[1])
		if ref[2] != "" {
			// schema-qualified name
			return fmt.Errorf("%w: %s.%s", ErrQueryNotAllowed, ref[1], ref[2])
		}
		if !allowedTables[table] {
			return fmt.Errorf("%w: table %s", ErrQueryNotAllowed, table)
		}
	}
	return nil
}

func firstWord(s string) string {
	if i := strings.IndexFunc(s, func(r rune) bool { return r == ' ' || r == '\n' || r == '\t' || r == '(' }); i >= 0 {
		return s[:i]
	}
	return s
}

const schemaDefinition = `
	- properties (id, agent_id, title, slug, description, price, area_sqm, bedrooms, bathrooms, address, city, latitude, longitude, geohash, status [published, draft], created_at)
	- property_photos (id, property_id, url, thumbnail_url, sort_order)
	- property_features (id, property_id, name, value)
	- property_amenities (id, property_id, amenity_id)
	- amenities (id, name)
	- reviews (id, property_id, user_id, rating 1-5, comment, created_at)
	- agents (id, user_id, display_name, phone_number)
	- service_plans (id, name, description, price, duration_days, max_listings, is_public)
	`
