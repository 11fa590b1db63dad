package finance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultOpenAIBaseURL is the OpenAI API endpoint.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// receiptModel is the vision-capable model used for extraction.
const receiptModel = "gpt-4o-mini"

// receiptTimeout bounds the analysis request; the UI shows extraction
// results inline and must fail fast.
const receiptTimeout = 5 * time.Second

// Category is one of the caller's transaction categories, offered to the
// model for matching.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ReceiptInput is a receipt image plus the categories to match against.
type ReceiptInput struct {
	ImageBase64   string
	ImageMimeType string
	Categories    []Category
}

// ReceiptAnalysis is the extraction result. AmountKurus is the integer
// source of truth; AmountTL is derived for display.
type ReceiptAnalysis struct {
	Type                     string `json:"type"` // "income" or "expense"
	AmountKurus              Kurus  `json:"amountKurus"`
	AmountTL                 string `json:"amountTl"`
	Date                     string `json:"date"` // YYYY-MM-DD
	Note                     string `json:"note"`
	MatchedCategoryID        string `json:"matched_category_id"`
	SuggestedNewCategoryName string `json:"suggested_new_category_name"`
}

// Analyzer extracts transaction data from receipt images via the OpenAI
// chat completions API.
type Analyzer struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAnalyzer creates an Analyzer. httpClient may be nil.
func NewAnalyzer(baseURL, apiKey string, httpClient *http.Client, logger *slog.Logger) *Analyzer {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Analyzer{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     logger,
	}
}

const receiptPrompt = `Extract the transaction from this receipt image.
Respond with a single JSON object:
{"type": "income"|"expense", "amount_kurus": <total as integer kurus, lira*100>,
"date": "YYYY-MM-DD", "note": "<short merchant/description>",
"matched_category_id": "<id from the list below or empty>",
"suggested_new_category_name": "<only when no category matches>"}
The amount must be an integer number of kurus. Categories:
`

// chat completion request/response shapes, trimmed to the fields used.

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// extraction mirrors the model's JSON answer.
type extraction struct {
	Type                     string `json:"type"`
	AmountKurus              int64  `json:"amount_kurus"`
	Date                     string `json:"date"`
	Note                     string `json:"note"`
	MatchedCategoryID        string `json:"matched_category_id"`
	SuggestedNewCategoryName string `json:"suggested_new_category_name"`
}

// Analyze sends the receipt image to the model and parses the structured
// extraction. The kuruş amount crosses the boundary as an integer.
func (a *Analyzer) Analyze(ctx context.Context, in ReceiptInput) (*ReceiptAnalysis, error) {
	if a.apiKey == "" {
		return nil, fmt.Errorf("finance: analyzer API key is not configured")
	}

	if in.ImageBase64 == "" || in.ImageMimeType == "" {
		return nil, fmt.Errorf("finance: receipt image and mime type are required")
	}

	ctx, cancel := context.WithTimeout(ctx, receiptTimeout)
	defer cancel()

	body, err := json.Marshal(a.buildRequest(in))
	if err != nil {
		return nil, fmt.Errorf("finance: encoding analysis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("finance: creating analysis request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("finance: analysis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("finance: analysis endpoint returned HTTP %d: %s", resp.StatusCode, msg)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("finance: decoding analysis response: %w", err)
	}

	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("finance: analysis response has no choices")
	}

	return parseExtraction(cr.Choices[0].Message.Content)
}

// buildRequest assembles the vision prompt: instructions plus the
// category list as text, and the image as a data URI.
func (a *Analyzer) buildRequest(in ReceiptInput) chatRequest {
	var sb strings.Builder

	sb.WriteString(receiptPrompt)

	for _, c := range in.Categories {
		fmt.Fprintf(&sb, "- %s: %s\n", c.ID, c.Name)
	}

	dataURI := fmt.Sprintf("data:%s;base64,%s", in.ImageMimeType, in.ImageBase64)

	return chatRequest{
		Model: receiptModel,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: sb.String()},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURI}},
			},
		}},
		ResponseFormat: &respFormat{Type: "json_object"},
	}
}

// parseExtraction validates the model's JSON answer and derives the
// display amount from the integer kuruş value.
func parseExtraction(content string) (*ReceiptAnalysis, error) {
	var ex extraction
	if err := json.Unmarshal([]byte(content), &ex); err != nil {
		return nil, fmt.Errorf("finance: model returned invalid JSON: %w", err)
	}

	if ex.Type != "income" && ex.Type != "expense" {
		return nil, fmt.Errorf("finance: model returned invalid type %q", ex.Type)
	}

	if ex.AmountKurus < 0 {
		return nil, fmt.Errorf("finance: model returned negative amount %d", ex.AmountKurus)
	}

	amount := Kurus(ex.AmountKurus)

	return &ReceiptAnalysis{
		Type:                     ex.Type,
		AmountKurus:              amount,
		AmountTL:                 amount.String(),
		Date:                     ex.Date,
		Note:                     ex.Note,
		MatchedCategoryID:        ex.MatchedCategoryID,
		SuggestedNewCategoryName: ex.SuggestedNewCategoryName,
	}, nil
}
