package finance

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInput() ReceiptInput {
	return ReceiptInput{
		ImageBase64:   "aGVsbG8=",
		ImageMimeType: "image/jpeg",
		Categories: []Category{
			{ID: "cat-1", Name: "Market"},
			{ID: "cat-2", Name: "Ulaşım"},
		},
	}
}

func chatReply(content string) string {
	reply := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}

	out, _ := json.Marshal(reply)

	return string(out)
}

func TestAnalyze(t *testing.T) {
	var gotReq chatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		_, _ = w.Write([]byte(chatReply(
			`{"type":"expense","amount_kurus":12750,"date":"2026-02-21","note":"Migros","matched_category_id":"cat-1"}`,
		)))
	}))
	defer srv.Close()

	analyzer := NewAnalyzer(srv.URL, "sk-test", http.DefaultClient, slog.Default())

	analysis, err := analyzer.Analyze(context.Background(), testInput())
	require.NoError(t, err)

	assert.Equal(t, "expense", analysis.Type)
	assert.Equal(t, Kurus(12750), analysis.AmountKurus)
	assert.Equal(t, "127.50", analysis.AmountTL)
	assert.Equal(t, "2026-02-21", analysis.Date)
	assert.Equal(t, "Migros", analysis.Note)
	assert.Equal(t, "cat-1", analysis.MatchedCategoryID)

	// The request carried the model, structured output mode, the category
	// list, and the image as a data URI.
	assert.Equal(t, receiptModel, gotReq.Model)
	require.NotNil(t, gotReq.ResponseFormat)
	assert.Equal(t, "json_object", gotReq.ResponseFormat.Type)

	require.Len(t, gotReq.Messages, 1)
	require.Len(t, gotReq.Messages[0].Content, 2)
	assert.Contains(t, gotReq.Messages[0].Content[0].Text, "cat-1: Market")
	require.NotNil(t, gotReq.Messages[0].Content[1].ImageURL)
	assert.True(t, strings.HasPrefix(gotReq.Messages[0].Content[1].ImageURL.URL, "data:image/jpeg;base64,"))
}

func TestAnalyze_Validation(t *testing.T) {
	analyzer := NewAnalyzer("http://unused", "sk-test", http.DefaultClient, slog.Default())
	ctx := context.Background()

	t.Run("missing image", func(t *testing.T) {
		in := testInput()
		in.ImageBase64 = ""

		_, err := analyzer.Analyze(ctx, in)
		assert.Error(t, err)
	})

	t.Run("missing mime type", func(t *testing.T) {
		in := testInput()
		in.ImageMimeType = ""

		_, err := analyzer.Analyze(ctx, in)
		assert.Error(t, err)
	})

	t.Run("missing api key", func(t *testing.T) {
		bare := NewAnalyzer("http://unused", "", http.DefaultClient, slog.Default())

		_, err := bare.Analyze(ctx, testInput())
		assert.Error(t, err)
	})
}

func TestAnalyze_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	analyzer := NewAnalyzer(srv.URL, "sk-test", http.DefaultClient, slog.Default())

	_, err := analyzer.Analyze(context.Background(), testInput())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestParseExtraction(t *testing.T) {
	t.Run("income accepted", func(t *testing.T) {
		got, err := parseExtraction(`{"type":"income","amount_kurus":500000,"date":"2026-02-01","note":"Maaş"}`)
		require.NoError(t, err)
		assert.Equal(t, Kurus(500000), got.AmountKurus)
		assert.Equal(t, "5000.00", got.AmountTL)
	})

	t.Run("suggested category passes through", func(t *testing.T) {
		got, err := parseExtraction(`{"type":"expense","amount_kurus":100,"suggested_new_category_name":"Kırtasiye"}`)
		require.NoError(t, err)
		assert.Equal(t, "Kırtasiye", got.SuggestedNewCategoryName)
	})

	tests := []struct {
		name    string
		content string
	}{
		{"invalid json", `not json`},
		{"unknown type", `{"type":"transfer","amount_kurus":100}`},
		{"negative amount", `{"type":"expense","amount_kurus":-5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseExtraction(tt.content)
			assert.Error(t, err)
		})
	}
}
