package extractor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bakkal-monitor/price-radar/internal/logger"
	"github.com/bakkal-monitor/price-radar/internal/models"
)

func TestDecodeProducts(t *testing.T) {
	raw := `{"products": [
		{"product_name": "Süt 1L", "current_price": 32.5, "market_name": "BIM", "product_url": "https://x/1"},
		{"product_name": "Yağ 5L", "current_price": "1.249,99 TL", "market_name": "A101", "product_url": "N/A"},
		{"product_name": "", "current_price": 10, "market_name": "SOK", "product_url": "https://x/3"},
		{"product_name": "Çay", "current_price": 0, "market_name": "SOK", "product_url": "https://x/4"},
		{"product_name": "Un", "current_price": "yok", "market_name": "SOK"},
		"garbage"
	]}`

	got, err := DecodeProducts(raw, "https://source/page")
	require.NoError(t, err)
	require.Equal(t, []models.ProductRecord{
		{ProductName: "Süt 1L", CurrentPrice: 32.5, MarketName: "BIM", ProductURL: "https://x/1"},
		{ProductName: "Yağ 5L", CurrentPrice: 1249.99, MarketName: "A101", ProductURL: "https://source/page"},
	}, got)
}

func TestDecodeProductsInvalidJSON(t *testing.T) {
	_, err := DecodeProducts("not json", "u")
	require.Error(t, err)
}

func TestOpenAIExtract(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message": map[string]string{
					"role":    "assistant",
					"content": `{"products":[{"product_name":"Ekmek","current_price":12.99,"market_name":"Migros","product_url":""}]}`,
				},
			}},
		})
	}))
	defer srv.Close()

	ex := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL}, logger.Discard())
	got := ex.Extract(context.Background(), models.RawChunk{
		Source: "cimri", Content: "Ekmek 12,99 TL", SourceURL: "https://www.cimri.com/market",
	})

	require.Equal(t, []models.ProductRecord{
		{ProductName: "Ekmek", CurrentPrice: 12.99, MarketName: "Migros", ProductURL: "https://www.cimri.com/market"},
	}, got)
	require.Equal(t, "gpt-4o-mini", gotReq.Model)
	require.Equal(t, "json_object", gotReq.ResponseFormat["type"])
	require.Len(t, gotReq.Messages, 2)
	require.Equal(t, "system", gotReq.Messages[0].Role)
	require.Equal(t, "Ekmek 12,99 TL", gotReq.Messages[1].Content)
}

func TestOpenAIExtractFailuresYieldNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ex := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL}, logger.Discard())
	require.Empty(t, ex.Extract(context.Background(), models.RawChunk{Content: "x"}))
	require.Empty(t, ex.Extract(context.Background(), models.RawChunk{Content: "   "}))
}

func TestFuncAdapter(t *testing.T) {
	var ex Extractor = Func(func(_ context.Context, c models.RawChunk) []models.ProductRecord {
		return []models.ProductRecord{{ProductName: c.Content}}
	})
	require.Equal(t, "a", ex.Extract(context.Background(), models.RawChunk{Content: "a"})[0].ProductName)
}
