package knowledge

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func knowledgeRouter(r *Retriever) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(r).RegisterRoutes(router.Group("/api/v1"))
	return router
}

func TestHandlerQueryLexical(t *testing.T) {
	coll := NewMemoryCollection("fcra_knowledge", false, Chunk{ID: "c1", Text: "How to dispute an inaccurate tradeline"})
	r := NewRetriever(DefaultConfig(), nil, []Collection{coll}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/knowledge/query", bytes.NewReader([]byte(`{"query":"dispute"}`)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	knowledgeRouter(r).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var got Response
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	assert.Equal(t, TierLexical, got.Tier)
	require.Len(t, got.Snippets, 1)
	assert.Equal(t, "c1", got.Snippets[0].ID)
}

func TestHandlerQueryNothingFound(t *testing.T) {
	r := NewRetriever(DefaultConfig(), nil, []Collection{NewMemoryCollection("general_knowledge", false)}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/knowledge/query", bytes.NewReader([]byte(`{"query":"zzz"}`)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	knowledgeRouter(r).ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var got Response
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	assert.Equal(t, TierNone, got.Tier)
	assert.Empty(t, got.Snippets)
}

func TestHandlerQueryValidation(t *testing.T) {
	r := NewRetriever(DefaultConfig(), nil, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/knowledge/query", bytes.NewReader([]byte(`{"query":""}`)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	knowledgeRouter(r).ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
