package imagegen

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

func geminiServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

func imageResponse(parts ...part) generateResponse {
	var resp generateResponse
	resp.Candidates = append(resp.Candidates, struct {
		Content content `json:"content"`
	}{Content: content{Parts: parts}})
	return resp
}

// --- GenerateImage ---

func TestGenerateImage_Success(t *testing.T) {
	ts := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/models/gemini-2.5-flash-image:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-goog-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		require.Len(t, req.Contents[0].Parts, 1)
		assert.Equal(t, "draw a cat", req.Contents[0].Parts[0].Text)

		json.NewEncoder(w).Encode(imageResponse(
			part{Text: "here you go"},
			part{InlineData: &inlineData{MimeType: "image/jpeg", Data: "QUJD"}},
		))
	})

	c := NewClient("test-key", "gemini-2.5-flash-image", ts.URL+"/v1beta", 5*time.Second)
	img, err := c.GenerateImage(context.Background(), "draw a cat")

	require.NoError(t, err)
	assert.Equal(t, "data:image/jpeg;base64,QUJD", img)
}

func TestGenerateImage_DefaultMimeType(t *testing.T) {
	ts := geminiServer(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(imageResponse(part{InlineData: &inlineData{Data: "QUJD"}}))
	})

	c := NewClient("k", "m", ts.URL, 5*time.Second)
	img, err := c.GenerateImage(context.Background(), "p")

	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,QUJD", img)
}

func TestGenerateImage_NoImageData(t *testing.T) {
	ts := geminiServer(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(imageResponse(part{Text: "I cannot draw that"}))
	})

	c := NewClient("k", "m", ts.URL, 5*time.Second)
	_, err := c.GenerateImage(context.Background(), "p")

	assert.ErrorIs(t, err, ErrNoImageData)
}

func TestGenerateImage_NoCandidates(t *testing.T) {
	ts := geminiServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	})

	c := NewClient("k", "m", ts.URL, 5*time.Second)
	_, err := c.GenerateImage(context.Background(), "p")

	assert.ErrorIs(t, err, ErrNoImageData)
}

func TestGenerateImage_MalformedJSON(t *testing.T) {
	ts := geminiServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{not json`))
	})

	c := NewClient("k", "m", ts.URL, 5*time.Second)
	_, err := c.GenerateImage(context.Background(), "p")

	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestGenerateImage_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusBadRequest, ErrBadRequest},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusInternalServerError, ErrUpstreamUnavailable},
		{http.StatusServiceUnavailable, ErrUpstreamUnavailable},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			ts := geminiServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":{"code":1,"message":"quota or whatever","status":"X"}}`))
			})

			c := NewClient("k", "m", ts.URL, 5*time.Second)
			_, err := c.GenerateImage(context.Background(), "p")

			assert.ErrorIs(t, err, tt.want)
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, "quota or whatever", apiErr.Message)
		})
	}
}

func TestGenerateImage_NonJSONErrorBodyTruncated(t *testing.T) {
	ts := geminiServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte(strings.Repeat("x", 500)))
	})

	c := NewClient("k", "m", ts.URL, 5*time.Second)
	_, err := c.GenerateImage(context.Background(), "p")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Len(t, apiErr.Message, 200)
	assert.Contains(t, err.Error(), "418")
}

func TestGenerateImage_ContextTimeout(t *testing.T) {
	ts := geminiServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	c := NewClient("k", "m", ts.URL, 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.GenerateImage(ctx, "p")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestGenerateImage_Unreachable(t *testing.T) {
	c := NewClient("k", "m", "http://127.0.0.1:1", time.Second)

	_, err := c.GenerateImage(context.Background(), "p")
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}
