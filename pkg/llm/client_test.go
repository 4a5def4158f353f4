package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sseServer serves a canned chat-completions stream and a models list.
func sseServer(t *testing.T, models []string, frames []string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[`)
		for i, m := range models {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, `{"id":%q,"object":"model","created":0,"owned_by":"local"}`, m)
		}
		fmt.Fprint(w, `]}`)
	})

	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, frame := range frames {
			fmt.Fprintf(w, "data: %s\n\n", frame)
			flusher.Flush()
		}
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func chunkFrame(content, reasoning, finish string) string {
	delta := "{"
	if content != "" {
		delta += fmt.Sprintf("%q:%q", "content", content)
	}
	if reasoning != "" {
		if content != "" {
			delta += ","
		}
		delta += fmt.Sprintf("%q:%q", "reasoning_content", reasoning)
	}
	delta += "}"
	finishJSON := "null"
	if finish != "" {
		finishJSON = fmt.Sprintf("%q", finish)
	}
	return fmt.Sprintf(`{"id":"c1","object":"chat.completion.chunk","created":0,"model":"m","choices":[{"index":0,"delta":%s,"finish_reason":%s}]}`, delta, finishJSON)
}

func drain(t *testing.T, chunks <-chan Chunk) (thinking, content string, done *DoneChunk, errChunk *ErrorChunk) {
	t.Helper()
	for chunk := range chunks {
		switch c := chunk.(type) {
		case ThinkingChunk:
			thinking += c.Content
		case ContentChunk:
			content += c.Content
		case DoneChunk:
			d := c
			done = &d
		case ErrorChunk:
			e := c
			errChunk = &e
		}
	}
	return thinking, content, done, errChunk
}

func resolverFor(server *httptest.Server) EndpointResolver {
	return func(string) Endpoint { return Endpoint{BaseURL: server.URL + "/v1"} }
}

func TestCompleteStreamSeparatesReasoningField(t *testing.T) {
	server := sseServer(t, nil, []string{
		chunkFrame("", "thinking hard", ""),
		chunkFrame("the ", "", ""),
		chunkFrame("answer", "", "stop"),
		"[DONE]",
	})
	client := NewOpenAIClient(resolverFor(server))

	chunks, err := client.CompleteStream(context.Background(), "m", []Message{{Role: RoleUser, Content: "q"}}, Options{})
	require.NoError(t, err)

	thinking, content, done, errChunk := drain(t, chunks)
	require.Nil(t, errChunk)
	require.NotNil(t, done)
	assert.Equal(t, "thinking hard", thinking)
	assert.Equal(t, "the answer", content)
	assert.Equal(t, "the answer", done.Content)
	assert.Equal(t, "thinking hard", done.Thinking)
	assert.False(t, done.Truncated)
}

func TestCompleteStreamThinkTagFallback(t *testing.T) {
	server := sseServer(t, nil, []string{
		chunkFrame("<think>pond", "", ""),
		chunkFrame("ering</think>result", "", "stop"),
		"[DONE]",
	})
	client := NewOpenAIClient(resolverFor(server))

	chunks, err := client.CompleteStream(context.Background(), "m", nil, Options{})
	require.NoError(t, err)

	thinking, content, done, errChunk := drain(t, chunks)
	require.Nil(t, errChunk)
	require.NotNil(t, done)
	assert.Equal(t, "pondering", thinking)
	assert.Equal(t, "result", content)
}

func TestCompleteStreamTruncatedWithContentFinalizes(t *testing.T) {
	// Stream ends without finish_reason or [DONE]: content arrived, so the
	// stream finalizes as gracefully truncated.
	server := sseServer(t, nil, []string{
		chunkFrame("partial output", "", ""),
	})
	client := NewOpenAIClient(resolverFor(server))

	chunks, err := client.CompleteStream(context.Background(), "m", nil, Options{})
	require.NoError(t, err)

	_, content, done, errChunk := drain(t, chunks)
	require.Nil(t, errChunk)
	require.NotNil(t, done)
	assert.True(t, done.Truncated)
	assert.Equal(t, "partial output", content)
}

func TestCompleteStreamEmptyStreamIsProtocolError(t *testing.T) {
	server := sseServer(t, nil, nil)
	client := NewOpenAIClient(resolverFor(server))

	chunks, err := client.CompleteStream(context.Background(), "m", nil, Options{})
	require.NoError(t, err)

	_, _, done, errChunk := drain(t, chunks)
	assert.Nil(t, done)
	require.NotNil(t, errChunk)
	assert.Equal(t, KindProtocolError, errChunk.Err.Kind)
}

func TestCompleteStreamUnreachableEndpoint(t *testing.T) {
	client := NewOpenAIClient(func(string) Endpoint {
		return Endpoint{BaseURL: "http://127.0.0.1:1/v1"}
	})
	chunks, err := client.CompleteStream(context.Background(), "m", nil, Options{})
	require.NoError(t, err)

	_, _, _, errChunk := drain(t, chunks)
	require.NotNil(t, errChunk)
	assert.Equal(t, KindUnreachableEndpoint, errChunk.Err.Kind)
	assert.Equal(t, "m", errChunk.Err.Model)
}

func TestValidateBackendReportsMissingModels(t *testing.T) {
	server := sseServer(t, []string{"m1", "m2"}, nil)
	resolve := resolverFor(server)

	status, err := ValidateBackend(context.Background(), resolve, []string{"m1", "m2", "m3"})
	require.NoError(t, err)
	assert.Equal(t, 2, status.LoadedCount)
	assert.Equal(t, []string{"m3"}, status.Missing)
}

func TestValidateBackendAllLoaded(t *testing.T) {
	server := sseServer(t, []string{"m1", "m2", "chair"}, nil)
	status, err := ValidateBackend(context.Background(), resolverFor(server), []string{"m1", "m2", "chair"})
	require.NoError(t, err)
	assert.Empty(t, status.Missing)
	assert.Equal(t, 3, status.LoadedCount)
}

func TestValidateBackendUnreachable(t *testing.T) {
	resolve := func(string) Endpoint { return Endpoint{BaseURL: "http://127.0.0.1:1/v1"} }
	_, err := ValidateBackend(context.Background(), resolve, []string{"m1"})
	require.Error(t, err)
	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, KindUnreachableEndpoint, lerr.Kind)
}
