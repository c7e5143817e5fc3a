package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClient_Stream(t *testing.T) {
	t.Run("should stop reading and close the channel after cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			flusher, ok := w.(http.Flusher)
			require.True(t, ok)

			// Keep the stream open and producing so the reader has
			// pending sends while the consumer goes away.
			for i := 0; ; i++ {
				_, err := fmt.Fprintf(w,
					"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"chunk %d \"}}\n\n", i)
				if err != nil {
					return
				}
				flusher.Flush()
				select {
				case <-r.Context().Done():
					return
				case <-time.After(5 * time.Millisecond):
				}
			}
		}))
		defer server.Close()

		client := NewClient(Config{
			APIKey:  "test-key",
			BaseURL: server.URL,
			Version: "2023-06-01",
			Timeout: 5,
		})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		results, err := client.Stream(ctx, anthropicRequest{
			Model:     "claude-test",
			MaxTokens: 64,
			Messages:  []anthropicMessage{{Role: "user", Content: "hi"}},
		})
		require.NoError(t, err)

		first := <-results
		require.NoError(t, first.Error)
		require.NotEmpty(t, first.Delta)

		// Walk away from the stream the way a disconnected caller does.
		cancel()
		time.Sleep(100 * time.Millisecond)

		select {
		case result, open := <-results:
			require.False(t, open, "expected channel close, got %+v", result)
		case <-time.After(time.Second):
			t.Fatal("stream reader did not exit after cancellation")
		}
	})
}
