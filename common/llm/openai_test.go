package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/autoreply/common/llm"
)

const completionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-3.5-turbo",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "  Try restarting the client.\n"}}],
  "usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

type capturedRequest struct {
	Path          string
	Authorization string
	Body          map[string]any
}

var _ = Describe("Client", func() {
	var (
		server   *httptest.Server
		captured capturedRequest
		handler  http.HandlerFunc
	)

	BeforeEach(func() {
		captured = capturedRequest{}
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(completionBody))
		}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			captured.Path = r.URL.Path
			captured.Authorization = r.Header.Get("Authorization")
			_ = json.NewDecoder(r.Body).Decode(&captured.Body)
			handler(w, r)
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	newClient := func(timeout time.Duration) llm.Client {
		client, err := llm.New(llm.Config{
			APIKey:  "sk-test",
			BaseURL: server.URL + "/v1",
			Model:   "gpt-test",
			Timeout: timeout,
		})
		Expect(err).NotTo(HaveOccurred())
		return client
	}

	request := llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "You are a support agent."},
			{Role: llm.RoleUser, Content: "my node is slow"},
			{Role: llm.RoleAssistant, Content: "Which node?"},
			{Role: llm.RoleUser, Content: "Tokyo"},
		},
		Temperature: 0.7,
		MaxTokens:   500,
	}

	It("rejects an empty API key", func() {
		client, err := llm.New(llm.Config{})
		Expect(err).To(HaveOccurred())
		Expect(client).To(BeNil())
	})

	It("posts the transcript to {base}/chat/completions and returns the content verbatim", func() {
		reply, err := newClient(5*time.Second).Complete(context.Background(), request)

		Expect(err).NotTo(HaveOccurred())
		Expect(reply).To(Equal("  Try restarting the client.\n"))
		Expect(captured.Path).To(Equal("/v1/chat/completions"))
		Expect(captured.Authorization).To(Equal("Bearer sk-test"))
		Expect(captured.Body["model"]).To(Equal("gpt-test"))
		Expect(captured.Body["temperature"]).To(BeNumerically("~", 0.7))
		Expect(captured.Body["max_tokens"]).To(BeNumerically("==", 500))

		messages, ok := captured.Body["messages"].([]any)
		Expect(ok).To(BeTrue())
		Expect(messages).To(HaveLen(4))
		roles := make([]string, 0, len(messages))
		for _, m := range messages {
			roles = append(roles, m.(map[string]any)["role"].(string))
		}
		Expect(roles).To(Equal([]string{"system", "user", "assistant", "user"}))
	})

	It("treats a non-success status as no reply", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
		}

		reply, err := newClient(5*time.Second).Complete(context.Background(), request)

		Expect(err).NotTo(HaveOccurred())
		Expect(reply).To(BeEmpty())
	})

	It("treats a malformed body as no reply", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"choices": [`))
		}

		reply, err := newClient(5*time.Second).Complete(context.Background(), request)

		Expect(err).NotTo(HaveOccurred())
		Expect(reply).To(BeEmpty())
	})

	It("treats an empty choice list as no reply", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`))
		}

		reply, err := newClient(5*time.Second).Complete(context.Background(), request)

		Expect(err).NotTo(HaveOccurred())
		Expect(reply).To(BeEmpty())
	})

	It("returns an error when the provider times out", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(500 * time.Millisecond)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(completionBody))
		}

		_, err := newClient(50*time.Millisecond).Complete(context.Background(), request)

		Expect(err).To(HaveOccurred())
	})
})
