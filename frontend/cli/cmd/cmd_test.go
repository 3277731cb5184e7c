package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.uber.org/mock/gomock"

	"github.com/nimec77/deepseek-json/backend/model"
	"github.com/nimec77/deepseek-json/shared/mocks"
	"github.com/nimec77/deepseek-json/shared/resilience"
)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// reply is one scripted answer of the fake chat completions endpoint.
type reply struct {
	Status  int
	Content string
	Body    string
}

func completion(content string) reply {
	return reply{Status: http.StatusOK, Content: content}
}

func failure(status int, body string) reply {
	return reply{Status: status, Body: body}
}

func (r reply) body() string {
	if r.Body != "" || r.Status != http.StatusOK {
		return r.Body
	}
	data, _ := json.Marshal(map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"role": "assistant", "content": r.Content}},
		},
	})
	return string(data)
}

// fakeAPI replays replies in order and keeps answering with the last one.
type fakeAPI struct {
	mu       sync.Mutex
	replies  []reply
	requests []map[string]any
	auth     []string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	data, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(data, &payload)

	f.mu.Lock()
	index := len(f.requests)
	f.requests = append(f.requests, payload)
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	if index >= len(f.replies) {
		index = len(f.replies) - 1
	}
	next := f.replies[index]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(next.Status)
	fmt.Fprint(w, next.body())
}

func (f *fakeAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeAPI) authorizations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.auth...)
}

// userContents returns the content of the last user message of every request.
func (f *fakeAPI) userContents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var contents []string
	for _, request := range f.requests {
		messages, _ := request["messages"].([]any)
		for i := len(messages) - 1; i >= 0; i-- {
			message, _ := messages[i].(map[string]any)
			if message["role"] == "user" {
				contents = append(contents, fmt.Sprint(message["content"]))
				break
			}
		}
	}
	return contents
}

type TestSetup struct {
	CmpOptions []cmp.Option
}

type TestScenario struct {
	Name            string
	Command         []string
	Stdin           string
	Replies         []reply
	SetupKeyring    func(keyring *mocks.MockProvider)
	SetupFileSystem func(fs *afero.Afero)
	SetupEnv        map[string]string
	Expected        TestExpectation
	// Verify runs after the command for checks that need the raw state.
	Verify func(t *testing.T, state *TestState)
}

type TestExpectation struct {
	// Stdout lists substrings that must appear in the combined output.
	Stdout []string
	// Error is a substring of the returned error. Empty means success.
	Error    string
	Requests int
	Files    map[string]string
}

type TestState struct {
	Stdout   string
	API      *fakeAPI
	FS       *afero.Afero
	Registry *prometheus.Registry
}

func fastRetryOptions() []model.ProviderOption {
	return []model.ProviderOption{
		model.WithRetryConfig(&resilience.RetryConfig{
			MaxAttempts:       3,
			InitialDelay:      time.Millisecond,
			MaxDelay:          5 * time.Millisecond,
			BackoffMultiplier: 2,
		}),
	}
}

func (s *TestSetup) RunTests(t *testing.T, scenarios []TestScenario) {
	if len(scenarios) == 0 {
		t.Fatalf("no scenarios provided")
	}

	for _, scenario := range scenarios {
		t.Run(scenario.Name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			keyringProvider := mocks.NewMockProvider(ctrl)
			if scenario.SetupKeyring != nil {
				scenario.SetupKeyring(keyringProvider)
			}

			fs := &afero.Afero{Fs: afero.NewMemMapFs()}
			if scenario.SetupFileSystem != nil {
				scenario.SetupFileSystem(fs)
			}

			env := map[string]string{
				"DEEPSEEK_API_KEY":   "sk-test",
				"DEEPSEEK_LOG_LEVEL": "",
			}
			for key, value := range scenario.SetupEnv {
				env[key] = value
			}
			for key, value := range env {
				t.Setenv(key, value)
			}

			api := &fakeAPI{replies: scenario.Replies}
			if len(api.replies) == 0 {
				api.replies = []reply{failure(http.StatusInternalServerError, "unexpected request")}
			}
			server := httptest.NewServer(api)
			defer server.Close()

			testCmd := NewRootCmd()

			var stdin bytes.Buffer
			stdin.WriteString(scenario.Stdin)
			testCmd.SetIn(&stdin)

			var stdout bytes.Buffer
			testCmd.SetOut(&stdout)
			testCmd.SetErr(&stdout)

			registry := prometheus.NewRegistry()
			ctx := context.Background()
			ctx = context.WithValue(ctx, ContextKeyFileSystem, fs)
			ctx = context.WithValue(ctx, ContextKeyDisableFileLogs, true)
			ctx = context.WithValue(ctx, ContextKeyKeyring, keyringProvider)
			ctx = context.WithValue(ctx, ContextKeyEnvFiles, []string{filepath.Join(t.TempDir(), "missing.env")})
			ctx = context.WithValue(ctx, ContextKeyMetrics, registry)
			ctx = context.WithValue(ctx, ContextKeyProviderOptions, fastRetryOptions())

			testCmd.SetArgs(append(scenario.Command, "--base-url", server.URL))

			var actual TestExpectation
			err := testCmd.ExecuteContext(ctx)
			output := stripANSI(stdout.String())
			if err != nil {
				actual.Error = stripANSI(err.Error())
			}

			if scenario.Expected.Error == "" && err != nil {
				t.Fatalf("unexpected error: %v\noutput:\n%s", err, output)
			}
			if scenario.Expected.Error != "" && !strings.Contains(actual.Error, scenario.Expected.Error) {
				t.Errorf("error = %q, want it to contain %q", actual.Error, scenario.Expected.Error)
			}

			for _, want := range scenario.Expected.Stdout {
				if !strings.Contains(output, want) {
					t.Errorf("output does not contain %q\noutput:\n%s", want, output)
				}
			}

			if got := api.count(); got != scenario.Expected.Requests {
				t.Errorf("requests = %d, want %d", got, scenario.Expected.Requests)
			}

			if scenario.Expected.Files != nil {
				files := map[string]string{}
				for path := range scenario.Expected.Files {
					data, err := fs.ReadFile(path)
					if err != nil {
						t.Errorf("ReadFile(%q) error = %v", path, err)
						continue
					}
					files[path] = string(data)
				}
				if diff := cmp.Diff(scenario.Expected.Files, files, s.CmpOptions...); diff != "" {
					t.Errorf("%s() files mismatch (-want +got):\n%s", scenario.Name, diff)
				}
			}

			if scenario.Verify != nil {
				scenario.Verify(t, &TestState{Stdout: output, API: api, FS: fs, Registry: registry})
			}
		})
	}
}
