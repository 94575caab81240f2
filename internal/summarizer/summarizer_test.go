package summarizer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/temirov/recap/internal/llm"
	"github.com/temirov/recap/internal/secrets"
	"github.com/temirov/recap/internal/types"
)

type scriptedClient struct {
	mutex     sync.Mutex
	failures  []error
	response  string
	calls     int
	lastInput string
}

func (client *scriptedClient) Complete(ctx context.Context, instruction string, input string) (string, error) {
	client.mutex.Lock()
	defer client.mutex.Unlock()
	client.calls++
	client.lastInput = input
	if len(client.failures) > 0 {
		failure := client.failures[0]
		client.failures = client.failures[1:]
		return "", failure
	}
	return client.response, nil
}

type recordingRecorder struct {
	mutex    sync.Mutex
	outcomes []string
}

func (recorder *recordingRecorder) ObserveAttempt(role types.Role, outcome string, duration time.Duration) {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	recorder.outcomes = append(recorder.outcomes, outcome)
}

type fixedScrubber struct {
	secret string
	err    error
}

func (scrubber fixedScrubber) Scrub(content string) (secrets.Result, error) {
	if scrubber.err != nil {
		return secrets.Result{}, scrubber.err
	}
	findings := []secrets.Finding{}
	if strings.Contains(content, scrubber.secret) {
		findings = append(findings, secrets.Finding{RuleID: "test-rule", Secret: scrubber.secret})
	}
	return secrets.Result{Content: secrets.Redact(content, findings), Findings: findings}, nil
}

func newTestSummarizer(t *testing.T, options Options) *Summarizer {
	t.Helper()
	options.InitialInterval = time.Millisecond
	options.MaxInterval = 2 * time.Millisecond
	summarizer, err := New(options)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return summarizer
}

func TestSummarizeRetriesTransientFailures(t *testing.T) {
	client := &scriptedClient{
		failures: []error{
			llm.MarkTransient(errors.New("overloaded")),
			errors.New("status code: 503"),
		},
		response: "  Parses configuration files.  ",
	}
	recorder := &recordingRecorder{}
	summarizer := newTestSummarizer(t, Options{Client: client, MaxAttempts: 4, Recorder: recorder})

	summary, err := summarizer.Summarize(context.Background(), Request{Role: types.RoleFile, Path: "config.go", Text: "package config"})
	if err != nil {
		t.Fatalf("Summarize error: %v", err)
	}
	if summary.Degraded {
		t.Fatalf("expected a real summary, got degraded %+v", summary)
	}
	if summary.Text != "Parses configuration files." {
		t.Fatalf("unexpected text %q", summary.Text)
	}
	if summary.Attempts != 3 || client.calls != 3 || summarizer.Attempts() != 3 {
		t.Fatalf("expected 3 attempts, got summary=%d client=%d counter=%d", summary.Attempts, client.calls, summarizer.Attempts())
	}
	expectedOutcomes := []string{OutcomeTransient, OutcomeTransient, OutcomeSuccess}
	if strings.Join(recorder.outcomes, ",") != strings.Join(expectedOutcomes, ",") {
		t.Fatalf("unexpected outcomes %v", recorder.outcomes)
	}
}

func TestSummarizeDegradesAfterAttemptCeiling(t *testing.T) {
	transient := llm.MarkTransient(errors.New("rate limit"))
	client := &scriptedClient{failures: []error{transient, transient, transient, transient}, response: "never"}
	summarizer := newTestSummarizer(t, Options{Client: client, MaxAttempts: 3})

	summary, err := summarizer.Summarize(context.Background(), Request{Role: types.RoleFile, Path: "pkg/a.go", Text: "x"})
	if err != nil {
		t.Fatalf("Summarize error: %v", err)
	}
	if !summary.Degraded || summary.Err == nil {
		t.Fatalf("expected degraded summary, got %+v", summary)
	}
	if summary.Text != Placeholder("pkg/a.go") {
		t.Fatalf("unexpected placeholder %q", summary.Text)
	}
	if client.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", client.calls)
	}
}

func TestSummarizeDoesNotRetryPermanentFailures(t *testing.T) {
	client := &scriptedClient{failures: []error{errors.New("status code: 401: invalid api key")}, response: "never"}
	summarizer := newTestSummarizer(t, Options{Client: client, MaxAttempts: 5})

	summary, err := summarizer.Summarize(context.Background(), Request{Role: types.RoleMerge, Path: ".", Text: "children"})
	if err != nil {
		t.Fatalf("Summarize error: %v", err)
	}
	if !summary.Degraded {
		t.Fatalf("expected degraded summary")
	}
	if client.calls != 1 {
		t.Fatalf("expected a single call, got %d", client.calls)
	}
}

func TestSummarizeTreatsEmptyResponseAsTransient(t *testing.T) {
	client := &scriptedClient{response: "   "}
	summarizer := newTestSummarizer(t, Options{Client: client, MaxAttempts: 2})

	summary, err := summarizer.Summarize(context.Background(), Request{Role: types.RoleFile, Path: "a.py", Text: "print()"})
	if err != nil {
		t.Fatalf("Summarize error: %v", err)
	}
	if !summary.Degraded || !errors.Is(summary.Err, ErrEmptySummary) {
		t.Fatalf("expected degraded empty summary, got %+v", summary)
	}
	if client.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", client.calls)
	}
}

func TestSummarizeReturnsCancellation(t *testing.T) {
	client := &scriptedClient{response: "unused"}
	summarizer := newTestSummarizer(t, Options{Client: client})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := summarizer.Summarize(ctx, Request{Role: types.RoleFile, Path: "a.go", Text: "x"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if client.calls != 0 {
		t.Fatalf("expected no provider calls, got %d", client.calls)
	}
}

func TestSummarizeRedactsFileContentOnly(t *testing.T) {
	const secret = "sk-test-0123456789"
	client := &scriptedClient{response: "ok"}
	summarizer := newTestSummarizer(t, Options{Client: client, Scrubber: fixedScrubber{secret: secret}})

	summary, err := summarizer.Summarize(context.Background(), Request{Role: types.RoleFile, Path: "env.go", Text: "key := \"" + secret + "\""})
	if err != nil {
		t.Fatalf("Summarize error: %v", err)
	}
	if summary.Redacted != 1 {
		t.Fatalf("expected one redaction, got %d", summary.Redacted)
	}
	if strings.Contains(client.lastInput, secret) || !strings.Contains(client.lastInput, "[REDACTED:test-rule]") {
		t.Fatalf("secret reached the provider: %q", client.lastInput)
	}

	if _, err := summarizer.Summarize(context.Background(), Request{Role: types.RoleMerge, Path: ".", Text: secret}); err != nil {
		t.Fatalf("Summarize error: %v", err)
	}
	if !strings.Contains(client.lastInput, secret) {
		t.Fatalf("merge input should not be scrubbed: %q", client.lastInput)
	}
}

func TestSummarizeDegradesWhenRedactionFails(t *testing.T) {
	client := &scriptedClient{response: "ok"}
	summarizer := newTestSummarizer(t, Options{Client: client, Scrubber: fixedScrubber{err: errors.New("detector broke")}})

	summary, err := summarizer.Summarize(context.Background(), Request{Role: types.RoleFile, Path: "a.go", Text: "x"})
	if err != nil {
		t.Fatalf("Summarize error: %v", err)
	}
	if !summary.Degraded || !errors.Is(summary.Err, ErrRedactionFailed) {
		t.Fatalf("expected redaction failure, got %+v", summary)
	}
	if client.calls != 0 {
		t.Fatalf("unscrubbed content must not be sent")
	}
}

func TestInputForChunks(t *testing.T) {
	input := inputFor(Request{Role: types.RoleFile, Path: "big.go", Chunk: 1, Total: 3}, "body")
	if input != "File: big.go (part 2 of 3)\n\nbody" {
		t.Fatalf("unexpected chunk input %q", input)
	}
	if instructionFor(types.RoleMerge) == instructionFor(types.RoleFile) {
		t.Fatalf("merge and file instructions must differ")
	}
}

func TestNewRequiresClient(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatalf("expected error without client")
	}
}
