// Package summarizer turns text into a summary through a language model,
// retrying transient failures and degrading to a placeholder when the
// provider cannot be reached.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/temirov/recap/internal/llm"
	"github.com/temirov/recap/internal/secrets"
	"github.com/temirov/recap/internal/types"
	"github.com/temirov/recap/internal/utils"
)

const (
	defaultMaxAttempts     = 4
	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 30 * time.Second

	placeholderFormat = "_Summary unavailable for `%s`._"

	warningDegradedMessage  = "summary degraded"
	warningRetryMessage     = "retrying summarization"
	warningRedactionMessage = "redacted secrets before summarization"
)

// Attempt outcomes reported to a Recorder.
const (
	OutcomeSuccess   = "success"
	OutcomeTransient = "transient_error"
	OutcomePermanent = "permanent_error"
)

var (
	// ErrEmptySummary reports a provider response with no text.
	ErrEmptySummary = errors.New("provider returned an empty summary")
	// ErrRedactionFailed reports content that could not be scrubbed and was not sent.
	ErrRedactionFailed = errors.New("secret redaction failed")
)

// Request is one unit of summarization work. Chunk is zero based and Total is
// the number of chunks of the file; both are zero for merges.
type Request struct {
	Role  types.Role
	Path  string
	Text  string
	Chunk int
	Total int
}

// Summary is the outcome of a request. A degraded summary carries placeholder
// text and the error that caused it.
type Summary struct {
	Text     string
	Degraded bool
	Attempts int
	Redacted int
	Err      error
}

// Recorder observes provider attempts.
type Recorder interface {
	ObserveAttempt(role types.Role, outcome string, duration time.Duration)
}

// Options configures a Summarizer.
type Options struct {
	Client            llm.Client
	Scrubber          secrets.Scrubber
	RequestsPerMinute int
	MaxAttempts       int
	InitialInterval   time.Duration
	MaxInterval       time.Duration
	AttemptTimeout    time.Duration
	Recorder          Recorder
	Logger            *zap.Logger
}

// Summarizer is safe for concurrent use.
type Summarizer struct {
	client          llm.Client
	scrubber        secrets.Scrubber
	limiter         *rate.Limiter
	maxAttempts     int
	initialInterval time.Duration
	maxInterval     time.Duration
	attemptTimeout  time.Duration
	recorder        Recorder
	logger          *zap.Logger
	attempts        atomic.Int64
	requests        atomic.Int64
}

// New constructs a Summarizer. A non-positive RequestsPerMinute disables rate
// limiting and a nil Scrubber disables redaction.
func New(options Options) (*Summarizer, error) {
	if options.Client == nil {
		return nil, errors.New("summarizer requires an llm client")
	}
	summarizer := &Summarizer{
		client:          options.Client,
		scrubber:        options.Scrubber,
		limiter:         rate.NewLimiter(rate.Inf, 1),
		maxAttempts:     options.MaxAttempts,
		initialInterval: options.InitialInterval,
		maxInterval:     options.MaxInterval,
		attemptTimeout:  options.AttemptTimeout,
		recorder:        options.Recorder,
		logger:          utils.LoggerOrNop(options.Logger),
	}
	if summarizer.scrubber == nil {
		summarizer.scrubber = secrets.NopScrubber{}
	}
	if options.RequestsPerMinute > 0 {
		summarizer.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(options.RequestsPerMinute)), 1)
	}
	if summarizer.maxAttempts <= 0 {
		summarizer.maxAttempts = defaultMaxAttempts
	}
	if summarizer.initialInterval <= 0 {
		summarizer.initialInterval = defaultInitialInterval
	}
	if summarizer.maxInterval <= 0 {
		summarizer.maxInterval = defaultMaxInterval
	}
	return summarizer, nil
}

// Attempts returns the number of provider calls made so far.
func (summarizer *Summarizer) Attempts() int64 {
	return summarizer.attempts.Load()
}

// Requests returns the number of Summarize calls made so far.
func (summarizer *Summarizer) Requests() int64 {
	return summarizer.requests.Load()
}

// Summarize produces a summary for request. Provider failures never surface as
// errors: after the attempt ceiling, or on a non-transient failure, a degraded
// placeholder is returned. The error is non-nil only when ctx is done.
func (summarizer *Summarizer) Summarize(ctx context.Context, request Request) (Summary, error) {
	summarizer.requests.Add(1)
	if contextError := ctx.Err(); contextError != nil {
		return Summary{}, contextError
	}

	text := request.Text
	redactedCount := 0
	if request.Role == types.RoleFile {
		scrubResult, scrubError := summarizer.scrubber.Scrub(text)
		if scrubError != nil {
			return summarizer.degrade(request, 0, fmt.Errorf("%w: %v", ErrRedactionFailed, scrubError)), nil
		}
		text = scrubResult.Content
		redactedCount = len(scrubResult.Findings)
		if redactedCount > 0 {
			summarizer.logger.Info(warningRedactionMessage, zap.String("path", request.Path), zap.Int("findings", redactedCount))
		}
	}

	instruction := instructionFor(request.Role)
	input := inputFor(request, text)
	attemptCount := 0
	operation := func() (string, error) {
		if waitError := summarizer.limiter.Wait(ctx); waitError != nil {
			return "", backoff.Permanent(waitError)
		}
		attemptCount++
		summarizer.attempts.Add(1)
		startTime := time.Now()
		completion, completeError := summarizer.complete(ctx, instruction, input)
		outcome := OutcomeSuccess
		switch {
		case completeError == nil:
		case ctx.Err() != nil:
			return "", backoff.Permanent(ctx.Err())
		case llm.IsTransient(completeError):
			outcome = OutcomeTransient
		default:
			outcome = OutcomePermanent
		}
		if summarizer.recorder != nil {
			summarizer.recorder.ObserveAttempt(request.Role, outcome, time.Since(startTime))
		}
		if outcome == OutcomePermanent {
			return "", backoff.Permanent(completeError)
		}
		return completion, completeError
	}

	exponentialBackOff := backoff.NewExponentialBackOff()
	exponentialBackOff.InitialInterval = summarizer.initialInterval
	exponentialBackOff.MaxInterval = summarizer.maxInterval
	completion, retryError := backoff.Retry(ctx, operation,
		backoff.WithBackOff(exponentialBackOff),
		backoff.WithMaxTries(uint(summarizer.maxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(notifyError error, delay time.Duration) {
			summarizer.logger.Debug(warningRetryMessage,
				zap.String("path", request.Path),
				zap.Duration("delay", delay),
				zap.Error(notifyError))
		}),
	)
	if retryError != nil {
		if contextError := ctx.Err(); contextError != nil {
			return Summary{}, contextError
		}
		return summarizer.degrade(request, attemptCount, retryError), nil
	}
	return Summary{Text: completion, Attempts: attemptCount, Redacted: redactedCount}, nil
}

func (summarizer *Summarizer) complete(ctx context.Context, instruction string, input string) (string, error) {
	attemptContext := ctx
	if summarizer.attemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptContext, cancel = context.WithTimeout(ctx, summarizer.attemptTimeout)
		defer cancel()
	}
	completion, completeError := summarizer.client.Complete(attemptContext, instruction, input)
	if completeError != nil {
		return "", completeError
	}
	completion = strings.TrimSpace(completion)
	if completion == "" {
		return "", llm.MarkTransient(ErrEmptySummary)
	}
	return completion, nil
}

func (summarizer *Summarizer) degrade(request Request, attemptCount int, cause error) Summary {
	summarizer.logger.Warn(warningDegradedMessage,
		zap.String("path", request.Path),
		zap.String("role", string(request.Role)),
		zap.Int("attempts", attemptCount),
		zap.Error(cause))
	return Summary{
		Text:     Placeholder(request.Path),
		Degraded: true,
		Attempts: attemptCount,
		Err:      cause,
	}
}

// Placeholder returns the text used in place of a summary that could not be produced.
func Placeholder(relativePath string) string {
	return fmt.Sprintf(placeholderFormat, relativePath)
}
