package llm

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/raphaelgruber/urdufact-go/internal/config"
)

var (
	// ErrFatalAPI marks provider errors that retrying the same request cannot
	// fix, such as auth or billing rejections. Rate limits (429) are transient
	// and retried after the request retry delay.
	ErrFatalAPI = errors.New("fatal API error")

	// ErrTimeout marks a request that hit its per-request deadline.
	ErrTimeout = errors.New("request timed out")

	// ErrMalformedOutput marks a response that did not have the expected shape.
	ErrMalformedOutput = errors.New("malformed model output")

	// ErrNoChoices marks a response without any choices.
	ErrNoChoices = errors.New("no response choices")
)

// UnsupportedProviderError is returned for a provider name without a factory.
type UnsupportedProviderError struct {
	Provider config.Provider
	Known    []config.Provider
}

func (e *UnsupportedProviderError) Error() string {
	known := make([]string, len(e.Known))
	for i, p := range e.Known {
		known[i] = string(p)
	}
	return fmt.Sprintf("unsupported LLM provider %q (known: %s)", e.Provider, strings.Join(known, ", "))
}

var fatalPatterns = []string{
	"credit balance",
	"quota exceeded",
	"billing",
	"invalid api key",
	"authentication",
	"unauthorized",
}

var fatalStatus = regexp.MustCompile(`\b40[13]\b`)

func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range fatalPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return fatalStatus.MatchString(msg)
}

// wrapFatalError tags err with ErrFatalAPI when it looks unrecoverable.
func wrapFatalError(err error) error {
	if !isFatalAPIError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFatalAPI, err)
}

// MalformedOutputError carries the raw text that failed to parse.
type MalformedOutputError struct {
	Raw    string
	Reason string
}

func (e *MalformedOutputError) Error() string {
	raw := e.Raw
	if len(raw) > 200 {
		raw = raw[:200] + "..."
	}
	return fmt.Sprintf("malformed model output: %s: %q", e.Reason, raw)
}

func (e *MalformedOutputError) Is(target error) bool {
	return target == ErrMalformedOutput
}
