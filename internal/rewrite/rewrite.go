// Package rewrite turns text into a more uplifting or more somber version of
// itself through an external language model.
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	ErrEmptyText   = errors.New("text is required")
	ErrInvalidTone = errors.New(`invalid tone, must be "uplift" or "somber"`)
	ErrNoAPIKey    = errors.New("rewrite: api key not configured")
)

type Tone string

const (
	ToneUplift Tone = "uplift"
	ToneSomber Tone = "somber"
)

// ParseTone accepts the tone names and the page modes they belong to.
func ParseTone(s string) (Tone, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "uplift", "happy":
		return ToneUplift, nil
	case "somber", "sad":
		return ToneSomber, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTone, s)
	}
}

// Mode is the page mode that uses this tone.
func (t Tone) Mode() string {
	if t == ToneSomber {
		return "sad"
	}
	return "happy"
}

type Request struct {
	Text string
	Tone Tone
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return ErrEmptyText
	}
	if r.Tone != ToneUplift && r.Tone != ToneSomber {
		return ErrInvalidTone
	}
	return nil
}

type Service interface {
	Rewrite(ctx context.Context, req Request) (string, error)
}

type ErrorKind int

const (
	KindNetwork ErrorKind = iota + 1
	KindTimeout
	KindService
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindService:
		return "service"
	default:
		return "unknown"
	}
}

// Error is a failed call to the rewrite backend.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("rewrite %s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func timeoutOr(kind ErrorKind, err error) *Error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: kind, Err: err}
}
