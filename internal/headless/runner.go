package headless

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jeanpaul/jarbas/internal/brain"
)

// ErrExchangeFailed is returned when the router answers with a system notice
// instead of a reply.
var ErrExchangeFailed = errors.New("exchange failed")

// Responder answers one message.
type Responder interface {
	Respond(ctx context.Context, message string) (brain.Reply, error)
}

// SpeakFunc speaks a reply and blocks until playback ends.
type SpeakFunc func(ctx context.Context, text string) error

type Options struct {
	Out     io.Writer
	Err     io.Writer
	Speak   SpeakFunc
	Verbose bool
}

// Run answers a single prompt. The reply goes to Out; metadata and
// failures go to Err.
func Run(ctx context.Context, r Responder, prompt string, opts Options) error {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}

	reply, err := r.Respond(ctx, prompt)
	if reply.Kind == brain.KindSystem {
		fmt.Fprintln(opts.Err, reply.Text)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrExchangeFailed, err)
		}
		return ErrExchangeFailed
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(opts.Out, strings.TrimRight(reply.Text, "\n"))
	if opts.Verbose {
		fmt.Fprintf(opts.Err, "[%s]\n", describe(reply))
	}

	if opts.Speak != nil {
		if err := opts.Speak(ctx, reply.Text); err != nil {
			fmt.Fprintf(opts.Err, "[Voice Error: %s]\n", err)
		}
	}
	return nil
}

func describe(r brain.Reply) string {
	if r.Mode == brain.ModeLocal {
		return fmt.Sprintf("mode=%s stage=%s", r.Mode, r.Stage)
	}
	return fmt.Sprintf("mode=%s model=%s", r.Mode, r.Model)
}
