package script

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/alecthomas/participle/v2/lexer"

	"github.com/ardnew/softtmc/pkg"
)

// Target is an instrument connection. *usbtmc.Client implements Target.
type Target interface {
	Write(ctx context.Context, data []byte) error
	Read(ctx context.Context, maxLen int) ([]byte, error)
}

// ExpectError reports a failed expect statement.
type ExpectError struct {
	Pos  lexer.Position
	Want string
	Got  []byte
}

func (e *ExpectError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %q", e.Pos, e.Want, e.Got)
}

// Runner executes scripts against a target.
type Runner struct {
	target Target
	out    io.Writer
	maxLen int
	last   []byte
}

// NewRunner creates a runner. Replies are printed to out when it is not nil.
func NewRunner(t Target, out io.Writer) *Runner {
	return &Runner{target: t, out: out}
}

// SetMaxLen sets the reply size requested when a statement gives none.
// Zero requests the target's full capacity.
func (r *Runner) SetMaxLen(n int) {
	r.maxLen = n
}

// Last returns the most recent reply.
func (r *Runner) Last() []byte {
	return r.last
}

// Run executes every statement in order, stopping at the first error.
func (r *Runner) Run(ctx context.Context, s *Script) error {
	for _, st := range s.Stmts {
		if err := r.exec(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) exec(ctx context.Context, st *Stmt) error {
	switch {
	case st.Send != nil:
		return r.send(ctx, st.Pos, st.Send.Data)

	case st.Query != nil:
		if err := r.send(ctx, st.Pos, st.Query.Data); err != nil {
			return err
		}
		return r.read(ctx, st.Pos, st.Query.Max)

	case st.Read != nil:
		return r.read(ctx, st.Pos, st.Read.Max)

	case st.Expect != nil:
		return r.expect(st.Pos, st.Expect)

	case st.Sleep != nil:
		t := time.NewTimer(time.Duration(st.Sleep.MS) * time.Millisecond)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

func (r *Runner) send(ctx context.Context, pos lexer.Position, data string) error {
	pkg.LogDebug(pkg.ComponentScript, "send", "pos", pos.String(), "len", len(data))
	if err := r.target.Write(ctx, []byte(data)); err != nil {
		return fmt.Errorf("%s: %w", pos, err)
	}
	return nil
}

func (r *Runner) read(ctx context.Context, pos lexer.Position, max *int) error {
	n := r.maxLen
	if max != nil {
		n = *max
	}
	reply, err := r.target.Read(ctx, n)
	if err != nil {
		return fmt.Errorf("%s: %w", pos, err)
	}
	r.last = reply
	if r.out != nil {
		fmt.Fprintf(r.out, "%q\n", reply)
	}
	return nil
}

func (r *Runner) expect(pos lexer.Position, e *Expect) error {
	fail := func(want string) error {
		return &ExpectError{Pos: pos, Want: want, Got: r.last}
	}

	switch {
	case e.Text != nil:
		if !bytes.Equal(r.last, []byte(*e.Text)) {
			return fail(fmt.Sprintf("%q", *e.Text))
		}
	case e.Hex != nil:
		want, err := hex.DecodeString(strings.ReplaceAll(*e.Hex, " ", ""))
		if err != nil {
			return fmt.Errorf("%s: expect hex: %w", pos, err)
		}
		if !bytes.Equal(r.last, want) {
			return fail("hex " + hex.EncodeToString(want))
		}
	case e.Len != nil:
		if len(r.last) != *e.Len {
			return fail(fmt.Sprintf("%d bytes", *e.Len))
		}
	}
	return nil
}
