package deploy

import (
	"io"

	"github.com/fatih/color"
)

// Reporter prints human-facing progress lines, separate from the log stream.
type Reporter struct {
	out     io.Writer
	stage   *color.Color
	success *color.Color
	warn    *color.Color
	fail    *color.Color
}

// NewReporter creates a reporter writing to out.
func NewReporter(out io.Writer) *Reporter {
	return &Reporter{
		out:     out,
		stage:   color.New(color.FgCyan, color.Bold),
		success: color.New(color.FgGreen, color.Bold),
		warn:    color.New(color.FgYellow),
		fail:    color.New(color.FgRed, color.Bold),
	}
}

func (r *Reporter) Stage(msg string) {
	r.stage.Fprintf(r.out, "==> %s\n", msg)
}

func (r *Reporter) Success(msg string) {
	r.success.Fprintf(r.out, "OK  %s\n", msg)
}

func (r *Reporter) Warn(msg string) {
	r.warn.Fprintf(r.out, "!!  %s\n", msg)
}

func (r *Reporter) Fail(msg string) {
	r.fail.Fprintf(r.out, "ERR %s\n", msg)
}
