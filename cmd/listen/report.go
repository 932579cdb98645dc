package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/metalblueberry/tuner/pkg/tuning"
)

/*
 * Prints a line each time the tuning state or the matched string changes.
 */
type reporter struct {
	out      io.Writer
	previous string

	inTune *color.Color
	off    *color.Color
	silent *color.Color
}

func newReporter(out io.Writer) *reporter {
	return &reporter{
		out:    out,
		inTune: color.New(color.FgGreen, color.Bold),
		off:    color.New(color.FgRed),
		silent: color.New(color.FgHiBlack),
	}
}

func key(st tuning.State) string {
	name := "-"

	if st.Matched != nil {
		name = st.Matched.Name
	}

	return fmt.Sprintf("%s/%s/%.2f", st.Status, name, st.TargetHz)
}

func (r *reporter) Report(sample tuning.Sample, st tuning.State) bool {
	k := key(st)

	if k == r.previous {
		return false
	}

	r.previous = k

	switch st.Status {
	case tuning.StatusSilent:
		r.silent.Fprintln(r.out, "...")
	case tuning.StatusInTune:
		r.inTune.Fprintf(r.out, "%s in tune %.2f Hz\n", label(st), sample.FrequencyHz)
	default:
		r.off.Fprintf(r.out, "%s %s %+.2f Hz (%.2f Hz, target %.2f Hz)\n", label(st), st.Status, st.OffsetHz, sample.FrequencyHz, st.TargetHz)
	}

	return true
}

func label(st tuning.State) string {

	if st.Matched == nil {
		return "custom"
	}

	return st.Matched.Name
}
