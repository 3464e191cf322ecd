// Package main dry-runs a reminder table: every entry is parsed and
// registered, then fired at the given instant with a dispatcher that prints
// the prompt instead of calling the model.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/shaonote/starbot/internal/chat"
	"github.com/shaonote/starbot/internal/scheduler"
	"github.com/shaonote/starbot/internal/service"
)

const timeLayout = "2006-01-02 15:04"

// printer is a scheduler.Dispatcher that writes what would be sent.
type printer struct {
	out io.Writer
}

func (p printer) Dispatch(_ context.Context, prompt string, target chat.Target) service.DispatchResult {
	fmt.Fprintf(p.out, "    -> %s\n       %s\n", target, prompt)
	return service.DispatchResult{OK: true}
}

func main() {
	file := flag.String("file", "configs/schedules.yaml", "reminder table")
	tz := flag.String("tz", "Asia/Taipei", "scheduler time zone")
	at := flag.String("at", "", `instant to fire at, "`+timeLayout+`" (default now)`)
	flag.Parse()

	if err := run(os.Stdout, *file, *tz, *at); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(out io.Writer, file, tz, at string) error {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("time zone: %w", err)
	}
	when := time.Now().In(loc)
	if at != "" {
		if when, err = time.ParseInLocation(timeLayout, at, loc); err != nil {
			return fmt.Errorf("parse -at: %w", err)
		}
	}

	s := scheduler.New(loc, printer{out: out}, zap.NewNop())
	n, err := s.LoadFile(file)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%d jobs registered, firing at %s\n", n, when.Format(timeLayout+" MST"))

	for _, j := range s.Jobs() {
		fmt.Fprintf(out, "[%s] %s\n", j.Schedule, j.Description)
		outcome := s.Fire(context.Background(), j, when)
		fmt.Fprintf(out, "    %s\n", outcome)
	}
	return nil
}
