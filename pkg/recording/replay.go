package recording

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/teslashibe/go-linkcup/pkg/clock"
	"github.com/teslashibe/go-linkcup/pkg/session"
)

// ReplayResult summarizes a replay.
type ReplayResult struct {
	Entries int
	Final   session.Snapshot
}

// Replay feeds the recording at path through a fresh engine driven by a fake
// clock, so timer-based behavior (pauses, frequency and excitement ticks)
// fires at the recorded offsets. Events go to sink.
func Replay(ctx context.Context, path string, cfg session.Config, sink session.Sink, logger *slog.Logger) (ReplayResult, error) {
	r, err := Open(path)
	if err != nil {
		return ReplayResult{}, err
	}
	defer r.Close()

	start := time.Unix(0, 0).UTC()
	clk := clock.NewFake(start)
	eng := session.New(cfg, clk, sink, logger)
	defer eng.Dispose()

	var res ReplayResult
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, err
		}

		clk.Set(start.Add(time.Duration(e.TMs) * time.Millisecond))
		switch e.Kind {
		case KindSample:
			if e.Sample != nil {
				eng.Update(e.Sample.Sample())
			}
		case KindKey:
			eng.SignalTerminalEvent()
		default:
			if logger != nil {
				logger.Warn("skipping unknown entry", "kind", e.Kind, "t_ms", e.TMs)
			}
			continue
		}
		res.Entries++
	}

	res.Final = eng.Snapshot()
	return res, nil
}
