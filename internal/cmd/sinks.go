package cmd

import (
	"context"
	"errors"

	"github.com/phonelens/phonelens/internal/core"
	"github.com/phonelens/phonelens/internal/core/engine"
	"github.com/phonelens/phonelens/internal/core/store"
	"github.com/phonelens/phonelens/internal/output"
)

// resultSinks fans results out to every configured destination.
type resultSinks []engine.ResultSink

func (s resultSinks) Record(ctx context.Context, result *core.CheckResult) error {
	var errs []error
	for _, sink := range s {
		errs = append(errs, sink.Record(ctx, result))
	}
	return errors.Join(errs...)
}

func (s resultSinks) Flush(ctx context.Context, batch int, results []*core.CheckResult) error {
	var errs []error
	for _, sink := range s {
		errs = append(errs, sink.Flush(ctx, batch, results))
	}
	return errors.Join(errs...)
}

// storeSink saves each result as it arrives.
type storeSink struct {
	store *store.Store
}

func (s storeSink) Record(ctx context.Context, result *core.CheckResult) error {
	return s.store.SaveResult(ctx, result)
}

func (storeSink) Flush(context.Context, int, []*core.CheckResult) error { return nil }

// fileSink rewrites the CSV and JSON files at every flush.
type fileSink struct {
	writer *output.FileWriter
}

func (fileSink) Record(context.Context, *core.CheckResult) error { return nil }

func (s fileSink) Flush(_ context.Context, _ int, results []*core.CheckResult) error {
	return s.writer.Write(results)
}
