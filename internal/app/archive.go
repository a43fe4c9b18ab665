package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rbright/lectern/internal/config"
	"github.com/rbright/lectern/internal/output"
	"github.com/rbright/lectern/internal/rag"
)

func (r Runner) commandAsk(ctx context.Context, cfg config.Config, question string, logger *slog.Logger) int {
	lib, err := rag.Load(cfg.Session.Dir)
	if err != nil {
		return r.fail(err)
	}
	fmt.Fprintf(r.Stderr, "asking about %d sessions (%d chars)...\n", len(lib.Transcripts), lib.TotalLength())

	answer, err := rag.NewAsker(lib, cfg.Ask, logger).Ask(ctx, question)
	if err != nil {
		return r.fail(err)
	}
	fmt.Fprintln(r.Stdout, answer)

	if cfg.Ask.CopyAnswer {
		if err := output.NewClipboard(cfg.Clipboard.Argv, logger).Copy(ctx, answer); err != nil {
			fmt.Fprintf(r.Stderr, "warning: %v\n", err)
			logger.Warn("copy answer failed", "error", err.Error())
		}
	}
	return 0
}

func (r Runner) commandSessions(cfg config.Config) int {
	lib, err := rag.Load(cfg.Session.Dir)
	if err != nil {
		if errors.Is(err, rag.ErrNoTranscripts) {
			fmt.Fprintln(r.Stdout, "no saved sessions")
			return 0
		}
		return r.fail(err)
	}
	for i, t := range lib.Transcripts {
		fmt.Fprintf(r.Stdout, "%3d. %s  %8d chars  %s\n", i+1, t.Date, t.Length(), t.Path)
	}
	return 0
}

func (r Runner) commandSummary(ctx context.Context, cfg config.Config, index int, logger *slog.Logger) int {
	lib, err := rag.Load(cfg.Session.Dir)
	if err != nil {
		return r.fail(err)
	}
	summary, err := rag.NewAsker(lib, cfg.Ask, logger).Summary(ctx, index)
	if err != nil {
		return r.fail(err)
	}
	fmt.Fprintln(r.Stdout, summary)
	return 0
}

func (r Runner) commandSearch(ctx context.Context, cfg config.Config, term string, limit int, logger *slog.Logger) int {
	if !cfg.Store.Enable {
		return r.fail(errors.New("search needs the session archive (store.enable)"))
	}
	path, err := cfg.StorePath()
	if err != nil {
		return r.fail(err)
	}
	archive := openArchive(ctx, cfg, logger)
	if archive == nil {
		return r.fail(fmt.Errorf("session archive unavailable at %s", path))
	}
	defer archive.Close()

	hits, err := archive.Search(ctx, term, limit)
	if err != nil {
		return r.fail(err)
	}
	if len(hits) == 0 {
		fmt.Fprintf(r.Stdout, "no matches for %q\n", term)
		return 0
	}
	for _, hit := range hits {
		fmt.Fprintf(r.Stdout, "%s #%d [%s] %s\n",
			hit.Session, hit.EntryID, hit.Status, strings.TrimSpace(hit.Text))
	}
	return 0
}
