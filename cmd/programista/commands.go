package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/programista/programista/internal/api"
	"github.com/programista/programista/internal/domain"
	"github.com/programista/programista/internal/feedback"
	"github.com/programista/programista/internal/schedule"
	"github.com/programista/programista/internal/tui"
	"github.com/programista/programista/internal/tui/styles"
	"golang.org/x/sync/errgroup"
)

// signalContext is cancelled on interrupt or terminate.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runSchedule(a *app, args []string) error {
	fs := flag.NewFlagSet("schedule", flag.ContinueOnError)
	force := fs.Bool("force", false, "refresh even when the cached schedule is fresh")
	days := fs.Int("days", 1, "number of days to show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return fmt.Errorf("usage: schedule [-force] [-days N] <provider> <source> [day]")
	}

	from, err := a.parseDay(fs.Arg(2))
	if err != nil {
		return err
	}
	r := domain.DateRange{From: from, To: from.AddDays(max(*days, 1) - 1)}

	ctx, cancel := signalContext()
	defer cancel()

	entries, err := a.coord.ResolveRange(ctx, domain.ProviderID(fs.Arg(0)), domain.SourceID(fs.Arg(1)), r, *force, a.cfg.Prefetch.Concurrency)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, e := range entries {
		fmt.Println(tui.RenderSchedule(e, a.loc, now, termWidth()))
	}
	return nil
}

func runSearch(a *app, args []string) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	var kinds, providers, sources listFlag
	fs.Var(&kinds, "kind", "restrict to kinds: tv, tv_accessibility, radio, archive (repeatable)")
	fs.Var(&providers, "provider", "restrict to providers (repeatable)")
	fs.Var(&sources, "source", "restrict to sources (repeatable)")
	from := fs.String("from", "", "first day to include")
	to := fs.String("to", "", "last day to include")
	if err := fs.Parse(args); err != nil {
		return err
	}

	scope := domain.ScopeFilter{}
	for _, k := range kinds {
		scope.Kinds = append(scope.Kinds, domain.Kind(k))
	}
	for _, p := range providers {
		scope.Providers = append(scope.Providers, domain.ProviderID(p))
	}
	for _, s := range sources {
		scope.Sources = append(scope.Sources, domain.SourceID(s))
	}

	var dates domain.DateFilter
	if *from != "" {
		d, err := a.parseDay(*from)
		if err != nil {
			return err
		}
		dates.From = d
	}
	if *to != "" {
		d, err := a.parseDay(*to)
		if err != nil {
			return err
		}
		dates.To = d
	}

	if err := a.indexer.RebuildNow(); err != nil {
		return fmt.Errorf("failed to load search index: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()
	res := a.search.Search(ctx, strings.Join(fs.Args(), " "), scope, dates)
	fmt.Print(tui.RenderSearch(res, a.loc, termWidth()))
	return nil
}

func runSources(a *app, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: sources <provider> [day]")
	}
	var day domain.Date
	if len(args) > 1 {
		d, err := a.parseDay(args[1])
		if err != nil {
			return err
		}
		day = d
	}

	ctx, cancel := signalContext()
	defer cancel()
	sources, err := a.coord.Sources(ctx, domain.ProviderID(args[0]), day)
	if err != nil {
		return err
	}
	fmt.Print(tui.RenderSources(sources))
	return nil
}

func runFavorites(a *app, args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}

	ref := func() (domain.FavoriteRef, error) {
		if len(args) < 2 {
			return domain.FavoriteRef{}, fmt.Errorf("usage: favorites %s <provider> <source> [name]", sub)
		}
		p := domain.ProviderID(args[0])
		r := domain.FavoriteRef{Kind: p.Kind(), ProviderID: p, SourceID: domain.SourceID(args[1])}
		if len(args) > 2 {
			r.Name = strings.Join(args[2:], " ")
		}
		return r, nil
	}

	ctx, cancel := signalContext()
	defer cancel()

	switch sub {
	case "list":
		favs, err := a.favorites.List()
		if err != nil {
			return err
		}
		fmt.Print(tui.RenderFavorites(favs))
	case "add":
		r, err := ref()
		if err != nil {
			return err
		}
		added, err := a.favorites.Add(ctx, r)
		if err != nil {
			return err
		}
		if !added {
			fmt.Println(styles.DimStyle.Render("already a favorite"))
			return nil
		}
		fmt.Println(styles.SuccessStyle.Render("added"))
	case "remove":
		r, err := ref()
		if err != nil {
			return err
		}
		if err := a.favorites.Remove(r); err != nil {
			return err
		}
		fmt.Println(styles.SuccessStyle.Render("removed"))
	case "show":
		var raw string
		if len(args) > 0 {
			raw = args[0]
		}
		day, err := a.parseDay(raw)
		if err != nil {
			return err
		}
		entries, err := a.favorites.Schedules(ctx, day, false, a.cfg.Prefetch.Concurrency)
		if err != nil {
			return err
		}
		now := time.Now()
		for _, e := range entries {
			fmt.Println(tui.RenderSchedule(e, a.loc, now, termWidth()))
		}
	default:
		return fmt.Errorf("unknown favorites command %q", sub)
	}
	return nil
}

func runSync(a *app, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	var providers, archiveDays listFlag
	fs.Var(&providers, "providers", "providers to sync, comma separated (default all)")
	fs.Var(&archiveDays, "archive-days", "archive days to sync, comma separated")
	days := fs.Int("days", a.cfg.Prefetch.DaysAhead, "days after today to sync")
	force := fs.Bool("force", false, "refresh fresh schedules too")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opts := schedule.SyncOptions{
		DaysAhead:    *days,
		ForceRefresh: *force,
		Concurrency:  a.cfg.Prefetch.Concurrency,
		Location:     a.loc,
	}
	for _, p := range providers {
		opts.Providers = append(opts.Providers, domain.ProviderID(p))
	}
	for _, raw := range archiveDays {
		d, err := a.parseDay(raw)
		if err != nil {
			return err
		}
		opts.ArchiveDays = append(opts.ArchiveDays, d)
	}

	ctx, cancel := signalContext()
	defer cancel()
	syncer := schedule.NewSyncer(a.coord, a.logger)

	if !interactive() {
		return syncer.Run(ctx, opts, domain.ObserverFunc(func(p domain.SyncProgress) {
			switch {
			case p.Finished || p.Cancelled:
				fmt.Printf("%s (%d errors)\n", p.Message, p.Errors)
			case p.Total > 0 && p.Done == p.Total:
				fmt.Printf("%-14s %3.0f%% %d/%d\n", p.Stage, p.Fraction()*100, p.Done, p.Total)
			}
		}))
	}

	observer, updates := tui.Observe(64)
	result := make(chan error, 1)
	go func() {
		result <- syncer.Run(ctx, opts, observer)
	}()

	final, err := tea.NewProgram(tui.NewSyncModel(updates, result, cancel)).Run()
	if err != nil {
		cancel()
		return fmt.Errorf("progress view failed: %w", err)
	}
	if m, ok := final.(tui.SyncModel); ok {
		return m.Err()
	}
	return nil
}

func runPrune(a *app, args []string) error {
	fs := flag.NewFlagSet("prune", flag.ContinueOnError)
	keep := fs.Int("days", 7, "keep this many past days")
	if err := fs.Parse(args); err != nil {
		return err
	}
	n, err := a.store.PruneBefore(a.today().AddDays(-*keep))
	if err != nil {
		return err
	}
	fmt.Printf("removed %d cached schedules\n", n)
	return nil
}

func runServe(a *app, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	listen := fs.String("listen", a.cfg.API.Listen, "address to listen on")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	stopWatch := a.indexer.Watch(a.coord)
	defer stopWatch()

	server := api.NewServer(a.apiDeps(), a.logger)
	defer server.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.indexer.Run(gctx)
		return nil
	})
	if a.cfg.Prefetch.Enabled {
		refresher := schedule.NewRefresher(a.coord, a.store, schedule.RefresherOptions{
			Interval:     a.cfg.Prefetch.Interval,
			DaysAhead:    a.cfg.Prefetch.DaysAhead,
			RefreshAhead: a.cfg.Prefetch.RefreshAhead,
			Concurrency:  a.cfg.Prefetch.Concurrency,
			Location:     a.loc,
		}, a.logger)
		g.Go(func() error {
			refresher.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		return server.ListenAndServe(gctx, *listen)
	})

	fmt.Printf("listening on http://%s\n", *listen)
	return g.Wait()
}

func runFeedback(a *app, args []string) error {
	fs := flag.NewFlagSet("feedback", flag.ContinueOnError)
	title := fs.String("title", "", "short summary")
	description := fs.String("description", "", "what happened")
	email := fs.String("email", "", "reply address (optional)")
	suggestion := fs.Bool("suggestion", false, "send as a suggestion instead of a bug")
	attachLog := fs.Bool("attach-log", false, "attach the tail of the log file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	report := feedback.Report{
		Kind:        feedback.KindBug,
		Title:       *title,
		Description: *description,
		Email:       *email,
	}
	if *suggestion {
		report.Kind = feedback.KindSuggestion
	}
	if *attachLog {
		report.LogPath = a.cfg.Logging.File
	}

	ctx, cancel := signalContext()
	defer cancel()
	res, err := a.feedback.Submit(ctx, report)
	if err != nil {
		return err
	}
	if res.IssueURL != "" {
		fmt.Printf("report filed: %s\n", res.IssueURL)
		return nil
	}
	fmt.Println("report sent")
	return nil
}

// listFlag collects repeated or comma separated values.
type listFlag []string

func (l *listFlag) String() string {
	return strings.Join(*l, ",")
}

func (l *listFlag) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}
