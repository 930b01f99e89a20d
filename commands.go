package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/beaubromley/vimeo-sermon-search/catalog"
	"github.com/beaubromley/vimeo-sermon-search/ingest"
	"github.com/beaubromley/vimeo-sermon-search/metrics"
	"github.com/beaubromley/vimeo-sermon-search/model"
	"github.com/beaubromley/vimeo-sermon-search/search"
	"github.com/beaubromley/vimeo-sermon-search/storage"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"
)

func newIngestCommand(a *app) *cobra.Command {
	var (
		catalogPath string
		captionsDir string
		language    string
		force       bool
		workers     int
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest caption files for the videos in the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("catalog") {
				a.cfg.Ingest.Catalog = catalogPath
			}
			if flags.Changed("captions") {
				a.cfg.Ingest.CaptionsDir = captionsDir
			}
			if flags.Changed("language") {
				a.cfg.Ingest.Language = language
			}
			if flags.Changed("force") {
				a.cfg.Ingest.Force = force
			}
			if flags.Changed("workers") {
				a.cfg.Ingest.Workers = workers
			}
			if err := a.cfg.Ingest.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			summary, err := a.runIngest(ctx, store, nil)
			if err != nil {
				return err
			}
			renderSummary(cmd.OutOrStdout(), summary)
			if summary.Failed > 0 {
				return fmt.Errorf("%d of %d videos failed", summary.Failed, len(summary.Results))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "Catalog JSON file (default from config)")
	cmd.Flags().StringVar(&captionsDir, "captions", "", "Directory with caption files (default from config)")
	cmd.Flags().StringVar(&language, "language", "", "Caption language tag (default from config)")
	cmd.Flags().BoolVar(&force, "force", false, "Re-ingest videos that are already stored")
	cmd.Flags().IntVar(&workers, "workers", 0, "Videos to ingest in parallel (default from config)")

	return cmd
}

func (a *app) runIngest(ctx context.Context, store storage.Store, m *metrics.Metrics) (ingest.Summary, error) {
	ic := a.cfg.Ingest
	entries, err := catalog.NewFileSource(ic.Catalog).Entries(ctx)
	if err != nil {
		return ingest.Summary{}, err
	}
	videos := catalog.Videos(entries, a.logger)

	o := ingest.New(store, ingest.NewDirLocator(ic.CaptionsDir, ic.Language), a.logger,
		ingest.WithForce(ic.Force),
		ingest.WithWorkers(ic.Workers),
		ingest.WithReadTimeout(ic.ReadTimeout),
		ingest.WithMetrics(m),
	)
	return o.Run(ctx, videos)
}

func renderSummary(w io.Writer, s ingest.Summary) {
	fmt.Fprintf(w, "run %s: %d indexed, %d unchanged, %d skipped, %d failed\n", s.RunID, s.Succeeded, s.Unchanged, s.Skipped, s.Failed)
	failures := s.Failures()
	if len(failures) == 0 {
		return
	}
	rows := make([][]string, 0, len(failures))
	for _, r := range failures {
		rows = append(rows, []string{string(r.VideoID), r.Err.Error()})
	}
	fmt.Fprintln(w, renderTable([]string{"Video", "Error"}, rows, nil))
}

func newSearchCommand(a *app) *cobra.Command {
	var (
		titlesOnly      bool
		transcriptsOnly bool
		asJSON          bool
		limit           int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search transcripts and titles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if titlesOnly && transcriptsOnly {
				return errors.New("--titles-only and --transcripts-only exclude each other")
			}
			query, err := search.ValidateQuery(args[0])
			if err != nil {
				return err
			}
			groups := search.GroupAll
			switch {
			case titlesOnly:
				groups = search.GroupTitles
			case transcriptsOnly:
				groups = search.GroupTranscripts
			case !a.cfg.Search.IncludeTitles:
				groups = search.GroupTranscripts
			}

			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			start := time.Now()
			res, err := search.New(store).SearchGroups(ctx, query, groups)
			if err != nil {
				return err
			}
			a.logger.Debug("search done", slog.String("query", query), slog.Int("results", res.Len()), slog.Duration("took", time.Since(start)))

			if limit > 0 {
				res.Titles = search.Page(res.Titles, 0, limit)
				res.Transcripts = search.Page(res.Transcripts, 0, limit)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			renderResults(cmd.OutOrStdout(), query, res, groups)
			return nil
		},
	}
	cmd.Flags().BoolVar(&titlesOnly, "titles-only", false, "Only match video titles")
	cmd.Flags().BoolVar(&transcriptsOnly, "transcripts-only", false, "Only match transcript text")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Write results as JSON")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum results per group, 0 for all")

	return cmd
}

func renderResults(w io.Writer, query string, res search.Results, groups search.Groups) {
	if res.Len() == 0 {
		fmt.Fprintf(w, "No results for %q\n", query)
		return
	}
	if groups&search.GroupTitles != 0 {
		fmt.Fprintf(w, "Title matches (%d)\n", len(res.Titles))
		if len(res.Titles) > 0 {
			fmt.Fprintln(w, renderTable([]string{"Title", "Link"}, resultRows(res.Titles, false), nil))
		}
	}
	if groups&search.GroupTranscripts != 0 {
		fmt.Fprintf(w, "Transcript matches (%d)\n", len(res.Transcripts))
		if len(res.Transcripts) > 0 {
			fmt.Fprintln(w, renderTable([]string{"Title", "Time", "Text", "Link"}, resultRows(res.Transcripts, true), []columnAlignment{alignLeft, alignRight}))
		}
	}
}

func resultRows(results []model.Result, withText bool) [][]string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		if withText {
			rows = append(rows, []string{r.Title, r.Timestamp, r.MatchText, r.URL})
			continue
		}
		rows = append(rows, []string{r.Title, r.URL})
	}
	return rows
}

func newStatusCommand(a *app) *cobra.Command {
	var videos bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show what the store holds",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			st, err := store.Stats(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Storage", "Videos", "Segments", "Index entries"}, [][]string{{
				a.cfg.Storage.Driver,
				strconv.Itoa(st.Videos),
				strconv.Itoa(st.Segments),
				strconv.Itoa(st.IndexEntries),
			}}, []columnAlignment{alignLeft, alignRight, alignRight, alignRight}))
			if st.Segments != st.IndexEntries {
				fmt.Fprintln(out, "index is out of sync with the stored segments, run reindex")
			}
			if !videos {
				return nil
			}

			list, err := store.Videos(ctx)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(list))
			for _, v := range list {
				segments, err := store.Segments(ctx, v.ID)
				if err != nil {
					return err
				}
				published := ""
				if !v.PublishedAt.IsZero() {
					published = v.PublishedAt.Format("2006-01-02")
				}
				rows = append(rows, []string{string(v.ID), v.Title, published, model.FormatTimestamp(float64(v.Duration)), strconv.Itoa(len(segments))})
			}
			fmt.Fprintln(out, renderTable([]string{"ID", "Title", "Published", "Duration", "Segments"}, rows, []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight}))
			return nil
		},
	}
	cmd.Flags().BoolVar(&videos, "videos", false, "List every stored video")

	return cmd
}

func newReindexCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search index from the stored segments",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.RebuildIndex(ctx); err != nil {
				return err
			}
			st, err := store.Stats(ctx)
			if err != nil {
				return err
			}
			a.logger.Info("index rebuilt", slog.Int("segments", st.Segments), slog.Int("entries", st.IndexEntries))
			return nil
		},
	}
}
