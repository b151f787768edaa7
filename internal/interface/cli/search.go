package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/retsubhtym/agent-sessions-sub002/internal/core/cache"
	"github.com/retsubhtym/agent-sessions-sub002/internal/core/filter"
	"github.com/retsubhtym/agent-sessions-sub002/internal/core/registry"
	"github.com/retsubhtym/agent-sessions-sub002/internal/core/search"
	"github.com/retsubhtym/agent-sessions-sub002/pkg/transcript"
)

var (
	searchLimit   int
	searchSources []string
	searchModel   string
	searchSince   string
	searchUntil   string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search across all indexed sessions",
	Long: `Search every known transcript for the given text.

The query may embed repo: and path: tokens to narrow by repository
name or file path. Date flags accept natural language ("yesterday",
"last monday") as well as 2006-01-02 dates. Small transcripts are
scanned first so early results arrive quickly.

Examples:
  agentsearch search "connection refused"
  agentsearch search "repo:billing timeout"
  agentsearch search "migration" --since "last week" --source claude`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVar(&searchLimit, "limit", 50, "Maximum number of sessions to show")
	searchCmd.Flags().StringSliceVar(&searchSources, "source", nil, "Limit to sources (claude, codex, gemini)")
	searchCmd.Flags().StringVar(&searchModel, "model", "", "Exact model name")
	searchCmd.Flags().StringVar(&searchSince, "since", "", "Only sessions at or after this date")
	searchCmd.Flags().StringVar(&searchUntil, "until", "", "Only sessions at or before this date")
}

func runSearch(cmd *cobra.Command, args []string) error {
	q := filter.ParseQuery(strings.Join(args, " "))
	q.Model = searchModel
	for _, s := range searchSources {
		src := transcript.Source(s)
		if !validSource(src) {
			return fmt.Errorf("unknown source %q", s)
		}
		q.Sources = append(q.Sources, src)
	}

	var err error
	if q.Since, err = parseDateFlag(searchSince); err != nil {
		return err
	}
	if q.Until, err = parseDateFlag(searchUntil); err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	reg := registry.New()
	for _, sess := range newScanner().All() {
		reg.Put(&sess)
	}
	if reg.Len() == 0 {
		fmt.Println("No sessions found. Are the session directories configured?")
		return nil
	}

	eng := filter.NewEngine(cache.New(256))
	coord := search.NewCoordinator(store, reg, eng, search.Options{
		LargeFileThreshold: cfg.LargeFileThreshold,
		BatchSize:          cfg.SearchBatchSize,
	})

	done := coord.Start(cmd.Context(), q)
	<-done

	results := coord.Results()
	if len(results) == 0 {
		fmt.Println("No matches.")
		return nil
	}
	shown := len(results)
	if searchLimit > 0 && shown > searchLimit {
		shown = searchLimit
	}
	for _, sess := range results[:shown] {
		printSessionLine(sess)
	}
	if shown < len(results) {
		fmt.Printf("... and %d more (raise --limit to see them)\n", len(results)-shown)
	}
	return nil
}

func printSessionLine(sess *transcript.Session) {
	started := ""
	if !sess.StartTime.IsZero() {
		started = sess.StartTime.Local().Format("2006-01-02 15:04")
	}
	title := sess.Title
	if title == "" {
		title = "(untitled)"
	}
	repo := sess.RepoName
	if repo == "" {
		repo = "-"
	}
	fmt.Printf("%-8s %-16s %-20s %s\n", sess.Source, started, repo, title)
}

// parseDateFlag accepts natural language first, then a handful of
// fixed layouts.
func parseDateFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	if result, err := w.Parse(s, time.Now()); err == nil && result != nil {
		return result.Time, nil
	}
	for _, layout := range []string{"2006-01-02", "2006-01-02T15:04:05", time.RFC3339, "2006/01/02"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("could not parse date %q", s)
}
