package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-notehub/listview"
	"github.com/goliatone/go-notehub/note"
	"github.com/goliatone/go-notehub/noteform"
	"github.com/goliatone/go-notehub/pkg/di"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "Work with notes on a running server",
}

var (
	listTag     string
	listQuery   string
	listPage    int
	listTimeout time.Duration
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show one page of notes",
	Long: `List loads the filter page for --tag from the server, hydrates from its
snapshot and renders the requested page. Search and paging beyond the
prefetched first page are fetched through the API.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), listTimeout)
		defer cancel()

		gw, err := di.NewGateway(cfg, logger)
		if err != nil {
			return err
		}
		sess := di.NewSession(cfg, gw, logger)

		fp, err := sess.LoadPage(ctx, gw, filterPageURL(cfg.Server.PublicURL, listTag))
		if err != nil {
			return fmt.Errorf("load page: %w", err)
		}

		view := listview.New(sess.Client(), listview.WithLogger(logger.Named("listview")))
		defer view.Close()
		view.Start(ctx, fp)
		if listQuery != "" {
			view.SetQuery(listQuery)
		}
		if listPage > 1 {
			view.SetPage(listPage)
		}

		if _, err := view.Wait(ctx); err != nil {
			return err
		}
		return view.Render(cmd.OutOrStdout())
	},
}

var (
	createTitle   string
	createContent string
	createTag     string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a note",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		gw, err := di.NewGateway(cfg, logger)
		if err != nil {
			return err
		}
		sess := di.NewSession(cfg, gw, logger)

		form := noteform.New(gw, sess.Client(),
			noteform.WithLogger(logger.Named("noteform")),
			noteform.OnCreated(func(n note.Note) {
				fmt.Fprintf(cmd.OutOrStdout(), "Created %q [%s] %s\n", n.Title, n.Tag, n.ID)
			}),
		)
		form.Set(noteform.FieldTitle, createTitle)
		form.Set(noteform.FieldContent, createContent)
		form.Set(noteform.FieldTag, createTag)

		if !form.CanSubmit() {
			printFieldErrors(form.Errors())
			return fmt.Errorf("note not created")
		}

		if _, err := form.Submit(cmd.Context()); err != nil {
			if fields := form.Errors(); len(fields) > 0 {
				printFieldErrors(fields)
			}
			logger.Debug("create failed", zap.Error(err))
			return fmt.Errorf("note not created: %w", err)
		}
		return nil
	},
}

func printFieldErrors(fields []noteform.FieldError) {
	for _, f := range fields {
		fmt.Fprintf(os.Stderr, "%s: %s\n", f.Field, f.Message)
	}
}

func filterPageURL(publicURL, tag string) string {
	if tag == "" {
		tag = note.AllTags
	}
	return strings.TrimRight(publicURL, "/") + "/notes/filter/" + url.PathEscape(tag)
}

func init() {
	listCmd.Flags().StringVarP(&listTag, "tag", "t", note.AllTags, "tag to filter by")
	listCmd.Flags().StringVarP(&listQuery, "query", "q", "", "search title and content")
	listCmd.Flags().IntVarP(&listPage, "page", "p", 1, "page number")
	listCmd.Flags().DurationVar(&listTimeout, "timeout", 10*time.Second, "overall time limit")

	createCmd.Flags().StringVar(&createTitle, "title", "", "note title (3 to 50 characters)")
	createCmd.Flags().StringVar(&createContent, "content", "", "note content (up to 500 characters)")
	createCmd.Flags().StringVar(&createTag, "tag", string(note.TagTodo), "one of Todo, Work, Personal, Meeting, Shopping")

	notesCmd.AddCommand(listCmd, createCmd)
	rootCmd.AddCommand(notesCmd)
}
