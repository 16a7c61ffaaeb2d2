package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/storylineapp/storyline-core/internal/domain"
	"github.com/storylineapp/storyline-core/internal/search"
)

var (
	booksJSON bool

	booksCmd = &cobra.Command{
		Use:   "books",
		Short: "List books in the library",
		Args:  cobra.NoArgs,
		RunE:  runBooks,
	}
)

var (
	searchNarrated bool
	searchStorage  string

	searchCmd = &cobra.Command{
		Use:   "search [query]",
		Short: "Search the library",
		Args:  cobra.ExactArgs(1),
		RunE:  runSearch,
	}
)

var rescanCmd = &cobra.Command{
	Use:   "rescan",
	Short: "Rescan the books directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		var summary struct {
			Created   int `json:"created"`
			Updated   int `json:"updated"`
			Removed   int `json:"removed"`
			Unchanged int `json:"unchanged"`
		}
		if err := c.post("/api/v1/library/rescan", nil, &summary); err != nil {
			return err
		}
		fmt.Printf("created %d, updated %d, removed %d, unchanged %d\n",
			summary.Created, summary.Updated, summary.Removed, summary.Unchanged)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import [path]",
	Short: "Import a book from a file or directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		var book domain.Book
		if err := c.post("/api/v1/library/import", map[string]any{"path": args[0]}, &book); err != nil {
			return err
		}
		fmt.Printf("imported %s (%s)\n", book.Title, book.ID)
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Show position sync status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		var status struct {
			Connection domain.ConnectionStatus `json:"connection"`
			Pending    int                     `json:"pending"`
			Offline    bool                    `json:"offline"`
		}
		if err := c.get("/api/v1/sync/status", &status); err != nil {
			return err
		}
		if status.Offline {
			fmt.Printf("offline, %d queued\n", status.Pending)
			return nil
		}
		fmt.Printf("%s, %d queued\n", status.Connection, status.Pending)
		return nil
	},
}

var syncFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Replay the pending sync queue now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		var result struct {
			Attempted int `json:"attempted"`
			Synced    int `json:"synced"`
			Failed    int `json:"failed"`
		}
		if err := c.post("/api/v1/sync/flush", nil, &result); err != nil {
			return err
		}
		fmt.Printf("attempted %d, synced %d, failed %d\n", result.Attempted, result.Synced, result.Failed)
		return nil
	},
}

var syncRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the catalog from the media server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.post("/api/v1/sync/refresh", nil, nil); err != nil {
			return err
		}
		fmt.Println("catalog refreshed")
		return nil
	},
}

func init() {
	booksCmd.Flags().BoolVar(&booksJSON, "json", false, "output as JSON")
	searchCmd.Flags().BoolVar(&searchNarrated, "narrated", false, "only books with narration timing")
	searchCmd.Flags().StringVar(&searchStorage, "storage", "", "restrict to local or remote books")

	syncCmd.AddCommand(syncFlushCmd, syncRefreshCmd)
	rootCmd.AddCommand(booksCmd, searchCmd, rescanCmd, importCmd, syncCmd)
}

func runBooks(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	var list struct {
		Books []*domain.Book `json:"books"`
	}
	if err := c.get("/api/v1/books", &list); err != nil {
		return err
	}

	if booksJSON {
		return printJSON(list.Books)
	}

	if len(list.Books) == 0 {
		fmt.Println("library is empty")
		return nil
	}
	for _, book := range list.Books {
		narration := " "
		if book.HasNarration {
			narration = "n"
		}
		fmt.Printf("%-28s  [%s] %-7s %8s  %s\n",
			book.ID, narration, book.Storage, fmtDuration(book.DurationSeconds), book.Title)
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	params := url.Values{}
	params.Set("q", args[0])
	if searchNarrated {
		params.Set("narrated", "true")
	}
	if searchStorage != "" {
		params.Set("storage", searchStorage)
	}

	var result search.Result
	if err := c.get("/api/v1/search?"+params.Encode(), &result); err != nil {
		return err
	}

	if result.Total == 0 {
		fmt.Println("no matches")
		return nil
	}
	for _, hit := range result.Hits {
		line := hit.Title
		if len(hit.Authors) > 0 {
			line += " by " + strings.Join(hit.Authors, ", ")
		}
		fmt.Printf("%-28s  %.2f  %s\n", hit.ID, hit.Score, line)
	}
	fmt.Printf("%d matches in %dms\n", result.Total, result.TookMs)
	return nil
}
