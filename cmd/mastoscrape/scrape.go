package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mastoscrape/pkg/auth"
	errs "mastoscrape/pkg/errors"
	"mastoscrape/pkg/logger"
	"mastoscrape/pkg/scraper"
	"mastoscrape/pkg/ui"
)

var (
	// Scrape command flags
	outputDir    string
	instance     string
	token        string
	maxPosts     int
	batchSize    int
	noMedia      bool
	noReplies    bool
	noEngagement bool
	notify       bool
)

// scrapeCmd represents the scrape command
var scrapeCmd = &cobra.Command{
	Use:   "scrape <handle>",
	Short: "Export a profile's posts, media and relationships",
	Long: `Export a Mastodon profile given as username@instance.

The export is written to scrapped_precise_<username>_<instance> under the
output directory:
  profile_info.json   profile snapshot
  posts.json          posts with engagement, replies and cross-references
  followers.json      follower accounts
  following.json      followed accounts
  media/              downloaded attachments

A bare username is resolved on the default instance. An access token is
optional; it is taken from --token, MASTOSCRAPE_ACCESS_TOKEN, or the
credentials stored with 'mastoscrape auth login'.`,
	Example: `  # Export a profile with all enrichment
  mastoscrape scrape alice@mastodon.social

  # Only the newest 200 posts, without media
  mastoscrape scrape alice@mastodon.social --max-posts 200 --no-media

  # Write into another directory
  mastoscrape scrape @alice@fosstodon.org --output ./exports`,
	Args: cobra.ExactArgs(1),
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	scrapeCmd.Flags().StringVarP(&outputDir, "output", "o", "", "base directory for the export (default: current directory)")
	scrapeCmd.Flags().StringVarP(&instance, "instance", "i", "", "instance used for bare usernames")
	scrapeCmd.Flags().StringVarP(&token, "token", "t", "", "access token (overrides stored credentials)")
	scrapeCmd.Flags().IntVarP(&maxPosts, "max-posts", "m", 0, "maximum number of posts to export (0 = all)")
	scrapeCmd.Flags().IntVar(&batchSize, "batch-size", 0, "posts written per batch (default 20)")
	scrapeCmd.Flags().BoolVar(&noMedia, "no-media", false, "skip media downloads")
	scrapeCmd.Flags().BoolVar(&noReplies, "no-replies", false, "skip reply threads")
	scrapeCmd.Flags().BoolVar(&noEngagement, "no-engagement", false, "skip reblogger and favouriter lists")
	scrapeCmd.Flags().BoolVar(&notify, "notify", false, "send a desktop notification when the export ends")
}

func runScrape(cmd *cobra.Command, args []string) error {
	handle := args[0]

	cfg, err := loadConfig(map[string]interface{}{
		"output":        outputDir,
		"instance":      instance,
		"token":         token,
		"max-posts":     maxPosts,
		"batch-size":    batchSize,
		"no-media":      noMedia,
		"no-replies":    noReplies,
		"no-engagement": noEngagement,
	})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logger.GetLogger()
	log.WithField("version", version).Debug("mastoscrape starting")

	ui.PrintInfo("Target profile", handle)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := scraper.New(cfg, log)
	if credManager, err := auth.NewManager(); err != nil {
		log.WithError(err).Warn("Credential store unavailable, continuing without stored tokens")
	} else {
		s.SetTokenSource(credManager.Token)
	}

	display := ui.NewProgressDisplay(ui.Output(), handle, verbose)
	if !ui.IsQuietMode() {
		s.SetProgress(display)
	}
	notifier := ui.NewNotifier(notify)

	summary, err := s.Run(ctx, handle)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			ui.PrintWarning("Export interrupted, completed batches were kept")
		case errs.Is(err, errs.ErrorTypeInvalidInput):
			ui.PrintError("Invalid handle", err.Error())
		case errs.Is(err, errs.ErrorTypeNotFound):
			ui.PrintError("Profile not found", handle)
		default:
			ui.PrintError("Export failed", err.Error())
		}
		notifier.SendError("Export failed", handle)
		if summary != nil && summary.OutputDir != "" {
			ui.PrintInfo("Partial export", summary.OutputDir)
		}
		return &reportedError{err}
	}

	if !ui.IsQuietMode() {
		display.Complete(*summary)
	}
	notifier.SendSuccess("Export complete", fmt.Sprintf("%s: %d posts", summary.Handle, summary.Posts))
	return nil
}
