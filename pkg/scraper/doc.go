// Package scraper runs a full profile export.
//
// A run resolves the handle on its home server, snapshots the profile,
// drains the post timeline, enriches every post and persists it in
// batches, then drains and persists the follower and following lists:
//
//	s := scraper.New(cfg, log)
//	s.SetProgress(ui.NewProgressDisplay(os.Stdout, handle, false))
//	summary, err := s.Run(ctx, "alice@example.social")
//
// Only resolve failures are fatal. Every later failure degrades the
// export: collections keep the pages they got, enrichment substitutes
// fallback values, and journal write failures are retried on the next
// flush. Files already flushed stay valid if the run is interrupted.
package scraper
