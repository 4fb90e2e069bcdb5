// Package enricher turns raw statuses into the post records written to
// posts.json.
//
// Each status goes through classification, engagement expansion,
// cross-reference resolution, thread replies and media download. A step
// that fails is isolated to its post: it substitutes a partial account,
// placeholder content, an empty list or a missing local path, and the
// outcome is tallied in Stats.
package enricher
