// Package downloader fetches media attachments into the export's media
// directory under deterministic file names.
package downloader
