package constants

const AppName = "httpproxy"

// Wire-protocol literals. The field extractor matches these as exact ASCII,
// including the single space after the colon.
const (
	AnchorContentLength = "Content-Length: "
	AnchorLastModified  = "Last-Modified: "

	// LastModifiedLen is the fixed width of an RFC1123 date as the paired
	// origin emits it: "Mon, 01 Jan 2024 00:00:00 GMT".
	LastModifiedLen = 29

	// MaxKeyLen is the cache-key width. Longer request targets are compared
	// on their first 15 bytes only.
	MaxKeyLen = 15
)
