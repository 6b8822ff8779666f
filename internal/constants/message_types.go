package constants

import "strings"

// Canonical message type tags stored on messages. The column is free-form,
// these are the tags adapters are expected to use.
const (
	MessageTypeText     = "text"
	MessageTypeImage    = "image"
	MessageTypeVideo    = "video"
	MessageTypeAudio    = "audio"
	MessageTypeDocument = "document"
	MessageTypeSystem   = "system"
)

// MimePrefixToMessageType maps MIME type prefixes to canonical message
// type tags, for adapters that forward a raw content type instead of a tag.
var MimePrefixToMessageType = map[string]string{
	"text/":        MessageTypeText,
	"image/":       MessageTypeImage,
	"video/":       MessageTypeVideo,
	"audio/":       MessageTypeAudio,
	"application/": MessageTypeDocument,
}

// NormalizeMessageType canonicalizes an event's message type tag. Empty
// becomes "text"; a MIME type like "image/jpeg" becomes its tag; anything
// else passes through lowercased.
func NormalizeMessageType(raw string) string {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return MessageTypeText
	}
	if strings.Contains(raw, "/") {
		for prefix, tag := range MimePrefixToMessageType {
			if strings.HasPrefix(raw, prefix) {
				return tag
			}
		}
		return MessageTypeDocument
	}
	return raw
}
