package domain

import (
	"encoding/json"
	"fmt"
)

// ContentKind discriminates the active ResponseContent variant.
type ContentKind int

const (
	ContentText ContentKind = iota
	ContentBytes
	ContentAudio
	ContentImage
	ContentStructured
)

// String returns the lowercase name of the content kind.
func (k ContentKind) String() string {
	switch k {
	case ContentText:
		return "text"
	case ContentBytes:
		return "bytes"
	case ContentAudio:
		return "audio"
	case ContentImage:
		return "image"
	case ContentStructured:
		return "structured"
	default:
		return "unknown"
	}
}

// ResponseContent is a tagged union of provider output shapes. Exactly one
// variant is active, selected by Kind: Text for ContentText, Data (+Format
// for audio/image) for the byte variants, Structured for ContentStructured.
type ResponseContent struct {
	Kind       ContentKind    `json:"kind"`
	Text       string         `json:"text,omitempty"`
	Data       []byte         `json:"data,omitempty"`
	Format     string         `json:"format,omitempty"`
	Structured map[string]any `json:"structured,omitempty"`
}

// TextContent wraps plain text output.
func TextContent(text string) *ResponseContent {
	return &ResponseContent{Kind: ContentText, Text: text}
}

// BytesContent wraps opaque binary output.
func BytesContent(data []byte) *ResponseContent {
	return &ResponseContent{Kind: ContentBytes, Data: data}
}

// AudioContent wraps audio bytes with their encoding format.
func AudioContent(data []byte, format string) *ResponseContent {
	return &ResponseContent{Kind: ContentAudio, Data: data, Format: format}
}

// ImageContent wraps image bytes with their encoding format.
func ImageContent(data []byte, format string) *ResponseContent {
	return &ResponseContent{Kind: ContentImage, Data: data, Format: format}
}

// StructuredContent wraps a key/value payload of JSON-compatible values.
func StructuredContent(values map[string]any) *ResponseContent {
	return &ResponseContent{Kind: ContentStructured, Structured: values}
}

// Normalize flattens the content into opaque bytes for cache storage:
// text encodes as UTF-8, byte variants pass through raw, structured
// payloads encode as JSON.
func (c *ResponseContent) Normalize() ([]byte, error) {
	switch c.Kind {
	case ContentText:
		return []byte(c.Text), nil
	case ContentBytes, ContentAudio, ContentImage:
		return c.Data, nil
	case ContentStructured:
		data, err := json.Marshal(c.Structured)
		if err != nil {
			return nil, Wrap(CodeDataConversion, "encoding structured content", err)
		}
		return data, nil
	default:
		return nil, E(CodeDataConversion, fmt.Sprintf("unknown content kind %d", c.Kind))
	}
}
