// Package models contains shared data models used across the print server.
package models

import "context"

// Item is one content record submitted for PDF inclusion. Its position in the
// submitted list decides which output row it maps to.
type Item struct {
	WhatIsA   string `json:"whatIsA"`
	ThatCould string `json:"thatCould"`
	FreeText  string `json:"freeText"`
	// AIImage is a data URI populated during processing, or empty.
	AIImage string `json:"aiImage,omitempty"`
}

// ImageAugmenter turns free text into an optional illustration.
// Never call the image vendor directly; always inject this interface.
type ImageAugmenter interface {
	// Augment returns a data URI, or "" when no image could be produced.
	// Ordinary failures (missing credential, quota, timeout, bad upstream
	// response) resolve to "" with a nil error.
	Augment(ctx context.Context, text string) (string, error)
	// Enabled reports whether augmentation can make remote calls at all.
	Enabled() bool
}
