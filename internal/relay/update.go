// Package relay implements the webhook ingestion, delivery and fan-out
// pipeline that carries Telegram channel posts into Max chats.
package relay

import (
	"encoding/json"
	"fmt"

	"github.com/crossposter/relay/internal/models"
)

// ContentClass is the closed set of content variants the pipeline moves
// around. Exactly two classes are deliverable; everything else is ClassOther
// and is acknowledged without being relayed.
type ContentClass int

// Content classes.
const (
	ClassOther ContentClass = iota
	ClassText
	ClassPhoto
)

// Content is a tagged variant of the relayed post body.
type Content struct {
	Class ContentClass

	// ClassText
	Text string

	// ClassPhoto
	PhotoFileID string
	Caption     string
}

// RecordKind maps a content class onto the ledger's content kind.
func (c Content) RecordKind() models.ContentKind {
	switch c.Class {
	case ClassText:
		return models.ContentKindText
	case ClassPhoto:
		return models.ContentKindPhoto
	default:
		return models.ContentKindUnsupported
	}
}

// Update is a parsed inbound webhook payload.
type Update struct {
	UpdateID  int64
	MessageID int64
	ChannelID int64
	Content   Content
}

// IsChannelPost reports whether the update carried a channel post at all.
func (u *Update) IsChannelPost() bool {
	return u.MessageID != 0 || u.ChannelID != 0
}

// wire shapes of the Telegram update payload
type wireUpdate struct {
	UpdateID    int64            `json:"update_id"`
	ChannelPost *wireChannelPost `json:"channel_post"`
}

type wireChannelPost struct {
	MessageID int64           `json:"message_id"`
	Chat      wireChat        `json:"chat"`
	Text      string          `json:"text"`
	Caption   string          `json:"caption"`
	Photo     []wirePhotoSize `json:"photo"`
}

type wireChat struct {
	ID int64 `json:"id"`
}

type wirePhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int64  `json:"file_size"`
}

// ParseUpdate parses and classifies an inbound webhook body. Malformed JSON
// fails with ErrMalformedPayload; well-formed payloads never fail, no matter
// how unexpected. Anything unrecognized classifies as ClassOther.
func ParseUpdate(body []byte) (*Update, error) {
	var wire wireUpdate
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	upd := &Update{UpdateID: wire.UpdateID}

	post := wire.ChannelPost
	if post == nil {
		return upd, nil
	}

	upd.MessageID = post.MessageID
	upd.ChannelID = post.Chat.ID

	switch {
	case len(post.Photo) > 0:
		// Telegram lists photo sizes smallest first; relay the largest.
		upd.Content = Content{
			Class:       ClassPhoto,
			PhotoFileID: post.Photo[len(post.Photo)-1].FileID,
			Caption:     post.Caption,
		}
	case post.Text != "":
		upd.Content = Content{Class: ClassText, Text: post.Text}
	default:
		upd.Content = Content{Class: ClassOther}
	}

	return upd, nil
}
