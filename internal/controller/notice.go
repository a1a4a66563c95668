package controller

import (
	"errors"
	"net/http"

	"github.com/dgnsrekt/readaloud/internal/synth"
)

// NoticeKind classifies something the user should be told.
type NoticeKind int

const (
	// NoticeInfo is a hint that needs no acknowledgement.
	NoticeInfo NoticeKind = iota
	// NoticeMissingCredential means no API key is configured.
	NoticeMissingCredential
	// NoticeUnauthorized means the API key was rejected and has been
	// forgotten.
	NoticeUnauthorized
	// NoticeProviderMessage carries the provider's own explanation, such as
	// an exhausted quota.
	NoticeProviderMessage
	// NoticeFailure is any other failure to produce audio.
	NoticeFailure
)

// User-facing messages.
const (
	MsgMissingCredential = "Please set your ElevenLabs API key to use the reader."
	MsgUnauthorized      = "Unauthorized. Please set your API key again."
	MsgProviderPrefix    = "MESSAGE FROM ELEVENLABS: "
	MsgFailure           = "Error fetching audio, please try again"
	MsgNotEnoughText     = "Not enough text found to read. Please try hovering over a paragraph or article."
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeInfo:
		return "info"
	case NoticeMissingCredential:
		return "missing credential"
	case NoticeUnauthorized:
		return "unauthorized"
	case NoticeProviderMessage:
		return "provider message"
	case NoticeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Notice is a message for the user.
type Notice struct {
	Kind    NoticeKind
	Message string
	Err     error
}

// Blocking reports whether the notice should interrupt the user until
// acknowledged.
func (n Notice) Blocking() bool {
	return n.Kind != NoticeInfo
}

// NeedsCredential reports whether the user should be asked for a new key.
func (n Notice) NeedsCredential() bool {
	return n.Kind == NoticeMissingCredential || n.Kind == NoticeUnauthorized
}

// noticeFor maps a failed session onto what the user is told.
func noticeFor(err error) Notice {
	if errors.Is(err, synth.ErrMissingAPIKey) {
		return Notice{Kind: NoticeMissingCredential, Message: MsgMissingCredential, Err: err}
	}

	var se *synth.Error
	if errors.As(err, &se) {
		switch se.Kind {
		case synth.KindAuth:
			return Notice{Kind: NoticeUnauthorized, Message: MsgUnauthorized, Err: err}
		case synth.KindQuota:
			msg := se.Message
			if msg == "" {
				msg = http.StatusText(se.Status)
			}
			return Notice{Kind: NoticeProviderMessage, Message: MsgProviderPrefix + msg, Err: err}
		}
	}
	return Notice{Kind: NoticeFailure, Message: MsgFailure, Err: err}
}
