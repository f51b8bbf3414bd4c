package services

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// NoticeLevel is the severity of an operator notice.
type NoticeLevel string

const (
	NoticeError NoticeLevel = "error"
	NoticeWarn  NoticeLevel = "warn"
)

// Notice is an operator-facing message about a failure the visitor never sees.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
	At      time.Time   `json:"at"`
}

const defaultNoticeCapacity = 50

// NoticeBoard keeps the most recent operator notices and logs each one.
type NoticeBoard struct {
	mu       sync.Mutex
	notices  []Notice
	capacity int
	now      func() time.Time
}

// NewNoticeBoard creates a board holding the last capacity notices.
func NewNoticeBoard(capacity int) *NoticeBoard {
	if capacity <= 0 {
		capacity = defaultNoticeCapacity
	}
	return &NoticeBoard{capacity: capacity, now: time.Now}
}

// Post records a notice
func (b *NoticeBoard) Post(level NoticeLevel, message string) {
	if b == nil {
		return
	}

	switch level {
	case NoticeError:
		log.Error().Str("notice", message).Msg("Operator notice")
	default:
		log.Warn().Str("notice", message).Msg("Operator notice")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.notices = append(b.notices, Notice{Level: level, Message: message, At: b.now().UTC()})
	if len(b.notices) > b.capacity {
		b.notices = append([]Notice(nil), b.notices[len(b.notices)-b.capacity:]...)
	}
}

// Recent returns the notices newest first
func (b *NoticeBoard) Recent() []Notice {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Notice, len(b.notices))
	for i, n := range b.notices {
		out[len(b.notices)-1-i] = n
	}
	return out
}
