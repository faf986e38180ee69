package tasks

import (
	"context"
	"encoding/json"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// RemarkStore persists a moderated remark.
type RemarkStore interface {
	UpdateRemark(ctx context.Context, orderID uuid.UUID, remark string) error
}

// ModerationHandler filters order remarks against a wordlist and persists
// the cleaned text.
type ModerationHandler struct {
	Store    RemarkStore
	Wordlist []string
	Logger   zerolog.Logger
}

// Moderate replaces blocked words with asterisks.
func (h ModerationHandler) Moderate(remark string) string {
	cleaned := remark
	for _, word := range h.Wordlist {
		if word == "" {
			continue
		}
		cleaned = replaceFold(cleaned, word)
	}
	return cleaned
}

// HandleRemarkModerate processes one moderation task.
func (h ModerationHandler) HandleRemarkModerate(ctx context.Context, t *asynq.Task) error {
	var p RemarkModeratePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.Logger.Error().Err(err).Msg("decode remark moderation payload")
		return nil
	}
	cleaned := h.Moderate(p.Remark)
	if cleaned == p.Remark {
		return nil
	}
	if err := h.Store.UpdateRemark(ctx, p.OrderID, cleaned); err != nil {
		h.Logger.Error().Err(err).Str("order_id", p.OrderID.String()).Msg("persist moderated remark")
		return err
	}
	return nil
}

// replaceFold masks every case-insensitive occurrence of word with one
// asterisk per rune. Scanning by rune keeps offsets valid when lowering
// changes byte lengths.
func replaceFold(s, word string) string {
	target := []rune(strings.ToLower(word))
	if len(target) == 0 {
		return s
	}
	runes := []rune(s)
	var b strings.Builder
	for i := 0; i < len(runes); {
		if matchesFold(runes[i:], target) {
			b.WriteString(strings.Repeat("*", len(target)))
			i += len(target)
			continue
		}
		b.WriteRune(runes[i])
		i++
	}
	return b.String()
}

func matchesFold(s, target []rune) bool {
	if len(s) < len(target) {
		return false
	}
	for i, r := range target {
		if unicode.ToLower(s[i]) != r {
			return false
		}
	}
	return true
}
