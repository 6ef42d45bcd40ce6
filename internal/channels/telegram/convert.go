package telegram

import (
	"sort"
	"unicode/utf16"

	"github.com/go-telegram/bot/models"

	"github.com/hopfenspace/matebot-telegram/internal/callbacks"
	"github.com/hopfenspace/matebot-telegram/internal/ledger"
	"github.com/hopfenspace/matebot-telegram/internal/parsing"
)

// convertEntities maps Telegram entities onto tokenizer spans, sorted by
// offset. Only mentions carry identities; every other span is kept as
// EntityOther so it stays one token.
func convertEntities(in []models.MessageEntity) []parsing.EntityRef {
	if len(in) == 0 {
		return nil
	}
	out := make([]parsing.EntityRef, 0, len(in))
	for _, e := range in {
		ref := parsing.EntityRef{Kind: parsing.EntityOther, Offset: e.Offset, Length: e.Length}
		switch e.Type {
		case models.MessageEntityTypeMention:
			ref.Kind = parsing.EntityMention
		case models.MessageEntityTypeTextMention:
			ref.Kind = parsing.EntityTextMention
			if e.User != nil {
				ref.User = &parsing.EntityUser{
					ID:        e.User.ID,
					Username:  e.User.Username,
					FirstName: e.User.FirstName,
					LastName:  e.User.LastName,
				}
			}
		}
		out = append(out, ref)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

// firstCode returns the text of the first inline code span.
func firstCode(text string, entities []models.MessageEntity) string {
	var units []uint16
	for _, e := range entities {
		if e.Type != models.MessageEntityTypeCode {
			continue
		}
		if units == nil {
			units = utf16.Encode([]rune(text))
		}
		end := e.Offset + e.Length
		if e.Offset < 0 || e.Length <= 0 || end > len(units) {
			continue
		}
		return string(utf16.Decode(units[e.Offset:end]))
	}
	return ""
}

func senderOf(u *models.User) callbacks.Sender {
	if u == nil {
		return callbacks.Sender{}
	}
	return callbacks.Sender{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

func accountOf(u *models.User) ledger.Account {
	return ledger.Account{
		TelegramID: u.ID,
		Username:   u.Username,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
	}
}

// inlineKeyboard converts buttons into reply markup; nil for no buttons.
func inlineKeyboard(kb callbacks.Keyboard) *models.InlineKeyboardMarkup {
	if len(kb) == 0 {
		return nil
	}
	rows := make([][]models.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]models.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, models.InlineKeyboardButton{Text: b.Text, CallbackData: b.Data})
		}
		rows = append(rows, buttons)
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}
