package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender adapts the bot API to the delivery dispatcher's transport interface.
type Sender struct {
	api *tgbotapi.BotAPI
}

func NewSender(api *tgbotapi.BotAPI) *Sender {
	return &Sender{api: api}
}

func (s *Sender) SendMessage(chatID int64, text string) error {
	if _, err := s.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (s *Sender) SendPhoto(chatID int64, fileURL, caption string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(fileURL))
	photo.Caption = caption
	if _, err := s.api.Send(photo); err != nil {
		return fmt.Errorf("send photo: %w", err)
	}
	return nil
}

func (s *Sender) SendDocument(chatID int64, fileURL, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileURL(fileURL))
	doc.Caption = caption
	if _, err := s.api.Send(doc); err != nil {
		return fmt.Errorf("send document: %w", err)
	}
	return nil
}
