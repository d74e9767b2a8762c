package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/example/tgshopbot/internal/models"
)

type AutodeliveryStore interface {
	GetByProduct(ctx context.Context, productID int64) (*models.Autodelivery, error)
}

// Sender abstracts the chat transport used for handing out purchased content.
type Sender interface {
	SendMessage(chatID int64, text string) error
	SendPhoto(chatID int64, fileURL, caption string) error
	SendDocument(chatID int64, fileURL, caption string) error
}

// DeliveryService dispatches a product's autodelivery content to the buyer.
type DeliveryService struct {
	log            *slog.Logger
	autodeliveries AutodeliveryStore
	sender         Sender
}

func NewDeliveryService(log *slog.Logger, autodeliveries AutodeliveryStore, sender Sender) *DeliveryService {
	return &DeliveryService{log: log, autodeliveries: autodeliveries, sender: sender}
}

// Deliver sends the configured content for the purchased product. It returns
// whether content was actually sent; a disabled or absent record resolves the
// purchase without content, the administrator fulfills it out-of-band.
// Exactly one of text and file is dispatched, text first when both are set.
func (s *DeliveryService) Deliver(ctx context.Context, purchase *models.Purchase, chatID int64) (bool, error) {
	rec, err := s.autodeliveries.GetByProduct(ctx, purchase.ProductID)
	if err != nil {
		return false, fmt.Errorf("load autodelivery: %w", err)
	}
	if rec == nil || !rec.Enabled {
		return false, nil
	}

	switch {
	case rec.ContentText != "":
		text := fmt.Sprintf("Оплата принята. Автовыдача по заказу %d:\n\n%s", purchase.ID, rec.ContentText)
		if err := s.sender.SendMessage(chatID, text); err != nil {
			return false, fmt.Errorf("send autodelivery text: %w", err)
		}
		return true, nil
	case rec.FileURL != "":
		caption := fmt.Sprintf("Оплата принята. Автовыдача по заказу %d", purchase.ID)
		if isImageFile(rec.FileURL) {
			if err := s.sender.SendPhoto(chatID, rec.FileURL, caption); err != nil {
				return false, fmt.Errorf("send autodelivery photo: %w", err)
			}
		} else {
			if err := s.sender.SendDocument(chatID, rec.FileURL, caption); err != nil {
				return false, fmt.Errorf("send autodelivery document: %w", err)
			}
		}
		return true, nil
	default:
		s.log.Warn("autodelivery enabled without content", "product_id", purchase.ProductID)
		return false, nil
	}
}

func isImageFile(fileURL string) bool {
	p := fileURL
	if parsed, err := url.Parse(fileURL); err == nil && parsed.Path != "" {
		p = parsed.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return true
	default:
		return false
	}
}
