package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/tgshopbot/internal/models"
)

func mainMenuKeyboard(categories []models.Category, isAdmin bool) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton

	// First two categories get a shortcut row at the top.
	if len(categories) >= 2 {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(categories[0].Name, fmt.Sprintf("category_%d", categories[0].ID)),
			tgbotapi.NewInlineKeyboardButtonData(categories[1].Name, fmt.Sprintf("category_%d", categories[1].ID)),
		))
	} else if len(categories) == 1 {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(categories[0].Name, fmt.Sprintf("category_%d", categories[0].ID)),
		))
	}

	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("👤 Профиль", "profile"),
	))
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🎟️ Промокод", "promo"),
		tgbotapi.NewInlineKeyboardButtonData("🧾 История", "history"),
	))
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("📚 Каталог", "catalog"),
	))
	if isAdmin {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔐 Админ-панель", "admin_panel"),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func adminMenuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Добавить товар", "add_product_menu"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Удалить категорию", "delete_catalog"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Промокоды 🎟️", "manage_promos"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Каталог 🛒", "catalog"),
		),
	)
}

func categoriesKeyboard(categories []models.Category) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, c := range categories {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(c.Name, fmt.Sprintf("category_%d", c.ID)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("◀️ Назад", "back_to_start"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func productKeyboard(productID, categoryID int64, index, total int) tgbotapi.InlineKeyboardMarkup {
	prev := "disabled"
	if index > 0 {
		prev = fmt.Sprintf("product_%d_%d", categoryID, index-1)
	}
	next := "disabled"
	if index < total-1 {
		next = fmt.Sprintf("product_%d_%d", categoryID, index+1)
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⬅️ Предыдущий", prev),
			tgbotapi.NewInlineKeyboardButtonData("➡️ Следующий", next),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🛒 Купить", fmt.Sprintf("buy_%d", productID)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("◀️ Назад", "back_to_start"),
		),
	)
}

func paymentKeyboard(payURL string, paymentID, purchaseID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("Оплатить", payURL),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Проверить оплату", fmt.Sprintf("checkpay_%d", paymentID)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Отменить заказ", fmt.Sprintf("cancel_buy_%d", purchaseID)),
		),
	)
}

func promoMenuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Добавить промокод", "add_promo"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Список/Редактирование", "list_promos"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("◀️ Назад", "admin_panel"),
		),
	)
}

func promoListKeyboard(promos []models.PromoCode) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, p := range promos {
		uses := "∞"
		if p.UsesLeft != nil {
			uses = fmt.Sprintf("%d", *p.UsesLeft)
		}
		state := "OFF"
		if p.Active {
			state = "ON"
		}
		label := fmt.Sprintf("%s — %d₽ — uses: %s — %s", p.Code, p.Amount, uses, state)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("promo_info_%d", p.ID)),
		))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Вкл/Выкл", fmt.Sprintf("toggle_promo_%d", p.ID)),
			tgbotapi.NewInlineKeyboardButtonData("Удалить", fmt.Sprintf("delete_promo_%d", p.ID)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("◀️ Назад", "manage_promos"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func skipPromoKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Без промокода", "skip_promo"),
		),
	)
}
