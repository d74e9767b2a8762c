package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/tgshopbot/internal/config"
	"github.com/example/tgshopbot/internal/models"
	"github.com/example/tgshopbot/internal/service"
)

// MediaStorage stores uploaded media and returns public URLs. May be nil when
// no S3 configuration is present; the bot then skips photo handling.
type MediaStorage interface {
	UploadPhoto(ctx context.Context, data []byte, contentType string) (string, error)
	UploadFile(ctx context.Context, data []byte, fileName string) (string, error)
}

type Bot struct {
	cfg        config.Config
	api        *tgbotapi.BotAPI
	log        *slog.Logger
	users      *service.UserService
	catalog    *service.CatalogService
	promo      *service.PromoService
	purchases  *service.PurchaseService
	storage    MediaStorage
	state      *StateManager
	httpClient *http.Client
}

func NewBot(cfg config.Config, api *tgbotapi.BotAPI, log *slog.Logger, users *service.UserService, catalog *service.CatalogService, promo *service.PromoService, purchases *service.PurchaseService, storage MediaStorage) *Bot {
	return &Bot{
		cfg:        cfg,
		api:        api,
		log:        log,
		users:      users,
		catalog:    catalog,
		promo:      promo,
		purchases:  purchases,
		storage:    storage,
		state:      NewStateManager(),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram bot started")

	for {
		select {
		case update := <-updates:
			if update.Message != nil {
				b.handleMessage(ctx, update.Message)
			} else if update.CallbackQuery != nil {
				b.handleCallback(ctx, update.CallbackQuery)
			}
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}

	session := b.state.Get(msg.Chat.ID)

	if len(msg.Photo) > 0 || msg.Document != nil {
		switch session.State {
		case StateAwaitingProductPhoto:
			b.handleProductPhoto(ctx, msg, session)
		case StateAwaitingAutodeliveryContent:
			b.handleAutodeliveryFile(ctx, msg, session)
		default:
			b.sendText(msg.Chat.ID, "Я не жду файлов. Используйте меню.")
		}
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	b.handleSessionText(ctx, msg, session)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		if _, err := b.users.Ensure(ctx, msg.From.ID); err != nil {
			b.log.Error("ensure user", "err", err)
			return
		}
		b.showMainMenu(ctx, msg.Chat.ID, msg.From.ID)
	case "admin":
		if !b.cfg.IsAdmin(msg.From.ID) {
			b.sendText(msg.Chat.ID, "Доступ запрещён. Эта команда доступна только администраторам.")
			return
		}
		b.showAdminMenu(msg.Chat.ID)
	case "add_product":
		if !b.cfg.IsAdmin(msg.From.ID) {
			b.sendText(msg.Chat.ID, "Доступ запрещён. Только администраторы.")
			return
		}
		session := b.state.Get(msg.Chat.ID)
		session.State = StateAwaitingCategory
		b.sendText(msg.Chat.ID, "Введите название категории для товара:")
	case "promo":
		code := strings.TrimSpace(msg.CommandArguments())
		if code == "" {
			session := b.state.Get(msg.Chat.ID)
			session.State = StateAwaitingUserPromo
			b.sendText(msg.Chat.ID, "Введите ваш промокод (текст):")
			return
		}
		b.redeemPromo(ctx, msg.Chat.ID, msg.From.ID, code)
	case "history":
		b.showHistory(ctx, msg.Chat.ID, msg.From.ID)
	default:
		b.sendText(msg.Chat.ID, "Неизвестная команда. Используйте /start.")
	}
}

func (b *Bot) handleSessionText(ctx context.Context, msg *tgbotapi.Message, session *Session) {
	text := strings.TrimSpace(msg.Text)

	switch session.State {
	case StateAwaitingCategory:
		if !b.requireAdminMessage(msg) {
			return
		}
		category, err := b.catalog.EnsureCategory(ctx, text)
		if err != nil {
			b.log.Error("ensure category", "err", err)
			b.sendText(msg.Chat.ID, "Не удалось создать категорию, попробуйте позже.")
			return
		}
		session.CategoryID = category.ID
		session.State = StateAwaitingProductName
		b.sendText(msg.Chat.ID, "Введите название товара:")

	case StateAwaitingProductName:
		session.ProductName = text
		session.State = StateAwaitingProductDescription
		b.sendText(msg.Chat.ID, "Введите описание товара:")

	case StateAwaitingProductDescription:
		session.ProductDescription = text
		session.State = StateAwaitingProductPrice
		b.sendText(msg.Chat.ID, "Введите цену товара (целое число):")

	case StateAwaitingProductPrice:
		price, err := strconv.Atoi(text)
		if err != nil || price <= 0 {
			b.sendText(msg.Chat.ID, "Цена должна быть положительным числом. Попробуйте снова.")
			return
		}
		session.ProductPrice = price
		if b.storage == nil {
			// No media storage configured; create the product right away.
			b.createProduct(ctx, msg.Chat.ID, session, "")
			return
		}
		session.State = StateAwaitingProductPhoto
		b.sendText(msg.Chat.ID, "Отправьте фотографию товара (или «-», чтобы пропустить):")

	case StateAwaitingProductPhoto:
		if text == "-" {
			b.createProduct(ctx, msg.Chat.ID, session, "")
			return
		}
		b.sendText(msg.Chat.ID, "Пришлите фото или отправьте «-», чтобы пропустить.")

	case StateAwaitingAutodeliveryChoice:
		answer := strings.ToLower(text)
		if answer == "да" || answer == "yes" || answer == "y" {
			session.State = StateAwaitingAutodeliveryContent
			b.sendText(msg.Chat.ID, "Отправьте текстовое содержимое автовыдачи или файл (документ/фото).")
			return
		}
		if err := b.catalog.ConfigureAutodelivery(ctx, session.ProductID, false, "", ""); err != nil {
			b.log.Error("disable autodelivery", "err", err)
		}
		b.sendText(msg.Chat.ID, "Автовыдача отключена для этого товара.")
		b.state.Reset(msg.Chat.ID)
		b.showAdminMenu(msg.Chat.ID)

	case StateAwaitingAutodeliveryContent:
		if err := b.catalog.ConfigureAutodelivery(ctx, session.ProductID, true, text, ""); err != nil {
			b.log.Error("configure autodelivery", "err", err)
			b.sendText(msg.Chat.ID, "Не удалось сохранить автовыдачу, попробуйте позже.")
			return
		}
		b.sendText(msg.Chat.ID, "Автовыдача настроена (текст).")
		b.state.Reset(msg.Chat.ID)
		b.showAdminMenu(msg.Chat.ID)

	case StateAwaitingPromoCode:
		if !b.requireAdminMessage(msg) {
			return
		}
		session.PromoCode = strings.ToUpper(text)
		session.State = StateAwaitingPromoAmount
		b.sendText(msg.Chat.ID, "Введите сумму скидки в рублях (целое число):")

	case StateAwaitingPromoAmount:
		amount, err := strconv.Atoi(text)
		if err != nil || amount <= 0 {
			b.sendText(msg.Chat.ID, "Нужно положительное число. Попробуйте ещё раз.")
			return
		}
		session.PromoAmount = amount
		session.State = StateAwaitingPromoUses
		b.sendText(msg.Chat.ID, "Введите количество использований (0 — неограниченно):")

	case StateAwaitingPromoUses:
		uses, err := strconv.Atoi(text)
		if err != nil || uses < 0 {
			b.sendText(msg.Chat.ID, "Нужно число. Попробуйте ещё раз.")
			return
		}
		promo, err := b.promo.CreatePromo(ctx, session.PromoCode, session.PromoAmount, uses)
		if err != nil {
			b.log.Error("create promo", "err", err)
			b.sendText(msg.Chat.ID, "Не удалось создать промокод, попробуйте позже.")
			return
		}
		usesLabel := "∞"
		if promo.UsesLeft != nil {
			usesLabel = strconv.Itoa(*promo.UsesLeft)
		}
		b.sendText(msg.Chat.ID, fmt.Sprintf("Промокод '%s' добавлен: скидка %d ₽, использований: %s.", promo.Code, promo.Amount, usesLabel))
		b.state.Reset(msg.Chat.ID)
		b.showAdminMenu(msg.Chat.ID)

	case StateAwaitingDeleteCategory:
		if !b.requireAdminMessage(msg) {
			return
		}
		err := b.catalog.DeleteCategoryByName(ctx, text)
		switch {
		case errors.Is(err, service.ErrCategoryNotFound):
			b.sendText(msg.Chat.ID, "Категория не найдена.")
		case err != nil:
			b.log.Error("delete category", "err", err)
			b.sendText(msg.Chat.ID, "Не удалось удалить категорию, попробуйте позже.")
		default:
			b.sendText(msg.Chat.ID, fmt.Sprintf("Категория '%s' удалена вместе с товарами.", text))
		}
		b.state.Reset(msg.Chat.ID)
		b.showAdminMenu(msg.Chat.ID)

	case StateAwaitingUserPromo:
		b.state.Reset(msg.Chat.ID)
		b.redeemPromo(ctx, msg.Chat.ID, msg.From.ID, text)

	case StateAwaitingPurchasePromo:
		productID := session.ProductID
		b.state.Reset(msg.Chat.ID)
		b.startPurchase(ctx, msg.Chat.ID, msg.From.ID, productID, text)

	default:
		b.sendText(msg.Chat.ID, "Используйте /start, чтобы открыть меню.")
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.From == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	data := cb.Data

	switch {
	case data == "catalog":
		b.showCatalog(ctx, cb)
	case data == "back_to_start":
		b.answerCallback(cb, "")
		b.showMainMenu(ctx, chatID, cb.From.ID)
	case data == "profile":
		b.answerCallback(cb, "")
		b.showProfile(ctx, chatID, cb.From.ID)
	case data == "history":
		b.answerCallback(cb, "")
		b.showHistory(ctx, chatID, cb.From.ID)
	case data == "promo":
		session := b.state.Get(chatID)
		session.State = StateAwaitingUserPromo
		b.answerCallback(cb, "")
		b.sendText(chatID, "Введите ваш промокод (текст):")
	case data == "skip_promo":
		session := b.state.Get(chatID)
		productID := session.ProductID
		b.state.Reset(chatID)
		b.answerCallback(cb, "")
		b.startPurchase(ctx, chatID, cb.From.ID, productID, "")
	case data == "disabled":
		b.answerCallback(cb, "")

	case strings.HasPrefix(data, "category_"):
		b.showCategory(ctx, cb)
	case strings.HasPrefix(data, "product_"):
		b.navigateProduct(ctx, cb)
	case strings.HasPrefix(data, "buy_"):
		b.handleBuy(ctx, cb)
	case strings.HasPrefix(data, "checkpay_"):
		b.handleCheckPayment(ctx, cb)
	case strings.HasPrefix(data, "cancel_buy_"):
		b.handleCancelPurchase(ctx, cb)

	case data == "admin_panel":
		if !b.requireAdmin(cb) {
			return
		}
		b.answerCallback(cb, "")
		b.showAdminMenu(chatID)
	case data == "add_product_menu":
		if !b.requireAdmin(cb) {
			return
		}
		session := b.state.Get(chatID)
		session.State = StateAwaitingCategory
		b.answerCallback(cb, "")
		b.sendText(chatID, "Введите название категории для товара:")
	case data == "delete_catalog":
		if !b.requireAdmin(cb) {
			return
		}
		session := b.state.Get(chatID)
		session.State = StateAwaitingDeleteCategory
		b.answerCallback(cb, "")
		b.sendText(chatID, "Введите название категории для удаления:")
	case data == "manage_promos":
		if !b.requireAdmin(cb) {
			return
		}
		b.answerCallback(cb, "")
		keyboard := promoMenuKeyboard()
		b.sendScreen(chatID, "Управление промокодами:", &keyboard)
	case data == "add_promo":
		if !b.requireAdmin(cb) {
			return
		}
		session := b.state.Get(chatID)
		session.State = StateAwaitingPromoCode
		b.answerCallback(cb, "")
		b.sendText(chatID, "Введите код промокода (текст):")
	case data == "list_promos":
		if !b.requireAdmin(cb) {
			return
		}
		b.showPromoList(ctx, cb)
	case strings.HasPrefix(data, "toggle_promo_"):
		if !b.requireAdmin(cb) {
			return
		}
		b.togglePromo(ctx, cb)
	case strings.HasPrefix(data, "delete_promo_"):
		if !b.requireAdmin(cb) {
			return
		}
		b.deletePromo(ctx, cb)
	case strings.HasPrefix(data, "promo_info_"):
		if !b.requireAdmin(cb) {
			return
		}
		b.showPromoInfo(ctx, cb)

	default:
		b.answerCallback(cb, "Неизвестный выбор")
	}
}

func (b *Bot) showCatalog(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	categories, err := b.catalog.Categories(ctx)
	if err != nil {
		b.log.Error("list categories", "err", err)
		b.answerCallback(cb, "Ошибка, попробуйте позже")
		return
	}
	b.answerCallback(cb, "")
	if len(categories) == 0 {
		b.sendScreen(cb.Message.Chat.ID, "Каталог пуст.", nil)
		return
	}
	keyboard := categoriesKeyboard(categories)
	b.sendScreen(cb.Message.Chat.ID, "Выберите категорию:", &keyboard)
}

func (b *Bot) showCategory(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	categoryID, err := strconv.ParseInt(strings.TrimPrefix(cb.Data, "category_"), 10, 64)
	if err != nil {
		b.answerCallback(cb, "Неверный ID категории.")
		return
	}
	products, err := b.catalog.ProductsByCategory(ctx, categoryID)
	if err != nil {
		b.log.Error("list products", "err", err)
		b.answerCallback(cb, "Ошибка, попробуйте позже")
		return
	}
	if len(products) == 0 {
		b.answerCallback(cb, "")
		b.sendText(cb.Message.Chat.ID, "В этой категории пока нет товаров.")
		return
	}
	b.answerCallback(cb, "")
	b.showProduct(cb.Message.Chat.ID, products, 0, categoryID)
}

func (b *Bot) navigateProduct(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	parts := strings.Split(cb.Data, "_")
	if len(parts) != 3 {
		b.answerCallback(cb, "Ошибка навигации.")
		return
	}
	categoryID, err1 := strconv.ParseInt(parts[1], 10, 64)
	index, err2 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil {
		b.answerCallback(cb, "Ошибка навигации.")
		return
	}
	products, err := b.catalog.ProductsByCategory(ctx, categoryID)
	if err != nil || index < 0 || index >= len(products) {
		b.answerCallback(cb, "Товар не найден.")
		return
	}
	b.answerCallback(cb, "")
	b.showProduct(cb.Message.Chat.ID, products, index, categoryID)
}

func (b *Bot) showProduct(chatID int64, products []models.Product, index int, categoryID int64) {
	product := products[index]
	text := fmt.Sprintf("🔹 %s\n💬 %s\n💰 Цена: %d ₽", product.Name, product.Description, product.Price)
	keyboard := productKeyboard(product.ID, categoryID, index, len(products))

	if product.PhotoURL != "" {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(product.PhotoURL))
		photo.Caption = text
		photo.ReplyMarkup = keyboard
		b.replaceScreen(chatID, photo)
		return
	}
	b.sendScreen(chatID, text, &keyboard)
}

func (b *Bot) handleBuy(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	productID, err := strconv.ParseInt(strings.TrimPrefix(cb.Data, "buy_"), 10, 64)
	if err != nil {
		b.answerCallback(cb, "Неверный ID товара.")
		return
	}
	product, err := b.catalog.Product(ctx, productID)
	if err != nil {
		b.log.Error("get product", "err", err)
		b.answerCallback(cb, "Ошибка, попробуйте позже")
		return
	}
	if product == nil {
		b.answerCallback(cb, "Товар не найден.")
		return
	}

	session := b.state.Get(cb.Message.Chat.ID)
	session.State = StateAwaitingPurchasePromo
	session.ProductID = productID
	b.answerCallback(cb, "")
	msg := tgbotapi.NewMessage(cb.Message.Chat.ID, "Введите промокод или продолжите без него:")
	msg.ReplyMarkup = skipPromoKeyboard()
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send promo prompt", "err", err)
	}
}

func (b *Bot) startPurchase(ctx context.Context, chatID, telegramID, productID int64, promoCode string) {
	purchase, product, err := b.purchases.Initiate(ctx, telegramID, productID, promoCode)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrProductNotFound):
			b.sendText(chatID, "Товар не найден.")
		case errors.Is(err, service.ErrPromoNotFound), errors.Is(err, service.ErrPromoDisabled), errors.Is(err, service.ErrPromoExhausted):
			b.sendText(chatID, promoErrorText(err)+" Заказ не создан, попробуйте снова.")
		default:
			b.log.Error("initiate purchase", "err", err)
			b.sendText(chatID, "Не удалось создать заказ, попробуйте позже.")
		}
		return
	}

	payment, invoice, err := b.purchases.RequestInvoice(ctx, purchase, product)
	if err != nil {
		b.log.Error("request invoice", "purchase_id", purchase.ID, "err", err)
		b.sendText(chatID, "Не удалось создать платёжную ссылку. Свяжитесь с поддержкой: "+b.cfg.SupportContact)
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "💳 Реквизиты для оплаты заказа #%d\n\n", purchase.ID)
	fmt.Fprintf(&sb, "Товар: %s\n", product.Name)
	fmt.Fprintf(&sb, "Сумма: %d ₽ (~%.6f USDT)\n", purchase.Price, b.purchases.AmountUSDT(purchase.Price))
	fmt.Fprintf(&sb, "Invoice ID: %s\n\n", payment.InvoiceID)
	if invoice.Mock {
		sb.WriteString("⚠️ Платёжный провайдер временно недоступен: счёт тестовый и оплачен быть не может. Свяжитесь с поддержкой.\n\n")
	}
	sb.WriteString("Нажмите «Оплатить», чтобы перейти на страницу оплаты. После оплаты нажмите «Проверить оплату».")

	msg := tgbotapi.NewMessage(chatID, sb.String())
	msg.ReplyMarkup = paymentKeyboard(payment.PayURL, payment.ID, purchase.ID)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send payment message", "err", err)
	}
}

func (b *Bot) handleCheckPayment(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	paymentID, err := strconv.ParseInt(strings.TrimPrefix(cb.Data, "checkpay_"), 10, 64)
	if err != nil {
		b.answerCallback(cb, "Ошибка данных.")
		return
	}

	result, err := b.purchases.Confirm(ctx, paymentID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPaymentNotFound):
			b.answerCallback(cb, "Платёж не найден.")
		case errors.Is(err, service.ErrPurchaseNotFound):
			b.answerCallback(cb, "Заказ не найден.")
		default:
			b.log.Error("confirm payment", "payment_id", paymentID, "err", err)
			b.answerCallback(cb, "Ошибка, попробуйте позже")
		}
		return
	}

	chatID := cb.Message.Chat.ID
	b.answerCallback(cb, "")

	if !result.Paid {
		b.sendText(chatID, "Платёж не найден / не оплачен. Попробуйте снова позднее.")
		return
	}

	purchaseID := result.Purchase.ID
	switch {
	case result.AlreadyDelivered:
		b.sendText(chatID, fmt.Sprintf("Заказ #%d уже выдан.", purchaseID))
	case result.DeliveryErr != nil:
		b.sendText(chatID, fmt.Sprintf("Оплата принята, но не удалось отправить автовыдачу по заказу #%d. Свяжитесь с поддержкой: %s", purchaseID, b.cfg.SupportContact))
	case result.ContentDelivered:
		if cb.From.ID != result.OwnerTelegramID {
			b.sendText(chatID, fmt.Sprintf("Оплата подтверждена. Автовыдача доставлена покупателю по заказу #%d.", purchaseID))
		}
	default:
		b.sendText(chatID, fmt.Sprintf("Оплата принята, заказ #%d отмечен как оплаченный. Администратор обработает заказ.", purchaseID))
	}
}

func (b *Bot) handleCancelPurchase(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	purchaseID, err := strconv.ParseInt(strings.TrimPrefix(cb.Data, "cancel_buy_"), 10, 64)
	if err != nil {
		b.answerCallback(cb, "Ошибка данных.")
		return
	}

	err = b.purchases.Cancel(ctx, purchaseID, cb.From.ID)
	switch {
	case errors.Is(err, service.ErrPurchaseNotFound):
		b.answerCallback(cb, "Покупка не найдена.")
	case errors.Is(err, service.ErrCancelNotPermitted):
		b.answerCallback(cb, "Отмена доступна только владельцу заказа или администратору.")
	case errors.Is(err, service.ErrPurchaseSettled):
		b.answerCallback(cb, "Заказ уже оплачен, отмена невозможна.")
	case err != nil:
		b.log.Error("cancel purchase", "purchase_id", purchaseID, "err", err)
		b.answerCallback(cb, "Ошибка при отмене заказа.")
	default:
		b.answerCallback(cb, "Покупка отменена.")
		b.sendText(cb.Message.Chat.ID, fmt.Sprintf("Покупка #%d отменена.", purchaseID))
		b.showMainMenu(ctx, cb.Message.Chat.ID, cb.From.ID)
	}
}

func (b *Bot) showProfile(ctx context.Context, chatID, telegramID int64) {
	user, err := b.users.Profile(ctx, telegramID)
	if err != nil {
		b.log.Error("load profile", "err", err)
		b.sendText(chatID, "Не удалось загрузить профиль, попробуйте позже.")
		return
	}
	balance := 0
	if user != nil {
		balance = user.Balance
	}
	b.sendText(chatID, fmt.Sprintf("👤 Профиль\nID: %d\nБаланс: %d ₽", telegramID, balance))
}

func (b *Bot) showHistory(ctx context.Context, chatID, telegramID int64) {
	entries, err := b.purchases.History(ctx, telegramID)
	if err != nil {
		b.log.Error("load history", "err", err)
		b.sendText(chatID, "Не удалось загрузить историю, попробуйте позже.")
		return
	}
	if len(entries) == 0 {
		b.sendText(chatID, "У вас пока нет покупок.")
		return
	}
	var sb strings.Builder
	sb.WriteString("🧾 История покупок:\n")
	for _, e := range entries {
		fmt.Fprintf(&sb, "#%d — %s — %d ₽ — %s\n", e.PurchaseID, e.ProductName, e.Price, e.Status)
	}
	b.sendText(chatID, sb.String())
}

func (b *Bot) redeemPromo(ctx context.Context, chatID, telegramID int64, code string) {
	amount, err := b.promo.Redeem(ctx, telegramID, code)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPromoNotFound), errors.Is(err, service.ErrPromoDisabled), errors.Is(err, service.ErrPromoExhausted):
			b.sendText(chatID, promoErrorText(err))
		default:
			b.log.Error("redeem promo", "err", err)
			b.sendText(chatID, "Не удалось применить промокод, попробуйте позже.")
		}
		return
	}
	b.sendText(chatID, fmt.Sprintf("Промокод применён! Вам зачислено %d ₽.", amount))
}

func (b *Bot) showPromoList(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	promos, err := b.promo.ListPromos(ctx)
	if err != nil {
		b.log.Error("list promos", "err", err)
		b.answerCallback(cb, "Ошибка, попробуйте позже")
		return
	}
	b.answerCallback(cb, "")
	if len(promos) == 0 {
		b.sendScreen(cb.Message.Chat.ID, "Промокодов пока нет.", nil)
		return
	}
	keyboard := promoListKeyboard(promos)
	b.sendScreen(cb.Message.Chat.ID, "Список промокодов:", &keyboard)
}

func (b *Bot) showPromoInfo(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	id, err := strconv.ParseInt(strings.TrimPrefix(cb.Data, "promo_info_"), 10, 64)
	if err != nil {
		b.answerCallback(cb, "Неверный ID.")
		return
	}
	promos, err := b.promo.ListPromos(ctx)
	if err != nil {
		b.answerCallback(cb, "Ошибка, попробуйте позже")
		return
	}
	for _, p := range promos {
		if p.ID != id {
			continue
		}
		uses := "∞"
		if p.UsesLeft != nil {
			uses = strconv.Itoa(*p.UsesLeft)
		}
		state := "отключён"
		if p.Active {
			state = "активен"
		}
		b.answerCallback(cb, "")
		b.sendText(cb.Message.Chat.ID, fmt.Sprintf("Код: %s\nСкидка: %d ₽\nИспользований осталось: %s\nСтатус: %s", p.Code, p.Amount, uses, state))
		return
	}
	b.answerCallback(cb, "Промокод не найден.")
}

func (b *Bot) togglePromo(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	id, err := strconv.ParseInt(strings.TrimPrefix(cb.Data, "toggle_promo_"), 10, 64)
	if err != nil {
		b.answerCallback(cb, "Неверный ID.")
		return
	}
	active, err := b.promo.TogglePromo(ctx, id)
	if err != nil {
		b.log.Error("toggle promo", "err", err)
		b.answerCallback(cb, "Промокод не найден.")
		return
	}
	if active {
		b.answerCallback(cb, "Новый статус: активен")
	} else {
		b.answerCallback(cb, "Новый статус: отключён")
	}
}

func (b *Bot) deletePromo(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	id, err := strconv.ParseInt(strings.TrimPrefix(cb.Data, "delete_promo_"), 10, 64)
	if err != nil {
		b.answerCallback(cb, "Неверный ID.")
		return
	}
	if err := b.promo.DeletePromo(ctx, id); err != nil {
		b.log.Error("delete promo", "err", err)
		b.answerCallback(cb, "Ошибка, попробуйте позже")
		return
	}
	b.answerCallback(cb, "Промокод удалён.")
}

func (b *Bot) createProduct(ctx context.Context, chatID int64, session *Session, photoURL string) {
	product, err := b.catalog.AddProduct(ctx, session.CategoryID, session.ProductName, session.ProductDescription, session.ProductPrice, photoURL)
	if err != nil {
		b.log.Error("add product", "err", err)
		b.sendText(chatID, "Не удалось добавить товар, попробуйте позже.")
		b.state.Reset(chatID)
		return
	}
	session.ProductID = product.ID
	session.State = StateAwaitingAutodeliveryChoice
	b.sendText(chatID, fmt.Sprintf("Товар '%s' добавлен. ID=%d.\nВключить автовыдачу для этого товара? (да/нет)", product.Name, product.ID))
}

func (b *Bot) handleProductPhoto(ctx context.Context, msg *tgbotapi.Message, session *Session) {
	if len(msg.Photo) == 0 {
		b.sendText(msg.Chat.ID, "Это не фотография. Пришлите фото товара.")
		return
	}
	if b.storage == nil {
		b.createProduct(ctx, msg.Chat.ID, session, "")
		return
	}

	photo := msg.Photo[len(msg.Photo)-1]
	data, _, err := b.downloadTelegramFile(ctx, photo.FileID)
	if err != nil {
		b.log.Error("download product photo", "err", err)
		b.sendText(msg.Chat.ID, "Не удалось сохранить фото, попробуйте снова.")
		return
	}
	photoURL, err := b.storage.UploadPhoto(ctx, data, "image/jpeg")
	if err != nil {
		b.log.Error("upload product photo", "err", err)
		b.sendText(msg.Chat.ID, "Не удалось сохранить фото, попробуйте снова.")
		return
	}
	b.createProduct(ctx, msg.Chat.ID, session, photoURL)
}

func (b *Bot) handleAutodeliveryFile(ctx context.Context, msg *tgbotapi.Message, session *Session) {
	if b.storage == nil {
		b.sendText(msg.Chat.ID, "Хранилище файлов не настроено. Отправьте текстовое содержимое.")
		return
	}

	var fileID, fileName string
	switch {
	case len(msg.Photo) > 0:
		fileID = msg.Photo[len(msg.Photo)-1].FileID
		fileName = fileID + ".jpg"
	case msg.Document != nil:
		fileID = msg.Document.FileID
		fileName = msg.Document.FileName
	default:
		return
	}

	data, _, err := b.downloadTelegramFile(ctx, fileID)
	if err != nil {
		b.log.Error("download autodelivery file", "err", err)
		b.sendText(msg.Chat.ID, "Не удалось сохранить файл, попробуйте снова.")
		return
	}
	fileURL, err := b.storage.UploadFile(ctx, data, fileName)
	if err != nil {
		b.log.Error("upload autodelivery file", "err", err)
		b.sendText(msg.Chat.ID, "Не удалось сохранить файл, попробуйте снова.")
		return
	}

	if err := b.catalog.ConfigureAutodelivery(ctx, session.ProductID, true, "", fileURL); err != nil {
		b.log.Error("configure autodelivery", "err", err)
		b.sendText(msg.Chat.ID, "Не удалось сохранить автовыдачу, попробуйте позже.")
		return
	}
	b.sendText(msg.Chat.ID, "Автовыдача настроена (файл).")
	b.state.Reset(msg.Chat.ID)
	b.showAdminMenu(msg.Chat.ID)
}

func (b *Bot) downloadTelegramFile(ctx context.Context, fileID string) ([]byte, string, error) {
	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, "", fmt.Errorf("get file: %w", err)
	}
	link := file.Link(b.api.Token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, "", fmt.Errorf("new request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("download file: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read file body: %w", err)
	}
	return data, file.FilePath, nil
}

func (b *Bot) showMainMenu(ctx context.Context, chatID, telegramID int64) {
	categories, err := b.catalog.Categories(ctx)
	if err != nil {
		b.log.Error("list categories", "err", err)
	}
	keyboard := mainMenuKeyboard(categories, b.cfg.IsAdmin(telegramID))
	b.sendScreen(chatID, "Добро пожаловать! Выберите действие:", &keyboard)
}

func (b *Bot) showAdminMenu(chatID int64) {
	keyboard := adminMenuKeyboard()
	b.sendScreen(chatID, "Админ-панель:", &keyboard)
}

func (b *Bot) requireAdmin(cb *tgbotapi.CallbackQuery) bool {
	if b.cfg.IsAdmin(cb.From.ID) {
		return true
	}
	callback := tgbotapi.NewCallbackWithAlert(cb.ID, "Доступ запрещён. Только администраторы.")
	if _, err := b.api.Request(callback); err != nil {
		b.log.Error("callback alert", "err", err)
	}
	return false
}

func (b *Bot) requireAdminMessage(msg *tgbotapi.Message) bool {
	if b.cfg.IsAdmin(msg.From.ID) {
		return true
	}
	b.state.Reset(msg.Chat.ID)
	b.sendText(msg.Chat.ID, "Доступ запрещён. Только администраторы.")
	return false
}

func (b *Bot) answerCallback(cb *tgbotapi.CallbackQuery, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, text)); err != nil {
		b.log.Error("callback ack", "err", err)
	}
}

func (b *Bot) sendText(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.log.Error("send message", "err", err)
	}
}

// sendScreen replaces the previous menu message on this chat so the user
// always sees a single current screen.
func (b *Bot) sendScreen(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	if keyboard != nil {
		msg.ReplyMarkup = *keyboard
	}
	b.replaceScreen(chatID, msg)
}

func (b *Bot) replaceScreen(chatID int64, c tgbotapi.Chattable) {
	session := b.state.Get(chatID)
	if session.LastMessageID != 0 {
		del := tgbotapi.NewDeleteMessage(chatID, session.LastMessageID)
		if _, err := b.api.Request(del); err != nil {
			b.log.Debug("delete previous screen", "err", err)
		}
		session.LastMessageID = 0
	}
	sent, err := b.api.Send(c)
	if err != nil {
		b.log.Error("send screen", "err", err)
		return
	}
	session.LastMessageID = sent.MessageID
}

func promoErrorText(err error) string {
	switch {
	case errors.Is(err, service.ErrPromoNotFound):
		return "Промокод не найден или неверен."
	case errors.Is(err, service.ErrPromoDisabled):
		return "Этот промокод отключён."
	case errors.Is(err, service.ErrPromoExhausted):
		return "У этого промокода закончилось количество использований."
	default:
		return "Не удалось применить промокод."
	}
}
