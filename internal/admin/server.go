package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/tgshopbot/internal/service"
)

type Server struct {
	addr      string
	username  string
	password  string
	log       *slog.Logger
	users     *service.UserService
	catalog   *service.CatalogService
	promos    *service.PromoService
	purchases *service.PurchaseService
	bot       *tgbotapi.BotAPI
	router    *chi.Mux
}

func NewServer(addr, username, password string, log *slog.Logger, users *service.UserService, catalog *service.CatalogService, promos *service.PromoService, purchases *service.PurchaseService, bot *tgbotapi.BotAPI) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:      addr,
		username:  username,
		password:  password,
		log:       log,
		users:     users,
		catalog:   catalog,
		promos:    promos,
		purchases: purchases,
		bot:       bot,
		router:    r,
	}
	r.Post("/webhook/cryptopay", s.handleCryptoPayWebhook)
	r.Group(func(protected chi.Router) {
		protected.Use(s.basicAuthMiddleware())
		protected.Post("/broadcast", s.handleBroadcast)
		protected.Route("/promo-codes", func(r chi.Router) {
			r.Get("/", s.handleListPromos)
			r.Post("/", s.handleCreatePromo)
			r.Post("/{id}/toggle", s.handleTogglePromo)
			r.Delete("/{id}", s.handleDeletePromo)
		})
		protected.Route("/categories", func(r chi.Router) {
			r.Get("/", s.handleListCategories)
			r.Post("/", s.handleCreateCategory)
			r.Delete("/{name}", s.handleDeleteCategory)
		})
		protected.Route("/products", func(r chi.Router) {
			r.Get("/", s.handleListProducts)
			r.Delete("/{id}", s.handleDeleteProduct)
		})
	})
	return s
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("admin shutdown error", "err", err)
		}
	}()

	s.log.Info("admin panel listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin listen: %w", err)
	}
	return nil
}

// flexID accepts an order id sent either as a JSON number or a string,
// providers are not consistent about this.
type flexID int64

func (f *flexID) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("order id %q: %w", raw, err)
	}
	*f = flexID(v)
	return nil
}

type cryptoPayWebhookRequest struct {
	Status  string `json:"status"`
	OrderID flexID `json:"order_id"`
}

// handleCryptoPayWebhook is the public endpoint for payment status callbacks.
// A "paid" status marks the purchase paid; delivery is handled by the
// reconciliation loop.
func (s *Server) handleCryptoPayWebhook(w http.ResponseWriter, r *http.Request) {
	var req cryptoPayWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.OrderID <= 0 {
		http.Error(w, "order_id required", http.StatusBadRequest)
		return
	}
	if req.Status != "paid" {
		s.log.Info("webhook ignored", "status", req.Status, "order_id", int64(req.OrderID))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	}

	if err := s.purchases.ConfirmFromWebhook(r.Context(), int64(req.OrderID)); err != nil {
		if errors.Is(err, service.ErrPurchaseNotFound) {
			http.Error(w, "purchase not found", http.StatusNotFound)
			return
		}
		s.log.Error("cryptopay webhook", "order_id", int64(req.OrderID), "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type broadcastRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	ids, err := s.users.ListTelegramIDs(ctx)
	if err != nil {
		s.log.Error("list telegram ids", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	count := 0
	for _, id := range ids {
		msg := tgbotapi.NewMessage(id, req.Message)
		if _, err := s.bot.Send(msg); err != nil {
			s.log.Error("send broadcast", "user", id, "err", err)
			continue
		}
		count++
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"sent":  count,
		"total": len(ids),
	})
}

func (s *Server) handleListPromos(w http.ResponseWriter, r *http.Request) {
	promos, err := s.promos.ListPromos(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, promos)
}

type promoRequest struct {
	Code   string `json:"code"`
	Amount int    `json:"amount"`
	Uses   int    `json:"uses"`
}

func (s *Server) handleCreatePromo(w http.ResponseWriter, r *http.Request) {
	var req promoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Code == "" || req.Amount <= 0 || req.Uses < 0 {
		http.Error(w, "code and positive amount required", http.StatusBadRequest)
		return
	}
	promo, err := s.promos.CreatePromo(r.Context(), req.Code, req.Amount, req.Uses)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, promo)
}

func (s *Server) handleTogglePromo(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	active, err := s.promos.TogglePromo(r.Context(), id)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"id": id, "active": active})
}

func (s *Server) handleDeletePromo(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := s.promos.DeletePromo(r.Context(), id); err != nil {
		s.badRequest(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.catalog.Categories(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, categories)
}

type categoryRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}
	category, err := s.catalog.EnsureCategory(r.Context(), req.Name)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, category)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(chi.URLParam(r, "name"))
	if name == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}
	err := s.catalog.DeleteCategoryByName(r.Context(), name)
	switch {
	case errors.Is(err, service.ErrCategoryNotFound):
		http.Error(w, "category not found", http.StatusNotFound)
	case err != nil:
		s.internalError(w, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.catalog.Products(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, products)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := s.catalog.DeleteProduct(r.Context(), id); err != nil {
		s.internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != s.username || pass != s.password {
				w.Header().Set("WWW-Authenticate", `Basic realm="tgshopbot"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("admin handler error", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func parseID(value string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(value), 10, 64)
}
