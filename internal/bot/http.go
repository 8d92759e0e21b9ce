package bot

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"medbot/internal/conversation"
	"medbot/internal/models"
	"medbot/web"
)

const initDataMaxAge = 24 * time.Hour

// HTTPServer handles HTTP requests for the Mini App
type HTTPServer struct {
	bot         *Bot
	webhookMode bool // If false (polling mode), skip authentication for easier local dev
	now         func() time.Time
}

// NewHTTPServer creates a new HTTP server for the Mini App
func NewHTTPServer(bot *Bot, webhookMode bool) *HTTPServer {
	return &HTTPServer{
		bot:         bot,
		webhookMode: webhookMode,
		now:         time.Now,
	}
}

// RegisterRoutes registers Mini App routes on the provided mux
func (hs *HTTPServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/web-app", hs.handleIndex)

	mux.HandleFunc("/api/drugs", hs.authMiddleware(hs.handleDrug))
	mux.HandleFunc("/api/drugs/search", hs.authMiddleware(hs.handleSearch))
}

// drugView is the public projection of a drug record; complaints stay internal
type drugView struct {
	Code             string `json:"code"`
	Name             string `json:"name"`
	ActiveIngredient string `json:"active_ingredient"`
	Description      string `json:"description"`
	Photo            []byte `json:"photo,omitempty"`
}

func newDrugView(d models.DrugRecord, withPhoto bool) drugView {
	v := drugView{
		Code:             d.Code,
		Name:             d.Name,
		ActiveIngredient: d.ActiveIngredient,
		Description:      d.Description,
	}
	if withPhoto {
		v.Photo = d.Photo
	}
	return v
}

// handleIndex serves the Mini App HTML from embedded filesystem
func (hs *HTTPServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/web-app" {
		http.NotFound(w, r)
		return
	}

	content, err := web.Content.ReadFile("index.html")
	if err != nil {
		hs.bot.logger.Error("Failed to read embedded index.html", zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(content)
}

// validateTelegramInitData validates the Telegram Mini App initData and returns the user id
func (hs *HTTPServer) validateTelegramInitData(initData string) (int64, error) {
	if initData == "" {
		return 0, errors.New("missing initData")
	}

	values, err := url.ParseQuery(initData)
	if err != nil {
		return 0, fmt.Errorf("invalid initData format: %w", err)
	}

	hash := values.Get("hash")
	if hash == "" {
		return 0, errors.New("missing hash in initData")
	}
	values.Del("hash")

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var dataCheckString strings.Builder
	for i, k := range keys {
		if i > 0 {
			dataCheckString.WriteByte('\n')
		}
		dataCheckString.WriteString(k)
		dataCheckString.WriteByte('=')
		dataCheckString.WriteString(values.Get(k))
	}

	secretKey := hmac.New(sha256.New, []byte("WebAppData"))
	secretKey.Write([]byte(hs.bot.token))
	secret := secretKey.Sum(nil)

	h := hmac.New(sha256.New, secret)
	h.Write([]byte(dataCheckString.String()))
	calculatedHash := hex.EncodeToString(h.Sum(nil))

	if !hmac.Equal([]byte(calculatedHash), []byte(hash)) {
		return 0, errors.New("invalid hash")
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return 0, errors.New("missing auth_date")
	}
	if hs.now().Sub(time.Unix(authDate, 0)) > initDataMaxAge {
		return 0, errors.New("initData is too old")
	}

	userStr := values.Get("user")
	if userStr == "" {
		return 0, errors.New("missing user data")
	}

	var userData struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(userStr), &userData); err != nil {
		return 0, fmt.Errorf("invalid user data: %w", err)
	}
	if userData.ID == 0 {
		return 0, errors.New("missing user id")
	}

	return userData.ID, nil
}

// authMiddleware validates Telegram Mini App authentication and rejects banned users.
// In polling mode (webhookMode=false), authentication is skipped for easier local development.
func (hs *HTTPServer) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !hs.webhookMode {
			hs.bot.logger.Debug("Skipping authentication (polling mode)",
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
			)
			next(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "tma ") {
			hs.bot.logger.Warn("Missing or invalid authorization header")
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		userID, err := hs.validateTelegramInitData(strings.TrimPrefix(authHeader, "tma "))
		if err != nil {
			hs.bot.logger.Warn("Failed to validate initData",
				zap.Error(err),
				zap.String("remote_addr", r.RemoteAddr),
			)
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		banned, err := hs.bot.engine.IsBanned(r.Context(), userID)
		if err != nil {
			hs.bot.logger.Error("Failed to check ban", zap.Error(err), zap.Int64("user_id", userID))
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		if banned {
			hs.bot.logger.Info("Rejected banned user", zap.Int64("user_id", userID))
			writeError(w, http.StatusForbidden, "Forbidden")
			return
		}

		hs.bot.logger.Debug("Authenticated request",
			zap.Int64("user_id", userID),
			zap.String("path", r.URL.Path),
		)
		next(w, r)
	}
}

// handleDrug looks a drug up by barcode
func (hs *HTTPServer) handleDrug(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" {
		writeError(w, http.StatusBadRequest, "Missing code")
		return
	}

	result, err := hs.bot.engine.Lookup(r.Context(), code)
	if err != nil {
		hs.bot.logger.Error("Failed to look up drug", zap.Error(err), zap.String("barcode", code))
		writeError(w, http.StatusInternalServerError, "Failed to fetch drug")
		return
	}
	if result.Outcome == conversation.NotFound {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	writeJSON(w, http.StatusOK, newDrugView(*result.Drug, true))
}

// handleSearch returns drugs matching q by name, ingredient or description
func (hs *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "Missing query")
		return
	}

	drugs, err := hs.bot.engine.Search(r.Context(), query)
	if err != nil {
		hs.bot.logger.Error("Failed to search drugs", zap.Error(err), zap.String("query", query))
		writeError(w, http.StatusInternalServerError, "Failed to search drugs")
		return
	}

	views := make([]drugView, 0, len(drugs))
	for _, d := range drugs {
		views = append(views, newDrugView(d, false))
	}
	writeJSON(w, http.StatusOK, views)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
