package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/dhcommerce/internal/mailer"
	"github.com/hitoshi/dhcommerce/internal/model"
	"github.com/hitoshi/dhcommerce/internal/security"
)

// EmailHandlerConfig は単発通知エンドポイントの設定。
type EmailHandlerConfig struct {
	TestRecipient string // GET /api/test-emailの送信先（EMAIL_USER）
	SMTPHost      string
	TradeLocation string
	DefaultAppURL string // app_url未指定時のリンク先
}

// EmailHandler はフロントエンドから呼ばれる単発通知のHTTPハンドラー。
// 送信結果はsuccessとして返し、送信失敗をHTTPエラーにはしない。
type EmailHandler struct {
	transport mailer.Transport
	sanitizer security.TextSanitizer
	config    EmailHandlerConfig
	now       func() time.Time
}

// NewEmailHandler はEmailHandlerを生成する。
func NewEmailHandler(transport mailer.Transport, sanitizer security.TextSanitizer, config EmailHandlerConfig) *EmailHandler {
	return &EmailHandler{
		transport: transport,
		sanitizer: sanitizer,
		config:    config,
		now:       time.Now,
	}
}

type welcomeEmailRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

type tradeRequestEmailRequest struct {
	ToEmail   string `json:"to_email"`
	FromUser  string `json:"from_user"`
	FoodName  string `json:"food_name"`
	OfferFood string `json:"offer_food"`
	TradeTime string `json:"trade_time"`
	TradeDate string `json:"trade_date"`
	AppURL    string `json:"app_url"`
}

type tradeAcceptedEmailRequest struct {
	ToEmail   string `json:"to_email"`
	FromUser  string `json:"from_user"`
	FoodName  string `json:"food_name"`
	TradeTime string `json:"trade_time"`
	TradeDate string `json:"trade_date"`
}

type sendResponse struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// SendWelcome は新規登録ユーザーにウェルカムメールを送る。
// POST /api/send_welcome_email
func (h *EmailHandler) SendWelcome(w http.ResponseWriter, r *http.Request) {
	var req welcomeEmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, errInvalidRequest)
		return
	}
	to := strings.TrimSpace(req.Email)
	if to == "" {
		handleServiceError(w, model.NewValidationError("Email required"))
		return
	}

	name := h.sanitizer.Sanitize(req.Name)
	if name == "" {
		name = "User"
	}
	msg, err := mailer.WelcomeEmail(mailer.WelcomeData{
		Name:     name,
		Username: h.sanitizer.Sanitize(req.Username),
		Email:    to,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.send(w, r, to, msg, "Welcome email sent")
}

// SendTradeRequest は取引リクエストの通知を送る。
// POST /api/send_trade_request
func (h *EmailHandler) SendTradeRequest(w http.ResponseWriter, r *http.Request) {
	var req tradeRequestEmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, errInvalidRequest)
		return
	}
	to := strings.TrimSpace(req.ToEmail)
	fromUser := h.sanitizer.Sanitize(req.FromUser)
	foodName := h.sanitizer.Sanitize(req.FoodName)
	if to == "" || fromUser == "" || foodName == "" {
		handleServiceError(w, model.NewValidationError("Missing required fields"))
		return
	}

	msg, err := mailer.TradeRequestEmail(mailer.TradeRequestData{
		FromUser:  fromUser,
		FoodName:  foodName,
		OfferFood: h.sanitizer.Sanitize(req.OfferFood),
		TradeTime: h.sanitizer.Sanitize(req.TradeTime),
		TradeDate: h.sanitizer.Sanitize(req.TradeDate),
		Location:  h.config.TradeLocation,
		AppURL:    h.appURL(req.AppURL),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.send(w, r, to, msg, "Trade request email sent")
}

// SendTradeAccepted は取引承認の通知を送る。
// POST /api/send_trade_accepted
func (h *EmailHandler) SendTradeAccepted(w http.ResponseWriter, r *http.Request) {
	var req tradeAcceptedEmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, errInvalidRequest)
		return
	}
	to := strings.TrimSpace(req.ToEmail)
	if to == "" {
		handleServiceError(w, model.NewValidationError("Missing required fields"))
		return
	}

	msg, err := mailer.TradeAcceptedEmail(mailer.TradeAcceptedData{
		FromUser:  h.sanitizer.Sanitize(req.FromUser),
		FoodName:  h.sanitizer.Sanitize(req.FoodName),
		TradeTime: h.sanitizer.Sanitize(req.TradeTime),
		TradeDate: h.sanitizer.Sanitize(req.TradeDate),
		Location:  h.config.TradeLocation,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.send(w, r, to, msg, "Trade accepted email sent")
}

// SendTest はEMAIL_USER宛てにテストメールを送る。送信が受理されなければ500。
// GET /api/test-email
func (h *EmailHandler) SendTest(w http.ResponseWriter, r *http.Request) {
	if h.config.TestRecipient == "" {
		handleServiceError(w, model.NewValidationError("No test email configured: set EMAIL_USER"))
		return
	}

	now := h.now().UTC()
	msg, err := mailer.TestEmail(mailer.TestData{Timestamp: now, Host: h.config.SMTPHost})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if !h.transport.Send(r.Context(), h.config.TestRecipient, msg.Subject, msg.HTML) {
		writeJSON(w, http.StatusInternalServerError, sendResponse{
			Success: false,
			Message: "Failed to send test email",
		})
		return
	}
	writeJSON(w, http.StatusOK, sendResponse{
		Success:   true,
		Message:   "Test email sent to " + h.config.TestRecipient,
		Timestamp: &now,
	})
}

// send はメッセージを送信し、送信結果を{success, message}で返す。
func (h *EmailHandler) send(w http.ResponseWriter, r *http.Request, to string, msg mailer.Message, okMessage string) {
	if !h.transport.Send(r.Context(), to, msg.Subject, msg.HTML) {
		slog.Warn("notification email was not accepted",
			slog.String("path", r.URL.Path),
			slog.String("subject", msg.Subject),
		)
		writeJSON(w, http.StatusOK, sendResponse{Success: false, Message: "Failed to send email"})
		return
	}
	writeJSON(w, http.StatusOK, sendResponse{Success: true, Message: okMessage})
}

// appURL はhttp(s)の絶対URLのみを受け付け、それ以外は既定のURLを返す。
func (h *EmailHandler) appURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return h.config.DefaultAppURL
	}
	return u.String()
}
