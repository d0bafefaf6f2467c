package handler

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/dhcommerce/internal/model"
	"github.com/hitoshi/dhcommerce/internal/rating"
)

//go:embed templates/*.html
var pageFS embed.FS

var pages = template.Must(template.ParseFS(pageFS, "templates/*.html"))

// maxFormBytes は評価フォームのボディ上限。
const maxFormBytes = 16 << 10

// RatingSubmitter は評価ハンドラーが必要とするサービスインターフェース。
type RatingSubmitter interface {
	Submit(ctx context.Context, in rating.SubmitInput) (*model.Rating, error)
}

// RatingLinkVerifier は評価リンクのトークン検証インターフェース。auth.RatingLinksが満たす。
type RatingLinkVerifier interface {
	Verify(token, transactionID string, role model.RatingRole) error
}

// RatingHandler はメールの評価リンクから開かれるHTMLフォームのハンドラー。
type RatingHandler struct {
	service RatingSubmitter
	links   RatingLinkVerifier
	homeURL string
}

// NewRatingHandler はRatingHandlerを生成する。homeURLは完了ページからの戻り先。
func NewRatingHandler(service RatingSubmitter, links RatingLinkVerifier, homeURL string) *RatingHandler {
	return &RatingHandler{service: service, links: links, homeURL: homeURL}
}

type ratingFormView struct {
	Action      string
	Token       string
	Counterpart string
}

type ratingPageView struct {
	Title   string
	Message string
	HomeURL string
}

// Form は評価フォームを表示する。
// GET /rate/{transactionId}/{role}
func (h *RatingHandler) Form(w http.ResponseWriter, r *http.Request) {
	transactionID, role, ok := h.authorize(w, r, r.URL.Query().Get("token"))
	if !ok {
		return
	}

	counterpart := "seller"
	if role == model.RoleSeller {
		counterpart = "buyer"
	}
	h.render(w, http.StatusOK, "rating_form.html", ratingFormView{
		Action:      "/rate/" + url.PathEscape(transactionID) + "/" + string(role),
		Token:       r.URL.Query().Get("token"),
		Counterpart: counterpart,
	})
}

// Submit は評価フォームの送信を受け付ける。
// POST /rate/{transactionId}/{role}
func (h *RatingHandler) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		h.renderError(w, http.StatusBadRequest, "Invalid Request", "The rating form could not be read.")
		return
	}

	transactionID, role, ok := h.authorize(w, r, r.FormValue("token"))
	if !ok {
		return
	}

	_, err := h.service.Submit(r.Context(), rating.SubmitInput{
		TransactionID: transactionID,
		Role:          string(role),
		Rating:        r.PostFormValue("rating"),
		Comment:       r.PostFormValue("comment"),
	})
	if err != nil {
		h.renderServiceError(w, err)
		return
	}

	h.render(w, http.StatusOK, "rating_thanks.html", ratingPageView{HomeURL: h.homeURL})
}

// authorize はパスの立場を検証し、署名付きリンクが有効な場合はトークンを確認する。
// 失敗時はエラーページを書き込んでfalseを返す。
func (h *RatingHandler) authorize(w http.ResponseWriter, r *http.Request, token string) (string, model.RatingRole, bool) {
	transactionID := chi.URLParam(r, "transactionId")
	role, ok := model.ParseRatingRole(chi.URLParam(r, "role"))
	if !ok {
		h.renderServiceError(w, model.NewInvalidRoleError(chi.URLParam(r, "role")))
		return "", "", false
	}

	if err := h.links.Verify(token, transactionID, role); err != nil {
		slog.Warn("rating link rejected",
			slog.String("transaction_id", transactionID),
			slog.String("role", string(role)),
			slog.String("error", err.Error()),
		)
		h.renderError(w, http.StatusUnauthorized, "Link Expired or Invalid",
			"This rating link is not valid. Please use the link from your most recent email.")
		return "", "", false
	}
	return transactionID, role, true
}

// renderServiceError はサービスのエラーをHTMLのエラーページとして返す。
func (h *RatingHandler) renderServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		slog.Error("rating submission failed", slog.String("error", err.Error()))
		h.renderError(w, http.StatusInternalServerError, "Something Went Wrong",
			"We could not save your rating. Please try again later.")
		return
	}

	status := mapAPIErrorToHTTPStatus(apiErr)
	switch apiErr.Code {
	case model.ErrCodeTransactionNotFound:
		h.renderError(w, status, "Trade Not Found", "We could not find this trade.")
	case model.ErrCodeInvalidRating:
		h.renderError(w, status, "Invalid Rating", "Please choose a rating between 1 and 5 stars.")
	case model.ErrCodeInvalidRole:
		h.renderError(w, status, "Invalid Link", "This rating link is not valid.")
	case model.ErrCodeAlreadyRated:
		h.renderError(w, status, "Already Rated", "You have already rated this trade. Thank you!")
	case model.ErrCodeDatabaseUnavailable:
		h.renderError(w, status, "Service Unavailable", "Ratings are temporarily unavailable. Please try again in a few minutes.")
	default:
		h.renderError(w, status, "Something Went Wrong", apiErr.Message)
	}
}

func (h *RatingHandler) renderError(w http.ResponseWriter, status int, title, message string) {
	h.render(w, status, "rating_error.html", ratingPageView{Title: title, Message: message, HomeURL: h.homeURL})
}

func (h *RatingHandler) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		slog.Error("failed to render page", slog.String("template", name), slog.String("error", err.Error()))
	}
}
