package mailer

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// 件名
const (
	SubjectWelcome       = "Welcome to DH-Commerce!"
	SubjectTradeRequest  = "New Trade Request - DH Commerce"
	SubjectTradeAccepted = "Trade Accepted!"
	SubjectRatingRequest = "Rate Your Trade Experience"
	SubjectTest          = "DH-Commerce Email Test"
)

// Message は送信可能な件名とHTML本文の組。
type Message struct {
	Subject string
	HTML    string
}

// WelcomeData はウェルカムメールの差し込みデータ。
type WelcomeData struct {
	Name     string
	Username string
	Email    string
}

// TradeRequestData は取引リクエスト通知の差し込みデータ。
type TradeRequestData struct {
	FromUser  string
	FoodName  string
	OfferFood string
	TradeTime string
	TradeDate string
	Location  string
	AppURL    string
}

// TradeAcceptedData は取引承認通知の差し込みデータ。
type TradeAcceptedData struct {
	FromUser  string
	FoodName  string
	TradeTime string
	TradeDate string
	Location  string
}

// ReminderData は取引リマインダーの差し込みデータ。
// PartnerNameは出品者向けの文面でのみ使用する。
type ReminderData struct {
	FoodName    string
	PartnerName string
	TradeTime   string
	TradeDate   string
	Location    string
	Lead        time.Duration
}

// RatingRequestData は評価依頼メールの差し込みデータ。
type RatingRequestData struct {
	PartnerName string
	Link        string
}

// TestData はテストメールの差し込みデータ。
type TestData struct {
	Timestamp time.Time
	Host      string
}

// WelcomeEmail はウェルカムメールを組み立てる。
func WelcomeEmail(d WelcomeData) (Message, error) {
	return render("welcome.html", SubjectWelcome, d)
}

// TradeRequestEmail は取引リクエスト通知を組み立てる。
func TradeRequestEmail(d TradeRequestData) (Message, error) {
	return render("trade_request.html", SubjectTradeRequest, d)
}

// TradeAcceptedEmail は取引承認通知を組み立てる。
func TradeAcceptedEmail(d TradeAcceptedData) (Message, error) {
	return render("trade_accepted.html", SubjectTradeAccepted, d)
}

// ReminderBuyerEmail は申請者向けのリマインダーを組み立てる。
func ReminderBuyerEmail(d ReminderData) (Message, error) {
	return render("reminder_buyer.html", reminderSubject(d.Lead), reminderView(d))
}

// ReminderSellerEmail は出品者向けのリマインダーを組み立てる。
func ReminderSellerEmail(d ReminderData) (Message, error) {
	return render("reminder_seller.html", reminderSubject(d.Lead), reminderView(d))
}

// RatingRequestEmail は評価依頼メールを組み立てる。
func RatingRequestEmail(d RatingRequestData) (Message, error) {
	return render("rating_request.html", SubjectRatingRequest, struct {
		PartnerName string
		Link        template.URL
	}{d.PartnerName, template.URL(d.Link)})
}

// TestEmail は疎通確認用のメールを組み立てる。
func TestEmail(d TestData) (Message, error) {
	return render("test.html", SubjectTest, struct {
		Timestamp string
		Host      string
	}{d.Timestamp.Format(time.RFC3339), d.Host})
}

func render(name, subject string, data any) (Message, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return Message{}, fmt.Errorf("failed to render %s: %w", name, err)
	}
	return Message{Subject: subject, HTML: buf.String()}, nil
}

type reminderViewData struct {
	FoodName    string
	PartnerName string
	TradeTime   string
	TradeDate   string
	Location    string
	Lead        string
}

func reminderView(d ReminderData) reminderViewData {
	return reminderViewData{
		FoodName:    d.FoodName,
		PartnerName: d.PartnerName,
		TradeTime:   d.TradeTime,
		TradeDate:   d.TradeDate,
		Location:    d.Location,
		Lead:        humanizeLead(d.Lead),
	}
}

// reminderSubject はリードタイムを含むリマインダーの件名を返す。
// 例: "Trade Reminder - 1 Hour to Go!"
func reminderSubject(lead time.Duration) string {
	return fmt.Sprintf("Trade Reminder - %s to Go!", titleUnit(humanizeLead(lead)))
}

// humanizeLead はリードタイムを "1 hour" や "30 minutes" の形式にする。
func humanizeLead(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute:
		return plural(int(d/time.Minute), "minute")
	default:
		return plural(int(d/time.Second), "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// titleUnit は "1 hour" を "1 Hour" にする。
func titleUnit(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' && i+1 < len(s) && s[i+1] >= 'a' && s[i+1] <= 'z' {
			return s[:i+1] + string(s[i+1]-'a'+'A') + s[i+2:]
		}
	}
	return s
}
