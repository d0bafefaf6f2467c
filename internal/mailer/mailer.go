// Package mailer はSMTP経由のメール送信を提供する。
//
// 送信結果はboolで返し、エラーを呼び出し元に伝播しない。trueはSMTPサーバーが
// メッセージを受理したことを意味し、配送完了を保証するものではない。
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"
	"golang.org/x/time/rate"

	"github.com/hitoshi/dhcommerce/internal/metrics"
)

// fromName は送信元の表示名。
const fromName = "DH-Commerce"

// Transport はメール送信の抽象。
type Transport interface {
	// Send はHTMLメールを1通送信し、SMTPサーバーに受理された場合にtrueを返す。
	// 認証情報の未設定やタイムアウトを含むすべての失敗はfalseとして返す。
	Send(ctx context.Context, to, subject, htmlBody string) bool
}

// SMTPConfig はSMTP接続の設定。
type SMTPConfig struct {
	Host          string
	Port          int
	Username      string
	Password      string
	UseTLS        bool
	Timeout       time.Duration
	RatePerMinute int
}

// SMTPMailer はgo-mailを使用したTransportの実装。
type SMTPMailer struct {
	cfg     SMTPConfig
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics metrics.MetricsCollector

	// deliver はメッセージを実際に送出する。テストで差し替える。
	deliver func(ctx context.Context, msg *mail.Msg) error
}

// NewSMTPMailer はSMTPMailerを生成する。
// RatePerMinuteが0以下の場合は送信レートを制限しない。
func NewSMTPMailer(cfg SMTPConfig, logger *slog.Logger, mc metrics.MetricsCollector) *SMTPMailer {
	m := &SMTPMailer{
		cfg:     cfg,
		limiter: newSendLimiter(cfg.RatePerMinute),
		logger:  logger,
		metrics: mc,
	}
	m.deliver = m.dialAndSend
	return m
}

// Dedicated は同じSMTP設定で独立した送信レート枠を持つSMTPMailerを返す。
// 公開APIからの送信が通知スイープの送信枠を消費しないよう、呼び出し元ごとに使い分ける。
func (m *SMTPMailer) Dedicated() *SMTPMailer {
	d := &SMTPMailer{
		cfg:     m.cfg,
		limiter: newSendLimiter(m.cfg.RatePerMinute),
		logger:  m.logger,
		metrics: m.metrics,
	}
	d.deliver = d.dialAndSend
	return d
}

func newSendLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
}

// Configured は送信に必要な認証情報が揃っている場合にtrueを返す。
func (m *SMTPMailer) Configured() bool {
	return m.cfg.Username != "" && m.cfg.Password != ""
}

// Send はHTMLメールを送信する。
func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) bool {
	if !m.Configured() {
		m.logger.Warn("メール認証情報が未設定のため送信をスキップしました",
			slog.String("to", to),
			slog.String("subject", subject),
		)
		m.record(metrics.EmailNotConfigured)
		return false
	}

	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}

	if err := m.limiter.Wait(ctx); err != nil {
		m.logger.Error("送信レート待機中に中断されました",
			slog.String("to", to),
			slog.String("error", err.Error()),
		)
		m.record(metrics.EmailFailed)
		return false
	}

	msg, err := m.buildMessage(to, subject, htmlBody)
	if err != nil {
		m.logger.Error("メールの組み立てに失敗しました",
			slog.String("to", to),
			slog.String("error", err.Error()),
		)
		m.record(metrics.EmailFailed)
		return false
	}

	start := time.Now()
	if err := m.deliver(ctx, msg); err != nil {
		m.logger.Error("メール送信に失敗しました",
			slog.String("to", to),
			slog.String("subject", subject),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
			slog.String("error", err.Error()),
		)
		m.record(metrics.EmailFailed)
		return false
	}

	m.logger.Info("メールを送信しました",
		slog.String("to", to),
		slog.String("subject", subject),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	m.record(metrics.EmailAccepted)
	return true
}

func (m *SMTPMailer) record(result string) {
	if m.metrics != nil {
		m.metrics.RecordEmailSend(result)
	}
}

// buildMessage はHTML本文とプレーンテキストの代替パートを持つメッセージを組み立てる。
func (m *SMTPMailer) buildMessage(to, subject, htmlBody string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.FromFormat(fromName, m.cfg.Username); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)
	msg.AddAlternativeString(mail.TypeTextPlain, PlainText(htmlBody))
	return msg, nil
}

// dialAndSend はSMTPサーバーに接続してメッセージを送出する。
func (m *SMTPMailer) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	policy := mail.NoTLS
	if m.cfg.UseTLS {
		policy = mail.TLSMandatory
	}

	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
		mail.WithTLSPolicy(policy),
	}
	if m.cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(m.cfg.Timeout))
	}

	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send via %s:%d: %w", m.cfg.Host, m.cfg.Port, err)
	}
	return nil
}

// compile-time interface check
var _ Transport = (*SMTPMailer)(nil)
