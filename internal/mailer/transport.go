// Package mailer はメールのレンダリングと送信を提供する。
// トランスポートは不透明な外部コラボレータとして扱い、
// 送信成功時にプロバイダのメッセージIDを返す。
package mailer

import (
	"context"
	"fmt"

	gomail "github.com/wneessen/go-mail"
)

// Message は送信するメール1通を表す。
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Transport はメール送信のインターフェース。
// テスト時にモックへ差し替え可能。
type Transport interface {
	// Send はメールを1通送信し、プロバイダのメッセージIDを返す。
	// プロバイダがIDを返さない場合は空文字列を返す。
	Send(ctx context.Context, msg Message) (string, error)
}

// SMTPConfig はSMTPトランスポートの接続設定を保持する。
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SMTPTransport はSMTP経由でメールを送信するTransport実装。
type SMTPTransport struct {
	client *gomail.Client
}

// NewSMTPTransport はSMTPTransportを生成する。
// STARTTLS必須・PLAIN認証で接続する。
func NewSMTPTransport(cfg SMTPConfig) (*SMTPTransport, error) {
	client, err := gomail.NewClient(cfg.Host,
		gomail.WithPort(cfg.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(cfg.Username),
		gomail.WithPassword(cfg.Password),
		gomail.WithTLSPortPolicy(gomail.TLSMandatory),
	)
	if err != nil {
		return nil, fmt.Errorf("SMTPクライアントの生成に失敗しました: %w", err)
	}
	return &SMTPTransport{client: client}, nil
}

// Send はメールを1通送信し、生成されたメッセージIDを返す。
func (t *SMTPTransport) Send(ctx context.Context, msg Message) (string, error) {
	m := gomail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return "", fmt.Errorf("差出人アドレスが不正です: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return "", fmt.Errorf("宛先アドレスが不正です: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetMessageID()
	m.SetBodyString(gomail.TypeTextHTML, msg.HTML)

	if err := t.client.DialAndSendWithContext(ctx, m); err != nil {
		return "", fmt.Errorf("メールの送信に失敗しました: %w", err)
	}
	return m.GetMessageID(), nil
}

// compile-time interface check
var _ Transport = (*SMTPTransport)(nil)
