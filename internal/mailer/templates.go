package mailer

import (
	"fmt"
	"html/template"
	"strings"
	"time"
)

// FacilityAvailability はメールに載せる施設1件分の空き情報を表す。
type FacilityAvailability struct {
	ID      int64
	Title   string
	Address string
	MapURL  string
	Slots   []string
}

// Email はレンダリング済みのメール（件名とHTML本文）を表す。
type Email struct {
	Subject string
	HTML    string
}

// dailyAlertData は日次アラートテンプレートの埋め込みデータ。
type dailyAlertData struct {
	Facilities     []FacilityAvailability
	DaysRemaining  int
	DaysLabel      string
	PreferencesURL string
	UnsubscribeURL string
}

// welcomeData はウェルカムメールテンプレートの埋め込みデータ。
type welcomeData struct {
	Name           string
	PreferencesURL string
	ExpiresAt      string
	ExtensionDays  int
}

var dailyAlertTemplate = template.Must(template.New("daily_alert").Parse(`<!DOCTYPE html>
<html>
  <head>
    <meta http-equiv="Content-Type" content="text/html; charset=UTF-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1.0"/>
    <title>Court Availability Alert</title>
  </head>
  <body style="margin: 0; padding: 0; font-family: Arial, sans-serif; background-color: #f8fafc;">
    <table width="100%" cellpadding="0" cellspacing="0" bgcolor="#f8fafc">
      <tr>
        <td align="center" style="padding: 20px 0;">
          <table width="600" cellpadding="0" cellspacing="0" bgcolor="#ffffff" style="border: 1px solid #e5e7eb;">
            <tr>
              <td bgcolor="#0c372b" style="padding: 32px;">
                <h1 style="color: #ffffff; margin: 0; font-size: 28px;">First Serve Seattle</h1>
                <p style="color: #ffffff; margin: 8px 0 0 0; font-size: 15px;">Your courts have open slots today</p>
              </td>
            </tr>
            <tr>
              <td style="padding: 32px;">
{{range .Facilities}}                <table width="100%" cellpadding="0" cellspacing="0" bgcolor="#f9fafb" style="border: 1px solid #e5e7eb; margin-bottom: 16px;">
                  <tr>
                    <td style="padding: 20px;">
                      <h3 style="color: #111827; font-size: 18px; margin: 0 0 4px 0;">{{.Title}}</h3>
                      <p style="color: #6b7280; font-size: 14px; margin: 0 0 12px 0;">{{.Address}}</p>
{{range .Slots}}                      <p style="color: #065f46; font-size: 15px; font-weight: bold; margin: 0 0 4px 0;">{{.}}</p>
{{end}}                      <p style="margin: 12px 0 0 0;">
                        <a href="{{.MapURL}}" style="color: #0c372b; font-size: 14px;">Get directions</a>
                      </p>
                    </td>
                  </tr>
                </table>
{{end}}                <p style="color: #6b7280; font-size: 14px; margin: 24px 0 0 0;">
                  Your free alerts trial has {{.DaysRemaining}} {{.DaysLabel}} left.
                </p>
              </td>
            </tr>
            <tr>
              <td style="padding: 0 32px 32px 32px;">
                <p style="color: #9ca3af; font-size: 12px; margin: 0;">
                  <a href="{{.PreferencesURL}}" style="color: #6b7280;">Edit preferences</a> &middot;
                  <a href="{{.UnsubscribeURL}}" style="color: #6b7280;">Unsubscribe</a>
                </p>
              </td>
            </tr>
          </table>
        </td>
      </tr>
    </table>
  </body>
</html>
`))

var welcomeTemplate = template.Must(template.New("welcome").Parse(`<!DOCTYPE html>
<html>
  <head>
    <meta http-equiv="Content-Type" content="text/html; charset=UTF-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1.0"/>
    <title>Welcome to Court Alerts</title>
  </head>
  <body style="margin: 0; padding: 0; font-family: Arial, sans-serif; background-color: #f8fafc;">
    <table width="100%" cellpadding="0" cellspacing="0" bgcolor="#f8fafc">
      <tr>
        <td align="center" style="padding: 20px 0;">
          <table width="600" cellpadding="0" cellspacing="0" bgcolor="#ffffff" style="border: 1px solid #e5e7eb;">
            <tr>
              <td bgcolor="#0c372b" style="padding: 32px;">
                <h1 style="color: #ffffff; margin: 0; font-size: 28px;">First Serve Seattle</h1>
                <p style="color: #ffffff; margin: 8px 0 0 0; font-size: 15px;">Daily Court Availability Alerts</p>
              </td>
            </tr>
            <tr>
              <td style="padding: 32px;">
                <h2 style="color: #111827; font-size: 24px; margin: 0 0 16px 0;">Your court alerts are on!{{if .Name}} Welcome, {{.Name}}.{{end}}</h2>
                <p style="color: #374151; font-size: 16px; line-height: 24px; margin: 0 0 16px 0;">
                  For the next {{.ExtensionDays}} days (until {{.ExpiresAt}}), we&#39;ll email you each morning
                  when your selected courts have open slots in your preferred time window.
                </p>
                <p style="color: #374151; font-size: 16px; line-height: 24px; margin: 0 0 24px 0;">
                  Pick your courts, days, and times to start receiving alerts:
                </p>
                <table cellpadding="0" cellspacing="0">
                  <tr>
                    <td bgcolor="#0c372b" style="border-radius: 6px;">
                      <a href="{{.PreferencesURL}}" style="display: inline-block; padding: 12px 24px; color: #ffffff; font-size: 16px; font-weight: bold; text-decoration: none;">Set your preferences</a>
                    </td>
                  </tr>
                </table>
              </td>
            </tr>
          </table>
        </td>
      </tr>
    </table>
  </body>
</html>
`))

// DailyCourtAlert は日次アラートメールをレンダリングする。
// 件名は施設数に応じて変化する: 1件なら施設名入り、複数なら件数表記。
func DailyCourtAlert(facilities []FacilityAvailability, daysRemaining int, preferencesURL, unsubscribeURL string) (Email, error) {
	var subject string
	if len(facilities) == 1 {
		subject = fmt.Sprintf("%s has open slots today!", facilities[0].Title)
	} else {
		subject = fmt.Sprintf("%d of your courts are open today!", len(facilities))
	}

	daysLabel := "days"
	if daysRemaining == 1 {
		daysLabel = "day"
	}

	var buf strings.Builder
	err := dailyAlertTemplate.Execute(&buf, dailyAlertData{
		Facilities:     facilities,
		DaysRemaining:  daysRemaining,
		DaysLabel:      daysLabel,
		PreferencesURL: preferencesURL,
		UnsubscribeURL: unsubscribeURL,
	})
	if err != nil {
		return Email{}, fmt.Errorf("日次アラートメールのレンダリングに失敗しました: %w", err)
	}

	return Email{Subject: subject, HTML: buf.String()}, nil
}

// AlertTrialWelcome はウェルカムメールをレンダリングする。
// nameはサニタイズ済みの表示名（空可）を渡す。
func AlertTrialWelcome(name, preferencesURL string, expiresAt time.Time, extensionDays int) (Email, error) {
	var buf strings.Builder
	err := welcomeTemplate.Execute(&buf, welcomeData{
		Name:           name,
		PreferencesURL: preferencesURL,
		ExpiresAt:      expiresAt.Format("January 2, 2006"),
		ExtensionDays:  extensionDays,
	})
	if err != nil {
		return Email{}, fmt.Errorf("ウェルカムメールのレンダリングに失敗しました: %w", err)
	}

	return Email{Subject: "Your free court alerts are active!", HTML: buf.String()}, nil
}
