package mailer

import (
	"strings"
	"testing"
	"time"
)

func sampleFacilities() []FacilityAvailability {
	return []FacilityAvailability{
		{
			ID:      1,
			Title:   "Jefferson Park Court 1",
			Address: "4100 Beacon Ave S, Seattle, WA",
			MapURL:  "https://maps.google.com/test1",
			Slots:   []string{"9:00 AM-11:00 AM", "2:00 PM-4:00 PM"},
		},
		{
			ID:      2,
			Title:   "Volunteer Park Court 1",
			Address: "1247 15th Ave E, Seattle, WA",
			MapURL:  "https://maps.google.com/test2",
			Slots:   []string{"10:00 AM-12:00 PM"},
		},
	}
}

// 施設1件の場合、件名に施設名が入ることを検証
func TestDailyCourtAlert_SubjectSingleFacility(t *testing.T) {
	email, err := DailyCourtAlert(sampleFacilities()[:1], 5, "https://prefs.example", "https://unsub.example")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	want := "Jefferson Park Court 1 has open slots today!"
	if email.Subject != want {
		t.Errorf("Subject = %q, want %q", email.Subject, want)
	}
}

// 施設複数の場合、件名が件数表記になることを検証
func TestDailyCourtAlert_SubjectMultipleFacilities(t *testing.T) {
	email, err := DailyCourtAlert(sampleFacilities(), 5, "https://prefs.example", "https://unsub.example")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	want := "2 of your courts are open today!"
	if email.Subject != want {
		t.Errorf("Subject = %q, want %q", email.Subject, want)
	}
}

// 本文に施設名・住所・スロット・地図リンクが含まれることを検証
func TestDailyCourtAlert_BodyContents(t *testing.T) {
	email, err := DailyCourtAlert(sampleFacilities(), 5, "https://prefs.example", "https://unsub.example")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	for _, want := range []string{
		"Jefferson Park Court 1",
		"Volunteer Park Court 1",
		"4100 Beacon Ave S, Seattle, WA",
		"1247 15th Ave E, Seattle, WA",
		"9:00 AM-11:00 AM",
		"2:00 PM-4:00 PM",
		"10:00 AM-12:00 PM",
		"https://maps.google.com/test1",
		"https://maps.google.com/test2",
		"https://prefs.example",
		"https://unsub.example",
	} {
		if !strings.Contains(email.HTML, want) {
			t.Errorf("HTML does not contain %q", want)
		}
	}
}

// 残日数が複数形・単数形で正しく表記されることを検証
func TestDailyCourtAlert_DaysRemaining(t *testing.T) {
	email, err := DailyCourtAlert(sampleFacilities(), 5, "https://p", "https://u")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(email.HTML, "5 days left") {
		t.Error("HTML does not contain plural days remaining")
	}

	email, err = DailyCourtAlert(sampleFacilities(), 1, "https://p", "https://u")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(email.HTML, "1 day left") {
		t.Error("HTML does not contain singular day remaining")
	}
}

// 施設名に含まれるHTML特殊文字がエスケープされることを検証
func TestDailyCourtAlert_EscapesHTML(t *testing.T) {
	facilities := []FacilityAvailability{
		{
			ID:    1,
			Title: `<script>alert(1)</script>`,
			Slots: []string{"9:00 AM-10:00 AM"},
		},
	}

	email, err := DailyCourtAlert(facilities, 3, "https://p", "https://u")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if strings.Contains(email.HTML, "<script>") {
		t.Error("HTML contains unescaped script tag")
	}
}

// ウェルカムメールに設定リンクと期限が含まれることを検証
func TestAlertTrialWelcome_Contents(t *testing.T) {
	expiresAt := time.Date(2025, 1, 22, 12, 0, 0, 0, time.UTC)

	email, err := AlertTrialWelcome("Taro", "https://prefs.example", expiresAt, 7)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if email.Subject != "Your free court alerts are active!" {
		t.Errorf("Subject = %q", email.Subject)
	}
	for _, want := range []string{
		"Welcome, Taro.",
		"https://prefs.example",
		"January 22, 2025",
		"next 7 days",
	} {
		if !strings.Contains(email.HTML, want) {
			t.Errorf("HTML does not contain %q", want)
		}
	}
}

// 表示名が空の場合、ウェルカム文から名前部分が省かれることを検証
func TestAlertTrialWelcome_NoName(t *testing.T) {
	email, err := AlertTrialWelcome("", "https://p", time.Now(), 7)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if strings.Contains(email.HTML, "Welcome,") {
		t.Error("HTML should not contain a welcome-by-name line for empty name")
	}
}
