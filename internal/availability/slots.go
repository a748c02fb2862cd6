// Package availability は施設の空き区間テキストから当日の空きスロットを抽出する。
// 入力は外部フィード由来の不透明なテキストであり、不正な行でパイプラインを
// 停止させてはならない。パースできない行は黙って読み飛ばす。
package availability

import (
	"fmt"
	"regexp"
	"strings"
)

// intervalPattern は空き区間1行の固定フォーマット。
// 例: "2025-01-15 09:00:00-10:30:00"
var intervalPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}\s+(\d{2}):(\d{2}):\d{2}-(\d{2}):(\d{2}):\d{2}`)

// GetTodaySlots は空き区間の生テキストから、today（ISO形式 YYYY-MM-DD）の日付で
// 始まり、かつ購読者の希望時間帯 [startHour, endHour] に完全に収まる区間を、
// 施設が宣言した順のまま人間可読なスロット文字列として返す。
//
// 部分的に重なる区間は切り詰めずに丸ごと除外する。
// 開始時刻がstartHour以上、終了時刻がendHour以下の区間のみ採用する。
// 該当なしの場合はnilではなく空スライスを返す。純粋関数で副作用を持たない。
func GetTodaySlots(rawIntervals string, startHour, endHour int, today string) []string {
	slots := []string{}
	if rawIntervals == "" {
		return slots
	}

	for _, line := range strings.Split(rawIntervals, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || !strings.HasPrefix(trimmed, today) {
			continue
		}

		m := intervalPattern.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}

		slotStart := parseTwoDigits(m[1])
		slotEnd := parseTwoDigits(m[3])

		if slotStart >= startHour && slotEnd <= endHour {
			slots = append(slots, formatHour(slotStart, m[2])+"-"+formatHour(slotEnd, m[4]))
		}
	}

	return slots
}

// parseTwoDigits は正規表現で検証済みの2桁数字列をintへ変換する。
func parseTwoDigits(s string) int {
	return int(s[0]-'0')*10 + int(s[1]-'0')
}

// formatHour は24時間表記の時と分文字列を「H:MM AM/PM」形式に変換する。
// 0時と12時は12として表示する。
func formatHour(hour int, minute string) string {
	suffix := "AM"
	if hour >= 12 {
		suffix = "PM"
	}
	h12 := hour % 12
	if h12 == 0 {
		h12 = 12
	}
	return fmt.Sprintf("%d:%s %s", h12, minute, suffix)
}
