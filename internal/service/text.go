package service

import (
	"bytes"
	"context"
	"html"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/habitkit/internal/db"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldhtml "github.com/yuin/goldmark/renderer/html"
	"gorm.io/gorm"
)

const (
	maxTitleRunes = 200
	maxTextRunes  = 5000
)

var (
	plainTextPolicy = bluemonday.StrictPolicy()
	richTextPolicy  = bluemonday.UGCPolicy()
	markdownEngine  = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify),
		goldmark.WithRendererOptions(goldhtml.WithHardWraps(), goldhtml.WithXHTML()),
	)
)

// cleanText 去除 HTML 标签与首尾空白，客户端按纯文本展示
func cleanText(raw string) string {
	stripped := plainTextPolicy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(stripped))
}

func requireTitle(field, raw string) (string, error) {
	title := cleanText(raw)
	if title == "" {
		return "", invalid(field, "is required")
	}
	if utf8.RuneCountInString(title) > maxTitleRunes {
		return "", invalidf(field, "must be at most %d characters", maxTitleRunes)
	}
	return title, nil
}

func limitText(field, text string) (string, error) {
	if utf8.RuneCountInString(text) > maxTextRunes {
		return "", invalidf(field, "must be at most %d characters", maxTextRunes)
	}
	return text, nil
}

// RenderMarkdown 将 Markdown 渲染为经过净化的 HTML
func RenderMarkdown(source string) string {
	if strings.TrimSpace(source) == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := markdownEngine.Convert([]byte(source), &buf); err != nil {
		return html.EscapeString(source)
	}
	return richTextPolicy.Sanitize(buf.String())
}

// parseDate 校验 YYYY-MM-DD 格式并返回规范化字符串
func parseDate(field, raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", invalid(field, "is required")
	}
	parsed, err := time.Parse(db.DateLayout, trimmed)
	if err != nil {
		return "", invalidf(field, "must use the YYYY-MM-DD format")
	}
	return parsed.Format(db.DateLayout), nil
}

// parseOptionalDate 空字符串视为清空
func parseOptionalDate(field string, raw *string) (*string, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	normalized, err := parseDate(field, *raw)
	if err != nil {
		return nil, err
	}
	return &normalized, nil
}

func normalizeToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func formatDate(t time.Time) string {
	return t.Format(db.DateLayout)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func ratio(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	return clampUnit(round2(float64(part) / float64(whole)))
}

func clampLimit(requested, fallback, maximum int) int {
	if requested <= 0 {
		return fallback
	}
	if requested > maximum {
		return maximum
	}
	return requested
}

func optionalID(raw *string) *string {
	if raw == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*raw)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func sameOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// maxSortOrder 返回用户在某张表中的最大排序值，没有记录时为 -1
func maxSortOrder(ctx context.Context, gdb *gorm.DB, model any, userID string) (int, error) {
	var maxOrder int
	err := gdb.WithContext(ctx).Model(model).
		Where("user_id = ?", userID).
		Select("COALESCE(MAX(sort_order), -1)").
		Scan(&maxOrder).Error
	return maxOrder, err
}
