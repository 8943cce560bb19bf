// Package locale 负责请求语言协商，默认英文，可切换为中文。
package locale

import "strings"

const (
	LanguageChinese = "zh"
	LanguageEnglish = "en"
)

// Preference 是协商后的语言及对应的 BCP 47 标签，标签用于 Content-Language
type Preference struct {
	Language string
	Tag      string
}

func NormalizeLanguage(raw string) string {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "zh") || trimmed == "cn" {
		return LanguageChinese
	}
	if strings.HasPrefix(trimmed, "en") {
		return LanguageEnglish
	}
	return ""
}

// LanguageFromAcceptLanguage 按出现顺序取第一个可识别的语言
func LanguageFromAcceptLanguage(header string) string {
	for _, part := range strings.Split(header, ",") {
		tag := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if language := NormalizeLanguage(tag); language != "" {
			return language
		}
	}
	return ""
}

// Resolve 依次参考 ?lang= 覆盖与 Accept-Language，均无法识别时使用英文
func Resolve(override, acceptLanguage string) string {
	if language := NormalizeLanguage(override); language != "" {
		return language
	}
	if language := LanguageFromAcceptLanguage(acceptLanguage); language != "" {
		return language
	}
	return LanguageEnglish
}

func PreferenceForLanguage(language string) Preference {
	if NormalizeLanguage(language) == LanguageChinese {
		return Preference{Language: LanguageChinese, Tag: "zh-CN"}
	}
	return Preference{Language: LanguageEnglish, Tag: "en-US"}
}
