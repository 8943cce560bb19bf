package locale

// Pick returns the text matching the request language, defaulting to English.
func Pick(language, english, chinese string) string {
	if NormalizeLanguage(language) == LanguageChinese {
		if chinese != "" {
			return chinese
		}
		return english
	}
	if english != "" {
		return english
	}
	return chinese
}

// Message 是一条双语提示
type Message struct {
	English string
	Chinese string
}

var messages = map[string]Message{
	"UNAUTHORIZED":          {English: "Authentication required", Chinese: "需要登录"},
	"NOT_FOUND":             {English: "Not found", Chinese: "记录不存在"},
	"BAD_REQUEST":           {English: "Invalid input", Chinese: "输入不合法"},
	"INTERNAL_SERVER_ERROR": {English: "Something went wrong", Chinese: "服务器内部错误"},
	"TOO_MANY_REQUESTS":     {English: "Too many requests, slow down", Chinese: "请求过于频繁，请稍后再试"},
	"METHOD_NOT_SUPPORTED":  {English: "Method not supported for this procedure", Chinese: "该接口不支持此请求方法"},
	"PROCEDURE_NOT_FOUND":   {English: "No such procedure", Chinese: "接口不存在"},
}

// Text 返回某个消息键在指定语言下的文本，未知键原样返回
func Text(language, key string) string {
	msg, ok := messages[key]
	if !ok {
		return key
	}
	return Pick(language, msg.English, msg.Chinese)
}
