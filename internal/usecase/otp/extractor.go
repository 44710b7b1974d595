package otp

import (
	"regexp"
	"strings"
	"time"

	"github.com/nonstoperxd/Bor/internal/domain"
)

// Правила поиска кода в порядке приоритета: выигрывает первое совпадение.
// Все шаблоны применяются к тексту в нижнем регистре.
var otpPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(\d{4,8})\b\s+is\s+your`),     // "12345 is your"
	regexp.MustCompile(`(?:code|otp|pin)[\s:]*(\d{4,8})`), // "code: 12345", "OTP 12345"
	regexp.MustCompile(`<#>\s*(\d{4,8})`),               // "<#> 12345"
	regexp.MustCompile(`verification[\s\w]*?(\d{4,8})`), // "verification code 12345"
	regexp.MustCompile(`confirm[\s\w]*?(\d{4,8})`),      // "confirm with 12345"
	regexp.MustCompile(`\b(\d{4,8})\s*$`),               // цифры в конце сообщения
	regexp.MustCompile(`^\s*(\d{4,8})\b`),               // цифры в начале сообщения
}

type servicePattern struct {
	name string
	re   *regexp.Regexp
}

// Фиксированный порядок сервисов, чтобы результат был детерминированным.
var servicePatterns = []servicePattern{
	{"facebook", regexp.MustCompile(`facebook|fb`)},
	{"google", regexp.MustCompile(`google|gmail`)},
	{"whatsapp", regexp.MustCompile(`whatsapp|whats app`)},
	{"instagram", regexp.MustCompile(`instagram|insta`)},
	{"twitter", regexp.MustCompile(`twitter|x\.com`)},
	{"telegram", regexp.MustCompile(`telegram`)},
	{"uber", regexp.MustCompile(`uber`)},
	{"amazon", regexp.MustCompile(`amazon`)},
	{"netflix", regexp.MustCompile(`netflix`)},
	{"spotify", regexp.MustCompile(`spotify`)},
}

var mobileRegex = regexp.MustCompile(`\+?[\d\s\-()]{10,15}`)

// Extract ищет одноразовый код в тексте сообщения. Возвращает false,
// если ни одно правило не сработало: это не ошибка, просто сообщение без кода.
func Extract(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	lower := strings.ToLower(text)
	for _, pattern := range otpPatterns {
		if match := pattern.FindStringSubmatch(lower); match != nil {
			return match[1], true
		}
	}
	return "", false
}

// IdentifyService определяет сервис-отправитель по ключевым словам.
// Возвращает "Unknown", если ни один набор не совпал.
func IdentifyService(text string) string {
	if text == "" {
		return "Unknown"
	}
	lower := strings.ToLower(text)
	for _, sp := range servicePatterns {
		if sp.re.MatchString(lower) {
			return strings.ToUpper(sp.name[:1]) + sp.name[1:]
		}
	}
	return "Unknown"
}

// ExtractMobile достаёт номер телефона: сначала из структурного поля строки,
// затем регулярным выражением из текста, иначе "Unknown".
func ExtractMobile(msg domain.RawMessage) string {
	if trimmed := strings.TrimSpace(msg.Mobile); trimmed != "" {
		return trimmed
	}
	if match := mobileRegex.FindString(msg.Text); match != "" {
		return strings.TrimSpace(match)
	}
	return "Unknown"
}

// BuildRecord собирает запись OTP из строки Live SMS. Возвращает false,
// если в тексте нет кода: такие сообщения молча отбрасываются.
func BuildRecord(msg domain.RawMessage, now time.Time) (domain.OTPRecord, bool) {
	code, ok := Extract(msg.Text)
	if !ok {
		return domain.OTPRecord{}, false
	}
	return domain.OTPRecord{
		OTP:        code,
		Service:    IdentifyService(msg.Text),
		Mobile:     ExtractMobile(msg),
		RawText:    strings.TrimSpace(msg.Text),
		ObservedAt: now,
	}, true
}
