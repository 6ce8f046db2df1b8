package auth

import "strings"

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// normalizePhone strips spaces and dashes; Saudi local numbers become +966.
func normalizePhone(phone string) string {
	phone = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(phone))
	switch {
	case phone == "":
		return ""
	case strings.HasPrefix(phone, "00"):
		return "+" + phone[2:]
	case strings.HasPrefix(phone, "05") && len(phone) == 10:
		return "+966" + phone[1:]
	}
	return phone
}
