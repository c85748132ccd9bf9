// Package validation содержит проверки пользовательского ввода.
package validation

import "strings"

// IsValidEmail выполняет минимальную структурную проверку адреса почты:
// одна собака, непустая локальная часть и домен с точкой.
// Полная проверка по RFC не выполняется.
func IsValidEmail(email string) bool {
	if email == "" || len(email) > 254 {
		return false
	}

	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}

	local, domain := email[:at], email[at+1:]
	if len(local) > 64 || strings.ContainsAny(local, " \t") {
		return false
	}

	dot := strings.LastIndex(domain, ".")
	if dot <= 0 || dot == len(domain)-1 {
		return false
	}

	return !strings.ContainsAny(domain, " \t@")
}
