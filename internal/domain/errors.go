package domain

import "errors"

var (
	// ErrSessionExpired сигнализирует, что портал перенаправил на страницу логина
	// или на странице нет ожидаемых маркеров.
	ErrSessionExpired = errors.New("сессия портала истекла")

	// ErrLoginFailed возвращается, когда портал не принял учётные данные.
	ErrLoginFailed = errors.New("портал не принял учётные данные")
)
