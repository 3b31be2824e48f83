package offline

import (
	"math"
	"time"
)

// RetryPolicy управляет повторными проходами сброса очереди:
// число попыток на запрос и экспоненциальная задержка между проходами
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// DefaultRetryPolicy - разумные умолчания: 3 попытки, задержка от 1с
// с удвоением, потолок 30с
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		Multiplier:   2.0,
		MaxDelay:     30 * time.Second,
	}
}

// NextDelay возвращает задержку перед проходом attempt (нумерация с 1),
// InitialDelay * Multiplier^(attempt-1) с потолком MaxDelay
func (p *RetryPolicy) NextDelay(attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}
