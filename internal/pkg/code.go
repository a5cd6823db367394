package pkg

import (
	"crypto/rand"
	"fmt"
)

// RandDigits 生成 n 位数字验证码；丢弃 >= 250 的字节保证各数字等概率
func RandDigits(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("rand digits: invalid length %d", n)
	}
	out := make([]byte, 0, n)
	buf := make([]byte, n+n/2)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("rand digits: %w", err)
		}
		for _, b := range buf {
			if b >= 250 {
				continue
			}
			out = append(out, '0'+b%10)
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
