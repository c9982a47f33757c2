package utils

import (
	"crypto/rand"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// RandomBase36 生成指定长度的 base36 随机串
func RandomBase36(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic("utils: crypto/rand failed: " + err.Error())
	}
	for i := range buf {
		buf[i] = base36[int(buf[i])%len(base36)]
	}
	return string(buf)
}

// GenerateAlertID 生成 alert-<base36 毫秒时间戳>-<随机后缀>
func GenerateAlertID(now time.Time) string {
	return "alert-" + strconv.FormatInt(now.UnixMilli(), 36) + "-" + RandomBase36(5)
}

// GenerateID 生成带前缀的短 UUID
func GenerateID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}

// Truncate 超过 max 个字符时截断并追加省略号
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max]) + "..."
}
