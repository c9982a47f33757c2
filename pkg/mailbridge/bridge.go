package mailbridge

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config 邮件建单桥配置
type Config struct {
	SMTPHost string
	SMTPPort int
	Username string
	Password string
	From     string
	To       string
	Timeout  time.Duration
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Bridge 通过 SMTP 把告警转成第三方工单系统的邮件
type Bridge struct {
	config   Config
	sendMail sendFunc
	now      func() time.Time
	logger   *logrus.Logger
}

// New 创建邮件桥
func New(config Config, logger *logrus.Logger) *Bridge {
	if config.SMTPPort == 0 {
		config.SMTPPort = 587
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Bridge{config: config, sendMail: smtp.SendMail, now: time.Now, logger: logger}
}

// Configured 主机与收发件人是否齐全
func (b *Bridge) Configured() bool {
	return b.config.SMTPHost != "" && b.config.From != "" && b.config.To != ""
}

// SendTicket 发送一封建单邮件，超时与失败都以 error 返回
func (b *Bridge) SendTicket(ctx context.Context, subject, body string) error {
	if !b.Configured() {
		return fmt.Errorf("ticket bridge not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, b.config.Timeout)
	defer cancel()

	addr := net.JoinHostPort(b.config.SMTPHost, strconv.Itoa(b.config.SMTPPort))
	var auth smtp.Auth
	if b.config.Username != "" {
		auth = smtp.PlainAuth("", b.config.Username, b.config.Password, b.config.SMTPHost)
	}
	msg := b.buildMessage(subject, body)

	done := make(chan error, 1)
	go func() {
		done <- b.sendMail(addr, auth, b.config.From, []string{b.config.To}, msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		b.logger.Debugf("ticket bridge mail sent: %s", subject)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send: %w", ctx.Err())
	}
}

func (b *Bridge) buildMessage(subject, body string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", b.config.From)
	fmt.Fprintf(&buf, "To: %s\r\n", b.config.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", b.now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	buf.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	buf.WriteString("\r\n")
	return buf.Bytes()
}
