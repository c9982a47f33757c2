package services

import (
	"strings"
	"testing"

	"sweepnspect/internal/models"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func mail(uid, from, subject string) models.Email {
	return models.Email{UID: uid, Subject: subject, From: models.EmailAddress{Address: from}}
}

func TestClassifier_SystemSender(t *testing.T) {
	c := NewClassifier(quietLogger())
	got := c.Classify(mail("1", "noreply@mailchimp.com", "Please confirm your email address"))
	assert.Equal(t, CategorySystem, got.Category)
	assert.Equal(t, models.SeverityNone, got.Severity)
	assert.Equal(t, models.AutoCreateNone, got.AutoCreate)
	assert.Equal(t, "email-system", got.Source)
}

func TestClassifier_SystemSubjectBeatsBracket(t *testing.T) {
	c := NewClassifier(quietLogger())
	got := c.Classify(mail("1", "user@x.com", "[BUG] Verify your account"))
	assert.Equal(t, CategorySystem, got.Category)
}

func TestClassifier_BracketPrefix(t *testing.T) {
	c := NewClassifier(quietLogger())
	got := c.Classify(mail("1", "user@x.com", "[BUG] Crash on launch"))
	assert.Equal(t, CategoryBug, got.Category)
	assert.Equal(t, models.SeverityHigh, got.Severity)
	assert.Equal(t, models.AutoCreateTicket, got.AutoCreate)
	assert.Equal(t, "BUG", got.Label)
	assert.Equal(t, "cat-bug", got.Cls)
	assert.Equal(t, "Crash on launch", StripBracketPrefix("[BUG] Crash on launch"))

	got = c.Classify(mail("2", "user@x.com", "[partner] crash report"))
	assert.Equal(t, CategoryPartner, got.Category, "known bracket key wins over keywords")
}

func TestClassifier_UnknownBracketFallsBackToKeywords(t *testing.T) {
	c := NewClassifier(quietLogger())
	got := c.Classify(mail("1", "user@x.com", "[URGENT] app crash"))
	assert.Equal(t, CategoryBug, got.Category)
	assert.Equal(t, "[URGENT] app crash", StripBracketPrefix("[URGENT] app crash"))
}

// 修改 keywordRules 顺序时必须同步此表
func TestClassifier_KeywordPriority(t *testing.T) {
	c := NewClassifier(quietLogger())
	tests := []struct {
		subject string
		want    string
	}{
		{"billing support", CategoryBilling},
		{"Bug in billing page", CategoryBug},
		{"App error, refund please", CategoryBug},
		{"Founding member billing question", CategoryFounding},
		{"Feature request: help docs", CategoryFeature},
		{"Partner support", CategoryPartner},
		{"Need help", CategoryTicket},
		{"Hello there", CategoryContact},
	}
	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(mail("", "user@x.com", tt.subject)).Category)
		})
	}
}

func TestClassifier_CachedByUID(t *testing.T) {
	c := NewClassifier(quietLogger())
	first := c.Classify(mail("42", "user@x.com", "crash"))
	second := c.Classify(mail("42", "user@x.com", "hello"))
	assert.Equal(t, first, second)

	// 空 UID 不缓存
	assert.Equal(t, CategoryBug, c.Classify(mail("", "user@x.com", "crash")).Category)
	assert.Equal(t, CategoryContact, c.Classify(mail("", "user@x.com", "hello")).Category)
}

func TestCategories_ReturnsCopy(t *testing.T) {
	cats := Categories()
	assert.Len(t, cats, 8)
	cats[0].Label = "changed"
	assert.Equal(t, "BUG", Categories()[0].Label)
}

func TestClassifier_SystemSenderProperty(t *testing.T) {
	c := NewClassifier(quietLogger())
	rapid.Check(t, func(t *rapid.T) {
		local := rapid.SampledFrom([]string{"noreply", "no-reply", "mailer-daemon", "postmaster", "notification", "notifications", "NoReply"}).Draw(t, "local")
		domain := rapid.StringMatching(`[a-z]{1,10}\.com`).Draw(t, "domain")
		subject := rapid.String().Draw(t, "subject")

		got := c.Classify(mail("", local+"@"+domain, subject))
		if got.Category != CategorySystem {
			t.Fatalf("sender %s@%s subject %q classified as %s", local, domain, subject, got.Category)
		}
	})
}

func TestClassifier_BracketProperty(t *testing.T) {
	c := NewClassifier(quietLogger())
	keys := make([]string, 0)
	for _, cat := range Categories() {
		keys = append(keys, cat.Key)
	}
	rapid.Check(t, func(t *rapid.T) {
		key := rapid.SampledFrom(keys).Draw(t, "key")
		upper := rapid.Bool().Draw(t, "upper")
		// 字母范围避开系统通知用语
		rest := rapid.StringMatching(`[a-h ]{0,20}`).Draw(t, "rest")

		word := key
		if upper {
			word = strings.ToUpper(key)
		}
		subject := "[" + word + "] " + rest

		got := c.Classify(mail("", "someone@example.com", subject))
		if got.Category != key {
			t.Fatalf("subject %q classified as %s, want %s", subject, got.Category, key)
		}
		if stripped := StripBracketPrefix(subject); stripped != strings.TrimLeft(rest, " \t") {
			t.Fatalf("subject %q stripped to %q", subject, stripped)
		}
	})
}
