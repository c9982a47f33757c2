package services

import (
	"regexp"
	"strings"
	"sync"

	"sweepnspect/internal/metrics"
	"sweepnspect/internal/models"

	"github.com/sirupsen/logrus"
)

const (
	CategoryBug      = "bug"
	CategoryBilling  = "billing"
	CategoryFounding = "founding"
	CategoryTicket   = "ticket"
	CategoryFeature  = "feature"
	CategoryPartner  = "partner"
	CategoryContact  = "contact"
	CategorySystem   = "system"
)

// 分类表，顺序即仪表盘图例顺序
var categoryTable = []models.Category{
	newCategory(CategoryBug, models.SeverityHigh, models.AutoCreateTicket, "BUG"),
	newCategory(CategoryBilling, models.SeverityHigh, models.AutoCreateTicket, "BILLING"),
	newCategory(CategoryFounding, models.SeverityNormal, models.AutoCreateSubscriber, "FOUNDING"),
	newCategory(CategoryTicket, models.SeverityNormal, models.AutoCreateTicket, "TICKET"),
	newCategory(CategoryFeature, models.SeverityLow, models.AutoCreateNone, "FEATURE"),
	newCategory(CategoryPartner, models.SeverityNormal, models.AutoCreateNone, "PARTNER"),
	newCategory(CategoryContact, models.SeverityLow, models.AutoCreateNone, "CONTACT"),
	newCategory(CategorySystem, models.SeverityNone, models.AutoCreateNone, "SYSTEM"),
}

func newCategory(key string, sev models.Severity, auto models.AutoCreate, label string) models.Category {
	return models.Category{Key: key, Severity: sev, AutoCreate: auto, Label: label, CSSClass: "cat-" + key}
}

type keywordRule struct {
	category string
	keywords []string
}

// 关键字回退表：第一个命中的条目生效。
// 顺序必须是 bug, founding, billing 在前，通用的 ticket/support/help 在最后，
// 例如 "billing support" 归为 billing。修改顺序需要同步 TestClassifier_KeywordPriority。
var keywordRules = []keywordRule{
	{CategoryBug, []string{"bug", "crash", "error", "broken", "not working", "glitch"}},
	{CategoryFounding, []string{"founding", "founder", "early access", "beta signup", "sign up", "signup"}},
	{CategoryBilling, []string{"billing", "invoice", "payment", "refund", "charge", "subscription"}},
	{CategoryFeature, []string{"feature request", "feature", "suggestion", "idea"}},
	{CategoryPartner, []string{"partner", "partnership", "wholesale", "affiliate"}},
	{CategoryTicket, []string{"ticket", "support", "help", "issue", "problem"}},
}

var systemSenderPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)noreply@`),
	regexp.MustCompile(`(?i)no-reply@`),
	regexp.MustCompile(`(?i)mailer-daemon@`),
	regexp.MustCompile(`(?i)postmaster@`),
	regexp.MustCompile(`(?i)notifications?@`),
}

var systemSubjectPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)confirm your (email|subscription|account)`),
	regexp.MustCompile(`(?i)verify your (email|account)`),
	regexp.MustCompile(`(?i)verification code`),
	regexp.MustCompile(`(?i)delivery status notification`),
	regexp.MustCompile(`(?i)undeliverable`),
	regexp.MustCompile(`(?i)out of office|auto(matic)?[- ]reply`),
	regexp.MustCompile(`(?i)password reset`),
}

var bracketPrefix = regexp.MustCompile(`^\s*\[([A-Za-z]+)\]\s*(.*)$`)

// Classifier 邮件分类器，按 UID 缓存结果
type Classifier struct {
	byKey  map[string]models.Category
	cache  map[string]models.ClassificationResult
	mutex  sync.RWMutex
	logger *logrus.Logger
}

// NewClassifier 创建分类器
func NewClassifier(logger *logrus.Logger) *Classifier {
	if logger == nil {
		logger = logrus.New()
	}
	byKey := make(map[string]models.Category, len(categoryTable))
	for _, c := range categoryTable {
		byKey[c.Key] = c
	}
	return &Classifier{
		byKey:  byKey,
		cache:  make(map[string]models.ClassificationResult),
		logger: logger,
	}
}

// Categories 返回分类表副本
func Categories() []models.Category {
	out := make([]models.Category, len(categoryTable))
	copy(out, categoryTable)
	return out
}

// Classify 按 系统发件人/主题 → [KEY] 前缀 → 关键字 → contact 的顺序分类
func (c *Classifier) Classify(email models.Email) models.ClassificationResult {
	if email.UID != "" {
		c.mutex.RLock()
		cached, ok := c.cache[email.UID]
		c.mutex.RUnlock()
		if ok {
			return cached
		}
	}

	key := c.categorize(email)
	result := c.result(key)
	metrics.EmailsClassified.WithLabelValues(key).Inc()
	c.logger.Debugf("classified email %s as %s", email.UID, key)

	if email.UID != "" {
		c.mutex.Lock()
		c.cache[email.UID] = result
		c.mutex.Unlock()
	}
	return result
}

func (c *Classifier) categorize(email models.Email) string {
	if isSystemEmail(email) {
		return CategorySystem
	}

	if m := bracketPrefix.FindStringSubmatch(email.Subject); m != nil {
		if _, ok := c.byKey[strings.ToLower(m[1])]; ok {
			return strings.ToLower(m[1])
		}
	}

	subject := strings.ToLower(email.Subject)
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(subject, kw) {
				return rule.category
			}
		}
	}
	return CategoryContact
}

func (c *Classifier) result(key string) models.ClassificationResult {
	cat := c.byKey[key]
	return models.ClassificationResult{
		Category:   cat.Key,
		Severity:   cat.Severity,
		AutoCreate: cat.AutoCreate,
		Source:     "email-" + cat.Key,
		Label:      cat.Label,
		Cls:        cat.CSSClass,
	}
}

func isSystemEmail(email models.Email) bool {
	for _, p := range systemSenderPatterns {
		if p.MatchString(email.From.Address) {
			return true
		}
	}
	for _, p := range systemSubjectPatterns {
		if p.MatchString(email.Subject) {
			return true
		}
	}
	return false
}

// StripBracketPrefix 去掉主题开头的已知分类前缀 [KEY]，未知前缀保留
func StripBracketPrefix(subject string) string {
	if m := bracketPrefix.FindStringSubmatch(subject); m != nil && isCategoryKey(m[1]) {
		return m[2]
	}
	return subject
}

func isCategoryKey(word string) bool {
	key := strings.ToLower(word)
	for _, c := range categoryTable {
		if c.Key == key {
			return true
		}
	}
	return false
}
