package services

import (
	"sync"
	"time"
)

// BreakerState 熔断器状态
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // 正常放行
	BreakerOpen                         // 熔断中
	BreakerHalfOpen                     // 试探
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	MaxFailures  int           // 连续失败多少次后熔断
	ResetTimeout time.Duration // 熔断多久后进入半开
	HalfOpenReqs int           // 半开状态放行的试探请求数
}

// DefaultBreakerConfig 外部工单桥默认值
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:  3,
		ResetTimeout: 5 * time.Minute,
		HalfOpenReqs: 1,
	}
}

// CircuitBreaker 保护外部工单桥，连续失败后暂停转发
type CircuitBreaker struct {
	config   BreakerConfig
	state    BreakerState
	failures int
	lastFail time.Time
	probes   int
	now      func() time.Time
	mutex    sync.Mutex
}

// NewCircuitBreaker 创建熔断器，非法配置项回退到默认值
func NewCircuitBreaker(config BreakerConfig) *CircuitBreaker {
	def := DefaultBreakerConfig()
	if config.MaxFailures <= 0 {
		config.MaxFailures = def.MaxFailures
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = def.ResetTimeout
	}
	if config.HalfOpenReqs <= 0 {
		config.HalfOpenReqs = def.HalfOpenReqs
	}
	return &CircuitBreaker{config: config, state: BreakerClosed, now: time.Now}
}

// Allow 是否放行本次调用
func (cb *CircuitBreaker) Allow() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if cb.now().Sub(cb.lastFail) >= cb.config.ResetTimeout {
			cb.state = BreakerHalfOpen
			cb.probes = 1
			return true
		}
		return false
	case BreakerHalfOpen:
		if cb.probes < cb.config.HalfOpenReqs {
			cb.probes++
			return true
		}
		return false
	default:
		return false
	}
}

// OnSuccess 记录成功
func (cb *CircuitBreaker) OnSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.state = BreakerClosed
	cb.failures = 0
	cb.probes = 0
}

// OnFailure 记录失败，半开状态下失败立即重新熔断
func (cb *CircuitBreaker) OnFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures++
	cb.lastFail = cb.now()
	switch cb.state {
	case BreakerClosed:
		if cb.failures >= cb.config.MaxFailures {
			cb.state = BreakerOpen
		}
	case BreakerHalfOpen:
		cb.state = BreakerOpen
		cb.probes = 0
	}
}

// State 当前状态
func (cb *CircuitBreaker) State() BreakerState {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// Stats 健康检查输出
func (cb *CircuitBreaker) Stats() map[string]interface{} {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return map[string]interface{}{
		"state":         cb.state.String(),
		"failure_count": cb.failures,
		"max_failures":  cb.config.MaxFailures,
		"reset_timeout": cb.config.ResetTimeout.String(),
	}
}
