package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// 集合名称
const (
	CollectionAlerts          = "alerts"
	CollectionAlertConfig     = "alert-config"
	CollectionAutomationRules = "automation-rules"
	CollectionAutomationLog   = "automation-log"
	CollectionTickets         = "tickets"
	CollectionSubscribers     = "subscribers"
)

// ErrInvalidRecord 集合内容无法解码
var ErrInvalidRecord = errors.New("invalid record data")

// Store 命名集合的读写接口，集合内容为 JSON 文档
type Store interface {
	// Load 返回集合原始内容，集合不存在时返回 nil, nil
	Load(ctx context.Context, name string) ([]byte, error)
	// Save 覆盖写入集合
	Save(ctx context.Context, name string, data []byte) error
	// Lock 串行化同一集合的读改写，返回解锁函数
	Lock(name string) func()
	Close() error
}

// collectionLocks 进程内按集合加锁
type collectionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *collectionLocks) lock(name string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[name]
	if !ok {
		m = &sync.Mutex{}
		l.locks[name] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// ReadList 读取列表集合，不存在时返回空切片
func ReadList[T any](ctx context.Context, s Store, name string) ([]T, error) {
	data, err := s.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	return decodeList[T](name, data)
}

// WriteList 覆盖写入列表集合
func WriteList[T any](ctx context.Context, s Store, name string, records []T) error {
	if records == nil {
		records = []T{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := s.Save(ctx, name, data); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

// UpdateList 在集合锁内完成读改写，fn 返回错误时不写入
func UpdateList[T any](ctx context.Context, s Store, name string, fn func([]T) ([]T, error)) error {
	unlock := s.Lock(name)
	defer unlock()

	records, err := ReadList[T](ctx, s, name)
	if err != nil {
		return err
	}
	updated, err := fn(records)
	if err != nil {
		return err
	}
	return WriteList(ctx, s, name, updated)
}

// ReadDoc 读取单文档集合，不存在时返回 found=false
func ReadDoc[T any](ctx context.Context, s Store, name string, out *T) (bool, error) {
	data, err := s.Load(ctx, name)
	if err != nil {
		return false, fmt.Errorf("load %s: %w", name, err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrInvalidRecord, name, err)
	}
	return true, nil
}

// WriteDoc 覆盖写入单文档集合
func WriteDoc[T any](ctx context.Context, s Store, name string, doc T) error {
	unlock := s.Lock(name)
	defer unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := s.Save(ctx, name, data); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

func decodeList[T any](name string, data []byte) ([]T, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return []T{}, nil
	}
	var records []T
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRecord, name, err)
	}
	if records == nil {
		records = []T{}
	}
	return records, nil
}

// idWidth 序号补零宽度
const idWidth = 4

// NextID 根据已有 ID 中最大的数字后缀生成 <prefix>-<补零序号>
func NextID(ids []string, prefix string) string {
	max := 0
	head := prefix + "-"
	for _, id := range ids {
		if !strings.HasPrefix(id, head) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(id, head))
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return fmt.Sprintf("%s-%0*d", prefix, idWidth, max+1)
}

// Copy 把指定集合原样复制到目标存储，返回复制的集合数
func Copy(ctx context.Context, src, dst Store, names []string) (int, error) {
	copied := 0
	for _, name := range names {
		data, err := src.Load(ctx, name)
		if err != nil {
			return copied, fmt.Errorf("load %s: %w", name, err)
		}
		if data == nil {
			continue
		}
		if !json.Valid(data) {
			return copied, fmt.Errorf("%w: %s", ErrInvalidRecord, name)
		}
		unlock := dst.Lock(name)
		err = dst.Save(ctx, name, data)
		unlock()
		if err != nil {
			return copied, fmt.Errorf("save %s: %w", name, err)
		}
		copied++
	}
	return copied, nil
}
