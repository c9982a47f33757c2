package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// JSONStore 每个集合一个 <dir>/<name>.json 文件
type JSONStore struct {
	dir   string
	locks collectionLocks
}

// NewJSONStore 创建文件存储，目录不存在时自动创建
func NewJSONStore(dir string) (*JSONStore, error) {
	if dir == "" {
		dir = "./data"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &JSONStore{dir: dir}, nil
}

// Dir 数据目录
func (s *JSONStore) Dir() string {
	return s.dir
}

func (s *JSONStore) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid collection name %q", name)
	}
	return filepath.Join(s.dir, name+".json"), nil
}

// Load 读取集合文件
func (s *JSONStore) Load(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// Save 先写临时文件再 rename，避免读到半截文件
func (s *JSONStore) Save(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(name)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, "."+name+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Lock 集合级互斥
func (s *JSONStore) Lock(name string) func() {
	return s.locks.lock(name)
}

// Collections 列出已存在的集合
func (s *JSONStore) Collections() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	return names, nil
}

func (s *JSONStore) Close() error {
	return nil
}
