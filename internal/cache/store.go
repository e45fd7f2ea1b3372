package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Store 负责对象存储的读写。键为扁平的对象名，例如 ABCDEF01.L1.jpg。
type Store interface {
	// Get 查询对象。键不存在时返回 Lookup{Hit: false} 与 nil error；
	// 其余失败均返回包裹 ErrStorage 的错误。
	Get(ctx context.Context, key string) (Lookup, error)

	// Put 写入对象，重复写入同一个键是安全的（直接覆盖）。
	Put(ctx context.Context, key string, obj Object) error
}

// Object 是存储中的图片正文及其 Content-Type。
type Object struct {
	Data        []byte
	ContentType string
}

// Lookup 是一次查询的结果：命中时 Object 有效。
type Lookup struct {
	Hit    bool
	Object Object
}

// Miss 返回未命中的查询结果。
func Miss() Lookup {
	return Lookup{}
}

// HitOf 将对象包装为命中结果。
func HitOf(obj Object) Lookup {
	return Lookup{Hit: true, Object: obj}
}

var (
	// ErrStorage 表示存储可达但读写失败，读路径上应返回 500。
	ErrStorage = errors.New("storage error")
	// ErrInvalidKey 表示键为空或包含路径结构。
	ErrInvalidKey = errors.New("invalid storage key")
)

// ValidateKey 拒绝空键以及包含目录分隔符或 ".." 的键。
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

func storageError(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", ErrStorage, op, key, err)
}
