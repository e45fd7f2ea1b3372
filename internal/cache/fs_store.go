package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const defaultContentType = "image/jpeg"

// NewFileStore 以 basePath 为根目录构建本地磁盘存储，整站复用一份实例。
func NewFileStore(basePath string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &fileStore{basePath: abs}, nil
}

// fileStore 将每个键存为 basePath 下的一个文件，通过临时文件 + rename 保证覆盖写原子性。
type fileStore struct {
	basePath string
}

func (s *fileStore) Get(ctx context.Context, key string) (Lookup, error) {
	if err := ctx.Err(); err != nil {
		return Lookup{}, storageError("get", key, err)
	}

	filePath, err := s.entryPath(key)
	if err != nil {
		return Lookup{}, storageError("get", key, err)
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Miss(), nil
		}
		return Lookup{}, storageError("get", key, err)
	}
	if info.IsDir() {
		return Miss(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Miss(), nil
		}
		return Lookup{}, storageError("get", key, err)
	}

	return HitOf(Object{Data: data, ContentType: defaultContentType}), nil
}

func (s *fileStore) Put(ctx context.Context, key string, obj Object) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	filePath, err := s.entryPath(key)
	if err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(s.basePath, ".cache-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(obj.Data)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

func (s *fileStore) entryPath(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	if strings.HasPrefix(key, ".cache-") {
		return "", fmt.Errorf("%w: reserved prefix", ErrInvalidKey)
	}

	filePath := filepath.Join(s.basePath, key)
	if filepath.Dir(filePath) != s.basePath {
		return "", errors.New("invalid cache path")
	}
	return filePath, nil
}
