package imagename

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
)

// ErrInvalidName 表示标识符不符合命名规则，调用方应直接返回 400。
var ErrInvalidName = errors.New("invalid image name")

const (
	// Extension 是存储键统一追加的后缀。
	Extension = ".jpg"

	maxRawLength = 256
)

// canonicalPattern 是唯一生效的命名规则：8 位十六进制 + ".L" + 1~2 位数字。
var canonicalPattern = regexp.MustCompile(`^[0-9A-Fa-f]{8}\.L[0-9]{1,2}$`)

// LegacyPatterns 记录历史版本出现过的命名规则，仅用于诊断输出，Validate 不会接受它们。
var LegacyPatterns = map[string]string{
	"hex-run":   `^[0-9A-F]+\.L\d+$`,
	"decimal-8": `^[0-9]{8}\.L\d{1,2}$`,
}

// Name 是规范化后的图片名，不包含目录与 .jpg 后缀。
type Name string

// String implements fmt.Stringer.
func (n Name) String() string {
	return string(n)
}

// StorageKey 返回对象存储中使用的键。
func (n Name) StorageKey() string {
	return StorageKey(n)
}

// StorageKey 将规范名映射为存储键（name + ".jpg"）。
func StorageKey(n Name) string {
	return string(n) + Extension
}

// Extract 返回路径的最后一个组成部分，去掉日期前缀与任意目录层级。
// "." 与 ".." 这类目录引用会得到空字符串。
func Extract(raw string) string {
	clean := strings.ReplaceAll(raw, `\`, "/")
	clean = strings.TrimRight(clean, "/")
	if clean == "" {
		return ""
	}
	base := path.Base(clean)
	if base == "." || base == ".." || base == "/" {
		return ""
	}
	return base
}

// Normalize 去掉目录部分以及结尾的 .jpg（大小写不敏感），对任意输入都返回结果。
func Normalize(raw string) string {
	name := Extract(raw)
	for hasExtension(name) {
		name = name[:len(name)-len(Extension)]
	}
	if name == "." || name == ".." {
		return ""
	}
	return name
}

// Validate 判断原始输入是否可以安全地作为图片名使用。
func Validate(raw string) bool {
	if raw == "" || len(raw) > maxRawLength {
		return false
	}
	if strings.Contains(raw, "..") {
		return false
	}
	for i := 0; i < len(raw); i++ {
		if !allowedByte(raw[i]) {
			return false
		}
	}
	return canonicalPattern.MatchString(Normalize(raw))
}

// Parse 校验并规范化原始输入，失败时返回包裹 ErrInvalidName 的错误。
func Parse(raw string) (Name, error) {
	if !Validate(raw) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, raw)
	}
	return Name(Normalize(raw)), nil
}

func hasExtension(name string) bool {
	return len(name) > len(Extension) && strings.EqualFold(name[len(name)-len(Extension):], Extension)
}

func allowedByte(b byte) bool {
	switch {
	case b >= '0' && b <= '9':
		return true
	case b >= 'a' && b <= 'z':
		return true
	case b >= 'A' && b <= 'Z':
		return true
	case b == '.', b == '/', b == '_', b == '-':
		return true
	}
	return false
}
