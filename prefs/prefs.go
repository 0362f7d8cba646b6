package prefs

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/magiconair/properties"
)

// 配置键
const (
	KeyPath           = "db.path"
	KeyUser           = "db.user"
	KeyPassword       = "db.password"
	KeyMaxConnections = "db.maxconnections"
	KeyPoolID         = "db.poolid"
	KeyTrace          = "db.trace"
	KeyPoolType       = "db.pooltype"
	KeyReapInterval   = "db.reapinterval"
)

const (
	// DefaultMaxConnections 是未配置或配置为非正数时使用的最大连接数
	DefaultMaxConnections = 10

	// DefaultReapInterval 是回收任务的默认执行间隔
	DefaultReapInterval = 60 * time.Second

	// DefaultPoolType 是未配置 db.pooltype 时使用的连接池类型
	DefaultPoolType = "myown"
)

var (
	// ErrMissingKey 表示请求的配置项不存在
	ErrMissingKey = errors.New("preference not defined")

	// ErrInvalidValue 表示配置项的值无法解析
	ErrInvalidValue = errors.New("invalid preference value")
)

// MissingKeyError 携带缺失的配置键名
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("preference %q is not defined", e.Key)
}

// Unwrap 使 errors.Is(err, ErrMissingKey) 成立
func (e *MissingKeyError) Unwrap() error {
	return ErrMissingKey
}

// Preferences 是连接池的只读配置。
// 加载时不做校验，每个访问器在读取时独立检查对应的键是否存在。
type Preferences struct {
	props *properties.Properties
}

// FromMap 从内存中的键值对创建配置
func FromMap(m map[string]string) *Preferences {
	props := properties.NewProperties()
	props.DisableExpansion = true
	for k, v := range m {
		// 关闭了变量展开，Set 不会失败
		_, _, _ = props.Set(k, v)
	}
	return &Preferences{props: props}
}

func fromProperties(props *properties.Properties) *Preferences {
	props.DisableExpansion = true
	return &Preferences{props: props}
}

// Path 返回数据库路径
func (p *Preferences) Path() (string, error) {
	return p.require(KeyPath)
}

// User 返回连接使用的用户名
func (p *Preferences) User() (string, error) {
	return p.require(KeyUser)
}

// Password 返回密码。未配置密码时返回 ("", false)，不会返回错误，
// 这与空字符串密码 ("", true) 是不同的。
func (p *Preferences) Password() (string, bool) {
	return p.props.Get(KeyPassword)
}

// MaxConnections 返回最大连接数，未配置或非正数时返回 DefaultMaxConnections
func (p *Preferences) MaxConnections() (int, error) {
	raw, ok := p.props.Get(KeyMaxConnections)
	if !ok {
		return DefaultMaxConnections, nil
	}

	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidValue, KeyMaxConnections, raw)
	}
	if n <= 0 {
		return DefaultMaxConnections, nil
	}
	return n, nil
}

// PoolID 返回连接池标识
func (p *Preferences) PoolID() (string, error) {
	return p.require(KeyPoolID)
}

// Trace 返回是否开启连接跟踪日志，只有值为 "true"（不区分大小写）时才开启
func (p *Preferences) Trace() bool {
	raw, ok := p.props.Get(KeyTrace)
	if !ok {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(raw), "true")
}

// PoolType 返回连接池类型
func (p *Preferences) PoolType() string {
	raw, ok := p.props.Get(KeyPoolType)
	if !ok || strings.TrimSpace(raw) == "" {
		return DefaultPoolType
	}
	return strings.ToLower(strings.TrimSpace(raw))
}

// ReapInterval 返回回收任务的执行间隔
func (p *Preferences) ReapInterval() (time.Duration, error) {
	raw, ok := p.props.Get(KeyReapInterval)
	if !ok {
		return DefaultReapInterval, nil
	}

	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidValue, KeyReapInterval, raw)
	}
	return d, nil
}

// Get 返回任意键的原始值
func (p *Preferences) Get(key string) (string, bool) {
	return p.props.Get(key)
}

// Keys 返回排序后的所有配置键
func (p *Preferences) Keys() []string {
	keys := p.props.Keys()
	sort.Strings(keys)
	return keys
}

// String 返回用于日志的配置摘要，密码会被隐藏
func (p *Preferences) String() string {
	var sb strings.Builder
	for i, key := range p.Keys() {
		if i > 0 {
			sb.WriteString(" ")
		}
		value, _ := p.props.Get(key)
		if key == KeyPassword {
			value = "xxxxxx"
		}
		sb.WriteString(key)
		sb.WriteString("=")
		sb.WriteString(value)
	}
	return sb.String()
}

func (p *Preferences) require(key string) (string, error) {
	value, ok := p.props.Get(key)
	if !ok {
		return "", &MissingKeyError{Key: key}
	}
	return value, nil
}
