package prefs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/magiconair/properties"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format 表示配置文件格式
type Format string

const (
	// FormatProperties 是 key=value 形式的属性文件
	FormatProperties Format = "properties"
	// FormatYAML 是 YAML 文件，嵌套结构会被展开为点分隔的键
	FormatYAML Format = "yaml"
	// FormatTOML 是 TOML 文件，表会被展开为点分隔的键
	FormatTOML Format = "toml"
)

var (
	// ErrUnsupportedFormat 表示无法识别的配置格式
	ErrUnsupportedFormat = errors.New("unsupported preference format")

	// ErrUnsupportedSource 表示无法识别的配置来源
	ErrUnsupportedSource = errors.New("unsupported preference source")
)

// FormatFromPath 根据文件扩展名判断配置格式，未知扩展名按属性文件处理
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	default:
		return FormatProperties
	}
}

// Load 从属性文件流中加载配置
func Load(r io.Reader) (*Preferences, error) {
	return LoadFormat(r, FormatProperties)
}

// LoadFormat 按指定格式从流中加载配置
func LoadFormat(r io.Reader, format Format) (*Preferences, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	}
	return parse(data, format)
}

// LoadFile 从文件加载配置，格式由扩展名决定
func LoadFile(path string) (*Preferences, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read preferences file: %w", err)
	}
	return parse(data, FormatFromPath(path))
}

// LoadURL 从 URL 或路径加载配置。
// 支持 file: URL、http(s) URL（仅属性文件格式）以及普通文件路径。
func LoadURL(source string) (*Preferences, error) {
	path, remote, err := ResolveSource(source)
	if err != nil {
		return nil, err
	}

	if !remote {
		return LoadFile(path)
	}

	loader := &properties.Loader{
		Encoding:         properties.UTF8,
		DisableExpansion: true,
	}
	props, err := loader.LoadURL(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences from %s: %w", path, err)
	}
	return fromProperties(props), nil
}

// ResolveSource 把配置来源解析为本地路径或远程 URL。
// 不带 scheme 的字符串被当作本地路径。
func ResolveSource(source string) (location string, remote bool, err error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", false, fmt.Errorf("%w: empty source", ErrUnsupportedSource)
	}

	u, err := url.Parse(source)
	// Windows 盘符 (C:\...) 会被解析成单字母 scheme
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		return source, false, nil
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == "" {
			return "", false, fmt.Errorf("%w: %s", ErrUnsupportedSource, source)
		}
		return filepath.FromSlash(path), false, nil
	case "http", "https":
		return source, true, nil
	default:
		return "", false, fmt.Errorf("%w: %s", ErrUnsupportedSource, source)
	}
}

func parse(data []byte, format Format) (*Preferences, error) {
	switch format {
	case FormatProperties:
		loader := &properties.Loader{
			Encoding:         properties.UTF8,
			DisableExpansion: true,
		}
		props, err := loader.LoadBytes(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse properties: %w", err)
		}
		return fromProperties(props), nil

	case FormatYAML:
		var doc map[string]interface{}
		if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse yaml: %w", err)
		}
		return FromMap(flatten(doc)), nil

	case FormatTOML:
		var doc map[string]interface{}
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse toml: %w", err)
		}
		return FromMap(flatten(doc)), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// flatten 把嵌套的表展开成点分隔的键，例如 db: {path: x} 变成 db.path=x
func flatten(doc map[string]interface{}) map[string]string {
	out := make(map[string]string)
	flattenInto("", doc, out)
	return out
}

func flattenInto(prefix string, node map[string]interface{}, out map[string]string) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}

		switch val := v.(type) {
		case map[string]interface{}:
			flattenInto(key, val, out)
		case map[interface{}]interface{}:
			converted := make(map[string]interface{}, len(val))
			for ik, iv := range val {
				converted[fmt.Sprint(ik)] = iv
			}
			flattenInto(key, converted, out)
		case nil:
			out[key] = ""
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}
