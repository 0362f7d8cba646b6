package adapters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/embedpool/pool"
	"github.com/fyerfyer/embedpool/pool/connlimit"
	"github.com/fyerfyer/embedpool/prefs"
)

// DriverName 是嵌入式数据库驱动的名称
const DriverName = "sqlite3"

// 连接字符串模板，按位置依次替换路径、用户和密码。
// go-sqlite3 只有在使用 sqlite_userauth 构建标签编译时才会校验 _auth_user 和 _auth_pass，
// 默认构建下这两个参数被忽略，用户和密码不影响会话。
const (
	connStringTemplate       = "file:%s?_auth_user=%s&_auth_pass=%s&_busy_timeout=5000"
	connStringTemplateNoPass = "file:%s?_auth_user=%s&_busy_timeout=5000"
)

var (
	// ErrConnectionClosed 表示在已关闭的连接上执行操作
	ErrConnectionClosed = errors.New("connection is closed")

	// ErrTxInProgress 表示连接上已经有一个事务
	ErrTxInProgress = errors.New("transaction already started")

	// ErrNoTx 表示连接上没有可回滚的事务
	ErrNoTx = errors.New("no transaction in progress")
)

// SQLiteConnection 实现 pool.Connection 接口，固定持有一个物理会话
type SQLiteConnection struct {
	id    string
	db    *sql.DB
	conn  *sql.Conn
	tx    *sql.Tx
	mutex sync.RWMutex

	closed bool
}

var _ pool.Connection = (*SQLiteConnection)(nil)

// ID 返回连接标识
func (c *SQLiteConnection) ID() string {
	return c.id
}

// Close 关闭物理会话，未提交的事务会被回滚
func (c *SQLiteConnection) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return nil
	}

	var err error
	// 如果有活跃的事务，回滚它
	if c.tx != nil {
		err = c.tx.Rollback()
		c.tx = nil
	}

	if closeErr := c.conn.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if closeErr := c.db.Close(); closeErr != nil && err == nil {
		err = closeErr
	}

	c.closed = true
	return err
}

// IsClosed 检查连接是否已经关闭
func (c *SQLiteConnection) IsClosed() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.closed
}

// Raw 返回底层的 *sql.Tx（有事务时）或 *sql.Conn
func (c *SQLiteConnection) Raw() interface{} {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if c.tx != nil {
		return c.tx
	}
	return c.conn
}

// BeginTx 开始一个事务，之后的 Exec/Query 都在这个事务中执行
func (c *SQLiteConnection) BeginTx(ctx context.Context, opts *sql.TxOptions) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}
	if c.tx != nil {
		return ErrTxInProgress
	}

	tx, err := c.conn.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	c.tx = tx
	return nil
}

// Commit 提交当前事务。没有事务时数据库处于自动提交模式，直接返回 nil。
func (c *SQLiteConnection) Commit() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}
	if c.tx == nil {
		return nil
	}

	err := c.tx.Commit()
	c.tx = nil
	return err
}

// Rollback 回滚当前事务
func (c *SQLiteConnection) Rollback() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.tx == nil {
		return ErrNoTx
	}

	err := c.tx.Rollback()
	c.tx = nil
	return err
}

// InTx 返回连接上是否有进行中的事务
func (c *SQLiteConnection) InTx() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.tx != nil
}

// ExecContext 执行不返回行的语句
func (c *SQLiteConnection) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if c.closed {
		return nil, ErrConnectionClosed
	}
	if c.tx != nil {
		return c.tx.ExecContext(ctx, query, args...)
	}
	return c.conn.ExecContext(ctx, query, args...)
}

// QueryContext 执行查询
func (c *SQLiteConnection) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if c.closed {
		return nil, ErrConnectionClosed
	}
	if c.tx != nil {
		return c.tx.QueryContext(ctx, query, args...)
	}
	return c.conn.QueryContext(ctx, query, args...)
}

// QueryRowContext 执行最多返回一行的查询
func (c *SQLiteConnection) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if c.tx != nil {
		return c.tx.QueryRowContext(ctx, query, args...)
	}
	return c.conn.QueryRowContext(ctx, query, args...)
}

// SQLiteConfig 定义 SQLite 连接工厂的配置
type SQLiteConfig struct {
	// 数据源名称（连接字符串）
	DataSourceName string

	// 初始化函数，在每个新会话打开后调用，例如设置 PRAGMA
	InitFunc func(ctx context.Context, conn *sql.Conn) error

	// 可选的打开速率限制。Create 可能在连接池持锁时被调用，
	// 因此只用 Allow 检查，超过速率时立即失败
	Limiter connlimit.Limiter

	// 日志记录器
	Logger logrus.FieldLogger
}

// ConnectionString 用配置中的路径、用户和密码拼出连接字符串。
// 没有配置密码时使用不带密码的模板。
// 凭据只在 sqlite_userauth 构建标签下生效，默认构建下任何用户和密码都能打开文件。
func ConnectionString(p *prefs.Preferences) (string, error) {
	path, err := p.Path()
	if err != nil {
		return "", err
	}
	user, err := p.User()
	if err != nil {
		return "", err
	}

	if password, ok := p.Password(); ok {
		return fmt.Sprintf(connStringTemplate, path, url.QueryEscape(user), url.QueryEscape(password)), nil
	}
	return fmt.Sprintf(connStringTemplateNoPass, path, url.QueryEscape(user)), nil
}

// SQLiteConnectionFactory 创建 SQLite 连接的工厂，是唯一调用数据库驱动的地方
type SQLiteConnectionFactory struct {
	config *SQLiteConfig
	log    logrus.FieldLogger
}

var _ pool.ConnectionFactory = (*SQLiteConnectionFactory)(nil)

// NewSQLiteConnectionFactory 创建一个新的 SQLite 连接工厂
func NewSQLiteConnectionFactory(config *SQLiteConfig) (*SQLiteConnectionFactory, error) {
	if config == nil {
		return nil, fmt.Errorf("SQLite configuration cannot be nil")
	}
	if config.DataSourceName == "" {
		return nil, fmt.Errorf("SQLite data source name cannot be empty")
	}

	log := config.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &SQLiteConnectionFactory{
		config: config,
		log:    log,
	}, nil
}

// FactoryFromPreferences 根据连接池配置创建连接工厂，configure 可以补充其余配置
func FactoryFromPreferences(p *prefs.Preferences, configure ...func(*SQLiteConfig)) (*SQLiteConnectionFactory, error) {
	dsn, err := ConnectionString(p)
	if err != nil {
		return nil, err
	}

	config := &SQLiteConfig{DataSourceName: dsn}
	for _, fn := range configure {
		fn(config)
	}
	return NewSQLiteConnectionFactory(config)
}

// Create 实现 pool.ConnectionFactory 接口，打开一个新的物理会话
func (f *SQLiteConnectionFactory) Create(ctx context.Context) (pool.Connection, error) {
	if f.config.Limiter != nil && !f.config.Limiter.Allow() {
		return nil, fmt.Errorf("%w: %w", pool.ErrConnectFailure, connlimit.ErrRateLimited)
	}

	db, err := sql.Open(DriverName, f.config.DataSourceName)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", pool.ErrConnectFailure, err)
	}

	// 每个句柄只对应一个物理会话
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to open session: %w", pool.ErrConnectFailure, err)
	}

	// 如果提供了初始化函数，执行它
	if f.config.InitFunc != nil {
		if err := f.config.InitFunc(ctx, conn); err != nil {
			conn.Close()
			db.Close()
			return nil, fmt.Errorf("%w: session initialization failed: %w", pool.ErrConnectFailure, err)
		}
	}

	c := &SQLiteConnection{
		id:   uuid.NewString(),
		db:   db,
		conn: conn,
	}
	f.log.WithField("conn_id", c.id).Debug("opened database session")

	return c, nil
}
