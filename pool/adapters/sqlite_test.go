package adapters

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/embedpool/pool"
	"github.com/fyerfyer/embedpool/pool/connlimit"
	"github.com/fyerfyer/embedpool/prefs"
)

func quietLogger() logrus.FieldLogger {
	logger, _ := logtest.NewNullLogger()
	return logger
}

func testPreferences(t *testing.T, extra map[string]string) *prefs.Preferences {
	t.Helper()
	m := map[string]string{
		prefs.KeyPath:   filepath.Join(t.TempDir(), "test.db"),
		prefs.KeyUser:   "sa",
		prefs.KeyPoolID: "test",
	}
	for k, v := range extra {
		m[k] = v
	}
	return prefs.FromMap(m)
}

func newTestFactory(t *testing.T) *SQLiteConnectionFactory {
	t.Helper()
	f, err := FactoryFromPreferences(testPreferences(t, nil), func(c *SQLiteConfig) {
		c.Logger = quietLogger()
	})
	require.NoError(t, err)
	return f
}

func TestConnectionString(t *testing.T) {
	tests := []struct {
		name string
		m    map[string]string
		want string
	}{
		{
			name: "with password",
			m:    map[string]string{prefs.KeyPath: "/tmp/x.db", prefs.KeyUser: "sa", prefs.KeyPassword: "secret"},
			want: "file:/tmp/x.db?_auth_user=sa&_auth_pass=secret&_busy_timeout=5000",
		},
		{
			name: "without password",
			m:    map[string]string{prefs.KeyPath: "/tmp/x.db", prefs.KeyUser: "sa"},
			want: "file:/tmp/x.db?_auth_user=sa&_busy_timeout=5000",
		},
		{
			name: "empty password is still a password",
			m:    map[string]string{prefs.KeyPath: "/tmp/x.db", prefs.KeyUser: "sa", prefs.KeyPassword: ""},
			want: "file:/tmp/x.db?_auth_user=sa&_auth_pass=&_busy_timeout=5000",
		},
		{
			name: "credentials are escaped",
			m:    map[string]string{prefs.KeyPath: "/tmp/x.db", prefs.KeyUser: "a&b", prefs.KeyPassword: "p=w"},
			want: "file:/tmp/x.db?_auth_user=a%26b&_auth_pass=p%3Dw&_busy_timeout=5000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConnectionString(prefs.FromMap(tt.m))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ConnectionString(prefs.FromMap(map[string]string{prefs.KeyUser: "sa"}))
	assert.ErrorIs(t, err, prefs.ErrMissingKey)

	var missing *prefs.MissingKeyError
	_, err = FactoryFromPreferences(prefs.FromMap(map[string]string{prefs.KeyPath: "/tmp/x.db"}))
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, prefs.KeyUser, missing.Key)
}

func TestNewSQLiteConnectionFactory_Validation(t *testing.T) {
	_, err := NewSQLiteConnectionFactory(nil)
	assert.Error(t, err)

	_, err = NewSQLiteConnectionFactory(&SQLiteConfig{})
	assert.Error(t, err)
}

func TestSQLiteConnection_Basic(t *testing.T) {
	ctx := context.Background()
	f := newTestFactory(t)

	c, err := f.Create(ctx)
	require.NoError(t, err)
	conn := c.(*SQLiteConnection)

	assert.NotEmpty(t, conn.ID())
	assert.False(t, conn.IsClosed())
	assert.IsType(t, &sql.Conn{}, conn.Raw())

	_, err = conn.ExecContext(ctx, "CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, "INSERT INTO items (name) VALUES (?)", "a")
	require.NoError(t, err)

	// 没有事务时提交是空操作
	require.NoError(t, conn.Commit())

	var count int
	require.NoError(t, conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&count))
	assert.Equal(t, 1, count)

	require.NoError(t, conn.Close())
	assert.True(t, conn.IsClosed())
	assert.NoError(t, conn.Close())

	_, err = conn.ExecContext(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.ErrorIs(t, conn.Commit(), ErrConnectionClosed)

	// 每个连接有独立的标识
	other, err := f.Create(ctx)
	require.NoError(t, err)
	defer other.Close()
	assert.NotEqual(t, conn.ID(), other.ID())
}

func TestSQLiteConnection_Transaction(t *testing.T) {
	ctx := context.Background()
	f := newTestFactory(t)

	c, err := f.Create(ctx)
	require.NoError(t, err)
	conn := c.(*SQLiteConnection)
	defer conn.Close()

	_, err = conn.ExecContext(ctx, "CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)

	// 回滚
	require.NoError(t, conn.BeginTx(ctx, nil))
	assert.True(t, conn.InTx())
	assert.IsType(t, &sql.Tx{}, conn.Raw())
	assert.ErrorIs(t, conn.BeginTx(ctx, nil), ErrTxInProgress)
	_, err = conn.ExecContext(ctx, "INSERT INTO items (name) VALUES ('rolled back')")
	require.NoError(t, err)
	require.NoError(t, conn.Rollback())
	assert.False(t, conn.InTx())
	assert.ErrorIs(t, conn.Rollback(), ErrNoTx)

	// 提交
	require.NoError(t, conn.BeginTx(ctx, nil))
	_, err = conn.ExecContext(ctx, "INSERT INTO items (name) VALUES ('committed')")
	require.NoError(t, err)
	require.NoError(t, conn.Commit())

	rows, err := conn.QueryContext(ctx, "SELECT name FROM items")
	require.NoError(t, err)
	var names []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	rows.Close()
	assert.Equal(t, []string{"committed"}, names)
}

func TestSQLiteConnection_CloseRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newTestFactory(t)

	setup, err := f.Create(ctx)
	require.NoError(t, err)
	_, err = setup.(*SQLiteConnection).ExecContext(ctx, "CREATE TABLE items (name TEXT)")
	require.NoError(t, err)
	require.NoError(t, setup.Close())

	c, err := f.Create(ctx)
	require.NoError(t, err)
	conn := c.(*SQLiteConnection)
	require.NoError(t, conn.BeginTx(ctx, nil))
	_, err = conn.ExecContext(ctx, "INSERT INTO items VALUES ('lost')")
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	check, err := f.Create(ctx)
	require.NoError(t, err)
	defer check.Close()
	var count int
	require.NoError(t, check.(*SQLiteConnection).QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestSQLiteConnectionFactory_ConnectFailure(t *testing.T) {
	// 父目录不存在，无法打开数据库文件
	p := prefs.FromMap(map[string]string{
		prefs.KeyPath: filepath.Join(t.TempDir(), "missing", "dir", "test.db"),
		prefs.KeyUser: "sa",
	})
	f, err := FactoryFromPreferences(p, func(c *SQLiteConfig) { c.Logger = quietLogger() })
	require.NoError(t, err)

	_, err = f.Create(context.Background())
	assert.ErrorIs(t, err, pool.ErrConnectFailure)
}

func TestSQLiteConnectionFactory_InitFunc(t *testing.T) {
	ctx := context.Background()
	var calls int
	f, err := FactoryFromPreferences(testPreferences(t, nil), func(c *SQLiteConfig) {
		c.Logger = quietLogger()
		c.InitFunc = func(ctx context.Context, conn *sql.Conn) error {
			calls++
			_, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON")
			return err
		}
	})
	require.NoError(t, err)

	c, err := f.Create(ctx)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, 1, calls)

	var fk int
	require.NoError(t, c.(*SQLiteConnection).QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)

	failing, err := FactoryFromPreferences(testPreferences(t, nil), func(c *SQLiteConfig) {
		c.Logger = quietLogger()
		c.InitFunc = func(context.Context, *sql.Conn) error { return errors.New("init failed") }
	})
	require.NoError(t, err)
	_, err = failing.Create(ctx)
	assert.ErrorIs(t, err, pool.ErrConnectFailure)
}

func TestSQLiteConnectionFactory_Limiter(t *testing.T) {
	f, err := FactoryFromPreferences(testPreferences(t, nil), func(c *SQLiteConfig) {
		c.Logger = quietLogger()
		c.Limiter = connlimit.NewTokenBucketLimiter(0.1, 1)
	})
	require.NoError(t, err)

	c, err := f.Create(context.Background())
	require.NoError(t, err)
	defer c.Close()

	// 超过速率时立即失败，不等待令牌
	start := time.Now()
	_, err = f.Create(context.Background())
	assert.ErrorIs(t, err, pool.ErrConnectFailure)
	assert.ErrorIs(t, err, connlimit.ErrRateLimited)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

// 受限的打开请求不会占住连接池的锁
func TestConnectionPool_LimiterDoesNotBlockRelease(t *testing.T) {
	ctx := context.Background()
	f, err := FactoryFromPreferences(testPreferences(t, nil), func(c *SQLiteConfig) {
		c.Logger = quietLogger()
		c.Limiter = connlimit.NewTokenBucketLimiter(0.5, 1)
	})
	require.NoError(t, err)

	p := pool.NewPool(f,
		pool.WithPoolID("limited"),
		pool.WithMaxConnections(1),
		pool.WithReapInterval(0),
		pool.WithWarmup(false),
		pool.WithLogger(quietLogger()),
	)
	defer p.Shutdown(ctx)

	first, err := p.Acquire(ctx)
	require.NoError(t, err)

	acquired := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx)
		acquired <- err
	}()

	start := time.Now()
	require.NoError(t, p.Release(first))
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	select {
	case err := <-acquired:
		// 第二次 Acquire 要么拿到刚归还的连接，要么因为限速立即失败
		if err != nil {
			assert.ErrorIs(t, err, pool.ErrConnectFailure)
			assert.ErrorIs(t, err, connlimit.ErrRateLimited)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("acquire blocked on the open-rate limiter")
	}
}

// 连接池关闭时，使用中的连接上未提交的事务会被提交
func TestConnectionPool_ShutdownCommitsInUse(t *testing.T) {
	ctx := context.Background()
	f := newTestFactory(t)

	p := pool.NewPool(f,
		pool.WithPoolID("test"),
		pool.WithMaxConnections(2),
		pool.WithReapInterval(0),
		pool.WithLogger(quietLogger()),
	)

	c, err := p.Acquire(ctx)
	require.NoError(t, err)
	conn := c.(*SQLiteConnection)
	_, err = conn.ExecContext(ctx, "CREATE TABLE items (name TEXT)")
	require.NoError(t, err)
	require.NoError(t, conn.BeginTx(ctx, nil))
	_, err = conn.ExecContext(ctx, "INSERT INTO items VALUES ('kept')")
	require.NoError(t, err)

	require.NoError(t, p.Shutdown(ctx))
	assert.True(t, conn.IsClosed())

	check, err := f.Create(ctx)
	require.NoError(t, err)
	defer check.Close()
	var count int
	require.NoError(t, check.(*SQLiteConnection).QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&count))
	assert.Equal(t, 1, count)
}
