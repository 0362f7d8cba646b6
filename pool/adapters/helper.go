package adapters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fyerfyer/embedpool/pool"
)

// ErrNotSQLConnection 表示连接池发出的连接不是 SQLite 连接
var ErrNotSQLConnection = errors.New("not a SQL connection")

// SQLExecutor 定义 SQL 执行器接口，SQLiteConnection、*sql.Conn 和 *sql.Tx 都满足它
type SQLExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Database 是业务代码使用连接池的入口，每次操作取出一个连接并且只归还一次
type Database struct {
	pool pool.Pool
}

// NewDatabase 创建一个基于连接池的数据库助手
func NewDatabase(p pool.Pool) *Database {
	return &Database{
		pool: p,
	}
}

// Pool 返回底层连接池
func (d *Database) Pool() pool.Pool {
	return d.pool
}

// WithConnection 使用一个连接执行操作，操作结束后归还连接
func (d *Database) WithConnection(ctx context.Context, fn func(SQLExecutor) error) (err error) {
	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection from pool: %w", err)
	}
	defer func() {
		if relErr := d.pool.Release(conn); relErr != nil && err == nil {
			err = relErr
		}
	}()

	executor, ok := conn.(SQLExecutor)
	if !ok {
		return ErrNotSQLConnection
	}

	return fn(executor)
}

// WithTransaction 在事务中执行操作。fn 返回错误时回滚，否则提交。
func (d *Database) WithTransaction(ctx context.Context, opts *sql.TxOptions, fn func(SQLExecutor) error) (err error) {
	conn, err := d.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection from pool: %w", err)
	}
	defer func() {
		if relErr := d.pool.Release(conn); relErr != nil && err == nil {
			err = relErr
		}
	}()

	sqlConn, ok := conn.(*SQLiteConnection)
	if !ok {
		return ErrNotSQLConnection
	}

	// 开始事务
	if err := sqlConn.BeginTx(ctx, opts); err != nil {
		return err
	}

	// 执行事务操作，失败时回滚
	if err := fn(sqlConn); err != nil {
		if rbErr := sqlConn.Rollback(); rbErr != nil {
			return fmt.Errorf("operation failed (%w) and transaction rollback failed: %w", err, rbErr)
		}
		return err
	}

	// 提交事务
	if err := sqlConn.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Exec 执行不返回行的语句
func (d *Database) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	var result sql.Result
	err := d.WithConnection(ctx, func(executor SQLExecutor) error {
		var err error
		result, err = executor.ExecContext(ctx, query, args...)
		return err
	})
	return result, err
}

// Query 执行查询并处理结果集，结果集在 fn 返回后关闭
func (d *Database) Query(ctx context.Context, query string, args []interface{}, fn func(*sql.Rows) error) error {
	return d.WithConnection(ctx, func(executor SQLExecutor) error {
		rows, err := executor.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		if err := fn(rows); err != nil {
			return err
		}
		return rows.Err()
	})
}

// QueryRow 执行查询并处理单行结果
func (d *Database) QueryRow(ctx context.Context, query string, args []interface{}, fn func(*sql.Row) error) error {
	return d.WithConnection(ctx, func(executor SQLExecutor) error {
		return fn(executor.QueryRowContext(ctx, query, args...))
	})
}
