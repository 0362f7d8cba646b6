package factory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/embedpool/pool"
	"github.com/fyerfyer/embedpool/pool/adapters"
	"github.com/fyerfyer/embedpool/prefs"
)

func quietLogger() logrus.FieldLogger {
	logger, _ := logtest.NewNullLogger()
	return logger
}

func writeProperties(t *testing.T, dir, poolID, poolType string) string {
	t.Helper()
	content := fmt.Sprintf(`db.path=%s
db.user=sa
db.password=secret
db.maxconnections=2
db.poolid=%s
db.pooltype=%s
db.reapinterval=0s
`, filepath.ToSlash(filepath.Join(dir, poolID+".db")), poolID, poolType)

	path := filepath.Join(dir, poolID+".properties")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{in: "", want: KindSelfManaged},
		{in: "myown", want: KindSelfManaged},
		{in: "MyOwn", want: KindSelfManaged},
		{in: " puddle ", want: KindPuddle},
		{in: "hikaricp", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownKind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	p := prefs.FromMap(map[string]string{
		prefs.KeyPath:           filepath.Join(dir, "new.db"),
		prefs.KeyUser:           "sa",
		prefs.KeyPoolID:         "new",
		prefs.KeyMaxConnections: "3",
		prefs.KeyTrace:          "TRUE",
		prefs.KeyReapInterval:   "0s",
	})

	for _, kind := range []Kind{KindSelfManaged, KindPuddle} {
		t.Run(kind.String(), func(t *testing.T) {
			pl, err := New(kind, p, WithLogger(quietLogger()))
			require.NoError(t, err)

			assert.Equal(t, "new", pl.ID())
			stats := pl.Stats()
			assert.Equal(t, 3, stats.MaxConnections)
			assert.Equal(t, 3, stats.Available)

			conn, err := pl.Acquire(ctx)
			require.NoError(t, err)
			assert.IsType(t, &adapters.SQLiteConnection{}, conn)
			require.NoError(t, pl.Release(conn))

			require.NoError(t, pl.Shutdown(ctx))
		})
	}

	pl, err := New(KindSelfManaged, p, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.IsType(t, &pool.ConnectionPool{}, pl)
	// db.reapinterval=0s 不启动后台回收
	assert.False(t, pl.Stats().ReaperRunning)
	require.NoError(t, pl.Shutdown(ctx))
}

func TestNew_PreferenceErrors(t *testing.T) {
	dir := t.TempDir()

	// 缺少 db.poolid
	_, err := New(KindSelfManaged, prefs.FromMap(map[string]string{
		prefs.KeyPath: filepath.Join(dir, "x.db"),
		prefs.KeyUser: "sa",
	}), WithLogger(quietLogger()))
	var missing *prefs.MissingKeyError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, prefs.KeyPoolID, missing.Key)

	_, err = New(KindSelfManaged, prefs.FromMap(map[string]string{
		prefs.KeyPath:           filepath.Join(dir, "x.db"),
		prefs.KeyUser:           "sa",
		prefs.KeyPoolID:         "x",
		prefs.KeyMaxConnections: "many",
	}), WithLogger(quietLogger()))
	assert.ErrorIs(t, err, prefs.ErrInvalidValue)

	_, err = New(Kind("other"), prefs.FromMap(map[string]string{
		prefs.KeyPath:   filepath.Join(dir, "x.db"),
		prefs.KeyUser:   "sa",
		prefs.KeyPoolID: "x",
	}), WithLogger(quietLogger()))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	reg := pool.NewRegistry()
	defer reg.Shutdown(ctx)

	own := writeProperties(t, dir, "orders", "myown")
	first, err := Open(ctx, reg, own, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.IsType(t, &pool.ConnectionPool{}, first)

	// 同一个 poolid 返回同一个连接池，file: URL 和普通路径等价
	second, err := Open(ctx, reg, "file://"+filepath.ToSlash(own), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Same(t, first, second)

	delegated := writeProperties(t, dir, "events", "puddle")
	third, err := Open(ctx, reg, delegated, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.IsType(t, &adapters.PuddlePool{}, third)

	forced := writeProperties(t, dir, "audit", "puddle")
	fourth, err := Open(ctx, reg, forced, WithKind(KindSelfManaged), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.IsType(t, &pool.ConnectionPool{}, fourth)

	assert.Equal(t, []string{"audit", "events", "orders"}, reg.IDs())

	_, err = Open(ctx, reg, filepath.Join(dir, "missing.properties"), WithLogger(quietLogger()))
	assert.Error(t, err)

	_, err = Open(ctx, reg, "platform:/plugin/db.properties", WithLogger(quietLogger()))
	assert.ErrorIs(t, err, prefs.ErrUnsupportedSource)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = Open(cancelled, reg, own)
	assert.ErrorIs(t, err, context.Canceled)
}
