package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

// 接続プールの上限。スイープとHTTPハンドラーが同じプールを共有する。
const (
	maxOpenConns    = 20
	maxIdleConns    = 5
	connMaxLifetime = 30 * time.Minute
)

// Open はPostgreSQLの接続プールを開く。
// sql.Openは接続を試行しないため、疎通確認にはConnectまたはPingContextを使用すること。
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	return db, nil
}

// ConnectOptions はConnectの再試行設定。
type ConnectOptions struct {
	Attempts int           // Pingの最大試行回数。0以下は1回
	Wait     time.Duration // 試行間の待機時間
}

// Connect は接続プールを開き、Pingが成功するまで再試行する。
// docker-composeなどでDBの起動がアプリより遅れる場合に備える。
// すべての試行が失敗するかctxがキャンセルされた場合は、プールを閉じてエラーを返す。
func Connect(ctx context.Context, databaseURL string, opts ConnectOptions) (*sql.DB, error) {
	db, err := Open(databaseURL)
	if err != nil {
		return nil, err
	}

	attempts := max(opts.Attempts, 1)
	for i := 1; ; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return db, nil
		}
		if i >= attempts {
			break
		}

		slog.Warn("データベースに接続できません。再試行します",
			slog.Int("attempt", i),
			slog.Int("max_attempts", attempts),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", ctx.Err())
		case <-time.After(opts.Wait):
		}
	}

	db.Close()
	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", attempts, err)
}
