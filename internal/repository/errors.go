package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/lib/pq"

	"github.com/hitoshi/dhcommerce/internal/model"
)

// wrapStoreError はDB操作のエラーにメッセージを付与する。
// 接続レベルの障害の場合はmodel.ErrStoreUnavailableも同時にラップし、
// 呼び出し元がerrors.Isで判定できるようにする。
func wrapStoreError(msg string, err error) error {
	if isUnavailable(err) {
		return fmt.Errorf("%s: %w: %w", msg, model.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// isUnavailable はエラーがデータベースへの到達不能を示すかどうかを判定する。
func isUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 08: connection_exception, 57P01-57P03: admin_shutdown / crash_shutdown / cannot_connect_now
		switch {
		case pqErr.Code.Class() == "08":
			return true
		case pqErr.Code == "57P01", pqErr.Code == "57P02", pqErr.Code == "57P03":
			return true
		}
	}
	return false
}

// isUniqueViolation はエラーが一意制約違反(23505)かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}
