package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"auth_backend/internal/shared/apperr"
)

// ConnectionError はストアに到達できない、または接続が使用不能であることを表します。
// 呼び出し側はこれをプロセスにとって致命的なエラーとして扱ってはいけません。
type ConnectionError struct {
	Op    string
	Cause error
}

func (e *ConnectionError) Error() string {
	return "database connection (" + e.Op + "): " + e.Cause.Error()
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

// ErrorKind はHTTP層で ServiceUnavailable に分類させます。
func (e *ConnectionError) ErrorKind() apperr.Kind { return apperr.KindServiceUnavailable }

// SchemaError はスキーマ初期化の失敗を表します。
type SchemaError struct {
	Cause error
}

func (e *SchemaError) Error() string { return "schema initialization: " + e.Cause.Error() }

func (e *SchemaError) Unwrap() error { return e.Cause }

func (e *SchemaError) ErrorKind() apperr.Kind { return apperr.KindServiceUnavailable }

// isConnectionFailure はクエリ中のエラーが接続断によるものかを判定します。
func isConnectionFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}
	// database/sql は閉じたプールのエラーを公開していない
	if strings.Contains(err.Error(), errDBClosedText) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

const errDBClosedText = "sql: database is closed"
