// Package apperr はレイヤーをまたいで共有されるエラー分類（Kind）を定義します。
// ドメイン層はKindを持つエラーを返し、HTTP層はKindからステータスコードとエラー応答を決定します。
package apperr

import (
	"context"
	"errors"
)

// Kind はクライアントに公開されるエラー種別です。エラー応答の errorKind にそのまま使われます。
type Kind string

const (
	KindValidation         Kind = "ValidationError"
	KindUnauthorized       Kind = "Unauthorized"
	KindInvalidCredentials Kind = "InvalidCredentials"
	KindNotFound           Kind = "NotFound"
	KindMethodNotAllowed   Kind = "MethodNotAllowed"
	KindDuplicateHandle    Kind = "DuplicateHandle"
	KindTooManyRequests    Kind = "TooManyRequests"
	KindServiceUnavailable Kind = "ServiceUnavailable"
	KindUnexpected         Kind = "UnexpectedError"
)

// Kinder はエラー種別を申告できるエラーが実装するインターフェースです。
// apperr.Error 以外（db.ConnectionError など）もこれを実装することで分類されます。
type Kinder interface {
	ErrorKind() Kind
}

// Error はKindとクライアント向けメッセージを持つエラーです。
// Message はそのままレスポンスに載るため、内部情報を含めてはいけません。
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// New は原因を持たない Error を生成します。
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap は原因エラーを保持した Error を生成します。原因はログ用で、レスポンスには出ません。
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorKind は Kinder を実装します。
func (e *Error) ErrorKind() Kind { return e.Kind }

// Is は同じKindの *Error を同一視します。
// これにより errors.Is(err, domain.ErrValidation) がメッセージに関係なく成立します。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf はエラーチェーンからKindを取り出します。
// 分類できないエラーは KindUnexpected になります。
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var k Kinder
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	// ホスト側のタイムアウトで打ち切られた処理はリトライ可能な一時障害として扱う
	if errors.Is(err, context.DeadlineExceeded) {
		return KindServiceUnavailable
	}
	return KindUnexpected
}

// PublicMessage はクライアントへ返してよいメッセージを返します。
// *Error であればその Message、それ以外はKindごとの固定文言です。
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return DefaultMessage(KindOf(err))
}

// DefaultMessage はKindごとの汎用メッセージです。
func DefaultMessage(kind Kind) string {
	switch kind {
	case KindValidation:
		return "invalid request"
	case KindUnauthorized:
		return "authentication required"
	case KindInvalidCredentials:
		return "invalid handle or password"
	case KindNotFound:
		return "resource not found"
	case KindMethodNotAllowed:
		return "method not allowed"
	case KindDuplicateHandle:
		return "handle already registered"
	case KindTooManyRequests:
		return "too many requests"
	case KindServiceUnavailable:
		return "service temporarily unavailable"
	default:
		return "internal server error"
	}
}
