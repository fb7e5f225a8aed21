// Package failure 定义采集/抽取链路的错误分类，替代“吞掉异常”的做法，
// 让调用方能区分配置错误、网络错误、解析错误与空结果。
package failure

import (
	"errors"
	"fmt"
)

// Kind 错误类别
type Kind string

const (
	KindNone          Kind = ""
	KindConfiguration Kind = "configuration"
	KindTransport     Kind = "transport"
	KindParse         Kind = "parse"
	KindEmpty         Kind = "empty"
)

// Error 带类别与上下文的错误
type Error struct {
	Kind Kind
	Op   string
	URL  string
	Err  error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.URL != "" {
		msg += " (" + e.URL + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op, url string, err error) *Error {
	return &Error{Kind: kind, Op: op, URL: url, Err: err}
}

// Configuration 未知 source key 等运维配置问题，唯一会直接返回给调用方的硬错误
func Configuration(op string, err error) *Error {
	return newError(KindConfiguration, op, "", err)
}

// Transport 超时、连接失败、非 200 状态
func Transport(op, url string, err error) *Error {
	return newError(KindTransport, op, url, err)
}

// Parse HTML/JSON 结构异常、选择器非法
func Parse(op, url string, err error) *Error {
	return newError(KindParse, op, url, err)
}

// Empty 请求成功但没有得到任何有效内容
func Empty(op, url string) *Error {
	return newError(KindEmpty, op, url, nil)
}

// Status 构造非 200 状态对应的传输错误
func Status(op, url string, code int) *Error {
	return Transport(op, url, fmt.Errorf("unexpected status %d", code))
}

// KindOf 返回错误链中第一个 *Error 的类别；普通错误视为传输错误
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindTransport
}

// Is 判断错误链中是否存在指定类别
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
