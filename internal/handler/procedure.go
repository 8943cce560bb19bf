package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin/binding"
)

type procedureKind int

const (
	kindQuery procedureKind = iota
	kindMutation
)

func (k procedureKind) method() string {
	if k == kindMutation {
		return http.MethodPost
	}
	return http.MethodGet
}

// RequestContext 是每次过程调用的上下文，由认证后的请求构建
type RequestContext struct {
	Ctx      context.Context
	UserID   string
	Language string
}

type procedureFunc func(rc *RequestContext, raw json.RawMessage) (any, error)

type procedure struct {
	name string
	kind procedureKind
	call procedureFunc
}

// inputError 表示输入无法解码或未通过结构校验
type inputError struct {
	err error
}

func (e *inputError) Error() string { return e.err.Error() }
func (e *inputError) Unwrap() error { return e.err }

func query[In any](a *API, name string, fn func(rc *RequestContext, in In) (any, error)) {
	a.register(name, kindQuery, typed(fn))
}

func mutation[In any](a *API, name string, fn func(rc *RequestContext, in In) (any, error)) {
	a.register(name, kindMutation, typed(fn))
}

func (a *API) register(name string, kind procedureKind, fn procedureFunc) {
	if _, exists := a.procedures[name]; exists {
		panic(fmt.Sprintf("procedure %s registered twice", name))
	}
	a.procedures[name] = procedure{name: name, kind: kind, call: fn}
}

// typed 负责解码与校验输入，再调用强类型的过程函数
func typed[In any](fn func(rc *RequestContext, in In) (any, error)) procedureFunc {
	return func(rc *RequestContext, raw json.RawMessage) (any, error) {
		var in In
		if err := decodeInput(raw, &in); err != nil {
			return nil, err
		}
		return fn(rc, in)
	}
}

func decodeInput(raw json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, dst); err != nil {
			return &inputError{err: fmt.Errorf("malformed input: %w", err)}
		}
	}
	if binding.Validator == nil {
		return nil
	}
	if err := binding.Validator.ValidateStruct(dst); err != nil {
		return &inputError{err: err}
	}
	return nil
}
