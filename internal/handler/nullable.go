package handler

import (
	"bytes"
	"encoding/json"
)

var jsonNull = []byte("null")

// nullableString 区分字段缺失、显式 null 与普通值
// 缺失时保持不变，null 表示清空
type nullableString struct {
	Set   bool
	Value *string
}

func (n *nullableString) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), jsonNull) {
		n.Value = nil
		return nil
	}
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	n.Value = &value
	return nil
}

// patch 转换为服务层约定：nil 不修改，空串清空
func (n nullableString) patch() *string {
	if !n.Set {
		return nil
	}
	if n.Value == nil {
		empty := ""
		return &empty
	}
	return n.Value
}

type nullableFloat struct {
	Set   bool
	Value *float64
}

func (n *nullableFloat) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), jsonNull) {
		n.Value = nil
		return nil
	}
	var value float64
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	n.Value = &value
	return nil
}

// cleared 报告字段是否被显式置为 null
func (n nullableFloat) cleared() bool {
	return n.Set && n.Value == nil
}
