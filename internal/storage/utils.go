package storage

import (
	"fmt"
	"strconv"
)

// ParseID 将路径参数中的字符串转换为记录 ID。
// 0 不是合法的 ID，同样返回错误。
func ParseID(s string) (uint, error) {
	val, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	if val == 0 {
		return 0, fmt.Errorf("id must be positive")
	}
	return uint(val), nil
}
