package immich

import (
	"errors"
	"fmt"
)

// ErrUpstreamUnreachable 表示传输层无法到达 Immich（连接拒绝、超时、DNS 失败等）。
// 调用方通过 errors.Is 与“资产不可用”区分：前者值得稍后重试，后者视为永久缺图。
var ErrUpstreamUnreachable = errors.New("immich unreachable")

// APIError 表示上游可达但返回了非 200 状态，保留状态码与正文片段便于诊断。
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("immich api error: status=%d", e.Status)
	}
	return fmt.Sprintf("immich api error: status=%d body=%s", e.Status, e.Body)
}

// connectError 统一包装传输层错误，保证 errors.Is(err, ErrUpstreamUnreachable) 成立。
func connectError(err error) error {
	return fmt.Errorf("%w: %v", ErrUpstreamUnreachable, err)
}
