package dispatch

import (
	"errors"
	"fmt"

	"github.com/RescueLink/RescueLink/internal/account"
)

// 调度核心的错误分类。所有操作在边界处返回这些错误之一（或其包装），
// 由外层转成用户可见的提示；没有任何错误会导致进程退出，
// 每个操作都可以通过重新调用重试。
var (
	// ErrNotAuthenticated 当前没有登录身份。
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrAlreadyHandled 请求在 accept/decline 时已不是 pending。
	ErrAlreadyHandled = errors.New("request already handled")
	// ErrInvalidTransition 取消非 pending 请求、非所有者操作等非法流转。
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrInvalidState 台账操作会产生非法状态（容量减到负数等）。
	ErrInvalidState = errors.New("invalid state")
	// ErrNotFound 实体不存在（请求可能已被取消硬删除）。
	ErrNotFound = errors.New("not found")
	// ErrDomainMismatch 责任方角色与请求类别不匹配。
	ErrDomainMismatch = errors.New("responder cannot serve this request domain")
	// ErrInsufficientCapacity 容量耗尽；具体缺口见 CapacityError。
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	// ErrBackendUnavailable 存储/身份后端不可用。
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// CapacityError 容量不足，Shortage 区分缺的是哪类资源（用于用户提示）。
// errors.Is(err, ErrInsufficientCapacity) 为真。
type CapacityError struct {
	Kind     account.Kind
	Shortage account.Shortage
}

func (e *CapacityError) Error() string {
	primary, secondary := e.Kind.UnitNames()
	switch e.Shortage {
	case ShortagePrimary:
		return fmt.Sprintf("no %s available", primary)
	case ShortageSecondary:
		return fmt.Sprintf("no %s available", secondary)
	default:
		return fmt.Sprintf("no %s or %s available", primary, secondary)
	}
}

func (e *CapacityError) Is(target error) bool {
	return target == ErrInsufficientCapacity
}

// 便于调用方不引入 account 包即可判断缺口类别。
const (
	ShortagePrimary   = account.ShortagePrimary
	ShortageSecondary = account.ShortageSecondary
	ShortageBoth      = account.ShortageBoth
)
