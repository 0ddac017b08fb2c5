package store

import (
	"context"
	"errors"

	"github.com/RescueLink/RescueLink/internal/account"
	"github.com/RescueLink/RescueLink/internal/emergency"
	"github.com/RescueLink/RescueLink/internal/intake"
)

// ErrNotFound 点读未命中。各实现负责把底层的未命中错误映射到它。
var ErrNotFound = errors.New("store: not found")

// RequestFilter 求助列表的等值过滤条件。
type RequestFilter struct {
	Domain emergency.Domain // 空值表示不过滤
	Status emergency.Status // 空值表示不过滤
	// ResponderID 三态：nil 不过滤；指向空串要求未绑定；指向 id 要求绑定到该责任方。
	ResponderID *string
	// RequesterID 空值表示不过滤。
	RequesterID string
}

// Unbound 便捷构造：要求 responder 未绑定的过滤值。
func Unbound() *string {
	s := ""
	return &s
}

// Responder 便捷构造：要求绑定到指定责任方的过滤值。
func Responder(id string) *string {
	return &id
}

// Store 文档库抽象：点读写、等值过滤查询、跨实体事务。
//
// 约定：
//   - InTx 回调中的 Store 对读取的实体持排它锁，事务整体提交或整体回滚，
//     隔离级别满足可串行化（受理协议依赖这一点）。
//   - 事务外的单实体写为 last-write-wins。
//   - 所有 Save/Put 都会刷新实体的 UpdatedAt。
type Store interface {
	GetAccount(ctx context.Context, id string) (*account.Account, error)
	SaveAccount(ctx context.Context, a *account.Account) error

	GetRequest(ctx context.Context, id string) (*emergency.Request, error)
	CreateRequest(ctx context.Context, r *emergency.Request) error
	SaveRequest(ctx context.Context, r *emergency.Request) error
	DeleteRequest(ctx context.Context, id string) error
	ListRequests(ctx context.Context, f RequestFilter) ([]emergency.Request, error)

	GetForm(ctx context.Context, id string) (*intake.Form, error)
	PutForm(ctx context.Context, form *intake.Form) error

	InTx(ctx context.Context, fn func(tx Store) error) error
}
