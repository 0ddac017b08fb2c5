package emergency

import (
	"fmt"
	"time"
)

// AllowTransition 定义求助状态机的允许流转关系。
// 流转是单向的：pending 是唯一的非终态。
var AllowTransition = map[Status][]Status{
	StatusPending: {StatusAccepted, StatusDeclined, StatusCancelled},
	// 终态：不允许从 accepted / declined / cancelled 再流转
	StatusAccepted:  {},
	StatusDeclined:  {},
	StatusCancelled: {},
}

// CanTransition 判断 from -> to 是否是一个允许的状态流转。
func CanTransition(from, to Status) bool {
	allowed, ok := AllowTransition[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// ApplyTransition 对请求应用状态变更，并维护关键时间字段。
func ApplyTransition(r *Request, to Status, now time.Time) error {
	if r == nil {
		return fmt.Errorf("request is nil")
	}
	from := r.Status
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid request status transition: %s -> %s", from, to)
	}

	r.Status = to

	switch to {
	case StatusAccepted:
		if r.AcceptedAt == nil {
			t := now
			r.AcceptedAt = &t
		}
	case StatusDeclined:
		if r.DeclinedAt == nil {
			t := now
			r.DeclinedAt = &t
		}
	}
	return nil
}

// Accept 将请求流转到 accepted 并绑定责任方。
// ResponderID 只会在这里设置一次（pending -> accepted）。
func Accept(r *Request, responderID string, now time.Time) error {
	if responderID == "" {
		return fmt.Errorf("responder id is empty")
	}
	if r != nil && r.Bound() {
		return fmt.Errorf("request %s already bound to %s", r.ID, r.ResponderID)
	}
	if err := ApplyTransition(r, StatusAccepted, now); err != nil {
		return err
	}
	r.ResponderID = responderID
	return nil
}
