package emergency

import "time"

// Domain 求助类别（封闭枚举，持久化为字符串）。
type Domain string

const (
	DomainMedical Domain = "medical" // 医疗求助，由医院受理
	DomainVehicle Domain = "vehicle" // 车辆故障求助，由机修方受理
)

// Valid 判断是否是已知类别。
func (d Domain) Valid() bool {
	return d == DomainMedical || d == DomainVehicle
}

// Status 求助状态枚举（持久化为字符串）。
type Status string

const (
	StatusPending  Status = "pending"  // 待受理
	StatusAccepted Status = "accepted" // 已受理（终态，绑定责任方）
	StatusDeclined Status = "declined" // 已拒绝（终态，仅车辆类）
	// StatusCancelled 仅作为状态机的目标存在：取消即从登记表硬删除，
	// 不会有记录停留在该状态。
	StatusCancelled Status = "cancelled"
)

// Request 求助请求 GORM 模型。
type Request struct {
	ID     string `gorm:"primaryKey;size:36"`
	Domain Domain `gorm:"type:varchar(16);index;not null"`
	Status Status `gorm:"type:varchar(16);index;not null"`

	// 业务关联
	RequesterID string `gorm:"index;size:36;not null"` // 发起人
	ResponderID string `gorm:"index;size:36"`          // 受理方；空串表示未绑定，pending->accepted 时设置且仅设置一次

	// 发起人资料（创建时落快照，受理方列表无需再查账号）
	RequesterName  string `gorm:"size:64"`
	RequesterPhone string `gorm:"size:32"`

	// 通用描述字段
	Type      string  `gorm:"size:64"`  // 求助类型（心脏骤停 / 爆胎等）
	Location  string  `gorm:"size:255"` // 地理编码后的地址字符串
	Latitude  float64 `gorm:"default:0"`
	Longitude float64 `gorm:"default:0"`

	// 医疗类负载
	MedicalConditions  string `gorm:"size:512"`
	MedicalCertificate string `gorm:"size:512"` // 外部文件服务返回的 URL

	// 车辆类负载
	VehicleType string `gorm:"size:64"`
	Description string `gorm:"size:512"`
	Notes       string `gorm:"size:512"`

	// 时间信息
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
	AcceptedAt *time.Time
	DeclinedAt *time.Time
}

// TableName 保持与既有数据一致的表名。
func (Request) TableName() string {
	return "emergency_requests"
}

// Bound 判断是否已绑定责任方。
// 不变式：Status == StatusAccepted 当且仅当 ResponderID 非空。
func (r *Request) Bound() bool {
	return r.ResponderID != ""
}
