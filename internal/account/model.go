package account

import (
	"strings"
	"time"
)

// Kind 账号角色（封闭枚举；持久化为字符串）。
type Kind string

const (
	KindCivilian Kind = "user"     // 普通用户（发起求助）
	KindHospital Kind = "hospital" // 医院（受理医疗求助）
	KindMechanic Kind = "mechanic" // 机修方（受理车辆故障求助）
)

// Valid 判断是否是已知角色。
func (k Kind) Valid() bool {
	switch k {
	case KindCivilian, KindHospital, KindMechanic:
		return true
	}
	return false
}

// Responder 判断该角色是否持有可预订容量。
func (k Kind) Responder() bool {
	return k == KindHospital || k == KindMechanic
}

// UnitNames 返回两类容量计数的展示名称（用于容量不足的用户提示）。
func (k Kind) UnitNames() (primary, secondary string) {
	switch k {
	case KindHospital:
		return "beds", "ambulances"
	case KindMechanic:
		return "mechanics", "tow trucks"
	}
	return "primary units", "secondary units"
}

// Unit 容量计数的类别（手动增减时选择其一）。
type Unit string

const (
	UnitPrimary   Unit = "primary"   // 床位 / 机修工
	UnitSecondary Unit = "secondary" // 救护车 / 拖车
)

// Valid 判断是否是已知容量类别。
func (u Unit) Valid() bool {
	return u == UnitPrimary || u == UnitSecondary
}

// Shortage 容量不足的具体类别。
type Shortage int

const (
	ShortageNone      Shortage = iota // 两类均有余量
	ShortagePrimary                   // 仅第一类耗尽
	ShortageSecondary                 // 仅第二类耗尽
	ShortageBoth                      // 两类均耗尽
)

// Account 是 users 表的 GORM 模型。
// 容量字段只允许通过 dispatch.Ledger 修改。
type Account struct {
	ID    string `gorm:"primaryKey;size:36"`
	Kind  Kind   `gorm:"column:role;type:varchar(16);index;not null"`
	Name  string `gorm:"size:64;not null"`
	Phone string `gorm:"size:32"`
	Email string `gorm:"uniqueIndex;size:128;not null"`

	// 注册资料（由外部身份/文件服务产出，core 不解析内容）
	Address  string `gorm:"size:255"`
	City     string `gorm:"size:64"`
	Aadhaar  string `gorm:"size:16"`  // 用户/机修方实名证件号
	License  string `gorm:"size:64"`  // 医院执照编号
	Verified bool   `gorm:"not null;default:false"`

	// 用户侧医疗档案（随医疗求助一并展示给医院）
	MedicalConditions  string `gorm:"size:512"`
	MedicalCertificate string `gorm:"size:512"` // 外部文件服务返回的 URL

	// 可预订容量：医院为 床位/救护车，机修方为 机修工/拖车
	CapacityPrimary   int `gorm:"not null;default:0"`
	CapacitySecondary int `gorm:"not null;default:0"`

	PasswordHash string `gorm:"size:128"`
	PasswordSalt string `gorm:"size:64"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName 保持与既有数据一致的表名。
func (Account) TableName() string {
	return "users"
}

// CapacityShortage 对当前容量做分类：两类、仅第一类、仅第二类耗尽，或均有余量。
func (a *Account) CapacityShortage() Shortage {
	switch {
	case a.CapacityPrimary <= 0 && a.CapacitySecondary <= 0:
		return ShortageBoth
	case a.CapacityPrimary <= 0:
		return ShortagePrimary
	case a.CapacitySecondary <= 0:
		return ShortageSecondary
	}
	return ShortageNone
}

// CapacityOf 读取指定类别的容量。
func (a *Account) CapacityOf(u Unit) int {
	if u == UnitSecondary {
		return a.CapacitySecondary
	}
	return a.CapacityPrimary
}

// SetCapacity 写入指定类别的容量（仅供 Ledger 使用）。
func (a *Account) SetCapacity(u Unit, v int) {
	if u == UnitSecondary {
		a.CapacitySecondary = v
		return
	}
	a.CapacityPrimary = v
}

// DisplayName 用于通知文案。
func (a *Account) DisplayName() string {
	if n := strings.TrimSpace(a.Name); n != "" {
		return n
	}
	return a.ID
}
