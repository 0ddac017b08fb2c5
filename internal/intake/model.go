package intake

import "time"

// FormID 生成表单复合键：<请求ID>_<发起人ID>。
// 复合键天然保证每个已受理请求每个发起人只有一份表单。
func FormID(requestID, requesterID string) string {
	return requestID + "_" + requesterID
}

// Form 医疗补充表单 GORM 模型。
// 仅在对应请求 accepted 之后由发起人创建；按复合键 create-or-replace。
type Form struct {
	ID          string `gorm:"primaryKey;size:80"`
	RequestID   string `gorm:"index;size:36;not null"`
	RequesterID string `gorm:"index;size:36;not null"`

	// 个人信息
	FullName         string `gorm:"size:64"`
	Age              string `gorm:"size:8"`
	Gender           string `gorm:"size:16"`
	ContactNumber    string `gorm:"size:32"`
	AlternateContact string `gorm:"size:32"`
	Address          string `gorm:"size:255"`

	// 病史
	HasMedicalConditions string `gorm:"size:8"` // Yes / No
	MedicalConditions    string `gorm:"size:512"`
	OnMedications        string `gorm:"size:8"`
	Medications          string `gorm:"size:512"`
	HasAllergies         string `gorm:"size:8"`
	Allergies            string `gorm:"size:512"`
	HadSurgeries         string `gorm:"size:8"`
	Surgeries            string `gorm:"size:512"`

	// 本次急症详情
	PrimaryIssue             string `gorm:"size:255"`
	IsConscious              string `gorm:"size:8"`
	RelatedConditions        string `gorm:"size:8"`
	RelatedConditionsDetails string `gorm:"size:512"`
	SpecialAssistance        string `gorm:"size:255"`
	AdditionalSymptoms       string `gorm:"size:512"`

	// 保险
	HasInsurance      string `gorm:"size:8"`
	InsurancePolicy   string `gorm:"size:64"`
	InsuranceProvider string `gorm:"size:128"`

	// 同意与证明
	Consent    string `gorm:"size:8"`
	IDProofURL string `gorm:"size:512"` // 外部文件服务返回的 URL

	SubmittedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// TableName 保持与既有数据一致的表名。
func (Form) TableName() string {
	return "medical_emergency_forms"
}
