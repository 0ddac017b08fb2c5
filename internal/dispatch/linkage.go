package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/RescueLink/RescueLink/internal/emergency"
	"github.com/RescueLink/RescueLink/internal/intake"
	"github.com/RescueLink/RescueLink/internal/notify"
	"github.com/RescueLink/RescueLink/internal/store"
	"github.com/RescueLink/RescueLink/internal/watch"
)

// Linkage 表单通道：已受理的医疗求助上，发起人提交补充表单，受理医院读取。
// 表单按复合键 create-or-replace，提交方重复提交即覆盖。
type Linkage struct {
	store    store.Store
	hub      *watch.Hub
	notifier notify.Notifier
}

func NewLinkage(st store.Store, hub *watch.Hub, n notify.Notifier) *Linkage {
	if n == nil {
		n = notify.Nop{}
	}
	return &Linkage{store: st, hub: hub, notifier: n}
}

// FormInput 表单提交入参，字段与 intake.Form 一一对应。
type FormInput struct {
	FullName         string
	Age              string
	Gender           string
	ContactNumber    string
	AlternateContact string
	Address          string

	HasMedicalConditions string
	MedicalConditions    string
	OnMedications        string
	Medications          string
	HasAllergies         string
	Allergies            string
	HadSurgeries         string
	Surgeries            string

	PrimaryIssue             string
	IsConscious              string
	RelatedConditions        string
	RelatedConditionsDetails string
	SpecialAssistance        string
	AdditionalSymptoms       string

	HasInsurance      string
	InsurancePolicy   string
	InsuranceProvider string

	Consent    string
	IDProofURL string
}

// SubmitForm 发起人为自己已受理的医疗求助提交补充表单。
// 请求不存在 / 非医疗类 / 非 accepted / 非本人发起都拒绝提交。
func (l *Linkage) SubmitForm(ctx context.Context, actorID, requestID string, in FormInput) (*intake.Form, error) {
	if actorID == "" {
		return nil, ErrNotAuthenticated
	}
	if strings.TrimSpace(in.FullName) == "" {
		return nil, fmt.Errorf("full name required")
	}

	var form *intake.Form
	err := l.store.InTx(ctx, func(tx store.Store) error {
		r, err := tx.GetRequest(ctx, requestID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		if r.Domain != emergency.DomainMedical {
			return fmt.Errorf("%w: forms attach to medical requests only", ErrInvalidTransition)
		}
		if r.RequesterID != actorID {
			return fmt.Errorf("%w: request %s is not owned by %s", ErrInvalidTransition, requestID, actorID)
		}
		if r.Status != emergency.StatusAccepted {
			return fmt.Errorf("%w: form requires an accepted request, got %s", ErrInvalidTransition, r.Status)
		}

		form = &intake.Form{
			ID:          intake.FormID(requestID, actorID),
			RequestID:   requestID,
			RequesterID: actorID,

			FullName:         strings.TrimSpace(in.FullName),
			Age:              in.Age,
			Gender:           in.Gender,
			ContactNumber:    in.ContactNumber,
			AlternateContact: in.AlternateContact,
			Address:          in.Address,

			HasMedicalConditions: in.HasMedicalConditions,
			MedicalConditions:    in.MedicalConditions,
			OnMedications:        in.OnMedications,
			Medications:          in.Medications,
			HasAllergies:         in.HasAllergies,
			Allergies:            in.Allergies,
			HadSurgeries:         in.HadSurgeries,
			Surgeries:            in.Surgeries,

			PrimaryIssue:             in.PrimaryIssue,
			IsConscious:              in.IsConscious,
			RelatedConditions:        in.RelatedConditions,
			RelatedConditionsDetails: in.RelatedConditionsDetails,
			SpecialAssistance:        in.SpecialAssistance,
			AdditionalSymptoms:       in.AdditionalSymptoms,

			HasInsurance:      in.HasInsurance,
			InsurancePolicy:   in.InsurancePolicy,
			InsuranceProvider: in.InsuranceProvider,

			Consent:    in.Consent,
			IDProofURL: in.IDProofURL,
		}
		if err := tx.PutForm(ctx, form); err != nil {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		return nil
	})
	if err != nil {
		l.notifier.Error(ctx, "Error", "Failed to submit form.")
		return nil, err
	}

	l.hub.Publish(watch.Event{Topic: watch.TopicForm(form.ID), Type: watch.EventPut, Form: form})
	l.notifier.Success(ctx, "Form Submitted", "Medical form submitted successfully!")
	return form, nil
}

// Form 按请求和发起人点读表单；未提交返回 (nil, nil)。
// 签名与 watch.LoadFormFunc 对齐，受理方的 FormTracker 直接使用。
func (l *Linkage) Form(ctx context.Context, requestID, requesterID string) (*intake.Form, error) {
	f, err := l.store.GetForm(ctx, intake.FormID(requestID, requesterID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return f, nil
}

// NewFormTracker 为受理方构建表单视图，点读函数绑定到本 Linkage。
func (l *Linkage) NewFormTracker() *watch.FormTracker {
	return watch.NewFormTracker(l.hub, l.Form)
}
