package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/RescueLink/RescueLink/internal/account"
	"github.com/RescueLink/RescueLink/internal/common/config"
	"github.com/RescueLink/RescueLink/internal/emergency"
	"github.com/RescueLink/RescueLink/internal/intake"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Open 按配置建立 MySQL 连接。
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxIdle > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdle)
	}
	if cfg.MaxOpen > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpen)
	}
	return db, nil
}

// AutoMigrate 迁移 core 用到的全部表。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&account.Account{}, &emergency.Request{}, &intake.Form{})
}

// Gorm 是 Store 的 MySQL 实现。
// 事务内的点读带 SELECT ... FOR UPDATE，配合 InnoDB 事务满足受理协议需要的隔离级别。
type Gorm struct {
	db   *gorm.DB
	inTx bool
}

var _ Store = (*Gorm)(nil)

func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func (s *Gorm) withCtx(ctx context.Context) *gorm.DB {
	if s == nil || s.db == nil {
		return nil
	}
	db := s.db.WithContext(ctx)
	if s.inTx {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

func (s *Gorm) GetAccount(ctx context.Context, id string) (*account.Account, error) {
	db := s.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("store db is nil")
	}
	var a account.Account
	if err := db.Where("id = ?", id).First(&a).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &a, nil
}

func (s *Gorm) SaveAccount(ctx context.Context, a *account.Account) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store db is nil")
	}
	return s.db.WithContext(ctx).Save(a).Error
}

func (s *Gorm) GetRequest(ctx context.Context, id string) (*emergency.Request, error) {
	db := s.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("store db is nil")
	}
	var r emergency.Request
	if err := db.Where("id = ?", id).First(&r).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &r, nil
}

func (s *Gorm) CreateRequest(ctx context.Context, r *emergency.Request) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store db is nil")
	}
	return s.db.WithContext(ctx).Create(r).Error
}

func (s *Gorm) SaveRequest(ctx context.Context, r *emergency.Request) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store db is nil")
	}
	return s.db.WithContext(ctx).Save(r).Error
}

func (s *Gorm) DeleteRequest(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store db is nil")
	}
	// 硬删除：取消的请求不保留记录
	res := s.db.WithContext(ctx).Unscoped().Where("id = ?", id).Delete(&emergency.Request{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Gorm) ListRequests(ctx context.Context, f RequestFilter) ([]emergency.Request, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store db is nil")
	}
	q := s.db.WithContext(ctx).Model(&emergency.Request{})
	if f.Domain != "" {
		q = q.Where("domain = ?", f.Domain)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.ResponderID != nil {
		q = q.Where("responder_id = ?", *f.ResponderID)
	}
	if f.RequesterID != "" {
		q = q.Where("requester_id = ?", f.RequesterID)
	}

	var out []emergency.Request
	if err := q.Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Gorm) GetForm(ctx context.Context, id string) (*intake.Form, error) {
	db := s.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("store db is nil")
	}
	var form intake.Form
	if err := db.Where("id = ?", id).First(&form).Error; err != nil {
		return nil, mapNotFound(err)
	}
	return &form, nil
}

func (s *Gorm) PutForm(ctx context.Context, form *intake.Form) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store db is nil")
	}
	// create-or-replace：同一复合键重复提交覆盖旧内容
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(form).Error
}

func (s *Gorm) InTx(ctx context.Context, fn func(tx Store) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store db is nil")
	}
	if s.inTx {
		// 已在事务内：直接复用当前事务
		return fn(s)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Gorm{db: tx, inTx: true})
	})
}

func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
