package models

import (
	"context"
	"time"

	"github.com/steelstorehq/store_backend/config"
	"github.com/steelstorehq/store_backend/utils"
)

// Customer carries a cached Balance that must always equal the ledger fold
// (AggregateLedger). The cache is rewritten on every reconciled mutation and
// repaired by the drift audit; it is never hand-edited.
type Customer struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Phone     string    `gorm:"size:20" json:"phone"`
	Address   string    `gorm:"size:255" json:"address"`
	Notes     string    `gorm:"type:text" json:"notes"`
	Balance   Money     `gorm:"type:decimal(20,2);default:0" json:"balance"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCustomer struct {
	Name    string `json:"name" binding:"required"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Notes   string `json:"notes"`
}

func GetCustomer(ctx context.Context, id int) (*Customer, error) {
	db := config.GetDB()
	var customer Customer
	if err := db.WithContext(ctx).First(&customer, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &customer, nil
}

func CreateCustomer(ctx context.Context, input *NewCustomer) (*Customer, error) {
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	customer := Customer{
		Name:    input.Name,
		Phone:   input.Phone,
		Address: input.Address,
		Notes:   input.Notes,
		Balance: ZeroMoney(),
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}
