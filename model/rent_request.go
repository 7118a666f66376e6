package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RentStatusPending  = "pending"
	RentStatusApproved = "approved"
	RentStatusRejected = "rejected"
)

const DefaultRentDuration = 30

// One request per (tenant, house). Paid is layered on top of the approved status.
type RentRequest struct {
	ID        string    `json:"id" gorm:"type:uuid;primarykey"`
	TenantID  string    `json:"-" gorm:"type:uuid;uniqueIndex:idx_rent_request_tenant_house"`
	Tenant    *User     `json:"tenant,omitempty" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	HouseID   string    `json:"house_id" gorm:"type:uuid;uniqueIndex:idx_rent_request_tenant_house;index"`
	House     *House    `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Message   string    `json:"message"`
	Status    string    `json:"status" gorm:"default:pending;index"`
	Paid      bool      `json:"paid" gorm:"default:false"`
	Duration  int       `json:"duration"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type PublicRentRequest struct {
	ID        string        `json:"id"`
	Tenant    PublicUser    `json:"tenant"`
	House     HouseListItem `json:"house"`
	Message   string        `json:"message"`
	Status    string        `json:"status"`
	Paid      bool          `json:"paid"`
	Duration  int           `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// Duration is optional and defaults to DefaultRentDuration.
type SubmitRentRequest struct {
	HouseID  string `json:"house_id" validate:"required"`
	Duration *int   `json:"duration"`
	Message  string `json:"message"`
}

func (base *RentRequest) BeforeCreate(tx *gorm.DB) (err error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return err
	}

	base.ID = id.String()
	return
}

// RentRequestsVisibleTo scopes a rent request query: tenants see their own requests,
// owners the requests on their houses, admins everything.
func RentRequestsVisibleTo(actor AuthUser) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if actor.IsAdmin {
			return db
		}
		return db.Where(
			"(rent_requests.tenant_id = ? OR rent_requests.house_id IN (?))",
			actor.ID,
			db.Session(&gorm.Session{NewDB: true}).Model(&House{}).Select("id").Where("owner_id = ?", actor.ID),
		)
	}
}

func (r RentRequest) ToPublicFormat() PublicRentRequest {
	pr := PublicRentRequest{
		ID:        r.ID,
		Message:   r.Message,
		Status:    r.Status,
		Paid:      r.Paid,
		Duration:  r.Duration,
		CreatedAt: r.CreatedAt,
	}

	if r.Tenant != nil {
		pr.Tenant = r.Tenant.ToPublicFormat()
	}
	if r.House != nil {
		pr.House = r.House.ToListFormat()
	} else {
		pr.House = HouseListItem{ID: r.HouseID, Categories: []Category{}, Images: []string{}}
	}

	return pr
}
