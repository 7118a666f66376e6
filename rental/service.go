// Package rental drives the rent request lifecycle: a tenant asks to rent a house,
// the owner (or an admin) approves or rejects, and the tenant pays for an approved
// request, which books the house for the requested number of days.
package rental

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rentease/model"
	"rentease/payment"
	"rentease/policy"
)

const defaultPaymentTimeout = 10 * time.Second

// Service runs rent request transitions against the database and the payment gateway.
type Service struct {
	DB             *gorm.DB
	Gateway        payment.Gateway
	Currency       string
	PaymentTimeout time.Duration
	// Now is overridden in tests.
	Now func() time.Time
}

// PayResult is what a successful Pay hands back to the tenant.
type PayResult struct {
	ChargeID     string
	ClientSecret string
	BookedUntil  time.Time
}

// NewService falls back to a 10 second payment timeout when timeout is not positive.
func NewService(db *gorm.DB, gateway payment.Gateway, currency string, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = defaultPaymentTimeout
	}
	return &Service{
		DB:             db,
		Gateway:        gateway,
		Currency:       currency,
		PaymentTimeout: timeout,
		Now:            time.Now,
	}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func preloadRentRequest(db *gorm.DB) *gorm.DB {
	return db.Preload("Tenant").Preload("House").Preload("House.Owner").Preload("House.Categories")
}

// Create files a new pending request. The checks run in a fixed order and the first
// failure is returned: the house exists and is visible to the tenant, it is not
// booked, the tenant does not own it, and the tenant has no request for it yet.
func (s *Service) Create(ctx context.Context, actor model.AuthUser, in model.SubmitRentRequest) (model.RentRequest, error) {
	duration := model.DefaultRentDuration
	if in.Duration != nil {
		duration = *in.Duration
	}
	if duration <= 0 {
		return model.RentRequest{}, validationError("duration", "Duration must be a positive number of days.")
	}

	if _, err := uuid.Parse(in.HouseID); err != nil {
		return model.RentRequest{}, validationError("house_id", "House not found.")
	}

	db := s.DB.WithContext(ctx)

	var house model.House
	err := db.Scopes(model.HousesVisibleTo(&actor)).First(&house, "houses.id = ?", in.HouseID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.RentRequest{}, validationError("house_id", "House not found.")
		}
		return model.RentRequest{}, err
	}

	if house.IsBooked(s.now()) {
		return model.RentRequest{}, validationError("house_id", "This house is already booked until %s.", house.BookedUntil.Format(time.RFC3339))
	}

	if house.OwnerID == actor.ID {
		return model.RentRequest{}, validationError("house_id", "You cannot send a rent request to your own house.")
	}

	var existing int64
	err = db.Model(&model.RentRequest{}).
		Where("tenant_id = ? AND house_id = ?", actor.ID, house.ID).
		Count(&existing).Error
	if err != nil {
		return model.RentRequest{}, err
	}
	if existing > 0 {
		return model.RentRequest{}, duplicateRequest()
	}

	req := model.RentRequest{
		TenantID: actor.ID,
		HouseID:  house.ID,
		Message:  in.Message,
		Status:   model.RentStatusPending,
		Paid:     false,
		Duration: duration,
	}
	if err := db.Create(&req).Error; err != nil {
		if model.IsUniqueViolation(err) {
			return model.RentRequest{}, duplicateRequest()
		}
		return model.RentRequest{}, err
	}

	return s.Get(ctx, actor, req.ID)
}

func duplicateRequest() error {
	return validationError("house_id", "You have already sent a rent request for this house.")
}

// List returns the requests visible to actor, newest first.
func (s *Service) List(ctx context.Context, actor model.AuthUser) ([]model.RentRequest, error) {
	requests := []model.RentRequest{}
	err := s.DB.WithContext(ctx).
		Scopes(model.RentRequestsVisibleTo(actor), preloadRentRequest).
		Order("rent_requests.created_at desc").
		Find(&requests).Error
	return requests, err
}

func (s *Service) Get(ctx context.Context, actor model.AuthUser, id string) (model.RentRequest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.RentRequest{}, notFound()
	}

	var req model.RentRequest
	err := s.DB.WithContext(ctx).Scopes(preloadRentRequest).First(&req, "rent_requests.id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.RentRequest{}, notFound()
		}
		return model.RentRequest{}, err
	}
	if req.House == nil || !policy.CanSeeRentRequest(actor, req, *req.House) {
		return model.RentRequest{}, notFound()
	}
	return req, nil
}

// lockForUpdate loads the request and its house with row locks held until tx ends.
// Dialects without row locks (sqlite) serialise writers on the transaction instead.
func lockForUpdate(tx *gorm.DB, actor model.AuthUser, id string) (model.RentRequest, model.House, error) {
	var req model.RentRequest
	if _, err := uuid.Parse(id); err != nil {
		return req, model.House{}, notFound()
	}

	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&req, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return req, model.House{}, notFound()
		}
		return req, model.House{}, err
	}

	var house model.House
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&house, "id = ?", req.HouseID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return req, house, notFound()
		}
		return req, house, err
	}

	if !policy.CanSeeRentRequest(actor, req, house) {
		return req, house, notFound()
	}
	return req, house, nil
}

// Accept approves a pending request. Accepting an approved request again is a no-op.
func (s *Service) Accept(ctx context.Context, actor model.AuthUser, id string) (model.RentRequest, error) {
	return s.decide(ctx, actor, id, model.RentStatusApproved)
}

// Reject rejects a pending request. Rejecting a rejected request again is a no-op.
func (s *Service) Reject(ctx context.Context, actor model.AuthUser, id string) (model.RentRequest, error) {
	return s.decide(ctx, actor, id, model.RentStatusRejected)
}

func (s *Service) decide(ctx context.Context, actor model.AuthUser, id, target string) (model.RentRequest, error) {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, house, err := lockForUpdate(tx, actor, id)
		if err != nil {
			return err
		}

		if !policy.CanDecideRentRequest(actor, house) {
			return forbidden("Not allowed.")
		}
		if req.Paid {
			return validationError("status", "Rent request is already paid.")
		}
		if req.Status == target {
			return nil
		}
		if req.Status != model.RentStatusPending {
			return validationError("status", "Rent request is already %s.", req.Status)
		}

		r := tx.Model(&model.RentRequest{}).
			Where("id = ? AND status = ? AND paid = ?", req.ID, model.RentStatusPending, false).
			Update("status", target)
		if r.Error != nil {
			return r.Error
		}
		if r.RowsAffected == 0 {
			return validationError("status", "Rent request was modified concurrently. Please try again.")
		}
		return nil
	})
	if err != nil {
		return model.RentRequest{}, err
	}

	return s.Get(ctx, actor, id)
}

// Pay charges the tenant for an approved request and books the house for the
// request's duration. The paid flag, the charge and the booking window commit
// together: a failed or timed out charge rolls back the paid flag, and the row
// lock plus the paid=false condition keep a request from being charged twice.
// A house booked by another paid request refuses payment.
func (s *Service) Pay(ctx context.Context, actor model.AuthUser, id string) (PayResult, error) {
	var result PayResult
	// Set once the gateway took the money; any later failure must be reconciled by hand.
	var chargeID string

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, house, err := lockForUpdate(tx, actor, id)
		if err != nil {
			return err
		}

		if !policy.CanPayRentRequest(actor, req) {
			return forbidden("Not allowed to pay.")
		}
		if req.Status != model.RentStatusApproved {
			return validationError("status", "Only approved rent requests can be paid.")
		}
		if req.Paid {
			return validationError("paid", "Rent request is already paid.")
		}
		if house.IsBooked(s.now()) {
			return validationError("house_id", "This house is already booked until %s.", house.BookedUntil.Format(time.RFC3339))
		}

		r := tx.Model(&model.RentRequest{}).
			Where("id = ? AND status = ? AND paid = ?", req.ID, model.RentStatusApproved, false).
			Update("paid", true)
		if r.Error != nil {
			return r.Error
		}
		if r.RowsAffected == 0 {
			return validationError("paid", "Rent request is already paid.")
		}

		chargeCtx, cancel := context.WithTimeout(ctx, s.PaymentTimeout)
		defer cancel()

		amount := payment.MinorUnits(house.Price)
		charge, err := s.Gateway.Charge(chargeCtx, amount, s.Currency, "Payment for house: "+house.Title)
		if err != nil {
			if errors.Is(err, payment.ErrOutcomeUnknown) {
				log.Errorf("rent request %s: payment of %d %s has an unknown outcome, reconcile manually: %v", req.ID, amount, s.Currency, err)
				return &Error{Kind: ErrPaymentUnknown, Message: "The payment provider did not respond in time. The payment will be reviewed."}
			}
			return &Error{Kind: ErrUpstream, Message: err.Error()}
		}
		chargeID = charge.ID

		bookedUntil := s.now().AddDate(0, 0, req.Duration)
		err = tx.Model(&model.House{}).Where("id = ?", house.ID).Update("booked_until", bookedUntil).Error
		if err != nil {
			return fmt.Errorf("book house %s: %w", house.ID, err)
		}

		result = PayResult{
			ChargeID:     charge.ID,
			ClientSecret: charge.ClientSecret,
			BookedUntil:  bookedUntil,
		}
		return nil
	})
	if err != nil {
		if chargeID != "" {
			log.Errorf("rent request %s: charge %s succeeded but booking was not saved, reconcile manually: %v", id, chargeID, err)
		}
		return PayResult{}, err
	}

	return result, nil
}
