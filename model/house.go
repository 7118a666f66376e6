package model

import (
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/biter777/countries"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	errInvalidPrice   = errors.New("Price must be a positive amount with at most two decimal places.")
	errInvalidCountry = errors.New("Unknown country.")
	errEmptyField     = errors.New("Title, description and location cannot be empty.")
)

var maxPrice = decimal.NewFromInt(100_000_000)

// A house is listed by its owner and becomes visible to everybody once approved.
// BookedUntil is only ever moved by a successful rent payment.
type House struct {
	ID          string          `json:"id" gorm:"type:uuid;primarykey"`
	OwnerID     string          `json:"-" gorm:"type:uuid;index"`
	Owner       *User           `json:"owner,omitempty" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Location    string          `json:"location"`
	Country     string          `json:"country" gorm:"index"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(10,2)"`
	Images      datatypes.JSON  `json:"images"`
	Categories  []Category      `json:"categories" gorm:"many2many:house_categories;constraint:OnDelete:CASCADE;"`
	Reviews     []Review        `json:"reviews,omitempty"`
	Approved    bool            `json:"approved" gorm:"default:false;index"`
	BookedUntil *time.Time      `json:"booked_until"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Lightweight representation used in listings
type HouseListItem struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Location      string          `json:"location"`
	Country       string          `json:"country"`
	Price         decimal.Decimal `json:"price"`
	Images        []string        `json:"images"`
	Approved      bool            `json:"approved"`
	Categories    []Category      `json:"categories"`
	OwnerName     string          `json:"owner_name"`
	ReviewCount   int             `json:"review_count"`
	AverageRating *float64        `json:"average_rating"`
	BookedUntil   *time.Time      `json:"booked_until"`
}

type HouseDetail struct {
	HouseListItem
	Owner     *HouseOwner    `json:"owner"`
	Reviews   []PublicReview `json:"reviews"`
	CreatedAt time.Time      `json:"created_at"`
}

type HouseOwner struct {
	Username  string `json:"owner_username"`
	FirstName string `json:"owner_first_name"`
	LastName  string `json:"owner_last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Image     string `json:"image"`
}

type SubmitHouse struct {
	Title       string          `json:"title" validate:"required,max=255"`
	Description string          `json:"description" validate:"required"`
	Location    string          `json:"location" validate:"required,max=255"`
	Country     string          `json:"country"`
	Price       decimal.Decimal `json:"price"`
	Images      []string        `json:"images"`
	CategoryIDs []string        `json:"category_ids"`
}

// Only these fields can be changed after a house is listed. Nil means "leave as is".
type HouseUpdate struct {
	Title       *string          `json:"title" validate:"omitempty,max=255"`
	Description *string          `json:"description"`
	Location    *string          `json:"location" validate:"omitempty,max=255"`
	Country     *string          `json:"country"`
	Price       *decimal.Decimal `json:"price"`
	Images      *[]string        `json:"images"`
	CategoryIDs *[]string        `json:"category_ids"`
}

func (base *House) BeforeCreate(tx *gorm.DB) (err error) {
	if base.ID != "" {
		return
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return err
	}

	base.ID = id.String()
	return
}

// IsBooked reports whether an active booking window blocks new rent requests.
func (h House) IsBooked(now time.Time) bool {
	return h.BookedUntil != nil && h.BookedUntil.After(now)
}

func (h House) ImageList() []string {
	images := []string{}
	if len(h.Images) == 0 {
		return images
	}
	if err := json.Unmarshal(h.Images, &images); err != nil {
		return []string{}
	}
	return images
}

func ImagesJSON(images []string) (datatypes.JSON, error) {
	if images == nil {
		images = []string{}
	}
	for _, img := range images {
		if !IsValidURL(img) {
			return nil, errInvalidURL
		}
	}
	b, err := json.Marshal(images)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func ValidatePrice(p decimal.Decimal) error {
	if !p.IsPositive() || p.GreaterThanOrEqual(maxPrice) {
		return errInvalidPrice
	}
	if !p.Equal(p.Round(2)) {
		return errInvalidPrice
	}
	return nil
}

// NormalizeCountry accepts a country name or ISO code and returns the alpha-2 code.
func NormalizeCountry(name string) (string, error) {
	if trimmed(name) == "" {
		return "", nil
	}
	c := countries.ByName(trimmed(name))
	if c == countries.Unknown {
		return "", errInvalidCountry
	}
	return c.Alpha2(), nil
}

// Validate checks the submission and returns a house ready to be created (without
// owner and categories).
func (s SubmitHouse) Validate() (House, error) {
	if trimmed(s.Title) == "" || trimmed(s.Description) == "" || trimmed(s.Location) == "" {
		return House{}, errEmptyField
	}
	if err := ValidatePrice(s.Price); err != nil {
		return House{}, err
	}
	country, err := NormalizeCountry(s.Country)
	if err != nil {
		return House{}, err
	}
	images, err := ImagesJSON(s.Images)
	if err != nil {
		return House{}, err
	}

	return House{
		Title:       trimmed(s.Title),
		Description: trimmed(s.Description),
		Location:    trimmed(s.Location),
		Country:     country,
		Price:       s.Price.Round(2),
		Images:      images,
	}, nil
}

// Changes validates every provided field and returns the columns to persist.
// Categories are handled separately since they live in the join table.
func (u HouseUpdate) Changes() (map[string]interface{}, error) {
	changes := map[string]interface{}{}

	if u.Title != nil {
		if trimmed(*u.Title) == "" {
			return nil, errEmptyField
		}
		changes["title"] = trimmed(*u.Title)
	}
	if u.Description != nil {
		if trimmed(*u.Description) == "" {
			return nil, errEmptyField
		}
		changes["description"] = trimmed(*u.Description)
	}
	if u.Location != nil {
		if trimmed(*u.Location) == "" {
			return nil, errEmptyField
		}
		changes["location"] = trimmed(*u.Location)
	}
	if u.Country != nil {
		country, err := NormalizeCountry(*u.Country)
		if err != nil {
			return nil, err
		}
		changes["country"] = country
	}
	if u.Price != nil {
		if err := ValidatePrice(*u.Price); err != nil {
			return nil, err
		}
		changes["price"] = u.Price.Round(2)
	}
	if u.Images != nil {
		images, err := ImagesJSON(*u.Images)
		if err != nil {
			return nil, err
		}
		changes["images"] = images
	}

	return changes, nil
}

// HousesVisibleTo scopes a house query to what actor may see: admins see every
// house, users see approved houses and their own, anonymous callers only approved ones.
func HousesVisibleTo(actor *AuthUser) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		switch {
		case actor == nil:
			return db.Where("houses.approved = ?", true)
		case actor.IsAdmin:
			return db
		default:
			return db.Where("(houses.approved = ? OR houses.owner_id = ?)", true, actor.ID)
		}
	}
}

func (h House) reviewStats() (int, *float64) {
	if len(h.Reviews) == 0 {
		return 0, nil
	}
	total := 0
	for _, r := range h.Reviews {
		total += r.Rating
	}
	avg := math.Round(float64(total)/float64(len(h.Reviews))*100) / 100
	return len(h.Reviews), &avg
}

func (h House) ToListFormat() HouseListItem {
	count, avg := h.reviewStats()

	item := HouseListItem{
		ID:            h.ID,
		Title:         h.Title,
		Description:   h.Description,
		Location:      h.Location,
		Country:       h.Country,
		Price:         h.Price,
		Images:        h.ImageList(),
		Approved:      h.Approved,
		Categories:    h.Categories,
		ReviewCount:   count,
		AverageRating: avg,
		BookedUntil:   h.BookedUntil,
	}
	if item.Categories == nil {
		item.Categories = []Category{}
	}
	if h.Owner != nil {
		item.OwnerName = h.Owner.Username
	}

	return item
}

func (h House) ToDetailFormat() HouseDetail {
	d := HouseDetail{
		HouseListItem: h.ToListFormat(),
		Reviews:       []PublicReview{},
		CreatedAt:     h.CreatedAt,
	}

	if h.Owner != nil {
		d.Owner = &HouseOwner{
			Username:  h.Owner.Username,
			FirstName: h.Owner.FirstName,
			LastName:  h.Owner.LastName,
			Email:     h.Owner.Email,
			Phone:     h.Owner.Phone,
			Image:     h.Owner.Image,
		}
	}

	for _, r := range h.Reviews {
		d.Reviews = append(d.Reviews, r.ToPublicFormat())
	}

	return d
}
