package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"rentease/model"
	"rentease/policy"
	"rentease/storage"
)

func preloadHouseList(db *gorm.DB) *gorm.DB {
	return db.Preload("Owner").Preload("Categories").Preload("Reviews")
}

func preloadHouseDetail(db *gorm.DB) *gorm.DB {
	return db.Preload("Owner").
		Preload("Categories").
		Preload("Reviews", func(db *gorm.DB) *gorm.DB {
			return db.Order("reviews.created_at desc")
		}).
		Preload("Reviews.Reviewer")
}

// houseFilters applies the category (slug), country and q query parameters.
func (h *Handler) houseFilters(c echo.Context) (func(*gorm.DB) *gorm.DB, error) {
	category := strings.TrimSpace(c.QueryParam("category"))
	q := strings.ToLower(strings.TrimSpace(c.QueryParam("q")))

	country, err := model.NormalizeCountry(c.QueryParam("country"))
	if err != nil {
		return nil, &echo.HTTPError{Code: http.StatusBadRequest, Message: err.Error()}
	}

	return func(db *gorm.DB) *gorm.DB {
		if category != "" {
			db = db.Where("houses.id IN (?)", h.DB.Table("house_categories").
				Select("house_categories.house_id").
				Joins("JOIN categories ON categories.id = house_categories.category_id").
				Where("categories.slug = ?", category))
		}
		if country != "" {
			db = db.Where("houses.country = ?", country)
		}
		if q != "" {
			like := "%" + q + "%"
			db = db.Where("(LOWER(houses.title) LIKE ? OR LOWER(houses.location) LIKE ?)", like, like)
		}
		return db
	}, nil
}

func (h *Handler) FetchHouses(c echo.Context) error {
	filters, err := h.houseFilters(c)
	if err != nil {
		return err
	}

	actor := currentUser(c)
	houses := []model.House{}
	res, err := paginate(c, func() *gorm.DB {
		return h.DB.Model(&model.House{}).Scopes(model.HousesVisibleTo(actor), filters)
	}, &houses, preloadHouseList, orderBy("houses.created_at desc"))
	if err != nil {
		return err
	}

	res.Results = houseListFormatter(houses)
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) FetchHouse(c echo.Context) error {
	house, err := h.visibleHouse(c, c.Param("id"))
	if err != nil {
		return err
	}

	return h.respondHouse(c, http.StatusOK, house.ID)
}

func (h *Handler) respondHouse(c echo.Context, code int, id string) error {
	var house model.House
	if err := h.DB.Scopes(preloadHouseDetail).First(&house, "houses.id = ?", id).Error; err != nil {
		c.Logger().Error(err)
		return &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Failed to fetch house."}
	}
	return c.JSON(code, house.ToDetailFormat())
}

// categoriesByID resolves category ids; any unknown id fails the whole request.
func categoriesByID(db *gorm.DB, ids []string) ([]model.Category, error) {
	categories := []model.Category{}
	if len(ids) == 0 {
		return categories, nil
	}

	unique := map[string]bool{}
	for _, id := range ids {
		if validID(id) != nil {
			return nil, &echo.HTTPError{Code: http.StatusBadRequest, Message: "Unknown category: " + id}
		}
		unique[id] = true
	}

	if err := db.Where("id IN ?", ids).Find(&categories).Error; err != nil {
		return nil, err
	}
	if len(categories) != len(unique) {
		return nil, &echo.HTTPError{Code: http.StatusBadRequest, Message: "Unknown category."}
	}
	return categories, nil
}

func (h *Handler) CreateHouse(c echo.Context) error {
	actor, err := requireUser(c)
	if err != nil {
		return err
	}

	f := model.SubmitHouse{}
	if err := c.Bind(&f); err != nil {
		return err
	}
	if err := c.Validate(&f); err != nil {
		return err
	}

	house, err := f.Validate()
	if err != nil {
		return &echo.HTTPError{Code: http.StatusBadRequest, Message: err.Error()}
	}

	categories, err := categoriesByID(h.DB, f.CategoryIDs)
	if err != nil {
		return asHTTPError(c, err)
	}

	house.OwnerID = actor.ID
	house.Approved = false
	house.Categories = categories

	if err := h.DB.Omit("Categories.*").Create(&house).Error; err != nil {
		c.Logger().Error(err)
		return &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Failed to create house."}
	}

	return h.respondHouse(c, http.StatusCreated, house.ID)
}

func (h *Handler) UpdateHouse(c echo.Context) error {
	_, house, err := h.houseFor(c, policy.CanEditHouse, "You do not have permission to update this house.")
	if err != nil {
		return err
	}

	f := model.HouseUpdate{}
	if err := c.Bind(&f); err != nil {
		return err
	}
	if err := c.Validate(&f); err != nil {
		return err
	}

	changes, err := f.Changes()
	if err != nil {
		return &echo.HTTPError{Code: http.StatusBadRequest, Message: err.Error()}
	}

	var categories []model.Category
	if f.CategoryIDs != nil {
		if categories, err = categoriesByID(h.DB, *f.CategoryIDs); err != nil {
			return asHTTPError(c, err)
		}
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if len(changes) > 0 {
			if err := tx.Model(&model.House{}).Where("id = ?", house.ID).Updates(changes).Error; err != nil {
				return err
			}
		}
		if f.CategoryIDs != nil {
			return tx.Model(&house).Association("Categories").Replace(categories)
		}
		return nil
	})
	if err != nil {
		c.Logger().Error(err)
		return &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Failed to update house."}
	}

	return h.respondHouse(c, http.StatusOK, house.ID)
}

func (h *Handler) DeleteHouse(c echo.Context) error {
	_, house, err := h.houseFor(c, policy.CanDeleteHouse, "Only the owner can delete this house.")
	if err != nil {
		return err
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&house).Association("Categories").Clear(); err != nil {
			return err
		}
		return tx.Delete(&model.House{}, "id = ?", house.ID).Error
	})
	if err != nil {
		c.Logger().Error(err)
		return &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Failed to delete house."}
	}

	return c.NoContent(http.StatusNoContent)
}

// SubmitHouseForApproval puts an edited house back into the moderation queue.
func (h *Handler) SubmitHouseForApproval(c echo.Context) error {
	_, house, err := h.houseFor(c, policy.CanSubmitHouse, "Only the owner can submit this house for approval.")
	if err != nil {
		return err
	}

	if err := h.DB.Model(&model.House{}).Where("id = ?", house.ID).Update("approved", false).Error; err != nil {
		c.Logger().Error(err)
		return &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Failed to update house."}
	}

	return c.JSON(http.StatusOK, DetailResponse{Detail: "House submitted for approval."})
}

func (h *Handler) ApproveHouse(c echo.Context) error {
	return h.moderateHouse(c, true, "House approved.")
}

func (h *Handler) RejectHouse(c echo.Context) error {
	return h.moderateHouse(c, false, "House rejected.")
}

func (h *Handler) moderateHouse(c echo.Context, approved bool, detail string) error {
	_, house, err := h.houseFor(c, func(actor model.AuthUser, _ model.House) bool {
		return policy.CanModerateHouse(actor)
	}, "Only admins can moderate houses.")
	if err != nil {
		return err
	}

	if err := h.DB.Model(&model.House{}).Where("id = ?", house.ID).Update("approved", approved).Error; err != nil {
		c.Logger().Error(err)
		return &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Failed to update house."}
	}

	return c.JSON(http.StatusOK, DetailResponse{Detail: detail})
}

// UploadHouseImages stores the "images" files of a multipart form and appends their URLs.
func (h *Handler) UploadHouseImages(c echo.Context) error {
	_, house, err := h.houseFor(c, policy.CanEditHouse, "You do not have permission to update this house.")
	if err != nil {
		return err
	}

	form, err := c.MultipartForm()
	if err != nil {
		return &echo.HTTPError{Code: http.StatusBadRequest, Message: "Failed to parse multipart form."}
	}
	files := form.File["images"]
	if len(files) == 0 {
		return &echo.HTTPError{Code: http.StatusBadRequest, Message: "No images provided."}
	}

	urls := house.ImageList()
	for _, file := range files {
		contentType := file.Header.Get("Content-Type")
		if !strings.HasPrefix(contentType, "image/") {
			return &echo.HTTPError{Code: http.StatusBadRequest, Message: "Only image uploads are allowed: " + file.Filename}
		}

		src, err := file.Open()
		if err != nil {
			return &echo.HTTPError{Code: http.StatusBadRequest, Message: "Failed to read upload."}
		}

		url, err := h.Images.Put(c.Request().Context(), storage.ImageKey(house.ID, file.Filename), contentType, src)
		src.Close()
		if err != nil {
			if errors.Is(err, storage.ErrNotConfigured) {
				return &echo.HTTPError{Code: http.StatusServiceUnavailable, Message: err.Error()}
			}
			c.Logger().Errorf("Failed to upload image: %v", err)
			return &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Failed to upload image."}
		}
		urls = append(urls, url)
	}

	images, err := model.ImagesJSON(urls)
	if err != nil {
		return &echo.HTTPError{Code: http.StatusBadRequest, Message: err.Error()}
	}
	if err := h.DB.Model(&model.House{}).Where("id = ?", house.ID).Update("images", images).Error; err != nil {
		c.Logger().Error(err)
		return &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Failed to save images."}
	}

	return h.respondHouse(c, http.StatusCreated, house.ID)
}

func (h *Handler) FetchHouseReviews(c echo.Context) error {
	house, err := h.visibleHouse(c, c.Param("id"))
	if err != nil {
		return err
	}

	reviews := []model.Review{}
	res, err := paginate(c, func() *gorm.DB {
		return h.DB.Model(&model.Review{}).Where("house_id = ?", house.ID)
	}, &reviews, orderBy("created_at desc"), func(db *gorm.DB) *gorm.DB {
		return db.Preload("Reviewer")
	})
	if err != nil {
		return err
	}

	res.Results = reviewArrFormatter(reviews)
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) AddHouseReview(c echo.Context) error {
	f := model.SubmitReview{}
	if err := c.Bind(&f); err != nil {
		return err
	}
	f.HouseID = c.Param("id")

	return h.createReview(c, f)
}

// asHTTPError passes echo errors through and hides everything else behind a 500.
func asHTTPError(c echo.Context, err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	c.Logger().Error(err)
	return &echo.HTTPError{Code: http.StatusInternalServerError}
}
