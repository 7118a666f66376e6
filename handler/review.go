package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"rentease/model"
	"rentease/policy"
)

// FetchReviews lists reviews on houses the caller can see, optionally for one house_id.
func (h *Handler) FetchReviews(c echo.Context) error {
	houseID := c.QueryParam("house_id")
	if houseID != "" && validID(houseID) != nil {
		return &echo.HTTPError{Code: http.StatusBadRequest, Message: "Invalid house_id."}
	}

	actor := currentUser(c)
	reviews := []model.Review{}
	res, err := paginate(c, func() *gorm.DB {
		q := h.DB.Model(&model.Review{}).Where("house_id IN (?)", h.visibleHouseIDs(actor))
		if houseID != "" {
			q = q.Where("house_id = ?", houseID)
		}
		return q
	}, &reviews, orderBy("created_at desc"), func(db *gorm.DB) *gorm.DB {
		return db.Preload("Reviewer")
	})
	if err != nil {
		return err
	}

	res.Results = reviewArrFormatter(reviews)
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) FetchReview(c echo.Context) error {
	notFound := &echo.HTTPError{Code: http.StatusNotFound, Message: "Review not found."}
	id := c.Param("id")
	if validID(id) != nil {
		return notFound
	}

	var review model.Review
	err := h.DB.Preload("Reviewer").
		Where("house_id IN (?)", h.visibleHouseIDs(currentUser(c))).
		First(&review, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound
		}
		c.Logger().Error(err)
		return &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Failed to fetch review."}
	}

	return c.JSON(http.StatusOK, review.ToPublicFormat())
}

func (h *Handler) CreateReview(c echo.Context) error {
	f := model.SubmitReview{}
	if err := c.Bind(&f); err != nil {
		return err
	}
	if f.HouseID == "" {
		return &echo.HTTPError{Code: http.StatusBadRequest, Message: "house_id is required."}
	}

	return h.createReview(c, f)
}

func (h *Handler) createReview(c echo.Context, f model.SubmitReview) error {
	actor, err := requireUser(c)
	if err != nil {
		return err
	}

	if err := c.Validate(&f); err != nil {
		return err
	}
	if err := model.ValidateRating(f.Rating); err != nil {
		return &echo.HTTPError{Code: http.StatusBadRequest, Message: err.Error()}
	}

	house, err := h.visibleHouse(c, f.HouseID)
	if err != nil {
		return err
	}

	review := model.Review{
		HouseID:    house.ID,
		ReviewerID: actor.ID,
		Rating:     f.Rating,
		Comment:    f.Comment,
	}
	if err := h.DB.Create(&review).Error; err != nil {
		c.Logger().Error(err)
		return &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Failed to create review."}
	}

	return h.respondReview(c, http.StatusCreated, review.ID)
}

func (h *Handler) respondReview(c echo.Context, code int, id string) error {
	var review model.Review
	if err := h.DB.Preload("Reviewer").First(&review, "id = ?", id).Error; err != nil {
		c.Logger().Error(err)
		return &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Failed to fetch review."}
	}
	return c.JSON(code, review.ToPublicFormat())
}

func (h *Handler) UpdateReview(c echo.Context) error {
	review, err := h.reviewFor(c, policy.CanEditReview)
	if err != nil {
		return err
	}

	f := model.ReviewUpdate{}
	if err := c.Bind(&f); err != nil {
		return err
	}

	changes, err := f.Changes()
	if err != nil {
		return &echo.HTTPError{Code: http.StatusBadRequest, Message: err.Error()}
	}
	if len(changes) > 0 {
		if err := h.DB.Model(&model.Review{}).Where("id = ?", review.ID).Updates(changes).Error; err != nil {
			c.Logger().Error(err)
			return &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Failed to update review."}
		}
	}

	return h.respondReview(c, http.StatusOK, review.ID)
}

func (h *Handler) DeleteReview(c echo.Context) error {
	review, err := h.reviewFor(c, policy.CanEditReview)
	if err != nil {
		return err
	}

	if err := h.DB.Delete(&model.Review{}, "id = ?", review.ID).Error; err != nil {
		c.Logger().Error(err)
		return &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Failed to delete review."}
	}

	return c.NoContent(http.StatusNoContent)
}
