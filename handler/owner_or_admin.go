package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"rentease/model"
)

var errHouseNotFound = &echo.HTTPError{Code: http.StatusNotFound, Message: "House not found."}

// visibleHouse loads a house the caller may see. Hidden houses are reported as missing.
func (h *Handler) visibleHouse(c echo.Context, id string, preload ...string) (model.House, error) {
	if err := validID(id); err != nil {
		return model.House{}, errHouseNotFound
	}

	q := h.DB.Scopes(model.HousesVisibleTo(currentUser(c)))
	for _, p := range preload {
		q = q.Preload(p)
	}

	var house model.House
	if err := q.First(&house, "houses.id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.House{}, errHouseNotFound
		}
		c.Logger().Error(err)
		return model.House{}, &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Failed to fetch house."}
	}
	return house, nil
}

// houseFor loads a visible house and checks allow for the authenticated caller.
func (h *Handler) houseFor(c echo.Context, allow func(model.AuthUser, model.House) bool, noPermission string) (model.AuthUser, model.House, error) {
	actor, err := requireUser(c)
	if err != nil {
		return actor, model.House{}, err
	}

	house, err := h.visibleHouse(c, c.Param("id"))
	if err != nil {
		return actor, house, err
	}

	if !allow(actor, house) {
		return actor, house, &echo.HTTPError{Code: http.StatusForbidden, Message: noPermission}
	}
	return actor, house, nil
}

// reviewFor loads a review on a visible house and checks allow for the caller.
func (h *Handler) reviewFor(c echo.Context, allow func(model.AuthUser, model.Review) bool) (model.Review, error) {
	actor, err := requireUser(c)
	if err != nil {
		return model.Review{}, err
	}

	notFound := &echo.HTTPError{Code: http.StatusNotFound, Message: "Review not found."}
	id := c.Param("id")
	if validID(id) != nil {
		return model.Review{}, notFound
	}

	var review model.Review
	err = h.DB.Preload("Reviewer").
		Where("house_id IN (?)", h.visibleHouseIDs(currentUser(c))).
		First(&review, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Review{}, notFound
		}
		c.Logger().Error(err)
		return model.Review{}, &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Failed to fetch review."}
	}

	if allow != nil && !allow(actor, review) {
		return model.Review{}, &echo.HTTPError{Code: http.StatusForbidden, Message: "You do not have permission to change this review."}
	}
	return review, nil
}

func (h *Handler) visibleHouseIDs(actor *model.AuthUser) *gorm.DB {
	return h.DB.Model(&model.House{}).Scopes(model.HousesVisibleTo(actor)).Select("houses.id")
}
