package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"rentease/model"
	"rentease/policy"
)

func preloadFavorite(db *gorm.DB) *gorm.DB {
	return db.Preload("House").
		Preload("House.Owner").
		Preload("House.Categories").
		Preload("House.Reviews", func(db *gorm.DB) *gorm.DB {
			return db.Order("reviews.created_at desc")
		}).
		Preload("House.Reviews.Reviewer")
}

func (h *Handler) FetchFavorites(c echo.Context) error {
	actor, err := requireUser(c)
	if err != nil {
		return err
	}

	favorites := []model.Favorite{}
	res, err := paginate(c, func() *gorm.DB {
		return h.DB.Model(&model.Favorite{}).Where("user_id = ?", actor.ID)
	}, &favorites, orderBy("created_at desc"), preloadFavorite)
	if err != nil {
		return err
	}

	results := []model.PublicFavorite{}
	for _, f := range favorites {
		results = append(results, f.ToPublicFormat())
	}
	res.Results = results
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) CreateFavorite(c echo.Context) error {
	f := model.SubmitFavorite{}
	if err := c.Bind(&f); err != nil {
		return err
	}
	if err := c.Validate(&f); err != nil {
		return err
	}

	return h.addFavorite(c, f.HouseID)
}

// AddFavorite favorites the house named in the URL.
func (h *Handler) AddFavorite(c echo.Context) error {
	return h.addFavorite(c, c.Param("id"))
}

func (h *Handler) addFavorite(c echo.Context, houseID string) error {
	actor, err := requireUser(c)
	if err != nil {
		return err
	}

	house, err := h.visibleHouse(c, houseID)
	if err != nil {
		return err
	}

	favorite := model.Favorite{UserID: actor.ID, HouseID: house.ID}
	if err := h.DB.Create(&favorite).Error; err != nil {
		if model.IsUniqueViolation(err) {
			return &echo.HTTPError{Code: http.StatusBadRequest, Message: "House is already in your favorites."}
		}
		c.Logger().Error(err)
		return &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Failed to add favorite."}
	}

	if err := h.DB.Scopes(preloadFavorite).First(&favorite, "id = ?", favorite.ID).Error; err != nil {
		c.Logger().Error(err)
		return &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Failed to fetch favorite."}
	}
	return c.JSON(http.StatusCreated, favorite.ToPublicFormat())
}

// RemoveFavorite unfavorites the house named in the URL.
func (h *Handler) RemoveFavorite(c echo.Context) error {
	actor, err := requireUser(c)
	if err != nil {
		return err
	}

	houseID := c.Param("id")
	if validID(houseID) != nil {
		return &echo.HTTPError{Code: http.StatusNotFound, Message: "Favorite not found."}
	}

	r := h.DB.Where("user_id = ? AND house_id = ?", actor.ID, houseID).Delete(&model.Favorite{})
	if r.Error != nil {
		c.Logger().Error(r.Error)
		return &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Failed to remove favorite."}
	}
	if r.RowsAffected == 0 {
		return &echo.HTTPError{Code: http.StatusNotFound, Message: "Favorite not found."}
	}

	return c.NoContent(http.StatusNoContent)
}

// DeleteFavorite removes a favorite by its own id.
func (h *Handler) DeleteFavorite(c echo.Context) error {
	actor, err := requireUser(c)
	if err != nil {
		return err
	}

	notFound := &echo.HTTPError{Code: http.StatusNotFound, Message: "Favorite not found."}
	id := c.Param("id")
	if validID(id) != nil {
		return notFound
	}

	var favorite model.Favorite
	if err := h.DB.First(&favorite, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound
		}
		c.Logger().Error(err)
		return &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Failed to fetch favorite."}
	}
	if !policy.CanRemoveFavorite(actor, favorite) {
		return notFound
	}

	if err := h.DB.Delete(&favorite).Error; err != nil {
		c.Logger().Error(err)
		return &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Failed to remove favorite."}
	}

	return c.NoContent(http.StatusNoContent)
}
