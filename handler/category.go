package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"rentease/model"
	"rentease/policy"
)

var errCategoryExists = &echo.HTTPError{Code: http.StatusBadRequest, Message: "A category with this name already exists."}

func (h *Handler) FetchCategories(c echo.Context) error {
	categories := []model.Category{}
	res, err := paginate(c, func() *gorm.DB {
		return h.DB.Model(&model.Category{})
	}, &categories, orderBy("name asc"))
	if err != nil {
		return err
	}

	res.Results = categories
	return c.JSON(http.StatusOK, res)
}

// FetchCategory accepts either the id or the slug.
func (h *Handler) FetchCategory(c echo.Context) error {
	category, err := h.category(c)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, category)
}

func (h *Handler) category(c echo.Context) (model.Category, error) {
	key := c.Param("id")
	q := h.DB.Where("slug = ?", key)
	if validID(key) == nil {
		q = h.DB.Where("id = ?", key)
	}

	var category model.Category
	if err := q.First(&category).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return category, &echo.HTTPError{Code: http.StatusNotFound, Message: "Category not found."}
		}
		c.Logger().Error(err)
		return category, &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Failed to fetch category."}
	}
	return category, nil
}

func (h *Handler) requireCategoryAdmin(c echo.Context) error {
	actor, err := requireUser(c)
	if err != nil {
		return err
	}
	if !policy.CanManageCategories(actor) {
		return &echo.HTTPError{Code: http.StatusForbidden, Message: "Only admins can manage categories."}
	}
	return nil
}

func (h *Handler) CreateCategory(c echo.Context) error {
	if err := h.requireCategoryAdmin(c); err != nil {
		return err
	}

	f := model.SubmitCategory{}
	if err := c.Bind(&f); err != nil {
		return err
	}
	f.Name = strings.TrimSpace(f.Name)
	if err := c.Validate(&f); err != nil {
		return err
	}

	category := model.Category{Name: f.Name, Description: f.Description}
	if err := h.DB.Create(&category).Error; err != nil {
		if model.IsUniqueViolation(err) {
			return errCategoryExists
		}
		c.Logger().Error(err)
		return &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Failed to create category."}
	}

	return c.JSON(http.StatusCreated, category)
}

func (h *Handler) UpdateCategory(c echo.Context) error {
	if err := h.requireCategoryAdmin(c); err != nil {
		return err
	}

	category, err := h.category(c)
	if err != nil {
		return err
	}

	f := model.CategoryUpdate{}
	if err := c.Bind(&f); err != nil {
		return err
	}
	if err := c.Validate(&f); err != nil {
		return err
	}

	if changes := f.Changes(); len(changes) > 0 {
		if err := h.DB.Model(&category).Updates(changes).Error; err != nil {
			if model.IsUniqueViolation(err) {
				return errCategoryExists
			}
			c.Logger().Error(err)
			return &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Failed to update category."}
		}
	}

	if err := h.DB.First(&category, "id = ?", category.ID).Error; err != nil {
		c.Logger().Error(err)
		return &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Failed to fetch category."}
	}
	return c.JSON(http.StatusOK, category)
}

func (h *Handler) DeleteCategory(c echo.Context) error {
	if err := h.requireCategoryAdmin(c); err != nil {
		return err
	}

	category, err := h.category(c)
	if err != nil {
		return err
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM house_categories WHERE category_id = ?", category.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&category).Error
	})
	if err != nil {
		c.Logger().Error(err)
		return &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Failed to delete category."}
	}

	return c.NoContent(http.StatusNoContent)
}
